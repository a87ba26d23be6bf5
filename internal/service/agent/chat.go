package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-search-assistant/internal/models"
	"voice-search-assistant/internal/observability/logging"
	"voice-search-assistant/internal/observability/metrics"
)

// Status is the chat request status.
type Status string

const (
	StatusReady     Status = "ready"
	StatusSubmitted Status = "submitted"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
)

// Streamer streams a conversation turn from the agent.
type Streamer interface {
	Stream(ctx context.Context, chatID string, messages []models.Message, handle func(StreamEvent) error) error
}

// MessagePublisher receives completed messages.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, ev models.MessageCompleted) error
}

// Chat is the append-only message log of one session together with the
// status of its agent request.
type Chat struct {
	id        string
	sessionID string
	streamer  Streamer
	tools     ToolResolver
	publisher MessagePublisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu       sync.RWMutex
	messages []models.Message
	status   Status
	err      error
	onChange func()
}

// NewChat creates an empty chat. publisher may be nil.
func NewChat(sessionID string, streamer Streamer, tools ToolResolver, publisher MessagePublisher) *Chat {
	return &Chat{
		id:        uuid.NewString(),
		sessionID: sessionID,
		streamer:  streamer,
		tools:     tools,
		publisher: publisher,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.ForSession("chat", sessionID),
		status:    StatusReady,
	}
}

// OnChange registers fn to be called after every change to the log or status.
func (c *Chat) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Messages returns a copy of the message log.
func (c *Chat) Messages() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Message, len(c.messages))
	for i, m := range c.messages {
		m.Parts = append([]models.Part(nil), m.Parts...)
		out[i] = m
	}
	return out
}

// Status returns the current request status.
func (c *Chat) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Err returns the error of the last failed request.
func (c *Chat) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Replay appends a user message for query and an assistant message carrying
// a cached tool output, without contacting the agent.
func (c *Chat) Replay(ctx context.Context, query string, output models.ToolOutput) {
	output.ToolCallID = "replay-" + uuid.NewString()
	user := c.newMessage(models.RoleUser, models.TextPart(query))
	assistant := c.newMessage(models.RoleAssistant, output.Part())

	c.mu.Lock()
	c.messages = append(c.messages, user, assistant)
	c.status = StatusReady
	c.err = nil
	c.mu.Unlock()
	c.notify()

	c.publish(ctx, user)
	c.publish(ctx, assistant)
}

// Send appends a user message and streams the assistant's reply. Tool calls
// are resolved as they arrive; onToolOutput is called for each successful one.
// On failure the status becomes StatusError and the error is returned.
func (c *Chat) Send(ctx context.Context, text string, onToolOutput func(models.ToolOutput)) error {
	start := time.Now()
	user := c.newMessage(models.RoleUser, models.TextPart(text))

	c.mu.Lock()
	c.messages = append(c.messages, user)
	c.status = StatusSubmitted
	c.err = nil
	history := make([]models.Message, len(c.messages))
	copy(history, c.messages)
	c.mu.Unlock()
	c.notify()
	c.publish(ctx, user)

	t := &turn{chat: c, ctx: ctx, assistantIdx: -1, textParts: map[string]int{}, onToolOutput: onToolOutput}
	err := c.streamer.Stream(ctx, c.id, history, t.handle)
	c.metrics.RecordAgentStream(err, time.Since(start).Seconds())

	c.mu.Lock()
	var assistant *models.Message
	if t.assistantIdx >= 0 {
		m := c.messages[t.assistantIdx]
		assistant = &m
	}
	if err != nil {
		c.status = StatusError
		c.err = err
	} else {
		c.status = StatusReady
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		c.logger.Error().Err(err).Msg("Agent request failed")
		return fmt.Errorf("agent request: %w", err)
	}
	if assistant != nil {
		c.publish(ctx, *assistant)
	}
	return nil
}

func (c *Chat) newMessage(role models.Role, parts ...models.Part) models.Message {
	return models.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Parts:     parts,
		CreatedAt: time.Now(),
	}
}

func (c *Chat) notify() {
	c.mu.RLock()
	fn := c.onChange
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Chat) publish(ctx context.Context, m models.Message) {
	if c.publisher == nil {
		return
	}
	ev := models.MessageCompleted{
		EventType: models.EventMessageCompleted,
		SessionID: c.sessionID,
		Timestamp: time.Now().UnixMilli(),
		Message:   m,
	}
	if err := c.publisher.PublishMessage(ctx, ev); err != nil {
		c.logger.Warn().Err(err).Str("messageId", m.ID).Msg("Failed to publish message")
	}
}

// turn accumulates one streamed assistant message.
type turn struct {
	chat         *Chat
	ctx          context.Context
	assistantIdx int
	textParts    map[string]int
	onToolOutput func(models.ToolOutput)
}

func (t *turn) handle(ev StreamEvent) error {
	c := t.chat

	switch ev.Type {
	case EventStart:
		t.withMessage(ev.MessageID, func(m *models.Message) {})

	case EventTextStart:
		t.withMessage("", func(m *models.Message) {
			m.Parts = append(m.Parts, models.TextPart(""))
			t.textParts[ev.ID] = len(m.Parts) - 1
		})

	case EventTextDelta:
		t.withMessage("", func(m *models.Message) {
			idx, ok := t.textParts[ev.ID]
			if !ok {
				m.Parts = append(m.Parts, models.TextPart(""))
				idx = len(m.Parts) - 1
				t.textParts[ev.ID] = idx
			}
			m.Parts[idx].Text += ev.Delta
		})

	case EventToolInputStart:
		t.withMessage("", func(m *models.Message) {
			t.toolPart(m, ev).State = models.ToolStateInputStreaming
		})

	case EventToolInputAvailable:
		t.withMessage("", func(m *models.Message) {
			p := t.toolPart(m, ev)
			p.State = models.ToolStateInputAvailable
			p.Input = ev.Input
		})
		t.resolveTool(ev)

	case EventTextEnd, EventFinish:
		// nothing to record

	default:
		c.logger.Debug().Str("type", ev.Type).Msg("Ignoring stream event")
	}
	return nil
}

// resolveTool runs the tool while the stream is paused and attaches the result.
func (t *turn) resolveTool(ev StreamEvent) {
	c := t.chat
	out, err := c.tools.Resolve(t.ctx, ev.ToolName, ev.Input)

	state := models.ToolStateOutputAvailable
	t.withMessage("", func(m *models.Message) {
		p := t.toolPart(m, ev)
		if err != nil {
			state = models.ToolStateOutputError
			p.State = state
			p.ErrorText = err.Error()
			return
		}
		p.State = state
		p.Output = out
	})
	c.metrics.RecordToolCall(ev.ToolName, state)

	if err != nil {
		c.logger.Warn().Err(err).Str("tool", ev.ToolName).Str("toolCallId", ev.ToolCallID).Msg("Tool call failed")
		return
	}
	if t.onToolOutput != nil {
		t.onToolOutput(models.ToolOutput{
			ToolName:   ev.ToolName,
			ToolCallID: ev.ToolCallID,
			Input:      append(json.RawMessage(nil), ev.Input...),
			Output:     out,
		})
	}
}

// withMessage applies fn to the assistant message, creating it on first use.
func (t *turn) withMessage(messageID string, fn func(m *models.Message)) {
	c := t.chat
	c.mu.Lock()
	if t.assistantIdx < 0 {
		m := c.newMessage(models.RoleAssistant)
		if messageID != "" {
			m.ID = messageID
		}
		c.messages = append(c.messages, m)
		t.assistantIdx = len(c.messages) - 1
	}
	c.status = StatusStreaming
	fn(&c.messages[t.assistantIdx])
	c.mu.Unlock()
	c.notify()
}

// toolPart finds the part for ev's tool call, appending it when new.
// Must be called inside withMessage.
func (t *turn) toolPart(m *models.Message, ev StreamEvent) *models.Part {
	for i := range m.Parts {
		if m.Parts[i].IsTool() && m.Parts[i].ToolCallID == ev.ToolCallID {
			return &m.Parts[i]
		}
	}
	m.Parts = append(m.Parts, models.Part{
		Type:       models.ToolPartType(ev.ToolName),
		ToolCallID: ev.ToolCallID,
	})
	return &m.Parts[len(m.Parts)-1]
}
