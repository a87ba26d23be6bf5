// Package agent streams conversations with the hosted agent and resolves the
// tool calls it makes against the search index.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voice-search-assistant/internal/models"
)

var (
	ErrMissingCredentials = errors.New("agent credentials missing")
	ErrStream             = errors.New("agent stream error")
)

// Stream event types of the UI message stream.
const (
	EventStart              = "start"
	EventTextStart          = "text-start"
	EventTextDelta          = "text-delta"
	EventTextEnd            = "text-end"
	EventToolInputStart     = "tool-input-start"
	EventToolInputAvailable = "tool-input-available"
	EventFinish             = "finish"
	EventError              = "error"

	doneSentinel = "[DONE]"
)

// Config holds agent endpoint settings.
type Config struct {
	AppID    string
	APIKey   string
	AgentID  string
	Endpoint string // overrides the completions URL derived from AppID and AgentID
	Timeout  time.Duration
}

// StreamEvent is one decoded `data:` line of the agent stream.
type StreamEvent struct {
	Type       string          `json:"type"`
	MessageID  string          `json:"messageId,omitempty"`
	ID         string          `json:"id,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}

// Client posts conversations to the agent completions endpoint.
type Client struct {
	HTTPClient *http.Client
	endpoint   string
	appID      string
	apiKey     string
}

// NewClient creates an agent client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(
			"https://%s.algolia.net/agent-studio/1/agents/%s/completions?stream=true&compatibilityMode=ai-sdk-5",
			cfg.AppID, cfg.AgentID,
		)
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		appID:      cfg.AppID,
		apiKey:     cfg.APIKey,
	}
}

type completionsRequest struct {
	ID       string           `json:"id"`
	Messages []models.Message `json:"messages"`
	Trigger  string           `json:"trigger"`
}

// Stream sends the conversation and calls handle for every event in order.
// The stream is not read while handle runs. A handle error aborts the stream.
func (c *Client) Stream(ctx context.Context, chatID string, messages []models.Message, handle func(StreamEvent) error) error {
	if c.appID == "" || c.apiKey == "" {
		return ErrMissingCredentials
	}

	reqBody, err := json.Marshal(completionsRequest{ID: chatID, Messages: messages, Trigger: "submit-message"})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("x-algolia-application-id", c.appID)
	req.Header.Set("x-algolia-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("agent error: status=%d body=%s", resp.StatusCode, string(b))
	}

	return readStream(resp.Body, handle)
}

// readStream parses server-sent events until [DONE] or end of body.
func readStream(r io.Reader, handle func(StreamEvent) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == doneSentinel {
			return nil
		}

		var ev StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return fmt.Errorf("decode stream event: %w", err)
		}
		if ev.Type == EventError {
			return fmt.Errorf("%w: %s", ErrStream, ev.ErrorText)
		}
		if err := handle(ev); err != nil {
			return err
		}
	}
	return sc.Err()
}
