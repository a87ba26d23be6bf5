package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voice-search-assistant/internal/assistant"
	"voice-search-assistant/internal/observability/logging"
)

const (
	wsWriteWait    = 10 * time.Second
	wsMaxFrameSize = 1 << 20
)

// Client commands sent as text frames. Binary frames carry audio.
const (
	CommandInput    = "input"
	CommandKey      = "key"
	CommandSubmit   = "submit"
	CommandClear    = "clear"
	CommandMic      = "mic"
	CommandLanguage = "language"
)

// Server message types.
const (
	MessageState = "state"
	MessageError = "error"
)

// WSCommand is a text frame sent by the client.
type WSCommand struct {
	Type     string `json:"type"`
	Value    string `json:"value,omitempty"`
	Key      string `json:"key,omitempty"`
	Shift    bool   `json:"shift,omitempty"`
	Query    string `json:"query,omitempty"`
	Language string `json:"language,omitempty"`
}

// WSMessage is a frame sent to the client.
type WSMessage struct {
	Type  string           `json:"type"`
	State *assistant.State `json:"state,omitempty"`
	Error string           `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// stream pushes session state to the client after every change and applies
// the commands and audio it sends.
func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := logging.ForSession("ws", s.ID())
		l.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxFrameSize)

	h.metrics.RecordWebSocketOpened()
	defer h.metrics.RecordWebSocketClosed()

	logger := logging.ForSession("ws", s.ID())
	logger.Info().Str("remote", r.RemoteAddr).Msg("Client connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	replies := make(chan WSMessage, 8)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		readCommands(ctx, conn, s, replies, logger)
	}()

	write := func(msg WSMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug().Err(err).Msg("WebSocket write failed")
			return false
		}
		return true
	}
	pushState := func() bool {
		st, err := s.State()
		if err != nil {
			return false
		}
		return write(WSMessage{Type: MessageState, State: &st})
	}

	if !pushState() {
		return
	}
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(wsWriteWait))
				logger.Info().Msg("Session closed, disconnecting client")
				return
			}
			if !pushState() {
				return
			}
		case msg := <-replies:
			if !write(msg) {
				return
			}
		case <-readDone:
			logger.Info().Msg("Client disconnected")
			return
		}
	}
}

func readCommands(ctx context.Context, conn *websocket.Conn, s *assistant.Session, replies chan<- WSMessage, logger zerolog.Logger) {
	reply := func(err error) {
		select {
		case replies <- WSMessage{Type: MessageError, Error: err.Error()}:
		case <-ctx.Done():
		}
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("WebSocket read failed")
			}
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			if err := s.SendAudio(ctx, data); err != nil {
				reply(err)
			}
		case websocket.TextMessage:
			var cmd WSCommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				reply(fmt.Errorf("invalid command: %w", err))
				continue
			}
			if err := apply(s, cmd); err != nil {
				reply(err)
			}
		}
	}
}

func apply(s *assistant.Session, cmd WSCommand) error {
	switch cmd.Type {
	case CommandInput:
		return s.SetInput(cmd.Value)
	case CommandKey:
		_, err := s.HandleKey(cmd.Key, cmd.Shift)
		return err
	case CommandSubmit:
		return s.Submit(cmd.Query)
	case CommandClear:
		return s.Clear()
	case CommandMic:
		return s.ToggleMic()
	case CommandLanguage:
		return s.SetLanguage(cmd.Language)
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
}
