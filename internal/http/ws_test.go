package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialSession(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + sessionID + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(WSMessage) bool) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func TestStream_PushesStateAndAppliesCommands(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(NewRouter(a))
	t.Cleanup(srv.Close)

	st := createSession(t, srv.Config.Handler)
	conn := dialSession(t, srv, st.SessionID)

	first := readUntil(t, conn, func(m WSMessage) bool { return m.Type == MessageState })
	require.Equal(t, st.SessionID, first.State.SessionID)

	require.NoError(t, conn.WriteJSON(WSCommand{Type: CommandInput, Value: "retail"}))
	readUntil(t, conn, func(m WSMessage) bool {
		return m.Type == MessageState && m.State.Input == "retail"
	})

	require.NoError(t, conn.WriteJSON(WSCommand{Type: CommandKey, Key: "Enter"}))
	msg := readUntil(t, conn, func(m WSMessage) bool {
		return m.Type == MessageState && len(m.State.Messages) == 2 && m.State.ChatStatus == "ready"
	})
	require.Empty(t, msg.State.Input)
	require.Equal(t, "retail", msg.State.Messages[0].Text())
}

func TestStream_ReportsCommandErrors(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(NewRouter(a))
	t.Cleanup(srv.Close)

	st := createSession(t, srv.Config.Handler)
	conn := dialSession(t, srv, st.SessionID)
	readUntil(t, conn, func(m WSMessage) bool { return m.Type == MessageState })

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	msg := readUntil(t, conn, func(m WSMessage) bool { return m.Type == MessageError })
	require.Contains(t, msg.Error, "invalid command")

	require.NoError(t, conn.WriteJSON(WSCommand{Type: "dance"}))
	msg = readUntil(t, conn, func(m WSMessage) bool { return m.Type == MessageError })
	require.Contains(t, msg.Error, "unknown command")

	require.NoError(t, conn.WriteJSON(WSCommand{Type: CommandLanguage, Language: "xx"}))
	msg = readUntil(t, conn, func(m WSMessage) bool { return m.Type == MessageError })
	require.Contains(t, msg.Error, "unsupported recognition language")
}

func TestStream_AudioWhileListening(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(NewRouter(a))
	t.Cleanup(srv.Close)

	st := createSession(t, srv.Config.Handler)
	conn := dialSession(t, srv, st.SessionID)
	readUntil(t, conn, func(m WSMessage) bool { return m.Type == MessageState })

	require.NoError(t, conn.WriteJSON(WSCommand{Type: CommandMic}))
	readUntil(t, conn, func(m WSMessage) bool { return m.Type == MessageState && m.State.Listening })

	frame := make([]byte, 3200)
	for i := 0; i < 20; i++ {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	}
	msg := readUntil(t, conn, func(m WSMessage) bool {
		return m.Type == MessageState && m.State.Input != ""
	})
	require.Empty(t, msg.State.Error)
}

func TestStream_ClosesWithSession(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(NewRouter(a))
	t.Cleanup(srv.Close)

	st := createSession(t, srv.Config.Handler)
	conn := dialSession(t, srv, st.SessionID)
	readUntil(t, conn, func(m WSMessage) bool { return m.Type == MessageState })

	require.NoError(t, a.Sessions.Close(st.SessionID))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
			return
		}
	}
}

func TestStream_UnknownSession(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(NewRouter(a))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStream_PlainRequestRejected(t *testing.T) {
	h := NewRouter(newTestApp(t))
	st := createSession(t, h)

	rec := do(t, h, http.MethodGet, "/v1/sessions/"+st.SessionID+"/ws", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// The session is still usable after the failed upgrade.
	rec = do(t, h, http.MethodGet, "/v1/sessions/"+st.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
