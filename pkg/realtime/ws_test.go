package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-kiosk/pkg/core"
	"github.com/vango-go/vai-kiosk/pkg/realtime/protocol"
)

func newRealtimeTestServer(t *testing.T, handler func(r *http.Request, conn *websocket.Conn)) (string, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/realtime" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(r, conn)
	}))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/realtime"
	return wsURL, server.Close
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestWSTransport_ConversationRoundTrip(t *testing.T) {
	type handshake struct {
		model  string
		auth   string
		beta   string
		update protocol.SessionUpdate
	}
	handshakes := make(chan handshake, 1)
	appended := make(chan protocol.InputAudioAppend, 1)

	serverURL, closeServer := newRealtimeTestServer(t, func(r *http.Request, conn *websocket.Conn) {
		defer conn.Close()
		var update protocol.SessionUpdate
		if err := conn.ReadJSON(&update); err != nil {
			return
		}
		handshakes <- handshake{
			model:  r.URL.Query().Get("model"),
			auth:   r.Header.Get("Authorization"),
			beta:   r.Header.Get("OpenAI-Beta"),
			update: update,
		}

		frames := []string{
			`{"type":"conversation.item.created","item":{"id":"item_u1","type":"message","role":"user","content":[{"type":"input_audio"}]}}`,
			`{"type":"conversation.item.input_audio_transcription.completed","item_id":"item_u1","content_index":0,"transcript":"Two cheeseburgers please"}`,
			`{"type":"response.created","response":{"id":"resp_1","status":"in_progress"}}`,
			`{"type":"response.done","response":{"id":"resp_1","status":"completed","output":[{"id":"item_a1","type":"message","role":"assistant","content":[{"type":"audio","transcript":"Your order is: 2 Cheeseburger."}]}]}}`,
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}

		var frame protocol.InputAudioAppend
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		appended <- frame
		_, _, _ = conn.ReadMessage()
	})
	defer closeServer()

	tr := NewWSTransport(WSConfig{
		URL: serverURL,
		Agent: AgentConfig{
			Model:              "gpt-4o-realtime-preview-2024-12-17",
			Instructions:       "take orders",
			Voice:              "alloy",
			Temperature:        0.8,
			MaxResponseTokens:  4096,
			TranscriptionModel: "whisper-1",
		},
	})

	agentEnd := make(chan string, 1)
	agentStart := make(chan struct{}, 1)
	transcribed := make(chan json.RawMessage, 1)
	disconnected := make(chan struct{}, 1)
	errs := make(chan Event, 1)
	tr.On(EventAgentEnd, func(ev Event) {
		var text string
		_ = json.Unmarshal(ev.Payload, &text)
		agentEnd <- text
	})
	tr.On(EventAgentStart, func(Event) { agentStart <- struct{}{} })
	tr.On(protocol.EventTranscriptionCompleted, func(ev Event) { transcribed <- ev.Payload })
	tr.On(EventDisconnected, func(Event) { disconnected <- struct{}{} })
	tr.On(EventError, func(ev Event) { errs <- ev })

	require.NoError(t, tr.Connect(context.Background(), "ek_test"))
	assert.True(t, tr.Connected())

	hs := waitFor(t, handshakes)
	assert.Equal(t, "gpt-4o-realtime-preview-2024-12-17", hs.model)
	assert.Equal(t, "Bearer ek_test", hs.auth)
	assert.Equal(t, "realtime=v1", hs.beta)
	assert.Equal(t, protocol.ClientSessionUpdate, hs.update.Type)
	assert.Equal(t, "take orders", hs.update.Session.Instructions)
	require.NotNil(t, hs.update.Session.TurnDetection)
	assert.Equal(t, protocol.TurnDetectionVAD, hs.update.Session.TurnDetection.Type)
	assert.Equal(t, 4096, hs.update.Session.MaxResponseOutputTokens)

	assert.Contains(t, string(waitFor(t, transcribed)), "Two cheeseburgers please")
	waitFor(t, agentStart)
	assert.Equal(t, "Your order is: 2 Cheeseburger.", waitFor(t, agentEnd))

	history := tr.History()
	require.Len(t, history, 2)
	assert.Equal(t, "item_u1", history[0].ID)
	assert.Equal(t, protocol.RoleUser, history[0].Role)
	var user protocol.Item
	require.NoError(t, json.Unmarshal(history[0].Payload, &user))
	assert.Equal(t, "Two cheeseburgers please", user.Text())
	assert.Equal(t, protocol.RoleAssistant, history[1].Role)

	require.NoError(t, tr.AppendAudio([]byte{1, 2, 3, 4}))
	frame := waitFor(t, appended)
	assert.Equal(t, protocol.ClientInputAudioAppend, frame.Type)
	assert.Equal(t, "AQIDBA==", frame.Audio)

	require.NoError(t, tr.Disconnect(context.Background()))
	require.NoError(t, tr.Disconnect(context.Background()))
	waitFor(t, disconnected)
	assert.False(t, tr.Connected())
	assert.NoError(t, tr.Err())
	assert.Empty(t, errs)
	assert.ErrorIs(t, tr.AppendAudio([]byte{1}), core.ErrNotConnected)
}

func TestWSTransport_ServerDropEmitsError(t *testing.T) {
	serverURL, closeServer := newRealtimeTestServer(t, func(r *http.Request, conn *websocket.Conn) {
		var update json.RawMessage
		_ = conn.ReadJSON(&update)
		_ = conn.Close()
	})
	defer closeServer()

	tr := NewWSTransport(WSConfig{URL: serverURL})
	errs := make(chan Event, 1)
	disconnected := make(chan struct{}, 1)
	tr.On(EventError, func(ev Event) { errs <- ev })
	tr.On(EventDisconnected, func(Event) { disconnected <- struct{}{} })

	require.NoError(t, tr.Connect(context.Background(), "ek_test"))

	ev := waitFor(t, errs)
	var serverErr protocol.ServerError
	require.NoError(t, json.Unmarshal(ev.Payload, &serverErr))
	assert.Equal(t, "transport_error", serverErr.Error.Type)
	waitFor(t, disconnected)

	var terr *core.TransportError
	require.ErrorAs(t, tr.Err(), &terr)
	assert.Equal(t, "read", terr.Op)
}

func TestWSTransport_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/realtime"
	defer server.Close()

	err := NewWSTransport(WSConfig{URL: wsURL}).Connect(context.Background(), "ek_test")
	var terr *core.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Error(), "status 404")
}

func TestWSTransport_ConnectAfterDisconnectFails(t *testing.T) {
	serverURL, closeServer := newRealtimeTestServer(t, func(r *http.Request, conn *websocket.Conn) {
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
		_, _, _ = conn.ReadMessage()
	})
	defer closeServer()

	tr := NewWSTransport(WSConfig{URL: serverURL})
	require.NoError(t, tr.Disconnect(context.Background()))
	assert.ErrorIs(t, tr.Connect(context.Background(), "ek_test"), core.ErrSessionClosed)
}

func TestWSTransport_EmptyCredential(t *testing.T) {
	err := NewWSTransport(WSConfig{}).Connect(context.Background(), "")
	var kerr *core.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, core.ErrCredential, kerr.Type)
}
