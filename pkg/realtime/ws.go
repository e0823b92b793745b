package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-kiosk/pkg/core"
	"github.com/vango-go/vai-kiosk/pkg/realtime/protocol"
)

const (
	DefaultURL            = "wss://api.openai.com/v1/realtime"
	defaultConnectTimeout = 15 * time.Second
	closeWriteTimeout     = 2 * time.Second
)

// WSConfig configures a websocket transport.
type WSConfig struct {
	URL            string
	Agent          AgentConfig
	Dialer         *websocket.Dialer
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// WSTransport is a Transport over the realtime websocket API. A transport is
// single use: once disconnected it cannot connect again.
type WSTransport struct {
	cfg       WSConfig
	logger    *slog.Logger
	listeners Listeners

	mu     sync.Mutex
	conn   *websocket.Conn
	done   chan struct{}
	closed bool
	items  map[string]*protocol.Item
	order  []string

	writeMu   sync.Mutex
	closeOnce sync.Once
	connected atomic.Bool

	errMu sync.Mutex
	err   error
}

var _ Transport = (*WSTransport)(nil)

func NewWSTransport(cfg WSConfig) *WSTransport {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WSTransport{
		cfg:    cfg,
		logger: logger,
		items:  make(map[string]*protocol.Item),
	}
}

// WSFactory returns a Factory producing websocket transports from base.
func WSFactory(base WSConfig) Factory {
	return func(agent AgentConfig) Transport {
		cfg := base
		cfg.Agent = agent
		return NewWSTransport(cfg)
	}
}

func (t *WSTransport) endpoint() (string, error) {
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return "", core.NewInvalidRequestError(fmt.Sprintf("invalid realtime url: %v", err))
	}
	if model := strings.TrimSpace(t.cfg.Agent.Model); model != "" {
		q := u.Query()
		q.Set("model", model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Connect dials the service, configures the agent and starts the read loop.
func (t *WSTransport) Connect(ctx context.Context, credential string) error {
	if t.connected.Load() {
		return core.NewInvalidRequestError("transport already connected")
	}
	if strings.TrimSpace(credential) == "" {
		return core.NewCredentialError("empty credential", nil)
	}
	wsURL, err := t.endpoint()
	if err != nil {
		return err
	}

	headers := make(http.Header)
	headers.Set("Authorization", "Bearer "+credential)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, t.cfg.ConnectTimeout)
		defer cancel()
	}

	conn, resp, err := t.cfg.Dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return &core.TransportError{Op: "GET", URL: wsURL, Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return &core.TransportError{Op: "GET", URL: wsURL, Err: err}
	}

	if err := conn.WriteJSON(t.sessionUpdate()); err != nil {
		_ = conn.Close()
		return &core.TransportError{Op: "session.update", URL: wsURL, Err: err}
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return core.ErrSessionClosed
	}
	t.conn = conn
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	t.connected.Store(true)
	go t.readLoop(conn, done)
	t.listeners.Emit(Event{Name: EventConnected})
	return nil
}

func (t *WSTransport) sessionUpdate() protocol.SessionUpdate {
	agent := t.cfg.Agent
	transcription := &protocol.Transcription{Model: agent.TranscriptionModel}
	if transcription.Model == "" {
		transcription.Model = "whisper-1"
	}
	return protocol.SessionUpdate{
		Type: protocol.ClientSessionUpdate,
		Session: protocol.SessionConfig{
			Modalities:              []string{"text", "audio"},
			Instructions:            agent.Instructions,
			Voice:                   agent.Voice,
			InputAudioFormat:        protocol.AudioFormatPCM16,
			OutputAudioFormat:       protocol.AudioFormatPCM16,
			InputAudioTranscription: transcription,
			TurnDetection:           &protocol.TurnDetection{Type: protocol.TurnDetectionVAD},
			Temperature:             agent.Temperature,
			MaxResponseOutputTokens: agent.MaxResponseTokens,
		},
	}
}

// Connected reports whether the read loop is running.
func (t *WSTransport) Connected() bool { return t.connected.Load() }

// Disconnect closes the connection and waits for the read loop to finish.
// It is safe to call more than once and before Connect.
func (t *WSTransport) Disconnect(ctx context.Context) error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return
		}
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeWriteTimeout))
		t.writeMu.Unlock()
		_ = conn.Close()
	})

	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the first read error, if any.
func (t *WSTransport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *WSTransport) setErr(err error) {
	if err == nil {
		return
	}
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *WSTransport) On(event string, h Handler) (off func()) {
	return t.listeners.On(event, h)
}

func (t *WSTransport) RemoveAllListeners() { t.listeners.RemoveAll() }

// AppendAudio streams 16-bit PCM microphone audio to the agent.
func (t *WSTransport) AppendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return t.sendJSON(protocol.InputAudioAppend{
		Type:  protocol.ClientInputAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

func (t *WSTransport) sendJSON(v any) error {
	t.mu.Lock()
	conn, closed := t.conn, t.closed
	t.mu.Unlock()
	if conn == nil || closed || !t.connected.Load() {
		return core.ErrNotConnected
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		return &core.TransportError{Op: "write", Err: err}
	}
	return nil
}

// History returns the conversation items in creation order.
func (t *WSTransport) History() []HistoryEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]HistoryEntry, 0, len(t.order))
	for _, id := range t.order {
		it := t.items[id]
		payload, err := json.Marshal(it)
		if err != nil {
			continue
		}
		out = append(out, HistoryEntry{ID: it.ID, Role: it.Role, Type: it.Type, Payload: payload})
	}
	return out
}

func (t *WSTransport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer t.connected.Store(false)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closing := t.closed
			t.mu.Unlock()
			if !closing && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				terr := &core.TransportError{Op: "read", URL: t.cfg.URL, Err: err}
				t.setErr(terr)
				t.logger.Warn("realtime connection lost", "err", terr)
				t.listeners.Emit(Event{Name: EventError, Payload: errorPayload(terr.Error())})
			}
			t.connected.Store(false)
			t.listeners.Emit(Event{Name: EventDisconnected})
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		t.handleFrame(data)
	}
}

func (t *WSTransport) handleFrame(data []byte) {
	typ, frame, err := protocol.DecodeServerEvent(data)
	if err != nil {
		var decErr *protocol.DecodeError
		if errors.As(err, &decErr) {
			t.logger.Warn("dropping undecodable realtime frame", "type", decErr.Type, "err", err)
		}
		return
	}

	agentText := t.record(frame)
	payload := append(json.RawMessage(nil), data...)
	t.listeners.Emit(Event{Name: typ, Payload: payload})

	switch f := frame.(type) {
	case protocol.ResponseCreated:
		t.listeners.Emit(Event{Name: EventAgentStart, Payload: payload})
	case protocol.ResponseDone:
		if agentText == "" {
			return
		}
		text, err := json.Marshal(agentText)
		if err != nil {
			return
		}
		t.listeners.Emit(Event{Name: EventAgentEnd, Payload: text})
	case protocol.ServerError:
		t.logger.Warn("realtime server error", "code", f.Error.Code, "message", f.Error.Message)
	}
}

// record folds frame into the history. For response.done it returns the
// assistant text of the response.
func (t *WSTransport) record(frame any) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch f := frame.(type) {
	case protocol.ItemCreated:
		t.upsert(f.Item)
	case protocol.OutputItemDone:
		t.upsert(f.Item)
	case protocol.TranscriptionCompleted:
		t.itemFor(f.ItemID, protocol.RoleUser).SetTranscript(f.ContentIndex, f.Transcript)
	case protocol.AudioTranscriptDone:
		t.itemFor(f.ItemID, protocol.RoleAssistant).SetTranscript(f.ContentIndex, f.Transcript)
	case protocol.ResponseDone:
		var parts []string
		for _, it := range f.Response.Output {
			merged := t.upsert(it)
			if merged == nil || merged.Role != protocol.RoleAssistant {
				continue
			}
			if text := merged.Text(); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

func (t *WSTransport) itemFor(id, role string) *protocol.Item {
	if it, ok := t.items[id]; ok {
		return it
	}
	it := &protocol.Item{ID: id, Type: protocol.ItemTypeMessage, Role: role}
	t.items[id] = it
	t.order = append(t.order, id)
	return it
}

// upsert adds incoming or merges it into the known item, keeping transcripts
// the incoming copy lacks.
func (t *WSTransport) upsert(incoming protocol.Item) *protocol.Item {
	if incoming.ID == "" {
		return nil
	}
	next := incoming.Clone()
	prev, ok := t.items[incoming.ID]
	if !ok {
		t.items[incoming.ID] = &next
		t.order = append(t.order, incoming.ID)
		return &next
	}
	for i, c := range prev.Content {
		if i >= len(next.Content) {
			next.Content = append(next.Content, c)
			continue
		}
		if next.Content[i].Transcript == "" {
			next.Content[i].Transcript = c.Transcript
		}
		if next.Content[i].Text == "" {
			next.Content[i].Text = c.Text
		}
	}
	if next.Formatted == nil && prev.Formatted != nil {
		f := *prev.Formatted
		next.Formatted = &f
	}
	if next.Role == "" {
		next.Role = prev.Role
	}
	*prev = next
	return prev
}

func errorPayload(message string) json.RawMessage {
	data, _ := json.Marshal(protocol.ServerError{
		Type:  protocol.EventError,
		Error: protocol.ErrorDetail{Type: "transport_error", Message: message},
	})
	return data
}
