// Package session owns the process-wide realtime connection shared by
// successive customers.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vango-go/vai-kiosk/pkg/conversation"
	"github.com/vango-go/vai-kiosk/pkg/core"
	"github.com/vango-go/vai-kiosk/pkg/ingest"
	"github.com/vango-go/vai-kiosk/pkg/realtime"
)

const (
	StageCredential = "credential"
	StageConnect    = "connect"

	defaultConnectTimeout = 15 * time.Second
)

// Handle is a live connection plus the per-connection bookkeeping the engine
// keeps alongside it. Transport, Language and CreatedAt are fixed at connect
// time; the remaining fields are owned and guarded by the caller.
type Handle struct {
	Transport realtime.Transport
	Language  string
	CreatedAt time.Time

	ListenersAttached bool
	LastDeletion      time.Time
	Dedup             *conversation.Deduper
	History           *ingest.HistoryTracker
}

// Dependencies configures a Manager.
type Dependencies struct {
	NewTransport realtime.Factory
	Credentials  realtime.CredentialSource
	// Agent holds the voice, model and transcription defaults. Language and
	// Instructions are filled in per call.
	Agent          realtime.AgentConfig
	ConnectTimeout time.Duration
	Dedup          conversation.DedupConfig
	Logger         *slog.Logger
	Now            func() time.Time
}

// Manager hands out a single shared Handle. Concurrent callers of
// GetOrCreate while no session exists share one connect attempt.
type Manager struct {
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group

	mu         sync.Mutex
	current    *Handle
	generation uint64
}

func NewManager(deps Dependencies) (*Manager, error) {
	if deps.NewTransport == nil {
		return nil, core.NewInvalidRequestError("session manager requires a transport factory")
	}
	if deps.Credentials == nil {
		return nil, core.NewInvalidRequestError("session manager requires a credential source")
	}
	if deps.ConnectTimeout <= 0 {
		deps.ConnectTimeout = defaultConnectTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Dedup.Now == nil {
		deps.Dedup.Now = now
	}
	return &Manager{deps: deps, logger: logger, now: now}, nil
}

// Current returns the live handle, or nil.
func (m *Manager) Current() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// GetOrCreate returns the live handle, connecting first if there is none.
// ctx bounds only the wait; an attempt already in flight keeps running for
// the other callers when ctx ends.
func (m *Manager) GetOrCreate(ctx context.Context, language, instructions string) (*Handle, error) {
	m.mu.Lock()
	if h := m.current; h != nil {
		m.mu.Unlock()
		return h, nil
	}
	gen := m.generation
	m.mu.Unlock()

	ch := m.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return m.connect(gen, language, instructions)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, core.NewConnectionError(StageConnect, ctx.Err())
	}
}

func (m *Manager) connect(gen uint64, language, instructions string) (*Handle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.deps.ConnectTimeout)
	defer cancel()

	started := m.now()
	credential, err := m.deps.Credentials.Credential(ctx)
	if err != nil {
		m.logger.Warn("credential fetch failed", "error", err)
		return nil, core.NewConnectionError(StageCredential, err)
	}

	agent := m.deps.Agent
	agent.Language = language
	agent.Instructions = instructions
	tr := m.deps.NewTransport(agent)
	if err := tr.Connect(ctx, credential); err != nil {
		m.logger.Warn("realtime connect failed", "error", err)
		return nil, core.NewConnectionError(StageConnect, err)
	}

	h := &Handle{
		Transport: tr,
		Language:  language,
		CreatedAt: m.now(),
		Dedup:     conversation.NewDeduper(m.deps.Dedup),
		History:   ingest.NewHistoryTracker(),
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		m.logger.Info("session destroyed during connect, closing new transport")
		tr.RemoveAllListeners()
		if err := tr.Disconnect(ctx); err != nil {
			m.logger.Warn("disconnect after cancelled connect failed", "error", err)
		}
		return nil, core.NewConnectionError(StageConnect, core.ErrSessionClosed)
	}
	m.current = h
	m.mu.Unlock()

	m.logger.Info("realtime session connected",
		"language", language,
		"duration_ms", h.CreatedAt.Sub(started).Milliseconds(),
	)
	return h, nil
}

// Destroy tears down the live session, if any. It is safe to call at any
// time, including while a connect is in flight; that attempt then fails with
// core.ErrSessionClosed. Disconnect errors are logged, not returned.
func (m *Manager) Destroy(ctx context.Context) {
	m.mu.Lock()
	h := m.current
	m.current = nil
	m.generation++
	m.mu.Unlock()

	if h == nil {
		return
	}
	h.Transport.RemoveAllListeners()
	if err := h.Transport.Disconnect(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("realtime disconnect failed", "error", err)
		return
	}
	m.logger.Info("realtime session destroyed")
}
