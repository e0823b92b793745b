// Package engine turns a live voice-agent conversation into the canonical
// order for the current customer and decides when that order is final.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/buger/jsonparser"

	"github.com/vango-go/vai-kiosk/pkg/conversation"
	"github.com/vango-go/vai-kiosk/pkg/core"
	"github.com/vango-go/vai-kiosk/pkg/ingest"
	"github.com/vango-go/vai-kiosk/pkg/order"
	"github.com/vango-go/vai-kiosk/pkg/realtime"
	"github.com/vango-go/vai-kiosk/pkg/session"
)

const DefaultHistoryPollInterval = time.Second

// Sessions hands out the shared realtime session. *session.Manager
// implements it.
type Sessions interface {
	GetOrCreate(ctx context.Context, language, instructions string) (*session.Handle, error)
	Destroy(ctx context.Context)
}

// Status is the connection state shown to the customer.
type Status struct {
	Connected bool
	Listening bool
	Error     string
}

// Observer receives snapshots after every change. Callbacks run after the
// engine lock is released, possibly from the transport goroutine and the
// history poll concurrently. They must not call Disconnect synchronously.
type Observer struct {
	OnConversation func(messages []conversation.Message)
	OnOrder        func(lines []order.Line, total float64)
	OnComplete     func(c order.Completion)
	OnStatus       func(s Status)
	OnPhase        func(p Phase)
}

// Config holds per-deployment engine settings.
type Config struct {
	Language     string
	Instructions string
	// HistoryPollInterval is the period of the history read. Zero selects
	// the default; a negative value disables polling.
	HistoryPollInterval time.Duration
	DeletionDebounce    time.Duration
}

// Dependencies wires an Engine.
type Dependencies struct {
	Sessions  Sessions
	Extractor *order.Extractor
	Registry  *ingest.Registry
	Observer  Observer
	Metrics   *Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine owns the order and conversation log of the current customer. All
// mutation happens under one mutex.
type Engine struct {
	cfg       Config
	sessions  Sessions
	extractor *order.Extractor
	registry  *ingest.Registry
	observer  Observer
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu           sync.Mutex
	phase        Phase
	status       Status
	state        order.State
	log          conversation.Log
	handle       *session.Handle
	offs         []func()
	pendingReset bool
	stale        bool
	epoch        uint64
	pollCancel   context.CancelFunc
	pollDone     chan struct{}
}

func New(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Sessions == nil {
		return nil, core.NewInvalidRequestError("engine requires a session provider")
	}
	if deps.Extractor == nil {
		return nil, core.NewInvalidRequestError("engine requires an order extractor")
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "en"
	}
	if cfg.HistoryPollInterval == 0 {
		cfg.HistoryPollInterval = DefaultHistoryPollInterval
	}
	if cfg.DeletionDebounce <= 0 {
		cfg.DeletionDebounce = DefaultDeletionDebounce
	}
	if deps.Registry == nil {
		deps.Registry = ingest.DefaultRegistry()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:       cfg,
		sessions:  deps.Sessions,
		extractor: deps.Extractor,
		registry:  deps.Registry,
		observer:  deps.Observer,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       now,
		phase:     PhaseIdle,
	}, nil
}

// Start begins a customer interaction. A reset left pending by the previous
// completion or disconnect is applied first; the shared session is reused
// when it is still live. Calling Start while already listening is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.phase.Active() {
		e.mu.Unlock()
		return nil
	}
	if e.phase == PhaseConnecting {
		e.mu.Unlock()
		return core.NewInvalidRequestError("start already in progress")
	}
	var n notes
	if e.pendingReset || e.phase == PhaseCompleting || e.phase == PhaseDisconnected {
		e.resetLocked(&n)
	}
	stale := e.stale
	if stale {
		e.detachLocked()
		e.stale = false
	}
	e.transitionLocked(PhaseConnecting, &n)
	epoch := e.epoch
	e.finishLocked(&n)
	e.mu.Unlock()
	e.emit(n)

	if stale {
		e.sessions.Destroy(ctx)
	}

	started := e.now()
	h, err := e.sessions.GetOrCreate(ctx, e.cfg.Language, e.cfg.Instructions)

	e.mu.Lock()
	n = notes{}
	if err == nil && e.epoch != epoch {
		err = core.NewConnectionError(session.StageConnect, core.ErrSessionClosed)
	}
	if err != nil {
		e.metrics.RecordConnect("error", e.now().Sub(started))
		if e.epoch == epoch && e.phase == PhaseConnecting {
			e.pendingReset = true
			e.transitionLocked(PhaseDisconnected, &n)
			e.setStatusLocked(Status{Error: err.Error()}, &n)
		}
		e.finishLocked(&n)
		e.mu.Unlock()
		e.emit(n)
		e.logger.Error("session start failed", "err", err)
		return err
	}
	e.metrics.RecordConnect("ok", e.now().Sub(started))

	e.handle = h
	if !h.ListenersAttached {
		e.attachLocked(h)
		h.ListenersAttached = true
	}
	e.transitionLocked(PhaseListening, &n)
	e.setStatusLocked(Status{Connected: true, Listening: true}, &n)
	e.startPollLocked()
	e.finishLocked(&n)
	e.mu.Unlock()
	e.emit(n)

	e.logger.Info("listening for order", "language", e.cfg.Language)
	return nil
}

// Disconnect stops the history poll, detaches listeners and destroys the
// session. It is safe at any time, including while Start is connecting, and
// leaves a reset pending for the next Start.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	e.epoch++
	done := e.stopPollLocked()
	offs := e.offs
	e.offs = nil
	if e.handle != nil {
		e.handle.ListenersAttached = false
		e.handle = nil
	}
	e.stale = false
	e.pendingReset = true

	var n notes
	if e.phase != PhaseDisconnected {
		e.transitionLocked(PhaseDisconnected, &n)
	}
	e.setStatusLocked(Status{}, &n)
	e.finishLocked(&n)
	e.mu.Unlock()

	for _, off := range offs {
		off()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	e.sessions.Destroy(ctx)
	e.emit(n)
	e.logger.Info("engine disconnected")
	return nil
}

// Ingest feeds an utterance through deduplication, the conversation log and,
// for agent speech, order extraction and completion detection.
func (e *Engine) Ingest(speaker conversation.Speaker, text string) error {
	e.mu.Lock()
	h := e.handle
	if h == nil || !e.acceptingLocked() {
		e.mu.Unlock()
		return core.ErrNotConnected
	}
	var n notes
	e.ingestLocked(h, ingest.Utterance{Speaker: speaker, Text: text}, "direct", &n)
	e.finishLocked(&n)
	e.mu.Unlock()
	e.emit(n)
	return nil
}

// SyncHistory reads the transport history and ingests entries not seen yet.
func (e *Engine) SyncHistory() {
	e.mu.Lock()
	h := e.handle
	if h == nil || !e.acceptingLocked() {
		e.mu.Unlock()
		return
	}
	var n notes
	e.syncHistoryLocked(h, &n)
	e.finishLocked(&n)
	e.mu.Unlock()
	e.emit(n)
}

// RemoveItemByName drops every line for the named item and starts the
// deletion debounce. It returns the number of lines removed.
func (e *Engine) RemoveItemByName(name string) int {
	e.mu.Lock()
	var n notes
	removed := e.state.RemoveByName(name)
	if e.handle != nil {
		e.handle.LastDeletion = e.now()
	}
	if removed > 0 {
		n.order = true
		e.metrics.RecordMutation("manual_removal")
	}
	e.finishLocked(&n)
	e.mu.Unlock()
	e.emit(n)

	e.logger.Info("item removed", "item", name, "lines", removed)
	return removed
}

// Order returns the current lines and their total.
func (e *Engine) Order() ([]order.Line, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Lines(), e.state.Total()
}

// Conversation returns the accepted utterances so far.
func (e *Engine) Conversation() []conversation.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.Messages()
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// PendingReset reports whether the next Start clears the current customer.
func (e *Engine) PendingReset() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingReset
}

func (e *Engine) acceptingLocked() bool {
	return e.phase.Active() || e.phase == PhaseCompleting
}

func (e *Engine) attachLocked(h *session.Handle) {
	for _, name := range e.registry.Events() {
		e.offs = append(e.offs, h.Transport.On(name, func(ev realtime.Event) {
			e.handleEvent(h, ev)
		}))
	}
	e.offs = append(e.offs,
		h.Transport.On(realtime.EventConnected, func(realtime.Event) { e.handleConnected(h) }),
		h.Transport.On(realtime.EventDisconnected, func(realtime.Event) { e.handleDisconnected(h) }),
		h.Transport.On(realtime.EventError, func(ev realtime.Event) { e.handleError(h, ev) }),
	)
}

func (e *Engine) detachLocked() {
	for _, off := range e.offs {
		off()
	}
	e.offs = nil
	if e.handle != nil {
		e.handle.ListenersAttached = false
		e.handle = nil
	}
}

func (e *Engine) handleEvent(h *session.Handle, ev realtime.Event) {
	e.mu.Lock()
	if e.handle != h || !e.acceptingLocked() {
		e.mu.Unlock()
		return
	}
	var n notes
	if u, ok := e.registry.Normalize(ev.Name, ev.Payload); ok {
		e.ingestLocked(h, u, ev.Name, &n)
	}
	e.syncHistoryLocked(h, &n)
	e.finishLocked(&n)
	e.mu.Unlock()
	e.emit(n)
}

func (e *Engine) handleConnected(h *session.Handle) {
	e.mu.Lock()
	if e.handle != h {
		e.mu.Unlock()
		return
	}
	var n notes
	s := e.status
	s.Connected = true
	e.setStatusLocked(s, &n)
	e.mu.Unlock()
	e.emit(n)
}

func (e *Engine) handleDisconnected(h *session.Handle) {
	e.mu.Lock()
	if e.handle != h {
		e.mu.Unlock()
		return
	}
	var n notes
	e.stopPollLocked()
	e.stale = true
	e.pendingReset = true
	if e.phase != PhaseDisconnected {
		e.transitionLocked(PhaseDisconnected, &n)
	}
	e.setStatusLocked(Status{Error: e.status.Error}, &n)
	e.mu.Unlock()
	e.emit(n)

	e.logger.Warn("realtime session disconnected")
}

func (e *Engine) handleError(h *session.Handle, ev realtime.Event) {
	msg, err := jsonparser.GetString(ev.Payload, "error", "message")
	if err != nil || strings.TrimSpace(msg) == "" {
		msg = "realtime error"
	}

	e.mu.Lock()
	if e.handle != h {
		e.mu.Unlock()
		return
	}
	var n notes
	s := e.status
	s.Error = msg
	e.setStatusLocked(s, &n)
	e.mu.Unlock()
	e.emit(n)

	e.logger.Warn("realtime error", "message", msg)
}

func (e *Engine) syncHistoryLocked(h *session.Handle, n *notes) {
	e.metrics.RecordHistoryPoll()
	for _, entry := range h.Transport.History() {
		u, ok := h.History.Take(entry)
		if !ok {
			continue
		}
		e.ingestLocked(h, u, "history", n)
	}
}

func (e *Engine) ingestLocked(h *session.Handle, u ingest.Utterance, source string, n *notes) {
	verdict := h.Dedup.Admit(u.Speaker, u.Text)
	e.metrics.RecordUtterance(string(u.Speaker), string(verdict))
	if verdict != conversation.VerdictAccepted {
		e.logger.Debug("utterance dropped", "speaker", u.Speaker, "source", source, "verdict", verdict)
		return
	}

	now := e.now()
	msg := e.log.Append(conversation.Message{
		Speaker:   u.Speaker,
		Text:      strings.TrimSpace(u.Text),
		Timestamp: now,
	})
	n.conversation = true
	e.logger.Debug("utterance accepted", "speaker", u.Speaker, "source", source, "id", msg.ID)

	if e.phase == PhaseListening {
		e.transitionLocked(PhaseOrderBuilding, n)
	}
	if u.Speaker != conversation.SpeakerAgent || e.pendingReset {
		return
	}

	res := e.extractor.Extract(msg.Text)
	if res.Strategy == order.StrategyDeletion {
		h.LastDeletion = now
	}
	if e.state.Apply(res) {
		n.order = true
		e.metrics.RecordMutation(string(res.Strategy))
		e.logger.Info("order updated",
			"strategy", res.Strategy,
			"action", res.Action,
			"lines", e.state.Len(),
		)
	} else if res.Reason != "" {
		e.logger.Debug("order unchanged", "strategy", res.Strategy, "reason", res.Reason)
	}

	e.evaluateCompletionLocked(h, msg.Text, now, n)
}

func (e *Engine) evaluateCompletionLocked(h *session.Handle, text string, now time.Time, n *notes) {
	if !IsCompletionSignal(text) {
		return
	}
	var reason string
	switch {
	case e.state.IsEmpty():
		reason = "empty_order"
	case !h.LastDeletion.IsZero() && now.Sub(h.LastDeletion) < e.cfg.DeletionDebounce:
		reason = "deletion_debounce"
	}
	if reason != "" {
		e.metrics.RecordSuppressed(reason)
		e.logger.Debug("completion suppressed", "reason", reason)
		return
	}

	c := order.NewCompletion(e.state.Lines(), e.cfg.Language)
	e.pendingReset = true
	e.transitionLocked(PhaseCompleting, n)
	n.completion = &c
	e.metrics.RecordCompletion(c.Language, len(c.Items))
	e.logger.Info("order complete", "lines", len(c.Items), "total", c.Total, "language", c.Language)
}

// resetLocked clears the finished customer. The session stays connected;
// its current history becomes the baseline so it is not replayed.
func (e *Engine) resetLocked(n *notes) {
	if e.phase != PhaseReset {
		e.transitionLocked(PhaseReset, n)
	}
	e.state.Clear()
	e.log.Reset()
	e.pendingReset = false
	if h := e.handle; h != nil {
		h.Dedup.Reset()
		h.History.Baseline(h.Transport.History())
		h.LastDeletion = time.Time{}
	}
	n.conversation = true
	n.order = true
	e.transitionLocked(PhaseIdle, n)
	e.logger.Info("order state reset")
}

func (e *Engine) transitionLocked(next Phase, n *notes) bool {
	if !e.phase.CanTransition(next) {
		e.logger.Warn("invalid phase transition ignored", "from", e.phase, "to", next)
		return false
	}
	e.logger.Debug("phase transition", "from", e.phase, "to", next)
	e.phase = next
	n.phases = append(n.phases, next)
	return true
}

func (e *Engine) setStatusLocked(s Status, n *notes) {
	if s == e.status {
		return
	}
	e.status = s
	n.status = &s
}

func (e *Engine) startPollLocked() {
	if e.pollCancel != nil || e.cfg.HistoryPollInterval < 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.pollCancel = cancel
	e.pollDone = done
	go e.pollLoop(ctx, e.cfg.HistoryPollInterval, done)
}

// stopPollLocked cancels the poll goroutine and returns a channel closed
// once it has exited, or nil when no poll was running.
func (e *Engine) stopPollLocked() chan struct{} {
	if e.pollCancel == nil {
		return nil
	}
	e.pollCancel()
	done := e.pollDone
	e.pollCancel = nil
	e.pollDone = nil
	return done
}

func (e *Engine) pollLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.SyncHistory()
		}
	}
}

// notes collects what changed inside one critical section so observers can
// be called after the lock is released.
type notes struct {
	phases       []Phase
	status       *Status
	conversation bool
	messages     []conversation.Message
	order        bool
	lines        []order.Line
	total        float64
	completion   *order.Completion
}

func (e *Engine) finishLocked(n *notes) {
	if n.conversation {
		n.messages = e.log.Messages()
	}
	if n.order {
		n.lines = e.state.Lines()
		n.total = e.state.Total()
	}
}

func (e *Engine) emit(n notes) {
	o := e.observer
	if o.OnPhase != nil {
		for _, p := range n.phases {
			o.OnPhase(p)
		}
	}
	if n.status != nil && o.OnStatus != nil {
		o.OnStatus(*n.status)
	}
	if n.conversation && o.OnConversation != nil {
		o.OnConversation(n.messages)
	}
	if n.order && o.OnOrder != nil {
		o.OnOrder(n.lines, n.total)
	}
	if n.completion != nil && o.OnComplete != nil {
		o.OnComplete(*n.completion)
	}
}
