// Command kiosk-agent runs the voice ordering loop for one kiosk: it keeps a
// realtime agent session open, builds each customer's order from the
// conversation and hands finished orders to the kitchen.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vango-go/vai-kiosk/pkg/config"
	"github.com/vango-go/vai-kiosk/pkg/conversation"
	"github.com/vango-go/vai-kiosk/pkg/engine"
	"github.com/vango-go/vai-kiosk/pkg/kitchen"
	"github.com/vango-go/vai-kiosk/pkg/kitchen/journal"
	"github.com/vango-go/vai-kiosk/pkg/menu"
	"github.com/vango-go/vai-kiosk/pkg/order"
	"github.com/vango-go/vai-kiosk/pkg/prompt"
	"github.com/vango-go/vai-kiosk/pkg/realtime"
	"github.com/vango-go/vai-kiosk/pkg/session"
)

const (
	agentName             = "kiosk-agent"
	defaultReconnectEvery = 5 * time.Second
)

type agentDeps struct {
	loadEnv      func() error
	loadConfig   func() (config.Config, error)
	newTransport func(realtime.WSConfig) realtime.Factory
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
	// reconnectEvery is the supervisor period for restarting a dropped session.
	reconnectEvery time.Duration
	// ready, when set, is called once the first Start attempt has returned.
	ready func(*engine.Engine)
}

func defaultAgentDeps() agentDeps {
	return agentDeps{
		loadEnv: func() error {
			err := godotenv.Load()
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		},
		loadConfig:   config.LoadFromEnv,
		newTransport: realtime.WSFactory,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop:     signal.Stop,
		reconnectEvery: defaultReconnectEvery,
	}
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func loadCatalog(path string) (*menu.Catalog, error) {
	if path == "" {
		return menu.Default(), nil
	}
	return menu.LoadFile(path)
}

func newCredentials(cfg config.Config) realtime.CredentialSource {
	if cfg.StaticCredential != "" {
		return realtime.StaticCredential(cfg.StaticCredential)
	}
	return &realtime.CredentialClient{
		URL:        cfg.CredentialURL,
		HTTPClient: &http.Client{Timeout: cfg.ConnectTimeout},
	}
}

type statusView struct {
	Phase     string          `json:"phase"`
	Connected bool            `json:"connected"`
	Listening bool            `json:"listening"`
	Error     string          `json:"error,omitempty"`
	Items     []kitchenLine   `json:"items"`
	Total     float64         `json:"total"`
	Messages  []messageRecord `json:"messages"`
}

type kitchenLine struct {
	Name           string   `json:"name"`
	Quantity       int      `json:"quantity"`
	Price          float64  `json:"price"`
	Customizations []string `json:"customizations,omitempty"`
}

type messageRecord struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

func snapshot(eng *engine.Engine) statusView {
	st := eng.Status()
	lines, total := eng.Order()
	view := statusView{
		Phase:     string(eng.Phase()),
		Connected: st.Connected,
		Listening: st.Listening,
		Error:     st.Error,
		Items:     make([]kitchenLine, 0, len(lines)),
		Total:     total,
		Messages:  []messageRecord{},
	}
	for _, l := range lines {
		view.Items = append(view.Items, kitchenLine{
			Name:           l.Item.Name,
			Quantity:       l.Quantity,
			Price:          l.Item.UnitPrice,
			Customizations: l.Customizations,
		})
	}
	for _, m := range eng.Conversation() {
		view.Messages = append(view.Messages, messageRecord{Speaker: string(m.Speaker), Text: m.Text})
	}
	return view
}

func buildHTTPServer(cfg config.Config, metrics *engine.Metrics, eng *engine.Engine) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshot(eng))
	})
	return &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func runAgent(ctx context.Context, logger *slog.Logger, cfg config.Config, deps agentDeps) error {
	catalog, err := loadCatalog(cfg.MenuCatalogPath)
	if err != nil {
		return fmt.Errorf("load menu: %w", err)
	}
	metrics := engine.NewMetrics("kiosk")

	var outbox kitchen.Outbox
	if cfg.JournalDSN != "" {
		j, err := journal.Open(ctx, cfg.JournalDSN, journal.Options{Logger: logger})
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		outbox = j
	}
	var announcer kitchen.Announcer
	if cfg.KitchenWSURL != "" {
		announcer = &kitchen.Notifier{URL: cfg.KitchenWSURL, Timeout: cfg.KitchenWSTimeout, Logger: logger}
	}
	dispatcher, err := kitchen.NewDispatcher(kitchen.DispatcherConfig{
		Submitter: &kitchen.Client{
			BaseURL:    cfg.OrdersBaseURL,
			HTTPClient: &http.Client{Timeout: cfg.SubmitTimeout},
			Logger:     logger,
		},
		Outbox:    outbox,
		Announcer: announcer,
		Logger:    logger,
		Record:    metrics.RecordDispatch,
	})
	if err != nil {
		return err
	}
	if n, err := dispatcher.Retry(ctx); err != nil {
		logger.Warn("journaled orders still pending", "resubmitted", n, "err", err)
	}

	sessions, err := session.NewManager(session.Dependencies{
		NewTransport: deps.newTransport(realtime.WSConfig{
			URL:            cfg.RealtimeURL,
			ConnectTimeout: cfg.ConnectTimeout,
			Logger:         logger,
		}),
		Credentials: newCredentials(cfg),
		Agent: realtime.AgentConfig{
			Name:               agentName,
			Model:              cfg.RealtimeModel,
			Voice:              cfg.Voice,
			Temperature:        cfg.Temperature,
			MaxResponseTokens:  cfg.MaxResponseTokens,
			TranscriptionModel: cfg.TranscriptionModel,
		},
		ConnectTimeout: cfg.ConnectTimeout,
		Dedup: conversation.DedupConfig{
			Window:       cfg.DedupWindow,
			AgentHistory: cfg.AgentHistorySize,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var (
		eng      *engine.Engine
		handoffs sync.WaitGroup
	)
	eng, err = engine.New(engine.Config{
		Language:            string(cfg.Language),
		Instructions:        prompt.Instructions(string(cfg.Language), catalog),
		HistoryPollInterval: cfg.HistoryPollInterval,
		DeletionDebounce:    cfg.DeletionDebounce,
	}, engine.Dependencies{
		Sessions:  sessions,
		Extractor: order.NewExtractor(catalog, order.Options{Logger: logger}),
		Metrics:   metrics,
		Logger:    logger,
		Observer: engine.Observer{
			OnComplete: func(c order.Completion) {
				handoffs.Add(1)
				go func() {
					defer handoffs.Done()
					handoff(runCtx, logger, dispatcher, eng, c)
				}()
			},
			OnStatus: func(s engine.Status) {
				logger.Debug("status changed", "connected", s.Connected, "listening", s.Listening, "error", s.Error)
			},
			OnPhase: func(p engine.Phase) {
				logger.Debug("phase changed", "phase", p)
			},
		},
	})
	if err != nil {
		return err
	}

	listenErrCh := make(chan error, 1)
	var httpSrv *http.Server
	if cfg.MetricsAddr != "" {
		httpSrv = buildHTTPServer(cfg, metrics, eng)
		go func() {
			err := httpSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				listenErrCh <- err
			}
		}()
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	if err := eng.Start(runCtx); err != nil {
		logger.Warn("initial start failed, will retry", "err", err)
	}
	if deps.ready != nil {
		deps.ready(eng)
	}

	reconnectEvery := deps.reconnectEvery
	if reconnectEvery <= 0 {
		reconnectEvery = defaultReconnectEvery
	}
	ticker := time.NewTicker(reconnectEvery)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case err := <-listenErrCh:
			runErr = fmt.Errorf("serve metrics: %w", err)
			break loop
		case <-ctx.Done():
			break loop
		case sig := <-sigCh:
			logger.Info("shutdown signal received", "signal", sig.String())
			break loop
		case <-ticker.C:
			supervise(runCtx, logger, eng, dispatcher)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()

	cancelRun()
	if err := eng.Disconnect(shutdownCtx); err != nil {
		logger.Warn("engine disconnect failed", "err", err)
	}
	handoffs.Wait()
	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = fmt.Errorf("shutdown http server: %w", err)
		}
	}

	logger.Info("kiosk agent stopped")
	return runErr
}

// retrier resubmits journaled orders that are still pending.
type retrier interface {
	Retry(ctx context.Context) (int, error)
}

// supervise reconnects a dropped engine and resubmits pending journal
// entries. Resubmits carry the entry id as Idempotency-Key, so racing an
// in-flight hand-off of the same entry is harmless.
func supervise(ctx context.Context, logger *slog.Logger, eng *engine.Engine, r retrier) {
	if eng.Phase() == engine.PhaseDisconnected {
		if err := eng.Start(ctx); err != nil {
			logger.Warn("reconnect failed", "err", err)
		}
	}
	if n, err := r.Retry(ctx); err != nil {
		logger.Warn("journaled orders still pending", "resubmitted", n, "err", err)
	}
}

// handoff sends c to the kitchen and then starts listening for the next
// customer. A failed submit stays in the journal for the next Retry.
func handoff(ctx context.Context, logger *slog.Logger, d *kitchen.Dispatcher, eng *engine.Engine, c order.Completion) {
	receipt, err := d.Dispatch(ctx, c)
	if err != nil {
		logger.Error("order hand-off failed", "lines", len(c.Items), "total", c.Total, "err", err)
	} else {
		logger.Info("order handed to kitchen", "order_id", receipt.OrderID, "summary", kitchen.Summary(c))
	}
	if ctx.Err() != nil {
		return
	}
	if err := eng.Start(ctx); err != nil {
		logger.Warn("start for next customer failed", "err", err)
	}
}

func runMain(ctx context.Context, stderr io.Writer, deps agentDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	if deps.loadEnv != nil {
		if err := deps.loadEnv(); err != nil {
			fmt.Fprintf(stderr, "%s: load .env: %v\n", agentName, err)
			return 1
		}
	}
	if deps.loadConfig == nil || deps.newTransport == nil {
		fmt.Fprintf(stderr, "%s: missing dependencies\n", agentName)
		return 1
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		fmt.Fprintf(stderr, "%s: missing signal dependency\n", agentName)
		return 1
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "%s: load config: %v\n", agentName, err)
		return 1
	}
	logger := newLogger(stderr, cfg)

	if err := runAgent(ctx, logger, cfg, deps); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", agentName, err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultAgentDeps()))
}
