package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

type Config struct {
	Language Language

	// Empty => built-in menu.
	MenuCatalogPath string

	// Realtime agent session.
	CredentialURL       string
	StaticCredential    string
	RealtimeURL         string
	RealtimeModel       string
	Voice               string
	Temperature         float64
	MaxResponseTokens   int
	TranscriptionModel  string
	ConnectTimeout      time.Duration
	HistoryPollInterval time.Duration

	// Ingestion and completion windows.
	DedupWindow      time.Duration
	AgentHistorySize int
	DeletionDebounce time.Duration

	// Kitchen hand-off.
	OrdersBaseURL    string
	KitchenWSURL     string
	KitchenWSTimeout time.Duration
	JournalDSN       string
	SubmitTimeout    time.Duration

	// Operational.
	MetricsAddr         string
	LogLevel            string
	LogFormat           string
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Language:            Language(strings.ToLower(envOr("KIOSK_LANGUAGE", string(LanguageEnglish)))),
		MenuCatalogPath:     envOr("KIOSK_MENU_PATH", ""),
		CredentialURL:       envOr("KIOSK_CREDENTIAL_URL", "http://localhost:3000/api/openai/ephemeral-key"),
		StaticCredential:    envOr("KIOSK_REALTIME_API_KEY", ""),
		RealtimeURL:         envOr("KIOSK_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		RealtimeModel:       envOr("KIOSK_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17"),
		Voice:               envOr("KIOSK_VOICE", "alloy"),
		Temperature:         envFloat64Or("KIOSK_TEMPERATURE", 0.8),
		MaxResponseTokens:   envIntOr("KIOSK_MAX_RESPONSE_TOKENS", 4096),
		TranscriptionModel:  envOr("KIOSK_TRANSCRIPTION_MODEL", "whisper-1"),
		ConnectTimeout:      envDurationOr("KIOSK_CONNECT_TIMEOUT", 15*time.Second),
		HistoryPollInterval: envDurationOr("KIOSK_HISTORY_POLL_INTERVAL", time.Second),
		DedupWindow:         envDurationOr("KIOSK_DEDUP_WINDOW", 2*time.Second),
		AgentHistorySize:    envIntOr("KIOSK_AGENT_HISTORY_SIZE", 10),
		DeletionDebounce:    envDurationOr("KIOSK_DELETION_DEBOUNCE", 3*time.Second),
		OrdersBaseURL:       envOr("KIOSK_ORDERS_BASE_URL", "http://localhost:3000"),
		KitchenWSURL:        envOr("KIOSK_KITCHEN_WS_URL", "ws://localhost:3000"),
		KitchenWSTimeout:    envDurationOr("KIOSK_KITCHEN_WS_TIMEOUT", 2*time.Second),
		JournalDSN:          envOr("KIOSK_JOURNAL_DSN", "file:kiosk-journal.db"),
		SubmitTimeout:       envDurationOr("KIOSK_SUBMIT_TIMEOUT", 10*time.Second),
		MetricsAddr:         envOr("KIOSK_METRICS_ADDR", ""),
		LogLevel:            strings.ToLower(envOr("KIOSK_LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(envOr("KIOSK_LOG_FORMAT", "text")),
		ShutdownGracePeriod: envDurationOr("KIOSK_SHUTDOWN_GRACE_PERIOD", 5*time.Second),
	}

	switch cfg.Language {
	case LanguageEnglish, LanguageArabic:
	default:
		return Config{}, fmt.Errorf("KIOSK_LANGUAGE must be one of en|ar")
	}
	if cfg.StaticCredential == "" {
		if err := validateURL("KIOSK_CREDENTIAL_URL", cfg.CredentialURL, "http", "https"); err != nil {
			return Config{}, err
		}
	}
	if err := validateURL("KIOSK_REALTIME_URL", cfg.RealtimeURL, "ws", "wss"); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.RealtimeModel) == "" {
		return Config{}, fmt.Errorf("KIOSK_REALTIME_MODEL must not be empty")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return Config{}, fmt.Errorf("KIOSK_TEMPERATURE must be within [0, 2]")
	}
	if cfg.MaxResponseTokens <= 0 {
		return Config{}, fmt.Errorf("KIOSK_MAX_RESPONSE_TOKENS must be > 0")
	}
	if cfg.ConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("KIOSK_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.HistoryPollInterval <= 0 {
		return Config{}, fmt.Errorf("KIOSK_HISTORY_POLL_INTERVAL must be > 0")
	}
	if cfg.DedupWindow <= 0 {
		return Config{}, fmt.Errorf("KIOSK_DEDUP_WINDOW must be > 0")
	}
	if cfg.AgentHistorySize <= 0 {
		return Config{}, fmt.Errorf("KIOSK_AGENT_HISTORY_SIZE must be > 0")
	}
	if cfg.DeletionDebounce < 0 {
		return Config{}, fmt.Errorf("KIOSK_DELETION_DEBOUNCE must be >= 0")
	}
	if err := validateURL("KIOSK_ORDERS_BASE_URL", cfg.OrdersBaseURL, "http", "https"); err != nil {
		return Config{}, err
	}
	if cfg.KitchenWSURL != "" {
		if err := validateURL("KIOSK_KITCHEN_WS_URL", cfg.KitchenWSURL, "ws", "wss"); err != nil {
			return Config{}, err
		}
	}
	if cfg.KitchenWSTimeout <= 0 {
		return Config{}, fmt.Errorf("KIOSK_KITCHEN_WS_TIMEOUT must be > 0")
	}
	if cfg.SubmitTimeout <= 0 {
		return Config{}, fmt.Errorf("KIOSK_SUBMIT_TIMEOUT must be > 0")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("KIOSK_LOG_LEVEL must be one of debug|info|warn|error")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("KIOSK_LOG_FORMAT must be one of text|json")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("KIOSK_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func validateURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", key)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("%s must use scheme %s", key, strings.Join(schemes, "|"))
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
