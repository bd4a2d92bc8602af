package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// Record store. Empty SQLitePath selects the in-memory store.
	SQLitePath     string
	SQLitePoolSize int

	// Root directory for result artifact files. Empty disables artifacts.
	ArtifactRoot string

	// Analyzer collaborator endpoints. An empty URL disables that
	// collaborator and its signal degrades to empty.
	LocatorBaseURL     string
	ExtractorBaseURL   string
	TranscriberBaseURL string

	// Collaborator HTTP client behavior.
	CollaboratorTimeout time.Duration
	CollaboratorRetries int

	// Static identity directory, "username=userID" pairs.
	Participants map[string]string

	// Background analysis pool.
	WorkerCount int
	WorkerQueue int

	// Max accepted request body (JSON segments carry base64 media).
	MaxBodyBytes int64

	// Live WebSocket mode (/v1/live).
	LiveWSPingInterval time.Duration
	LiveWSWriteTimeout time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("CANDOR_ADDR", ":8080"),
		AuthMode:            AuthMode(envOr("CANDOR_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:             make(map[string]struct{}),
		SQLitePath:          envOr("CANDOR_SQLITE_PATH", ""),
		SQLitePoolSize:      envIntOr("CANDOR_SQLITE_POOL_SIZE", 4),
		ArtifactRoot:        envOr("CANDOR_ARTIFACT_ROOT", ""),
		LocatorBaseURL:      envOr("CANDOR_LOCATOR_URL", ""),
		ExtractorBaseURL:    envOr("CANDOR_EXTRACTOR_URL", ""),
		TranscriberBaseURL:  envOr("CANDOR_TRANSCRIBER_URL", ""),
		CollaboratorTimeout: envDurationOr("CANDOR_COLLABORATOR_TIMEOUT", 30*time.Second),
		CollaboratorRetries: envIntOr("CANDOR_COLLABORATOR_RETRIES", 3),
		Participants:        make(map[string]string),
		WorkerCount:         envIntOr("CANDOR_WORKERS", 4),
		WorkerQueue:         envIntOr("CANDOR_WORKER_QUEUE", 64),
		MaxBodyBytes:        envInt64Or("CANDOR_MAX_BODY_BYTES", 32<<20), // 32 MiB
		LiveWSPingInterval:  envDurationOr("CANDOR_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:  envDurationOr("CANDOR_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		ReadHeaderTimeout:   envDurationOr("CANDOR_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("CANDOR_READ_TIMEOUT", 60*time.Second),
		HandlerTimeout:      envDurationOr("CANDOR_TOTAL_REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod: envDurationOr("CANDOR_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("CANDOR_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("CANDOR_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, pair := range splitCSV(os.Getenv("CANDOR_PARTICIPANTS")) {
		name, id, ok := strings.Cut(pair, "=")
		name, id = strings.TrimSpace(name), strings.TrimSpace(id)
		if !ok || name == "" || id == "" {
			return Config{}, fmt.Errorf("CANDOR_PARTICIPANTS entries must be username=user_id, got %q", pair)
		}
		cfg.Participants[name] = id
	}

	if cfg.SQLitePoolSize <= 0 {
		return Config{}, fmt.Errorf("CANDOR_SQLITE_POOL_SIZE must be > 0")
	}
	if cfg.CollaboratorTimeout <= 0 {
		return Config{}, fmt.Errorf("CANDOR_COLLABORATOR_TIMEOUT must be > 0")
	}
	if cfg.CollaboratorRetries < 0 {
		return Config{}, fmt.Errorf("CANDOR_COLLABORATOR_RETRIES must be >= 0")
	}
	if cfg.WorkerCount <= 0 {
		return Config{}, fmt.Errorf("CANDOR_WORKERS must be > 0")
	}
	if cfg.WorkerQueue <= 0 {
		return Config{}, fmt.Errorf("CANDOR_WORKER_QUEUE must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("CANDOR_MAX_BODY_BYTES must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("CANDOR_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("CANDOR_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("CANDOR_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("CANDOR_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("CANDOR_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("CANDOR_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("CANDOR_API_KEYS must be set when CANDOR_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
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

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
