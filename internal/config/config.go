package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env                  string
	HTTPPort             string
	AttendanceServiceURL string
	DocumentBaseURL      string
	UpstreamTimeout      time.Duration
	OutboxBackend        string
	OutboxTTL            time.Duration
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	SessionTTL           time.Duration
	MaxSessions          int
	SessionSigningKey    string
	SessionIssuer        string
	RateLimitPerMin      int
	LogLevel             string
	LogFormat            string
	SignatureWidth       int
	SignatureHeight      int
	WebDir               string
}

const defaultSigningKey = "dev-signing-secret-change"

// maxSignatureSide bounds SIGNATURE_WIDTH and SIGNATURE_HEIGHT in pixels.
const maxSignatureSide = 2000

// Load returns application config populated from environment variables with sensible defaults.
func Load() App {
	serviceURL := getEnv("ATTENDANCE_SERVICE_URL", "http://localhost:4000")
	return App{
		Env:                  getEnv("APP_ENV", "dev"),
		HTTPPort:             getEnv("HTTP_PORT", "8081"),
		AttendanceServiceURL: serviceURL,
		DocumentBaseURL:      getEnv("DOCUMENT_BASE_URL", serviceURL),
		UpstreamTimeout:      durationEnv("UPSTREAM_TIMEOUT", 0),
		OutboxBackend:        getEnv("OUTBOX_BACKEND", "memory"),
		OutboxTTL:            durationEnv("OUTBOX_TTL", 30*time.Minute),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              intEnv("REDIS_DB", 0),
		SessionTTL:           durationEnv("SESSION_TTL", 30*time.Minute),
		MaxSessions:          intEnv("MAX_SESSIONS", 1000),
		SessionSigningKey:    getEnv("SESSION_SIGNING_KEY", defaultSigningKey),
		SessionIssuer:        getEnv("SESSION_ISSUER", "visitor-kiosk"),
		RateLimitPerMin:      intEnv("RATE_LIMIT_PER_MIN", 120),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "text"),
		SignatureWidth:       intEnv("SIGNATURE_WIDTH", 600),
		SignatureHeight:      intEnv("SIGNATURE_HEIGHT", 300),
		WebDir:               getEnv("WEB_DIR", "web"),
	}
}

// Production reports whether the app runs in a production environment.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

// Validate reports every invalid setting at once.
func (a App) Validate() error {
	var errs []error
	if err := httpURL(a.AttendanceServiceURL); err != nil {
		errs = append(errs, fmt.Errorf("ATTENDANCE_SERVICE_URL: %w", err))
	}
	if err := httpURL(a.DocumentBaseURL); err != nil {
		errs = append(errs, fmt.Errorf("DOCUMENT_BASE_URL: %w", err))
	}
	switch a.OutboxBackend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("OUTBOX_BACKEND: unknown backend %q", a.OutboxBackend))
	}
	if a.UpstreamTimeout < 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT: must not be negative"))
	}
	if a.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL: must be positive"))
	}
	if a.OutboxTTL <= 0 {
		errs = append(errs, errors.New("OUTBOX_TTL: must be positive"))
	}
	if a.MaxSessions <= 0 {
		errs = append(errs, errors.New("MAX_SESSIONS: must be positive"))
	}
	if a.SignatureWidth <= 0 || a.SignatureHeight <= 0 {
		errs = append(errs, errors.New("SIGNATURE_WIDTH/SIGNATURE_HEIGHT: must be positive"))
	} else if a.SignatureWidth > maxSignatureSide || a.SignatureHeight > maxSignatureSide {
		errs = append(errs, fmt.Errorf("SIGNATURE_WIDTH/SIGNATURE_HEIGHT: must be at most %d", maxSignatureSide))
	}
	if a.SessionSigningKey == "" || (a.Production() && a.SessionSigningKey == defaultSigningKey) {
		errs = append(errs, errors.New("SESSION_SIGNING_KEY: must be set"))
	}
	return errors.Join(errs...)
}

func httpURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) url", raw)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			slog.Warn("invalid duration, using fallback", "key", key, "error", err, "fallback", fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.Atoi(val)
		if err == nil {
			return parsed
		}
		slog.Warn("invalid int, using fallback", "key", key, "fallback", fallback)
	}
	return fallback
}
