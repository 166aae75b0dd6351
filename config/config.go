// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	SelectionMemory = "memory"
	SelectionFile   = "file"
	SelectionRedis  = "redis"
)

type Config struct {
	// Server
	Port         string `validate:"required,numeric"`
	ServiceName  string `validate:"required"`
	Env          string `validate:"oneof=development staging production test"`
	LogLevel     string
	BodyLimit    string
	AllowOrigins []string

	// Proxy
	BackendURL     string        `validate:"required,url"`
	ProxyNamespace string        `validate:"required,startswith=/"`
	BackendTimeout time.Duration `validate:"gt=0"`
	LogBodyLimit   int           `validate:"gte=0"`

	// API client and organization context
	APIURL         string `validate:"required,url"`
	AccessToken    string
	SelectionStore string `validate:"oneof=memory file redis"`
	SelectionPath  string

	// Redis
	RedisAddr            string
	RedisPassword        string
	RedisDB              int `validate:"gte=0"`
	SessionEventsChannel string

	// OpenTelemetry
	OtelEnabled    bool
	OtelEndpoint   string  `validate:"required_if=OtelEnabled true"`
	OtelSampleRate float64 `validate:"gte=0,lte=1"`
	MetricsEnabled bool
}

// Load reads .env when present (or the given files, which must exist) and
// then the environment, applying defaults for anything unset. Set but
// malformed values are errors.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if len(envFiles) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	var env envReader
	cfg := &Config{
		Port:         env.string("PORT", "3000"),
		ServiceName:  env.string("SERVICE_NAME", "mmm-dashboard"),
		Env:          env.string("ENV", "development"),
		LogLevel:     env.string("LOG_LEVEL", "info"),
		BodyLimit:    env.string("BODY_LIMIT", "200M"),
		AllowOrigins: envList("ALLOW_ORIGINS"),

		BackendURL:     env.string("BACKEND_URL", "http://localhost:8000"),
		ProxyNamespace: env.string("PROXY_NAMESPACE", "/api/backend"),
		BackendTimeout: env.duration("BACKEND_TIMEOUT", 120*time.Second),
		LogBodyLimit:   env.int("LOG_BODY_LIMIT", 500),

		APIURL:         env.string("API_URL", "http://localhost:3000/api/backend"),
		AccessToken:    os.Getenv("MMM_ACCESS_TOKEN"),
		SelectionStore: env.string("SELECTION_STORE", SelectionFile),
		SelectionPath:  os.Getenv("SELECTION_PATH"),

		RedisAddr:            env.string("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              env.int("REDIS_DB", 0),
		SessionEventsChannel: env.string("SESSION_EVENTS_CHANNEL", "mmm:session_events"),

		OtelEnabled:    env.bool("OTEL_ENABLED", false),
		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		OtelSampleRate: env.float("OTEL_SAMPLE_RATE", 1.0),
		MetricsEnabled: env.bool("METRICS_ENABLED", false),
	}
	if err := errors.Join(env.errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// envReader reads typed values, recording a parse error for each set but
// malformed variable.
type envReader struct {
	errs []error
}

func (e *envReader) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, v, err))
}

func (e *envReader) string(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return n
}

func (e *envReader) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return b
}

func (e *envReader) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return f
}

// duration accepts Go durations ("90s") or plain seconds ("90").
func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, errors.New("not a duration or a number of seconds"))
		return fallback
	}
	return time.Duration(n) * time.Second
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
