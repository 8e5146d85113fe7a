// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/tour-booking/internal/logging"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env       string // APP_ENV
	Port      string // APP_PORT
	PublicURL string // PUBLIC_URL, base of links in emails

	DBUser        string
	DBPass        string // may be empty
	DBHost        string
	DBPort        string
	DBName        string
	DBAutoMigrate bool

	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	ResetTTL       time.Duration
	BcryptCost     int

	PageSize int // RESULTS_PER_PAGE

	LogLevel  string
	LogFormat string

	RabbitURL string // empty disables the broker; emails are logged instead
	MailQueue string

	TokenPurgeEvery time.Duration
}

// loader accumulates problems so that one run reports every bad key.
type loader struct {
	errs []error
}

func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		l.errs = append(l.errs, fmt.Errorf("missing required env var: %s", key))
		return ""
	}
	return v
}

func (l *loader) mustInt(key string) int {
	s := l.must(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid int for %s: %q", key, s))
	}
	return n
}

// LoadDotEnv reads .env into the process environment when present.
// Variables already set are not overridden.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("path", p).Msg("could not read env file")
		}
	}
}

// LoadFromEnv builds a Config from the environment.
func LoadFromEnv() (Config, error) {
	var l loader
	cfg := Config{
		Env:       envStr("APP_ENV", "dev"),
		Port:      l.must("APP_PORT"),
		PublicURL: envStr("PUBLIC_URL", "http://localhost:8080"),

		DBUser:        l.must("DB_USER"),
		DBPass:        os.Getenv("DB_PASS"),
		DBHost:        l.must("DB_HOST"),
		DBPort:        l.must("DB_PORT"),
		DBName:        l.must("DB_NAME"),
		DBAutoMigrate: envBool("DB_AUTO_MIGRATE", false),

		JWTSecret:      l.must("JWT_SECRET"),
		AccessTTLMin:   l.mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: l.mustInt("REFRESH_TOKEN_TTL_DAYS"),
		ResetTTL:       time.Duration(envInt("RESET_TOKEN_TTL_MIN", 30)) * time.Minute,
		BcryptCost:     envInt("BCRYPT_COST", 12),

		PageSize: envInt("RESULTS_PER_PAGE", 20),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "json"),

		RabbitURL: os.Getenv("RABBITMQ_URL"),
		MailQueue: envStr("MAIL_QUEUE", "notifications.email"),

		TokenPurgeEvery: envDur("TOKEN_PURGE_EVERY", time.Hour),
	}
	if cfg.AccessTTLMin < 0 || cfg.RefreshTTLDays < 0 {
		l.errs = append(l.errs, errors.New("token TTLs must not be negative"))
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	return cfg, errors.Join(l.errs...)
}

// Load is LoadFromEnv for process start-up: any problem is fatal.
func Load() Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}
	return cfg
}

// Addr is the HTTP listen address.
func (c Config) Addr() string { return ":" + c.Port }

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
