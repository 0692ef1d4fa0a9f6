package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Addr     string `koanf:"addr"`      // control API bind address, e.g. "127.0.0.1:8080" or ":8080" (Docker)
	LogDir   string `koanf:"log_dir"`   // logs directory
	LogLevel string `koanf:"log_level"` // debug, info, warn, error

	JobsPath     string `koanf:"jobs_path"`     // job store file
	DefaultsPath string `koanf:"defaults_path"` // runtime defaults written by SetDefaults
	HistoryPath  string `koanf:"history_path"`  // sqlite run history; empty keeps history in memory
	DatabaseURL  string `koanf:"database_url"`  // postgres run history, wins over HistoryPath

	DefaultIntervalSec float64 `koanf:"default_interval_sec"`
	DefaultCount       int     `koanf:"default_count"`

	AdminID      int64  `koanf:"admin_id"`  // chat user allowed to operate the bot
	BotToken     string `koanf:"bot_token"` // Telegram Bot API token
	SlackWebhook string `koanf:"slack_webhook"`

	TickInterval    time.Duration `koanf:"tick_interval"`
	MaxConcurrent   int           `koanf:"max_concurrent"`
	ProbeGrace      time.Duration `koanf:"probe_grace"`
	PingBinary      string        `koanf:"ping_binary"`
	ResultRetention time.Duration `koanf:"result_retention"`

	PublicAPIKeys []string `koanf:"public_api_keys"`
	AdminAPIKeys  []string `koanf:"admin_api_keys"`
	PublicRPM     int      `koanf:"public_rpm"`
	PublicBurst   int      `koanf:"public_burst"`
	AdminRPM      int      `koanf:"admin_rpm"`
	AdminBurst    int      `koanf:"admin_burst"`
}

func Default() Config {
	return Config{
		Addr:               "127.0.0.1:8080",
		LogDir:             "logs",
		LogLevel:           "info",
		JobsPath:           "data/jobs.json",
		DefaultsPath:       "data/defaults.yaml",
		DefaultIntervalSec: 0.2,
		DefaultCount:       10,
		TickInterval:       10 * time.Second,
		MaxConcurrent:      4,
		ProbeGrace:         10 * time.Second,
		PingBinary:         "ping",
		ResultRetention:    24 * time.Hour,
		PublicRPM:          60,
		PublicBurst:        10,
		AdminRPM:           30,
		AdminBurst:         5,
	}
}

// Load layers, lowest first: built-in defaults, the YAML file at path (if
// path is set), the runtime defaults file, environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if err := k.Unmarshal("", &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := loadDefaultsFile(&cfg); err != nil {
		return nil, err
	}
	// env still wins over values saved at runtime
	applyDefaultsEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// FromEnv is Load without a config file.
func FromEnv() Config {
	cfg := Default()
	applyEnv(&cfg)
	_ = loadDefaultsFile(&cfg)
	applyDefaultsEnv(&cfg)
	return cfg
}

func loadDefaultsFile(cfg *Config) error {
	if cfg.DefaultsPath == "" {
		return nil
	}
	if _, err := os.Stat(cfg.DefaultsPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(cfg.DefaultsPath), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}
	var d Defaults
	if err := k.Unmarshal("", &d); err != nil {
		return fmt.Errorf("failed to unmarshal defaults: %w", err)
	}
	if d.IntervalSec > 0 {
		cfg.DefaultIntervalSec = d.IntervalSec
	}
	if d.Count > 0 {
		cfg.DefaultCount = d.Count
	}
	return nil
}

func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	posInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	millis := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
				*dst = time.Duration(ms) * time.Millisecond
			}
		}
	}

	str("API_ADDR", &cfg.Addr)
	str("ADDR", &cfg.Addr)
	str("LOG_DIR", &cfg.LogDir)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("JOBS_PATH", &cfg.JobsPath)
	str("DEFAULTS_PATH", &cfg.DefaultsPath)
	str("HISTORY_PATH", &cfg.HistoryPath)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("BOT_TOKEN", &cfg.BotToken)
	str("SLACK_WEBHOOK", &cfg.SlackWebhook)
	str("PING_BINARY", &cfg.PingBinary)

	if v := os.Getenv("ADMIN_USER_ID"); v != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.AdminID = id
		}
	}

	millis("TICK_INTERVAL_MS", &cfg.TickInterval)
	posInt("MAX_CONCURRENT_PROBES", &cfg.MaxConcurrent)
	millis("PROBE_GRACE_MS", &cfg.ProbeGrace)
	if v := os.Getenv("RESULT_RETENTION_HOURS"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h > 0 {
			cfg.ResultRetention = time.Duration(h) * time.Hour
		}
	}

	if v := os.Getenv("PUBLIC_API_KEYS"); v != "" {
		cfg.PublicAPIKeys = splitCSV(v)
	}
	if v := os.Getenv("ADMIN_API_KEYS"); v != "" {
		cfg.AdminAPIKeys = splitCSV(v)
	}
	posInt("PUBLIC_RPM", &cfg.PublicRPM)
	posInt("PUBLIC_BURST", &cfg.PublicBurst)
	posInt("ADMIN_RPM", &cfg.AdminRPM)
	posInt("ADMIN_BURST", &cfg.AdminBurst)

	applyDefaultsEnv(cfg)
}

func applyDefaultsEnv(cfg *Config) {
	if v := os.Getenv("PING_DEFAULT_INTERVAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.DefaultIntervalSec = f
		}
	}
	if v := os.Getenv("PING_DEFAULT_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultCount = n
		}
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.JobsPath == "" {
		return fmt.Errorf("jobs_path is required")
	}
	if err := (Defaults{IntervalSec: c.DefaultIntervalSec, Count: c.DefaultCount}).Validate(); err != nil {
		return err
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1")
	}
	if c.AdminID < 0 {
		return fmt.Errorf("admin_id must be a numeric user id")
	}
	return nil
}

// MaskToken shows only the ends of a secret.
func MaskToken(token string) string {
	if len(token) < 12 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
