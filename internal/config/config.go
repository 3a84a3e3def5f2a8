// Package config loads the environment-sourced runtime configuration.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

const cutoffLayout = "2006-01-02"

// Config is the full runtime configuration. Every knob comes from the
// environment; there is no config file.
type Config struct {
	// Telegram
	BotToken string `env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `env:"TELEGRAM_CHAT_ID"`

	// Storage. Backends are tried in order: MongoDB, PostgreSQL, SQLite.
	MongoURI    string `env:"MONGODB_URI"`
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      string `env:"PGPORT" envDefault:"5432"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"circularbot"`
	PGUser      string `env:"PGUSER" envDefault:"postgres"`
	PGPassword  string `env:"PGPASSWORD"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"circularbot.db"`

	// Source site
	SourceURL      string        `env:"SOURCE_URL" envDefault:"https://www.bknmu.edu.in/NewsEventViewAll.aspx?ContentTypeId=7"`
	UserAgent      string        `env:"USER_AGENT" envDefault:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`

	// Filtering: circulars published before this date (YYYY-MM-DD,
	// inclusive boundary) are ignored.
	FilterFromDate string `env:"FILTER_FROM_DATE" envDefault:"2025-10-15"`

	// Message formatting
	EnableTranslation bool `env:"ENABLE_TRANSLATION" envDefault:"true"`
	ShowOriginalText  bool `env:"SHOW_ORIGINAL_TEXT" envDefault:"true"`

	// Loop timing. The poll timeout is the getUpdates long-poll window;
	// it stays short so the command loop notices shutdown quickly.
	ScanInterval        time.Duration `env:"SCAN_INTERVAL" envDefault:"2m"`
	CommandPollInterval time.Duration `env:"COMMAND_POLL_INTERVAL" envDefault:"2s"`
	CommandPollTimeout  time.Duration `env:"COMMAND_POLL_TIMEOUT" envDefault:"1s"`
	SendDelay           time.Duration `env:"SEND_DELAY" envDefault:"3s"`

	// Housekeeping
	RetentionDays int    `env:"RETENTION_DAYS" envDefault:"365"`
	WebPort       string `env:"WEB_PORT" envDefault:"5000"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and validates the required surface.
// A missing bot token or chat id is a fatal configuration error.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.BotToken == "" {
		return Config{}, errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.ChatID == "" {
		return Config{}, errors.New("TELEGRAM_CHAT_ID is required")
	}
	if _, err := cfg.BroadcastChatID(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.CutoffDate(); err != nil {
		return Config{}, err
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = cfg.postgresURL()
	}

	return cfg, nil
}

// BroadcastChatID returns the default broadcast chat as a numeric id.
func (c Config) BroadcastChatID() (int64, error) {
	id, err := strconv.ParseInt(c.ChatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("TELEGRAM_CHAT_ID %q is not a numeric chat id", c.ChatID)
	}
	return id, nil
}

// CutoffDate parses FILTER_FROM_DATE.
func (c Config) CutoffDate() (time.Time, error) {
	t, err := time.Parse(cutoffLayout, c.FilterFromDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("FILTER_FROM_DATE %q: expected YYYY-MM-DD", c.FilterFromDate)
	}
	return t, nil
}

// postgresURL assembles a connection URL from the discrete PG* variables,
// used when DATABASE_URL is not set explicitly.
func (c Config) postgresURL() string {
	if c.PGPassword != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=disable",
		c.PGUser, c.PGHost, c.PGPort, c.PGDatabase)
}
