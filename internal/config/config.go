package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration.
type Config struct {
	AppEnv          string `envconfig:"APP_ENV" default:"development"`
	Debug           bool   `envconfig:"DEBUG" default:"false"`
	Version         string `envconfig:"VERSION" default:"dev"`
	BotToken        string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	SentryDSN       string `envconfig:"SENTRY_DSN"`
	MongoDBURI      string `envconfig:"MONGODB_URI"`
	MongoDBDatabase string `envconfig:"MONGODB_DATABASE" default:"gatedrop"`
	TZName          string `envconfig:"TZ_NAME" default:"UTC"`

	// AdminID is the operator: exempt from quota and allowed to run admin commands.
	AdminID              int64 `envconfig:"ADMIN_ID" required:"true"`
	DBChannelID          int64 `envconfig:"DB_CHANNEL_ID" required:"true"`
	SubsChannelID        int64 `envconfig:"SUBS_CHANNEL_ID"`
	LimitedSubsChannelID int64 `envconfig:"LIMITED_SUBS_CHANNEL_ID"`
	UpgradeChannelID     int64 `envconfig:"UPGRADE_CHANNEL_ID"`
	ForwardChannelID     int64 `envconfig:"FORWARD_CHANNEL_ID"`
	BroadcastChannelID   int64 `envconfig:"BROADCAST_CHANNEL_ID"`

	RequiredChannels []int64 `envconfig:"REQUIRED_CHANNELS"`
	// InviteLinks is a list of channel_id=url pairs used in membership prompts.
	InviteLinks []string `envconfig:"INVITE_LINKS"`

	DefaultBaseURL      string        `envconfig:"DEFAULT_BASE_URL"`
	AutoDeleteAfter     time.Duration `envconfig:"AUTO_DELETE_AFTER" default:"1h"`
	PayURL              string        `envconfig:"PAY_URL"`
	RenewURL            string        `envconfig:"RENEW_URL"`
	JoinURL             string        `envconfig:"JOIN_URL"`
	ExpirySweepInterval time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"1m"`

	UpdatesPerSecond   int `envconfig:"UPDATES_PER_SECOND" default:"30"`
	DeletesPerSecond   int `envconfig:"DELETES_PER_SECOND" default:"20"`
	BroadcastPerSecond int `envconfig:"BROADCAST_PER_SECOND" default:"25"`

	MetricsAddr     string `envconfig:"METRICS_ADDR"`
	DefaultLanguage string `envconfig:"DEFAULT_LANGUAGE" default:"en"`

	// Location is resolved from TZName.
	Location *time.Location `ignored:"true"`
	// Invites is InviteLinks keyed by channel id.
	Invites map[int64]string `ignored:"true"`
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, relying on environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolve() error {
	if c.BotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if c.AdminID == 0 {
		return errors.New("ADMIN_ID is required")
	}
	if c.DBChannelID == 0 {
		return errors.New("DB_CHANNEL_ID is required")
	}
	if c.AutoDeleteAfter <= 0 {
		return fmt.Errorf("AUTO_DELETE_AFTER must be positive, got %s", c.AutoDeleteAfter)
	}
	if c.ExpirySweepInterval <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be positive, got %s", c.ExpirySweepInterval)
	}
	if c.DefaultBaseURL != "" && !ValidBaseURL(c.DefaultBaseURL) {
		return fmt.Errorf("DEFAULT_BASE_URL must start with https:// and end with /, got %q", c.DefaultBaseURL)
	}

	loc, err := time.LoadLocation(c.TZName)
	if err != nil {
		return fmt.Errorf("invalid TZ_NAME: %w", err)
	}
	c.Location = loc

	c.Invites = make(map[int64]string, len(c.InviteLinks))
	for _, pair := range c.InviteLinks {
		id, url, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return fmt.Errorf("invalid INVITE_LINKS entry %q, want channel_id=url", pair)
		}
		channelID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid INVITE_LINKS channel id %q: %w", id, err)
		}
		c.Invites[channelID] = url
	}

	if c.SentryDSN == "" {
		slog.Warn("SENTRY_DSN is not set. Error tracking disabled.")
	}
	if c.MongoDBURI == "" {
		slog.Warn("MONGODB_URI is not set. State will not survive a restart.")
	}
	return nil
}

// ValidBaseURL reports whether u is acceptable as the content base URL.
func ValidBaseURL(u string) bool {
	return strings.HasPrefix(u, "https://") && strings.HasSuffix(u, "/")
}
