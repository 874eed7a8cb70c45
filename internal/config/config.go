package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	AdminChatID int64  `yaml:"admin_chat_id"`
}

type GatewayConfig struct {
	Token       string `yaml:"token"`
	BaseURL     string `yaml:"base_url"`
	RedirectURL string `yaml:"redirect_url"`
}

// BillingConfig holds the engine's tunables. Zero values are replaced with
// the defaults the scheduler is operated with in production.
type BillingConfig struct {
	Timezone            string        `yaml:"timezone"`
	RecurringInterval   time.Duration `yaml:"recurring_interval"`
	ReconcileInterval   time.Duration `yaml:"reconcile_interval"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	DailyNotifyAt       string        `yaml:"daily_notify_at"` // HH:MM in Timezone
	PollAttempts        int           `yaml:"poll_attempts"`
	PollSettleDelay     time.Duration `yaml:"poll_settle_delay"`
	PollBackoffStep     time.Duration `yaml:"poll_backoff_step"`
	PollBackoffCap      time.Duration `yaml:"poll_backoff_cap"`
	PendingWindow       time.Duration `yaml:"pending_window"`
	SweepGrace          time.Duration `yaml:"sweep_grace"`
	SweepLimit          int           `yaml:"sweep_limit"`
	MaxProcessingAge    time.Duration `yaml:"max_processing_age"`
	TokenSearchAttempts int           `yaml:"token_search_attempts"`
	TokenSearchDelay    time.Duration `yaml:"token_search_delay"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Telegram TelegramConfig `yaml:"telegram"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Billing  BillingConfig  `yaml:"billing"`
	OpsPort  int            `yaml:"ops_port"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "https://api.monobank.ua"
	}
	if cfg.OpsPort <= 0 {
		cfg.OpsPort = 9090
	}
	applyBillingDefaults(&cfg.Billing)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	// Developer mode swaps the notifier for a noop sink, so no bot token is
	// needed there.
	if cfg.Telegram.Token == "" && !dev {
		return nil, errors.New("telegram.token is required")
	}
	if cfg.Gateway.Token == "" {
		return nil, errors.New("gateway.token is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyBillingDefaults(b *BillingConfig) {
	if b.Timezone == "" {
		b.Timezone = "Europe/Kyiv"
	}
	if b.RecurringInterval <= 0 {
		b.RecurringInterval = time.Hour
	}
	if b.ReconcileInterval <= 0 {
		b.ReconcileInterval = time.Minute
	}
	if b.SweepInterval <= 0 {
		b.SweepInterval = 10 * time.Minute
	}
	if b.DailyNotifyAt == "" {
		b.DailyNotifyAt = "09:00"
	}
	if b.PollAttempts <= 0 {
		b.PollAttempts = 5
	}
	if b.PollSettleDelay <= 0 {
		b.PollSettleDelay = 2 * time.Second
	}
	if b.PollBackoffStep <= 0 {
		b.PollBackoffStep = 5 * time.Second
	}
	if b.PollBackoffCap <= 0 {
		b.PollBackoffCap = 30 * time.Second
	}
	if b.PendingWindow <= 0 {
		b.PendingWindow = 24 * time.Hour
	}
	if b.SweepGrace <= 0 {
		b.SweepGrace = 5 * time.Minute
	}
	if b.SweepLimit <= 0 {
		b.SweepLimit = 20
	}
	if b.MaxProcessingAge <= 0 {
		b.MaxProcessingAge = 48 * time.Hour
	}
	if b.TokenSearchAttempts <= 0 {
		b.TokenSearchAttempts = 3
	}
	if b.TokenSearchDelay <= 0 {
		b.TokenSearchDelay = 2 * time.Second
	}
}
