// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimit is requests per RateWindow per user on authenticated routes.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type PaymentConfig struct {
	Provider        string        `yaml:"provider"` // sandbox | razorpay
	BaseURL         string        `yaml:"base_url"`
	KeyID           string        `yaml:"key_id"`
	KeySecret       string        `yaml:"key_secret"`
	WebhookSecret   string        `yaml:"webhook_secret"`
	SignatureHeader string        `yaml:"signature_header"`
	Currency        string        `yaml:"currency"`
	GatewayTimeout  time.Duration `yaml:"gateway_timeout"`
	EnrollLockTTL   time.Duration `yaml:"enroll_lock_ttl"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	SMTPUser string `yaml:"smtp_user"`
	SMTPPass string `yaml:"smtp_pass"`
	Queue    string `yaml:"queue"`
	Workers  int    `yaml:"workers"`
	MaxTries int    `yaml:"max_tries"`
}

type TelegramConfig struct {
	Token     string `yaml:"token"`
	OpsChatID int64  `yaml:"ops_chat_id"`
}

type NotifyConfig struct {
	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type SchedulerConfig struct {
	ExpiryInterval    time.Duration `yaml:"expiry_interval"`
	PoolStatsInterval time.Duration `yaml:"pool_stats_interval"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Payment   PaymentConfig   `yaml:"payment"`
	Notify    NotifyConfig    `yaml:"notify"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, loads an optional .env next to the
// working directory, applies environment overrides for secrets and fills
// defaults. A missing file is accepted when the environment supplies the
// required values.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setStr(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setStr(&cfg.Payment.KeyID, "GATEWAY_KEY_ID")
	setStr(&cfg.Payment.KeySecret, "GATEWAY_KEY_SECRET")
	setStr(&cfg.Payment.WebhookSecret, "GATEWAY_WEBHOOK_SECRET")
	setStr(&cfg.Notify.Email.SMTPPass, "SMTP_PASSWORD")
	setStr(&cfg.Notify.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.RateLimit <= 0 {
		cfg.HTTP.RateLimit = 60
	}
	if cfg.HTTP.RateWindow <= 0 {
		cfg.HTTP.RateWindow = time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Payment.Provider == "" {
		cfg.Payment.Provider = "sandbox"
	}
	if cfg.Payment.SignatureHeader == "" {
		cfg.Payment.SignatureHeader = "X-Razorpay-Signature"
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "INR"
	}
	if cfg.Payment.GatewayTimeout <= 0 {
		cfg.Payment.GatewayTimeout = 15 * time.Second
	}
	if cfg.Payment.EnrollLockTTL <= 0 {
		cfg.Payment.EnrollLockTTL = 30 * time.Second
	}
	if cfg.Notify.Email.Queue == "" {
		cfg.Notify.Email.Queue = "emails"
	}
	if cfg.Notify.Email.Workers <= 0 {
		cfg.Notify.Email.Workers = 2
	}
	if cfg.Notify.Email.MaxTries <= 0 {
		cfg.Notify.Email.MaxTries = 3
	}
	if cfg.Notify.Email.SMTPPort == 0 {
		cfg.Notify.Email.SMTPPort = 587
	}
	if cfg.Scheduler.ExpiryInterval <= 0 {
		cfg.Scheduler.ExpiryInterval = time.Hour
	}
	if cfg.Scheduler.PoolStatsInterval <= 0 {
		cfg.Scheduler.PoolStatsInterval = 15 * time.Second
	}
}

// Validate performs the minimal checks required to start serving.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Payment.KeySecret == "" {
		return errors.New("payment.key_secret is required")
	}
	if c.Payment.WebhookSecret == "" {
		return errors.New("payment.webhook_secret is required")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
