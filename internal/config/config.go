// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cafeteria/internal/logger"
)

// Config is everything a binary needs to wire the engine. Business parameters
// (schedules, retries, horizon) are not here: they live in the parametros table.
type Config struct {
	DatabaseURL    string
	ServerPort     string
	AllowedOrigins string
	// JWTSecret verifies session tokens issued by the school's login service.
	JWTSecret string
	// TokenSecret signs supplier and teacher confirmation tokens.
	TokenSecret   string
	PublicBaseURL string

	Timezone   *time.Location
	Tick       time.Duration
	LedgerDir  string
	Scheduler  bool
	NotifyPoll time.Duration

	Log logger.Config

	KafkaBrokers       string
	KafkaReceiptsTopic string
	InventorySink      string // kafka, db, log

	NotifyChannel    string // email, telegram, log (comma-separated for several)
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPFrom         string
	TelegramBotToken string
	TelegramAPIURL   string
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() (*Config, error) {
	var errs []error
	c := &Config{
		DatabaseURL:        env("DATABASE_URL", ""),
		ServerPort:         env("SERVER_PORT", "8080"),
		AllowedOrigins:     env("ALLOWED_ORIGINS", ""),
		JWTSecret:          env("JWT_SECRET", ""),
		TokenSecret:        env("TOKEN_SECRET", ""),
		PublicBaseURL:      env("PUBLIC_BASE_URL", "http://localhost:8080"),
		LedgerDir:          env("SCHEDULER_LEDGER_DIR", "data/scheduler-ledger"),
		KafkaBrokers:       env("KAFKA_BROKERS", ""),
		KafkaReceiptsTopic: env("KAFKA_TOPIC_RECEIPTS", "cafeteria.receipts"),
		InventorySink:      strings.ToLower(env("INVENTORY_SINK", "db")),
		NotifyChannel:      strings.ToLower(env("NOTIFY_CHANNEL", "log")),
		SMTPHost:           env("SMTP_HOST", ""),
		SMTPUsername:       env("SMTP_USERNAME", ""),
		SMTPPassword:       env("SMTP_PASSWORD", ""),
		SMTPFrom:           env("SMTP_FROM", ""),
		TelegramBotToken:   env("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL:     env("TELEGRAM_API_URL", "https://api.telegram.org"),
		Log: logger.Config{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", "json"),
			Output: env("LOG_OUTPUT", "stdout"),
		},
	}

	loc, err := time.LoadLocation(env("SCHEDULER_TIMEZONE", "UTC"))
	if err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULER_TIMEZONE: %w", err))
		loc = time.UTC
	}
	c.Timezone = loc

	if c.Tick, err = time.ParseDuration(env("SCHEDULER_TICK", "1m")); err != nil || c.Tick <= 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_TICK: invalid duration %q", os.Getenv("SCHEDULER_TICK")))
	}
	if c.NotifyPoll, err = time.ParseDuration(env("NOTIFY_POLL_INTERVAL", "30s")); err != nil || c.NotifyPoll <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_POLL_INTERVAL: invalid duration %q", os.Getenv("NOTIFY_POLL_INTERVAL")))
	}
	if c.SMTPPort, err = strconv.Atoi(env("SMTP_PORT", "587")); err != nil {
		errs = append(errs, fmt.Errorf("SMTP_PORT: %w", err))
	}
	if c.Scheduler, err = strconv.ParseBool(env("SCHEDULER_ENABLED", "true")); err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULER_ENABLED: %w", err))
	}

	switch c.InventorySink {
	case "kafka":
		if c.KafkaBrokers == "" {
			errs = append(errs, errors.New("INVENTORY_SINK=kafka requires KAFKA_BROKERS"))
		}
	case "db", "log":
	default:
		errs = append(errs, fmt.Errorf("INVENTORY_SINK: unknown sink %q", c.InventorySink))
	}
	for _, ch := range c.NotifyChannels() {
		switch ch {
		case "email":
			if c.SMTPHost == "" || c.SMTPFrom == "" {
				errs = append(errs, errors.New("NOTIFY_CHANNEL=email requires SMTP_HOST and SMTP_FROM"))
			}
		case "telegram":
			if c.TelegramBotToken == "" {
				errs = append(errs, errors.New("NOTIFY_CHANNEL=telegram requires TELEGRAM_BOT_TOKEN"))
			}
		case "log":
		default:
			errs = append(errs, fmt.Errorf("NOTIFY_CHANNEL: unknown channel %q", ch))
		}
	}
	return c, errors.Join(errs...)
}

// NotifyChannels splits NotifyChannel into its channels, in order.
func (c *Config) NotifyChannels() []string {
	var out []string
	for _, ch := range strings.Split(c.NotifyChannel, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

// RequireSecrets checks the secrets a server cannot run without.
func (c *Config) RequireSecrets() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.TokenSecret == "" {
		errs = append(errs, errors.New("TOKEN_SECRET is required"))
	}
	return errors.Join(errs...)
}
