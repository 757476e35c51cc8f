package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

// Config holds all runtime settings. Values come from (in increasing
// precedence): built-in defaults, the TOML config file, environment variables.
type Config struct {
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Reservation ReservationConfig `toml:"reservation"`
	Pricing     PricingConfig     `toml:"pricing"`
	Cart        CartConfig        `toml:"cart"`
	Outbox      OutboxConfig      `toml:"outbox"`
	SMTP        SMTPConfig        `toml:"smtp"`
}

type DatabaseConfig struct {
	URL string `toml:"url"`
}

type ServerConfig struct {
	Port           int    `toml:"port"`
	AllowedOrigins string `toml:"allowed_origins"`
	JWTSecret      string `toml:"jwt_secret"`
	BodyLimitBytes int64  `toml:"body_limit_bytes"`
}

type ReservationConfig struct {
	TTLMinutes            int `toml:"ttl_minutes"`
	ReaperIntervalSeconds int `toml:"reaper_interval_seconds"`
}

type PricingConfig struct {
	TaxRatePercent   float64 `toml:"tax_rate_percent"`
	FreeShippingOver float64 `toml:"free_shipping_over"`
	ShippingFee      float64 `toml:"shipping_fee"`
}

type CartConfig struct {
	ReminderAfterMinutes int `toml:"reminder_after_minutes"`
	MaxReminders         int `toml:"max_reminders"`
	SweepIntervalMinutes int `toml:"sweep_interval_minutes"`
}

type OutboxConfig struct {
	RelayIntervalSeconds int `toml:"relay_interval_seconds"`
	BatchSize            int `toml:"batch_size"`
	MaxAttempts          int `toml:"max_attempts"`
}

type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	From     string `toml:"from"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			BodyLimitBytes: 1 << 20,
		},
		Reservation: ReservationConfig{
			TTLMinutes:            5,
			ReaperIntervalSeconds: 60,
		},
		Pricing: PricingConfig{
			TaxRatePercent:   3.0,
			FreeShippingOver: 5000,
			ShippingFee:      100,
		},
		Cart: CartConfig{
			ReminderAfterMinutes: 120,
			MaxReminders:         3,
			SweepIntervalMinutes: 15,
		},
		Outbox: OutboxConfig{
			RelayIntervalSeconds: 5,
			BatchSize:            50,
			MaxAttempts:          5,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file at path,
// and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = p
		}
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		c.SMTP.From = v
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
}

func (c *Config) ReservationTTL() time.Duration {
	return time.Duration(c.Reservation.TTLMinutes) * time.Minute
}

func (c *Config) ReaperInterval() time.Duration {
	return time.Duration(c.Reservation.ReaperIntervalSeconds) * time.Second
}

func (c *Config) CartReminderAfter() time.Duration {
	return time.Duration(c.Cart.ReminderAfterMinutes) * time.Minute
}

func (c *Config) CartSweepInterval() time.Duration {
	return time.Duration(c.Cart.SweepIntervalMinutes) * time.Minute
}

func (c *Config) OutboxRelayInterval() time.Duration {
	return time.Duration(c.Outbox.RelayIntervalSeconds) * time.Second
}

func (c *Config) TaxRate() decimal.Decimal {
	return decimal.NewFromFloat(c.Pricing.TaxRatePercent)
}

func (c *Config) FreeShippingThreshold() decimal.Decimal {
	return decimal.NewFromFloat(c.Pricing.FreeShippingOver)
}

func (c *Config) ShippingFee() decimal.Decimal {
	return decimal.NewFromFloat(c.Pricing.ShippingFee)
}
