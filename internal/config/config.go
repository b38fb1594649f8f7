// Package config содержит логику чтения конфигурации сервиса сопровождения сделок.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Поддерживаемые хранилища почтового ящика.
const (
	MailboxAuto     = "auto"
	MailboxPostgres = "postgres"
	MailboxRedis    = "redis"
	MailboxMemory   = "memory"
)

// ErrJWTSecretMissing возвращается, если не задан секрет проверки токенов доступа.
var ErrJWTSecretMissing = errors.New("JWT_SECRET is required")

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress         string        `env:"RUN_ADDRESS"`
	DatabaseURI        string        `env:"DATABASE_URI"`
	MarketplaceAddress string        `env:"MARKETPLACE_API_ADDRESS"`
	RedisURL           string        `env:"REDIS_URL"`
	MailboxBackend     string        `env:"MAILBOX_BACKEND"`
	JWTSecret          string        `env:"JWT_SECRET"`
	Timezone           string        `env:"MARKET_TIMEZONE"`
	UIBaseURL          string        `env:"UI_BASE_URL"`
	ReconcileInterval  time.Duration `env:"RECONCILE_INTERVAL"`
	EnrichConcurrency  int           `env:"ENRICH_CONCURRENCY"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.MarketplaceAddress, "r", "", "marketplace API address")
	flag.StringVar(&cfg.RedisURL, "redis", "", "redis URL for the mailbox")
	flag.StringVar(&cfg.MailboxBackend, "mailbox", MailboxAuto, "mailbox backend: auto, postgres, redis, memory")
	flag.StringVar(&cfg.JWTSecret, "jwt-secret", "", "secret used to verify marketplace access tokens")
	flag.StringVar(&cfg.Timezone, "tz", "Asia/Ho_Chi_Minh", "timezone of the business hours window")
	flag.StringVar(&cfg.UIBaseURL, "ui", "http://localhost:3000", "base URL of the web UI")
	flag.DurationVar(&cfg.ReconcileInterval, "reconcile", time.Second, "background reconciliation interval, 0 disables it")
	flag.IntVar(&cfg.EnrichConcurrency, "enrich", 8, "max parallel listing lookups per offers load")

	flag.Parse()

	overrideString(&cfg.RunAddress, fromEnv.RunAddress)
	overrideString(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	overrideString(&cfg.MarketplaceAddress, fromEnv.MarketplaceAddress)
	overrideString(&cfg.RedisURL, fromEnv.RedisURL)
	overrideString(&cfg.MailboxBackend, fromEnv.MailboxBackend)
	overrideString(&cfg.JWTSecret, fromEnv.JWTSecret)
	overrideString(&cfg.Timezone, fromEnv.Timezone)
	overrideString(&cfg.UIBaseURL, fromEnv.UIBaseURL)
	if fromEnv.ReconcileInterval != 0 {
		cfg.ReconcileInterval = fromEnv.ReconcileInterval
	}
	if fromEnv.EnrichConcurrency != 0 {
		cfg.EnrichConcurrency = fromEnv.EnrichConcurrency
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.EnrichConcurrency <= 0 {
		cfg.EnrichConcurrency = 1
	}
	// Часть маршрутов отвечает без обращения к API маркетплейса, поэтому подпись токена проверяется всегда.
	if cfg.JWTSecret == "" {
		return nil, ErrJWTSecretMissing
	}

	return cfg, nil
}

// Location возвращает часовой пояс, в котором проверяется окно рабочих часов.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Mailbox определяет хранилище почтового ящика с учётом режима auto.
func (c *Config) Mailbox() string {
	switch c.MailboxBackend {
	case MailboxPostgres, MailboxRedis, MailboxMemory:
		return c.MailboxBackend
	}
	if c.DatabaseURI != "" {
		return MailboxPostgres
	}
	if c.RedisURL != "" {
		return MailboxRedis
	}
	return MailboxMemory
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
