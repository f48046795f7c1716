// Package config loads the desk configuration from one YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"TradeDesk/internal/calibration"
	"TradeDesk/internal/decision"
	"TradeDesk/internal/evaluator"
	"TradeDesk/internal/ledger"
	"TradeDesk/internal/market"
	"TradeDesk/internal/memory"
	"TradeDesk/internal/scheduler"
	"TradeDesk/internal/selection"
	"TradeDesk/internal/service/notify"
	"TradeDesk/pkg/cache"
	pkgch "TradeDesk/pkg/clickhouse"
	xhttp "TradeDesk/pkg/http"
	pkgkafka "TradeDesk/pkg/kafka"
	"TradeDesk/pkg/logger"
	"TradeDesk/pkg/postgres"
	"TradeDesk/pkg/queue"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	PersistenceFile     = "file"
	PersistenceRedis    = "redis"
	PersistencePostgres = "postgres"
)

type Config struct {
	Environment string             `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Server      xhttp.ServerConfig `yaml:"server"`
	Logger      logger.Config      `yaml:"logger"`
	Logs        LogsConfig         `yaml:"logs"`

	Scheduler   scheduler.Config   `yaml:"scheduler"`
	Ledger      ledger.Config      `yaml:"ledger"`
	Memory      memory.Config      `yaml:"memory"`
	Calibration calibration.Config `yaml:"calibration"`
	Decision    decision.Config    `yaml:"decision"`
	Selection   SelectionConfig    `yaml:"selection"`
	Evaluator   evaluator.Config   `yaml:"evaluator"`
	Market      market.Config      `yaml:"market"`
	Cache       cache.Config       `yaml:"cache"`
	Persistence PersistenceConfig  `yaml:"persistence"`

	Redis      cache.RedisConfig `yaml:"redis"`
	Queue      queue.Config      `yaml:"queue"`
	Postgres   PostgresConfig    `yaml:"postgres"`
	Kafka      pkgkafka.Config   `yaml:"kafka"`
	ClickHouse ClickHouseConfig  `yaml:"clickhouse"`
	Telegram   notify.Config     `yaml:"telegram"`
}

// LogsConfig ships aggregated warnings and errors to Kafka.
type LogsConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Topic     string        `yaml:"topic" default:"tradedesk.logs"`
	MinLevel  string        `yaml:"min_level" default:"warn" validate:"oneof=warn error"`
	Interval  time.Duration `yaml:"interval" default:"30s"`
	Threshold int           `yaml:"threshold" default:"100"`
}

type SelectionConfig struct {
	Enabled          bool `yaml:"enabled" default:"true"`
	selection.Config `yaml:",inline"`
}

// PersistenceConfig picks where the desk snapshot lives.
type PersistenceConfig struct {
	Backend  string        `yaml:"backend" default:"file" validate:"oneof=file redis postgres"`
	Path     string        `yaml:"path" default:"data/desk_state.json"`
	Key      string        `yaml:"key" default:"desk:snapshot"`
	LeaseTTL time.Duration `yaml:"lease_ttl" default:"2m"`
}

type PostgresConfig struct {
	Enabled         bool `yaml:"enabled"`
	postgres.Config `yaml:",inline"`
}

type ClickHouseConfig struct {
	Enabled      bool `yaml:"enabled"`
	pkgch.Config `yaml:",inline"`
}

// Load reads path, applies defaults and validates.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv is Load with environment variables applied on top of the file.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// parse fills defaults first so the file only needs to name what differs.
// A missing file yields the defaults.
func parse(path string) (*Config, error) {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("TRADEDESK_ENV", &c.Environment)
	str("LOG_LEVEL", &c.Logger.Level)
	str("LOG_FORMAT", &c.Logger.Format)
	str("EVALUATOR_PROVIDER", &c.Evaluator.Default)
	str("EVALUATOR_BASE_URL", &c.Evaluator.HTTP.BaseURL)
	str("FINNHUB_API_KEY", &c.Market.Finnhub.APIKey)
	list("MARKET_PROVIDERS", &c.Market.Providers)
	str("PERSISTENCE_BACKEND", &c.Persistence.Backend)
	str("DESK_STATE_PATH", &c.Persistence.Path)
	str("REDIS_HOST", &c.Redis.Host)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("POSTGRES_DSN", &c.Postgres.DSN)
	str("POSTGRES_PASSWORD", &c.Postgres.Password)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.Token)

	if v, ok := lookup("HTTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("TELEGRAM_CHAT_ID"); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = id
	}
	if v, ok := lookup("INITIAL_CAPITAL"); ok && v != "" {
		capital, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("INITIAL_CAPITAL: %w", err)
		}
		c.Ledger.InitialCapital = capital
	}
	if v, ok := lookup("REDIS_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REDIS_ENABLED: %w", err)
		}
		c.Redis.Enabled = enabled
	}
	return nil
}

// Validate checks field tags and the cross-section requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	var errs []error
	switch c.Persistence.Backend {
	case PersistenceFile:
		if strings.TrimSpace(c.Persistence.Path) == "" {
			errs = append(errs, errors.New("persistence.path is required for the file backend"))
		}
	case PersistenceRedis:
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("persistence.backend redis needs redis.enabled"))
		}
	case PersistencePostgres:
		if !c.Postgres.Enabled {
			errs = append(errs, errors.New("persistence.backend postgres needs postgres.enabled"))
		}
	}
	if c.Cache.Backend != "memory" && !c.Redis.Enabled {
		errs = append(errs, fmt.Errorf("cache.backend %s needs redis.enabled", c.Cache.Backend))
	}
	if c.Logs.Enabled && !c.Kafka.Enabled() {
		errs = append(errs, errors.New("logs.enabled needs kafka.brokers"))
	}
	if c.Telegram.Enabled() && c.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("telegram.chat_id is required with a token"))
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		errs = append(errs, errors.New("clickhouse.host is required"))
	}
	if usesHTTPEvaluator(c.Evaluator) && c.Evaluator.HTTP.BaseURL == "" {
		errs = append(errs, errors.New("evaluator.http.base_url is required by the http provider"))
	}
	return errors.Join(errs...)
}

func usesHTTPEvaluator(e evaluator.Config) bool {
	if e.Default == evaluator.ProviderHTTP {
		return true
	}
	for _, p := range e.Stages {
		if p == evaluator.ProviderHTTP {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
