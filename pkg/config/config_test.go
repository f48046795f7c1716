package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, PersistenceFile, c.Persistence.Backend)
	assert.Equal(t, "data/desk_state.json", c.Persistence.Path)
	assert.Equal(t, "heuristic", c.Evaluator.Default)
	assert.Equal(t, 100000.0, c.Ledger.InitialCapital)
	assert.Equal(t, 2, c.Ledger.MaxDailyTrades)
	assert.Equal(t, "memory", c.Cache.Backend)
	assert.True(t, c.Selection.Enabled)
	assert.Equal(t, 30, c.Selection.TopK)
	assert.Equal(t, "tradedesk.logs", c.Logs.Topic)
	assert.Equal(t, 60*time.Second, c.Market.QuoteTTL)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: test
server:
  port: 9090
ledger:
  initial_capital: 25000
market:
  providers: [stooq]
  quote_ttl: 30s
selection:
  enabled: false
  top_k: 10
persistence:
  path: /tmp/desk.json
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 25000.0, c.Ledger.InitialCapital)
	assert.Equal(t, []string{"stooq"}, c.Market.Providers)
	assert.Equal(t, 30*time.Second, c.Market.QuoteTTL)
	assert.False(t, c.Selection.Enabled)
	assert.Equal(t, 10, c.Selection.TopK)
	assert.Equal(t, 8, c.Selection.PerSector, "unset fields keep defaults")
	assert.Equal(t, "/tmp/desk.json", c.Persistence.Path)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [port"))
	assert.Error(t, err)
}

func TestValidateCrossSections(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"redis persistence", "persistence:\n  backend: redis\n", "redis.enabled"},
		{"postgres persistence", "persistence:\n  backend: postgres\n", "postgres.enabled"},
		{"layered cache", "cache:\n  backend: layered\n", "cache.backend layered"},
		{"log shipping", "logs:\n  enabled: true\n", "kafka.brokers"},
		{"http evaluator", "evaluator:\n  stages:\n    expert: http\n", "base_url"},
		{"clickhouse", "clickhouse:\n  enabled: true\n", "clickhouse.host"},
		{"unknown backend", "persistence:\n  backend: s3\n", "Backend"},
		{"ephemeral ttl", "memory:\n  ephemeral_ttl: 48h\n", "EphemeralTTL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HTTP_PORT":           "8181",
		"KAFKA_BROKERS":       "k1:9092, k2:9092",
		"TELEGRAM_BOT_TOKEN":  "tok",
		"TELEGRAM_CHAT_ID":    "-100",
		"EVALUATOR_BASE_URL":  "http://eval:8000",
		"DESK_STATE_PATH":     "/var/lib/desk.json",
		"REDIS_ENABLED":       "true",
		"PERSISTENCE_BACKEND": "redis",
		"LOG_LEVEL":           "debug",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	c, err := parse(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	require.NoError(t, c.applyEnv(lookup))
	require.NoError(t, c.Validate())

	assert.Equal(t, 8181, c.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, int64(-100), c.Telegram.ChatID)
	assert.Equal(t, "http://eval:8000", c.Evaluator.HTTP.BaseURL)
	assert.Equal(t, "/var/lib/desk.json", c.Persistence.Path)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, PersistenceRedis, c.Persistence.Backend)
	assert.Equal(t, "debug", c.Logger.Level)
}

func TestApplyEnvBadNumber(t *testing.T) {
	c, err := parse(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	err = c.applyEnv(func(k string) (string, bool) {
		if k == "HTTP_PORT" {
			return "eighty", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "HTTP_PORT")
}
