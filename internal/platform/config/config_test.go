package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestResolveDatabaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		env        map[string]string
		order      URLOrder
		prefixes   []string
		wantURL    string
		wantSource string
	}{
		{
			name:       "default when nothing is set",
			env:        map[string]string{},
			order:      OrderStandard,
			wantURL:    DefaultDatabaseURL,
			wantSource: "default",
		},
		{
			name: "standard prefers DATABASE_URL",
			env: map[string]string{
				"DATABASE_URL": "postgres://a",
				"POSTGRES_URL": "postgres://b",
			},
			order:      OrderStandard,
			wantURL:    "postgres://a",
			wantSource: "DATABASE_URL",
		},
		{
			name: "postgres_first prefers POSTGRES_URL",
			env: map[string]string{
				"DATABASE_URL": "postgres://a",
				"POSTGRES_URL": "postgres://b",
			},
			order:      OrderPostgresFirst,
			wantURL:    "postgres://b",
			wantSource: "POSTGRES_URL",
		},
		{
			name:       "falls back to POSTGRES_PRISMA_URL",
			env:        map[string]string{"POSTGRES_PRISMA_URL": "postgres://c"},
			order:      OrderStandard,
			wantURL:    "postgres://c",
			wantSource: "POSTGRES_PRISMA_URL",
		},
		{
			name:       "empty values are skipped",
			env:        map[string]string{"DATABASE_URL": "  ", "POSTGRES_URL": "postgres://b"},
			order:      OrderStandard,
			wantURL:    "postgres://b",
			wantSource: "POSTGRES_URL",
		},
		{
			name:       "prefixed variant used when unprefixed are absent",
			env:        map[string]string{"STORAGE_POSTGRES_URL": "postgres://s"},
			order:      OrderStandard,
			prefixes:   []string{"STORAGE_"},
			wantURL:    "postgres://s",
			wantSource: "STORAGE_POSTGRES_URL",
		},
		{
			name: "unprefixed wins over prefixed",
			env: map[string]string{
				"STORAGE_DATABASE_URL": "postgres://s",
				"POSTGRES_PRISMA_URL":  "postgres://p",
			},
			order:      OrderStandard,
			prefixes:   []string{"STORAGE_"},
			wantURL:    "postgres://p",
			wantSource: "POSTGRES_PRISMA_URL",
		},
		{
			name: "prefixes are tried in the configured order",
			env: map[string]string{
				"B_DATABASE_URL": "postgres://b",
				"A_POSTGRES_URL": "postgres://a",
			},
			order:      OrderStandard,
			prefixes:   []string{"A_", "B_"},
			wantURL:    "postgres://a",
			wantSource: "A_POSTGRES_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			url, source := ResolveDatabaseURL(mapLookup(tt.env), tt.order, tt.prefixes)
			assert.Equal(t, tt.wantURL, url)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestParseURLOrder(t *testing.T) {
	t.Parallel()

	o, err := ParseURLOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderStandard, o)

	o, err = ParseURLOrder("Postgres_First")
	require.NoError(t, err)
	assert.Equal(t, OrderPostgresFirst, o)

	_, err = ParseURLOrder("random")
	assert.Error(t, err)
}

// Not parallel: modifies the process environment.
func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_KEY", "secret-key")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SESSION_LIFETIME", "30m")
	t.Setenv("BOOTSTRAP_TABLE_INIT", "lazy")
	t.Setenv("DB_URL_ORDER", "postgres_first")
	t.Setenv("DATABASE_URL", "postgres://db-a")
	t.Setenv("POSTGRES_URL", "postgres://db-b")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.App.Key)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Minute, cfg.Session.Lifetime)
	assert.Equal(t, "lazy", cfg.Bootstrap.TableInit)
	assert.Equal(t, "postgres://db-b", cfg.DB.URL)
	assert.Equal(t, "POSTGRES_URL", cfg.DB.URLSource)
	assert.Equal(t, "session", cfg.Session.CookieName)
	assert.True(t, cfg.Session.Secure)
}

func TestLoad_InvalidOrder(t *testing.T) {
	t.Setenv("DB_URL_ORDER", "whatever")

	_, err := Load()
	assert.Error(t, err)
}

func TestRedisConfig_Addr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", RedisConfig{Port: "6379"}.Addr())
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: "6380"}.Addr())
}
