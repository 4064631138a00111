package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseWith(t *testing.T, vars map[string]string) (*Config, error) {
	t.Helper()
	return Parse(env.Options{Environment: vars})
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := parseWith(t, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	assert.Equal(t, DefaultSQLiteDSN, cfg.StoreDSN)
	assert.Equal(t, DefaultEventSource, cfg.EventSource)
	assert.Equal(t, DefaultATSEventSource, cfg.ATSEventSource)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.ProviderRetryBaseDelay())
	assert.Equal(t, 3, cfg.ProviderRetryMaxAttempts)
	assert.Empty(t, cfg.EventBusName)
	assert.NotEmpty(t, cfg.EventConsumerName)
	assert.True(t, cfg.MetricsEnabled)
	assert.False(t, cfg.ShortCircuitCreate())
	assert.Equal(t, PlanDefaults{Headcount: 1, Budget: 0}, cfg.Policy.PlanDefaults)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := parseWith(t, map[string]string{
		"PORT":                   "9090",
		"DRY_RUN":                "true",
		"STORE_DRIVER":           "pgx",
		"STORE_DSN":              "postgres://localhost/reqsync",
		"EVENT_BUS_NAME":         "requisition-events",
		"PROVIDER_TIMEOUT":       "5s",
		"PLAN_DEFAULT_HEADCOUNT": "3",
		"PLAN_DEFAULT_BUDGET":    "120000",
		"EVENT_CONSUMER_NAME":    "worker-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.ShortCircuitCreate())
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "requisition-events", cfg.EventBusName)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "worker-1", cfg.EventConsumerName)
	assert.Equal(t, PlanDefaults{Headcount: 3, Budget: 120000}, cfg.Policy.PlanDefaults)
}

func TestParse_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"non-numeric port", map[string]string{"PORT": "http"}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"postgres without dsn", map[string]string{"STORE_DRIVER": "pgx"}},
		{"negative headcount", map[string]string{"PLAN_DEFAULT_HEADCOUNT": "-1"}},
		{"negative budget", map[string]string{"PLAN_DEFAULT_BUDGET": "-10"}},
		{"sample rate above one", map[string]string{"TRACING_SAMPLE_RATE": "1.5"}},
		{"zero burst", map[string]string{"RATE_LIMIT_BURST": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseWith(t, tt.vars)
			assert.Error(t, err)
		})
	}
}

func TestParse_MemoryDriverNeedsNoDSN(t *testing.T) {
	cfg, err := parseWith(t, map[string]string{"STORE_DRIVER": "memory"})
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
}

func TestConfig_ProviderURLs(t *testing.T) {
	cfg, err := parseWith(t, map[string]string{
		"CLEARCOMPANY_API_URL": "https://ats.example.com",
		"PAYLOCITY_API_URL":    "https://hris.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://ats.example.com", cfg.ClearCompanyURL())
	assert.Equal(t, "https://hris.example.com", cfg.PaylocityURL())

	cfg.UseMockProviders = true
	cfg.MockProviderBaseURL = "http://localhost:3001/mock"
	assert.Equal(t, "http://localhost:3001/mock/clearcompany", cfg.ClearCompanyURL())
	assert.Equal(t, "http://localhost:3001/mock/paylocity", cfg.PaylocityURL())
}

func TestSyncPolicy(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "policy.yaml", `
planDefaults:
  budget: 50000
departments:
  Engineering: {headcount: 2, budget: 250000}
statusMap:
  approved: open
  Filled: closed
`)

	cfg, err := parseWith(t, map[string]string{"SYNC_POLICY_FILE": path})
	require.NoError(t, err)
	policy := cfg.Policy

	t.Run("partial plan defaults keep the base headcount", func(t *testing.T) {
		assert.Equal(t, PlanDefaults{Headcount: 1, Budget: 50000}, policy.PlanDefaultsFor("Sales"))
	})

	t.Run("department override", func(t *testing.T) {
		assert.Equal(t, PlanDefaults{Headcount: 2, Budget: 250000}, policy.PlanDefaultsFor("Engineering"))
		assert.Equal(t, PlanDefaults{Headcount: 2, Budget: 250000}, policy.PlanDefaultsFor("engineering"))
	})

	t.Run("status map", func(t *testing.T) {
		assert.Equal(t, "open", policy.PlanStatus("approved"))
		assert.Equal(t, "open", policy.PlanStatus("APPROVED"))
		assert.Equal(t, "on_hold", policy.PlanStatus("on_hold"))
	})

	t.Run("filled is never remapped", func(t *testing.T) {
		assert.Equal(t, "filled", policy.PlanStatus("filled"))
	})
}

func TestLoadSyncPolicy_Errors(t *testing.T) {
	_, err := LoadSyncPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, t.TempDir(), "broken.yaml", "planDefaults: [1, 2")
	_, err = LoadSyncPolicy(path)
	assert.Error(t, err)
}

func TestPolicyWatcher_CheckOnce(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "policy.yaml", "statusMap: {approved: open}\n")

	cfg, err := parseWith(t, map[string]string{"SYNC_POLICY_FILE": path})
	require.NoError(t, err)

	source := NewPolicySource(cfg.Policy)
	watcher := NewPolicyWatcher(cfg, source, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.True(t, watcher.Enabled())

	changed, err := watcher.CheckOnce()
	require.NoError(t, err)
	assert.False(t, changed)

	writeFile(t, dir, "policy.yaml", "statusMap: {approved: open, paused: on_hold}\n")
	changed, err = watcher.CheckOnce()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "on_hold", source.Current().PlanStatus("paused"))

	writeFile(t, dir, "policy.yaml", "planDefaults: {headcount: -4}\n")
	changed, err = watcher.CheckOnce()
	assert.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, "on_hold", source.Current().PlanStatus("paused"))
}

func TestPolicyWatcher_RunDisabled(t *testing.T) {
	cfg, err := parseWith(t, map[string]string{})
	require.NoError(t, err)

	watcher := NewPolicyWatcher(cfg, NewPolicySource(cfg.Policy), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.False(t, watcher.Enabled())

	done := make(chan struct{})
	go func() {
		watcher.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled watcher did not return")
	}
}

func TestFileCredentialSource(t *testing.T) {
	fallback := Credentials{ClearCompanyAPIKey: "env-cc", PaylocityAPIKey: "env-pl"}

	t.Run("no file uses env", func(t *testing.T) {
		creds, err := (&FileCredentialSource{Fallback: fallback}).Credentials(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fallback, creds)
	})

	t.Run("file wins per key", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "creds.json", `{"clearCompanyApiKey":"file-cc"}`)
		creds, err := (&FileCredentialSource{Path: path, Fallback: fallback}).Credentials(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "file-cc", creds.ClearCompanyAPIKey)
		assert.Equal(t, "env-pl", creds.PaylocityAPIKey)
	})

	t.Run("unreadable file", func(t *testing.T) {
		_, err := (&FileCredentialSource{Path: filepath.Join(t.TempDir(), "nope.json")}).Credentials(context.Background())
		assert.Error(t, err)
	})

	t.Run("config wiring", func(t *testing.T) {
		cfg, err := parseWith(t, map[string]string{"PAYLOCITY_API_KEY": "pl-key"})
		require.NoError(t, err)
		creds, err := cfg.CredentialSource().Credentials(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "pl-key", creds.PaylocityAPIKey)
		assert.Empty(t, creds.ClearCompanyAPIKey)
	})
}
