package adapter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tallydash/tally/internal/backend"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"attendance", "employees"}, cfg.CollectionNames())
	assert.Equal(t, 30, cfg.LoaderSettings().PageSize)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
server:
  url: https://dash.example.com
  token: abc123
  max_retries: 1
  retry_delay: 250ms
loader:
  page_size: 50
  batch_delay: 1s
collections:
  payroll:
    path: /api/payroll/
    label: employee.name
    keys:
      - name: id
        fields: [id]
      - name: slip
        fields: [employee.id, period]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://dash.example.com", cfg.Server.URL)
	assert.Equal(t, "abc123", cfg.Server.Token)
	assert.Equal(t, 1, cfg.Server.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Server.RetryDelay)
	assert.Equal(t, 60*time.Second, cfg.Server.Timeout, "unset keys keep defaults")
	assert.Equal(t, 50, cfg.Loader.PageSize)
	assert.Equal(t, time.Second, cfg.Loader.BatchDelay)

	payroll, ok := cfg.Collection("payroll")
	require.True(t, ok)
	assert.Equal(t, backend.Collection{
		Name:  "payroll",
		Path:  "/api/payroll/",
		Label: "employee.name",
		Keys: []backend.KeySpec{
			{Name: "id", Fields: []string{"id"}},
			{Name: "slip", Fields: []string{"employee.id", "period"}},
		},
	}, payroll)
	_, ok = cfg.Collection("employees")
	assert.False(t, ok, "configured collections replace the defaults")
}

func TestLoadConfig_DefaultsWithoutCollections(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "server:\n  url: http://localhost:9000\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"attendance", "employees"}, cfg.CollectionNames())
	assert.Equal(t, "employees", cfg.Collections["employees"].Name)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("TALLY_SERVER_TOKEN", "from-env")
	t.Setenv("TALLY_LOADER_PAGE_SIZE", "10")

	cfg, err := LoadConfig(writeConfig(t, "server:\n  token: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.Token)
	assert.Equal(t, 10, cfg.Loader.PageSize)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.Server.URL = "" }},
		{"bad url", func(c *Config) { c.Server.URL = "localhost" }},
		{"zero page size", func(c *Config) { c.Loader.PageSize = 0 }},
		{"negative delay", func(c *Config) { c.Loader.BatchDelay = -time.Second }},
		{"no collections", func(c *Config) { c.Collections = nil }},
		{"relative path", func(c *Config) {
			c.Collections["employees"] = backend.Collection{Name: "employees", Path: "api/x"}
		}},
		{"key without fields", func(c *Config) {
			c.Collections["employees"] = backend.Collection{
				Name: "employees", Path: "/api/x/", Keys: []backend.KeySpec{{Name: "id"}},
			}
		}},
		{"bad level", func(c *Config) { c.Logging.Level = "LOUD" }},
		{"bad metrics addr", func(c *Config) { c.Metrics.Addr = "not an address" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Server.Token = "saved"
	cfg.Loader.BulkDelay = 100 * time.Millisecond
	cfg.Metrics.Addr = "127.0.0.1:9090"

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Server.Token)
	assert.Equal(t, 100*time.Millisecond, loaded.Loader.BulkDelay)
	assert.Equal(t, "127.0.0.1:9090", loaded.Metrics.Addr)
	assert.Equal(t, cfg.Collections, loaded.Collections)
}

func TestConfig_StoreDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Dir = "/tmp/tally"
	assert.Equal(t, "/tmp/tally", cfg.StoreDir())
	cfg.Cache.Disabled = true
	assert.Empty(t, cfg.StoreDir())
}

func TestClearCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "abc"), 0o755))
	require.NoError(t, ClearCache(dir))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, ClearCache(""))
}
