package config_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"coauthor-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestDefaults(t *testing.T) {
	cfg, err := config.NewLoader(t.TempDir(), config.Production).Load()
	require.NoError(t, err)

	assert.Equal(t, config.Production, cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.CloudWatch)
	assert.Equal(t, time.Minute, cfg.Metrics.PushInterval)
	assert.Equal(t, []string{"defaults", "environment"}, cfg.LoadedFrom)
}

func TestFileLayering(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: 9000
logging:
  level: warn
websocket:
  max_connections_per_subject: 3
`)
	writeFile(t, dir, "development.yaml", `
server:
  port: 9100
  shutdown_timeout: 5s
`)
	writeFile(t, dir, "local.yml", `
storage:
  backend: sqlite
  sqlite_path: /tmp/dev.db
`)

	cfg, err := config.NewLoader(dir, config.Development).Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "environment file beats base")
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.WebSocket.MaxConnectionsPerSubject)
	assert.Equal(t, config.BackendSQLite, cfg.Storage.Backend)
	assert.Len(t, cfg.LoadedFrom, 5)
}

func TestLocalFileIgnoredOutsideDevelopment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "local.yaml", "server:\n  port: 1234\n")

	cfg, err := config.NewLoader(dir, config.Staging).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestEnvironmentVariablesWin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "server:\n  port: 9000\n")

	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("STORAGE_BACKEND", "DynamoDB")
	t.Setenv("TABLE_NAME", "papers")
	t.Setenv("ENABLE_AUTH", "true")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("LOG_LEVEL", "ERROR")

	cfg, err := config.NewLoader(dir, config.Production).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, config.BackendDynamoDB, cfg.Storage.Backend)
	assert.Equal(t, "papers", cfg.Storage.TableName)
	assert.True(t, cfg.Security.EnableAuth)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{"auth without secret", map[string]string{"ENABLE_AUTH": "true"}, ""},
		{"unknown backend", map[string]string{"STORAGE_BACKEND": "postgres"}, ""},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, ""},
		{"sqlite without path", nil, "storage:\n  backend: sqlite\n  sqlite_path: \"\"\n"},
		{"tracing without endpoint", map[string]string{"ENABLE_TRACING": "true"}, ""},
		{"cloudwatch without metrics", map[string]string{"ENABLE_CLOUDWATCH_METRICS": "true"}, "metrics:\n  enabled: false\n"},
		{"port out of range", nil, "server:\n  port: 70000\n"},
		{"malformed yaml", nil, "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.file != "" {
				writeFile(t, dir, "base.yaml", tt.file)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.NewLoader(dir, config.Production).Load()
			assert.Error(t, err)
		})
	}
}

func TestWatcherReloadsInDevelopment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "logging:\n  level: info\n")
	loader := config.NewLoader(dir, config.Development)
	cfg, err := loader.Load()
	require.NoError(t, err)

	w, err := config.NewConfigWatcher(loader, cfg, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	var level atomic.Value
	w.OnChange(func(c *config.Config) { level.Store(c.Logging.Level) })

	writeFile(t, dir, "base.yaml", "logging:\n  level: warn\n")

	assert.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "warn"
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "warn", w.GetConfig().Logging.Level)
}

func TestWatcherDisabledOutsideDevelopment(t *testing.T) {
	loader := config.NewLoader(t.TempDir(), config.Production)
	cfg, err := loader.Load()
	require.NoError(t, err)

	w, err := config.NewConfigWatcher(loader, cfg, zap.NewNop())
	require.NoError(t, err)
	w.Stop()
	assert.Same(t, cfg, w.GetConfig())
}
