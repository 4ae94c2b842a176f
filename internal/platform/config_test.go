package platform

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvStore, "")

	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, ConfigFile))
	require.NoError(t, err)

	want := DefaultConfig()
	want.Store.Path = dir
	assert.Equal(t, want, cfg)
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvStore, "")

	path := writeConfig(t, `
store:
  adapter: sqlite
  path: data
remote:
  timeout: 5s
  retries: 1
sync:
  space: notes
  cooldown: 1m
  interval: 10s
  include: "docs/**"
logging:
  level: debug
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Adapter)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "data"), cfg.Store.Path)
	assert.Equal(t, "json", cfg.Store.Format)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 1, cfg.Remote.Retries)
	assert.Equal(t, "notes", cfg.Sync.Space)
	assert.Equal(t, time.Minute, cfg.Sync.Cooldown)
	assert.Equal(t, 10*time.Second, cfg.Sync.Interval)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv(EnvToken, "secret")
	t.Setenv(EnvStore, "/elsewhere")

	cfg, err := LoadConfig(writeConfig(t, "store:\n  path: here\n"))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Remote.Token)
	assert.Equal(t, "/elsewhere", cfg.Store.Path)

	out, err := cfg.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret")
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvStore, "")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"adapter", "store:\n  adapter: bolt\n", "store.adapter"},
		{"format", "store:\n  format: toml\n", "store.format"},
		{"retries", "remote:\n  retries: -1\n", "remote.retries"},
		{"duration", "sync:\n  cooldown: -1s\n", "sync"},
		{"pattern", "sync:\n  include: \"docs/[\"\n", "sync.include"},
		{"level", "logging:\n  level: loud\n", "logging.level"},
		{"syntax", "store: [\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Adapter = "sqlite"
	cfg.Remote.Token = "tok"

	o := defaultOptions().apply(cfg.Options(slog.Default()))
	assert.Equal(t, "sqlite", o.adapter)
	assert.Equal(t, "tok", o.token)
	assert.Len(t, o.remoteOpts, 4)
	assert.Len(t, o.engineOpts, 2)
}
