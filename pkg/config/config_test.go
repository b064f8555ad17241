package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  address: 127.0.0.1
  port: 9090
storage:
  db_path: /data/fieldnotes
  blob_path: /data/blobs
limits:
  login:
    limit: 10
    daily: true
  upload:
    limit: 30
    window: 30m
vault:
  max_file_size: 8MB
sweeper:
  enabled: true
  cron: "15 4 * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", cfg.Addr())
	require.Equal(t, "/data/fieldnotes", cfg.Storage.DBPath)
	require.Equal(t, 10, cfg.Limits.Login.Limit)
	require.True(t, cfg.Limits.Login.Daily)
	require.Equal(t, 30*time.Minute, cfg.Limits.Upload.Window.Duration())
	require.Equal(t, int64(8_000_000), cfg.Vault.MaxFileSize.Int64())
	require.True(t, cfg.Sweeper.Enabled)
	require.Equal(t, "15 4 * * *", cfg.Sweeper.Cron)
}

func TestSizeBytesForms(t *testing.T) {
	cases := map[string]int64{
		"64MB":    64_000_000,
		"1GiB":    1 << 30,
		"1048576": 1048576,
		"":        0,
	}
	for in, want := range cases {
		var s SizeBytes
		node := yaml.Node{Value: in}
		require.NoError(t, s.UnmarshalYAML(&node), in)
		require.Equal(t, want, s.Int64(), in)
	}

	var s SizeBytes
	node := yaml.Node{Value: "lots"}
	require.Error(t, s.UnmarshalYAML(&node))
}

func TestDurationForms(t *testing.T) {
	cases := map[string]time.Duration{
		"10m": 10 * time.Minute,
		"1h":  time.Hour,
		"90":  90 * time.Second,
		"":    0,
	}
	for in, want := range cases {
		var d Duration
		node := yaml.Node{Value: in}
		require.NoError(t, d.UnmarshalYAML(&node), in)
		require.Equal(t, want, d.Duration(), in)
	}

	var d Duration
	node := yaml.Node{Value: "soon"}
	require.Error(t, d.UnmarshalYAML(&node))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FIELDNOTES_ADDR", "0.0.0.0:7070")
	t.Setenv("FIELDNOTES_DB_PATH", "/env/db")
	t.Setenv("FIELDNOTES_LOGIN_LIMIT", "5")
	t.Setenv("FIELDNOTES_UPLOAD_WINDOW", "15m")
	t.Setenv("FIELDNOTES_VAULT_MAX_SIZE", "2MB")

	cfg := &Config{}
	used := ApplyEnvOverrides(cfg)
	require.True(t, used)
	require.Equal(t, "0.0.0.0", cfg.Server.Address)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "/env/db", cfg.Storage.DBPath)
	require.Equal(t, 5, cfg.Limits.Login.Limit)
	require.Equal(t, 15*time.Minute, cfg.Limits.Upload.Window.Duration())
	require.Equal(t, int64(2_000_000), cfg.Vault.MaxFileSize.Int64())
}

func TestDefaultsApplied(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	require.Equal(t, "0.0.0.0:8080", cfg.Addr())
	require.Equal(t, 20, cfg.Limits.Login.Limit)
	require.True(t, cfg.Limits.Login.Daily)
	require.Equal(t, 60, cfg.Limits.Upload.Limit)
	require.Equal(t, time.Hour, cfg.Limits.Upload.Window.Duration())
	require.Equal(t, int64(32<<20), cfg.Vault.MaxFileSize.Int64())
	require.Equal(t, "0 3 * * *", cfg.Sweeper.Cron)
}
