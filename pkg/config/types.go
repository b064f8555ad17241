package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Limits     LimitsConfig     `yaml:"limits"`
	Vault      VaultConfig      `yaml:"vault"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	Validation ValidationConfig `yaml:"validation"`
}

// ServerConfig holds the operational listener settings (health and
// metrics; the application itself has no HTTP surface here).
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port for the operational listener.
func (c *Config) Addr() string {
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", c.Server.Address, port)
}

// StorageConfig locates the record store and the blob store.
type StorageConfig struct {
	DBPath      string `yaml:"db_path"`
	BlobPath    string `yaml:"blob_path"`
	BlobBaseURL string `yaml:"blob_base_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LimitsConfig parameterizes the two gated flows and the in-process
// burst shedder. The flows use different limits and bucket shapes on
// purpose; neither is hard-coded.
type LimitsConfig struct {
	Login  GateConfig  `yaml:"login"`
	Upload GateConfig  `yaml:"upload"`
	Burst  BurstConfig `yaml:"burst"`
}

// GateConfig tunes one rate gate.
type GateConfig struct {
	Limit int `yaml:"limit"`
	// Daily switches to calendar-day buckets; Window is the bucket
	// width otherwise.
	Daily  bool     `yaml:"daily"`
	Window Duration `yaml:"window"`
	// FailOpen admits requests when the counter store is unreachable.
	FailOpen bool `yaml:"fail_open"`
}

// BurstConfig tunes the per-subject in-process token bucket.
type BurstConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// VaultConfig bounds uploads.
type VaultConfig struct {
	MaxFileSize SizeBytes `yaml:"max_file_size"`
}

// SweeperConfig holds configuration for the expiry/compaction runner.
type SweeperConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Cron      string `yaml:"cron"`
	BatchSize int    `yaml:"batch_size"`
	DryRun    bool   `yaml:"dry_run"`
}

// ValidationConfig carries the configurable payload rules.
type ValidationConfig struct {
	Required []string `yaml:"required"`
	Types    []struct {
		Path string `yaml:"path"`
		Type string `yaml:"type"` // string|number|boolean|object|array
	} `yaml:"types"`
	MaxLen []struct {
		Path string `yaml:"path"`
		Max  int    `yaml:"max"`
	} `yaml:"max_len"`
	Enums []struct {
		Path   string   `yaml:"path"`
		Values []string `yaml:"values"`
	} `yaml:"enums"`
}

// SizeBytes represents a number of bytes, unmarshaled from
// human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration wraps time.Duration, parsed from strings like "10m" or
// plain numbers interpreted as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
