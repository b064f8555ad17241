package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "health/metrics listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and FIELDNOTES_CONFIG when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("FIELDNOTES_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// ApplyEnvOverrides applies FIELDNOTES_* environment variables onto cfg
// and reports whether any were used.
func ApplyEnvOverrides(cfg *Config) bool {
	envUsed := false
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	if v := os.Getenv("FIELDNOTES_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	} else {
		if host := os.Getenv("FIELDNOTES_ADDRESS"); host != "" {
			envUsed = true
			cfg.Server.Address = host
		}
		if port := os.Getenv("FIELDNOTES_PORT"); port != "" {
			envUsed = true
			if pi, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = pi
			}
		}
	}

	if v := os.Getenv("FIELDNOTES_DB_PATH"); v != "" {
		envUsed = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("FIELDNOTES_BLOB_PATH"); v != "" {
		envUsed = true
		cfg.Storage.BlobPath = v
	}
	if v := os.Getenv("FIELDNOTES_BLOB_BASE_URL"); v != "" {
		envUsed = true
		cfg.Storage.BlobBaseURL = v
	}
	if v := os.Getenv("FIELDNOTES_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = v
	}

	if v := os.Getenv("FIELDNOTES_LOGIN_LIMIT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Limits.Login.Limit = n
		}
	}
	if v := os.Getenv("FIELDNOTES_UPLOAD_LIMIT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Limits.Upload.Limit = n
		}
	}
	if v := os.Getenv("FIELDNOTES_UPLOAD_WINDOW"); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Limits.Upload.Window = Duration(d)
		}
	}
	if v := os.Getenv("FIELDNOTES_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Limits.Burst.RPS = f
		}
	}
	if v := os.Getenv("FIELDNOTES_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Limits.Burst.Burst = n
		}
	}

	if v := os.Getenv("FIELDNOTES_VAULT_MAX_SIZE"); v != "" {
		var s SizeBytes
		node := yaml.Node{Value: strings.TrimSpace(v)}
		if err := s.UnmarshalYAML(&node); err == nil {
			envUsed = true
			cfg.Vault.MaxFileSize = s
		}
	}

	if v := os.Getenv("FIELDNOTES_SWEEP_CRON"); v != "" {
		envUsed = true
		cfg.Sweeper.Enabled = true
		cfg.Sweeper.Cron = v
	}
	if v := os.Getenv("FIELDNOTES_SWEEP_BATCH"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Sweeper.BatchSize = n
		}
	}

	if v := os.Getenv("FIELDNOTES_VALIDATION_REQUIRED"); v != "" {
		envUsed = true
		cfg.Validation.Required = parseList(v)
	}

	return envUsed
}

// LoadEffective resolves the effective configuration from flags, the
// config file and the environment. A missing config file is not fatal;
// env overrides are applied on top of whatever the file provided, and
// explicit flags win last. Returns the config, its source description,
// and an error only for a malformed file or an explicitly requested
// file that does not exist.
func LoadEffective(flags Flags) (*Config, string, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	fileExists := err == nil
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, "", err
		}
		if flags.Set["config"] {
			return nil, "", fmt.Errorf("config file %s not found", flags.Config)
		}
		cfg = &Config{}
	}

	envUsed := ApplyEnvOverrides(cfg)

	if flags.Set["addr"] {
		if h, p, err := net.SplitHostPort(flags.Addr); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = flags.Addr
		}
	}
	if flags.Set["db"] {
		cfg.Storage.DBPath = flags.DB
	}

	source := "defaults"
	switch {
	case flags.Set["addr"] || flags.Set["db"]:
		source = "flags"
	case fileExists:
		source = "config"
	case envUsed:
		source = "env"
	}

	applyDefaults(cfg)
	return cfg, source, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "./.database"
	}
	if cfg.Storage.BlobPath == "" {
		cfg.Storage.BlobPath = "./.blobs"
	}
	if cfg.Storage.BlobBaseURL == "" {
		cfg.Storage.BlobBaseURL = "/blobs"
	}
	if cfg.Limits.Login.Limit == 0 {
		cfg.Limits.Login.Limit = 20
		cfg.Limits.Login.Daily = true
	}
	if cfg.Limits.Upload.Limit == 0 {
		cfg.Limits.Upload.Limit = 60
	}
	if cfg.Limits.Upload.Window == 0 {
		cfg.Limits.Upload.Window = Duration(time.Hour)
	}
	if cfg.Vault.MaxFileSize == 0 {
		cfg.Vault.MaxFileSize = 32 << 20
	}
	if cfg.Sweeper.Cron == "" {
		cfg.Sweeper.Cron = "0 3 * * *"
	}
	if cfg.Sweeper.BatchSize == 0 {
		cfg.Sweeper.BatchSize = 1000
	}
}
