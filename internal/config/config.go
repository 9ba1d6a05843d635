// Package config holds the service configuration. Values come from, in
// increasing precedence, DefaultConfig, an optional YAML/JSON/TOML file,
// GOROWSEARCH_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "GOROWSEARCH"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

// Config configures the server.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`

	// SchemaPath is the index schema file. Empty uses the built-in schema.
	SchemaPath string `json:"schema"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	Store    StoreConfig    `json:"store"`
	Scan     ScanConfig     `json:"scan"`
	Snapshot SnapshotConfig `json:"snapshot"`
	Index    IndexConfig    `json:"index"`
}

// StoreConfig selects the primary row store.
type StoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// ScanConfig tunes result-merging scans.
type ScanConfig struct {
	BatchSize  int `json:"batch_size"`
	MaxFetches int `json:"max_fetches"`
}

// SnapshotConfig tunes the searcher lifecycle manager.
type SnapshotConfig struct {
	LeakThreshold time.Duration `json:"leak_threshold"`
}

// IndexConfig tunes the search index.
type IndexConfig struct {
	// RefreshInterval publishes buffered writes periodically. 0 disables
	// the background refresher; writes are then visible after POST /refresh.
	RefreshInterval  time.Duration `json:"refresh_interval"`
	MaxTermsExpanded int           `json:"max_terms_expanded"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Listen:          ":8080",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		Store: StoreConfig{
			Driver: DriverMemory,
		},
		Scan: ScanConfig{
			BatchSize: 64,
		},
		Snapshot: SnapshotConfig{
			LeakThreshold: 5 * time.Minute,
		},
		Index: IndexConfig{
			RefreshInterval:  time.Second,
			MaxTermsExpanded: 1000,
		},
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address is empty", ErrInvalidConfig)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: sqlite store requires a dsn", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	if c.Scan.BatchSize <= 0 {
		return fmt.Errorf("%w: scan batch size must be positive", ErrInvalidConfig)
	}
	if c.Scan.MaxFetches < 0 {
		return fmt.Errorf("%w: scan max fetches must not be negative", ErrInvalidConfig)
	}
	if c.Index.RefreshInterval < 0 {
		return fmt.Errorf("%w: refresh interval must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
	}
}

// binding ties a flag to its config key.
type binding struct {
	flag  string
	key   string
	usage string
}

var bindings = []binding{
	{"config", "config", "config file (yaml, json or toml)"},
	{"listen", "listen", "HTTP listen address"},
	{"log-level", "log_level", "log level (debug, info, warn, error)"},
	{"schema", "schema", "index schema file (JSON)"},
	{"shutdown-timeout", "shutdown_timeout", "graceful shutdown timeout"},
	{"store-driver", "store.driver", "primary store driver (memory, sqlite)"},
	{"store-dsn", "store.dsn", "primary store DSN (sqlite file path or :memory:)"},
	{"scan-batch-size", "scan.batch_size", "hits requested per engine fetch"},
	{"scan-max-fetches", "scan.max_fetches", "engine fetches per scan (0 = unlimited)"},
	{"snapshot-leak-threshold", "snapshot.leak_threshold", "report searcher handles held longer than this"},
	{"index-refresh-interval", "index.refresh_interval", "background index refresh interval (0 disables)"},
	{"index-max-terms-expanded", "index.max_terms_expanded", "maximum terms a wildcard or fuzzy query may expand to"},
}

// RegisterFlags defines the configuration flags on fs and binds them, and
// their environment variables, to v.
func RegisterFlags(v *viper.Viper, fs *pflag.FlagSet) {
	d := DefaultConfig()
	for _, b := range bindings {
		switch b.key {
		case "config", "schema", "store.dsn":
			fs.String(b.flag, "", b.usage)
		case "listen":
			fs.String(b.flag, d.Listen, b.usage)
		case "log_level":
			fs.String(b.flag, d.LogLevel, b.usage)
		case "store.driver":
			fs.String(b.flag, d.Store.Driver, b.usage)
		case "shutdown_timeout":
			fs.Duration(b.flag, d.ShutdownTimeout, b.usage)
		case "snapshot.leak_threshold":
			fs.Duration(b.flag, d.Snapshot.LeakThreshold, b.usage)
		case "index.refresh_interval":
			fs.Duration(b.flag, d.Index.RefreshInterval, b.usage)
		case "scan.batch_size":
			fs.Int(b.flag, d.Scan.BatchSize, b.usage)
		case "scan.max_fetches":
			fs.Int(b.flag, d.Scan.MaxFetches, b.usage)
		case "index.max_terms_expanded":
			fs.Int(b.flag, d.Index.MaxTermsExpanded, b.usage)
		}
		mustBindFlag(v, b.key, envName(b.key), fs.Lookup(b.flag))
	}
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

func mustBindFlag(v *viper.Viper, key, env string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
	if env != "" {
		if err := v.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
}

// Load reads the config file named by the "config" key, if any, and
// resolves every setting from v.
func Load(v *viper.Viper) (Config, error) {
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	cfg := DefaultConfig()
	setString(v, "listen", &cfg.Listen)
	setString(v, "log_level", &cfg.LogLevel)
	setString(v, "schema", &cfg.SchemaPath)
	setDuration(v, "shutdown_timeout", &cfg.ShutdownTimeout)
	setString(v, "store.driver", &cfg.Store.Driver)
	setString(v, "store.dsn", &cfg.Store.DSN)
	setInt(v, "scan.batch_size", &cfg.Scan.BatchSize)
	setInt(v, "scan.max_fetches", &cfg.Scan.MaxFetches)
	setDuration(v, "snapshot.leak_threshold", &cfg.Snapshot.LeakThreshold)
	setDuration(v, "index.refresh_interval", &cfg.Index.RefreshInterval)
	setInt(v, "index.max_terms_expanded", &cfg.Index.MaxTermsExpanded)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setDuration(v *viper.Viper, key string, dst *time.Duration) {
	if v.IsSet(key) {
		*dst = v.GetDuration(key)
	}
}
