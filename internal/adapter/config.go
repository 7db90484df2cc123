package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/tallydash/tally/internal/backend"
	"github.com/tallydash/tally/internal/loader"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig                  `mapstructure:"server"`
	Loader      LoaderConfig                  `mapstructure:"loader"`
	Collections map[string]backend.Collection `mapstructure:"collections" validate:"required,min=1,dive"`
	Cache       CacheConfig                   `mapstructure:"cache"`
	Logging     LoggingConfig                 `mapstructure:"logging"`
	Metrics     MetricsConfig                 `mapstructure:"metrics"`
}

// ServerConfig holds backend connection settings
type ServerConfig struct {
	URL        string        `mapstructure:"url" validate:"required,http_url"`
	Token      string        `mapstructure:"token"` // Bearer token, optional
	Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0,lte=10"` // 5xx retries per request
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

// LoaderConfig holds progressive loading settings
type LoaderConfig struct {
	PageSize   int           `mapstructure:"page_size" validate:"gt=0,lte=1000"`
	BatchDelay time.Duration `mapstructure:"batch_delay" validate:"gte=0"`
	BulkDelay  time.Duration `mapstructure:"bulk_delay" validate:"gte=0"`
	Retries    int           `mapstructure:"retries" validate:"gte=0"` // session resumes for non-interactive loads
}

// CacheConfig holds snapshot store settings
type CacheConfig struct {
	Dir      string `mapstructure:"dir"`
	Disabled bool   `mapstructure:"disabled"` // keep snapshots in memory only
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN WARNING ERROR debug info warn warning error"`
}

// MetricsConfig holds the optional Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:        "http://localhost:8000",
			Timeout:    60 * time.Second,
			MaxRetries: 3,
			RetryDelay: 500 * time.Millisecond,
		},
		Loader: LoaderConfig{
			PageSize:   loader.DefaultPageSize,
			BatchDelay: loader.DefaultBatchDelay,
		},
		Collections: DefaultCollections(),
		Cache: CacheConfig{
			Dir: defaultCachePath(),
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// DefaultCollections returns the dashboard's built-in collections.
func DefaultCollections() map[string]backend.Collection {
	return map[string]backend.Collection{
		"employees": {
			Name: "employees",
			Path: "/api/directory-data/",
			Keys: []backend.KeySpec{
				{Name: "id", Fields: []string{"id"}},
				{Name: "employee_id", Fields: []string{"employee_id"}},
			},
			Label: "name",
		},
		"attendance": {
			Name: "attendance",
			Path: "/api/attendance/all_records/",
			Keys: []backend.KeySpec{
				{Name: "id", Fields: []string{"id"}},
				{Name: "period", Fields: []string{"employee_id", "year", "month"}},
			},
			Label: "employee_name",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "tally", "tally.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "tally", "tally.log")
	}
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "tally")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "tally")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "tally", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "tally", "cache")
	}
}

// LoadConfig loads configuration from file and environment. An empty file
// searches config.yaml in the user config directory and the working
// directory. Environment variables use the TALLY_ prefix, for example
// TALLY_SERVER_TOKEN.
func LoadConfig(file string) (*Config, error) {
	cfg := DefaultConfig()
	defaults := cfg.Collections
	cfg.Collections = nil

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	// Environment variable overrides
	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if len(cfg.Collections) == 0 {
		cfg.Collections = defaults
	}
	for name, coll := range cfg.Collections {
		coll.Name = name
		cfg.Collections[name] = coll
	}

	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.url", cfg.Server.URL)
	v.SetDefault("server.token", cfg.Server.Token)
	v.SetDefault("server.timeout", cfg.Server.Timeout)
	v.SetDefault("server.max_retries", cfg.Server.MaxRetries)
	v.SetDefault("server.retry_delay", cfg.Server.RetryDelay)

	v.SetDefault("loader.page_size", cfg.Loader.PageSize)
	v.SetDefault("loader.batch_delay", cfg.Loader.BatchDelay)
	v.SetDefault("loader.bulk_delay", cfg.Loader.BulkDelay)
	v.SetDefault("loader.retries", cfg.Loader.Retries)

	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("cache.disabled", cfg.Cache.Disabled)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)

	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for values the loader cannot work with.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Collection returns the named collection.
func (c *Config) Collection(name string) (backend.Collection, bool) {
	coll, ok := c.Collections[name]
	return coll, ok
}

// CollectionNames returns the configured collection names, sorted.
func (c *Config) CollectionNames() []string {
	names := make([]string, 0, len(c.Collections))
	for name := range c.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoaderSettings converts the loader section for loader.New.
func (c *Config) LoaderSettings() loader.Config {
	return loader.Config{
		PageSize:   c.Loader.PageSize,
		BatchDelay: c.Loader.BatchDelay,
		BulkDelay:  c.Loader.BulkDelay,
	}
}

// StoreDir returns the snapshot directory, or "" for memory-only mode.
func (c *Config) StoreDir() string {
	if c.Cache.Disabled {
		return ""
	}
	return c.Cache.Dir
}

// SaveConfig writes cfg to file, or to config.yaml in the user config
// directory when file is empty.
func SaveConfig(cfg *Config, file string) error {
	if file == "" {
		file = DefaultConfigFile()
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()

	// Set fields individually to ensure correct key names (snake_case)
	v.Set("server.url", cfg.Server.URL)
	v.Set("server.token", cfg.Server.Token)
	v.Set("server.timeout", cfg.Server.Timeout.String())
	v.Set("server.max_retries", cfg.Server.MaxRetries)
	v.Set("server.retry_delay", cfg.Server.RetryDelay.String())

	v.Set("loader.page_size", cfg.Loader.PageSize)
	v.Set("loader.batch_delay", cfg.Loader.BatchDelay.String())
	v.Set("loader.bulk_delay", cfg.Loader.BulkDelay.String())
	v.Set("loader.retries", cfg.Loader.Retries)

	for name, coll := range cfg.Collections {
		keys := make([]map[string]any, 0, len(coll.Keys))
		for _, k := range coll.Keys {
			keys = append(keys, map[string]any{"name": k.Name, "fields": k.Fields})
		}
		v.Set("collections."+name+".path", coll.Path)
		v.Set("collections."+name+".keys", keys)
		v.Set("collections."+name+".label", coll.Label)
	}

	v.Set("cache.dir", cfg.Cache.Dir)
	v.Set("cache.disabled", cfg.Cache.Disabled)

	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)

	v.Set("metrics.addr", cfg.Metrics.Addr)

	if err := v.WriteConfigAs(file); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ClearCache removes all stored snapshots under dir
func ClearCache(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// DefaultConfigFile returns the config file LoadConfig reads first
func DefaultConfigFile() string {
	return filepath.Join(defaultConfigPath(), "config.yaml")
}
