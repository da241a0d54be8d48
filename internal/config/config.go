// Package config provides unified configuration for the studio explorer services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Source types understood by the application.
const (
	SourceMemory = "memory"
	SourceSQLite = "sqlite"
	SourceLocal  = "local"
	SourceS3     = "s3"
	SourceGRPC   = "grpc"
)

// Config holds the unified configuration for the studio explorer.
type Config struct {
	// DataDir is the base directory for local data files
	DataDir string `json:"data_dir" yaml:"data_dir" env:"DATA_DIR"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http" envPrefix:"HTTP_"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc" envPrefix:"GRPC_"`

	// Cache configuration for the fetch orchestrator
	Cache CacheConfig `json:"cache" yaml:"cache" envPrefix:"CACHE_"`

	// Source configuration for the backing row store
	Source SourceConfig `json:"source" yaml:"source" envPrefix:"SOURCE_"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log" envPrefix:"LOG_"`

	// Views are the named explorer views served by the application
	Views []ViewConfig `json:"views" yaml:"views"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr" env:"ADDR"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr" env:"ADDR"`

	// Enabled controls whether the row source is also served over gRPC
	Enabled bool `json:"enabled" yaml:"enabled" env:"ENABLED"`
}

// CacheConfig holds fetch cache configuration.
type CacheConfig struct {
	// TTL is how long a fetched batch is served from cache
	TTL time.Duration `json:"ttl" yaml:"ttl" env:"TTL"`

	// MaxEntries bounds the number of cached batches
	MaxEntries int `json:"max_entries" yaml:"max_entries" env:"MAX_ENTRIES"`

	// KeepPartialRows keeps rows of successful reads when a batch partially fails
	KeepPartialRows bool `json:"keep_partial_rows" yaml:"keep_partial_rows" env:"KEEP_PARTIAL_ROWS"`
}

// jsonDuration decodes a JSON duration written either as a string accepted by
// time.ParseDuration ("5m") or as integer nanoseconds.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = jsonDuration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string like \"5m\" or integer nanoseconds: %s", data)
	}
	*d = jsonDuration(n)
	return nil
}

// UnmarshalJSON accepts durations as strings or nanoseconds.
func (c *HTTPConfig) UnmarshalJSON(data []byte) error {
	type plain HTTPConfig
	aux := struct {
		*plain
		ReadTimeout  jsonDuration `json:"read_timeout"`
		WriteTimeout jsonDuration `json:"write_timeout"`
		IdleTimeout  jsonDuration `json:"idle_timeout"`
	}{
		plain:        (*plain)(c),
		ReadTimeout:  jsonDuration(c.ReadTimeout),
		WriteTimeout: jsonDuration(c.WriteTimeout),
		IdleTimeout:  jsonDuration(c.IdleTimeout),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.ReadTimeout = time.Duration(aux.ReadTimeout)
	c.WriteTimeout = time.Duration(aux.WriteTimeout)
	c.IdleTimeout = time.Duration(aux.IdleTimeout)
	return nil
}

// UnmarshalJSON accepts the TTL as a string or nanoseconds.
func (c *CacheConfig) UnmarshalJSON(data []byte) error {
	type plain CacheConfig
	aux := struct {
		*plain
		TTL jsonDuration `json:"ttl"`
	}{
		plain: (*plain)(c),
		TTL:   jsonDuration(c.TTL),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.TTL = time.Duration(aux.TTL)
	return nil
}

// SourceConfig holds backing store configuration.
type SourceConfig struct {
	// Type is the source type: memory, sqlite, local, s3, grpc
	Type string `json:"type" yaml:"type" env:"TYPE"`

	// Path is the SQLite database path, the local object directory, or the
	// JSON seed file for the memory source
	Path string `json:"path" yaml:"path" env:"PATH"`

	// Prefix is prepended to object keys (local and s3 types)
	Prefix string `json:"prefix" yaml:"prefix" env:"PREFIX"`

	// Target is the gRPC row service address (grpc type)
	Target string `json:"target" yaml:"target" env:"TARGET"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3" envPrefix:"S3_"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket" env:"BUCKET"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region" env:"REGION"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"ENDPOINT"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style" env:"USE_PATH_STYLE"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level" env:"LEVEL"`

	// Development switches to the human-readable console encoder
	Development bool `json:"development" yaml:"development" env:"DEVELOPMENT"`
}

// ViewConfig declares one named explorer view: the batch of collections it
// loads together and how each collection is explored.
type ViewConfig struct {
	Name        string             `json:"name" yaml:"name"`
	PageSize    int                `json:"page_size" yaml:"page_size"`
	Collections []CollectionConfig `json:"collections" yaml:"collections"`
}

// CollectionConfig declares one read of a view's batch and its explorer schema.
type CollectionConfig struct {
	Name        string         `json:"name" yaml:"name"`
	Table       string         `json:"table" yaml:"table"`
	Fields      []string       `json:"fields" yaml:"fields"`
	ListFields  []string       `json:"list_fields" yaml:"list_fields"`
	Limit       int            `json:"limit" yaml:"limit"`
	SearchField string         `json:"search_field" yaml:"search_field"`
	Columns     []ColumnConfig `json:"columns" yaml:"columns"`
	Filters     []FilterConfig `json:"filters" yaml:"filters"`
}

// ColumnConfig declares a table column.
type ColumnConfig struct {
	Key      string `json:"key" yaml:"key"`
	Label    string `json:"label" yaml:"label"`
	Kind     string `json:"kind" yaml:"kind"`
	Sortable bool   `json:"sortable" yaml:"sortable"`
}

// FilterConfig declares a single-select filter control.
type FilterConfig struct {
	Key     string         `json:"key" yaml:"key"`
	Label   string         `json:"label" yaml:"label"`
	Kind    string         `json:"kind" yaml:"kind"`
	Options []OptionConfig `json:"options" yaml:"options"`
}

// OptionConfig is one selectable filter value.
type OptionConfig struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/studio",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: false,
		},
		Cache: CacheConfig{
			TTL:        5 * time.Minute,
			MaxEntries: 64,
		},
		Source: SourceConfig{
			Type: SourceMemory,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/studio"
	}

	switch c.Source.Type {
	case SourceSQLite:
		if c.Source.Path == "" {
			c.Source.Path = filepath.Join(c.DataDir, "studio.db")
		}
	case SourceLocal:
		if c.Source.Path == "" {
			c.Source.Path = filepath.Join(c.DataDir, "objects")
		}
	}

	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 64
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case SourceMemory, SourceSQLite, SourceLocal:
	case SourceS3:
		if c.Source.S3.Bucket == "" {
			return fmt.Errorf("source.s3.bucket is required when source type is s3")
		}
	case SourceGRPC:
		if c.Source.Target == "" {
			return fmt.Errorf("source.target is required when source type is grpc")
		}
	default:
		return fmt.Errorf("invalid source type: %s (must be memory, sqlite, local, s3, or grpc)", c.Source.Type)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
	}

	seen := make(map[string]bool, len(c.Views))
	for _, v := range c.Views {
		if v.Name == "" {
			return fmt.Errorf("view name is required")
		}
		if seen[v.Name] {
			return fmt.Errorf("duplicate view name: %s", v.Name)
		}
		seen[v.Name] = true
		if len(v.Collections) == 0 {
			return fmt.Errorf("view %s declares no collections", v.Name)
		}
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overlays environment variables onto cfg.
// Environment variables use the STUDIO_ prefix, e.g. STUDIO_HTTP_ADDR or
// STUDIO_SOURCE_S3_BUCKET. Unset variables leave cfg untouched.
func LoadFromEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "STUDIO_"}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// EnsureDirectories creates the directories local sources write into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Source.Type == SourceLocal {
		dirs = append(dirs, c.Source.Path)
	}
	if c.Source.Type == SourceSQLite {
		dirs = append(dirs, filepath.Dir(c.Source.Path))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
