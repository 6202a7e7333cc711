// Package config loads toolkit settings from YAML and turns them into component options.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gozephyr/perfkit/errors"
	"github.com/gozephyr/perfkit/metrics"
	"github.com/gozephyr/perfkit/policy"
	"github.com/gozephyr/perfkit/ttl"
)

// Store backends
const (
	StoreNone      = ""
	StoreMemory    = "memory"
	StoreFreeCache = "freecache"
	StoreBigCache  = "bigcache"
)

// Config is the top-level toolkit configuration
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Pool    PoolConfig    `yaml:"pool"`
	Batch   BatchConfig   `yaml:"batch"`
	Stream  StreamConfig  `yaml:"stream"`
	Monitor MonitorConfig `yaml:"monitor"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// CacheConfig configures a MemoryCache
type CacheConfig struct {
	MaxSize         int           `yaml:"max_size"`
	Policy          policy.Kind   `yaml:"policy"`
	TTL             ttl.Config    `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Store           StoreConfig   `yaml:"store"`
}

// StoreConfig selects and sizes the cache's second tier
type StoreConfig struct {
	Type            string        `yaml:"type"`
	SizeMB          int           `yaml:"size_mb"`
	LifeWindow      time.Duration `yaml:"life_window"`
	CompressMinSize int           `yaml:"compress_min_size"`
}

// PoolConfig configures a ConnectionPool
type PoolConfig struct {
	MaxConnections int `yaml:"max_connections"`
}

// BatchConfig configures a BatchProcessor
type BatchConfig struct {
	Size    int           `yaml:"size"`
	Timeout time.Duration `yaml:"timeout"`
}

// StreamConfig configures the rate-shaping operators. Zero disables an operator.
type StreamConfig struct {
	ThrottlePeriod time.Duration `yaml:"throttle_period"`
	DebounceWindow time.Duration `yaml:"debounce_window"`
}

// MonitorConfig configures a Monitor
type MonitorConfig struct {
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

// MetricsConfig selects the metrics exporter
type MetricsConfig struct {
	Exporter metrics.ExporterType `yaml:"exporter"`
	Name     string               `yaml:"name"`
	Labels   map[string]string    `yaml:"labels"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	var c Config
	applyDefaults(&c)
	return &c
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*Config, error) {
	if filename == "" {
		return nil, errors.WrapError("LoadFromFile", nil, fmt.Errorf("%w: empty filename", errors.ErrInvalidConfig))
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read configuration file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromReader loads configuration from an io.Reader
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML, expanding ${VAR} references from the environment first.
// Missing values receive defaults and the result is validated.
func LoadFromBytes(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &c); err != nil {
		return nil, errors.WrapError("LoadFromBytes", nil, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err))
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveToWriter writes c as YAML
func SaveToWriter(c *Config, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	return enc.Close()
}

func applyDefaults(c *Config) {
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 1000
	}
	if c.Cache.Policy == "" {
		c.Cache.Policy = policy.KindLRU
	}
	if c.Cache.Store.Type != StoreNone && c.Cache.Store.SizeMB == 0 {
		c.Cache.Store.SizeMB = 32
	}
	if c.Cache.Store.Type == StoreBigCache && c.Cache.Store.LifeWindow == 0 {
		c.Cache.Store.LifeWindow = 10 * time.Minute
	}
	if c.Pool.MaxConnections == 0 {
		c.Pool.MaxConnections = 10
	}
	if c.Batch.Size == 0 {
		c.Batch.Size = 100
	}
	if c.Batch.Timeout == 0 {
		c.Batch.Timeout = time.Second
	}
	if c.Metrics.Exporter == "" {
		c.Metrics.Exporter = metrics.StandardExporter
	}
	if c.Metrics.Name == "" {
		c.Metrics.Name = "perfkit"
	}
}

// ValidationError describes one invalid setting
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Path, ve.Message)
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var problems []ValidationError
	add := func(path, msg string) {
		problems = append(problems, ValidationError{Path: path, Message: msg})
	}

	if c.Cache.MaxSize < 0 {
		add("cache.max_size", "must not be negative")
	}
	if _, err := policy.New[string](c.Cache.Policy); err != nil {
		add("cache.policy", fmt.Sprintf("unknown policy %q", c.Cache.Policy))
	}
	if err := ttl.Validate(c.Cache.TTL); err != nil {
		add("cache.ttl", "default_ttl and max_ttl must be non-negative and default_ttl <= max_ttl")
	}
	if c.Cache.CleanupInterval < 0 {
		add("cache.cleanup_interval", "must not be negative")
	}
	switch c.Cache.Store.Type {
	case StoreNone, StoreMemory, StoreFreeCache, StoreBigCache:
	default:
		add("cache.store.type", fmt.Sprintf("unknown store %q", c.Cache.Store.Type))
	}
	if c.Cache.Store.SizeMB < 0 {
		add("cache.store.size_mb", "must not be negative")
	}
	if c.Pool.MaxConnections < 0 {
		add("pool.max_connections", "must not be negative")
	}
	if c.Batch.Size < 0 {
		add("batch.size", "must not be negative")
	}
	if c.Batch.Timeout < 0 {
		add("batch.timeout", "must not be negative")
	}
	if c.Stream.ThrottlePeriod < 0 || c.Stream.DebounceWindow < 0 {
		add("stream", "durations must not be negative")
	}
	switch c.Metrics.Exporter {
	case metrics.StandardExporter, metrics.PrometheusExporterType:
	default:
		add("metrics.exporter", fmt.Sprintf("unknown exporter %q", c.Metrics.Exporter))
	}

	if len(problems) == 0 {
		return nil
	}
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.Error()
	}
	return errors.WrapError("Validate", nil, fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(msgs, "; ")))
}
