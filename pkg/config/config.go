// Package config loads dataflow settings from TOML or YAML files.
//
// The format is chosen by file extension (.toml, .yaml, .yml). Unset fields
// take the values of [Default], and the result is validated before it is
// returned:
//
//	cfg, err := config.Load("dataflow.toml")
//
// A pipeline file describes a network to build: processors with their
// parameters and the connections between their ports. See [Pipeline].
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/dataflow/pkg/errors"
)

// Config holds process-wide settings.
type Config struct {
	Log    LogConfig    `toml:"log" yaml:"log"`
	Pool   PoolConfig   `toml:"pool" yaml:"pool"`
	Cache  CacheConfig  `toml:"cache" yaml:"cache"`
	GPU    GPUConfig    `toml:"gpu" yaml:"gpu"`
	Server ServerConfig `toml:"server" yaml:"server"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `toml:"level" yaml:"level" validate:"oneof=debug info warn error"`
}

// PoolConfig sizes the background worker pool. Zero workers means one per CPU.
type PoolConfig struct {
	Workers int `toml:"workers" yaml:"workers" validate:"gte=0,lte=1024"`
}

// CacheConfig selects the blob store behind the disk backend.
type CacheConfig struct {
	Backend string        `toml:"backend" yaml:"backend" validate:"oneof=none file redis"`
	Dir     string        `toml:"dir" yaml:"dir" validate:"required_if=Backend file"`
	TTL     Duration      `toml:"ttl" yaml:"ttl"`
	Redis   RedisSettings `toml:"redis" yaml:"redis"`
}

// RedisSettings configures the redis cache.
type RedisSettings struct {
	Addr     string `toml:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
	Password string `toml:"password" yaml:"password"`
	DB       int    `toml:"db" yaml:"db" validate:"gte=0,lte=15"`
	Prefix   string `toml:"prefix" yaml:"prefix"`

	// Retries and RetryDelay tune reconnect attempts; zero keeps the cache
	// defaults.
	Retries    int      `toml:"retries" yaml:"retries" validate:"gte=0,lte=10"`
	RetryDelay Duration `toml:"retry_delay" yaml:"retry_delay" validate:"gte=0"`
}

// GPUConfig configures the device backend.
type GPUConfig struct {
	Enabled     bool  `toml:"enabled" yaml:"enabled"`
	MemoryLimit int64 `toml:"memory_limit" yaml:"memory_limit" validate:"gte=0"`
}

// ServerConfig configures the inspection server.
type ServerConfig struct {
	Addr            string   `toml:"addr" yaml:"addr" validate:"hostname_port"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns the settings used for fields a file leaves unset.
func Default() Config {
	return Config{
		Log:   LogConfig{Level: "info"},
		Cache: CacheConfig{Backend: "file", Dir: defaultCacheDir()},
		GPU:   GPUConfig{Enabled: true},
		Server: ServerConfig{
			Addr:            "localhost:8080",
			ShutdownTimeout: Duration(5 * time.Second),
		},
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "dataflow")
	}
	return filepath.Join(os.TempDir(), "dataflow")
}

// Load reads, defaults and validates a config file.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := decode(path, data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "cache.redis.addr is required for the redis backend")
	}
	return validateStruct(c)
}

// decode unmarshals data into v according to the extension of path. Unknown
// keys are rejected in both formats.
func decode(path string, data []byte, v any) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return errors.New(errors.ErrCodeInvalidConfig, "%s: unknown key %q", path, undec[0].String())
		}
		return nil
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
		}
		return nil
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unsupported config format %q", ext)
	}
}
