// Package config loads linkage settings from a TOML file.
//
// The file lives at $XDG_CONFIG_HOME/linkage/config.toml (or
// ~/.config/linkage/config.toml) unless a path is given explicitly. Every
// key is optional; [Default] supplies the rest. Command-line flags override
// the loaded values.
//
//	[solver]
//	accurate = true
//	backend = "lm"
//
//	[sweep]
//	step = 5
//	solver = "accurate-fallback"
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
//	ttl = "24h"
//
//	[store]
//	backend = "mongo"
//	uri = "mongodb://localhost:27017"
//	database = "linkage"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/linkage/pkg/sweep"
)

// AppName names the configuration, cache and data directories.
const AppName = "linkage"

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Store backends.
const (
	StoreFile  = "file"
	StoreMongo = "mongo"
)

// Config is the full configuration.
type Config struct {
	Solver Solver        `toml:"solver"`
	Sweep  sweep.Options `toml:"sweep"`
	Cache  Cache         `toml:"cache"`
	Store  Store         `toml:"store"`
	Server Server        `toml:"server"`
}

// Solver configures single solves.
type Solver struct {
	Accurate       bool   `toml:"accurate"`
	Backend        string `toml:"backend"`
	Iterations     int    `toml:"iterations"`
	MaxEvaluations int    `toml:"max_evaluations"`
}

// Cache selects and configures the result cache.
type Cache struct {
	Backend       string   `toml:"backend"`
	Dir           string   `toml:"dir"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	TTL           Duration `toml:"ttl"`
}

// Store selects and configures the run store.
type Store struct {
	Backend    string `toml:"backend"`
	Dir        string `toml:"dir"`
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `toml:"addr"`
}

// Duration is a time.Duration decoded from a TOML string such as "24h".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Solver: Solver{Backend: sweep.DefaultBackend},
		Sweep: sweep.Options{
			End:     360,
			Step:    5,
			Solver:  sweep.DefaultSolver,
			Backend: sweep.DefaultBackend,
		},
		Cache: Cache{
			Backend:   CacheFile,
			RedisAddr: "localhost:6379",
		},
		Store: Store{
			Backend:  StoreFile,
			Database: AppName,
		},
		Server: Server{Addr: ":8080"},
	}
}

// Load reads path over the defaults. An empty path reads the default
// location, where a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks backend names and the sweep options.
func (c Config) Validate() error {
	switch c.Cache.Backend {
	case CacheFile, CacheRedis, CacheNone:
	default:
		return fmt.Errorf("cache backend %q: want %s, %s or %s", c.Cache.Backend, CacheFile, CacheRedis, CacheNone)
	}
	switch c.Store.Backend {
	case StoreFile, StoreMongo:
	default:
		return fmt.Errorf("store backend %q: want %s or %s", c.Store.Backend, StoreFile, StoreMongo)
	}
	if c.Store.Backend == StoreMongo && c.Store.URI == "" {
		return fmt.Errorf("store backend mongo needs a uri")
	}
	return c.Sweep.Validate()
}

// DefaultPath returns the default configuration file path.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName, "config.toml"), nil
}

// CacheDir returns the configured cache directory or the XDG default
// (~/.cache/linkage).
func (c Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", AppName), nil
}

// DataDir returns the configured run store directory or the XDG default
// (~/.local/share/linkage).
func (c Config) DataDir() (string, error) {
	if c.Store.Dir != "" {
		return c.Store.Dir, nil
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", AppName), nil
}
