// Package config loads the catalog configuration: a YAML file merged over
// defaults, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/himanishpuri/acousticprint/internal/fingerprint"
	"github.com/himanishpuri/acousticprint/internal/storage"
	"github.com/himanishpuri/acousticprint/pkg/logger"
)

// Environment variables that override file settings.
const (
	EnvDBPath     = "ACOUSTIC_DB_PATH"
	EnvDBDriver   = "ACOUSTIC_DB_DRIVER"
	EnvDBDSN      = "ACOUSTIC_DB_DSN"
	EnvTempDir    = "ACOUSTIC_TEMP_DIR"
	EnvWorkers    = "ACOUSTIC_WORKERS"
	EnvServerAddr = "ACOUSTIC_SERVER_ADDR"
	EnvLogLevel   = "LOG_LEVEL"
)

type Config struct {
	Database    DatabaseConfig     `yaml:"database"`
	Fingerprint fingerprint.Config `yaml:"fingerprint"`
	Indexer     IndexerConfig      `yaml:"indexer"`
	Server      ServerConfig       `yaml:"server"`
	Log         LogConfig          `yaml:"log"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres or badger
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// Options converts the section into storage options.
func (d DatabaseConfig) Options() storage.Options {
	return storage.Options{Driver: d.Driver, Path: d.Path, DSN: d.DSN}
}

type IndexerConfig struct {
	Workers      int    `yaml:"workers"`       // decode and fingerprint workers per stage, 0 = NumCPU
	FrameWorkers int    `yaml:"frame_workers"` // frames analysed in parallel per track, 0 = GOMAXPROCS
	QueueSize    int    `yaml:"queue_size"`    // buffered items between stages
	TempDir      string `yaml:"temp_dir"`
}

type ServerConfig struct {
	Addr          string `yaml:"addr"`
	MaxUploadMB   int64  `yaml:"max_upload_mb"`
	AllowedOrigin string `yaml:"allowed_origin"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

// Error reports a configuration problem. It is always fatal for the run.
type Error struct {
	Source string // file path, environment variable or setting name
	Err    error
}

func (e *Error) Error() string { return fmt.Sprintf("config %s: %v", e.Source, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: storage.DriverSQLite,
			Path:   storage.DefaultDBFile,
		},
		Fingerprint: fingerprint.DefaultConfig(),
		Indexer: IndexerConfig{
			QueueSize: 8,
			TempDir:   os.TempDir(),
		},
		Server: ServerConfig{
			Addr:          ":8080",
			MaxUploadMB:   100,
			AllowedOrigin: "*",
		},
		Log: LogConfig{Level: "INFO", Color: true},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &Error{Source: path, Err: err}
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return &Error{Source: path, Err: err}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDBDriver); ok && v != "" {
		c.Database.Driver = v
	}
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup(EnvDBDSN); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := lookup(EnvTempDir); ok && v != "" {
		c.Indexer.TempDir = v
	}
	if v, ok := lookup(EnvServerAddr); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Source: EnvWorkers, Err: err}
		}
		c.Indexer.Workers = n
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Fingerprint.Validate(); err != nil {
		return &Error{Source: "fingerprint", Err: err}
	}
	switch c.Database.Driver {
	case storage.DriverSQLite, storage.DriverBadger:
	case storage.DriverPostgres:
		if c.Database.DSN == "" {
			return &Error{Source: "database.dsn", Err: errors.New("required for the postgres driver")}
		}
	default:
		return &Error{Source: "database.driver", Err: fmt.Errorf("unknown driver %q", c.Database.Driver)}
	}
	if c.Indexer.Workers < 0 || c.Indexer.FrameWorkers < 0 || c.Indexer.QueueSize < 0 {
		return &Error{Source: "indexer", Err: errors.New("workers and queue_size must not be negative")}
	}
	if _, ok := logger.ParseLevel(c.Log.Level); !ok {
		return &Error{Source: "log.level", Err: fmt.Errorf("unknown level %q", c.Log.Level)}
	}
	return nil
}

// LogLevel returns the configured level.
func (c *Config) LogLevel() logger.LogLevel {
	lvl, _ := logger.ParseLevel(c.Log.Level)
	return lvl
}
