package service

import (
	"os"

	"github.com/himanishpuri/acousticprint/internal/fingerprint"
	"github.com/himanishpuri/acousticprint/internal/storage"
	"github.com/himanishpuri/acousticprint/pkg/logger"
)

// Logger is the logging surface the service needs. *logger.Logger satisfies it.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type Config struct {
	Storage      storage.Storage
	Fingerprint  fingerprint.Config
	Logger       Logger
	Workers      int // per batch stage, 0 = NumCPU
	FrameWorkers int // per track, 0 = GOMAXPROCS
	QueueSize    int
	TempDir      string
}

type Option func(*Config)

// WithStorage sets the catalog. The service takes ownership and closes it.
func WithStorage(s storage.Storage) Option {
	return func(c *Config) {
		c.Storage = s
	}
}

func WithFingerprintConfig(cfg fingerprint.Config) Option {
	return func(c *Config) {
		c.Fingerprint = cfg
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

func WithFrameWorkers(n int) Option {
	return func(c *Config) {
		c.FrameWorkers = n
	}
}

func WithQueueSize(n int) Option {
	return func(c *Config) {
		c.QueueSize = n
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func defaultConfig() *Config {
	return &Config{
		Fingerprint: fingerprint.DefaultConfig(),
		Logger:      logger.GetLogger(),
		QueueSize:   8,
		TempDir:     os.TempDir(),
	}
}
