package config

import (
	"os"
	"time"
	"wserver/src/server/scheduler"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Transport string

const (
	TCPTransport  Transport = "tcp"
	QUICTransport Transport = "quic"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the server configuration.
type Config struct {
	// Directory the files are served from.
	RootDir string

	Host string
	Port int

	// Number of worker goroutines.
	Threads int

	// Capacity of the work queue.
	Buffers int

	// Dequeue ordering of the work queue.
	Policy scheduler.QueuePolicy

	Transport Transport

	LogLevel logrus.Level

	// Optional per-request CSV. Empty disables it. A work_conserving.csv is
	// written next to it every MetricsInterval.
	MetricsPath     string
	MetricsInterval time.Duration

	// Read deadline applied while resolving a size hint. Zero means none.
	ProbeTimeout time.Duration
}

// DefaultConfig returns the classic defaults: one worker,
// a single buffer slot, FIFO, port 10000, serving the current directory.
func DefaultConfig() Config {
	return Config{
		RootDir:      ".",
		Host:         "",
		Port:         10000,
		Threads:      1,
		Buffers:      1,
		Policy:       scheduler.FifoQueue,
		Transport:    TCPTransport,
		LogLevel:     logrus.InfoLevel,
		ProbeTimeout: 5 * time.Second,

		MetricsInterval: time.Second,
	}
}

// Validate checks the configuration. Every error wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Threads < 1 {
		return errors.Wrapf(ErrInvalidConfig, "threads must be at least 1, got %d", c.Threads)
	}

	if c.Buffers < 1 {
		return errors.Wrapf(ErrInvalidConfig, "buffers must be at least 1, got %d", c.Buffers)
	}

	if _, err := scheduler.ParsePolicy(string(c.Policy)); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}

	if c.Port < 0 || c.Port > 65535 {
		return errors.Wrapf(ErrInvalidConfig, "port must be between 0 and 65535, got %d", c.Port)
	}

	if c.Transport != TCPTransport && c.Transport != QUICTransport {
		return errors.Wrapf(ErrInvalidConfig, "transport must be %q or %q, got %q",
			TCPTransport, QUICTransport, c.Transport)
	}

	if c.ProbeTimeout < 0 {
		return errors.Wrapf(ErrInvalidConfig, "probe timeout must not be negative, got %v", c.ProbeTimeout)
	}

	if c.MetricsPath != "" && c.MetricsInterval <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "metrics interval must be positive, got %v", c.MetricsInterval)
	}

	info, err := os.Stat(c.RootDir)
	if err != nil {
		return errors.Wrapf(ErrInvalidConfig, "root dir: %v", err)
	}
	if !info.IsDir() {
		return errors.Wrapf(ErrInvalidConfig, "root dir %q is not a directory", c.RootDir)
	}

	return nil
}
