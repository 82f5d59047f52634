package docker

import (
	"errors"
	"time"
)

// Config holds the configuration for one sandboxed runtime.
type Config struct {
	// Language is the snippet language this runtime serves, e.g. "python".
	Language string
	// Image is the Docker image to use for execution.
	Image string
	// Command is the interpreter invocation; the snippet body is appended as
	// the last argument.
	Command []string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// Timeout is the maximum amount of time the execution can take.
	Timeout time.Duration
	// PoolSize is the number of pre-warmed containers to maintain.
	PoolSize int
	// MaxOutputBytes caps stdout and stderr separately.
	MaxOutputBytes int
}

// DefaultConfig provides sensible defaults for a Python sandbox.
func DefaultConfig() Config {
	return Config{
		Language:       "python",
		Image:          "python:3.12-alpine",
		Command:        []string{"python", "-c"},
		MemoryLimit:    128 * 1024 * 1024,
		CPULimit:       0.5,
		Timeout:        5 * time.Second,
		PoolSize:       3,
		MaxOutputBytes: 64 * 1024,
	}
}

// Validate reports the first setting that would make the runtime unusable.
func (c Config) Validate() error {
	switch {
	case c.Language == "":
		return errors.New("docker: language is required")
	case c.Image == "":
		return errors.New("docker: image is required")
	case len(c.Command) == 0:
		return errors.New("docker: command is required")
	case c.Timeout <= 0:
		return errors.New("docker: timeout must be positive")
	case c.PoolSize <= 0:
		return errors.New("docker: pool size must be positive")
	}
	return nil
}
