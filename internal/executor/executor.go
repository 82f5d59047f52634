// Package executor runs snippet code in an isolated environment.
//
// The web layer only sees the Executor interface; executor/docker is the one
// implementation, backed by a pool of pre-warmed containers.
package executor

import (
	"context"
	"errors"
	"strings"
	"time"
)

// TimeoutExitCode is reported when a run is cut off, matching coreutils timeout(1).
const TimeoutExitCode = 124

// ErrUnsupportedLanguage is returned when asked to run a language the
// executor has no runtime for.
var ErrUnsupportedLanguage = errors.New("executor: unsupported language")

// ExecutionRequest is one snippet run.
type ExecutionRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// ExecutionResult represents the output and status of the code execution.
type ExecutionResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timedOut"`
}

// Executor represents the core interface for running code in an isolated environment.
type Executor interface {
	// Supports reports whether this executor can run the given snippet language.
	Supports(language string) bool
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// NormalizeLanguage lower-cases and trims a language name so "Python " and
// "python" compare equal.
func NormalizeLanguage(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}

// TruncateOutput caps s at max bytes, marking the cut. A max of zero or
// less disables the cap.
func TruncateOutput(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n... output truncated ...\n"
}
