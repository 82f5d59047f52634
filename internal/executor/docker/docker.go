package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/snippetbox/internal/executor"
)

// Executor implements executor.Executor for one language using Docker.
type Executor struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

// New connects to the Docker daemon (DOCKER_HOST etc. from the environment),
// pulls the image and starts the container pool.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Language = executor.NormalizeLanguage(cfg.Language)

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	logger.Info("ensuring docker image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(pullCtx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	// Drain to block until the pull is complete.
	_, _ = io.Copy(io.Discard, reader)
	reader.Close()
	logger.Info("docker image is ready", slog.String("image", cfg.Image))

	e := &Executor{
		cli:    cli,
		config: cfg,
		logger: logger,
		pool:   NewPool(cli, cfg, logger),
	}
	e.pool.Start()

	return e, nil
}

// Close shuts down the executor pool and docker client.
func (e *Executor) Close() error {
	e.pool.Stop()
	return e.cli.Close()
}

// Supports reports whether language is the configured runtime's language.
func (e *Executor) Supports(language string) bool {
	return executor.NormalizeLanguage(language) == e.config.Language
}

// Execute runs the snippet in a pooled container.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	if !e.Supports(req.Language) {
		return nil, fmt.Errorf("%w: %q", executor.ErrUnsupportedLanguage, req.Language)
	}
	start := time.Now()

	containerID, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container from pool: %w", err)
	}
	defer e.pool.Release(containerID)

	executeCtx, executeCancel := context.WithTimeout(ctx, e.config.Timeout)
	defer executeCancel()

	cmd := append(append([]string{}, e.config.Command...), req.Code)
	execResp, err := e.cli.ContainerExecCreate(executeCtx, containerID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := e.cli.ContainerExecAttach(executeCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer

	done := make(chan struct{})
	go func() {
		// Docker multiplexes both streams on one connection.
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		close(done)
	}()

	result := &executor.ExecutionResult{}

	select {
	case <-done:
		inspectResp, err := e.cli.ContainerExecInspect(ctx, execResp.ID)
		if err == nil {
			result.ExitCode = inspectResp.ExitCode
		}
	case <-executeCtx.Done():
		// Closing the hijacked connection unblocks StdCopy.
		attachResp.Close()
		<-done
		result.ExitCode = executor.TimeoutExitCode
		result.TimedOut = true
		stderr.WriteString("\nExecution timed out.\n")
	}

	result.Stdout = executor.TruncateOutput(stdout.String(), e.config.MaxOutputBytes)
	result.Stderr = executor.TruncateOutput(stderr.String(), e.config.MaxOutputBytes)
	result.Duration = time.Since(start)

	e.logger.Debug("snippet executed",
		slog.String("language", e.config.Language),
		slog.Int("exitCode", result.ExitCode),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}
