package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Pool keeps a fixed number of idle containers running so a snippet run
// only pays for `docker exec`, not for container start-up.
//
// Containers are single-use: Execute removes the one it took, and the
// manager goroutine starts a replacement.
type Pool struct {
	create     func(ctx context.Context) (string, error)
	remove     func(id string)
	logger     *slog.Logger
	containers chan string
	done       chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
	backoff    time.Duration
}

// NewPool builds a pool of containers for cfg on cli.
func NewPool(cli *client.Client, cfg Config, logger *slog.Logger) *Pool {
	p := newPool(cfg.PoolSize, logger, nil, nil)
	p.create = func(ctx context.Context) (string, error) {
		return createContainer(ctx, cli, cfg)
	}
	p.remove = func(id string) {
		removeContainer(cli, id)
	}
	return p
}

func newPool(size int, logger *slog.Logger, create func(context.Context) (string, error), remove func(string)) *Pool {
	return &Pool{
		create:     create,
		remove:     remove,
		logger:     logger,
		containers: make(chan string, size),
		done:       make(chan struct{}),
		backoff:    time.Second,
	}
}

// Start begins filling the pool in the background. Calling it twice is harmless.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting container pool", slog.Int("poolSize", cap(p.containers)))
		p.wg.Add(1)
		go p.manager()
	})
}

// Stop shuts down the manager and removes every idle container.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("shutting down container pool")
		close(p.done)
		p.wg.Wait()

		for {
			select {
			case id := <-p.containers:
				p.remove(id)
			default:
				return
			}
		}
	})
}

// Acquire returns a ready container ID, blocking until one is available,
// the context ends or the pool is stopped.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	select {
	case id := <-p.containers:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.done:
		return "", fmt.Errorf("docker: pool stopped")
	}
}

// Release removes a used container.
func (p *Pool) Release(id string) {
	p.remove(id)
}

// Idle reports how many containers are waiting.
func (p *Pool) Idle() int {
	return len(p.containers)
}

// manager keeps the pool at capacity until Stop.
func (p *Pool) manager() {
	defer p.wg.Done()

	for {
		if len(p.containers) == cap(p.containers) {
			if !p.wait(100 * time.Millisecond) {
				return
			}
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		id, err := p.create(ctx)
		cancel()
		if err != nil {
			p.logger.Error("failed to create pre-warmed container", slog.String("error", err.Error()))
			if !p.wait(p.backoff) {
				return
			}
			continue
		}

		select {
		case p.containers <- id:
		case <-p.done:
			p.remove(id)
			return
		}
	}
}

// wait sleeps for d and reports false if the pool was stopped meanwhile.
func (p *Pool) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.done:
		return false
	case <-t.C:
		return true
	}
}

// createContainer starts a network-less, read-only container that idles
// until a run execs into it.
func createContainer(ctx context.Context, cli *client.Client, cfg Config) (string, error) {
	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   cfg.MemoryLimit,
			NanoCPUs: int64(cfg.CPULimit * 1e9),
		},
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,size=16m"},
	}

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image: cfg.Image,
		Cmd:   []string{"sleep", "infinity"},
		User:  "nobody",
		Labels: map[string]string{
			"snippetbox.runner": cfg.Language,
		},
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("ContainerCreate failed: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		removeContainer(cli, resp.ID)
		return "", fmt.Errorf("ContainerStart failed: %w", err)
	}

	return resp.ID, nil
}

// removeContainer force removes a container by ID.
func removeContainer(cli *client.Client, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}
