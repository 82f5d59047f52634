// Package main is the entry point for the snippetbox server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
//  1. Read configuration (.env, optional YAML file, environment)
//  2. Open the resources that may fail at startup (database, Redis, Docker)
//  3. Hand them to the server and start it
//
// All actual logic lives in internal/ packages.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/snippetbox/internal/config"
	"github.com/sakif/snippetbox/internal/executor"
	"github.com/sakif/snippetbox/internal/executor/docker"
	redisRepo "github.com/sakif/snippetbox/internal/repository/redis"
	sqliteRepo "github.com/sakif/snippetbox/internal/repository/sqlite"
	"github.com/sakif/snippetbox/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("snippetbox failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// === 1. ENVIRONMENT & CONFIGURATION ===
	// A .env file is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	level, _ := cfg.LogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if cfg.Session.Secret == "" {
		cfg.Session.Secret = randomSecret()
		logger.Warn("SESSION_SECRET not set; using a random secret, sessions will not survive a restart")
	}

	// ctx only bounds startup work: the Redis ping and the image pull.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	// === 2. DATABASE ===
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return err
	}

	opts := server.Options{DB: db}

	// === 3. SESSION STORE ===
	if cfg.Session.Store == "redis" {
		store, err := redisRepo.New(ctx, cfg.Session.RedisAddr, cfg.Session.RedisPassword, cfg.Session.RedisDB)
		if err != nil {
			db.Close()
			return err
		}
		opts.Sessions = store
		opts.Closers = append(opts.Closers, store)
		logger.Info("using redis session store", slog.String("addr", cfg.Session.RedisAddr))
	}

	// === 4. SNIPPET RUNNER ===
	// Optional: without Docker the server still starts, the Run button is hidden.
	if cfg.Runner.Enabled {
		if runner, closer := openRunner(ctx, cfg, logger); runner != nil {
			opts.Runner = runner
			opts.Closers = append(opts.Closers, closer)
		}
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, opts, logger)
	if err != nil {
		db.Close()
		for _, c := range opts.Closers {
			c.Close()
		}
		return err
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	return srv.Start()
}

func openRunner(ctx context.Context, cfg *config.Config, logger *slog.Logger) (executor.Executor, io.Closer) {
	dc := docker.DefaultConfig()
	dc.Language = cfg.Runner.Language
	dc.Image = cfg.Runner.Image
	dc.Timeout = cfg.Runner.Timeout
	dc.PoolSize = cfg.Runner.PoolSize
	dc.MemoryLimit = cfg.Runner.MemoryMB * 1024 * 1024
	dc.CPULimit = cfg.Runner.CPUs

	runner, err := docker.New(ctx, dc, logger)
	if err != nil {
		logger.Warn("snippet runner unavailable; running snippets is disabled",
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return runner, runner
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
