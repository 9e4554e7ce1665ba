package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Tyrowin/teamsync/internal/api"
	"github.com/Tyrowin/teamsync/internal/auth"
	"github.com/Tyrowin/teamsync/internal/server"
	"github.com/Tyrowin/teamsync/internal/workspace"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "teamsync:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("teamsync", pflag.ContinueOnError)
	configFile := flags.String("config", "", "path to a YAML config file")
	seedFile := flags.String("seed", "", "path to a YAML file of users, projects and tasks to load at startup")
	issueFor := flags.String("issue-token", "", "print a 24h token for the given identity and exit")
	flags.String("port", "", "listen address, e.g. :8080")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := server.LoadConfig(*configFile, flags)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		return err
	}
	verifier := auth.NewHMACVerifier(cfg.Auth.JWTSecret)

	if *issueFor != "" {
		token, err := verifier.Issue(*issueFor, 24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	store := workspace.NewMemoryStore()
	if *seedFile != "" {
		if err := workspace.LoadSeedFile(store, *seedFile); err != nil {
			return err
		}
		logger.Info("seed loaded", zap.String("file", *seedFile))
	}

	var membership server.Membership = store
	var opts []workspace.Option
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable; membership lookups fall back to the store",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		cancel()

		cache := workspace.NewCachedMembership(store, rdb, cfg.Redis.TTL, logger)
		membership = cache
		opts = append(opts, workspace.WithCache(cache))
	}

	hub := server.NewHub(cfg, membership, logger)
	go hub.Run()

	gate := auth.NewGate(verifier, store)
	svc := workspace.NewService(store, hub, logger, opts...)
	mux := server.SetupRoutes(hub, gate, api.NewHandler(gate, svc, logger))
	httpServer := server.CreateServer(cfg.Port, mux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.StartServer(httpServer, logger) }()

	logger.Info("teamsync started",
		zap.String("addr", cfg.Port),
		zap.String("fanoutMode", cfg.Fanout.Mode),
		zap.Bool("redisCache", cfg.Redis.Addr != ""))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownErr := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger)
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("hub shutdown incomplete", zap.Error(err))
	}
	return shutdownErr
}

func newLogger(cfg server.LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
