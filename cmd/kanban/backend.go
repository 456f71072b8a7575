package main

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kanban/config"
	"kanban/server"
	"kanban/storage"
)

func newBackendCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Serve the REST task collection the board stores its tasks in",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend, deduper, cleanup, err := openBackend(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer cleanup()
			if addr == "" {
				addr = a.cfg.BackendAddr
			}

			e := echo.New()
			e.HideBanner = true
			e.Use(middleware.Recover())
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: []string{"*"},
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "Idempotency-Key", "X-Request-ID"},
			}))
			server.Register(e, backend, deduper, a.logger)
			return serve(ctx, e, addr, a.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default BACKEND_ADDR or :3001)")
	return cmd
}

// openBackend assembles the configured storage backend with its optional
// change journal, Redis cache and idempotency deduper.
func openBackend(ctx context.Context, cfg config.Config, logger *log.Logger) (storage.Backend, server.Deduper, func(), error) {
	backend, err := storage.Open(ctx, storage.Options{
		Kind:             storage.Kind(cfg.BackendStore),
		File:             cfg.BackendFile,
		SQLitePath:       cfg.SQLitePath,
		ConnectionString: cfg.StorageConnectionString,
		Table:            cfg.TasksTable,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("storage: %w", err)
	}
	closers := []func(){func() { _ = backend.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fields := log.Fields{"store": cfg.BackendStore}

	if cfg.ChangeQueue != "" {
		q, err := storage.NewQueueClient(cfg.StorageConnectionString, cfg.ChangeQueue)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("change queue: %w", err)
		}
		backend = storage.NewJournal(backend, q, logger)
		fields["change_queue"] = cfg.ChangeQueue
	}

	var deduper server.Deduper
	if cfg.RedisConnectionString != "" {
		opts, err := config.RedisOptions(cfg.RedisConnectionString)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		rc := redis.NewClient(opts)
		closers = append(closers, func() { _ = rc.Close() })
		backend = storage.NewCache(backend, rc, cfg.CacheTTL)
		deduper = server.NewRedisDeduper(rc, cfg.DeduperTTL)
		fields["redis"] = opts.Addr
	}

	logger.WithFields(fields).Info("collection backend ready")
	return backend, deduper, cleanup, nil
}
