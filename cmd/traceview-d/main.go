package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rmax-ai/traceview/pkg/api"
	"github.com/rmax-ai/traceview/pkg/engine"
	"github.com/rmax-ai/traceview/pkg/ingest"
	"github.com/rmax-ai/traceview/pkg/trace"
	"github.com/rmax-ai/traceview/web"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "traceview-d: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("system_started", "component", "traceview-d")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logger.Info("shutdown_initiated", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	meta := trace.ActorRuntimeMetaModel()
	if cfg.MetaModelPath != "" {
		var err error
		if meta, err = trace.LoadMetaModel(cfg.MetaModelPath); err != nil {
			return err
		}
		logger.Info("meta_model_loaded", "path", cfg.MetaModelPath)
	}

	sess, err := engine.NewSession(meta, logger)
	if err != nil {
		return err
	}

	if cfg.ReplayPath != "" {
		if _, err := ingest.ReplayFile(ctx, cfg.ReplayPath, sess, logger); err != nil {
			return err
		}
	}

	srv := api.NewServer(sess, cfg.Addr, logger)
	if assets, err := webAssets(cfg); err != nil {
		return err
	} else if assets != nil {
		srv.SetStaticFS(assets)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.WatchDir != "" {
		w, err := ingest.NewDirWatcher(cfg.WatchDir, sess, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watcher: %w", err)
			}
			return nil
		})
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		sub := ingest.NewRedisSubscriber(rdb, cfg.RedisChannel, sess, logger)
		g.Go(func() error {
			if err := sub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	// Stops the server once the signal handler or a failing source cancels gctx.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("server_shutdown_failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func webAssets(cfg Config) (fs.FS, error) {
	switch cfg.WebAssetsMode {
	case "embedded":
		return web.Viewer()
	case "fs":
		return os.DirFS(cfg.WebDir), nil
	default:
		return nil, nil
	}
}
