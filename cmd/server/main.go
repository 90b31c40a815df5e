package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/powens/tinyretro/internal/config"
	"github.com/powens/tinyretro/internal/server"
	"github.com/powens/tinyretro/internal/store"
)

func main() {
	if err := mainInner(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner(args []string) error {
	cfg, err := config.Load(args, os.LookupEnv)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(os.Stderr, cfg))

	slog.Info("starting tinyretro", "addr", cfg.Addr, "storage", cfg.Storage.Driver)

	ctx := context.Background()
	gateway, err := openGateway(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := gateway.Close(); err != nil {
			slog.Error("closing storage failed", "err", err)
		}
	}()

	initial := store.Load(ctx, gateway)

	saveCtx, stopSaving := context.WithCancel(ctx)
	defer stopSaving()
	writeBehind := store.NewWriteBehind(gateway, cfg.SaveRetries, cfg.SaveRetryDelay)
	go writeBehind.Run(saveCtx)

	hub := server.NewHub(cfg.BroadcastBuffer)
	go hub.Run()

	st := store.New(initial, hub, writeBehind)
	srv := server.New(cfg, st, hub, writeBehind)
	httpServer := server.CreateServer(cfg.Addr, srv.Handler())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer)
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(exit)

	select {
	case sig := <-exit:
		slog.Info("signal caught", "sig", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	return shutdown(cfg.ShutdownTimeout, httpServer, hub, srv, stopSaving, writeBehind)
}

// shutdown stops accepting connections, closes sessions, then lets the
// write-behind queue flush the last board before storage is closed.
func shutdown(timeout time.Duration, httpServer *http.Server, hub *server.Hub, srv *server.Server, stopSaving context.CancelFunc, writeBehind *store.WriteBehind) error {
	var errs []error

	if err := server.ShutdownServer(httpServer, timeout); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if err := hub.Shutdown(timeout); err != nil {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	srv.Close()

	stopSaving()
	select {
	case <-writeBehind.Done():
	case <-time.After(timeout):
		errs = append(errs, errors.New("timed out flushing board to storage"))
	}

	return errors.Join(errs...)
}

func openGateway(ctx context.Context, cfg config.StorageConfig) (store.Gateway, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		slog.Info("opening sqlite database", "path", cfg.Path, "board", cfg.BoardID)
		gw, err := store.OpenSQLite(ctx, cfg.Path, cfg.BoardID)
		if err != nil {
			return nil, err
		}
		return gw, nil
	case config.DriverRedis:
		slog.Info("connecting to redis", "key", cfg.RedisKey)
		gw, err := store.NewRedisGateway(ctx, cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		return gw, nil
	case config.DriverFile:
		slog.Info("using board file", "path", cfg.Path)
		return store.NewFileGateway(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
