package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chathub/internal/broker"
	"chathub/internal/config"
	"chathub/internal/logger"
	"chathub/internal/presence"
	"chathub/internal/rooms"
	"chathub/internal/store"
	"chathub/internal/web"
	"chathub/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("server stopped", "err", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store.Path, store.Options{
		DefaultRoom: cfg.Store.DefaultRoom,
		BusyTimeout: cfg.Store.BusyTimeout.Duration(),
	})
	if err != nil {
		return err
	}
	defer st.Close()

	seeded, err := st.SeedWelcome(ctx, cfg.Store.WelcomeMessage)
	if err != nil {
		return err
	}
	if seeded {
		logger.Info("seeded welcome message", "room", st.DefaultRoom())
	}

	b := broker.New(st, st, presence.New(st), rooms.New(st), broker.Options{
		DefaultRoom: st.DefaultRoom(),
	})
	wss := ws.NewServer(b, ws.Options{
		ReadLimit:      cfg.Server.MaxMessageSize.Int64(),
		SendBuffer:     cfg.Server.SendBuffer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	opts := web.Options{
		AuthRequired:  cfg.Auth.Required,
		SessionTTL:    cfg.Auth.SessionTTL.Duration(),
		SecureCookie:  cfg.Auth.SecureCookie,
		MaxAvatarSize: cfg.Auth.MaxAvatarSize.Int64(),
	}
	if cfg.Metrics.On() {
		opts.MetricsPath = cfg.Metrics.Path
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           web.New(st, wss, opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	for _, line := range cfg.Summary() {
		logger.Info("config", "setting", line)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chathub listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	wss.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped", "connections", b.Connections())
	return nil
}
