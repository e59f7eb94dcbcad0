package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fabfab/docchat/api"
	"github.com/fabfab/docchat/session"
)

const (
	sessionIdleTTL  = 2 * time.Hour
	shutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web chat and the corpus status panel",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	registry := session.NewRegistry(a.controller)
	opts := api.Options{
		Registry:    registry,
		Controller:  a.controller,
		Poller:      a.poller,
		ConnectedTo: cfg.ConnectedTo,
		Logger:      logger.Named("api"),
	}
	if a.transcripts != nil {
		opts.Transcripts = a.transcripts
	}
	if a.graph != nil {
		opts.Citations = a.graph
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.New(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		logger.Info("http server stopped")
		return nil
	})
	g.Go(func() error {
		return a.poller.Run(gctx, cfg.StatusInterval)
	})
	g.Go(func() error {
		pruneSessions(gctx, registry, sessionIdleTTL, logger)
		return nil
	})

	return g.Wait()
}

// pruneSessions drops sessions idle for longer than ttl until ctx is done.
func pruneSessions(ctx context.Context, registry *session.Registry, ttl time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := registry.Prune(now.Add(-ttl)); n > 0 {
				logger.Info("pruned idle sessions", zap.Int("count", n), zap.Int("live", registry.Len()))
			}
		}
	}
}
