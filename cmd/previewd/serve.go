package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samiralibabic/previewd/internal/config"
	"github.com/samiralibabic/previewd/internal/events"
	"github.com/samiralibabic/previewd/internal/gateway"
	"github.com/samiralibabic/previewd/internal/gateway/lsp"
	"github.com/samiralibabic/previewd/internal/gateway/wsgateway"
	"github.com/samiralibabic/previewd/internal/logging"
	"github.com/samiralibabic/previewd/internal/pin"
	"github.com/samiralibabic/previewd/internal/ports"
	"github.com/samiralibabic/previewd/internal/preview"
	"github.com/samiralibabic/previewd/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 15 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the preview JSON-RPC API on stdio and/or HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().Bool("stdio", false, "run JSON-RPC on stdio")
	cmd.Flags().String("http", "", "listen address for HTTP/WS transport")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyServeFlags(cmd, &cfg); err != nil {
		return err
	}
	if !cfg.Server.Stdio && cfg.Server.HTTPListen == "" {
		return errors.New("either --stdio or --http must be configured")
	}

	// stdout may carry the stdio transport, so logs go to stderr.
	logger := logging.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat, os.Stderr)

	store, closeStore, err := openPinStore(cfg)
	if err != nil {
		return fmt.Errorf("open pin store: %w", err)
	}
	defer closeStore()

	gw, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}

	pins := pin.NewService(store, gw, logger)
	gw.OnConnect(pins.Restore)

	bus := events.NewBus()
	mgr := preview.New(previewConfig(cfg), preview.Deps{
		Resolver: pin.NewResolver(store, logger),
		Gateway:  gw,
		Ports:    ports.NewAllocator(cfg.Preview.StartingPort, cfg.Preview.MaxPortRetries),
		Events:   bus,
		Logger:   logger,
	})
	svc, err := server.NewService(cfg, server.Deps{
		Previews: mgr,
		Pins:     pins,
		Bus:      bus,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("previewd starting",
		"version", server.ServerVersion,
		"stdio", cfg.Server.Stdio,
		"http", cfg.Server.HTTPListen,
		"lspMode", cfg.LSP.Mode,
		"maxSessions", cfg.Preview.MaxSessions,
	)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.HTTPListen != "" {
		g.Go(func() error {
			return server.RunHTTP(gctx, cfg, svc)
		})
	}
	if cfg.Server.Stdio {
		stdioDone := make(chan error, 1)
		go func() {
			stdioDone <- server.RunStdio(gctx, svc, os.Stdin, os.Stdout)
		}()
		g.Go(func() error {
			select {
			case err := <-stdioDone:
				// The editor closed stdin; take the HTTP side down too.
				cancel()
				return err
			case <-gctx.Done():
				return nil
			}
		})
	}
	runErr := g.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownGrace)
	defer stop()
	if err := mgr.Close(shutdownCtx); err != nil {
		logger.Warn("Preview shutdown incomplete", "error", err)
	}
	if err := gw.Close(shutdownCtx); err != nil {
		logger.Warn("Gateway shutdown incomplete", "error", err)
	}
	logger.Info("previewd stopped")
	return runErr
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	stdio, err := cmd.Flags().GetBool("stdio")
	if err != nil {
		return err
	}
	httpListen, err := cmd.Flags().GetString("http")
	if err != nil {
		return err
	}
	if httpListen != "" {
		cfg.Server.HTTPListen = httpListen
		// An explicit HTTP address means a network daemon unless stdio is
		// requested as well.
		cfg.Server.Stdio = false
	}
	if stdio {
		cfg.Server.Stdio = true
	}
	return nil
}

func previewConfig(cfg config.Config) preview.Config {
	return preview.Config{
		MaxSessions:     cfg.Preview.MaxSessions,
		MaxStartRetries: cfg.Preview.MaxStartRetries,
		StartTimeout:    cfg.Preview.StartTimeout(),
		HandleTimeout:   cfg.Preview.HandleTimeout(),
		StartMaxElapsed: cfg.Preview.StartMaxElapsed(),
		StartRetryDelay: cfg.Preview.StartRetryDelay(),
		ShutdownTimeout: cfg.Preview.ShutdownTimeout(),
	}
}

// openPinStore uses SQLite when a database path is configured and keeps pins
// in memory otherwise.
func openPinStore(cfg config.Config) (pin.Store, func(), error) {
	if cfg.Pins.DBPath == "" {
		return pin.NewMemoryStore(), func() {}, nil
	}
	store, err := pin.OpenSQLite(cfg.Pins.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func newGateway(cfg config.Config, logger *slog.Logger) (*gateway.Pool, error) {
	dialTimeout := cfg.Preview.HandleTimeout()
	switch cfg.LSP.Mode {
	case config.LSPModeProcess:
		return lsp.NewGateway(lsp.Config{
			Command:       cfg.LSP.Command,
			Args:          cfg.LSP.Args,
			ClientName:    "previewd",
			ClientVersion: server.ServerVersion,
		}, dialTimeout, logger), nil
	case config.LSPModeWebSocket:
		return wsgateway.NewGateway(wsgateway.Config{
			URL:           cfg.LSP.URL,
			ClientName:    "previewd",
			ClientVersion: server.ServerVersion,
		}, dialTimeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown lsp.mode %q", cfg.LSP.Mode)
	}
}
