package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/samiralibabic/previewd/internal/config"
	"github.com/samiralibabic/previewd/internal/transport/httpjsonrpc"
	"github.com/samiralibabic/previewd/internal/transport/wsjsonrpc"
)

func NewMux(cfg config.Config, svc *Service) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.HTTPPath, httpjsonrpc.Handler(svc.Handle))
	mux.HandleFunc(cfg.Server.WSPath, wsjsonrpc.Handler(svc.Handle, svc.Bus().Subscribe))
	return mux
}

func RunHTTP(ctx context.Context, cfg config.Config, svc *Service) error {
	srv := &http.Server{
		Addr:              cfg.Server.HTTPListen,
		Handler:           NewMux(cfg, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	svc.logger.Info("HTTP transport listening", "addr", cfg.Server.HTTPListen, "rpc", cfg.Server.HTTPPath, "ws", cfg.Server.WSPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
