package pin

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samiralibabic/previewd/internal/gateway"
	"github.com/samiralibabic/previewd/internal/protocol"
)

var ErrEmptyPath = errors.New("pin path is empty")

// Service changes pins and tells the language server about them so that
// multi-file context follows the pinned main. The store is authoritative; a
// failed notification is only logged.
type Service struct {
	store   Store
	gateway gateway.Gateway
	logger  *slog.Logger
}

// NewService builds a pin service. gw may be nil, in which case pins are only
// stored.
func NewService(store Store, gw gateway.Gateway, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, gateway: gw, logger: logger}
}

func (s *Service) Get(project string) (string, error) {
	return s.store.Get(project)
}

func (s *Service) Set(ctx context.Context, project, path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrEmptyPath
	}
	if err := s.store.Set(project, path); err != nil {
		return err
	}
	s.logger.Info("Pinned main file", "project", project, "path", path)
	s.notify(ctx, project, path)
	return nil
}

func (s *Service) Clear(ctx context.Context, project string) error {
	if err := s.store.Clear(project); err != nil {
		return err
	}
	s.logger.Info("Unpinned main file", "project", project)
	s.notify(ctx, project, "")
	return nil
}

// Toggle pins path, or unpins it when it already is the pinned main. It
// returns the pin in effect afterwards ("" when unpinned).
func (s *Service) Toggle(ctx context.Context, project, path string) (string, error) {
	current, err := s.store.Get(project)
	if err != nil {
		return "", err
	}
	if current == path {
		return "", s.Clear(ctx, project)
	}
	return path, s.Set(ctx, project, path)
}

// Restore re-sends the stored pin over a freshly connected handle, so a
// restarted language server agrees with the store.
func (s *Service) Restore(ctx context.Context, project string, h gateway.Handle) {
	path, err := s.store.Get(project)
	if err != nil {
		s.logger.Warn("Failed to read pin for restore", "project", project, "error", err)
		return
	}
	if path == "" {
		return
	}
	if _, err := h.Execute(ctx, protocol.CommandPinMain, protocol.PinMainArgs(path)); err != nil {
		s.logger.Warn("Failed to restore pin on language server", "project", project, "error", err)
		return
	}
	s.logger.Info("Restored pinned main file", "project", project, "path", path)
}

func (s *Service) notify(ctx context.Context, project, path string) {
	if s.gateway == nil {
		return
	}
	if _, err := gateway.Execute(ctx, s.gateway, project, protocol.CommandPinMain, protocol.PinMainArgs(path)); err != nil {
		s.logger.Warn("Failed to forward pin to language server", "project", project, "error", err)
	}
}
