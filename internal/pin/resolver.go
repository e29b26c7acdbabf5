package pin

import (
	"log/slog"
	"strings"
)

// Resolver maps a requested document to the session key that serves it: the
// project's pinned main file when one is set, otherwise the document itself.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

func (r *Resolver) Resolve(project, requested string) string {
	main, err := r.store.Get(project)
	if err != nil {
		r.logger.Warn("Pin lookup failed, using requested path", "project", project, "error", err)
		return requested
	}
	if strings.TrimSpace(main) == "" {
		return requested
	}
	return main
}
