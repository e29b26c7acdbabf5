package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/samiralibabic/previewd/internal/config"
	"github.com/samiralibabic/previewd/internal/events"
	"github.com/samiralibabic/previewd/internal/gateway/gatewaytest"
	"github.com/samiralibabic/previewd/internal/logging"
	"github.com/samiralibabic/previewd/internal/pin"
	"github.com/samiralibabic/previewd/internal/ports"
	"github.com/samiralibabic/previewd/internal/preview"
	"github.com/samiralibabic/previewd/internal/server"
	"github.com/stretchr/testify/require"
)

type stack struct {
	cfg  config.Config
	svc  *server.Service
	lsp  *gatewaytest.Server
	root string
}

func newStack(t *testing.T) *stack {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Security.AllowedRoot = []config.AllowedRoot{{Path: root}}

	logger := logging.Discard()
	lsp := &gatewaytest.Server{}
	store, err := pin.OpenSQLite(root + "/pins.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := events.NewBus()
	mgr := preview.New(preview.Config{
		MaxSessions:     cfg.Preview.MaxSessions,
		MaxStartRetries: cfg.Preview.MaxStartRetries,
		StartTimeout:    cfg.Preview.StartTimeout(),
	}, preview.Deps{
		Resolver: pin.NewResolver(store, logger),
		Gateway:  lsp,
		Ports:    ports.NewAllocator(cfg.Preview.StartingPort, 1).WithProbe(func(int) bool { return true }),
		Events:   bus,
		Logger:   logger,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	})

	svc, err := server.NewService(cfg, server.Deps{
		Previews: mgr,
		Pins:     pin.NewService(store, lsp, logger),
		Bus:      bus,
		Logger:   logger,
	})
	require.NoError(t, err)
	return &stack{cfg: cfg, svc: svc, lsp: lsp, root: root}
}

func request(id int, method string, params map[string]any) map[string]any {
	return map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params}
}

func readLine(reader *bufio.Reader, out any) error {
	raw, err := reader.ReadBytes('\n')
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
