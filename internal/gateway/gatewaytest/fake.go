// Package gatewaytest provides an in-memory tinymist stand-in for tests.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/samiralibabic/previewd/internal/gateway"
	"github.com/samiralibabic/previewd/internal/protocol"
)

type Command struct {
	Project string
	Name    string
	Args    []any
}

// Server answers preview commands the way tinymist does: a started preview
// is served on its data plane port.
type Server struct {
	mu       sync.Mutex
	commands []Command
	// Fail makes every command return an error.
	Fail bool
}

func (s *Server) Handle(_ context.Context, project string) (gateway.Handle, error) {
	return handle{srv: s, project: project}, nil
}

// Commands returns the recorded commands named name, or all when name is
// empty.
func (s *Server) Commands(name string) []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Command
	for _, c := range s.commands {
		if name == "" || c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

type handle struct {
	srv     *Server
	project string
}

func (h handle) Execute(_ context.Context, command string, args []any) (json.RawMessage, error) {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	h.srv.commands = append(h.srv.commands, Command{Project: h.project, Name: command, Args: args})
	if h.srv.Fail {
		return nil, &protocol.RPCError{Code: protocol.ErrInternal, Message: "preview failed"}
	}
	if command != protocol.CommandStartPreview {
		return json.RawMessage("null"), nil
	}
	opts, ok := args[1].(protocol.PreviewOptions)
	if !ok {
		return nil, fmt.Errorf("unexpected preview options %T", args[1])
	}
	return json.Marshal(map[string]any{
		"staticServerAddr": fmt.Sprintf("127.0.0.1:%d", opts.DataPlaneHostPort),
		"dataPlanePort":    opts.DataPlaneHostPort,
	})
}
