// Package gateway obtains handles for executing tinymist commands on the
// language server that serves a project.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/samiralibabic/previewd/internal/jsonrpc"
	"github.com/samiralibabic/previewd/internal/protocol"
)

var (
	ErrUnavailable = errors.New("language server unavailable")
	ErrClosed      = errors.New("gateway closed")
)

// Handle executes workspace commands against a live endpoint.
type Handle interface {
	Execute(ctx context.Context, command string, args []any) (json.RawMessage, error)
}

// Gateway hands out a Handle for a project, waiting for the endpoint to be
// ready if necessary. The wait is bounded by ctx.
type Gateway interface {
	Handle(ctx context.Context, project string) (Handle, error)
}

// Execute is the common path for callers that only need one command.
func Execute(ctx context.Context, gw Gateway, project, command string, args []any) (json.RawMessage, error) {
	h, err := gw.Handle(ctx, project)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrUnavailable
	}
	return h.Execute(ctx, command, args)
}

// ClientHandle runs commands through workspace/executeCommand.
type ClientHandle struct {
	Client *jsonrpc.Client
}

func (h ClientHandle) Execute(ctx context.Context, command string, args []any) (json.RawMessage, error) {
	var raw json.RawMessage
	params := protocol.ExecuteCommandParams{Command: command, Arguments: args}
	if err := h.Client.Call(ctx, protocol.MethodExecuteCommand, params, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	return raw, nil
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type workspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type initializeParams struct {
	ProcessID        int               `json:"processId"`
	ClientInfo       clientInfo        `json:"clientInfo"`
	RootURI          string            `json:"rootUri,omitempty"`
	WorkspaceFolders []workspaceFolder `json:"workspaceFolders,omitempty"`
	Capabilities     map[string]any    `json:"capabilities"`
}

// Initialize performs the LSP initialize/initialized handshake for project.
func Initialize(ctx context.Context, client *jsonrpc.Client, project, clientName, clientVersion string) error {
	params := initializeParams{
		ProcessID:    os.Getpid(),
		ClientInfo:   clientInfo{Name: clientName, Version: clientVersion},
		Capabilities: map[string]any{"workspace": map[string]any{"executeCommand": map[string]any{}}},
	}
	if project != "" {
		uri := FileURI(project)
		params.RootURI = uri
		params.WorkspaceFolders = []workspaceFolder{{URI: uri, Name: filepath.Base(project)}}
	}
	if err := client.Call(ctx, protocol.MethodInitialize, params, nil); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := client.Notify(protocol.MethodInitialized, map[string]any{}); err != nil {
		return fmt.Errorf("initialized: %w", err)
	}
	return nil
}

// Shutdown asks the server to shut down and exit. Errors are returned but
// the connection should be closed regardless.
func Shutdown(ctx context.Context, client *jsonrpc.Client) error {
	err := client.Call(ctx, protocol.MethodShutdown, nil, nil)
	if nerr := client.Notify(protocol.MethodExit, nil); err == nil {
		err = nerr
	}
	return err
}

// ServeRequest answers the requests a language server sends to its client.
// Nothing here is interactive, so everything gets an empty answer.
func ServeRequest(method string, _ json.RawMessage) (any, *protocol.RPCError) {
	switch method {
	case "workspace/configuration":
		return []any{}, nil
	default:
		return nil, nil
	}
}

func FileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
