package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

// Commands understood by the tinymist language server through
// workspace/executeCommand.
const (
	CommandStartPreview = "tinymist.doStartPreview"
	CommandKillPreview  = "tinymist.doKillPreview"
	CommandPinMain      = "tinymist.pinMain"
)

// LSP methods used by the gateways.
const (
	MethodInitialize     = "initialize"
	MethodInitialized    = "initialized"
	MethodShutdown       = "shutdown"
	MethodExit           = "exit"
	MethodExecuteCommand = "workspace/executeCommand"
)

var ErrNoAddress = errors.New("preview result carries no staticServerAddr")

type ExecuteCommandParams struct {
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

// PreviewOptions is the options bundle of tinymist.doStartPreview.
type PreviewOptions struct {
	DataPlaneHostPort    int    `json:"dataPlaneHostPort"`
	ControlPlaneHostPort int    `json:"controlPlaneHostPort"`
	PartialRendering     bool   `json:"partialRendering"`
	TaskID               string `json:"taskId"`
	Root                 string `json:"root"`
}

// StartPreviewArgs builds the argument list of tinymist.doStartPreview for
// the given target document.
func StartPreviewArgs(target string, opts PreviewOptions) []any {
	return []any{target, opts}
}

// KillPreviewArgs wraps the task id the way tinymist.doKillPreview expects:
// a single argument that is itself a one element list.
func KillPreviewArgs(taskID string) []any {
	return []any{[]string{taskID}}
}

// PinMainArgs returns the arguments of tinymist.pinMain. An empty path
// unpins and sends no arguments at all.
func PinMainArgs(path string) []any {
	if path == "" {
		return nil
	}
	return []any{path}
}

// StaticServerAddr extracts the externally reachable preview address from a
// doStartPreview result.
func StaticServerAddr(raw json.RawMessage) (string, error) {
	var res struct {
		StaticServerAddr *string `json:"staticServerAddr"`
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", ErrNoAddress
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", err
	}
	if res.StaticServerAddr == nil || strings.TrimSpace(*res.StaticServerAddr) == "" {
		return "", ErrNoAddress
	}
	return *res.StaticServerAddr, nil
}
