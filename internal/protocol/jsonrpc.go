package protocol

import (
	"encoding/json"
	"fmt"
)

const Version = "2.0"

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// Message is the union shape used when reading a peer's stream, where
// requests, responses and notifications interleave.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (m Message) IsResponse() bool {
	return m.Method == "" && len(m.ID) > 0
}

func (m Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func ErrorResponse(id any, code int, msg string, data any) Response {
	return Response{
		JSONRPC: Version,
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: msg,
			Data:    data,
		},
	}
}

const (
	ErrParse              = -32700
	ErrInternal           = -32603
	ErrInvalidParams      = -32602
	ErrMethodNotFound     = -32601
	ErrForbiddenPath      = -32002
	ErrTimeout            = -32003
	ErrSessionNotFound    = -32005
	ErrPreviewStart       = -32010
	ErrBackendUnavailable = -32011
	ErrShuttingDown       = -32012
)
