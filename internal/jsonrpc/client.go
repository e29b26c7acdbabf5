// Package jsonrpc is a minimal JSON-RPC 2.0 client that multiplexes calls
// over a message stream.
package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/samiralibabic/previewd/internal/protocol"
)

var ErrClosed = errors.New("jsonrpc: connection closed")

// Stream carries whole JSON-RPC messages. Write must be safe to call from
// one goroutine at a time; the client serialises its own writes.
type Stream interface {
	Read() ([]byte, error)
	Write([]byte) error
	Close() error
}

// RequestHandler answers requests initiated by the peer. Returning a nil
// result with a nil error replies with a null result.
type RequestHandler func(method string, params json.RawMessage) (any, *protocol.RPCError)

type outgoing struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type Client struct {
	stream    Stream
	logger    *slog.Logger
	onRequest RequestHandler

	nextID  atomic.Int64
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan protocol.Message
	err     error
	done    chan struct{}
}

// NewClient starts reading from stream immediately. onRequest may be nil,
// in which case peer requests get a null result.
func NewClient(stream Stream, logger *slog.Logger, onRequest RequestHandler) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		stream:    stream,
		logger:    logger,
		onRequest: onRequest,
		pending:   map[int64]chan protocol.Message{},
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Call sends a request and decodes the result into result, which may be nil
// or a *json.RawMessage to keep the raw payload.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	id := c.nextID.Add(1)
	ch := make(chan protocol.Message, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.send(outgoing{JSONRPC: protocol.Version, ID: &id, Method: method, Params: params}); err != nil {
		c.forget(id)
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return msg.Error
		}
		if result == nil || len(msg.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.done:
		return c.Err()
	}
}

func (c *Client) Notify(method string, params any) error {
	select {
	case <-c.done:
		return c.Err()
	default:
	}
	return c.send(outgoing{JSONRPC: protocol.Version, Method: method, Params: params})
}

// Done is closed once the underlying stream has failed or been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	err := c.stream.Close()
	c.fail(ErrClosed)
	return err
}

func (c *Client) send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.stream.Write(payload)
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	c.pending = map[int64]chan protocol.Message{}
	close(c.done)
}

func (c *Client) readLoop() {
	for {
		raw, err := c.stream.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrClosed
			} else {
				err = fmt.Errorf("%w: %w", ErrClosed, err)
			}
			c.fail(err)
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("Dropping malformed JSON-RPC message", "error", err)
			continue
		}
		switch {
		case msg.IsResponse():
			c.deliver(msg)
		case msg.IsRequest():
			go c.answer(msg)
		default:
			c.logger.Debug("Ignoring notification", "method", msg.Method)
		}
	}
}

func (c *Client) deliver(msg protocol.Message) {
	id, err := strconv.ParseInt(string(msg.ID), 10, 64)
	if err != nil {
		c.logger.Warn("Response with unexpected id", "id", string(msg.ID))
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
}

func (c *Client) answer(msg protocol.Message) {
	var result any
	var rpcErr *protocol.RPCError
	if c.onRequest != nil {
		result, rpcErr = c.onRequest(msg.Method, msg.Params)
	}
	r := map[string]any{"jsonrpc": protocol.Version, "id": msg.ID}
	if rpcErr != nil {
		r["error"] = rpcErr
	} else {
		r["result"] = result
	}
	if err := c.send(r); err != nil {
		c.logger.Debug("Failed to answer peer request", "method", msg.Method, "error", err)
	}
}
