// Package wsgateway reaches an already running language server through a
// WebSocket JSON-RPC bridge.
package wsgateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samiralibabic/previewd/internal/gateway"
	"github.com/samiralibabic/previewd/internal/jsonrpc"
)

const ProjectHeader = "X-Previewd-Project"

type Config struct {
	URL           string
	ClientName    string
	ClientVersion string
	Header        http.Header
}

type Dialer struct {
	cfg    Config
	ws     *websocket.Dialer
	logger *slog.Logger
}

func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{cfg: cfg, ws: websocket.DefaultDialer, logger: logger}
}

func NewGateway(cfg Config, dialTimeout time.Duration, logger *slog.Logger) *gateway.Pool {
	d := NewDialer(cfg, logger)
	return gateway.NewPool(d.Dial, dialTimeout, logger)
}

// Dial opens one connection for project. The project travels both as a
// query parameter and a header so bridges can route on either.
func (d *Dialer) Dial(ctx context.Context, project string) (gateway.Endpoint, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", d.cfg.URL, err)
	}
	q := u.Query()
	q.Set("project", project)
	u.RawQuery = q.Encode()

	header := http.Header{}
	for k, v := range d.cfg.Header {
		header[k] = append([]string(nil), v...)
	}
	header.Set(ProjectHeader, project)

	conn, resp, err := d.ws.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	logger := d.logger.With("project", project, "url", u.Redacted())
	client := jsonrpc.NewClient(&stream{conn: conn}, logger, gateway.ServeRequest)
	if err := gateway.Initialize(ctx, client, project, d.cfg.ClientName, d.cfg.ClientVersion); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &endpoint{ClientHandle: gateway.ClientHandle{Client: client}}, nil
}

type endpoint struct {
	gateway.ClientHandle
	once sync.Once
}

func (e *endpoint) Done() <-chan struct{} {
	return e.Client.Done()
}

func (e *endpoint) Close(ctx context.Context) error {
	var err error
	e.once.Do(func() {
		_ = gateway.Shutdown(ctx, e.Client)
		err = e.Client.Close()
	})
	return err
}

// stream adapts a websocket connection to jsonrpc.Stream. The client
// serialises writes, and gorilla allows one concurrent reader.
type stream struct {
	conn *websocket.Conn
}

func (s *stream) Read() ([]byte, error) {
	for {
		mt, payload, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return payload, nil
		}
	}
}

func (s *stream) Write(payload []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *stream) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}
