package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Endpoint is one live connection to a language server.
type Endpoint interface {
	Handle
	// Done is closed when the endpoint can no longer serve commands.
	Done() <-chan struct{}
	Close(ctx context.Context) error
}

// DialFunc connects to (or spawns) the endpoint serving project.
type DialFunc func(ctx context.Context, project string) (Endpoint, error)

// ConnectHook runs after each successful dial, before any caller sees the
// new endpoint.
type ConnectHook func(ctx context.Context, project string, h Handle)

type dialing struct {
	ready chan struct{}
	ep    Endpoint
	err   error
}

// Pool keeps one endpoint per project. Concurrent callers for the same
// project share a single dial; dead endpoints are replaced on next use.
type Pool struct {
	dial        DialFunc
	dialTimeout time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	endpoints map[string]*dialing
	closed    bool
	onConnect ConnectHook
}

func NewPool(dial DialFunc, dialTimeout time.Duration, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		dial:        dial,
		dialTimeout: dialTimeout,
		logger:      logger,
		endpoints:   map[string]*dialing{},
	}
}

// OnConnect sets the hook run for every new endpoint, including the
// replacement of a dead one.
func (p *Pool) OnConnect(hook ConnectHook) {
	p.mu.Lock()
	p.onConnect = hook
	p.mu.Unlock()
}

func (p *Pool) Handle(ctx context.Context, project string) (Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	d, ok := p.endpoints[project]
	if ok && d.dead() {
		delete(p.endpoints, project)
		ok = false
	}
	if !ok {
		d = &dialing{ready: make(chan struct{})}
		p.endpoints[project] = d
		go p.connect(project, d)
	}
	p.mu.Unlock()

	select {
	case <-d.ready:
		if d.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, d.err)
		}
		return d.ep, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for %s: %w", ErrUnavailable, project, ctx.Err())
	}
}

func (p *Pool) connect(project string, d *dialing) {
	ctx := context.Background()
	if p.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.dialTimeout)
		defer cancel()
	}
	ep, err := p.dial(ctx, project)
	if err != nil {
		p.logger.Warn("Language server connection failed", "project", project, "error", err)
		p.mu.Lock()
		if p.endpoints[project] == d {
			delete(p.endpoints, project)
		}
		p.mu.Unlock()
	} else {
		p.logger.Info("Language server ready", "project", project)
		p.mu.Lock()
		hook := p.onConnect
		p.mu.Unlock()
		if hook != nil {
			hook(ctx, project, ep)
		}
	}
	d.ep, d.err = ep, err
	close(d.ready)
}

func (d *dialing) dead() bool {
	select {
	case <-d.ready:
	default:
		return false
	}
	if d.err != nil {
		return true
	}
	select {
	case <-d.ep.Done():
		return true
	default:
		return false
	}
}

// Close shuts down every endpoint. Dials still in flight are closed as
// soon as they finish or ctx expires.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	all := p.endpoints
	p.endpoints = map[string]*dialing{}
	p.mu.Unlock()

	var errs []error
	for project, d := range all {
		select {
		case <-d.ready:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("%s: %w", project, ctx.Err()))
			continue
		}
		if d.err != nil {
			continue
		}
		if err := d.ep.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", project, err))
		}
	}
	return errors.Join(errs...)
}
