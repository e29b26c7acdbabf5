// Package preview owns the pool of live preview sessions: it starts them
// through the language server, reuses them per main document, evicts the
// oldest when the pool is full and shuts them down on request.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/samiralibabic/previewd/internal/events"
	"github.com/samiralibabic/previewd/internal/gateway"
	"github.com/samiralibabic/previewd/internal/protocol"
	"github.com/samiralibabic/previewd/internal/retry"
	"github.com/samiralibabic/previewd/internal/session"
)

var (
	ErrStartFailed = errors.New("preview start failed")
	ErrClosed      = errors.New("preview manager closed")
)

// Callback receives the outcome of CreateSession exactly once: a non-empty
// address, or an error.
type Callback func(address string, err error)

type Resolver interface {
	Resolve(project, requested string) string
}

type PortAllocator interface {
	Allocate() int
}

type Publisher interface {
	Publish(project, method string, params any)
}

type Config struct {
	MaxSessions     int
	MaxStartRetries int
	// StartTimeout bounds one start attempt, handle wait included.
	StartTimeout time.Duration
	// HandleTimeout bounds the wait for the language server to be ready.
	HandleTimeout time.Duration
	// StartMaxElapsed bounds the whole retry loop. Zero means attempts are
	// only bounded individually.
	StartMaxElapsed time.Duration
	StartRetryDelay time.Duration
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxSessions:     5,
		MaxStartRetries: 10,
		StartTimeout:    30 * time.Second,
		HandleTimeout:   60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

type Deps struct {
	Resolver Resolver
	Gateway  gateway.Gateway
	Ports    PortAllocator
	Registry *session.Registry
	Events   Publisher
	Logger   *slog.Logger
	// NewTaskID defaults to uuid.New.
	NewTaskID func() uuid.UUID
}

type Manager struct {
	cfg       Config
	resolver  Resolver
	gateway   gateway.Gateway
	ports     PortAllocator
	registry  *session.Registry
	events    Publisher
	logger    *slog.Logger
	newTaskID func() uuid.UUID

	inflight singleflight.Group

	slotMu   sync.Mutex
	slotFree *sync.Cond
	starting int

	workers workerGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(cfg Config, deps Deps) *Manager {
	def := DefaultConfig()
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.MaxStartRetries <= 0 {
		cfg.MaxStartRetries = def.MaxStartRetries
	}
	if deps.Registry == nil {
		deps.Registry = session.NewRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewTaskID == nil {
		deps.NewTaskID = uuid.New
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:       cfg,
		resolver:  deps.Resolver,
		gateway:   deps.Gateway,
		ports:     deps.Ports,
		registry:  deps.Registry,
		events:    deps.Events,
		logger:    deps.Logger,
		newTaskID: deps.NewTaskID,
		ctx:       ctx,
		cancel:    cancel,
	}
	m.slotFree = sync.NewCond(&m.slotMu)
	return m
}

// Resolve returns the session key for a document.
func (m *Manager) Resolve(project, path string) string {
	return m.resolver.Resolve(project, path)
}

// Sessions lists live sessions, oldest first.
func (m *Manager) Sessions() []session.Session {
	return m.registry.List()
}

// CreateSession delivers the preview address for path through cb. A live
// session answers synchronously; otherwise the start runs on a worker and
// CreateSession returns immediately.
func (m *Manager) CreateSession(path, project string, cb Callback) {
	key := m.resolver.Resolve(project, path)
	if s, ok := m.registry.Get(key); ok && s.Address != "" {
		cb(s.Address, nil)
		return
	}
	if !m.workers.Go(func() {
		s, err := m.ensure(m.ctx, key, project)
		if err != nil {
			m.logger.Error("Preview unavailable", "key", key, "project", project, "error", err)
			cb("", err)
			return
		}
		cb(s.Address, nil)
	}) {
		cb("", ErrClosed)
	}
}

// Create is the blocking form of CreateSession. ctx only bounds the wait;
// a start already under way continues for other waiters.
func (m *Manager) Create(ctx context.Context, path, project string) (session.Session, error) {
	if m.ctx.Err() != nil {
		return session.Session{}, ErrClosed
	}
	return m.ensure(ctx, m.resolver.Resolve(project, path), project)
}

// ShutdownSession stops the session serving path, if any, on a worker.
func (m *Manager) ShutdownSession(path, project string) {
	key := m.resolver.Resolve(project, path)
	if _, ok := m.registry.Get(key); !ok {
		return
	}
	m.workers.Go(func() {
		m.stopKey(m.ctx, key, events.PreviewStopped)
	})
}

// Stop is the blocking form of ShutdownSession. It reports whether a
// session was removed.
func (m *Manager) Stop(ctx context.Context, path, project string) bool {
	return m.stopKey(ctx, m.resolver.Resolve(project, path), events.PreviewStopped)
}

// Close stops accepting work, waits for in-flight workers and shuts down
// every live session.
func (m *Manager) Close(ctx context.Context) error {
	m.cancel()
	m.slotMu.Lock()
	m.slotFree.Broadcast()
	m.slotMu.Unlock()

	err := m.workers.CloseAndWait(ctx)
	for _, s := range m.registry.List() {
		m.stop(ctx, s, events.PreviewStopped)
	}
	return err
}

// ensure returns the live session for key, starting it if needed.
// Concurrent callers for one key share a single start.
func (m *Manager) ensure(ctx context.Context, key, project string) (session.Session, error) {
	if s, ok := m.registry.Get(key); ok {
		return s, nil
	}
	ch := m.inflight.DoChan(key, func() (any, error) {
		// The flight runs on a singleflight goroutine; Close must still
		// wait for it.
		leave, ok := m.workers.Enter()
		if !ok {
			return nil, ErrClosed
		}
		defer leave()
		// A start that finished between our miss and this flight has
		// already put the session in the registry.
		if s, ok := m.registry.Get(key); ok {
			return s, nil
		}
		return m.start(m.ctx, key, project)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return session.Session{}, res.Err
		}
		return res.Val.(session.Session), nil
	case <-ctx.Done():
		if m.ctx.Err() != nil {
			return session.Session{}, ErrClosed
		}
		return session.Session{}, ctx.Err()
	}
}

func (m *Manager) start(ctx context.Context, key, project string) (session.Session, error) {
	if err := m.acquireSlot(ctx); err != nil {
		return session.Session{}, err
	}
	defer m.releaseSlot()

	var started session.Session
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  m.cfg.MaxStartRetries,
		InitialDelay: m.cfg.StartRetryDelay,
		MaxDelay:     10 * m.cfg.StartRetryDelay,
		MaxElapsed:   m.cfg.StartMaxElapsed,
		Logger:       m.logger,
	}, "start preview", func(ctx context.Context, attempt int) error {
		s, err := m.attempt(ctx, key, project, attempt)
		if err != nil {
			return err
		}
		started = s
		return nil
	})
	if err != nil {
		return session.Session{}, fmt.Errorf("%w for %s: %w", ErrStartFailed, key, err)
	}
	// Close may have listed the registry already; nobody would stop this one.
	if m.ctx.Err() != nil {
		m.logger.Info("Manager closed during start, killing preview", "key", key, "taskId", started.TaskID)
		m.kill(m.ctx, started)
		return session.Session{}, ErrClosed
	}

	stored, err := m.registry.Put(started)
	if err != nil {
		return session.Session{}, fmt.Errorf("%w for %s: %w", ErrStartFailed, key, err)
	}
	m.logger.Info("Preview started", "key", key, "address", stored.Address, "taskId", stored.TaskID)
	m.publish(events.PreviewStarted, stored)
	return stored, nil
}

func (m *Manager) attempt(ctx context.Context, key, project string, attempt int) (session.Session, error) {
	dataPort := m.ports.Allocate()
	controlPort := m.ports.Allocate()
	taskID := m.newTaskID()

	m.logger.Info("Starting preview",
		"key", key,
		"attempt", attempt,
		"taskId", taskID,
		"dataPlanePort", dataPort,
		"controlPlanePort", controlPort,
	)

	ctx, cancel := withTimeout(ctx, m.cfg.StartTimeout)
	defer cancel()

	args := protocol.StartPreviewArgs(key, protocol.PreviewOptions{
		DataPlaneHostPort:    dataPort,
		ControlPlaneHostPort: controlPort,
		PartialRendering:     true,
		TaskID:               taskID.String(),
		Root:                 filepath.Dir(key),
	})
	raw, err := m.execute(ctx, project, protocol.CommandStartPreview, args)
	if errors.Is(err, gateway.ErrClosed) {
		return session.Session{}, retry.Permanent(err)
	}
	if err != nil {
		return session.Session{}, err
	}
	addr, err := protocol.StaticServerAddr(raw)
	if err != nil {
		return session.Session{}, err
	}
	return session.Session{
		Key:              key,
		Project:          project,
		DataPlanePort:    dataPort,
		ControlPlanePort: controlPort,
		Address:          addr,
		TaskID:           taskID,
	}, nil
}

// acquireSlot reserves room for one more session, evicting the oldest live
// sessions until live plus starting sessions fit under MaxSessions. When
// every slot belongs to a start in progress it waits for one to finish.
// Evicted sessions leave the registry under slotMu; their kill commands are
// sent after it is released but before acquireSlot returns.
func (m *Manager) acquireSlot(ctx context.Context) error {
	victims, err := m.reserveSlot(ctx)
	for _, s := range victims {
		m.kill(ctx, s)
		m.publish(events.PreviewEvicted, s)
	}
	return err
}

func (m *Manager) reserveSlot(ctx context.Context) ([]session.Session, error) {
	m.slotMu.Lock()
	defer m.slotMu.Unlock()
	var victims []session.Session
	for m.registry.Len()+m.starting >= m.cfg.MaxSessions {
		if err := ctx.Err(); err != nil {
			return victims, err
		}
		if oldest, ok := m.registry.Oldest(); ok {
			if m.registry.RemoveTask(oldest.Key, oldest.TaskID) {
				m.logger.Info("Preview pool full, evicting oldest", "key", oldest.Key, "startedAt", oldest.StartedAt)
				victims = append(victims, oldest)
			}
			continue
		}
		m.slotFree.Wait()
	}
	m.starting++
	return victims, nil
}

func (m *Manager) releaseSlot() {
	m.slotMu.Lock()
	m.starting--
	m.slotFree.Broadcast()
	m.slotMu.Unlock()
}

func (m *Manager) stopKey(ctx context.Context, key, reason string) bool {
	s, ok := m.registry.Get(key)
	if !ok {
		return false
	}
	return m.stop(ctx, s, reason)
}

// stop removes s from the registry and asks the server to kill it. Local
// state is dropped whether or not the remote command succeeds.
func (m *Manager) stop(ctx context.Context, s session.Session, reason string) bool {
	if !m.registry.RemoveTask(s.Key, s.TaskID) {
		return false
	}
	m.kill(ctx, s)
	m.publish(reason, s)
	return true
}

// kill sends doKillPreview for s. Failures are logged only.
func (m *Manager) kill(ctx context.Context, s session.Session) {
	ctx, cancel := withTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()
	if _, err := m.execute(ctx, s.Project, protocol.CommandKillPreview, protocol.KillPreviewArgs(s.TaskID.String())); err != nil {
		m.logger.Warn("Failed to kill preview", "key", s.Key, "taskId", s.TaskID, "error", err)
		return
	}
	m.logger.Info("Preview stopped", "key", s.Key, "taskId", s.TaskID)
}

func (m *Manager) execute(ctx context.Context, project, command string, args []any) ([]byte, error) {
	handleCtx, cancel := withTimeout(ctx, m.cfg.HandleTimeout)
	h, err := m.gateway.Handle(handleCtx, project)
	cancel()
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, gateway.ErrUnavailable
	}
	return h.Execute(ctx, command, args)
}

func (m *Manager) publish(method string, s session.Session) {
	if m.events == nil {
		return
	}
	m.events.Publish(s.Project, method, map[string]any{
		"key":        s.Key,
		"project":    s.Project,
		"address":    s.Address,
		"task_id":    s.TaskID.String(),
		"started_at": s.StartedAt.Format(time.RFC3339Nano),
	})
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
