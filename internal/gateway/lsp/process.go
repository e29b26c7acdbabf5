// Package lsp runs one language server process per project and talks to it
// over stdio.
package lsp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/samiralibabic/previewd/internal/gateway"
	"github.com/samiralibabic/previewd/internal/jsonrpc"
	"github.com/samiralibabic/previewd/internal/transport/lspframe"
)

type Config struct {
	Command       string
	Args          []string
	Env           []string
	ClientName    string
	ClientVersion string
	// KillGrace is how long Close waits for the process to exit after the
	// exit notification before killing it.
	KillGrace time.Duration
}

// Dialer spawns language server processes.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 2 * time.Second
	}
	return &Dialer{cfg: cfg, logger: logger}
}

// NewGateway returns a pooled gateway that spawns a server per project.
func NewGateway(cfg Config, dialTimeout time.Duration, logger *slog.Logger) *gateway.Pool {
	d := NewDialer(cfg, logger)
	return gateway.NewPool(d.Dial, dialTimeout, logger)
}

type process struct {
	gateway.ClientHandle
	cmd      *exec.Cmd
	exited   chan struct{}
	logger   *slog.Logger
	grace    time.Duration
	stopOnce sync.Once
}

// Dial starts the server with the project as working directory and waits
// for the initialize handshake.
func (d *Dialer) Dial(ctx context.Context, project string) (gateway.Endpoint, error) {
	cmd := exec.Command(d.cfg.Command, d.cfg.Args...)
	if st, err := os.Stat(project); err == nil && st.IsDir() {
		cmd.Dir = project
	}
	if len(d.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), d.cfg.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", d.cfg.Command, err)
	}

	logger := d.logger.With("project", project, "pid", cmd.Process.Pid)
	go pipeStderr(logger, stderr)

	conn := lspframe.NewConn(stdout, stdin, stdin)
	p := &process{
		ClientHandle: gateway.ClientHandle{Client: jsonrpc.NewClient(conn, logger, gateway.ServeRequest)},
		cmd:          cmd,
		exited:       make(chan struct{}),
		logger:       logger,
		grace:        d.cfg.KillGrace,
	}
	go func() {
		err := cmd.Wait()
		logger.Info("Language server exited", "error", err)
		_ = p.Client.Close()
		close(p.exited)
	}()

	if err := gateway.Initialize(ctx, p.Client, project, d.cfg.ClientName, d.cfg.ClientVersion); err != nil {
		p.kill()
		return nil, err
	}
	logger.Info("Language server started", "command", d.cfg.Command)
	return p, nil
}

func (p *process) Done() <-chan struct{} {
	return p.Client.Done()
}

func (p *process) Close(ctx context.Context) error {
	p.stopOnce.Do(func() {
		select {
		case <-p.exited:
			return
		default:
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, p.grace)
		defer cancel()
		if serr := gateway.Shutdown(shutdownCtx, p.Client); serr != nil && !errors.Is(serr, jsonrpc.ErrClosed) {
			p.logger.Warn("Language server shutdown request failed", "error", serr)
		}
		_ = p.Client.Close()
		select {
		case <-p.exited:
		case <-shutdownCtx.Done():
			p.kill()
			<-p.exited
		}
	})
	return nil
}

func (p *process) kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func pipeStderr(logger *slog.Logger, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		logger.Debug("language server", "stderr", scanner.Text())
	}
}
