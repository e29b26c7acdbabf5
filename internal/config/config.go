package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Preview  PreviewConfig  `toml:"preview"`
	LSP      LSPConfig      `toml:"lsp"`
	Pins     PinsConfig     `toml:"pins"`
	Security SecurityConfig `toml:"security"`
	Audit    AuditConfig    `toml:"audit"`
}

type ServerConfig struct {
	Stdio      bool   `toml:"stdio"`
	HTTPListen string `toml:"http_listen"`
	HTTPPath   string `toml:"http_path"`
	WSPath     string `toml:"ws_path"`
	LogLevel   string `toml:"log_level"`
	LogFormat  string `toml:"log_format"`
}

type PreviewConfig struct {
	MaxSessions       int `toml:"max_sessions"`
	MaxStartRetries   int `toml:"max_start_retries"`
	StartingPort      int `toml:"starting_port"`
	MaxPortRetries    int `toml:"max_port_retries"`
	StartTimeoutMs    int `toml:"start_timeout_ms"`
	HandleTimeoutMs   int `toml:"handle_timeout_ms"`
	StartMaxElapsedMs int `toml:"start_max_elapsed_ms"`
	StartRetryDelayMs int `toml:"start_retry_delay_ms"`
	ShutdownTimeoutMs int `toml:"shutdown_timeout_ms"`
}

const (
	LSPModeProcess   = "process"
	LSPModeWebSocket = "websocket"
)

type LSPConfig struct {
	Mode    string   `toml:"mode"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	URL     string   `toml:"url"`
}

type PinsConfig struct {
	DBPath string `toml:"db_path"`
}

type SecurityConfig struct {
	AllowedRoot []AllowedRoot `toml:"allowed_roots"`
}

type AllowedRoot struct {
	Path string `toml:"path"`
}

type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Stdio:      true,
			HTTPListen: "",
			HTTPPath:   "/rpc",
			WSPath:     "/ws",
			LogLevel:   "info",
			LogFormat:  "json",
		},
		Preview: PreviewConfig{
			MaxSessions:       5,
			MaxStartRetries:   10,
			StartingPort:      23627,
			MaxPortRetries:    2,
			StartTimeoutMs:    30000,
			HandleTimeoutMs:   60000,
			StartMaxElapsedMs: 0,
			StartRetryDelayMs: 0,
			ShutdownTimeoutMs: 10000,
		},
		LSP: LSPConfig{
			Mode:    LSPModeProcess,
			Command: "tinymist",
			Args:    []string{"lsp"},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Preview.MaxSessions <= 0 {
		return fmt.Errorf("preview.max_sessions must be positive, got %d", c.Preview.MaxSessions)
	}
	if c.Preview.MaxStartRetries <= 0 {
		return fmt.Errorf("preview.max_start_retries must be positive, got %d", c.Preview.MaxStartRetries)
	}
	if c.Preview.StartingPort <= 0 || c.Preview.StartingPort > 65535 {
		return fmt.Errorf("preview.starting_port out of range: %d", c.Preview.StartingPort)
	}
	switch c.LSP.Mode {
	case LSPModeProcess:
		if c.LSP.Command == "" {
			return errors.New("lsp.command is required in process mode")
		}
	case LSPModeWebSocket:
		if c.LSP.URL == "" {
			return errors.New("lsp.url is required in websocket mode")
		}
	default:
		return fmt.Errorf("unknown lsp.mode %q", c.LSP.Mode)
	}
	return nil
}

func AllowedRoots(cfg Config) []string {
	roots := make([]string, 0, len(cfg.Security.AllowedRoot))
	for _, r := range cfg.Security.AllowedRoot {
		if r.Path != "" {
			roots = append(roots, r.Path)
		}
	}
	return roots
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (p PreviewConfig) StartTimeout() time.Duration    { return millis(p.StartTimeoutMs) }
func (p PreviewConfig) HandleTimeout() time.Duration   { return millis(p.HandleTimeoutMs) }
func (p PreviewConfig) StartMaxElapsed() time.Duration { return millis(p.StartMaxElapsedMs) }
func (p PreviewConfig) StartRetryDelay() time.Duration { return millis(p.StartRetryDelayMs) }
func (p PreviewConfig) ShutdownTimeout() time.Duration { return millis(p.ShutdownTimeoutMs) }
