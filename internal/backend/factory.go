package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	ModeMock   = "mock"
	ModeHTTP   = "http"
	ModeBridge = "bridge"
	// ModeAuto prefers the bridge and falls back to the mock.
	ModeAuto = "auto"
)

type Config struct {
	Mode          string        `yaml:"mode"`
	BridgeCommand string        `yaml:"bridge_command"`
	BridgeEnv     []string      `yaml:"bridge_env"`
	HTTPURL       string        `yaml:"http_url"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	SampleRate    int           `yaml:"sample_rate"`
}

// New builds the backend selected by cfg.Mode.
func New(cfg Config, logger *log.Logger) (Backend, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch mode {
	case "", ModeMock:
		return &Mock{SampleRate: cfg.SampleRate}, nil
	case ModeHTTP:
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, fmt.Errorf("backend mode %q requires http_url", mode)
		}
		return NewHTTP(cfg.HTTPURL, cfg.HTTPTimeout, logger), nil
	case ModeBridge, ModeAuto:
		if strings.TrimSpace(cfg.BridgeCommand) == "" {
			return nil, fmt.Errorf("backend mode %q requires bridge_command", mode)
		}
		bridge, err := NewBridge(BridgeOptions{Command: cfg.BridgeCommand, Env: cfg.BridgeEnv, Logger: logger})
		if err != nil {
			return nil, err
		}
		if mode == ModeBridge {
			return bridge, nil
		}
		return NewFailover(bridge, &Mock{SampleRate: cfg.SampleRate}, logger), nil
	default:
		return nil, fmt.Errorf("unknown backend mode %q", cfg.Mode)
	}
}
