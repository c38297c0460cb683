package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ent0n29/soundboard/internal/backend"
	"github.com/ent0n29/soundboard/internal/limits"
	"github.com/ent0n29/soundboard/internal/speech"
	"github.com/ent0n29/soundboard/internal/telemetry"
	"github.com/ent0n29/soundboard/internal/voices"
)

// Config contains all runtime settings for the speech service.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Backend   backend.Config   `yaml:"backend"`
	Output    OutputConfig     `yaml:"output"`
	Limits    limits.Limits    `yaml:"limits"`
	History   HistoryConfig    `yaml:"history"`
	Artifacts ArtifactsConfig  `yaml:"artifacts"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Log       LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	BindAddr         string        `yaml:"bind_addr"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
	AllowAnyOrigin   bool          `yaml:"allow_any_origin"`
	JobRetention     time.Duration `yaml:"job_retention"`
}

type OutputConfig struct {
	Dir          string `yaml:"dir"`
	Delivery     string `yaml:"delivery"`
	Concat       bool   `yaml:"concat"`
	DefaultVoice string `yaml:"default_voice"`
	SfxEnabled   bool   `yaml:"sfx_enabled"`
}

type HistoryConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

type ArtifactsConfig struct {
	NatsURL string `yaml:"nats_url"`
	Bucket  string `yaml:"bucket"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			BindAddr:         ":8080",
			ShutdownTimeout:  15 * time.Second,
			MetricsNamespace: "soundboard",
			JobRetention:     2 * time.Minute,
		},
		Backend: backend.Config{
			Mode:        backend.ModeMock,
			HTTPTimeout: 60 * time.Second,
			SampleRate:  24000,
		},
		Output: OutputConfig{
			Delivery:     string(speech.DeliveryPath),
			Concat:       true,
			DefaultVoice: voices.DefaultVoiceID,
			SfxEnabled:   true,
		},
		Limits:    limits.Default(),
		Telemetry: telemetry.Config{Exporter: telemetry.ExporterNone},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load applies defaults, then the YAML file at path (or $SOUNDBOARD_CONFIG),
// then SOUNDBOARD_* environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) == "" {
		path = stringsTrimSpace("SOUNDBOARD_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Limits = cfg.Limits.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	o := &overrides{}
	o.setString(&cfg.Server.BindAddr, "SOUNDBOARD_BIND_ADDR")
	o.setDuration(&cfg.Server.ShutdownTimeout, "SOUNDBOARD_SHUTDOWN_TIMEOUT")
	o.setString(&cfg.Server.MetricsNamespace, "SOUNDBOARD_METRICS_NAMESPACE")
	o.setBool(&cfg.Server.AllowAnyOrigin, "SOUNDBOARD_ALLOW_ANY_ORIGIN")
	o.setDuration(&cfg.Server.JobRetention, "SOUNDBOARD_JOB_RETENTION")

	o.setString(&cfg.Backend.Mode, "SOUNDBOARD_BACKEND")
	o.setString(&cfg.Backend.BridgeCommand, "SOUNDBOARD_BRIDGE_CMD")
	o.setString(&cfg.Backend.HTTPURL, "SOUNDBOARD_BACKEND_URL")
	o.setDuration(&cfg.Backend.HTTPTimeout, "SOUNDBOARD_BACKEND_TIMEOUT")
	o.setInt(&cfg.Backend.SampleRate, "SOUNDBOARD_SAMPLE_RATE")

	o.setString(&cfg.Output.Dir, "SOUNDBOARD_OUTPUT_DIR")
	o.setString(&cfg.Output.Delivery, "SOUNDBOARD_DELIVERY")
	o.setBool(&cfg.Output.Concat, "SOUNDBOARD_CONCAT")
	o.setString(&cfg.Output.DefaultVoice, "SOUNDBOARD_DEFAULT_VOICE")
	o.setBool(&cfg.Output.SfxEnabled, "SOUNDBOARD_SFX_ENABLED")

	o.setInt(&cfg.Limits.MaxTextChars, "SOUNDBOARD_MAX_TEXT_CHARS")
	o.setInt(&cfg.Limits.MaxChunkChars, "SOUNDBOARD_MAX_CHUNK_CHARS")
	o.setInt(&cfg.Limits.MaxChunks, "SOUNDBOARD_MAX_CHUNKS")
	o.setInt(&cfg.Limits.MaxConcurrent, "SOUNDBOARD_MAX_CONCURRENT")
	o.setInt(&cfg.Limits.MaxQueued, "SOUNDBOARD_MAX_QUEUED")
	o.setInt(&cfg.Limits.RateLimitCalls, "SOUNDBOARD_RATE_LIMIT_CALLS")
	o.setDuration(&cfg.Limits.RateLimitWindow, "SOUNDBOARD_RATE_LIMIT_WINDOW")
	o.setDuration(&cfg.Limits.SynthesisTimeout, "SOUNDBOARD_SYNTHESIS_TIMEOUT")

	// DATABASE_URL is honored for platforms that inject it.
	o.setString(&cfg.History.DatabaseURL, "DATABASE_URL")
	o.setString(&cfg.History.DatabaseURL, "SOUNDBOARD_DATABASE_URL")
	o.setString(&cfg.Artifacts.NatsURL, "SOUNDBOARD_NATS_URL")
	o.setString(&cfg.Artifacts.Bucket, "SOUNDBOARD_NATS_BUCKET")

	o.setString(&cfg.Telemetry.Exporter, "SOUNDBOARD_TRACE_EXPORTER")
	o.setString(&cfg.Telemetry.OTLPEndpoint, "SOUNDBOARD_OTLP_ENDPOINT")
	o.setBool(&cfg.Telemetry.OTLPInsecure, "SOUNDBOARD_OTLP_INSECURE")

	o.setString(&cfg.Log.Level, "SOUNDBOARD_LOG_LEVEL")
	o.setString(&cfg.Log.Format, "SOUNDBOARD_LOG_FORMAT")
	return o.err
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if _, ok := speech.ParseDeliveryMode(c.Output.Delivery); !ok {
		errs = append(errs, fmt.Errorf("output.delivery %q must be path or base64", c.Output.Delivery))
	}
	if c.Output.DefaultVoice != "" {
		if _, ok := voices.Resolve(c.Output.DefaultVoice); !ok {
			errs = append(errs, fmt.Errorf("output.default_voice %q is not an approved voice or preset", c.Output.DefaultVoice))
		}
	}
	switch strings.ToLower(c.Backend.Mode) {
	case backend.ModeMock, backend.ModeHTTP, backend.ModeBridge, backend.ModeAuto:
	default:
		errs = append(errs, fmt.Errorf("backend.mode %q must be one of mock, http, bridge, auto", c.Backend.Mode))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text, json or logfmt", c.Log.Format))
	}
	if err := c.Limits.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// overrides keeps the first parse error so callers can chain lookups.
type overrides struct {
	err error
}

func (o *overrides) setString(dst *string, key string) {
	if v := stringsTrimSpace(key); v != "" {
		*dst = v
	}
}

func (o *overrides) setInt(dst *int, key string) {
	n, err := intFromEnv(key, *dst)
	o.keep(err)
	*dst = n
}

func (o *overrides) setDuration(dst *time.Duration, key string) {
	d, err := durationFromEnv(key, *dst)
	o.keep(err)
	*dst = d
}

func (o *overrides) setBool(dst *bool, key string) {
	b, err := boolFromEnv(key, *dst)
	o.keep(err)
	*dst = b
}

func (o *overrides) keep(err error) {
	if err != nil && o.err == nil {
		o.err = err
	}
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return fallback, fmt.Errorf("%s parse error: expected bool", key)
	}
}
