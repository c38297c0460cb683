// Package limits centralizes every size, count and time bound used by the
// parsers, the chunker, the orchestrator and the guardrails.
package limits

import (
	"fmt"
	"time"
)

type Limits struct {
	// Text and chunking.
	MaxTextChars  int `yaml:"max_text_chars"`
	MaxChunkChars int `yaml:"max_chunk_chars"`
	MinChunkChars int `yaml:"min_chunk_chars"`
	MaxChunks     int `yaml:"max_chunks"`

	// SSML-lite.
	MaxSSMLNodes int `yaml:"max_ssml_nodes"`
	MaxSSMLChars int `yaml:"max_ssml_chars"`
	MaxBreakMs   int `yaml:"max_break_ms"`

	// SFX.
	MaxSfxEvents int `yaml:"max_sfx_events"`

	// Dialogue.
	MaxSpeakers int `yaml:"max_speakers"`
	MaxCues     int `yaml:"max_cues"`
	MaxPauseMs  int `yaml:"max_pause_ms"`

	// Guardrails.
	MaxConcurrent    int           `yaml:"max_concurrent"`
	MaxQueued        int           `yaml:"max_queued"`
	RateLimitCalls   int           `yaml:"rate_limit_calls"`
	RateLimitWindow  time.Duration `yaml:"rate_limit_window"`
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`
}

const (
	DefaultMaxTextChars     = 20000
	DefaultMaxChunkChars    = 500
	DefaultMinChunkChars    = 40
	DefaultMaxChunks        = 60
	DefaultMaxSSMLNodes     = 500
	DefaultMaxSSMLChars     = 20000
	DefaultMaxBreakMs       = 5000
	DefaultMaxSfxEvents     = 10
	DefaultMaxSpeakers      = 8
	DefaultMaxCues          = 200
	DefaultMaxPauseMs       = 5000
	DefaultMaxConcurrent    = 1
	DefaultMaxQueued        = 1
	DefaultRateLimitCalls   = 30
	DefaultRateLimitWindow  = 60 * time.Second
	DefaultSynthesisTimeout = 120 * time.Second
)

func Default() Limits {
	return Limits{
		MaxTextChars:     DefaultMaxTextChars,
		MaxChunkChars:    DefaultMaxChunkChars,
		MinChunkChars:    DefaultMinChunkChars,
		MaxChunks:        DefaultMaxChunks,
		MaxSSMLNodes:     DefaultMaxSSMLNodes,
		MaxSSMLChars:     DefaultMaxSSMLChars,
		MaxBreakMs:       DefaultMaxBreakMs,
		MaxSfxEvents:     DefaultMaxSfxEvents,
		MaxSpeakers:      DefaultMaxSpeakers,
		MaxCues:          DefaultMaxCues,
		MaxPauseMs:       DefaultMaxPauseMs,
		MaxConcurrent:    DefaultMaxConcurrent,
		MaxQueued:        DefaultMaxQueued,
		RateLimitCalls:   DefaultRateLimitCalls,
		RateLimitWindow:  DefaultRateLimitWindow,
		SynthesisTimeout: DefaultSynthesisTimeout,
	}
}

// WithDefaults fills every non-positive size field from Default. Timeout is
// left alone because zero disables it.
func (l Limits) WithDefaults() Limits {
	d := Default()
	fill := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&l.MaxTextChars, d.MaxTextChars)
	fill(&l.MaxChunkChars, d.MaxChunkChars)
	fill(&l.MinChunkChars, d.MinChunkChars)
	fill(&l.MaxChunks, d.MaxChunks)
	fill(&l.MaxSSMLNodes, d.MaxSSMLNodes)
	fill(&l.MaxSSMLChars, d.MaxSSMLChars)
	fill(&l.MaxBreakMs, d.MaxBreakMs)
	fill(&l.MaxSfxEvents, d.MaxSfxEvents)
	fill(&l.MaxSpeakers, d.MaxSpeakers)
	fill(&l.MaxCues, d.MaxCues)
	fill(&l.MaxPauseMs, d.MaxPauseMs)
	fill(&l.MaxConcurrent, d.MaxConcurrent)
	fill(&l.RateLimitCalls, d.RateLimitCalls)
	fill(&l.MaxQueued, d.MaxQueued)
	if l.RateLimitWindow <= 0 {
		l.RateLimitWindow = d.RateLimitWindow
	}
	return l
}

func (l Limits) Validate() error {
	if l.MinChunkChars > l.MaxChunkChars {
		return fmt.Errorf("min_chunk_chars (%d) exceeds max_chunk_chars (%d)", l.MinChunkChars, l.MaxChunkChars)
	}
	if l.MaxChunkChars > l.MaxTextChars {
		return fmt.Errorf("max_chunk_chars (%d) exceeds max_text_chars (%d)", l.MaxChunkChars, l.MaxTextChars)
	}
	if l.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1")
	}
	if l.MaxQueued < 0 {
		return fmt.Errorf("max_queued must not be negative")
	}
	if l.SynthesisTimeout < 0 {
		return fmt.Errorf("synthesis_timeout must not be negative")
	}
	return nil
}
