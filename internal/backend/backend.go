// Package backend holds the speech model adapters. Each one turns a single
// chunk of text into an audio artifact.
package backend

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/soundboard/internal/speech"
)

// Request is one synthesize call. Wire names match the bridge protocol.
type Request struct {
	Text       string              `json:"text"`
	VoiceID    string              `json:"voice"`
	Speed      float64             `json:"speed"`
	Format     string              `json:"format"`
	OutputDir  string              `json:"output_dir,omitempty"`
	Delivery   speech.DeliveryMode `json:"artifact_mode"`
	Emotion    string              `json:"emotion,omitempty"`
	ChunkIndex int                 `json:"chunk_index"`
}

type HealthInfo struct {
	Model      string `json:"model"`
	SampleRate int    `json:"sample_rate"`
}

type Backend interface {
	Name() string
	Health(ctx context.Context) (HealthInfo, error)
	Synthesize(ctx context.Context, req Request) (speech.ChunkArtifact, error)
	Close() error
}

// Interrupter is implemented by backends that can abandon in-flight work.
type Interrupter interface {
	Interrupt(ctx context.Context) (bool, error)
}

func unavailable(err error, format string, args ...any) error {
	return speech.Wrap(speech.CodeBackendUnavailable, err, format, args...)
}

func failed(err error, format string, args ...any) error {
	return speech.Wrap(speech.CodeSynthesisFailed, err, format, args...)
}

// remoteError maps an {code, message} error body from a bridge or HTTP backend.
func remoteError(code, message string) error {
	c := speech.ErrorCode(code)
	switch c {
	case speech.CodeBackendUnavailable, speech.CodeSynthesisFailed:
	case "":
		c = speech.CodeSynthesisFailed
	default:
		message = code + ": " + message
		c = speech.CodeSynthesisFailed
	}
	return speech.Errorf(c, "%s", message)
}

func discardLogger(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return log.New(io.Discard)
}

func withDefaults(req Request) Request {
	if req.Format == "" {
		req.Format = "wav"
	}
	if req.Speed <= 0 {
		req.Speed = 1.0
	}
	if req.Delivery == "" {
		req.Delivery = speech.DeliveryPath
	}
	return req
}
