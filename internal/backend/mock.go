package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ent0n29/soundboard/internal/audio"
	"github.com/ent0n29/soundboard/internal/speech"
)

const (
	mockMsPerChar   = 60
	mockMinDuration = 200
)

// Mock returns silence sized to the text. It needs no model and is the default
// when nothing else is configured.
type Mock struct {
	SampleRate int
}

func NewMock() *Mock {
	return &Mock{SampleRate: audio.DefaultSampleRate}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Health(context.Context) (HealthInfo, error) {
	return HealthInfo{Model: "mock-silence", SampleRate: m.rate()}, nil
}

func (m *Mock) Synthesize(ctx context.Context, req Request) (speech.ChunkArtifact, error) {
	if err := ctx.Err(); err != nil {
		return speech.ChunkArtifact{}, err
	}
	req = withDefaults(req)
	durationMs := utf8.RuneCountInString(req.Text) * mockMsPerChar
	if durationMs < mockMinDuration {
		durationMs = mockMinDuration
	}
	wav := audio.Silence(durationMs, m.rate())
	art := speech.ChunkArtifact{DurationMs: durationMs, SampleRate: m.rate(), Format: "wav"}

	if req.Delivery == speech.DeliveryBase64 {
		art.AudioBase64 = base64.StdEncoding.EncodeToString(wav)
		return art, nil
	}
	dir := req.OutputDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("mock-%03d-%s.wav", req.ChunkIndex, uuid.NewString()[:8]))
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return speech.ChunkArtifact{}, failed(err, "write mock audio")
	}
	art.AudioPath = path
	return art, nil
}

func (m *Mock) Close() error { return nil }

func (m *Mock) rate() int {
	if m.SampleRate <= 0 {
		return audio.DefaultSampleRate
	}
	return m.SampleRate
}
