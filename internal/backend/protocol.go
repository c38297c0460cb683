package backend

import (
	"strings"

	"github.com/ent0n29/soundboard/internal/speech"
)

// wireResponse is the response shape shared by the bridge subprocess and the
// HTTP backend.
type wireResponse struct {
	ID          string     `json:"id,omitempty"`
	OK          bool       `json:"ok"`
	AudioPath   string     `json:"audio_path,omitempty"`
	AudioBase64 string     `json:"audio_bytes_base64,omitempty"`
	DurationMs  int        `json:"duration_ms"`
	SampleRate  int        `json:"sample_rate"`
	Format      string     `json:"format"`
	Model       string     `json:"model,omitempty"`
	Interrupted bool       `json:"interrupted,omitempty"`
	Error       *wireError `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r wireResponse) err() error {
	if r.OK {
		return nil
	}
	if r.Error == nil {
		return speech.Errorf(speech.CodeSynthesisFailed, "backend returned ok=false without an error")
	}
	return remoteError(r.Error.Code, strings.TrimSpace(r.Error.Message))
}

func (r wireResponse) artifact(mode speech.DeliveryMode) (speech.ChunkArtifact, error) {
	if err := r.err(); err != nil {
		return speech.ChunkArtifact{}, err
	}
	art := speech.ChunkArtifact{
		AudioPath:   r.AudioPath,
		AudioBase64: r.AudioBase64,
		DurationMs:  r.DurationMs,
		SampleRate:  r.SampleRate,
		Format:      r.Format,
	}
	if art.Format == "" {
		art.Format = "wav"
	}
	if err := art.Validate(mode); err != nil {
		return speech.ChunkArtifact{}, failed(err, "backend response")
	}
	return art, nil
}
