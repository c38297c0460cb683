package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/soundboard/internal/reliability"
	"github.com/ent0n29/soundboard/internal/speech"
)

const (
	httpSynthesizePath = "/v1/synthesize"
	httpHealthPath     = "/health"
	maxResponseBytes   = 64 << 20
)

// HTTP proxies synthesize calls to a remote speech service speaking the
// bridge JSON shapes over POST.
type HTTP struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

func NewHTTP(baseURL string, timeout time.Duration, logger *log.Logger) *HTTP {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTP{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  discardLogger(logger).WithPrefix("http-backend"),
	}
}

func (h *HTTP) Name() string { return "http" }

func (h *HTTP) Health(ctx context.Context) (HealthInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+httpHealthPath, http.NoBody)
	if err != nil {
		return HealthInfo{}, fmt.Errorf("create health request: %w", err)
	}
	var resp wireResponse
	if err := h.do(req, &resp); err != nil {
		return HealthInfo{}, err
	}
	if err := resp.err(); err != nil {
		return HealthInfo{}, err
	}
	return HealthInfo{Model: resp.Model, SampleRate: resp.SampleRate}, nil
}

func (h *HTTP) Synthesize(ctx context.Context, r Request) (speech.ChunkArtifact, error) {
	r = withDefaults(r)
	body, err := json.Marshal(r)
	if err != nil {
		return speech.ChunkArtifact{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+httpSynthesizePath, bytes.NewReader(body))
	if err != nil {
		return speech.ChunkArtifact{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	var resp wireResponse
	if err := h.do(req, &resp); err != nil {
		return speech.ChunkArtifact{}, err
	}
	h.logger.Debug("chunk synthesized", "chunk", r.ChunkIndex, "voice", r.VoiceID, "elapsed", time.Since(started))
	return resp.artifact(r.Delivery)
}

func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

func (h *HTTP) do(req *http.Request, out *wireResponse) error {
	res, err := h.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return unavailable(err, "request to %s", h.baseURL)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return unavailable(err, "read response")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return h.statusError(res.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return failed(err, "decode response")
	}
	return nil
}

func (h *HTTP) statusError(status int, raw []byte) error {
	var parsed wireResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != nil {
		if reliability.IsRetryableHTTPStatus(status) {
			return speech.Errorf(speech.CodeBackendUnavailable, "status %d: %s", status, parsed.Error.Message)
		}
		return remoteError(parsed.Error.Code, parsed.Error.Message)
	}
	msg := strings.TrimSpace(string(raw))
	if reliability.IsRetryableHTTPStatus(status) {
		return speech.Errorf(speech.CodeBackendUnavailable, "status %d: %s", status, msg)
	}
	return speech.Errorf(speech.CodeSynthesisFailed, "status %d: %s", status, msg)
}
