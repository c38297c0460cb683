package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/soundboard/internal/config"
	"github.com/ent0n29/soundboard/internal/reliability"
	"github.com/ent0n29/soundboard/internal/service"
	"github.com/ent0n29/soundboard/internal/speech"
)

const (
	maxBodyBytes       = 1 << 20
	readyTimeout       = 3 * time.Second
	defaultHistorySize = 20
	maxHistorySize     = 200
)

type Server struct {
	cfg      config.ServerConfig
	svc      *service.Service
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.ServerConfig, svc *service.Service, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Server{
		cfg:    cfg,
		svc:    svc,
		logger: logger.WithPrefix("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the same origin unless configured otherwise.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", s.svc.Metrics().Handler())

	r.Get("/v1/voices", s.handleVoices)
	r.Post("/v1/speak", s.handleSpeak)
	r.Post("/v1/dialogue", s.handleDialogue)
	r.Get("/v1/speak/ws", s.handleSpeakWS)
	r.Get("/v1/jobs/{id}", s.handleGetJob)
	r.Post("/v1/jobs/{id}/interrupt", s.handleInterrupt)
	r.Get("/v1/history", s.handleHistory)
	r.Get("/v1/stats", s.handleStats)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(started),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_jobs": s.svc.Jobs().ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	info, err := s.svc.Health(ctx)
	if err != nil {
		respondSpeechError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ready",
		"model":       info.Model,
		"sample_rate": info.SampleRate,
	})
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Voices())
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req service.SpeakRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, string(speech.CodeInvalidInput), err.Error())
		return
	}
	req.ClientKey = clientKey(r)
	res, err := s.svc.Speak(r.Context(), req)
	if err != nil {
		respondSpeechError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleDialogue(w http.ResponseWriter, r *http.Request) {
	var req service.DialogueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, string(speech.CodeInvalidInput), err.Error())
		return
	}
	req.ClientKey = clientKey(r)
	res, err := s.svc.SpeakDialogue(r.Context(), req)
	if err != nil {
		respondSpeechError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Jobs().Get(chi.URLParam(r, "id"))
	if err != nil {
		respondSpeechError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	interrupted, err := s.svc.Interrupt(r.Context(), id)
	if err != nil {
		respondSpeechError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"job_id":      id,
		"interrupted": interrupted,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistorySize
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, string(speech.CodeInvalidInput), "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistorySize)
	}
	records, err := s.svc.History().Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("history lookup failed", "err", err)
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"latency":     s.svc.Metrics().Window.Snapshot(),
		"guardrails":  s.svc.Guardrails(),
		"active_jobs": s.svc.Jobs().ActiveCount(),
	})
}

// clientKey identifies the caller for rate limiting.
func clientKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Client-ID")); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{
		Error:     message,
		Code:      code,
		Retryable: reliability.IsRetryableCode(speech.ErrorCode(code)),
	})
}

func respondSpeechError(w http.ResponseWriter, err error) {
	code, ok := speech.CodeOf(err)
	if !ok {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.Header().Set("X-Error-Code", string(code))
	if code == speech.CodeRateLimited || code == speech.CodeBusy {
		w.Header().Set("Retry-After", "1")
	}
	respondError(w, statusForCode(code), string(code), err.Error())
}

func statusForCode(code speech.ErrorCode) int {
	switch code {
	case speech.CodeBusy:
		return http.StatusServiceUnavailable
	case speech.CodeRateLimited:
		return http.StatusTooManyRequests
	case speech.CodeTimeout:
		return http.StatusGatewayTimeout
	case speech.CodeJobNotFound:
		return http.StatusNotFound
	case speech.CodeBackendUnavailable, speech.CodeSynthesisFailed:
		return http.StatusBadGateway
	case speech.CodeInvalidInput, speech.CodeInvalidVoice, speech.CodeDialogueEmpty,
		speech.CodeTooManySpeakers, speech.CodeTooManyCues:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
