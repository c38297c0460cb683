// Package service validates speech requests, runs them through the guardrails
// and the orchestrator, and records the outcome.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ent0n29/soundboard/internal/backend"
	"github.com/ent0n29/soundboard/internal/guardrail"
	"github.com/ent0n29/soundboard/internal/history"
	"github.com/ent0n29/soundboard/internal/jobs"
	"github.com/ent0n29/soundboard/internal/limits"
	"github.com/ent0n29/soundboard/internal/observability"
	"github.com/ent0n29/soundboard/internal/orchestrator"
	"github.com/ent0n29/soundboard/internal/speech"
	"github.com/ent0n29/soundboard/internal/voices"
)

const historyWriteTimeout = 5 * time.Second

// Mirror receives finished artifacts. The NATS object store implements it.
type Mirror interface {
	Upload(ctx context.Context, key string, data []byte) error
	UploadFile(ctx context.Context, key, path string) error
}

// OutputDir resolves artifact names to paths and exposes its root so
// backends can write chunk files next to the joined file.
type OutputDir interface {
	orchestrator.PathResolver
	Root() string
}

type Options struct {
	Backend      backend.Backend
	Limits       limits.Limits
	Output       OutputDir
	Delivery     speech.DeliveryMode
	Concat       bool
	SfxEnabled   bool
	DefaultVoice string
	SampleRate   int

	Jobs    *jobs.Manager
	History history.Store
	Mirror  Mirror
	Metrics *observability.Metrics
	Tracer  trace.Tracer
	Logger  *log.Logger
}

// Service owns the process-lifetime guardrail state. Build one per server.
type Service struct {
	backend backend.Backend
	limits  limits.Limits
	output  OutputDir

	delivery     speech.DeliveryMode
	concat       bool
	sfxEnabled   bool
	defaultVoice string
	sampleRate   int

	sem     *guardrail.Semaphore
	limiter *guardrail.RateLimiter

	jobs    *jobs.Manager
	history history.Store
	mirror  Mirror
	metrics *observability.Metrics
	tracer  trace.Tracer
	logger  *log.Logger
}

func New(opts Options) (*Service, error) {
	if opts.Backend == nil {
		return nil, errors.New("service requires a backend")
	}
	if opts.Output == nil {
		return nil, errors.New("service requires an output directory")
	}
	lim := opts.Limits.WithDefaults()
	if err := lim.Validate(); err != nil {
		return nil, err
	}
	delivery := opts.Delivery
	if delivery == "" {
		delivery = speech.DeliveryPath
	}
	defaultVoice := voices.DefaultVoiceID
	if opts.DefaultVoice != "" {
		id, ok := voices.Resolve(opts.DefaultVoice)
		if !ok {
			return nil, speech.Errorf(speech.CodeInvalidVoice, "default voice %q is not approved", opts.DefaultVoice)
		}
		defaultVoice = id
	}

	s := &Service{
		backend:      opts.Backend,
		limits:       lim,
		output:       opts.Output,
		delivery:     delivery,
		concat:       opts.Concat,
		sfxEnabled:   opts.SfxEnabled,
		defaultVoice: defaultVoice,
		sampleRate:   opts.SampleRate,
		sem:          guardrail.NewSemaphore(lim.MaxConcurrent, lim.MaxQueued),
		limiter:      guardrail.NewRateLimiter(lim.RateLimitCalls, lim.RateLimitWindow),
		jobs:         opts.Jobs,
		history:      opts.History,
		mirror:       opts.Mirror,
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
		logger:       opts.Logger,
	}
	if s.jobs == nil {
		s.jobs = jobs.NewManager(0)
	}
	if s.history == nil {
		s.history = history.NewInMemoryStore(0)
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics("soundboard")
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("soundboard")
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	return s, nil
}

func (s *Service) Limits() limits.Limits                { return s.limits }
func (s *Service) Jobs() *jobs.Manager                  { return s.jobs }
func (s *Service) History() history.Store               { return s.history }
func (s *Service) Metrics() *observability.Metrics      { return s.metrics }
func (s *Service) Guardrails() guardrail.SemaphoreStats { return s.sem.Stats() }

// Reset clears semaphore and rate-limit state.
func (s *Service) Reset() {
	s.sem.Reset()
	s.limiter.Reset()
}

// Health reports the backend's model and sample rate.
func (s *Service) Health(ctx context.Context) (backend.HealthInfo, error) {
	return s.backend.Health(ctx)
}

// Interrupt aborts the job's remaining schedule. The chunk already in flight
// completes. It reports false when the job had already finished.
func (s *Service) Interrupt(ctx context.Context, jobID string) (bool, error) {
	ok, err := s.jobs.Interrupt(jobID)
	if err != nil || !ok {
		return ok, err
	}
	s.logger.Info("job interrupted", "job_id", jobID)
	if in, isInterrupter := s.backend.(backend.Interrupter); isInterrupter {
		if _, err := in.Interrupt(ctx); err != nil {
			s.logger.Warn("backend interrupt failed", "job_id", jobID, "err", err)
		}
	}
	return true, nil
}

type run struct {
	kind      jobs.Kind
	mode      string
	clientKey string
	voiceID   string
	text      string
	delivery  speech.DeliveryMode
	concat    bool
	onStart   func(jobID string)
	onChunk   func(orchestrator.ChunkEvent)
	exec      func(ctx context.Context, opts orchestrator.Options, synth orchestrator.SynthesizeFunc) (speech.SpeechResult, error)
	base      backend.Request
}

// execute applies rate limit, then semaphore, then timeout around r.exec.
func (s *Service) execute(ctx context.Context, r run) (speech.SpeechResult, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, string(r.kind), trace.WithAttributes(
		attribute.String("soundboard.mode", r.mode),
		attribute.String("soundboard.voice", r.voiceID),
	))
	defer span.End()

	if err := s.limiter.Allow(r.clientKey); err != nil {
		s.reject(span, "rate_limited", err)
		return speech.SpeechResult{}, err
	}

	var res speech.SpeechResult
	err := s.sem.Run(ctx, func(ctx context.Context) error {
		s.observeGuardrails()
		defer s.observeGuardrails()

		job := s.jobs.Start(r.kind, r.clientKey)
		span.SetAttributes(attribute.String("soundboard.job_id", job.ID))
		if r.onStart != nil {
			r.onStart(job.ID)
		}

		opts := orchestrator.Options{
			JobID:      job.ID,
			Chunking:   chunkingFor(s.limits),
			Concat:     r.concat,
			Delivery:   r.delivery,
			Token:      job.Token,
			Output:     s.output,
			SampleRate: s.sampleRate,
			OnChunk:    s.chunkObserver(started, r.onChunk),
		}

		var runErr error
		res, runErr = guardrail.WithTimeout(ctx, s.limits.SynthesisTimeout, func(ctx context.Context) (speech.SpeechResult, error) {
			out, err := r.exec(ctx, opts, s.synthFunc(r.base))
			s.finishJob(job.ID, out, err)
			return out, err
		})
		if runErr != nil {
			if code, _ := speech.CodeOf(runErr); code == speech.CodeTimeout {
				job.Token.Abort()
				s.logger.Warn("synthesis timed out; remaining chunks abandoned", "job_id", job.ID, "timeout", s.limits.SynthesisTimeout)
			}
			res = speech.SpeechResult{JobID: job.ID}
		}
		return runErr
	})

	outcome := "ok"
	switch {
	case errors.Is(err, guardrail.ErrBusy):
		s.reject(span, "busy", err)
		return speech.SpeechResult{}, err
	case err != nil:
		outcome = "error"
		if code, ok := speech.CodeOf(err); ok {
			outcome = string(code)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.Interrupted:
		outcome = "interrupted"
	}
	s.metrics.ObserveRequest(string(r.kind), outcome, time.Since(started))
	for _, w := range res.Warnings {
		s.metrics.ObserveWarning(string(w.Code))
	}
	span.SetAttributes(
		attribute.Int("soundboard.chunks", res.ChunkCount),
		attribute.Int("soundboard.duration_ms", res.TotalDurationMs),
	)

	s.record(r, res, err)
	if err == nil {
		s.mirrorResult(ctx, res)
	}
	return res, err
}

func (s *Service) reject(span trace.Span, reason string, err error) {
	s.metrics.Rejections.WithLabelValues(reason).Inc()
	span.SetStatus(codes.Error, reason)
	s.logger.Debug("request rejected", "reason", reason, "err", err)
}

func (s *Service) observeGuardrails() {
	st := s.sem.Stats()
	s.metrics.ActiveJobs.Set(float64(st.Active))
	s.metrics.QueuedJobs.Set(float64(st.Waiting))
}

func (s *Service) chunkObserver(started time.Time, next func(orchestrator.ChunkEvent)) func(orchestrator.ChunkEvent) {
	return func(ev orchestrator.ChunkEvent) {
		if ev.Index == 0 {
			s.metrics.ObserveFirstChunk(time.Since(started))
		}
		if next != nil {
			next(ev)
		}
	}
}

// synthFunc binds the request's voice settings to the backend. Per-chunk
// emotion or speaker context overrides them.
func (s *Service) synthFunc(base backend.Request) orchestrator.SynthesizeFunc {
	return func(ctx context.Context, text string, chunkIndex int, emo *orchestrator.EmotionContext) (speech.ChunkArtifact, error) {
		req := base
		req.Text = text
		req.ChunkIndex = chunkIndex
		if emo != nil {
			if emo.VoiceID != "" {
				req.VoiceID = emo.VoiceID
			}
			if emo.Speed > 0 {
				req.Speed = emo.Speed
			}
			req.Emotion = emo.Emotion
		}
		started := time.Now()
		art, err := s.backend.Synthesize(ctx, req)
		if err != nil {
			code, ok := speech.CodeOf(err)
			if !ok {
				code = "UNKNOWN"
			}
			s.metrics.BackendErrors.WithLabelValues(s.backend.Name(), string(code)).Inc()
			return speech.ChunkArtifact{}, err
		}
		s.metrics.ObserveChunk(time.Since(started))
		return art, nil
	}
}

func (s *Service) finishJob(jobID string, res speech.SpeechResult, err error) {
	status := jobs.StatusDone
	switch {
	case err != nil:
		status = jobs.StatusFailed
	case res.Interrupted:
		status = jobs.StatusInterrupted
	}
	if _, ferr := s.jobs.Finish(jobID, status); ferr != nil {
		s.logger.Warn("finish job", "job_id", jobID, "err", ferr)
	}
}

func (s *Service) record(r run, res speech.SpeechResult, err error) {
	rec := history.Record{
		JobID:           res.JobID,
		Kind:            string(r.kind),
		Mode:            r.mode,
		ClientKey:       r.clientKey,
		VoiceID:         r.voiceID,
		Preview:         history.Preview(r.text),
		ChunkCount:      res.ChunkCount,
		PlannedCount:    res.PlannedCount,
		TotalDurationMs: res.TotalDurationMs,
		Interrupted:     res.Interrupted,
	}
	rec.Warnings = speech.WarningCodes(res.Warnings)
	if err != nil {
		if code, ok := speech.CodeOf(err); ok {
			rec.ErrorCode = string(code)
		} else {
			rec.ErrorCode = "INTERNAL"
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	if err := s.history.Save(ctx, rec); err != nil {
		s.logger.Warn("history write failed", "job_id", rec.JobID, "err", err)
	}
}

// mirrorResult uploads the joined artifact, or the only chunk, when a mirror
// is configured. Failures are logged and never surface to the caller.
func (s *Service) mirrorResult(ctx context.Context, res speech.SpeechResult) {
	if s.mirror == nil || res.Interrupted {
		return
	}
	key := res.JobID + ".wav"
	var err error
	switch {
	case res.ConcatPath != "":
		err = s.mirror.UploadFile(ctx, key, res.ConcatPath)
	case res.ConcatBase64 != "":
		err = s.uploadBase64(ctx, key, res.ConcatBase64)
	case len(res.Chunks) == 1 && res.Chunks[0].AudioPath != "":
		err = s.mirror.UploadFile(ctx, key, res.Chunks[0].AudioPath)
	case len(res.Chunks) == 1:
		err = s.uploadBase64(ctx, key, res.Chunks[0].AudioBase64)
	default:
		return
	}
	if err != nil {
		s.logger.Warn("artifact mirror failed", "job_id", res.JobID, "err", err)
		return
	}
	s.logger.Debug("artifact mirrored", "job_id", res.JobID, "key", key)
}

func (s *Service) uploadBase64(ctx context.Context, key, encoded string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	return s.mirror.Upload(ctx, key, data)
}
