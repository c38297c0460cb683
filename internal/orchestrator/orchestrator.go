// Package orchestrator drives chunk-by-chunk synthesis of a normalized request
// and assembles the per-chunk artifacts into one result.
package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ent0n29/soundboard/internal/audio"
	"github.com/ent0n29/soundboard/internal/chunker"
	"github.com/ent0n29/soundboard/internal/limits"
	"github.com/ent0n29/soundboard/internal/markup"
	"github.com/ent0n29/soundboard/internal/speech"
)

// EmotionContext carries per-chunk voice settings. It is nil when the caller
// binds a single voice and speed for the whole plan.
type EmotionContext struct {
	Emotion string
	Speaker string
	VoiceID string
	Speed   float64
}

// SynthesizeFunc is the only call out to a speech backend.
type SynthesizeFunc func(ctx context.Context, text string, chunkIndex int, emo *EmotionContext) (speech.ChunkArtifact, error)

// PathResolver maps an artifact file name to a writable path.
type PathResolver interface {
	Resolve(name string) (string, error)
}

type ChunkEvent struct {
	JobID    string
	Index    int
	Planned  int
	Text     string
	Artifact speech.ChunkArtifact
}

type Options struct {
	JobID      string
	Chunking   chunker.Options
	Concat     bool
	Delivery   speech.DeliveryMode
	Token      *CancelToken
	Output     PathResolver
	SampleRate int
	OnChunk    func(ChunkEvent)
}

func (o Options) withDefaults() Options {
	if o.JobID == "" {
		o.JobID = uuid.NewString()
	}
	if o.Delivery == "" {
		o.Delivery = speech.DeliveryPath
	}
	if o.SampleRate <= 0 {
		o.SampleRate = audio.DefaultSampleRate
	}
	if o.Output == nil {
		o.Output = tempResolver{}
	}
	return o
}

type tempResolver struct{}

func (tempResolver) Resolve(name string) (string, error) {
	return filepath.Join(os.TempDir(), name), nil
}

// step is one scheduled unit: either text for the backend or a pre-rendered clip.
type step struct {
	text string
	emo  *EmotionContext
	clip []byte
}

// RunPlan synthesizes plan.PlainText with a single voice and speed.
func RunPlan(ctx context.Context, plan speech.SpeechPlan, synth SynthesizeFunc, opts Options) (speech.SpeechResult, error) {
	chunks := chunker.ChunkText(plan.PlainText, opts.Chunking)
	warnings := appendWarnings(nil, plan.Warnings, chunks.Warnings)
	steps := make([]step, 0, len(chunks.Chunks))
	for _, c := range chunks.Chunks {
		steps = append(steps, step{text: c})
	}
	return execute(ctx, steps, synth, opts, warnings)
}

// RunEmotionPlan parses emotion tags in text and synthesizes every span with
// its own voice and speed.
func RunEmotionPlan(ctx context.Context, text string, synth SynthesizeFunc, opts Options) (speech.SpeechResult, error) {
	parsed := markup.ParseEmotionSpans(text)
	var b scheduleBuilder
	b.warn(parsed.Warnings...)
	for _, span := range parsed.Spans {
		b.addText(span.Text, &EmotionContext{Emotion: span.Emotion, VoiceID: span.VoiceID, Speed: span.Speed}, opts.Chunking)
	}
	steps, warnings := b.finish(opts.Chunking)
	return execute(ctx, steps, synth, opts, warnings)
}

// RunCues synthesizes a dialogue cue sheet line by line. Pauses become silence.
func RunCues(ctx context.Context, sheet speech.CueSheet, speed float64, synth SynthesizeFunc, opts Options) (speech.SpeechResult, error) {
	opts = opts.withDefaults()
	var b scheduleBuilder
	b.warn(sheet.Warnings...)
	for _, cue := range sheet.Cues {
		switch cue.Kind {
		case speech.CueLine:
			b.addText(cue.Text, &EmotionContext{Speaker: cue.Speaker, VoiceID: cue.VoiceID, Speed: speed}, opts.Chunking)
		case speech.CuePause:
			b.addClip(audio.Silence(cue.DurationMs, opts.SampleRate))
		}
	}
	steps, warnings := b.finish(opts.Chunking)
	return execute(ctx, steps, synth, opts, warnings)
}

// RunSfx synthesizes text segments and splices generated sound effects in place
// of SFX events.
func RunSfx(ctx context.Context, parsed speech.SfxParseResult, synth SynthesizeFunc, opts Options) (speech.SpeechResult, error) {
	opts = opts.withDefaults()
	var b scheduleBuilder
	b.warn(parsed.Warnings...)
	for _, seg := range parsed.Segments {
		switch seg.Kind {
		case speech.SegmentText:
			b.addText(seg.Text, nil, opts.Chunking)
		case speech.SegmentEvent:
			if seg.Event == nil || seg.Event.Kind != speech.EventSfx {
				continue
			}
			clip, err := audio.GenerateSfxWAVAt(seg.Event.Tag, opts.SampleRate)
			if err != nil {
				return speech.SpeechResult{}, speech.Wrap(speech.CodeSynthesisFailed, err, "render sound effect")
			}
			b.addClip(clip)
		}
	}
	steps, warnings := b.finish(opts.Chunking)
	return execute(ctx, steps, synth, opts, warnings)
}

// scheduleBuilder flattens several independently chunked units into one
// schedule. Per-unit CHUNKED_TEXT notices collapse into one for the whole
// schedule; the chunk cap applies to the schedule as a whole.
type scheduleBuilder struct {
	steps     []step
	warnings  []speech.Warning
	truncated bool
}

func (b *scheduleBuilder) warn(ws ...speech.Warning) {
	b.warnings = append(b.warnings, ws...)
}

func (b *scheduleBuilder) addText(text string, emo *EmotionContext, opts chunker.Options) {
	res := chunker.ChunkText(text, opts)
	for _, w := range res.Warnings {
		if w.Code == speech.WarnChunkedText {
			continue
		}
		if w.Code == speech.WarnTruncated {
			b.truncated = true
		}
		b.warnings = append(b.warnings, w)
	}
	for _, c := range res.Chunks {
		b.steps = append(b.steps, step{text: c, emo: emo})
	}
}

func (b *scheduleBuilder) addClip(wav []byte) {
	b.steps = append(b.steps, step{clip: wav})
}

func (b *scheduleBuilder) finish(opts chunker.Options) ([]step, []speech.Warning) {
	maxChunks := opts.MaxChunks
	if maxChunks <= 0 {
		maxChunks = limits.DefaultMaxChunks
	}
	if len(b.steps) > maxChunks {
		dropped := len(b.steps) - maxChunks
		b.steps = b.steps[:maxChunks]
		if !b.truncated {
			b.warn(speech.Warnf(speech.WarnTruncated, "%d chunks over the limit of %d were dropped", dropped, maxChunks))
		}
	}
	if len(b.steps) > 1 {
		b.warn(speech.Warnf(speech.WarnChunkedText, "request split into %d chunks", len(b.steps)))
	}
	return b.steps, b.warnings
}

func execute(ctx context.Context, steps []step, synth SynthesizeFunc, opts Options, warnings []speech.Warning) (speech.SpeechResult, error) {
	opts = opts.withDefaults()
	res := speech.SpeechResult{
		JobID:        opts.JobID,
		Chunks:       []speech.ChunkArtifact{},
		PlannedCount: len(steps),
		Warnings:     appendWarnings(nil, warnings),
	}

	for i, st := range steps {
		if opts.Token.Aborted() {
			res.Interrupted = true
			res.Warnings = append(res.Warnings, speech.Warnf(speech.WarnSynthesisInterrupted,
				"interrupted after %d of %d chunks", len(res.Chunks), len(steps)))
			break
		}
		if err := ctx.Err(); err != nil {
			return speech.SpeechResult{}, err
		}

		var (
			art speech.ChunkArtifact
			err error
		)
		if st.clip != nil {
			art, err = clipArtifact(st.clip, i, opts)
		} else {
			art, err = synth(ctx, st.text, i, st.emo)
		}
		if err != nil {
			return speech.SpeechResult{}, chunkError(i, err)
		}
		if err := art.Validate(opts.Delivery); err != nil {
			return speech.SpeechResult{}, speech.Wrap(speech.CodeSynthesisFailed, err, "chunk %d", i)
		}
		res.Chunks = append(res.Chunks, art)
		res.TotalDurationMs += art.DurationMs
		if opts.OnChunk != nil {
			opts.OnChunk(ChunkEvent{JobID: opts.JobID, Index: i, Planned: len(steps), Text: st.text, Artifact: art})
		}
	}
	res.ChunkCount = len(res.Chunks)

	if opts.Concat && res.ChunkCount > 1 && !res.Interrupted {
		if err := concatInto(&res, opts); err != nil {
			res.Warnings = append(res.Warnings, speech.Warnf(speech.WarnConcatFailed,
				"chunks could not be joined, returning them separately: %v", err))
		}
	}
	return res, nil
}

func chunkError(i int, err error) error {
	if _, ok := speech.CodeOf(err); ok {
		return fmt.Errorf("chunk %d: %w", i, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return speech.Wrap(speech.CodeSynthesisFailed, err, "chunk %d", i)
}

func concatInto(res *speech.SpeechResult, opts Options) error {
	switch opts.Delivery {
	case speech.DeliveryBase64:
		encoded := make([]string, 0, len(res.Chunks))
		for _, c := range res.Chunks {
			encoded = append(encoded, c.AudioBase64)
		}
		b64, joined, err := audio.ConcatBase64(encoded)
		if err != nil {
			return err
		}
		res.ConcatBase64 = b64
		res.TotalDurationMs = joined.DurationMs
	default:
		paths := make([]string, 0, len(res.Chunks))
		for _, c := range res.Chunks {
			paths = append(paths, c.AudioPath)
		}
		out, err := opts.Output.Resolve(opts.JobID + "-full.wav")
		if err != nil {
			return err
		}
		joined, err := audio.ConcatFiles(paths, out)
		if err != nil {
			return err
		}
		res.ConcatPath = out
		res.TotalDurationMs = joined.DurationMs
	}
	return nil
}

func clipArtifact(wav []byte, index int, opts Options) (speech.ChunkArtifact, error) {
	info := audio.ParseWAV(wav)
	if info == nil {
		return speech.ChunkArtifact{}, audio.ErrNoValidWAV
	}
	art := speech.ChunkArtifact{
		DurationMs: info.DurationMs(),
		SampleRate: info.SampleRate,
		Format:     "wav",
	}
	if opts.Delivery == speech.DeliveryBase64 {
		art.AudioBase64 = base64.StdEncoding.EncodeToString(wav)
		return art, nil
	}
	path, err := opts.Output.Resolve(fmt.Sprintf("%s-%03d-clip.wav", opts.JobID, index))
	if err != nil {
		return speech.ChunkArtifact{}, err
	}
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return speech.ChunkArtifact{}, err
	}
	art.AudioPath = path
	return art, nil
}

func appendWarnings(dst []speech.Warning, groups ...[]speech.Warning) []speech.Warning {
	if dst == nil {
		dst = []speech.Warning{}
	}
	for _, g := range groups {
		dst = append(dst, g...)
	}
	return dst
}
