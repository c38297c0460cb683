package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ent0n29/soundboard/internal/audio"
	"github.com/ent0n29/soundboard/internal/chunker"
	"github.com/ent0n29/soundboard/internal/speech"
)

type dirResolver string

func (d dirResolver) Resolve(name string) (string, error) {
	return filepath.Join(string(d), name), nil
}

type synthCall struct {
	text  string
	index int
	emo   *EmotionContext
}

type fakeBackend struct {
	dir      string
	mode     speech.DeliveryMode
	rate     int
	mu       sync.Mutex
	calls    []synthCall
	inflight atomic.Int32
	overlap  atomic.Bool
	after    func(index int)
}

func newFakeBackend(t *testing.T, mode speech.DeliveryMode) *fakeBackend {
	return &fakeBackend{dir: t.TempDir(), mode: mode}
}

func (f *fakeBackend) synth(_ context.Context, text string, index int, emo *EmotionContext) (speech.ChunkArtifact, error) {
	if f.inflight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inflight.Add(-1)

	f.mu.Lock()
	f.calls = append(f.calls, synthCall{text: text, index: index, emo: emo})
	f.mu.Unlock()

	rate := f.rate
	if rate == 0 {
		rate = audio.DefaultSampleRate
	}
	wav := audio.Silence(100, rate)
	art := speech.ChunkArtifact{DurationMs: 100, SampleRate: rate, Format: "wav"}
	if f.mode == speech.DeliveryBase64 {
		art.AudioBase64 = base64.StdEncoding.EncodeToString(wav)
	} else {
		p := filepath.Join(f.dir, fmt.Sprintf("chunk-%d.wav", index))
		if err := os.WriteFile(p, wav, 0o644); err != nil {
			return speech.ChunkArtifact{}, err
		}
		art.AudioPath = p
	}
	if f.after != nil {
		f.after(index)
	}
	return art, nil
}

const threeSentences = "One sentence here. Two sentence here. Three sentence here."

var smallChunks = chunker.Options{MaxChunkChars: 20, MinChunkChars: 1}

func plainPlan(text string) speech.SpeechPlan {
	segs := []speech.Segment{speech.TextSegment(text)}
	return speech.SpeechPlan{Segments: segs, PlainText: speech.PlainText(segs)}
}

func TestRunPlanSingleChunkSkipsConcat(t *testing.T) {
	fb := newFakeBackend(t, speech.DeliveryPath)
	res, err := RunPlan(context.Background(), plainPlan("Hello there."), fb.synth, Options{Concat: true, Output: dirResolver(fb.dir)})
	if err != nil {
		t.Fatalf("RunPlan() error = %v", err)
	}
	if res.ChunkCount != 1 || res.ConcatPath != "" || res.ConcatBase64 != "" {
		t.Fatalf("result = %+v, want one chunk and no concat", res)
	}
	if res.TotalDurationMs != 100 {
		t.Fatalf("TotalDurationMs = %d, want 100", res.TotalDurationMs)
	}
}

func TestRunPlanSequentialWithConcat(t *testing.T) {
	fb := newFakeBackend(t, speech.DeliveryPath)
	var events []int
	res, err := RunPlan(context.Background(), plainPlan(threeSentences), fb.synth, Options{
		Chunking: smallChunks,
		Concat:   true,
		Output:   dirResolver(fb.dir),
		OnChunk:  func(ev ChunkEvent) { events = append(events, ev.Index) },
	})
	if err != nil {
		t.Fatalf("RunPlan() error = %v", err)
	}
	if res.ChunkCount != 3 || res.PlannedCount != 3 {
		t.Fatalf("ChunkCount = %d, PlannedCount = %d, want 3/3", res.ChunkCount, res.PlannedCount)
	}
	for i, c := range fb.calls {
		if c.index != i {
			t.Fatalf("call %d has index %d", i, c.index)
		}
		if c.emo != nil {
			t.Fatalf("RunPlan passed emotion context %+v", c.emo)
		}
	}
	if fb.overlap.Load() {
		t.Fatalf("chunks were synthesized concurrently")
	}
	if len(events) != 3 || events[2] != 2 {
		t.Fatalf("OnChunk events = %v", events)
	}
	if res.ConcatPath == "" {
		t.Fatalf("ConcatPath empty, want joined file")
	}
	data, err := os.ReadFile(res.ConcatPath)
	if err != nil {
		t.Fatalf("read concat: %v", err)
	}
	info := audio.ParseWAV(data)
	if info == nil || info.DurationMs() != 300 || res.TotalDurationMs != 300 {
		t.Fatalf("concat duration = %v / %d, want 300", info, res.TotalDurationMs)
	}
	if !speech.HasWarning(res.Warnings, speech.WarnChunkedText) {
		t.Fatalf("Warnings = %+v, want CHUNKED_TEXT", res.Warnings)
	}
}

func TestRunPlanInterruptStopsRemainingSchedule(t *testing.T) {
	fb := newFakeBackend(t, speech.DeliveryPath)
	token := NewCancelToken()
	fb.after = func(index int) {
		if index == 1 {
			token.Abort()
		}
	}
	res, err := RunPlan(context.Background(), plainPlan(threeSentences), fb.synth, Options{
		Chunking: smallChunks,
		Concat:   true,
		Token:    token,
		Output:   dirResolver(fb.dir),
	})
	if err != nil {
		t.Fatalf("RunPlan() error = %v", err)
	}
	if !res.Interrupted || res.ChunkCount != 2 || res.ChunkCount >= res.PlannedCount {
		t.Fatalf("result = %+v, want interrupted after 2 of 3", res)
	}
	if res.ConcatPath != "" {
		t.Fatalf("ConcatPath = %q, want none when interrupted", res.ConcatPath)
	}
	var msg string
	for _, w := range res.Warnings {
		if w.Code == speech.WarnSynthesisInterrupted {
			msg = w.Message
		}
	}
	if !strings.Contains(msg, "2 of 3") {
		t.Fatalf("interrupt warning = %q, want it to name 2 of 3", msg)
	}
	if len(fb.calls) != 2 {
		t.Fatalf("backend calls = %d, want 2", len(fb.calls))
	}
}

func TestRunPlanConcatFailureIsWarning(t *testing.T) {
	bad := func(context.Context, string, int, *EmotionContext) (speech.ChunkArtifact, error) {
		return speech.ChunkArtifact{AudioBase64: "!!not base64!!", DurationMs: 10, SampleRate: 24000, Format: "wav"}, nil
	}
	res, err := RunPlan(context.Background(), plainPlan(threeSentences), bad, Options{
		Chunking: smallChunks,
		Concat:   true,
		Delivery: speech.DeliveryBase64,
	})
	if err != nil {
		t.Fatalf("RunPlan() error = %v", err)
	}
	if res.ChunkCount != 3 || res.ConcatBase64 != "" {
		t.Fatalf("result = %+v, want 3 chunks and no concat", res)
	}
	if !speech.HasWarning(res.Warnings, speech.WarnConcatFailed) {
		t.Fatalf("Warnings = %+v, want CONCAT_FAILED", res.Warnings)
	}
	if res.TotalDurationMs != 30 {
		t.Fatalf("TotalDurationMs = %d, want sum of chunks 30", res.TotalDurationMs)
	}
}

func TestRunPlanSynthesizeErrorIsHard(t *testing.T) {
	boom := errors.New("model crashed")
	calls := 0
	synth := func(context.Context, string, int, *EmotionContext) (speech.ChunkArtifact, error) {
		calls++
		if calls == 2 {
			return speech.ChunkArtifact{}, boom
		}
		return speech.ChunkArtifact{AudioBase64: "AA==", DurationMs: 1, SampleRate: 24000, Format: "wav"}, nil
	}
	_, err := RunPlan(context.Background(), plainPlan(threeSentences), synth, Options{Chunking: smallChunks, Delivery: speech.DeliveryBase64})
	code, ok := speech.CodeOf(err)
	if !ok || code != speech.CodeSynthesisFailed || !errors.Is(err, boom) {
		t.Fatalf("error = %v, want SYNTHESIS_FAILED wrapping cause", err)
	}
	if !strings.Contains(err.Error(), "chunk 1") {
		t.Fatalf("error = %q, want chunk index", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want stop at failing chunk", calls)
	}
}

func TestRunPlanRejectsArtifactForWrongMode(t *testing.T) {
	fb := newFakeBackend(t, speech.DeliveryPath)
	_, err := RunPlan(context.Background(), plainPlan("hi"), fb.synth, Options{Delivery: speech.DeliveryBase64})
	if !errors.Is(err, speech.ErrArtifactWrongMode) {
		t.Fatalf("error = %v, want ErrArtifactWrongMode", err)
	}
}

func TestRunPlanThreadsUpstreamWarnings(t *testing.T) {
	fb := newFakeBackend(t, speech.DeliveryBase64)
	plan := plainPlan("hello")
	plan.Warnings = []speech.Warning{{Code: speech.WarnSSMLTagStripped, Message: "unsupported tag <foo> removed"}}
	res, err := RunPlan(context.Background(), plan, fb.synth, Options{Delivery: speech.DeliveryBase64})
	if err != nil {
		t.Fatalf("RunPlan() error = %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != plan.Warnings[0] {
		t.Fatalf("Warnings = %+v, want upstream warning unchanged", res.Warnings)
	}
}

func TestRunEmotionPlanUsesPerSpanContext(t *testing.T) {
	fb := newFakeBackend(t, speech.DeliveryBase64)
	res, err := RunEmotionPlan(context.Background(), "{happy}Yay!{/happy} then {bogus}calm words{/bogus}", fb.synth, Options{
		Delivery: speech.DeliveryBase64,
		Concat:   true,
	})
	if err != nil {
		t.Fatalf("RunEmotionPlan() error = %v", err)
	}
	if len(fb.calls) != 3 {
		t.Fatalf("calls = %+v, want 3 spans", fb.calls)
	}
	if fb.calls[0].emo.Emotion != "happy" || fb.calls[1].emo.Emotion != "neutral" || fb.calls[2].emo.Emotion != "neutral" {
		t.Fatalf("emotions = %s, %s, %s", fb.calls[0].emo.Emotion, fb.calls[1].emo.Emotion, fb.calls[2].emo.Emotion)
	}
	if fb.calls[0].emo.VoiceID == "" || fb.calls[0].emo.Speed == 0 {
		t.Fatalf("happy context = %+v, want voice and speed", fb.calls[0].emo)
	}
	if !speech.HasWarning(res.Warnings, speech.WarnEmotionUnsupported) {
		t.Fatalf("Warnings = %+v, want EMOTION_UNSUPPORTED threaded", res.Warnings)
	}
	if res.ConcatBase64 == "" || res.TotalDurationMs != 300 {
		t.Fatalf("concat = %d bytes, %dms; want 300ms", len(res.ConcatBase64), res.TotalDurationMs)
	}
}

func TestRunCuesRendersPausesAsSilence(t *testing.T) {
	fb := newFakeBackend(t, speech.DeliveryPath)
	sheet := speech.CueSheet{
		Cues: []speech.Cue{
			{Kind: speech.CueLine, Speaker: "Ann", Text: "Hi.", VoiceID: "af_bella"},
			{Kind: speech.CuePause, DurationMs: 250},
			{Kind: speech.CueLine, Speaker: "Ben", Text: "Hey.", VoiceID: "am_adam"},
		},
		Warnings: []speech.Warning{{Code: speech.WarnDialogueEmptyLine, Message: "x"}},
	}
	res, err := RunCues(context.Background(), sheet, 1.0, fb.synth, Options{Concat: true, Output: dirResolver(fb.dir)})
	if err != nil {
		t.Fatalf("RunCues() error = %v", err)
	}
	if len(fb.calls) != 2 || fb.calls[0].emo.VoiceID != "af_bella" || fb.calls[1].emo.VoiceID != "am_adam" {
		t.Fatalf("calls = %+v", fb.calls)
	}
	if fb.calls[1].index != 2 {
		t.Fatalf("second line index = %d, want 2", fb.calls[1].index)
	}
	if res.ChunkCount != 3 || res.Chunks[1].DurationMs != 250 {
		t.Fatalf("chunks = %+v, want pause of 250ms in the middle", res.Chunks)
	}
	if res.TotalDurationMs != 450 {
		t.Fatalf("TotalDurationMs = %d, want 450", res.TotalDurationMs)
	}
	if !speech.HasWarning(res.Warnings, speech.WarnDialogueEmptyLine) {
		t.Fatalf("Warnings = %+v, want sheet warnings threaded", res.Warnings)
	}
}

func TestRunSfxSplicesClips(t *testing.T) {
	fb := newFakeBackend(t, speech.DeliveryBase64)
	parsed := speech.SfxParseResult{
		Segments: []speech.Segment{
			speech.EventSegment(speech.Event{Kind: speech.EventSfx, Tag: "ding"}),
			speech.TextSegment(" hello "),
		},
		SfxCount: 1,
	}
	res, err := RunSfx(context.Background(), parsed, fb.synth, Options{Delivery: speech.DeliveryBase64, Concat: true})
	if err != nil {
		t.Fatalf("RunSfx() error = %v", err)
	}
	if res.ChunkCount != 2 || res.Chunks[0].DurationMs != 400 {
		t.Fatalf("chunks = %+v, want ding clip then speech", res.Chunks)
	}
	if len(fb.calls) != 1 || fb.calls[0].text != "hello" || fb.calls[0].index != 1 {
		t.Fatalf("calls = %+v", fb.calls)
	}
	if res.ConcatBase64 == "" || res.TotalDurationMs != 500 {
		t.Fatalf("concat duration = %d, want 500", res.TotalDurationMs)
	}
}

func TestRunSfxRendersClipsAtConfiguredRate(t *testing.T) {
	fb := newFakeBackend(t, speech.DeliveryBase64)
	fb.rate = 16000
	parsed := speech.SfxParseResult{
		Segments: []speech.Segment{
			speech.TextSegment("hello "),
			speech.EventSegment(speech.Event{Kind: speech.EventSfx, Tag: "pop"}),
		},
		SfxCount: 1,
	}
	res, err := RunSfx(context.Background(), parsed, fb.synth, Options{Delivery: speech.DeliveryBase64, Concat: true, SampleRate: 16000})
	if err != nil {
		t.Fatalf("RunSfx() error = %v", err)
	}
	if res.ChunkCount != 2 || res.Chunks[1].SampleRate != 16000 || res.Chunks[1].DurationMs != 80 {
		t.Fatalf("chunks = %+v, want pop clip at 16000 Hz", res.Chunks)
	}
	joined, err := base64.StdEncoding.DecodeString(res.ConcatBase64)
	if err != nil {
		t.Fatalf("decode concat: %v", err)
	}
	info := audio.ParseWAV(joined)
	if info == nil || info.SampleRate != 16000 || info.DurationMs() != 180 {
		t.Fatalf("joined = %+v, want 180ms at 16000 Hz", info)
	}
}

func TestRunPlanAbortedBeforeStart(t *testing.T) {
	fb := newFakeBackend(t, speech.DeliveryPath)
	token := NewCancelToken()
	token.Abort()
	res, err := RunPlan(context.Background(), plainPlan(threeSentences), fb.synth, Options{Chunking: smallChunks, Token: token})
	if err != nil {
		t.Fatalf("RunPlan() error = %v", err)
	}
	if !res.Interrupted || res.ChunkCount != 0 || len(fb.calls) != 0 {
		t.Fatalf("result = %+v, want nothing synthesized", res)
	}
}
