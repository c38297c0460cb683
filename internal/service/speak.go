package service

import (
	"context"
	"strings"

	"github.com/ent0n29/soundboard/internal/audio"
	"github.com/ent0n29/soundboard/internal/backend"
	"github.com/ent0n29/soundboard/internal/chunker"
	"github.com/ent0n29/soundboard/internal/jobs"
	"github.com/ent0n29/soundboard/internal/limits"
	"github.com/ent0n29/soundboard/internal/markup"
	"github.com/ent0n29/soundboard/internal/orchestrator"
	"github.com/ent0n29/soundboard/internal/speech"
	"github.com/ent0n29/soundboard/internal/voices"
)

const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

type Mode string

const (
	ModePlain   Mode = "plain"
	ModeSSML    Mode = "ssml"
	ModeEmotion Mode = "emotion"
	ModeSfx     Mode = "sfx"
)

type SpeakRequest struct {
	Text     string              `json:"text"`
	Mode     Mode                `json:"mode,omitempty"`
	Voice    string              `json:"voice,omitempty"`
	Speed    float64             `json:"speed,omitempty"`
	Delivery speech.DeliveryMode `json:"delivery,omitempty"`
	Concat   *bool               `json:"concat,omitempty"`

	ClientKey string                        `json:"-"`
	OnStart   func(jobID string)            `json:"-"`
	OnChunk   func(orchestrator.ChunkEvent) `json:"-"`
}

type DialogueRequest struct {
	Script   string              `json:"script"`
	Cast     map[string]string   `json:"cast,omitempty"`
	Speed    float64             `json:"speed,omitempty"`
	Delivery speech.DeliveryMode `json:"delivery,omitempty"`
	Concat   *bool               `json:"concat,omitempty"`

	ClientKey string                        `json:"-"`
	OnStart   func(jobID string)            `json:"-"`
	OnChunk   func(orchestrator.ChunkEvent) `json:"-"`
}

// DialogueResult adds the resolved cast to the speech result.
type DialogueResult struct {
	speech.SpeechResult
	Cast     map[string]string `json:"cast"`
	Speakers []string          `json:"speakers"`
}

// Speak compiles text in the requested mode and synthesizes it. Plain mode
// switches to SSML when the text looks like SSML.
func (s *Service) Speak(ctx context.Context, req SpeakRequest) (speech.SpeechResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return speech.SpeechResult{}, speech.Errorf(speech.CodeInvalidInput, "text is empty")
	}
	voiceID, err := s.resolveVoice(req.Voice)
	if err != nil {
		return speech.SpeechResult{}, err
	}
	delivery, err := s.resolveDelivery(req.Delivery)
	if err != nil {
		return speech.SpeechResult{}, err
	}
	mode := req.Mode
	switch mode {
	case "", ModePlain:
		mode = ModePlain
		if markup.LooksLikeSSML(text) {
			mode = ModeSSML
		}
	case ModeSSML, ModeEmotion, ModeSfx:
	default:
		return speech.SpeechResult{}, speech.Errorf(speech.CodeInvalidInput, "unknown mode %q", req.Mode)
	}
	concat := s.concat
	if req.Concat != nil {
		concat = *req.Concat
	}

	r := run{
		kind:      jobs.KindSpeak,
		mode:      string(mode),
		clientKey: req.ClientKey,
		voiceID:   voiceID,
		text:      text,
		delivery:  delivery,
		concat:    concat,
		onStart:   req.OnStart,
		onChunk:   req.OnChunk,
		base:      s.baseRequest(voiceID, clampSpeed(req.Speed), delivery),
	}
	r.exec = s.speakExec(mode, text, concat)
	return s.execute(ctx, r)
}

func (s *Service) speakExec(mode Mode, text string, concat bool) func(context.Context, orchestrator.Options, orchestrator.SynthesizeFunc) (speech.SpeechResult, error) {
	lim := s.limits
	return func(ctx context.Context, opts orchestrator.Options, synth orchestrator.SynthesizeFunc) (speech.SpeechResult, error) {
		switch mode {
		case ModeSSML:
			return orchestrator.RunPlan(ctx, markup.ParseSSMLLite(text, lim), synth, opts)
		case ModeEmotion:
			return orchestrator.RunEmotionPlan(ctx, text, synth, opts)
		case ModeSfx:
			parsed := markup.ParseSfxTags(text, s.sfxEnabled, lim.MaxSfxEvents)
			if concat || parsed.SfxCount == 0 {
				return orchestrator.RunSfx(ctx, parsed, synth, opts)
			}
			// Effects only reach the listener inside a joined file.
			plan := speech.SpeechPlan{
				Segments:  parsed.Segments,
				PlainText: speech.PlainText(parsed.Segments),
				Warnings: append(parsed.Warnings, speech.Warnf(speech.WarnSfxRequiresConcat,
					"%d sound effect(s) dropped because concatenation is disabled", parsed.SfxCount)),
			}
			return orchestrator.RunPlan(ctx, plan, synth, opts)
		default:
			return orchestrator.RunPlan(ctx, plainPlan(text), synth, opts)
		}
	}
}

// plainPlan wraps text as a single segment. The segment keeps its line breaks
// for the chunker's paragraph split; PlainText is collapsed like every other plan.
func plainPlan(text string) speech.SpeechPlan {
	segs := []speech.Segment{speech.TextSegment(text)}
	return speech.SpeechPlan{
		Segments:  segs,
		PlainText: speech.PlainText(segs),
		Warnings:  []speech.Warning{},
	}
}

// SpeakDialogue parses a speaker-labelled script, casts voices and
// synthesizes it line by line.
func (s *Service) SpeakDialogue(ctx context.Context, req DialogueRequest) (DialogueResult, error) {
	sheet, err := markup.ParseDialogue(req.Script, markup.DialogueOptions{
		Cast:        req.Cast,
		MaxSpeakers: s.limits.MaxSpeakers,
		MaxCues:     s.limits.MaxCues,
		MaxPauseMs:  s.limits.MaxPauseMs,
	})
	if err != nil {
		return DialogueResult{}, err
	}
	delivery, err := s.resolveDelivery(req.Delivery)
	if err != nil {
		return DialogueResult{}, err
	}
	concat := s.concat
	if req.Concat != nil {
		concat = *req.Concat
	}
	speed := clampSpeed(req.Speed)

	r := run{
		kind:      jobs.KindDialogue,
		mode:      "dialogue",
		clientKey: req.ClientKey,
		text:      req.Script,
		delivery:  delivery,
		concat:    concat,
		onStart:   req.OnStart,
		onChunk:   req.OnChunk,
		base:      s.baseRequest(s.defaultVoice, speed, delivery),
		exec: func(ctx context.Context, opts orchestrator.Options, synth orchestrator.SynthesizeFunc) (speech.SpeechResult, error) {
			return orchestrator.RunCues(ctx, sheet, speed, synth, opts)
		},
	}
	res, err := s.execute(ctx, r)
	if err != nil {
		return DialogueResult{}, err
	}
	return DialogueResult{SpeechResult: res, Cast: sheet.Cast, Speakers: sheet.Speakers}, nil
}

// Catalog lists what a caller can ask for.
type Catalog struct {
	DefaultVoice string            `json:"default_voice"`
	Voices       []voices.Voice    `json:"voices"`
	Presets      map[string]string `json:"presets"`
	Emotions     []EmotionInfo     `json:"emotions"`
	SfxTags      []string          `json:"sfx_tags"`
	SfxEnabled   bool              `json:"sfx_enabled"`
	Limits       limits.Limits     `json:"limits"`
}

type EmotionInfo struct {
	Name    string  `json:"name"`
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
}

func (s *Service) Voices() Catalog {
	names := voices.Emotions()
	emotions := make([]EmotionInfo, 0, len(names))
	for _, name := range names {
		style, _ := voices.Emotion(name)
		emotions = append(emotions, EmotionInfo{Name: name, VoiceID: style.VoiceID, Speed: style.Speed})
	}
	return Catalog{
		DefaultVoice: s.defaultVoice,
		Voices:       voices.Approved(),
		Presets:      voices.Presets(),
		Emotions:     emotions,
		SfxTags:      audio.SfxTags(),
		SfxEnabled:   s.sfxEnabled,
		Limits:       s.limits,
	}
}

func (s *Service) resolveVoice(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return s.defaultVoice, nil
	}
	id, ok := voices.Resolve(raw)
	if !ok {
		return "", speech.Errorf(speech.CodeInvalidVoice, "voice %q is not an approved voice or preset", raw)
	}
	return id, nil
}

func (s *Service) resolveDelivery(raw speech.DeliveryMode) (speech.DeliveryMode, error) {
	if raw == "" {
		return s.delivery, nil
	}
	mode, ok := speech.ParseDeliveryMode(string(raw))
	if !ok {
		return "", speech.Errorf(speech.CodeInvalidInput, "delivery %q must be path or base64", raw)
	}
	return mode, nil
}

func (s *Service) baseRequest(voiceID string, speed float64, delivery speech.DeliveryMode) backend.Request {
	return backend.Request{
		VoiceID:   voiceID,
		Speed:     speed,
		Format:    "wav",
		OutputDir: s.output.Root(),
		Delivery:  delivery,
	}
}

func chunkingFor(l limits.Limits) chunker.Options {
	return chunker.OptionsFrom(l)
}

func clampSpeed(v float64) float64 {
	switch {
	case v <= 0:
		return 1.0
	case v < MinSpeed:
		return MinSpeed
	case v > MaxSpeed:
		return MaxSpeed
	default:
		return v
	}
}
