package speech

import (
	"errors"
	"strings"
)

type SegmentKind string

const (
	SegmentText  SegmentKind = "text"
	SegmentEvent SegmentKind = "event"
)

type EventKind string

const (
	EventBreak       EventKind = "break"
	EventProsody     EventKind = "prosody"
	EventProsodyEnd  EventKind = "prosody_end"
	EventEmphasis    EventKind = "emphasis"
	EventEmphasisEnd EventKind = "emphasis_end"
	EventSfx         EventKind = "sfx"
)

// Event is a non-textual directive inside a plan. Only the field matching Kind is set.
type Event struct {
	Kind   EventKind `json:"kind"`
	TimeMs int       `json:"time_ms,omitempty"`
	Rate   float64   `json:"rate,omitempty"`
	Level  string    `json:"level,omitempty"`
	Tag    string    `json:"tag,omitempty"`
}

// Segment is either a run of text or an event.
type Segment struct {
	Kind  SegmentKind `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Event *Event      `json:"event,omitempty"`
}

func TextSegment(text string) Segment {
	return Segment{Kind: SegmentText, Text: text}
}

func EventSegment(ev Event) Segment {
	return Segment{Kind: SegmentEvent, Event: &ev}
}

// SpeechPlan is the normalized, unsynthesized form of one request.
type SpeechPlan struct {
	Segments  []Segment `json:"segments"`
	PlainText string    `json:"plain_text"`
	WasSSML   bool      `json:"was_ssml"`
	Warnings  []Warning `json:"warnings"`
}

// PlainText concatenates the text segments and collapses runs of whitespace.
func PlainText(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		if seg.Kind == SegmentText {
			b.WriteString(seg.Text)
		}
	}
	return CollapseWhitespace(b.String())
}

func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type EmotionSpan struct {
	Emotion string  `json:"emotion"`
	Text    string  `json:"text"`
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
}

type CueKind string

const (
	CueLine  CueKind = "line"
	CuePause CueKind = "pause"
)

// Cue is one dialogue line or pause directive.
type Cue struct {
	Kind       CueKind `json:"kind"`
	Speaker    string  `json:"speaker,omitempty"`
	Text       string  `json:"text,omitempty"`
	VoiceID    string  `json:"voice_id,omitempty"`
	DurationMs int     `json:"duration_ms,omitempty"`
}

type CueSheet struct {
	Cues     []Cue             `json:"cues"`
	Cast     map[string]string `json:"cast"`
	Speakers []string          `json:"speakers"`
	Warnings []Warning         `json:"warnings"`
}

// LineCount returns the number of spoken lines, excluding pauses.
func (c CueSheet) LineCount() int {
	n := 0
	for _, cue := range c.Cues {
		if cue.Kind == CueLine {
			n++
		}
	}
	return n
}

type SfxParseResult struct {
	Segments []Segment `json:"segments"`
	Warnings []Warning `json:"warnings"`
	SfxCount int       `json:"sfx_count"`
}

// DeliveryMode selects whether audio is returned as a file path or inline base64.
type DeliveryMode string

const (
	DeliveryPath   DeliveryMode = "path"
	DeliveryBase64 DeliveryMode = "base64"
)

func ParseDeliveryMode(raw string) (DeliveryMode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(DeliveryPath):
		return DeliveryPath, true
	case string(DeliveryBase64):
		return DeliveryBase64, true
	default:
		return "", false
	}
}

var (
	ErrArtifactNoAudio   = errors.New("artifact has no audio")
	ErrArtifactBothAudio = errors.New("artifact has both a path and inline audio")
	ErrArtifactWrongMode = errors.New("artifact does not match delivery mode")
)

// ChunkArtifact is the audio output of one synthesize call. Exactly one of
// AudioPath and AudioBase64 is set.
type ChunkArtifact struct {
	AudioPath   string `json:"audio_path,omitempty"`
	AudioBase64 string `json:"audio_bytes_base64,omitempty"`
	DurationMs  int    `json:"duration_ms"`
	SampleRate  int    `json:"sample_rate"`
	Format      string `json:"format"`
}

func (a ChunkArtifact) Validate(mode DeliveryMode) error {
	hasPath := a.AudioPath != ""
	hasInline := a.AudioBase64 != ""
	switch {
	case hasPath && hasInline:
		return ErrArtifactBothAudio
	case !hasPath && !hasInline:
		return ErrArtifactNoAudio
	case mode == DeliveryPath && !hasPath, mode == DeliveryBase64 && !hasInline:
		return ErrArtifactWrongMode
	}
	return nil
}

type SpeechResult struct {
	JobID           string          `json:"job_id,omitempty"`
	Chunks          []ChunkArtifact `json:"chunks"`
	ConcatPath      string          `json:"concat_path,omitempty"`
	ConcatBase64    string          `json:"concat_base64,omitempty"`
	TotalDurationMs int             `json:"total_duration_ms"`
	ChunkCount      int             `json:"chunk_count"`
	PlannedCount    int             `json:"planned_count"`
	Interrupted     bool            `json:"interrupted"`
	Warnings        []Warning       `json:"warnings"`
}
