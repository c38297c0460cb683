package markup

import (
	"regexp"
	"strings"

	"github.com/ent0n29/soundboard/internal/speech"
	"github.com/ent0n29/soundboard/internal/voices"
)

var emotionSpan = regexp.MustCompile(`\{(\w+)\}([\s\S]*?)\{/(\w+)\}`)

type EmotionParseResult struct {
	Spans    []speech.EmotionSpan `json:"spans"`
	Warnings []speech.Warning     `json:"warnings"`
}

// ParseEmotionSpans splits {emotion}...{/emotion} tagged text into spans. Text
// outside tags, mismatched tags and unknown emotions all end up neutral.
func ParseEmotionSpans(text string) EmotionParseResult {
	var (
		fb      fallbacks
		spans   []speech.EmotionSpan
		pending strings.Builder
	)
	flush := func() {
		body := strings.TrimSpace(pending.String())
		pending.Reset()
		if body == "" {
			return
		}
		spans = append(spans, neutralSpan(body))
	}

	pos := 0
	for _, m := range emotionSpan.FindAllStringSubmatchIndex(text, -1) {
		pending.WriteString(text[pos:m[0]])
		pos = m[1]

		open := strings.ToLower(text[m[2]:m[3]])
		inner := text[m[4]:m[5]]
		closing := strings.ToLower(text[m[6]:m[7]])
		if open != closing {
			fb.warn(speech.WarnEmotionMismatch, "{%s} closed by {/%s}; kept as plain text", open, closing)
			pending.WriteString(text[m[0]:m[1]])
			continue
		}

		flush()
		body := strings.TrimSpace(inner)
		if body == "" {
			continue
		}
		style, ok := resolveOr(open, voices.Emotion,
			func() {
				fb.warn(speech.WarnEmotionUnsupported, "emotion %q is not supported; using neutral", open)
			},
			func() voices.EmotionStyle {
				s, _ := voices.Emotion(voices.Neutral)
				return s
			})
		emotion := open
		if !ok {
			emotion = voices.Neutral
		}
		spans = append(spans, speech.EmotionSpan{
			Emotion: emotion,
			Text:    body,
			VoiceID: style.VoiceID,
			Speed:   voices.ClampEmotionSpeed(style.Speed),
		})
	}
	pending.WriteString(text[pos:])
	flush()

	if spans == nil {
		spans = []speech.EmotionSpan{}
	}
	return EmotionParseResult{Spans: spans, Warnings: fb.warnings()}
}

func neutralSpan(text string) speech.EmotionSpan {
	style, _ := voices.Emotion(voices.Neutral)
	return speech.EmotionSpan{
		Emotion: voices.Neutral,
		Text:    text,
		VoiceID: style.VoiceID,
		Speed:   style.Speed,
	}
}
