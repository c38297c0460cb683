package markup

import (
	"testing"

	"github.com/ent0n29/soundboard/internal/speech"
	"github.com/ent0n29/soundboard/internal/voices"
)

func TestParseEmotionSpansUnknownEmotionIsNeutralSpan(t *testing.T) {
	res := ParseEmotionSpans("{unknown}X{/unknown}")
	if len(res.Spans) != 1 {
		t.Fatalf("len(Spans) = %d, want 1", len(res.Spans))
	}
	if res.Spans[0].Emotion != voices.Neutral || res.Spans[0].Text != "X" {
		t.Fatalf("span = %+v, want neutral X", res.Spans[0])
	}
	if n := speech.CountWarnings(res.Warnings, speech.WarnEmotionUnsupported); n != 1 || len(res.Warnings) != 1 {
		t.Fatalf("Warnings = %+v, want exactly one EMOTION_UNSUPPORTED", res.Warnings)
	}
}

func TestParseEmotionSpansMixedText(t *testing.T) {
	res := ParseEmotionSpans("Hello {HAPPY}great news{/happy} bye")
	if len(res.Spans) != 3 {
		t.Fatalf("Spans = %+v, want 3", res.Spans)
	}
	happy, _ := voices.Emotion("happy")
	mid := res.Spans[1]
	if mid.Emotion != "happy" || mid.Text != "great news" || mid.VoiceID != happy.VoiceID || mid.Speed != happy.Speed {
		t.Fatalf("middle span = %+v", mid)
	}
	if res.Spans[0].Text != "Hello" || res.Spans[2].Text != "bye" {
		t.Fatalf("outer spans = %q, %q", res.Spans[0].Text, res.Spans[2].Text)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("Warnings = %+v, want none", res.Warnings)
	}
}

func TestParseEmotionSpansMismatchStaysLiteral(t *testing.T) {
	res := ParseEmotionSpans("a {happy}b{/sad} c")
	if len(res.Spans) != 1 {
		t.Fatalf("Spans = %+v, want one merged neutral span", res.Spans)
	}
	if res.Spans[0].Text != "a {happy}b{/sad} c" || res.Spans[0].Emotion != voices.Neutral {
		t.Fatalf("span = %+v", res.Spans[0])
	}
	if !speech.HasWarning(res.Warnings, speech.WarnEmotionMismatch) {
		t.Fatalf("Warnings = %+v, want EMOTION_MISMATCH", res.Warnings)
	}
}

func TestParseEmotionSpansDropsEmptySpans(t *testing.T) {
	res := ParseEmotionSpans("{sad}   {/sad}")
	if len(res.Spans) != 0 {
		t.Fatalf("Spans = %+v, want none", res.Spans)
	}
}

func TestParseEmotionSpansSpeedStaysInBand(t *testing.T) {
	res := ParseEmotionSpans("{excited}go{/excited}{whisper}shh{/whisper}")
	for _, sp := range res.Spans {
		if sp.Speed < voices.MinEmotionSpeed || sp.Speed > voices.MaxEmotionSpeed {
			t.Fatalf("span %+v speed outside band", sp)
		}
		if !voices.IsApproved(sp.VoiceID) {
			t.Fatalf("span %+v voice not approved", sp)
		}
	}
}
