package markup

import (
	"strings"
	"testing"

	"github.com/ent0n29/soundboard/internal/limits"
	"github.com/ent0n29/soundboard/internal/speech"
)

func events(plan speech.SpeechPlan) []speech.Event {
	var out []speech.Event
	for _, seg := range plan.Segments {
		if seg.Kind == speech.SegmentEvent {
			out = append(out, *seg.Event)
		}
	}
	return out
}

func TestParseSSMLLitePlainTextPassesThrough(t *testing.T) {
	plan := ParseSSMLLite("Just   a sentence.", limits.Default())
	if plan.WasSSML {
		t.Fatalf("WasSSML = true, want false")
	}
	if len(plan.Segments) != 1 || plan.Segments[0].Text != "Just   a sentence." {
		t.Fatalf("Segments = %+v, want one raw text segment", plan.Segments)
	}
	if plan.PlainText != "Just a sentence." {
		t.Fatalf("PlainText = %q, want collapsed text", plan.PlainText)
	}
}

func TestParseSSMLLiteClampsBreakToMax(t *testing.T) {
	lim := limits.Default()
	plan := ParseSSMLLite(`<speak>A<break time="99999ms"/>B</speak>`, lim)
	if !plan.WasSSML {
		t.Fatalf("WasSSML = false, want true")
	}
	evs := events(plan)
	if len(evs) != 1 || evs[0].Kind != speech.EventBreak {
		t.Fatalf("events = %+v, want one break", evs)
	}
	if evs[0].TimeMs != lim.MaxBreakMs {
		t.Fatalf("break TimeMs = %d, want %d", evs[0].TimeMs, lim.MaxBreakMs)
	}
	if plan.PlainText != "AB" {
		t.Fatalf("PlainText = %q, want AB", plan.PlainText)
	}
	if len(plan.Warnings) != 0 {
		t.Fatalf("Warnings = %+v, want none", plan.Warnings)
	}
}

func TestParseSSMLLiteClampsOversizedBreakTime(t *testing.T) {
	lim := limits.Default()
	for _, attr := range []string{"99999999999999999999ms", "99999999999999999999s", "99999999999999999999.5"} {
		plan := ParseSSMLLite(`<speak>A<break time="`+attr+`"/>B</speak>`, lim)
		evs := events(plan)
		if len(evs) != 1 || evs[0].Kind != speech.EventBreak {
			t.Fatalf("%s: events = %+v, want one break", attr, evs)
		}
		if evs[0].TimeMs != lim.MaxBreakMs {
			t.Fatalf("%s: break TimeMs = %d, want %d", attr, evs[0].TimeMs, lim.MaxBreakMs)
		}
	}
}

func TestParseSSMLLiteBreakDurations(t *testing.T) {
	cases := []struct {
		tag  string
		want int
	}{
		{`<break/>`, 250},
		{`<break time="1.5s"/>`, 1500},
		{`<break time="300"/>`, 300},
		{`<break strength="strong"/>`, 700},
		{`<break strength="x-weak">`, 100},
		{`<break time="soon" strength="weak"/>`, 200},
	}
	for _, tc := range cases {
		evs := events(ParseSSMLLite("a"+tc.tag+"b", limits.Default()))
		if len(evs) != 1 || evs[0].TimeMs != tc.want {
			t.Fatalf("%s: events = %+v, want break %dms", tc.tag, evs, tc.want)
		}
	}
}

func TestParseSSMLLiteProsodyRates(t *testing.T) {
	cases := map[string]float64{
		"fast":   1.25,
		"x-slow": 0.5,
		"150%":   1.5,
		"+20%":   1.2,
		"5":      2.0,
		"0.1":    0.5,
		"weird":  1.0,
		"nan":    1.0,
		"NaN":    1.0,
		"inf":    2.0,
		"-inf":   0.5,
	}
	for rate, want := range cases {
		plan := ParseSSMLLite(`<prosody rate="`+rate+`">hi</prosody>`, limits.Default())
		evs := events(plan)
		if len(evs) != 2 || evs[0].Kind != speech.EventProsody || evs[1].Kind != speech.EventProsodyEnd {
			t.Fatalf("rate %q: events = %+v, want prosody pair", rate, evs)
		}
		if evs[0].Rate != want {
			t.Fatalf("rate %q: Rate = %v, want %v", rate, evs[0].Rate, want)
		}
	}
}

func TestParseSSMLLiteEmphasisDefaultsToModerate(t *testing.T) {
	evs := events(ParseSSMLLite(`<emphasis>wow</emphasis><emphasis level="STRONG">yes</emphasis>`, limits.Default()))
	if len(evs) != 4 {
		t.Fatalf("events = %+v, want 4", evs)
	}
	if evs[0].Level != "moderate" || evs[2].Level != "strong" {
		t.Fatalf("levels = %q, %q; want moderate, strong", evs[0].Level, evs[2].Level)
	}
}

func TestParseSSMLLiteUnknownTagsStrippedOncePerName(t *testing.T) {
	plan := ParseSSMLLite(`<foo>hi</foo> <foo>x</foo> <bar/>`, limits.Default())
	if plan.PlainText != "hi x" {
		t.Fatalf("PlainText = %q, want %q", plan.PlainText, "hi x")
	}
	if n := speech.CountWarnings(plan.Warnings, speech.WarnSSMLTagStripped); n != 2 {
		t.Fatalf("SSML_TAG_STRIPPED count = %d, want 2 (foo, bar)", n)
	}
}

func TestParseSSMLLiteAutoClosesAtEndOfInput(t *testing.T) {
	plan := ParseSSMLLite(`<prosody rate="slow"><emphasis>hello`, limits.Default())
	evs := events(plan)
	if len(evs) != 4 {
		t.Fatalf("events = %+v, want 4", evs)
	}
	if evs[2].Kind != speech.EventEmphasisEnd || evs[3].Kind != speech.EventProsodyEnd {
		t.Fatalf("close order = %s, %s; want emphasis_end, prosody_end", evs[2].Kind, evs[3].Kind)
	}
	if n := speech.CountWarnings(plan.Warnings, speech.WarnSSMLUnclosedTag); n != 2 {
		t.Fatalf("SSML_UNCLOSED_TAG count = %d, want 2", n)
	}
}

func TestParseSSMLLiteSubAliasAndEntities(t *testing.T) {
	plan := ParseSSMLLite(`<speak><sub alias="World Wide Web">WWW</sub> &amp; <say-as interpret-as="digits">42</say-as> &#65;</speak>`, limits.Default())
	if plan.PlainText != "World Wide Web & 42 A" {
		t.Fatalf("PlainText = %q", plan.PlainText)
	}
	if len(plan.Warnings) != 0 {
		t.Fatalf("Warnings = %+v, want none", plan.Warnings)
	}
}

func TestParseSSMLLiteDegradesWhenOverNodeCap(t *testing.T) {
	lim := limits.Default()
	lim.MaxSSMLNodes = 3
	plan := ParseSSMLLite(`<speak><emphasis>a</emphasis><emphasis>b</emphasis></speak>`, lim)
	if !plan.WasSSML {
		t.Fatalf("WasSSML = false, want true")
	}
	if len(plan.Warnings) != 1 || plan.Warnings[0].Code != speech.WarnSSMLParseFailed {
		t.Fatalf("Warnings = %+v, want exactly one SSML_PARSE_FAILED", plan.Warnings)
	}
	if len(plan.Segments) != 1 || plan.PlainText != "a b" {
		t.Fatalf("plan = %+v, want single stripped text segment", plan)
	}
}

func TestParseSSMLLiteDegradesWhenOverCharCap(t *testing.T) {
	lim := limits.Default()
	lim.MaxSSMLChars = 10
	plan := ParseSSMLLite(`<speak>`+strings.Repeat("x", 11)+`</speak>`, lim)
	if !speech.HasWarning(plan.Warnings, speech.WarnSSMLParseFailed) {
		t.Fatalf("Warnings = %+v, want SSML_PARSE_FAILED", plan.Warnings)
	}
}

func TestParseSSMLLiteNeverPanics(t *testing.T) {
	inputs := []string{
		"<", "<<<>>>", "</prosody>", "<prosody", "<break time=>", `<sub alias="x">`,
		"<speak>", "</speak>", "<emphasis></prosody></emphasis>", "a < b > c",
		"<prosody rate=\"fast\"><prosody>x</prosody>", "<\x00>", "<é>",
	}
	for _, in := range inputs {
		plan := ParseSSMLLite(in, limits.Default())
		if plan.PlainText != speech.PlainText(plan.Segments) {
			t.Fatalf("%q: PlainText %q not derivable from segments", in, plan.PlainText)
		}
	}
}

func TestParseSSMLLiteStrayCloseAutoClosesInner(t *testing.T) {
	plan := ParseSSMLLite(`<prosody rate="fast"><emphasis>x</prosody>y`, limits.Default())
	evs := events(plan)
	if len(evs) != 4 || evs[2].Kind != speech.EventEmphasisEnd || evs[3].Kind != speech.EventProsodyEnd {
		t.Fatalf("events = %+v", evs)
	}
	if n := speech.CountWarnings(plan.Warnings, speech.WarnSSMLUnclosedTag); n != 1 {
		t.Fatalf("SSML_UNCLOSED_TAG count = %d, want 1", n)
	}
}
