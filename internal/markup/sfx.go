package markup

import (
	"regexp"
	"strings"

	"github.com/ent0n29/soundboard/internal/audio"
	"github.com/ent0n29/soundboard/internal/limits"
	"github.com/ent0n29/soundboard/internal/speech"
)

var sfxTag = regexp.MustCompile(`\[([A-Za-z_]+)\]`)

// ParseSfxTags extracts [tag] sound effects from text. When disabled the text
// is returned untouched. Unknown tags and tags past maxEvents stay literal.
func ParseSfxTags(text string, enabled bool, maxEvents int) speech.SfxParseResult {
	if maxEvents <= 0 {
		maxEvents = limits.DefaultMaxSfxEvents
	}
	var fb fallbacks
	if !enabled {
		if sfxTag.MatchString(text) {
			fb.warn(speech.WarnSfxDisabled, "sound effect tags are disabled and were read as text")
		}
		segs := []speech.Segment{}
		if text != "" {
			segs = append(segs, speech.TextSegment(text))
		}
		return speech.SfxParseResult{Segments: segs, Warnings: fb.warnings()}
	}

	var (
		segs    []speech.Segment
		pending strings.Builder
		count   int
	)
	flush := func() {
		if pending.Len() == 0 {
			return
		}
		segs = append(segs, speech.TextSegment(pending.String()))
		pending.Reset()
	}

	pos := 0
	for _, m := range sfxTag.FindAllStringSubmatchIndex(text, -1) {
		pending.WriteString(text[pos:m[0]])
		pos = m[1]
		literal := text[m[0]:m[1]]
		tag := strings.ToLower(text[m[2]:m[3]])

		known, _ := resolveOr(tag,
			func(t string) (bool, bool) { return true, audio.IsSfxTag(t) },
			func() {
				fb.warnOnce(tag, speech.WarnSfxUnknownTag, "unknown sound effect [%s] kept as text", tag)
			},
			func() bool { return false })
		if !known {
			pending.WriteString(literal)
			continue
		}
		if count >= maxEvents {
			fb.warnOnce("", speech.WarnSfxMaxEvents, "more than %d sound effects; extra tags kept as text", maxEvents)
			pending.WriteString(literal)
			continue
		}
		flush()
		segs = append(segs, speech.EventSegment(speech.Event{Kind: speech.EventSfx, Tag: tag}))
		count++
	}
	pending.WriteString(text[pos:])
	flush()

	if segs == nil {
		segs = []speech.Segment{}
	}
	return speech.SfxParseResult{Segments: segs, Warnings: fb.warnings(), SfxCount: count}
}
