package markup

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ent0n29/soundboard/internal/limits"
	"github.com/ent0n29/soundboard/internal/speech"
	"github.com/ent0n29/soundboard/internal/voices"
)

var (
	pauseLine   = regexp.MustCompile(`(?i)^\[pause\s+(\d+)\s*(ms)?\]$`)
	speakerLine = regexp.MustCompile(`^([A-Za-z0-9][\w .'-]{0,39}):\s*(.*)$`)
)

// DialogueOptions bounds a script. Zero values take the defaults from limits.
type DialogueOptions struct {
	Cast        map[string]string
	MaxSpeakers int
	MaxCues     int
	MaxPauseMs  int
}

// ParseDialogue turns a "Speaker: line" script into a cue sheet with every
// speaker cast to an approved voice. It fails only when the script has no
// spoken lines or breaks the speaker or cue caps.
func ParseDialogue(script string, opts DialogueOptions) (speech.CueSheet, error) {
	def := limits.Default()
	if opts.MaxSpeakers <= 0 {
		opts.MaxSpeakers = def.MaxSpeakers
	}
	if opts.MaxCues <= 0 {
		opts.MaxCues = def.MaxCues
	}
	if opts.MaxPauseMs <= 0 {
		opts.MaxPauseMs = def.MaxPauseMs
	}

	var (
		fb       fallbacks
		cues     []speech.Cue
		speakers []string
		known    = make(map[string]bool)
	)
	addCue := func(c speech.Cue) error {
		if len(cues) >= opts.MaxCues {
			return speech.Errorf(speech.CodeTooManyCues, "script has more than %d cues", opts.MaxCues)
		}
		cues = append(cues, c)
		return nil
	}

	for i, raw := range strings.Split(script, "\n") {
		line := strings.TrimSpace(raw)
		lineNo := i + 1
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if m := pauseLine.FindStringSubmatch(line); m != nil {
			ms, err := strconv.Atoi(m[1])
			if err != nil || ms > opts.MaxPauseMs {
				ms = opts.MaxPauseMs
			}
			if err := addCue(speech.Cue{Kind: speech.CuePause, DurationMs: ms}); err != nil {
				return speech.CueSheet{}, err
			}
			continue
		}
		m := speakerLine.FindStringSubmatch(line)
		if m == nil {
			fb.warn(speech.WarnDialogueUnrecognized, "line %d skipped: expected \"Speaker: text\" or [pause N]", lineNo)
			continue
		}
		speaker := strings.TrimSpace(m[1])
		text := strings.TrimSpace(m[2])
		if text == "" {
			fb.warn(speech.WarnDialogueEmptyLine, "line %d skipped: %s has no text", lineNo, speaker)
			continue
		}
		if !known[speaker] {
			if len(speakers) >= opts.MaxSpeakers {
				return speech.CueSheet{}, speech.Errorf(speech.CodeTooManySpeakers, "script has more than %d speakers", opts.MaxSpeakers)
			}
			known[speaker] = true
			speakers = append(speakers, speaker)
		}
		if err := addCue(speech.Cue{Kind: speech.CueLine, Speaker: speaker, Text: text}); err != nil {
			return speech.CueSheet{}, err
		}
	}

	sheet := speech.CueSheet{Cues: cues, Speakers: speakers}
	if sheet.LineCount() == 0 {
		return speech.CueSheet{}, speech.Errorf(speech.CodeDialogueEmpty, "script contains no speaker lines")
	}

	sheet.Cast = castSpeakers(speakers, opts.Cast, &fb)
	for i := range sheet.Cues {
		if sheet.Cues[i].Kind == speech.CueLine {
			sheet.Cues[i].VoiceID = sheet.Cast[sheet.Cues[i].Speaker]
		}
	}
	sheet.Warnings = fb.warnings()
	return sheet, nil
}

func castSpeakers(speakers []string, explicit map[string]string, fb *fallbacks) map[string]string {
	caster := voices.NewCaster()
	cast := make(map[string]string, len(speakers))
	for _, speaker := range speakers {
		requested, listed := castEntry(explicit, speaker)
		if !listed {
			cast[speaker] = caster.Next()
			continue
		}
		id, ok := resolveOr(requested, voices.Resolve,
			func() {
				fb.warn(speech.WarnDialogueCastInvalid, "cast for %s: %q is not an approved voice or preset; auto-cast instead", speaker, requested)
			},
			caster.Next)
		if ok {
			caster.MarkUsed(id)
		}
		cast[speaker] = id
	}
	return cast
}

func castEntry(cast map[string]string, speaker string) (string, bool) {
	if v, ok := cast[speaker]; ok {
		return v, true
	}
	for k, v := range cast {
		if strings.EqualFold(strings.TrimSpace(k), speaker) {
			return v, true
		}
	}
	return "", false
}
