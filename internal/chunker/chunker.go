// Package chunker splits long text into bounded pieces for one synthesize call each.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ent0n29/soundboard/internal/limits"
	"github.com/ent0n29/soundboard/internal/speech"
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?]+\s+`)
	clauseEnd      = regexp.MustCompile(`[,;:—]\s+`)
	sentenceTail   = regexp.MustCompile(`[.!?]+(\s|$)`)
)

// Options bounds chunking. Zero fields take the defaults from limits.
type Options struct {
	MaxTotalChars int
	MaxChunkChars int
	MinChunkChars int
	MaxChunks     int
}

func OptionsFrom(l limits.Limits) Options {
	return Options{
		MaxTotalChars: l.MaxTextChars,
		MaxChunkChars: l.MaxChunkChars,
		MinChunkChars: l.MinChunkChars,
		MaxChunks:     l.MaxChunks,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxTotalChars <= 0 {
		o.MaxTotalChars = limits.DefaultMaxTextChars
	}
	if o.MaxChunkChars <= 0 {
		o.MaxChunkChars = limits.DefaultMaxChunkChars
	}
	if o.MinChunkChars <= 0 {
		o.MinChunkChars = limits.DefaultMinChunkChars
	}
	if o.MaxChunks <= 0 {
		o.MaxChunks = limits.DefaultMaxChunks
	}
	return o
}

type Result struct {
	Chunks       []string         `json:"chunks"`
	WasChunked   bool             `json:"was_chunked"`
	WasTruncated bool             `json:"was_truncated"`
	Warnings     []speech.Warning `json:"warnings"`
}

// ChunkText splits text into chunks of at most MaxChunkChars runes, preferring
// paragraph, then sentence, then clause boundaries before a hard split.
func ChunkText(text string, opts Options) Result {
	opts = opts.withDefaults()
	res := Result{Chunks: []string{}, Warnings: []speech.Warning{}}

	text = strings.TrimSpace(text)
	if text == "" {
		return res
	}
	if n := runeLen(text); n > opts.MaxTotalChars {
		text = truncate(text, opts.MaxTotalChars)
		res.WasTruncated = true
		res.Warnings = append(res.Warnings, speech.Warnf(speech.WarnTruncated,
			"text was %d characters; truncated to %d", n, runeLen(text)))
	}
	if runeLen(text) <= opts.MaxChunkChars {
		res.Chunks = []string{text}
		return res
	}

	pieces := []string{text}
	for _, split := range []func(string) []string{
		func(s string) []string { return splitOn(s, paragraphBreak, false) },
		func(s string) []string { return splitOn(s, sentenceEnd, true) },
		func(s string) []string { return splitOn(s, clauseEnd, true) },
		func(s string) []string { return hardSplit(s, opts.MaxChunkChars) },
	} {
		pieces = splitOversized(pieces, opts.MaxChunkChars, split)
	}
	pieces = mergeShort(pieces, opts.MinChunkChars, opts.MaxChunkChars)

	if len(pieces) > opts.MaxChunks {
		dropped := len(pieces) - opts.MaxChunks
		pieces = pieces[:opts.MaxChunks]
		if !res.WasTruncated {
			res.Warnings = append(res.Warnings, speech.Warnf(speech.WarnTruncated,
				"%d chunks over the limit of %d were dropped", dropped, opts.MaxChunks))
		}
		res.WasTruncated = true
	}

	res.Chunks = pieces
	if len(pieces) > 1 {
		res.WasChunked = true
		res.Warnings = append(res.Warnings, speech.Warnf(speech.WarnChunkedText,
			"text split into %d chunks", len(pieces)))
	}
	return res
}

func splitOversized(pieces []string, max int, split func(string) []string) []string {
	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if runeLen(p) <= max {
			out = append(out, p)
			continue
		}
		out = append(out, split(p)...)
	}
	return out
}

// splitOn cuts s at each match of re. keep leaves the matched delimiter on the
// left-hand piece.
func splitOn(s string, re *regexp.Regexp, keep bool) []string {
	var out []string
	start := 0
	for _, m := range re.FindAllStringIndex(s, -1) {
		end := m[0]
		if keep {
			end = m[1]
		}
		if piece := strings.TrimSpace(s[start:end]); piece != "" {
			out = append(out, piece)
		}
		start = m[1]
	}
	if piece := strings.TrimSpace(s[start:]); piece != "" {
		out = append(out, piece)
	}
	return out
}

func hardSplit(s string, max int) []string {
	var out []string
	for runeLen(s) > max {
		head := prefix(s, max)
		cut := len(head)
		if !isSpace(s[cut]) {
			if sp := strings.LastIndexAny(head, " \t\n"); sp > 0 {
				cut = sp
			}
		}
		if piece := strings.TrimSpace(s[:cut]); piece != "" {
			out = append(out, piece)
		}
		s = strings.TrimSpace(s[cut:])
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func mergeShort(pieces []string, min, max int) []string {
	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if n := len(out); n > 0 && runeLen(p) < min {
			joined := out[n-1] + " " + p
			if runeLen(joined) <= max {
				out[n-1] = joined
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// truncate shortens s to at most max runes, cutting at the last sentence end,
// else the last word boundary, else mid-word.
func truncate(s string, max int) string {
	head := prefix(s, max)
	if locs := sentenceTail.FindAllStringIndex(head, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		cut := last[1]
		if cut > 0 {
			return strings.TrimSpace(head[:cut])
		}
	}
	if sp := strings.LastIndexAny(head, " \t\n"); sp > 0 {
		return strings.TrimSpace(head[:sp])
	}
	return head
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
