package markup

import (
	"errors"
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ent0n29/soundboard/internal/limits"
	"github.com/ent0n29/soundboard/internal/speech"
)

const (
	defaultBreakMs  = 250
	minProsodyRate  = 0.5
	maxProsodyRate  = 2.0
	defaultEmphasis = "moderate"
)

var (
	ssmlSniff   = regexp.MustCompile(`<\s*/?\s*[a-zA-Z]`)
	speakOpen   = regexp.MustCompile(`(?i)^\s*<speak\b[^>]*>`)
	speakClose  = regexp.MustCompile(`(?i)</speak\s*>\s*$`)
	ssmlTag     = regexp.MustCompile(`<(/?)\s*([a-zA-Z][\w:-]*)([^>]*?)(/?)>`)
	ssmlAttr    = regexp.MustCompile(`([a-zA-Z][\w:-]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	anyTag      = regexp.MustCompile(`<[^>]*>`)
	subClose    = regexp.MustCompile(`(?i)</\s*sub\s*>`)
	breakTime   = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(ms|s)?\s*$`)
	percentRate = regexp.MustCompile(`^([+-]?)(\d+(?:\.\d+)?)%$`)

	errSSMLTooLarge = errors.New("ssml exceeds parser limits")
)

var breakStrength = map[string]int{
	"none":     0,
	"x-weak":   100,
	"weak":     200,
	"medium":   400,
	"strong":   700,
	"x-strong": 1000,
}

var namedRate = map[string]float64{
	"x-slow": 0.5,
	"slow":   0.75,
	"medium": 1.0,
	"fast":   1.25,
	"x-fast": 1.5,
}

var emphasisLevels = map[string]bool{
	"strong":   true,
	"moderate": true,
	"reduced":  true,
	"none":     true,
}

// LooksLikeSSML is the cheap sniff used to decide whether input needs tag parsing.
func LooksLikeSSML(input string) bool {
	return ssmlSniff.MatchString(input)
}

// ParseSSMLLite converts SSML-lite markup into a plan. It never panics and never
// fails: oversized or broken markup degrades to plain text with one
// SSML_PARSE_FAILED warning.
func ParseSSMLLite(input string, lim limits.Limits) (plan speech.SpeechPlan) {
	if !LooksLikeSSML(input) {
		segs := []speech.Segment{speech.TextSegment(input)}
		return speech.SpeechPlan{
			Segments:  segs,
			PlainText: speech.PlainText(segs),
			Warnings:  []speech.Warning{},
		}
	}

	defer func() {
		if r := recover(); r != nil {
			plan = degradeSSML(input, fmt.Errorf("panic: %v", r))
		}
	}()

	p := &ssmlParser{lim: lim.WithDefaults()}
	if err := p.parse(input); err != nil {
		return degradeSSML(input, err)
	}
	return speech.SpeechPlan{
		Segments:  p.segs,
		PlainText: speech.PlainText(p.segs),
		WasSSML:   true,
		Warnings:  p.fb.warnings(),
	}
}

func degradeSSML(input string, cause error) speech.SpeechPlan {
	text := speech.CollapseWhitespace(html.UnescapeString(anyTag.ReplaceAllString(input, " ")))
	segs := []speech.Segment{speech.TextSegment(text)}
	return speech.SpeechPlan{
		Segments:  segs,
		PlainText: speech.PlainText(segs),
		WasSSML:   true,
		Warnings: []speech.Warning{
			speech.Warnf(speech.WarnSSMLParseFailed, "markup could not be parsed, tags stripped: %v", cause),
		},
	}
}

type ssmlParser struct {
	lim   limits.Limits
	segs  []speech.Segment
	stack []string
	nodes int
	chars int
	fb    fallbacks
}

func (p *ssmlParser) parse(input string) error {
	body := input
	if loc := speakOpen.FindStringIndex(body); loc != nil {
		body = body[loc[1]:]
		if end := speakClose.FindStringIndex(body); end != nil {
			body = body[:end[0]]
		}
	}

	pos := 0
	for _, m := range ssmlTag.FindAllStringSubmatchIndex(body, -1) {
		if m[0] < pos {
			continue // consumed by a <sub> element
		}
		if err := p.text(body[pos:m[0]]); err != nil {
			return err
		}
		pos = m[1]

		closing := m[3] > m[2]
		name := strings.ToLower(body[m[4]:m[5]])
		attrs := parseAttrs(body[m[6]:m[7]])
		selfClosing := m[9] > m[8]

		if err := p.countNode(); err != nil {
			return err
		}
		if closing {
			p.closeTag(name)
			continue
		}
		next, err := p.openTag(name, attrs, selfClosing, body, pos)
		if err != nil {
			return err
		}
		pos = next
	}
	if err := p.text(body[pos:]); err != nil {
		return err
	}

	for len(p.stack) > 0 {
		name := p.pop()
		p.fb.warn(speech.WarnSSMLUnclosedTag, "<%s> was not closed; closed at end of input", name)
	}
	return nil
}

func (p *ssmlParser) openTag(name string, attrs map[string]string, selfClosing bool, body string, pos int) (int, error) {
	switch name {
	case "speak", "say-as":
	case "break":
		p.emit(speech.Event{Kind: speech.EventBreak, TimeMs: p.breakMs(attrs)})
	case "prosody":
		if selfClosing {
			return pos, nil
		}
		p.emit(speech.Event{Kind: speech.EventProsody, Rate: parseRate(attrs["rate"])})
		p.stack = append(p.stack, name)
	case "emphasis":
		if selfClosing {
			return pos, nil
		}
		level := strings.ToLower(strings.TrimSpace(attrs["level"]))
		if !emphasisLevels[level] {
			level = defaultEmphasis
		}
		p.emit(speech.Event{Kind: speech.EventEmphasis, Level: level})
		p.stack = append(p.stack, name)
	case "sub":
		alias, ok := attrs["alias"]
		if !ok || selfClosing {
			return pos, nil
		}
		next := len(body)
		if loc := subClose.FindStringIndex(body[pos:]); loc != nil {
			next = pos + loc[1]
		}
		if err := p.text(alias); err != nil {
			return pos, err
		}
		return next, nil
	default:
		p.fb.warnOnce(name, speech.WarnSSMLTagStripped, "unsupported tag <%s> removed, inner text kept", name)
	}
	return pos, nil
}

func (p *ssmlParser) closeTag(name string) {
	switch name {
	case "speak", "say-as", "break", "sub":
		return
	}
	idx := -1
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i] == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.fb.warnOnce(name, speech.WarnSSMLTagStripped, "unsupported tag <%s> removed, inner text kept", name)
		return
	}
	for len(p.stack)-1 > idx {
		inner := p.pop()
		p.fb.warn(speech.WarnSSMLUnclosedTag, "<%s> was not closed before </%s>", inner, name)
	}
	p.pop()
}

func (p *ssmlParser) pop() string {
	name := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	switch name {
	case "prosody":
		p.emit(speech.Event{Kind: speech.EventProsodyEnd})
	case "emphasis":
		p.emit(speech.Event{Kind: speech.EventEmphasisEnd})
	}
	return name
}

func (p *ssmlParser) emit(ev speech.Event) {
	p.segs = append(p.segs, speech.EventSegment(ev))
}

func (p *ssmlParser) text(raw string) error {
	if raw == "" {
		return nil
	}
	decoded := html.UnescapeString(raw)
	p.chars += utf8.RuneCountInString(decoded)
	if p.chars > p.lim.MaxSSMLChars {
		return fmt.Errorf("%w: %d text chars, max %d", errSSMLTooLarge, p.chars, p.lim.MaxSSMLChars)
	}
	if err := p.countNode(); err != nil {
		return err
	}
	p.segs = append(p.segs, speech.TextSegment(decoded))
	return nil
}

func (p *ssmlParser) countNode() error {
	p.nodes++
	if p.nodes > p.lim.MaxSSMLNodes {
		return fmt.Errorf("%w: more than %d nodes", errSSMLTooLarge, p.lim.MaxSSMLNodes)
	}
	return nil
}

func (p *ssmlParser) breakMs(attrs map[string]string) int {
	if m := breakTime.FindStringSubmatch(attrs["time"]); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		if strings.EqualFold(m[2], "s") {
			v *= 1000
		}
		// Clamp before converting: huge values overflow int.
		v = math.Min(math.Max(v, 0), float64(p.lim.MaxBreakMs))
		return int(v + 0.5)
	}
	ms := defaultBreakMs
	if s, ok := breakStrength[strings.ToLower(strings.TrimSpace(attrs["strength"]))]; ok {
		ms = s
	}
	return min(ms, p.lim.MaxBreakMs)
}

func parseRate(raw string) float64 {
	raw = strings.ToLower(strings.TrimSpace(raw))
	rate := 1.0
	if v, ok := namedRate[raw]; ok {
		rate = v
	} else if m := percentRate.FindStringSubmatch(raw); m != nil {
		pct, _ := strconv.ParseFloat(m[2], 64)
		switch m[1] {
		case "+":
			rate = 1 + pct/100
		case "-":
			rate = 1 - pct/100
		default:
			rate = pct / 100
		}
	} else if v, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(v) {
		rate = v
	}
	if rate < minProsodyRate {
		return minProsodyRate
	}
	if rate > maxProsodyRate {
		return maxProsodyRate
	}
	return rate
}

func parseAttrs(raw string) map[string]string {
	out := make(map[string]string)
	for _, m := range ssmlAttr.FindAllStringSubmatch(raw, -1) {
		v := m[2]
		if v == "" {
			v = m[3]
		}
		out[strings.ToLower(m[1])] = html.UnescapeString(v)
	}
	return out
}
