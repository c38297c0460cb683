package voices

import "sort"

const (
	Neutral         = "neutral"
	MinEmotionSpeed = 0.85
	MaxEmotionSpeed = 1.15
)

type EmotionStyle struct {
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
}

var emotionTable = map[string]EmotionStyle{
	Neutral:     {VoiceID: "bm_george", Speed: 1.0},
	"happy":     {VoiceID: "af_bella", Speed: 1.08},
	"excited":   {VoiceID: "af_sky", Speed: 1.15},
	"sad":       {VoiceID: "af_sarah", Speed: 0.88},
	"angry":     {VoiceID: "am_michael", Speed: 1.05},
	"calm":      {VoiceID: "bf_emma", Speed: 0.92},
	"whisper":   {VoiceID: "af_nicole", Speed: 0.85},
	"serious":   {VoiceID: "bm_lewis", Speed: 0.95},
	"surprised": {VoiceID: "af_river", Speed: 1.12},
	"fearful":   {VoiceID: "am_eric", Speed: 1.1},
}

// Emotion returns the style for name. ok is false for unknown names, in which
// case the neutral style is returned.
func Emotion(name string) (EmotionStyle, bool) {
	style, ok := emotionTable[name]
	if !ok {
		style = emotionTable[Neutral]
	}
	style.Speed = ClampEmotionSpeed(style.Speed)
	return style, ok
}

func Emotions() []string {
	names := make([]string, 0, len(emotionTable))
	for k := range emotionTable {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func ClampEmotionSpeed(v float64) float64 {
	return clamp(v, MinEmotionSpeed, MaxEmotionSpeed)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
