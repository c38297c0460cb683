package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

const sfxAmplitude = 0.8

type waveform int

const (
	waveSine waveform = iota
	waveNoise
	waveImpulse
	waveArpeggio
)

type envelope int

const (
	envDecay envelope = iota
	envBell
	envSweep
	envBurst
	envRising
)

type sfxSpec struct {
	wave       waveform
	env        envelope
	freqHz     float64
	durationMs int
}

var sfxRegistry = map[string]sfxSpec{
	"ding":   {wave: waveSine, env: envDecay, freqHz: 880, durationMs: 400},
	"chime":  {wave: waveSine, env: envBell, freqHz: 1320, durationMs: 700},
	"whoosh": {wave: waveNoise, env: envSweep, durationMs: 500},
	"click":  {wave: waveImpulse, env: envBurst, durationMs: 30},
	"pop":    {wave: waveSine, env: envBurst, freqHz: 620, durationMs: 80},
	"tada":   {wave: waveArpeggio, env: envRising, freqHz: 523.25, durationMs: 900},
}

// ErrUnknownSfx is returned for tags outside the registry.
type ErrUnknownSfx struct{ Tag string }

func (e ErrUnknownSfx) Error() string { return fmt.Sprintf("unknown sound effect %q", e.Tag) }

func IsSfxTag(tag string) bool {
	_, ok := sfxRegistry[tag]
	return ok
}

func SfxTags() []string {
	tags := make([]string, 0, len(sfxRegistry))
	for t := range sfxRegistry {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// GenerateSfxWAV renders tag as a 24 kHz mono 16-bit WAV.
func GenerateSfxWAV(tag string) ([]byte, error) {
	return GenerateSfxWAVAt(tag, DefaultSampleRate)
}

// GenerateSfxWAVAt renders tag as a mono 16-bit WAV at rate. Non-positive
// rates fall back to DefaultSampleRate.
func GenerateSfxWAVAt(tag string, rate int) ([]byte, error) {
	spec, ok := sfxRegistry[tag]
	if !ok {
		return nil, ErrUnknownSfx{Tag: tag}
	}
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	total := rate * spec.durationMs / 1000
	pcm := make([]byte, total*bytesPerSample)
	for i := 0; i < total; i++ {
		p := float64(i) / float64(total)
		v := spec.sample(i, p, rate) * spec.gain(p) * sfxAmplitude
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(quantize(v)))
	}
	return BuildWAV(pcm, rate), nil
}

func (s sfxSpec) sample(i int, p float64, rate int) float64 {
	t := float64(i) / float64(rate)
	switch s.wave {
	case waveSine:
		return math.Sin(2 * math.Pi * s.freqHz * t)
	case waveNoise:
		return hashNoise(i)
	case waveImpulse:
		const width = 24
		if i >= width {
			return 0
		}
		return 1 - float64(i)/width
	case waveArpeggio:
		steps := [...]float64{1, 1.25, 1.5, 2}
		step := int(p * float64(len(steps)))
		if step >= len(steps) {
			step = len(steps) - 1
		}
		return math.Sin(2 * math.Pi * s.freqHz * steps[step] * t)
	}
	return 0
}

func (s sfxSpec) gain(p float64) float64 {
	switch s.env {
	case envDecay:
		return math.Exp(-5 * p)
	case envBell:
		if p < 0.02 {
			return p / 0.02
		}
		return math.Exp(-3 * (p - 0.02))
	case envSweep:
		return math.Sin(math.Pi * p)
	case envBurst:
		return (1 - p) * (1 - p)
	case envRising:
		if p < 0.85 {
			return 0.3 + 0.7*p/0.85
		}
		return (1 - p) / 0.15
	}
	return 1
}

// hashNoise maps a sample index to a repeatable value in [-1, 1].
func hashNoise(i int) float64 {
	x := uint32(i)*2654435761 + 0x9e3779b9
	x ^= x >> 16
	x *= 0x85ebca6b
	x ^= x >> 13
	x *= 0xc2b2ae35
	x ^= x >> 16
	return float64(x)/float64(math.MaxUint32)*2 - 1
}

func quantize(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(v * math.MaxInt16))
}
