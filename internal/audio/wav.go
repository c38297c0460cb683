// Package audio builds, parses and joins mono 16-bit PCM WAV files and
// renders the built-in sound effects.
package audio

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	DefaultSampleRate = 24000
	HeaderSize        = 44
	bitsPerSample     = 16
	bytesPerSample    = bitsPerSample / 8
	numChannels       = 1
	formatPCM         = 1
)

var ErrNoValidWAV = errors.New("no valid WAV data")

// WAVInfo describes a parsed WAV. PCM aliases the input buffer.
type WAVInfo struct {
	SampleRate int
	Channels   int
	Bits       int
	PCM        []byte
}

func (w *WAVInfo) Samples() int {
	return len(w.PCM) / bytesPerSample
}

func (w *WAVInfo) DurationMs() int {
	return samplesToMs(w.Samples(), w.SampleRate)
}

// BuildWAV wraps raw PCM16LE mono samples in a canonical 44-byte header.
func BuildWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(pcm))
	// Writes to a bytes.Buffer cannot fail.
	_ = WriteWAVTo(&buf, pcm, sampleRate)
	return buf.Bytes()
}

// WriteWAVFile writes raw PCM16LE mono samples as a WAV file at path.
func WriteWAVFile(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAVTo(f, pcm, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteWAVTo streams a WAV header followed by pcm to out.
func WriteWAVTo(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	dataSize := uint32(len(pcm))

	w := bufio.NewWriter(out)
	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(HeaderSize-8) + dataSize,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(formatPCM),
		uint16(numChannels),
		uint32(sampleRate),
		uint32(sampleRate * numChannels * bytesPerSample),
		uint16(numChannels * bytesPerSample),
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// ParseWAV validates a RIFF/WAVE buffer and locates its fmt and data chunks,
// skipping any other chunks. It returns nil for anything malformed.
func ParseWAV(data []byte) *WAVInfo {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil
	}
	info := &WAVInfo{}
	haveFmt := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			if id == "data" && haveFmt {
				// Streaming writers leave the size unset; take what is there.
				size = len(data) - body
			} else {
				return nil
			}
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil
			}
			if binary.LittleEndian.Uint16(data[body:body+2]) != formatPCM {
				return nil
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.Bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt || info.SampleRate <= 0 {
				return nil
			}
			pcm := data[body : body+size]
			info.PCM = pcm[:len(pcm)-len(pcm)%bytesPerSample]
			return info
		}
		// Chunks are word aligned.
		pos = body + size + size%2
	}
	return nil
}

// Concatenated is the result of joining WAV inputs.
type Concatenated struct {
	WAV        []byte
	SampleRate int
	Samples    int
	DurationMs int
}

// ConcatWAV joins the PCM of every valid input and wraps it once. The sample
// rate comes from the first valid input; invalid inputs are skipped. Duration
// is computed from the joined sample count.
func ConcatWAV(inputs [][]byte) (Concatenated, error) {
	var (
		pcm  bytes.Buffer
		rate int
	)
	for _, in := range inputs {
		info := ParseWAV(in)
		if info == nil {
			continue
		}
		if rate == 0 {
			rate = info.SampleRate
		}
		pcm.Write(info.PCM)
	}
	if rate == 0 {
		return Concatenated{}, ErrNoValidWAV
	}
	samples := pcm.Len() / bytesPerSample
	return Concatenated{
		WAV:        BuildWAV(pcm.Bytes(), rate),
		SampleRate: rate,
		Samples:    samples,
		DurationMs: samplesToMs(samples, rate),
	}, nil
}

// ConcatFiles reads every path, joins them and writes the result to out.
func ConcatFiles(paths []string, out string) (Concatenated, error) {
	inputs := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return Concatenated{}, fmt.Errorf("read %s: %w", p, err)
		}
		inputs = append(inputs, data)
	}
	res, err := ConcatWAV(inputs)
	if err != nil {
		return Concatenated{}, err
	}
	if err := os.WriteFile(out, res.WAV, 0o644); err != nil {
		return Concatenated{}, fmt.Errorf("write %s: %w", out, err)
	}
	return res, nil
}

// ConcatBase64 decodes each input, joins them and returns the encoded result.
func ConcatBase64(encoded []string) (string, Concatenated, error) {
	inputs := make([][]byte, 0, len(encoded))
	for i, e := range encoded {
		data, err := base64.StdEncoding.DecodeString(e)
		if err != nil {
			return "", Concatenated{}, fmt.Errorf("decode chunk %d: %w", i, err)
		}
		inputs = append(inputs, data)
	}
	res, err := ConcatWAV(inputs)
	if err != nil {
		return "", Concatenated{}, err
	}
	return base64.StdEncoding.EncodeToString(res.WAV), res, nil
}

// Silence returns a WAV of durationMs of digital silence.
func Silence(durationMs, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if durationMs < 0 {
		durationMs = 0
	}
	samples := sampleRate * durationMs / 1000
	return BuildWAV(make([]byte, samples*bytesPerSample), sampleRate)
}

func samplesToMs(samples, rate int) int {
	if rate <= 0 {
		return 0
	}
	return int(int64(samples) * 1000 / int64(rate))
}
