package observability

import (
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	StageFirstChunk   = "first_chunk"
	StageChunk        = "chunk"
	StageRequestTotal = "request_total"
)

// Latency budgets (p95, milliseconds) reported next to each stage.
var stageTargets = map[string]float64{
	StageFirstChunk:   1200,
	StageChunk:        1500,
	StageRequestTotal: 20000,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

// Indicator counts discrete events, such as warning codes.
type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// LatencyWindow keeps the most recent samples per stage plus running
// indicator counts. It backs the /v1/stats JSON view.
type LatencyWindow struct {
	mu         sync.RWMutex
	size       int
	stages     map[string]*window
	indicators map[string]int
}

// window is a fixed-size ring; total counts every sample ever written.
type window struct {
	buf   []float64
	total int
}

func (r *window) add(v float64) {
	r.buf[r.total%len(r.buf)] = v
	r.total++
}

func (r *window) latest() float64 {
	return r.buf[(r.total-1)%len(r.buf)]
}

func (r *window) samples() []float64 {
	n := min(r.total, len(r.buf))
	return slices.Clone(r.buf[:n])
}

func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = 256
	}
	return &LatencyWindow{
		size:       size,
		stages:     make(map[string]*window),
		indicators: make(map[string]int),
	}
}

func (w *LatencyWindow) Observe(stage string, ms float64) {
	if w == nil || stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.stages[stage]
	if !ok {
		r = &window{buf: make([]float64, w.size)}
		w.stages[stage] = r
	}
	r.add(ms)
}

func (w *LatencyWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if w == nil || name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *LatencyWindow) Snapshot() LatencySnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      []StageStats{},
	}
	for _, stage := range slices.Sorted(maps.Keys(w.stages)) {
		r := w.stages[stage]
		if r.total == 0 {
			continue
		}
		st := summarize(r.samples())
		st.Stage = stage
		st.LastMS = round2(r.latest())
		st.TargetP95MS = stageTargets[stage]
		snap.Stages = append(snap.Stages, st)
	}
	for _, name := range slices.Sorted(maps.Keys(w.indicators)) {
		snap.Indicators = append(snap.Indicators, Indicator{Name: name, Count: w.indicators[name]})
	}
	return snap
}

func (w *LatencyWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.stages)
	clear(w.indicators)
}

func summarize(samples []float64) StageStats {
	slices.Sort(samples)
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return StageStats{
		Samples: len(samples),
		AvgMS:   round2(sum / float64(len(samples))),
		P50MS:   round2(percentile(samples, 0.50)),
		P95MS:   round2(percentile(samples, 0.95)),
		P99MS:   round2(percentile(samples, 0.99)),
	}
}

// percentile interpolates linearly between the two nearest ranks of sorted.
func percentile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
