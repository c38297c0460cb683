package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	shellwords "github.com/mattn/go-shellwords"

	"github.com/ent0n29/soundboard/internal/reliability"
	"github.com/ent0n29/soundboard/internal/speech"
)

const (
	bridgeRestartBase = 500 * time.Millisecond
	bridgeRestartCap  = 30 * time.Second
	bridgeStopGrace   = 1200 * time.Millisecond
)

var errBridgeClosed = errors.New("bridge closed")

// Bridge drives a long-lived model subprocess over NDJSON on stdin/stdout.
// Each request line carries an id and an op (health, synthesize or interrupt);
// responses are matched back by id. Synthesize calls are single-flight. A
// crashed subprocess is restarted on the next call, with exponential backoff.
type Bridge struct {
	argv   []string
	env    []string
	logger *log.Logger

	mu       sync.Mutex
	proc     *bridgeProc
	failures int
	retryAt  time.Time
	closed   bool

	flight sync.Mutex
	seq    atomic.Uint64
}

type BridgeOptions struct {
	Command string
	Env     []string
	Logger  *log.Logger
}

// NewBridge parses the command line but does not start the subprocess.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	argv, err := parser.Parse(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("parse bridge command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("bridge command is empty")
	}
	return &Bridge{
		argv:   argv,
		env:    opts.Env,
		logger: discardLogger(opts.Logger).WithPrefix("bridge"),
	}, nil
}

func (b *Bridge) Name() string { return "bridge" }

func (b *Bridge) Health(ctx context.Context) (HealthInfo, error) {
	resp, err := b.call(ctx, bridgeLine{Op: "health"})
	if err != nil {
		return HealthInfo{}, err
	}
	if err := resp.err(); err != nil {
		return HealthInfo{}, err
	}
	return HealthInfo{Model: resp.Model, SampleRate: resp.SampleRate}, nil
}

func (b *Bridge) Synthesize(ctx context.Context, req Request) (speech.ChunkArtifact, error) {
	b.flight.Lock()
	defer b.flight.Unlock()

	req = withDefaults(req)
	started := time.Now()
	resp, err := b.call(ctx, bridgeLine{Op: "synthesize", Request: &req})
	if err != nil {
		return speech.ChunkArtifact{}, err
	}
	b.logger.Debug("chunk synthesized", "chunk", req.ChunkIndex, "voice", req.VoiceID, "elapsed", time.Since(started))
	return resp.artifact(req.Delivery)
}

// Interrupt asks the subprocess to abandon in-flight work. It reports whether
// anything was actually interrupted.
func (b *Bridge) Interrupt(ctx context.Context) (bool, error) {
	resp, err := b.call(ctx, bridgeLine{Op: "interrupt"})
	if err != nil {
		return false, err
	}
	if err := resp.err(); err != nil {
		return false, err
	}
	return resp.Interrupted, nil
}

func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	proc := b.proc
	b.proc = nil
	b.mu.Unlock()

	if proc != nil {
		proc.stop()
	}
	return nil
}

type bridgeLine struct {
	ID string `json:"id"`
	Op string `json:"op"`
	*Request
}

func (b *Bridge) call(ctx context.Context, line bridgeLine) (wireResponse, error) {
	proc, err := b.ensure()
	if err != nil {
		return wireResponse{}, err
	}
	line.ID = fmt.Sprintf("req-%d", b.seq.Add(1))
	ch := proc.register(line.ID)
	defer proc.unregister(line.ID)

	payload, err := json.Marshal(line)
	if err != nil {
		return wireResponse{}, fmt.Errorf("marshal bridge request: %w", err)
	}
	if err := proc.send(payload); err != nil {
		return wireResponse{}, unavailable(err, "write to bridge")
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-proc.done:
		return wireResponse{}, unavailable(proc.exitErr(), "bridge exited: %s", proc.stderr.String())
	case <-ctx.Done():
		return wireResponse{}, ctx.Err()
	}
}

// ensure returns a running subprocess, starting one if needed.
func (b *Bridge) ensure() (*bridgeProc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, unavailable(errBridgeClosed, "bridge")
	}
	if b.proc != nil {
		if !b.proc.exited() {
			return b.proc, nil
		}
		b.logger.Warn("bridge subprocess exited", "err", b.proc.exitErr(), "stderr", b.proc.stderr.String())
		b.proc = nil
		b.backoffLocked()
	}
	if wait := time.Until(b.retryAt); wait > 0 {
		return nil, speech.Errorf(speech.CodeBackendUnavailable, "bridge restarting in %s", wait.Round(time.Millisecond))
	}

	proc, err := startBridgeProc(b.argv, b.env, b.logger)
	if err != nil {
		b.backoffLocked()
		return nil, unavailable(err, "start bridge")
	}
	b.logger.Info("bridge subprocess started", "cmd", b.argv[0], "pid", proc.cmd.Process.Pid)
	b.proc = proc
	b.failures = 0
	return proc, nil
}

func (b *Bridge) backoffLocked() {
	b.retryAt = time.Now().Add(reliability.ExponentialBackoff(b.failures, bridgeRestartBase, bridgeRestartCap))
	b.failures++
}

type bridgeProc struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	logger *log.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan wireResponse

	done    chan struct{}
	readErr error
}

func startBridgeProc(argv, env []string, logger *log.Logger) (*bridgeProc, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)
	stderr := newTailBuffer(16 << 10)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &bridgeProc{
		cmd:     cmd,
		stdin:   stdin,
		stderr:  stderr,
		logger:  logger,
		pending: make(map[string]chan wireResponse),
		done:    make(chan struct{}),
	}
	go p.readLoop(stdout)
	return p, nil
}

func (p *bridgeProc) readLoop(stdout io.Reader) {
	dec := json.NewDecoder(stdout)
	for {
		var resp wireResponse
		if err := dec.Decode(&resp); err != nil {
			p.readErr = err
			_ = p.cmd.Wait()
			close(p.done)
			return
		}
		p.pendingMu.Lock()
		ch, ok := p.pending[resp.ID]
		p.pendingMu.Unlock()
		if !ok {
			p.logger.Warn("bridge response for unknown request", "id", resp.ID)
			continue
		}
		ch <- resp
	}
}

func (p *bridgeProc) register(id string) chan wireResponse {
	ch := make(chan wireResponse, 1)
	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()
	return ch
}

func (p *bridgeProc) unregister(id string) {
	p.pendingMu.Lock()
	delete(p.pending, id)
	p.pendingMu.Unlock()
}

func (p *bridgeProc) send(payload []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := p.stdin.Write(append(payload, '\n'))
	return err
}

func (p *bridgeProc) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *bridgeProc) exitErr() error {
	if !p.exited() {
		return nil
	}
	if p.readErr == io.EOF {
		return errors.New("bridge closed its output")
	}
	return p.readErr
}

func (p *bridgeProc) stop() {
	_ = p.stdin.Close()
	if p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Signal(os.Interrupt)
	select {
	case <-time.After(bridgeStopGrace):
		_ = p.cmd.Process.Kill()
		<-p.done
	case <-p.done:
	}
}

// tailBuffer keeps the last max bytes written to it, for error reports.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 16 << 10
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
