package backend

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/soundboard/internal/reliability"
	"github.com/ent0n29/soundboard/internal/speech"
)

// Failover prefers the primary backend and switches to the fallback when the
// primary is unavailable. Once the fallback succeeds it stays active until it
// fails; then the primary is retried.
type Failover struct {
	primary        Backend
	fallback       Backend
	fallbackActive atomic.Bool
	logger         *log.Logger
}

func NewFailover(primary, fallback Backend, logger *log.Logger) *Failover {
	return &Failover{
		primary:  primary,
		fallback: fallback,
		logger:   discardLogger(logger).WithPrefix("failover"),
	}
}

func (f *Failover) Name() string {
	return fmt.Sprintf("failover(%s,%s)", f.primary.Name(), f.fallback.Name())
}

// FallbackActive reports whether calls currently go to the fallback.
func (f *Failover) FallbackActive() bool { return f.fallbackActive.Load() }

func (f *Failover) Health(ctx context.Context) (HealthInfo, error) {
	first, second := f.order()
	info, err := first.Health(ctx)
	if err == nil {
		return info, nil
	}
	info, err2 := second.Health(ctx)
	if err2 != nil {
		return HealthInfo{}, fmt.Errorf("%s: %v; %s: %w", first.Name(), err, second.Name(), err2)
	}
	return info, nil
}

func (f *Failover) Synthesize(ctx context.Context, req Request) (speech.ChunkArtifact, error) {
	if f.fallbackActive.Load() {
		art, fbErr := f.fallback.Synthesize(ctx, req)
		if fbErr == nil || !shouldFailOver(fbErr) {
			return art, fbErr
		}
		// Fallback failed after being active; try primary again.
		art, prErr := f.primary.Synthesize(ctx, req)
		if prErr == nil {
			f.fallbackActive.Store(false)
			f.logger.Info("primary backend recovered", "backend", f.primary.Name())
			return art, nil
		}
		return speech.ChunkArtifact{}, unavailable(prErr, "fallback failed: %v; primary failed", fbErr)
	}

	art, prErr := f.primary.Synthesize(ctx, req)
	if prErr == nil || !shouldFailOver(prErr) {
		return art, prErr
	}
	art, fbErr := f.fallback.Synthesize(ctx, req)
	if fbErr != nil {
		return speech.ChunkArtifact{}, unavailable(fbErr, "primary failed: %v; fallback failed", prErr)
	}
	f.fallbackActive.Store(true)
	f.logger.Warn("switched to fallback backend", "backend", f.fallback.Name(), "err", prErr)
	return art, nil
}

// Interrupt forwards to whichever backend is active, if it supports it.
func (f *Failover) Interrupt(ctx context.Context) (bool, error) {
	active, _ := f.order()
	if in, ok := active.(Interrupter); ok {
		return in.Interrupt(ctx)
	}
	return false, nil
}

func (f *Failover) Close() error {
	return errors.Join(f.primary.Close(), f.fallback.Close())
}

func (f *Failover) order() (Backend, Backend) {
	if f.fallbackActive.Load() {
		return f.fallback, f.primary
	}
	return f.primary, f.fallback
}

// shouldFailOver is false for context cancellation and for failures the
// other backend would reproduce, like a synthesis error on the text itself.
func shouldFailOver(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code, ok := speech.CodeOf(err)
	if !ok {
		return true
	}
	return reliability.IsRetryableCode(code)
}
