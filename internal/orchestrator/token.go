package orchestrator

import "sync/atomic"

// CancelToken is a cooperative cancellation flag. The orchestrator polls it
// before each chunk; a call already in flight is never interrupted.
type CancelToken struct {
	aborted atomic.Bool
}

func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

func (t *CancelToken) Abort() {
	if t != nil {
		t.aborted.Store(true)
	}
}

// Aborted is safe on a nil token, which is never aborted.
func (t *CancelToken) Aborted() bool {
	return t != nil && t.aborted.Load()
}
