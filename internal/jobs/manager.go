// Package jobs tracks in-flight synthesis jobs so they can be interrupted by id.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/soundboard/internal/orchestrator"
	"github.com/ent0n29/soundboard/internal/speech"
)

type Status string

const (
	StatusRunning     Status = "running"
	StatusDone        Status = "done"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

type Kind string

const (
	KindSpeak    Kind = "speak"
	KindDialogue Kind = "dialogue"
)

var ErrNotFound = speech.Errorf(speech.CodeJobNotFound, "job not found")

type Job struct {
	ID         string    `json:"job_id"`
	Kind       Kind      `json:"kind"`
	ClientKey  string    `json:"client_key,omitempty"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// Token is shared by every copy of the job.
	Token *orchestrator.CancelToken `json:"-"`
}

type Manager struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	retention time.Duration
	onExpire  func(Job)
}

// NewManager keeps finished jobs visible for retention before the janitor drops them.
func NewManager(retention time.Duration) *Manager {
	if retention <= 0 {
		retention = 2 * time.Minute
	}
	return &Manager{
		jobs:      make(map[string]*Job),
		retention: retention,
	}
}

func (m *Manager) SetExpireHook(hook func(Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Start(kind Kind, clientKey string) Job {
	j := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		ClientKey: clientKey,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
		Token:     orchestrator.NewCancelToken(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
	return *j
}

func (m *Manager) Get(id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *j, nil
}

// Interrupt aborts a running job's token. It reports false when the job has
// already finished.
func (m *Manager) Interrupt(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if j.Status != StatusRunning {
		return false, nil
	}
	j.Token.Abort()
	return true, nil
}

// InterruptAll aborts every running job and returns how many were hit.
func (m *Manager) InterruptAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if j.Status == StatusRunning {
			j.Token.Abort()
			n++
		}
	}
	return n
}

func (m *Manager) Finish(id string, status Status) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	j.Status = status
	j.FinishedAt = time.Now().UTC()
	return *j, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireFinished(time.Now().UTC())
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, j := range m.jobs {
		if j.Status == StatusRunning {
			count++
		}
	}
	return count
}

func (m *Manager) expireFinished(now time.Time) {
	var expired []Job

	m.mu.Lock()
	for id, j := range m.jobs {
		if j.Status == StatusRunning || now.Sub(j.FinishedAt) < m.retention {
			continue
		}
		expired = append(expired, *j)
		delete(m.jobs, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, j := range expired {
			hook(j)
		}
	}
}
