package install

import (
	"sync"
	"time"
)

// Status is the state of one install attempt.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusInstalling  Status = "installing"
	StatusConfiguring Status = "configuring"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transitions happen from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Progress is the poll-queried snapshot of one install attempt, keyed by an
// install id minted per attempt (distinct from the server id).
type Progress struct {
	InstallID         string     `json:"install_id"`
	Status            Status     `json:"status"`
	Progress          int        `json:"progress"` // 0..100
	Message           string     `json:"message"`
	CurrentStep       *string    `json:"current_step,omitempty"`
	TotalSteps        *int       `json:"total_steps,omitempty"`
	CurrentStepNumber *int       `json:"current_step_number,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Error             *string    `json:"error,omitempty"`
	Logs              []string   `json:"logs"`
}

// Tracker is the mutex-guarded map from install id to progress record. It is
// independent of the process registry and of the durable metadata store.
type Tracker struct {
	mu sync.Mutex
	m  map[string]*Progress
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{m: make(map[string]*Progress)}
}

// Put inserts or replaces the record for p.InstallID.
func (t *Tracker) Put(p Progress) {
	t.mu.Lock()
	cp := p
	t.m[p.InstallID] = &cp
	t.mu.Unlock()
}

// Get returns a copy of the record and whether it exists.
func (t *Tracker) Get(installID string) (Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.m[installID]
	if !ok {
		return Progress{}, false
	}
	return *p, true
}

// Update applies patch to the record under the tracker lock. Records already
// in the cancelled state are left untouched so a cancelled install's
// background task cannot resurrect it. Unknown ids are ignored.
func (t *Tracker) Update(installID string, patch func(*Progress)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.m[installID]
	if !ok || p.Status == StatusCancelled {
		return
	}
	patch(p)
}

// Cancel marks the record cancelled regardless of its current status and
// stamps the completion time. Unknown ids are ignored.
func (t *Tracker) Cancel(installID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.m[installID]
	if !ok {
		return false
	}
	now := time.Now().UTC()
	p.Status = StatusCancelled
	p.Message = "Installation cancelled"
	p.CompletedAt = &now
	return true
}

// Remove deletes the record.
func (t *Tracker) Remove(installID string) {
	t.mu.Lock()
	delete(t.m, installID)
	t.mu.Unlock()
}
