// Package transfer runs the transfer queue: a single worker that executes
// queued rsync jobs strictly in submission order, gating each one on a
// destination free-space preflight.
package transfer

import (
	"fmt"
	"sync"
	"time"

	"github.com/lab427/ferry/internal/transport"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"

	// StatusRemoved marks a job withdrawn while still queued. The worker
	// skips removed jobs; a running job cannot be removed.
	StatusRemoved Status = "removed"
)

// Job is one queued transfer. Fields are guarded by mu; external callers
// only ever see copies taken with Clone.
type Job struct {
	ID        string
	Direction transport.Direction
	Endpoint  transport.Endpoint

	// Source and Dest are a local path and a remote path; Direction
	// decides which is which.
	Source string
	Dest   string

	// Recursive is true for directory payloads.
	Recursive bool

	Status Status
	Err    error

	// Bytes is the payload size moved, from the rsync stats summary.
	// Populated on success.
	Bytes int64

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	mu sync.RWMutex
}

func newJob(direction transport.Direction, ep transport.Endpoint, source, dest string, recursive bool) *Job {
	return &Job{
		ID:        generateJobID(),
		Direction: direction,
		Endpoint:  ep,
		Source:    source,
		Dest:      dest,
		Recursive: recursive,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}
}

// Clone returns a snapshot safe to hand outside the queue.
func (j *Job) Clone() Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Job{
		ID:         j.ID,
		Direction:  j.Direction,
		Endpoint:   j.Endpoint,
		Source:     j.Source,
		Dest:       j.Dest,
		Recursive:  j.Recursive,
		Status:     j.Status,
		Err:        j.Err,
		Bytes:      j.Bytes,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}

// GetStatus returns the current status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal reports whether the job has finished, one way or the other.
func (j *Job) IsTerminal() bool {
	switch j.GetStatus() {
	case StatusSucceeded, StatusFailed, StatusRemoved:
		return true
	}
	return false
}

func (j *Job) markRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusRunning
	j.StartedAt = time.Now()
}

func (j *Job) markSucceeded(bytes int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusSucceeded
	j.Bytes = bytes
	j.FinishedAt = time.Now()
}

func (j *Job) markFailed(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusFailed
	j.Err = err
	j.FinishedAt = time.Now()
}

// Name returns a short display label for notifications and listings.
func (j *Job) Name() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return fmt.Sprintf("%s %s -> %s", j.Direction, j.Source, j.Dest)
}

// ID generation
var (
	jobCounter uint64
	jobMu      sync.Mutex
)

func generateJobID() string {
	jobMu.Lock()
	defer jobMu.Unlock()
	jobCounter++
	return fmt.Sprintf("job-%d-%d", time.Now().UnixNano(), jobCounter)
}
