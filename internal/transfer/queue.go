package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lab427/ferry/internal/diskspace"
	"github.com/lab427/ferry/internal/logging"
	"github.com/lab427/ferry/internal/notify"
	"github.com/lab427/ferry/internal/transport"
)

// DefaultCapacity bounds how many jobs may wait in the queue.
const DefaultCapacity = 256

// timeRound trims notification durations to whole seconds.
const timeRound = time.Second

// Copier is the slice of the transport layer the queue needs.
type Copier interface {
	BulkCopy(ctx context.Context, ep transport.Endpoint, source, dest string, direction transport.Direction, recursive bool) (transport.CopyResult, error)
	FreeSpace(ctx context.Context, ep transport.Endpoint, path string) (int64, error)
	Run(ctx context.Context, ep transport.Endpoint, command string, opts transport.RunOptions) (transport.Result, error)
}

// Recorder persists finished jobs. Recording is best-effort: a recorder
// failure is logged and never changes a job's outcome.
type Recorder interface {
	RecordTransfer(job Job) error
}

// QueueStats holds per-state job counts.
type QueueStats struct {
	Queued    int
	Running   int
	Succeeded int
	Failed    int
	Removed   int
}

// Total returns the number of tracked jobs.
func (s QueueStats) Total() int {
	return s.Queued + s.Running + s.Succeeded + s.Failed + s.Removed
}

// Queue executes transfers strictly one at a time, in submission order.
// One slow transfer therefore delays everything behind it; that is the
// intended behavior, not a limitation, so a spinning-disk NAS never
// thrashes under parallel rsyncs.
type Queue struct {
	copier   Copier
	notifier notify.Notifier
	recorder Recorder
	logger   *logging.Logger

	mu   sync.RWMutex
	jobs []*Job
	byID map[string]*Job

	pending chan *Job

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool

	// localFree is swapped out in tests.
	localFree func(path string) int64
}

// NewQueue creates a stopped queue. notifier and recorder may be nil.
func NewQueue(copier Copier, notifier notify.Notifier, recorder Recorder, logger *logging.Logger) *Queue {
	return &Queue{
		copier:    copier,
		notifier:  notifier,
		recorder:  recorder,
		logger:    logger,
		byID:      make(map[string]*Job),
		pending:   make(chan *Job, DefaultCapacity),
		localFree: diskspace.Available,
	}
}

// Start launches the worker. Safe to call once per queue.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	q.stopChan = make(chan struct{})
	q.wg.Add(1)
	go q.workLoop()
	q.logger.Info().Msg("Transfer queue started")
}

// Stop signals the worker and waits for it to exit. The stop signal is
// only observed between jobs, so an in-flight transfer always runs to
// completion. Queued jobs stay queued; a restarted queue would pick them
// up again.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	stop := q.stopChan
	q.mu.Unlock()

	close(stop)
	q.wg.Wait()
	q.logger.Info().Msg("Transfer queue stopped")
}

// Enqueue adds a job to the back of the queue and returns its snapshot.
func (q *Queue) Enqueue(direction transport.Direction, ep transport.Endpoint, source, dest string, recursive bool) (Job, error) {
	if direction != transport.DirectionUpload && direction != transport.DirectionDownload {
		return Job{}, fmt.Errorf("unknown direction %q", direction)
	}
	if err := ep.Validate(); err != nil {
		return Job{}, err
	}
	if source == "" || dest == "" {
		return Job{}, errors.New("source and dest are required")
	}

	job := newJob(direction, ep, source, dest, recursive)

	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.byID[job.ID] = job
	q.mu.Unlock()

	select {
	case q.pending <- job:
	default:
		q.rollbackEnqueue(job)
		return Job{}, fmt.Errorf("queue is full (%d jobs pending)", cap(q.pending))
	}

	q.logger.Info().
		Str("job_id", job.ID).
		Str("direction", string(direction)).
		Str("source", source).
		Str("dest", dest).
		Msg("Job enqueued")
	return job.Clone(), nil
}

// rollbackEnqueue untracks a job that never made it into the pending
// channel. Removal is by identity: concurrent enqueues may have appended
// behind it, so truncating the tail would drop someone else's job.
func (q *Queue) rollbackEnqueue(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.byID, job.ID)
	for i := len(q.jobs) - 1; i >= 0; i-- {
		if q.jobs[i] == job {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			break
		}
	}
}

// RemoveQueued withdraws a job that has not started yet. Running and
// finished jobs cannot be removed.
func (q *Queue) RemoveQueued(jobID string) error {
	q.mu.RLock()
	job, exists := q.byID[jobID]
	q.mu.RUnlock()
	if !exists {
		return fmt.Errorf("job %q not found", jobID)
	}

	job.mu.Lock()
	defer job.mu.Unlock()
	if job.Status != StatusQueued {
		return fmt.Errorf("job %q is %s, only queued jobs can be removed", jobID, job.Status)
	}
	job.Status = StatusRemoved
	return nil
}

// Jobs returns snapshots of every tracked job in submission order.
func (q *Queue) Jobs() []Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Job, len(q.jobs))
	for i, job := range q.jobs {
		out[i] = job.Clone()
	}
	return out
}

// Job returns a snapshot of one job by ID.
func (q *Queue) Job(jobID string) (Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, exists := q.byID[jobID]
	if !exists {
		return Job{}, false
	}
	return job.Clone(), true
}

// Stats returns current per-state counts.
func (q *Queue) Stats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var stats QueueStats
	for _, job := range q.jobs {
		switch job.GetStatus() {
		case StatusQueued:
			stats.Queued++
		case StatusRunning:
			stats.Running++
		case StatusSucceeded:
			stats.Succeeded++
		case StatusFailed:
			stats.Failed++
		case StatusRemoved:
			stats.Removed++
		}
	}
	return stats
}

// ClearFinished drops terminal jobs from the listing.
func (q *Queue) ClearFinished() {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.jobs[:0]
	for _, job := range q.jobs {
		if job.IsTerminal() {
			delete(q.byID, job.ID)
			continue
		}
		kept = append(kept, job)
	}
	q.jobs = kept
}

func (q *Queue) workLoop() {
	defer q.wg.Done()
	for {
		// The stop signal is checked first so it wins over a pending job
		// at the iteration boundary.
		select {
		case <-q.stopChan:
			return
		default:
		}
		select {
		case <-q.stopChan:
			return
		case job := <-q.pending:
			if job.GetStatus() != StatusQueued {
				continue
			}
			q.runJob(job)
		}
	}
}

// runJob drives one job to a terminal state. Exactly one notification is
// emitted per terminal job.
func (q *Queue) runJob(job *Job) {
	job.markRunning()
	q.logger.Info().Str("job_id", job.ID).Str("job", job.Name()).Msg("Job started")

	bytes, err := q.execute(job)
	if err != nil {
		job.markFailed(err)
		q.logger.Error().Err(err).Str("job_id", job.ID).Msg("Job failed")
	} else {
		job.markSucceeded(bytes)
		q.logger.Info().
			Str("job_id", job.ID).
			Str("bytes", humanize.IBytes(uint64(bytes))).
			Msg("Job succeeded")
	}

	q.finish(job)
}

// execute runs preflight and the copy. A panic anywhere inside becomes a
// job failure so one bad job can never take the worker down with it.
// Execution deliberately runs on a context Stop does not cancel: a
// running transfer is never interrupted, shutdown waits for it.
func (q *Queue) execute(job *Job) (bytes int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transfer panicked: %v", r)
		}
	}()

	ctx := context.Background()
	if err := q.preflight(ctx, job); err != nil {
		return 0, err
	}

	res, err := q.copier.BulkCopy(ctx, job.Endpoint, job.Source, job.Dest, job.Direction, job.Recursive)
	if err != nil {
		return 0, err
	}
	return res.Bytes, nil
}

// preflight verifies the destination filesystem can hold the payload
// before any bytes move. An available space of 0 means the filesystem
// could not be inspected; the transfer proceeds and fails naturally if
// space truly runs out.
func (q *Queue) preflight(ctx context.Context, job *Job) error {
	var required, available int64
	var destPath string

	switch job.Direction {
	case transport.DirectionUpload:
		size, err := localPayloadSize(job.Source)
		if err != nil {
			return fmt.Errorf("sizing upload payload: %w", err)
		}
		avail, err := q.copier.FreeSpace(ctx, job.Endpoint, job.Dest)
		if err != nil {
			return fmt.Errorf("checking remote free space: %w", err)
		}
		required, available, destPath = size, avail, job.Dest

	case transport.DirectionDownload:
		size, err := q.remotePayloadSize(ctx, job)
		if err != nil {
			return fmt.Errorf("sizing download payload: %w", err)
		}
		required, available, destPath = size, q.localFree(job.Dest), job.Dest
	}

	if available > 0 && required > available {
		return &transport.InsufficientSpaceError{
			Path:      destPath,
			Required:  required,
			Available: available,
		}
	}
	return nil
}

// localPayloadSize sums the regular files under path.
func localPayloadSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// remotePayloadSize asks the endpoint for the payload's on-disk total.
func (q *Queue) remotePayloadSize(ctx context.Context, job *Job) (int64, error) {
	cmd := fmt.Sprintf("du -sb -- %s", transport.ShellQuote(job.Source))
	res, err := q.copier.Run(ctx, job.Endpoint, cmd, transport.RunOptions{Capture: true})
	if err != nil {
		return 0, err
	}
	if !res.Ok() {
		return 0, &transport.ExitError{Command: "du", ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}
	fields := strings.Fields(res.Stdout)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty du output for %s", job.Source)
	}
	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad du output %q for %s", fields[0], job.Source)
	}
	return size, nil
}

// finish records and announces a terminal job.
func (q *Queue) finish(job *Job) {
	snapshot := job.Clone()

	if q.recorder != nil {
		if err := q.recorder.RecordTransfer(snapshot); err != nil {
			q.logger.Warn().Err(err).Str("job_id", snapshot.ID).Msg("Recording job history failed")
		}
	}

	if q.notifier != nil {
		ev := notify.Event{JobID: snapshot.ID, Status: string(snapshot.Status)}
		if snapshot.Status == StatusSucceeded {
			ev.Summary = fmt.Sprintf("%s (%s in %s)",
				snapshot.Name(), humanize.IBytes(uint64(snapshot.Bytes)),
				snapshot.FinishedAt.Sub(snapshot.StartedAt).Round(timeRound))
		} else if snapshot.Err != nil {
			ev.Summary = fmt.Sprintf("%s: %v", snapshot.Name(), snapshot.Err)
		}
		if err := q.notifier.Notify(context.Background(), ev); err != nil {
			q.logger.Warn().Err(err).Str("job_id", snapshot.ID).Msg("Notification failed")
		}
	}
}
