package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lab427/ferry/internal/logging"
	"github.com/lab427/ferry/internal/notify"
	"github.com/lab427/ferry/internal/transport"
)

func testEndpoint() transport.Endpoint {
	return transport.Endpoint{
		Name:     "nas",
		Host:     "nas.local",
		User:     "alex",
		BasePath: "/mnt/user/media",
	}
}

// fakeCopier records BulkCopy invocations in order and lets tests script
// per-source outcomes.
type fakeCopier struct {
	mu      sync.Mutex
	copied  []string
	errs    map[string]error // keyed by source; nil entry means success
	panicOn string

	freeSpace    int64
	freeSpaceErr error

	remoteSizes map[string]int64 // du -sb results keyed by quoted source

	bytesPerCopy int64
	delay        time.Duration

	// gate, when set, blocks BulkCopy until the test releases it.
	gate chan struct{}
}

func (f *fakeCopier) BulkCopy(ctx context.Context, ep transport.Endpoint, source, dest string, direction transport.Direction, recursive bool) (transport.CopyResult, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return transport.CopyResult{}, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return transport.CopyResult{}, ctx.Err()
		}
	}
	f.mu.Lock()
	f.copied = append(f.copied, source)
	f.mu.Unlock()
	if source == f.panicOn {
		panic("copier blew up")
	}
	if err := f.errs[source]; err != nil {
		return transport.CopyResult{}, err
	}
	return transport.CopyResult{Bytes: f.bytesPerCopy}, nil
}

func (f *fakeCopier) FreeSpace(ctx context.Context, ep transport.Endpoint, path string) (int64, error) {
	return f.freeSpace, f.freeSpaceErr
}

func (f *fakeCopier) Run(ctx context.Context, ep transport.Endpoint, command string, opts transport.RunOptions) (transport.Result, error) {
	for src, size := range f.remoteSizes {
		if command == "du -sb -- "+transport.ShellQuote(src) {
			return transport.Result{Stdout: fmt.Sprintf("%d\t%s\n", size, src)}, nil
		}
	}
	return transport.Result{Stdout: "0\t/\n"}, nil
}

func (f *fakeCopier) copies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.copied...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (r *recordingNotifier) Notify(ctx context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingNotifier) all() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

type recordingRecorder struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (r *recordingRecorder) RecordTransfer(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return r.err
}

// waitTerminal polls until the job with the given ID reaches a terminal
// state or the deadline passes.
func waitTerminal(t *testing.T, q *Queue, jobID string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := q.Job(jobID); ok {
			switch job.Status {
			case StatusSucceeded, StatusFailed, StatusRemoved:
				return job
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return Job{}
}

// tempPayload creates a local file of the given size for upload jobs.
func tempPayload(t *testing.T, size int64) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "payload.bin")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

func newTestQueue(t *testing.T, copier *fakeCopier, notifier notify.Notifier, recorder Recorder) *Queue {
	t.Helper()
	q := NewQueue(copier, notifier, recorder, logging.Nop())
	q.localFree = func(string) int64 { return 1 << 40 }
	q.Start()
	t.Cleanup(q.Stop)
	return q
}

func TestJobsRunInSubmissionOrder(t *testing.T) {
	copier := &fakeCopier{freeSpace: 1 << 40}
	q := newTestQueue(t, copier, nil, nil)

	sources := []string{
		tempPayload(t, 10),
		tempPayload(t, 10),
		tempPayload(t, 10),
	}
	var last Job
	for _, src := range sources {
		job, err := q.Enqueue(transport.DirectionUpload, testEndpoint(), src, "/mnt/user/media/in", false)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		last = job
	}
	waitTerminal(t, q, last.ID)

	copied := copier.copies()
	if len(copied) != len(sources) {
		t.Fatalf("copied %d payloads, want %d", len(copied), len(sources))
	}
	for i, src := range sources {
		if copied[i] != src {
			t.Errorf("copy order[%d] = %s, want %s", i, copied[i], src)
		}
	}
}

func TestPreflightBlocksOversizedUpload(t *testing.T) {
	copier := &fakeCopier{freeSpace: 100 * 1024 * 1024}
	q := newTestQueue(t, copier, nil, nil)

	src := tempPayload(t, 500*1024*1024) // sparse, no real disk cost
	job, err := q.Enqueue(transport.DirectionUpload, testEndpoint(), src, "/mnt/user/media/in", false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := waitTerminal(t, q, job.ID)
	if done.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", done.Status)
	}
	var spaceErr *transport.InsufficientSpaceError
	if !errors.As(done.Err, &spaceErr) {
		t.Fatalf("err = %v, want *transport.InsufficientSpaceError", done.Err)
	}
	if spaceErr.Required != 500*1024*1024 || spaceErr.Available != 100*1024*1024 {
		t.Errorf("space error = %+v", spaceErr)
	}
	if len(copier.copies()) != 0 {
		t.Error("bytes moved despite failed preflight")
	}
}

func TestPreflightBlocksOversizedDownload(t *testing.T) {
	copier := &fakeCopier{
		remoteSizes: map[string]int64{"/mnt/user/media/big.iso": 500 * 1024 * 1024},
	}
	q := newTestQueue(t, copier, nil, nil)
	q.localFree = func(string) int64 { return 100 * 1024 * 1024 }

	job, err := q.Enqueue(transport.DirectionDownload, testEndpoint(),
		"/mnt/user/media/big.iso", filepath.Join(t.TempDir(), "big.iso"), false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := waitTerminal(t, q, job.ID)
	if done.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", done.Status)
	}
	var spaceErr *transport.InsufficientSpaceError
	if !errors.As(done.Err, &spaceErr) {
		t.Fatalf("err = %v, want *transport.InsufficientSpaceError", done.Err)
	}
	if len(copier.copies()) != 0 {
		t.Error("bytes moved despite failed preflight")
	}
}

func TestPreflightUnknownSpaceProceeds(t *testing.T) {
	copier := &fakeCopier{freeSpace: 0, bytesPerCopy: 10}
	q := newTestQueue(t, copier, nil, nil)

	job, err := q.Enqueue(transport.DirectionUpload, testEndpoint(), tempPayload(t, 10), "/mnt/user/media/in", false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if done := waitTerminal(t, q, job.ID); done.Status != StatusSucceeded {
		t.Errorf("status = %s, want succeeded when free space is unknown", done.Status)
	}
}

func TestWorkerSurvivesPanic(t *testing.T) {
	bad := tempPayload(t, 1)
	good := tempPayload(t, 1)
	copier := &fakeCopier{freeSpace: 1 << 40, panicOn: bad, bytesPerCopy: 1}
	q := newTestQueue(t, copier, nil, nil)

	badJob, err := q.Enqueue(transport.DirectionUpload, testEndpoint(), bad, "/mnt/user/media/in", false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	goodJob, err := q.Enqueue(transport.DirectionUpload, testEndpoint(), good, "/mnt/user/media/in", false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if done := waitTerminal(t, q, badJob.ID); done.Status != StatusFailed {
		t.Errorf("panicking job status = %s, want failed", done.Status)
	}
	if done := waitTerminal(t, q, goodJob.ID); done.Status != StatusSucceeded {
		t.Errorf("job after panic status = %s, want succeeded", done.Status)
	}
}

func TestFailureDoesNotStopLaterJobs(t *testing.T) {
	bad := tempPayload(t, 1)
	good := tempPayload(t, 1)
	copier := &fakeCopier{
		freeSpace:    1 << 40,
		bytesPerCopy: 1,
		errs:         map[string]error{bad: errors.New("rsync exploded")},
	}
	notifier := &recordingNotifier{}
	q := newTestQueue(t, copier, notifier, nil)

	badJob, _ := q.Enqueue(transport.DirectionUpload, testEndpoint(), bad, "/mnt/user/media/in", false)
	goodJob, _ := q.Enqueue(transport.DirectionUpload, testEndpoint(), good, "/mnt/user/media/in", false)

	if done := waitTerminal(t, q, badJob.ID); done.Status != StatusFailed {
		t.Errorf("bad job status = %s", done.Status)
	}
	if done := waitTerminal(t, q, goodJob.ID); done.Status != StatusSucceeded {
		t.Errorf("good job status = %s", done.Status)
	}

	events := notifier.all()
	if len(events) != 2 {
		t.Fatalf("got %d notifications, want exactly one per terminal job", len(events))
	}
	if events[0].Status != string(StatusFailed) || events[1].Status != string(StatusSucceeded) {
		t.Errorf("notification statuses = %s, %s", events[0].Status, events[1].Status)
	}
}

func TestNotifierFailureIsHarmless(t *testing.T) {
	copier := &fakeCopier{freeSpace: 1 << 40, bytesPerCopy: 1}
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	q := newTestQueue(t, copier, notifier, nil)

	job, err := q.Enqueue(transport.DirectionUpload, testEndpoint(), tempPayload(t, 1), "/mnt/user/media/in", false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if done := waitTerminal(t, q, job.ID); done.Status != StatusSucceeded {
		t.Errorf("status = %s; notifier failure must not affect the job", done.Status)
	}
}

func TestRecorderSeesTerminalJobs(t *testing.T) {
	copier := &fakeCopier{freeSpace: 1 << 40, bytesPerCopy: 42}
	recorder := &recordingRecorder{}
	q := newTestQueue(t, copier, nil, recorder)

	job, err := q.Enqueue(transport.DirectionUpload, testEndpoint(), tempPayload(t, 1), "/mnt/user/media/in", false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitTerminal(t, q, job.ID)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.jobs) != 1 {
		t.Fatalf("recorded %d jobs, want 1", len(recorder.jobs))
	}
	got := recorder.jobs[0]
	if got.ID != job.ID || got.Status != StatusSucceeded || got.Bytes != 42 {
		t.Errorf("recorded job = %+v", got)
	}
}

func TestRemoveQueuedSkipsExecution(t *testing.T) {
	first := tempPayload(t, 1)
	second := tempPayload(t, 1)
	copier := &fakeCopier{freeSpace: 1 << 40, bytesPerCopy: 1, delay: 50 * time.Millisecond}
	q := newTestQueue(t, copier, nil, nil)

	firstJob, _ := q.Enqueue(transport.DirectionUpload, testEndpoint(), first, "/mnt/user/media/in", false)
	secondJob, _ := q.Enqueue(transport.DirectionUpload, testEndpoint(), second, "/mnt/user/media/in", false)

	// The worker is still busy with the first job; the second can be
	// withdrawn while queued.
	if err := q.RemoveQueued(secondJob.ID); err != nil {
		t.Fatalf("RemoveQueued: %v", err)
	}
	waitTerminal(t, q, firstJob.ID)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s := q.Stats(); s.Running == 0 && s.Queued == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	for _, src := range copier.copies() {
		if src == second {
			t.Fatal("removed job was executed")
		}
	}
	if job, _ := q.Job(secondJob.ID); job.Status != StatusRemoved {
		t.Errorf("removed job status = %s", job.Status)
	}
}

func TestRemoveRunningJobRefused(t *testing.T) {
	copier := &fakeCopier{freeSpace: 1 << 40, bytesPerCopy: 1, delay: 200 * time.Millisecond}
	q := newTestQueue(t, copier, nil, nil)

	job, _ := q.Enqueue(transport.DirectionUpload, testEndpoint(), tempPayload(t, 1), "/mnt/user/media/in", false)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if j, _ := q.Job(job.ID); j.Status == StatusRunning {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := q.RemoveQueued(job.ID); err == nil {
		t.Error("running job was removed")
	}
	waitTerminal(t, q, job.ID)
}

func TestStatsAndClearFinished(t *testing.T) {
	copier := &fakeCopier{freeSpace: 1 << 40, bytesPerCopy: 1}
	q := newTestQueue(t, copier, nil, nil)

	job, err := q.Enqueue(transport.DirectionUpload, testEndpoint(), tempPayload(t, 1), "/mnt/user/media/in", false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitTerminal(t, q, job.ID)

	stats := q.Stats()
	if stats.Succeeded != 1 || stats.Total() != 1 {
		t.Errorf("stats = %+v", stats)
	}

	q.ClearFinished()
	if got := q.Stats().Total(); got != 0 {
		t.Errorf("jobs after ClearFinished = %d, want 0", got)
	}
	if _, ok := q.Job(job.ID); ok {
		t.Error("cleared job still resolvable by ID")
	}
}

func TestEnqueueValidation(t *testing.T) {
	q := NewQueue(&fakeCopier{}, nil, nil, logging.Nop())

	if _, err := q.Enqueue("sideways", testEndpoint(), "/a", "/b", false); err == nil {
		t.Error("bad direction accepted")
	}
	if _, err := q.Enqueue(transport.DirectionUpload, transport.Endpoint{}, "/a", "/b", false); err == nil {
		t.Error("invalid endpoint accepted")
	}
	if _, err := q.Enqueue(transport.DirectionUpload, testEndpoint(), "", "/b", false); err == nil {
		t.Error("empty source accepted")
	}
}

func TestStopWaitsForInFlightJob(t *testing.T) {
	copier := &fakeCopier{freeSpace: 1 << 40, bytesPerCopy: 7, gate: make(chan struct{})}
	q := NewQueue(copier, nil, nil, logging.Nop())
	q.localFree = func(string) int64 { return 1 << 40 }
	q.Start()
	t.Cleanup(q.Stop)

	inFlight, err := q.Enqueue(transport.DirectionUpload, testEndpoint(), tempPayload(t, 1), "/mnt/user/media/in", false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	behind, err := q.Enqueue(transport.DirectionUpload, testEndpoint(), tempPayload(t, 1), "/mnt/user/media/in", false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if j, _ := q.Job(inFlight.ID); j.Status == StatusRunning {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()

	// Stop must block while the transfer is still in flight, not cancel it.
	select {
	case <-stopped:
		t.Fatal("Stop returned while a transfer was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(copier.gate)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop never returned after the transfer finished")
	}

	if done, _ := q.Job(inFlight.ID); done.Status != StatusSucceeded {
		t.Errorf("in-flight job after Stop: status = %s, err = %v; want succeeded", done.Status, done.Err)
	}
	if waiting, _ := q.Job(behind.ID); waiting.Status != StatusQueued {
		t.Errorf("job behind the in-flight one = %s, want still queued", waiting.Status)
	}
}

func TestEnqueueRollbackRemovesOnlyItsJob(t *testing.T) {
	q := NewQueue(&fakeCopier{}, nil, nil, logging.Nop())

	a, _ := q.Enqueue(transport.DirectionUpload, testEndpoint(), "/tmp/a", "/mnt/user/media/in", false)
	b, _ := q.Enqueue(transport.DirectionUpload, testEndpoint(), "/tmp/b", "/mnt/user/media/in", false)
	c, _ := q.Enqueue(transport.DirectionUpload, testEndpoint(), "/tmp/c", "/mnt/user/media/in", false)

	// Roll back the middle job, as when its channel send lost a race to
	// enqueues that appended behind it.
	q.mu.RLock()
	middle := q.byID[b.ID]
	q.mu.RUnlock()
	q.rollbackEnqueue(middle)

	jobs := q.Jobs()
	if len(jobs) != 2 || jobs[0].ID != a.ID || jobs[1].ID != c.ID {
		t.Fatalf("jobs after rollback = %v, want exactly %s then %s", jobs, a.ID, c.ID)
	}
	if _, ok := q.Job(b.ID); ok {
		t.Error("rolled-back job still resolvable by ID")
	}
	if _, ok := q.Job(c.ID); !ok {
		t.Error("bystander job lost its ID entry")
	}
}

func TestStopHaltsWorker(t *testing.T) {
	copier := &fakeCopier{freeSpace: 1 << 40, bytesPerCopy: 1}
	q := NewQueue(copier, nil, nil, logging.Nop())
	q.localFree = func(string) int64 { return 1 << 40 }
	q.Start()
	q.Stop()

	// Enqueue after Stop: the job stays queued because no worker runs.
	job, err := q.Enqueue(transport.DirectionUpload, testEndpoint(), tempPayload(t, 1), "/mnt/user/media/in", false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got, _ := q.Job(job.ID); got.Status != StatusQueued {
		t.Errorf("status after Stop = %s, want queued", got.Status)
	}
}
