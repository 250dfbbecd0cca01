// Package watch provides watch folders: local directories polled for new
// files that are enqueued for upload once they stop changing. Polling is
// deliberate; the watched directories commonly live on mounts where
// inotify events are unreliable or absent.
package watch

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lab427/ferry/internal/logging"
	"github.com/lab427/ferry/internal/transfer"
	"github.com/lab427/ferry/internal/transport"
)

const (
	// DefaultPollInterval is how often a watch folder is rescanned.
	DefaultPollInterval = 5 * time.Second

	// DefaultDebounce is how long a file's size and mtime must hold
	// still before it counts as fully written.
	DefaultDebounce = 10 * time.Second
)

// Rule describes one watch folder.
type Rule struct {
	// Name is the config section name; also used in logs.
	Name string

	// LocalDir is the directory being watched.
	LocalDir string

	// Endpoint and RemoteDir are the upload destination.
	Endpoint  transport.Endpoint
	RemoteDir string

	// Pattern is a glob matched against base names. Empty matches
	// everything.
	Pattern string

	PollInterval time.Duration
	Debounce     time.Duration
}

// Validate checks the rule before a monitor will accept it.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("watch rule needs a name")
	}
	if r.LocalDir == "" {
		return fmt.Errorf("watch rule %q: local_dir is required", r.Name)
	}
	if r.RemoteDir == "" {
		return fmt.Errorf("watch rule %q: remote_dir is required", r.Name)
	}
	if err := r.Endpoint.Validate(); err != nil {
		return fmt.Errorf("watch rule %q: %w", r.Name, err)
	}
	if r.Pattern != "" {
		if _, err := path.Match(r.Pattern, "x"); err != nil {
			return fmt.Errorf("watch rule %q: bad pattern %q", r.Name, r.Pattern)
		}
	}
	return nil
}

func (r Rule) pollInterval() time.Duration {
	if r.PollInterval > 0 {
		return r.PollInterval
	}
	return DefaultPollInterval
}

func (r Rule) debounce() time.Duration {
	if r.Debounce > 0 {
		return r.Debounce
	}
	return DefaultDebounce
}

// Enqueuer is the slice of the transfer queue a monitor needs.
type Enqueuer interface {
	Enqueue(direction transport.Direction, ep transport.Endpoint, source, dest string, recursive bool) (transfer.Job, error)
}

// candidate tracks a file whose write may still be in flight.
type candidate struct {
	size  int64
	mod   time.Time
	since time.Time
}

// Monitor polls one watch folder. Files already present when the monitor
// starts form the baseline and are never enqueued; only files that appear
// afterwards are uploaded, each exactly once.
type Monitor struct {
	rule   Rule
	queue  Enqueuer
	logger *logging.Logger

	seen       map[string]bool
	candidates map[string]candidate

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewMonitor creates a monitor for one rule.
func NewMonitor(rule Rule, queue Enqueuer, logger *logging.Logger) (*Monitor, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return &Monitor{
		rule:       rule,
		queue:      queue,
		logger:     logger,
		seen:       make(map[string]bool),
		candidates: make(map[string]candidate),
	}, nil
}

// Start records the baseline and begins polling.
func (m *Monitor) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("watch %q is already running", m.rule.Name)
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	if err := m.baseline(); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return err
	}

	m.logger.Info().
		Str("watch", m.rule.Name).
		Str("local_dir", m.rule.LocalDir).
		Str("poll_interval", m.rule.pollInterval().String()).
		Msg("Watch folder started")

	m.wg.Add(1)
	go m.pollLoop()
	return nil
}

// Stop halts polling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info().Str("watch", m.rule.Name).Msg("Watch folder stopped")
}

// baseline marks everything already in the directory as seen.
func (m *Monitor) baseline() error {
	files, err := m.scan()
	if err != nil {
		return fmt.Errorf("watch %q: reading %s: %w", m.rule.Name, m.rule.LocalDir, err)
	}
	for p := range files {
		m.seen[p] = true
	}
	return nil
}

func (m *Monitor) pollLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.rule.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

// poll rescans the directory and enqueues files whose contents have been
// stable for the debounce window.
func (m *Monitor) poll() {
	files, err := m.scan()
	if err != nil {
		m.logger.Warn().Err(err).Str("watch", m.rule.Name).Msg("Watch folder scan failed")
		return
	}

	now := time.Now()
	for p, info := range files {
		if m.seen[p] {
			continue
		}

		prev, tracked := m.candidates[p]
		if !tracked || prev.size != info.Size() || !prev.mod.Equal(info.ModTime()) {
			m.candidates[p] = candidate{size: info.Size(), mod: info.ModTime(), since: now}
			continue
		}
		if now.Sub(prev.since) < m.rule.debounce() {
			continue
		}

		m.enqueue(p)
		m.seen[p] = true
		delete(m.candidates, p)
	}

	// Forget candidates that vanished mid-write.
	for p := range m.candidates {
		if _, still := files[p]; !still {
			delete(m.candidates, p)
		}
	}
}

// scan lists the regular, visible, pattern-matching files directly under
// the watch directory. Subdirectories are not descended into.
func (m *Monitor) scan() (map[string]os.FileInfo, error) {
	entries, err := os.ReadDir(m.rule.LocalDir)
	if err != nil {
		return nil, err
	}

	files := make(map[string]os.FileInfo)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if m.rule.Pattern != "" {
			if ok, _ := path.Match(m.rule.Pattern, name); !ok {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files[filepath.Join(m.rule.LocalDir, name)] = info
	}
	return files, nil
}

func (m *Monitor) enqueue(p string) {
	job, err := m.queue.Enqueue(transport.DirectionUpload, m.rule.Endpoint, p, m.rule.RemoteDir, false)
	if err != nil {
		m.logger.Error().Err(err).Str("watch", m.rule.Name).Str("path", p).Msg("Enqueue from watch folder failed")
		return
	}
	m.logger.Info().
		Str("watch", m.rule.Name).
		Str("path", p).
		Str("job_id", job.ID).
		Msg("Watch folder enqueued upload")
}

// Manager runs a set of monitors keyed by rule name.
type Manager struct {
	queue  Enqueuer
	logger *logging.Logger

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewManager creates an empty manager.
func NewManager(queue Enqueuer, logger *logging.Logger) *Manager {
	return &Manager{
		queue:    queue,
		logger:   logger,
		monitors: make(map[string]*Monitor),
	}
}

// StartRule starts a monitor for the rule, replacing nothing: starting a
// name twice is an error.
func (mgr *Manager) StartRule(rule Rule) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if _, exists := mgr.monitors[rule.Name]; exists {
		return fmt.Errorf("watch %q is already running", rule.Name)
	}

	monitor, err := NewMonitor(rule, mgr.queue, mgr.logger)
	if err != nil {
		return err
	}
	if err := monitor.Start(); err != nil {
		return err
	}
	mgr.monitors[rule.Name] = monitor
	return nil
}

// StopRule stops and forgets one monitor.
func (mgr *Manager) StopRule(name string) error {
	mgr.mu.Lock()
	monitor, exists := mgr.monitors[name]
	delete(mgr.monitors, name)
	mgr.mu.Unlock()

	if !exists {
		return fmt.Errorf("watch %q is not running", name)
	}
	monitor.Stop()
	return nil
}

// StopAll stops every monitor.
func (mgr *Manager) StopAll() {
	mgr.mu.Lock()
	monitors := make([]*Monitor, 0, len(mgr.monitors))
	for _, m := range mgr.monitors {
		monitors = append(monitors, m)
	}
	mgr.monitors = make(map[string]*Monitor)
	mgr.mu.Unlock()

	for _, m := range monitors {
		m.Stop()
	}
}

// Running lists the active rule names.
func (mgr *Manager) Running() []string {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	names := make([]string, 0, len(mgr.monitors))
	for name := range mgr.monitors {
		names = append(names, name)
	}
	return names
}
