// Package notify delivers job completion notifications. The engine treats
// every sink as best-effort: delivery failures are logged and never affect
// job status.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/lab427/ferry/internal/logging"
)

// Event is the single payload every sink accepts.
type Event struct {
	JobID   string
	Status  string
	Summary string
}

// Notifier is implemented by each delivery channel.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Config holds notification configuration.
type Config struct {
	// Enabled determines if notifications are sent at all.
	Enabled bool

	// Desktop enables the desktop popup sink.
	Desktop bool

	// WebhookURL, when set, enables the webhook sink.
	WebhookURL string
}

// DefaultConfig returns the default notification configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Desktop: true,
	}
}

// Desktop sends cross-platform desktop popups via beeep
// (toast/NSUserNotificationCenter/D-Bus depending on platform).
type Desktop struct {
	title   string
	enabled bool
	mu      sync.RWMutex
}

// NewDesktop creates a desktop notifier. title is the popup headline for
// every event.
func NewDesktop(title string) *Desktop {
	if title == "" {
		title = "ferry"
	}
	return &Desktop{title: title, enabled: true}
}

// SetEnabled enables or disables the sink.
func (d *Desktop) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Notify shows the popup.
func (d *Desktop) Notify(_ context.Context, ev Event) error {
	d.mu.RLock()
	enabled := d.enabled
	d.mu.RUnlock()
	if !enabled {
		return nil
	}
	return beeep.Notify(d.title, formatEvent(ev), "")
}

// formatEvent renders a compact one-popup message.
func formatEvent(ev Event) string {
	msg := fmt.Sprintf("[%s] %s", strings.ToUpper(ev.Status), truncate(ev.Summary, 120))
	return msg
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// Multi fans one event out to several sinks. Errors are aggregated for the
// caller's log line but do not stop delivery to the remaining sinks.
type Multi struct {
	sinks  []Notifier
	logger *logging.Logger
}

// NewMulti builds a fan-out notifier.
func NewMulti(logger *logging.Logger, sinks ...Notifier) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

// Notify delivers to every sink.
func (m *Multi) Notify(ctx context.Context, ev Event) error {
	var failures []string
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, ev); err != nil {
			m.logger.Warn().
				Err(err).
				Str("job_id", ev.JobID).
				Msg("Notification delivery failed")
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("notification failures: %s", strings.Join(failures, "; "))
	}
	return nil
}

// FromConfig assembles the configured sinks behind one Notifier. Returns
// nil when notifications are disabled entirely.
func FromConfig(cfg *Config, logger *logging.Logger) Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		return nil
	}

	var sinks []Notifier
	if cfg.Desktop {
		sinks = append(sinks, NewDesktop("ferry"))
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, NewWebhook(cfg.WebhookURL))
	}
	if len(sinks) == 0 {
		return nil
	}
	return NewMulti(logger, sinks...)
}
