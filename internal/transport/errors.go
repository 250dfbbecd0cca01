package transport

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// ConnectError indicates the remote host was unreachable or refused
// authentication. It is surfaced immediately and never retried
// automatically.
type ConnectError struct {
	Endpoint string
	Addr     string
	Detail   string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("cannot connect to %s (%s): %s", e.Endpoint, e.Addr, e.Detail)
}

// TimeoutError indicates a captured command exceeded its time bound.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s: %s", e.Timeout, e.Command)
}

// InsufficientSpaceError is returned by the preflight gate when a payload
// does not fit the destination. It carries enough detail to act on without
// re-running the check.
type InsufficientSpaceError struct {
	Path      string
	Required  int64
	Available int64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient space at %s: need %s, have %s (short by %s)",
		e.Path,
		humanize.IBytes(uint64(e.Required)),
		humanize.IBytes(uint64(e.Available)),
		humanize.IBytes(uint64(e.Required-e.Available)))
}

// ExitError indicates a remote command ran but returned a non-zero exit
// code.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("remote command failed (exit %d): %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("remote command failed (exit %d): %s", e.ExitCode, e.Command)
}
