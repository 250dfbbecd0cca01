// Package transport is the only code path that talks to a remote endpoint.
// It executes shell commands over ssh and moves bulk data with rsync,
// always through the system binaries so that interactive sessions and
// rsync's delta protocol behave exactly as they do from a terminal.
package transport

import (
	"fmt"
	"strconv"
)

// DefaultSSHPort is used when an endpoint does not specify a port.
const DefaultSSHPort = 22

// Endpoint identifies one remote server. It is an immutable value supplied
// by the configuration layer; every transport call is parameterized by an
// Endpoint so there is no global endpoint state.
type Endpoint struct {
	// Name is the config section name, used for logging and job records.
	Name string

	Host string
	User string
	Port int

	// BasePath is the root under which all remote operations are scoped.
	BasePath string

	// ExtraPaths are additional roots (other mounts/shares) that may be
	// browsed and searched alongside BasePath.
	ExtraPaths []string

	// TrashPath is where soft-deleted items are parked. Empty means the
	// endpoint has no trash and deletes are permanent.
	TrashPath string
}

// SSHAddr returns the user@host (or bare host) string passed to ssh and
// rsync.
func (e Endpoint) SSHAddr() string {
	if e.User != "" {
		return e.User + "@" + e.Host
	}
	return e.Host
}

// SSHPort returns the effective port.
func (e Endpoint) SSHPort() int {
	if e.Port > 0 {
		return e.Port
	}
	return DefaultSSHPort
}

// RsyncSpec renders a remote path as an rsync remote spec
// (user@host:/path).
func (e Endpoint) RsyncSpec(path string) string {
	return e.SSHAddr() + ":" + path
}

// Roots returns BasePath plus any extra paths.
func (e Endpoint) Roots() []string {
	roots := make([]string, 0, 1+len(e.ExtraPaths))
	roots = append(roots, e.BasePath)
	roots = append(roots, e.ExtraPaths...)
	return roots
}

// Validate checks the fields needed before any remote call.
func (e Endpoint) Validate() error {
	if e.Host == "" {
		return fmt.Errorf("endpoint %q: host is required", e.Name)
	}
	if e.BasePath == "" {
		return fmt.Errorf("endpoint %q: base_path is required", e.Name)
	}
	if e.Port < 0 || e.Port > 65535 {
		return fmt.Errorf("endpoint %q: invalid port %s", e.Name, strconv.Itoa(e.Port))
	}
	return nil
}
