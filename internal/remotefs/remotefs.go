// Package remotefs implements the file-manager operations: browse, search,
// duplicate detection, batch rename and trash. Everything is a stateless
// function over (transport, endpoint, paths); the only instance state is
// the injected transport and logger.
package remotefs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/lab427/ferry/internal/logging"
	"github.com/lab427/ferry/internal/transport"
)

// Runner is the slice of the transport layer remotefs needs.
type Runner interface {
	Run(ctx context.Context, ep transport.Endpoint, command string, opts transport.RunOptions) (transport.Result, error)
	RunStream(ctx context.Context, ep transport.Endpoint, command string) (io.ReadCloser, error)
}

// Manager executes file-manager operations against one transport.
type Manager struct {
	tr     Runner
	logger *logging.Logger
}

// NewManager creates a file manager over the given transport.
func NewManager(tr Runner, logger *logging.Logger) *Manager {
	return &Manager{tr: tr, logger: logger}
}

// CleanRemotePath normalizes a remote path: it must be absolute and must
// not contain traversal segments after cleaning.
func CleanRemotePath(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("remote path must be absolute: %q", p)
	}
	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("remote path escapes root: %q", p)
	}
	return cleaned, nil
}

// WithinRoot reports whether p (already cleaned) sits at or below root.
func WithinRoot(p, root string) bool {
	root = path.Clean(root)
	if p == root {
		return true
	}
	if root == "/" {
		return strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, root+"/")
}

// checkPath validates p against the endpoint's roots (base path, extra
// paths, trash path). Every operation calls this before issuing a command
// so no RemotePath ever escapes its endpoint.
func (m *Manager) checkPath(ep transport.Endpoint, p string) (string, error) {
	cleaned, err := CleanRemotePath(p)
	if err != nil {
		return "", err
	}
	roots := ep.Roots()
	if ep.TrashPath != "" {
		roots = append(roots, ep.TrashPath)
	}
	for _, root := range roots {
		if WithinRoot(cleaned, root) {
			return cleaned, nil
		}
	}
	return "", fmt.Errorf("path %q is outside endpoint %q roots", p, ep.Name)
}

// run executes a captured command, translating a non-zero exit into an
// error with the remote stderr attached.
func (m *Manager) run(ctx context.Context, ep transport.Endpoint, command string) (string, error) {
	res, err := m.tr.Run(ctx, ep, command, transport.RunOptions{Capture: true})
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", &transport.ExitError{
			Command:  command,
			ExitCode: res.ExitCode,
			Stderr:   strings.TrimSpace(res.Stderr),
		}
	}
	return res.Stdout, nil
}

func quote(p string) string { return transport.ShellQuote(p) }
