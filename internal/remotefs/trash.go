package remotefs

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/lab427/ferry/internal/transport"
)

// SidecarSuffix is appended to a trashed payload's name to form its
// sidecar record. The sidecar's entire content is the payload's original
// absolute path plus a trailing newline, and it must round-trip exactly
// through restore.
const SidecarSuffix = ".origin"

// TrashEntry is one payload parked in the endpoint's trash.
type TrashEntry struct {
	// Name is the payload's base name inside the trash directory.
	Name string

	// TrashedPath is the payload's full path inside the trash.
	TrashedPath string

	// SidecarPath is the sidecar record's full path.
	SidecarPath string

	// OriginPath is the original absolute path, read from the sidecar.
	// Empty when the sidecar is missing.
	OriginPath string

	// HasSidecar is false for orphaned payloads; those are listed but
	// cannot be restored.
	HasSidecar bool
}

// ConflictError aborts a restore because something already occupies the
// original path. The trash entry is left untouched.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("restore target already exists: %s", e.Path)
}

// PurgeInconsistency reports a purge that removed the payload but then
// failed to remove the sidecar. The named orphan needs manual cleanup.
type PurgeInconsistency struct {
	Orphan string
	Cause  error
}

func (e *PurgeInconsistency) Error() string {
	return fmt.Sprintf("purge removed the payload but left sidecar %s: %v", e.Orphan, e.Cause)
}

func (e *PurgeInconsistency) Unwrap() error { return e.Cause }

func trashConfigured(ep transport.Endpoint) error {
	if ep.TrashPath == "" {
		return fmt.Errorf("endpoint %q has no trash_path configured", ep.Name)
	}
	return nil
}

// trashStamp disambiguates same-named deletions.
var trashStamp = func() string {
	return time.Now().Format("20060102_150405")
}

// TrashPut soft-deletes p: the payload moves into the trash under a
// timestamped name and a sidecar records where it came from. If the
// sidecar cannot be written the payload is moved back, because a payload
// without a sidecar is unrestorable by definition.
func (m *Manager) TrashPut(ctx context.Context, ep transport.Endpoint, p string) (TrashEntry, error) {
	if err := trashConfigured(ep); err != nil {
		return TrashEntry{}, err
	}
	p, err := m.checkPath(ep, p)
	if err != nil {
		return TrashEntry{}, err
	}

	trashName := path.Base(p) + "_" + trashStamp()
	trashedPath := path.Join(ep.TrashPath, trashName)
	sidecarPath := trashedPath + SidecarSuffix

	if _, err := m.run(ctx, ep, fmt.Sprintf("mkdir -p -- %s", quote(ep.TrashPath))); err != nil {
		return TrashEntry{}, fmt.Errorf("creating trash dir: %w", err)
	}
	if _, err := m.run(ctx, ep, fmt.Sprintf("mv -- %s %s", quote(p), quote(trashedPath))); err != nil {
		return TrashEntry{}, fmt.Errorf("moving %s to trash: %w", p, err)
	}
	if _, err := m.run(ctx, ep, fmt.Sprintf("printf '%%s\\n' %s > %s", quote(p), quote(sidecarPath))); err != nil {
		// Undo the move; an unrestorable trash entry is worse than a
		// failed delete.
		if _, undoErr := m.run(ctx, ep, fmt.Sprintf("mv -- %s %s", quote(trashedPath), quote(p))); undoErr != nil {
			m.logger.Error().Err(undoErr).Str("path", trashedPath).Msg("Rollback after sidecar failure also failed")
		}
		return TrashEntry{}, fmt.Errorf("writing sidecar for %s: %w", p, err)
	}

	m.logger.Info().Str("endpoint", ep.Name).Str("path", p).Str("trash_name", trashName).Msg("Moved to trash")
	return TrashEntry{
		Name:        trashName,
		TrashedPath: trashedPath,
		SidecarPath: sidecarPath,
		OriginPath:  p,
		HasSidecar:  true,
	}, nil
}

// TrashList returns the trash contents, payloads only, with sidecar
// presence resolved. Sorted by name.
func (m *Manager) TrashList(ctx context.Context, ep transport.Endpoint) ([]TrashEntry, error) {
	if err := trashConfigured(ep); err != nil {
		return nil, err
	}

	res, err := m.tr.Run(ctx, ep, fmt.Sprintf("ls -1A -- %s", quote(ep.TrashPath)), transport.RunOptions{Capture: true})
	if err != nil {
		return nil, err
	}
	if !res.Ok() {
		// Trash dir not created yet means empty trash.
		return nil, nil
	}

	names := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	sidecars := make(map[string]bool)
	var payloads []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.HasSuffix(name, SidecarSuffix) {
			sidecars[strings.TrimSuffix(name, SidecarSuffix)] = true
		} else {
			payloads = append(payloads, name)
		}
	}
	sort.Strings(payloads)

	entries := make([]TrashEntry, 0, len(payloads))
	for _, name := range payloads {
		entries = append(entries, TrashEntry{
			Name:        name,
			TrashedPath: path.Join(ep.TrashPath, name),
			SidecarPath: path.Join(ep.TrashPath, name) + SidecarSuffix,
			HasSidecar:  sidecars[name],
		})
	}
	return entries, nil
}

// readSidecar fetches the original path recorded for a trash entry.
func (m *Manager) readSidecar(ctx context.Context, ep transport.Endpoint, entry TrashEntry) (string, error) {
	out, err := m.run(ctx, ep, fmt.Sprintf("cat -- %s", quote(entry.SidecarPath)))
	if err != nil {
		return "", fmt.Errorf("reading sidecar for %s: %w", entry.Name, err)
	}
	origin := strings.TrimSpace(out)
	if origin == "" || !strings.HasPrefix(origin, "/") {
		return "", fmt.Errorf("sidecar for %s holds no usable origin path (%q)", entry.Name, origin)
	}
	return origin, nil
}

// Restore moves a trash entry back to where it came from, recreating
// missing parent directories. It refuses to overwrite: an occupied target
// is a ConflictError and the trash entry stays put. The sidecar is removed
// only after the payload has landed.
func (m *Manager) Restore(ctx context.Context, ep transport.Endpoint, entry TrashEntry) (string, error) {
	if err := trashConfigured(ep); err != nil {
		return "", err
	}
	if !entry.HasSidecar {
		return "", fmt.Errorf("trash entry %q has no sidecar record; cannot determine its original path", entry.Name)
	}

	origin, err := m.readSidecar(ctx, ep, entry)
	if err != nil {
		return "", err
	}

	exists, err := m.tr.Run(ctx, ep, fmt.Sprintf("test -e %s", quote(origin)), transport.RunOptions{Capture: true})
	if err != nil {
		return "", err
	}
	if exists.Ok() {
		return "", &ConflictError{Path: origin}
	}

	if _, err := m.run(ctx, ep, fmt.Sprintf("mkdir -p -- %s", quote(path.Dir(origin)))); err != nil {
		return "", fmt.Errorf("recreating parent for %s: %w", origin, err)
	}
	if _, err := m.run(ctx, ep, fmt.Sprintf("mv -- %s %s", quote(entry.TrashedPath), quote(origin))); err != nil {
		return "", fmt.Errorf("restoring %s: %w", entry.Name, err)
	}
	if _, err := m.run(ctx, ep, fmt.Sprintf("rm -f -- %s", quote(entry.SidecarPath))); err != nil {
		m.logger.Warn().Err(err).Str("sidecar", entry.SidecarPath).Msg("Restored payload but sidecar removal failed")
	}

	m.logger.Info().Str("endpoint", ep.Name).Str("restored_to", origin).Msg("Restored from trash")
	return origin, nil
}

// Purge permanently removes a trash entry, payload and sidecar together.
// Removing the payload and then failing on the sidecar leaves an orphan;
// that outcome is surfaced as PurgeInconsistency rather than swallowed.
func (m *Manager) Purge(ctx context.Context, ep transport.Endpoint, entry TrashEntry) error {
	if err := trashConfigured(ep); err != nil {
		return err
	}

	if _, err := m.run(ctx, ep, fmt.Sprintf("rm -rf -- %s", quote(entry.TrashedPath))); err != nil {
		return fmt.Errorf("purging %s: %w", entry.Name, err)
	}
	if entry.HasSidecar {
		if _, err := m.run(ctx, ep, fmt.Sprintf("rm -f -- %s", quote(entry.SidecarPath))); err != nil {
			return &PurgeInconsistency{Orphan: entry.SidecarPath, Cause: err}
		}
	}

	m.logger.Info().Str("endpoint", ep.Name).Str("name", entry.Name).Msg("Purged from trash")
	return nil
}

// EmptyTrash purges every entry. It keeps going past individual failures
// and returns the first error encountered, prioritizing any
// PurgeInconsistency so orphans are never silently dropped.
func (m *Manager) EmptyTrash(ctx context.Context, ep transport.Endpoint) (int, error) {
	entries, err := m.TrashList(ctx, ep)
	if err != nil {
		return 0, err
	}

	purged := 0
	var firstErr error
	for _, entry := range entries {
		if err := m.Purge(ctx, ep, entry); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		purged++
	}
	return purged, firstErr
}
