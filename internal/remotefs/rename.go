package remotefs

import (
	"context"
	"fmt"
	"path"
	"regexp"

	"github.com/lab427/ferry/internal/transport"
)

// Rename is one planned old-name/new-name pair within a directory.
type Rename struct {
	Old string
	New string
}

// CollisionError aborts a batch rename during planning: the substitution
// produced a duplicate target, or a target that already exists and is not
// itself being renamed away. Nothing has been renamed when it is returned.
type CollisionError struct {
	Target string
	Reason string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("rename collision on %q: %s", e.Target, e.Reason)
}

// PlanRename computes the full rename set for the selected names before
// anything is touched. existing is the complete listing of the directory.
// The whole batch fails on the first collision so a half-applied rename
// can never happen by construction: plan first, then apply.
//
// A target that exists is only acceptable when it is itself renamed away
// by the same batch; the returned plan is ordered so such vacating moves
// run first. A cycle of renames (a swap) has no safe order and is a
// collision.
func PlanRename(selected, existing []string, pattern *regexp.Regexp, replacement string) ([]Rename, error) {
	existingSet := make(map[string]bool, len(existing))
	for _, name := range existing {
		existingSet[name] = true
	}

	var plan []Rename
	targets := make(map[string]string) // new name -> old name
	renamedAway := make(map[string]bool)

	for _, name := range selected {
		newName := pattern.ReplaceAllString(name, replacement)
		if newName == name {
			continue
		}
		if newName == "" {
			return nil, &CollisionError{Target: name, Reason: "substitution produces an empty name"}
		}
		if prev, dup := targets[newName]; dup {
			return nil, &CollisionError{
				Target: newName,
				Reason: fmt.Sprintf("both %q and %q rename to it", prev, name),
			}
		}
		targets[newName] = name
		renamedAway[name] = true
		plan = append(plan, Rename{Old: name, New: newName})
	}

	for _, r := range plan {
		if existingSet[r.New] && !renamedAway[r.New] {
			return nil, &CollisionError{
				Target: r.New,
				Reason: "already exists and is not renamed away by this batch",
			}
		}
	}

	return orderRenames(plan)
}

// orderRenames sequences the plan so every move into an occupied name
// happens after the move that vacates it.
func orderRenames(plan []Rename) ([]Rename, error) {
	pendingOld := make(map[string]bool, len(plan))
	for _, r := range plan {
		pendingOld[r.Old] = true
	}

	ordered := make([]Rename, 0, len(plan))
	remaining := append([]Rename(nil), plan...)
	for len(remaining) > 0 {
		progressed := false
		var deferred []Rename
		for _, r := range remaining {
			if pendingOld[r.New] {
				deferred = append(deferred, r)
				continue
			}
			ordered = append(ordered, r)
			delete(pendingOld, r.Old)
			progressed = true
		}
		if !progressed {
			return nil, &CollisionError{
				Target: remaining[0].New,
				Reason: "cyclic rename has no safe ordering",
			}
		}
		remaining = deferred
	}
	return ordered, nil
}

// BatchRename applies a plan produced by PlanRename inside dir. Callers
// pass the plan through unmodified; each pair becomes one remote mv.
// mv -n exits 0 even when it declines to overwrite, so each pair also
// checks that the source actually vanished; a target created between
// planning and apply therefore fails the batch instead of being skipped.
func (m *Manager) BatchRename(ctx context.Context, ep transport.Endpoint, dir string, plan []Rename) error {
	dir, err := m.checkPath(ep, dir)
	if err != nil {
		return err
	}

	for i, r := range plan {
		oldPath := path.Join(dir, r.Old)
		newPath := path.Join(dir, r.New)
		cmd := fmt.Sprintf("mv -n -- %s %s && test ! -e %s", quote(oldPath), quote(newPath), quote(oldPath))
		if _, err := m.run(ctx, ep, cmd); err != nil {
			return fmt.Errorf("rename %q -> %q (%d of %d applied): %w", r.Old, r.New, i, len(plan), err)
		}
	}

	m.logger.Info().
		Str("endpoint", ep.Name).
		Str("dir", dir).
		Int("count", len(plan)).
		Msg("Batch rename applied")
	return nil
}
