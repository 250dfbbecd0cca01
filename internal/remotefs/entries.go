package remotefs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lab427/ferry/internal/transport"
)

// Entry is one directory listing row.
type Entry struct {
	Name      string
	Size      int64
	ModTime   time.Time
	IsDir     bool
	IsSymlink bool
}

// listFormat drives find -printf: type, size, mtime epoch, name.
const listFormat = `%y\t%s\t%T@\t%f\n`

// List returns the entries directly under dir, directories first, each
// group sorted by name. Symlinks are reported as such and never followed
// (-P), so a link pointing outside the endpoint's root cannot pull foreign
// paths into a listing.
func (m *Manager) List(ctx context.Context, ep transport.Endpoint, dir string) ([]Entry, error) {
	dir, err := m.checkPath(ep, dir)
	if err != nil {
		return nil, err
	}

	cmd := fmt.Sprintf("find -P %s -maxdepth 1 -mindepth 1 -printf '%s'", quote(dir), listFormat)
	out, err := m.run(ctx, ep, cmd)
	if err != nil {
		return nil, err
	}

	entries, err := parseEntries(out)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// parseEntries decodes the find -printf output.
func parseEntries(out string) ([]Entry, error) {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("malformed listing line %q", line)
		}

		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad size in line %q", line)
		}

		// %T@ is "seconds.fraction"; the fraction is irrelevant here.
		secs := parts[2]
		if i := strings.IndexByte(secs, '.'); i >= 0 {
			secs = secs[:i]
		}
		epoch, err := strconv.ParseInt(secs, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad mtime in line %q", line)
		}

		entries = append(entries, Entry{
			Name:      parts[3],
			Size:      size,
			ModTime:   time.Unix(epoch, 0),
			IsDir:     parts[0] == "d",
			IsSymlink: parts[0] == "l",
		})
	}
	return entries, nil
}

// Exists reports whether path exists on the endpoint.
func (m *Manager) Exists(ctx context.Context, ep transport.Endpoint, p string) (bool, error) {
	p, err := m.checkPath(ep, p)
	if err != nil {
		return false, err
	}
	res, err := m.tr.Run(ctx, ep, fmt.Sprintf("test -e %s", quote(p)), transport.RunOptions{Capture: true})
	if err != nil {
		return false, err
	}
	return res.Ok(), nil
}
