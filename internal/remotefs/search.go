package remotefs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/lab427/ferry/internal/transport"
)

// NameIterator streams paths from a remote search one at a time, so huge
// trees yield their first result before the remote walk finishes. Each
// iterator is single-use; re-run the search for a fresh one.
type NameIterator struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
	current string
	filter  func(string) bool
	err     error
	closed  bool
}

// Next advances the iterator. It returns false at end of stream or on
// error; check Err afterwards.
func (it *NameIterator) Next() bool {
	if it.closed {
		return false
	}
	for it.scanner.Scan() {
		line := strings.TrimSpace(it.scanner.Text())
		if line == "" {
			continue
		}
		if it.filter != nil && !it.filter(line) {
			continue
		}
		it.current = line
		return true
	}
	it.err = it.scanner.Err()
	it.Close()
	return false
}

// Path returns the match positioned by the last successful Next.
func (it *NameIterator) Path() string { return it.current }

// Err returns the first error the stream hit, if any.
func (it *NameIterator) Err() error { return it.err }

// Close releases the underlying stream. Safe to call more than once;
// always call it when abandoning the iterator early.
func (it *NameIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.rc.Close()
}

// SearchNames finds entries under dir whose base name contains pattern
// (case-insensitive), streamed lazily.
func (m *Manager) SearchNames(ctx context.Context, ep transport.Endpoint, dir, pattern string) (*NameIterator, error) {
	dir, err := m.checkPath(ep, dir)
	if err != nil {
		return nil, err
	}

	cmd := fmt.Sprintf("find -P %s -iname %s 2>/dev/null", quote(dir), quote("*"+pattern+"*"))
	return m.streamNames(ctx, ep, cmd, nil)
}

// SearchByType finds files under dir belonging to a category of the
// extension taxonomy. The category filter is applied client-side over the
// name stream.
func (m *Manager) SearchByType(ctx context.Context, ep transport.Endpoint, dir string, category Category) (*NameIterator, error) {
	dir, err := m.checkPath(ep, dir)
	if err != nil {
		return nil, err
	}
	exts, ok := categories[category]
	if !ok {
		return nil, fmt.Errorf("unknown file category %q", category)
	}

	cmd := fmt.Sprintf("find -P %s -type f 2>/dev/null", quote(dir))
	return m.streamNames(ctx, ep, cmd, func(p string) bool {
		return hasAnyExt(p, exts)
	})
}

func (m *Manager) streamNames(ctx context.Context, ep transport.Endpoint, cmd string, filter func(string) bool) (*NameIterator, error) {
	rc, err := m.tr.RunStream(ctx, ep, cmd)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &NameIterator{rc: rc, scanner: scanner, filter: filter}, nil
}

// DefaultContentSizeCeiling bounds content search to regular files below
// this size so a stray disk image does not melt the remote grep.
const DefaultContentSizeCeiling int64 = 10 * 1024 * 1024

// SearchContent returns the files under dir whose contents match text.
// Only regular files under sizeCeiling bytes are considered; binary files
// are skipped remotely (grep -I).
func (m *Manager) SearchContent(ctx context.Context, ep transport.Endpoint, dir, text string, sizeCeiling int64) ([]string, error) {
	dir, err := m.checkPath(ep, dir)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("empty search text")
	}
	if sizeCeiling <= 0 {
		sizeCeiling = DefaultContentSizeCeiling
	}

	cmd := fmt.Sprintf("find -P %s -type f -size -%dc -print0 2>/dev/null | xargs -0 -r grep -liI -e %s",
		quote(dir), sizeCeiling, quote(text))
	res, err := m.tr.Run(ctx, ep, cmd, transport.RunOptions{Capture: true, Timeout: 2 * transport.DefaultRunTimeout})
	if err != nil {
		return nil, err
	}
	// grep exits 1 for "no matches"; that is an empty result, not a fault.
	if res.ExitCode > 1 {
		return nil, &transport.ExitError{Command: "grep", ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}

	var matches []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line != "" {
			matches = append(matches, line)
		}
	}
	return matches, nil
}

// Category names a group of file extensions.
type Category string

const (
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryImage    Category = "image"
	CategoryArchive  Category = "archive"
	CategoryDocument Category = "document"
	CategorySubtitle Category = "subtitle"
)

var categories = map[Category][]string{
	CategoryVideo:    {".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v", ".ts"},
	CategoryAudio:    {".mp3", ".flac", ".aac", ".ogg", ".wav", ".m4a", ".opus"},
	CategoryImage:    {".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".webp"},
	CategoryArchive:  {".zip", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".rar", ".7z"},
	CategoryDocument: {".pdf", ".txt", ".md", ".doc", ".docx", ".odt", ".epub", ".csv"},
	CategorySubtitle: {".srt", ".sub", ".ass", ".vtt"},
}

// Categories lists the known category names.
func Categories() []Category {
	out := make([]Category, 0, len(categories))
	for c := range categories {
		out = append(out, c)
	}
	return out
}

func hasAnyExt(p string, exts []string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
