package remotefs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lab427/ferry/internal/transport"
)

// PartialHashBytes is the prefix length hashed in phase two of the
// duplicate scan. 64 KiB is enough to separate files that merely share a
// size while staying cheap on spinning disks.
const PartialHashBytes = 64 * 1024

// DuplicateGroup holds files sharing both exact size and partial digest.
// Membership is a "likely duplicate" heuristic: the prefix digest can
// collide, so full verification is mandatory before anything is deleted.
type DuplicateGroup struct {
	Size   int64
	Digest string
	Paths  []string
}

// FindDuplicates scans dir in two phases. Phase one groups files strictly
// by exact byte size, which eliminates most of the tree for the price of
// one find. Phase two hashes the first PartialHashBytes of each survivor
// remotely and groups by (size, digest).
func (m *Manager) FindDuplicates(ctx context.Context, ep transport.Endpoint, dir string) ([]DuplicateGroup, error) {
	dir, err := m.checkPath(ep, dir)
	if err != nil {
		return nil, err
	}

	out, err := m.run(ctx, ep, fmt.Sprintf("find -P %s -type f -printf '%%s %%p\\n' 2>/dev/null", quote(dir)))
	if err != nil {
		return nil, err
	}

	sizeGroups := groupBySize(out)

	var groups []DuplicateGroup
	for size, paths := range sizeGroups {
		byDigest := make(map[string][]string)
		for _, p := range paths {
			digest, err := m.partialHash(ctx, ep, p)
			if err != nil {
				m.logger.Warn().Err(err).Str("path", p).Msg("Partial hash failed, skipping candidate")
				continue
			}
			byDigest[digest] = append(byDigest[digest], p)
		}
		for digest, group := range byDigest {
			if len(group) < 2 {
				continue
			}
			sort.Strings(group)
			groups = append(groups, DuplicateGroup{Size: size, Digest: digest, Paths: group})
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Size != groups[j].Size {
			return groups[i].Size > groups[j].Size
		}
		return groups[i].Digest < groups[j].Digest
	})
	return groups, nil
}

// groupBySize parses "size path" lines and keeps only sizes with two or
// more non-empty files. Files are never grouped across different sizes.
func groupBySize(out string) map[int64][]string {
	all := make(map[int64][]string)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sizeStr, p, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil || size <= 0 {
			continue
		}
		all[size] = append(all[size], p)
	}

	for size, paths := range all {
		if len(paths) < 2 {
			delete(all, size)
		}
	}
	return all
}

// partialHash digests the first PartialHashBytes of a remote file.
func (m *Manager) partialHash(ctx context.Context, ep transport.Endpoint, p string) (string, error) {
	out, err := m.run(ctx, ep, fmt.Sprintf("head -c %d %s | md5sum", PartialHashBytes, quote(p)))
	if err != nil {
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty md5sum output for %s", p)
	}
	return fields[0], nil
}

// VerifyIdentical computes the full-content digest of every path and
// reports whether they all match. This is the mandatory gate before
// deleting members of a DuplicateGroup, and it must run at delete time;
// the scan's partial digests prove nothing about full contents.
func (m *Manager) VerifyIdentical(ctx context.Context, ep transport.Endpoint, paths []string) (bool, error) {
	if len(paths) < 2 {
		return false, fmt.Errorf("need at least two paths to verify")
	}

	quoted := make([]string, len(paths))
	for i, p := range paths {
		cleaned, err := m.checkPath(ep, p)
		if err != nil {
			return false, err
		}
		quoted[i] = quote(cleaned)
	}

	out, err := m.run(ctx, ep, "md5sum "+strings.Join(quoted, " "))
	if err != nil {
		return false, err
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != len(paths) {
		return false, fmt.Errorf("md5sum returned %d lines for %d paths", len(lines), len(paths))
	}

	var first string
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return false, fmt.Errorf("malformed md5sum line %q", line)
		}
		if first == "" {
			first = fields[0]
		} else if fields[0] != first {
			return false, nil
		}
	}
	return true, nil
}

// DeleteDuplicates removes every path in group except the first after a
// fresh full-content verification. It refuses to delete anything when
// verification shows the group was a partial-digest false positive.
func (m *Manager) DeleteDuplicates(ctx context.Context, ep transport.Endpoint, group DuplicateGroup) ([]string, error) {
	identical, err := m.VerifyIdentical(ctx, ep, group.Paths)
	if err != nil {
		return nil, fmt.Errorf("full verification failed: %w", err)
	}
	if !identical {
		return nil, fmt.Errorf("group for size %d is not byte-identical on full hash; nothing deleted", group.Size)
	}

	var deleted []string
	for _, p := range group.Paths[1:] {
		if _, err := m.run(ctx, ep, fmt.Sprintf("rm -f -- %s", quote(p))); err != nil {
			return deleted, fmt.Errorf("deleting %s: %w", p, err)
		}
		deleted = append(deleted, p)
	}
	return deleted, nil
}
