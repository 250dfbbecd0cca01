package remotefs

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/lab427/ferry/internal/transport"
)

// Mkdir creates dir (and parents) on the endpoint.
func (m *Manager) Mkdir(ctx context.Context, ep transport.Endpoint, dir string) error {
	dir, err := m.checkPath(ep, dir)
	if err != nil {
		return err
	}
	_, err = m.run(ctx, ep, fmt.Sprintf("mkdir -p -- %s", quote(dir)))
	return err
}

// Move relocates src into destDir, keeping its base name.
func (m *Manager) Move(ctx context.Context, ep transport.Endpoint, src, destDir string) error {
	src, err := m.checkPath(ep, src)
	if err != nil {
		return err
	}
	destDir, err = m.checkPath(ep, destDir)
	if err != nil {
		return err
	}
	dest := path.Join(destDir, path.Base(src))
	_, err = m.run(ctx, ep, fmt.Sprintf("mv -- %s %s", quote(src), quote(dest)))
	return err
}

// Copy duplicates src into destDir on the same endpoint.
func (m *Manager) Copy(ctx context.Context, ep transport.Endpoint, src, destDir string, recursive bool) error {
	src, err := m.checkPath(ep, src)
	if err != nil {
		return err
	}
	destDir, err = m.checkPath(ep, destDir)
	if err != nil {
		return err
	}
	dest := path.Join(destDir, path.Base(src))
	flag := ""
	if recursive {
		flag = "-r "
	}
	_, err = m.run(ctx, ep, fmt.Sprintf("cp %s-- %s %s", flag, quote(src), quote(dest)))
	return err
}

// Checksum returns the full-content md5 digest of a remote file.
func (m *Manager) Checksum(ctx context.Context, ep transport.Endpoint, p string) (string, error) {
	p, err := m.checkPath(ep, p)
	if err != nil {
		return "", err
	}
	out, err := m.run(ctx, ep, fmt.Sprintf("md5sum -- %s", quote(p)))
	if err != nil {
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty md5sum output for %s", p)
	}
	return fields[0], nil
}

// DirSize returns the total bytes under dir.
func (m *Manager) DirSize(ctx context.Context, ep transport.Endpoint, dir string) (int64, error) {
	dir, err := m.checkPath(ep, dir)
	if err != nil {
		return 0, err
	}
	out, err := m.run(ctx, ep, fmt.Sprintf("du -sb -- %s", quote(dir)))
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty du output for %s", dir)
	}
	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad du output %q for %s", fields[0], dir)
	}
	return size, nil
}
