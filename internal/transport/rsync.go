package transport

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Direction tells a bulk copy which side is the remote.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// CopyResult reports what a completed bulk copy moved.
type CopyResult struct {
	Bytes    int64
	Duration time.Duration
}

// sentBytesRe matches the rsync --stats summary line, e.g.
// "sent 1,234,567 bytes  received 35 bytes  823,068.00 bytes/sec".
var sentBytesRe = regexp.MustCompile(`sent\s+([\d,]+)\s+bytes\s+received\s+([\d,]+)\s+bytes`)

// BulkCopy moves source to dest with rsync. Direction decides which side
// carries the endpoint's host prefix; both paths are given bare.
//
// rsync's delta algorithm makes re-runs after a partial failure resume
// cheaply, and single files land atomically via rsync's temp-file rename,
// so callers never observe a half-written destination file.
func (c *Client) BulkCopy(ctx context.Context, ep Endpoint, source, dest string, direction Direction, recursive bool) (CopyResult, error) {
	if err := ep.Validate(); err != nil {
		return CopyResult{}, err
	}

	args := []string{"-a", "--stats"}
	if !recursive {
		// -a implies -r; replace it with -d so a plain file copy never
		// drags a directory along by accident.
		args = []string{"-lptgoD", "-d", "--stats"}
	}
	if ep.Port > 0 && ep.Port != DefaultSSHPort {
		args = append(args, "-e", fmt.Sprintf("ssh -p %d", ep.Port))
	}

	var src, dst string
	switch direction {
	case DirectionUpload:
		src, dst = source, ep.RsyncSpec(dest)
	case DirectionDownload:
		src, dst = ep.RsyncSpec(source), dest
	default:
		return CopyResult{}, fmt.Errorf("unknown copy direction %q", direction)
	}
	args = append(args, src, dst)

	c.logger.Debug().
		Str("endpoint", ep.Name).
		Str("source", src).
		Str("dest", dst).
		Str("direction", string(direction)).
		Msg("rsync")

	start := time.Now()
	res, err := c.runner.Run(ctx, "rsync", args, true)
	elapsed := time.Since(start)
	if err != nil {
		return CopyResult{}, fmt.Errorf("rsync %s -> %s: %w", src, dst, err)
	}

	if res.ExitCode != 0 {
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(res.Stdout)
		}
		// rsync uses ssh underneath; surface its connection failure the
		// same way Run does.
		if res.ExitCode == sshConnectExit || strings.Contains(detail, "Connection refused") ||
			strings.Contains(detail, "Could not resolve hostname") {
			return CopyResult{}, &ConnectError{Endpoint: ep.Name, Addr: ep.SSHAddr(), Detail: detail}
		}
		return CopyResult{}, &ExitError{Command: "rsync", ExitCode: res.ExitCode, Stderr: detail}
	}

	return CopyResult{
		Bytes:    parseRsyncBytes(res.Stdout, direction),
		Duration: elapsed,
	}, nil
}

// parseRsyncBytes pulls the transferred byte count out of rsync --stats
// output. For uploads the payload is in "sent"; for downloads it is in
// "received". Returns 0 when the summary is missing (older rsync, empty
// transfer).
func parseRsyncBytes(out string, direction Direction) int64 {
	m := sentBytesRe.FindStringSubmatch(out)
	if m == nil {
		return 0
	}
	idx := 1
	if direction == DirectionDownload {
		idx = 2
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(m[idx], ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
