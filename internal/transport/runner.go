package transport

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

// ExecResult is the outcome of one local process invocation.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CommandRunner executes a local binary (ssh, rsync, ...). The production
// implementation shells out with os/exec; tests substitute a scripted fake.
type CommandRunner interface {
	// Run executes name with args. When capture is true, stdout/stderr are
	// collected into the result; otherwise the process inherits the
	// caller's terminal (interactive ssh sessions, rsync progress).
	Run(ctx context.Context, name string, args []string, capture bool) (ExecResult, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

// NewExecRunner returns the production CommandRunner.
func NewExecRunner() CommandRunner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, name string, args []string, capture bool) (ExecResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	if capture {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	} else {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	err := cmd.Run()
	res := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		// Context expiry wins over the generic exit error so callers can
		// map it to a timeout.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// Binary missing, fork failure, etc.
		return res, err
	}

	return res, nil
}
