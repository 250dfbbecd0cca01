package remotefs

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/lab427/ferry/internal/transport"
)

func testEndpoint() transport.Endpoint {
	return transport.Endpoint{
		Name:      "nas",
		Host:      "nas.local",
		User:      "alex",
		BasePath:  "/mnt/user/media",
		TrashPath: "/mnt/user/.trash",
	}
}

// scriptedRunner replays canned results in call order and records every
// command it was asked to run.
type scriptedRunner struct {
	commands []string
	results  []transport.Result
	errs     []error
	streams  []string
}

func (f *scriptedRunner) Run(ctx context.Context, ep transport.Endpoint, command string, opts transport.RunOptions) (transport.Result, error) {
	i := len(f.commands)
	f.commands = append(f.commands, command)
	var res transport.Result
	if i < len(f.results) {
		res = f.results[i]
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return res, err
}

func (f *scriptedRunner) RunStream(ctx context.Context, ep transport.Endpoint, command string) (io.ReadCloser, error) {
	f.commands = append(f.commands, command)
	var s string
	if len(f.streams) > 0 {
		s = f.streams[0]
		f.streams = f.streams[1:]
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

// shellFS interprets the small command vocabulary the trash and rename
// operations emit (mkdir, mv, printf-redirect, cat, test, ls, rm, with
// &&-chaining) against an in-memory tree, so round-trips run end to end
// without a host.
type shellFS struct {
	files    map[string]string
	dirs     map[string]bool
	commands []string

	// fail makes matching commands exit 1 without touching the tree.
	fail func(command string) bool
}

func newShellFS() *shellFS {
	return &shellFS{files: make(map[string]string), dirs: make(map[string]bool)}
}

func (f *shellFS) RunStream(ctx context.Context, ep transport.Endpoint, command string) (io.ReadCloser, error) {
	f.commands = append(f.commands, command)
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *shellFS) Run(ctx context.Context, ep transport.Endpoint, command string, opts transport.RunOptions) (transport.Result, error) {
	f.commands = append(f.commands, command)
	if f.fail != nil && f.fail(command) {
		return transport.Result{ExitCode: 1, Stderr: "injected failure"}, nil
	}

	var res transport.Result
	for _, sub := range strings.Split(command, " && ") {
		res = f.runOne(sub)
		if res.ExitCode != 0 {
			return res, nil
		}
	}
	return res, nil
}

func (f *shellFS) runOne(command string) transport.Result {
	tokens := splitShell(command)
	if len(tokens) == 0 {
		return transport.Result{ExitCode: 2, Stderr: "empty command"}
	}

	switch tokens[0] {
	case "mkdir":
		dir := tokens[len(tokens)-1]
		for d := dir; d != "/" && d != "."; d = path.Dir(d) {
			f.dirs[d] = true
		}
		return transport.Result{}

	case "mv":
		noClobber := false
		for _, t := range tokens[1:] {
			if t == "-n" {
				noClobber = true
			}
		}
		args := stripFlags(tokens[1:])
		if len(args) != 2 {
			return transport.Result{ExitCode: 2, Stderr: "mv: bad args"}
		}
		src, dst := args[0], args[1]
		if noClobber {
			if _, ok := f.files[dst]; ok || f.dirs[dst] {
				// mv -n declines silently and still exits 0.
				return transport.Result{}
			}
		}
		if content, ok := f.files[src]; ok {
			delete(f.files, src)
			f.files[dst] = content
			return transport.Result{}
		}
		if f.dirs[src] {
			delete(f.dirs, src)
			f.dirs[dst] = true
			return transport.Result{}
		}
		return transport.Result{ExitCode: 1, Stderr: "mv: no such file: " + src}

	case "printf":
		redir := -1
		for i, t := range tokens {
			if t == ">" {
				redir = i
			}
		}
		if redir < 0 || redir+1 >= len(tokens) || redir < 3 {
			return transport.Result{ExitCode: 2, Stderr: "printf: bad args"}
		}
		f.files[tokens[redir+1]] = tokens[redir-1] + "\n"
		return transport.Result{}

	case "cat":
		p := tokens[len(tokens)-1]
		content, ok := f.files[p]
		if !ok {
			return transport.Result{ExitCode: 1, Stderr: "cat: no such file: " + p}
		}
		return transport.Result{Stdout: content}

	case "test":
		negate := false
		for _, t := range tokens {
			if t == "!" {
				negate = true
			}
		}
		p := tokens[len(tokens)-1]
		_, isFile := f.files[p]
		exists := isFile || f.dirs[p]
		if exists != negate {
			return transport.Result{}
		}
		return transport.Result{ExitCode: 1}

	case "ls":
		dir := tokens[len(tokens)-1]
		if !f.dirs[dir] {
			return transport.Result{ExitCode: 2, Stderr: "ls: no such dir: " + dir}
		}
		var names []string
		for p := range f.files {
			if path.Dir(p) == dir {
				names = append(names, path.Base(p))
			}
		}
		for p := range f.dirs {
			if path.Dir(p) == dir {
				names = append(names, path.Base(p))
			}
		}
		sort.Strings(names)
		return transport.Result{Stdout: strings.Join(names, "\n") + "\n"}

	case "rm":
		args := stripFlags(tokens[1:])
		for _, p := range args {
			delete(f.files, p)
			if f.dirs[p] {
				delete(f.dirs, p)
				for child := range f.files {
					if strings.HasPrefix(child, p+"/") {
						delete(f.files, child)
					}
				}
			}
		}
		return transport.Result{}
	}

	return transport.Result{ExitCode: 2, Stderr: fmt.Sprintf("unsupported command %q", tokens[0])}
}

func stripFlags(tokens []string) []string {
	var args []string
	for _, t := range tokens {
		if strings.HasPrefix(t, "-") {
			continue
		}
		args = append(args, t)
	}
	return args
}

// splitShell tokenizes on spaces while honoring single quotes. It covers
// exactly the quoting ShellQuote produces for the paths used in tests.
func splitShell(cmd string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	quoted := false
	flush := func() {
		if cur.Len() > 0 || quoted {
			tokens = append(tokens, cur.String())
		}
		cur.Reset()
		quoted = false
	}
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			quoted = true
		case c == ' ' && !inQuote:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return tokens
}
