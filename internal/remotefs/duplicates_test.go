package remotefs

import (
	"context"
	"strings"
	"testing"

	"github.com/lab427/ferry/internal/logging"
	"github.com/lab427/ferry/internal/transport"
)

func TestGroupBySize(t *testing.T) {
	out := "100 /mnt/user/media/a.bin\n" +
		"100 /mnt/user/media/b.bin\n" +
		"50 /mnt/user/media/lonely.bin\n" +
		"0 /mnt/user/media/empty1\n" +
		"0 /mnt/user/media/empty2\n" +
		"garbage line\n"

	groups := groupBySize(out)
	if len(groups) != 1 {
		t.Fatalf("got %d size groups, want 1: %v", len(groups), groups)
	}
	paths, ok := groups[100]
	if !ok || len(paths) != 2 {
		t.Errorf("size-100 group = %v, want the two 100-byte files", paths)
	}
}

func TestFindDuplicates(t *testing.T) {
	fake := &scriptedRunner{results: []transport.Result{
		{Stdout: "100 /mnt/user/media/a.bin\n100 /mnt/user/media/b.bin\n100 /mnt/user/media/c.bin\n"},
		{Stdout: "aaaa  -\n"},
		{Stdout: "aaaa  -\n"},
		{Stdout: "bbbb  -\n"},
	}}
	m := NewManager(fake, logging.Nop())

	groups, err := m.FindDuplicates(context.Background(), testEndpoint(), "/mnt/user/media")
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1: %+v", len(groups), groups)
	}
	g := groups[0]
	if g.Size != 100 || g.Digest != "aaaa" {
		t.Errorf("group = %+v, want size 100 digest aaaa", g)
	}
	want := []string{"/mnt/user/media/a.bin", "/mnt/user/media/b.bin"}
	if strings.Join(g.Paths, ",") != strings.Join(want, ",") {
		t.Errorf("paths = %v, want %v", g.Paths, want)
	}

	if !strings.Contains(fake.commands[1], "head -c 65536") {
		t.Errorf("phase two command %q does not hash a bounded prefix", fake.commands[1])
	}
}

func TestFindDuplicatesSkipsUnhashable(t *testing.T) {
	fake := &scriptedRunner{results: []transport.Result{
		{Stdout: "100 /mnt/user/media/a.bin\n100 /mnt/user/media/b.bin\n"},
		{ExitCode: 1, Stderr: "head: cannot open"},
		{Stdout: "aaaa  -\n"},
	}}
	m := NewManager(fake, logging.Nop())

	groups, err := m.FindDuplicates(context.Background(), testEndpoint(), "/mnt/user/media")
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("unreadable candidate still produced a group: %+v", groups)
	}
}

func TestVerifyIdentical(t *testing.T) {
	same := transport.Result{Stdout: "d41d8cd9  /mnt/user/media/a.bin\nd41d8cd9  /mnt/user/media/b.bin\n"}
	diff := transport.Result{Stdout: "d41d8cd9  /mnt/user/media/a.bin\nffffffff  /mnt/user/media/b.bin\n"}
	paths := []string{"/mnt/user/media/a.bin", "/mnt/user/media/b.bin"}

	m := NewManager(&scriptedRunner{results: []transport.Result{same}}, logging.Nop())
	ok, err := m.VerifyIdentical(context.Background(), testEndpoint(), paths)
	if err != nil || !ok {
		t.Errorf("identical pair: got (%v, %v), want (true, nil)", ok, err)
	}

	m = NewManager(&scriptedRunner{results: []transport.Result{diff}}, logging.Nop())
	ok, err = m.VerifyIdentical(context.Background(), testEndpoint(), paths)
	if err != nil || ok {
		t.Errorf("differing pair: got (%v, %v), want (false, nil)", ok, err)
	}

	m = NewManager(&scriptedRunner{}, logging.Nop())
	if _, err := m.VerifyIdentical(context.Background(), testEndpoint(), paths[:1]); err == nil {
		t.Error("single path accepted for verification")
	}
}

func TestDeleteDuplicatesKeepsFirst(t *testing.T) {
	fake := &scriptedRunner{results: []transport.Result{
		{Stdout: "abcd  /mnt/user/media/a.bin\nabcd  /mnt/user/media/b.bin\nabcd  /mnt/user/media/c.bin\n"},
		{}, {},
	}}
	m := NewManager(fake, logging.Nop())
	group := DuplicateGroup{
		Size:   100,
		Digest: "abcd",
		Paths:  []string{"/mnt/user/media/a.bin", "/mnt/user/media/b.bin", "/mnt/user/media/c.bin"},
	}

	deleted, err := m.DeleteDuplicates(context.Background(), testEndpoint(), group)
	if err != nil {
		t.Fatalf("DeleteDuplicates: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("deleted %v, want the two non-first members", deleted)
	}
	for _, cmd := range fake.commands[1:] {
		if !strings.HasPrefix(cmd, "rm -f -- ") {
			t.Errorf("unexpected delete command %q", cmd)
		}
		if strings.Contains(cmd, "a.bin") {
			t.Errorf("first member was deleted: %q", cmd)
		}
	}
}

func TestDeleteDuplicatesRefusesFalsePositive(t *testing.T) {
	// The partial digests matched but the full hashes do not.
	fake := &scriptedRunner{results: []transport.Result{
		{Stdout: "abcd  /mnt/user/media/a.bin\nffff  /mnt/user/media/b.bin\n"},
	}}
	m := NewManager(fake, logging.Nop())
	group := DuplicateGroup{
		Size:  100,
		Paths: []string{"/mnt/user/media/a.bin", "/mnt/user/media/b.bin"},
	}

	if _, err := m.DeleteDuplicates(context.Background(), testEndpoint(), group); err == nil {
		t.Fatal("false-positive group was deleted")
	}
	if len(fake.commands) != 1 {
		t.Errorf("rm issued despite failed verification: %v", fake.commands)
	}
}
