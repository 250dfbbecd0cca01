package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/lab427/ferry/internal/config"
	"github.com/lab427/ferry/internal/remotefs"
	"github.com/lab427/ferry/internal/transport"
	"github.com/lab427/ferry/internal/watch"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.DefaultEndpoint = "nas"
	cfg.Endpoints = map[string]transport.Endpoint{
		"nas": {
			Name:     "nas",
			Host:     "nas.local",
			User:     "alex",
			BasePath: "/mnt/user/media",
		},
	}
	cfg.Bookmarks = map[string]config.Bookmark{
		"shows": {Endpoint: "nas", Path: "/mnt/user/media/shows"},
	}
	cfg.Watches = []watch.Rule{
		{Name: "incoming", LocalDir: "/home/alex/incoming", Endpoint: cfg.Endpoints["nas"], RemoteDir: "/mnt/user/media/incoming"},
		{Name: "books", LocalDir: "/home/alex/books", Endpoint: cfg.Endpoints["nas"], RemoteDir: "/mnt/user/media/books"},
	}
	return cfg
}

func TestResolvePath(t *testing.T) {
	cfg = testConfig()
	endpointFlag = ""
	t.Cleanup(func() { cfg = nil })

	tests := []struct {
		name     string
		arg      string
		wantPath string
		wantErr  bool
	}{
		{name: "plain path", arg: "/mnt/user/media/movies", wantPath: "/mnt/user/media/movies"},
		{name: "bookmark", arg: "@shows", wantPath: "/mnt/user/media/shows"},
		{name: "unknown bookmark", arg: "@ghost", wantErr: true},
		{name: "bare at sign passes through", arg: "@", wantPath: "@"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, p, err := resolvePath(tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolvePath(%q): %v", tt.arg, err)
			}
			if p != tt.wantPath {
				t.Errorf("path = %q, want %q", p, tt.wantPath)
			}
			if ep.Name != "nas" {
				t.Errorf("endpoint = %q, want nas", ep.Name)
			}
		})
	}
}

func TestSelectRules(t *testing.T) {
	cfg = testConfig()
	t.Cleanup(func() { cfg = nil })

	all, err := selectRules(nil)
	if err != nil {
		t.Fatalf("selectRules(nil): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d rules, want 2", len(all))
	}

	one, err := selectRules([]string{"books"})
	if err != nil {
		t.Fatalf("selectRules(books): %v", err)
	}
	if len(one) != 1 || one[0].Name != "books" {
		t.Fatalf("got %+v, want the books rule", one)
	}

	if _, err := selectRules([]string{"ghost"}); err == nil {
		t.Error("expected an error for an unknown rule name")
	}

	cfg.Watches = nil
	if _, err := selectRules(nil); err == nil {
		t.Error("expected an error with no rules configured")
	}
}

func TestFormatEntry(t *testing.T) {
	mod := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry remotefs.Entry
		want  []string
	}{
		{
			name:  "file shows size",
			entry: remotefs.Entry{Name: "movie.mkv", Size: 1 << 30, ModTime: mod},
			want:  []string{"1.0 GiB", "movie.mkv", "2026-08-01 09:30"},
		},
		{
			name:  "directory shows marker and no size",
			entry: remotefs.Entry{Name: "shows", IsDir: true, ModTime: mod},
			want:  []string{"d", "-", "shows"},
		},
		{
			name:  "symlink marker",
			entry: remotefs.Entry{Name: "latest", IsSymlink: true, ModTime: mod},
			want:  []string{"l", "latest"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatEntry(tt.entry)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("formatEntry = %q, missing %q", got, want)
				}
			}
		})
	}
}
