// Package config loads and saves the ferry configuration file.
//
// INI format:
//
//	[general]
//	default_endpoint = nas
//
//	[endpoint.nas]
//	host = nas.local
//	user = alex
//	port = 22
//	base_path = /mnt/user/media
//	extra_paths = /mnt/user/downloads, /mnt/disks/backup
//	trash_path = /mnt/user/.trash
//
//	[watch.incoming]
//	local_dir = /home/alex/outbox
//	endpoint = nas
//	remote_dir = /mnt/user/media/incoming
//	pattern = *.mkv
//	poll_interval_seconds = 5
//	debounce_seconds = 10
//
//	[notifications]
//	enabled = true
//	desktop = true
//	webhook_url = https://discord.com/api/webhooks/...
//
//	[history]
//	enabled = true
//	path = /home/alex/.config/ferry/ferry.db
//
//	[bookmarks]
//	movies = nas:/mnt/user/media/movies
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/lab427/ferry/internal/notify"
	"github.com/lab427/ferry/internal/transport"
	"github.com/lab427/ferry/internal/watch"
)

const (
	endpointSectionPrefix = "endpoint."
	watchSectionPrefix    = "watch."
)

// Bookmark is a saved remote location.
type Bookmark struct {
	Endpoint string
	Path     string
}

// HistoryConfig controls the sqlite history store.
type HistoryConfig struct {
	Enabled bool
	Path    string
}

// Config is the full parsed configuration.
type Config struct {
	DefaultEndpoint string
	Endpoints       map[string]transport.Endpoint
	Watches         []watch.Rule
	Notifications   notify.Config
	History         HistoryConfig
	Bookmarks       map[string]Bookmark
}

// New returns a config with defaults and no endpoints.
func New() *Config {
	return &Config{
		Endpoints:     make(map[string]transport.Endpoint),
		Notifications: *notify.DefaultConfig(),
		History:       HistoryConfig{Enabled: true},
		Bookmarks:     make(map[string]Bookmark),
	}
}

// DefaultPath returns ~/.config/ferry/config.ini.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ferry", "config.ini"), nil
}

// Load reads the config at path. A missing file returns defaults with no
// error; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return cfg, nil
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg.DefaultEndpoint = iniFile.Section("general").Key("default_endpoint").String()

	for _, section := range iniFile.Sections() {
		name := section.Name()
		switch {
		case strings.HasPrefix(name, endpointSectionPrefix):
			ep, err := parseEndpoint(strings.TrimPrefix(name, endpointSectionPrefix), section)
			if err != nil {
				return nil, err
			}
			cfg.Endpoints[ep.Name] = ep
		case strings.HasPrefix(name, watchSectionPrefix):
			rule, err := parseWatch(strings.TrimPrefix(name, watchSectionPrefix), section)
			if err != nil {
				return nil, err
			}
			cfg.Watches = append(cfg.Watches, rule)
		}
	}

	notifySection := iniFile.Section("notifications")
	cfg.Notifications.Enabled = notifySection.Key("enabled").MustBool(true)
	cfg.Notifications.Desktop = notifySection.Key("desktop").MustBool(true)
	cfg.Notifications.WebhookURL = notifySection.Key("webhook_url").String()

	historySection := iniFile.Section("history")
	cfg.History.Enabled = historySection.Key("enabled").MustBool(true)
	cfg.History.Path = historySection.Key("path").String()

	for _, key := range iniFile.Section("bookmarks").Keys() {
		bm, err := parseBookmark(key.Value())
		if err != nil {
			return nil, fmt.Errorf("bookmark %q: %w", key.Name(), err)
		}
		cfg.Bookmarks[key.Name()] = bm
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseEndpoint(name string, section *ini.Section) (transport.Endpoint, error) {
	ep := transport.Endpoint{
		Name:      name,
		Host:      section.Key("host").String(),
		User:      section.Key("user").String(),
		Port:      section.Key("port").MustInt(0),
		BasePath:  section.Key("base_path").String(),
		TrashPath: section.Key("trash_path").String(),
	}
	for _, p := range strings.Split(section.Key("extra_paths").String(), ",") {
		if p = strings.TrimSpace(p); p != "" {
			ep.ExtraPaths = append(ep.ExtraPaths, p)
		}
	}
	if err := ep.Validate(); err != nil {
		return transport.Endpoint{}, err
	}
	return ep, nil
}

func parseWatch(name string, section *ini.Section) (watch.Rule, error) {
	rule := watch.Rule{
		Name:         name,
		LocalDir:     section.Key("local_dir").String(),
		RemoteDir:    section.Key("remote_dir").String(),
		Pattern:      section.Key("pattern").String(),
		PollInterval: time.Duration(section.Key("poll_interval_seconds").MustInt(0)) * time.Second,
		Debounce:     time.Duration(section.Key("debounce_seconds").MustInt(0)) * time.Second,
	}
	// The endpoint reference is resolved after all sections are read;
	// stash the name for resolve().
	rule.Endpoint = transport.Endpoint{Name: section.Key("endpoint").String()}
	return rule, nil
}

func parseBookmark(value string) (Bookmark, error) {
	endpoint, path, ok := strings.Cut(value, ":")
	if !ok || endpoint == "" || path == "" {
		return Bookmark{}, fmt.Errorf("want endpoint:/path, got %q", value)
	}
	return Bookmark{Endpoint: endpoint, Path: path}, nil
}

// resolve links watch rules and bookmarks to their endpoints, then
// validates the rules.
func (c *Config) resolve() error {
	for i, rule := range c.Watches {
		epName := rule.Endpoint.Name
		ep, ok := c.Endpoints[epName]
		if !ok {
			return fmt.Errorf("watch %q references unknown endpoint %q", rule.Name, epName)
		}
		c.Watches[i].Endpoint = ep
		if err := c.Watches[i].Validate(); err != nil {
			return err
		}
	}

	for name, bm := range c.Bookmarks {
		if _, ok := c.Endpoints[bm.Endpoint]; !ok {
			return fmt.Errorf("bookmark %q references unknown endpoint %q", name, bm.Endpoint)
		}
	}

	if c.DefaultEndpoint != "" {
		if _, ok := c.Endpoints[c.DefaultEndpoint]; !ok {
			return fmt.Errorf("default_endpoint %q is not configured", c.DefaultEndpoint)
		}
	}
	return nil
}

// Endpoint resolves a name to an endpoint. An empty name falls back to
// default_endpoint, or to the sole configured endpoint.
func (c *Config) Endpoint(name string) (transport.Endpoint, error) {
	if name == "" {
		name = c.DefaultEndpoint
	}
	if name == "" && len(c.Endpoints) == 1 {
		for only := range c.Endpoints {
			name = only
		}
	}
	if name == "" {
		return transport.Endpoint{}, errors.New("no endpoint given and no default_endpoint configured")
	}
	ep, ok := c.Endpoints[name]
	if !ok {
		return transport.Endpoint{}, fmt.Errorf("endpoint %q is not configured", name)
	}
	return ep, nil
}

// EndpointNames returns the configured endpoint names, sorted.
func (c *Config) EndpointNames() []string {
	names := make([]string, 0, len(c.Endpoints))
	for name := range c.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes the config to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	iniFile := ini.Empty()

	if cfg.DefaultEndpoint != "" {
		iniFile.Section("general").Key("default_endpoint").SetValue(cfg.DefaultEndpoint)
	}

	for _, name := range cfg.EndpointNames() {
		ep := cfg.Endpoints[name]
		section := iniFile.Section(endpointSectionPrefix + name)
		section.Key("host").SetValue(ep.Host)
		if ep.User != "" {
			section.Key("user").SetValue(ep.User)
		}
		if ep.Port > 0 && ep.Port != transport.DefaultSSHPort {
			section.Key("port").SetValue(fmt.Sprint(ep.Port))
		}
		section.Key("base_path").SetValue(ep.BasePath)
		if len(ep.ExtraPaths) > 0 {
			section.Key("extra_paths").SetValue(strings.Join(ep.ExtraPaths, ", "))
		}
		if ep.TrashPath != "" {
			section.Key("trash_path").SetValue(ep.TrashPath)
		}
	}

	for _, rule := range cfg.Watches {
		section := iniFile.Section(watchSectionPrefix + rule.Name)
		section.Key("local_dir").SetValue(rule.LocalDir)
		section.Key("endpoint").SetValue(rule.Endpoint.Name)
		section.Key("remote_dir").SetValue(rule.RemoteDir)
		if rule.Pattern != "" {
			section.Key("pattern").SetValue(rule.Pattern)
		}
		if rule.PollInterval > 0 {
			section.Key("poll_interval_seconds").SetValue(fmt.Sprint(int(rule.PollInterval.Seconds())))
		}
		if rule.Debounce > 0 {
			section.Key("debounce_seconds").SetValue(fmt.Sprint(int(rule.Debounce.Seconds())))
		}
	}

	notifySection := iniFile.Section("notifications")
	notifySection.Key("enabled").SetValue(fmt.Sprint(cfg.Notifications.Enabled))
	notifySection.Key("desktop").SetValue(fmt.Sprint(cfg.Notifications.Desktop))
	if cfg.Notifications.WebhookURL != "" {
		notifySection.Key("webhook_url").SetValue(cfg.Notifications.WebhookURL)
	}

	historySection := iniFile.Section("history")
	historySection.Key("enabled").SetValue(fmt.Sprint(cfg.History.Enabled))
	if cfg.History.Path != "" {
		historySection.Key("path").SetValue(cfg.History.Path)
	}

	if len(cfg.Bookmarks) > 0 {
		bmSection := iniFile.Section("bookmarks")
		names := make([]string, 0, len(cfg.Bookmarks))
		for name := range cfg.Bookmarks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			bm := cfg.Bookmarks[name]
			bmSection.Key(name).SetValue(bm.Endpoint + ":" + bm.Path)
		}
	}

	if err := iniFile.SaveTo(path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}
