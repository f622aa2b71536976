package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	prod := Default(false)
	if prod.Port != 5600 || prod.CommitInterval != 10*time.Second {
		t.Errorf("prod defaults = %+v", prod)
	}
	test := Default(true)
	if test.Port != 5666 || test.CommitInterval != 5*time.Second {
		t.Errorf("testing defaults = %+v", test)
	}
	if err := prod.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"pebble", func(c *Config) { c.QueueBackend = "pebble" }, false},
		{"bad protocol", func(c *Config) { c.Protocol = "gopher" }, true},
		{"empty host", func(c *Config) { c.Host = "" }, true},
		{"bad port", func(c *Config) { c.Port = -1 }, true},
		{"negative interval", func(c *Config) { c.CommitInterval = -time.Second }, true},
		{"bad backend", func(c *Config) { c.QueueBackend = "sqlite" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(false)
			tt.modify(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aw-client.toml")
	content := `
[server]
hostname = "example.org"
port = "5601"

[client]
commit_interval = 30
queue_backend = "pebble"

[server-testing]
hostname = "localhost"
port = 5667

[client-testing]
commit_interval = 2.5
`
	os.WriteFile(path, []byte(content), 0o644)

	prod, err := LoadProfile(path, false)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if prod.Host != "example.org" || prod.Port != 5601 {
		t.Errorf("server = %s:%d", prod.Host, prod.Port)
	}
	if prod.CommitInterval != 30*time.Second || prod.QueueBackend != "pebble" {
		t.Errorf("client = %+v", prod)
	}
	if prod.ReconnectInterval != 10*time.Second {
		t.Errorf("unset values should keep defaults: %v", prod.ReconnectInterval)
	}

	test, err := LoadProfile(path, true)
	if err != nil {
		t.Fatalf("LoadProfile testing: %v", err)
	}
	if test.Host != "localhost" || test.Port != 5667 {
		t.Errorf("testing server = %s:%d", test.Host, test.Port)
	}
	if test.CommitInterval != 2500*time.Millisecond {
		t.Errorf("testing commit interval = %v", test.CommitInterval)
	}
	if test.QueueBackend != "bolt" {
		t.Errorf("testing profile must not inherit prod client section: %q", test.QueueBackend)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aw-client.yaml")
	content := `
server:
  hostname: 10.0.0.2
  port: "5600"
  protocol: https
client:
  commit_interval: 15
  data_dir: /var/lib/aw
  log_level: debug
`
	os.WriteFile(path, []byte(content), 0o644)

	cfg, err := LoadProfile(path, false)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if cfg.Host != "10.0.0.2" || cfg.Port != 5600 || cfg.Protocol != "https" {
		t.Errorf("server = %+v", cfg)
	}
	if cfg.CommitInterval != 15*time.Second || cfg.DataDir != "/var/lib/aw" || cfg.LogLevel != "debug" {
		t.Errorf("client = %+v", cfg)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	os.WriteFile(bad, []byte("[server\nport = "), 0o644)
	if _, err := LoadFile(bad); err == nil {
		t.Error("expected parse error")
	}

	ini := filepath.Join(dir, "aw.ini")
	os.WriteFile(ini, []byte(""), 0o644)
	if _, err := LoadFile(ini); err == nil {
		t.Error("expected unknown format error")
	}

	invalid := filepath.Join(dir, "invalid.toml")
	os.WriteFile(invalid, []byte("[client]\nqueue_backend = \"sqlite\"\n"), 0o644)
	if _, err := LoadProfile(invalid, false); err == nil {
		t.Error("expected validation error")
	}
}

func TestWriteFile_Roundtrip(t *testing.T) {
	for _, name := range []string{"aw-client.toml", "aw-client.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sub", name)
			if err := WriteFile(path, DefaultFile()); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			f, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			if cfg := f.Resolve(true); cfg.Port != 5666 || cfg.CommitInterval != 5*time.Second {
				t.Errorf("testing profile = %+v", cfg)
			}
			if cfg := f.Resolve(false); cfg.Port != 5600 || cfg.CommitInterval != 10*time.Second {
				t.Errorf("prod profile = %+v", cfg)
			}
		})
	}
}

func TestStandardPaths(t *testing.T) {
	paths := StandardPaths()
	if len(paths) < 2 {
		t.Fatalf("expected at least 2 standard paths, got %d", len(paths))
	}
	if paths[0] != "aw-client.toml" {
		t.Errorf("first path should be aw-client.toml, got %s", paths[0])
	}
}

func TestUserPath_InStandardPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := UserPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "activitywatch", "aw-client", "aw-client.toml"); path != want {
		t.Errorf("UserPath() = %s, want %s", path, want)
	}
	paths := StandardPaths()
	if len(paths) != 4 || paths[2] != path || paths[3] != strings.TrimSuffix(path, ".toml")+".yaml" {
		t.Errorf("StandardPaths() = %v", paths)
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := Load(true)
	if err != nil || path != "" {
		t.Fatalf("Load() = %q, %v", path, err)
	}
	if cfg.Port != 5666 {
		t.Errorf("expected testing defaults, got port %d", cfg.Port)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("AWCLIENT_HOST", "aw.local")
	t.Setenv("AWCLIENT_PORT", "7000")
	t.Setenv("AWCLIENT_COMMIT_INTERVAL", "1m")
	t.Setenv("AWCLIENT_REQUEST_TIMEOUT", "2.5")
	t.Setenv("AWCLIENT_QUEUE_BACKEND", "memory")
	t.Setenv("AWCLIENT_RECONNECT_INTERVAL", "soon")

	cfg := Default(false)
	FromEnv(&cfg)

	if cfg.Host != "aw.local" || cfg.Port != 7000 {
		t.Errorf("server = %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.CommitInterval != time.Minute {
		t.Errorf("CommitInterval = %v", cfg.CommitInterval)
	}
	if cfg.RequestTimeout != 2500*time.Millisecond {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.QueueBackend != "memory" {
		t.Errorf("QueueBackend = %q", cfg.QueueBackend)
	}
	if cfg.ReconnectInterval != 10*time.Second {
		t.Errorf("invalid value should be ignored: %v", cfg.ReconnectInterval)
	}
}

func TestDefaultDataDir_XDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg")
	if got := DefaultDataDir(); got != filepath.Join("/xdg", "activitywatch", "aw-client") {
		t.Errorf("DefaultDataDir() = %q", got)
	}
}
