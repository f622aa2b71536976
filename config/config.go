package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/vinayprograms/awclient/logging"
)

// Common errors.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrUnknownFormat = errors.New("unknown config file format")
)

// Config is the resolved configuration of one client.
type Config struct {
	Protocol string
	Host     string
	Port     int

	// CommitInterval is how long a queued heartbeat may grow before it is
	// committed to the queue.
	CommitInterval time.Duration

	ReconnectInterval time.Duration
	PollInterval      time.Duration
	ErrorBackoff      time.Duration
	RequestTimeout    time.Duration

	// QueueBackend is "bolt", "pebble" or "memory".
	QueueBackend string

	// DataDir holds the queue files.
	DataDir string

	LogLevel string
}

// Default returns the defaults of the production or testing profile.
func Default(testing bool) Config {
	cfg := Config{
		Protocol:          "http",
		Host:              "127.0.0.1",
		Port:              5600,
		CommitInterval:    10 * time.Second,
		ReconnectInterval: 10 * time.Second,
		PollInterval:      200 * time.Millisecond,
		ErrorBackoff:      500 * time.Millisecond,
		RequestTimeout:    30 * time.Second,
		QueueBackend:      "bolt",
		DataDir:           DefaultDataDir(),
		LogLevel:          "info",
	}
	if testing {
		cfg.Port = 5666
		cfg.CommitInterval = 5 * time.Second
	}
	return cfg
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Protocol != "http" && c.Protocol != "https" {
		return fmt.Errorf("%w: protocol %q", ErrInvalidConfig, c.Protocol)
	}
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	}
	for name, d := range map[string]time.Duration{
		"commit_interval":    c.CommitInterval,
		"reconnect_interval": c.ReconnectInterval,
		"poll_interval":      c.PollInterval,
		"error_backoff":      c.ErrorBackoff,
		"request_timeout":    c.RequestTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	switch c.QueueBackend {
	case "bolt", "pebble", "memory":
	default:
		return fmt.Errorf("%w: queue backend %q", ErrInvalidConfig, c.QueueBackend)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// --- File format ---

// Port accepts both port = 5600 and port = "5600".
type Port int

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Port) UnmarshalText(text []byte) error {
	n, err := strconv.Atoi(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("port %q: %w", text, err)
	}
	*p = Port(n)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Port) MarshalText() ([]byte, error) {
	return []byte(strconv.Itoa(int(p))), nil
}

// ServerSection is a [server] or [server-testing] table.
type ServerSection struct {
	Hostname string `toml:"hostname,omitempty" yaml:"hostname,omitempty"`
	Port     Port   `toml:"port,omitempty" yaml:"port,omitempty"`
	Protocol string `toml:"protocol,omitempty" yaml:"protocol,omitempty"`
}

// ClientSection is a [client] or [client-testing] table. Durations are
// seconds.
type ClientSection struct {
	CommitInterval    float64 `toml:"commit_interval,omitempty" yaml:"commit_interval,omitempty"`
	ReconnectInterval float64 `toml:"reconnect_interval,omitempty" yaml:"reconnect_interval,omitempty"`
	PollInterval      float64 `toml:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	ErrorBackoff      float64 `toml:"error_backoff,omitempty" yaml:"error_backoff,omitempty"`
	RequestTimeout    float64 `toml:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	QueueBackend      string  `toml:"queue_backend,omitempty" yaml:"queue_backend,omitempty"`
	DataDir           string  `toml:"data_dir,omitempty" yaml:"data_dir,omitempty"`
	LogLevel          string  `toml:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// File is the on-disk configuration with both profiles.
type File struct {
	Server        ServerSection `toml:"server" yaml:"server"`
	Client        ClientSection `toml:"client" yaml:"client"`
	ServerTesting ServerSection `toml:"server-testing" yaml:"server-testing"`
	ClientTesting ClientSection `toml:"client-testing" yaml:"client-testing"`
}

// DefaultFile returns the file written for a fresh install.
func DefaultFile() *File {
	prod, test := Default(false), Default(true)
	return &File{
		Server:        ServerSection{Hostname: prod.Host, Port: Port(prod.Port)},
		Client:        ClientSection{CommitInterval: prod.CommitInterval.Seconds()},
		ServerTesting: ServerSection{Hostname: test.Host, Port: Port(test.Port)},
		ClientTesting: ClientSection{CommitInterval: test.CommitInterval.Seconds()},
	}
}

// Resolve overlays the selected profile onto its defaults.
func (f *File) Resolve(testing bool) Config {
	cfg := Default(testing)
	server, client := f.Server, f.Client
	if testing {
		server, client = f.ServerTesting, f.ClientTesting
	}

	if server.Hostname != "" {
		cfg.Host = server.Hostname
	}
	if server.Port != 0 {
		cfg.Port = int(server.Port)
	}
	if server.Protocol != "" {
		cfg.Protocol = server.Protocol
	}

	setSeconds(&cfg.CommitInterval, client.CommitInterval)
	setSeconds(&cfg.ReconnectInterval, client.ReconnectInterval)
	setSeconds(&cfg.PollInterval, client.PollInterval)
	setSeconds(&cfg.ErrorBackoff, client.ErrorBackoff)
	setSeconds(&cfg.RequestTimeout, client.RequestTimeout)
	if client.QueueBackend != "" {
		cfg.QueueBackend = client.QueueBackend
	}
	if client.DataDir != "" {
		cfg.DataDir = expandHome(client.DataDir)
	}
	if client.LogLevel != "" {
		cfg.LogLevel = client.LogLevel
	}
	return cfg
}

func setSeconds(dst *time.Duration, s float64) {
	if s != 0 {
		*dst = time.Duration(s * float64(time.Second))
	}
}

// --- Loading ---

// StandardPaths returns the config file locations in order of priority.
func StandardPaths() []string {
	paths := []string{"aw-client.toml", "aw-client.yaml"}

	if path, err := UserPath(); err == nil {
		paths = append(paths, path, strings.TrimSuffix(path, ".toml")+".yaml")
	}
	return paths
}

// UserPath returns the per-user TOML config file, the one of
// StandardPaths that lives in the user's config directory.
func UserPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "activitywatch", "aw-client", "aw-client.toml"), nil
}

// Load resolves the profile from the first config file found in the
// standard locations. With no file, the profile defaults are returned.
func Load(testing bool) (Config, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadProfile(path, testing)
			return cfg, path, err
		}
	}
	return Default(testing), "", nil // No config file found (not an error)
}

// LoadProfile reads path and resolves one profile.
func LoadProfile(path string, testing bool) (Config, error) {
	f, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := f.Resolve(testing)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFile decodes a TOML or YAML file, chosen by extension.
func LoadFile(path string) (*File, error) {
	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	return &f, nil
}

// WriteFile writes f to path in the format chosen by extension.
func WriteFile(path string, f *File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(f); err != nil {
			return err
		}
		data = []byte(sb.String())
	case ".yaml", ".yml":
		var err error
		if data, err = yaml.Marshal(f); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	return os.WriteFile(path, data, 0o644)
}

// --- Paths ---

// DefaultDataDir returns the per-user data directory for queue files.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "activitywatch", "aw-client")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "activitywatch", "aw-client")
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "activitywatch", "aw-client")
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, "activitywatch", "aw-client")
		}
	}
	return filepath.Join(home, ".local", "share", "activitywatch", "aw-client")
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}
