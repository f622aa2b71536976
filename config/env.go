package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays AWCLIENT_* environment variables onto cfg. Invalid
// values are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("AWCLIENT_PROTOCOL"); v != "" {
		cfg.Protocol = v
	}
	if v := os.Getenv("AWCLIENT_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("AWCLIENT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("AWCLIENT_COMMIT_INTERVAL"); v != "" {
		if d, ok := parseDuration(v); ok {
			cfg.CommitInterval = d
		}
	}
	if v := os.Getenv("AWCLIENT_RECONNECT_INTERVAL"); v != "" {
		if d, ok := parseDuration(v); ok {
			cfg.ReconnectInterval = d
		}
	}
	if v := os.Getenv("AWCLIENT_REQUEST_TIMEOUT"); v != "" {
		if d, ok := parseDuration(v); ok {
			cfg.RequestTimeout = d
		}
	}
	if v := os.Getenv("AWCLIENT_QUEUE_BACKEND"); v != "" {
		cfg.QueueBackend = v
	}
	if v := os.Getenv("AWCLIENT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("AWCLIENT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// parseDuration accepts Go durations ("1m30s") or plain seconds ("90").
func parseDuration(s string) (time.Duration, bool) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), true
	}
	return 0, false
}
