// Package config loads client settings from a TOML or YAML file and the
// environment.
//
// The file has a production and a testing profile:
//
//	[server]
//	hostname = "127.0.0.1"
//	port = "5600"
//
//	[client]
//	commit_interval = 10
//
//	[server-testing]
//	hostname = "127.0.0.1"
//	port = "5666"
//
//	[client-testing]
//	commit_interval = 5
//
// Durations in the file are seconds. The [client] sections also accept
// queue_backend, data_dir, reconnect_interval, poll_interval,
// error_backoff, request_timeout and log_level.
//
// Resolution order: profile defaults, then the file, then AWCLIENT_*
// environment variables:
//
//	cfg, path, err := config.Load(testing)
//	config.FromEnv(&cfg)
package config
