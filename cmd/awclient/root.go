package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/awclient/client"
	"github.com/vinayprograms/awclient/config"
	"github.com/vinayprograms/awclient/logging"
	"github.com/vinayprograms/awclient/queue"
	"github.com/vinayprograms/awclient/shutdown"
	"github.com/vinayprograms/awclient/telemetry"
)

// version is set at build time.
var version = "dev"

type globalOptions struct {
	host         string
	port         int
	testing      bool
	verbose      bool
	configPath   string
	otlpEndpoint string

	coord  *shutdown.Coordinator
	logger *logging.Logger
	tracer *telemetry.Tracer
}

func newRootCmd(coord *shutdown.Coordinator) *cobra.Command {
	opts := &globalOptions{coord: coord}

	root := &cobra.Command{
		Use:           "awclient",
		Short:         "Interact with an ActivityWatch-compatible event server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.Context())
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.host, "host", "", "server host (default from config, 127.0.0.1)")
	f.IntVar(&opts.port, "port", 0, "server port (default 5600, 5666 with --testing)")
	f.BoolVar(&opts.testing, "testing", false, "use the testing profile")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	f.StringVar(&opts.configPath, "config", "", "config file (TOML or YAML)")
	f.StringVar(&opts.otlpEndpoint, "otlp-endpoint", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "export delivery traces to this OTLP endpoint")

	root.AddCommand(
		newHeartbeatCmd(opts),
		newBucketsCmd(opts),
		newEventsCmd(opts),
		newQueryCmd(opts),
		newCanonicalCmd(opts),
		newReportCmd(opts),
		newQueueCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// setup configures logging and tracing once flags are parsed.
func (o *globalOptions) setup(ctx context.Context) error {
	o.logger = logging.New()
	o.logger.SetOutput(os.Stderr)
	if o.verbose {
		o.logger.SetLevel(logging.LevelDebug)
	}
	o.tracer = telemetry.GetTracer()

	if o.otlpEndpoint == "" {
		return nil
	}
	provider, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
		ServiceName:    "awclient",
		ServiceVersion: version,
		Endpoint:       o.otlpEndpoint,
		Insecure:       true,
		Debug:          o.verbose,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	o.tracer = provider.Tracer()
	o.coord.Register("telemetry", shutdown.PhaseTelemetry, shutdown.Func(provider.Shutdown))
	return nil
}

// config resolves the configuration: file, then environment, then flags.
func (o *globalOptions) config() (config.Config, error) {
	var cfg config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.LoadProfile(o.configPath, o.testing)
	} else {
		cfg, _, err = config.Load(o.testing)
	}
	if err != nil {
		return cfg, err
	}
	config.FromEnv(&cfg)

	if o.host != "" {
		cfg.Host = o.host
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

// client opens a client. Without durable, requests that would be queued
// stay in memory and no queue file is touched.
func (o *globalOptions) client(durable bool) (*client.Client, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	copts := client.Options{
		Name:    client.DefaultName,
		Testing: o.testing,
		Config:  &cfg,
		Logger:  o.logger,
		Tracer:  o.tracer,
	}
	if !durable {
		copts.Store = queue.NewMemoryStore()
	}
	c, err := client.New(copts)
	if err != nil {
		return nil, err
	}
	o.coord.Register("client", shutdown.PhaseClients, c)
	return c, nil
}
