package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/awclient/client"
	"github.com/vinayprograms/awclient/config"
	"github.com/vinayprograms/awclient/queue"
)

func newQueueCmd(o *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "queue", Short: "Inspect local request queues"}

	var clientName string
	status := &cobra.Command{
		Use:   "status",
		Short: "Show how many requests a client has waiting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			name := queue.FileName(clientName, o.testing, cfg.Host, cfg.Port)
			path := queue.Path(cfg.DataDir, name, cfg.QueueBackend)

			out := cmd.OutOrStdout()
			t := newTable(out, "Client", "Server", "Backend", "Path", "Pending")
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				t.Append([]string{clientName, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), cfg.QueueBackend, path, "no queue"})
				t.Render()
				return nil
			}

			store, err := queue.Open(queue.Options{
				Backend: cfg.QueueBackend,
				Dir:     cfg.DataDir,
				Name:    name,
				Logger:  o.logger,
			})
			if errors.Is(err, queue.ErrLocked) {
				t.Append([]string{clientName, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), cfg.QueueBackend, path, "in use"})
				t.Render()
				return nil
			}
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Size()
			if err != nil {
				return err
			}
			t.Append([]string{clientName, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), cfg.QueueBackend, path, fmt.Sprint(n)})
			t.Render()
			return nil
		},
	}
	status.Flags().StringVar(&clientName, "client", client.DefaultName, "client name the queue belongs to")
	cmd.AddCommand(status)
	return cmd
}

func newConfigCmd(o *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage the configuration file"}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write a config file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				var err error
				if path, err = config.UserPath(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteFile(path, config.DefaultFile()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
