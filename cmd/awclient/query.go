package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/awclient/client"
	"github.com/vinayprograms/awclient/event"
	"github.com/vinayprograms/awclient/queries"
)

// periodFlags are the --start/--stop flags shared by query commands.
type periodFlags struct {
	start, stop string
	cache       bool
	name        string
}

func (p *periodFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.start, "start", "", "period start (default 24 hours ago)")
	cmd.Flags().StringVar(&p.stop, "stop", "", "period end (default one year from now)")
	cmd.Flags().BoolVar(&p.cache, "cache", false, "let the server cache results (requires --name)")
	cmd.Flags().StringVar(&p.name, "name", "", "query name for caching")
}

func (p *periodFlags) period() (client.Period, error) {
	now := time.Now()
	period := client.Period{Start: now.Add(-24 * time.Hour), End: now.AddDate(1, 0, 0)}
	var err error
	if p.start != "" {
		if period.Start, err = parseTime(p.start); err != nil {
			return period, err
		}
	}
	if p.stop != "" {
		if period.End, err = parseTime(p.stop); err != nil {
			return period, err
		}
	}
	return period, nil
}

func (p *periodFlags) options() client.QueryOptions {
	return client.QueryOptions{Name: p.name, Cache: p.cache}
}

func newQueryCmd(o *globalOptions) *cobra.Command {
	var (
		pf     periodFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query PATH",
		Short: "Run the query script in PATH on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			period, err := pf.period()
			if err != nil {
				return err
			}
			c, err := o.client(false)
			if err != nil {
				return err
			}
			results, err := c.Query(cmd.Context(), string(script), []client.Period{period}, pf.options())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(results)
			}
			for _, raw := range results {
				var events []event.Event
				if err := json.Unmarshal(raw, &events); err != nil {
					// Not a list of events; show it as is.
					fmt.Fprintln(out, string(raw))
					continue
				}
				printEventSummary(out, events, 10)
			}
			return nil
		},
	}
	pf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON result")
	return cmd
}

func printEventSummary(out io.Writer, events []event.Event, n int) {
	shown := events
	if len(shown) > n {
		shown = shown[:n]
	}
	fmt.Fprintf(out, "Showing %d out of %d events:\n", len(shown), len(events))
	t := newTable(out, "Duration", "Data")
	for _, e := range shown {
		t.Append([]string{formatDuration(e.Duration), shorten(formatData(e.Data), 100)})
	}
	t.Render()
	fmt.Fprintf(out, "Total duration: %s\n", formatDuration(totalDuration(events)))
}

func totalDuration(events []event.Event) time.Duration {
	var total time.Duration
	for _, e := range events {
		total += e.Duration
	}
	return total
}

func newCanonicalCmd(o *globalOptions) *cobra.Command {
	var pf periodFlags
	cmd := &cobra.Command{
		Use:   "canonical HOSTNAME",
		Short: "Show filtered, categorized window events for one host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := pf.period()
			if err != nil {
				return err
			}
			p := queries.NewDesktopParams("aw-watcher-window_"+args[0], "aw-watcher-afk_"+args[0])
			p.Classes = queries.DefaultClasses()
			script := queries.CanonicalEvents(p) + "\nRETURN = events;"
			o.logger.Debug("query", map[string]interface{}{"script": queries.PrettyQuery(script)})

			c, err := o.client(false)
			if err != nil {
				return err
			}
			results, err := c.Query(cmd.Context(), script, []client.Period{period}, pf.options())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, raw := range results {
				var events []event.Event
				if err := json.Unmarshal(raw, &events); err != nil {
					return fmt.Errorf("decode result: %w", err)
				}
				last := events
				if len(last) > 10 {
					last = last[len(last)-10:]
				}
				fmt.Fprintf(out, "Showing last %d out of %d events:\n", len(last), len(events))
				t := newTable(out, "Timestamp", "Duration", "Data")
				for _, e := range last {
					app, _ := e.Data["app"].(string)
					title, _ := e.Data["title"].(string)
					t.Append([]string{formatTime(e.Timestamp), formatDuration(e.Duration), fmt.Sprintf("[%s] %s", app, shorten(title, 60))})
				}
				t.Render()
				fmt.Fprintf(out, "Total duration: %s\n", formatDuration(totalDuration(events)))
			}
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}

type reportResult struct {
	Window struct {
		CatEvents   []event.Event `json:"cat_events"`
		TitleEvents []event.Event `json:"title_events"`
		Duration    float64       `json:"duration"`
	} `json:"window"`
}

func newReportCmd(o *globalOptions) *cobra.Command {
	var (
		pf    periodFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "report HOSTNAME",
		Short: "Show top categories and window titles for one host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := pf.period()
			if err != nil {
				return err
			}
			p := queries.NewDesktopParams("aw-watcher-window_"+args[0], "aw-watcher-afk_"+args[0])
			p.Classes = queries.DefaultClasses()
			script := queries.FullDesktopQuery(p)
			o.logger.Debug("query", map[string]interface{}{"script": queries.PrettyQuery(script)})

			c, err := o.client(false)
			if err != nil {
				return err
			}
			results, err := c.Query(cmd.Context(), script, []client.Period{period}, pf.options())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, raw := range results {
				var r reportResult
				if err := json.Unmarshal(raw, &r); err != nil {
					return fmt.Errorf("decode result: %w", err)
				}
				printTop(out, "Categories", r.Window.CatEvents, limit, func(e event.Event) string {
					return strings.Join(stringList(e.Data["$category"]), " > ")
				})
				printTop(out, "Titles", r.Window.TitleEvents, limit, func(e event.Event) string {
					title, _ := e.Data["title"].(string)
					return shorten(title, 80)
				})
				fmt.Fprintf(out, "Total duration: %s\n", formatDuration(event.Seconds(r.Window.Duration)))
			}
			return nil
		},
	}
	pf.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 10, "rows per table")
	return cmd
}

func printTop(out io.Writer, title string, events []event.Event, n int, key func(event.Event) string) {
	sorted := append([]event.Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Duration > sorted[j].Duration })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	fmt.Fprintf(out, "Top %d %s (out of %d)\n", len(sorted), title, len(events))
	t := newTable(out, "Duration", "Key")
	for _, e := range sorted {
		t.Append([]string{formatDuration(e.Duration), key(e)})
	}
	t.Render()
	fmt.Fprintln(out)
}

func stringList(v interface{}) []string {
	items, _ := v.([]interface{})
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, fmt.Sprint(it))
	}
	return out
}
