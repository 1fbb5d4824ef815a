package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/rmax-ai/traceview/pkg/client"
	"github.com/rmax-ai/traceview/pkg/ingest"
	"github.com/rmax-ai/traceview/pkg/mcp"
	"github.com/rmax-ai/traceview/pkg/trace"
)

type cli struct {
	endpoint string
	timeout  time.Duration
}

func (c *cli) client() *client.Client {
	return client.NewClient(c.endpoint)
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.timeout)
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "traceview",
		Short:         "Inspect and feed a running traceview-d daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultEndpoint := os.Getenv("TRACEVIEW_ENDPOINT")
	if defaultEndpoint == "" {
		defaultEndpoint = "http://127.0.0.1:8095"
	}
	root.PersistentFlags().StringVar(&c.endpoint, "api", defaultEndpoint, "Base URL of traceview-d API")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "Request timeout")

	root.AddCommand(
		c.pushCmd(),
		c.graphCmd(),
		c.statsCmd(),
		c.nodesCmd(),
		c.linksCmd(),
		c.findCmd(),
		c.reportCmd(),
		c.resetCmd(),
		c.runningCmd(),
		c.pingCmd(),
		c.mcpCmd(),
		versionCmd(),
	)
	return root
}

// --- Ingestion ---

func (c *cli) pushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push [file...]",
		Short: "Push trace batches (JSON object, array or JSONL) to the daemon; '-' reads stdin",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			api := c.client()

			for _, path := range args {
				updates, err := readUpdates(cmd.InOrStdin(), path)
				if err != nil {
					return err
				}
				bar := newProgress(cmd.ErrOrStderr(), len(updates), path)
				for i, u := range updates {
					res, err := api.PushTrace(ctx, u)
					if err != nil {
						return fmt.Errorf("%s: batch %d: %w", path, i, err)
					}
					if bar != nil {
						bar.Add(1)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: batch %d accepted (%d events, %d messages total)\n",
						path, i, res.Events, res.Stats.MessagesIngested)
				}
				if bar != nil {
					bar.Finish()
				}
			}
			return nil
		},
	}
}

// newProgress returns a progress bar on terminals, nil otherwise.
func newProgress(w io.Writer, total int, description string) *progressbar.ProgressBar {
	f, ok := w.(*os.File)
	if !ok || total < 2 || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(f),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func readUpdates(stdin io.Reader, path string) ([]trace.Update, error) {
	if path == "-" {
		return ingest.DecodeUpdates(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	updates, err := ingest.DecodeUpdates(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return updates, nil
}

// --- Queries ---

func (c *cli) graphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the visible graph as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			snap, err := c.client().GetGraph(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print aggregation counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			st, err := c.client().GetStats(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "activities\t%d\n", st.Activities)
			fmt.Fprintf(w, "passive_entities\t%d\n", st.PassiveEntities)
			fmt.Fprintf(w, "activity_groups\t%d (%d promoted)\n", st.ActivityGroups, st.PromotedActivityGroups)
			fmt.Fprintf(w, "passive_groups\t%d (%d promoted)\n", st.PassiveGroups, st.PromotedPassiveGroups)
			fmt.Fprintf(w, "message_pairs\t%d\n", st.MessagePairs)
			fmt.Fprintf(w, "messages_ingested\t%d\n", st.MessagesIngested)
			fmt.Fprintf(w, "max_message_sends\t%d\n", st.MaxMessageSends)
			return w.Flush()
		},
	}
}

func (c *cli) nodesCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List visible nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			nodes, err := c.client().GetNodes(ctx, kind)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tTYPE\tLABEL\tSIZE")
			for _, n := range nodes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", n.DataID, n.Kind, n.TypeLabel, n.Label, n.Size)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind: activity or passive")
	return cmd
}

func (c *cli) linksCmd() *cobra.Command {
	var minCount int
	cmd := &cobra.Command{
		Use:   "links",
		Short: "List assembled links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			links, err := c.client().GetLinks(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tTARGET\tCOUNT\tCREATION")
			for _, l := range links {
				if l.MessageCount < minCount {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", l.Source, l.Target, l.MessageCount, l.Creation)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&minCount, "min", 0, "Hide links with fewer messages")
	return cmd
}

func (c *cli) findCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <data-id>",
		Short: "Resolve a data id (e.g. e42) to the visible node showing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			n, err := c.client().FindNode(ctx, args[0])
			if errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("no visible node shows %s", args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), n)
		},
	}
}

func (c *cli) reportCmd() *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "report <links|nodes>",
		Short: "Download a report (--format csv, json or xlsx)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			data, err := c.client().GetReport(ctx, args[0], format)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("failed to write report to %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "Report format: csv, json or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write report to file instead of stdout")
	return cmd
}

// --- Session control ---

func (c *cli) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard all aggregated data and start a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			res, err := c.client().Reset(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session reset: %s\n", res.SessionID)
			return nil
		},
	}
}

func (c *cli) runningCmd() *cobra.Command {
	var stopped bool
	cmd := &cobra.Command{
		Use:   "running <activity-id>",
		Short: "Mark an activity as running (or stopped with --stopped)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid activity id %q", args[0])
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			if err := c.client().SetActivityRunning(ctx, trace.ID(id), !stopped); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Activity %d running=%t\n", id, !stopped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&stopped, "stopped", false, "Clear the running flag")
	return cmd
}

func (c *cli) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check daemon health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			st, err := c.client().Ping(ctx)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Is traceview-d running?")
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", st.Status, c.endpoint)
			return nil
		},
	}
}

func (c *cli) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the Model Context Protocol on stdio, backed by the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcp.NewServer(c.endpoint).Serve()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "traceview %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
