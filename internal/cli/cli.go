// Package cli is the operator command line for a pingstatus server.
//
//	pingstatus jobs list|get|add|delete|rename|run|history
//	pingstatus results
//	pingstatus config show|set
//	pingstatus probe TARGET    (runs ping locally, no server needed)
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/pingstatus/internal/config"
	"github.com/hamed0406/pingstatus/internal/domain"
	"github.com/hamed0406/pingstatus/internal/probe"
	"github.com/hamed0406/pingstatus/internal/report"
)

type globals struct {
	api string
	key string
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func BuildCLI() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "pingstatus",
		Short:         "Manage scheduled ping jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.api, "api", envOr("API_BASE", "http://localhost:8080"), "control API base URL")
	root.PersistentFlags().StringVar(&g.key, "key", os.Getenv("PINGSTATUS_API_KEY"), "API key (public for reads, admin for changes)")

	root.AddCommand(buildJobsCommand(g), buildResultsCommand(g), buildConfigCommand(g), buildProbeCommand())
	return root
}

func (g *globals) client() *Client { return NewClient(g.api, g.key) }

func buildJobsCommand(g *globals) *cobra.Command {
	jobs := &cobra.Command{Use: "jobs", Short: "List and change jobs"}

	jobs.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List jobs with their next run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := g.client().ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTARGET\tINTERVAL\tCOUNT\tEVERY\tLAST RUN\tNEXT RUN")
			for _, j := range st {
				next := fmtTime(&j.NextRunAt)
				if j.Running {
					next = "running"
				}
				fmt.Fprintf(tw, "%s\t%s\t%gs\t%d\t%dm\t%s\t%s\n",
					j.Name, j.Target, j.IntervalSec, j.Count, j.ScheduleMinutes, fmtTime(j.LastRunAt), next)
			}
			return tw.Flush()
		},
	})

	jobs.AddCommand(&cobra.Command{
		Use:   "get NAME",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := g.client().GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), j)
			return nil
		},
	})

	var spec JobSpec
	add := &cobra.Command{
		Use:   "add NAME TARGET",
		Short: "Create or update a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Target = args[1]
			j, err := g.client().UpsertJob(cmd.Context(), args[0], spec)
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), j)
			return nil
		},
	}
	add.Flags().IntVarP(&spec.ScheduleMinutes, "every", "e", 0, "minutes between runs (required)")
	add.Flags().Float64VarP(&spec.IntervalSec, "interval", "i", 0, "seconds between packets (server default when unset)")
	add.Flags().IntVarP(&spec.Count, "count", "n", 0, "packets per run (server default when unset)")
	_ = add.MarkFlagRequired("every")
	jobs.AddCommand(add)

	jobs.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.client().DeleteJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})

	jobs.AddCommand(&cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a job; it counts as new and runs on the next tick",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := g.client().RenameJob(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), j)
			return nil
		},
	})

	jobs.AddCommand(&cobra.Command{
		Use:   "run NAME",
		Short: "Start a job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.client().RunJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started %s\n", args[0])
			return nil
		},
	})

	var limit int
	history := &cobra.Command{
		Use:   "history NAME",
		Short: "Show recent runs of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := g.client().History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), recs)
		},
	}
	history.Flags().IntVarP(&limit, "limit", "l", 20, "number of runs")
	jobs.AddCommand(history)

	return jobs
}

func buildResultsCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "results",
		Short: "Show the latest run of every job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := g.client().Latest(cmd.Context())
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), recs)
		},
	}
}

func buildConfigCommand(g *globals) *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Show or change probe defaults"}

	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := g.client().Config(cmd.Context())
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), v)
			return nil
		},
	})

	var d config.Defaults
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the defaults used for new jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := g.client()
			cur, err := c.Config(cmd.Context())
			if err != nil {
				return err
			}
			next := cur.Defaults
			if cmd.Flags().Changed("interval") {
				next.IntervalSec = d.IntervalSec
			}
			if cmd.Flags().Changed("count") {
				next.Count = d.Count
			}
			v, err := c.SetDefaults(cmd.Context(), next)
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), v)
			return nil
		},
	}
	set.Flags().Float64VarP(&d.IntervalSec, "interval", "i", 0, "default seconds between packets")
	set.Flags().IntVarP(&d.Count, "count", "n", 0, "default packets per run")
	set.MarkFlagsOneRequired("interval", "count")
	cfg.AddCommand(set)

	return cfg
}

func buildProbeCommand() *cobra.Command {
	var (
		interval float64
		count    int
		binary   string
		verbose  bool
	)
	cmd := &cobra.Command{
		Use:   "probe TARGET",
		Short: "Ping TARGET once on this machine and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zap.NewNop()
			if verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				log = l
			}
			job := domain.Job{Name: "adhoc", Target: args[0], IntervalSec: interval, Count: count, ScheduleMinutes: 1}
			if err := job.Validate(); err != nil {
				return err
			}
			runner := probe.NewDNSAnnotator(probe.NewPinger(binary, probe.DefaultGrace, log))
			res := runner.Run(cmd.Context(), probe.RequestFor(job))
			msg := report.Format(job, res)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", msg.Title, msg.Text)
			if res.Outcome == domain.OutcomeError {
				return res.Err
			}
			return nil
		},
	}
	cmd.Flags().Float64VarP(&interval, "interval", "i", 0.2, "seconds between packets")
	cmd.Flags().IntVarP(&count, "count", "n", 10, "packets to send")
	cmd.Flags().StringVar(&binary, "ping", envOr("PING_BINARY", probe.DefaultBinary), "ping executable")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log probe details to stderr")
	return cmd
}

func fmtTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func printJob(w io.Writer, j domain.Job) {
	fmt.Fprintf(w, "name:      %s\ntarget:    %s\ninterval:  %gs\ncount:     %d\nevery:     %dm\nlast run:  %s\n",
		j.Name, j.Target, j.IntervalSec, j.Count, j.ScheduleMinutes, fmtTime(j.LastRunAt))
}

func printConfig(w io.Writer, v ConfigView) {
	fmt.Fprintf(w, "default interval: %gs\ndefault count:    %d\nadmin id:         %d\n",
		v.Defaults.IntervalSec, v.Defaults.Count, v.AdminID)
}

func printRecords(w io.Writer, recs []domain.RunRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTARTED\tOUTCOME\tRECV\tLOSS\tAVG RTT\tDETAIL")
	for _, r := range recs {
		avg := "-"
		if r.AvgRTTMS != nil {
			avg = fmt.Sprintf("%.2fms", *r.AvgRTTMS)
		}
		outcome := r.Outcome
		if r.ErrorKind != "" {
			outcome += "(" + r.ErrorKind + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%g%%\t%s\t%s\n",
			r.JobName, fmtTime(&r.StartedAt), outcome, r.Received, r.Transmitted, r.LossPct, avg, firstLine(r.Detail))
	}
	return tw.Flush()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
