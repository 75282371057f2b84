package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/imazen/repositext-sub003/internal/oplog"
	"github.com/imazen/repositext-sub003/internal/subsync"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newSyncCmd(c *cli) *cobra.Command {
	var opts subsync.Options

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay primary subtitle operations onto every foreign repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(c.cfg)
			if err != nil {
				return err
			}
			defer w.Close()

			e, err := w.engine()
			if err != nil {
				return err
			}

			showHeader(cmd.ErrOrStderr())
			summary, err := e.Sync(cmd.Context(), opts)
			if summary != nil && summary.TargetCommit != "" {
				printSummary(cmd.OutOrStdout(), summary)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.FileSelector, "files", "", "doublestar pattern selecting foreign documents")
	cmd.Flags().StringVar(&opts.FromCommit, "from", "", "start commit of the first operation log")
	cmd.Flags().StringVar(&opts.ToCommit, "to", "", "commit to sync to (default: primary HEAD)")
	return cmd
}

func printSummary(out io.Writer, s *subsync.Summary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Repository", "Path", "Outcome", "Start", "Logs", "Review", "Reason"})
	for _, r := range s.Results {
		review := ""
		if r.NeedsReview {
			review = yellow("yes")
		}
		tw.AppendRow(table.Row{r.Repository, r.Path, outcome(r.Outcome), oplog.TruncateCommit(r.StartCommit), r.LogsApplied, review, r.Reason})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 7, WidthMax: 60},
	})
	if len(s.Results) > 0 {
		tw.Render()
	}

	failed := 0
	for _, u := range s.Unprocessable {
		if !hasResult(s, u.Repository, u.Path) {
			if failed == 0 {
				fmt.Fprintln(out, red("Left out of the operation log:"))
			}
			fmt.Fprintf(out, "  %s %s: %s\n", u.Repository, u.Path, u.Reason)
			failed++
		}
	}

	fmt.Fprintf(out, "Target %s", cyan(oplog.TruncateCommit(s.TargetCommit)))
	if s.PrimaryLog != "" {
		fmt.Fprintf(out, ", new log %s", s.PrimaryLog)
	}
	fmt.Fprintf(out, ": %s synced, %s autosplit, %s skipped, %s need review, %s failed (run %s)\n",
		green(humanize.Comma(int64(s.FilesSynced))),
		cyan(humanize.Comma(int64(s.FilesAutosplit))),
		humanize.Comma(int64(s.FilesSkipped)),
		yellow(humanize.Comma(int64(s.FilesNeedingReview))),
		red(strconv.Itoa(s.FilesFailed)),
		s.RunID,
	)
}

func outcome(o subsync.Outcome) string {
	switch o {
	case subsync.OutcomeSynced:
		return green(o.String())
	case subsync.OutcomeAutosplit:
		return cyan(o.String())
	case subsync.OutcomeSkipped:
		return yellow(o.String())
	case subsync.OutcomeFailed:
		return red(o.String())
	}
	return o.String()
}

func hasResult(s *subsync.Summary, repo, path string) bool {
	for _, r := range s.Results {
		if r.Repository == repo && r.Path == path {
			return true
		}
	}
	return false
}

func showHeader(out io.Writer) {
	color.New(color.FgHiCyan, color.Bold).Fprintln(out, "stsync: subtitle sync")
}
