package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/imazen/repositext-sub003/internal/oplog"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newLogsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect persisted operation logs",
	}
	cmd.AddCommand(newLogsListCmd(c), newLogsShowCmd(c))
	return cmd
}

func (c *cli) store() *oplog.Store {
	return oplog.NewStore(afero.NewOsFs(), c.cfg.LogsDir)
}

func newLogsListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List operation logs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := c.store()
			refs, err := store.List()
			if err != nil {
				return err
			}
			if len(refs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No operation logs in %s\n", store.Dir())
				return nil
			}
			return printLogs(cmd.OutOrStdout(), store, refs)
		},
	}
}

func printLogs(out io.Writer, store *oplog.Store, refs []oplog.LogRef) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"From", "To", "Created", "Files", "Operations", "Name"})
	for _, ref := range refs {
		ops, err := store.LoadRef(ref)
		if err != nil {
			return err
		}
		tw.AppendRow(table.Row{
			ref.From,
			ref.To,
			humanize.Time(ref.CreatedAt),
			humanize.Comma(int64(len(ops.Files))),
			humanize.Comma(int64(ops.OperationCount())),
			ref.Name,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	tw.Render()
	return nil
}

func newLogsShowCmd(c *cli) *cobra.Command {
	var pid string

	cmd := &cobra.Command{
		Use:   "show <from> <to>",
		Short: "Print the operation log covering from..to as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := c.store().Load(args[0], args[1])
			if err != nil {
				return err
			}

			var data []byte
			if pid != "" {
				f, _ := ops.File(pid)
				data, err = oplog.MarshalFile(f)
			} else {
				data, err = oplog.Marshal(ops)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&pid, "pid", "", "only the log of the document with this product identity id")
	return cmd
}
