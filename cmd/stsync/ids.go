package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/imazen/repositext-sub003/internal/idgen"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newIDsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ids",
		Short: "Manage the persistent subtitle id inventory",
	}
	cmd.AddCommand(newIDsGenerateCmd(c))
	return cmd
}

func newIDsGenerateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <n>",
		Short: "Draw n new ids, record them in the inventory and print them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid id count %q", args[0])
			}

			g, err := idgen.New(afero.NewOsFs(), c.cfg.IDInventory, idgen.WithLength(c.cfg.IDLength),
				idgen.WithLockFile(filepath.Join(c.cfg.StateDir, "locks", "ids.lock")),
			)
			if err != nil {
				return err
			}
			ids, err := g.Generate(n)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
