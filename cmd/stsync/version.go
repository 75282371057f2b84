package main

import (
	"fmt"

	"github.com/imazen/repositext-sub003/internal/version"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newVersionCmd() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:         "version",
		Short:       "Print stsync version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"config": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if asYAML {
				return yaml.NewEncoder(cmd.OutOrStdout()).Encode(version.Current())
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.AppName, version.Detailed())
			return err
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print as YAML")
	return cmd
}
