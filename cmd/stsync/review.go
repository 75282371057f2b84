package main

import (
	"fmt"

	"github.com/imazen/repositext-sub003/internal/oplog"
	"github.com/imazen/repositext-sub003/internal/syncmeta"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type reviewEntry struct {
	Path             string            `yaml:"path"`
	LastSyncedCommit string            `yaml:"last_synced_commit"`
	UpdatedAt        string            `yaml:"updated_at"`
	Subtitles        map[string]string `yaml:"subtitles"`
}

func newReviewCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <repo>",
		Short: "Print the subtitles of a foreign repository flagged for review, as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withJournal(args[0], func(j *syncmeta.Journal) error {
				all, err := j.All()
				if err != nil {
					return err
				}

				entries := []reviewEntry{}
				for _, m := range all {
					if !m.NeedsReview() {
						continue
					}
					entries = append(entries, reviewEntry{
						Path:             m.Path,
						LastSyncedCommit: oplog.TruncateCommit(m.LastSyncedCommit),
						UpdatedAt:        m.UpdatedAt.Format("2006-01-02 15:04:05"),
						Subtitles:        m.SubtitlesToReview,
					})
				}

				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(entries); err != nil {
					return fmt.Errorf("encode review list: %w", err)
				}
				return enc.Close()
			})
		},
	}
	cmd.AddCommand(newReviewClearCmd(c))
	return cmd
}

func newReviewClearCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <repo> <path> [stid...]",
		Short: "Remove review flags of a document, all of them when no stid is given",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withJournal(args[0], func(j *syncmeta.Journal) error {
				return j.ClearReview(args[1], args[2:]...)
			})
		},
	}
}

// withJournal opens only the journal of the named foreign repository.
func (c *cli) withJournal(name string, fn func(*syncmeta.Journal) error) error {
	r, ok := c.cfg.Repo(name)
	if !ok || r.Journal == "" {
		return fmt.Errorf("no foreign repository named %q", name)
	}
	j, err := syncmeta.Open(r.Journal)
	if err != nil {
		return err
	}
	defer j.Close()
	return fn(j)
}
