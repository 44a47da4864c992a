package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"vlbical/internal/config"
	"vlbical/internal/logging"
	"vlbical/internal/logs"
	"vlbical/internal/store"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var runID string
	var group string
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the combined log or one group's log of a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				path := filepath.Join(cfg.Paths.LogDir, "vlbical.log")
				if group != "" {
					id := runID
					if id == "" {
						run, err := st.LatestRun(cmd.Context())
						if err != nil {
							return err
						}
						if run == nil {
							return fmt.Errorf("no runs recorded")
						}
						id = run.ID
					}
					path = logging.GroupLogPath(cfg, id, group)
				}

				out, err := logs.Last(path, lines)
				if err != nil {
					return err
				}
				if len(out) == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "No log output at %s\n", path)
					return nil
				}
				for _, line := range out {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run id for --group (default latest)")
	cmd.Flags().StringVarP(&group, "group", "g", "", "Show this frequency group's log")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Trailing lines to print (0 for all)")
	return cmd
}
