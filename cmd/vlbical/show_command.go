package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"vlbical/internal/config"
	"vlbical/internal/store"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var runID string
	var showDetail bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the decisions and exclusions of a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				var (
					run *store.Run
					err error
				)
				if runID != "" {
					run, err = st.GetRun(cmd.Context(), runID)
				} else {
					run, err = st.LatestRun(cmd.Context())
				}
				if err != nil {
					return err
				}
				if run == nil {
					if runID != "" {
						return fmt.Errorf("run %s not found", runID)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}

				decisions, err := st.Decisions(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				exclusions, err := st.Exclusions(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				printRun(cmd.OutOrStdout(), run, decisions, exclusions, showDetail)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run id (default latest)")
	cmd.Flags().BoolVar(&showDetail, "detail", false, "Include decision detail")
	return cmd
}

func printRun(out io.Writer, run *store.Run, decisions []store.Decision, exclusions []store.Exclusion, showDetail bool) {
	colorize := shouldColorize(out)
	kind := statusInfo
	switch run.Status {
	case store.RunCompleted:
		kind = statusOK
	case store.RunPartial:
		kind = statusWarn
	case store.RunFailed:
		kind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Run", kind, run.ID+" "+string(run.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Started", statusInfo, run.StartedAt.Local().Format("2006-01-02 15:04:05"), colorize))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintln(out, renderStatusLine("Finished", statusInfo, run.FinishedAt.Local().Format("2006-01-02 15:04:05"), colorize))
	}
	if run.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Message", kind, run.ErrorMessage, colorize))
	}

	headers := []string{"Group", "Target", "Stage", "Decision", "Result", "Reason"}
	if showDetail {
		headers = append(headers, "Detail")
	}
	rows := make([][]string, 0, len(decisions))
	for _, d := range decisions {
		row := []string{d.Group, dash(d.Target), d.Stage, d.Type, d.Result, d.Reason}
		if showDetail {
			row = append(row, detailJSON(d.Detail))
		}
		rows = append(rows, row)
	}
	fmt.Fprintln(out, renderTable(headers, rows, nil))

	if len(exclusions) == 0 {
		fmt.Fprintln(out, "No targets excluded")
		return
	}
	excl := make([][]string, 0, len(exclusions))
	for _, e := range exclusions {
		excl = append(excl, []string{e.Group, e.Target, e.ErrorKind, e.Reason})
	}
	fmt.Fprintln(out, renderTable([]string{"Group", "Excluded target", "Kind", "Reason"}, excl, nil))
}

func detailJSON(detail map[string]any) string {
	if len(detail) == 0 {
		return ""
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Sprintf("%v", detail)
	}
	return string(data)
}
