package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vlbical/internal/config"
	"vlbical/internal/logging"
	"vlbical/internal/pipeline"
	"vlbical/internal/services"
	"vlbical/internal/solverexec"
	"vlbical/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var groupNames []string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Calibrate the configured frequency groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				groups, err := selectGroups(cfg, groupNames)
				if err != nil {
					return err
				}

				logger, err := logging.NewFromConfig(cfg)
				if err != nil {
					return fmt.Errorf("init logging: %w", err)
				}

				var opts []solverexec.Option
				if timeout > 0 {
					opts = append(opts, solverexec.WithTimeout(timeout))
				}
				client, err := solverexec.New(cfg.Solver.Command, cfg.Solver.Args, opts...)
				if err != nil {
					return services.Wrap(services.ErrConfiguration, "cli", "solver", cfg.Solver.Command, err)
				}

				runner := &pipeline.Runner{
					Config:     cfg,
					ConfigPath: ctx.configPath,
					Tables:     st,
					Ledger:     st,
					Toolkit:    client,
					Logger:     logger,
				}
				report, err := runner.Run(cmd.Context(), groups)
				if report.RunID != "" {
					printRunReport(cmd.OutOrStdout(), report)
				}
				if err != nil {
					return err
				}
				if report.Status == store.RunFailed {
					return fmt.Errorf("run %s failed: every group aborted", report.RunID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&groupNames, "group", "g", nil, "Frequency group to run (repeatable; default all)")
	cmd.Flags().DurationVar(&timeout, "solver-timeout", 0, "Upper bound for each solver invocation")
	return cmd
}

func selectGroups(cfg *config.Config, names []string) ([]config.Group, error) {
	if len(names) == 0 {
		if len(cfg.Groups) == 0 {
			return nil, errors.New("no frequency groups configured")
		}
		return cfg.Groups, nil
	}
	groups := make([]config.Group, 0, len(names))
	for _, name := range names {
		g, ok := cfg.Group(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown frequency group %q", name)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func printRunReport(out io.Writer, report pipeline.Report) {
	colorize := shouldColorize(out)
	fmt.Fprintf(out, "Run %s\n", report.RunID)

	rows := make([][]string, 0, len(report.Groups))
	for _, g := range report.Groups {
		exported := 0
		for _, t := range g.Targets {
			if t.Exported {
				exported++
			}
		}
		status := "ok"
		if g.Err != nil {
			status = services.Kind(g.Err)
		}
		rows = append(rows, []string{
			g.Group,
			g.Dataset,
			dash(g.ReferenceName),
			versionCell(g.InstrumentalCL),
			strconv.Itoa(exported),
			strconv.Itoa(len(g.Excluded)),
			status,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Group", "Dataset", "Refant", "Instr CL", "Exported", "Excluded", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))

	for _, g := range report.Groups {
		if g.Err != nil {
			fmt.Fprintln(out, renderStatusLine(g.Group, statusError, g.Err.Error(), colorize))
		}
		for _, t := range g.Targets {
			switch {
			case t.Exported:
				fmt.Fprintln(out, renderStatusLine(t.Target, statusOK,
					fmt.Sprintf("CL %d, solint %.2f min, ratio %.3f", t.CLVersion, t.Solint.Minutes, t.Fringe.Ratio()), colorize))
			case t.Err != nil:
				fmt.Fprintln(out, renderStatusLine(t.Target, statusWarn, "excluded: "+t.Err.Error(), colorize))
			}
		}
	}
	kind := statusOK
	switch report.Status {
	case store.RunPartial:
		kind = statusWarn
	case store.RunFailed:
		kind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Run status", kind, string(report.Status), colorize))
}

func versionCell(v int) string {
	if v <= 0 {
		return "-"
	}
	return strconv.Itoa(v)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
