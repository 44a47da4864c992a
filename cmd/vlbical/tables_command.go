package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vlbical/internal/config"
	"vlbical/internal/store"
	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

func newTablesCommand(ctx *commandContext) *cobra.Command {
	tablesCmd := &cobra.Command{
		Use:   "tables",
		Short: "Inspect and manage calibration tables",
	}
	tablesCmd.AddCommand(newTablesListCommand(ctx))
	tablesCmd.AddCommand(newTablesImportCommand(ctx))
	tablesCmd.AddCommand(newTablesCopyCommand(ctx))
	return tablesCmd
}

func newTablesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <dataset>",
		Short: "List table versions of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				infos, err := st.List(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(infos) == 0 {
					fmt.Fprintf(out, "No tables stored for %s\n", args[0])
					return nil
				}
				rows := make([][]string, 0, len(infos))
				for _, info := range infos {
					rows = append(rows, []string{
						string(info.Kind),
						strconv.Itoa(info.Version),
						strconv.Itoa(info.Rows),
						versionCell(info.SourceVersion),
						info.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Kind", "Version", "Rows", "From SN", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

// importFile is the on-disk table format; null weights are blanked solutions.
type importFile struct {
	Rows []struct {
		Antenna      vlbi.AntennaID `json:"antenna"`
		Time         float64        `json:"time"`
		TimeInterval float64        `json:"time_interval"`
		SourceID     int            `json:"source_id"`
		Weights      []*float64     `json:"weights"`
		Reference    bool           `json:"reference"`
	} `json:"rows"`
}

func newTablesImportCommand(ctx *commandContext) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "import <dataset> <kind> <file.json>",
		Short: "Import a table version from a JSON file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[1])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("read table file: %w", err)
			}
			var file importFile
			if err := json.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("parse table file %s: %w", args[2], err)
			}

			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				v := version
				if v <= 0 {
					highest, err := st.HighestVersion(cmd.Context(), args[0], kind)
					if err != nil {
						return err
					}
					v = highest + 1
				}
				table := tables.Table{Kind: kind, Version: v, Rows: make([]tables.Row, 0, len(file.Rows))}
				for _, r := range file.Rows {
					table.Rows = append(table.Rows, tables.Row{
						Antenna:      r.Antenna,
						Time:         r.Time,
						TimeInterval: r.TimeInterval,
						SourceID:     r.SourceID,
						Weights:      tables.FromWire(r.Weights),
						Reference:    r.Reference,
					})
				}
				if err := st.Put(cmd.Context(), args[0], table); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s %d into %s (%d rows)\n", kind, v, args[0], len(table.Rows))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "Version to write (default next free)")
	return cmd
}

func newTablesCopyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <dataset> <kind> <from> <to>",
		Short: "Copy one table version to a new version",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[1])
			if err != nil {
				return err
			}
			from, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid source version %q", args[2])
			}
			to, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("invalid destination version %q", args[3])
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				if err := st.Copy(cmd.Context(), args[0], kind, from, to); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Copied %s %d to %d in %s\n", kind, from, to, args[0])
				return nil
			})
		},
	}
}

func parseKind(value string) (tables.Kind, error) {
	kind := tables.Kind(strings.ToUpper(strings.TrimSpace(value)))
	switch kind {
	case tables.KindSN, tables.KindCL, tables.KindTY, tables.KindGC, tables.KindFG:
		return kind, nil
	}
	return "", fmt.Errorf("unknown table kind %q (want SN, CL, TY, GC or FG)", value)
}
