package pipeline

import (
	"context"
	"errors"
	"fmt"

	"vlbical/internal/coverage"
	"vlbical/internal/logging"
	"vlbical/internal/services"
	"vlbical/internal/solver"
	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// instrumental solves the instrumental delays on each calibration scan, merges
// the per-scan tables into one SN version and applies it to a new CL version.
func (g *groupRun) instrumental(ctx context.Context, cov coverage.Result) error {
	ctx = services.WithStage(ctx, "instrumental")
	logger := logging.WithContext(ctx, g.logger)

	byScan := make(map[vlbi.ScanID]tables.Table, len(cov.Scans))
	var scratch []int
	defer func() {
		for _, v := range scratch {
			g.sess.Discard(ctx, tables.KindSN, v)
		}
	}()

	for _, scan := range cov.Scans {
		table, version, err := g.fitCalibrationScan(ctx, scan, scan.CalibAntennas)
		if errors.Is(err, services.ErrSolverInvocation) && ctx.Err() == nil {
			logging.WarnWithContext(logger, "instrumental fit failed; retrying with every antenna in the scan", "instrumental_retry",
				logging.Int("scan", int(scan.ID)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "solutions may include antennas covered by other scans"),
			)
			table, version, err = g.fitCalibrationScan(ctx, scan, scan.Antennas)
		}
		if err != nil {
			return fmt.Errorf("instrumental fit on scan %d: %w", scan.ID, err)
		}
		scratch = append(scratch, version)
		byScan[scan.ID] = table
	}

	merged, err := coverage.Merge(byScan, cov.Scans, cov.Reference)
	if err != nil {
		return err
	}
	version, err := g.sess.NextVersion(ctx, tables.KindSN)
	if err != nil {
		return err
	}
	merged.Version = version
	if err := g.sess.Put(ctx, merged); err != nil {
		return fmt.Errorf("store instrumental SN: %w", err)
	}
	cl, err := g.sess.Apply(ctx, version, g.applyOptions(0))
	if err != nil {
		return fmt.Errorf("apply instrumental SN %d: %w", version, err)
	}
	g.report.InstrumentalSN = version
	g.report.InstrumentalCL = cl

	logging.Decision(logger, "instrumental calibration applied", "instrumental", fmt.Sprintf("CL %d", cl),
		"merged calibration scan solutions",
		logging.Int("sn_version", version),
		logging.Int("scans", len(cov.Scans)),
	)
	g.decide(ctx, "", "instrumental", "instrumental", fmt.Sprintf("CL %d", cl), "merged calibration scan solutions",
		map[string]any{"sn_version": version, "scans": len(cov.Scans)})
	return nil
}

func (g *groupRun) fitCalibrationScan(ctx context.Context, scan vlbi.Scan, antennas []vlbi.AntennaID) (tables.Table, int, error) {
	version, err := g.sess.NextVersion(ctx, tables.KindSN)
	if err != nil {
		return tables.Table{}, 0, err
	}
	table, err := g.Toolkit.FringeFit(ctx, g.sess, solver.Request{
		Reference:          g.report.Coverage.Reference,
		Sources:            []string{scan.SourceName},
		Window:             solver.ScanWindow(scan),
		DelayWindowNS:      g.Config.Solver.DelayWindowNS,
		RateWindowMHz:      g.Config.Solver.RateWindowMHz,
		AntennaRestriction: antennas,
		OutputVersion:      version,
	})
	if err != nil {
		return tables.Table{}, 0, err
	}
	return table, version, nil
}

func (g *groupRun) applyOptions(base int) tables.ApplyOptions {
	return tables.ApplyOptions{
		BaseVersion:   base,
		Interpolation: g.Config.Tables.Interpolation,
		CutoffMinutes: g.Config.Tables.CutoffMinutes,
	}
}
