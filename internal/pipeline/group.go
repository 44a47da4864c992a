package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"vlbical/internal/config"
	"vlbical/internal/coverage"
	"vlbical/internal/logging"
	"vlbical/internal/preflight"
	"vlbical/internal/refant"
	"vlbical/internal/scans"
	"vlbical/internal/services"
	"vlbical/internal/solver"
	"vlbical/internal/store"
	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// groupRun carries the state shared by the stages of one group.
type groupRun struct {
	*Runner
	runID  string
	group  config.Group
	sess   *tables.Session
	logger *slog.Logger
	array  *vlbi.Array
	report *GroupReport
}

func (r *Runner) runGroup(ctx context.Context, base *slog.Logger, runID string, group config.Group) GroupReport {
	ctx = services.WithGroup(ctx, group.Name)
	report := GroupReport{Group: group.Name, Dataset: group.Dataset}

	logger := base
	if r.Config.Paths.LogDir != "" {
		report.LogPath = logging.GroupLogPath(r.Config, runID, group.Name)
		handler, closer, err := logging.NewFileHandler(report.LogPath, r.Config.Logging.Format, r.Config.Logging.Level)
		if err != nil {
			logging.WarnWithContext(base, "group log unavailable", "group_log_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "group output only in the combined log"),
			)
			report.LogPath = ""
		} else {
			defer closer.Close()
			logger = logging.TeeLogger(base, handler)
		}
	}
	logger = logging.WithContext(ctx, logger)

	g := &groupRun{Runner: r, runID: runID, group: group, logger: logger, report: &report}
	if err := g.run(ctx); err != nil {
		report.Err = err
		logging.ErrorWithContext(logger, "frequency group aborted", "group_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldImpact, "no targets of this group exported"),
		)
		g.decide(ctx, "", "group", "group", "aborted", services.Kind(err), map[string]any{"error": err.Error()})
		return report
	}
	logger.Info("frequency group complete",
		logging.Int("targets", len(report.Targets)),
		logging.Int("excluded", len(report.Excluded)),
	)
	return report
}

func (g *groupRun) run(ctx context.Context) error {
	lock, err := store.AcquireDatasetLock(g.Config.Paths.LockDir, g.group.Dataset)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "lock", g.group.Dataset, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			g.logger.Warn("dataset lock not released", logging.Error(err), logging.String("lock", lock.Path()))
		}
	}()

	sess, err := tables.NewSession(g.group.Dataset, g.runID, g.Tables, g.logger)
	if err != nil {
		return err
	}
	g.sess = sess

	results := preflight.RunAll(ctx, g.Config, sess)
	for _, res := range results {
		g.logger.Debug("preflight check", logging.String("check", res.Name), logging.Bool("passed", res.Passed), logging.String("detail", res.Detail))
	}
	if err := preflight.Err(results); err != nil {
		return err
	}

	antennas, err := g.Toolkit.Antennas(ctx, sess)
	if err != nil {
		return err
	}
	if len(antennas) == 0 {
		return services.Wrap(services.ErrNoReferenceAntenna, "pipeline", "antennas", "dataset lists no antennas", nil)
	}
	g.array = vlbi.NewArray(antennas)

	prov, method, err := refant.Provisional(g.array, g.refantOptions())
	if err != nil {
		return err
	}
	catalog, err := g.survey(ctx, prov, string(method))
	if err != nil {
		return err
	}

	ranked, err := refant.New(g.Toolkit, g.refantOptions()).Rank(ctx, sess, refant.Input{
		Array:       g.array,
		Candidates:  catalog.Antennas(),
		TargetScans: catalog.ForSources(g.group.Targets...),
		Sources:     g.sources(),
	})
	if err != nil {
		return err
	}
	g.report.Reference = ranked
	g.report.ReferenceName = g.array.Name(ranked.Reference)
	g.decide(ctx, "", "refant", "reference_antenna", g.report.ReferenceName, string(ranked.Method), scoreDetail(g.array, ranked))

	// Survey SNRs are relative to the survey reference; coverage needs them
	// relative to the chosen one.
	if ranked.Reference != prov {
		catalog, err = g.survey(ctx, ranked.Reference, string(ranked.Method))
		if err != nil {
			return err
		}
	}

	selector := &coverage.Selector{Flagger: g.Toolkit, Threshold: g.threshold()}
	cov, err := selector.Select(ctx, sess, calibratorScans(catalog, g.group.Calibrators), ranked.Reference)
	if err != nil {
		return err
	}
	g.report.Coverage = cov
	if len(cov.Uncoverable) > 0 {
		g.decide(ctx, "", "coverage", "uncoverable", strings.Join(antennaNames(g.array, cov.Uncoverable), ","), "flagged "+solver.FlagReasonUncoverable, nil)
	}
	if cov.Empty() {
		return services.Wrap(services.ErrNoCalibrators, "pipeline", "coverage",
			fmt.Sprintf("%d antennas uncoverable", len(cov.Uncoverable)), nil)
	}
	for _, s := range cov.Scans {
		g.decide(ctx, "", "coverage", "calibration_scan", s.SourceName, fmt.Sprintf("scan %d", s.ID),
			map[string]any{"scan": int(s.ID), "antennas": antennaNames(g.array, s.CalibAntennas)})
	}

	if err := g.instrumental(ctx, cov); err != nil {
		return err
	}

	for _, target := range g.group.Targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tr, err := g.target(ctx, catalog, cov, target)
		g.report.Targets = append(g.report.Targets, tr)
		if err != nil {
			return err
		}
	}
	return nil
}

// survey runs a quick fringe search over every source against ref and
// builds the scan catalog from it.
func (g *groupRun) survey(ctx context.Context, ref vlbi.AntennaID, method string) (*scans.Catalog, error) {
	ctx = services.WithStage(ctx, "survey")
	others := slices.DeleteFunc(g.array.IDs(), func(id vlbi.AntennaID) bool { return id == ref })

	version, err := g.sess.NextVersion(ctx, tables.KindSN)
	if err != nil {
		return nil, err
	}
	table, err := g.Toolkit.FringeFit(ctx, g.sess, solver.Request{
		Reference:      ref,
		Sources:        g.sources(),
		DelayWindowNS:  g.Config.Solver.DelayWindowNS,
		RateWindowMHz:  g.Config.Solver.RateWindowMHz,
		StopAtFFT:      true,
		SearchAntennas: g.array.NearestCenter(others, g.refantOptions().MaxSearchAntennas),
		OutputVersion:  version,
	})
	defer g.sess.Discard(context.WithoutCancel(ctx), tables.KindSN, version)
	if err != nil {
		return nil, err
	}

	g.logger.Info("snr survey complete",
		logging.String("reference", g.array.Name(ref)),
		logging.String("method", method),
		logging.Int("rows", len(table.Rows)),
	)
	catalog, err := scans.Build(ctx, g.sess, table.Rows, g.Toolkit, g.threshold())
	if err != nil {
		return nil, err
	}
	medians := make(map[string]any, catalog.Len())
	for _, s := range catalog.Timeline() {
		medians[strconv.Itoa(int(s.ID))] = nanToNil(catalog.Median(s.ID))
	}
	g.decide(ctx, "", "survey", "scan_catalog", fmt.Sprintf("%d scans", len(catalog.Ranked())),
		fmt.Sprintf("median snr above %g", catalog.Threshold()),
		map[string]any{"grouped": catalog.Len(), "reference": g.array.Name(ref), "median_snr": medians})
	return catalog, nil
}

func (g *groupRun) refantOptions() refant.Options {
	rc := g.Config.ReferenceAntenna
	return refant.Options{
		Override:          rc.Override,
		Forced:            rc.Forced,
		Priority:          rc.Priority,
		MaxSearchAntennas: rc.MaxSearchAntennas,
		DelayWindowNS:     g.Config.Solver.DelayWindowNS,
		RateWindowMHz:     g.Config.Solver.RateWindowMHz,
	}
}

func (g *groupRun) threshold() float64 {
	if g.Config.Quality.DetectionSNR > 0 {
		return g.Config.Quality.DetectionSNR
	}
	return scans.DefaultThreshold
}

func (g *groupRun) sources() []string {
	out := append([]string(nil), g.group.Calibrators...)
	return append(out, g.group.Targets...)
}

// decide mirrors a stage decision into the ledger. Ledger failures are
// logged, not returned.
func (g *groupRun) decide(ctx context.Context, target, stage, decisionType, result, reason string, detail map[string]any) {
	err := g.Ledger.RecordDecision(ctx, store.Decision{
		RunID:  g.runID,
		Group:  g.group.Name,
		Target: target,
		Stage:  stage,
		Type:   decisionType,
		Result: result,
		Reason: reason,
		Detail: detail,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(g.logger, "decision not recorded", "ledger_write_failed",
			logging.String(logging.FieldDecisionType, decisionType),
			logging.Error(err),
			logging.String(logging.FieldImpact, "decision missing from vlbical show"),
		)
	}
}

func (g *groupRun) exclude(ctx context.Context, target string, err error) {
	g.report.Excluded = append(g.report.Excluded, target)
	if lerr := g.Ledger.RecordExclusion(ctx, store.Exclusion{
		RunID:     g.runID,
		Group:     g.group.Name,
		Target:    target,
		ErrorKind: services.Kind(err),
		Reason:    err.Error(),
	}); lerr != nil {
		logging.WarnWithContext(g.logger, "exclusion not recorded", "ledger_write_failed",
			logging.String(logging.FieldTarget, target),
			logging.Error(lerr),
			logging.String(logging.FieldImpact, "exclusion missing from vlbical show"),
		)
	}
}

// calibratorScans keeps the ranked scans of the named calibrators, in rank
// order. With no calibrators configured every ranked scan is eligible.
func calibratorScans(catalog *scans.Catalog, names []string) []vlbi.Scan {
	ranked := catalog.Ranked()
	if len(names) == 0 {
		return ranked
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[vlbi.NormalizeCode(n)] = struct{}{}
	}
	var out []vlbi.Scan
	for _, s := range ranked {
		if _, ok := want[vlbi.NormalizeCode(s.SourceName)]; ok {
			out = append(out, s)
		}
	}
	return out
}

func antennaNames(arr *vlbi.Array, ids []vlbi.AntennaID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = arr.Name(id)
	}
	return out
}

func scoreDetail(arr *vlbi.Array, res refant.Result) map[string]any {
	scores := make(map[string]any, len(res.Ranking))
	for _, s := range res.Ranking {
		scores[arr.Name(s.Antenna)] = nanToNil(s.Score)
	}
	detail := map[string]any{"scores": scores}
	if len(res.Excluded) > 0 {
		detail["excluded"] = antennaNames(arr, res.Excluded)
	}
	return detail
}
