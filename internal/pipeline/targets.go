package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand/v2"

	"vlbical/internal/coverage"
	"vlbical/internal/fringe"
	"vlbical/internal/logging"
	"vlbical/internal/scans"
	"vlbical/internal/services"
	"vlbical/internal/solint"
)

// target calibrates and exports one science target. Failures confined to the
// target exclude it and return nil so siblings continue; only table store
// errors and cancellation abort the group.
func (g *groupRun) target(ctx context.Context, catalog *scans.Catalog, cov coverage.Result, name string) (TargetReport, error) {
	ctx = services.WithTarget(ctx, name)
	logger := logging.WithContext(ctx, g.logger)
	tr := TargetReport{Target: name}

	targetScans := catalog.ForSources(name)
	if len(targetScans) == 0 {
		tr.Err = services.Wrap(services.ErrNoScans, "pipeline", "target", "target has no scans in the survey", nil)
		g.excludeTarget(ctx, logger, &tr)
		return tr, nil
	}

	opt := solint.New(g.Toolkit, solint.Options{
		MinMinutes:    g.Config.Solint.MinMinutes,
		MaxMinutes:    g.Config.Solint.MaxMinutes,
		Threshold:     g.threshold(),
		SampleScans:   g.Config.Solint.SampleScans,
		DelayWindowNS: g.Config.Solver.DelayWindowNS,
		RateWindowMHz: g.Config.Solver.RateWindowMHz,
	})
	sol, err := opt.Optimize(ctx, g.sess, solint.Input{
		Target:    name,
		Scans:     targetScans,
		Reference: cov.Reference,
		Exclude:   cov.Uncoverable,
	}, targetRand(g.Config.Solint.Seed, name))
	if err != nil {
		if ctx.Err() != nil {
			return tr, ctx.Err()
		}
		tr.Err = err
		g.excludeTarget(ctx, logger, &tr)
		return tr, nil
	}
	tr.Solint = sol
	reason := "first candidate above detection threshold"
	if sol.Fallback {
		reason = sol.FallbackReason
	}
	g.decide(ctx, name, "solint", "solution_interval", formatFloat(sol.Minutes), reason, solintDetail(sol))

	assessor := fringe.New(g.Toolkit, fringe.Options{
		AcceptRatio:   g.Config.Quality.AcceptRatio,
		DelayWindowNS: g.Config.Solver.DelayWindowNS,
		RateWindowMHz: g.Config.Solver.RateWindowMHz,
	})
	decision, err := assessor.Assess(ctx, g.sess, fringe.Input{Target: name, Reference: cov.Reference, Minutes: sol.Minutes})
	if err != nil {
		return tr, err
	}
	tr.Fringe = decision
	g.decide(ctx, name, "fringe", "fringe_fit", decision.State.String(), fringeReason(decision), fringeDetail(decision))
	if err := decision.Err(); err != nil {
		tr.Err = err
		g.excludeTarget(ctx, logger, &tr)
		return tr, nil
	}

	cl, err := g.sess.Apply(ctx, decision.Version(), g.applyOptions(g.report.InstrumentalCL))
	if err != nil {
		return tr, fmt.Errorf("apply target SN %d: %w", decision.Version(), err)
	}
	tr.CLVersion = cl

	if err := g.Toolkit.Export(ctx, g.sess, name, cl); err != nil {
		if ctx.Err() != nil {
			return tr, ctx.Err()
		}
		tr.Err = err
		g.excludeTarget(ctx, logger, &tr)
		return tr, nil
	}
	tr.Exported = true
	logger.Info("target exported",
		logging.Int("cl_version", cl),
		logging.Float64("solint_minutes", sol.Minutes),
		logging.Float64("ratio", decision.Ratio()),
	)
	g.decide(ctx, name, "export", "export", "exported", fmt.Sprintf("CL %d", cl), nil)
	return tr, nil
}

func (g *groupRun) excludeTarget(ctx context.Context, logger *slog.Logger, tr *TargetReport) {
	g.exclude(ctx, tr.Target, tr.Err)
	logging.WarnWithContext(logger, "target excluded from export", "target_excluded",
		logging.Error(tr.Err),
		logging.String(logging.FieldErrorKind, services.Kind(tr.Err)),
		logging.String(logging.FieldImpact, "target not exported this run"),
	)
}

// targetRand seeds one generator per target so adding a target never changes
// another target's sampled scans.
func targetRand(seed uint64, target string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(target))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

func solintDetail(sol solint.Result) map[string]any {
	candidates := make([]map[string]any, 0, len(sol.Candidates))
	for _, c := range sol.Candidates {
		entry := map[string]any{"minutes": c.Minutes, "status": c.Status.String(), "passed": c.Passed}
		if len(c.MedianSNR) > 0 {
			medians := make(map[string]any, len(c.MedianSNR))
			for id, m := range c.MedianSNR {
				medians[fmt.Sprint(int(id))] = nanToNil(m)
			}
			entry["median_snr"] = medians
		}
		candidates = append(candidates, entry)
	}
	sampled := make([]int, len(sol.Sampled))
	for i, id := range sol.Sampled {
		sampled[i] = int(id)
	}
	return map[string]any{"candidates": candidates, "sampled_scans": sampled, "fallback": sol.Fallback}
}

func fringeReason(d fringe.Decision) string {
	switch {
	case d.State == fringe.Failed:
		return "primary and fallback ratios are zero"
	case d.Accepted == d.Primary && d.Fallback == nil:
		return "primary ratio at or above acceptance"
	case d.Accepted == d.Primary:
		return "primary ratio not below fallback"
	default:
		return "fallback ratio strictly higher"
	}
}

func fringeDetail(d fringe.Decision) map[string]any {
	detail := map[string]any{"primary_ratio": d.Primary.Ratio()}
	if d.Fallback != nil {
		detail["fallback_ratio"] = d.Fallback.Ratio()
	}
	if d.Accepted != nil {
		detail["sn_version"] = d.Accepted.Version
		detail["mode"] = string(d.Accepted.Mode)
	}
	return detail
}

func nanToNil(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
