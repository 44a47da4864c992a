package solint

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"vlbical/internal/logging"
	"vlbical/internal/services"
	"vlbical/internal/solver"
	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// DefaultSampleScans bounds how many target scans are fitted per candidate.
const DefaultSampleScans = 10

// Divisors turn the longest sampled scan into the candidate intervals.
var Divisors = []float64{5.1, 4.1, 3.1, 2.1, 1}

// Status describes what happened to one candidate interval.
type Status int

const (
	Evaluated Status = iota
	SkippedTooShort
	SkippedTooLong
)

func (s Status) String() string {
	switch s {
	case Evaluated:
		return "evaluated"
	case SkippedTooShort:
		return "skipped_too_short"
	case SkippedTooLong:
		return "skipped_too_long"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Candidate is one row of the interval diagnostic table.
type Candidate struct {
	Minutes float64
	Status  Status
	// MedianSNR holds the per-antenna median across sampled scans; NaN when
	// the antenna produced no usable solution.
	MedianSNR map[vlbi.AntennaID]float64
	Passed    bool
}

// Options bounds the search.
type Options struct {
	MinMinutes    float64
	MaxMinutes    float64
	Threshold     float64
	SampleScans   int
	DelayWindowNS float64
	RateWindowMHz float64
}

// Input is one target's search problem.
type Input struct {
	Target    string
	Scans     []vlbi.Scan
	Reference vlbi.AntennaID
	// Exclude lists flagged antennas that never gate a candidate.
	Exclude []vlbi.AntennaID
}

// Result is the chosen interval with its diagnostics.
type Result struct {
	Minutes    float64
	Candidates []Candidate
	Sampled    []vlbi.ScanID
	// Fallback is set when no candidate cleared the threshold.
	Fallback       bool
	FallbackReason string
}

// Optimizer searches for the shortest interval at which every antenna of
// the target clears the detection threshold.
type Optimizer struct {
	Solver  solver.FringeSolver
	Options Options
}

// New builds an optimizer with defaults applied.
func New(s solver.FringeSolver, opts Options) *Optimizer {
	if opts.SampleScans <= 0 {
		opts.SampleScans = DefaultSampleScans
	}
	return &Optimizer{Solver: s, Options: opts}
}

// Candidates returns the rounded candidate intervals for a longest scan of
// lengthMinutes, ascending.
func Candidates(lengthMinutes float64) []float64 {
	out := make([]float64, len(Divisors))
	for i, d := range Divisors {
		out[i] = vlbi.Round(lengthMinutes/d, 2)
	}
	return out
}

// Optimize samples the target scans with rng, evaluates candidates in
// ascending order and stops at the first that passes. Without a passing
// candidate it falls back to the longest evaluated one, or to the scan
// length clamped into bounds when nothing was evaluated.
func (o *Optimizer) Optimize(ctx context.Context, sess *tables.Session, in Input, rng *rand.Rand) (Result, error) {
	ctx = services.WithStage(services.WithTarget(ctx, in.Target), "solint")
	logger := logging.WithContext(ctx, logging.NewComponentLogger(sess.Log(), "solint"))

	if len(in.Scans) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, "solint", "optimize", "target "+in.Target+" has no scans", nil)
	}
	if o.Options.MinMinutes > o.Options.MaxMinutes {
		return Result{}, services.Wrap(services.ErrValidation, "solint", "optimize",
			fmt.Sprintf("min %.2f above max %.2f", o.Options.MinMinutes, o.Options.MaxMinutes), nil)
	}

	sampled, err := sample(in.Scans, o.Options.SampleScans, rng)
	if err != nil {
		return Result{}, err
	}
	var result Result
	longest := 0.0
	for _, s := range sampled {
		result.Sampled = append(result.Sampled, s.ID)
		longest = math.Max(longest, s.Minutes())
	}

	exclude := make(map[vlbi.AntennaID]struct{}, len(in.Exclude)+1)
	for _, id := range in.Exclude {
		exclude[id] = struct{}{}
	}
	exclude[in.Reference] = struct{}{}

	chosen := -1
	lastEvaluated := -1
	for _, minutes := range Candidates(longest) {
		cand := Candidate{Minutes: minutes}
		switch {
		case minutes < o.Options.MinMinutes:
			cand.Status = SkippedTooShort
		case minutes > o.Options.MaxMinutes:
			cand.Status = SkippedTooLong
		default:
			cand.Status = Evaluated
			cand.MedianSNR, err = o.evaluate(ctx, sess, in, sampled, minutes, exclude)
			if err != nil {
				return result, err
			}
			cand.Passed = passes(cand.MedianSNR, o.Options.Threshold)
			lastEvaluated = len(result.Candidates)
		}
		logger.Debug("solution interval candidate",
			logging.Float64("minutes", minutes),
			logging.String("status", cand.Status.String()),
			logging.Bool("passed", cand.Passed),
			logging.Int("antennas", len(cand.MedianSNR)),
		)
		result.Candidates = append(result.Candidates, cand)
		if cand.Passed {
			chosen = len(result.Candidates) - 1
			break
		}
	}

	switch {
	case chosen >= 0:
		result.Minutes = result.Candidates[chosen].Minutes
		logging.Decision(logger, "solution interval selected", "solint", formatMinutes(result.Minutes),
			"shortest interval with every antenna above threshold",
			logging.Float64("longest_scan_minutes", longest),
			logging.Int("sampled_scans", len(sampled)),
		)
	case lastEvaluated >= 0:
		result.Minutes = result.Candidates[lastEvaluated].Minutes
		result.Fallback = true
		result.FallbackReason = "no candidate cleared the threshold; longest evaluated candidate used"
	default:
		result.Minutes = clamp(longest, o.Options.MinMinutes, o.Options.MaxMinutes)
		result.Fallback = true
		result.FallbackReason = "no candidate within bounds; scan length clamped to bounds"
	}
	if result.Fallback {
		logging.WarnWithContext(logger, "solution interval fallback", "solint_fallback",
			logging.Float64("minutes", result.Minutes),
			logging.String(logging.FieldDecisionType, "solint"),
			logging.String(logging.FieldDecisionResult, formatMinutes(result.Minutes)),
			logging.String(logging.FieldDecisionReason, result.FallbackReason),
			logging.String(logging.FieldImpact, "target fitted at a fallback interval"),
		)
	}
	return result, nil
}

func (o *Optimizer) evaluate(ctx context.Context, sess *tables.Session, in Input, sampled []vlbi.Scan, minutes float64, exclude map[vlbi.AntennaID]struct{}) (map[vlbi.AntennaID]float64, error) {
	perAntenna := make(map[vlbi.AntennaID][]float64)
	for _, sc := range sampled {
		version, err := sess.NextVersion(ctx, tables.KindSN)
		if err != nil {
			return nil, err
		}
		table, err := o.Solver.FringeFit(ctx, sess, solver.Request{
			Reference:        in.Reference,
			Sources:          []string{in.Target},
			Window:           solver.ScanWindow(sc),
			SolutionInterval: minutes,
			DelayWindowNS:    o.Options.DelayWindowNS,
			RateWindowMHz:    o.Options.RateWindowMHz,
			OutputVersion:    version,
		})
		if err != nil {
			sess.Discard(context.WithoutCancel(ctx), tables.KindSN, version)
			return nil, services.Wrap(services.ErrSolverInvocation, "solint", "fringe fit",
				fmt.Sprintf("scan %d at %.2f min", sc.ID, minutes), err)
		}
		for id, samples := range table.SamplesByAntenna() {
			if _, skip := exclude[id]; skip {
				continue
			}
			perAntenna[id] = append(perAntenna[id], samples...)
		}
		sess.Discard(ctx, tables.KindSN, version)
	}
	medians := make(map[vlbi.AntennaID]float64, len(perAntenna))
	for id, samples := range perAntenna {
		medians[id] = vlbi.Median(samples)
	}
	return medians, nil
}

// passes requires at least one antenna and every median above threshold.
func passes(medians map[vlbi.AntennaID]float64, threshold float64) bool {
	if len(medians) == 0 {
		return false
	}
	for _, m := range medians {
		if math.IsNaN(m) || m <= threshold {
			return false
		}
	}
	return true
}

// sample draws up to n scans with rng, keeping time order.
func sample(scans []vlbi.Scan, n int, rng *rand.Rand) ([]vlbi.Scan, error) {
	if len(scans) <= n {
		return slices.Clone(scans), nil
	}
	if rng == nil {
		return nil, services.Wrap(services.ErrValidation, "solint", "sample", "a seeded generator is required", nil)
	}
	idx := rng.Perm(len(scans))[:n]
	slices.Sort(idx)
	out := make([]vlbi.Scan, n)
	for i, j := range idx {
		out[i] = scans[j]
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func formatMinutes(m float64) string {
	return fmt.Sprintf("%.2fmin", m)
}
