package refant

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"

	"vlbical/internal/logging"
	"vlbical/internal/services"
	"vlbical/internal/solver"
	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// DefaultMaxSearchAntennas caps the alternate anchors offered per trial fit.
const DefaultMaxSearchAntennas = 10

// Method records how the reference antenna was chosen.
type Method string

const (
	MethodRanked   Method = "ranked"
	MethodForced   Method = "forced"
	MethodOverride Method = "override"
	MethodPriority Method = "priority"
	MethodCentral  Method = "central"
)

// Options configures ranking and its manual fallbacks.
type Options struct {
	// Override is the station code tried first when ranking finds no
	// candidate.
	Override string
	// Forced uses Override without ranking.
	Forced bool
	// Priority lists centrally located stations tried after Override.
	Priority          []string
	MaxSearchAntennas int
	DelayWindowNS     float64
	RateWindowMHz     float64
}

// Input is what one ranking run sees.
type Input struct {
	Array *vlbi.Array
	// Candidates defaults to every antenna in Array.
	Candidates []vlbi.AntennaID
	// TargetScans are the science target scans every candidate must be present in.
	TargetScans []vlbi.Scan
	// Sources are fitted in each trial; empty means all sources.
	Sources []string
}

// Score is one candidate's diagnostic row.
type Score struct {
	Antenna vlbi.AntennaID
	// Score is the median of the per-baseline medians, NaN without baselines.
	Score     float64
	Baselines map[vlbi.AntennaID]float64
	Err       error
}

// Result is the ranking verdict.
type Result struct {
	Reference vlbi.AntennaID
	Method    Method
	// Scores holds every ranked candidate's score.
	Scores map[vlbi.AntennaID]float64
	// Ranking is ordered best first.
	Ranking []Score
	// Excluded lists candidates absent from at least one target scan.
	Excluded []vlbi.AntennaID
}

// Ranker chooses the reference antenna by trial fringe fits.
type Ranker struct {
	Solver  solver.FringeSolver
	Options Options
}

// New builds a ranker with defaults applied.
func New(s solver.FringeSolver, opts Options) *Ranker {
	if opts.MaxSearchAntennas <= 0 {
		opts.MaxSearchAntennas = DefaultMaxSearchAntennas
	}
	return &Ranker{Solver: s, Options: opts}
}

// Rank scores every candidate present in all target scans and returns the
// best one. Ties go to the lowest antenna id and NaN scores rank last. When
// no candidate survives the coverage requirement the override chain decides.
func (r *Ranker) Rank(ctx context.Context, sess *tables.Session, in Input) (Result, error) {
	ctx = services.WithStage(ctx, "refant")
	logger := logging.WithContext(ctx, logging.NewComponentLogger(sess.Log(), "refant"))

	if r.Options.Forced && r.Options.Override != "" {
		if id, ok := in.Array.Lookup(r.Options.Override); ok {
			logging.Decision(logger, "reference antenna forced", "refant", in.Array.Name(id), "forced override",
				logging.String("method", string(MethodForced)))
			return Result{Reference: id, Method: MethodForced, Scores: map[vlbi.AntennaID]float64{}}, nil
		}
		logging.WarnWithContext(logger, "forced reference antenna not in dataset; ranking instead", "refant_override_missing",
			logging.String("override", r.Options.Override),
			logging.String(logging.FieldImpact, "reference antenna chosen by ranking"),
		)
	}

	candidates := in.Candidates
	if len(candidates) == 0 {
		candidates = in.Array.IDs()
	}
	survivors, excluded := presentInAll(candidates, in.TargetScans)
	result := Result{Scores: make(map[vlbi.AntennaID]float64, len(survivors)), Excluded: excluded}
	for _, id := range excluded {
		logger.Debug("candidate excluded for partial coverage", logging.String(logging.FieldAntenna, in.Array.Name(id)))
	}

	if len(survivors) == 0 {
		id, method, err := fallback(in.Array, r.Options)
		if err != nil {
			return result, err
		}
		result.Reference, result.Method = id, method
		logging.Decision(logger, "reference antenna selected by fallback", "refant", in.Array.Name(id),
			"no candidate present in every target scan", logging.String("method", string(method)))
		return result, nil
	}

	for _, cand := range survivors {
		score, err := r.trial(ctx, sess, in, cand, survivors)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			logging.WarnWithContext(logger, "trial fringe fit failed; candidate unranked", "refant_trial_failed",
				logging.String(logging.FieldAntenna, in.Array.Name(cand)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "candidate scored NaN"),
			)
		}
		result.Ranking = append(result.Ranking, score)
		result.Scores[cand] = score.Score
		logger.Debug("candidate scored",
			logging.String(logging.FieldAntenna, in.Array.Name(cand)),
			logging.Float64("score", score.Score),
			logging.Int("baselines", len(score.Baselines)),
		)
	}
	sortRanking(result.Ranking)

	if math.IsNaN(result.Ranking[0].Score) {
		id, method, err := fallback(in.Array, r.Options)
		if err != nil {
			return result, err
		}
		result.Reference, result.Method = id, method
		logging.Decision(logger, "reference antenna selected by fallback", "refant", in.Array.Name(id),
			"no candidate produced a finite score", logging.String("method", string(method)),
			logging.Int("candidates", len(result.Ranking)))
		return result, nil
	}

	result.Reference = result.Ranking[0].Antenna
	result.Method = MethodRanked
	logging.Decision(logger, "reference antenna selected", "refant", in.Array.Name(result.Reference),
		"highest median baseline snr",
		logging.Float64("score", result.Ranking[0].Score),
		logging.Int("candidates", len(result.Ranking)),
		logging.Int("excluded", len(excluded)),
	)
	return result, nil
}

func (r *Ranker) trial(ctx context.Context, sess *tables.Session, in Input, cand vlbi.AntennaID, survivors []vlbi.AntennaID) (Score, error) {
	score := Score{Antenna: cand, Score: math.NaN()}
	others := slices.DeleteFunc(slices.Clone(survivors), func(id vlbi.AntennaID) bool { return id == cand })
	version, err := sess.NextVersion(ctx, tables.KindSN)
	if err != nil {
		score.Err = err
		return score, err
	}
	req := solver.Request{
		Reference:      cand,
		Sources:        slices.Clone(in.Sources),
		DelayWindowNS:  r.Options.DelayWindowNS,
		RateWindowMHz:  r.Options.RateWindowMHz,
		StopAtFFT:      true,
		SearchAntennas: in.Array.NearestCenter(others, r.Options.MaxSearchAntennas),
		OutputVersion:  version,
	}
	table, err := r.Solver.FringeFit(ctx, sess, req)
	sess.Discard(context.WithoutCancel(ctx), tables.KindSN, version)
	if err != nil {
		score.Err = err
		return score, fmt.Errorf("trial fit with reference %d: %w", cand, err)
	}

	score.Baselines = make(map[vlbi.AntennaID]float64)
	for id, samples := range table.SamplesByAntenna() {
		if id == cand {
			continue
		}
		score.Baselines[id] = vlbi.Median(samples)
	}
	score.Score = vlbi.Median(slices.Collect(maps.Values(score.Baselines)))
	return score, nil
}

// presentInAll splits candidates into those present in every scan and the rest.
func presentInAll(candidates []vlbi.AntennaID, scans []vlbi.Scan) (survivors, excluded []vlbi.AntennaID) {
	ids := slices.Clone(candidates)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	for _, id := range ids {
		ok := true
		for _, s := range scans {
			if !s.Has(id) {
				ok = false
				break
			}
		}
		if ok {
			survivors = append(survivors, id)
		} else {
			excluded = append(excluded, id)
		}
	}
	return survivors, excluded
}

func sortRanking(ranking []Score) {
	slices.SortStableFunc(ranking, func(a, b Score) int {
		an, bn := math.IsNaN(a.Score), math.IsNaN(b.Score)
		switch {
		case an && !bn:
			return 1
		case !an && bn:
			return -1
		case !an && !bn && a.Score != b.Score:
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return int(a.Antenna - b.Antenna)
	})
}

// fallback walks the manual chain: override code, then the priority list.
func fallback(arr *vlbi.Array, opts Options) (vlbi.AntennaID, Method, error) {
	if opts.Override != "" {
		if id, ok := arr.Lookup(opts.Override); ok {
			return id, MethodOverride, nil
		}
	}
	for _, code := range opts.Priority {
		if id, ok := arr.Lookup(code); ok {
			return id, MethodPriority, nil
		}
	}
	return 0, "", services.Wrap(services.ErrNoReferenceAntenna, "refant", "fallback",
		fmt.Sprintf("override %q and %d priority stations absent from dataset", opts.Override, len(opts.Priority)), nil)
}

// Provisional picks the reference for the initial SNR survey, before any
// scan facts exist: override, priority list, then the antenna nearest the
// array centre.
func Provisional(arr *vlbi.Array, opts Options) (vlbi.AntennaID, Method, error) {
	if id, method, err := fallback(arr, opts); err == nil {
		return id, method, nil
	}
	central := arr.NearestCenter(arr.IDs(), 1)
	if len(central) == 0 {
		return 0, "", services.Wrap(services.ErrNoReferenceAntenna, "refant", "provisional", "dataset has no antennas", nil)
	}
	return central[0], MethodCentral, nil
}
