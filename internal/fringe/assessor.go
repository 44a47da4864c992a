package fringe

import (
	"context"
	"fmt"

	"vlbical/internal/logging"
	"vlbical/internal/services"
	"vlbical/internal/solver"
	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// DefaultAcceptRatio is the primary ratio that skips the fallback attempt.
const DefaultAcceptRatio = 0.99

// State is the assessor's position in the retry state machine.
type State int

const (
	NotAttempted State = iota
	AttemptedPrimary
	AttemptedFallback
	Accepted
	Failed
)

func (s State) String() string {
	switch s {
	case NotAttempted:
		return "not_attempted"
	case AttemptedPrimary:
		return "attempted_primary"
	case AttemptedFallback:
		return "attempted_fallback"
	case Accepted:
		return "accepted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mode distinguishes the two fit strategies.
type Mode string

const (
	// ModeIndependentIFs solves every IF separately.
	ModeIndependentIFs Mode = "independent_ifs"
	// ModeAveragedIFs solves all IFs together.
	ModeAveragedIFs Mode = "averaged_ifs"
)

// Attempt is the tagged result of one fringe fit: either a table with its
// outcome, or the error that prevented one.
type Attempt struct {
	Mode    Mode
	Version int
	Table   tables.Table
	Outcome Outcome
	Err     error
}

// OK reports whether the fit produced a table.
func (a *Attempt) OK() bool {
	return a != nil && a.Err == nil
}

// Ratio is the good/total ratio, zero for failed or missing attempts.
func (a *Attempt) Ratio() float64 {
	if !a.OK() {
		return 0
	}
	return a.Outcome.Ratio()
}

// Decision is the assessor's verdict for one target.
type Decision struct {
	Target   string
	State    State
	Path     []State
	Primary  *Attempt
	Fallback *Attempt
	// Accepted points at Primary or Fallback when State is Accepted.
	Accepted *Attempt
}

// Ratio returns the accepted table's ratio, zero when failed.
func (d Decision) Ratio() float64 {
	return d.Accepted.Ratio()
}

// Version returns the accepted SN table version, zero when failed.
func (d Decision) Version() int {
	if d.Accepted == nil {
		return 0
	}
	return d.Accepted.Version
}

// Err is non-nil when the target is unsalvageable.
func (d Decision) Err() error {
	if d.State != Failed {
		return nil
	}
	return services.Wrap(services.ErrFringeFitUnsalvageable, "fringe", "assess",
		fmt.Sprintf("target %s: primary and fallback produced no good solutions", d.Target), nil)
}

func (d *Decision) move(s State) {
	d.State = s
	d.Path = append(d.Path, s)
}

// Options configures the fits and the acceptance ratio.
type Options struct {
	AcceptRatio   float64
	DelayWindowNS float64
	RateWindowMHz float64
}

// Input describes the target fit.
type Input struct {
	Target    string
	Reference vlbi.AntennaID
	Minutes   float64
	// Antennas restricts the fit; empty means all unflagged antennas.
	Antennas []vlbi.AntennaID
}

// Assessor drives the primary and fallback fits and keeps the better table.
type Assessor struct {
	Solver  solver.FringeSolver
	Options Options
}

// New builds an assessor with defaults applied.
func New(s solver.FringeSolver, opts Options) *Assessor {
	if opts.AcceptRatio <= 0 {
		opts.AcceptRatio = DefaultAcceptRatio
	}
	return &Assessor{Solver: s, Options: opts}
}

// Assess runs the state machine for one target. Solver failures become
// zero-ratio attempts; only table-store errors are returned. The losing
// table is deleted, and both are deleted when the target fails.
func (a *Assessor) Assess(ctx context.Context, sess *tables.Session, in Input) (Decision, error) {
	ctx = services.WithStage(services.WithTarget(ctx, in.Target), "fringe")
	logger := logging.WithContext(ctx, logging.NewComponentLogger(sess.Log(), "fringe"))
	d := Decision{Target: in.Target, State: NotAttempted, Path: []State{NotAttempted}}

	primary, err := a.attempt(ctx, sess, in, ModeIndependentIFs)
	if err != nil {
		return d, err
	}
	d.Primary = primary
	d.move(AttemptedPrimary)
	logger.Info("primary fringe fit",
		logging.Float64("ratio", primary.Ratio()),
		logging.Int("good", primary.Outcome.Good),
		logging.Int("total", primary.Outcome.Total),
		logging.Bool("solver_error", primary.Err != nil),
	)

	if primary.Ratio() >= a.Options.AcceptRatio {
		d.Accepted = primary
		d.move(Accepted)
		logging.Decision(logger, "fringe fit accepted", "fringe_fit", string(primary.Mode), "primary ratio at or above acceptance",
			logging.Float64("ratio", primary.Ratio()),
			logging.Float64("accept_ratio", a.Options.AcceptRatio),
			logging.Int("sn_version", primary.Version),
		)
		return d, nil
	}

	fallback, err := a.attempt(ctx, sess, in, ModeAveragedIFs)
	if err != nil {
		return d, err
	}
	d.Fallback = fallback
	d.move(AttemptedFallback)

	pr, fr := primary.Ratio(), fallback.Ratio()
	if pr+fr == 0 {
		d.move(Failed)
		discard(ctx, sess, primary)
		discard(ctx, sess, fallback)
		logging.ErrorWithContext(logger, "fringe fit unsalvageable; target excluded", "fringe_unsalvageable",
			logging.String(logging.FieldDecisionType, "fringe_fit"),
			logging.String(logging.FieldDecisionResult, "excluded"),
			logging.String(logging.FieldDecisionReason, "primary and fallback ratios are zero"),
			logging.String(logging.FieldErrorHint, "inspect the target's scans or widen the search windows"),
		)
		return d, nil
	}

	winner, loser := primary, fallback
	reason := "primary ratio not below fallback"
	if fr > pr {
		winner, loser = fallback, primary
		reason = "fallback ratio strictly higher"
	}
	discard(ctx, sess, loser)
	d.Accepted = winner
	d.move(Accepted)
	logging.Decision(logger, "fringe fit accepted", "fringe_fit", string(winner.Mode), reason,
		logging.Float64("primary_ratio", pr),
		logging.Float64("fallback_ratio", fr),
		logging.Int("sn_version", winner.Version),
	)
	return d, nil
}

func (a *Assessor) attempt(ctx context.Context, sess *tables.Session, in Input, mode Mode) (*Attempt, error) {
	version, err := sess.NextVersion(ctx, tables.KindSN)
	if err != nil {
		return nil, err
	}
	att := &Attempt{Mode: mode, Version: version}
	table, err := a.Solver.FringeFit(ctx, sess, solver.Request{
		Reference:          in.Reference,
		Sources:            []string{in.Target},
		SolutionInterval:   in.Minutes,
		DelayWindowNS:      a.Options.DelayWindowNS,
		RateWindowMHz:      a.Options.RateWindowMHz,
		AverageIFs:         mode == ModeAveragedIFs,
		AntennaRestriction: in.Antennas,
		OutputVersion:      version,
	})
	if err != nil {
		sess.Discard(context.WithoutCancel(ctx), tables.KindSN, version)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		att.Err = services.Wrap(services.ErrSolverInvocation, "fringe", string(mode), "", err)
		return att, nil
	}
	att.Table = table
	att.Outcome = Evaluate(table)
	return att, nil
}

func discard(ctx context.Context, sess *tables.Session, att *Attempt) {
	if att.OK() {
		sess.Discard(ctx, tables.KindSN, att.Version)
	}
}
