package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"vlbical/internal/config"
	"vlbical/internal/coverage"
	"vlbical/internal/fringe"
	"vlbical/internal/logging"
	"vlbical/internal/refant"
	"vlbical/internal/services"
	"vlbical/internal/solint"
	"vlbical/internal/solver"
	"vlbical/internal/store"
	"vlbical/internal/tables"
)

// Ledger records run lifecycle and decisions. *store.Store implements it.
type Ledger interface {
	RecordRun(ctx context.Context, id, configPath string) error
	FinishRun(ctx context.Context, id string, status store.RunStatus, message string) error
	RecordDecision(ctx context.Context, d store.Decision) error
	RecordExclusion(ctx context.Context, e store.Exclusion) error
}

// Runner calibrates frequency groups one after another.
type Runner struct {
	Config     *config.Config
	ConfigPath string
	Tables     tables.Store
	Ledger     Ledger
	Toolkit    solver.Toolkit
	Logger     *slog.Logger
	// NewRunID overrides uuid generation in tests.
	NewRunID func() string
}

// TargetReport is the outcome for one science target.
type TargetReport struct {
	Target    string
	Solint    solint.Result
	Fringe    fringe.Decision
	CLVersion int
	Exported  bool
	Err       error
}

// GroupReport is the outcome for one frequency group.
type GroupReport struct {
	Group          string
	Dataset        string
	LogPath        string
	Reference      refant.Result
	ReferenceName  string
	Coverage       coverage.Result
	InstrumentalSN int
	InstrumentalCL int
	Targets        []TargetReport
	Excluded       []string
	Err            error
}

// Report summarises a run.
type Report struct {
	RunID  string
	Status store.RunStatus
	Groups []GroupReport
}

// Excluded lists every excluded target across groups as group/target.
func (r Report) Excluded() []string {
	var out []string
	for _, g := range r.Groups {
		for _, t := range g.Excluded {
			out = append(out, g.Group+"/"+t)
		}
	}
	return out
}

func (r *Runner) validate() error {
	switch {
	case r.Config == nil:
		return errors.New("pipeline: config is required")
	case r.Tables == nil:
		return errors.New("pipeline: table store is required")
	case r.Ledger == nil:
		return errors.New("pipeline: ledger is required")
	case r.Toolkit == nil:
		return errors.New("pipeline: solver toolkit is required")
	}
	return nil
}

// Run processes groups sequentially. A group-fatal error stops only its own
// group; the returned error is non-nil only when the run itself could not
// proceed or ctx was cancelled.
func (r *Runner) Run(ctx context.Context, groups []config.Group) (Report, error) {
	if err := r.validate(); err != nil {
		return Report{}, err
	}
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	newID := r.NewRunID
	if newID == nil {
		newID = uuid.NewString
	}

	report := Report{RunID: newID()}
	ctx = services.WithRunID(ctx, report.RunID)
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "pipeline"))

	// Run rows are written and finalised even when ctx is cancelled.
	if err := r.Ledger.RecordRun(context.WithoutCancel(ctx), report.RunID, r.ConfigPath); err != nil {
		return report, fmt.Errorf("record run: %w", err)
	}
	if removed := logging.CleanupOldLogs(logger, r.Config.Logging.RetentionDays, filepath.Join(r.Config.Paths.LogDir, "groups"), "*.log"); removed > 0 {
		logger.Info("pruned group logs", logging.Int("removed", removed))
	}
	logger.Info("calibration run started", logging.Int("groups", len(groups)))

	for _, group := range groups {
		if ctx.Err() != nil {
			break
		}
		report.Groups = append(report.Groups, r.runGroup(ctx, logger, report.RunID, group))
	}

	report.Status = summarize(report)
	message := ""
	if ctx.Err() != nil {
		report.Status = store.RunFailed
		message = ctx.Err().Error()
	} else if report.Status != store.RunCompleted {
		message = fmt.Sprintf("%d group(s) failed, %d target(s) excluded", failedGroups(report), len(report.Excluded()))
	}
	if err := r.Ledger.FinishRun(context.WithoutCancel(ctx), report.RunID, report.Status, message); err != nil {
		logging.WarnWithContext(logger, "run status not recorded", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "vlbical show reports the run as running"),
		)
	}
	logger.Info("calibration run finished",
		logging.String("status", string(report.Status)),
		logging.Int("failed_groups", failedGroups(report)),
		logging.Int("excluded_targets", len(report.Excluded())),
	)
	return report, ctx.Err()
}

func summarize(report Report) store.RunStatus {
	if len(report.Groups) == 0 {
		return store.RunCompleted
	}
	failed := failedGroups(report)
	switch {
	case failed == len(report.Groups):
		return store.RunFailed
	case failed > 0 || len(report.Excluded()) > 0:
		return store.RunPartial
	default:
		return store.RunCompleted
	}
}

func failedGroups(report Report) int {
	n := 0
	for _, g := range report.Groups {
		if g.Err != nil {
			n++
		}
	}
	return n
}
