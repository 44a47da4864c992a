package tables

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vlbical/internal/logging"
)

// Session is the explicit handle every stage receives. It binds the dataset
// namespace a run writes to, so no stage depends on ambient table state.
type Session struct {
	Dataset string
	RunID   string
	Store   Store
	Logger  *slog.Logger
}

// NewSession validates the handle's collaborators.
func NewSession(dataset, runID string, store Store, logger *slog.Logger) (*Session, error) {
	if dataset == "" {
		return nil, fmt.Errorf("session: dataset is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session: store is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Session{Dataset: dataset, RunID: runID, Store: store, Logger: logger}, nil
}

// Log returns the session logger, never nil.
func (s *Session) Log() *slog.Logger {
	if s == nil || s.Logger == nil {
		return logging.NewNop()
	}
	return s.Logger
}

// NextVersion returns the version a new table of kind should be written at.
func (s *Session) NextVersion(ctx context.Context, kind Kind) (int, error) {
	highest, err := s.Store.HighestVersion(ctx, s.Dataset, kind)
	if err != nil {
		return 0, fmt.Errorf("highest %s version: %w", kind, err)
	}
	return highest + 1, nil
}

// Table reads one table version from the session's dataset.
func (s *Session) Table(ctx context.Context, kind Kind, version int) (Table, error) {
	return s.Store.Table(ctx, s.Dataset, kind, version)
}

// Put writes a table into the session's dataset.
func (s *Session) Put(ctx context.Context, table Table) error {
	return s.Store.Put(ctx, s.Dataset, table)
}

// Apply folds an SN table into a new CL version.
func (s *Session) Apply(ctx context.Context, snVersion int, opts ApplyOptions) (int, error) {
	return s.Store.Apply(ctx, s.Dataset, snVersion, opts)
}

// Discard deletes an ephemeral table. Failures are logged, not returned; a
// table that was never written is not a failure.
func (s *Session) Discard(ctx context.Context, kind Kind, version int) {
	if version <= 0 {
		return
	}
	err := s.Store.Delete(ctx, s.Dataset, kind, version)
	if errors.Is(err, ErrNotFound) {
		s.Log().Debug("temporary table already absent", logging.String("kind", string(kind)), logging.Int("version", version))
		return
	}
	if err != nil {
		logging.WarnWithContext(s.Log(), "temporary table not deleted", "table_cleanup_failed",
			logging.String("kind", string(kind)),
			logging.Int("version", version),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the table manually with 'vlbical tables'"),
			logging.String(logging.FieldImpact, "stale table remains in the dataset namespace"),
		)
		return
	}
	s.Log().Debug("temporary table deleted", logging.String("kind", string(kind)), logging.Int("version", version))
}
