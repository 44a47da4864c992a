package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	// RunPartial means at least one group or target did not complete.
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// Run is one invocation of the calibration pipeline.
type Run struct {
	ID           string
	ConfigPath   string
	Status       RunStatus
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Decision is one ledger entry: a choice a stage made and why.
type Decision struct {
	ID        int64
	RunID     string
	Group     string
	Target    string
	Stage     string
	Type      string
	Result    string
	Reason    string
	Detail    map[string]any
	CreatedAt time.Time
}

// Exclusion records a target dropped from export.
type Exclusion struct {
	ID        int64
	RunID     string
	Group     string
	Target    string
	ErrorKind string
	Reason    string
	CreatedAt time.Time
}

// RecordRun inserts a running run.
func (s *Store) RecordRun(ctx context.Context, id, configPath string) error {
	if id == "" {
		return errors.New("record run: id is required")
	}
	_, err := s.execWithRetry(ctx,
		"INSERT INTO runs (id, config_path, status, started_at) VALUES (?, ?, ?, ?)",
		id, nullableString(configPath), string(RunRunning), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// FinishRun stamps the final status of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, message string) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE runs SET status = ?, error_message = ?, finished_at = ? WHERE id = ?",
		string(status), nullableString(message), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: run %s not found", id)
	}
	return nil
}

// RecordDecision appends a decision to the ledger.
func (s *Store) RecordDecision(ctx context.Context, d Decision) error {
	var detail any
	if len(d.Detail) > 0 {
		encoded, err := json.Marshal(d.Detail)
		if err != nil {
			return fmt.Errorf("encode decision detail: %w", err)
		}
		detail = string(encoded)
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO decisions (run_id, group_name, target, stage, decision_type, result, reason, detail_json, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Group, nullableString(d.Target), d.Stage, d.Type, d.Result, nullableString(d.Reason), detail, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// RecordExclusion appends an excluded target to the ledger.
func (s *Store) RecordExclusion(ctx context.Context, e Exclusion) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO exclusions (run_id, group_name, target, error_kind, reason, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Group, e.Target, nullableString(e.ErrorKind), nullableString(e.Reason), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("record exclusion: %w", err)
	}
	return nil
}

// Decisions returns the decisions of a run in insertion order.
func (s *Store) Decisions(ctx context.Context, runID string) ([]Decision, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, group_name, target, stage, decision_type, result, reason, detail_json, created_at
        FROM decisions WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var (
			d       Decision
			target  sql.NullString
			reason  sql.NullString
			detail  sql.NullString
			created string
		)
		if err := rows.Scan(&d.ID, &d.RunID, &d.Group, &target, &d.Stage, &d.Type, &d.Result, &reason, &detail, &created); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Target = target.String
		d.Reason = reason.String
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &d.Detail); err != nil {
				return nil, fmt.Errorf("decode decision detail: %w", err)
			}
		}
		if ts, err := parseTimeString(created); err == nil {
			d.CreatedAt = ts
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Exclusions returns the excluded targets of a run in insertion order.
func (s *Store) Exclusions(ctx context.Context, runID string) ([]Exclusion, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, group_name, target, error_kind, reason, created_at
        FROM exclusions WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query exclusions: %w", err)
	}
	defer rows.Close()

	var out []Exclusion
	for rows.Next() {
		var (
			e       Exclusion
			kind    sql.NullString
			reason  sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Group, &e.Target, &kind, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		e.ErrorKind = kind.String
		e.Reason = reason.String
		if ts, err := parseTimeString(created); err == nil {
			e.CreatedAt = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetRun fetches a run by id. A missing run returns nil without error.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	return s.queryRun(ctx, "WHERE id = ?", id)
}

// LatestRun returns the most recently started run, or nil when none exist.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	return s.queryRun(ctx, "ORDER BY started_at DESC, rowid DESC LIMIT 1")
}

func (s *Store) queryRun(ctx context.Context, clause string, args ...any) (*Run, error) {
	ctx = ensureContext(ctx)
	var (
		run        Run
		configPath sql.NullString
		status     string
		message    sql.NullString
		started    string
		finished   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, config_path, status, error_message, started_at, finished_at FROM runs "+clause,
		args...,
	).Scan(&run.ID, &configPath, &status, &message, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	run.ConfigPath = configPath.String
	run.Status = RunStatus(status)
	run.ErrorMessage = message.String
	if ts, err := parseTimeString(started); err == nil {
		run.StartedAt = ts
	}
	if finished.Valid {
		if ts, err := parseTimeString(finished.String); err == nil {
			run.FinishedAt = ts
		}
	}
	return &run, nil
}
