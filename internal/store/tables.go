package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

var _ tables.Store = (*Store)(nil)

// TableInfo summarises one stored table version.
type TableInfo struct {
	Kind          tables.Kind
	Version       int
	Rows          int
	SourceVersion int
	CreatedAt     time.Time
}

// Table loads one table version with its rows.
func (s *Store) Table(ctx context.Context, dataset string, kind tables.Kind, version int) (tables.Table, error) {
	return readTable(ensureContext(ctx), s.db, dataset, kind, version)
}

// HighestVersion returns the highest stored version of kind, zero when none exist.
func (s *Store) HighestVersion(ctx context.Context, dataset string, kind tables.Kind) (int, error) {
	return highestVersion(ensureContext(ctx), s.db, dataset, kind)
}

// Delete removes one table version and its rows.
func (s *Store) Delete(ctx context.Context, dataset string, kind tables.Kind, version int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM cal_rows WHERE dataset = ? AND kind = ? AND version = ?",
			dataset, string(kind), version,
		); err != nil {
			return fmt.Errorf("delete rows: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			"DELETE FROM cal_tables WHERE dataset = ? AND kind = ? AND version = ?",
			dataset, string(kind), version,
		)
		if err != nil {
			return fmt.Errorf("delete table: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound(dataset, kind, version)
		}
		return nil
	})
}

// Copy duplicates version from into version to. The destination must not exist.
func (s *Store) Copy(ctx context.Context, dataset string, kind tables.Kind, from, to int) error {
	if to <= 0 {
		return fmt.Errorf("copy %s: destination version must be positive", kind)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		src, err := readTable(ctx, tx, dataset, kind, from)
		if err != nil {
			return err
		}
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM cal_tables WHERE dataset = ? AND kind = ? AND version = ?",
			dataset, string(kind), to,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check destination: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("copy %s %d: destination version %d already exists", kind, from, to)
		}
		src.Version = to
		return writeTable(ctx, tx, dataset, src)
	})
}

// Put stores table at its version, replacing any existing rows.
func (s *Store) Put(ctx context.Context, dataset string, table tables.Table) error {
	if table.Version <= 0 {
		return fmt.Errorf("put %s: version must be positive", table.Kind)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM cal_rows WHERE dataset = ? AND kind = ? AND version = ?",
			dataset, string(table.Kind), table.Version,
		); err != nil {
			return fmt.Errorf("clear rows: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM cal_tables WHERE dataset = ? AND kind = ? AND version = ?",
			dataset, string(table.Kind), table.Version,
		); err != nil {
			return fmt.Errorf("clear table: %w", err)
		}
		return writeTable(ctx, tx, dataset, table)
	})
}

// Apply folds SN version snVersion over a base CL table into a new CL
// version. A zero BaseVersion layers over the highest CL; with no CL at all
// the result holds the solutions alone.
func (s *Store) Apply(ctx context.Context, dataset string, snVersion int, opts tables.ApplyOptions) (int, error) {
	var next int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sn, err := readTable(ctx, tx, dataset, tables.KindSN, snVersion)
		if err != nil {
			return err
		}
		highest, err := highestVersion(ctx, tx, dataset, tables.KindCL)
		if err != nil {
			return err
		}
		base := tables.Table{Kind: tables.KindCL}
		baseVersion := opts.BaseVersion
		if baseVersion == 0 {
			baseVersion = highest
		}
		if baseVersion > 0 {
			if base, err = readTable(ctx, tx, dataset, tables.KindCL, baseVersion); err != nil {
				return err
			}
		}
		next = highest + 1
		return writeTable(ctx, tx, dataset, tables.Fold(base, sn, next, opts))
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// List returns every stored table of dataset ordered by kind and version.
func (s *Store) List(ctx context.Context, dataset string) ([]TableInfo, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.kind, t.version, COALESCE(t.source_version, 0), t.created_at,
            (SELECT COUNT(1) FROM cal_rows r WHERE r.dataset = t.dataset AND r.kind = t.kind AND r.version = t.version)
        FROM cal_tables t WHERE t.dataset = ? ORDER BY t.kind, t.version`,
		dataset,
	)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []TableInfo
	for rows.Next() {
		var (
			info    TableInfo
			kind    string
			created string
		)
		if err := rows.Scan(&kind, &info.Version, &info.SourceVersion, &created, &info.Rows); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		info.Kind = tables.Kind(kind)
		if ts, err := parseTimeString(created); err == nil {
			info.CreatedAt = ts
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func notFound(dataset string, kind tables.Kind, version int) error {
	return fmt.Errorf("%w: %s %s %d", tables.ErrNotFound, dataset, kind, version)
}

func highestVersion(ctx context.Context, q querier, dataset string, kind tables.Kind) (int, error) {
	var highest int
	if err := q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM cal_tables WHERE dataset = ? AND kind = ?",
		dataset, string(kind),
	).Scan(&highest); err != nil {
		return 0, fmt.Errorf("highest %s version: %w", kind, err)
	}
	return highest, nil
}

func readTable(ctx context.Context, q querier, dataset string, kind tables.Kind, version int) (tables.Table, error) {
	table := tables.Table{Kind: kind, Version: version}
	var (
		interpolation sql.NullString
		cutoff        sql.NullFloat64
		sourceVersion sql.NullInt64
	)
	err := q.QueryRowContext(ctx,
		"SELECT interpolation, cutoff_minutes, source_version FROM cal_tables WHERE dataset = ? AND kind = ? AND version = ?",
		dataset, string(kind), version,
	).Scan(&interpolation, &cutoff, &sourceVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return tables.Table{}, notFound(dataset, kind, version)
	}
	if err != nil {
		return tables.Table{}, fmt.Errorf("read %s %d: %w", kind, version, err)
	}
	table.Interpolation = interpolation.String
	table.Cutoff = cutoff.Float64
	table.SourceVersion = int(sourceVersion.Int64)

	rows, err := q.QueryContext(ctx,
		`SELECT antenna, time, time_interval, source_id, weights_json, reference
        FROM cal_rows WHERE dataset = ? AND kind = ? AND version = ? ORDER BY seq`,
		dataset, string(kind), version,
	)
	if err != nil {
		return tables.Table{}, fmt.Errorf("read %s %d rows: %w", kind, version, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			row       tables.Row
			antenna   int
			weights   string
			reference int
		)
		if err := rows.Scan(&antenna, &row.Time, &row.TimeInterval, &row.SourceID, &weights, &reference); err != nil {
			return tables.Table{}, fmt.Errorf("scan row: %w", err)
		}
		row.Antenna = vlbi.AntennaID(antenna)
		row.Reference = reference != 0
		if row.Weights, err = tables.DecodeWeights([]byte(weights)); err != nil {
			return tables.Table{}, fmt.Errorf("decode weights: %w", err)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return tables.Table{}, err
	}
	return table, nil
}

func writeTable(ctx context.Context, tx *sql.Tx, dataset string, table tables.Table) error {
	var sourceVersion any
	if table.SourceVersion > 0 {
		sourceVersion = table.SourceVersion
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cal_tables (dataset, kind, version, interpolation, cutoff_minutes, source_version, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dataset, string(table.Kind), table.Version,
		nullableString(table.Interpolation), table.Cutoff, sourceVersion, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("insert %s %d: %w", table.Kind, table.Version, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cal_rows (dataset, kind, version, seq, antenna, time, time_interval, source_id, weights_json, reference)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare row insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range table.Rows {
		weights, err := tables.EncodeWeights(row.Weights)
		if err != nil {
			return fmt.Errorf("encode weights: %w", err)
		}
		reference := 0
		if row.Reference {
			reference = 1
		}
		if _, err := stmt.ExecContext(ctx,
			dataset, string(table.Kind), table.Version, i,
			int(row.Antenna), row.Time, row.TimeInterval, row.SourceID, string(weights), reference,
		); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return nil
}
