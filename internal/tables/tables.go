package tables

import (
	"context"
	"errors"
	"math"
	"slices"

	"vlbical/internal/vlbi"
)

// Kind names a calibration table family in the dataset.
type Kind string

const (
	// KindSN holds fringe-fit solutions.
	KindSN Kind = "SN"
	// KindCL holds the accumulated calibration applied to visibilities.
	KindCL Kind = "CL"
	// KindTY holds system temperatures.
	KindTY Kind = "TY"
	// KindGC holds gain curves.
	KindGC Kind = "GC"
	// KindFG holds flags.
	KindFG Kind = "FG"
)

// ErrNotFound reports a missing table version.
var ErrNotFound = errors.New("table not found")

// Row is one solution: a single antenna over one solution interval. Weights
// carry one weight or SNR per IF and polarization; exactly zero marks a
// failed solution.
type Row struct {
	Antenna      vlbi.AntennaID `json:"antenna"`
	Time         float64        `json:"time"`
	TimeInterval float64        `json:"time_interval"`
	SourceID     int            `json:"source_id"`
	Weights      []float64      `json:"weights"`
	// Reference marks the reference antenna's own row. Its weights are a
	// sentinel, never a measurement.
	Reference bool `json:"reference,omitempty"`
}

// Table is one version of a table kind within a dataset.
type Table struct {
	Kind    Kind
	Version int
	Rows    []Row
	// Interpolation, Cutoff and SourceVersion are set on CL tables produced
	// by Apply.
	Interpolation string
	Cutoff        float64
	SourceVersion int
}

// Antennas returns the distinct antennas with rows, ascending.
func (t Table) Antennas() []vlbi.AntennaID {
	seen := make(map[vlbi.AntennaID]struct{}, len(t.Rows))
	var ids []vlbi.AntennaID
	for _, row := range t.Rows {
		if _, ok := seen[row.Antenna]; ok {
			continue
		}
		seen[row.Antenna] = struct{}{}
		ids = append(ids, row.Antenna)
	}
	slices.Sort(ids)
	return ids
}

// SamplesByAntenna collects the weights of every non-reference row per
// antenna, in row order.
func (t Table) SamplesByAntenna() map[vlbi.AntennaID][]float64 {
	out := make(map[vlbi.AntennaID][]float64)
	for _, row := range t.Rows {
		if row.Reference {
			continue
		}
		out[row.Antenna] = append(out[row.Antenna], row.Weights...)
	}
	return out
}

// ReferenceAntenna returns the antenna of the first reference row.
func (t Table) ReferenceAntenna() (vlbi.AntennaID, bool) {
	for _, row := range t.Rows {
		if row.Reference {
			return row.Antenna, true
		}
	}
	return 0, false
}

// Failed reports whether a weight denotes a failed solution.
func Failed(weight float64) bool {
	return weight == 0 || math.IsNaN(weight)
}

// ApplyOptions controls how a solution table is folded into a calibration table.
type ApplyOptions struct {
	// BaseVersion is the CL version solutions are layered on; zero means the
	// highest existing version.
	BaseVersion   int
	Interpolation string
	CutoffMinutes float64
}

// Store is the versioned calibration table namespace of a dataset.
type Store interface {
	Table(ctx context.Context, dataset string, kind Kind, version int) (Table, error)
	HighestVersion(ctx context.Context, dataset string, kind Kind) (int, error)
	Delete(ctx context.Context, dataset string, kind Kind, version int) error
	Copy(ctx context.Context, dataset string, kind Kind, from, to int) error
	Put(ctx context.Context, dataset string, table Table) error
	// Apply folds SN version snVersion into a new CL version and returns it.
	Apply(ctx context.Context, dataset string, snVersion int, opts ApplyOptions) (int, error)
}

// Fold layers the solutions of sn over base: every antenna with a row in sn
// takes its rows from sn, the rest keep their base rows.
func Fold(base, sn Table, version int, opts ApplyOptions) Table {
	solved := make(map[vlbi.AntennaID]struct{}, len(sn.Rows))
	for _, row := range sn.Rows {
		solved[row.Antenna] = struct{}{}
	}
	out := Table{
		Kind:          KindCL,
		Version:       version,
		Interpolation: opts.Interpolation,
		Cutoff:        opts.CutoffMinutes,
		SourceVersion: sn.Version,
	}
	for _, row := range base.Rows {
		if _, ok := solved[row.Antenna]; ok {
			continue
		}
		out.Rows = append(out.Rows, cloneRow(row))
	}
	for _, row := range sn.Rows {
		out.Rows = append(out.Rows, cloneRow(row))
	}
	slices.SortStableFunc(out.Rows, func(a, b Row) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return int(a.Antenna - b.Antenna)
	})
	return out
}

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := t
	out.Rows = make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = cloneRow(row)
	}
	return out
}

func cloneRow(r Row) Row {
	r.Weights = slices.Clone(r.Weights)
	return r
}
