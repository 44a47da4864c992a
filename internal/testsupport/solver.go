package testsupport

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"vlbical/internal/solver"
	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// FitFunc scripts the rows a fringe fit returns for a request.
type FitFunc func(req solver.Request) ([]tables.Row, error)

// FlagCall records one FlagAntennas invocation.
type FlagCall struct {
	IDs    []vlbi.AntennaID
	Reason string
}

// ExportCall records one Export invocation.
type ExportCall struct {
	Target    string
	CLVersion int
}

// FakeSolver implements solver.Toolkit with scripted fringe fits. Every fit
// is written into the session store like the real solver does. A fit that
// returns rows together with an error leaves those rows behind, as a solver
// dying mid-write would.
type FakeSolver struct {
	mu sync.Mutex

	Fit         FitFunc
	Sources     map[int]string
	Array       []vlbi.Antenna
	FlagErr     error
	ExportErr   error
	AntennasErr error

	Requests []solver.Request
	Flagged  []FlagCall
	Exported []ExportCall
}

func (f *FakeSolver) FringeFit(ctx context.Context, sess *tables.Session, req solver.Request) (tables.Table, error) {
	f.mu.Lock()
	req.Sources = slices.Clone(req.Sources)
	req.SearchAntennas = slices.Clone(req.SearchAntennas)
	req.AntennaRestriction = slices.Clone(req.AntennaRestriction)
	f.Requests = append(f.Requests, req)
	fit := f.Fit
	f.mu.Unlock()

	if fit == nil {
		return tables.Table{}, fmt.Errorf("fake solver: no fit scripted")
	}
	rows, err := fit(req)
	tbl := tables.Table{Kind: tables.KindSN, Version: req.OutputVersion, Rows: rows}
	if err != nil {
		if len(rows) > 0 {
			_ = sess.Put(ctx, tbl)
		}
		return tables.Table{}, err
	}
	if err := sess.Put(ctx, tbl); err != nil {
		return tables.Table{}, err
	}
	return tbl, nil
}

func (f *FakeSolver) FlagAntennas(_ context.Context, _ *tables.Session, ids []vlbi.AntennaID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Flagged = append(f.Flagged, FlagCall{IDs: slices.Clone(ids), Reason: reason})
	return f.FlagErr
}

func (f *FakeSolver) SourceName(_ context.Context, _ *tables.Session, id int) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.Sources[id]
	return name, ok
}

func (f *FakeSolver) Antennas(context.Context, *tables.Session) ([]vlbi.Antenna, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AntennasErr != nil {
		return nil, f.AntennasErr
	}
	return slices.Clone(f.Array), nil
}

func (f *FakeSolver) Export(_ context.Context, _ *tables.Session, target string, clVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ExportErr != nil {
		return f.ExportErr
	}
	f.Exported = append(f.Exported, ExportCall{Target: target, CLVersion: clVersion})
	return nil
}

// RequestCount returns the number of fringe fits issued so far.
func (f *FakeSolver) RequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

// LinearArray builds antennas 1..n named by codes, spaced along one axis so
// that antenna distance to the centre grows with distance from the middle.
func LinearArray(codes ...string) []vlbi.Antenna {
	out := make([]vlbi.Antenna, len(codes))
	for i, code := range codes {
		out[i] = vlbi.Antenna{ID: vlbi.AntennaID(i + 1), Name: code, Position: [3]float64{float64(i) * 1000, 0, 0}}
	}
	return out
}
