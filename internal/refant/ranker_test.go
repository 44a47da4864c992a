package refant_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vlbical/internal/refant"
	"vlbical/internal/services"
	"vlbical/internal/solver"
	"vlbical/internal/tables"
	"vlbical/internal/testsupport"
	"vlbical/internal/vlbi"
)

// scoreFit answers every trial with each non-reference antenna reporting the
// reference's configured score on all IFs.
func scoreFit(scores map[vlbi.AntennaID]float64, ants []vlbi.AntennaID) testsupport.FitFunc {
	return func(req solver.Request) ([]tables.Row, error) {
		rows := []tables.Row{testsupport.RefRow(req.Reference, 10)}
		for _, id := range ants {
			if id == req.Reference {
				continue
			}
			s := scores[req.Reference]
			rows = append(rows, testsupport.Row(id, s, s))
		}
		return rows, nil
	}
}

func TestRankPicksBestCoveringCandidate(t *testing.T) {
	arr := vlbi.NewArray(testsupport.LinearArray("A", "B", "C", "D"))
	all := []vlbi.AntennaID{1, 2, 3, 4}
	fake := &testsupport.FakeSolver{Fit: scoreFit(map[vlbi.AntennaID]float64{1: 12.5, 2: 40.2, 3: 8.9, 4: 99}, all)}
	store := testsupport.NewMemoryStore()
	sess := testsupport.NewSession(t, store)

	targetScans := []vlbi.Scan{
		testsupport.ScanOf(1, 5, 0, map[vlbi.AntennaID][]float64{1: {7}, 2: {7}, 3: {7}, 4: {7}}),
		testsupport.ScanOf(2, 5, 0, map[vlbi.AntennaID][]float64{1: {7}, 2: {7}, 3: {7}}),
	}

	res, err := refant.New(fake, refant.Options{}).Rank(context.Background(), sess, refant.Input{
		Array:       arr,
		TargetScans: targetScans,
		Sources:     []string{"CAL", "TGT"},
	})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if res.Reference != 2 || res.Method != refant.MethodRanked {
		t.Fatalf("expected B ranked, got %d (%s)", res.Reference, res.Method)
	}
	want := map[vlbi.AntennaID]float64{1: 12.5, 2: 40.2, 3: 8.9}
	if diff := cmp.Diff(want, res.Scores); diff != "" {
		t.Fatalf("scores mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]vlbi.AntennaID{4}, res.Excluded); diff != "" {
		t.Fatalf("excluded mismatch (-want +got):\n%s", diff)
	}
	if fake.RequestCount() != 3 {
		t.Fatalf("expected one trial per survivor, got %d", fake.RequestCount())
	}
	for _, req := range fake.Requests {
		if !req.StopAtFFT {
			t.Fatal("trial fits must stop at the FFT stage")
		}
		for _, id := range req.SearchAntennas {
			if id == 4 || id == req.Reference {
				t.Fatalf("unexpected search anchor %d for reference %d", id, req.Reference)
			}
		}
	}
	if got := store.Versions("TEST", tables.KindSN); len(got) != 0 {
		t.Fatalf("trial tables left behind: %v", got)
	}
}

func TestRankScoreIsMedianOfBaselineMedians(t *testing.T) {
	arr := vlbi.NewArray(testsupport.LinearArray("A", "B", "C", "D"))
	fake := &testsupport.FakeSolver{Fit: func(req solver.Request) ([]tables.Row, error) {
		if req.Reference != 1 {
			return nil, nil
		}
		return []tables.Row{
			testsupport.RefRow(1, 10),
			testsupport.Row(2, 1, 2, 3), // median 2
			testsupport.Row(3, 10, 20),  // median 15
			testsupport.Row(3, math.NaN()),
			testsupport.Row(4, 8, 8, 100), // median 8
		}, nil
	}}
	sess := testsupport.NewSession(t, testsupport.NewMemoryStore())

	res, err := refant.New(fake, refant.Options{}).Rank(context.Background(), sess, refant.Input{Array: arr})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got := res.Scores[1]; got != 8 {
		t.Fatalf("score = %v, want 8", got)
	}
	for _, id := range []vlbi.AntennaID{2, 3, 4} {
		if !math.IsNaN(res.Scores[id]) {
			t.Fatalf("antenna %d without baselines should score NaN, got %v", id, res.Scores[id])
		}
	}
	if res.Reference != 1 {
		t.Fatalf("expected antenna 1, got %d", res.Reference)
	}
}

func TestRankTieBreaksOnLowestIDAndNaNLast(t *testing.T) {
	arr := vlbi.NewArray(testsupport.LinearArray("A", "B", "C", "D"))
	all := arr.IDs()
	fake := &testsupport.FakeSolver{Fit: func(req solver.Request) ([]tables.Row, error) {
		if req.Reference == 1 {
			return nil, errors.New("solver crashed")
		}
		return scoreFit(map[vlbi.AntennaID]float64{2: 20, 3: 30, 4: 30}, all)(req)
	}}
	sess := testsupport.NewSession(t, testsupport.NewMemoryStore())

	res, err := refant.New(fake, refant.Options{}).Rank(context.Background(), sess, refant.Input{Array: arr})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	var order []vlbi.AntennaID
	for _, s := range res.Ranking {
		order = append(order, s.Antenna)
	}
	if diff := cmp.Diff([]vlbi.AntennaID{3, 4, 2, 1}, order); diff != "" {
		t.Fatalf("ranking mismatch (-want +got):\n%s", diff)
	}
	if res.Ranking[3].Err == nil {
		t.Fatal("expected failed trial to carry its error")
	}
}

func TestRankFallsBackWhenEveryTrialFails(t *testing.T) {
	arr := vlbi.NewArray(testsupport.LinearArray("A", "B", "C"))
	// Each failed fit leaves a partial table behind.
	fail := func(req solver.Request) ([]tables.Row, error) {
		return []tables.Row{testsupport.RefRow(req.Reference, 10)}, errors.New("solver crashed")
	}

	tests := []struct {
		name       string
		opts       refant.Options
		want       vlbi.AntennaID
		wantMethod refant.Method
		wantErr    error
	}{
		{name: "override", opts: refant.Options{Override: "C", Priority: []string{"B"}}, want: 3, wantMethod: refant.MethodOverride},
		{name: "priority", opts: refant.Options{Priority: []string{"EF", "B"}}, want: 2, wantMethod: refant.MethodPriority},
		{name: "none", opts: refant.Options{Override: "EF"}, wantErr: services.ErrNoReferenceAntenna},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := testsupport.NewMemoryStore()
			sess := testsupport.NewSession(t, store)
			fake := &testsupport.FakeSolver{Fit: fail}

			res, err := refant.New(fake, tc.opts).Rank(context.Background(), sess, refant.Input{Array: arr})
			if got := store.Versions("TEST", tables.KindSN); len(got) != 0 {
				t.Fatalf("failed trial tables left behind: %v", got)
			}
			if fake.RequestCount() != 3 {
				t.Fatalf("expected a trial per candidate, got %d", fake.RequestCount())
			}
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Rank: %v", err)
			}
			if res.Reference != tc.want || res.Method != tc.wantMethod {
				t.Fatalf("got %d (%s), want %d (%s)", res.Reference, res.Method, tc.want, tc.wantMethod)
			}
			if len(res.Ranking) != 3 || !math.IsNaN(res.Scores[1]) {
				t.Fatalf("failed trials missing from diagnostics: %+v", res.Ranking)
			}
		})
	}
}

func TestRankOffersAtMostTenCentralSearchAnchors(t *testing.T) {
	codes := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M"}
	arr := vlbi.NewArray(testsupport.LinearArray(codes...))
	fake := &testsupport.FakeSolver{Fit: scoreFit(map[vlbi.AntennaID]float64{}, arr.IDs())}
	sess := testsupport.NewSession(t, testsupport.NewMemoryStore())

	if _, err := refant.New(fake, refant.Options{}).Rank(context.Background(), sess, refant.Input{Array: arr}); err != nil {
		t.Fatalf("Rank: %v", err)
	}
	first := fake.Requests[0]
	if len(first.SearchAntennas) != refant.DefaultMaxSearchAntennas {
		t.Fatalf("expected %d anchors, got %d", refant.DefaultMaxSearchAntennas, len(first.SearchAntennas))
	}
	// Antenna 7 sits at the array centre and must lead the anchors.
	if first.SearchAntennas[0] != 7 {
		t.Fatalf("expected central antenna first, got %v", first.SearchAntennas)
	}
}

func TestRankFallbackChain(t *testing.T) {
	arr := vlbi.NewArray(testsupport.LinearArray("LA", "PT", "KP"))
	// No antenna appears in both target scans.
	targetScans := []vlbi.Scan{
		testsupport.ScanOf(1, 5, 0, map[vlbi.AntennaID][]float64{1: {7}}),
		testsupport.ScanOf(2, 5, 0, map[vlbi.AntennaID][]float64{2: {7}, 3: {7}}),
	}
	sess := testsupport.NewSession(t, testsupport.NewMemoryStore())
	fake := &testsupport.FakeSolver{}

	tests := []struct {
		name       string
		opts       refant.Options
		want       vlbi.AntennaID
		wantMethod refant.Method
		wantErr    error
	}{
		{name: "override", opts: refant.Options{Override: "kp", Priority: []string{"LA"}}, want: 3, wantMethod: refant.MethodOverride},
		{name: "priority", opts: refant.Options{Override: "EF", Priority: []string{"MC", "PT", "LA"}}, want: 2, wantMethod: refant.MethodPriority},
		{name: "none", opts: refant.Options{Override: "EF", Priority: []string{"MC"}}, wantErr: services.ErrNoReferenceAntenna},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := refant.New(fake, tc.opts).Rank(context.Background(), sess, refant.Input{Array: arr, TargetScans: targetScans})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Rank: %v", err)
			}
			if res.Reference != tc.want || res.Method != tc.wantMethod {
				t.Fatalf("got %d (%s), want %d (%s)", res.Reference, res.Method, tc.want, tc.wantMethod)
			}
		})
	}
	if fake.RequestCount() != 0 {
		t.Fatal("fallback must not invoke the solver")
	}
}

func TestRankForcedOverride(t *testing.T) {
	arr := vlbi.NewArray(testsupport.LinearArray("LA", "PT"))
	fake := &testsupport.FakeSolver{}
	sess := testsupport.NewSession(t, testsupport.NewMemoryStore())

	res, err := refant.New(fake, refant.Options{Override: "PT", Forced: true}).Rank(context.Background(), sess, refant.Input{Array: arr})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if res.Reference != 2 || res.Method != refant.MethodForced || fake.RequestCount() != 0 {
		t.Fatalf("unexpected forced result %+v (requests %d)", res, fake.RequestCount())
	}
}

func TestProvisional(t *testing.T) {
	arr := vlbi.NewArray(testsupport.LinearArray("A", "B", "C", "D", "E"))
	id, method, err := refant.Provisional(arr, refant.Options{Priority: []string{"ZZ"}})
	if err != nil || id != 3 || method != refant.MethodCentral {
		t.Fatalf("Provisional = %d %s %v, want central antenna 3", id, method, err)
	}
	id, method, _ = refant.Provisional(arr, refant.Options{Priority: []string{"ZZ", "E"}})
	if id != 5 || method != refant.MethodPriority {
		t.Fatalf("Provisional = %d %s, want priority antenna 5", id, method)
	}
	if _, _, err := refant.Provisional(vlbi.NewArray(nil), refant.Options{}); !errors.Is(err, services.ErrNoReferenceAntenna) {
		t.Fatalf("expected ErrNoReferenceAntenna for empty array, got %v", err)
	}
}
