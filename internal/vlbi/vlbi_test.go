package vlbi_test

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vlbical/internal/vlbi"
)

func TestMedian(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"odd", []float64{3, 1, 2}, 2},
		{"even averages middle", []float64{4, 1, 3, 2}, 2.5},
		{"ignores nan", []float64{nan, 7, nan, 9}, 8},
		{"single", []float64{6.2}, 6.2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := vlbi.Median(tc.values); got != tc.want {
				t.Fatalf("Median(%v) = %v, want %v", tc.values, got, tc.want)
			}
		})
	}
	if !math.IsNaN(vlbi.Median(nil)) || !math.IsNaN(vlbi.Median([]float64{nan})) {
		t.Fatal("expected NaN median for empty input")
	}
}

func TestMeanAndMax(t *testing.T) {
	if got := vlbi.Mean([]float64{2, math.NaN(), 4}); got != 3 {
		t.Fatalf("Mean = %v, want 3", got)
	}
	if got := vlbi.Max([]float64{2, math.Inf(1), 4}); got != 4 {
		t.Fatalf("Max = %v, want 4", got)
	}
	if !math.IsNaN(vlbi.Mean(nil)) {
		t.Fatal("expected NaN mean for empty input")
	}
}

func TestRound(t *testing.T) {
	if got := vlbi.Round(10.0/5.1, 2); got != 1.96 {
		t.Fatalf("Round = %v, want 1.96", got)
	}
	if got := vlbi.Round(10.0/2.1, 2); got != 4.76 {
		t.Fatalf("Round = %v, want 4.76", got)
	}
}

func TestArrayDistanceAndLookup(t *testing.T) {
	arr := vlbi.NewArray([]vlbi.Antenna{
		{ID: 3, Name: "mk", Position: [3]float64{10, 0, 0}},
		{ID: 1, Name: "la", Position: [3]float64{0, 0, 0}},
		{ID: 2, Name: "PT", Position: [3]float64{-10, 0, 0}},
	})
	if got := arr.IDs(); !cmp.Equal(got, []vlbi.AntennaID{1, 2, 3}) {
		t.Fatalf("IDs = %v", got)
	}
	la, _ := arr.Get(1)
	if la.DistanceToCenter != 0 {
		t.Fatalf("LA distance = %v, want 0", la.DistanceToCenter)
	}
	if id, ok := arr.Lookup(" Mk "); !ok || id != 3 {
		t.Fatalf("Lookup(MK) = %v %v", id, ok)
	}
	if _, ok := arr.Lookup("EF"); ok {
		t.Fatal("expected unknown code")
	}
	got := arr.NearestCenter([]vlbi.AntennaID{3, 2, 9, 1}, 3)
	if diff := cmp.Diff([]vlbi.AntennaID{1, 2, 3}, got); diff != "" {
		t.Fatalf("NearestCenter mismatch (-want +got):\n%s", diff)
	}
	if arr.Name(9) != "ANT9" {
		t.Fatalf("Name(9) = %q", arr.Name(9))
	}
}

func TestScanExcludesReferenceSamples(t *testing.T) {
	s := vlbi.Scan{
		ID:           1,
		TimeInterval: 10.0 / vlbi.MinutesPerDay,
		Antennas:     []vlbi.AntennaID{1, 2, 3},
		SNR: map[vlbi.AntennaID][]float64{
			1: {10, 10},
			2: {6, 8},
			3: {20, 30},
		},
		Reference: 1,
	}
	if s.Samples(1) != nil {
		t.Fatal("reference antenna must not yield samples")
	}
	if got := s.AntennaSNR(2); got != 7 {
		t.Fatalf("AntennaSNR(2) = %v, want 7", got)
	}
	if got := s.MedianSNR(); got != 14 {
		t.Fatalf("MedianSNR = %v, want 14", got)
	}
	if math.Abs(s.Minutes()-10) > 1e-9 {
		t.Fatalf("Minutes = %v, want 10", s.Minutes())
	}
	if !s.Has(3) || s.Has(4) {
		t.Fatal("Has mismatch")
	}
}

func TestWithCalibrationReturnsCopy(t *testing.T) {
	orig := vlbi.Scan{ID: 4, Antennas: []vlbi.AntennaID{1, 2, 5}, SNR: map[vlbi.AntennaID][]float64{2: {6.2}}}
	got := orig.WithCalibration(1, map[vlbi.AntennaID]float64{2: 6.2})

	if orig.IsCalibration() {
		t.Fatal("original scan was modified")
	}
	if diff := cmp.Diff([]vlbi.AntennaID{1, 2}, got.CalibAntennas); diff != "" {
		t.Fatalf("CalibAntennas mismatch (-want +got):\n%s", diff)
	}
	got.SNR[2][0] = 99
	if orig.SNR[2][0] != 6.2 {
		t.Fatal("copy shares sample storage with original")
	}
}

func TestArenaRejectsDuplicateTime(t *testing.T) {
	arena := vlbi.NewArena()
	if err := arena.Add(vlbi.Scan{ID: 1, Time: 0.25}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := arena.Add(vlbi.Scan{ID: 2, Time: 0.25}); !errors.Is(err, vlbi.ErrDuplicateScan) {
		t.Fatalf("expected ErrDuplicateScan, got %v", err)
	}
	if arena.Len() != 1 {
		t.Fatalf("rejected scan was stored: len=%d", arena.Len())
	}
}
