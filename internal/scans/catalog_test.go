package scans_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vlbical/internal/scans"
	"vlbical/internal/services"
	"vlbical/internal/tables"
	"vlbical/internal/testsupport"
	"vlbical/internal/vlbi"
)

func surveyFixture() []tables.Row {
	ref := func(minutes float64, source int) tables.Row {
		row := testsupport.SurveyRow(minutes, 5, source, 1, 10)
		row.Reference = true
		return row
	}
	return []tables.Row{
		// scan at t=10: median of {6, 7} = 6.5
		ref(10, 1),
		testsupport.SurveyRow(10, 5, 1, 2, 6),
		testsupport.SurveyRow(10, 5, 1, 3, 7),
		// scan at t=20: median of {20, 30, 40} = 30
		ref(20, 2),
		testsupport.SurveyRow(20, 5, 2, 2, 20, 30),
		testsupport.SurveyRow(20, 5, 2, 3, 40),
		// scan at t=30: median 3, dropped
		testsupport.SurveyRow(30, 5, 1, 2, 3),
		testsupport.SurveyRow(30, 5, 1, 3, 3),
		// scan at t=5 arrives late in the table: median 6.5, ties with t=10
		testsupport.SurveyRow(5, 5, 9, 2, 6, 7),
	}
}

func TestBuildRanksByMedianAndDropsWeakScans(t *testing.T) {
	fake := &testsupport.FakeSolver{Sources: map[int]string{1: "0059+581", 2: "J0102+5824"}}
	sess := testsupport.NewSession(t, testsupport.NewMemoryStore())

	cat, err := scans.Build(context.Background(), sess, surveyFixture(), fake, scans.DefaultThreshold)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var ranked []vlbi.ScanID
	for _, s := range cat.Ranked() {
		ranked = append(ranked, s.ID)
	}
	// scan 2 (median 30) first; scans 1 and 4 tie at 6.5 and keep table order.
	if diff := cmp.Diff([]vlbi.ScanID{2, 1, 4}, ranked); diff != "" {
		t.Fatalf("ranked order mismatch (-want +got):\n%s", diff)
	}

	var timeline []vlbi.ScanID
	for _, s := range cat.Timeline() {
		timeline = append(timeline, s.ID)
	}
	if diff := cmp.Diff([]vlbi.ScanID{4, 1, 2, 3}, timeline); diff != "" {
		t.Fatalf("timeline mismatch (-want +got):\n%s", diff)
	}
	if cat.Len() != 4 || cat.Median(2) != 30 || cat.Median(3) != 3 || !math.IsNaN(cat.Median(99)) {
		t.Fatalf("unexpected medians: len=%d m2=%v m3=%v", cat.Len(), cat.Median(2), cat.Median(3))
	}

	best, _ := cat.Get(2)
	if best.SourceName != "J0102+5824" || best.Reference != 1 {
		t.Fatalf("unexpected scan: %+v", best)
	}
	if best.Samples(1) != nil {
		t.Fatal("reference sentinel leaked into samples")
	}
	if diff := cmp.Diff([]float64{20, 30}, best.SNR[2]); diff != "" {
		t.Fatalf("samples out of row order (-want +got):\n%s", diff)
	}
	if !best.Has(1) {
		t.Fatal("reference antenna missing from scan antennas")
	}
	late, _ := cat.Get(4)
	if late.SourceName != "SRC9" {
		t.Fatalf("expected placeholder name, got %q", late.SourceName)
	}
	if got := cat.ForSources("j0102+5824"); len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("ForSources = %+v", got)
	}
	if diff := cmp.Diff([]vlbi.AntennaID{1, 2, 3}, cat.Antennas()); diff != "" {
		t.Fatalf("antennas mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildDropsScanAtExactThreshold(t *testing.T) {
	rows := []tables.Row{
		testsupport.SurveyRow(1, 5, 1, 2, 5),
		testsupport.SurveyRow(2, 5, 1, 2, 5.01),
	}
	sess := testsupport.NewSession(t, testsupport.NewMemoryStore())
	cat, err := scans.Build(context.Background(), sess, rows, nil, 5)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := cat.Ranked(); len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("expected only scan 2, got %+v", got)
	}
}

func TestBuildNoScans(t *testing.T) {
	rows := []tables.Row{
		testsupport.SurveyRow(1, 5, 1, 2, 1, 2),
		testsupport.SurveyRow(2, 5, 1, 2, math.NaN()),
	}
	sess := testsupport.NewSession(t, testsupport.NewMemoryStore())
	_, err := scans.Build(context.Background(), sess, rows, nil, scans.DefaultThreshold)
	if !errors.Is(err, services.ErrNoScans) {
		t.Fatalf("expected ErrNoScans, got %v", err)
	}
	if !services.IsGroupFatal(err) {
		t.Fatal("ErrNoScans must be group fatal")
	}

	_, err = scans.Build(context.Background(), sess, nil, nil, scans.DefaultThreshold)
	if !errors.Is(err, services.ErrNoScans) {
		t.Fatalf("expected ErrNoScans for empty table, got %v", err)
	}
}

func TestBuildUniqueTimes(t *testing.T) {
	rows := []tables.Row{
		testsupport.SurveyRow(1, 5, 1, 2, 10),
		testsupport.SurveyRow(1, 5, 1, 3, 12),
		testsupport.SurveyRow(1, 5, 1, 2, 14),
	}
	sess := testsupport.NewSession(t, testsupport.NewMemoryStore())
	cat, err := scans.Build(context.Background(), sess, rows, nil, scans.DefaultThreshold)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	all := cat.Timeline()
	if len(all) != 1 {
		t.Fatalf("expected one scan per time, got %d", len(all))
	}
	if diff := cmp.Diff([]float64{10, 14}, all[0].SNR[2]); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
}
