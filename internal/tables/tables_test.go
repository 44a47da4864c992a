package tables_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vlbical/internal/tables"
	"vlbical/internal/testsupport"
	"vlbical/internal/vlbi"
)

func TestFoldLayersSolutionsOverBase(t *testing.T) {
	base := tables.Table{Kind: tables.KindCL, Version: 1, Rows: []tables.Row{
		{Antenna: 1, Time: 0.1, Weights: []float64{1}},
		{Antenna: 2, Time: 0.1, Weights: []float64{1}},
		{Antenna: 3, Time: 0.1, Weights: []float64{1}},
	}}
	sn := tables.Table{Kind: tables.KindSN, Version: 4, Rows: []tables.Row{
		{Antenna: 2, Time: 0.05, Weights: []float64{7}},
		{Antenna: 1, Time: 0.1, Weights: []float64{0}, Reference: true},
	}}

	got := tables.Fold(base, sn, 2, tables.ApplyOptions{Interpolation: "SELF", CutoffMinutes: 30})
	if got.Kind != tables.KindCL || got.Version != 2 || got.SourceVersion != 4 || got.Interpolation != "SELF" || got.Cutoff != 30 {
		t.Fatalf("unexpected header: %+v", got)
	}
	var order []vlbi.AntennaID
	for _, row := range got.Rows {
		order = append(order, row.Antenna)
	}
	if diff := cmp.Diff([]vlbi.AntennaID{2, 1, 3}, order); diff != "" {
		t.Fatalf("row order mismatch (-want +got):\n%s", diff)
	}

	got.Rows[0].Weights[0] = 99
	if sn.Rows[0].Weights[0] != 7 {
		t.Fatal("fold must not alias input weights")
	}
}

func TestTableHelpers(t *testing.T) {
	tbl := tables.Table{Rows: []tables.Row{
		testsupport.RefRow(4, math.NaN()),
		testsupport.Row(2, 3, 5),
		testsupport.Row(2, 1),
		testsupport.Row(3, 0),
	}}
	if diff := cmp.Diff([]vlbi.AntennaID{2, 3, 4}, tbl.Antennas()); diff != "" {
		t.Fatalf("antennas mismatch (-want +got):\n%s", diff)
	}
	want := map[vlbi.AntennaID][]float64{2: {3, 5, 1}, 3: {0}}
	if diff := cmp.Diff(want, tbl.SamplesByAntenna()); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
	if ref, ok := tbl.ReferenceAntenna(); !ok || ref != 4 {
		t.Fatalf("reference = %v,%v", ref, ok)
	}
	if !tables.Failed(0) || !tables.Failed(math.NaN()) || tables.Failed(-1) {
		t.Fatal("Failed classification wrong")
	}
}

func TestSessionVersionsAndDiscard(t *testing.T) {
	ctx := context.Background()
	store := testsupport.NewMemoryStore()
	sess := testsupport.NewSession(t, store)

	next, err := sess.NextVersion(ctx, tables.KindSN)
	if err != nil || next != 1 {
		t.Fatalf("NextVersion on empty = %d, %v", next, err)
	}
	store.Seed(t, "TEST", tables.Table{Kind: tables.KindSN, Version: 3})
	if next, _ = sess.NextVersion(ctx, tables.KindSN); next != 4 {
		t.Fatalf("NextVersion = %d, want 4", next)
	}

	sess.Discard(ctx, tables.KindSN, 3)
	sess.Discard(ctx, tables.KindSN, 3) // logged, not fatal
	sess.Discard(ctx, tables.KindSN, 0)
	if diff := cmp.Diff([]string{"SN:3"}, store.Deleted); diff != "" {
		t.Fatalf("deleted mismatch (-want +got):\n%s", diff)
	}
	if _, err := sess.Table(ctx, tables.KindSN, 3); !errors.Is(err, tables.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewSessionValidates(t *testing.T) {
	if _, err := tables.NewSession("", "r", testsupport.NewMemoryStore(), nil); err == nil {
		t.Fatal("expected error for empty dataset")
	}
	if _, err := tables.NewSession("D", "r", nil, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}
