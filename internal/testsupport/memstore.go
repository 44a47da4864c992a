package testsupport

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"vlbical/internal/tables"
)

type tableKey struct {
	dataset string
	kind    tables.Kind
	version int
}

// MemoryStore is an in-memory tables.Store that also records deletions.
type MemoryStore struct {
	mu      sync.Mutex
	tables  map[tableKey]tables.Table
	Deleted []string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[tableKey]tables.Table)}
}

// Seed stores a table directly, failing the test on error.
func (m *MemoryStore) Seed(t testing.TB, dataset string, table tables.Table) {
	t.Helper()
	if err := m.Put(context.Background(), dataset, table); err != nil {
		t.Fatalf("seed %s %d: %v", table.Kind, table.Version, err)
	}
}

func (m *MemoryStore) Table(_ context.Context, dataset string, kind tables.Kind, version int) (tables.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl, ok := m.tables[tableKey{dataset, kind, version}]
	if !ok {
		return tables.Table{}, fmt.Errorf("%w: %s %s %d", tables.ErrNotFound, dataset, kind, version)
	}
	return tbl.Clone(), nil
}

func (m *MemoryStore) HighestVersion(_ context.Context, dataset string, kind tables.Kind) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highestLocked(dataset, kind), nil
}

func (m *MemoryStore) highestLocked(dataset string, kind tables.Kind) int {
	highest := 0
	for key := range m.tables {
		if key.dataset == dataset && key.kind == kind && key.version > highest {
			highest = key.version
		}
	}
	return highest
}

func (m *MemoryStore) Delete(_ context.Context, dataset string, kind tables.Kind, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tableKey{dataset, kind, version}
	if _, ok := m.tables[key]; !ok {
		return fmt.Errorf("%w: %s %s %d", tables.ErrNotFound, dataset, kind, version)
	}
	delete(m.tables, key)
	m.Deleted = append(m.Deleted, fmt.Sprintf("%s:%d", kind, version))
	return nil
}

func (m *MemoryStore) Copy(_ context.Context, dataset string, kind tables.Kind, from, to int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.tables[tableKey{dataset, kind, from}]
	if !ok {
		return fmt.Errorf("%w: %s %s %d", tables.ErrNotFound, dataset, kind, from)
	}
	if _, exists := m.tables[tableKey{dataset, kind, to}]; exists {
		return fmt.Errorf("%s %s %d already exists", dataset, kind, to)
	}
	dst := src.Clone()
	dst.Version = to
	m.tables[tableKey{dataset, kind, to}] = dst
	return nil
}

func (m *MemoryStore) Put(_ context.Context, dataset string, table tables.Table) error {
	if table.Version <= 0 {
		return fmt.Errorf("put %s: version must be positive", table.Kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[tableKey{dataset, table.Kind, table.Version}] = table.Clone()
	return nil
}

func (m *MemoryStore) Apply(_ context.Context, dataset string, snVersion int, opts tables.ApplyOptions) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sn, ok := m.tables[tableKey{dataset, tables.KindSN, snVersion}]
	if !ok {
		return 0, fmt.Errorf("%w: %s SN %d", tables.ErrNotFound, dataset, snVersion)
	}
	baseVersion := opts.BaseVersion
	if baseVersion == 0 {
		baseVersion = m.highestLocked(dataset, tables.KindCL)
	}
	base := m.tables[tableKey{dataset, tables.KindCL, baseVersion}]
	next := m.highestLocked(dataset, tables.KindCL) + 1
	m.tables[tableKey{dataset, tables.KindCL, next}] = tables.Fold(base, sn, next, opts)
	return next, nil
}

// Versions lists the stored versions of kind, ascending.
func (m *MemoryStore) Versions(dataset string, kind tables.Kind) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for v := 1; v <= m.highestLocked(dataset, kind); v++ {
		if _, ok := m.tables[tableKey{dataset, kind, v}]; ok {
			out = append(out, v)
		}
	}
	return out
}
