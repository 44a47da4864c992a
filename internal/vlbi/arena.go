package vlbi

import (
	"errors"
	"fmt"
)

// ErrDuplicateScan reports a second scan with an already used id or time.
var ErrDuplicateScan = errors.New("duplicate scan")

// Arena stores scans by id and remembers insertion order. The Scan values
// handed out are never shared mutably.
type Arena struct {
	order  []ScanID
	scans  map[ScanID]Scan
	byTime map[float64]ScanID
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		scans:  make(map[ScanID]Scan),
		byTime: make(map[float64]ScanID),
	}
}

// Add stores a new scan. Ids and times must be unique.
func (a *Arena) Add(s Scan) error {
	if _, ok := a.scans[s.ID]; ok {
		return fmt.Errorf("%w: id %d", ErrDuplicateScan, s.ID)
	}
	if other, ok := a.byTime[s.Time]; ok {
		return fmt.Errorf("%w: time %.6f already used by scan %d", ErrDuplicateScan, s.Time, other)
	}
	a.order = append(a.order, s.ID)
	a.scans[s.ID] = s.clone()
	a.byTime[s.Time] = s.ID
	return nil
}

// Get returns a copy of the scan.
func (a *Arena) Get(id ScanID) (Scan, bool) {
	s, ok := a.scans[id]
	if !ok {
		return Scan{}, false
	}
	return s.clone(), true
}

// Resolve returns copies of the given scans in the order requested. Unknown
// ids are skipped.
func (a *Arena) Resolve(ids []ScanID) []Scan {
	out := make([]Scan, 0, len(ids))
	for _, id := range ids {
		if s, ok := a.Get(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// All returns copies of every scan in insertion order.
func (a *Arena) All() []Scan {
	return a.Resolve(a.order)
}

// Len returns the number of stored scans.
func (a *Arena) Len() int {
	return len(a.order)
}
