package scans

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"

	"vlbical/internal/logging"
	"vlbical/internal/services"
	"vlbical/internal/solver"
	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// DefaultThreshold is the detection SNR a scan median must exceed.
const DefaultThreshold = 5.0

// Catalog is the scan list of one survey: every grouped scan in time order
// plus the quality-ranked subset that cleared the detection threshold.
type Catalog struct {
	arena     *vlbi.Arena
	timeline  []vlbi.ScanID
	ranked    []vlbi.ScanID
	medians   map[vlbi.ScanID]float64
	threshold float64
}

// Build groups survey rows into scans and ranks them by median SNR.
//
// Rows sharing a time form one scan; scan ids follow first appearance. A
// reference row marks the scan's reference antenna and never contributes
// samples. Scans whose median does not exceed threshold are dropped from the
// ranking; an empty ranking is ErrNoScans.
func Build(ctx context.Context, sess *tables.Session, rows []tables.Row, dir solver.SourceDirectory, threshold float64) (*Catalog, error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(sess.Log(), "scans"))
	if math.IsNaN(threshold) {
		return nil, services.Wrap(services.ErrValidation, "scans", "build", "threshold is NaN", nil)
	}

	type draft struct {
		scan vlbi.Scan
		ants map[vlbi.AntennaID]struct{}
	}
	byTime := make(map[float64]int)
	var drafts []*draft
	for _, row := range rows {
		idx, ok := byTime[row.Time]
		if !ok {
			idx = len(drafts)
			byTime[row.Time] = idx
			drafts = append(drafts, &draft{
				scan: vlbi.Scan{
					ID:           vlbi.ScanID(idx + 1),
					Time:         row.Time,
					TimeInterval: row.TimeInterval,
					SourceID:     row.SourceID,
					SNR:          make(map[vlbi.AntennaID][]float64),
				},
				ants: make(map[vlbi.AntennaID]struct{}),
			})
		}
		d := drafts[idx]
		d.ants[row.Antenna] = struct{}{}
		if row.TimeInterval > d.scan.TimeInterval {
			d.scan.TimeInterval = row.TimeInterval
		}
		if row.Reference {
			d.scan.Reference = row.Antenna
			continue
		}
		d.scan.SNR[row.Antenna] = append(d.scan.SNR[row.Antenna], row.Weights...)
	}

	cat := &Catalog{
		arena:     vlbi.NewArena(),
		medians:   make(map[vlbi.ScanID]float64, len(drafts)),
		threshold: threshold,
	}
	names := make(map[int]string)
	for _, d := range drafts {
		s := d.scan
		for id := range d.ants {
			s.Antennas = append(s.Antennas, id)
		}
		slices.Sort(s.Antennas)
		if s.Reference != 0 {
			delete(s.SNR, s.Reference)
		}
		s.SourceName = resolveName(ctx, sess, dir, s.SourceID, names, logger)
		if err := cat.arena.Add(s); err != nil {
			return nil, services.Wrap(services.ErrValidation, "scans", "build", "", err)
		}
		cat.medians[s.ID] = s.MedianSNR()
	}

	timeline := cat.arena.All()
	slices.SortStableFunc(timeline, func(a, b vlbi.Scan) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	for _, s := range timeline {
		cat.timeline = append(cat.timeline, s.ID)
	}

	for _, s := range cat.arena.All() {
		median := cat.medians[s.ID]
		if math.IsNaN(median) || median <= threshold {
			logger.Debug("scan below detection threshold",
				logging.Int("scan", int(s.ID)),
				logging.String("source", s.SourceName),
				logging.Float64("median_snr", median),
			)
			continue
		}
		cat.ranked = append(cat.ranked, s.ID)
	}
	slices.SortStableFunc(cat.ranked, func(a, b vlbi.ScanID) int {
		ma, mb := cat.medians[a], cat.medians[b]
		switch {
		case ma > mb:
			return -1
		case ma < mb:
			return 1
		}
		return 0
	})

	if len(cat.ranked) == 0 {
		return nil, services.Wrap(services.ErrNoScans, "scans", "build",
			fmt.Sprintf("%d scans, none with median snr above %.1f", cat.arena.Len(), threshold), nil)
	}

	logger.Info("scan catalog built",
		logging.Int("scans", cat.arena.Len()),
		logging.Int("ranked", len(cat.ranked)),
		logging.Float64("best_median_snr", cat.medians[cat.ranked[0]]),
	)
	return cat, nil
}

func resolveName(ctx context.Context, sess *tables.Session, dir solver.SourceDirectory, id int, cache map[int]string, logger *slog.Logger) string {
	if name, ok := cache[id]; ok {
		return name
	}
	name, ok := "", false
	if dir != nil {
		name, ok = dir.SourceName(ctx, sess, id)
	}
	if !ok || name == "" {
		name = "SRC" + strconv.Itoa(id)
		logger.Warn("source id not in directory; using placeholder name",
			logging.Int("source_id", id),
			logging.String("name", name),
			logging.String(logging.FieldEventType, "source_unknown"),
		)
	}
	cache[id] = name
	return name
}

// Ranked returns the scans above threshold, best median first.
func (c *Catalog) Ranked() []vlbi.Scan {
	return c.arena.Resolve(c.ranked)
}

// Timeline returns every grouped scan in time order, including scans that
// failed the threshold.
func (c *Catalog) Timeline() []vlbi.Scan {
	return c.arena.Resolve(c.timeline)
}

// Get returns a scan by id.
func (c *Catalog) Get(id vlbi.ScanID) (vlbi.Scan, bool) {
	return c.arena.Get(id)
}

// Median returns the scan's median SNR as used for ranking.
func (c *Catalog) Median(id vlbi.ScanID) float64 {
	if m, ok := c.medians[id]; ok {
		return m
	}
	return math.NaN()
}

// Len returns the number of grouped scans.
func (c *Catalog) Len() int {
	return c.arena.Len()
}

// Threshold returns the detection threshold the catalog was built with.
func (c *Catalog) Threshold() float64 {
	return c.threshold
}

// ForSources returns the timeline scans of the named sources.
func (c *Catalog) ForSources(names ...string) []vlbi.Scan {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[vlbi.NormalizeCode(n)] = struct{}{}
	}
	var out []vlbi.Scan
	for _, s := range c.Timeline() {
		if _, ok := want[vlbi.NormalizeCode(s.SourceName)]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Antennas returns every antenna seen in any scan, ascending.
func (c *Catalog) Antennas() []vlbi.AntennaID {
	seen := make(map[vlbi.AntennaID]struct{})
	var out []vlbi.AntennaID
	for _, s := range c.arena.All() {
		for _, id := range s.Antennas {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	slices.Sort(out)
	return out
}
