package coverage

import (
	"context"
	"math"
	"slices"
	"strconv"

	"vlbical/internal/logging"
	"vlbical/internal/services"
	"vlbical/internal/solver"
	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// Result lists the chosen calibration scans and the antennas none of them
// could cover.
type Result struct {
	Reference vlbi.AntennaID
	// Scans are calibration scans in ranked order, one per distinct best scan.
	Scans []vlbi.Scan
	// Uncoverable antennas were flagged and must not be calibrated.
	Uncoverable []vlbi.AntennaID
	// Assignment maps each covered antenna to its scan.
	Assignment map[vlbi.AntennaID]vlbi.ScanID
}

// Empty reports whether no antenna could be covered.
func (r Result) Empty() bool {
	return len(r.Scans) == 0
}

// Selector assigns every antenna to the scan where it shows its best SNR
// with the reference antenna.
type Selector struct {
	Flagger   solver.Flagger
	Threshold float64
}

// Select runs the greedy cover over ranked scans.
func (s *Selector) Select(ctx context.Context, sess *tables.Session, ranked []vlbi.Scan, ref vlbi.AntennaID) (Result, error) {
	ctx = services.WithStage(ctx, "coverage")
	logger := logging.WithContext(ctx, logging.NewComponentLogger(sess.Log(), "coverage"))
	result := Result{Reference: ref, Assignment: make(map[vlbi.AntennaID]vlbi.ScanID)}

	var usable []vlbi.Scan
	for _, sc := range ranked {
		if sc.Has(ref) && sc.TimeInterval > 0 {
			usable = append(usable, sc)
		}
	}

	type best struct {
		scan int
		snr  float64
	}
	bests := make(map[vlbi.AntennaID]best)
	var antennas []vlbi.AntennaID
	for idx, sc := range usable {
		for _, id := range sc.Antennas {
			if id == ref {
				continue
			}
			snr := sc.AntennaSNR(id)
			cur, seen := bests[id]
			if !seen {
				antennas = append(antennas, id)
				bests[id] = best{scan: idx, snr: snr}
				continue
			}
			if !math.IsNaN(snr) && (math.IsNaN(cur.snr) || snr > cur.snr) {
				bests[id] = best{scan: idx, snr: snr}
			}
		}
	}
	slices.Sort(antennas)

	groups := make(map[int]map[vlbi.AntennaID]float64)
	for _, id := range antennas {
		b := bests[id]
		if math.IsNaN(b.snr) || b.snr < s.Threshold {
			result.Uncoverable = append(result.Uncoverable, id)
			continue
		}
		if groups[b.scan] == nil {
			groups[b.scan] = make(map[vlbi.AntennaID]float64)
		}
		groups[b.scan][id] = b.snr
	}

	if len(result.Uncoverable) > 0 {
		if s.Flagger != nil {
			if err := s.Flagger.FlagAntennas(ctx, sess, result.Uncoverable, solver.FlagReasonUncoverable); err != nil {
				return result, services.Wrap(services.ErrExternalTool, "coverage", "flag antennas", "", err)
			}
		}
		for _, id := range result.Uncoverable {
			b := bests[id]
			logging.WarnWithContext(logger, "antenna uncoverable; flagged", "antenna_uncoverable",
				logging.String(logging.FieldAntenna, strconv.Itoa(int(id))),
				logging.Float64("best_snr", b.snr),
				logging.Float64("threshold", s.Threshold),
				logging.String(logging.FieldImpact, "antenna excluded from calibration"),
			)
		}
	}

	for idx, sc := range usable {
		covered, ok := groups[idx]
		if !ok {
			continue
		}
		cal := sc.WithCalibration(ref, covered)
		result.Scans = append(result.Scans, cal)
		for id := range covered {
			result.Assignment[id] = cal.ID
		}
		logging.Decision(logger, "calibration scan selected", "calibrator_scan", strconv.Itoa(int(cal.ID)), "best snr with reference",
			logging.String("source", cal.SourceName),
			logging.Any("antennas", cal.CalibAntennas),
		)
	}

	if result.Empty() {
		logging.WarnWithContext(logger, "no antenna could be covered", "coverage_empty",
			logging.Int("usable_scans", len(usable)),
			logging.String(logging.FieldImpact, "instrumental calibration has no input"),
		)
	}
	return result, nil
}
