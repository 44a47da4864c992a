package testsupport

import (
	"slices"
	"testing"

	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// Row builds a solution row for antenna with the given per-IF weights.
func Row(antenna vlbi.AntennaID, weights ...float64) tables.Row {
	return tables.Row{Antenna: antenna, Weights: weights}
}

// RefRow builds the reference antenna's sentinel row.
func RefRow(antenna vlbi.AntennaID, sentinel float64) tables.Row {
	return tables.Row{Antenna: antenna, Weights: []float64{sentinel}, Reference: true}
}

// SurveyRow builds a survey row for one antenna in one scan. Times are
// given in minutes and converted to day fractions.
func SurveyRow(timeMinutes, intervalMinutes float64, source int, antenna vlbi.AntennaID, weights ...float64) tables.Row {
	return tables.Row{
		Antenna:      antenna,
		Time:         timeMinutes / vlbi.MinutesPerDay,
		TimeInterval: intervalMinutes / vlbi.MinutesPerDay,
		SourceID:     source,
		Weights:      weights,
	}
}

// ScanOf builds a scan with samples per antenna. Antennas are taken from the
// keys of snr plus ref.
func ScanOf(id vlbi.ScanID, minutes float64, ref vlbi.AntennaID, snr map[vlbi.AntennaID][]float64) vlbi.Scan {
	ants := make([]vlbi.AntennaID, 0, len(snr)+1)
	seen := map[vlbi.AntennaID]bool{}
	for a := range snr {
		ants = append(ants, a)
		seen[a] = true
	}
	if ref != 0 && !seen[ref] {
		ants = append(ants, ref)
	}
	slices.Sort(ants)
	return vlbi.Scan{
		ID:           id,
		Time:         float64(id) / 100,
		TimeInterval: minutes / vlbi.MinutesPerDay,
		SourceID:     1,
		SourceName:   "CAL",
		Antennas:     ants,
		SNR:          snr,
		Reference:    ref,
	}
}

// NewSession opens a session on store for dataset "TEST" with a no-op logger.
func NewSession(t testing.TB, store tables.Store) *tables.Session {
	t.Helper()
	sess, err := tables.NewSession("TEST", "run-test", store, nil)
	if err != nil {
		t.Fatalf("tables.NewSession: %v", err)
	}
	return sess
}
