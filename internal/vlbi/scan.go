package vlbi

import (
	"maps"
	"slices"
)

// ScanID identifies a scan within one catalog build.
type ScanID int

// MinutesPerDay converts dataset day fractions to minutes.
const MinutesPerDay = 24 * 60

// Scan is an immutable record of one observation scan. Assignment operations
// return modified copies; callers never mutate a Scan in place.
type Scan struct {
	ID ScanID
	// Time is the scan midpoint as a dataset-relative day fraction.
	Time float64
	// TimeInterval is the scan duration in day fractions.
	TimeInterval float64
	SourceID     int
	SourceName   string
	// Antennas lists the antennas present in the scan, ascending.
	Antennas []AntennaID
	// SNR holds per-antenna samples, one per IF and polarization, in row order.
	SNR map[AntennaID][]float64
	// Reference is the antenna whose entry in the solver output was the
	// sentinel. Zero when the scan carried no reference row.
	Reference AntennaID

	// CalibAntennas is set by coverage selection and always contains the
	// reference antenna.
	CalibAntennas []AntennaID
	// CalibSNR holds the recorded IF-averaged SNR of each covered antenna.
	CalibSNR map[AntennaID]float64
}

// Minutes returns the scan duration in minutes.
func (s Scan) Minutes() float64 {
	return s.TimeInterval * MinutesPerDay
}

// Window returns the scan boundaries in day fractions.
func (s Scan) Window() (start, end float64) {
	half := s.TimeInterval / 2
	return s.Time - half, s.Time + half
}

// Has reports whether the antenna observed in this scan.
func (s Scan) Has(id AntennaID) bool {
	_, found := slices.BinarySearch(s.Antennas, id)
	return found
}

// Samples returns the antenna's SNR samples. The reference antenna never
// yields samples.
func (s Scan) Samples(id AntennaID) []float64 {
	if s.Reference != 0 && id == s.Reference {
		return nil
	}
	return s.SNR[id]
}

// AntennaSNR returns the antenna's IF-averaged SNR, NaN when it has no
// usable samples.
func (s Scan) AntennaSNR(id AntennaID) float64 {
	return Mean(s.Samples(id))
}

// AllSamples flattens every non-reference sample in antenna order.
func (s Scan) AllSamples() []float64 {
	ids := slices.Sorted(maps.Keys(s.SNR))
	var out []float64
	for _, id := range ids {
		out = append(out, s.Samples(id)...)
	}
	return out
}

// MedianSNR is the median of AllSamples.
func (s Scan) MedianSNR() float64 {
	return Median(s.AllSamples())
}

// IsCalibration reports whether coverage selection assigned antennas to the scan.
func (s Scan) IsCalibration() bool {
	return len(s.CalibAntennas) > 0
}

// WithCalibration returns a copy of s with its calibration assignment set.
// The reference antenna is always part of the assignment.
func (s Scan) WithCalibration(ref AntennaID, covered map[AntennaID]float64) Scan {
	out := s.clone()
	ids := slices.Collect(maps.Keys(covered))
	if !slices.Contains(ids, ref) {
		ids = append(ids, ref)
	}
	slices.Sort(ids)
	out.CalibAntennas = ids
	out.CalibSNR = maps.Clone(covered)
	if out.CalibSNR == nil {
		out.CalibSNR = map[AntennaID]float64{}
	}
	return out
}

func (s Scan) clone() Scan {
	out := s
	out.Antennas = slices.Clone(s.Antennas)
	if s.SNR != nil {
		out.SNR = make(map[AntennaID][]float64, len(s.SNR))
		for id, samples := range s.SNR {
			out.SNR[id] = slices.Clone(samples)
		}
	}
	out.CalibAntennas = slices.Clone(s.CalibAntennas)
	out.CalibSNR = maps.Clone(s.CalibSNR)
	return out
}
