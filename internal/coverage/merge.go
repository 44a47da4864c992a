package coverage

import (
	"fmt"
	"slices"

	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// Merge combines the per-scan solution tables of a multi-calibrator cover
// into one table. Each antenna's rows come from the table of the scan that
// covers it; the reference rows come from the first scan's table. Values are
// overridden per antenna, never averaged.
func Merge(byScan map[vlbi.ScanID]tables.Table, scans []vlbi.Scan, ref vlbi.AntennaID) (tables.Table, error) {
	if len(scans) == 0 {
		return tables.Table{}, fmt.Errorf("merge: no calibration scans")
	}
	merged := tables.Table{Kind: tables.KindSN}
	for idx, sc := range scans {
		tbl, ok := byScan[sc.ID]
		if !ok {
			return tables.Table{}, fmt.Errorf("merge: no table for scan %d", sc.ID)
		}
		owned := make(map[vlbi.AntennaID]struct{}, len(sc.CalibAntennas))
		for _, id := range sc.CalibAntennas {
			if id != ref {
				owned[id] = struct{}{}
			}
		}
		for _, row := range tbl.Rows {
			isRef := row.Reference || row.Antenna == ref
			if isRef {
				if idx == 0 {
					merged.Rows = append(merged.Rows, cloneRow(row))
				}
				continue
			}
			if _, mine := owned[row.Antenna]; mine {
				merged.Rows = append(merged.Rows, cloneRow(row))
			}
		}
	}
	return merged, nil
}

func cloneRow(r tables.Row) tables.Row {
	r.Weights = slices.Clone(r.Weights)
	return r
}
