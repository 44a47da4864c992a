package fringe

import (
	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// Count tallies good and attempted solutions.
type Count struct {
	Good  int
	Total int
}

// Outcome summarises the solutions of one fringe-fit table.
type Outcome struct {
	Good       int
	Total      int
	PerAntenna map[vlbi.AntennaID]Count
}

// Ratio is the fraction of non-failed solutions, zero for an empty table.
func (o Outcome) Ratio() float64 {
	if o.Total <= 0 {
		return 0
	}
	return 1 - float64(o.Total-o.Good)/float64(o.Total)
}

// Evaluate counts every weight of every non-reference row. A zero or NaN
// weight is a failed solution.
func Evaluate(table tables.Table) Outcome {
	out := Outcome{PerAntenna: make(map[vlbi.AntennaID]Count)}
	for _, row := range table.Rows {
		if row.Reference {
			continue
		}
		c := out.PerAntenna[row.Antenna]
		for _, w := range row.Weights {
			c.Total++
			out.Total++
			if !tables.Failed(w) {
				c.Good++
				out.Good++
			}
		}
		out.PerAntenna[row.Antenna] = c
	}
	return out
}
