package vlbi

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// AntennaID is the dataset-stable station number.
type AntennaID int

// Antenna describes one station of the array.
type Antenna struct {
	ID       AntennaID
	Name     string
	Position [3]float64
	// DistanceToCenter is derived by NewArray from the array centroid, in the
	// same units as Position.
	DistanceToCenter float64
}

var upper = cases.Upper(language.Und)

// NormalizeCode canonicalises a station code for lookups ("kp " -> "KP").
func NormalizeCode(code string) string {
	return upper.String(strings.TrimSpace(code))
}

// Array is the immutable antenna table of one dataset.
type Array struct {
	antennas []Antenna
	byID     map[AntennaID]int
	byCode   map[string]AntennaID
}

// NewArray indexes antennas by id and code and fills DistanceToCenter.
// Duplicate ids keep the first entry.
func NewArray(antennas []Antenna) *Array {
	arr := &Array{
		byID:   make(map[AntennaID]int, len(antennas)),
		byCode: make(map[string]AntennaID, len(antennas)),
	}
	for _, ant := range antennas {
		if _, dup := arr.byID[ant.ID]; dup {
			continue
		}
		arr.antennas = append(arr.antennas, ant)
		arr.byID[ant.ID] = len(arr.antennas) - 1
	}
	slices.SortFunc(arr.antennas, func(a, b Antenna) int { return int(a.ID - b.ID) })

	var center [3]float64
	for _, ant := range arr.antennas {
		for i := range center {
			center[i] += ant.Position[i]
		}
	}
	if n := float64(len(arr.antennas)); n > 0 {
		for i := range center {
			center[i] /= n
		}
	}
	for idx := range arr.antennas {
		ant := &arr.antennas[idx]
		var sum float64
		for i := range center {
			d := ant.Position[i] - center[i]
			sum += d * d
		}
		ant.DistanceToCenter = math.Sqrt(sum)
		arr.byID[ant.ID] = idx
		if code := NormalizeCode(ant.Name); code != "" {
			if _, taken := arr.byCode[code]; !taken {
				arr.byCode[code] = ant.ID
			}
		}
	}
	return arr
}

// Antennas returns the array ordered by id.
func (a *Array) Antennas() []Antenna {
	if a == nil {
		return nil
	}
	return slices.Clone(a.antennas)
}

// IDs returns every antenna id in ascending order.
func (a *Array) IDs() []AntennaID {
	if a == nil {
		return nil
	}
	ids := make([]AntennaID, len(a.antennas))
	for i, ant := range a.antennas {
		ids[i] = ant.ID
	}
	return ids
}

// Get returns the antenna with the given id.
func (a *Array) Get(id AntennaID) (Antenna, bool) {
	if a == nil {
		return Antenna{}, false
	}
	idx, ok := a.byID[id]
	if !ok {
		return Antenna{}, false
	}
	return a.antennas[idx], true
}

// Lookup resolves a station code to its id.
func (a *Array) Lookup(code string) (AntennaID, bool) {
	if a == nil {
		return 0, false
	}
	id, ok := a.byCode[NormalizeCode(code)]
	return id, ok
}

// Name returns the station code for id, or a numeric placeholder.
func (a *Array) Name(id AntennaID) string {
	if ant, ok := a.Get(id); ok && ant.Name != "" {
		return ant.Name
	}
	return "ANT" + strconv.Itoa(int(id))
}

// NearestCenter orders ids by distance to the array centre (ties by id) and
// returns at most limit of them. Unknown ids sort last.
func (a *Array) NearestCenter(ids []AntennaID, limit int) []AntennaID {
	out := slices.Clone(ids)
	slices.SortStableFunc(out, func(x, y AntennaID) int {
		dx, dy := a.distance(x), a.distance(y)
		switch {
		case dx < dy:
			return -1
		case dx > dy:
			return 1
		}
		return int(x - y)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (a *Array) distance(id AntennaID) float64 {
	if ant, ok := a.Get(id); ok {
		return ant.DistanceToCenter
	}
	return math.Inf(1)
}
