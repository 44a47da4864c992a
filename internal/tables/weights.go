package tables

import (
	"encoding/json"
	"math"
)

// EncodeWeights renders weights as a JSON array with NaN written as null.
func EncodeWeights(weights []float64) ([]byte, error) {
	wire := make([]*float64, len(weights))
	for i, w := range weights {
		if math.IsNaN(w) {
			continue
		}
		v := w
		wire[i] = &v
	}
	return json.Marshal(wire)
}

// DecodeWeights parses the output of EncodeWeights; null becomes NaN.
func DecodeWeights(data []byte) ([]float64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var wire []*float64
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	return FromWire(wire), nil
}

// FromWire converts nullable weights to floats, null becoming NaN.
func FromWire(wire []*float64) []float64 {
	if wire == nil {
		return nil
	}
	out := make([]float64, len(wire))
	for i, w := range wire {
		if w == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *w
	}
	return out
}
