package solverexec

import (
	"encoding/json"

	"vlbical/internal/solver"
	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// Action names one solver entry point.
type Action string

const (
	ActionFringe   Action = "fringe"
	ActionFlag     Action = "flag"
	ActionSources  Action = "sources"
	ActionAntennas Action = "antennas"
	ActionExport   Action = "export"
)

// envelope is the JSON document written to the solver's stdin.
type envelope struct {
	Action  Action          `json:"action"`
	Dataset string          `json:"dataset"`
	RunID   string          `json:"run_id,omitempty"`
	Fringe  *solver.Request `json:"fringe,omitempty"`
	Flag    *flagRequest    `json:"flag,omitempty"`
	Export  *exportRequest  `json:"export,omitempty"`
}

type flagRequest struct {
	Antennas []vlbi.AntennaID `json:"antennas"`
	Reason   string           `json:"reason"`
}

type exportRequest struct {
	Target    string `json:"target"`
	CLVersion int    `json:"cl_version"`
}

// response is the JSON document read from the solver's stdout. Only the
// fields relevant to the action are populated.
type response struct {
	Error    string            `json:"error,omitempty"`
	Rows     []wireRow         `json:"rows,omitempty"`
	Sources  map[string]string `json:"sources,omitempty"`
	Antennas []wireAntenna     `json:"antennas,omitempty"`
}

// wireRow carries weights as nullable numbers; null is a blanked solution.
type wireRow struct {
	Antenna      vlbi.AntennaID `json:"antenna"`
	Time         float64        `json:"time"`
	TimeInterval float64        `json:"time_interval"`
	SourceID     int            `json:"source_id"`
	Weights      []*float64     `json:"weights"`
	Reference    bool           `json:"reference,omitempty"`
}

func (w wireRow) row() tables.Row {
	return tables.Row{
		Antenna:      w.Antenna,
		Time:         w.Time,
		TimeInterval: w.TimeInterval,
		SourceID:     w.SourceID,
		Weights:      tables.FromWire(w.Weights),
		Reference:    w.Reference,
	}
}

type wireAntenna struct {
	ID       vlbi.AntennaID `json:"id"`
	Name     string         `json:"name"`
	Position [3]float64     `json:"position"`
}

func decodeResponse(data []byte) (response, error) {
	var resp response
	if len(data) == 0 {
		return resp, nil
	}
	err := json.Unmarshal(data, &resp)
	return resp, err
}
