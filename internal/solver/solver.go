package solver

import (
	"context"

	"vlbical/internal/tables"
	"vlbical/internal/vlbi"
)

// Window bounds a request in dataset day fractions. The zero value selects
// the whole dataset.
type Window struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// IsZero reports whether the window selects the whole dataset.
func (w Window) IsZero() bool {
	return w.Start == 0 && w.End == 0
}

// ScanWindow returns the window covering exactly one scan.
func ScanWindow(s vlbi.Scan) Window {
	start, end := s.Window()
	return Window{Start: start, End: end}
}

// Request describes one fringe-fit invocation.
type Request struct {
	Reference vlbi.AntennaID `json:"reference"`
	// Sources restricts the fit to the named sources; empty means all.
	Sources []string `json:"sources,omitempty"`
	Window  Window   `json:"window"`
	// SolutionInterval in minutes; zero solves once per scan.
	SolutionInterval float64 `json:"solution_interval"`
	DelayWindowNS    float64 `json:"delay_window_ns"`
	RateWindowMHz    float64 `json:"rate_window_mhz"`
	StopAtFFT        bool    `json:"stop_at_fft"`
	AverageIFs       bool    `json:"average_ifs"`
	// SearchAntennas are alternate anchors tried when the reference baseline fails.
	SearchAntennas     []vlbi.AntennaID `json:"search_antennas,omitempty"`
	AntennaRestriction []vlbi.AntennaID `json:"antennas,omitempty"`
	OutputVersion      int              `json:"output_version"`
}

// FringeSolver runs the external fringe search and writes an SN table at
// req.OutputVersion, which it also returns.
type FringeSolver interface {
	FringeFit(ctx context.Context, sess *tables.Session, req Request) (tables.Table, error)
}

// Flagger excludes antennas from further calibration.
type Flagger interface {
	FlagAntennas(ctx context.Context, sess *tables.Session, ids []vlbi.AntennaID, reason string) error
}

// SourceDirectory resolves source ids to names.
type SourceDirectory interface {
	SourceName(ctx context.Context, sess *tables.Session, id int) (string, bool)
}

// AntennaDirectory lists the dataset's antennas.
type AntennaDirectory interface {
	Antennas(ctx context.Context, sess *tables.Session) ([]vlbi.Antenna, error)
}

// Exporter writes a calibrated target out of the dataset.
type Exporter interface {
	Export(ctx context.Context, sess *tables.Session, target string, clVersion int) error
}

// Toolkit bundles every external collaborator the pipeline drives.
type Toolkit interface {
	FringeSolver
	Flagger
	SourceDirectory
	AntennaDirectory
	Exporter
}

// FlagReasonUncoverable tags antennas without an adequate calibrator scan.
const FlagReasonUncoverable = "UNCOVERABLE"
