package config

const (
	defaultStateDir          = "~/.local/share/vlbical"
	defaultLogDir            = "~/.local/share/vlbical/logs"
	defaultLockDir           = "~/.local/share/vlbical/locks"
	defaultSolverCommand     = "fringe-solver"
	defaultDelayWindowNS     = 1000
	defaultRateWindowMHz     = 100
	defaultMaxSearchAntennas = 10
	defaultSolintMinMinutes  = 1
	defaultSolintMaxMinutes  = 10
	defaultSolintSampleScans = 10
	defaultSolintSeed        = 42
	defaultDetectionSNR      = 5
	defaultAcceptRatio       = 0.99
	defaultInterpolation     = "2PT"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
)

// defaultPriority lists antennas close to the centre of common VLBI arrays,
// most central first.
var defaultPriority = []string{"LA", "PT", "KP", "FD", "OV", "EF", "MC", "YS", "O8", "BR"}

var defaultRequiredTables = []string{"TY", "GC"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			LockDir:  defaultLockDir,
		},
		Solver: Solver{
			Command:       defaultSolverCommand,
			DelayWindowNS: defaultDelayWindowNS,
			RateWindowMHz: defaultRateWindowMHz,
		},
		ReferenceAntenna: ReferenceAntenna{
			Priority:          append([]string(nil), defaultPriority...),
			MaxSearchAntennas: defaultMaxSearchAntennas,
		},
		Solint: Solint{
			MinMinutes:  defaultSolintMinMinutes,
			MaxMinutes:  defaultSolintMaxMinutes,
			SampleScans: defaultSolintSampleScans,
			Seed:        defaultSolintSeed,
		},
		Quality: Quality{
			DetectionSNR: defaultDetectionSNR,
			AcceptRatio:  defaultAcceptRatio,
		},
		Tables: Tables{
			Required:      append([]string(nil), defaultRequiredTables...),
			Interpolation: defaultInterpolation,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
