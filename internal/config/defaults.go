package config

const (
	defaultCaseDir    = "~/vesselflow/cases"
	defaultLogDir     = "~/.local/share/vesselflow/logs"
	defaultJournalDir = "~/.local/share/vesselflow/journal"

	defaultPollInterval       = 2
	defaultErrorRetryInterval = 5
	defaultSettleDelayMs      = 500

	defaultSegmentationTimeout = 120
	defaultCenterlineTimeout   = 600
	defaultCPRTimeout          = 300

	defaultThresholdLow   = 200
	defaultThresholdHigh  = 600
	defaultMinModelPoints = 11
	defaultMinCurvePoints = 6

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CaseDir:    defaultCaseDir,
			LogDir:     defaultLogDir,
			JournalDir: defaultJournalDir,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			SettleDelayMs:      defaultSettleDelayMs,
		},
		Timeouts: Timeouts{
			Segmentation: defaultSegmentationTimeout,
			Centerline:   defaultCenterlineTimeout,
			CPR:          defaultCPRTimeout,
		},
		Thresholds: Thresholds{
			DefaultLow:     defaultThresholdLow,
			DefaultHigh:    defaultThresholdHigh,
			MinModelPoints: defaultMinModelPoints,
			MinCurvePoints: defaultMinCurvePoints,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
