package config

import "github.com/lumineer/alight/internal/util"

// Verbosity values accepted by ConfigOverride.LogLvl and the CLI -v flag.
// Higher is chattier; values outside the range are clamped.
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// VerbosityToLogLevel clamps v to [ErrorVerbose, TraceVerbose] and maps it
// to the internal log level.
func VerbosityToLogLevel(v int) util.LogLevel {
	v = max(ErrorVerbose, min(v, TraceVerbose))
	lvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return lvls[v-1]
}

// Built-in backend types
const (
	FSBackend       = "fs"
	SnapshotBackend = "snapshot"
)
