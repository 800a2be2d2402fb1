package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts.
const (
	VerbosityUser  = 0 // No flags: results, warnings and errors
	VerbosityInfo  = 1 // -v: + phase progress, tool acquisition
	VerbosityDebug = 2 // -vv: + commands, candidate attempts, config details
	VerbosityTrace = 3 // -vvv: + subprocess output lines
)

// VerbosityToLevel maps verbosity flags (-v, -vv, etc.) to zap log levels
//
// Mapping:
//
//	0 (none)  -> WarnLevel  (errors and warnings only)
//	1 (-v)    -> InfoLevel  (+ informational messages)
//	2+ (-vv)  -> DebugLevel (+ debug messages)
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// ShouldLogTrace returns true for verbosity >= 3 (-vvv)
func ShouldLogTrace(verbosity int) bool {
	return verbosity >= VerbosityTrace
}

// LevelName returns a human-readable name for verbosity level
func LevelName(verbosity int) string {
	switch {
	case verbosity <= VerbosityUser:
		return "User"
	case verbosity == VerbosityInfo:
		return "Info (-v)"
	case verbosity == VerbosityDebug:
		return "Debug (-vv)"
	default:
		return "Trace (-vvv)"
	}
}
