package log

import "sync/atomic"

var defaultLogger atomic.Pointer[Logger]

// SetDefaultLogger sets the process-wide default logger. Passing nil resets
// it so the next DefaultLogger call builds a fresh one.
func SetDefaultLogger(logger *Logger) {
	defaultLogger.Store(logger)
}

// DefaultLogger returns the process-wide default logger, creating one from
// DefaultConfig on first use.
func DefaultLogger() *Logger {
	for {
		if l := defaultLogger.Load(); l != nil {
			return l
		}
		if l := Default(); defaultLogger.CompareAndSwap(nil, l) {
			return l
		}
	}
}
