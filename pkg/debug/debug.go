// Package debug provides conditional trace logging for the window
// pipeline.
//
// Trace logging is enabled by setting the RA2_DEBUG environment variable:
//
//	RA2_DEBUG=1 retnet -parquet-root ...
//
// When enabled, messages are written to stderr with timestamps. When
// disabled (default), all functions are no-ops with zero overhead.
package debug

import (
	"fmt"
	"log"
	"os"
	"time"
)

var (
	enabled bool
	logger  *log.Logger
)

func init() {
	if os.Getenv("RA2_DEBUG") != "" {
		enabled = true
		logger = log.New(os.Stderr, "[RA2_DEBUG] ", log.Ltime|log.Lmicroseconds)
	}
}

// Log writes a formatted trace message when enabled.
func Log(format string, args ...any) {
	if !enabled {
		return
	}
	logger.Output(2, fmt.Sprintf(format, args...))
}

// LogTiming records the duration of a named stage when enabled.
func LogTiming(name string, elapsed time.Duration) {
	if !enabled {
		return
	}
	logger.Output(2, fmt.Sprintf("%s took %s", name, elapsed))
}
