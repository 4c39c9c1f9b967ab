// Package ui provides terminal styling and logger setup for docrag.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// InitLogger initializes the charm logger with default settings.
func InitLogger() {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(false)
	log.SetReportTimestamp(false)
}

// SetDebug enables debug logging.
func SetDebug(enabled bool) {
	if enabled {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// SetQuiet keeps warnings and errors only. Used by commands whose stdout is
// machine readable.
func SetQuiet() {
	log.SetLevel(log.WarnLevel)
}

// SetOutput redirects log output. Long-running servers log with timestamps.
func SetOutput(w io.Writer, timestamps bool) {
	log.SetOutput(w)
	log.SetReportTimestamp(timestamps)
}
