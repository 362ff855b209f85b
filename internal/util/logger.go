// Package util provides helper functions for logging events
package util

import (
	"fmt"
	"log"
	"os"
	"time"
)

// SetupLogger configures the standard logger for the application.
// Timestamps are carried in the message itself, so the default prefix is dropped.
func SetupLogger() {
	log.SetFlags(0)
	log.SetOutput(os.Stderr)
}

// Info prints general system information messages with timestamp.
func Info(msg string, args ...any) {
	log.Printf("[INFO] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Warn prints recoverable problem messages with timestamp.
func Warn(msg string, args ...any) {
	log.Printf("[WARN] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Error prints error messages with timestamp.
func Error(msg string, args ...any) {
	log.Printf("[ERROR] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Debug prints verbose diagnostics when MOLDMAP_DEBUG is set.
func Debug(msg string, args ...any) {
	if os.Getenv("MOLDMAP_DEBUG") == "" {
		return
	}
	log.Printf("[DEBUG] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}
