// Package monitoring holds the process-wide diagnostic log hook used by the
// simulation and sweep packages.
package monitoring

import (
	"log"
	"sync"
)

var (
	mu   sync.RWMutex
	logf = log.Printf
)

// Logf writes a diagnostic line through the current logger.
func Logf(format string, v ...any) {
	mu.RLock()
	f := logf
	mu.RUnlock()
	f(format, v...)
}

// Warnf logs a line prefixed with "WARNING: ".
func Warnf(format string, v ...any) {
	Logf("WARNING: "+format, v...)
}

// SetLogger replaces the package logger and returns the previous one.
// Passing nil mutes logging.
func SetLogger(f func(format string, v ...any)) func(format string, v ...any) {
	if f == nil {
		f = func(string, ...any) {}
	}
	mu.Lock()
	defer mu.Unlock()
	prev := logf
	logf = f
	return prev
}
