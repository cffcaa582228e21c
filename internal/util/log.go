package util

import (
	"fmt"
	"sync/atomic"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05.000"
	pterm.DefaultLogger.MaxWidth = 1000
}

// role is prefixed to every log line so that the three processes can share
// one terminal.
var role atomic.Value

// SetRole sets the prefix shown before every log message, e.g. "relay".
func SetRole(name string) {
	role.Store(name)
}

func format(f string, args ...interface{}) string {
	msg := fmt.Sprintf(f, args...)
	if r, _ := role.Load().(string); r != "" {
		return "[" + r + "] " + msg
	}
	return msg
}

// Leveled logging functions backed by pterm's default logger.
// All output goes to stderr by default (pterm's default).

func LogDebug(f string, args ...interface{}) {
	pterm.DefaultLogger.Debug(format(f, args...))
}

func LogInfo(f string, args ...interface{}) {
	pterm.DefaultLogger.Info(format(f, args...))
}

func LogSuccess(f string, args ...interface{}) {
	pterm.DefaultLogger.Info(format(f, args...))
}

func LogWarning(f string, args ...interface{}) {
	pterm.DefaultLogger.Warn(format(f, args...))
}

func LogError(f string, args ...interface{}) {
	pterm.DefaultLogger.Error(format(f, args...))
}

// EnableDebug configures the logger to show debug messages, which include
// the rendering of every packet sent and received.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}
