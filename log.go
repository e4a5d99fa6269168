package datamodels

import (
	"log/slog"
	"sync/atomic"
)

var currentLogger atomic.Pointer[slog.Logger]

// Logger returns the process logger used by every package of this module.
// It defaults to slog.Default() tagged with component=datamodels.
func Logger() *slog.Logger {
	if l := currentLogger.Load(); l != nil {
		return l
	}
	return slog.Default().With(slog.String("component", "datamodels"))
}

// SetLogger replaces the process logger; nil restores the default.
func SetLogger(l *slog.Logger) { currentLogger.Store(l) }
