package utils

import (
	"log/slog"
)

// LogAndPanic is reserved for startup failures where the service cannot run
// at all. The error is logged, captured, then re-raised as a panic.
func LogAndPanic(logger *slog.Logger, err error, message string) {
	logger.Error(message, slog.String("error", err.Error()))
	CaptureError(err)
	panic(err)
}
