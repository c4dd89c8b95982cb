// Package logging holds the process-wide zap logger, mirroring how the
// teacher's go-block-cache package reaches for zap.L() directly rather than
// threading a *zap.Logger through every call.
package logging

import "go.uber.org/zap"

// L returns the global structured logger. Callers follow the teacher's
// idiom of zap.L().Error(msg, fields...) rather than wrapping it further.
func L() *zap.Logger {
	return zap.L()
}

// Configure installs l as the process-wide logger. Call once at process
// start; tests may call it with zap.NewNop() to silence output.
func Configure(l *zap.Logger) {
	zap.ReplaceGlobals(l)
}

func init() {
	// A safe default so components can log before any explicit Configure
	// call, matching zap's own "usable zero value" guidance.
	if zap.L() == nil {
		zap.ReplaceGlobals(zap.NewNop())
	}
}
