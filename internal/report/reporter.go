// Package report defines the structured reporter importers write through.
package report

import "go.uber.org/zap"

// Reporter receives human-facing progress and diagnostics. *zap.Logger satisfies it.
type Reporter interface {
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

var _ Reporter = (*zap.Logger)(nil)

// OrNop returns r, or a no-op reporter when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return zap.NewNop()
	}
	if l, ok := r.(*zap.Logger); ok && l == nil {
		return zap.NewNop()
	}
	return r
}
