// Structured logging threaded from Root into every vended collection
// store. The teacher has no logging at all (folio is silent by design);
// this is adopted wholesale from iamNilotpal-ignite, whose sole purpose is
// a zap-based logger setup for exactly this kind of embedded service.
package zds

import "go.uber.org/zap"

// newNopLogger returns a logger that discards everything, so the engine
// never requires a configured logging backend to function.
func newNopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// NewLogger builds a production-profile structured logger (JSON encoding,
// info level) suitable for passing as Open's logger argument.
func NewLogger() (*zap.SugaredLogger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
