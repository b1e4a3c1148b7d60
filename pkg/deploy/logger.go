package deploy

import "go.uber.org/zap"

// nopIfNil lets every component accept an optional logger; a nil logger
// discards everything.
func nopIfNil(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
