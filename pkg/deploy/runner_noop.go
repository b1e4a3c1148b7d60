package deploy

import "go.uber.org/zap"

// NoopRunner logs steps but does not touch any filesystem. Used for
// --dry-run.
type NoopRunner struct {
	Logger *zap.Logger
}

func NewNoopRunner(logger *zap.Logger) *NoopRunner { return &NoopRunner{Logger: nopIfNil(logger)} }

func (n *NoopRunner) Run(step Step) error {
	nopIfNil(n.Logger).Info("dry run", zap.String("op", step.Operation), zap.String("step", step.Description))
	return nil
}
