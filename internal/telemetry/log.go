package telemetry

import (
	"go.uber.org/zap"
)

// LogRecorder warns whenever the QP solver reports a nonzero status and, in
// verbose mode, writes one structured line per iteration.
type LogRecorder struct {
	logger  *zap.Logger
	verbose bool
}

func NewLogRecorder(logger *zap.Logger, verbose bool) *LogRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogRecorder{logger: logger.Named("rti"), verbose: verbose}
}

func (l *LogRecorder) Record(c Cycle) {
	if !c.Status.OK() {
		l.logger.Warn("QP solver returned an error code",
			zap.Int("iteration", c.Iteration),
			zap.Int("status", int(c.Status)),
			zap.Stringer("reason", c.Status),
		)
	}
	if c.Degraded {
		l.logger.Warn("preparation degraded", zap.Int("iteration", c.Iteration))
	}
	if !l.verbose {
		return
	}
	l.logger.Info("real-time iteration",
		zap.Int("iteration", c.Iteration),
		zap.Float64("kkt", c.KKT),
		zap.Duration("preparation", c.Preparation),
		zap.Duration("feedback", c.Feedback),
	)
}
