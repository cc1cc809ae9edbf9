package dice

import "go.uber.org/zap"

// Roller wraps a Source and logger. Every roll is logged at debug level with
// expression, dice values, modifier, total and the draw position when the
// source is a Stream.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that rolls with src and logs to logger.
//
// Precondition: src must be non-nil. A nil logger disables logging.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Roller{src: src, logger: logger}
}

// Roll evaluates expr and logs the result.
func (r *Roller) Roll(expr Expression) RollResult {
	result := Roll(expr, r.src)
	fields := []zap.Field{
		zap.String("expression", result.Expression),
		zap.Ints("dice", result.Dice),
		zap.Int("modifier", result.Modifier),
		zap.Int("total", result.Total()),
	}
	if s, ok := r.src.(*Stream); ok {
		fields = append(fields, zap.Uint64("draw", s.Counter()))
	}
	r.logger.Debug("dice roll", fields...)
	return result
}

// Chance draws once from the source and reports whether the draw is <= p.
func (r *Roller) Chance(p float64) bool {
	return r.src.Float64() <= Clamp01(p)
}
