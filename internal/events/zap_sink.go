package events

import "go.uber.org/zap"

// ZapSink is the production Sink, backed by a *zap.Logger. It mirrors
// original_source's LoggerFactory: a single place that knows about the
// logging library, so every other package depends only on Sink.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink wraps an existing *zap.Logger. Pass zap.NewNop() in tests
// that want a real Sink value without log output.
func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

func (s *ZapSink) Emit(e Event) {
	fields := make([]zap.Field, 0, 8)
	if e.Key != "" {
		fields = append(fields, zap.String("key", e.Key))
	}
	if e.SegmentID != 0 {
		fields = append(fields, zap.Int("segment_id", e.SegmentID))
	}
	if e.Offset != 0 {
		fields = append(fields, zap.Int64("offset", e.Offset))
	}
	if e.DurationMillis != 0 {
		fields = append(fields, zap.Float64("duration_ms", e.DurationMillis))
	}
	if e.RequestID != "" {
		fields = append(fields, zap.String("request_id", e.RequestID))
	}

	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
		s.log.Error(string(e.Kind), fields...)
		return
	}

	s.log.Info(string(e.Kind), fields...)
}
