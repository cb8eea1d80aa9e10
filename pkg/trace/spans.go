package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanTick       = "loop.tick"
	SpanScriptLoad = "binding.load"

	eventDiscarded = "binding.discarded"
)

// InstrumentTick starts the span for one control loop tick.
func InstrumentTick(ctx context.Context, frame uint64, state string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanTick, trace.WithAttributes(
		attribute.Int64(AttrLoopFrame, int64(frame)),
		attribute.String(AttrLoopState, state),
	))
}

// RecordScriptError marks span failed because bindingName was discarded.
func RecordScriptError(span trace.Span, bindingName string, err error) {
	AddEvent(span, eventDiscarded, append(
		ErrorAttrs("script_runtime", err.Error()),
		attribute.String(AttrBindingName, bindingName),
	)...)
	RecordError(span, err)
}
