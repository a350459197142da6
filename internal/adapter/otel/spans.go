package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "zmead-core"

// StartTurnSpan starts a span covering one assistant turn. The turn ID
// is not known yet when the request arrives; the session carries the
// correlation.
func StartTurnSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "turn",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
		),
	)
}

// StartCapabilityCallSpan starts a span for one capability API call.
func StartCapabilityCallSpan(ctx context.Context, path string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "capability.call",
		trace.WithAttributes(
			attribute.String("capability.path", path),
		),
	)
}

// StartDeductSpan starts a span for one ledger deduction.
func StartDeductSpan(ctx context.Context, operationID, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "credit.deduct",
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("credit.tool", tool),
		),
	)
}
