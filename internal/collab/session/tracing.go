package session

import (
	"context"

	"coauthor-backend/internal/infrastructure/observability"
	"coauthor-backend/pkg/protocol"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan opens the span for one room handler run. It uses the global
// provider installed by observability.InitTracing.
func StartSpan(ctx context.Context, kind RoomKind, roomID string, event protocol.EventType) (context.Context, trace.Span) {
	return otel.Tracer(observability.TracerName).Start(ctx, string(kind)+"."+string(event),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("coauthor.room.kind", string(kind)),
			attribute.String("coauthor.room.id", roomID),
			attribute.String("coauthor.event", string(event)),
		),
	)
}
