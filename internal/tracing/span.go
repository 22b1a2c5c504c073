package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	AttrSessionID    = attribute.Key("tcpcrank.session_id")
	AttrRunID        = attribute.Key("tcpcrank.run_id")
	AttrRequestIndex = attribute.Key("tcpcrank.request_index")
	AttrErrorKind    = attribute.Key("tcpcrank.error_kind")
	AttrPeerAddress  = attribute.Key("net.peer.address")
	AttrBytesSent    = attribute.Key("tcpcrank.bytes_sent")
	AttrBytesRecv    = attribute.Key("tcpcrank.bytes_received")

	AttrConnections        = attribute.Key("tcpcrank.connections")
	AttrRequestsPerSession = attribute.Key("tcpcrank.requests_per_session")
)

// StartSessionSpan starts the span covering one client session.
func StartSessionSpan(ctx context.Context, tracer trace.Tracer, sessionID int, address, runID string) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(TracerName)
	}
	ctx, span := tracer.Start(ctx, "tcp session",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		AttrSessionID.Int(sessionID),
		AttrPeerAddress.String(address),
	)
	if runID != "" {
		span.SetAttributes(AttrRunID.String(runID))
	}
	return ctx, span
}

// StartRequestSpan starts a child span for request index of the current session.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, index int) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(TracerName)
	}
	ctx, span := tracer.Start(ctx, "tcp request",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(AttrRequestIndex.Int(index))
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
