package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "meetsync"

const (
	SpanRun         = "meetsync.run"
	SpanParticipant = "meetsync.participant"
	SpanDiarize     = "meetsync.diarize"
	SpanSummarize   = "meetsync.summarize"
)

const (
	AttrRunID        = "run_id"
	AttrParticipant  = "participant"
	AttrParticipants = "participants"
	AttrSegments     = "segments"
	AttrStage        = "stage"
)

// Tracer uses the globally registered provider, a no-op unless the binary installs one.
type Tracer struct {
	tracer trace.Tracer
}

func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

func (t *Tracer) StartRun(ctx context.Context, runID string, participants int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanRun,
		trace.WithAttributes(
			attribute.String(AttrRunID, runID),
			attribute.Int(AttrParticipants, participants),
		),
	)
}

func (t *Tracer) StartParticipant(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanParticipant,
		trace.WithAttributes(attribute.String(AttrParticipant, name)),
	)
}

func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// End closes span, marking it failed when err is non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
