package generator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type traced struct {
	next   Generator
	tracer trace.Tracer
}

// WithTracing records one span per Generate call.
func WithTracing(next Generator, tracer trace.Tracer) Generator {
	if tracer == nil {
		return next
	}
	return &traced{next: next, tracer: tracer}
}

func (t *traced) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, span := t.tracer.Start(ctx, "generator.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("generator.purpose", string(req.Purpose)),
			attribute.Int("generator.prompt_length", len(req.Prompt)),
		))
	defer span.End()

	resp, err := t.next.Generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("generator.model", resp.Model),
		attribute.Int("generator.response_length", len(resp.Text)),
	)
	return resp, nil
}
