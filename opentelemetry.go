package patchwork

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Initialize the tracer lazily to allow user to have a chance to configure
// the global tracer provider.
var tracer = otel.Tracer("github.com/patchwork-ai/patchwork-go")

// traceThink wraps one think block in a span.
func traceThink[Output any](
	ctx context.Context,
	toolCount int,
	fn func(context.Context) (Output, error),
) (Output, error) {
	spanCtx, span := tracer.Start(ctx, "patchwork.think")
	defer func() {
		span.SetAttributes(
			attribute.String("gen_ai.operation.name", "invoke_agent"),
			attribute.Int("patchwork.tool_count", toolCount),
		)
		span.End()
	}()

	out, err := fn(spanCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// startActiveToolSpan creates a span for one tool invocation.
func startActiveToolSpan[Out any](
	ctx context.Context,
	toolName string,
	toolDescription string,
	fn func(context.Context) (Out, error),
) (Out, error) {
	spanCtx, span := tracer.Start(ctx, "patchwork.tool")
	defer func() {
		// Set attributes following OpenTelemetry semantic conventions
		span.SetAttributes(
			attribute.String("gen_ai.operation.name", "execute_tool"),
			attribute.String("gen_ai.tool.description", toolDescription),
			attribute.String("gen_ai.tool.name", toolName),
			attribute.String("gen_ai.tool.type", "function"),
		)
		span.End()
	}()

	out, err := fn(spanCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}
