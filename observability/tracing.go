// Package observability bridges pipeline execution to OpenTelemetry.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cascadeflow/cascade/flow"
)

const tracerName = "github.com/cascadeflow/cascade"

// TracingObserver opens one span per executed action, nesting child action
// spans under their parent's. Attach it to a registry with WithObserver
// before executing the pipeline; like every observer it is scoped to a
// single pipeline invocation.
type TracingObserver struct {
	tracer trace.Tracer
	ctx    context.Context
	stack  []spanFrame
}

type spanFrame struct {
	ctx  context.Context
	span trace.Span
}

// NewTracingObserver builds an observer rooting all spans under the given
// context, using the globally registered tracer provider.
func NewTracingObserver(ctx context.Context) *TracingObserver {
	return &TracingObserver{
		tracer: otel.Tracer(tracerName),
		ctx:    ctx,
	}
}

// WithTracer overrides the tracer, for embedders carrying their own
// provider.
func (o *TracingObserver) WithTracer(t trace.Tracer) *TracingObserver {
	o.tracer = t
	return o
}

// ShouldRecord keeps composite actions too: their spans give the trace its
// shape.
func (o *TracingObserver) ShouldRecord(flow.Action) bool { return true }

func (o *TracingObserver) RecordStart(a flow.Action) {
	parent := o.ctx
	if n := len(o.stack); n > 0 {
		parent = o.stack[n-1].ctx
	}
	ctx, span := o.tracer.Start(parent, "action."+a.Name(),
		trace.WithAttributes(
			attribute.String("action.name", a.Name()),
			attribute.Bool("action.system", flow.IsSystemAction(a)),
		))
	o.stack = append(o.stack, spanFrame{ctx: ctx, span: span})
}

func (o *TracingObserver) RecordEnd(flow.Action) {
	n := len(o.stack)
	if n == 0 {
		return
	}
	o.stack[n-1].span.End()
	o.stack = o.stack[:n-1]
}
