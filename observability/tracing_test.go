package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/cascadeflow/cascade/flow"
)

type recordedSpan struct {
	noop.Span
	name  string
	ended bool
}

func (s *recordedSpan) End(...trace.SpanEndOption) { s.ended = true }

type recordingTracer struct {
	noop.Tracer
	spans []*recordedSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	s := &recordedSpan{name: name}
	t.spans = append(t.spans, s)
	return trace.ContextWithSpan(ctx, s), s
}

func TestTracingObserver_SpanPerAction(t *testing.T) {
	tracer := &recordingTracer{}
	obs := NewTracingObserver(context.Background()).WithTracer(tracer)

	pipeline := flow.Chain(
		flow.NewEvent("First", func(flow.ActionData) error { return nil }),
		flow.NewEvent("Second", func(flow.ActionData) error { return nil }),
	)
	data := flow.Create(nil).WithObserver(obs)

	if _, err := flow.Execute(pipeline, data); err != nil {
		t.Fatalf("Execute error = %v", err)
	}

	want := []string{"action.ActionSet", "action.First", "action.Second"}
	if len(tracer.spans) != len(want) {
		t.Fatalf("%d spans; want %d", len(tracer.spans), len(want))
	}
	for i, name := range want {
		if tracer.spans[i].name != name {
			t.Errorf("span[%d] = %q; want %q", i, tracer.spans[i].name, name)
		}
		if !tracer.spans[i].ended {
			t.Errorf("span %q never ended", name)
		}
	}
}

func TestTracingObserver_DefaultsToGlobalTracer(t *testing.T) {
	obs := NewTracingObserver(context.Background())
	data := flow.Create(flow.Values{"n": 1}).WithObserver(obs)

	// The global provider is the no-op one in tests; execution must still
	// work with spans silently dropped.
	if _, err := flow.Execute(flow.Chain(), data); err != nil {
		t.Fatalf("Execute error = %v", err)
	}
}
