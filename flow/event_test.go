package flow

import (
	"context"
	"errors"
	"testing"
)

func TestEvent_PassesDataThrough(t *testing.T) {
	var seen any
	ev := NewEvent("Peek", func(data ActionData) error {
		seen, _ = data.Get("n")
		return nil
	})

	out, err := Execute(ev, Create(Values{"n": 7}))
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if seen != 7 {
		t.Errorf("side effect saw %v; want 7", seen)
	}
	if len(out.Entries()) != 1 {
		t.Errorf("event changed the registry: %v", out.AsMap())
	}
}

func TestEvent_NoSideEffect(t *testing.T) {
	_, err := Execute(&Event{base: base{name: "Empty"}, blocking: true}, Create(nil))
	if !errors.Is(err, ErrNotProperlyInherited) {
		t.Errorf("Execute error = %v; want ErrNotProperlyInherited", err)
	}
}

func TestEvent_BlockingAsyncAwaitsInPlace(t *testing.T) {
	fired := false
	ev := NewEvent("Notify", func(ActionData) error { fired = true; return nil })

	out, err := ExecuteAsync(context.Background(), ev, Create(nil))
	if err != nil {
		t.Fatalf("ExecuteAsync error = %v", err)
	}
	if !fired {
		t.Errorf("blocking event did not run before returning")
	}
	if len(out.Futures()) != 0 {
		t.Errorf("blocking event attached a future")
	}
}

func TestEvent_NonBlockingErrorSurfacesOnWait(t *testing.T) {
	boom := errors.New("webhook down")
	ev := NewEvent("Notify", func(ActionData) error { return boom }).NonBlocking()

	out, err := ExecuteAsync(context.Background(), ev, Create(nil))
	if err != nil {
		t.Fatalf("ExecuteAsync error = %v", err)
	}
	if err := out.WaitFutures(context.Background()); !errors.Is(err, boom) {
		t.Errorf("WaitFutures error = %v; want boom", err)
	}
}

func TestEvent_NonBlockingOutlivesCallerContext(t *testing.T) {
	var ctxErr error
	release := make(chan struct{})
	ev := NewEvent("Notify", nil).NonBlocking().
		WithSideEffectAsync(func(ctx context.Context, _ ActionData) error {
			<-release
			ctxErr = ctx.Err()
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	out, err := ExecuteAsync(ctx, ev, Create(nil))
	if err != nil {
		t.Fatalf("ExecuteAsync error = %v", err)
	}
	cancel()
	close(release)

	if err := out.WaitFutures(context.Background()); err != nil {
		t.Fatalf("WaitFutures error = %v", err)
	}
	if ctxErr != nil {
		t.Errorf("side effect context cancelled with the caller: %v", ctxErr)
	}
}

func TestEvent_SyncRunIgnoresNonBlocking(t *testing.T) {
	fired := false
	ev := NewEvent("Notify", func(ActionData) error { fired = true; return nil }).NonBlocking()

	if _, err := Execute(ev, Create(nil)); err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if !fired {
		t.Errorf("sync run of a non-blocking event should still block")
	}
}

func TestEventSet_DiscardsDataChanges(t *testing.T) {
	fired := false
	set := NewEventSet("audit",
		AddActionValue("scratch", true),
		NewEvent("Mark", func(ActionData) error { fired = true; return nil }),
	)

	out, err := Execute(set, Create(Values{"n": 1}))
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if !fired {
		t.Errorf("event did not fire")
	}
	if out.Has("scratch") {
		t.Errorf("set changes leaked into the result")
	}
}
