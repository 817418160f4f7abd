package actions

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cascadeflow/cascade/flow"
)

func TestNewID(t *testing.T) {
	out, err := flow.Execute(NewID("request_id"), flow.Create(nil))
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	v, _ := out.Get("request_id")
	if _, err := uuid.Parse(v.(string)); err != nil {
		t.Errorf("request_id = %v; want a valid UUID", v)
	}
}

func TestDelay_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := flow.ExecuteAsync(ctx, Delay(time.Minute), flow.Create(nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ExecuteAsync error = %v; want context.Canceled", err)
	}
}

func TestDelay_Sync(t *testing.T) {
	start := time.Now()
	if _, err := flow.Execute(Delay(10*time.Millisecond), flow.Create(nil)); err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Errorf("delay returned early")
	}
}

func TestLog_EmitsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := flow.Config{}.WithLogger(logger)

	_, err := flow.Execute(
		Log(slog.LevelInfo, "order processed", "order_id", "missing"),
		flow.CreateWith(cfg, flow.Values{"order_id": "o-7"}),
	)
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	line := buf.String()
	if !strings.Contains(line, "order processed") {
		t.Errorf("log line lacks the message: %s", line)
	}
	if !strings.Contains(line, "order_id=o-7") {
		t.Errorf("log line lacks the attribute: %s", line)
	}
}
