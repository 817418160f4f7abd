package actions

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cascadeflow/cascade/flow"
)

// NewID registers a fresh UUID under the given key.
func NewID(key string) *flow.DataSource {
	return flow.NewDataSource("NewID["+key+"]", flow.KeySignature(key)).
		WithGet(func(flow.ActionData) (flow.Values, error) {
			return flow.Values{key: uuid.New().String()}, nil
		})
}

// Delay pauses the pipeline. The asynchronous form honors context
// cancellation.
func Delay(d time.Duration) *flow.Event {
	return flow.NewEvent("Delay["+d.String()+"]", func(flow.ActionData) error {
		time.Sleep(d)
		return nil
	}).WithSideEffectAsync(func(ctx context.Context, _ flow.ActionData) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Log emits one structured log line through the configured logger; each
// given key is attached as an attribute with its current registry value.
func Log(level slog.Level, msg string, keys ...string) *flow.Event {
	return flow.NewEvent("Log["+msg+"]", func(data flow.ActionData) error {
		attrs := make([]any, 0, len(keys)*2)
		for _, key := range keys {
			attrs = append(attrs, key, data.GetOr(key, nil))
		}
		data.Config().Logger().Log(context.Background(), level, msg, attrs...)
		return nil
	}).WithSideEffectAsync(func(ctx context.Context, data flow.ActionData) error {
		attrs := make([]any, 0, len(keys)*2)
		for _, key := range keys {
			attrs = append(attrs, key, data.GetOr(key, nil))
		}
		data.Config().Logger().Log(ctx, level, msg, attrs...)
		return nil
	})
}
