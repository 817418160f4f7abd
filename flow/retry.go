package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// RetryStatus is the lifecycle state of one retry run.
type RetryStatus string

const (
	RetryStarted    RetryStatus = "STARTED"
	RetrySuccessful RetryStatus = "SUCCESSFUL"
	RetryFailed     RetryStatus = "FAILED"
)

// RetryInfo tracks the progress of a single retry run from first attempt to
// terminal state.
type RetryInfo struct {
	Status    RetryStatus
	Attempts  int
	StartedAt time.Time
	EndedAt   time.Time
	LastError error
}

func newRetryInfo() RetryInfo {
	return RetryInfo{Status: RetryStarted, StartedAt: time.Now()}
}

func (i RetryInfo) succeed() RetryInfo {
	i.Status = RetrySuccessful
	i.EndedAt = time.Now()
	return i
}

func (i RetryInfo) fail(err error) RetryInfo {
	i.Status = RetryFailed
	i.EndedAt = time.Now()
	i.LastError = err
	return i
}

// RetryPolicy bounds a retry run. The zero value is completed with defaults
// by NewRetryPolicy.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, the first one included.
	MaxAttempts int `default:"3" validate:"min=1"`
	// Delay is the pause between consecutive attempts.
	Delay time.Duration `default:"500ms" validate:"min=0"`
}

func NewRetryPolicy() RetryPolicy {
	var p RetryPolicy
	if err := defaults.Set(&p); err != nil {
		panic(fmt.Sprintf("retry policy defaults: %v", err))
	}
	return p
}

func (p RetryPolicy) validate() error {
	if err := validator.New().Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrNotProperlyConfigured, err)
	}
	return nil
}

// Retry wraps an action and re-runs it until a success predicate holds or
// the attempt budget is spent. Two predicates are supported and may be
// combined:
//
//   - Until: a condition validated against the result of each attempt. An
//     attempt whose result fails the condition is retried.
//   - While: an error predicate. An attempt failing with a matching error is
//     retried; a non-matching error propagates immediately.
//
// On success the terminal RetryInfo is appended to the container's retry
// history. On exhaustion Retry fails with a *RetryError wrapping
// ErrRetryExhausted.
type Retry struct {
	base
	system
	action Action
	policy RetryPolicy
	until  *Condition
	while  func(error) bool
	sleep  func(context.Context, time.Duration) error
}

func NewRetry(action Action, policy RetryPolicy) *Retry {
	return &Retry{
		base:   base{name: "Retry[" + action.Name() + "]"},
		action: action,
		policy: policy,
		sleep:  sleepFor,
	}
}

// Until sets the success condition validated against each attempt's result.
func (r *Retry) Until(cond *Condition) *Retry {
	out := *r
	out.until = cond
	return &out
}

// While sets the predicate deciding which errors are retryable.
func (r *Retry) While(retryable func(error) bool) *Retry {
	out := *r
	out.while = retryable
	return &out
}

func (r *Retry) Run(data ActionData) (ActionData, error) {
	return r.run(context.Background(), data, Execute)
}

func (r *Retry) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	return r.run(ctx, data, func(a Action, d ActionData) (ActionData, error) {
		return ExecuteAsync(ctx, a, d)
	})
}

func (r *Retry) run(ctx context.Context, data ActionData, exec func(Action, ActionData) (ActionData, error)) (ActionData, error) {
	if err := r.policy.validate(); err != nil {
		return data, err
	}
	if r.until == nil && r.while == nil {
		return data, fmt.Errorf("%w: %s has neither an Until condition nor a While predicate",
			ErrNotProperlyConfigured, r.name)
	}
	log := data.Config().Logger()
	info := newRetryInfo()
	var lastErr error
	for info.Attempts < r.policy.MaxAttempts {
		if info.Attempts > 0 {
			if err := r.sleep(ctx, r.policy.Delay); err != nil {
				return data, err
			}
		}
		info.Attempts++
		result, err := exec(r.action, data)
		switch {
		case err != nil && r.while != nil && r.while(err):
			lastErr = err
			log.Debug("retry attempt failed",
				"action", r.action.Name(), "attempt", info.Attempts, "error", err)
			continue
		case err != nil:
			return data, err
		}
		ok, err := r.satisfied(result)
		if err != nil {
			return data, err
		}
		if !ok {
			lastErr = fmt.Errorf("%w: %s", ErrConditionNotMet, r.until.NameWithInverted())
			log.Debug("retry condition not met",
				"action", r.action.Name(), "attempt", info.Attempts, "condition", r.until.NameWithInverted())
			continue
		}
		log.Debug("retry succeeded", "action", r.action.Name(), "attempts", info.Attempts)
		return result.withRetryRecord(RetryRecord{
			ActionName: r.action.Name(),
			Info:       info.succeed(),
		}), nil
	}
	info = info.fail(lastErr)
	return data, &RetryError{ActionName: r.action.Name(), Info: info}
}

func (r *Retry) satisfied(result ActionData) (bool, error) {
	if r.until == nil {
		return true, nil
	}
	return r.until.Validate(result)
}

func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Wait-until constructors

// WaitUntilTrue retries the action until the boolean under key is true.
func WaitUntilTrue(action Action, key string, policy RetryPolicy) *Retry {
	return NewRetry(action, policy).Until(NewCondition(
		"WaitUntilTrue["+key+"]",
		"Field {"+key+"} did not become true",
		func(data ActionData) (bool, error) {
			value, err := data.Get(key)
			if err != nil {
				return false, nil
			}
			b, ok := value.(bool)
			return ok && b, nil
		},
	))
}

// WaitUntilEquals retries the action until the value under key equals want.
func WaitUntilEquals(action Action, key string, want any, policy RetryPolicy) *Retry {
	return NewRetry(action, policy).Until(NewCondition(
		fmt.Sprintf("WaitUntilEquals[%s=%v]", key, want),
		"Field {"+key+"} did not reach the expected value",
		func(data ActionData) (bool, error) {
			value, err := data.Get(key)
			if err != nil {
				return false, nil
			}
			return value == want, nil
		},
	))
}

// WaitUntilContains retries the action until the string under key contains
// the substring.
func WaitUntilContains(action Action, key, substring string, policy RetryPolicy) *Retry {
	return NewRetry(action, policy).Until(NewCondition(
		fmt.Sprintf("WaitUntilContains[%s~%s]", key, substring),
		"Field {"+key+"} did not contain the expected fragment",
		func(data ActionData) (bool, error) {
			value, err := data.Get(key)
			if err != nil {
				return false, nil
			}
			s, ok := value.(string)
			return ok && strings.Contains(s, substring), nil
		},
	))
}

// WaitFor retries the action until the condition validates on its result.
func WaitFor(action Action, cond *Condition, policy RetryPolicy) *Retry {
	return NewRetry(action, policy).Until(cond)
}

// WaitUntilNotFail retries the action as long as it fails with one of the
// target errors; any other error propagates immediately.
func WaitUntilNotFail(action Action, policy RetryPolicy, targets ...error) *Retry {
	retryable := func(err error) bool {
		if len(targets) == 0 {
			return true
		}
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
	return NewRetry(action, policy).While(retryable).Until(AlwaysTrue())
}
