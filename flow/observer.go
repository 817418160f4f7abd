package flow

import (
	"fmt"
	"time"
)

// Observer receives hooks around each recorded action execution. Observers
// are the only mutable state in the hot path; they are scoped to a single
// pipeline invocation and are not safe for concurrent use.
type Observer interface {
	// ShouldRecord controls whether the observer logs the given action.
	ShouldRecord(a Action) bool
	// RecordStart is invoked before the action executes.
	RecordStart(a Action)
	// RecordEnd is invoked after the action executes.
	RecordEnd(a Action)
}

// Measurement is one timed action execution in completion order.
type Measurement struct {
	Name     string
	Duration time.Duration
}

// ExecutionTimeObserver measures execution times of the actions in the
// pipeline. Composite control-flow actions are excluded so nested work is
// not double counted.
type ExecutionTimeObserver struct {
	measurements []Measurement
	measuring    map[Action][]time.Time
}

func NewExecutionTimeObserver() *ExecutionTimeObserver {
	return &ExecutionTimeObserver{measuring: make(map[Action][]time.Time)}
}

func (o *ExecutionTimeObserver) ShouldRecord(a Action) bool {
	return !IsSystemAction(a)
}

func (o *ExecutionTimeObserver) RecordStart(a Action) {
	o.measuring[a] = append(o.measuring[a], time.Now())
}

func (o *ExecutionTimeObserver) RecordEnd(a Action) {
	stack := o.measuring[a]
	if len(stack) == 0 {
		return
	}
	start := stack[len(stack)-1]
	o.measuring[a] = stack[:len(stack)-1]
	o.measurements = append(o.measurements, Measurement{
		Name:     "action." + a.Name(),
		Duration: time.Since(start),
	})
}

// Measurements returns the completed (name, duration) pairs in completion order.
func (o *ExecutionTimeObserver) Measurements() []Measurement {
	return o.measurements
}

func (o *ExecutionTimeObserver) String() string {
	return fmt.Sprintf("ExecutionTimeObserver(%v)", o.measurements)
}

// ActionsLog records which actions were executed as "<name>_start" /
// "<name>_end" entries.
type ActionsLog struct {
	entries []string
}

func NewActionsLog() *ActionsLog {
	return &ActionsLog{}
}

func (o *ActionsLog) ShouldRecord(a Action) bool { return true }

func (o *ActionsLog) RecordStart(a Action) {
	o.entries = append(o.entries, a.Name()+"_start")
}

func (o *ActionsLog) RecordEnd(a Action) {
	o.entries = append(o.entries, a.Name()+"_end")
}

// Entries returns the recorded log.
func (o *ActionsLog) Entries() []string {
	return o.entries
}

func (o *ActionsLog) String() string {
	return fmt.Sprintf("ActionsLog(%v)", o.entries)
}

// defaultObservers builds the fresh observer set attached to every new
// execution snapshot.
func defaultObservers() []Observer {
	return []Observer{NewExecutionTimeObserver(), NewActionsLog()}
}

// ObserverFor finds the attached observer of type T.
func ObserverFor[T Observer](d ActionData) (T, error) {
	var zero T
	var found []Observer
	for _, o := range d.observers {
		if _, ok := o.(T); ok {
			found = append(found, o)
		}
	}
	switch len(found) {
	case 0:
		return zero, fmt.Errorf("%w: no observer of type %T", ErrNothingFound, zero)
	case 1:
		return found[0].(T), nil
	default:
		return zero, fmt.Errorf("%w: %d observers of type %T", ErrFoundMoreThanOne, len(found), zero)
	}
}
