package flow

import (
	"context"
	"encoding/json"
	"fmt"
)

// Switch is the multi-branch dispatch node: an ordered list of
// (condition, action) pairs. The first branch whose condition validates is
// executed and its result returned; a branch without an action returns the
// snapshot unchanged. When no branch validates the switch fails with
// ErrNoneExecuted listing every branch condition.
//
// Branches are appended with IfThen/Case and a catch-all with Otherwise:
//
//	flow.NewSwitch().
//		IfThen(statusIs("CANCELED"), notifyCancellation).
//		IfThen(statusIs("PENDING"), schedulePayment).
//		Otherwise(logUnknownStatus)
type Switch struct {
	base
	system
	paths []switchPath
}

type switchPath struct {
	condition *Condition
	action    Action
}

func NewSwitch() *Switch {
	return &Switch{base: base{name: "Switch"}}
}

// IfThen returns a switch with the branch appended. A nil action makes the
// branch a pure guard returning the snapshot unchanged.
func (s *Switch) IfThen(cond *Condition, action Action) *Switch {
	return &Switch{
		base:  s.base,
		paths: append(append([]switchPath(nil), s.paths...), switchPath{condition: cond, action: action}),
	}
}

// Case is IfThen reading naturally with the If and Chain helpers.
func (s *Switch) Case(cond *Condition, actions ...Action) *Switch {
	return s.IfThen(cond, NamedChain("Then", actions...))
}

// Otherwise appends a catch-all branch.
func (s *Switch) Otherwise(action Action) *Switch {
	return s.IfThen(AlwaysTrue(), action)
}

func (s *Switch) Run(data ActionData) (ActionData, error) {
	for _, p := range s.paths {
		if data.Skipped() {
			return data, nil
		}
		ok, err := s.evaluate(p.condition, data)
		if err != nil {
			return data, err
		}
		if !ok {
			continue
		}
		if p.action == nil {
			return data, nil
		}
		return Execute(p.action, data)
	}
	return data, s.noneExecuted()
}

func (s *Switch) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	for _, p := range s.paths {
		if data.Skipped() {
			return data, nil
		}
		ok, err := s.evaluate(p.condition, data)
		if err != nil {
			return data, err
		}
		if !ok {
			continue
		}
		if p.action == nil {
			return data, nil
		}
		return ExecuteAsync(ctx, p.action, data)
	}
	return data, s.noneExecuted()
}

// evaluate validates one branch condition with start/end recording around
// it, so the observers see which conditions were probed.
func (s *Switch) evaluate(cond *Condition, data ActionData) (bool, error) {
	data.RecordStart(cond)
	ok, err := cond.Validate(data)
	data.RecordEnd(cond)
	return ok, err
}

func (s *Switch) noneExecuted() error {
	type branch struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	branches := make([]branch, len(s.paths))
	for i, p := range s.paths {
		branches[i] = branch{Name: p.condition.NameWithInverted(), Description: p.condition.Description()}
	}
	listing, _ := json.MarshalIndent(branches, "", "  ")
	return fmt.Errorf("%w: no path of %s validated, branches: %s", ErrNoneExecuted, s.Name(), listing)
}
