package engine

import (
	"errors"
	"fmt"
)

// ErrUnknownMission is returned by Start/Claim for codes absent from
// the catalog.
var ErrUnknownMission = errors.New("unknown mission")

// ErrConcurrentConflict is returned when the optimistic retry budget is
// exhausted. The event was not applied and is safe to redeliver.
var ErrConcurrentConflict = errors.New("concurrent write conflict; event not applied")

// UnknownEventTypeError rejects malformed input before any read or write.
type UnknownEventTypeError struct {
	Type string
}

func (e UnknownEventTypeError) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

// InvalidTransitionError is an illegal start or claim attempt. Reason
// distinguishes "not yet claimable", "already claimed" and "in cooldown
// until <date>" for the caller.
type InvalidTransitionError struct {
	MissionCode string
	Op          string
	From        string
	Reason      string
	Until       string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s mission %s from status %s: %s", e.Op, e.MissionCode, e.From, e.Reason)
}

// EvaluatorError wraps a failure inside one mission's evaluator or its
// auxiliary reads. It never aborts sibling missions of the same event.
type EvaluatorError struct {
	MissionCode string
	Err         error
}

func (e EvaluatorError) Error() string {
	return fmt.Sprintf("evaluator %s: %v", e.MissionCode, e.Err)
}

func (e EvaluatorError) Unwrap() error { return e.Err }
