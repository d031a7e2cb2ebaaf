package evaluator

import (
	"context"
	"errors"
	"fmt"

	"questmill/internal/domain"
	"questmill/internal/lifecycle"
	"questmill/internal/repo"
)

// Projection mirrors a counter maintained by another subsystem into the
// mission's progress. It keeps no independent state, so replays are
// trivially idempotent.
type Projection struct {
	Source string
	Target int
}

type projectionProgress struct {
	Value  int `json:"value"`
	Target int `json:"target"`
}

func (p Projection) Evaluate(ctx context.Context, ev domain.DomainEvent, state domain.MissionState, reads Reads) (*Result, error) {
	var (
		value int
		err   error
	)
	switch p.Source {
	case "progression_streak":
		var prog domain.ProfileProgression
		prog, err = reads.Progression(ctx, ev.ProfileID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		value = prog.CurrentStreak
	case "circle":
		value, err = reads.CircleProgress(ctx, ev.ProfileID)
	default:
		return nil, fmt.Errorf("unknown projection source %q", p.Source)
	}
	if err != nil {
		return nil, err
	}

	status := lifecycle.StatusInProgress
	if value >= p.Target {
		status = lifecycle.StatusClaimable
	}
	streak := state.StreakCounter
	if p.Source == "progression_streak" {
		streak = value
	}
	return &Result{Progress: projectionProgress{Value: value, Target: p.Target}, Status: status, StreakCounter: streak}, nil
}
