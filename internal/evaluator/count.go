package evaluator

import (
	"context"
	"encoding/json"
	"fmt"

	"questmill/internal/domain"
	"questmill/internal/lifecycle"
)

// ThresholdCount counts rows matching a predicate in an auxiliary
// collection and compares to a target. Same recompute-from-truth
// pattern as Coverage.
type ThresholdCount struct {
	Source string
	Target int
}

type countProgress struct {
	Count  int `json:"count"`
	Target int `json:"target"`
}

func (t ThresholdCount) Evaluate(ctx context.Context, ev domain.DomainEvent, state domain.MissionState, reads Reads) (*Result, error) {
	var (
		n   int
		err error
	)
	switch t.Source {
	case "wishlist_matched":
		n, err = reads.MatchedWishlistCount(ctx, ev.ProfileID)
	default:
		return nil, fmt.Errorf("unknown count source %q", t.Source)
	}
	if err != nil {
		return nil, err
	}

	p := countProgress{Count: n, Target: t.Target}
	status := lifecycle.StatusInProgress
	if n >= t.Target {
		status = lifecycle.StatusClaimable
	}
	return &Result{Progress: p, Status: status, StreakCounter: state.StreakCounter}, nil
}

// Counter increments once per distinct event, deduplicating redeliveries
// by the event's unique hash.
type Counter struct {
	Target int
}

type counterProgress struct {
	Count  int      `json:"count"`
	Target int      `json:"target"`
	Seen   []string `json:"seen,omitempty"`
}

func (c Counter) Evaluate(ctx context.Context, ev domain.DomainEvent, state domain.MissionState, _ Reads) (*Result, error) {
	var p counterProgress
	if state.ProgressJSON != "" {
		if err := json.Unmarshal([]byte(state.ProgressJSON), &p); err != nil {
			return nil, err
		}
	}
	p.Target = c.Target

	hash := ev.Payload.UniqueHash
	if hash == "" {
		hash = ev.Type + "|" + ev.ProfileID + "|" + ev.OccurredAt
	}
	for _, h := range p.Seen {
		if h == hash {
			return nil, nil
		}
	}
	p.Seen = append(p.Seen, hash)
	p.Count++

	status := lifecycle.StatusInProgress
	if p.Count >= c.Target {
		status = lifecycle.StatusClaimable
	}
	return &Result{Progress: p, Status: status, StreakCounter: state.StreakCounter}, nil
}
