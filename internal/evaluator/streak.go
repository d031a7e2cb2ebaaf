package evaluator

import (
	"context"
	"encoding/json"
	"time"

	"questmill/internal/domain"
	"questmill/internal/lifecycle"
)

const dayLayout = "2006-01-02"

// Streak tracks qualifying actions on consecutive UTC calendar days.
// An event qualifies when it carries at least minFieldCount filled
// fields or completed a critical field.
type Streak struct {
	Target int
}

const minFieldCount = 3

type streakProgress struct {
	Days    []string `json:"days"`
	LastDay string   `json:"last_day,omitempty"`
	Streak  int      `json:"streak"`
	Target  int      `json:"target"`
}

func (s Streak) Evaluate(ctx context.Context, ev domain.DomainEvent, state domain.MissionState, _ Reads) (*Result, error) {
	if ev.Payload.FieldCount < minFieldCount && !ev.Payload.CriticalFieldCompleted {
		return nil, nil
	}
	day, err := eventDay(ev)
	if err != nil {
		return nil, err
	}

	var p streakProgress
	if state.ProgressJSON != "" {
		if err := json.Unmarshal([]byte(state.ProgressJSON), &p); err != nil {
			return nil, err
		}
	}
	p.Target = s.Target
	for _, d := range p.Days {
		if d == day {
			// Duplicate delivery for an already-recorded day.
			return nil, nil
		}
	}

	switch {
	case p.LastDay == "":
		p.Streak = 1
		p.LastDay = day
	case day > p.LastDay:
		if dayGap(p.LastDay, day) == 1 {
			p.Streak++
		} else {
			p.Streak = 1
		}
		p.LastDay = day
	default:
		// Backfill for an earlier day: record it, leave the streak alone.
	}
	p.Days = append(p.Days, day)

	status := lifecycle.StatusInProgress
	if p.Streak >= s.Target {
		status = lifecycle.StatusClaimable
	}
	return &Result{Progress: p, Status: status, StreakCounter: p.Streak}, nil
}

// eventDay extracts the UTC calendar day, preferring the source
// timestamp the producer stamped over the delivery time.
func eventDay(ev domain.DomainEvent) (string, error) {
	raw := ev.Payload.CreatedAt
	if raw == "" {
		raw = ev.OccurredAt
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return "", err
	}
	return t.UTC().Format(dayLayout), nil
}

func dayGap(from, to string) int {
	a, err := time.Parse(dayLayout, from)
	if err != nil {
		return 0
	}
	b, err := time.Parse(dayLayout, to)
	if err != nil {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}
