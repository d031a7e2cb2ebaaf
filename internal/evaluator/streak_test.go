package evaluator_test

import (
	"context"
	"encoding/json"
	"testing"

	"questmill/internal/domain"
	"questmill/internal/evaluator"
	"questmill/internal/lifecycle"
)

func itemEvent(day string, fieldCount int, critical bool) domain.DomainEvent {
	return domain.DomainEvent{
		Type:       domain.EventItemCreated,
		ProfileID:  "p1",
		OccurredAt: day + "T10:00:00Z",
		Payload: domain.EventPayload{
			CreatedAt:              day + "T10:00:00Z",
			FieldCount:             fieldCount,
			CriticalFieldCompleted: critical,
		},
	}
}

// feed applies the result to the state the way the dispatcher does.
func feed(t *testing.T, eval evaluator.Evaluator, state domain.MissionState, ev domain.DomainEvent) (domain.MissionState, *evaluator.Result) {
	t.Helper()
	res, err := eval.Evaluate(context.Background(), ev, state, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res == nil {
		return state, nil
	}
	b, err := json.Marshal(res.Progress)
	if err != nil {
		t.Fatalf("marshal progress: %v", err)
	}
	state.ProgressJSON = string(b)
	state.StreakCounter = res.StreakCounter
	state.Status = lifecycle.Advance(state.Status, res.Status)
	return state, res
}

func TestStreakConsecutiveDays(t *testing.T) {
	eval := evaluator.Streak{Target: 7}
	state := domain.MissionState{Status: lifecycle.StatusAvailable}

	var res *evaluator.Result
	for _, day := range []string{"2024-03-01", "2024-03-02", "2024-03-03"} {
		state, res = feed(t, eval, state, itemEvent(day, 4, false))
		if res == nil {
			t.Fatalf("day %s: expected a write", day)
		}
	}
	if state.StreakCounter != 3 {
		t.Fatalf("streak after 3 consecutive days = %d, want 3", state.StreakCounter)
	}
	if state.Status != lifecycle.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", state.Status)
	}
}

func TestStreakGapResets(t *testing.T) {
	eval := evaluator.Streak{Target: 7}
	state := domain.MissionState{Status: lifecycle.StatusAvailable}

	state, _ = feed(t, eval, state, itemEvent("2024-03-01", 3, false))
	state, _ = feed(t, eval, state, itemEvent("2024-03-02", 3, false))
	state, _ = feed(t, eval, state, itemEvent("2024-03-05", 3, false))
	if state.StreakCounter != 1 {
		t.Fatalf("streak after a 3-day gap = %d, want 1", state.StreakCounter)
	}
}

func TestStreakReachesTarget(t *testing.T) {
	eval := evaluator.Streak{Target: 7}
	state := domain.MissionState{Status: lifecycle.StatusAvailable}

	days := []string{
		"2024-03-01", "2024-03-02", "2024-03-03", "2024-03-04",
		"2024-03-05", "2024-03-06", "2024-03-07",
	}
	for _, day := range days {
		state, _ = feed(t, eval, state, itemEvent(day, 5, false))
	}
	if state.StreakCounter != 7 {
		t.Fatalf("streak = %d, want 7", state.StreakCounter)
	}
	if state.Status != lifecycle.StatusClaimable {
		t.Fatalf("status = %s, want claimable", state.Status)
	}
}

func TestStreakDuplicateDayIsNoop(t *testing.T) {
	eval := evaluator.Streak{Target: 7}
	state := domain.MissionState{Status: lifecycle.StatusAvailable}

	state, _ = feed(t, eval, state, itemEvent("2024-03-01", 4, false))
	_, res := feed(t, eval, state, itemEvent("2024-03-01", 4, false))
	if res != nil {
		t.Fatalf("redelivery for a recorded day should produce no write")
	}
}

func TestStreakSkipsLowQualityEvents(t *testing.T) {
	eval := evaluator.Streak{Target: 7}
	state := domain.MissionState{Status: lifecycle.StatusAvailable}

	_, res := feed(t, eval, state, itemEvent("2024-03-01", 1, false))
	if res != nil {
		t.Fatalf("event below the field threshold should not count")
	}
	_, res = feed(t, eval, state, itemEvent("2024-03-01", 1, true))
	if res == nil {
		t.Fatalf("critical field completion should qualify regardless of field count")
	}
}

func TestStreakBackfillKeepsStreak(t *testing.T) {
	eval := evaluator.Streak{Target: 7}
	state := domain.MissionState{Status: lifecycle.StatusAvailable}

	state, _ = feed(t, eval, state, itemEvent("2024-03-02", 4, false))
	state, _ = feed(t, eval, state, itemEvent("2024-03-03", 4, false))
	// Out-of-order delivery for an earlier day records the day but does
	// not disturb the running streak.
	state, res := feed(t, eval, state, itemEvent("2024-03-01", 4, false))
	if res == nil {
		t.Fatalf("backfill should still be recorded")
	}
	if state.StreakCounter != 2 {
		t.Fatalf("streak after backfill = %d, want 2", state.StreakCounter)
	}
}
