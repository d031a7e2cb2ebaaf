package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"questmill/internal/audit"
	"questmill/internal/catalog"
	"questmill/internal/domain"
	"questmill/internal/lifecycle"
	"questmill/internal/repo"
)

// ProcessReport summarizes one event's fan-out across missions.
type ProcessReport struct {
	Applied []string         `json:"applied,omitempty"`
	Skipped []string         `json:"skipped,omitempty"`
	Failed  map[string]error `json:"-"`
}

// ProcessEvent recomputes every mission triggered by the event, exactly
// once per delivery. Candidates are selected by trigger, not current
// visibility, so bookkeeping continues on hidden missions. A failure in
// one mission never aborts its siblings; failed missions are logged and
// reported, and the event stays safe to redeliver for them.
func (e Engine) ProcessEvent(ctx context.Context, ev domain.DomainEvent) (ProcessReport, error) {
	report := ProcessReport{Failed: map[string]error{}}
	if !domain.KnownEventType(ev.Type) {
		return report, UnknownEventTypeError{Type: ev.Type}
	}
	if ev.OccurredAt == "" {
		ev.OccurredAt = e.now().UTC().Format(time.RFC3339)
	}
	if _, err := e.Repo.GetProfile(ctx, ev.ProfileID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Printf("dispatch: event %s for unknown profile %s ignored", ev.Type, ev.ProfileID)
			return report, nil
		}
		return report, err
	}

	for _, def := range e.Catalog.ByTrigger(ev.Type) {
		applied, err := e.applyToMission(ctx, ev, def)
		switch {
		case err != nil:
			log.Printf("dispatch: mission %s: %v", def.Code, err)
			report.Failed[def.Code] = err
		case applied:
			report.Applied = append(report.Applied, def.Code)
		default:
			report.Skipped = append(report.Skipped, def.Code)
		}
	}
	return report, nil
}

// applyToMission runs the evaluate-and-persist cycle with one optimistic
// retry. Evaluators are pure over fresh state, so the retry simply
// re-reads and re-evaluates.
func (e Engine) applyToMission(ctx context.Context, ev domain.DomainEvent, def catalog.Definition) (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		applied, err := e.applyOnce(ctx, ev, def)
		if errors.Is(err, repo.ErrVersionConflict) {
			continue
		}
		return applied, err
	}
	return false, ErrConcurrentConflict
}

func (e Engine) applyOnce(ctx context.Context, ev domain.DomainEvent, def catalog.Definition) (bool, error) {
	eval, ok := e.Evaluators[def.Code]
	if !ok {
		return false, nil
	}
	// Seasonal gating is by processing time, not the event's OccurredAt:
	// an event produced inside the window but redelivered after it closes
	// is not replayed into the past season.
	if !lifecycle.InSeason(def.Season, e.now()) {
		return false, nil
	}
	state, err := e.loadState(ctx, ev.ProfileID, def)
	if err != nil {
		return false, err
	}
	expected := state.Version
	if lifecycle.Terminal(def, state.Status) {
		return false, nil
	}
	state = e.resolved(def, state)

	res, err := eval.Evaluate(ctx, ev, state, e.Repo)
	if err != nil {
		return false, EvaluatorError{MissionCode: def.Code, Err: err}
	}
	if res == nil {
		return false, nil
	}

	progressJSON, err := marshalProgress(res.Progress)
	if err != nil {
		return false, EvaluatorError{MissionCode: def.Code, Err: err}
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	next := lifecycle.Advance(state.Status, res.Status)
	state.ProgressJSON = progressJSON
	// The streak value lives in the progress document; the column is a
	// shadow copy derived here at write time.
	state.StreakCounter = res.StreakCounter
	state.LastEventAt = &ev.OccurredAt
	if state.StartedAt == nil && (next == lifecycle.StatusInProgress || next == lifecycle.StatusClaimable) {
		state.StartedAt = &nowStr
	}
	state.Status = next
	state.UpdatedAt = nowStr

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if err := e.writeState(ctx, tx, state, expected); err != nil {
		return false, err
	}
	snapshot := audit.Payload{"status": state.Status}
	if progressJSON != "" {
		snapshot["progress"] = json.RawMessage(progressJSON)
	}
	if err := e.audit().Append(ctx, tx, ev.ProfileID, def.Code, ev.Type, snapshot); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
