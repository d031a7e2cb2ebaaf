package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"questmill/internal/audit"
	"questmill/internal/catalog"
	"questmill/internal/domain"
	"questmill/internal/evaluator"
	"questmill/internal/lifecycle"
	"questmill/internal/repo"
	"questmill/internal/rewards"
)

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Audit      audit.Writer
	Catalog    *catalog.Catalog
	Evaluators evaluator.Registry
	Ledger     rewards.Ledger
	Now        func() time.Time
}

func New(db *sql.DB, cat *catalog.Catalog) Engine {
	return Engine{
		DB:         db,
		Repo:       repo.Repo{DB: db},
		Audit:      audit.Writer{DB: db},
		Catalog:    cat,
		Evaluators: evaluator.Build(cat),
		Ledger:     rewards.SQLLedger{},
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// audit returns the writer with the engine's clock wired in, so audit
// timestamps never drift from the state rows they snapshot.
func (e Engine) audit() audit.Writer {
	w := e.Audit
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// loadState returns the current state row, or a lazily-initialized one
// (Version 0, not yet persisted) when none exists.
func (e Engine) loadState(ctx context.Context, profileID string, def catalog.Definition) (domain.MissionState, error) {
	s, err := e.Repo.GetMissionState(ctx, profileID, def.Code)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.MissionState{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	return domain.MissionState{
		ProfileID:   profileID,
		MissionCode: def.Code,
		Status:      lifecycle.Initial(def, e.now()),
		Version:     0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// resolved applies clock-driven transitions to an in-memory state. The
// cooldown expiry starts a fresh progress cycle; the cleared fields are
// persisted with the next write.
func (e Engine) resolved(def catalog.Definition, s domain.MissionState) domain.MissionState {
	effective := lifecycle.Resolve(def, s, e.now())
	if effective == s.Status {
		return s
	}
	if s.Status == lifecycle.StatusCooldown && effective == lifecycle.StatusAvailable {
		s.ProgressJSON = ""
		s.StreakCounter = 0
		s.StartedAt = nil
		s.NextEligibleAt = nil
	}
	s.Status = effective
	return s
}

func (e Engine) writeState(ctx context.Context, tx *sql.Tx, s domain.MissionState, expectedVersion int) error {
	if expectedVersion == 0 {
		return e.Repo.InsertMissionState(ctx, tx, s)
	}
	return e.Repo.UpdateMissionState(ctx, tx, s, expectedVersion)
}

// Start moves an available mission to in_progress on the caller's
// explicit request.
func (e Engine) Start(ctx context.Context, profileID, missionCode string) (domain.MissionState, error) {
	def, ok := e.Catalog.ByCode(missionCode)
	if !ok {
		return domain.MissionState{}, ErrUnknownMission
	}
	if _, err := e.Repo.GetProfile(ctx, profileID); err != nil {
		return domain.MissionState{}, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		s, err := e.startOnce(ctx, profileID, def)
		if errors.Is(err, repo.ErrVersionConflict) {
			continue
		}
		return s, err
	}
	return domain.MissionState{}, ErrConcurrentConflict
}

func (e Engine) startOnce(ctx context.Context, profileID string, def catalog.Definition) (domain.MissionState, error) {
	state, err := e.loadState(ctx, profileID, def)
	if err != nil {
		return domain.MissionState{}, err
	}
	expected := state.Version
	state = e.resolved(def, state)
	if state.Status != lifecycle.StatusAvailable {
		return domain.MissionState{}, e.transitionError(def, state, "start")
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	state.Status = lifecycle.StatusInProgress
	state.StartedAt = &nowStr
	state.UpdatedAt = nowStr

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.MissionState{}, err
	}
	defer tx.Rollback()
	if err := e.writeState(ctx, tx, state, expected); err != nil {
		return domain.MissionState{}, err
	}
	if err := e.audit().Append(ctx, tx, profileID, def.Code, "mission.started", audit.Payload{
		"status": state.Status,
	}); err != nil {
		return domain.MissionState{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.MissionState{}, err
	}
	state.Version = expected + 1
	return state, nil
}

// Claim converts completed progress into granted rewards. Only explicit
// claims leave claimable; the engine never auto-claims.
func (e Engine) Claim(ctx context.Context, profileID, missionCode string) (domain.MissionState, []domain.RewardGrant, error) {
	def, ok := e.Catalog.ByCode(missionCode)
	if !ok {
		return domain.MissionState{}, nil, ErrUnknownMission
	}
	if _, err := e.Repo.GetProfile(ctx, profileID); err != nil {
		return domain.MissionState{}, nil, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		s, grants, err := e.claimOnce(ctx, profileID, def)
		if errors.Is(err, repo.ErrVersionConflict) {
			continue
		}
		return s, grants, err
	}
	return domain.MissionState{}, nil, ErrConcurrentConflict
}

func (e Engine) claimOnce(ctx context.Context, profileID string, def catalog.Definition) (domain.MissionState, []domain.RewardGrant, error) {
	state, err := e.loadState(ctx, profileID, def)
	if err != nil {
		return domain.MissionState{}, nil, err
	}
	expected := state.Version
	state = e.resolved(def, state)
	if state.Status != lifecycle.StatusClaimable {
		return domain.MissionState{}, nil, e.transitionError(def, state, "claim")
	}

	now := e.now()
	nowStr := now.UTC().Format(time.RFC3339)
	state.Attempts++
	state.CompletedAt = &nowStr
	state.UpdatedAt = nowStr
	if def.Repeatable {
		eligible := now.UTC().AddDate(0, 0, def.CooldownDays).Format(time.RFC3339)
		state.Status = lifecycle.StatusCooldown
		state.NextEligibleAt = &eligible
	} else {
		state.Status = lifecycle.StatusCompleted
		state.NextEligibleAt = nil
	}

	grant := domain.RewardGrant{
		ID:          uuid.New().String(),
		ProfileID:   profileID,
		MissionCode: def.Code,
		Kind:        def.Reward.Kind,
		Amount:      def.Reward.Amount,
		GrantedAt:   nowStr,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.MissionState{}, nil, err
	}
	defer tx.Rollback()
	// The version predicate decides the winner of concurrent duplicate
	// claims; the loser re-reads and observes InvalidTransition.
	if err := e.writeState(ctx, tx, state, expected); err != nil {
		return domain.MissionState{}, nil, err
	}
	if err := e.Ledger.Grant(ctx, tx, grant); err != nil {
		return domain.MissionState{}, nil, err
	}
	if err := e.audit().Append(ctx, tx, profileID, def.Code, "mission.claimed", audit.Payload{
		"status":        state.Status,
		"reward_kind":   grant.Kind,
		"reward_amount": grant.Amount,
	}); err != nil {
		return domain.MissionState{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return domain.MissionState{}, nil, err
	}
	state.Version = expected + 1
	return state, []domain.RewardGrant{grant}, nil
}

func (e Engine) transitionError(def catalog.Definition, s domain.MissionState, op string) error {
	reason := "not yet claimable"
	until := ""
	switch s.Status {
	case lifecycle.StatusCompleted:
		reason = "already claimed"
	case lifecycle.StatusCooldown:
		if s.NextEligibleAt != nil {
			until = *s.NextEligibleAt
			reason = "in cooldown until " + until
		} else {
			reason = "in cooldown"
		}
	case lifecycle.StatusHidden, lifecycle.StatusLocked:
		reason = "not available"
	case lifecycle.StatusInProgress:
		if op == "start" {
			reason = "already started"
		}
	case lifecycle.StatusClaimable:
		if op == "start" {
			reason = "already complete; claim instead"
		}
	case lifecycle.StatusAvailable:
		if op == "claim" {
			reason = "not yet started"
		}
	}
	return InvalidTransitionError{MissionCode: def.Code, Op: op, From: s.Status, Reason: reason, Until: until}
}

// MissionView pairs a catalog definition with the caller's resolved
// state for directory listings.
type MissionView struct {
	Definition catalog.Definition
	State      domain.MissionState
}

// MissionsFor lists the profile's missions with lazily-resolved
// statuses. Hidden missions surface only once their state row has moved
// beyond hidden.
func (e Engine) MissionsFor(ctx context.Context, profileID string) ([]MissionView, error) {
	if _, err := e.Repo.GetProfile(ctx, profileID); err != nil {
		return nil, err
	}
	states, err := e.Repo.ListMissionStates(ctx, profileID)
	if err != nil {
		return nil, err
	}
	var views []MissionView
	for _, def := range e.Catalog.Missions {
		state, ok := states[def.Code]
		if !ok {
			state, err = e.loadState(ctx, profileID, def)
			if err != nil {
				return nil, err
			}
		}
		state = e.resolved(def, state)
		if state.Status == lifecycle.StatusHidden {
			continue
		}
		views = append(views, MissionView{Definition: def, State: state})
	}
	return views, nil
}

// MissionFor returns one mission's definition and resolved state.
func (e Engine) MissionFor(ctx context.Context, profileID, missionCode string) (MissionView, error) {
	def, ok := e.Catalog.ByCode(missionCode)
	if !ok {
		return MissionView{}, ErrUnknownMission
	}
	if _, err := e.Repo.GetProfile(ctx, profileID); err != nil {
		return MissionView{}, err
	}
	state, err := e.loadState(ctx, profileID, def)
	if err != nil {
		return MissionView{}, err
	}
	return MissionView{Definition: def, State: e.resolved(def, state)}, nil
}

func marshalProgress(p any) (string, error) {
	if p == nil {
		return "", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
