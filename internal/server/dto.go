package server

import (
	"encoding/json"

	"questmill/internal/catalog"
	"questmill/internal/domain"
	"questmill/internal/engine"
)

// Request payloads

type EventRequest struct {
	Type       string              `json:"type"`
	ProfileID  string              `json:"profile_id"`
	OccurredAt string              `json:"occurred_at,omitempty" format:"date-time"`
	Payload    domain.EventPayload `json:"payload,omitempty"`
}

func (r EventRequest) toDomain() domain.DomainEvent {
	return domain.DomainEvent{
		Type:       r.Type,
		ProfileID:  r.ProfileID,
		OccurredAt: r.OccurredAt,
		Payload:    r.Payload,
	}
}

// Response payloads

type RewardResponse struct {
	Kind   string `json:"kind"`
	Amount int    `json:"amount,omitempty"`
}

type MissionResponse struct {
	Code           string                  `json:"code"`
	Title          string                  `json:"title"`
	Description    string                  `json:"description,omitempty"`
	Category       string                  `json:"category"`
	Difficulty     string                  `json:"difficulty,omitempty"`
	Repeatable     bool                    `json:"repeatable"`
	CooldownDays   int                     `json:"cooldown_days,omitempty"`
	Season         *catalog.SeasonalWindow `json:"season,omitempty"`
	Status         string                  `json:"status" enum:"hidden,locked,available,in_progress,claimable,completed,cooldown"`
	Progress       map[string]any          `json:"progress,omitempty" jsonschema:"type=object,additionalProperties=true"`
	StreakCounter  int                     `json:"streak_counter"`
	Attempts       int                     `json:"attempts"`
	StartedAt      *string                 `json:"started_at,omitempty" format:"date-time"`
	CompletedAt    *string                 `json:"completed_at,omitempty" format:"date-time"`
	NextEligibleAt *string                 `json:"next_eligible_at,omitempty" format:"date-time"`
	Reward         RewardResponse          `json:"reward"`
}

type StateResponse struct {
	MissionCode    string         `json:"mission_code"`
	Status         string         `json:"status" enum:"hidden,locked,available,in_progress,claimable,completed,cooldown"`
	Progress       map[string]any `json:"progress,omitempty" jsonschema:"type=object,additionalProperties=true"`
	StreakCounter  int            `json:"streak_counter"`
	Attempts       int            `json:"attempts"`
	StartedAt      *string        `json:"started_at,omitempty" format:"date-time"`
	CompletedAt    *string        `json:"completed_at,omitempty" format:"date-time"`
	NextEligibleAt *string        `json:"next_eligible_at,omitempty" format:"date-time"`
}

type ClaimResponse struct {
	Mission StateResponse        `json:"mission"`
	Rewards []domain.RewardGrant `json:"rewards"`
}

type ProgressEventResponse struct {
	ID          string         `json:"id"`
	MissionCode string         `json:"mission_code"`
	EventType   string         `json:"event_type"`
	Payload     map[string]any `json:"payload,omitempty" jsonschema:"type=object,additionalProperties=true"`
	OccurredAt  string         `json:"occurred_at" format:"date-time"`
}

type ProcessReportResponse struct {
	Applied []string          `json:"applied,omitempty"`
	Skipped []string          `json:"skipped,omitempty"`
	Failed  map[string]string `json:"failed,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

func progressMap(progressJSON string) map[string]any {
	if progressJSON == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(progressJSON), &m); err != nil {
		return nil
	}
	return m
}

func missionResponse(v engine.MissionView) MissionResponse {
	return MissionResponse{
		Code:           v.Definition.Code,
		Title:          v.Definition.Title,
		Description:    v.Definition.Description,
		Category:       v.Definition.Category,
		Difficulty:     v.Definition.Difficulty,
		Repeatable:     v.Definition.Repeatable,
		CooldownDays:   v.Definition.CooldownDays,
		Season:         v.Definition.Season,
		Status:         v.State.Status,
		Progress:       progressMap(v.State.ProgressJSON),
		StreakCounter:  v.State.StreakCounter,
		Attempts:       v.State.Attempts,
		StartedAt:      v.State.StartedAt,
		CompletedAt:    v.State.CompletedAt,
		NextEligibleAt: v.State.NextEligibleAt,
		Reward:         RewardResponse{Kind: v.Definition.Reward.Kind, Amount: v.Definition.Reward.Amount},
	}
}

func mapMissions(views []engine.MissionView) []MissionResponse {
	res := make([]MissionResponse, 0, len(views))
	for _, v := range views {
		res = append(res, missionResponse(v))
	}
	return res
}

func stateResponse(s domain.MissionState) StateResponse {
	return StateResponse{
		MissionCode:    s.MissionCode,
		Status:         s.Status,
		Progress:       progressMap(s.ProgressJSON),
		StreakCounter:  s.StreakCounter,
		Attempts:       s.Attempts,
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
		NextEligibleAt: s.NextEligibleAt,
	}
}

func mapProgressEvents(events []domain.MissionProgressEvent) []ProgressEventResponse {
	res := make([]ProgressEventResponse, 0, len(events))
	for _, e := range events {
		res = append(res, ProgressEventResponse{
			ID:          e.ID,
			MissionCode: e.MissionCode,
			EventType:   e.EventType,
			Payload:     progressMap(e.PayloadJSON),
			OccurredAt:  e.OccurredAt,
		})
	}
	return res
}

func reportResponse(r engine.ProcessReport) ProcessReportResponse {
	out := ProcessReportResponse{Applied: r.Applied, Skipped: r.Skipped}
	if len(r.Failed) > 0 {
		out.Failed = map[string]string{}
		for code, err := range r.Failed {
			out.Failed[code] = err.Error()
		}
	}
	return out
}
