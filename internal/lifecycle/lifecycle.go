// Package lifecycle owns the mission status machine shared by every
// mission, independent of any evaluator's logic.
package lifecycle

import (
	"time"

	"questmill/internal/catalog"
	"questmill/internal/domain"
)

const (
	StatusHidden     = "hidden"
	StatusLocked     = "locked"
	StatusAvailable  = "available"
	StatusInProgress = "in_progress"
	StatusClaimable  = "claimable"
	StatusCompleted  = "completed"
	StatusCooldown   = "cooldown"
)

var rank = map[string]int{
	StatusHidden:     0,
	StatusLocked:     1,
	StatusAvailable:  2,
	StatusInProgress: 3,
	StatusClaimable:  4,
}

// InSeason reports whether now falls inside the window, handling the
// year wrap when start_month > end_month (e.g. 11..2).
func InSeason(s *catalog.SeasonalWindow, now time.Time) bool {
	if s == nil {
		return true
	}
	m := int(now.UTC().Month())
	if s.StartMonth <= s.EndMonth {
		return m >= s.StartMonth && m <= s.EndMonth
	}
	return m >= s.StartMonth || m <= s.EndMonth
}

// Initial is the status of a lazily-created state row.
func Initial(def catalog.Definition, now time.Time) string {
	if def.Hidden {
		return StatusHidden
	}
	if !InSeason(def.Season, now) {
		return StatusLocked
	}
	return StatusAvailable
}

// Resolve applies the lazy transitions that depend only on the clock:
// cooldown expiry and the seasonal window opening. No background sweep
// exists; callers resolve on every read.
func Resolve(def catalog.Definition, s domain.MissionState, now time.Time) string {
	switch s.Status {
	case StatusCooldown:
		if s.NextEligibleAt != nil {
			if t, err := time.Parse(time.RFC3339, *s.NextEligibleAt); err == nil && !now.Before(t) {
				return StatusAvailable
			}
		}
	case StatusLocked:
		if InSeason(def.Season, now) {
			return StatusAvailable
		}
	case StatusHidden:
		if !def.Hidden && InSeason(def.Season, now) {
			return StatusAvailable
		}
	}
	return s.Status
}

// Advance merges an evaluator's suggested status into the current one.
// A mission only ever moves forward to what its progress warrants;
// stale or out-of-order events can never move it backward. Hidden
// missions keep accruing progress silently and surface only once
// claimable.
func Advance(current, suggested string) string {
	cr, cok := rank[current]
	sr, sok := rank[suggested]
	if !cok || !sok {
		return current
	}
	if current == StatusHidden && suggested == StatusInProgress {
		return current
	}
	if sr > cr {
		return suggested
	}
	return current
}

// Terminal reports whether the status admits no further transitions.
func Terminal(def catalog.Definition, status string) bool {
	return status == StatusCompleted && !def.Repeatable
}
