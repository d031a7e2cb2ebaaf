// Package evaluator holds the per-mission progress functions. Each
// evaluator is pure over (event, current state, auxiliary reads); its
// only output is the returned Result.
package evaluator

import (
	"context"

	"questmill/internal/catalog"
	"questmill/internal/domain"
)

// Reads is the read-only auxiliary access handed to evaluators. The
// repo satisfies it; tests substitute fakes.
type Reads interface {
	GarmentCategories(ctx context.Context, profileID string) ([]string, error)
	SizeLabelCategories(ctx context.Context, profileID string) ([]string, error)
	MeasurementCategories(ctx context.Context, profileID string) ([]string, error)
	MatchedWishlistCount(ctx context.Context, profileID string) (int, error)
	Progression(ctx context.Context, profileID string) (domain.ProfileProgression, error)
	CircleProgress(ctx context.Context, profileID string) (int, error)
}

// Result is an evaluator's verdict: the new progress document, the
// status the progress warrants, and the streak counter to mirror into
// the state row. A nil Result means the event was irrelevant or already
// applied and no write should occur.
type Result struct {
	Progress      any
	Status        string
	StreakCounter int
}

type Evaluator interface {
	Evaluate(ctx context.Context, ev domain.DomainEvent, state domain.MissionState, reads Reads) (*Result, error)
}

// Registry maps mission codes to evaluators. Missions without an entry
// are skipped by the dispatcher.
type Registry map[string]Evaluator

// Build wires an evaluator for every catalog definition whose kind is
// understood. Adding a mission means adding a catalog entry, not
// editing the dispatcher.
func Build(cat *catalog.Catalog) Registry {
	reg := Registry{}
	for _, def := range cat.Missions {
		switch def.Evaluator.Kind {
		case catalog.KindStreak:
			reg[def.Code] = Streak{Target: def.Evaluator.Target}
		case catalog.KindCoverage:
			reg[def.Code] = Coverage{}
		case catalog.KindCount:
			reg[def.Code] = ThresholdCount{Source: def.Evaluator.Source, Target: def.Evaluator.Target}
		case catalog.KindCounter:
			reg[def.Code] = Counter{Target: def.Evaluator.Target}
		case catalog.KindProjection:
			reg[def.Code] = Projection{Source: def.Evaluator.Source, Target: def.Evaluator.Target}
		}
	}
	return reg
}
