package evaluator

import (
	"context"
	"sort"

	"questmill/internal/domain"
	"questmill/internal/lifecycle"
)

// The six closet pillars a profile is asked to cover.
var pillars = []string{"tops", "bottoms", "outerwear", "footwear", "dresses", "accessories"}

// pillarsFor normalizes a stored category to the pillars it satisfies.
// The multi-pillar rows (jumpsuits, suits) and the legacy names (shoes,
// bags) date from the category rename; kept for compatibility with rows
// written under the old scheme. Flagged for product review.
var categoryPillars = map[string][]string{
	"tops":        {"tops"},
	"bottoms":     {"bottoms"},
	"outerwear":   {"outerwear"},
	"footwear":    {"footwear"},
	"dresses":     {"dresses"},
	"accessories": {"accessories"},
	"knitwear":    {"tops"},
	"skirts":      {"bottoms"},
	"shoes":       {"footwear"},
	"sneakers":    {"footwear"},
	"bags":        {"accessories"},
	"jewelry":     {"accessories"},
	"jumpsuits":   {"dresses", "bottoms"},
	"suits":       {"outerwear", "tops"},
}

// Coverage re-derives the covered pillar set from the profile's
// garments, size labels and measurements on every qualifying event.
// Recomputing from the source of truth makes replays idempotent for
// free.
type Coverage struct{}

type coverageProgress struct {
	Covered []string `json:"covered"`
	Missing []string `json:"missing"`
}

func (Coverage) Evaluate(ctx context.Context, ev domain.DomainEvent, state domain.MissionState, reads Reads) (*Result, error) {
	present := map[string]bool{}
	for _, fetch := range []func(context.Context, string) ([]string, error){
		reads.GarmentCategories,
		reads.SizeLabelCategories,
		reads.MeasurementCategories,
	} {
		cats, err := fetch(ctx, ev.ProfileID)
		if err != nil {
			return nil, err
		}
		for _, c := range cats {
			for _, p := range categoryPillars[c] {
				present[p] = true
			}
		}
	}

	var p coverageProgress
	for _, pillar := range pillars {
		if present[pillar] {
			p.Covered = append(p.Covered, pillar)
		} else {
			p.Missing = append(p.Missing, pillar)
		}
	}
	sort.Strings(p.Covered)
	sort.Strings(p.Missing)

	status := lifecycle.StatusInProgress
	if len(p.Missing) == 0 {
		status = lifecycle.StatusClaimable
	}
	return &Result{Progress: p, Status: status, StreakCounter: state.StreakCounter}, nil
}
