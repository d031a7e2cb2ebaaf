package evaluator_test

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"questmill/internal/catalog"
	"questmill/internal/domain"
	"questmill/internal/evaluator"
	"questmill/internal/lifecycle"
	"questmill/internal/repo"
)

// fakeReads substitutes the repo's auxiliary read methods.
type fakeReads struct {
	garments     []string
	sizeLabels   []string
	measurements []string
	matched      int
	progression  domain.ProfileProgression
	progErr      error
	circle       int
}

func (f fakeReads) GarmentCategories(context.Context, string) ([]string, error) {
	return f.garments, nil
}
func (f fakeReads) SizeLabelCategories(context.Context, string) ([]string, error) {
	return f.sizeLabels, nil
}
func (f fakeReads) MeasurementCategories(context.Context, string) ([]string, error) {
	return f.measurements, nil
}
func (f fakeReads) MatchedWishlistCount(context.Context, string) (int, error) {
	return f.matched, nil
}
func (f fakeReads) Progression(context.Context, string) (domain.ProfileProgression, error) {
	return f.progression, f.progErr
}
func (f fakeReads) CircleProgress(context.Context, string) (int, error) {
	return f.circle, nil
}

func toJSON(v any) ([]byte, error) { return json.Marshal(v) }

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func fromJSON(t *testing.T, b []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(b, out); err != nil {
		t.Fatal(err)
	}
}

func evaluate(t *testing.T, eval evaluator.Evaluator, reads evaluator.Reads, state domain.MissionState) *evaluator.Result {
	t.Helper()
	res, err := eval.Evaluate(context.Background(), domain.DomainEvent{
		Type:       domain.EventItemCreated,
		ProfileID:  "p1",
		OccurredAt: "2024-03-01T10:00:00Z",
	}, state, reads)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return res
}

func TestCoverageAggregatesSources(t *testing.T) {
	reads := fakeReads{
		garments:     []string{"tops", "bottoms"},
		sizeLabels:   []string{"footwear"},
		measurements: []string{"dresses"},
	}
	res := evaluate(t, evaluator.Coverage{}, reads, domain.MissionState{})
	if res == nil {
		t.Fatal("expected a result")
	}
	if res.Status != lifecycle.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", res.Status)
	}
	var p struct {
		Covered []string `json:"covered"`
	}
	b, _ := toJSON(res.Progress)
	fromJSON(t, b, &p)
	want := []string{"bottoms", "dresses", "footwear", "tops"}
	if !reflect.DeepEqual(p.Covered, want) {
		t.Errorf("covered = %v, want %v", p.Covered, want)
	}
}

func TestCoverageAliasesAndCompletion(t *testing.T) {
	// jumpsuits covers dresses+bottoms, suits covers outerwear+tops,
	// sneakers covers footwear, jewelry covers accessories.
	reads := fakeReads{garments: []string{"jumpsuits", "suits", "sneakers", "jewelry"}}
	res := evaluate(t, evaluator.Coverage{}, reads, domain.MissionState{})
	if res == nil {
		t.Fatal("expected a result")
	}
	if res.Status != lifecycle.StatusClaimable {
		t.Fatalf("all six pillars covered via aliases, status = %s, want claimable", res.Status)
	}
}

func TestCoverageMissingPillars(t *testing.T) {
	reads := fakeReads{garments: []string{"shoes", "knitwear"}}
	res := evaluate(t, evaluator.Coverage{}, reads, domain.MissionState{})
	if res == nil {
		t.Fatal("expected a result")
	}
	type progress struct {
		Covered []string `json:"covered"`
		Missing []string `json:"missing"`
	}
	b, _ := toJSON(res.Progress)
	var p progress
	fromJSON(t, b, &p)
	wantCovered := []string{"footwear", "tops"}
	wantMissing := []string{"accessories", "bottoms", "dresses", "outerwear"}
	if !reflect.DeepEqual(p.Covered, wantCovered) {
		t.Errorf("covered = %v, want %v", p.Covered, wantCovered)
	}
	if !reflect.DeepEqual(p.Missing, wantMissing) {
		t.Errorf("missing = %v, want %v", p.Missing, wantMissing)
	}

	// One item in a missing pillar shrinks the missing set by exactly one.
	reads.garments = append(reads.garments, "dresses")
	res = evaluate(t, evaluator.Coverage{}, reads, domain.MissionState{})
	fromJSON(t, mustJSON(t, res.Progress), &p)
	if len(p.Missing) != len(wantMissing)-1 {
		t.Errorf("missing after adding dresses = %v, want %d entries", p.Missing, len(wantMissing)-1)
	}
}

func TestThresholdCountFromWishlist(t *testing.T) {
	eval := evaluator.ThresholdCount{Source: "wishlist_matched", Target: 5}
	res := evaluate(t, eval, fakeReads{matched: 3}, domain.MissionState{})
	if res == nil || res.Status != lifecycle.StatusInProgress {
		t.Fatalf("3 of 5 matched should be in_progress, got %+v", res)
	}
	res = evaluate(t, eval, fakeReads{matched: 5}, domain.MissionState{})
	if res == nil || res.Status != lifecycle.StatusClaimable {
		t.Fatalf("5 of 5 matched should be claimable, got %+v", res)
	}
}

func TestThresholdCountUnknownSource(t *testing.T) {
	eval := evaluator.ThresholdCount{Source: "nope", Target: 1}
	_, err := eval.Evaluate(context.Background(), domain.DomainEvent{}, domain.MissionState{}, fakeReads{})
	if err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestCounterDeduplicatesByHash(t *testing.T) {
	eval := evaluator.Counter{Target: 3}
	state := domain.MissionState{Status: lifecycle.StatusAvailable}
	ev := domain.DomainEvent{
		Type:       domain.EventProfileShared,
		ProfileID:  "p1",
		OccurredAt: "2024-03-01T10:00:00Z",
		Payload:    domain.EventPayload{UniqueHash: "share-1"},
	}
	res, err := eval.Evaluate(context.Background(), ev, state, nil)
	if err != nil || res == nil {
		t.Fatalf("first delivery: res=%v err=%v", res, err)
	}
	b, _ := toJSON(res.Progress)
	state.ProgressJSON = string(b)

	// Redelivery of the same hash is a no-op.
	res, err = eval.Evaluate(context.Background(), ev, state, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Fatal("redelivered hash should not count twice")
	}
}

func TestCounterReachesTarget(t *testing.T) {
	eval := evaluator.Counter{Target: 2}
	state := domain.MissionState{Status: lifecycle.StatusAvailable}
	for i, hash := range []string{"h1", "h2"} {
		res, err := eval.Evaluate(context.Background(), domain.DomainEvent{
			Type:      domain.EventProfileShared,
			ProfileID: "p1",
			Payload:   domain.EventPayload{UniqueHash: hash},
		}, state, nil)
		if err != nil || res == nil {
			t.Fatalf("delivery %d: res=%v err=%v", i, res, err)
		}
		b, _ := toJSON(res.Progress)
		state.ProgressJSON = string(b)
		if i == 1 && res.Status != lifecycle.StatusClaimable {
			t.Fatalf("second distinct event should reach claimable, got %s", res.Status)
		}
	}
}

func TestProjectionStreakSource(t *testing.T) {
	eval := evaluator.Projection{Source: "progression_streak", Target: 14}
	res := evaluate(t, eval, fakeReads{progression: domain.ProfileProgression{CurrentStreak: 14}}, domain.MissionState{})
	if res == nil || res.Status != lifecycle.StatusClaimable {
		t.Fatalf("streak at target should be claimable, got %+v", res)
	}
	if res.StreakCounter != 14 {
		t.Fatalf("streak counter mirror = %d, want 14", res.StreakCounter)
	}

	// No progression row yet: nothing to project.
	res = evaluate(t, eval, fakeReads{progErr: repo.ErrNotFound}, domain.MissionState{})
	if res != nil {
		t.Fatalf("missing progression should produce no write, got %+v", res)
	}
}

func TestProjectionCircleSource(t *testing.T) {
	eval := evaluator.Projection{Source: "circle", Target: 100}
	res := evaluate(t, eval, fakeReads{circle: 40}, domain.MissionState{})
	if res == nil || res.Status != lifecycle.StatusInProgress {
		t.Fatalf("partial circle progress should be in_progress, got %+v", res)
	}
	res = evaluate(t, eval, fakeReads{circle: 120}, domain.MissionState{})
	if res == nil || res.Status != lifecycle.StatusClaimable {
		t.Fatalf("circle past target should be claimable, got %+v", res)
	}
}

func TestBuildRegistry(t *testing.T) {
	reg := evaluator.Build(catalog.Default())
	for _, code := range []string{"wardrobe_week", "closet_coverage", "wishlist_sizing", "profile_sharer", "streak_rescue", "circle_goal"} {
		if _, ok := reg[code]; !ok {
			t.Errorf("registry missing evaluator for %s", code)
		}
	}
}
