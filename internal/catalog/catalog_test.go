package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"questmill/internal/catalog"
	"questmill/internal/domain"
)

func TestDefaultCatalogValidates(t *testing.T) {
	c, err := catalog.FromYAML([]byte(catalog.GenerateDefault()))
	if err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
	if len(c.Missions) == 0 {
		t.Fatalf("default catalog has no missions")
	}
	if _, ok := c.ByCode("wardrobe_week"); !ok {
		t.Fatalf("wardrobe_week missing from default catalog")
	}
}

func TestByTrigger(t *testing.T) {
	c := catalog.Default()
	defs := c.ByTrigger(domain.EventItemCreated)
	codes := map[string]bool{}
	for _, d := range defs {
		codes[d.Code] = true
	}
	for _, want := range []string{"wardrobe_week", "closet_coverage", "winter_refresh"} {
		if !codes[want] {
			t.Errorf("item.created should trigger %s, got %v", want, codes)
		}
	}
	if len(c.ByTrigger("no.such.event")) != 0 {
		t.Errorf("unknown trigger should match nothing")
	}
}

func TestValidateRejectsBadCatalogs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"empty", "version: 1\nmissions: []\n"},
		{"no triggers", `
missions:
  - code: a
    title: A
    category: x
    triggers: []
    evaluator: {kind: counter, target: 1}
    reward: {kind: points, amount: 1}
`},
		{"unknown event type", `
missions:
  - code: a
    title: A
    category: x
    triggers: [not.an.event]
    evaluator: {kind: counter, target: 1}
    reward: {kind: points, amount: 1}
`},
		{"duplicate code", `
missions:
  - code: a
    title: A
    category: x
    triggers: [item.created]
    evaluator: {kind: counter, target: 1}
    reward: {kind: points, amount: 1}
  - code: a
    title: B
    category: x
    triggers: [item.created]
    evaluator: {kind: counter, target: 1}
    reward: {kind: points, amount: 1}
`},
		{"repeatable without cooldown", `
missions:
  - code: a
    title: A
    category: x
    repeatable: true
    triggers: [item.created]
    evaluator: {kind: counter, target: 1}
    reward: {kind: points, amount: 1}
`},
		{"season out of range", `
missions:
  - code: a
    title: A
    category: x
    season: {start_month: 0, end_month: 13}
    triggers: [item.created]
    evaluator: {kind: counter, target: 1}
    reward: {kind: points, amount: 1}
`},
		{"unknown reward kind", `
missions:
  - code: a
    title: A
    category: x
    triggers: [item.created]
    evaluator: {kind: counter, target: 1}
    reward: {kind: gold, amount: 1}
`},
	}
	for _, c := range cases {
		if _, err := catalog.FromYAML([]byte(c.yaml)); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}

func TestLoadFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	c, err := catalog.Load(dir)
	if err != nil {
		t.Fatalf("load empty workspace: %v", err)
	}
	if _, ok := c.ByCode("wardrobe_week"); !ok {
		t.Fatalf("expected embedded default when no file exists")
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	custom := `
missions:
  - code: only_one
    title: Only One
    category: test
    triggers: [item.created]
    evaluator: {kind: counter, target: 1}
    reward: {kind: points, amount: 10}
`
	if err := os.WriteFile(filepath.Join(dir, "questmill.yml"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := catalog.Load(dir)
	if err != nil {
		t.Fatalf("load custom catalog: %v", err)
	}
	if len(c.Missions) != 1 || c.Missions[0].Code != "only_one" {
		t.Fatalf("expected workspace catalog, got %+v", c.Missions)
	}
}
