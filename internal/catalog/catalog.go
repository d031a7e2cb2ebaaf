package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"questmill/internal/domain"
)

// Evaluator kinds understood by the engine. A definition with any other
// kind loads fine but is skipped by the dispatcher.
const (
	KindStreak     = "streak"
	KindCoverage   = "coverage"
	KindCount      = "count"
	KindCounter    = "counter"
	KindProjection = "projection"
)

// Reward kinds the ledger accepts.
const (
	RewardPoints = "points"
	RewardBadge  = "badge"
	RewardFreeze = "streak_freeze"
)

// SeasonalWindow limits availability to months [Start, End], wrapping
// the year end when Start > End (e.g. 11..2 covers Nov through Feb).
type SeasonalWindow struct {
	StartMonth int `yaml:"start_month" json:"start_month"`
	EndMonth   int `yaml:"end_month" json:"end_month"`
}

type EvaluatorSpec struct {
	Kind   string `yaml:"kind" json:"kind"`
	Target int    `yaml:"target,omitempty" json:"target,omitempty"`
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
}

type RewardSpec struct {
	Kind   string `yaml:"kind" json:"kind"`
	Amount int    `yaml:"amount,omitempty" json:"amount,omitempty"`
}

// Definition is an immutable catalog entry. Loaded once at startup and
// never mutated afterwards.
type Definition struct {
	Code         string          `yaml:"code" json:"code"`
	Title        string          `yaml:"title" json:"title"`
	Description  string          `yaml:"description,omitempty" json:"description,omitempty"`
	Category     string          `yaml:"category" json:"category"`
	Difficulty   string          `yaml:"difficulty,omitempty" json:"difficulty,omitempty"`
	Repeatable   bool            `yaml:"repeatable,omitempty" json:"repeatable,omitempty"`
	CooldownDays int             `yaml:"cooldown_days,omitempty" json:"cooldown_days,omitempty"`
	Hidden       bool            `yaml:"hidden,omitempty" json:"hidden,omitempty"`
	Season       *SeasonalWindow `yaml:"season,omitempty" json:"season,omitempty"`
	Triggers     []string        `yaml:"triggers" json:"triggers"`
	Evaluator    EvaluatorSpec   `yaml:"evaluator" json:"evaluator"`
	Reward       RewardSpec      `yaml:"reward" json:"reward"`
}

// Catalog models questmill.yml.
type Catalog struct {
	Version  int          `yaml:"version" json:"version"`
	Missions []Definition `yaml:"missions" json:"missions"`

	byCode    map[string]Definition
	byTrigger map[string][]Definition
}

// Validate ensures the catalog meets required structure.
func (c *Catalog) Validate() error {
	if len(c.Missions) == 0 {
		return fmt.Errorf("catalog.missions is required")
	}
	seen := map[string]bool{}
	for _, m := range c.Missions {
		if m.Code == "" {
			return fmt.Errorf("catalog contains mission with empty code")
		}
		if seen[m.Code] {
			return fmt.Errorf("duplicate mission code %s", m.Code)
		}
		seen[m.Code] = true
		if len(m.Triggers) == 0 {
			return fmt.Errorf("mission %s has no triggers", m.Code)
		}
		for _, t := range m.Triggers {
			if !domain.KnownEventType(t) {
				return fmt.Errorf("mission %s triggers unknown event type %s", m.Code, t)
			}
		}
		if m.Evaluator.Kind == "" {
			return fmt.Errorf("mission %s has no evaluator kind", m.Code)
		}
		if m.Repeatable && m.CooldownDays <= 0 {
			return fmt.Errorf("repeatable mission %s needs cooldown_days > 0", m.Code)
		}
		if s := m.Season; s != nil {
			if s.StartMonth < 1 || s.StartMonth > 12 || s.EndMonth < 1 || s.EndMonth > 12 {
				return fmt.Errorf("mission %s has seasonal months out of range", m.Code)
			}
		}
		switch m.Reward.Kind {
		case RewardPoints, RewardBadge, RewardFreeze:
		default:
			return fmt.Errorf("mission %s has unknown reward kind %s", m.Code, m.Reward.Kind)
		}
	}
	return nil
}

func (c *Catalog) index() {
	c.byCode = make(map[string]Definition, len(c.Missions))
	c.byTrigger = map[string][]Definition{}
	for _, m := range c.Missions {
		c.byCode[m.Code] = m
		for _, t := range m.Triggers {
			c.byTrigger[t] = append(c.byTrigger[t], m)
		}
	}
}

// ByCode returns the definition for a mission code.
func (c *Catalog) ByCode(code string) (Definition, bool) {
	d, ok := c.byCode[code]
	return d, ok
}

// ByTrigger returns every definition whose trigger set contains the
// event type, regardless of per-profile visibility.
func (c *Catalog) ByTrigger(eventType string) []Definition {
	return c.byTrigger[eventType]
}

// Path returns the catalog file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "questmill.yml")
}

// Load reads the catalog from the workspace, falling back to the
// embedded default when no file exists.
func Load(workspace string) (*Catalog, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates a catalog from raw YAML bytes.
func FromYAML(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid catalog yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.index()
	return &c, nil
}

// FromFile reads a catalog from the given path.
func FromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	var c Catalog
	if err := yaml.Unmarshal([]byte(defaultTemplate), &c); err != nil {
		panic(fmt.Sprintf("default catalog: %v", err))
	}
	c.index()
	return &c
}

// GenerateDefault returns the default catalog YAML, for `qm catalog init`.
func GenerateDefault() string { return defaultTemplate }

const defaultTemplate = `version: 3

missions:
  - code: wardrobe_week
    title: "Wardrobe Week"
    description: "Log a detailed wardrobe item on 7 consecutive days"
    category: wardrobe
    difficulty: medium
    triggers: [item.created, item.updated]
    evaluator:
      kind: streak
      target: 7
    reward:
      kind: points
      amount: 500

  - code: closet_coverage
    title: "Cover Your Closet"
    description: "Keep at least one item in each of the six closet pillars"
    category: wardrobe
    difficulty: easy
    triggers: [item.created, item.updated, measurement.updated]
    evaluator:
      kind: coverage
    reward:
      kind: points
      amount: 250

  - code: wishlist_sizing
    title: "Sized and Wished"
    description: "Match 5 wishlist items to a known size"
    category: wishlist
    difficulty: easy
    triggers: [wishlist.item.created]
    evaluator:
      kind: count
      source: wishlist_matched
      target: 5
    reward:
      kind: points
      amount: 150

  - code: profile_sharer
    title: "Show It Off"
    description: "Share your profile 3 times"
    category: social
    difficulty: easy
    repeatable: true
    cooldown_days: 30
    triggers: [profile.shared]
    evaluator:
      kind: counter
      target: 3
    reward:
      kind: points
      amount: 100

  - code: circle_invites
    title: "Bring Your Circle"
    description: "Have 3 invites accepted"
    category: social
    difficulty: medium
    triggers: [invite.accepted]
    evaluator:
      kind: counter
      target: 3
    reward:
      kind: badge
      amount: 1

  - code: photo_habit
    title: "Picture Perfect"
    description: "Add photos to 10 wardrobe items"
    category: wardrobe
    difficulty: medium
    triggers: [photo.added]
    evaluator:
      kind: counter
      target: 10
    reward:
      kind: points
      amount: 200

  - code: first_purchase
    title: "First Find"
    description: "Log your first purchase"
    category: shopping
    difficulty: easy
    triggers: [purchase.logged]
    evaluator:
      kind: counter
      target: 1
    reward:
      kind: points
      amount: 50

  - code: winter_refresh
    title: "Winter Refresh"
    description: "Add 5 items during the winter season"
    category: seasonal
    difficulty: easy
    repeatable: true
    cooldown_days: 90
    season:
      start_month: 11
      end_month: 2
    triggers: [item.created]
    evaluator:
      kind: counter
      target: 5
    reward:
      kind: points
      amount: 300

  - code: streak_rescue
    title: "Streak Rescuer"
    description: "Keep your daily streak alive for 14 days"
    category: engagement
    difficulty: hard
    hidden: true
    triggers: [streak.updated]
    evaluator:
      kind: projection
      source: progression_streak
      target: 14
    reward:
      kind: streak_freeze
      amount: 1

  - code: circle_goal
    title: "Circle Goal"
    description: "Reach the shared circle goal together"
    category: social
    difficulty: hard
    triggers: [circle.progress]
    evaluator:
      kind: projection
      source: circle
      target: 100
    reward:
      kind: badge
      amount: 1
`
