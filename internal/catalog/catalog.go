// Package catalog holds the journey reference data: the five stages, their
// milestones, and the resource directory. The dataset is embedded in the
// binary, validated on load, and exposed through read-only accessors that
// return copies so callers cannot mutate the shared table.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedData []byte

// StageID identifies a journey stage. Values are stable across sessions.
type StageID string

const (
	StageEarlySigns        StageID = "s1"
	StageDiagnosis         StageID = "s2"
	StageEarlyIntervention StageID = "s3"
	StageSchoolReadiness   StageID = "s4"
	StageSupport           StageID = "s5"
)

// StageCount is the fixed size of the stage catalog.
const StageCount = 5

// Category classifies a resource in the directory.
type Category string

const (
	CategoryEarlyIntervention Category = "Early Intervention"
	CategoryDiagnosis         Category = "Diagnosis"
	CategoryInsurance         Category = "Insurance"
	CategoryIEP               Category = "IEP"
	CategoryTherapy           Category = "Therapy"
	CategoryGeneral           Category = "General"
)

// Categories lists every valid resource category in display order.
var Categories = []Category{
	CategoryEarlyIntervention,
	CategoryDiagnosis,
	CategoryInsurance,
	CategoryIEP,
	CategoryTherapy,
	CategoryGeneral,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Stage is one phase of the parent journey.
type Stage struct {
	ID             StageID `yaml:"id" json:"id"`
	Title          string  `yaml:"title" json:"title"`
	Description    string  `yaml:"description" json:"description"`
	AgeRange       string  `yaml:"age_range" json:"ageRange"`
	Color          string  `yaml:"color" json:"color"`
	Icon           string  `yaml:"icon" json:"icon"`
	Order          int     `yaml:"order" json:"order"`
	NextStepPrompt string  `yaml:"next_step_prompt" json:"nextStepPrompt"`
}

// Milestone is a single checklist item belonging to a stage.
type Milestone struct {
	ID           string  `yaml:"id" json:"id"`
	StageID      StageID `yaml:"stage_id" json:"stageId"`
	Title        string  `yaml:"title" json:"title"`
	Behavior     string  `yaml:"behavior" json:"behavior"`
	WhyItMatters string  `yaml:"why_it_matters" json:"whyItMatters"`
	IfNotYet     string  `yaml:"if_not_yet" json:"ifNotYet"`
	Reassurance  string  `yaml:"reassurance" json:"reassurance"`
}

// Resource is an entry in the external resource directory.
type Resource struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	URL         string   `yaml:"url" json:"url"`
	Category    Category `yaml:"category" json:"category"`
	Tags        []string `yaml:"tags" json:"tags"`
}

func (r Resource) clone() Resource {
	r.Tags = append([]string(nil), r.Tags...)
	return r
}

// document mirrors the YAML layout.
type document struct {
	Stages     []Stage     `yaml:"stages"`
	Milestones []Milestone `yaml:"milestones"`
	Resources  []Resource  `yaml:"resources"`
}

// Catalog is the immutable, indexed reference dataset.
type Catalog struct {
	stages     []Stage
	milestones []Milestone
	resources  []Resource

	stageIdx     map[StageID]int
	milestoneIdx map[string]int
	resourceIdx  map[string]int
	byStage      map[StageID][]int
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded catalog, parsing it on first use.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Parse(embeddedData)
	})
	return defaultCat, defaultErr
}

// MustDefault is Default for program initialization and tests. It panics if
// the embedded dataset is invalid, which only a broken build can cause.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes a YAML dataset and validates it.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog decode: %w", err)
	}
	return New(doc.Stages, doc.Milestones, doc.Resources)
}

// New builds a catalog from already decoded records. Input slices are
// copied. Stages are ordered by their Order field.
func New(stages []Stage, milestones []Milestone, resources []Resource) (*Catalog, error) {
	c := &Catalog{
		stages:       append([]Stage(nil), stages...),
		milestones:   append([]Milestone(nil), milestones...),
		resources:    make([]Resource, 0, len(resources)),
		stageIdx:     make(map[StageID]int, len(stages)),
		milestoneIdx: make(map[string]int, len(milestones)),
		resourceIdx:  make(map[string]int, len(resources)),
		byStage:      make(map[StageID][]int, len(stages)),
	}
	for _, r := range resources {
		c.resources = append(c.resources, r.clone())
	}
	sort.SliceStable(c.stages, func(i, j int) bool { return c.stages[i].Order < c.stages[j].Order })

	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

// index builds the lookup tables and enforces the dataset invariants.
func (c *Catalog) index() error {
	if len(c.stages) != StageCount {
		return fmt.Errorf("catalog: expected %d stages, got %d", StageCount, len(c.stages))
	}
	for i, s := range c.stages {
		if s.ID == "" {
			return fmt.Errorf("catalog: stage at position %d has no id", i)
		}
		if _, dup := c.stageIdx[s.ID]; dup {
			return fmt.Errorf("catalog: duplicate stage id %q", s.ID)
		}
		c.stageIdx[s.ID] = i
	}
	for i, m := range c.milestones {
		if m.ID == "" {
			return fmt.Errorf("catalog: milestone at position %d has no id", i)
		}
		if _, dup := c.milestoneIdx[m.ID]; dup {
			return fmt.Errorf("catalog: duplicate milestone id %q", m.ID)
		}
		if _, ok := c.stageIdx[m.StageID]; !ok {
			return fmt.Errorf("catalog: milestone %q references unknown stage %q", m.ID, m.StageID)
		}
		c.milestoneIdx[m.ID] = i
		c.byStage[m.StageID] = append(c.byStage[m.StageID], i)
	}
	for i, r := range c.resources {
		if r.ID == "" {
			return fmt.Errorf("catalog: resource at position %d has no id", i)
		}
		if _, dup := c.resourceIdx[r.ID]; dup {
			return fmt.Errorf("catalog: duplicate resource id %q", r.ID)
		}
		if !r.Category.Valid() {
			return fmt.Errorf("catalog: resource %q has unknown category %q", r.ID, r.Category)
		}
		c.resourceIdx[r.ID] = i
	}
	return nil
}

// Stages returns all stages in journey order.
func (c *Catalog) Stages() []Stage {
	return append([]Stage(nil), c.stages...)
}

// Stage looks up a stage by id.
func (c *Catalog) Stage(id StageID) (Stage, bool) {
	i, ok := c.stageIdx[id]
	if !ok {
		return Stage{}, false
	}
	return c.stages[i], true
}

// HasStage reports whether id names a catalog stage.
func (c *Catalog) HasStage(id StageID) bool {
	_, ok := c.stageIdx[id]
	return ok
}

// Milestones returns every milestone, grouped by stage in catalog order.
func (c *Catalog) Milestones() []Milestone {
	return append([]Milestone(nil), c.milestones...)
}

// MilestonesForStage returns the milestones of one stage. Unknown stages
// yield an empty slice.
func (c *Catalog) MilestonesForStage(id StageID) []Milestone {
	idx := c.byStage[id]
	out := make([]Milestone, 0, len(idx))
	for _, i := range idx {
		out = append(out, c.milestones[i])
	}
	return out
}

// MilestoneCount returns the number of milestones in a stage.
func (c *Catalog) MilestoneCount(id StageID) int {
	return len(c.byStage[id])
}

// Milestone looks up a milestone by id.
func (c *Catalog) Milestone(id string) (Milestone, bool) {
	i, ok := c.milestoneIdx[id]
	if !ok {
		return Milestone{}, false
	}
	return c.milestones[i], true
}

// HasMilestone reports whether id names a catalog milestone.
func (c *Catalog) HasMilestone(id string) bool {
	_, ok := c.milestoneIdx[id]
	return ok
}

// Resource looks up a resource by id.
func (c *Catalog) Resource(id string) (Resource, bool) {
	i, ok := c.resourceIdx[id]
	if !ok {
		return Resource{}, false
	}
	return c.resources[i].clone(), true
}

// ResourceFilter narrows a resource listing. Zero values match everything.
type ResourceFilter struct {
	Category Category
	// Search is matched case-insensitively against title, description and tags.
	Search string
}

// Resources returns the resources matching f in catalog order.
func (c *Catalog) Resources(f ResourceFilter) []Resource {
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]Resource, 0, len(c.resources))
	for _, r := range c.resources {
		if f.Category != "" && r.Category != f.Category {
			continue
		}
		if needle != "" && !r.matches(needle) {
			continue
		}
		out = append(out, r.clone())
	}
	return out
}

func (r Resource) matches(needle string) bool {
	if strings.Contains(strings.ToLower(r.Title), needle) ||
		strings.Contains(strings.ToLower(r.Description), needle) {
		return true
	}
	for _, t := range r.Tags {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}
