// Package quest tracks the main story line: an ordered sequence of
// stages, each gated by a set of objectives that complete when bound
// keywords appear in a character's generated dialogue.
package quest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Objective is an atomic quest task, bound to the character whose
// dialogue can complete it.
type Objective struct {
	ID          string   `json:"id"`
	CharacterID string   `json:"character_id"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
	Completed   bool     `json:"-"`
}

// Stage is an ordered group of objectives. Stages complete strictly in
// order; only the current stage accepts objective completion.
type Stage struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Objectives  []Objective `json:"objectives"`
	Completed   bool        `json:"-"`
}

// Definition is the static quest content loaded from a data file.
type Definition struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Stages      []Stage `json:"stages"`
}

// Validate checks the quest definition for structural problems.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("quest id is required")
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("quest %q: at least one stage is required", d.ID)
	}
	seen := make(map[string]bool)
	for _, stage := range d.Stages {
		if len(stage.Objectives) == 0 {
			return fmt.Errorf("quest %q: stage %q has no objectives", d.ID, stage.ID)
		}
		for _, obj := range stage.Objectives {
			if obj.ID == "" {
				return fmt.Errorf("quest %q: stage %q has an objective without an id", d.ID, stage.ID)
			}
			if seen[obj.ID] {
				return fmt.Errorf("quest %q: duplicate objective id %q", d.ID, obj.ID)
			}
			seen[obj.ID] = true
			if obj.CharacterID == "" {
				return fmt.Errorf("quest %q: objective %q is not bound to a character", d.ID, obj.ID)
			}
		}
	}
	return nil
}

// Clue is a discovered fact string, deduplicated by exact text and
// attributed to the character who revealed it.
type Clue struct {
	Text         string    `json:"text"`
	Source       string    `json:"source"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Save is the durable quest state. Objective and stage completion flags
// are rederived from the completed id set on load, never persisted
// independently.
type Save struct {
	CurrentStage        int      `json:"current_stage"`
	CompletedObjectives []string `json:"completed_objectives,omitempty"`
	Clues               []Clue   `json:"clues,omitempty"`
}

// Persistence is the storage boundary the quest graph consumes.
type Persistence interface {
	LoadQuestSave(ctx context.Context) (*Save, error)
	SaveQuestSave(ctx context.Context, s *Save) error
	DeleteQuestSave(ctx context.Context) error
}

// Progress is a summary of story progression for HUD-style consumers.
type Progress struct {
	Chapter    int    `json:"chapter"`
	StageTitle string `json:"stage_title"`
	Remaining  int    `json:"remaining"`
	CluesFound int    `json:"clues_found"`
	Percent    int    `json:"percent"`
	Complete   bool   `json:"complete"`
}

// Graph holds the live quest state for one save profile.
type Graph struct {
	mu        sync.Mutex
	def       Definition
	stages    []Stage // working copy with completion flags
	current   int
	completed map[string]bool
	clues     []Clue
	persist   Persistence
	logger    *slog.Logger
	now       func() time.Time
}

// NewGraph creates a quest graph from a definition and restores any
// persisted progress. A corrupt or missing save starts the quest fresh;
// restore failure is never fatal.
func NewGraph(ctx context.Context, def Definition, persist Persistence, logger *slog.Logger) *Graph {
	g := &Graph{
		def:       def,
		completed: make(map[string]bool),
		persist:   persist,
		logger:    logger,
		now:       time.Now,
	}
	g.stages = make([]Stage, len(def.Stages))
	copy(g.stages, def.Stages)
	for i := range g.stages {
		g.stages[i].Objectives = make([]Objective, len(def.Stages[i].Objectives))
		copy(g.stages[i].Objectives, def.Stages[i].Objectives)
	}

	save, err := persist.LoadQuestSave(ctx)
	if err != nil {
		logger.Warn("Failed to load quest save, starting fresh", "error", err)
		return g
	}
	if save != nil {
		g.restore(save)
	}
	return g
}

// restore rederives all completion flags from the persisted id set.
func (g *Graph) restore(save *Save) {
	for _, id := range save.CompletedObjectives {
		g.completed[id] = true
	}
	g.clues = save.Clues

	for i := range g.stages {
		all := true
		for j := range g.stages[i].Objectives {
			obj := &g.stages[i].Objectives[j]
			obj.Completed = g.completed[obj.ID]
			if !obj.Completed {
				all = false
			}
		}
		g.stages[i].Completed = all
	}

	g.current = save.CurrentStage
	if g.current < 0 {
		g.current = 0
	}
	if g.current > len(g.stages) {
		g.current = len(g.stages)
	}
}

func (g *Graph) save(ctx context.Context) {
	ids := make([]string, 0, len(g.completed))
	for i := range g.stages {
		for _, obj := range g.stages[i].Objectives {
			if g.completed[obj.ID] {
				ids = append(ids, obj.ID)
			}
		}
	}
	s := &Save{
		CurrentStage:        g.current,
		CompletedObjectives: ids,
		Clues:               g.clues,
	}
	if err := g.persist.SaveQuestSave(ctx, s); err != nil {
		g.logger.Error("Failed to save quest progress", "error", err)
	}
}

// CurrentObjectives returns the incomplete objectives of the current
// stage, or an empty slice once the quest is exhausted.
func (g *Graph) CurrentObjectives() []Objective {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentObjectivesLocked()
}

func (g *Graph) currentObjectivesLocked() []Objective {
	if g.current >= len(g.stages) {
		return []Objective{}
	}
	var out []Objective
	for _, obj := range g.stages[g.current].Objectives {
		if !obj.Completed {
			out = append(out, obj)
		}
	}
	if out == nil {
		out = []Objective{}
	}
	return out
}

// CompleteObjective marks an objective of the current stage completed.
// It returns false, mutating nothing, if the id is unknown, belongs to
// another stage, or is already completed. Completing the last objective
// of a stage advances the quest; completing the final stage leaves the
// graph in the epilogue state.
func (g *Graph) CompleteObjective(ctx context.Context, id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.completeObjectiveLocked(ctx, id)
}

func (g *Graph) completeObjectiveLocked(ctx context.Context, id string) bool {
	if g.current >= len(g.stages) {
		return false
	}
	stage := &g.stages[g.current]

	var obj *Objective
	for i := range stage.Objectives {
		if stage.Objectives[i].ID == id {
			obj = &stage.Objectives[i]
			break
		}
	}
	if obj == nil || obj.Completed {
		return false
	}

	obj.Completed = true
	g.completed[id] = true
	g.logger.Info("Objective completed", "objective", id, "stage", stage.ID)

	all := true
	for _, o := range stage.Objectives {
		if !o.Completed {
			all = false
			break
		}
	}
	if all {
		stage.Completed = true
		g.current++
		if g.current < len(g.stages) {
			g.logger.Info("Stage advanced",
				"stage", g.stages[g.current].ID,
				"title", g.stages[g.current].Title)
		} else {
			g.logger.Info("Quest complete", "quest", g.def.ID)
		}
	}

	g.save(ctx)
	return true
}

// EvaluateTriggers scans a character's generated reply against the
// keyword bindings of the current stage and completes every matching
// objective. It returns the ids completed by this reply.
func (g *Graph) EvaluateTriggers(ctx context.Context, characterID, responseText string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	text := strings.ToLower(responseText)
	var completed []string
	for _, obj := range g.currentObjectivesLocked() {
		if obj.CharacterID != characterID || len(obj.Keywords) == 0 {
			continue
		}
		for _, keyword := range obj.Keywords {
			if strings.Contains(text, strings.ToLower(keyword)) {
				if g.completeObjectiveLocked(ctx, obj.ID) {
					completed = append(completed, obj.ID)
				}
				break
			}
		}
	}
	return completed
}

// AddClue appends a discovered clue unless one with identical text
// already exists. It reports whether the clue was new.
func (g *Graph) AddClue(ctx context.Context, text, source string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range g.clues {
		if c.Text == text {
			return false
		}
	}
	g.clues = append(g.clues, Clue{
		Text:         text,
		Source:       source,
		DiscoveredAt: g.now(),
	})
	g.logger.Info("Clue discovered", "source", source, "clue", text)
	g.save(ctx)
	return true
}

// Clues returns the discovered clues in discovery order.
func (g *Graph) Clues() []Clue {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Clue, len(g.clues))
	copy(out, g.clues)
	return out
}

// IsComplete reports whether every stage has completed.
func (g *Graph) IsComplete() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current >= len(g.stages)
}

// Progress summarizes story progression.
func (g *Graph) Progress() Progress {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := Progress{
		Chapter:    g.current + 1,
		StageTitle: "Epilogue",
		CluesFound: len(g.clues),
		Percent:    100,
		Complete:   g.current >= len(g.stages),
	}
	if g.current < len(g.stages) {
		p.StageTitle = g.stages[g.current].Title
		p.Remaining = len(g.currentObjectivesLocked())
		p.Percent = g.current * 100 / len(g.stages)
	}
	return p
}

// Reset wipes all quest progress and restarts the definition.
func (g *Graph) Reset(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.persist.DeleteQuestSave(ctx); err != nil {
		return fmt.Errorf("failed to delete quest save: %w", err)
	}
	g.current = 0
	g.completed = make(map[string]bool)
	g.clues = nil
	for i := range g.stages {
		g.stages[i].Completed = false
		for j := range g.stages[i].Objectives {
			g.stages[i].Objectives[j].Completed = false
		}
	}
	return nil
}
