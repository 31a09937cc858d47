package actor

import "fmt"

// Position is a point on the ground plane of the district.
type Position struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// Destination is a named point a character can lead the player to.
type Destination struct {
	X     float64 `json:"x"`
	Z     float64 `json:"z"`
	Label string  `json:"label"`
}

// CharacterProfile is the static definition of an NPC: identity,
// personality, fixed greeting and fallback lines, story knowledge, and
// lead eligibility. Profiles are loaded from data files and never mutated
// at runtime; all per-player state lives in memory.CharacterMemory.
type CharacterProfile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	StoryRole   string `json:"story_role,omitempty"`
	Personality string `json:"personality"`

	// Greeting is spoken verbatim on a first meeting. Fallbacks are used
	// when the LLM backend is unreachable.
	Greeting  string   `json:"greeting"`
	Fallbacks []string `json:"fallbacks"`

	// Story knowledge revealed gradually through conversation.
	Knowledge []string `json:"knowledge,omitempty"`
	Clues     []string `json:"clues,omitempty"`

	// Lead eligibility. A character with CanLead set may offer to escort
	// the player to LeadDestination.
	CanLead         bool         `json:"can_lead,omitempty"`
	LeadDestination *Destination `json:"lead_destination,omitempty"`

	Home Position `json:"home"`

	// PostGameReaction replaces the active world-state script once the
	// main objective is complete. PostGameOnly characters do not exist
	// in the world before that.
	PostGameReaction string `json:"post_game_reaction,omitempty"`
	PostGameOnly     bool   `json:"post_game_only,omitempty"`
}

// Validate checks that a profile is complete enough to drive dialogue.
func (p *CharacterProfile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("character id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("character name is required")
	}
	if p.Personality == "" {
		return fmt.Errorf("character %q: personality is required", p.ID)
	}
	if p.Greeting == "" {
		return fmt.Errorf("character %q: greeting is required", p.ID)
	}
	if len(p.Fallbacks) == 0 {
		return fmt.Errorf("character %q: at least one fallback line is required", p.ID)
	}
	if p.CanLead && p.LeadDestination == nil {
		return fmt.Errorf("character %q: can_lead requires a lead_destination", p.ID)
	}
	if p.LeadDestination != nil && p.LeadDestination.Label == "" {
		return fmt.Errorf("character %q: lead_destination requires a label", p.ID)
	}
	return nil
}
