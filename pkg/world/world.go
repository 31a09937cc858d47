package world

import "time"

// State holds the global story flags shared by every conversation.
// It is persisted so the district stays in its post-game configuration
// across restarts.
type State struct {
	// MainObjectiveComplete is set once the final quest stage is
	// cleared. It flips every character into post-game dialogue and
	// unlocks post-game-only characters.
	MainObjectiveComplete bool       `json:"main_objective_complete"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// Complete marks the main objective finished, stamping the completion
// time once. Calling it again is a no-op.
func (s *State) Complete(now time.Time) {
	if s.MainObjectiveComplete {
		return
	}
	s.MainObjectiveComplete = true
	s.CompletedAt = &now
	s.UpdatedAt = now
}
