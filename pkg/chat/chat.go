package chat

import "fmt"

const (
	ChatRoleUser   = "user"      // Player
	ChatRoleAgent  = "assistant" // Character
	ChatRoleSystem = "system"    // System prompt
)

// ChatMessage represents a single chat message in a conversation.
// This shape is defined by Ollama's chat API and is used to structure
// messages sent to the LLM.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// StartRequest opens a conversation with a character.
type StartRequest struct {
	CharacterID string `json:"character_id"`
}

// TurnRequest sends one player message to the open conversation.
type TurnRequest struct {
	CharacterID string `json:"character_id"`
	Message     string `json:"message"`
}

// StartResponse describes a freshly opened conversation.
type StartResponse struct {
	CharacterID string        `json:"character_id,omitempty"`
	Greeting    string        `json:"greeting,omitempty"` // fixed greeting, first meeting only
	History     []ChatMessage `json:"history,omitempty"`
	Resumed     bool          `json:"resumed,omitempty"`
	LeadOffer   bool          `json:"lead_offer,omitempty"` // a lead offer is still standing
	Error       string        `json:"error,omitempty"`
}

// TurnResponse is the character's reply to a single turn.
type TurnResponse struct {
	CharacterID string   `json:"character_id,omitempty"`
	Message     string   `json:"message,omitempty"`
	LeadOffer   bool     `json:"lead_offer,omitempty"` // character offered to guide the player
	Clue        string   `json:"clue,omitempty"`       // clue revealed this turn, if any
	Objectives  []string `json:"objectives,omitempty"` // objective ids completed this turn
	Fallback    bool     `json:"fallback,omitempty"`   // reply came from the fallback list
	Error       string   `json:"error,omitempty"`
}

// TranscriptResponse returns the visible history of an open conversation.
type TranscriptResponse struct {
	CharacterID string        `json:"character_id,omitempty"`
	History     []ChatMessage `json:"history,omitempty"`
	LeadOffer   bool          `json:"lead_offer,omitempty"`
	Error       string        `json:"error,omitempty"`
}

func (r *StartRequest) Validate() error {
	if r.CharacterID == "" {
		return fmt.Errorf("character_id cannot be empty")
	}
	return nil
}

func (r *TurnRequest) Validate() error {
	if r.CharacterID == "" {
		return fmt.Errorf("character_id cannot be empty")
	}
	if r.Message == "" {
		return fmt.Errorf("message cannot be empty")
	}
	return nil
}
