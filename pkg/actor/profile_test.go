package actor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func validProfile() CharacterProfile {
	return CharacterProfile{
		ID:          "vendor",
		Name:        "Vendor",
		Title:       "Street Vendor",
		Personality: "Nervous, street-smart.",
		Greeting:    "Hey there, stranger.",
		Fallbacks:   []string{"Can't talk long."},
		Home:        Position{X: 8, Z: -5},
	}
}

func TestCharacterProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CharacterProfile)
		wantErr bool
	}{
		{"valid", func(p *CharacterProfile) {}, false},
		{"missing id", func(p *CharacterProfile) { p.ID = "" }, true},
		{"missing name", func(p *CharacterProfile) { p.Name = "" }, true},
		{"missing personality", func(p *CharacterProfile) { p.Personality = "" }, true},
		{"missing greeting", func(p *CharacterProfile) { p.Greeting = "" }, true},
		{"no fallbacks", func(p *CharacterProfile) { p.Fallbacks = nil }, true},
		{"can_lead without destination", func(p *CharacterProfile) { p.CanLead = true }, true},
		{"can_lead with destination", func(p *CharacterProfile) {
			p.CanLead = true
			p.LeadDestination = &Destination{X: -15, Z: 12, Label: "the broker's stall"}
		}, false},
		{"destination without label", func(p *CharacterProfile) {
			p.CanLead = true
			p.LeadDestination = &Destination{X: -15, Z: 12}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestCharacterProfileJSONRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "vendor.json")

	p := validProfile()
	p.CanLead = true
	p.LeadDestination = &Destination{X: -15, Z: 12, Label: "the broker's stall"}
	p.PostGameOnly = false

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("failed to marshal profile: %v", err)
	}
	if err := os.WriteFile(testFile, data, 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	raw, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("failed to read test file: %v", err)
	}

	var loaded CharacterProfile
	if err := json.Unmarshal(raw, &loaded); err != nil {
		t.Fatalf("failed to unmarshal profile: %v", err)
	}

	if loaded.Name != p.Name {
		t.Errorf("Name = %q, want %q", loaded.Name, p.Name)
	}
	if loaded.LeadDestination == nil || loaded.LeadDestination.Label != "the broker's stall" {
		t.Errorf("LeadDestination not preserved: %+v", loaded.LeadDestination)
	}
	if loaded.Home != p.Home {
		t.Errorf("Home = %+v, want %+v", loaded.Home, p.Home)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("loaded profile failed validation: %v", err)
	}
}
