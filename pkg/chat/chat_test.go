package chat

import "testing"

func TestStartRequestValidate(t *testing.T) {
	r := StartRequest{}
	if err := r.Validate(); err == nil {
		t.Error("expected error for empty character_id")
	}

	r.CharacterID = "zara"
	if err := r.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTurnRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     TurnRequest
		wantErr bool
	}{
		{"valid", TurnRequest{CharacterID: "zara", Message: "hello"}, false},
		{"missing character", TurnRequest{Message: "hello"}, true},
		{"missing message", TurnRequest{CharacterID: "zara"}, true},
		{"empty", TurnRequest{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}
