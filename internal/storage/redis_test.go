package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/astcode/simvibe3d/pkg/memory"
	"github.com/astcode/simvibe3d/pkg/quest"
	"github.com/astcode/simvibe3d/pkg/world"
)

func setupTestStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s := NewRedisStorage(mr.Addr(), t.TempDir(), logger)

	return s, mr
}

func TestRedisStorage_MemoryTableRoundTrip(t *testing.T) {
	s, mr := setupTestStorage(t)
	defer mr.Close()
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	// Missing key reads as a fresh start
	table, err := s.LoadMemoryTable(ctx)
	if err != nil {
		t.Fatalf("Unexpected error for missing table: %v", err)
	}
	if table != nil {
		t.Fatal("Expected nil table for missing key")
	}

	now := time.Now()
	table = memory.Table{
		"zara": {
			ConversationCount: 3,
			Relationship:      memory.TierAcquaintance,
			Topics:            []string{"ghost", "neocorp"},
			OfferedToLead:     true,
			LastInteractionAt: &now,
		},
	}
	if err := s.SaveMemoryTable(ctx, table); err != nil {
		t.Fatalf("Failed to save memory table: %v", err)
	}

	loaded, err := s.LoadMemoryTable(ctx)
	if err != nil {
		t.Fatalf("Failed to load memory table: %v", err)
	}
	zara := loaded["zara"]
	if zara == nil {
		t.Fatal("Expected zara entry")
	}
	if zara.ConversationCount != 3 || zara.Relationship != memory.TierAcquaintance {
		t.Errorf("Unexpected entry: %+v", zara)
	}
	if !zara.OfferedToLead {
		t.Error("Expected lead offer flag to survive")
	}

	if err := s.DeleteMemoryTable(ctx); err != nil {
		t.Fatalf("Failed to delete memory table: %v", err)
	}
	loaded, err = s.LoadMemoryTable(ctx)
	if err != nil || loaded != nil {
		t.Errorf("Expected nil table after delete, got %v (err %v)", loaded, err)
	}
}

func TestRedisStorage_QuestSaveRoundTrip(t *testing.T) {
	s, mr := setupTestStorage(t)
	defer mr.Close()
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	save, err := s.LoadQuestSave(ctx)
	if err != nil {
		t.Fatalf("Unexpected error for missing save: %v", err)
	}
	if save != nil {
		t.Fatal("Expected nil save for missing key")
	}

	save = &quest.Save{
		CurrentStage:        1,
		CompletedObjectives: []string{"talk_zara", "talk_marcus"},
		Clues: []quest.Clue{
			{Text: "Elise was asking about NeoCorp", Source: "zara", DiscoveredAt: time.Now()},
		},
	}
	if err := s.SaveQuestSave(ctx, save); err != nil {
		t.Fatalf("Failed to save quest save: %v", err)
	}

	loaded, err := s.LoadQuestSave(ctx)
	if err != nil {
		t.Fatalf("Failed to load quest save: %v", err)
	}
	if loaded.CurrentStage != 1 {
		t.Errorf("Expected stage 1, got %d", loaded.CurrentStage)
	}
	if len(loaded.CompletedObjectives) != 2 {
		t.Errorf("Expected 2 completed objectives, got %d", len(loaded.CompletedObjectives))
	}
	if len(loaded.Clues) != 1 || loaded.Clues[0].Source != "zara" {
		t.Errorf("Unexpected clues: %v", loaded.Clues)
	}
}

func TestRedisStorage_WorldStateRoundTrip(t *testing.T) {
	s, mr := setupTestStorage(t)
	defer mr.Close()
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	ws, err := s.LoadWorldState(ctx)
	if err != nil {
		t.Fatalf("Unexpected error for missing world state: %v", err)
	}
	if ws != nil {
		t.Fatal("Expected nil world state for missing key")
	}

	ws = &world.State{}
	ws.Complete(time.Now())
	if err := s.SaveWorldState(ctx, ws); err != nil {
		t.Fatalf("Failed to save world state: %v", err)
	}

	loaded, err := s.LoadWorldState(ctx)
	if err != nil {
		t.Fatalf("Failed to load world state: %v", err)
	}
	if !loaded.MainObjectiveComplete {
		t.Error("Expected main objective flag to survive")
	}
	if loaded.CompletedAt == nil {
		t.Error("Expected completion timestamp")
	}
}

func TestRedisStorage_CorruptValueSurfacesError(t *testing.T) {
	s, mr := setupTestStorage(t)
	defer mr.Close()
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	mr.Set(questSaveKey, "not json")
	if _, err := s.LoadQuestSave(ctx); err == nil {
		t.Error("Expected error for corrupt save data")
	}
}

func TestRedisStorage_GetProfile(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	dataDir := t.TempDir()
	charDir := filepath.Join(dataDir, "characters")
	if err := os.MkdirAll(charDir, 0o755); err != nil {
		t.Fatalf("Failed to create characters dir: %v", err)
	}
	profileJSON := `{
		"id": "ignored",
		"name": "Zara-7",
		"title": "Street Vendor",
		"personality": "Street-smart, paranoid.",
		"greeting": "Hey there, stranger.",
		"fallbacks": ["Can't talk long."],
		"can_lead": true,
		"lead_destination": {"x": -15, "z": 12, "label": "Marcus Chen's location"}
	}`
	if err := os.WriteFile(filepath.Join(charDir, "zara.json"), []byte(profileJSON), 0o644); err != nil {
		t.Fatalf("Failed to write profile: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s := NewRedisStorage(mr.Addr(), dataDir, logger)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	profile, err := s.GetProfile(ctx, "zara")
	if err != nil {
		t.Fatalf("Failed to get profile: %v", err)
	}
	if profile.ID != "zara" {
		t.Errorf("Filename must override JSON id, got %q", profile.ID)
	}
	if profile.Name != "Zara-7" || !profile.CanLead {
		t.Errorf("Unexpected profile: %+v", profile)
	}
	if profile.LeadDestination == nil || profile.LeadDestination.Label != "Marcus Chen's location" {
		t.Errorf("Unexpected lead destination: %+v", profile.LeadDestination)
	}

	if _, err := s.GetProfile(ctx, "nobody"); err == nil {
		t.Error("Expected error for unknown character")
	}

	// Ids that could escape the characters directory are rejected
	// before any filesystem access.
	for _, id := range []string{"../zara", "../../etc/passwd", "zara.json", "Zara", "zara/extra", ""} {
		if _, err := s.GetProfile(ctx, id); err == nil {
			t.Errorf("Expected error for malformed id %q", id)
		}
	}

	ids, err := s.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("Failed to list profiles: %v", err)
	}
	if len(ids) != 1 || ids[0] != "zara" {
		t.Errorf("Unexpected profile list: %v", ids)
	}
}
