package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/astcode/simvibe3d/internal/storage"
	"github.com/astcode/simvibe3d/pkg/chat"
	"github.com/astcode/simvibe3d/pkg/memory"
	"github.com/astcode/simvibe3d/pkg/quest"
	"github.com/astcode/simvibe3d/pkg/world"
)

func setupQuest(t *testing.T) (*QuestHandler, *storage.MockStorage, *quest.Graph) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	mockStorage := storage.NewMockStorage()
	graph := quest.NewGraph(context.Background(), testQuestDefinition(), mockStorage, logger)
	memStore := memory.NewStore(mockStorage, logger)

	return NewQuestHandler(graph, memStore, mockStorage, logger), mockStorage, graph
}

func TestQuestHandler_State(t *testing.T) {
	handler, _, graph := setupQuest(t)
	graph.CompleteObjective(context.Background(), "talk_zara")

	req := httptest.NewRequest(http.MethodGet, "/v1/quest", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response QuestStateResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Progress.Chapter != 2 {
		t.Errorf("Expected chapter 2, got %d", response.Progress.Chapter)
	}
	if len(response.Objectives) != 1 || response.Objectives[0].ID != "talk_oracle" {
		t.Errorf("Unexpected objectives: %v", response.Objectives)
	}
}

func TestQuestHandler_Reset(t *testing.T) {
	handler, mockStorage, graph := setupQuest(t)
	ctx := context.Background()

	// Seed progress across all three stores
	graph.CompleteObjective(ctx, "talk_zara")
	if ok := graph.AddClue(ctx, "a clue", "zara"); !ok {
		t.Fatal("Failed to add clue")
	}
	table := memory.Table{"zara": {ConversationCount: 2, Relationship: memory.TierMetBefore,
		RecentMessages: []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hi"}}}}
	if err := mockStorage.SaveMemoryTable(ctx, table); err != nil {
		t.Fatalf("Failed to seed memory: %v", err)
	}
	ws := &world.State{}
	ws.Complete(time.Now())
	if err := mockStorage.SaveWorldState(ctx, ws); err != nil {
		t.Fatalf("Failed to seed world state: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/quest/reset", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Response body: %s", rr.Code, rr.Body.String())
	}

	if graph.Progress().Chapter != 1 {
		t.Error("Expected quest back at chapter 1")
	}
	if len(graph.Clues()) != 0 {
		t.Error("Expected clues wiped")
	}
	if loaded, _ := mockStorage.LoadMemoryTable(ctx); loaded != nil {
		t.Error("Expected memory table wiped")
	}
	if loadedWS, _ := mockStorage.LoadWorldState(ctx); loadedWS != nil {
		t.Error("Expected world state wiped")
	}
}

func TestQuestHandler_UnknownRoute(t *testing.T) {
	handler, _, _ := setupQuest(t)

	req := httptest.NewRequest(http.MethodDelete, "/v1/quest", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}
}
