package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astcode/simvibe3d/internal/services"
	"github.com/astcode/simvibe3d/internal/storage"
	"github.com/astcode/simvibe3d/pkg/actor"
	"github.com/astcode/simvibe3d/pkg/chat"
	"github.com/astcode/simvibe3d/pkg/conversation"
	"github.com/astcode/simvibe3d/pkg/memory"
	"github.com/astcode/simvibe3d/pkg/quest"
)

func testQuestDefinition() quest.Definition {
	return quest.Definition{
		ID:    "ghost_protocol",
		Title: "The Ghost Protocol",
		Stages: []quest.Stage{
			{
				ID:    "investigate",
				Title: "Whispers in the Neon",
				Objectives: []quest.Objective{
					{ID: "talk_zara", CharacterID: "zara", Description: "Ask Zara about the disappearances", Keywords: []string{"vanish", "disappear"}},
				},
			},
			{
				ID:    "truth",
				Title: "The Truth",
				Objectives: []quest.Objective{
					{ID: "talk_oracle", CharacterID: "oracle", Description: "Confront the Oracle", Keywords: []string{"erasure"}},
				},
			},
		},
	}
}

type conversationFixture struct {
	handler *ConversationHandler
	storage *storage.MockStorage
	llm     *services.MockLLM
	quest   *quest.Graph
	orch    *conversation.Orchestrator
}

func setupConversation(t *testing.T) *conversationFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Reduce noise in tests
	}))

	mockStorage := storage.NewMockStorage()
	mockStorage.AddProfile("zara", &actor.CharacterProfile{
		ID:          "zara",
		Name:        "Zara-7",
		Title:       "Street Vendor",
		Personality: "Street-smart, paranoid.",
		Greeting:    "Hey there, stranger.",
		Fallbacks:   []string{"Can't talk long."},
		CanLead:     true,
		LeadDestination: &actor.Destination{
			X: -15, Z: 12, Label: "Marcus Chen's location",
		},
	})
	mockStorage.AddProfile("oracle", &actor.CharacterProfile{
		ID:          "oracle",
		Name:        "The Oracle",
		Personality: "Cryptic.",
		Greeting:    "I have been expecting you.",
		Fallbacks:   []string{"The signal fades."},
	})
	mockStorage.AddProfile("elise", &actor.CharacterProfile{
		ID:           "elise",
		Name:         "Elise Navarro",
		Personality:  "Grateful, shaken.",
		Greeting:     "You... you found me.",
		Fallbacks:    []string{"I still can't believe it's over."},
		PostGameOnly: true,
	})

	mockLLM := services.NewMockLLM()
	memStore := memory.NewStore(mockStorage, logger)
	orch := conversation.New(mockLLM, memStore, logger)
	graph := quest.NewGraph(context.Background(), testQuestDefinition(), mockStorage, logger)

	return &conversationFixture{
		handler: NewConversationHandler(mockStorage, orch, graph, nil, logger),
		storage: mockStorage,
		llm:     mockLLM,
		quest:   graph,
		orch:    orch,
	}
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestConversationHandler_StartFirstMeeting(t *testing.T) {
	f := setupConversation(t)

	rr := postJSON(t, f.handler, "/v1/conversation/start", `{"character_id":"zara"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var response chat.StartResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
	assert.Equal(t, "zara", response.CharacterID)
	assert.Equal(t, "Hey there, stranger.", response.Greeting)
	assert.False(t, response.Resumed)
	assert.Len(t, response.History, 1)
}

func TestConversationHandler_StartUnknownCharacter(t *testing.T) {
	f := setupConversation(t)

	rr := postJSON(t, f.handler, "/v1/conversation/start", `{"character_id":"nobody"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestConversationHandler_PostGameOnlyCharacterHidden(t *testing.T) {
	f := setupConversation(t)

	rr := postJSON(t, f.handler, "/v1/conversation/start", `{"character_id":"elise"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code, "post-game character must be absent before completion")
}

func TestConversationHandler_TurnCompletesObjective(t *testing.T) {
	f := setupConversation(t)
	f.llm.GenerateResponseFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return "People vanish around here all the time.", nil
	}

	rr := postJSON(t, f.handler, "/v1/conversation/start", `{"character_id":"zara"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = postJSON(t, f.handler, "/v1/conversation/turn", `{"character_id":"zara","message":"What happened to the missing people?"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var response chat.TurnResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
	assert.Equal(t, []string{"talk_zara"}, response.Objectives)
	assert.False(t, response.Fallback)

	// The stage advanced to the second chapter
	progress := f.quest.Progress()
	assert.Equal(t, 2, progress.Chapter)
}

func TestConversationHandler_TurnKeywordInsideClueMarker(t *testing.T) {
	f := setupConversation(t)
	f.llm.GenerateResponseFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return "Keep your voice down. [CLUE: People who disappear are seen near the tower]", nil
	}

	rr := postJSON(t, f.handler, "/v1/conversation/start", `{"character_id":"zara"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = postJSON(t, f.handler, "/v1/conversation/turn", `{"character_id":"zara","message":"Where do they go?"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// "disappear" appears only inside the clue marker body. Triggers run
	// against the full reply, so the objective still completes even
	// though the displayed text no longer contains the keyword.
	var response chat.TurnResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
	assert.NotContains(t, response.Message, "disappear")
	assert.Equal(t, []string{"talk_zara"}, response.Objectives)
}

func TestConversationHandler_TurnCapturesClue(t *testing.T) {
	f := setupConversation(t)
	f.llm.GenerateResponseFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return "Listen close. [CLUE: Elise was asking about NeoCorp]", nil
	}

	rr := postJSON(t, f.handler, "/v1/conversation/start", `{"character_id":"zara"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = postJSON(t, f.handler, "/v1/conversation/turn", `{"character_id":"zara","message":"What do you know?"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var response chat.TurnResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
	assert.Equal(t, "Elise was asking about NeoCorp", response.Clue)
	assert.NotContains(t, response.Message, "[CLUE")

	clues := f.quest.Clues()
	require.Len(t, clues, 1)
	assert.Equal(t, "zara", clues[0].Source)
}

func TestConversationHandler_FallbackSkipsQuestEvaluation(t *testing.T) {
	f := setupConversation(t)
	f.llm.GenerateResponseFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return "", fmt.Errorf("connection refused")
	}

	rr := postJSON(t, f.handler, "/v1/conversation/start", `{"character_id":"zara"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = postJSON(t, f.handler, "/v1/conversation/turn", `{"character_id":"zara","message":"Did people vanish here?"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var response chat.TurnResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
	assert.True(t, response.Fallback)
	assert.Equal(t, "Can't talk long.", response.Message)
	assert.Empty(t, response.Objectives)

	// Canned fallback text must not drive quest progress, even when it
	// would match a keyword.
	assert.Equal(t, 1, f.quest.Progress().Chapter)
}

func TestConversationHandler_TurnWithoutConversation(t *testing.T) {
	f := setupConversation(t)

	rr := postJSON(t, f.handler, "/v1/conversation/turn", `{"character_id":"zara","message":"hello"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestConversationHandler_TurnWrongCharacter(t *testing.T) {
	f := setupConversation(t)

	rr := postJSON(t, f.handler, "/v1/conversation/start", `{"character_id":"zara"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = postJSON(t, f.handler, "/v1/conversation/turn", `{"character_id":"oracle","message":"hello"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestConversationHandler_EpilogueSetsWorldState(t *testing.T) {
	f := setupConversation(t)
	ctx := context.Background()

	// Clear the first stage directly, then let the final objective
	// complete through dialogue.
	f.quest.CompleteObjective(ctx, "talk_zara")

	f.llm.GenerateResponseFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return "The erasure protocol ends tonight.", nil
	}

	rr := postJSON(t, f.handler, "/v1/conversation/start", `{"character_id":"oracle"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = postJSON(t, f.handler, "/v1/conversation/turn", `{"character_id":"oracle","message":"Tell me the truth"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	ws, err := f.storage.LoadWorldState(ctx)
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.True(t, ws.MainObjectiveComplete)

	// Post-game-only characters are now reachable
	rr = postJSON(t, f.handler, "/v1/conversation/start", `{"character_id":"elise"}`)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestConversationHandler_EndCommitsMemory(t *testing.T) {
	f := setupConversation(t)
	ctx := context.Background()

	rr := postJSON(t, f.handler, "/v1/conversation/start", `{"character_id":"zara"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = postJSON(t, f.handler, "/v1/conversation/turn", `{"character_id":"zara","message":"hello"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = postJSON(t, f.handler, "/v1/conversation/end", `{}`)
	require.Equal(t, http.StatusOK, rr.Code)

	table, err := f.storage.LoadMemoryTable(ctx)
	require.NoError(t, err)
	require.NotNil(t, table["zara"])
	assert.Equal(t, 1, table["zara"].ConversationCount)
	assert.Equal(t, memory.TierMetBefore, table["zara"].Relationship)
}

func TestConversationHandler_EndWithoutConversation(t *testing.T) {
	f := setupConversation(t)

	rr := postJSON(t, f.handler, "/v1/conversation/end", `{}`)
	assert.Equal(t, http.StatusOK, rr.Code, "ending a closed conversation is a no-op")
}

func TestConversationHandler_Transcript(t *testing.T) {
	f := setupConversation(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/conversation", nil)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	postJSON(t, f.handler, "/v1/conversation/start", `{"character_id":"zara"}`)

	req = httptest.NewRequest(http.MethodGet, "/v1/conversation", nil)
	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var response chat.TranscriptResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
	assert.Equal(t, "zara", response.CharacterID)
	assert.Len(t, response.History, 1)
}
