package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/astcode/simvibe3d/internal/services/events"
	"github.com/astcode/simvibe3d/internal/storage"
	"github.com/astcode/simvibe3d/pkg/chat"
	"github.com/astcode/simvibe3d/pkg/conversation"
	"github.com/astcode/simvibe3d/pkg/quest"
	"github.com/astcode/simvibe3d/pkg/world"
)

// ConversationHandler drives the dialogue pipeline: orchestrator turn,
// clue capture, quest trigger evaluation, world-state epilogue, event
// publication.
type ConversationHandler struct {
	storage      storage.Storage
	orchestrator *conversation.Orchestrator
	quest        *quest.Graph
	events       *events.Broadcaster // may be nil in tests
	logger       *slog.Logger
}

func NewConversationHandler(storage storage.Storage, orchestrator *conversation.Orchestrator, questGraph *quest.Graph, broadcaster *events.Broadcaster, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{
		storage:      storage,
		orchestrator: orchestrator,
		quest:        questGraph,
		events:       broadcaster,
		logger:       logger,
	}
}

// ServeHTTP handles conversation requests
// Routes:
// POST /v1/conversation/start - Open a conversation with a character
// POST /v1/conversation/turn  - Send one player message
// POST /v1/conversation/end   - Close the open conversation
// GET  /v1/conversation       - Read the open conversation's transcript
func (h *ConversationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/conversation"), "/")

	switch {
	case r.Method == http.MethodGet && action == "":
		h.handleTranscript(w, r)
	case r.Method == http.MethodPost && action == "start":
		h.handleStart(w, r)
	case r.Method == http.MethodPost && action == "turn":
		h.handleTurn(w, r)
	case r.Method == http.MethodPost && action == "end":
		h.handleEnd(w, r)
	default:
		h.logger.Warn("Unknown conversation route", "method", r.Method, "path", r.URL.Path)
		writeError(w, h.logger, http.StatusNotFound, "Unknown conversation route")
	}
}

func (h *ConversationHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var request chat.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'character_id' field.")
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	postGame := h.mainObjectiveComplete(ctx)

	profile, err := h.storage.GetProfile(ctx, request.CharacterID)
	if err != nil {
		h.logger.Warn("Character not found", "character_id", request.CharacterID, "error", err)
		writeError(w, h.logger, http.StatusNotFound, "Character not found")
		return
	}
	if profile.PostGameOnly && !postGame {
		writeError(w, h.logger, http.StatusNotFound, "Character not found")
		return
	}

	result, err := h.orchestrator.Start(ctx, profile, postGame)
	if err != nil {
		h.logger.Error("Failed to start conversation", "character_id", profile.ID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to start conversation")
		return
	}

	if h.events != nil {
		if err := h.events.PublishConversationStarted(ctx, profile.ID, result.Resumed); err != nil {
			h.logger.Warn("Failed to publish event", "error", err)
		}
	}

	writeJSON(w, h.logger, http.StatusOK, chat.StartResponse{
		CharacterID: result.CharacterID,
		Greeting:    result.Greeting,
		History:     result.History,
		Resumed:     result.Resumed,
		LeadOffer:   result.LeadOffer,
	})
}

func (h *ConversationHandler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var request chat.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'character_id' and 'message' fields.")
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()

	active, ok := h.orchestrator.Active()
	if !ok {
		writeError(w, h.logger, http.StatusConflict, "No open conversation")
		return
	}
	if active.ID != request.CharacterID {
		writeError(w, h.logger, http.StatusConflict, "Another conversation is open")
		return
	}

	result, err := h.orchestrator.Turn(ctx, request.Message)
	if err != nil {
		if errors.Is(err, conversation.ErrNoSession) || errors.Is(err, conversation.ErrSessionClosed) {
			writeError(w, h.logger, http.StatusConflict, "Conversation is no longer open")
			return
		}
		h.logger.Error("Turn failed", "character_id", request.CharacterID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to process turn")
		return
	}

	response := chat.TurnResponse{
		CharacterID: result.CharacterID,
		Message:     result.Text,
		LeadOffer:   result.LeadOffer,
		Clue:        result.Clue,
		Fallback:    result.Fallback,
	}

	// Fallback lines are canned, not generated dialogue; they reveal no
	// clues and advance no quests.
	if !result.Fallback {
		if result.Clue != "" {
			if h.quest.AddClue(ctx, result.Clue, result.CharacterID) && h.events != nil {
				if err := h.events.PublishClueDiscovered(ctx, result.CharacterID, result.Clue); err != nil {
					h.logger.Warn("Failed to publish event", "error", err)
				}
			}
		}

		// Keywords are matched against the full generated reply, marker
		// bodies included; the stripped text is for display only.
		completed := h.quest.EvaluateTriggers(ctx, result.CharacterID, result.Raw)
		response.Objectives = completed
		if h.events != nil {
			for _, id := range completed {
				if err := h.events.PublishObjectiveCompleted(ctx, result.CharacterID, id); err != nil {
					h.logger.Warn("Failed to publish event", "error", err)
				}
			}
		}

		if len(completed) > 0 && h.quest.IsComplete() {
			h.completeMainObjective(ctx)
		}
	}

	if h.events != nil {
		if err := h.events.PublishConversationTurn(ctx, result.CharacterID, result.Fallback); err != nil {
			h.logger.Warn("Failed to publish event", "error", err)
		}
	}

	writeJSON(w, h.logger, http.StatusOK, response)
}

func (h *ConversationHandler) handleEnd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	active, ok := h.orchestrator.Active()
	if !ok {
		// Ending a closed conversation is a no-op, not an error
		writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "closed"})
		return
	}

	if err := h.orchestrator.End(ctx); err != nil {
		h.logger.Error("Failed to end conversation", "character_id", active.ID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to end conversation")
		return
	}

	if h.events != nil {
		if err := h.events.PublishConversationEnded(ctx, active.ID); err != nil {
			h.logger.Warn("Failed to publish event", "error", err)
		}
		if err := h.events.PublishMemoryUpdated(ctx, active.ID); err != nil {
			h.logger.Warn("Failed to publish event", "error", err)
		}
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "closed"})
}

func (h *ConversationHandler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	active, ok := h.orchestrator.Active()
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, "No open conversation")
		return
	}
	history, _ := h.orchestrator.Transcript()

	writeJSON(w, h.logger, http.StatusOK, chat.TranscriptResponse{
		CharacterID: active.ID,
		History:     history,
	})
}

func (h *ConversationHandler) mainObjectiveComplete(ctx context.Context) bool {
	ws, err := h.storage.LoadWorldState(ctx)
	if err != nil {
		h.logger.Warn("Failed to load world state, assuming active world", "error", err)
		return false
	}
	return ws != nil && ws.MainObjectiveComplete
}

// completeMainObjective flips the world into its post-game state once
// the final quest stage clears.
func (h *ConversationHandler) completeMainObjective(ctx context.Context) {
	ws, err := h.storage.LoadWorldState(ctx)
	if err != nil {
		h.logger.Error("Failed to load world state", "error", err)
		return
	}
	if ws == nil {
		ws = &world.State{}
	}
	if ws.MainObjectiveComplete {
		return
	}

	ws.Complete(time.Now())
	if err := h.storage.SaveWorldState(ctx, ws); err != nil {
		h.logger.Error("Failed to save world state", "error", err)
		return
	}
	h.logger.Info("Main objective complete, world entering post-game state")

	if h.events != nil {
		if err := h.events.PublishMainObjectiveComplete(ctx); err != nil {
			h.logger.Warn("Failed to publish event", "error", err)
		}
	}
}
