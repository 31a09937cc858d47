package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/astcode/simvibe3d/internal/storage"
	"github.com/astcode/simvibe3d/pkg/memory"
	"github.com/astcode/simvibe3d/pkg/quest"
)

// QuestStateResponse is the full quest view for HUD-style consumers.
type QuestStateResponse struct {
	Progress   quest.Progress    `json:"progress"`
	Objectives []quest.Objective `json:"objectives"`
	Clues      []quest.Clue      `json:"clues"`
}

// QuestHandler serves quest progression and the full reset operation.
type QuestHandler struct {
	quest   *quest.Graph
	memory  *memory.Store
	storage storage.Storage
	logger  *slog.Logger
}

func NewQuestHandler(questGraph *quest.Graph, memoryStore *memory.Store, storage storage.Storage, logger *slog.Logger) *QuestHandler {
	return &QuestHandler{
		quest:   questGraph,
		memory:  memoryStore,
		storage: storage,
		logger:  logger,
	}
}

// ServeHTTP handles quest requests
// Routes:
// GET  /v1/quest       - Read quest progression
// POST /v1/quest/reset - Wipe all progress: quest, memory, world state
func (h *QuestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/quest"), "/")

	switch {
	case r.Method == http.MethodGet && action == "":
		h.handleState(w, r)
	case r.Method == http.MethodPost && action == "reset":
		h.handleReset(w, r)
	default:
		h.logger.Warn("Unknown quest route", "method", r.Method, "path", r.URL.Path)
		writeError(w, h.logger, http.StatusNotFound, "Unknown quest route")
	}
}

func (h *QuestHandler) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, QuestStateResponse{
		Progress:   h.quest.Progress(),
		Objectives: h.quest.CurrentObjectives(),
		Clues:      h.quest.Clues(),
	})
}

// handleReset wipes quest progress, the full memory table and the world
// state. Partial failure leaves whatever it could not delete and reports
// the error.
func (h *QuestHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.quest.Reset(ctx); err != nil {
		h.logger.Error("Failed to reset quest", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to reset quest progress")
		return
	}
	if err := h.memory.Reset(ctx); err != nil {
		h.logger.Error("Failed to reset memory", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to reset character memory")
		return
	}
	if err := h.storage.DeleteWorldState(ctx); err != nil {
		h.logger.Error("Failed to reset world state", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to reset world state")
		return
	}

	h.logger.Info("Full reset complete")
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "reset"})
}
