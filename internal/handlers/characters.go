package handlers

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/astcode/simvibe3d/internal/storage"
)

// CharacterSummary is the listing shape for a character.
type CharacterSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

// CharacterHandler serves character profiles. Post-game-only characters
// are hidden until the main objective is complete.
type CharacterHandler struct {
	storage storage.Storage
	logger  *slog.Logger
}

func NewCharacterHandler(storage storage.Storage, logger *slog.Logger) *CharacterHandler {
	return &CharacterHandler{
		storage: storage,
		logger:  logger,
	}
}

// ServeHTTP handles character profile requests
// Routes:
// GET /v1/characters      - List characters present in the district
// GET /v1/characters/{id} - Read one character profile
func (h *CharacterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		h.logger.Warn("Method not allowed for characters endpoint", "method", r.Method)
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
		return
	}

	ctx := r.Context()

	postGame := false
	ws, err := h.storage.LoadWorldState(ctx)
	if err != nil {
		h.logger.Warn("Failed to load world state, assuming active world", "error", err)
	} else if ws != nil {
		postGame = ws.MainObjectiveComplete
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/characters"), "/")
	if id != "" {
		h.handleGet(w, r, id, postGame)
		return
	}

	ids, err := h.storage.ListProfiles(ctx)
	if err != nil {
		h.logger.Error("Failed to list characters", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list characters")
		return
	}
	sort.Strings(ids)

	summaries := make([]CharacterSummary, 0, len(ids))
	for _, id := range ids {
		p, err := h.storage.GetProfile(ctx, id)
		if err != nil {
			h.logger.Warn("Failed to read character profile", "character_id", id, "error", err)
			continue
		}
		if p.PostGameOnly && !postGame {
			continue
		}
		summaries = append(summaries, CharacterSummary{
			ID:    p.ID,
			Name:  p.Name,
			Title: p.Title,
		})
	}

	writeJSON(w, h.logger, http.StatusOK, summaries)
}

func (h *CharacterHandler) handleGet(w http.ResponseWriter, r *http.Request, id string, postGame bool) {
	p, err := h.storage.GetProfile(r.Context(), id)
	if err != nil {
		h.logger.Warn("Character not found", "character_id", id, "error", err)
		writeError(w, h.logger, http.StatusNotFound, "Character not found")
		return
	}
	if p.PostGameOnly && !postGame {
		writeError(w, h.logger, http.StatusNotFound, "Character not found")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, p)
}
