package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/astcode/simvibe3d/internal/services/events"
	"github.com/astcode/simvibe3d/pkg/memory"
	"github.com/astcode/simvibe3d/pkg/motion"
)

// FollowRequest accepts a standing lead offer from a character.
type FollowRequest struct {
	CharacterID string `json:"character_id"`
}

// ReturnRequest sends a character walking back to its home position.
type ReturnRequest struct {
	CharacterID string `json:"character_id"`
}

// PlayerPositionRequest reports where the player currently stands. The
// leading policy needs it to decide when to wait.
type PlayerPositionRequest struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// MotionHandler exposes the motion controller: accepting lead offers,
// cancelling them, walking characters home and reading motion state.
// The api binary runs the tick loop; this handler only changes intent.
type MotionHandler struct {
	motion *motion.Controller
	memory *memory.Store
	events *events.Broadcaster // may be nil in tests
	logger *slog.Logger

	playerMu  sync.Mutex
	playerPos motion.Vec2
}

func NewMotionHandler(controller *motion.Controller, memoryStore *memory.Store, broadcaster *events.Broadcaster, logger *slog.Logger) *MotionHandler {
	return &MotionHandler{
		motion: controller,
		memory: memoryStore,
		events: broadcaster,
		logger: logger,
	}
}

// ServeHTTP handles motion requests
// Routes:
// POST /v1/motion/follow - Accept a lead offer; the character starts leading
// POST /v1/motion/stop   - Cancel the active leading walk
// POST /v1/motion/return - Walk a character back home
// POST /v1/motion/player - Report the player's current position
// GET  /v1/motion/state  - Read every character's motion state
func (h *MotionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/motion"), "/")

	switch {
	case r.Method == http.MethodPost && action == "follow":
		h.handleFollow(w, r)
	case r.Method == http.MethodPost && action == "stop":
		h.handleStop(w, r)
	case r.Method == http.MethodPost && action == "return":
		h.handleReturn(w, r)
	case r.Method == http.MethodPost && action == "player":
		h.handlePlayerPosition(w, r)
	case r.Method == http.MethodGet && action == "state":
		h.handleState(w, r)
	default:
		h.logger.Warn("Unknown motion route", "method", r.Method, "path", r.URL.Path)
		writeError(w, h.logger, http.StatusNotFound, "Unknown motion route")
	}
}

func (h *MotionHandler) handleFollow(w http.ResponseWriter, r *http.Request) {
	var request FollowRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'character_id' field.")
		return
	}
	if request.CharacterID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "character_id cannot be empty")
		return
	}

	ctx := r.Context()

	if !h.motion.StartLeading(request.CharacterID) {
		h.logger.Warn("Character cannot lead", "character_id", request.CharacterID)
		writeError(w, h.logger, http.StatusConflict, "Character cannot lead right now")
		return
	}

	// The offer is consumed: a future conversation starts without a
	// standing lead offer.
	if err := h.memory.ClearLeadOffer(ctx, request.CharacterID); err != nil {
		h.logger.Warn("Failed to clear lead offer", "character_id", request.CharacterID, "error", err)
	}

	_, label, _ := h.motion.Leader()
	if h.events != nil {
		if err := h.events.PublishLeadingStarted(ctx, request.CharacterID, label); err != nil {
			h.logger.Warn("Failed to publish event", "error", err)
		}
	}

	state, _ := h.motion.State(request.CharacterID)
	writeJSON(w, h.logger, http.StatusOK, state)
}

func (h *MotionHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	id, _, leading := h.motion.Leader()
	h.motion.StopLeading()
	if leading {
		h.logger.Info("Leading cancelled", "character_id", id)
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *MotionHandler) handleReturn(w http.ResponseWriter, r *http.Request) {
	var request ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'character_id' field.")
		return
	}
	if request.CharacterID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "character_id cannot be empty")
		return
	}

	if !h.motion.ReturnHome(request.CharacterID) {
		writeError(w, h.logger, http.StatusConflict, "Character cannot return home right now")
		return
	}

	state, _ := h.motion.State(request.CharacterID)
	writeJSON(w, h.logger, http.StatusOK, state)
}

func (h *MotionHandler) handlePlayerPosition(w http.ResponseWriter, r *http.Request) {
	var request PlayerPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'x' and 'z' fields.")
		return
	}

	h.playerMu.Lock()
	h.playerPos = motion.Vec2{X: request.X, Z: request.Z}
	h.playerMu.Unlock()

	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *MotionHandler) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.motion.States())
}

// PlayerPosition returns the last reported player position. The tick
// loop reads it every frame.
func (h *MotionHandler) PlayerPosition() motion.Vec2 {
	h.playerMu.Lock()
	defer h.playerMu.Unlock()
	return h.playerPos
}
