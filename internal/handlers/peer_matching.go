package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"skillpair-backend/internal/middleware"
	"skillpair-backend/internal/models"
	"skillpair-backend/internal/repository"
	"skillpair-backend/internal/services"
)

type PeerMatchHandler struct {
	matching *services.MatchingService
	userRepo *repository.UserRepo
}

func NewPeerMatchHandler(matching *services.MatchingService, userRepo *repository.UserRepo) *PeerMatchHandler {
	return &PeerMatchHandler{matching: matching, userRepo: userRepo}
}

// Matches returns ranked study-partner candidates for a chapter/level. Scoring
// is course-wide; the chapter/level params scope the invitation the client
// sends next.
func (h *PeerMatchHandler) Matches(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	courseID, err := uuid.Parse(chi.URLParam(r, "courseId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	matches, err := h.matching.FindMatches(r.Context(), userID, courseID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if matches == nil {
		matches = []*models.PeerMatch{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches":    matches,
		"course_id":  courseID,
		"chapter_id": chi.URLParam(r, "chapterId"),
		"level_id":   chi.URLParam(r, "levelId"),
	})
}

func (h *PeerMatchHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		IsAvailable *bool `json:"is_available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsAvailable == nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "is_available is required", r))
		return
	}

	if err := h.userRepo.SetAvailability(r.Context(), userID, *req.IsAvailable); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update availability", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"is_available": *req.IsAvailable})
}
