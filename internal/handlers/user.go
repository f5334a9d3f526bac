package handlers

import (
	"encoding/json"
	"net/http"

	"skillpair-backend/internal/middleware"
	"skillpair-backend/internal/models"
	"skillpair-backend/internal/repository"
)

type UserHandler struct {
	userRepo *repository.UserRepo
}

func NewUserHandler(userRepo *repository.UserRepo) *UserHandler {
	return &UserHandler{userRepo: userRepo}
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
		return
	}

	// Presence piggybacks on authenticated reads; failures are ignored.
	h.userRepo.TouchLastSeen(r.Context(), userID)

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		FullName     string                  `json:"full_name"`
		AvatarURL    *string                 `json:"avatar_url"`
		Bio          *string                 `json:"bio"`
		Technologies []models.UserTechnology `json:"technologies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.FullName == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "full_name is required", r))
		return
	}

	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
		return
	}

	user.FullName = req.FullName
	user.AvatarURL = req.AvatarURL
	user.Bio = req.Bio
	if req.Technologies != nil {
		user.Technologies = req.Technologies
	}

	if err := h.userRepo.UpdateProfile(r.Context(), user); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update profile", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}
