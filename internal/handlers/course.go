package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"skillpair-backend/internal/middleware"
	"skillpair-backend/internal/repository"
)

type CourseHandler struct {
	courseRepo   *repository.CourseRepo
	progressRepo *repository.ProgressRepo
}

func NewCourseHandler(courseRepo *repository.CourseRepo, progressRepo *repository.ProgressRepo) *CourseHandler {
	return &CourseHandler{courseRepo: courseRepo, progressRepo: progressRepo}
}

func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courseRepo.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list courses", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"courses": courses})
}

func (h *CourseHandler) Get(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	course, err := h.courseRepo.GetByID(r.Context(), courseID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Course not found", r))
		return
	}

	// Opening a course counts as course activity for matching recency.
	h.progressRepo.Touch(r.Context(), middleware.GetUserID(r.Context()), courseID)

	writeJSON(w, http.StatusOK, map[string]interface{}{"course": course})
}

func (h *CourseHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	progress, err := h.progressRepo.Get(r.Context(), userID, courseID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load progress", r))
		return
	}
	if progress == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"progress": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"progress": progress})
}

func (h *CourseHandler) CompleteLevel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	var req struct {
		ChapterID        string `json:"chapter_id"`
		LevelID          string `json:"level_id"`
		TimeSpentMinutes int    `json:"time_spent_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.ChapterID == "" || req.LevelID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "chapter_id and level_id are required", r))
		return
	}
	if req.TimeSpentMinutes < 0 {
		req.TimeSpentMinutes = 0
	}

	if _, err := h.courseRepo.GetByID(r.Context(), courseID); err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Course not found", r))
		return
	}

	progress, err := h.progressRepo.CompleteLevel(r.Context(), userID, courseID, req.ChapterID, req.LevelID, req.TimeSpentMinutes)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to record progress", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"progress": progress})
}
