package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"skillpair-backend/internal/middleware"
	"skillpair-backend/internal/models"
	"skillpair-backend/internal/services"
)

type PeerSessionHandler struct {
	sessions    *services.SessionService
	invitations *services.InvitationService
}

func NewPeerSessionHandler(sessions *services.SessionService, invitations *services.InvitationService) *PeerSessionHandler {
	return &PeerSessionHandler{sessions: sessions, invitations: invitations}
}

func (h *PeerSessionHandler) Active(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	sessions, err := h.sessions.ListActive(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*models.PeerSession{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// Notifications is the polling fallback for inviters who were offline when an
// acceptance push went out: same payload the push carries, keyed by response
// time within the last ten minutes.
func (h *PeerSessionHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	accepted, err := h.invitations.RecentAcceptances(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	notifications := make([]map[string]interface{}, 0, len(accepted))
	for _, inv := range accepted {
		notifications = append(notifications, map[string]interface{}{
			"invitation_id": inv.ID,
			"session_id":    inv.SessionID,
			"invitee_id":    inv.InviteeID,
			"course_id":     inv.CourseID,
			"chapter_id":    inv.ChapterID,
			"level_id":      inv.LevelID,
			"accepted_at":   inv.RespondedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": notifications})
}

func (h *PeerSessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "sessionId")

	session, err := h.sessions.Get(r.Context(), sessionID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

func (h *PeerSessionHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		Text string `json:"text"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	msg, err := h.sessions.AddMessage(r.Context(), sessionID, userID, req.Text, models.MessageType(req.Type))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"message": msg})
}

func (h *PeerSessionHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		CurrentContentIndex int     `json:"current_content_index"`
		ProgressPercentage  float64 `json:"progress_percentage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	session, err := h.sessions.UpdateProgress(r.Context(), sessionID, userID, req.CurrentContentIndex, req.ProgressPercentage)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

func (h *PeerSessionHandler) PostQuestion(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	question, err := h.sessions.AddStudyQuestion(r.Context(), sessionID, userID, req.Question)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"question": question})
}

// PostTestResult records the caller's score for a collaborative test. A retake
// replaces the earlier entry.
func (h *PeerSessionHandler) PostTestResult(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		Score          int `json:"score"`
		TotalQuestions int `json:"total_questions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.TotalQuestions <= 0 || req.Score < 0 || req.Score > req.TotalQuestions {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Score must be within 0..total_questions", r))
		return
	}

	session, err := h.sessions.RecordTestResult(r.Context(), sessionID, userID, req.Score, req.TotalQuestions)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

// Heartbeat refreshes the derived duration counter while a session is open.
func (h *PeerSessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "sessionId")

	session, err := h.sessions.UpdateDuration(r.Context(), sessionID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_duration": session.Insights.SessionDuration,
	})
}

func (h *PeerSessionHandler) End(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "sessionId")

	insights, err := h.sessions.End(r.Context(), sessionID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_insights": insights})
}

// CreateTest creates a collaborative test session directly, bypassing the
// invitation flow.
func (h *PeerSessionHandler) CreateTest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		CourseID     string `json:"course_id"`
		ChapterID    string `json:"chapter_id"`
		LevelID      string `json:"level_id"`
		InviteUserID string `json:"invite_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	var partnerID *uuid.UUID
	if req.InviteUserID != "" {
		id, err := uuid.Parse(req.InviteUserID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid invite_user_id", r))
			return
		}
		partnerID = &id
	}

	session, err := h.sessions.CreateTestSession(r.Context(), userID, courseID, req.ChapterID, req.LevelID, partnerID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"session": session})
}
