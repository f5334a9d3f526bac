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

type PeerInvitationHandler struct {
	invitations *services.InvitationService
}

func NewPeerInvitationHandler(invitations *services.InvitationService) *PeerInvitationHandler {
	return &PeerInvitationHandler{invitations: invitations}
}

func (h *PeerInvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.CreateInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	inv, err := h.invitations.Send(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"invitation": inv})
}

func (h *PeerInvitationHandler) Respond(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	invitationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid invitation ID", r))
		return
	}

	var req models.RespondInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	inv, session, err := h.invitations.Respond(r.Context(), invitationID, userID, req.Action)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := map[string]interface{}{"invitation": inv}
	if session != nil {
		resp["session"] = session
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PeerInvitationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	invitationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid invitation ID", r))
		return
	}

	inv, err := h.invitations.Cancel(r.Context(), invitationID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"invitation": inv})
}

func (h *PeerInvitationHandler) ListReceived(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	invs, err := h.invitations.ListReceived(r.Context(), userID, statusFilter(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if invs == nil {
		invs = []*models.PeerInvitation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invitations": invs})
}

func (h *PeerInvitationHandler) ListSent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	invs, err := h.invitations.ListSent(r.Context(), userID, statusFilter(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if invs == nil {
		invs = []*models.PeerInvitation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invitations": invs})
}

func statusFilter(r *http.Request) models.InvitationStatus {
	status := models.InvitationStatus(r.URL.Query().Get("status"))
	if status == "" {
		return models.InvitationPending
	}
	return status
}
