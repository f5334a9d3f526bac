package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"skillpair-backend/internal/models"
	"skillpair-backend/internal/services"
)

// ─── Error Envelope Tests ───

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			"validation",
			&services.ValidationError{Fields: map[string]string{"email": "Email is required"}},
			http.StatusBadRequest, "VALIDATION_ERROR",
		},
		{"conflict", &services.ConflictError{Message: "Already pending"}, http.StatusConflict, "CONFLICT"},
		{"not found", &services.NotFoundError{Message: "Session not found"}, http.StatusNotFound, "NOT_FOUND"},
		{"unauthorized", &services.UnauthorizedError{Message: "Invalid credentials"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", &services.ForbiddenError{Message: "Not a participant"}, http.StatusForbidden, "FORBIDDEN"},
		{"invalid state", &services.StateError{Message: "Invitation has expired"}, http.StatusBadRequest, "INVALID_STATE"},
		{"rate limited", &services.RateLimitError{Message: "Slow down"}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"unknown", errors.New("pg down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
			req.Header.Set("X-Request-ID", "req-123")

			handleServiceError(rr, req, tc.err)

			if rr.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q, want application/json", ct)
			}

			var resp models.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode envelope: %v", err)
			}
			if resp.Error.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", resp.Error.Code, tc.wantCode)
			}
			if resp.Error.RequestID != "req-123" {
				t.Errorf("request id = %q, want the incoming header echoed", resp.Error.RequestID)
			}
		})
	}
}

func TestValidationErrorCarriesFields(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/peer-learning/invitations", nil)

	handleServiceError(rr, req, &services.ValidationError{Fields: map[string]string{
		"invitee_id": "Invalid invitee ID",
		"chapter_id": "Chapter is required",
	}})

	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if len(resp.Error.Fields) != 2 {
		t.Errorf("fields = %v, want both keys surfaced", resp.Error.Fields)
	}
	if resp.Error.Fields["chapter_id"] != "Chapter is required" {
		t.Errorf("chapter_id message = %q", resp.Error.Fields["chapter_id"])
	}
}

// ─── Internal Error Masking ───

func TestInternalErrorsAreMasked(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)

	handleServiceError(rr, req, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if resp.Error.Message != "An unexpected error occurred" {
		t.Errorf("message = %q, internal details must not leak to clients", resp.Error.Message)
	}
}
