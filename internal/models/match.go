package models

import (
	"time"

	"github.com/google/uuid"
)

// PeerMatch is one scored candidate returned by the matching endpoint. Online
// status is reported for display but is not part of the score.
type PeerMatch struct {
	UserID       uuid.UUID        `json:"user_id"`
	FullName     string           `json:"full_name"`
	AvatarURL    *string          `json:"avatar_url"`
	Technologies []UserTechnology `json:"technologies"`
	Score        int              `json:"score"`
	Factors      []string         `json:"factors"`
	IsOnline     bool             `json:"is_online"`
	LastSeenAt   time.Time        `json:"last_seen_at"`
}

// API error envelope shared by every handler.
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
