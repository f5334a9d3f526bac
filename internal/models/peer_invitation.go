package models

import (
	"time"

	"github.com/google/uuid"
)

type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationDeclined  InvitationStatus = "declined"
	InvitationExpired   InvitationStatus = "expired"
	InvitationCancelled InvitationStatus = "cancelled"
)

type SessionType string

const (
	SessionTypeContentLearning   SessionType = "content_learning"
	SessionTypeCollaborativeTest SessionType = "collaborative_test"
	SessionTypeDiscussion        SessionType = "discussion"
)

func (t SessionType) Valid() bool {
	switch t {
	case SessionTypeContentLearning, SessionTypeCollaborativeTest, SessionTypeDiscussion:
		return true
	}
	return false
}

// InvitationPreferences travel with the invitation and seed the session settings
// when it is accepted.
type InvitationPreferences struct {
	StudyMode         string          `json:"study_mode"`         // guided | independent
	EstimatedDuration int             `json:"estimated_duration"` // minutes
	Settings          SessionSettings `json:"settings"`
}

// PeerInvitation is a request from one learner to another to start a paired
// session on a specific chapter/level. Invitations are never deleted; terminal
// records remain for audit and for the acceptance-notification polling fallback.
type PeerInvitation struct {
	ID          uuid.UUID             `json:"id"`
	InviterID   uuid.UUID             `json:"inviter_id"`
	InviteeID   uuid.UUID             `json:"invitee_id"`
	CourseID    uuid.UUID             `json:"course_id"`
	ChapterID   string                `json:"chapter_id"`
	LevelID     string                `json:"level_id"`
	SessionType SessionType           `json:"session_type"`
	Message     string                `json:"message"`
	Status      InvitationStatus      `json:"status"`
	Preferences InvitationPreferences `json:"preferences"`
	CreatedAt   time.Time             `json:"created_at"`
	ExpiresAt   time.Time             `json:"expires_at"`
	RespondedAt *time.Time            `json:"responded_at,omitempty"`
	SessionID   *string               `json:"session_id,omitempty"` // set only on acceptance
}

// InvitationTTL is how long an invitation stays answerable.
const InvitationTTL = 24 * time.Hour

func (i *PeerInvitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// CanRespond reports whether the invitation is still answerable at the given time.
func (i *PeerInvitation) CanRespond(now time.Time) bool {
	return i.Status == InvitationPending && !i.IsExpired(now)
}

type CreateInvitationRequest struct {
	InviteeID         string          `json:"invitee_id"`
	CourseID          string          `json:"course_id"`
	ChapterID         string          `json:"chapter_id"`
	LevelID           string          `json:"level_id"`
	SessionType       string          `json:"session_type"`
	Message           string          `json:"message"`
	StudyMode         string          `json:"study_mode"`
	EstimatedDuration int             `json:"estimated_duration"`
	Settings          SessionSettings `json:"settings"`
}

type RespondInvitationRequest struct {
	Action string `json:"action"` // accept | decline
}
