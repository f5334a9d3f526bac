package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"skillpair-backend/internal/models"
)

// Store interfaces consumed by the peer services. The pgx repositories satisfy
// them; tests substitute in-memory fakes.

type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListAvailableCandidates(ctx context.Context, excludeID uuid.UUID) ([]*models.User, error)
}

type CourseDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

type ProgressStore interface {
	Get(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseProgress, error)
}

type InvitationStore interface {
	Create(ctx context.Context, inv *models.PeerInvitation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PeerInvitation, error)
	HasPendingBetween(ctx context.Context, a, b uuid.UUID, courseID uuid.UUID, chapterID, levelID string) (bool, error)
	Transition(ctx context.Context, id uuid.UUID, from, to models.InvitationStatus, respondedAt *time.Time) (bool, error)
	AttachSession(ctx context.Context, id uuid.UUID, sessionID string) error
	ListReceived(ctx context.Context, inviteeID uuid.UUID, status models.InvitationStatus) ([]*models.PeerInvitation, error)
	ListSent(ctx context.Context, inviterID uuid.UUID, status models.InvitationStatus) ([]*models.PeerInvitation, error)
	RecentAccepted(ctx context.Context, inviterID uuid.UUID, since time.Time) ([]*models.PeerInvitation, error)
}

type SessionStore interface {
	Create(ctx context.Context, s *models.PeerSession) error
	Get(ctx context.Context, id string) (*models.PeerSession, error)
	Save(ctx context.Context, s *models.PeerSession) error
	ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]*models.PeerSession, error)
}

// UserNotifier delivers an event to a single user's live connection, if any.
// Delivery failure is not an error: offline recipients recover through the
// notification polling endpoint.
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, event string, payload interface{}) bool
}
