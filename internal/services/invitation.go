package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"skillpair-backend/internal/models"
)

// notificationWindow is how far back the polling fallback looks for
// acceptances a disconnected inviter may have missed.
const notificationWindow = 10 * time.Minute

// InvitationService owns the invitation lifecycle:
// pending -> accepted | declined | expired | cancelled.
// Expiry is lazy: every read path that sees a pending invitation past its
// deadline persists the expired status before acting on it.
type InvitationService struct {
	invitations InvitationStore
	users       UserDirectory
	courses     CourseDirectory
	sessions    *SessionService
	notifier    UserNotifier
	ttl         time.Duration
}

func NewInvitationService(invitations InvitationStore, users UserDirectory, courses CourseDirectory, sessions *SessionService, notifier UserNotifier, ttl time.Duration) *InvitationService {
	if ttl <= 0 {
		ttl = models.InvitationTTL
	}
	return &InvitationService{
		invitations: invitations,
		users:       users,
		courses:     courses,
		sessions:    sessions,
		notifier:    notifier,
		ttl:         ttl,
	}
}

func (s *InvitationService) Send(ctx context.Context, inviterID uuid.UUID, req models.CreateInvitationRequest) (*models.PeerInvitation, error) {
	fieldErrors := make(map[string]string)

	inviteeID, err := uuid.Parse(req.InviteeID)
	if err != nil {
		fieldErrors["invitee_id"] = "Invalid invitee ID"
	}
	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		fieldErrors["course_id"] = "Invalid course ID"
	}
	if req.ChapterID == "" {
		fieldErrors["chapter_id"] = "Chapter is required"
	}
	if req.LevelID == "" {
		fieldErrors["level_id"] = "Level is required"
	}
	sessionType := models.SessionType(req.SessionType)
	if !sessionType.Valid() {
		fieldErrors["session_type"] = "session_type must be content_learning, collaborative_test, or discussion"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	if inviteeID == inviterID {
		return nil, &ValidationError{Fields: map[string]string{
			"invitee_id": "You cannot invite yourself",
		}}
	}

	invitee, err := s.users.GetByID(ctx, inviteeID)
	if err != nil {
		return nil, &NotFoundError{Message: "Invitee not found"}
	}
	if !invitee.IsAvailableForCollaboration {
		return nil, &NotFoundError{Message: "User is not available for collaboration"}
	}

	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return nil, &NotFoundError{Message: "Course not found"}
	}

	// Unordered pair: a pending invitation in either direction blocks a new one.
	exists, err := s.invitations.HasPendingBetween(ctx, inviterID, inviteeID, courseID, req.ChapterID, req.LevelID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &ConflictError{Message: "A pending invitation already exists between you for this level"}
	}

	studyMode := req.StudyMode
	if studyMode == "" {
		studyMode = "guided"
	}

	now := time.Now()
	inv := &models.PeerInvitation{
		InviterID:   inviterID,
		InviteeID:   inviteeID,
		CourseID:    courseID,
		ChapterID:   req.ChapterID,
		LevelID:     req.LevelID,
		SessionType: sessionType,
		Message:     req.Message,
		Status:      models.InvitationPending,
		Preferences: models.InvitationPreferences{
			StudyMode:         studyMode,
			EstimatedDuration: req.EstimatedDuration,
			Settings:          req.Settings,
		},
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Respond handles accept and decline from the invitee. On accept a session is
// created and the inviter is notified through their direct channel; the
// notification is best-effort — a disconnected inviter recovers via
// RecentAcceptances.
func (s *InvitationService) Respond(ctx context.Context, id, callerID uuid.UUID, action string) (*models.PeerInvitation, *models.PeerSession, error) {
	if action != "accept" && action != "decline" {
		return nil, nil, &ValidationError{Fields: map[string]string{
			"action": "action must be accept or decline",
		}}
	}

	inv, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		return nil, nil, &NotFoundError{Message: "Invitation not found"}
	}
	if inv.InviteeID != callerID {
		return nil, nil, &ForbiddenError{Message: "Only the invitee can respond to this invitation"}
	}
	if inv.Status != models.InvitationPending {
		return nil, nil, &StateError{Message: "Invitation has already been " + string(inv.Status)}
	}

	now := time.Now()
	if inv.IsExpired(now) {
		s.markExpired(ctx, inv)
		return nil, nil, &StateError{Message: "Invitation has expired"}
	}

	if action == "decline" {
		if err := s.transitionPending(ctx, inv, models.InvitationDeclined, now); err != nil {
			return nil, nil, err
		}
		return inv, nil, nil
	}

	// The status flip is a compare-and-swap on pending: of two racing accepts
	// only one wins the transition, and only the winner creates a session.
	if err := s.transitionPending(ctx, inv, models.InvitationAccepted, now); err != nil {
		return nil, nil, err
	}

	session, err := s.sessions.CreateForInvitation(ctx, inv)
	if err != nil {
		return nil, nil, err
	}

	inv.SessionID = &session.ID
	if err := s.invitations.AttachSession(ctx, inv.ID, session.ID); err != nil {
		return nil, nil, err
	}

	// The inviter is not in the new session's room yet; reach them directly.
	delivered := s.notifier.NotifyUser(ctx, inv.InviterID, "invitation-accepted-notification", map[string]interface{}{
		"invitation_id": inv.ID,
		"session_id":    session.ID,
		"invitee_id":    inv.InviteeID,
		"course_id":     inv.CourseID,
		"chapter_id":    inv.ChapterID,
		"level_id":      inv.LevelID,
		"accepted_at":   now,
	})
	if !delivered {
		log.Printf("invitation %s accepted: inviter %s offline, will rely on polling", inv.ID, inv.InviterID)
	}

	return inv, session, nil
}

func (s *InvitationService) Cancel(ctx context.Context, id, callerID uuid.UUID) (*models.PeerInvitation, error) {
	inv, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		return nil, &NotFoundError{Message: "Invitation not found"}
	}
	if inv.InviterID != callerID {
		return nil, &ForbiddenError{Message: "Only the inviter can cancel this invitation"}
	}
	if inv.Status != models.InvitationPending {
		return nil, &StateError{Message: "Invitation has already been " + string(inv.Status)}
	}

	now := time.Now()
	if inv.IsExpired(now) {
		s.markExpired(ctx, inv)
		return nil, &StateError{Message: "Invitation has expired"}
	}

	if err := s.transitionPending(ctx, inv, models.InvitationCancelled, now); err != nil {
		return nil, err
	}
	return inv, nil
}

// transitionPending moves a pending invitation to a terminal status through the
// store's compare-and-swap. A concurrent writer beating us to the row surfaces
// as a StateError, never as a second transition.
func (s *InvitationService) transitionPending(ctx context.Context, inv *models.PeerInvitation, to models.InvitationStatus, now time.Time) error {
	ok, err := s.invitations.Transition(ctx, inv.ID, models.InvitationPending, to, &now)
	if err != nil {
		return err
	}
	if !ok {
		return &StateError{Message: "Invitation has already been responded to"}
	}
	inv.Status = to
	inv.RespondedAt = &now
	return nil
}

func (s *InvitationService) ListReceived(ctx context.Context, userID uuid.UUID, status models.InvitationStatus) ([]*models.PeerInvitation, error) {
	invs, err := s.invitations.ListReceived(ctx, userID, status)
	if err != nil {
		return nil, err
	}
	return s.expirePending(ctx, invs), nil
}

func (s *InvitationService) ListSent(ctx context.Context, userID uuid.UUID, status models.InvitationStatus) ([]*models.PeerInvitation, error) {
	invs, err := s.invitations.ListSent(ctx, userID, status)
	if err != nil {
		return nil, err
	}
	return s.expirePending(ctx, invs), nil
}

// GetAccepted returns an accepted invitation to its invitee. Used by the
// gateway to verify a client-originated acceptance push before relaying it.
func (s *InvitationService) GetAccepted(ctx context.Context, id, callerID uuid.UUID) (*models.PeerInvitation, error) {
	inv, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		return nil, &NotFoundError{Message: "Invitation not found"}
	}
	if inv.InviteeID != callerID {
		return nil, &ForbiddenError{Message: "Only the invitee can announce this acceptance"}
	}
	if inv.Status != models.InvitationAccepted {
		return nil, &StateError{Message: "Invitation is not accepted"}
	}
	return inv, nil
}

// RecentAcceptances is the polling fallback for inviters whose connection
// missed the push: acceptances within the rolling window, newest first.
func (s *InvitationService) RecentAcceptances(ctx context.Context, inviterID uuid.UUID) ([]*models.PeerInvitation, error) {
	return s.invitations.RecentAccepted(ctx, inviterID, time.Now().Add(-notificationWindow))
}

// expirePending persists the expired status for any pending invitation past
// its deadline and drops it from pending results.
func (s *InvitationService) expirePending(ctx context.Context, invs []*models.PeerInvitation) []*models.PeerInvitation {
	now := time.Now()
	kept := invs[:0]
	for _, inv := range invs {
		if inv.Status == models.InvitationPending && inv.IsExpired(now) {
			s.markExpired(ctx, inv)
			continue
		}
		kept = append(kept, inv)
	}
	return kept
}

func (s *InvitationService) markExpired(ctx context.Context, inv *models.PeerInvitation) {
	inv.Status = models.InvitationExpired
	// A losing compare-and-swap means another reader already expired it.
	if _, err := s.invitations.Transition(ctx, inv.ID, models.InvitationPending, models.InvitationExpired, nil); err != nil {
		log.Printf("failed to persist expiry for invitation %s: %v", inv.ID, err)
	}
}
