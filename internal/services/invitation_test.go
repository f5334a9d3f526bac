package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"skillpair-backend/internal/models"
)

type invitationHarness struct {
	svc      *InvitationService
	sessions *SessionService
	store    *memInvitationStore
	notifier *fakeNotifier
	inviter  *models.User
	invitee  *models.User
	course   *models.Course
}

func newInvitationHarness(t *testing.T, ttl time.Duration) *invitationHarness {
	t.Helper()
	now := time.Now()
	inviter := testUser("inviter", true, now, "go")
	invitee := testUser("invitee", true, now, "go")
	course := &models.Course{ID: uuid.New(), Title: "Backend with Go", ChapterCount: 4, LevelsPerChapter: 5}

	users := &memUserDir{users: []*models.User{inviter, invitee}}
	courses := &memCourseDir{courses: []*models.Course{course}}
	store := newMemInvitationStore()
	notifier := &fakeNotifier{delivered: true}
	sessions := NewSessionService(newMemSessionStore(), courses)

	return &invitationHarness{
		svc:      NewInvitationService(store, users, courses, sessions, notifier, ttl),
		sessions: sessions,
		store:    store,
		notifier: notifier,
		inviter:  inviter,
		invitee:  invitee,
		course:   course,
	}
}

func (h *invitationHarness) sendRequest() models.CreateInvitationRequest {
	return models.CreateInvitationRequest{
		InviteeID:   h.invitee.ID.String(),
		CourseID:    h.course.ID.String(),
		ChapterID:   "ch2",
		LevelID:     "lv1",
		SessionType: "content_learning",
		Message:     "Want to pair on this one?",
	}
}

func TestSendInvitation(t *testing.T) {
	h := newInvitationHarness(t, 0)
	ctx := context.Background()

	inv, err := h.svc.Send(ctx, h.inviter.ID, h.sendRequest())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if inv.Status != models.InvitationPending {
		t.Errorf("status = %s, want pending", inv.Status)
	}
	if inv.Preferences.StudyMode != "guided" {
		t.Errorf("study mode = %q, want default guided", inv.Preferences.StudyMode)
	}
	deadline := time.Until(inv.ExpiresAt)
	if deadline < 23*time.Hour || deadline > 25*time.Hour {
		t.Errorf("expiry %v from now, want about 24h", deadline)
	}
}

func TestSendInvitationValidation(t *testing.T) {
	h := newInvitationHarness(t, 0)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.CreateInvitationRequest)
		field  string
	}{
		{"bad invitee id", func(r *models.CreateInvitationRequest) { r.InviteeID = "nope" }, "invitee_id"},
		{"bad course id", func(r *models.CreateInvitationRequest) { r.CourseID = "nope" }, "course_id"},
		{"missing chapter", func(r *models.CreateInvitationRequest) { r.ChapterID = "" }, "chapter_id"},
		{"missing level", func(r *models.CreateInvitationRequest) { r.LevelID = "" }, "level_id"},
		{"bad session type", func(r *models.CreateInvitationRequest) { r.SessionType = "hangout" }, "session_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := h.sendRequest()
			tt.mutate(&req)
			_, err := h.svc.Send(ctx, h.inviter.ID, req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Send() error = %v, want ValidationError", err)
			}
			if _, ok := ve.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want %s flagged", ve.Fields, tt.field)
			}
		})
	}
}

func TestSendInvitationToSelf(t *testing.T) {
	h := newInvitationHarness(t, 0)
	req := h.sendRequest()
	req.InviteeID = h.inviter.ID.String()

	_, err := h.svc.Send(context.Background(), h.inviter.ID, req)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("Send() error = %v, want ValidationError", err)
	}
}

func TestSendInvitationToUnavailableUser(t *testing.T) {
	h := newInvitationHarness(t, 0)
	h.invitee.IsAvailableForCollaboration = false

	_, err := h.svc.Send(context.Background(), h.inviter.ID, h.sendRequest())
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("Send() error = %v, want NotFoundError", err)
	}
}

func TestSendDuplicatePendingInvitation(t *testing.T) {
	h := newInvitationHarness(t, 0)
	ctx := context.Background()

	if _, err := h.svc.Send(ctx, h.inviter.ID, h.sendRequest()); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}

	_, err := h.svc.Send(ctx, h.inviter.ID, h.sendRequest())
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Errorf("second Send() error = %v, want ConflictError", err)
	}

	// The pair is unordered: the invitee sending back for the same level is
	// blocked too.
	reverse := h.sendRequest()
	reverse.InviteeID = h.inviter.ID.String()
	_, err = h.svc.Send(ctx, h.invitee.ID, reverse)
	if !errors.As(err, &ce) {
		t.Errorf("reverse Send() error = %v, want ConflictError", err)
	}

	// A different level is a different invitation.
	other := h.sendRequest()
	other.LevelID = "lv2"
	if _, err := h.svc.Send(ctx, h.inviter.ID, other); err != nil {
		t.Errorf("Send() for another level error = %v", err)
	}
}

func TestRespondByNonInvitee(t *testing.T) {
	h := newInvitationHarness(t, 0)
	ctx := context.Background()
	inv, _ := h.svc.Send(ctx, h.inviter.ID, h.sendRequest())

	_, _, err := h.svc.Respond(ctx, inv.ID, h.inviter.ID, "accept")
	var fe *ForbiddenError
	if !errors.As(err, &fe) {
		t.Errorf("Respond() by inviter error = %v, want ForbiddenError", err)
	}
}

func TestDeclineInvitation(t *testing.T) {
	h := newInvitationHarness(t, 0)
	ctx := context.Background()
	inv, _ := h.svc.Send(ctx, h.inviter.ID, h.sendRequest())

	declined, session, err := h.svc.Respond(ctx, inv.ID, h.invitee.ID, "decline")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if session != nil {
		t.Error("decline should not create a session")
	}
	if declined.Status != models.InvitationDeclined || declined.RespondedAt == nil {
		t.Errorf("invitation = %+v, want declined with responded_at set", declined)
	}
	if len(h.notifier.calls) != 0 {
		t.Error("decline should not push a notification")
	}
}

func TestAcceptInvitation(t *testing.T) {
	h := newInvitationHarness(t, 0)
	ctx := context.Background()
	inv, _ := h.svc.Send(ctx, h.inviter.ID, h.sendRequest())

	accepted, session, err := h.svc.Respond(ctx, inv.ID, h.invitee.ID, "accept")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if session == nil {
		t.Fatal("accept should create a session")
	}
	if accepted.Status != models.InvitationAccepted {
		t.Errorf("status = %s, want accepted", accepted.Status)
	}
	if accepted.SessionID == nil || *accepted.SessionID != session.ID {
		t.Error("accepted invitation should carry the new session id")
	}

	// Inviter leads, invitee participates.
	if p := session.Participant(h.inviter.ID); p == nil || p.Role != models.RoleLeader {
		t.Error("inviter should be the session leader")
	}
	if p := session.Participant(h.invitee.ID); p == nil || p.Role != models.RoleParticipant {
		t.Error("invitee should be a session participant")
	}
	if session.ChapterID != inv.ChapterID || session.LevelID != inv.LevelID {
		t.Error("session should target the invitation's chapter and level")
	}

	// The log opens with a system welcome.
	if len(session.Messages) != 1 || session.Messages[0].Type != models.MessageTypeSystem {
		t.Errorf("messages = %+v, want a single system welcome", session.Messages)
	}

	// The inviter gets the acceptance push.
	if len(h.notifier.calls) != 1 {
		t.Fatalf("notifier called %d times, want 1", len(h.notifier.calls))
	}
	call := h.notifier.calls[0]
	if call.userID != h.inviter.ID || call.event != "invitation-accepted-notification" {
		t.Errorf("notified %s with %q, want inviter with acceptance event", call.userID, call.event)
	}

	// Responding a second time is rejected.
	_, _, err = h.svc.Respond(ctx, inv.ID, h.invitee.ID, "accept")
	var se *StateError
	if !errors.As(err, &se) {
		t.Errorf("second Respond() error = %v, want StateError", err)
	}
}

// gatedInvitationStore holds every read until two readers have arrived, so
// both responders observe the same pending snapshot before either persists.
type gatedInvitationStore struct {
	*memInvitationStore
	gate sync.WaitGroup
}

func (s *gatedInvitationStore) GetByID(ctx context.Context, id uuid.UUID) (*models.PeerInvitation, error) {
	inv, err := s.memInvitationStore.GetByID(ctx, id)
	s.gate.Done()
	s.gate.Wait()
	return inv, err
}

func TestConcurrentAcceptsCreateOneSession(t *testing.T) {
	now := time.Now()
	inviter := testUser("inviter", true, now, "go")
	invitee := testUser("invitee", true, now, "go")
	course := &models.Course{ID: uuid.New(), Title: "Backend with Go", ChapterCount: 4, LevelsPerChapter: 5}
	courses := &memCourseDir{courses: []*models.Course{course}}

	store := &gatedInvitationStore{memInvitationStore: newMemInvitationStore()}
	store.gate.Add(2)
	sessions := NewSessionService(newMemSessionStore(), courses)
	svc := NewInvitationService(store, &memUserDir{users: []*models.User{inviter, invitee}},
		courses, sessions, &fakeNotifier{delivered: true}, 0)

	ctx := context.Background()
	inv, err := svc.Send(ctx, inviter.ID, models.CreateInvitationRequest{
		InviteeID:   invitee.ID.String(),
		CourseID:    course.ID.String(),
		ChapterID:   "ch2",
		LevelID:     "lv1",
		SessionType: "content_learning",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var (
		wg       sync.WaitGroup
		made     [2]*models.PeerSession
		respErrs [2]error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, made[i], respErrs[i] = svc.Respond(ctx, inv.ID, invitee.ID, "accept")
		}(i)
	}
	wg.Wait()

	var created, rejected int
	for i := 0; i < 2; i++ {
		if respErrs[i] == nil {
			if made[i] == nil {
				t.Fatal("winning accept returned no session")
			}
			created++
			continue
		}
		var se *StateError
		if !errors.As(respErrs[i], &se) {
			t.Errorf("losing accept error = %v, want StateError", respErrs[i])
		}
		rejected++
	}
	if created != 1 || rejected != 1 {
		t.Fatalf("created %d sessions, rejected %d accepts, want exactly one of each", created, rejected)
	}

	active, err := sessions.ListActive(ctx, invitee.ID)
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(active) != 1 {
		t.Errorf("invitee has %d active sessions, want 1", len(active))
	}
}

func TestRespondAfterExpiry(t *testing.T) {
	h := newInvitationHarness(t, time.Millisecond)
	ctx := context.Background()
	inv, err := h.svc.Send(ctx, h.inviter.ID, h.sendRequest())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, _, err = h.svc.Respond(ctx, inv.ID, h.invitee.ID, "accept")
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("Respond() error = %v, want StateError", err)
	}

	// Lazy expiry persisted the terminal status.
	stored, _ := h.store.GetByID(ctx, inv.ID)
	if stored.Status != models.InvitationExpired {
		t.Errorf("stored status = %s, want expired", stored.Status)
	}
}

func TestCancelInvitation(t *testing.T) {
	h := newInvitationHarness(t, 0)
	ctx := context.Background()
	inv, _ := h.svc.Send(ctx, h.inviter.ID, h.sendRequest())

	if _, err := h.svc.Cancel(ctx, inv.ID, h.invitee.ID); err == nil {
		t.Error("Cancel() by invitee should be rejected")
	}

	cancelled, err := h.svc.Cancel(ctx, inv.ID, h.inviter.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != models.InvitationCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	// The invitee racing a response loses cleanly.
	_, _, err = h.svc.Respond(ctx, inv.ID, h.invitee.ID, "accept")
	var se *StateError
	if !errors.As(err, &se) {
		t.Errorf("Respond() after cancel error = %v, want StateError", err)
	}
}

func TestListReceivedExpiresStalePendings(t *testing.T) {
	h := newInvitationHarness(t, time.Millisecond)
	ctx := context.Background()
	inv, _ := h.svc.Send(ctx, h.inviter.ID, h.sendRequest())
	time.Sleep(5 * time.Millisecond)

	got, err := h.svc.ListReceived(ctx, h.invitee.ID, models.InvitationPending)
	if err != nil {
		t.Fatalf("ListReceived() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d pending invitations, want 0 after expiry", len(got))
	}
	stored, _ := h.store.GetByID(ctx, inv.ID)
	if stored.Status != models.InvitationExpired {
		t.Errorf("stored status = %s, want expired", stored.Status)
	}
}

func TestRecentAcceptances(t *testing.T) {
	h := newInvitationHarness(t, 0)
	ctx := context.Background()
	inv, _ := h.svc.Send(ctx, h.inviter.ID, h.sendRequest())
	if _, _, err := h.svc.Respond(ctx, inv.ID, h.invitee.ID, "accept"); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	recent, err := h.svc.RecentAcceptances(ctx, h.inviter.ID)
	if err != nil {
		t.Fatalf("RecentAcceptances() error = %v", err)
	}
	if len(recent) != 1 || recent[0].ID != inv.ID {
		t.Errorf("recent = %+v, want the just-accepted invitation", recent)
	}

	// Nothing for the invitee's sent view.
	recent, _ = h.svc.RecentAcceptances(ctx, h.invitee.ID)
	if len(recent) != 0 {
		t.Errorf("invitee acceptances = %d, want 0", len(recent))
	}
}

func TestGetAccepted(t *testing.T) {
	h := newInvitationHarness(t, 0)
	ctx := context.Background()
	inv, _ := h.svc.Send(ctx, h.inviter.ID, h.sendRequest())

	// Not accepted yet.
	_, err := h.svc.GetAccepted(ctx, inv.ID, h.invitee.ID)
	var se *StateError
	if !errors.As(err, &se) {
		t.Errorf("GetAccepted() before accept error = %v, want StateError", err)
	}

	if _, _, err := h.svc.Respond(ctx, inv.ID, h.invitee.ID, "accept"); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	if _, err := h.svc.GetAccepted(ctx, inv.ID, h.invitee.ID); err != nil {
		t.Errorf("GetAccepted() error = %v", err)
	}
	var fe *ForbiddenError
	if _, err := h.svc.GetAccepted(ctx, inv.ID, h.inviter.ID); !errors.As(err, &fe) {
		t.Errorf("GetAccepted() by inviter error = %v, want ForbiddenError", err)
	}
}
