package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"skillpair-backend/internal/models"
)

// In-memory stores standing in for the pgx repositories.

type memUserDir struct {
	users []*models.User
}

func (d *memUserDir) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range d.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, errors.New("no rows in result set")
}

func (d *memUserDir) ListAvailableCandidates(_ context.Context, excludeID uuid.UUID) ([]*models.User, error) {
	var out []*models.User
	for _, u := range d.users {
		if u.ID != excludeID && u.IsAvailableForCollaboration {
			out = append(out, u)
		}
	}
	return out, nil
}

type memCourseDir struct {
	courses []*models.Course
}

func (d *memCourseDir) GetByID(_ context.Context, id uuid.UUID) (*models.Course, error) {
	for _, c := range d.courses {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, errors.New("no rows in result set")
}

type memProgressStore struct {
	records map[uuid.UUID]map[uuid.UUID]*models.CourseProgress // userID -> courseID
}

func (s *memProgressStore) Get(_ context.Context, userID, courseID uuid.UUID) (*models.CourseProgress, error) {
	if byCourse, ok := s.records[userID]; ok {
		return byCourse[courseID], nil
	}
	return nil, nil
}

func (s *memProgressStore) set(p *models.CourseProgress) {
	if s.records == nil {
		s.records = make(map[uuid.UUID]map[uuid.UUID]*models.CourseProgress)
	}
	if s.records[p.UserID] == nil {
		s.records[p.UserID] = make(map[uuid.UUID]*models.CourseProgress)
	}
	s.records[p.UserID][p.CourseID] = p
}

type memInvitationStore struct {
	mu          sync.Mutex
	invitations map[uuid.UUID]*models.PeerInvitation
}

func newMemInvitationStore() *memInvitationStore {
	return &memInvitationStore{invitations: make(map[uuid.UUID]*models.PeerInvitation)}
}

func (s *memInvitationStore) Create(_ context.Context, inv *models.PeerInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now()
	cp := *inv
	s.invitations[inv.ID] = &cp
	return nil
}

func (s *memInvitationStore) GetByID(_ context.Context, id uuid.UUID) (*models.PeerInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return nil, errors.New("no rows in result set")
	}
	cp := *inv
	return &cp, nil
}

func (s *memInvitationStore) HasPendingBetween(_ context.Context, a, b uuid.UUID, courseID uuid.UUID, chapterID, levelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, inv := range s.invitations {
		samePair := (inv.InviterID == a && inv.InviteeID == b) || (inv.InviterID == b && inv.InviteeID == a)
		if samePair && inv.Status == models.InvitationPending && !inv.IsExpired(now) &&
			inv.CourseID == courseID && inv.ChapterID == chapterID && inv.LevelID == levelID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memInvitationStore) Transition(_ context.Context, id uuid.UUID, from, to models.InvitationStatus, respondedAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok || inv.Status != from {
		return false, nil
	}
	inv.Status = to
	if respondedAt != nil {
		inv.RespondedAt = respondedAt
	}
	return true, nil
}

func (s *memInvitationStore) AttachSession(_ context.Context, id uuid.UUID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return errors.New("no rows in result set")
	}
	inv.SessionID = &sessionID
	return nil
}

func (s *memInvitationStore) ListReceived(_ context.Context, inviteeID uuid.UUID, status models.InvitationStatus) ([]*models.PeerInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PeerInvitation
	for _, inv := range s.invitations {
		if inv.InviteeID == inviteeID && inv.Status == status {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memInvitationStore) ListSent(_ context.Context, inviterID uuid.UUID, status models.InvitationStatus) ([]*models.PeerInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PeerInvitation
	for _, inv := range s.invitations {
		if inv.InviterID == inviterID && inv.Status == status {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memInvitationStore) RecentAccepted(_ context.Context, inviterID uuid.UUID, since time.Time) ([]*models.PeerInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PeerInvitation
	for _, inv := range s.invitations {
		if inv.InviterID == inviterID && inv.Status == models.InvitationAccepted &&
			inv.RespondedAt != nil && inv.RespondedAt.After(since) {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.PeerSession
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*models.PeerSession)}
}

func (s *memSessionStore) Create(_ context.Context, session *models.PeerSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	cp := clone(session)
	s.sessions[session.ID] = cp
	return nil
}

func (s *memSessionStore) Get(_ context.Context, id string) (*models.PeerSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return clone(session), nil
}

func (s *memSessionStore) Save(_ context.Context, session *models.PeerSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.UpdatedAt = time.Now()
	s.sessions[session.ID] = clone(session)
	return nil
}

func (s *memSessionStore) ListActiveForUser(_ context.Context, userID uuid.UUID) ([]*models.PeerSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PeerSession
	for _, session := range s.sessions {
		if session.Status == models.SessionActive && session.HasParticipant(userID) {
			out = append(out, clone(session))
		}
	}
	return out, nil
}

// clone deep-copies the document the way a JSONB round trip would, so tests
// see the same aliasing behavior the real repo has.
func clone(s *models.PeerSession) *models.PeerSession {
	cp := *s
	cp.Participants = append([]models.SessionParticipant(nil), s.Participants...)
	cp.Messages = append([]models.SessionMessage(nil), s.Messages...)
	cp.Notes = append([]models.SessionNote(nil), s.Notes...)
	cp.Questions = append([]models.StudyQuestion(nil), s.Questions...)
	cp.Reactions = append([]models.SessionReaction(nil), s.Reactions...)
	cp.Goals = append([]models.SessionGoal(nil), s.Goals...)
	cp.Progress = append([]models.ParticipantProgress(nil), s.Progress...)
	cp.TestResults = append([]models.ParticipantTestResult(nil), s.TestResults...)
	return &cp
}

type fakeNotifier struct {
	mu        sync.Mutex
	delivered bool
	calls     []notifyCall
}

type notifyCall struct {
	userID  uuid.UUID
	event   string
	payload interface{}
}

func (n *fakeNotifier) NotifyUser(_ context.Context, userID uuid.UUID, event string, payload interface{}) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{userID: userID, event: event, payload: payload})
	return n.delivered
}
