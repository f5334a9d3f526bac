package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"skillpair-backend/internal/models"
)

// SessionService is the registry for peer-session aggregates. Every mutation
// runs a read-modify-write cycle against the whole JSONB document, so mutations
// to the same session are serialized through a per-session mutex: two
// concurrent appends can interleave in any order but neither is ever lost.
type SessionService struct {
	sessions SessionStore
	courses  CourseDirectory

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSessionService(sessions SessionStore, courses CourseDirectory) *SessionService {
	return &SessionService{
		sessions: sessions,
		courses:  courses,
		locks:    make(map[string]*sync.Mutex),
	}
}

// GenerateSessionID produces a unique, log-friendly session identifier.
func GenerateSessionID() string {
	buf := make([]byte, 3)
	rand.Read(buf)
	return fmt.Sprintf("peer_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}

// lockFor returns the mutex serializing mutations of one session. Entries are
// never removed: a lock dropped while a mutation still holds it would let a
// later caller mint a second mutex for the same id, and presence or duration
// writes arriving after End would stop serializing. One mutex per session id
// keeps the map small enough to live with.
func (s *SessionService) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// mutate loads the session, applies fn, and saves the document, all under the
// session's lock. fn returning an error aborts without saving.
func (s *SessionService) mutate(ctx context.Context, sessionID string, fn func(*models.PeerSession) error) (*models.PeerSession, error) {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &NotFoundError{Message: "Session not found"}
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// CreateForInvitation builds the session an accepted invitation produces:
// inviter leads, invitee participates, and the log opens with a system welcome.
func (s *SessionService) CreateForInvitation(ctx context.Context, inv *models.PeerInvitation) (*models.PeerSession, error) {
	return s.create(ctx, createSessionParams{
		courseID:    inv.CourseID,
		chapterID:   inv.ChapterID,
		levelID:     inv.LevelID,
		sessionType: inv.SessionType,
		studyMode:   inv.Preferences.StudyMode,
		settings:    inv.Preferences.Settings,
		leaderID:    inv.InviterID,
		partnerID:   &inv.InviteeID,
	})
}

// CreateTestSession is the direct creation path for collaborative tests,
// bypassing the invitation flow. The optional partner is added as a
// participant immediately.
func (s *SessionService) CreateTestSession(ctx context.Context, creatorID uuid.UUID, courseID uuid.UUID, chapterID, levelID string, partnerID *uuid.UUID) (*models.PeerSession, error) {
	if chapterID == "" || levelID == "" {
		return nil, &ValidationError{Fields: map[string]string{
			"chapter_id": "Chapter and level are required",
		}}
	}
	return s.create(ctx, createSessionParams{
		courseID:    courseID,
		chapterID:   chapterID,
		levelID:     levelID,
		sessionType: models.SessionTypeCollaborativeTest,
		studyMode:   "guided",
		leaderID:    creatorID,
		partnerID:   partnerID,
	})
}

type createSessionParams struct {
	courseID    uuid.UUID
	chapterID   string
	levelID     string
	sessionType models.SessionType
	studyMode   string
	settings    models.SessionSettings
	leaderID    uuid.UUID
	partnerID   *uuid.UUID
}

func (s *SessionService) create(ctx context.Context, p createSessionParams) (*models.PeerSession, error) {
	course, err := s.courses.GetByID(ctx, p.courseID)
	if err != nil {
		return nil, &NotFoundError{Message: "Course not found"}
	}

	now := time.Now()
	session := &models.PeerSession{
		ID:          GenerateSessionID(),
		CourseID:    p.courseID,
		ChapterID:   p.chapterID,
		LevelID:     p.levelID,
		SessionType: p.sessionType,
		Status:      models.SessionActive,
		StudyMode:   p.studyMode,
		Settings:    p.settings,
		SessionData: models.SessionData{
			StartTime:            now,
			TotalContentSections: course.TotalContentSections(),
		},
		Messages:    []models.SessionMessage{},
		Notes:       []models.SessionNote{},
		Questions:   []models.StudyQuestion{},
		Reactions:   []models.SessionReaction{},
		Goals:       []models.SessionGoal{},
		Progress:    []models.ParticipantProgress{},
		TestResults: []models.ParticipantTestResult{},
	}
	session.AddParticipant(p.leaderID, models.RoleLeader, now)
	if p.partnerID != nil {
		session.AddParticipant(*p.partnerID, models.RoleParticipant, now)
	}
	session.AppendMessage(uuid.Nil, "Welcome to your peer learning session! Work through the content together and help each other out.", models.MessageTypeSystem, now)

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Get returns the session only to persisted participants.
func (s *SessionService) Get(ctx context.Context, sessionID string, callerID uuid.UUID) (*models.PeerSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &NotFoundError{Message: "Session not found"}
	}
	if !session.HasParticipant(callerID) {
		return nil, &ForbiddenError{Message: "You are not a participant of this session"}
	}
	return session, nil
}

func (s *SessionService) ListActive(ctx context.Context, userID uuid.UUID) ([]*models.PeerSession, error) {
	return s.sessions.ListActiveForUser(ctx, userID)
}

// AddMessage appends a chat message and recomputes the insight counters.
func (s *SessionService) AddMessage(ctx context.Context, sessionID string, senderID uuid.UUID, text string, msgType models.MessageType) (*models.SessionMessage, error) {
	if text == "" {
		return nil, &ValidationError{Fields: map[string]string{"text": "Message text is required"}}
	}
	if msgType == "" {
		msgType = models.MessageTypeMessage
	}
	if !msgType.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"type": "Unknown message type"}}
	}

	var msg models.SessionMessage
	_, err := s.mutate(ctx, sessionID, func(session *models.PeerSession) error {
		if err := requireActiveParticipant(session, senderID); err != nil {
			return err
		}
		msg = session.AppendMessage(senderID, text, msgType, time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *SessionService) AddNote(ctx context.Context, sessionID string, authorID uuid.UUID, content string) (*models.SessionNote, error) {
	if content == "" {
		return nil, &ValidationError{Fields: map[string]string{"content": "Note content is required"}}
	}
	var note models.SessionNote
	_, err := s.mutate(ctx, sessionID, func(session *models.PeerSession) error {
		if err := requireActiveParticipant(session, authorID); err != nil {
			return err
		}
		note = session.AppendNote(authorID, content, time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *SessionService) AddStudyQuestion(ctx context.Context, sessionID string, askedBy uuid.UUID, question string) (*models.StudyQuestion, error) {
	if question == "" {
		return nil, &ValidationError{Fields: map[string]string{"question": "Question text is required"}}
	}
	var q models.StudyQuestion
	_, err := s.mutate(ctx, sessionID, func(session *models.PeerSession) error {
		if err := requireActiveParticipant(session, askedBy); err != nil {
			return err
		}
		q = session.AppendQuestion(askedBy, question, time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *SessionService) AddReaction(ctx context.Context, sessionID string, userID uuid.UUID, emoji, targetID string) (*models.SessionReaction, error) {
	if emoji == "" {
		return nil, &ValidationError{Fields: map[string]string{"emoji": "Reaction emoji is required"}}
	}
	var re models.SessionReaction
	_, err := s.mutate(ctx, sessionID, func(session *models.PeerSession) error {
		if err := requireActiveParticipant(session, userID); err != nil {
			return err
		}
		re = session.AppendReaction(userID, emoji, targetID, time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &re, nil
}

// UpdateProgress upserts the caller's progress entry; the shared content index
// is last-writer-wins under the session lock.
func (s *SessionService) UpdateProgress(ctx context.Context, sessionID string, userID uuid.UUID, contentIndex int, percentage float64) (*models.PeerSession, error) {
	if contentIndex < 0 || percentage < 0 || percentage > 100 {
		return nil, &ValidationError{Fields: map[string]string{
			"progress": "content index must be >= 0 and percentage within 0-100",
		}}
	}
	return s.mutate(ctx, sessionID, func(session *models.PeerSession) error {
		if err := requireActiveParticipant(session, userID); err != nil {
			return err
		}
		session.UpsertProgress(userID, contentIndex, percentage, time.Now())
		return nil
	})
}

// SyncNavigation moves the shared content pointer without touching the
// caller's own progress record.
func (s *SessionService) SyncNavigation(ctx context.Context, sessionID string, userID uuid.UUID, contentIndex int) (*models.PeerSession, error) {
	if contentIndex < 0 {
		return nil, &ValidationError{Fields: map[string]string{"content_index": "content index must be >= 0"}}
	}
	return s.mutate(ctx, sessionID, func(session *models.PeerSession) error {
		if err := requireActiveParticipant(session, userID); err != nil {
			return err
		}
		session.SessionData.CurrentContentIndex = contentIndex
		if p := session.Participant(userID); p != nil {
			p.LastSeen = time.Now()
		}
		return nil
	})
}

func (s *SessionService) UpdateSharedCode(ctx context.Context, sessionID string, userID uuid.UUID, content, language string) (*models.PeerSession, error) {
	return s.mutate(ctx, sessionID, func(session *models.PeerSession) error {
		if err := requireActiveParticipant(session, userID); err != nil {
			return err
		}
		session.SetSharedCode(userID, content, language, time.Now())
		return nil
	})
}

func (s *SessionService) RecordTestResult(ctx context.Context, sessionID string, userID uuid.UUID, score, total int) (*models.PeerSession, error) {
	return s.mutate(ctx, sessionID, func(session *models.PeerSession) error {
		if err := requireActiveParticipant(session, userID); err != nil {
			return err
		}
		session.RecordTestResult(userID, score, total, time.Now())
		return nil
	})
}

// SetParticipantPresence flips the persisted online flag when a participant's
// connection joins or leaves the room. Unknown sessions are ignored for leave.
func (s *SessionService) SetParticipantPresence(ctx context.Context, sessionID string, userID uuid.UUID, online bool) (*models.PeerSession, error) {
	return s.mutate(ctx, sessionID, func(session *models.PeerSession) error {
		p := session.Participant(userID)
		if p == nil {
			return &ForbiddenError{Message: "You are not a participant of this session"}
		}
		p.IsOnline = online
		p.LastSeen = time.Now()
		return nil
	})
}

// UpdateDuration refreshes the derived duration counter. After the session has
// ended the value is frozen against the recorded end time.
func (s *SessionService) UpdateDuration(ctx context.Context, sessionID string, callerID uuid.UUID) (*models.PeerSession, error) {
	return s.mutate(ctx, sessionID, func(session *models.PeerSession) error {
		if !session.HasParticipant(callerID) {
			return &ForbiddenError{Message: "You are not a participant of this session"}
		}
		session.RecomputeInsights(time.Now())
		return nil
	})
}

// End completes the session, freezes its end time and returns the final
// insights snapshot.
func (s *SessionService) End(ctx context.Context, sessionID string, callerID uuid.UUID) (*models.SessionInsights, error) {
	var insights models.SessionInsights
	_, err := s.mutate(ctx, sessionID, func(session *models.PeerSession) error {
		if !session.HasParticipant(callerID) {
			return &ForbiddenError{Message: "You are not a participant of this session"}
		}
		if session.Status == models.SessionCompleted {
			return &StateError{Message: "Session has already ended"}
		}
		insights = session.End(time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &insights, nil
}

func requireActiveParticipant(session *models.PeerSession, userID uuid.UUID) error {
	if !session.HasParticipant(userID) {
		return &ForbiddenError{Message: "You are not a participant of this session"}
	}
	if session.Status != models.SessionActive {
		return &StateError{Message: "Session is " + string(session.Status)}
	}
	return nil
}
