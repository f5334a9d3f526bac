package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

type ParticipantRole string

const (
	RoleLeader      ParticipantRole = "leader"
	RoleParticipant ParticipantRole = "participant"
)

type MessageType string

const (
	MessageTypeMessage     MessageType = "message"
	MessageTypeSystem      MessageType = "system"
	MessageTypeQuestion    MessageType = "question"
	MessageTypeInvitation  MessageType = "invitation"
	MessageTypeAchievement MessageType = "achievement"
	MessageTypeHint        MessageType = "hint"
	MessageTypeAction      MessageType = "action"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeMessage, MessageTypeSystem, MessageTypeQuestion,
		MessageTypeInvitation, MessageTypeAchievement, MessageTypeHint, MessageTypeAction:
		return true
	}
	return false
}

type SessionSettings struct {
	AllowVoiceChat    bool `json:"allow_voice_chat"`
	ShareCodeEditor   bool `json:"share_code_editor"`
	SyncNavigation    bool `json:"sync_navigation"`
	ShowPartnerCursor bool `json:"show_partner_cursor"`
}

type SessionParticipant struct {
	UserID   uuid.UUID       `json:"user_id"`
	Role     ParticipantRole `json:"role"`
	JoinedAt time.Time       `json:"joined_at"`
	LastSeen time.Time       `json:"last_seen"`
	IsOnline bool            `json:"is_online"`
}

type SessionData struct {
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	CurrentContentIndex  int        `json:"current_content_index"`
	TotalContentSections int        `json:"total_content_sections"`
}

type SessionMessage struct {
	ID       uuid.UUID   `json:"id"`
	SenderID uuid.UUID   `json:"sender_id"`
	Text     string      `json:"text"`
	Type     MessageType `json:"type"`
	SentAt   time.Time   `json:"sent_at"`
}

type SessionNote struct {
	ID        uuid.UUID `json:"id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type QuestionAnswer struct {
	AnsweredBy uuid.UUID `json:"answered_by"`
	Answer     string    `json:"answer"`
	CreatedAt  time.Time `json:"created_at"`
}

type StudyQuestion struct {
	ID        uuid.UUID        `json:"id"`
	AskedBy   uuid.UUID        `json:"asked_by"`
	Question  string           `json:"question"`
	Answers   []QuestionAnswer `json:"answers"`
	CreatedAt time.Time        `json:"created_at"`
}

type SessionReaction struct {
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	TargetID  string    `json:"target_id,omitempty"` // message or question this reacts to
	CreatedAt time.Time `json:"created_at"`
}

type SessionGoal struct {
	ID        uuid.UUID `json:"id"`
	CreatedBy uuid.UUID `json:"created_by"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

type ParticipantProgress struct {
	UserID             uuid.UUID `json:"user_id"`
	CurrentContentIndex int      `json:"current_content_index"`
	ProgressPercentage  float64  `json:"progress_percentage"`
	LastSeen            time.Time `json:"last_seen"`
}

type SharedCode struct {
	Content      string     `json:"content"`
	Language     string     `json:"language"`
	LastEditedBy *uuid.UUID `json:"last_edited_by,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

type ParticipantTestResult struct {
	UserID         uuid.UUID  `json:"user_id"`
	Score          int        `json:"score"`
	TotalQuestions int        `json:"total_questions"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// SessionInsights are denormalized counters over the session's logs. They are
// recomputed from slice lengths on every mutation, never incremented, so they
// cannot drift from the source of truth.
type SessionInsights struct {
	TotalMessages   int `json:"total_messages"`
	TotalQuestions  int `json:"total_questions"`
	TotalNotes      int `json:"total_notes"`
	TotalReactions  int `json:"total_reactions"`
	SessionDuration int `json:"session_duration"` // minutes
}

// PeerSession is the shared session document. The whole aggregate is stored as
// one JSONB value and mutated under a per-session lock in the session service.
type PeerSession struct {
	ID           string                  `json:"id"`
	Participants []SessionParticipant    `json:"participants"`
	CourseID     uuid.UUID               `json:"course_id"`
	ChapterID    string                  `json:"chapter_id"`
	LevelID      string                  `json:"level_id"`
	SessionType  SessionType             `json:"session_type"`
	Status       SessionStatus           `json:"status"`
	StudyMode    string                  `json:"study_mode"`
	Settings     SessionSettings         `json:"settings"`
	SessionData  SessionData             `json:"session_data"`
	Messages     []SessionMessage        `json:"messages"`
	Notes        []SessionNote           `json:"notes"`
	Questions    []StudyQuestion         `json:"questions"`
	Reactions    []SessionReaction       `json:"reactions"`
	Goals        []SessionGoal           `json:"goals"`
	Progress     []ParticipantProgress   `json:"progress"`
	SharedCode   SharedCode              `json:"shared_code"`
	TestResults  []ParticipantTestResult `json:"test_results"`
	Insights     SessionInsights         `json:"session_insights"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

func (s *PeerSession) Participant(userID uuid.UUID) *SessionParticipant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

func (s *PeerSession) HasParticipant(userID uuid.UUID) bool {
	return s.Participant(userID) != nil
}

// AddParticipant appends a participant; no-op if the user is already in the
// session, so re-joins are idempotent.
func (s *PeerSession) AddParticipant(userID uuid.UUID, role ParticipantRole, now time.Time) {
	if s.HasParticipant(userID) {
		return
	}
	s.Participants = append(s.Participants, SessionParticipant{
		UserID:   userID,
		Role:     role,
		JoinedAt: now,
		LastSeen: now,
		IsOnline: true,
	})
}

func (s *PeerSession) RemoveParticipant(userID uuid.UUID) {
	kept := s.Participants[:0]
	for _, p := range s.Participants {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	s.Participants = kept
}

func (s *PeerSession) AppendMessage(senderID uuid.UUID, text string, msgType MessageType, now time.Time) SessionMessage {
	msg := SessionMessage{
		ID:       uuid.New(),
		SenderID: senderID,
		Text:     text,
		Type:     msgType,
		SentAt:   now,
	}
	s.Messages = append(s.Messages, msg)
	s.RecomputeInsights(now)
	return msg
}

func (s *PeerSession) AppendNote(authorID uuid.UUID, content string, now time.Time) SessionNote {
	note := SessionNote{ID: uuid.New(), AuthorID: authorID, Content: content, CreatedAt: now}
	s.Notes = append(s.Notes, note)
	s.RecomputeInsights(now)
	return note
}

func (s *PeerSession) AppendQuestion(askedBy uuid.UUID, question string, now time.Time) StudyQuestion {
	q := StudyQuestion{ID: uuid.New(), AskedBy: askedBy, Question: question, CreatedAt: now}
	s.Questions = append(s.Questions, q)
	s.RecomputeInsights(now)
	return q
}

func (s *PeerSession) AppendReaction(userID uuid.UUID, emoji, targetID string, now time.Time) SessionReaction {
	re := SessionReaction{UserID: userID, Emoji: emoji, TargetID: targetID, CreatedAt: now}
	s.Reactions = append(s.Reactions, re)
	s.RecomputeInsights(now)
	return re
}

// UpsertProgress updates one participant's progress entry and moves the shared
// navigation index (last-writer-wins under the session lock).
func (s *PeerSession) UpsertProgress(userID uuid.UUID, contentIndex int, percentage float64, now time.Time) {
	for i := range s.Progress {
		if s.Progress[i].UserID == userID {
			s.Progress[i].CurrentContentIndex = contentIndex
			s.Progress[i].ProgressPercentage = percentage
			s.Progress[i].LastSeen = now
			s.SessionData.CurrentContentIndex = contentIndex
			return
		}
	}
	s.Progress = append(s.Progress, ParticipantProgress{
		UserID:              userID,
		CurrentContentIndex: contentIndex,
		ProgressPercentage:  percentage,
		LastSeen:            now,
	})
	s.SessionData.CurrentContentIndex = contentIndex
}

func (s *PeerSession) SetSharedCode(userID uuid.UUID, content, language string, now time.Time) {
	s.SharedCode.Content = content
	if language != "" {
		s.SharedCode.Language = language
	}
	s.SharedCode.LastEditedBy = &userID
	t := now
	s.SharedCode.UpdatedAt = &t
}

func (s *PeerSession) RecordTestResult(userID uuid.UUID, score, total int, now time.Time) {
	t := now
	for i := range s.TestResults {
		if s.TestResults[i].UserID == userID {
			s.TestResults[i].Score = score
			s.TestResults[i].TotalQuestions = total
			s.TestResults[i].CompletedAt = &t
			return
		}
	}
	s.TestResults = append(s.TestResults, ParticipantTestResult{
		UserID:         userID,
		Score:          score,
		TotalQuestions: total,
		CompletedAt:    &t,
	})
}

// RecomputeInsights rebuilds every counter from the underlying slices and
// refreshes the duration.
func (s *PeerSession) RecomputeInsights(now time.Time) {
	s.Insights.TotalMessages = len(s.Messages)
	s.Insights.TotalQuestions = len(s.Questions)
	s.Insights.TotalNotes = len(s.Notes)
	s.Insights.TotalReactions = len(s.Reactions)
	s.Insights.SessionDuration = s.durationMinutes(now)
}

func (s *PeerSession) durationMinutes(now time.Time) int {
	end := now
	if s.SessionData.EndTime != nil {
		end = *s.SessionData.EndTime
	}
	d := end.Sub(s.SessionData.StartTime)
	if d < 0 {
		return 0
	}
	return int(d.Minutes())
}

// End freezes the session: completed status, end time set once, every
// participant marked offline, duration finalized against the frozen end time.
func (s *PeerSession) End(now time.Time) SessionInsights {
	s.Status = SessionCompleted
	if s.SessionData.EndTime == nil {
		t := now
		s.SessionData.EndTime = &t
	}
	for i := range s.Participants {
		s.Participants[i].IsOnline = false
	}
	s.RecomputeInsights(now)
	return s.Insights
}

func (s *PeerSession) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(s.Participants))
	for i, p := range s.Participants {
		ids[i] = p.UserID
	}
	return ids
}
