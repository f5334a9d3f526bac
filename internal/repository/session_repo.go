package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"skillpair-backend/internal/models"
)

// SessionRepo stores the peer-session aggregate as a single JSONB document per
// row. Reads and writes always move the whole document; the session service
// serializes mutations per session id so concurrent read-modify-write cycles
// cannot lose updates.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Create(ctx context.Context, s *models.PeerSession) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO peer_sessions (id, course_id, chapter_id, level_id, session_type, status, participant_ids, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, s.ID, s.CourseID, s.ChapterID, s.LevelID, s.SessionType, s.Status, s.ParticipantIDs(), doc,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*models.PeerSession, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		"SELECT document FROM peer_sessions WHERE id = $1", id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s := &models.PeerSession{}
	if err := json.Unmarshal(doc, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the whole document back along with the indexed columns derived
// from it.
func (r *SessionRepo) Save(ctx context.Context, s *models.PeerSession) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE peer_sessions
		SET status = $2, participant_ids = $3, document = $4, updated_at = NOW()
		WHERE id = $1
	`, s.ID, s.Status, s.ParticipantIDs(), doc)
	return err
}

func (r *SessionRepo) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]*models.PeerSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT document FROM peer_sessions
		WHERE status = 'active' AND $1 = ANY(participant_ids)
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.PeerSession
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		s := &models.PeerSession{}
		if err := json.Unmarshal(doc, s); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
