package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"skillpair-backend/internal/models"
)

type InvitationRepo struct {
	pool *pgxpool.Pool
}

func NewInvitationRepo(pool *pgxpool.Pool) *InvitationRepo {
	return &InvitationRepo{pool: pool}
}

const invitationColumns = `id, inviter_id, invitee_id, course_id, chapter_id, level_id,
	session_type, message, status, preferences, created_at, expires_at, responded_at, session_id`

func (r *InvitationRepo) Create(ctx context.Context, inv *models.PeerInvitation) error {
	prefsJSON, err := json.Marshal(inv.Preferences)
	if err != nil {
		return err
	}

	inv.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO peer_invitations
			(id, inviter_id, invitee_id, course_id, chapter_id, level_id,
			 session_type, message, status, preferences, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`, inv.ID, inv.InviterID, inv.InviteeID, inv.CourseID, inv.ChapterID, inv.LevelID,
		inv.SessionType, inv.Message, inv.Status, prefsJSON, inv.ExpiresAt,
	).Scan(&inv.CreatedAt)
}

func (r *InvitationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PeerInvitation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invitationColumns+` FROM peer_invitations WHERE id = $1`, id)
	return scanInvitation(row)
}

// HasPendingBetween checks the unordered pair: an invitation in either
// direction for the same chapter/level blocks a new one.
func (r *InvitationRepo) HasPendingBetween(ctx context.Context, a, b uuid.UUID, courseID uuid.UUID, chapterID, levelID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM peer_invitations
			WHERE status = 'pending'
			  AND expires_at > NOW()
			  AND course_id = $3 AND chapter_id = $4 AND level_id = $5
			  AND ((inviter_id = $1 AND invitee_id = $2) OR (inviter_id = $2 AND invitee_id = $1))
		)
	`, a, b, courseID, chapterID, levelID).Scan(&exists)
	return exists, err
}

// Transition persists a lifecycle transition as a compare-and-swap: the row is
// updated only while it still holds the expected prior status. Returns false
// when another writer moved the invitation first. respondedAt may be nil
// (expiry sets no response time).
func (r *InvitationRepo) Transition(ctx context.Context, id uuid.UUID, from, to models.InvitationStatus, respondedAt *time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE peer_invitations
		SET status = $3,
			responded_at = COALESCE($4, responded_at)
		WHERE id = $1 AND status = $2
	`, id, from, to, respondedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AttachSession backfills the session id on an accepted invitation.
func (r *InvitationRepo) AttachSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE peer_invitations SET session_id = $2 WHERE id = $1`, id, sessionID)
	return err
}

func (r *InvitationRepo) ListReceived(ctx context.Context, inviteeID uuid.UUID, status models.InvitationStatus) ([]*models.PeerInvitation, error) {
	return r.list(ctx, `
		SELECT `+invitationColumns+` FROM peer_invitations
		WHERE invitee_id = $1 AND status = $2
		ORDER BY created_at DESC
	`, inviteeID, status)
}

func (r *InvitationRepo) ListSent(ctx context.Context, inviterID uuid.UUID, status models.InvitationStatus) ([]*models.PeerInvitation, error) {
	return r.list(ctx, `
		SELECT `+invitationColumns+` FROM peer_invitations
		WHERE inviter_id = $1 AND status = $2
		ORDER BY created_at DESC
	`, inviterID, status)
}

// RecentAccepted backs the notification polling fallback: acceptances where the
// caller is the inviter, keyed by response time within the window.
func (r *InvitationRepo) RecentAccepted(ctx context.Context, inviterID uuid.UUID, since time.Time) ([]*models.PeerInvitation, error) {
	return r.list(ctx, `
		SELECT `+invitationColumns+` FROM peer_invitations
		WHERE inviter_id = $1 AND status = 'accepted' AND responded_at > $2
		ORDER BY responded_at DESC
	`, inviterID, since)
}

func (r *InvitationRepo) list(ctx context.Context, query string, args ...any) ([]*models.PeerInvitation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []*models.PeerInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

func scanInvitation(row rowScanner) (*models.PeerInvitation, error) {
	inv := &models.PeerInvitation{}
	var prefsJSON []byte
	err := row.Scan(
		&inv.ID, &inv.InviterID, &inv.InviteeID, &inv.CourseID, &inv.ChapterID, &inv.LevelID,
		&inv.SessionType, &inv.Message, &inv.Status, &prefsJSON,
		&inv.CreatedAt, &inv.ExpiresAt, &inv.RespondedAt, &inv.SessionID,
	)
	if err != nil {
		return nil, err
	}
	if len(prefsJSON) > 0 {
		if err := json.Unmarshal(prefsJSON, &inv.Preferences); err != nil {
			return nil, err
		}
	}
	return inv, nil
}
