package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"skillpair-backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, email, password_hash, full_name, avatar_url, bio, technologies,
	is_available_for_collaboration, last_seen_at, created_at`

func (r *UserRepo) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, full_name, technologies)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING is_available_for_collaboration, last_seen_at, created_at`

	user.ID = uuid.New()
	if user.Technologies == nil {
		user.Technologies = []models.UserTechnology{}
	}
	techJSON, err := json.Marshal(user.Technologies)
	if err != nil {
		return err
	}

	return r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.FullName, techJSON,
	).Scan(&user.IsAvailableForCollaboration, &user.LastSeenAt, &user.CreatedAt)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UserRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	techJSON, err := json.Marshal(user.Technologies)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE users
		SET full_name = $2, avatar_url = $3, bio = $4, technologies = $5
		WHERE id = $1
	`, user.ID, user.FullName, user.AvatarURL, user.Bio, techJSON)
	return err
}

func (r *UserRepo) SetAvailability(ctx context.Context, userID uuid.UUID, available bool) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE users SET is_available_for_collaboration = $2 WHERE id = $1", userID, available)
	return err
}

// TouchLastSeen is called on authenticated activity; errors are ignored by
// callers since presence is best-effort.
func (r *UserRepo) TouchLastSeen(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE users SET last_seen_at = NOW() WHERE id = $1", userID)
	return err
}

// ListAvailableCandidates returns every user open to collaboration except the
// requester. The matching service filters and scores them.
func (r *UserRepo) ListAvailableCandidates(ctx context.Context, excludeID uuid.UUID) ([]*models.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE is_available_for_collaboration = TRUE AND id <> $1
		ORDER BY created_at
	`, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var techJSON []byte
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FullName, &user.AvatarURL, &user.Bio,
		&techJSON, &user.IsAvailableForCollaboration, &user.LastSeenAt, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(techJSON) > 0 {
		if err := json.Unmarshal(techJSON, &user.Technologies); err != nil {
			return nil, err
		}
	}
	if user.Technologies == nil {
		user.Technologies = []models.UserTechnology{}
	}
	return user, nil
}
