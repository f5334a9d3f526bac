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

type ProgressRepo struct {
	pool *pgxpool.Pool
}

func NewProgressRepo(pool *pgxpool.Pool) *ProgressRepo {
	return &ProgressRepo{pool: pool}
}

// Get returns the progress record for one user on one course, or nil (not an
// error) when the user never opened the course — the matching service skips
// such candidates instead of scoring them at zero.
func (r *ProgressRepo) Get(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseProgress, error) {
	p := &models.CourseProgress{}
	var levelsJSON []byte
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, course_id, completed_levels, total_time_minutes, last_accessed_at
		FROM course_progress WHERE user_id = $1 AND course_id = $2
	`, userID, courseID).Scan(&p.UserID, &p.CourseID, &levelsJSON, &p.TotalTimeMinutes, &p.LastAccessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(levelsJSON, &p.CompletedLevels); err != nil {
		return nil, err
	}
	return p, nil
}

// CompleteLevel upserts the progress record, adds the chapter:level key if new,
// and accumulates time spent.
func (r *ProgressRepo) CompleteLevel(ctx context.Context, userID, courseID uuid.UUID, chapterID, levelID string, timeSpentMinutes int) (*models.CourseProgress, error) {
	p, err := r.Get(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &models.CourseProgress{
			UserID:          userID,
			CourseID:        courseID,
			CompletedLevels: []string{},
		}
	}
	if !p.HasCompleted(chapterID, levelID) {
		p.CompletedLevels = append(p.CompletedLevels, chapterID+":"+levelID)
	}
	p.TotalTimeMinutes += timeSpentMinutes

	levelsJSON, err := json.Marshal(p.CompletedLevels)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO course_progress (user_id, course_id, completed_levels, total_time_minutes, last_accessed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, course_id) DO UPDATE
		SET completed_levels = EXCLUDED.completed_levels,
			total_time_minutes = EXCLUDED.total_time_minutes,
			last_accessed_at = NOW()
		RETURNING last_accessed_at
	`, userID, courseID, levelsJSON, p.TotalTimeMinutes).Scan(&p.LastAccessedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Touch refreshes last_accessed_at when a user opens course content.
func (r *ProgressRepo) Touch(ctx context.Context, userID, courseID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO course_progress (user_id, course_id, completed_levels, total_time_minutes, last_accessed_at)
		VALUES ($1, $2, '[]', 0, NOW())
		ON CONFLICT (user_id, course_id) DO UPDATE SET last_accessed_at = NOW()
	`, userID, courseID)
	return err
}
