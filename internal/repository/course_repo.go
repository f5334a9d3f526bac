package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"skillpair-backend/internal/models"
)

type CourseRepo struct {
	pool *pgxpool.Pool
}

func NewCourseRepo(pool *pgxpool.Pool) *CourseRepo {
	return &CourseRepo{pool: pool}
}

func (r *CourseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	course := &models.Course{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, description, technologies, chapter_count, levels_per_chapter, created_at
		FROM courses WHERE id = $1
	`, id).Scan(
		&course.ID, &course.Title, &course.Description, &course.Technologies,
		&course.ChapterCount, &course.LevelsPerChapter, &course.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return course, nil
}

func (r *CourseRepo) List(ctx context.Context) ([]*models.Course, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, description, technologies, chapter_count, levels_per_chapter, created_at
		FROM courses ORDER BY title
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []*models.Course
	for rows.Next() {
		course := &models.Course{}
		if err := rows.Scan(
			&course.ID, &course.Title, &course.Description, &course.Technologies,
			&course.ChapterCount, &course.LevelsPerChapter, &course.CreatedAt,
		); err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, rows.Err()
}
