package models

import (
	"time"

	"github.com/google/uuid"
)

type Course struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Technologies     []string  `json:"technologies"`
	ChapterCount     int       `json:"chapter_count"`
	LevelsPerChapter int       `json:"levels_per_chapter"`
	CreatedAt        time.Time `json:"created_at"`
}

// TotalContentSections is the number of navigable content sections in a course,
// used to seed a peer session's shared navigation state.
func (c *Course) TotalContentSections() int {
	return c.ChapterCount * c.LevelsPerChapter
}

// CourseProgress is one user's progress record for one course. Completed levels
// are stored as "chapterID:levelID" keys so counting is a plain length check.
type CourseProgress struct {
	UserID           uuid.UUID `json:"user_id"`
	CourseID         uuid.UUID `json:"course_id"`
	CompletedLevels  []string  `json:"completed_levels"`
	TotalTimeMinutes int       `json:"total_time_minutes"`
	LastAccessedAt   time.Time `json:"last_accessed_at"`
}

func (p *CourseProgress) CompletedLevelCount() int {
	return len(p.CompletedLevels)
}

func (p *CourseProgress) HasCompleted(chapterID, levelID string) bool {
	key := chapterID + ":" + levelID
	for _, lv := range p.CompletedLevels {
		if lv == key {
			return true
		}
	}
	return false
}
