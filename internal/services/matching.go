package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"skillpair-backend/internal/models"
)

// Scoring weights. Each component contributes up to its cap, independently.
const (
	techOverlapCap = 40.0
	progressCap    = 30.0
	engagementCap  = 20.0
	recencyCap     = 10.0

	onlineWindow = 15 * time.Minute
	recencyDays  = 7
)

type MatchingService struct {
	users      UserDirectory
	courses    CourseDirectory
	progress   ProgressStore
	minScore   int
	maxResults int
}

func NewMatchingService(users UserDirectory, courses CourseDirectory, progress ProgressStore, minScore, maxResults int) *MatchingService {
	return &MatchingService{
		users:      users,
		courses:    courses,
		progress:   progress,
		minScore:   minScore,
		maxResults: maxResults,
	}
}

// FindMatches ranks available learners for pairing with the caller on one
// chapter/level. Candidates with no progress record on the course are skipped,
// candidates under the minimum score are dropped, and ties keep the candidate
// enumeration order.
func (s *MatchingService) FindMatches(ctx context.Context, userID, courseID uuid.UUID) ([]*models.PeerMatch, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, &NotFoundError{Message: "Course not found"}
	}

	current, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, &NotFoundError{Message: "User not found"}
	}

	currentProgress, err := s.progress.Get(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if currentProgress == nil {
		currentProgress = &models.CourseProgress{UserID: userID, CourseID: courseID}
	}

	candidates, err := s.users.ListAvailableCandidates(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var matches []*models.PeerMatch
	for _, candidate := range candidates {
		candidateProgress, err := s.progress.Get(ctx, candidate.ID, courseID)
		if err != nil {
			return nil, err
		}
		if candidateProgress == nil {
			// Never opened the course: skip, do not score as zero.
			continue
		}

		score, factors := ScoreCompatibility(current, candidate, course, currentProgress, candidateProgress, now)
		if score < s.minScore {
			continue
		}

		matches = append(matches, &models.PeerMatch{
			UserID:       candidate.ID,
			FullName:     candidate.FullName,
			AvatarURL:    candidate.AvatarURL,
			Technologies: candidate.Technologies,
			Score:        score,
			Factors:      factors,
			IsOnline:     now.Sub(candidate.LastSeenAt) <= onlineWindow,
			LastSeenAt:   candidate.LastSeenAt,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > s.maxResults {
		matches = matches[:s.maxResults]
	}
	return matches, nil
}

// ScoreCompatibility computes the 0-100 compatibility score between two
// learners for a course, plus the human-readable factors behind it. Pure: no
// I/O, order-independent component sum.
func ScoreCompatibility(current, candidate *models.User, course *models.Course, currentProgress, candidateProgress *models.CourseProgress, now time.Time) (int, []string) {
	var score float64
	var factors []string

	// Technology overlap: fraction of the course's required technologies both
	// learners have earned.
	required := normalizeTechNames(course.Technologies)
	if len(required) > 0 {
		currentSet := userTechSet(current)
		candidateSet := userTechSet(candidate)
		common := 0
		for _, tech := range required {
			if currentSet[tech] && candidateSet[tech] {
				common++
			}
		}
		if common > 0 {
			score += float64(common) / float64(len(required)) * techOverlapCap
			factors = append(factors, fmt.Sprintf("%d shared course technologies", common))
		}
	}

	// Progress similarity: completed-level counts within 3 of each other.
	diff := currentProgress.CompletedLevelCount() - candidateProgress.CompletedLevelCount()
	if diff < 0 {
		diff = -diff
	}
	if diff <= 3 {
		contribution := progressCap - float64(diff)*5
		if contribution > 0 {
			score += contribution
			factors = append(factors, "Similar progress in this course")
		}
	}

	// Engagement similarity: ratio of time spent on the course.
	timeA := currentProgress.TotalTimeMinutes
	timeB := candidateProgress.TotalTimeMinutes
	if timeA > 0 && timeB > 0 {
		lo, hi := timeA, timeB
		if lo > hi {
			lo, hi = hi, lo
		}
		score += float64(lo) / float64(hi) * engagementCap
		factors = append(factors, "Comparable study pace")
	}

	// Recency: candidate touched the course within the last week.
	daysSince := int(now.Sub(candidateProgress.LastAccessedAt).Hours() / 24)
	if daysSince >= 0 && daysSince <= recencyDays {
		contribution := recencyCap - float64(daysSince)
		if contribution > 0 {
			score += contribution
			factors = append(factors, "Recently active in this course")
		}
	}

	return int(math.Round(score)), factors
}

func normalizeTechNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

func userTechSet(u *models.User) map[string]bool {
	set := make(map[string]bool, len(u.Technologies))
	for _, t := range u.Technologies {
		set[strings.ToLower(strings.TrimSpace(t.Name))] = true
	}
	return set
}
