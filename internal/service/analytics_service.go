package service

import (
	"context"
	"math"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// similarityNumerator/Denominator encode the 0.7 threshold. The
// comparison is done in integers (10*k >= 7*m) so the boundary is
// exact: 70% of positions matching is similar, 69.9% is not.
const (
	similarityNumerator   = 7
	similarityDenominator = 10
)

// AnalyticsService computes cross-session statistics from the full
// population of recorded sessions and steps of a story.
type AnalyticsService interface {
	// PathStats compares the session's page sequence against every
	// other session of the same story and, for completed sessions,
	// reports how popular its ending is.
	PathStats(ctx context.Context, sessionID uuid.UUID) (*models.PathStats, error)

	// ListActivities groups the subject's sessions by story and merges
	// in story display metadata.
	ListActivities(ctx context.Context, subjectID uuid.UUID) ([]*models.StoryActivity, error)
}

type analyticsServiceImpl struct {
	db          interfaces.DBTX
	sessionRepo interfaces.SessionRepository
	storyRepo   interfaces.StoryRepository
	logger      *zap.Logger
}

// NewAnalyticsService creates a new instance of AnalyticsService.
func NewAnalyticsService(
	db interfaces.DBTX,
	sessionRepo interfaces.SessionRepository,
	storyRepo interfaces.StoryRepository,
	logger *zap.Logger,
) AnalyticsService {
	return &analyticsServiceImpl{
		db:          db,
		sessionRepo: sessionRepo,
		storyRepo:   storyRepo,
		logger:      logger.Named("AnalyticsService"),
	}
}

// PathStats computes the path-similarity percentage for the session.
func (s *analyticsServiceImpl) PathStats(ctx context.Context, sessionID uuid.UUID) (*models.PathStats, error) {
	session, err := s.sessionRepo.GetByID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}

	paths, err := s.sessionRepo.ListPathsByStory(ctx, s.db, session.StoryID)
	if err != nil {
		return nil, err
	}

	var own []uuid.UUID
	others := make([]models.SessionPath, 0, len(paths))
	for _, p := range paths {
		if p.SessionID == sessionID {
			own = p.PageIDs
			continue
		}
		others = append(others, p)
	}

	similar := 0
	for _, other := range others {
		if isSimilarPath(own, other.PageIDs) {
			similar++
		}
	}

	stats := &models.PathStats{
		SessionID:             sessionID,
		PathSimilarityPercent: roundedPercent(similar, len(others)),
	}

	if session.Completed && session.EndPageID != nil {
		timesReached, err := s.sessionRepo.CountCompletedByEnding(ctx, s.db, session.StoryID, *session.EndPageID)
		if err != nil {
			return nil, err
		}
		totalCompleted, err := s.sessionRepo.CountCompletedByStory(ctx, s.db, session.StoryID)
		if err != nil {
			return nil, err
		}
		stats.EndStats = &models.EndingReachStats{
			TimesReached: timesReached,
			Percentage:   roundedPercent(timesReached, totalCompleted),
		}
	}

	s.logger.Debug("Computed path stats",
		zap.String("sessionID", sessionID.String()),
		zap.Int("otherSessions", len(others)),
		zap.Int("similar", similar))
	return stats, nil
}

// isSimilarPath reports whether at least 70% of the positions of the
// shorter sequence match positionally.
func isSimilarPath(p, q []uuid.UUID) bool {
	m := len(p)
	if len(q) < m {
		m = len(q)
	}
	if m == 0 {
		return false
	}
	matches := 0
	for i := 0; i < m; i++ {
		if p[i] == q[i] {
			matches++
		}
	}
	return matches*similarityDenominator >= m*similarityNumerator
}

// roundedPercent returns round(100*part/total), 0 when total is zero.
func roundedPercent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}

// ListActivities builds the per-story rollup of the subject's sessions.
func (s *analyticsServiceImpl) ListActivities(ctx context.Context, subjectID uuid.UUID) ([]*models.StoryActivity, error) {
	sessions, err := s.sessionRepo.ListBySubject(ctx, s.db, subjectID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return []*models.StoryActivity{}, nil
	}

	// Сессии приходят отсортированными по updated_at DESC, поэтому
	// порядок встреченных историй — от самых свежих к старым.
	order := make([]uuid.UUID, 0)
	byStory := make(map[uuid.UUID][]*models.Session)
	for _, sess := range sessions {
		if _, seen := byStory[sess.StoryID]; !seen {
			order = append(order, sess.StoryID)
		}
		byStory[sess.StoryID] = append(byStory[sess.StoryID], sess)
	}

	stories, err := s.storyRepo.ListStoriesByIDs(ctx, order)
	if err != nil {
		return nil, err
	}
	storyByID := make(map[uuid.UUID]*models.Story, len(stories))
	for _, st := range stories {
		storyByID[st.ID] = st
	}

	activities := make([]*models.StoryActivity, 0, len(order))
	for _, storyID := range order {
		story, ok := storyByID[storyID]
		if !ok {
			// История удалена каскадом, сессии еще не подчищены.
			continue
		}
		activity := &models.StoryActivity{
			StoryID:     storyID,
			Title:       story.Title,
			Description: story.Description,
			Theme:       story.Theme,
		}
		endings := make(map[uuid.UUID]struct{})
		for _, sess := range byStory[storyID] {
			if sess.Completed {
				activity.Completed = true
				if sess.EndPageID != nil {
					endings[*sess.EndPageID] = struct{}{}
				}
				continue
			}
			// Первая встреченная незавершенная сессия — самая свежая.
			if !activity.InProgress {
				activity.InProgress = true
				sessID := sess.ID
				updatedAt := sess.UpdatedAt
				activity.ActiveSessionID = &sessID
				activity.LastActivityAt = &updatedAt
			}
		}
		activity.EndingsReached = len(endings)
		activities = append(activities, activity)
	}
	return activities, nil
}
