package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	interfaceMocks "tale-server/internal/interfaces/mocks"
	"tale-server/internal/models"
	"tale-server/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func newAnalyticsService(t *testing.T) (service.AnalyticsService, *interfaceMocks.SessionRepository, *interfaceMocks.StoryRepository) {
	t.Helper()
	sessionRepo := new(interfaceMocks.SessionRepository)
	storyRepo := new(interfaceMocks.StoryRepository)
	svc := service.NewAnalyticsService(nil, sessionRepo, storyRepo, zap.NewNop())
	return svc, sessionRepo, storyRepo
}

// pathOf строит страницы пути из односимвольных меток: одинаковые метки
// дают одинаковые ID страниц.
func pathOf(pageByLabel map[byte]uuid.UUID, labels string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(labels))
	for i := 0; i < len(labels); i++ {
		id, ok := pageByLabel[labels[i]]
		if !ok {
			id = uuid.New()
			pageByLabel[labels[i]] = id
		}
		ids = append(ids, id)
	}
	return ids
}

func TestPathStats(t *testing.T) {
	ctx := context.Background()
	storyID := uuid.New()

	activeSession := func(id uuid.UUID) *models.Session {
		return &models.Session{ID: id, StoryID: storyID}
	}

	t.Run("Exactly 70 percent of positions matching is similar", func(t *testing.T) {
		svc, sessionRepo, _ := newAnalyticsService(t)

		pages := map[byte]uuid.UUID{}
		sessionID := uuid.New()
		otherID := uuid.New()

		// 7 совпадений из 10 позиций - ровно на пороге
		own := pathOf(pages, "ABCDEFGHIJ")
		other := pathOf(pages, "ABCDEFGXYZ")

		sessionRepo.On("GetByID", ctx, mock.Anything, sessionID).Return(activeSession(sessionID), nil).Once()
		sessionRepo.On("ListPathsByStory", ctx, mock.Anything, storyID).Return([]models.SessionPath{
			{SessionID: sessionID, PageIDs: own},
			{SessionID: otherID, PageIDs: other},
		}, nil).Once()

		stats, err := svc.PathStats(ctx, sessionID)

		assert.NoError(t, err)
		assert.Equal(t, 100, stats.PathSimilarityPercent)
		assert.Nil(t, stats.EndStats)
	})

	t.Run("Just under the threshold is not similar", func(t *testing.T) {
		svc, sessionRepo, _ := newAnalyticsService(t)

		pages := map[byte]uuid.UUID{}
		sessionID := uuid.New()

		// 2 совпадения из 3 - это 66.7%, ниже порога
		own := pathOf(pages, "ABC")
		other := pathOf(pages, "ABD")

		sessionRepo.On("GetByID", ctx, mock.Anything, sessionID).Return(activeSession(sessionID), nil).Once()
		sessionRepo.On("ListPathsByStory", ctx, mock.Anything, storyID).Return([]models.SessionPath{
			{SessionID: sessionID, PageIDs: own},
			{SessionID: uuid.New(), PageIDs: other},
		}, nil).Once()

		stats, err := svc.PathStats(ctx, sessionID)

		assert.NoError(t, err)
		assert.Equal(t, 0, stats.PathSimilarityPercent)
	})

	t.Run("Comparison uses the shorter sequence", func(t *testing.T) {
		svc, sessionRepo, _ := newAnalyticsService(t)

		pages := map[byte]uuid.UUID{}
		sessionID := uuid.New()

		// Короткий путь ABC против длинного ABCXYZ: 3 из 3 совпадают
		own := pathOf(pages, "ABC")
		other := pathOf(pages, "ABCXYZ")

		sessionRepo.On("GetByID", ctx, mock.Anything, sessionID).Return(activeSession(sessionID), nil).Once()
		sessionRepo.On("ListPathsByStory", ctx, mock.Anything, storyID).Return([]models.SessionPath{
			{SessionID: sessionID, PageIDs: own},
			{SessionID: uuid.New(), PageIDs: other},
		}, nil).Once()

		stats, err := svc.PathStats(ctx, sessionID)

		assert.NoError(t, err)
		assert.Equal(t, 100, stats.PathSimilarityPercent)
	})

	t.Run("Percentage is rounded over all other sessions", func(t *testing.T) {
		svc, sessionRepo, _ := newAnalyticsService(t)

		pages := map[byte]uuid.UUID{}
		sessionID := uuid.New()

		own := pathOf(pages, "ABC")
		similar := pathOf(pages, "ABC")
		different := pathOf(pages, "XYZ")

		sessionRepo.On("GetByID", ctx, mock.Anything, sessionID).Return(activeSession(sessionID), nil).Once()
		sessionRepo.On("ListPathsByStory", ctx, mock.Anything, storyID).Return([]models.SessionPath{
			{SessionID: sessionID, PageIDs: own},
			{SessionID: uuid.New(), PageIDs: similar},
			{SessionID: uuid.New(), PageIDs: different},
			{SessionID: uuid.New(), PageIDs: different},
		}, nil).Once()

		stats, err := svc.PathStats(ctx, sessionID)

		assert.NoError(t, err)
		// 1 из 3 - округляется до 33
		assert.Equal(t, 33, stats.PathSimilarityPercent)
	})

	t.Run("No other sessions yields zero percent", func(t *testing.T) {
		svc, sessionRepo, _ := newAnalyticsService(t)

		pages := map[byte]uuid.UUID{}
		sessionID := uuid.New()

		sessionRepo.On("GetByID", ctx, mock.Anything, sessionID).Return(activeSession(sessionID), nil).Once()
		sessionRepo.On("ListPathsByStory", ctx, mock.Anything, storyID).Return([]models.SessionPath{
			{SessionID: sessionID, PageIDs: pathOf(pages, "ABC")},
		}, nil).Once()

		stats, err := svc.PathStats(ctx, sessionID)

		assert.NoError(t, err)
		assert.Equal(t, 0, stats.PathSimilarityPercent)
	})

	t.Run("Completed session reports ending popularity", func(t *testing.T) {
		svc, sessionRepo, _ := newAnalyticsService(t)

		pages := map[byte]uuid.UUID{}
		sessionID := uuid.New()
		endPageID := uuid.New()
		completed := &models.Session{
			ID:        sessionID,
			StoryID:   storyID,
			Completed: true,
			EndPageID: &endPageID,
		}

		sessionRepo.On("GetByID", ctx, mock.Anything, sessionID).Return(completed, nil).Once()
		sessionRepo.On("ListPathsByStory", ctx, mock.Anything, storyID).Return([]models.SessionPath{
			{SessionID: sessionID, PageIDs: pathOf(pages, "ABC")},
		}, nil).Once()
		sessionRepo.On("CountCompletedByEnding", ctx, mock.Anything, storyID, endPageID).Return(3, nil).Once()
		sessionRepo.On("CountCompletedByStory", ctx, mock.Anything, storyID).Return(8, nil).Once()

		stats, err := svc.PathStats(ctx, sessionID)

		assert.NoError(t, err)
		assert.NotNil(t, stats.EndStats)
		assert.Equal(t, 3, stats.EndStats.TimesReached)
		// 3 из 8 - округляется до 38
		assert.Equal(t, 38, stats.EndStats.Percentage)
	})

	t.Run("Unknown session", func(t *testing.T) {
		svc, sessionRepo, _ := newAnalyticsService(t)

		sessionID := uuid.New()
		sessionRepo.On("GetByID", ctx, mock.Anything, sessionID).Return(nil, models.ErrNotFound).Once()

		stats, err := svc.PathStats(ctx, sessionID)

		assert.Nil(t, stats)
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})
}

func TestListActivities(t *testing.T) {
	ctx := context.Background()
	subjectID := uuid.New()

	t.Run("Groups sessions per story with ending count", func(t *testing.T) {
		svc, sessionRepo, storyRepo := newAnalyticsService(t)

		storyA := &models.Story{ID: uuid.New(), Title: "Лес теней"}
		storyB := &models.Story{ID: uuid.New(), Title: "Туманный город"}
		endX := uuid.New()
		endY := uuid.New()

		now := time.Now().UTC()
		activeID := uuid.New()
		sessions := []*models.Session{
			// Самая свежая - незавершенная сессия истории A
			{ID: activeID, StoryID: storyA.ID, SubjectID: &subjectID, UpdatedAt: now},
			// Два завершения истории A с разными концовками
			{ID: uuid.New(), StoryID: storyA.ID, SubjectID: &subjectID, Completed: true, EndPageID: &endX, UpdatedAt: now.Add(-time.Hour)},
			{ID: uuid.New(), StoryID: storyA.ID, SubjectID: &subjectID, Completed: true, EndPageID: &endY, UpdatedAt: now.Add(-2 * time.Hour)},
			// Повторное достижение той же концовки в истории B
			{ID: uuid.New(), StoryID: storyB.ID, SubjectID: &subjectID, Completed: true, EndPageID: &endX, UpdatedAt: now.Add(-3 * time.Hour)},
			{ID: uuid.New(), StoryID: storyB.ID, SubjectID: &subjectID, Completed: true, EndPageID: &endX, UpdatedAt: now.Add(-4 * time.Hour)},
		}

		sessionRepo.On("ListBySubject", ctx, mock.Anything, subjectID).Return(sessions, nil).Once()
		storyRepo.On("ListStoriesByIDs", ctx, []uuid.UUID{storyA.ID, storyB.ID}).Return([]*models.Story{storyA, storyB}, nil).Once()

		activities, err := svc.ListActivities(ctx, subjectID)

		assert.NoError(t, err)
		assert.Len(t, activities, 2)

		// Порядок: по свежести последней активности
		a := activities[0]
		assert.Equal(t, storyA.ID, a.StoryID)
		assert.Equal(t, "Лес теней", a.Title)
		assert.True(t, a.Completed)
		assert.True(t, a.InProgress)
		assert.Equal(t, 2, a.EndingsReached)
		assert.NotNil(t, a.ActiveSessionID)
		assert.Equal(t, activeID, *a.ActiveSessionID)
		assert.NotNil(t, a.LastActivityAt)

		b := activities[1]
		assert.Equal(t, storyB.ID, b.StoryID)
		assert.True(t, b.Completed)
		assert.False(t, b.InProgress)
		// Одна и та же концовка дважды считается один раз
		assert.Equal(t, 1, b.EndingsReached)
		assert.Nil(t, b.ActiveSessionID)
	})

	t.Run("Sessions of deleted stories are skipped", func(t *testing.T) {
		svc, sessionRepo, storyRepo := newAnalyticsService(t)

		story := &models.Story{ID: uuid.New(), Title: "Лес теней"}
		deletedStoryID := uuid.New()
		sessions := []*models.Session{
			{ID: uuid.New(), StoryID: deletedStoryID, SubjectID: &subjectID},
			{ID: uuid.New(), StoryID: story.ID, SubjectID: &subjectID},
		}

		sessionRepo.On("ListBySubject", ctx, mock.Anything, subjectID).Return(sessions, nil).Once()
		storyRepo.On("ListStoriesByIDs", ctx, []uuid.UUID{deletedStoryID, story.ID}).Return([]*models.Story{story}, nil).Once()

		activities, err := svc.ListActivities(ctx, subjectID)

		assert.NoError(t, err)
		assert.Len(t, activities, 1)
		assert.Equal(t, story.ID, activities[0].StoryID)
	})

	t.Run("No sessions yields an empty list", func(t *testing.T) {
		svc, sessionRepo, storyRepo := newAnalyticsService(t)

		sessionRepo.On("ListBySubject", ctx, mock.Anything, subjectID).Return([]*models.Session{}, nil).Once()

		activities, err := svc.ListActivities(ctx, subjectID)

		assert.NoError(t, err)
		assert.Empty(t, activities)
		storyRepo.AssertNotCalled(t, "ListStoriesByIDs", mock.Anything, mock.Anything)
	})
}
