package service_test

import (
	"context"
	"errors"
	"testing"

	interfaceMocks "tale-server/internal/interfaces/mocks"
	"tale-server/internal/models"
	"tale-server/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func newEndingService(t *testing.T) (service.EndingService, *interfaceMocks.StoryRepository, *interfaceMocks.UnlockedEndingRepository) {
	t.Helper()
	storyRepo := new(interfaceMocks.StoryRepository)
	unlockRepo := new(interfaceMocks.UnlockedEndingRepository)
	svc := service.NewEndingService(nil, storyRepo, unlockRepo, zap.NewNop())
	return svc, storyRepo, unlockRepo
}

func TestListUnlockedEndings(t *testing.T) {
	ctx := context.Background()
	subjectID := uuid.New()

	t.Run("Returns unlocked endings of the story", func(t *testing.T) {
		svc, storyRepo, unlockRepo := newEndingService(t)

		story := &models.Story{ID: uuid.New(), Status: models.StatusPublished}
		label := "Побег из леса"
		unlocked := []*models.UnlockedEndingInfo{
			{EndPageID: uuid.New(), Label: &label},
		}

		storyRepo.On("GetStory", ctx, story.ID).Return(story, nil).Once()
		unlockRepo.On("ListUnlocked", ctx, mock.Anything, subjectID, story.ID).Return(unlocked, nil).Once()

		result, err := svc.ListUnlockedEndings(ctx, subjectID, story.ID)

		assert.NoError(t, err)
		assert.Len(t, result, 1)
		assert.Equal(t, unlocked[0].EndPageID, result[0].EndPageID)
	})

	t.Run("Unknown story", func(t *testing.T) {
		svc, storyRepo, unlockRepo := newEndingService(t)

		storyID := uuid.New()
		storyRepo.On("GetStory", ctx, storyID).Return(nil, models.ErrNotFound).Once()

		result, err := svc.ListUnlockedEndings(ctx, subjectID, storyID)

		assert.Nil(t, result)
		assert.True(t, errors.Is(err, models.ErrNotFound))
		unlockRepo.AssertNotCalled(t, "ListUnlocked", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestListAllEndings(t *testing.T) {
	ctx := context.Background()

	t.Run("Flags endings for an authenticated subject", func(t *testing.T) {
		svc, storyRepo, unlockRepo := newEndingService(t)

		subjectID := uuid.New()
		story := &models.Story{ID: uuid.New(), Status: models.StatusPublished}
		endings := []*models.EndingStatus{
			{PageID: uuid.New(), IsUnlocked: true},
			{PageID: uuid.New(), IsUnlocked: false},
		}

		storyRepo.On("GetStory", ctx, story.ID).Return(story, nil).Once()
		unlockRepo.On("ListEndingsWithStatus", ctx, mock.Anything, story.ID, &subjectID).Return(endings, nil).Once()

		result, err := svc.ListAllEndings(ctx, story.ID, &subjectID)

		assert.NoError(t, err)
		assert.Len(t, result, 2)
		assert.True(t, result[0].IsUnlocked)
		assert.False(t, result[1].IsUnlocked)
	})

	t.Run("Anonymous subject sees everything locked", func(t *testing.T) {
		svc, storyRepo, unlockRepo := newEndingService(t)

		story := &models.Story{ID: uuid.New(), Status: models.StatusPublished}
		endings := []*models.EndingStatus{
			{PageID: uuid.New(), IsUnlocked: false},
		}

		storyRepo.On("GetStory", ctx, story.ID).Return(story, nil).Once()
		unlockRepo.On("ListEndingsWithStatus", ctx, mock.Anything, story.ID, (*uuid.UUID)(nil)).Return(endings, nil).Once()

		result, err := svc.ListAllEndings(ctx, story.ID, nil)

		assert.NoError(t, err)
		assert.Len(t, result, 1)
		assert.False(t, result[0].IsUnlocked)
	})
}
