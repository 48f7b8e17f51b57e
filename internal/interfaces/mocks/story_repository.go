package mocks

import (
	"context"

	"tale-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock StoryRepository
type StoryRepository struct {
	mock.Mock
}

func (m *StoryRepository) GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	args := m.Called(ctx, id)
	story, _ := args.Get(0).(*models.Story)
	return story, args.Error(1)
}

func (m *StoryRepository) GetPage(ctx context.Context, id uuid.UUID) (*models.Page, error) {
	args := m.Called(ctx, id)
	page, _ := args.Get(0).(*models.Page)
	return page, args.Error(1)
}

func (m *StoryRepository) ListStoriesByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Story, error) {
	args := m.Called(ctx, ids)
	stories, _ := args.Get(0).([]*models.Story)
	return stories, args.Error(1)
}

func (m *StoryRepository) IncrementStoryPlays(ctx context.Context, storyID uuid.UUID) error {
	args := m.Called(ctx, storyID)
	return args.Error(0)
}

func (m *StoryRepository) IncrementStoryCompletions(ctx context.Context, storyID uuid.UUID) error {
	args := m.Called(ctx, storyID)
	return args.Error(0)
}

func (m *StoryRepository) IncrementPageReached(ctx context.Context, pageID uuid.UUID) error {
	args := m.Called(ctx, pageID)
	return args.Error(0)
}

func (m *StoryRepository) IncrementPageCompleted(ctx context.Context, pageID uuid.UUID) error {
	args := m.Called(ctx, pageID)
	return args.Error(0)
}
