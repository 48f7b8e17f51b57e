package mocks

import (
	"context"

	"tale-server/internal/models"
	"tale-server/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock TraversalService
type TraversalService struct {
	mock.Mock
}

func (m *TraversalService) StartSession(ctx context.Context, storyID uuid.UUID, subjectID *uuid.UUID) (*service.StartResult, error) {
	args := m.Called(ctx, storyID, subjectID)
	result, _ := args.Get(0).(*service.StartResult)
	return result, args.Error(1)
}

func (m *TraversalService) ResolveChoice(ctx context.Context, sessionID, choiceID uuid.UUID) (*service.ChoiceResult, error) {
	args := m.Called(ctx, sessionID, choiceID)
	result, _ := args.Get(0).(*service.ChoiceResult)
	return result, args.Error(1)
}

func (m *TraversalService) GetHistory(ctx context.Context, sessionID uuid.UUID) (*service.History, error) {
	args := m.Called(ctx, sessionID)
	history, _ := args.Get(0).(*service.History)
	return history, args.Error(1)
}

// Mock AnalyticsService
type AnalyticsService struct {
	mock.Mock
}

func (m *AnalyticsService) PathStats(ctx context.Context, sessionID uuid.UUID) (*models.PathStats, error) {
	args := m.Called(ctx, sessionID)
	stats, _ := args.Get(0).(*models.PathStats)
	return stats, args.Error(1)
}

func (m *AnalyticsService) ListActivities(ctx context.Context, subjectID uuid.UUID) ([]*models.StoryActivity, error) {
	args := m.Called(ctx, subjectID)
	activities, _ := args.Get(0).([]*models.StoryActivity)
	return activities, args.Error(1)
}

// Mock EndingService
type EndingService struct {
	mock.Mock
}

func (m *EndingService) ListUnlockedEndings(ctx context.Context, subjectID, storyID uuid.UUID) ([]*models.UnlockedEndingInfo, error) {
	args := m.Called(ctx, subjectID, storyID)
	infos, _ := args.Get(0).([]*models.UnlockedEndingInfo)
	return infos, args.Error(1)
}

func (m *EndingService) ListAllEndings(ctx context.Context, storyID uuid.UUID, subjectID *uuid.UUID) ([]*models.EndingStatus, error) {
	args := m.Called(ctx, storyID, subjectID)
	endings, _ := args.Get(0).([]*models.EndingStatus)
	return endings, args.Error(1)
}
