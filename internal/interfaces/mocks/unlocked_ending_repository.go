package mocks

import (
	"context"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock UnlockedEndingRepository
type UnlockedEndingRepository struct {
	mock.Mock
}

func (m *UnlockedEndingRepository) Unlock(ctx context.Context, querier interfaces.DBTX, subjectID, storyID, endPageID uuid.UUID) error {
	args := m.Called(ctx, querier, subjectID, storyID, endPageID)
	return args.Error(0)
}

func (m *UnlockedEndingRepository) ListUnlocked(ctx context.Context, querier interfaces.DBTX, subjectID, storyID uuid.UUID) ([]*models.UnlockedEndingInfo, error) {
	args := m.Called(ctx, querier, subjectID, storyID)
	infos, _ := args.Get(0).([]*models.UnlockedEndingInfo)
	return infos, args.Error(1)
}

func (m *UnlockedEndingRepository) ListEndingsWithStatus(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID, subjectID *uuid.UUID) ([]*models.EndingStatus, error) {
	args := m.Called(ctx, querier, storyID, subjectID)
	endings, _ := args.Get(0).([]*models.EndingStatus)
	return endings, args.Error(1)
}
