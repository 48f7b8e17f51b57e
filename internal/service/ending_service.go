package service

import (
	"context"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EndingService exposes the ending-unlock tracker to callers.
type EndingService interface {
	// ListUnlockedEndings returns the subject's unlocked endings for
	// the story, newest first, joined with display data.
	ListUnlockedEndings(ctx context.Context, subjectID, storyID uuid.UUID) ([]*models.UnlockedEndingInfo, error)

	// ListAllEndings returns every terminal page of the story flagged
	// with the unlock status for the subject (all false if nil).
	ListAllEndings(ctx context.Context, storyID uuid.UUID, subjectID *uuid.UUID) ([]*models.EndingStatus, error)
}

type endingServiceImpl struct {
	db         interfaces.DBTX
	storyRepo  interfaces.StoryRepository
	unlockRepo interfaces.UnlockedEndingRepository
	logger     *zap.Logger
}

// NewEndingService creates a new instance of EndingService.
func NewEndingService(
	db interfaces.DBTX,
	storyRepo interfaces.StoryRepository,
	unlockRepo interfaces.UnlockedEndingRepository,
	logger *zap.Logger,
) EndingService {
	return &endingServiceImpl{
		db:         db,
		storyRepo:  storyRepo,
		unlockRepo: unlockRepo,
		logger:     logger.Named("EndingService"),
	}
}

// ListUnlockedEndings returns the subject's unlocked endings.
func (s *endingServiceImpl) ListUnlockedEndings(ctx context.Context, subjectID, storyID uuid.UUID) ([]*models.UnlockedEndingInfo, error) {
	if _, err := s.storyRepo.GetStory(ctx, storyID); err != nil {
		return nil, err
	}
	return s.unlockRepo.ListUnlocked(ctx, s.db, subjectID, storyID)
}

// ListAllEndings returns every terminal page with unlock flags.
func (s *endingServiceImpl) ListAllEndings(ctx context.Context, storyID uuid.UUID, subjectID *uuid.UUID) ([]*models.EndingStatus, error) {
	if _, err := s.storyRepo.GetStory(ctx, storyID); err != nil {
		return nil, err
	}
	return s.unlockRepo.ListEndingsWithStatus(ctx, s.db, storyID, subjectID)
}
