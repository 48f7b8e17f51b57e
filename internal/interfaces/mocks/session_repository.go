package mocks

import (
	"context"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock SessionRepository
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) Create(ctx context.Context, querier interfaces.DBTX, session *models.Session) error {
	args := m.Called(ctx, querier, session)
	return args.Error(0)
}

func (m *SessionRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Session, error) {
	args := m.Called(ctx, querier, id)
	session, _ := args.Get(0).(*models.Session)
	return session, args.Error(1)
}

func (m *SessionRepository) FindActive(ctx context.Context, querier interfaces.DBTX, subjectID, storyID uuid.UUID) (*models.Session, error) {
	args := m.Called(ctx, querier, subjectID, storyID)
	session, _ := args.Get(0).(*models.Session)
	return session, args.Error(1)
}

func (m *SessionRepository) LockForUpdate(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) error {
	args := m.Called(ctx, querier, id)
	return args.Error(0)
}

func (m *SessionRepository) MaxStepOrder(ctx context.Context, querier interfaces.DBTX, sessionID uuid.UUID) (int, error) {
	args := m.Called(ctx, querier, sessionID)
	return args.Int(0), args.Error(1)
}

func (m *SessionRepository) AppendStep(ctx context.Context, querier interfaces.DBTX, step *models.Step) error {
	args := m.Called(ctx, querier, step)
	return args.Error(0)
}

func (m *SessionRepository) UpdatePosition(ctx context.Context, querier interfaces.DBTX, session *models.Session) error {
	args := m.Called(ctx, querier, session)
	return args.Error(0)
}

func (m *SessionRepository) ListSteps(ctx context.Context, querier interfaces.DBTX, sessionID uuid.UUID) ([]*models.Step, error) {
	args := m.Called(ctx, querier, sessionID)
	steps, _ := args.Get(0).([]*models.Step)
	return steps, args.Error(1)
}

func (m *SessionRepository) ListPathsByStory(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID) ([]models.SessionPath, error) {
	args := m.Called(ctx, querier, storyID)
	paths, _ := args.Get(0).([]models.SessionPath)
	return paths, args.Error(1)
}

func (m *SessionRepository) CountCompletedByStory(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID) (int, error) {
	args := m.Called(ctx, querier, storyID)
	return args.Int(0), args.Error(1)
}

func (m *SessionRepository) CountCompletedByEnding(ctx context.Context, querier interfaces.DBTX, storyID, endPageID uuid.UUID) (int, error) {
	args := m.Called(ctx, querier, storyID, endPageID)
	return args.Int(0), args.Error(1)
}

func (m *SessionRepository) ListBySubject(ctx context.Context, querier interfaces.DBTX, subjectID uuid.UUID) ([]*models.Session, error) {
	args := m.Called(ctx, querier, subjectID)
	sessions, _ := args.Get(0).([]*models.Session)
	return sessions, args.Error(1)
}
