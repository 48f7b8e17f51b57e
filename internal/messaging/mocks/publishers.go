package mocks

import (
	"context"

	"tale-server/internal/models"

	"github.com/stretchr/testify/mock"
)

// Mock SessionEventPublisher
type SessionEventPublisher struct {
	mock.Mock
}

func (m *SessionEventPublisher) PublishSessionCompleted(ctx context.Context, event models.SessionCompletedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
