package interfaces

import (
	"context"

	"tale-server/internal/models"

	"github.com/google/uuid"
)

// StoryRepository is the read-only accessor for the narrative graph
// owned by the external content store, plus the atomic stat-counter
// increments the traversal engine is allowed to perform.
//
//go:generate mockery --name StoryRepository --output ./mocks --outpkg mocks --case=underscore
type StoryRepository interface {
	// GetStory retrieves a story by its ID.
	// Returns models.ErrNotFound if it does not exist.
	GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error)

	// GetPage retrieves a page with its choices ordered by ord.
	// Returns models.ErrNotFound if it does not exist.
	GetPage(ctx context.Context, id uuid.UUID) (*models.Page, error)

	// ListStoriesByIDs retrieves several stories at once for display
	// merges. Missing IDs are silently skipped.
	ListStoriesByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Story, error)

	// Counter increments. All of them are single atomic UPDATEs at the
	// store level; callers treat failures as best-effort.
	IncrementStoryPlays(ctx context.Context, storyID uuid.UUID) error
	IncrementStoryCompletions(ctx context.Context, storyID uuid.UUID) error
	IncrementPageReached(ctx context.Context, pageID uuid.UUID) error
	IncrementPageCompleted(ctx context.Context, pageID uuid.UUID) error
}
