package interfaces

import (
	"context"

	"tale-server/internal/models"

	"github.com/google/uuid"
)

// UnlockedEndingRepository is the idempotent set of
// (subject, story, ending page) triples.
//
//go:generate mockery --name UnlockedEndingRepository --output ./mocks --outpkg mocks --case=underscore
type UnlockedEndingRepository interface {
	// Unlock inserts the triple. Repeated calls for the same triple are
	// silent no-ops.
	Unlock(ctx context.Context, querier DBTX, subjectID, storyID, endPageID uuid.UUID) error

	// ListUnlocked returns the subject's unlocked endings for the
	// story, joined with the ending page's label, illustration and
	// completion counter, ordered by unlocked_at descending.
	ListUnlocked(ctx context.Context, querier DBTX, subjectID, storyID uuid.UUID) ([]*models.UnlockedEndingInfo, error)

	// ListEndingsWithStatus returns every terminal page of the story
	// flagged with the unlock status for the given subject. A nil
	// subject yields all flags false.
	ListEndingsWithStatus(ctx context.Context, querier DBTX, storyID uuid.UUID, subjectID *uuid.UUID) ([]*models.EndingStatus, error)
}
