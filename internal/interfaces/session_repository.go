package interfaces

import (
	"context"

	"tale-server/internal/models"

	"github.com/google/uuid"
)

// SessionRepository owns Session and Step records. Methods take a DBTX
// querier so the traversal engine can compose them inside a single
// transaction; pass the pool for standalone reads.
//
//go:generate mockery --name SessionRepository --output ./mocks --outpkg mocks --case=underscore
type SessionRepository interface {
	// Create inserts a new session row. Returns
	// models.ErrActiveSessionExists if the partial unique index on
	// (subject_id, story_id) for non-completed sessions is violated.
	Create(ctx context.Context, querier DBTX, session *models.Session) error

	// GetByID retrieves a session by its ID.
	// Returns models.ErrNotFound if it does not exist.
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Session, error)

	// FindActive looks up the single non-completed session for a
	// subject and story. Returns models.ErrNotFound if there is none.
	FindActive(ctx context.Context, querier DBTX, subjectID, storyID uuid.UUID) (*models.Session, error)

	// LockForUpdate takes a row lock on the session inside the caller's
	// transaction, serializing concurrent step appends per session.
	LockForUpdate(ctx context.Context, querier DBTX, id uuid.UUID) error

	// MaxStepOrder returns the highest step order recorded for the
	// session, 0 if the session has no steps yet.
	MaxStepOrder(ctx context.Context, querier DBTX, sessionID uuid.UUID) (int, error)

	// AppendStep inserts one step. The (session_id, ord) primary key is
	// the last-resort guard against order collisions; a violation is
	// reported as models.ErrStepOrderConflict.
	AppendStep(ctx context.Context, querier DBTX, step *models.Step) error

	// UpdatePosition persists CurrentPageID, Completed, EndPageID,
	// CompletedAt and UpdatedAt of the session.
	UpdatePosition(ctx context.Context, querier DBTX, session *models.Session) error

	// ListSteps returns the session's steps ordered by ord ascending,
	// each joined with the page's end flag and label.
	ListSteps(ctx context.Context, querier DBTX, sessionID uuid.UUID) ([]*models.Step, error)

	// ListPathsByStory returns the ordered page-id sequence of every
	// session of the story, for the similarity computation.
	ListPathsByStory(ctx context.Context, querier DBTX, storyID uuid.UUID) ([]models.SessionPath, error)

	// CountCompletedByStory returns how many sessions of the story are
	// completed.
	CountCompletedByStory(ctx context.Context, querier DBTX, storyID uuid.UUID) (int, error)

	// CountCompletedByEnding returns how many completed sessions of the
	// story finished on the given end page.
	CountCompletedByEnding(ctx context.Context, querier DBTX, storyID, endPageID uuid.UUID) (int, error)

	// ListBySubject returns every session belonging to the subject,
	// most recently updated first.
	ListBySubject(ctx context.Context, querier DBTX, subjectID uuid.UUID) ([]*models.Session, error)
}
