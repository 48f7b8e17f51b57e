package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Compile-time check
var _ interfaces.SessionRepository = (*pgSessionRepository)(nil)

const createSessionQuery = `
INSERT INTO sessions (id, subject_id, story_id, current_page_id, completed, started_at, updated_at)
VALUES ($1, $2, $3, $4, FALSE, $5, $5)`

const getSessionQuery = `
SELECT id, subject_id, story_id, current_page_id, completed, end_page_id,
       started_at, completed_at, updated_at
FROM sessions
WHERE id = $1`

const findActiveSessionQuery = `
SELECT id, subject_id, story_id, current_page_id, completed, end_page_id,
       started_at, completed_at, updated_at
FROM sessions
WHERE subject_id = $1 AND story_id = $2 AND NOT completed`

const lockSessionQuery = `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`

const maxStepOrderQuery = `SELECT COALESCE(MAX(ord), 0) FROM steps WHERE session_id = $1`

const appendStepQuery = `
INSERT INTO steps (session_id, page_id, choice_id, ord, created_at)
VALUES ($1, $2, $3, $4, $5)`

const updateSessionPositionQuery = `
UPDATE sessions
SET current_page_id = $2, completed = $3, end_page_id = $4, completed_at = $5, updated_at = $6
WHERE id = $1`

const listStepsQuery = `
SELECT s.session_id, s.page_id, s.choice_id, s.ord, s.created_at,
       p.is_end AS page_is_end, p.end_label AS page_end_label
FROM steps s
JOIN pages p ON p.id = s.page_id
WHERE s.session_id = $1
ORDER BY s.ord ASC`

const listPathsByStoryQuery = `
SELECT st.session_id, st.page_id
FROM steps st
JOIN sessions s ON s.id = st.session_id
WHERE s.story_id = $1
ORDER BY st.session_id, st.ord ASC`

const countCompletedByStoryQuery = `
SELECT COUNT(*) FROM sessions WHERE story_id = $1 AND completed`

const countCompletedByEndingQuery = `
SELECT COUNT(*) FROM sessions WHERE story_id = $1 AND completed AND end_page_id = $2`

const listSessionsBySubjectQuery = `
SELECT id, subject_id, story_id, current_page_id, completed, end_page_id,
       started_at, completed_at, updated_at
FROM sessions
WHERE subject_id = $1
ORDER BY updated_at DESC`

// pgSessionRepository реализует интерфейс SessionRepository для PostgreSQL.
type pgSessionRepository struct {
	logger *zap.Logger
}

// NewPgSessionRepository создает новый экземпляр репозитория.
// Querier передается в каждый метод, чтобы методы могли работать как с
// пулом, так и внутри транзакции движка.
func NewPgSessionRepository(logger *zap.Logger) interfaces.SessionRepository {
	return &pgSessionRepository{
		logger: logger.Named("PgSessionRepo"),
	}
}

// Create inserts a new session row. The partial unique index
// uniq_active_session enforces the one-active-session invariant; a
// violation is reported as models.ErrActiveSessionExists so the engine
// can re-read the winning session.
func (r *pgSessionRepository) Create(ctx context.Context, querier interfaces.DBTX, session *models.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now().UTC()
	session.StartedAt = now
	session.UpdatedAt = now

	logFields := []zap.Field{
		zap.String("sessionID", session.ID.String()),
		zap.String("storyID", session.StoryID.String()),
	}
	if session.SubjectID != nil {
		logFields = append(logFields, zap.String("subjectID", session.SubjectID.String()))
	}

	_, err := querier.Exec(ctx, createSessionQuery,
		session.ID, session.SubjectID, session.StoryID, session.CurrentPageID, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505": // unique_violation: активная сессия уже есть
				r.logger.Warn("Active session already exists (unique constraint violation)", logFields...)
				return models.ErrActiveSessionExists
			case "23503": // foreign_key_violation: история или страница не найдены
				r.logger.Warn("Story or page not found (foreign key violation)", logFields...)
				return models.ErrNotFound
			}
		}
		r.logger.Error("Failed to create session", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to create session: %w", err)
	}

	r.logger.Info("Session created", logFields...)
	return nil
}

// GetByID retrieves a session by its ID.
func (r *pgSessionRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Session, error) {
	session := &models.Session{}
	err := pgxscan.Get(ctx, querier, session, getSessionQuery, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get session", zap.String("sessionID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// FindActive looks up the non-completed session for (subject, story).
func (r *pgSessionRepository) FindActive(ctx context.Context, querier interfaces.DBTX, subjectID, storyID uuid.UUID) (*models.Session, error) {
	session := &models.Session{}
	err := pgxscan.Get(ctx, querier, session, findActiveSessionQuery, subjectID, storyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to find active session",
			zap.String("subjectID", subjectID.String()),
			zap.String("storyID", storyID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	return session, nil
}

// LockForUpdate locks the session row inside the caller's transaction.
func (r *pgSessionRepository) LockForUpdate(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) error {
	var locked uuid.UUID
	err := querier.QueryRow(ctx, lockSessionQuery, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to lock session: %w", err)
	}
	return nil
}

// MaxStepOrder returns the highest recorded step order, 0 for none.
func (r *pgSessionRepository) MaxStepOrder(ctx context.Context, querier interfaces.DBTX, sessionID uuid.UUID) (int, error) {
	var max int
	if err := querier.QueryRow(ctx, maxStepOrderQuery, sessionID).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max step order: %w", err)
	}
	return max, nil
}

// AppendStep inserts one step of the path log.
func (r *pgSessionRepository) AppendStep(ctx context.Context, querier interfaces.DBTX, step *models.Step) error {
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now().UTC()
	}
	_, err := querier.Exec(ctx, appendStepQuery,
		step.SessionID, step.PageID, step.ChoiceID, step.Order, step.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.Warn("Step order collision",
				zap.String("sessionID", step.SessionID.String()),
				zap.Int("order", step.Order))
			return models.ErrStepOrderConflict
		}
		r.logger.Error("Failed to append step",
			zap.String("sessionID", step.SessionID.String()),
			zap.Int("order", step.Order),
			zap.Error(err))
		return fmt.Errorf("failed to append step: %w", err)
	}
	return nil
}

// UpdatePosition persists the session's traversal position and
// completion state.
func (r *pgSessionRepository) UpdatePosition(ctx context.Context, querier interfaces.DBTX, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	cmdTag, err := querier.Exec(ctx, updateSessionPositionQuery,
		session.ID, session.CurrentPageID, session.Completed,
		session.EndPageID, session.CompletedAt, session.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to update session position",
			zap.String("sessionID", session.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update session position: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListSteps returns the path log ordered by ord ascending.
func (r *pgSessionRepository) ListSteps(ctx context.Context, querier interfaces.DBTX, sessionID uuid.UUID) ([]*models.Step, error) {
	var steps []*models.Step
	if err := pgxscan.Select(ctx, querier, &steps, listStepsQuery, sessionID); err != nil {
		r.logger.Error("Failed to list steps", zap.String("sessionID", sessionID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	if steps == nil {
		steps = []*models.Step{}
	}
	return steps, nil
}

// ListPathsByStory loads every session's ordered page sequence for the
// story in a single query; grouping happens here, not in SQL, because
// the rows arrive already ordered by (session_id, ord).
func (r *pgSessionRepository) ListPathsByStory(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID) ([]models.SessionPath, error) {
	rows, err := querier.Query(ctx, listPathsByStoryQuery, storyID)
	if err != nil {
		r.logger.Error("Failed to list paths by story", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list paths: %w", err)
	}
	defer rows.Close()

	paths := make([]models.SessionPath, 0)
	var current *models.SessionPath
	for rows.Next() {
		var sessionID, pageID uuid.UUID
		if err := rows.Scan(&sessionID, &pageID); err != nil {
			return nil, fmt.Errorf("failed to scan path row: %w", err)
		}
		if current == nil || current.SessionID != sessionID {
			paths = append(paths, models.SessionPath{SessionID: sessionID})
			current = &paths[len(paths)-1]
		}
		current.PageIDs = append(current.PageIDs, pageID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate path rows: %w", err)
	}
	return paths, nil
}

// CountCompletedByStory returns the number of completed sessions.
func (r *pgSessionRepository) CountCompletedByStory(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID) (int, error) {
	var count int
	if err := querier.QueryRow(ctx, countCompletedByStoryQuery, storyID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count completed sessions: %w", err)
	}
	return count, nil
}

// CountCompletedByEnding returns the number of completed sessions that
// finished on the given end page.
func (r *pgSessionRepository) CountCompletedByEnding(ctx context.Context, querier interfaces.DBTX, storyID, endPageID uuid.UUID) (int, error) {
	var count int
	if err := querier.QueryRow(ctx, countCompletedByEndingQuery, storyID, endPageID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count completed sessions by ending: %w", err)
	}
	return count, nil
}

// ListBySubject returns all of the subject's sessions, newest first.
func (r *pgSessionRepository) ListBySubject(ctx context.Context, querier interfaces.DBTX, subjectID uuid.UUID) ([]*models.Session, error) {
	var sessions []*models.Session
	if err := pgxscan.Select(ctx, querier, &sessions, listSessionsBySubjectQuery, subjectID); err != nil {
		r.logger.Error("Failed to list sessions by subject", zap.String("subjectID", subjectID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	return sessions, nil
}
