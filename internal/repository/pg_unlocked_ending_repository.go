package repository

import (
	"context"
	"errors"
	"fmt"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Compile-time check
var _ interfaces.UnlockedEndingRepository = (*pgUnlockedEndingRepository)(nil)

// ON CONFLICT DO NOTHING делает повторный анлок тихим no-op.
const unlockEndingQuery = `
INSERT INTO unlocked_endings (subject_id, story_id, end_page_id, unlocked_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (subject_id, story_id, end_page_id) DO NOTHING`

const listUnlockedQuery = `
SELECT ue.end_page_id, p.end_label AS label, p.illustration, p.times_completed, ue.unlocked_at
FROM unlocked_endings ue
JOIN pages p ON p.id = ue.end_page_id
WHERE ue.subject_id = $1 AND ue.story_id = $2
ORDER BY ue.unlocked_at DESC`

const listEndingsWithStatusQuery = `
SELECT p.id AS page_id, p.end_label AS label, p.illustration, p.times_completed,
       (ue.end_page_id IS NOT NULL) AS is_unlocked
FROM pages p
LEFT JOIN unlocked_endings ue
       ON ue.end_page_id = p.id AND ue.subject_id = $2
WHERE p.story_id = $1 AND p.is_end
ORDER BY p.id`

// pgUnlockedEndingRepository реализует UnlockedEndingRepository для PostgreSQL.
type pgUnlockedEndingRepository struct {
	logger *zap.Logger
}

// NewPgUnlockedEndingRepository создает новый экземпляр репозитория.
func NewPgUnlockedEndingRepository(logger *zap.Logger) interfaces.UnlockedEndingRepository {
	return &pgUnlockedEndingRepository{
		logger: logger.Named("PgUnlockedEndingRepo"),
	}
}

// Unlock inserts the (subject, story, endPage) triple, ignoring
// duplicates.
func (r *pgUnlockedEndingRepository) Unlock(ctx context.Context, querier interfaces.DBTX, subjectID, storyID, endPageID uuid.UUID) error {
	logFields := []zap.Field{
		zap.String("subjectID", subjectID.String()),
		zap.String("storyID", storyID.String()),
		zap.String("endPageID", endPageID.String()),
	}

	cmdTag, err := querier.Exec(ctx, unlockEndingQuery, subjectID, storyID, endPageID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			r.logger.Warn("Ending page not found (foreign key violation)", logFields...)
			return models.ErrNotFound
		}
		r.logger.Error("Failed to unlock ending", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to unlock ending: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		r.logger.Debug("Ending already unlocked", logFields...)
	} else {
		r.logger.Info("Ending unlocked", logFields...)
	}
	return nil
}

// ListUnlocked returns the subject's unlocked endings for the story,
// newest first.
func (r *pgUnlockedEndingRepository) ListUnlocked(ctx context.Context, querier interfaces.DBTX, subjectID, storyID uuid.UUID) ([]*models.UnlockedEndingInfo, error) {
	var endings []*models.UnlockedEndingInfo
	if err := pgxscan.Select(ctx, querier, &endings, listUnlockedQuery, subjectID, storyID); err != nil {
		r.logger.Error("Failed to list unlocked endings",
			zap.String("subjectID", subjectID.String()),
			zap.String("storyID", storyID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list unlocked endings: %w", err)
	}
	if endings == nil {
		endings = []*models.UnlockedEndingInfo{}
	}
	return endings, nil
}

// ListEndingsWithStatus returns every terminal page of the story with
// the unlock flag for the subject. A nil subject yields all false.
func (r *pgUnlockedEndingRepository) ListEndingsWithStatus(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID, subjectID *uuid.UUID) ([]*models.EndingStatus, error) {
	// NULL subject never matches the join, so is_unlocked scans false.
	var endings []*models.EndingStatus
	if err := pgxscan.Select(ctx, querier, &endings, listEndingsWithStatusQuery, storyID, subjectID); err != nil {
		r.logger.Error("Failed to list endings with status",
			zap.String("storyID", storyID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list endings: %w", err)
	}
	if endings == nil {
		endings = []*models.EndingStatus{}
	}
	return endings, nil
}
