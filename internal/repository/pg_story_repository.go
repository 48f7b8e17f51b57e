package repository

import (
	"context"
	"errors"
	"fmt"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Compile-time check
var _ interfaces.StoryRepository = (*pgStoryRepository)(nil)

const getStoryQuery = `
SELECT id, title, description, theme, status, is_suspended, start_page_id,
       total_plays, total_completions, created_at, updated_at
FROM stories
WHERE id = $1`

const listStoriesByIDsQuery = `
SELECT id, title, description, theme, status, is_suspended, start_page_id,
       total_plays, total_completions, created_at, updated_at
FROM stories
WHERE id = ANY($1)`

const getPageQuery = `
SELECT id, story_id, content, is_end, end_label, illustration,
       times_reached, times_completed
FROM pages
WHERE id = $1`

const getChoicesQuery = `
SELECT id, page_id, text, target_page_id, ord, dice_threshold, failure_page_id
FROM choices
WHERE page_id = $1
ORDER BY ord ASC`

// Counter increments are single atomic UPDATEs so concurrent play never
// loses updates.
const (
	incrementStoryPlaysQuery       = `UPDATE stories SET total_plays = total_plays + 1, updated_at = NOW() WHERE id = $1`
	incrementStoryCompletionsQuery = `UPDATE stories SET total_completions = total_completions + 1, updated_at = NOW() WHERE id = $1`
	incrementPageReachedQuery      = `UPDATE pages SET times_reached = times_reached + 1 WHERE id = $1`
	incrementPageCompletedQuery    = `UPDATE pages SET times_completed = times_completed + 1 WHERE id = $1`
)

// pgStoryRepository реализует интерфейс StoryRepository для PostgreSQL.
type pgStoryRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgStoryRepository создает новый экземпляр репозитория.
func NewPgStoryRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.StoryRepository {
	return &pgStoryRepository{
		db:     db,
		logger: logger.Named("PgStoryRepo"),
	}
}

// GetStory retrieves a story by its ID.
func (r *pgStoryRepository) GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	story := &models.Story{}
	logFields := []zap.Field{zap.String("storyID", id.String())}

	err := r.db.QueryRow(ctx, getStoryQuery, id).Scan(
		&story.ID,
		&story.Title,
		&story.Description,
		&story.Theme,
		&story.Status,
		&story.IsSuspended,
		&story.StartPageID,
		&story.TotalPlays,
		&story.TotalCompletions,
		&story.CreatedAt,
		&story.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get story", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("failed to get story: %w", err)
	}

	r.logger.Debug("Retrieved story", logFields...)
	return story, nil
}

// ListStoriesByIDs retrieves several stories at once. Missing IDs are skipped.
func (r *pgStoryRepository) ListStoriesByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Story, error) {
	if len(ids) == 0 {
		return []*models.Story{}, nil
	}
	var stories []*models.Story
	if err := pgxscan.Select(ctx, r.db, &stories, listStoriesByIDsQuery, ids); err != nil {
		r.logger.Error("Failed to list stories by ids", zap.Int("count", len(ids)), zap.Error(err))
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	return stories, nil
}

// GetPage retrieves a page together with its ordered choices.
func (r *pgStoryRepository) GetPage(ctx context.Context, id uuid.UUID) (*models.Page, error) {
	page := &models.Page{}
	logFields := []zap.Field{zap.String("pageID", id.String())}

	err := r.db.QueryRow(ctx, getPageQuery, id).Scan(
		&page.ID,
		&page.StoryID,
		&page.Content,
		&page.IsEnd,
		&page.EndLabel,
		&page.Illustration,
		&page.TimesReached,
		&page.TimesCompleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get page", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("failed to get page: %w", err)
	}

	// Концевые страницы не имеют выборов, лишний запрос не нужен.
	if page.IsEnd {
		page.Choices = []models.Choice{}
		return page, nil
	}

	var choices []models.Choice
	if err := pgxscan.Select(ctx, r.db, &choices, getChoicesQuery, id); err != nil {
		r.logger.Error("Failed to get page choices", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("failed to get page choices: %w", err)
	}
	page.Choices = choices

	r.logger.Debug("Retrieved page", append(logFields, zap.Int("choices", len(choices)))...)
	return page, nil
}

// IncrementStoryPlays bumps the story's total play counter.
func (r *pgStoryRepository) IncrementStoryPlays(ctx context.Context, storyID uuid.UUID) error {
	return r.increment(ctx, incrementStoryPlaysQuery, storyID, "story plays")
}

// IncrementStoryCompletions bumps the story's total completion counter.
func (r *pgStoryRepository) IncrementStoryCompletions(ctx context.Context, storyID uuid.UUID) error {
	return r.increment(ctx, incrementStoryCompletionsQuery, storyID, "story completions")
}

// IncrementPageReached bumps the page's reach counter.
func (r *pgStoryRepository) IncrementPageReached(ctx context.Context, pageID uuid.UUID) error {
	return r.increment(ctx, incrementPageReachedQuery, pageID, "page reached")
}

// IncrementPageCompleted bumps the page's completion counter.
func (r *pgStoryRepository) IncrementPageCompleted(ctx context.Context, pageID uuid.UUID) error {
	return r.increment(ctx, incrementPageCompletedQuery, pageID, "page completed")
}

func (r *pgStoryRepository) increment(ctx context.Context, query string, id uuid.UUID, counter string) error {
	cmdTag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to increment counter",
			zap.String("counter", counter),
			zap.String("id", id.String()),
			zap.Error(err))
		return fmt.Errorf("failed to increment %s: %w", counter, err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Warn("Counter increment matched no rows",
			zap.String("counter", counter),
			zap.String("id", id.String()))
		return models.ErrNotFound
	}
	return nil
}
