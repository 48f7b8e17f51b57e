package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check
var _ interfaces.StoryRepository = (*cachedStoryRepository)(nil)

// cachedStoryRepository decorates a StoryRepository with a read-through
// Redis cache for Page documents. Pages are immutable while a story is
// published, so a TTL cache is safe. Stories are never cached: the
// publication and suspension flags must always be read fresh. Counter
// increments pass straight through.
type cachedStoryRepository struct {
	inner  interfaces.StoryRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStoryRepository wraps inner with a Redis page cache.
func NewCachedStoryRepository(inner interfaces.StoryRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) interfaces.StoryRepository {
	return &cachedStoryRepository{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisPageCache"),
	}
}

func pageCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("page:%s", id.String())
}

// GetStory always hits the underlying store.
func (c *cachedStoryRepository) GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	return c.inner.GetStory(ctx, id)
}

// ListStoriesByIDs always hits the underlying store.
func (c *cachedStoryRepository) ListStoriesByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Story, error) {
	return c.inner.ListStoriesByIDs(ctx, ids)
}

// GetPage serves the page from Redis when possible, falling back to the
// store and populating the cache. Cache failures are logged and never
// fail the read.
func (c *cachedStoryRepository) GetPage(ctx context.Context, id uuid.UUID) (*models.Page, error) {
	key := pageCacheKey(id)

	cached, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		page := &models.Page{}
		if unmarshalErr := json.Unmarshal(cached, page); unmarshalErr == nil {
			c.logger.Debug("Page cache hit", zap.String("pageID", id.String()))
			return page, nil
		}
		// Битая запись в кэше, перечитываем из БД.
		c.logger.Warn("Failed to unmarshal cached page, falling back to store", zap.String("pageID", id.String()))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("Page cache read failed", zap.String("pageID", id.String()), zap.Error(err))
	}

	page, err := c.inner.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, marshalErr := json.Marshal(page); marshalErr == nil {
		if setErr := c.client.Set(ctx, key, data, c.ttl).Err(); setErr != nil {
			c.logger.Warn("Page cache write failed", zap.String("pageID", id.String()), zap.Error(setErr))
		}
	}
	return page, nil
}

func (c *cachedStoryRepository) IncrementStoryPlays(ctx context.Context, storyID uuid.UUID) error {
	return c.inner.IncrementStoryPlays(ctx, storyID)
}

func (c *cachedStoryRepository) IncrementStoryCompletions(ctx context.Context, storyID uuid.UUID) error {
	return c.inner.IncrementStoryCompletions(ctx, storyID)
}

func (c *cachedStoryRepository) IncrementPageReached(ctx context.Context, pageID uuid.UUID) error {
	return c.inner.IncrementPageReached(ctx, pageID)
}

func (c *cachedStoryRepository) IncrementPageCompleted(ctx context.Context, pageID uuid.UUID) error {
	return c.inner.IncrementPageCompleted(ctx, pageID)
}
