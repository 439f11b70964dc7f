package redis

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/internal/repository"
)

func sourceKey(fileID, collectionID string) string {
	if fileID != "" {
		return "questions:file:" + fileID
	}
	return "questions:collection:" + collectionID
}

func questionKey(id string) string { return "question:" + id }

// QuestionCache fronts a QuestionRepository with Redis. Concurrent misses for
// the same key collapse into a single load.
type QuestionCache struct {
	client *Client
	loader repository.QuestionRepository
	ttl    time.Duration
	sf     singleflight.Group
}

// NewQuestionCache creates a QuestionCache.
func NewQuestionCache(client *Client, loader repository.QuestionRepository, ttl time.Duration) *QuestionCache {
	return &QuestionCache{client: client, loader: loader, ttl: ttl}
}

// ListBySource returns every question of a file or collection.
func (c *QuestionCache) ListBySource(ctx context.Context, fileID, collectionID string) ([]model.Question, error) {
	key := sourceKey(fileID, collectionID)
	var cached []model.Question
	if c.get(ctx, key, &cached) {
		return cached, nil
	}

	result, err, _ := c.sf.Do(key, func() (any, error) {
		// Re-check cache in case another goroutine filled it.
		var again []model.Question
		if c.get(ctx, key, &again) {
			return again, nil
		}
		questions, err := c.loader.ListBySource(ctx, fileID, collectionID)
		if err != nil {
			return nil, err
		}
		c.put(ctx, key, questions)
		for _, q := range questions {
			c.put(ctx, questionKey(q.ID), q)
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]model.Question), nil
}

// FindByID returns a single question, or nil if the loader has none.
func (c *QuestionCache) FindByID(ctx context.Context, id string) (*model.Question, error) {
	key := questionKey(id)
	var cached model.Question
	if c.get(ctx, key, &cached) {
		return &cached, nil
	}

	result, err, _ := c.sf.Do(key, func() (any, error) {
		q, err := c.loader.FindByID(ctx, id)
		if err != nil || q == nil {
			return q, err
		}
		c.put(ctx, key, q)
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.Question), nil
}

func (c *QuestionCache) get(ctx context.Context, key string, dst any) bool {
	data, err := c.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (c *QuestionCache) put(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.rdb.Set(ctx, key, data, c.ttlWithJitter()).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache questions")
	}
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int64N(jitterMax+1))
}
