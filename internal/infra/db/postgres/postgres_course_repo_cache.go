package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/repository"
	"lms-billing/internal/infra/metrics"
	red "lms-billing/internal/infra/redis"
)

var _ repository.CourseRepository = (*courseRepoCacheDecorator)(nil)

type courseRepoCacheDecorator struct {
	inner  repository.CourseRepository
	cache  red.RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewCourseRepoCacheDecorator(inner repository.CourseRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.CourseRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "courseRepoCache").Logger()
	return &courseRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, logger: &l}
}

func courseCacheKey(id string) string { return fmt.Sprintf("course:%s", id) }

func (d *courseRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Course, error) {
	// reads inside a transaction go straight to the database
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}

	key := courseCacheKey(id)
	val, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		var c model.Course
		if json.Unmarshal([]byte(val), &c) == nil {
			metrics.IncCacheRequest("course", "hit")
			return &c, nil
		}
	case !errors.Is(err, red.Nil):
		metrics.IncCacheRequest("course", "error")
		d.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	metrics.IncCacheRequest("course", "miss")
	c, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if c != nil {
		if b, mErr := json.Marshal(c); mErr == nil {
			if sErr := d.cache.Set(ctx, key, b, d.ttl); sErr != nil {
				d.logger.Warn().Err(sErr).Str("key", key).Msg("cache write failed")
			}
		}
	}
	return c, nil
}

func (d *courseRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, c *model.Course) error {
	if err := d.cache.Del(ctx, courseCacheKey(c.ID)); err != nil {
		d.logger.Warn().Err(err).Str("course_id", c.ID).Msg("cache invalidation failed")
	}
	return d.inner.Save(ctx, tx, c)
}

func (d *courseRepoCacheDecorator) FindTitles(ctx context.Context, tx repository.Tx, ids []string) (map[string]string, error) {
	return d.inner.FindTitles(ctx, tx, ids)
}
