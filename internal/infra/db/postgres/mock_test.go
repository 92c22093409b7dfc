//go:build !integration

package postgres

import (
	"context"
	"time"

	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/repository"
	red "lms-billing/internal/infra/redis"
)

// mockInnerCourseRepo mocks the database repository that the course decorator wraps.
type mockInnerCourseRepo struct {
	SaveFunc       func(ctx context.Context, tx repository.Tx, c *model.Course) error
	FindByIDFunc   func(ctx context.Context, tx repository.Tx, id string) (*model.Course, error)
	FindTitlesFunc func(ctx context.Context, tx repository.Tx, ids []string) (map[string]string, error)
}

func (m *mockInnerCourseRepo) Save(ctx context.Context, tx repository.Tx, c *model.Course) error {
	return m.SaveFunc(ctx, tx, c)
}
func (m *mockInnerCourseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Course, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerCourseRepo) FindTitles(ctx context.Context, tx repository.Tx, ids []string) (map[string]string, error) {
	return m.FindTitlesFunc(ctx, tx, ids)
}

// mockRedisClient mocks the Redis client wrapper. Unset funcs behave like an empty cache.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", red.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error                      { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) LPush(ctx context.Context, key string, values ...interface{}) error {
	return nil
}
func (m *mockRedisClient) BRPop(ctx context.Context, timeout time.Duration, key string) (string, error) {
	return "", red.Nil
}
func (m *mockRedisClient) LLen(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Close() error                                        { return nil }
