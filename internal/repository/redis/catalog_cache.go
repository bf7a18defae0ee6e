package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"course-admin-service/internal/client"
	"course-admin-service/internal/model"
	"course-admin-service/internal/util"
)

const (
	courseKeyPrefix   = "catalog:course:"
	catalogDefaultTTL = 5 * time.Minute
)

// CatalogCache is a read-through cache over the course catalog. A miss or a
// Redis error just falls through to Scylla; the cache never gates a read.
type CatalogCache struct {
	redis *client.RedisClient
	ttl   time.Duration
}

// cachedCourse carries the encrypted security key explicitly; the course's
// own JSON shape omits it so it never leaks into API responses.
type cachedCourse struct {
	Course      model.Course    `json:"course"`
	SecurityKey model.Encrypted `json:"security_key"`
}

func NewCatalogCache(redisClient *client.RedisClient) *CatalogCache {
	return &CatalogCache{
		redis: redisClient,
		ttl:   catalogDefaultTTL,
	}
}

func (c *CatalogCache) GetCourse(ctx context.Context, code string) (*model.Course, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}

	raw, err := c.redis.Get(ctx, courseKeyPrefix+code)
	if err != nil {
		if !errors.Is(err, client.ErrKeyNotFound) {
			util.Warn("Catalog cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var entry cachedCourse
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		util.Warn("Catalog cache entry corrupt, dropping",
			zap.String("code", code), zap.Error(err))
		_ = c.redis.Del(ctx, courseKeyPrefix+code)
		return nil, false
	}
	course := entry.Course
	course.SecurityKey = entry.SecurityKey
	return &course, true
}

func (c *CatalogCache) SetCourse(ctx context.Context, course *model.Course) {
	if c == nil || c.redis == nil {
		return
	}

	raw, err := json.Marshal(cachedCourse{Course: *course, SecurityKey: course.SecurityKey})
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, courseKeyPrefix+course.Code, raw, c.ttl); err != nil {
		util.Warn("Catalog cache write failed", zap.Error(err))
	}
}

// Invalidate drops the cached course after any catalog write.
func (c *CatalogCache) Invalidate(ctx context.Context, code string) {
	if c == nil || c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, courseKeyPrefix+code); err != nil {
		util.Warn("Catalog cache invalidation failed", zap.Error(err))
	}
}
