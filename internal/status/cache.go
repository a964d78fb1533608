package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/types"
	"github.com/redis/go-redis/v9"
)

// ArtifactCache is a read-through cache of immutable artifact versions.
// Failures are treated as misses.
type ArtifactCache interface {
	Get(ctx context.Context, jobID uuid.UUID, artifactType types.ArtifactType, version int) (*types.Artifact, bool)
	Set(ctx context.Context, a *types.Artifact)
}

// DefaultCacheMaxBytes skips caching artifacts larger than this
const DefaultCacheMaxBytes = 2 << 20

// RedisCache stores artifact versions in Redis.
// Versions never change once written, so entries need no invalidation.
type RedisCache struct {
	client   redis.UniversalClient
	ttl      time.Duration
	maxBytes int
	logger   *slog.Logger
}

// NewRedisCache creates a RedisCache
func NewRedisCache(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, maxBytes: DefaultCacheMaxBytes, logger: logger}
}

type cachedArtifact struct {
	Info    types.ArtifactInfo `json:"info"`
	Content []byte             `json:"content"`
}

func cacheKey(jobID uuid.UUID, artifactType types.ArtifactType, version int) string {
	return fmt.Sprintf("artifact:%s:%s:%d", jobID, artifactType, version)
}

// Get implements ArtifactCache
func (c *RedisCache) Get(ctx context.Context, jobID uuid.UUID, artifactType types.ArtifactType, version int) (*types.Artifact, bool) {
	data, err := c.client.Get(ctx, cacheKey(jobID, artifactType, version)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "artifact cache read failed", "error", err)
		}
		return nil, false
	}
	a, err := decodeArtifact(data)
	if err != nil {
		c.logger.WarnContext(ctx, "artifact cache entry corrupt", "error", err)
		return nil, false
	}
	return a, true
}

// Set implements ArtifactCache
func (c *RedisCache) Set(ctx context.Context, a *types.Artifact) {
	if a == nil || len(a.Content) > c.maxBytes {
		return
	}
	data, err := encodeArtifact(a)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(a.JobID, a.Type, a.Version), data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "artifact cache write failed", "error", err)
	}
}

// Ping checks connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func encodeArtifact(a *types.Artifact) ([]byte, error) {
	return json.Marshal(cachedArtifact{Info: a.ArtifactInfo, Content: a.Content})
}

func decodeArtifact(data []byte) (*types.Artifact, error) {
	var c cachedArtifact
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &types.Artifact{ArtifactInfo: c.Info, Content: c.Content}, nil
}
