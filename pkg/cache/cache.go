// Package cache keeps query embeddings in Redis so repeated questions skip the
// embedding service.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/xhad/docqa/pkg/logger"
)

// ErrMiss is returned by a KV when the key is absent.
var ErrMiss = errors.New("cache miss")

// KV is the minimal byte store the cache needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

type RedisKV struct {
	client *redis.Client
}

// NewRedis connects to url (redis:// or rediss://) and pings it.
func NewRedis(ctx context.Context, url string) (*RedisKV, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisKV{client: client}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return val, err
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}

// CachedEmbedder wraps an embedder and memoises EmbedQuery. Document
// embeddings pass straight through.
type CachedEmbedder struct {
	embeddings.Embedder
	kv    KV
	ttl   time.Duration
	model string
	log   *logrus.Entry
}

func NewCachedEmbedder(inner embeddings.Embedder, kv KV, model string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		Embedder: inner,
		kv:       kv,
		ttl:      ttl,
		model:    model,
		log:      logger.New("cache"),
	}
}

// Key is the cache key for text under the embedder's model.
func (c *CachedEmbedder) Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "docqa:emb:" + c.model + ":" + hex.EncodeToString(sum[:])
}

// EmbedQuery serves from the cache when possible. Cache failures are logged
// and never fail the query.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.Key(text)

	if raw, err := c.kv.Get(ctx, key); err == nil {
		var vec []float32
		if err := json.Unmarshal(raw, &vec); err == nil {
			return vec, nil
		}
		c.log.WithField("key", key).Warn("Discarding undecodable cache entry")
	} else if !errors.Is(err, ErrMiss) {
		c.log.WithError(err).Warn("Cache read failed")
	}

	vec, err := c.Embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(vec)
	if err == nil {
		err = c.kv.Set(ctx, key, raw, c.ttl)
	}
	if err != nil {
		c.log.WithError(err).Warn("Cache write failed")
	}
	return vec, nil
}

func (c *CachedEmbedder) Close() error {
	return c.kv.Close()
}
