// Package cache provides a Redis-backed cache-aside layer in front of the
// embedding provider. Cache failures are logged and treated as misses; they
// never fail the call.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
)

// TaskType segregates the query vector space from the document vector space
// so the same text embedded for two purposes never collides in cache.
type TaskType string

const (
	TaskRetrievalQuery    TaskType = "retrieval_query"
	TaskRetrievalDocument TaskType = "retrieval_document"
)

// normalizationVersion is bumped whenever normalize changes, invalidating
// stale keys without an explicit flush.
const normalizationVersion = "v1"

// DefaultTTL is how long a cached embedding survives absent explicit
// invalidation.
const DefaultTTL = 24 * time.Hour

// Provider is the embedding backend the cache wraps.
type Provider interface {
	EmbedQuery(ctx context.Context, text string, taskType TaskType) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, taskType TaskType) ([][]float32, error)
	ModelID() string
}

// EmbeddingCache is a cache-aside wrapper: every call first probes Redis,
// falls through to the provider on a miss, and best-effort repopulates.
type EmbeddingCache struct {
	rdb      *redis.Client
	provider Provider
	ttl      time.Duration
}

func NewEmbeddingCache(rdb *redis.Client, provider Provider, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &EmbeddingCache{rdb: rdb, provider: provider, ttl: ttl}
}

// EmbedQuery returns the embedding for text, serving from cache when present.
func (c *EmbeddingCache) EmbedQuery(ctx context.Context, text string, taskType TaskType) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.New(apperr.CodeEmbeddingError, "cannot embed empty text")
	}

	key := embeddingKey(c.provider.ModelID(), taskType, text)

	if vec, ok := c.get(ctx, key); ok {
		return vec, nil
	}

	vec, err := c.provider.EmbedQuery(ctx, text, taskType)
	if err != nil {
		return nil, err
	}

	c.set(ctx, key, vec)
	return vec, nil
}

// EmbedBatch computes keys for every text, probes the cache for all of them,
// requests the provider only for unique misses, and replicates each
// returned vector back to every original position so ordering is preserved
// 1:1 with texts.
func (c *EmbeddingCache) EmbedBatch(ctx context.Context, texts []string, taskType TaskType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.New(apperr.CodeEmbeddingError, "cannot embed empty batch")
	}

	results := make([][]float32, len(texts))

	missIndex := make(map[string][]int) // key -> positions sharing that key
	missOrder := make([]string, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		key := embeddingKey(c.provider.ModelID(), taskType, text)

		if vec, ok := c.get(ctx, key); ok {
			results[i] = vec
			continue
		}

		if _, seen := missIndex[key]; !seen {
			missOrder = append(missOrder, key)
			missTexts = append(missTexts, text)
		}
		missIndex[key] = append(missIndex[key], i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.provider.EmbedBatch(ctx, missTexts, taskType)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, apperr.New(apperr.CodeEmbeddingError, "provider returned mismatched batch size")
	}

	for i, key := range missOrder {
		vec := fresh[i]
		for _, pos := range missIndex[key] {
			results[pos] = vec
		}
		c.set(ctx, key, vec)
	}

	return results, nil
}

func (c *EmbeddingCache) get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("embedding cache get failed, treating as miss", "key", key, "error", err)
		}
		return nil, false
	}
	vec, err := decodeVector(raw)
	if err != nil {
		slog.Warn("embedding cache decode failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return vec, true
}

func (c *EmbeddingCache) set(ctx context.Context, key string, vec []float32) {
	raw := encodeVector(vec)
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		slog.Warn("embedding cache set failed", "key", key, "error", err)
	}
}

// embeddingKey builds "emb:{model_id}:{task_type}:{normalization_version}:{sha256(normalize(text))}".
func embeddingKey(modelID string, taskType TaskType, text string) string {
	h := sha256.Sum256([]byte(normalize(text)))
	return fmt.Sprintf("emb:%s:%s:%s:%x", modelID, taskType, normalizationVersion, h)
}

// normalize is normalization_version v1: strip leading/trailing whitespace
// and collapse internal whitespace runs to a single space.
func normalize(text string) string {
	fields := strings.Fields(text)
	return strings.Join(fields, " ")
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("cache: corrupt vector payload: %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}
