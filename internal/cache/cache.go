// Package cache is the Redis-backed chat response cache. Keys derive from
// the user's current question only, so identical questions hit regardless of
// conversation history.
package cache

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatpay_cache_hits_total",
		Help: "Chat cache hits",
	}, []string{"type"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatpay_cache_misses_total",
		Help: "Chat cache misses",
	}, []string{"type"})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatpay_cache_errors_total",
		Help: "Chat cache errors",
	}, []string{"type"})
)

// compressThreshold is the payload size above which values are stored
// zlib-compressed.
const compressThreshold = 1024

// Connect dials Redis from a URL and verifies connectivity.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return client, nil
}

// ChatCache stores completed responses keyed by the normalized question.
type ChatCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	logger     *slog.Logger
}

func NewChatCache(client *redis.Client, defaultTTL time.Duration, logger *slog.Logger) *ChatCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatCache{client: client, defaultTTL: defaultTTL, logger: logger}
}

// Key derives the cache key from a question: case-normalized, whitespace
// trimmed, hashed. Prior conversation turns never enter the key.
func Key(question string) string {
	norm := strings.ToLower(strings.TrimSpace(question))
	sum := sha256.Sum256([]byte(`{"question":"` + norm + `"}`))
	return "chat_cache:simple:" + hex.EncodeToString(sum[:])[:16]
}

// Get returns the cached response for question, or "" and false on a miss.
// Cache failures are absorbed and reported as misses; the cache is an
// optimization, never a dependency.
func (c *ChatCache) Get(ctx context.Context, question string) (string, bool) {
	raw, err := c.client.Get(ctx, Key(question)).Bytes()
	if errors.Is(err, redis.Nil) {
		cacheMisses.WithLabelValues("chat").Inc()
		return "", false
	}
	if err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		c.logger.Error("cache get failed", "error", err)
		return "", false
	}
	cacheHits.WithLabelValues("chat").Inc()
	return decompress(raw), true
}

// Set stores a response under the question's key. ttl <= 0 uses the default.
func (c *ChatCache) Set(ctx context.Context, question, response string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, Key(question), compress(response), ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		c.logger.Error("cache set failed", "error", err)
	}
}

// Ping reports cache health.
func (c *ChatCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func compress(data string) []byte {
	if len(data) <= compressThreshold {
		return []byte(data)
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write([]byte(data))
	zw.Close()
	return buf.Bytes()
}

// decompress inflates a stored value, falling back to the raw bytes when the
// value predates compression or was stored below the threshold.
func decompress(raw []byte) string {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
