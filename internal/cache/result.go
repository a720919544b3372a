package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"brandlens/internal/metrics"
)

// Fingerprint derives the cache key for one analysis call. Every input that
// can change the payload participates: the analyzed text, the full prompt,
// the schema, and the prompt version.
func Fingerprint(text, prompt string, schema []byte, promptVersion string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write(schema)
	h.Write([]byte{0})
	h.Write([]byte(promptVersion))
	return hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt int64           `json:"expires_at"`
}

// ResultCache stores validated analysis payloads on disk per key, with an
// optional shared Redis tier in front of it. Reads enforce TTL strictly;
// writes are best-effort and never fail the caller.
type ResultCache struct {
	dir   string
	ttl   time.Duration
	redis *redis.Client
	now   func() time.Time
	log   *slog.Logger
}

func NewResultCache(dir string, ttl time.Duration, redisURL string, log *slog.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}

	c := &ResultCache{dir: dir, ttl: ttl, now: time.Now, log: log}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Warn("invalid redis url, remote cache tier disabled", "error", err)
		} else {
			c.redis = redis.NewClient(opts)
		}
	}
	return c
}

// Get returns the cached payload for (key, fingerprint) if present and
// unexpired.
func (c *ResultCache) Get(ctx context.Context, key, fingerprint string) (json.RawMessage, bool) {
	if payload, ok := c.getRedis(ctx, key, fingerprint); ok {
		metrics.RecordCacheLookup(key, true)
		return payload, true
	}

	data, err := os.ReadFile(c.path(key, fingerprint))
	if err != nil {
		metrics.RecordCacheLookup(key, false)
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil || c.now().Unix() >= e.ExpiresAt {
		metrics.RecordCacheLookup(key, false)
		return nil, false
	}

	metrics.RecordCacheLookup(key, true)
	return e.Payload, true
}

// Put stores a payload under (key, fingerprint). Failures are logged and
// swallowed.
func (c *ResultCache) Put(ctx context.Context, key, fingerprint string, payload json.RawMessage) {
	e := entry{Payload: payload, ExpiresAt: c.now().Add(c.ttl).Unix()}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	dir := filepath.Join(c.dir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.log.Warn("cache dir unavailable", "dir", dir, "error", err)
		return
	}
	if err := os.WriteFile(c.path(key, fingerprint), data, 0o644); err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err)
	}

	if c.redis != nil {
		if err := c.redis.Set(ctx, c.redisKey(key, fingerprint), string(payload), c.ttl).Err(); err != nil {
			c.log.Warn("redis cache write failed", "key", key, "error", err)
		}
	}
}

func (c *ResultCache) getRedis(ctx context.Context, key, fingerprint string) (json.RawMessage, bool) {
	if c.redis == nil {
		return nil, false
	}
	val, err := c.redis.Get(ctx, c.redisKey(key, fingerprint)).Result()
	if err != nil {
		return nil, false
	}
	return json.RawMessage(val), true
}

func (c *ResultCache) path(key, fingerprint string) string {
	return filepath.Join(c.dir, key, fingerprint+".json")
}

func (c *ResultCache) redisKey(key, fingerprint string) string {
	return "brandlens:result:" + key + ":" + fingerprint
}
