package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"mnemosyne/internal/config"
	"mnemosyne/internal/model"
)

// accessRecord is one chunk's buffered accounting update. LastAccessed
// is last-writer-wins; AccessCount accumulates the hits seen since the
// last flush.
type accessRecord struct {
	LastAccessed time.Time `json:"last_accessed"`
	AccessCount  int       `json:"access_count"`
}

// AccessBuffer accumulates per-chunk access accounting in memory until a
// caller takes it with Drain and writes it to the chunk store with Apply.
// The buffer has no timer of its own: records stay pending until a caller
// drains them. When Redis is enabled the buffer is additionally mirrored
// there, giving multiple engine instances a shared, idempotent view
// between drains — grounded on the teacher's
// RedisSkillsCache (internal/skills/redis_cache.go): a thin
// nil-receiver-safe wrapper around redis.UniversalClient that degrades
// to a no-op when disabled.
type AccessBuffer struct {
	mu      sync.Mutex
	pending map[string]accessRecord
	redis   redis.UniversalClient
	prefix  string
}

// NewAccessBuffer builds a buffer from RedisConfig. A disabled config
// yields a buffer that only ever holds state in memory — Record, Drain
// and Apply still work, just without cross-instance sharing.
func NewAccessBuffer(cfg config.RedisConfig) (*AccessBuffer, error) {
	buf := &AccessBuffer{pending: make(map[string]accessRecord), prefix: "mnemo:access:"}
	if !cfg.Enabled {
		return buf, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("access buffer redis ping: %w", err)
	}
	buf.redis = client
	return buf, nil
}

// Record buffers one access for chunkID at t, merging with any
// not-yet-flushed record for the same chunk: last_accessed takes the
// later timestamp, access_count adds.
func (b *AccessBuffer) Record(ctx context.Context, chunkID string, t time.Time) {
	b.mu.Lock()
	rec := b.pending[chunkID]
	if t.After(rec.LastAccessed) {
		rec.LastAccessed = t
	}
	rec.AccessCount++
	b.pending[chunkID] = rec
	b.mu.Unlock()

	if b.redis != nil {
		b.mirrorToRedis(ctx, chunkID, rec)
	}
}

func (b *AccessBuffer) mirrorToRedis(ctx context.Context, chunkID string, rec accessRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	key := b.prefix + chunkID
	if err := b.redis.Set(ctx, key, data, 24*time.Hour).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("access_buffer_redis_set_error")
	}
}

// Drain atomically removes and returns all buffered records, for the
// caller to write to the chunk store with Apply.
// Idempotent: a chunk drained twice without an intervening Record
// yields nothing the second time.
func (b *AccessBuffer) Drain() map[string]accessRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = make(map[string]accessRecord)
	return out
}

// Apply writes drained records onto the supplied chunk store's
// metadata, merging AccessCount into the chunk's running total rather
// than overwriting it.
func (b *AccessBuffer) Apply(ctx context.Context, store ChunkStore, records map[string]accessRecord) error {
	for id, rec := range records {
		c, err := store.Get(ctx, id)
		if err != nil {
			continue // chunk deleted between the access and the flush
		}
		if rec.LastAccessed.After(c.Metadata.LastAccessed) {
			c.Metadata.LastAccessed = rec.LastAccessed
		}
		c.Metadata.AccessCount += rec.AccessCount
		if _, err := store.Upsert(ctx, []model.Chunk{c}); err != nil {
			return err
		}
	}
	return nil
}
