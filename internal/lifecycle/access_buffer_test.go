package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemosyne/internal/config"
	"mnemosyne/internal/model"
)

func TestAccessBuffer_RecordMergesAndCounts(t *testing.T) {
	buf, err := NewAccessBuffer(config.RedisConfig{Enabled: false})
	require.NoError(t, err)

	t0 := time.Now()
	ctx := context.Background()
	buf.Record(ctx, "c1", t0)
	buf.Record(ctx, "c1", t0.Add(time.Minute))
	buf.Record(ctx, "c1", t0.Add(-time.Hour)) // earlier access must not regress last_accessed

	drained := buf.Drain()
	rec := drained["c1"]
	assert.Equal(t, 3, rec.AccessCount)
	assert.WithinDuration(t, t0.Add(time.Minute), rec.LastAccessed, time.Millisecond)
}

func TestAccessBuffer_DrainIsIdempotent(t *testing.T) {
	buf, err := NewAccessBuffer(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	buf.Record(context.Background(), "c1", time.Now())

	first := buf.Drain()
	assert.Len(t, first, 1)
	second := buf.Drain()
	assert.Empty(t, second)
}

func TestAccessBuffer_ApplyMergesIntoStore(t *testing.T) {
	store := newFakeStore()
	store.chunks["c1"] = model.Chunk{ID: "c1", Metadata: model.Metadata{AccessCount: 5, LastAccessed: time.Now().Add(-time.Hour)}}
	buf, err := NewAccessBuffer(config.RedisConfig{Enabled: false})
	require.NoError(t, err)

	now := time.Now()
	buf.Record(context.Background(), "c1", now)
	buf.Record(context.Background(), "c1", now)
	records := buf.Drain()

	require.NoError(t, buf.Apply(context.Background(), store, records))
	updated := store.chunks["c1"]
	assert.Equal(t, 7, updated.Metadata.AccessCount)
	assert.WithinDuration(t, now, updated.Metadata.LastAccessed, time.Millisecond)
}
