package respcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luma-insights/prism/internal/config"
	"github.com/luma-insights/prism/internal/retrieval"
)

type countingClient struct {
	calls  int
	answer *retrieval.Answer
	err    error
}

func (f *countingClient) Query(ctx context.Context, text string) (*retrieval.Answer, error) {
	f.calls++
	return f.answer, f.err
}

func (f *countingClient) Followup(ctx context.Context, conversationID, text string) (*retrieval.Answer, error) {
	f.calls++
	return f.answer, f.err
}

func (f *countingClient) Feedback(ctx context.Context, messageID, verdict string) error {
	return nil
}

func testAnswer() *retrieval.Answer {
	return &retrieval.Answer{
		Text:           "cached answer",
		ConversationID: "c1",
		MessageID:      "m1",
		Sources:        []retrieval.RawSource{{Title: "Doc", URL: "https://example.com/doc"}},
	}
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestQueryCachesInRedis(t *testing.T) {
	inner := &countingClient{answer: testAnswer()}
	c := Wrap(inner, newRedis(t), config.RedisConfig{TTL: time.Minute}, zap.NewNop())
	ctx := context.Background()

	first, err := c.Query(ctx, "market trends")
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	// Drop the local cache so the second hit must come from Redis.
	c.mu.Lock()
	c.local = map[string]localEntry{}
	c.mu.Unlock()

	second, err := c.Query(ctx, "market trends")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "second query served from cache")
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.Sources, second.Sources)
}

func TestQueryDistinctTextsMiss(t *testing.T) {
	inner := &countingClient{answer: testAnswer()}
	c := Wrap(inner, newRedis(t), config.RedisConfig{TTL: time.Minute}, zap.NewNop())
	ctx := context.Background()

	_, err := c.Query(ctx, "query one")
	require.NoError(t, err)
	_, err = c.Query(ctx, "query two")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestQueryWorksWithoutRedis(t *testing.T) {
	inner := &countingClient{answer: testAnswer()}
	c := Wrap(inner, nil, config.RedisConfig{TTL: time.Minute}, zap.NewNop())
	ctx := context.Background()

	_, err := c.Query(ctx, "market trends")
	require.NoError(t, err)
	_, err = c.Query(ctx, "market trends")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "local cache still serves repeats")
}

func TestQueryDegradesToMissOnRedisFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := &countingClient{answer: testAnswer()}
	c := Wrap(inner, rdb, config.RedisConfig{TTL: time.Minute}, zap.NewNop())
	ctx := context.Background()

	mr.Close() // Redis gone before first use

	answer, err := c.Query(ctx, "market trends")
	require.NoError(t, err, "cache failure must not surface")
	assert.Equal(t, "cached answer", answer.Text)
	assert.Equal(t, 1, inner.calls)
}

func TestFollowupBypassesCache(t *testing.T) {
	inner := &countingClient{answer: testAnswer()}
	c := Wrap(inner, newRedis(t), config.RedisConfig{TTL: time.Minute}, zap.NewNop())
	ctx := context.Background()

	_, err := c.Followup(ctx, "c1", "and what about next year?")
	require.NoError(t, err)
	_, err = c.Followup(ctx, "c1", "and what about next year?")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
