package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triviakit/adapters/memory"
	"triviakit/core"
	"triviakit/leaderboard"
)

// newTestClient spins up a miniredis server and returns it with a client.
func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLeaderboard_IncrTopRank(t *testing.T) {
	_, client := newTestClient(t)
	lb := NewLeaderboard(client, "test")
	ctx := context.Background()
	board := leaderboard.Category("cat-wwe")

	total, err := lb.Incr(ctx, board, "alice", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(60), total)
	total, err = lb.Incr(ctx, board, "alice", 55)
	require.NoError(t, err)
	assert.Equal(t, int64(115), total)
	_, err = lb.Incr(ctx, board, "bob", 300)
	require.NoError(t, err)
	_, err = lb.Incr(ctx, board, "carol", 10)
	require.NoError(t, err)

	top, err := lb.Top(ctx, board, 0, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, leaderboard.Entry{User: "bob", Score: 300, Rank: 1}, top[0])
	assert.Equal(t, leaderboard.Entry{User: "alice", Score: 115, Rank: 2}, top[1])

	page, err := lb.Top(ctx, board, 2, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(3), page[0].Rank)

	e, ok, err := lb.Rank(ctx, board, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), e.Rank)

	_, ok, err = lb.Rank(ctx, board, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLeaderboard_SetOverwritesAndWeeklyExpires(t *testing.T) {
	mr, client := newTestClient(t)
	lb := NewLeaderboard(client, "test")
	ctx := context.Background()

	require.NoError(t, lb.Set(ctx, leaderboard.Global(), "alice", 160))
	require.NoError(t, lb.Set(ctx, leaderboard.Global(), "alice", 135))
	e, ok, err := lb.Rank(ctx, leaderboard.Global(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(135), e.Score)
	assert.Zero(t, mr.TTL("test:lb:global"))

	week := leaderboard.Weekly(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), time.UTC)
	_, err = lb.Incr(ctx, week, "alice", 60)
	require.NoError(t, err)
	assert.Equal(t, weeklyTTL, mr.TTL("test:lb:weekly:2024-W24"))
}

func TestLeaderboard_EmptyBoard(t *testing.T) {
	_, client := newTestClient(t)
	lb := NewLeaderboard(client, "")
	top, err := lb.Top(context.Background(), leaderboard.Global(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}

type countingStore struct {
	*memory.Store
	loads atomic.Int64
}

func (c *countingStore) ActiveQuestionCounts(ctx context.Context) (map[core.CategoryID]int64, error) {
	c.loads.Add(1)
	return c.Store.ActiveQuestionCounts(ctx)
}

func TestCountCache_CachesAndInvalidates(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	inner := &countingStore{Store: memory.New()}
	require.NoError(t, inner.PutCategory(ctx, core.Category{ID: "cat-wwe", Slug: "wwe", Name: "WWE"}))
	for _, id := range []core.QuestionID{"q1", "q2"} {
		require.NoError(t, inner.PutQuestion(ctx, core.Question{
			ID: id, CategoryID: "cat-wwe", Text: "?", Difficulty: core.DifficultyEasy,
			Options: []string{"A", "B"}, CorrectAnswer: "A", Active: true,
		}))
	}
	cache := NewCountCache(inner, client, "test", time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counts, err := cache.ActiveQuestionCounts(ctx)
			assert.NoError(t, err)
			assert.Equal(t, int64(2), counts["cat-wwe"])
		}()
	}
	wg.Wait()
	loads := inner.loads.Load()
	assert.GreaterOrEqual(t, loads, int64(1))

	ttl := mr.TTL("test:catalog:active_counts")
	assert.True(t, ttl >= time.Minute && ttl <= time.Minute+6*time.Second, "ttl %s", ttl)

	counts, err := cache.ActiveQuestionCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["cat-wwe"])
	assert.Equal(t, loads, inner.loads.Load(), "cached read must not hit the store")

	require.NoError(t, inner.PutQuestion(ctx, core.Question{
		ID: "q3", CategoryID: "cat-wwe", Text: "?", Difficulty: core.DifficultyEasy,
		Options: []string{"A", "B"}, CorrectAnswer: "A", Active: true,
	}))
	require.NoError(t, cache.Invalidate(ctx))
	counts, err = cache.ActiveQuestionCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts["cat-wwe"])
}
