package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"triviakit/core"
	"triviakit/leaderboard"
)

// weeklyTTL keeps old weekly boards around for a couple of months.
const weeklyTTL = 8 * 7 * 24 * time.Hour

// Leaderboard stores each board as a sorted set:
// {prefix}:lb:{board} -> member user id, score XP.
// Users with equal scores are returned in reverse member order.
type Leaderboard struct {
	client *redis.Client
	prefix string
}

func NewLeaderboard(client *redis.Client, prefix string) *Leaderboard {
	if prefix == "" {
		prefix = "triviakit"
	}
	return &Leaderboard{client: client, prefix: prefix}
}

func (l *Leaderboard) key(board leaderboard.BoardID) string {
	return l.prefix + ":lb:" + string(board)
}

func (l *Leaderboard) Incr(ctx context.Context, board leaderboard.BoardID, user core.UserID, delta int64) (int64, error) {
	key := l.key(board)
	pipe := l.client.TxPipeline()
	incr := pipe.ZIncrBy(ctx, key, float64(delta), string(user))
	if board.IsWeekly() {
		pipe.Expire(ctx, key, weeklyTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("leaderboard incr %s: %w", board, err)
	}
	return int64(math.Round(incr.Val())), nil
}

func (l *Leaderboard) Set(ctx context.Context, board leaderboard.BoardID, user core.UserID, score int64) error {
	key := l.key(board)
	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: string(user)})
	if board.IsWeekly() {
		pipe.Expire(ctx, key, weeklyTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("leaderboard set %s: %w", board, err)
	}
	return nil
}

func (l *Leaderboard) Top(ctx context.Context, board leaderboard.BoardID, offset, limit int) ([]leaderboard.Entry, error) {
	out := []leaderboard.Entry{}
	if limit <= 0 || offset < 0 {
		return out, nil
	}
	zs, err := l.client.ZRevRangeWithScores(ctx, l.key(board), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard top %s: %w", board, err)
	}
	for i, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, leaderboard.Entry{
			User: core.UserID(member), Score: int64(math.Round(z.Score)), Rank: int64(offset + i + 1),
		})
	}
	return out, nil
}

func (l *Leaderboard) Rank(ctx context.Context, board leaderboard.BoardID, user core.UserID) (leaderboard.Entry, bool, error) {
	key := l.key(board)
	pipe := l.client.Pipeline()
	rank := pipe.ZRevRank(ctx, key, string(user))
	score := pipe.ZScore(ctx, key, string(user))
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return leaderboard.Entry{}, false, nil
		}
		return leaderboard.Entry{}, false, fmt.Errorf("leaderboard rank %s: %w", board, err)
	}
	return leaderboard.Entry{User: user, Score: int64(math.Round(score.Val())), Rank: rank.Val() + 1}, true, nil
}

var _ leaderboard.Boards = (*Leaderboard)(nil)
