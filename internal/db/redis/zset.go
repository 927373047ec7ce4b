package redis

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/unisearch/internal/db"
)

// ZIncrBy increments member's score in the sorted set at key.
func (s *Store) ZIncrBy(ctx context.Context, key, member string, incr float64) error {
	cmd := s.b().Arbitrary("ZINCRBY").
		Keys(key).
		Args(strconv.FormatFloat(incr, 'f', -1, 64), member).
		Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZIncrBy, Err: err}
	}
	return nil
}

// ZRevRangeWithScores returns up to limit members ordered by descending score.
func (s *Store) ZRevRangeWithScores(ctx context.Context, key string, limit int) ([]db.ScoredMember, error) {
	if limit <= 0 {
		return nil, nil
	}
	cmd := s.b().Arbitrary("ZREVRANGE").
		Keys(key).
		Args("0", strconv.Itoa(limit-1), "WITHSCORES").
		Build()
	scores, err := s.do(ctx, cmd).AsZScores()
	if err != nil {
		return nil, &db.Error{Op: db.OpZRevRange, Err: err}
	}
	out := make([]db.ScoredMember, len(scores))
	for i, z := range scores {
		out[i] = db.ScoredMember{Member: z.Member, Score: z.Score}
	}
	return out, nil
}
