package leaderboard

import (
	"context"
	"fmt"

	"github.com/feral-file/ff-marketplace-ledger/internal/adapter"
	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
)

// Leaderboard projects user XP totals into a ranking
//
//go:generate mockgen -source=leaderboard.go -destination=../mocks/leaderboard.go -package=mocks -mock_names=Leaderboard=MockLeaderboard
type Leaderboard interface {
	// Update records the latest XP total of an address and returns its 1-based rank.
	// A total lower than the recorded one is ignored, so late updates cannot roll a user back.
	Update(ctx context.Context, address string, totalXP int64) (int64, error)

	// Rank returns the 1-based rank of an address
	Rank(ctx context.Context, address string) (int64, error)
}

type redisLeaderboard struct {
	client adapter.RedisClient
	key    string
}

// NewRedisLeaderboard returns a leaderboard stored in the sorted set leaderboard:xp:<network>
func NewRedisLeaderboard(client adapter.RedisClient, network string) Leaderboard {
	return &redisLeaderboard{
		client: client,
		key:    fmt.Sprintf("leaderboard:xp:%s", network),
	}
}

func (l *redisLeaderboard) Update(ctx context.Context, address string, totalXP int64) (int64, error) {
	member := domain.NormalizeAddress(address)
	if err := l.client.ZAddGT(ctx, l.key, float64(totalXP), member); err != nil {
		return 0, fmt.Errorf("failed to update leaderboard: %w", err)
	}
	return l.Rank(ctx, member)
}

func (l *redisLeaderboard) Rank(ctx context.Context, address string) (int64, error) {
	rank, err := l.client.ZRevRank(ctx, l.key, domain.NormalizeAddress(address))
	if err != nil {
		return 0, fmt.Errorf("failed to read leaderboard rank: %w", err)
	}
	return rank + 1, nil
}
