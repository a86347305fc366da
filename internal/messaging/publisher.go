package messaging

import (
	"context"
	"time"

	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
)

// XPAwardedNotification announces an XP credit caused by a marketplace event
type XPAwardedNotification struct {
	Network   string                      `json:"network"`
	Address   string                      `json:"address"`
	Amount    int64                       `json:"amount"`
	Reason    string                      `json:"reason"`
	EventType domain.MarketplaceEventType `json:"event_type"`
	TxHash    string                      `json:"tx_hash"`
	EventID   uint64                      `json:"event_id"`
	TotalXP   int64                       `json:"total_xp"`
	Level     int                         `json:"level"`
	// Rank is the 1-based leaderboard position, nil when the leaderboard is unavailable
	Rank      *int64    `json:"rank,omitempty"`
	AwardedAt time.Time `json:"awarded_at"`
}

// BadgeEarnedNotification announces a newly granted badge
type BadgeEarnedNotification struct {
	Network  string             `json:"network"`
	Address  string             `json:"address"`
	Badge    domain.EarnedBadge `json:"badge"`
	XPReward int64              `json:"xp_reward"`
	TotalXP  int64              `json:"total_xp"`
	Level    int                `json:"level"`
}

// Publisher defines the interface for publishing ledger notifications to the message broker
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// PublishXPAwarded publishes an XP award notification
	PublishXPAwarded(ctx context.Context, notification XPAwardedNotification) error
	// PublishBadgeEarned publishes a badge notification
	PublishBadgeEarned(ctx context.Context, notification BadgeEarnedNotification) error
	// Close closes the connection
	Close()
}
