package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-marketplace-ledger/internal/adapter"
	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
	"github.com/feral-file/ff-marketplace-ledger/internal/leaderboard"
	"github.com/feral-file/ff-marketplace-ledger/internal/logger"
	"github.com/feral-file/ff-marketplace-ledger/internal/messaging"
	"github.com/feral-file/ff-marketplace-ledger/internal/store"
	"github.com/feral-file/ff-marketplace-ledger/internal/store/schema"
)

// XP granted per marketplace event
const (
	XP_LISTED = 50
	XP_BOUGHT = 100
	XP_SOLD   = 150
)

// Reasons recorded on event-driven XP transactions
const (
	REASON_LISTED = "Listed NFT"
	REASON_BOUGHT = "Bought NFT"
	REASON_SOLD   = "Sold NFT"
)

// DEFAULT_OPERATION_TIMEOUT bounds the store work of one ledger call
const DEFAULT_OPERATION_TIMEOUT = 30 * time.Second

// Config holds ledger configuration
type Config struct {
	// Network names the network whose events this ledger records; used in notifications
	Network string
	// OperationTimeout bounds the store work of one call
	OperationTimeout time.Duration
}

// RecordResult is the outcome of RecordAndAward
type RecordResult struct {
	// Duplicate is true when the event had already been recorded; nothing changed
	Duplicate bool
	EventID   uint64
	XPAwarded int64
	// Users is the state of every awarded user right after the event was committed
	Users map[string]*schema.User
	// NewBadges lists the badges granted by the badge evaluation that follows a sale, per address
	NewBadges map[string][]domain.EarnedBadge
}

// Ledger turns marketplace events into XP, levels and badges
//
//go:generate mockgen -source=ledger.go -destination=../mocks/ledger.go -package=mocks -mock_names=Ledger=MockLedger
type Ledger interface {
	// RecordAndAward records an event exactly once and applies its XP effects atomically,
	// then evaluates badges for every awarded address
	RecordAndAward(ctx context.Context, event domain.MarketplaceEvent) (*RecordResult, error)

	// AwardXP credits XP to an address in one transaction
	AwardXP(ctx context.Context, address string, amount int64, reason string, eventID *uint64) (*schema.User, error)

	// CheckAndAwardBadges grants every newly satisfied badge and returns them.
	// Failures are logged and reported as an empty result.
	CheckAndAwardBadges(ctx context.Context, address string) []domain.EarnedBadge
}

type ledger struct {
	config      Config
	store       store.Store
	publisher   messaging.Publisher
	leaderboard leaderboard.Leaderboard
	clock       adapter.Clock
}

// New creates a ledger. publisher and board are optional.
func New(cfg Config, st store.Store, publisher messaging.Publisher, board leaderboard.Leaderboard, clock adapter.Clock) Ledger {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DEFAULT_OPERATION_TIMEOUT
	}

	return &ledger{
		config:      cfg,
		store:       st,
		publisher:   publisher,
		leaderboard: board,
		clock:       clock,
	}
}

// AwardsFor returns the XP awards a marketplace event grants, in award order
func AwardsFor(event domain.MarketplaceEvent) []store.XPAward {
	switch event.EventType {
	case domain.EventTypeListed:
		return []store.XPAward{
			{Address: event.ActorAddress, Amount: XP_LISTED, Reason: REASON_LISTED},
		}
	case domain.EventTypeSold:
		return []store.XPAward{
			{Address: event.ActorAddress, Amount: XP_BOUGHT, Reason: REASON_BOUGHT},
			{Address: *event.CounterpartyAddress, Amount: XP_SOLD, Reason: REASON_SOLD},
		}
	}
	return nil
}

// RecordAndAward records the event and its awards in one store transaction
func (l *ledger) RecordAndAward(ctx context.Context, event domain.MarketplaceEvent) (*RecordResult, error) {
	if !event.Valid() {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrInvalidEvent, event.EventType, event.TxHash)
	}

	ctx = logger.WithFields(ctx,
		zap.String("tx_hash", event.TxHash),
		zap.String("event_type", string(event.EventType)))

	awards := AwardsFor(event)

	opCtx, cancel := context.WithTimeout(ctx, l.config.OperationTimeout)
	recorded, err := l.store.RecordMarketplaceEvent(opCtx, store.RecordEventInput{
		Event:  event,
		Awards: awards,
	})
	cancel()
	if err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to record marketplace event"))
		return nil, fmt.Errorf("failed to record marketplace event %s: %w", event.TxHash, err)
	}

	if recorded.Duplicate {
		logger.DebugCtx(ctx, "Marketplace event already recorded")
		return &RecordResult{Duplicate: true}, nil
	}

	result := &RecordResult{
		EventID:   recorded.Event.ID,
		XPAwarded: recorded.Event.XPAwarded,
		Users:     recorded.Users,
		NewBadges: make(map[string][]domain.EarnedBadge),
	}

	logger.InfoCtx(ctx, "Recorded marketplace event",
		zap.Uint64("event_id", result.EventID),
		zap.Int64("xp_awarded", result.XPAwarded))

	now := l.clock.Now()
	for _, award := range awards {
		address := domain.NormalizeAddress(award.Address)
		user := recorded.Users[address]
		if user == nil {
			continue
		}

		l.notifyXPAwarded(ctx, messaging.XPAwardedNotification{
			Network:   l.config.Network,
			Address:   address,
			Amount:    award.Amount,
			Reason:    award.Reason,
			EventType: event.EventType,
			TxHash:    event.TxHash,
			EventID:   result.EventID,
			TotalXP:   user.TotalXP,
			Level:     user.Level,
			AwardedAt: now,
		})
	}

	// only a sale moves the stats badges are gated on
	if event.EventType != domain.EventTypeSold {
		return result, nil
	}

	for _, address := range awardedAddresses(awards) {
		if badges := l.CheckAndAwardBadges(ctx, address); len(badges) > 0 {
			result.NewBadges[address] = badges
		}
	}

	return result, nil
}

// awardedAddresses returns the distinct awarded addresses, in award order
func awardedAddresses(awards []store.XPAward) []string {
	seen := make(map[string]struct{}, len(awards))
	addresses := make([]string, 0, len(awards))
	for _, award := range awards {
		address := domain.NormalizeAddress(award.Address)
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}
		addresses = append(addresses, address)
	}
	return addresses
}

// AwardXP credits XP to one address
func (l *ledger) AwardXP(ctx context.Context, address string, amount int64, reason string, eventID *uint64) (*schema.User, error) {
	opCtx, cancel := context.WithTimeout(ctx, l.config.OperationTimeout)
	defer cancel()

	user, err := l.store.AwardXP(opCtx, store.AwardXPInput{
		Address: address,
		Amount:  amount,
		Reason:  reason,
		EventID: eventID,
	})
	if err != nil {
		logger.ErrorCtx(ctx, err,
			zap.String("message", "Failed to award xp"),
			zap.String("address", address),
			zap.Int64("amount", amount))
		return nil, fmt.Errorf("failed to award xp to %s: %w", address, err)
	}

	l.rank(ctx, user)
	return user, nil
}

// CheckAndAwardBadges evaluates the badge catalog against the address's stats
func (l *ledger) CheckAndAwardBadges(ctx context.Context, address string) []domain.EarnedBadge {
	address = domain.NormalizeAddress(address)
	earned, err := l.checkAndAwardBadges(ctx, address)
	if err != nil {
		logger.ErrorCtx(ctx, err,
			zap.String("message", "Badge evaluation failed"),
			zap.String("address", address))
	}
	if len(earned) == 0 {
		return []domain.EarnedBadge{}
	}
	return earned
}

func (l *ledger) checkAndAwardBadges(ctx context.Context, address string) ([]domain.EarnedBadge, error) {
	opCtx, cancel := context.WithTimeout(ctx, l.config.OperationTimeout)
	defer cancel()

	user, err := l.store.GetUser(opCtx, address)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// badges are only evaluated for addresses that hold XP
		return nil, nil
	}

	stats, err := l.store.GetUserStats(opCtx, address)
	if err != nil {
		return nil, err
	}

	definitions, err := l.store.GetBadgeDefinitions(opCtx)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	var earned []domain.EarnedBadge
	var errs []error
	for i := range definitions {
		definition := &definitions[i]
		if user.HasBadge(definition.Name) {
			continue
		}
		if !stats.Satisfies(definition.RequirementType, definition.RequirementValue, now) {
			continue
		}

		badge := definition.Badge(now)
		updated, granted, err := l.store.GrantBadge(opCtx, store.GrantBadgeInput{
			Address:  address,
			Badge:    badge,
			XPReward: definition.XPReward,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to grant badge %q: %w", definition.Name, err))
			continue
		}
		if !granted {
			// a concurrent evaluation granted it first
			continue
		}

		user = updated
		earned = append(earned, badge)

		logger.InfoCtx(ctx, "Badge earned",
			zap.String("address", address),
			zap.String("badge", definition.Name),
			zap.Int64("xp_reward", definition.XPReward))

		l.notifyBadgeEarned(ctx, messaging.BadgeEarnedNotification{
			Network:  l.config.Network,
			Address:  address,
			Badge:    badge,
			XPReward: definition.XPReward,
			TotalXP:  updated.TotalXP,
			Level:    updated.Level,
		})
	}

	return earned, errors.Join(errs...)
}

// rank projects the user's total into the leaderboard and returns the rank, nil when unavailable
func (l *ledger) rank(ctx context.Context, user *schema.User) *int64 {
	if l.leaderboard == nil || user == nil {
		return nil
	}

	rank, err := l.leaderboard.Update(ctx, user.WalletAddress, user.TotalXP)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to update leaderboard",
			zap.String("address", user.WalletAddress),
			zap.Error(err))
		return nil
	}
	return &rank
}

func (l *ledger) notifyXPAwarded(ctx context.Context, n messaging.XPAwardedNotification) {
	n.Rank = l.rank(ctx, &schema.User{WalletAddress: n.Address, TotalXP: n.TotalXP})

	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishXPAwarded(ctx, n); err != nil {
		logger.WarnCtx(ctx, "Failed to publish xp notification",
			zap.String("address", n.Address),
			zap.Error(err))
	}
}

func (l *ledger) notifyBadgeEarned(ctx context.Context, n messaging.BadgeEarnedNotification) {
	l.rank(ctx, &schema.User{WalletAddress: n.Address, TotalXP: n.TotalXP})

	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishBadgeEarned(ctx, n); err != nil {
		logger.WarnCtx(ctx, "Failed to publish badge notification",
			zap.String("address", n.Address),
			zap.String("badge", n.Badge.Name),
			zap.Error(err))
	}
}
