package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
	"github.com/feral-file/ff-marketplace-ledger/internal/store/schema"
)

// XPAward is one XP credit applied inside a store transaction
type XPAward struct {
	Address string
	Amount  int64
	Reason  string
}

// RecordEventInput is the input of Store.RecordMarketplaceEvent
type RecordEventInput struct {
	Event  domain.MarketplaceEvent
	Awards []XPAward
}

// RecordEventResult is the outcome of Store.RecordMarketplaceEvent
type RecordEventResult struct {
	// Duplicate is true when an event with the same tx hash already exists; nothing was written
	Duplicate bool
	// Event is the finalized row, nil when Duplicate
	Event *schema.MarketplaceEvent
	// Users holds the state of every awarded user after the transaction, keyed by address
	Users map[string]*schema.User
}

// AwardXPInput is the input of Store.AwardXP
type AwardXPInput struct {
	Address string
	Amount  int64
	Reason  string
	EventID *uint64
}

// GrantBadgeInput is the input of Store.GrantBadge
type GrantBadgeInput struct {
	Address string
	Badge   domain.EarnedBadge
	// XPReward is credited with reason "Earned badge: <name>" when positive
	XPReward int64
}

// LedgerDiscrepancy describes a user whose cached XP state disagrees with the XP ledger
type LedgerDiscrepancy struct {
	WalletAddress string
	TotalXP       int64
	LedgerXP      int64
	Level         int
}

// Store defines the interface for database operations
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	// RecordMarketplaceEvent inserts the event, applies every award and finalizes the row in one transaction.
	// An existing row with the same tx hash makes the call a no-op reported as Duplicate.
	RecordMarketplaceEvent(ctx context.Context, input RecordEventInput) (*RecordEventResult, error)
	// GetMarketplaceEventByTxHash returns the event recorded for a tx hash, nil if none
	GetMarketplaceEventByTxHash(ctx context.Context, txHash string) (*schema.MarketplaceEvent, error)

	// AwardXP credits XP to a user in one transaction, creating the user when absent
	AwardXP(ctx context.Context, input AwardXPInput) (*schema.User, error)
	// GrantBadge appends a badge and credits its reward in one transaction.
	// It returns granted=false when the user already holds the badge.
	GrantBadge(ctx context.Context, input GrantBadgeInput) (user *schema.User, granted bool, err error)
	// GetUser returns a user by wallet address, nil if none
	GetUser(ctx context.Context, address string) (*schema.User, error)
	// GetUserStats aggregates the marketplace activity of an address
	GetUserStats(ctx context.Context, address string) (*domain.UserStats, error)
	// GetXPTransactions returns the XP ledger of a user, oldest first
	GetXPTransactions(ctx context.Context, address string) ([]schema.XPTransaction, error)
	// GetLedgerDiscrepancies returns users whose total_xp or level disagree with their XP ledger
	GetLedgerDiscrepancies(ctx context.Context, limit int) ([]LedgerDiscrepancy, error)

	// GetBadgeDefinitions returns the badge catalog
	GetBadgeDefinitions(ctx context.Context) ([]schema.BadgeDefinition, error)
	// UpsertBadgeDefinition creates or replaces a badge definition by name
	UpsertBadgeDefinition(ctx context.Context, definition schema.BadgeDefinition) error

	// GetBlockCursor retrieves the last fully replayed block number for a network
	GetBlockCursor(ctx context.Context, network string) (uint64, error)
	// SetBlockCursor stores the last fully replayed block number for a network
	SetBlockCursor(ctx context.Context, network string, blockNumber uint64) error

	// Ping checks the database connection
	Ping(ctx context.Context) error
}

// totalVolume parses the summed price column; an empty sum is zero
func totalVolume(sum *string) (decimal.Decimal, error) {
	if sum == nil || *sum == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*sum)
}
