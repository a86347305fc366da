package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feral-file/ff-marketplace-ledger/internal/adapter"
	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
	"github.com/feral-file/ff-marketplace-ledger/internal/logger"
	"github.com/feral-file/ff-marketplace-ledger/internal/store/schema"
)

// BADGE_REWARD_REASON_PREFIX prefixes the reason of every badge reward transaction
const BADGE_REWARD_REASON_PREFIX = "Earned badge: "

type pgStore struct {
	db    *gorm.DB
	clock adapter.Clock
}

// NewPGStore creates a new PostgreSQL store instance.
// Timestamps written by the store, users.created_at included, come from clock.
func NewPGStore(db *gorm.DB, clock adapter.Clock) Store {
	if clock == nil {
		clock = adapter.NewClock()
	}
	return &pgStore{db: db, clock: clock}
}

// ConfigureConnectionPool applies pool settings to the sql.DB behind a gorm connection
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings fills zero settings with defaults
// (20 open, 5 idle, 5m lifetime, 10m idle time) and caps idle connections at the open limit
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns <= 0 {
		maxOpenConns = 20
	}
	if maxIdleConns <= 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime <= 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime <= 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// RecordMarketplaceEvent inserts, awards and finalizes a marketplace event atomically
func (s *pgStore) RecordMarketplaceEvent(ctx context.Context, input RecordEventInput) (*RecordEventResult, error) {
	e := input.Event
	now := s.clock.Now()
	row := schema.MarketplaceEvent{
		EventType:           e.EventType,
		TxHash:              e.TxHash,
		BlockNumber:         e.BlockNumber,
		LogIndex:            e.LogIndex,
		ActorAddress:        domain.NormalizeAddress(e.ActorAddress),
		CounterpartyAddress: normalizeOptionalAddress(e.CounterpartyAddress),
		TokenID:             e.TokenID,
		Price:               e.Price,
		Processed:           false,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	result := &RecordEventResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The unique index on tx_hash is the deduplication point
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tx_hash"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("failed to insert marketplace event: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			result.Duplicate = true
			return nil
		}

		users, err := s.applyAwards(tx, input.Awards, &row.ID)
		if err != nil {
			return err
		}

		var xpAwarded int64
		for _, award := range input.Awards {
			xpAwarded += award.Amount
		}

		if err := tx.Model(&schema.MarketplaceEvent{}).
			Where("id = ?", row.ID).
			Updates(map[string]interface{}{
				"processed":  true,
				"xp_awarded": xpAwarded,
				"updated_at": now,
			}).Error; err != nil {
			return fmt.Errorf("failed to finalize marketplace event: %w", err)
		}

		row.Processed = true
		row.XPAwarded = xpAwarded
		result.Event = &row
		result.Users = users
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func normalizeOptionalAddress(address *string) *string {
	if address == nil {
		return nil
	}
	normalized := domain.NormalizeAddress(*address)
	return &normalized
}

// lockUsers creates missing users and locks every user row of the given addresses.
// Rows are created and locked in address order so concurrent transactions cannot deadlock.
func (s *pgStore) lockUsers(tx *gorm.DB, addresses []string) (map[string]*schema.User, error) {
	unique := make(map[string]struct{}, len(addresses))
	sorted := make([]string, 0, len(addresses))
	for _, address := range addresses {
		address = domain.NormalizeAddress(address)
		if _, ok := unique[address]; ok {
			continue
		}
		unique[address] = struct{}{}
		sorted = append(sorted, address)
	}
	sort.Strings(sorted)

	if len(sorted) == 0 {
		return map[string]*schema.User{}, nil
	}

	now := s.clock.Now()
	newUsers := make([]schema.User, 0, len(sorted))
	for _, address := range sorted {
		newUsers = append(newUsers, schema.User{
			WalletAddress: address,
			TotalXP:       0,
			Level:         domain.LevelForXP(0),
			Badges:        datatypes.JSONSlice[domain.EarnedBadge]{},
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet_address"}},
		DoNothing: true,
	}).Create(&newUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to create users: %w", err)
	}

	var locked []schema.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("wallet_address IN ?", sorted).
		Order("wallet_address").
		Find(&locked).Error; err != nil {
		return nil, fmt.Errorf("failed to lock users: %w", err)
	}
	if len(locked) != len(sorted) {
		return nil, fmt.Errorf("%w: locked %d of %d users", domain.ErrUserNotFound, len(locked), len(sorted))
	}

	users := make(map[string]*schema.User, len(locked))
	for i := range locked {
		users[locked[i].WalletAddress] = &locked[i]
	}
	return users, nil
}

// applyAwards credits every award inside tx and persists the recomputed totals and levels
func (s *pgStore) applyAwards(tx *gorm.DB, awards []XPAward, eventID *uint64) (map[string]*schema.User, error) {
	addresses := make([]string, 0, len(awards))
	for _, award := range awards {
		addresses = append(addresses, award.Address)
	}

	users, err := s.lockUsers(tx, addresses)
	if err != nil {
		return nil, err
	}

	for _, award := range awards {
		user := users[domain.NormalizeAddress(award.Address)]
		if err := s.creditXP(tx, user, award.Amount, award.Reason, eventID); err != nil {
			return nil, err
		}
	}

	if err := s.saveUsers(tx, users); err != nil {
		return nil, err
	}

	return users, nil
}

// creditXP appends an XP transaction and updates the in-memory user
func (s *pgStore) creditXP(tx *gorm.DB, user *schema.User, amount int64, reason string, eventID *uint64) error {
	xpTransaction := schema.XPTransaction{
		UserAddress: user.WalletAddress,
		Amount:      amount,
		Reason:      reason,
		EventID:     eventID,
		CreatedAt:   s.clock.Now(),
	}
	if err := tx.Create(&xpTransaction).Error; err != nil {
		return fmt.Errorf("failed to insert xp transaction: %w", err)
	}

	user.TotalXP += amount
	user.Level = domain.LevelForXP(user.TotalXP)
	return nil
}

func (s *pgStore) saveUsers(tx *gorm.DB, users map[string]*schema.User) error {
	now := s.clock.Now()
	for address, user := range users {
		if err := tx.Model(&schema.User{}).
			Where("wallet_address = ?", address).
			Updates(map[string]interface{}{
				"total_xp":   user.TotalXP,
				"level":      user.Level,
				"badges":     user.Badges,
				"updated_at": now,
			}).Error; err != nil {
			return fmt.Errorf("failed to update user %s: %w", address, err)
		}
		user.UpdatedAt = now
	}
	return nil
}

// GetMarketplaceEventByTxHash returns the event recorded for a tx hash
func (s *pgStore) GetMarketplaceEventByTxHash(ctx context.Context, txHash string) (*schema.MarketplaceEvent, error) {
	var event schema.MarketplaceEvent
	err := s.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get marketplace event: %w", err)
	}
	return &event, nil
}

// AwardXP credits XP to one user
func (s *pgStore) AwardXP(ctx context.Context, input AwardXPInput) (*schema.User, error) {
	var user *schema.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users, err := s.applyAwards(tx, []XPAward{{
			Address: input.Address,
			Amount:  input.Amount,
			Reason:  input.Reason,
		}}, input.EventID)
		if err != nil {
			return err
		}
		user = users[domain.NormalizeAddress(input.Address)]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GrantBadge appends a badge under row lock and credits its XP reward
func (s *pgStore) GrantBadge(ctx context.Context, input GrantBadgeInput) (*schema.User, bool, error) {
	address := domain.NormalizeAddress(input.Address)

	var user *schema.User
	granted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users, err := s.lockUsers(tx, []string{address})
		if err != nil {
			return err
		}
		user = users[address]

		if user.HasBadge(input.Badge.Name) {
			return nil
		}

		user.Badges = append(user.Badges, input.Badge)
		if input.XPReward > 0 {
			if err := s.creditXP(tx, user, input.XPReward, BADGE_REWARD_REASON_PREFIX+input.Badge.Name, nil); err != nil {
				return err
			}
		}

		if err := s.saveUsers(tx, users); err != nil {
			return err
		}

		granted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return user, granted, nil
}

// GetUser returns a user by wallet address
func (s *pgStore) GetUser(ctx context.Context, address string) (*schema.User, error) {
	var user schema.User
	err := s.db.WithContext(ctx).Where("wallet_address = ?", domain.NormalizeAddress(address)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

type userStatsRow struct {
	Purchases         int64
	Sales             int64
	Listings          int64
	TotalTransactions int64
	TotalVolume       *string
}

// GetUserStats aggregates the recorded marketplace events of an address.
// Purchases, listings and volume count events where the address is the actor,
// sales count Sold events where it is the seller and transactions count every event on either side.
func (s *pgStore) GetUserStats(ctx context.Context, address string) (*domain.UserStats, error) {
	address = domain.NormalizeAddress(address)

	var row userStatsRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) FILTER (WHERE event_type = @sold AND actor_address = @address) AS purchases,
			COUNT(*) FILTER (WHERE event_type = @sold AND counterparty_address = @address) AS sales,
			COUNT(*) FILTER (WHERE event_type = @listed AND actor_address = @address) AS listings,
			COUNT(*) AS total_transactions,
			(SUM(price::numeric) FILTER (WHERE actor_address = @address AND price IS NOT NULL))::text AS total_volume
		FROM marketplace_events
		WHERE processed = true
			AND (actor_address = @address OR counterparty_address = @address)`,
		map[string]interface{}{
			"address": address,
			"sold":    string(domain.EventTypeSold),
			"listed":  string(domain.EventTypeListed),
		}).Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user stats: %w", err)
	}

	volume, err := totalVolume(row.TotalVolume)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total volume: %w", err)
	}

	stats := &domain.UserStats{
		Purchases:         row.Purchases,
		Sales:             row.Sales,
		Listings:          row.Listings,
		TotalTransactions: row.TotalTransactions,
		TotalVolume:       volume,
	}

	user, err := s.GetUser(ctx, address)
	if err != nil {
		return nil, err
	}
	if user != nil {
		stats.CreatedAt = user.CreatedAt
	}

	return stats, nil
}

// GetXPTransactions returns the XP ledger of a user
func (s *pgStore) GetXPTransactions(ctx context.Context, address string) ([]schema.XPTransaction, error) {
	var transactions []schema.XPTransaction
	err := s.db.WithContext(ctx).
		Where("user_address = ?", domain.NormalizeAddress(address)).
		Order("id ASC").
		Find(&transactions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get xp transactions: %w", err)
	}
	return transactions, nil
}

// GetLedgerDiscrepancies finds users whose total_xp differs from the ledger sum or whose level is stale
func (s *pgStore) GetLedgerDiscrepancies(ctx context.Context, limit int) ([]LedgerDiscrepancy, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []LedgerDiscrepancy
	err := s.db.WithContext(ctx).Raw(`
		SELECT u.wallet_address, u.total_xp, u.level, COALESCE(SUM(x.amount), 0) AS ledger_xp
		FROM users u
		LEFT JOIN xp_transactions x ON x.user_address = u.wallet_address
		GROUP BY u.wallet_address, u.total_xp, u.level
		HAVING u.total_xp <> COALESCE(SUM(x.amount), 0)
			OR u.level <> FLOOR(SQRT((GREATEST(u.total_xp, 0) / 100)::float8))::int + 1
		ORDER BY u.wallet_address
		LIMIT ?`, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to audit xp ledger: %w", err)
	}
	return rows, nil
}

// GetBadgeDefinitions returns the badge catalog in definition order
func (s *pgStore) GetBadgeDefinitions(ctx context.Context) ([]schema.BadgeDefinition, error) {
	var definitions []schema.BadgeDefinition
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&definitions).Error; err != nil {
		return nil, fmt.Errorf("failed to get badge definitions: %w", err)
	}
	return definitions, nil
}

// UpsertBadgeDefinition creates or replaces a badge definition by name
func (s *pgStore) UpsertBadgeDefinition(ctx context.Context, definition schema.BadgeDefinition) error {
	if !definition.RequirementType.Valid() {
		return fmt.Errorf("invalid badge requirement type: %s", definition.RequirementType)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "icon", "requirement_type", "requirement_value", "xp_reward"}),
	}).Create(&definition).Error
	if err != nil {
		return fmt.Errorf("failed to upsert badge definition: %w", err)
	}
	return nil
}

func blockCursorKey(network string) string {
	return fmt.Sprintf("block_cursor:%s", network)
}

// GetBlockCursor retrieves the last fully replayed block number for a network
func (s *pgStore) GetBlockCursor(ctx context.Context, network string) (uint64, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", blockCursorKey(network)).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get block cursor: %w", err)
	}

	blockNumber, err := strconv.ParseUint(kv.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse block cursor: %w", err)
	}

	return blockNumber, nil
}

// SetBlockCursor stores the last fully replayed block number for a network
func (s *pgStore) SetBlockCursor(ctx context.Context, network string, blockNumber uint64) error {
	kv := schema.KeyValueStore{
		Key:   blockCursorKey(network),
		Value: strconv.FormatUint(blockNumber, 10),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"value": kv.Value, "updated_at": s.clock.Now()}),
	}).Create(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to set block cursor: %w", err)
	}

	logger.DebugCtx(ctx, "Stored block cursor", zap.String("network", network), zap.Uint64("block_number", blockNumber))
	return nil
}

// Ping checks the database connection
func (s *pgStore) Ping(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
