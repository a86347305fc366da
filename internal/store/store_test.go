package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
	"github.com/feral-file/ff-marketplace-ledger/internal/store/schema"
)

const (
	sellerAddress = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	buyerAddress  = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
)

// RunStoreTests runs the store test suite. initDB returns an isolated store,
// initShared returns a store whose transactions are visible to each other.
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, initShared func(t *testing.T) Store) {
	t.Run("RecordMarketplaceEvent", func(t *testing.T) { testRecordMarketplaceEvent(t, initDB(t)) })
	t.Run("RecordSoldEvent", func(t *testing.T) { testRecordSoldEvent(t, initDB(t)) })
	t.Run("RecordSelfSale", func(t *testing.T) { testRecordSelfSale(t, initDB(t)) })
	t.Run("AwardXP", func(t *testing.T) { testAwardXP(t, initDB(t)) })
	t.Run("GrantBadge", func(t *testing.T) { testGrantBadge(t, initDB(t)) })
	t.Run("GetUserStats", func(t *testing.T) { testGetUserStats(t, initDB(t)) })
	t.Run("BadgeDefinitions", func(t *testing.T) { testBadgeDefinitions(t, initDB(t)) })
	t.Run("BlockCursor", func(t *testing.T) { testBlockCursor(t, initDB(t)) })
	t.Run("LedgerDiscrepancies", func(t *testing.T) { testLedgerDiscrepancies(t, initDB(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, initDB(t).Ping(context.Background())) })
	t.Run("ConcurrentAwards", func(t *testing.T) { testConcurrentAwards(t, initShared(t)) })
	t.Run("ConcurrentDuplicateEvents", func(t *testing.T) { testConcurrentDuplicateEvents(t, initShared(t)) })
}

// =============================================================================
// Test Data Builders
// =============================================================================

func stringPtr(s string) *string {
	return &s
}

func buildListedEvent(txHash, seller, price string, blockNumber uint64) domain.MarketplaceEvent {
	return domain.MarketplaceEvent{
		Chain:        domain.ChainEthereumSepolia,
		EventType:    domain.EventTypeListed,
		TokenID:      "1",
		ActorAddress: seller,
		Price:        stringPtr(price),
		TxHash:       txHash,
		BlockNumber:  blockNumber,
	}
}

func buildSoldEvent(txHash, buyer, seller, price string, blockNumber uint64) domain.MarketplaceEvent {
	return domain.MarketplaceEvent{
		Chain:               domain.ChainEthereumSepolia,
		EventType:           domain.EventTypeSold,
		TokenID:             "1",
		ActorAddress:        buyer,
		CounterpartyAddress: stringPtr(seller),
		Price:               stringPtr(price),
		TxHash:              txHash,
		BlockNumber:         blockNumber,
	}
}

func buildDelistedEvent(txHash, seller string, blockNumber uint64) domain.MarketplaceEvent {
	return domain.MarketplaceEvent{
		Chain:        domain.ChainEthereumSepolia,
		EventType:    domain.EventTypeDelisted,
		TokenID:      "1",
		ActorAddress: seller,
		TxHash:       txHash,
		BlockNumber:  blockNumber,
	}
}

func soldAwards(buyer, seller string) []XPAward {
	return []XPAward{
		{Address: buyer, Amount: 100, Reason: "Bought NFT"},
		{Address: seller, Amount: 150, Reason: "Sold NFT"},
	}
}

func ledgerSum(t *testing.T, store Store, address string) int64 {
	transactions, err := store.GetXPTransactions(context.Background(), address)
	require.NoError(t, err)

	var sum int64
	for _, tx := range transactions {
		sum += tx.Amount
	}
	return sum
}

// =============================================================================
// Tests
// =============================================================================

func testRecordMarketplaceEvent(t *testing.T, store Store) {
	ctx := context.Background()
	event := buildListedEvent("0xlisted1", sellerAddress, "1.0", 100)

	result, err := store.RecordMarketplaceEvent(ctx, RecordEventInput{
		Event:  event,
		Awards: []XPAward{{Address: sellerAddress, Amount: 50, Reason: "Listed NFT"}},
	})
	require.NoError(t, err)
	require.False(t, result.Duplicate)
	require.NotNil(t, result.Event)
	assert.True(t, result.Event.Processed)
	assert.Equal(t, int64(50), result.Event.XPAwarded)
	assert.NotZero(t, result.Event.ID)

	user := result.Users[sellerAddress]
	require.NotNil(t, user)
	assert.Equal(t, int64(50), user.TotalXP)
	assert.Equal(t, 1, user.Level)

	stored, err := store.GetMarketplaceEventByTxHash(ctx, "0xlisted1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Processed)
	assert.Equal(t, int64(50), stored.XPAwarded)
	assert.Equal(t, domain.EventTypeListed, stored.EventType)
	assert.Equal(t, "1.0", *stored.Price)

	transactions, err := store.GetXPTransactions(ctx, sellerAddress)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, "Listed NFT", transactions[0].Reason)
	require.NotNil(t, transactions[0].EventID)
	assert.Equal(t, result.Event.ID, *transactions[0].EventID)

	t.Run("duplicate tx hash is a no-op", func(t *testing.T) {
		again, err := store.RecordMarketplaceEvent(ctx, RecordEventInput{
			Event:  event,
			Awards: []XPAward{{Address: sellerAddress, Amount: 50, Reason: "Listed NFT"}},
		})
		require.NoError(t, err)
		assert.True(t, again.Duplicate)
		assert.Nil(t, again.Event)

		user, err := store.GetUser(ctx, sellerAddress)
		require.NoError(t, err)
		assert.Equal(t, int64(50), user.TotalXP)
		assert.Equal(t, int64(50), ledgerSum(t, store, sellerAddress))
	})

	t.Run("missing event", func(t *testing.T) {
		missing, err := store.GetMarketplaceEventByTxHash(ctx, "0xmissing")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func testRecordSoldEvent(t *testing.T, store Store) {
	ctx := context.Background()

	result, err := store.RecordMarketplaceEvent(ctx, RecordEventInput{
		Event:  buildSoldEvent("0xsold1", buyerAddress, sellerAddress, "2.5", 200),
		Awards: soldAwards(buyerAddress, sellerAddress),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(250), result.Event.XPAwarded)
	require.NotNil(t, result.Event.CounterpartyAddress)
	assert.Equal(t, sellerAddress, *result.Event.CounterpartyAddress)

	buyer, err := store.GetUser(ctx, buyerAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(100), buyer.TotalXP)
	assert.Equal(t, 2, buyer.Level)

	seller, err := store.GetUser(ctx, sellerAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(150), seller.TotalXP)
	assert.Equal(t, 2, seller.Level)

	again, err := store.RecordMarketplaceEvent(ctx, RecordEventInput{
		Event:  buildSoldEvent("0xsold1", buyerAddress, sellerAddress, "2.5", 200),
		Awards: soldAwards(buyerAddress, sellerAddress),
	})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, int64(100), ledgerSum(t, store, buyerAddress))
	assert.Equal(t, int64(150), ledgerSum(t, store, sellerAddress))
}

func testRecordSelfSale(t *testing.T, store Store) {
	ctx := context.Background()

	result, err := store.RecordMarketplaceEvent(ctx, RecordEventInput{
		Event:  buildSoldEvent("0xself", sellerAddress, sellerAddress, "1.0", 300),
		Awards: soldAwards(sellerAddress, sellerAddress),
	})
	require.NoError(t, err)
	require.Len(t, result.Users, 1)
	assert.Equal(t, int64(250), result.Users[sellerAddress].TotalXP)

	user, err := store.GetUser(ctx, sellerAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(250), user.TotalXP)
	assert.Equal(t, int64(250), ledgerSum(t, store, sellerAddress))
}

func testAwardXP(t *testing.T, store Store) {
	ctx := context.Background()

	user, err := store.AwardXP(ctx, AwardXPInput{Address: "0xABCDEF0000000000000000000000000000000001", Amount: 400, Reason: "Backfill bonus"})
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", user.WalletAddress)
	assert.Equal(t, int64(400), user.TotalXP)
	assert.Equal(t, 3, user.Level)
	assert.Empty(t, user.Badges)

	user, err = store.AwardXP(ctx, AwardXPInput{Address: user.WalletAddress, Amount: -150, Reason: "Correction"})
	require.NoError(t, err)
	assert.Equal(t, int64(250), user.TotalXP)
	assert.Equal(t, 2, user.Level)
	assert.Equal(t, user.TotalXP, ledgerSum(t, store, user.WalletAddress))

	missing, err := store.GetUser(ctx, "0x0000000000000000000000000000000000000bad")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testGrantBadge(t *testing.T, store Store) {
	ctx := context.Background()
	earnedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	badge := domain.EarnedBadge{Name: "First Sale", Description: "Sold your first NFT", Icon: "coins", EarnedAt: earnedAt}

	_, err := store.AwardXP(ctx, AwardXPInput{Address: sellerAddress, Amount: 150, Reason: "Sold NFT"})
	require.NoError(t, err)

	user, granted, err := store.GrantBadge(ctx, GrantBadgeInput{Address: sellerAddress, Badge: badge, XPReward: 50})
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, int64(200), user.TotalXP)
	assert.Equal(t, 2, user.Level)
	require.Len(t, user.Badges, 1)
	assert.Equal(t, "First Sale", user.Badges[0].Name)

	stored, err := store.GetUser(ctx, sellerAddress)
	require.NoError(t, err)
	require.Len(t, stored.Badges, 1)
	assert.True(t, stored.HasBadge("First Sale"))
	assert.True(t, earnedAt.Equal(stored.Badges[0].EarnedAt))

	transactions, err := store.GetXPTransactions(ctx, sellerAddress)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	assert.Equal(t, "Earned badge: First Sale", transactions[1].Reason)
	assert.Equal(t, int64(50), transactions[1].Amount)
	assert.Nil(t, transactions[1].EventID)

	t.Run("badge is granted once", func(t *testing.T) {
		user, granted, err := store.GrantBadge(ctx, GrantBadgeInput{Address: sellerAddress, Badge: badge, XPReward: 50})
		require.NoError(t, err)
		assert.False(t, granted)
		assert.Equal(t, int64(200), user.TotalXP)
		assert.Len(t, user.Badges, 1)
		assert.Equal(t, int64(200), ledgerSum(t, store, sellerAddress))
	})

	t.Run("zero reward adds no transaction", func(t *testing.T) {
		_, granted, err := store.GrantBadge(ctx, GrantBadgeInput{
			Address: sellerAddress,
			Badge:   domain.EarnedBadge{Name: "Early Adopter", EarnedAt: earnedAt},
		})
		require.NoError(t, err)
		assert.True(t, granted)

		transactions, err := store.GetXPTransactions(ctx, sellerAddress)
		require.NoError(t, err)
		assert.Len(t, transactions, 2)
	})
}

func testGetUserStats(t *testing.T, store Store) {
	ctx := context.Background()

	inputs := []RecordEventInput{
		{Event: buildListedEvent("0xs1", sellerAddress, "1.0", 1), Awards: []XPAward{{Address: sellerAddress, Amount: 50, Reason: "Listed NFT"}}},
		{Event: buildSoldEvent("0xs2", buyerAddress, sellerAddress, "2.5", 2), Awards: soldAwards(buyerAddress, sellerAddress)},
		{Event: buildDelistedEvent("0xs3", sellerAddress, 3)},
		{Event: buildSoldEvent("0xs4", buyerAddress, sellerAddress, "0.25", 4), Awards: soldAwards(buyerAddress, sellerAddress)},
	}
	for _, input := range inputs {
		_, err := store.RecordMarketplaceEvent(ctx, input)
		require.NoError(t, err)
	}

	seller, err := store.GetUserStats(ctx, sellerAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seller.Purchases)
	assert.Equal(t, int64(2), seller.Sales)
	assert.Equal(t, int64(1), seller.Listings)
	// counterparty rows count too: one listing, one delisting, two sales
	assert.Equal(t, int64(4), seller.TotalTransactions)
	assert.True(t, decimal.RequireFromString("1.0").Equal(seller.TotalVolume), seller.TotalVolume.String())
	assert.False(t, seller.CreatedAt.IsZero())

	buyer, err := store.GetUserStats(ctx, buyerAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(2), buyer.Purchases)
	assert.Equal(t, int64(0), buyer.Sales)
	assert.Equal(t, int64(2), buyer.TotalTransactions)
	assert.True(t, decimal.RequireFromString("2.75").Equal(buyer.TotalVolume), buyer.TotalVolume.String())

	stranger, err := store.GetUserStats(ctx, "0x0000000000000000000000000000000000000042")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stranger.TotalTransactions)
	assert.True(t, stranger.TotalVolume.IsZero())
	assert.True(t, stranger.CreatedAt.IsZero())
}

func testBadgeDefinitions(t *testing.T, store Store) {
	ctx := context.Background()

	seeded, err := store.GetBadgeDefinitions(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, seeded)
	for _, d := range seeded {
		assert.True(t, d.RequirementType.Valid(), d.Name)
	}

	definition := schema.BadgeDefinition{
		Name:             "Power Seller",
		Description:      "Sold 50 NFTs",
		Icon:             "rocket",
		RequirementType:  domain.RequirementSales,
		RequirementValue: decimal.NewFromInt(50),
		XPReward:         1000,
	}
	require.NoError(t, store.UpsertBadgeDefinition(ctx, definition))

	definition.XPReward = 1500
	require.NoError(t, store.UpsertBadgeDefinition(ctx, definition))

	all, err := store.GetBadgeDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(seeded)+1)

	last := all[len(all)-1]
	assert.Equal(t, "Power Seller", last.Name)
	assert.Equal(t, int64(1500), last.XPReward)
	assert.True(t, decimal.NewFromInt(50).Equal(last.RequirementValue))

	err = store.UpsertBadgeDefinition(ctx, schema.BadgeDefinition{Name: "Broken", RequirementType: "karma"})
	assert.Error(t, err)
}

func testBlockCursor(t *testing.T, store Store) {
	ctx := context.Background()

	cursor, err := store.GetBlockCursor(ctx, "sepolia")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cursor)

	require.NoError(t, store.SetBlockCursor(ctx, "sepolia", 100))
	require.NoError(t, store.SetBlockCursor(ctx, "sepolia", 250))
	require.NoError(t, store.SetBlockCursor(ctx, "base", 7))

	cursor, err = store.GetBlockCursor(ctx, "sepolia")
	require.NoError(t, err)
	assert.Equal(t, uint64(250), cursor)

	cursor, err = store.GetBlockCursor(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cursor)
}

func testLedgerDiscrepancies(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.AwardXP(ctx, AwardXPInput{Address: sellerAddress, Amount: 400, Reason: "Sold NFT"})
	require.NoError(t, err)
	_, err = store.AwardXP(ctx, AwardXPInput{Address: buyerAddress, Amount: 100, Reason: "Bought NFT"})
	require.NoError(t, err)

	discrepancies, err := store.GetLedgerDiscrepancies(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)

	db := store.(*pgStore).db
	require.NoError(t, db.Exec("UPDATE users SET total_xp = 999 WHERE wallet_address = ?", sellerAddress).Error)
	require.NoError(t, db.Exec("UPDATE users SET level = 7 WHERE wallet_address = ?", buyerAddress).Error)

	discrepancies, err = store.GetLedgerDiscrepancies(ctx, 10)
	require.NoError(t, err)
	require.Len(t, discrepancies, 2)

	byAddress := map[string]LedgerDiscrepancy{}
	for _, d := range discrepancies {
		byAddress[d.WalletAddress] = d
	}
	assert.Equal(t, int64(999), byAddress[sellerAddress].TotalXP)
	assert.Equal(t, int64(400), byAddress[sellerAddress].LedgerXP)
	assert.Equal(t, 7, byAddress[buyerAddress].Level)
}

func testConcurrentAwards(t *testing.T, store Store) {
	ctx := context.Background()
	const workers = 20

	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.AwardXP(ctx, AwardXPInput{Address: sellerAddress, Amount: 10, Reason: "Listed NFT"})
			errs <- err
		}()
		// alternate buyer/seller roles so the two rows are locked by opposing transactions
		go func(i int) {
			defer wg.Done()
			buyer, seller := buyerAddress, sellerAddress
			if i%2 == 0 {
				buyer, seller = seller, buyer
			}
			_, err := store.RecordMarketplaceEvent(ctx, RecordEventInput{
				Event:  buildSoldEvent(fmt.Sprintf("0xconcurrent%d", i), buyer, seller, "1.0", uint64(i)),
				Awards: soldAwards(buyer, seller),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	seller, err := store.GetUser(ctx, sellerAddress)
	require.NoError(t, err)
	buyer, err := store.GetUser(ctx, buyerAddress)
	require.NoError(t, err)

	// each address is buyer in half of the sales and seller in the other half
	assert.Equal(t, int64(workers*10+workers/2*250), seller.TotalXP)
	assert.Equal(t, int64(workers/2*250), buyer.TotalXP)
	assert.Equal(t, seller.TotalXP, ledgerSum(t, store, sellerAddress))
	assert.Equal(t, buyer.TotalXP, ledgerSum(t, store, buyerAddress))
	assert.Equal(t, domain.LevelForXP(seller.TotalXP), seller.Level)
}

func testConcurrentDuplicateEvents(t *testing.T, store Store) {
	ctx := context.Background()
	const workers = 10

	var inserted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := store.RecordMarketplaceEvent(ctx, RecordEventInput{
				Event:  buildListedEvent("0xrace", sellerAddress, "1.0", 1),
				Awards: []XPAward{{Address: sellerAddress, Amount: 50, Reason: "Listed NFT"}},
			})
			if assert.NoError(t, err) && !result.Duplicate {
				inserted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inserted.Load())

	user, err := store.GetUser(ctx, sellerAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(50), user.TotalXP)
	assert.Equal(t, int64(50), ledgerSum(t, store, sellerAddress))
}
