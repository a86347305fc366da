package ingestor_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
	"github.com/feral-file/ff-marketplace-ledger/internal/ingestor"
	"github.com/feral-file/ff-marketplace-ledger/internal/ledger"
	"github.com/feral-file/ff-marketplace-ledger/internal/logger"
	"github.com/feral-file/ff-marketplace-ledger/internal/mocks"
	"github.com/feral-file/ff-marketplace-ledger/internal/providers/ethereum"
)

const (
	testNetwork  = "sepolia"
	testRPCURL   = "https://rpc.sepolia.example"
	testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	testSeller   = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testBuyer    = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	testHead     = uint64(1500)
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

type testIngestorMocks struct {
	ctrl      *gomock.Controller
	dialer    *mocks.MockEthClientDialer
	ethClient *mocks.MockEthClient
	ledger    *mocks.MockLedger
	store     *mocks.MockStore
	clock     *mocks.MockClock
	ticker    *mocks.MockTicker
	ticks     chan time.Time
	ingestor  ingestor.Ingestor

	mu       sync.Mutex
	recorded []string
}

func testConfig() ingestor.Config {
	return ingestor.Config{
		Network:                testNetwork,
		Chain:                  domain.ChainEthereumSepolia,
		RPCURL:                 testRPCURL,
		ContractAddress:        testContract,
		ChainID:                11155111,
		BackfillWindow:         1000,
		PollInterval:           time.Second,
		HandlerRetryInterval:   time.Millisecond,
		HandlerRetryMaxElapsed: 50 * time.Millisecond,
		ResubscribeInterval:    time.Millisecond,
		BlockHeadTTL:           time.Nanosecond,
	}
}

func setupTestIngestor(t *testing.T, cfg ingestor.Config) *testIngestorMocks {
	ctrl := gomock.NewController(t)
	tm := &testIngestorMocks{
		ctrl:      ctrl,
		dialer:    mocks.NewMockEthClientDialer(ctrl),
		ethClient: mocks.NewMockEthClient(ctrl),
		ledger:    mocks.NewMockLedger(ctrl),
		store:     mocks.NewMockStore(ctrl),
		clock:     mocks.NewMockClock(ctrl),
		ticker:    mocks.NewMockTicker(ctrl),
		ticks:     make(chan time.Time),
	}

	tm.clock.EXPECT().Now().DoAndReturn(time.Now).AnyTimes()
	tm.clock.EXPECT().NewTicker(gomock.Any()).Return(tm.ticker).AnyTimes()
	tm.ticker.EXPECT().C().Return((<-chan time.Time)(tm.ticks)).AnyTimes()
	tm.ticker.EXPECT().Stop().AnyTimes()

	tm.ingestor = ingestor.New(cfg, tm.dialer, tm.ledger, tm.store, tm.clock)
	return tm
}

// expectConnect stubs dialing, the chain id check and the head lookups
func (tm *testIngestorMocks) expectConnect(head uint64) {
	tm.dialer.EXPECT().Dial(gomock.Any(), testRPCURL).Return(tm.ethClient, nil)
	tm.ethClient.EXPECT().ChainID(gomock.Any()).Return(big.NewInt(11155111), nil)
	tm.ethClient.EXPECT().HeaderByNumber(gomock.Any(), nil).
		Return(&types.Header{Number: new(big.Int).SetUint64(head)}, nil).AnyTimes()
}

// expectLogs serves FilterLogs from a fixed set of logs keyed by event signature
func (tm *testIngestorMocks) expectLogs(logs map[domain.MarketplaceEventType][]types.Log, failing ...domain.MarketplaceEventType) {
	tm.ethClient.EXPECT().FilterLogs(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			for _, eventType := range domain.MarketplaceEventTypes {
				signature, _ := ethereum.EventSignature(eventType)
				if q.Topics[0][0] != signature {
					continue
				}
				for _, f := range failing {
					if f == eventType {
						return nil, errors.New("upstream connect error")
					}
				}
				return logs[eventType], nil
			}
			return nil, nil
		}).AnyTimes()
}

// expectPollingEndpoint makes every subscription fail as on an http endpoint
func (tm *testIngestorMocks) expectPollingEndpoint() {
	tm.ethClient.EXPECT().SubscribeFilterLogs(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, rpc.ErrNotificationsUnsupported).AnyTimes()
}

// expectRecording records the tx hash of every ledger call
func (tm *testIngestorMocks) expectRecording() {
	tm.ledger.EXPECT().RecordAndAward(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, event domain.MarketplaceEvent) (*ledger.RecordResult, error) {
			tm.mu.Lock()
			defer tm.mu.Unlock()
			tm.recorded = append(tm.recorded, event.TxHash)
			return &ledger.RecordResult{EventID: uint64(len(tm.recorded))}, nil
		}).AnyTimes()
}

func (tm *testIngestorMocks) recordedTxHashes() []string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return append([]string(nil), tm.recorded...)
}

func addressTopic(address string) common.Hash {
	return common.BytesToHash(common.HexToAddress(address).Bytes())
}

func priceData(ether int64) []byte {
	wei := new(big.Int).Mul(big.NewInt(ether), big.NewInt(1_000_000_000_000_000_000))
	return common.LeftPadBytes(wei.Bytes(), 32)
}

func marketplaceLog(eventType domain.MarketplaceEventType, blockNumber uint64, index uint) types.Log {
	signature, _ := ethereum.EventSignature(eventType)
	vLog := types.Log{
		Address:     common.HexToAddress(testContract),
		Topics:      []common.Hash{signature, common.BigToHash(big.NewInt(7))},
		BlockNumber: blockNumber,
		TxHash:      crypto.Keccak256Hash([]byte(fmt.Sprintf("%s-%d-%d", eventType, blockNumber, index))),
		Index:       index,
	}

	switch eventType {
	case domain.EventTypeListed:
		vLog.Topics = append(vLog.Topics, addressTopic(testSeller))
		vLog.Data = priceData(1)
	case domain.EventTypeSold:
		vLog.Topics = append(vLog.Topics, addressTopic(testBuyer), addressTopic(testSeller))
		vLog.Data = priceData(2)
	case domain.EventTypeDelisted:
		vLog.Topics = append(vLog.Topics, addressTopic(testSeller))
	}
	return vLog
}

func TestStart_Unresolved(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(cfg *ingestor.Config)
		expected error
	}{
		{
			name:     "missing endpoint",
			mutate:   func(cfg *ingestor.Config) { cfg.RPCURL = "" },
			expected: domain.ErrEndpointUnresolved,
		},
		{
			name:     "missing contract",
			mutate:   func(cfg *ingestor.Config) { cfg.ContractAddress = "" },
			expected: domain.ErrContractUnresolved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			tm := setupTestIngestor(t, cfg)

			err := tm.ingestor.Start(context.Background())
			assert.ErrorIs(t, err, tt.expected)
			assert.False(t, tm.ingestor.Status().Running)
		})
	}
}

func TestStart_DialError(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())
	tm.dialer.EXPECT().Dial(gomock.Any(), testRPCURL).Return(nil, errors.New("connection refused"))

	err := tm.ingestor.Start(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestStart_ChainIDMismatch(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())
	tm.dialer.EXPECT().Dial(gomock.Any(), testRPCURL).Return(tm.ethClient, nil)
	tm.ethClient.EXPECT().ChainID(gomock.Any()).Return(big.NewInt(1), nil)
	tm.ethClient.EXPECT().Close()

	err := tm.ingestor.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrEndpointUnresolved)
	assert.False(t, tm.ingestor.Status().Running)
}

func TestStart_BackfillsInChainOrder(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())
	ctx := context.Background()

	listed := marketplaceLog(domain.EventTypeListed, 600, 0)
	sold := marketplaceLog(domain.EventTypeSold, 700, 1)
	delisted := marketplaceLog(domain.EventTypeDelisted, 650, 4)
	relisted := marketplaceLog(domain.EventTypeListed, 700, 0)

	tm.expectConnect(testHead)
	tm.expectLogs(map[domain.MarketplaceEventType][]types.Log{
		domain.EventTypeListed:   {listed, relisted},
		domain.EventTypeSold:     {sold},
		domain.EventTypeDelisted: {delisted},
	})
	tm.expectPollingEndpoint()
	tm.expectRecording()
	tm.store.EXPECT().SetBlockCursor(gomock.Any(), testNetwork, testHead).Return(nil)
	tm.ethClient.EXPECT().Close()

	require.NoError(t, tm.ingestor.Start(ctx))
	defer tm.ingestor.Stop()

	assert.Equal(t, []string{
		listed.TxHash.Hex(),
		delisted.TxHash.Hex(),
		relisted.TxHash.Hex(),
		sold.TxHash.Hex(),
	}, tm.recordedTxHashes())

	status := tm.ingestor.Status()
	assert.True(t, status.Running)
	assert.Equal(t, testNetwork, status.Network)
	assert.NotEmpty(t, status.InstanceID)
	assert.Equal(t, testHead, status.Watermark)
	assert.Equal(t, uint64(700), status.LastProcessedBlock)
	assert.Equal(t, uint64(4), status.Processed)
	assert.Equal(t, uint64(0), status.Failed)
	assert.NotNil(t, status.StartedAt)

	assert.ErrorIs(t, tm.ingestor.Start(ctx), domain.ErrAlreadyRunning)
}

func TestStart_BackfillWindowQueriesRecentBlocks(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())

	tm.expectConnect(testHead)
	tm.ethClient.EXPECT().FilterLogs(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			assert.Equal(t, int64(500), q.FromBlock.Int64())
			assert.Equal(t, int64(testHead), q.ToBlock.Int64())
			assert.Equal(t, []common.Address{common.HexToAddress(testContract)}, q.Addresses)
			return nil, nil
		}).Times(3)
	tm.expectPollingEndpoint()
	tm.store.EXPECT().SetBlockCursor(gomock.Any(), testNetwork, testHead).Return(nil)
	tm.ethClient.EXPECT().Close()

	require.NoError(t, tm.ingestor.Start(context.Background()))
	tm.ingestor.Stop()
}

func TestStart_ShortChainBackfillsFromGenesis(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())

	tm.expectConnect(200)
	tm.ethClient.EXPECT().FilterLogs(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			assert.Equal(t, int64(0), q.FromBlock.Int64())
			return nil, nil
		}).Times(3)
	tm.expectPollingEndpoint()
	tm.store.EXPECT().SetBlockCursor(gomock.Any(), testNetwork, uint64(200)).Return(nil)
	tm.ethClient.EXPECT().Close()

	require.NoError(t, tm.ingestor.Start(context.Background()))
	tm.ingestor.Stop()
}

func TestStart_FailedQueryKeepsCursor(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())

	listed := marketplaceLog(domain.EventTypeListed, 600, 0)

	tm.expectConnect(testHead)
	tm.expectLogs(map[domain.MarketplaceEventType][]types.Log{
		domain.EventTypeListed: {listed},
	}, domain.EventTypeSold)
	tm.expectPollingEndpoint()
	tm.expectRecording()
	tm.ethClient.EXPECT().Close()
	// no SetBlockCursor: the reconciler re-covers the range

	require.NoError(t, tm.ingestor.Start(context.Background()))
	defer tm.ingestor.Stop()

	assert.Equal(t, []string{listed.TxHash.Hex()}, tm.recordedTxHashes())
}

func TestHandler_RetriesTransientLedgerErrors(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())
	listed := marketplaceLog(domain.EventTypeListed, 600, 0)

	tm.expectConnect(testHead)
	tm.expectLogs(map[domain.MarketplaceEventType][]types.Log{
		domain.EventTypeListed: {listed},
	})
	tm.expectPollingEndpoint()
	gomock.InOrder(
		tm.ledger.EXPECT().RecordAndAward(gomock.Any(), gomock.Any()).Return(nil, errors.New("deadlock detected")),
		tm.ledger.EXPECT().RecordAndAward(gomock.Any(), gomock.Any()).Return(&ledger.RecordResult{EventID: 1}, nil),
	)
	tm.store.EXPECT().SetBlockCursor(gomock.Any(), testNetwork, testHead).Return(nil)
	tm.ethClient.EXPECT().Close()

	require.NoError(t, tm.ingestor.Start(context.Background()))
	defer tm.ingestor.Stop()

	status := tm.ingestor.Status()
	assert.Equal(t, uint64(1), status.Processed)
	assert.Equal(t, uint64(0), status.Failed)
}

func TestHandler_GivesUpAfterMaxElapsed(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())
	listed := marketplaceLog(domain.EventTypeListed, 600, 0)
	sold := marketplaceLog(domain.EventTypeSold, 601, 0)

	tm.expectConnect(testHead)
	tm.expectLogs(map[domain.MarketplaceEventType][]types.Log{
		domain.EventTypeListed: {listed},
		domain.EventTypeSold:   {sold},
	})
	tm.expectPollingEndpoint()
	tm.ledger.EXPECT().RecordAndAward(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, event domain.MarketplaceEvent) (*ledger.RecordResult, error) {
			if event.EventType == domain.EventTypeListed {
				return nil, errors.New("too many connections")
			}
			return &ledger.RecordResult{EventID: 2}, nil
		}).MinTimes(2)
	tm.ethClient.EXPECT().Close()

	require.NoError(t, tm.ingestor.Start(context.Background()))
	defer tm.ingestor.Stop()

	status := tm.ingestor.Status()
	assert.Equal(t, uint64(1), status.Processed)
	assert.Equal(t, uint64(1), status.Failed)
	assert.Equal(t, uint64(601), status.LastProcessedBlock)
}

func TestHandler_InvalidEventIsNotRetried(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())
	listed := marketplaceLog(domain.EventTypeListed, 600, 0)

	tm.expectConnect(testHead)
	tm.expectLogs(map[domain.MarketplaceEventType][]types.Log{
		domain.EventTypeListed: {listed},
	})
	tm.expectPollingEndpoint()
	tm.ledger.EXPECT().RecordAndAward(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: Listed", domain.ErrInvalidEvent)).Times(1)
	tm.ethClient.EXPECT().Close()

	require.NoError(t, tm.ingestor.Start(context.Background()))
	defer tm.ingestor.Stop()

	assert.Equal(t, uint64(1), tm.ingestor.Status().Failed)
}

func TestHandler_DuplicatesAreCounted(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())
	sold := marketplaceLog(domain.EventTypeSold, 800, 2)

	tm.expectConnect(testHead)
	tm.expectLogs(map[domain.MarketplaceEventType][]types.Log{
		domain.EventTypeSold: {sold},
	})
	tm.expectPollingEndpoint()
	tm.ledger.EXPECT().RecordAndAward(gomock.Any(), gomock.Any()).Return(&ledger.RecordResult{Duplicate: true}, nil)
	tm.store.EXPECT().SetBlockCursor(gomock.Any(), testNetwork, testHead).Return(nil)
	tm.ethClient.EXPECT().Close()

	require.NoError(t, tm.ingestor.Start(context.Background()))
	defer tm.ingestor.Stop()

	status := tm.ingestor.Status()
	assert.Equal(t, uint64(0), status.Processed)
	assert.Equal(t, uint64(1), status.Duplicates)
}

func TestLiveSubscription_ForwardsLogs(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())
	sub := mocks.NewMockSubscription(tm.ctrl)
	subErr := make(chan error)

	live := marketplaceLog(domain.EventTypeSold, 1501, 3)
	removed := marketplaceLog(domain.EventTypeSold, 1501, 4)
	removed.Removed = true
	soldSignature, _ := ethereum.EventSignature(domain.EventTypeSold)

	tm.expectConnect(testHead)
	tm.expectLogs(nil)
	tm.store.EXPECT().SetBlockCursor(gomock.Any(), testNetwork, testHead).Return(nil)
	tm.ethClient.EXPECT().SubscribeFilterLogs(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q goethereum.FilterQuery, ch chan<- types.Log) (goethereum.Subscription, error) {
			if q.Topics[0][0] == soldSignature {
				go func() {
					ch <- removed
					ch <- live
				}()
			}
			return sub, nil
		}).Times(3)
	sub.EXPECT().Err().Return((<-chan error)(subErr)).AnyTimes()
	sub.EXPECT().Unsubscribe().Times(3)
	tm.expectRecording()
	tm.ethClient.EXPECT().Close()

	require.NoError(t, tm.ingestor.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return tm.ingestor.Status().Processed == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{live.TxHash.Hex()}, tm.recordedTxHashes())
	assert.Equal(t, uint64(1501), tm.ingestor.Status().LastProcessedBlock)

	tm.ingestor.Stop()
	assert.False(t, tm.ingestor.Status().Running)
}

func TestLiveSubscription_Resubscribes(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())
	listedSignature, _ := ethereum.EventSignature(domain.EventTypeListed)

	dropped := mocks.NewMockSubscription(tm.ctrl)
	droppedErr := make(chan error, 1)
	droppedErr <- errors.New("websocket: close 1006")
	healthy := mocks.NewMockSubscription(tm.ctrl)

	tm.expectConnect(testHead)
	tm.expectLogs(nil)
	tm.store.EXPECT().SetBlockCursor(gomock.Any(), testNetwork, testHead).Return(nil)

	var mu sync.Mutex
	listedSubscriptions := 0
	tm.ethClient.EXPECT().SubscribeFilterLogs(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q goethereum.FilterQuery, _ chan<- types.Log) (goethereum.Subscription, error) {
			if q.Topics[0][0] != listedSignature {
				return healthy, nil
			}
			mu.Lock()
			defer mu.Unlock()
			listedSubscriptions++
			if listedSubscriptions == 1 {
				return dropped, nil
			}
			return healthy, nil
		}).Times(4)
	dropped.EXPECT().Err().Return((<-chan error)(droppedErr)).AnyTimes()
	dropped.EXPECT().Unsubscribe()
	healthy.EXPECT().Err().Return((<-chan error)(make(chan error))).AnyTimes()
	healthy.EXPECT().Unsubscribe().Times(3)
	tm.ethClient.EXPECT().Close()

	require.NoError(t, tm.ingestor.Start(context.Background()))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return listedSubscriptions == 2
	}, 2*time.Second, 10*time.Millisecond)

	tm.ingestor.Stop()
}

func TestPollingFallback_FiltersNewBlocks(t *testing.T) {
	cfg := testConfig()
	tm := setupTestIngestor(t, cfg)
	delistedSignature, _ := ethereum.EventSignature(domain.EventTypeDelisted)

	var mu sync.Mutex
	head := testHead
	tm.dialer.EXPECT().Dial(gomock.Any(), testRPCURL).Return(tm.ethClient, nil)
	tm.ethClient.EXPECT().ChainID(gomock.Any()).Return(big.NewInt(11155111), nil)
	tm.ethClient.EXPECT().HeaderByNumber(gomock.Any(), nil).DoAndReturn(
		func(context.Context, *big.Int) (*types.Header, error) {
			mu.Lock()
			defer mu.Unlock()
			return &types.Header{Number: new(big.Int).SetUint64(head)}, nil
		}).AnyTimes()

	polled := marketplaceLog(domain.EventTypeDelisted, 1502, 0)
	tm.ethClient.EXPECT().FilterLogs(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			if q.FromBlock.Uint64() == testHead+1 && q.Topics[0][0] == delistedSignature {
				assert.Equal(t, uint64(1502), q.ToBlock.Uint64())
				return []types.Log{polled}, nil
			}
			return nil, nil
		}).AnyTimes()
	tm.expectPollingEndpoint()
	tm.expectRecording()
	tm.store.EXPECT().SetBlockCursor(gomock.Any(), testNetwork, testHead).Return(nil)
	tm.ethClient.EXPECT().Close()

	require.NoError(t, tm.ingestor.Start(context.Background()))

	mu.Lock()
	head = 1502
	mu.Unlock()

	// pollers share the ticker, so keep ticking until the delisted poller has run
	assert.Eventually(t, func() bool {
		select {
		case tm.ticks <- time.Now():
		default:
		}
		return len(tm.recordedTxHashes()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{polled.TxHash.Hex()}, tm.recordedTxHashes())

	tm.ingestor.Stop()
}

func TestPollLoop_AdvancesWatermark(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())
	sub := mocks.NewMockSubscription(tm.ctrl)

	var mu sync.Mutex
	head := testHead
	tm.dialer.EXPECT().Dial(gomock.Any(), testRPCURL).Return(tm.ethClient, nil)
	tm.ethClient.EXPECT().ChainID(gomock.Any()).Return(big.NewInt(11155111), nil)
	tm.ethClient.EXPECT().HeaderByNumber(gomock.Any(), nil).DoAndReturn(
		func(context.Context, *big.Int) (*types.Header, error) {
			mu.Lock()
			defer mu.Unlock()
			return &types.Header{Number: new(big.Int).SetUint64(head)}, nil
		}).AnyTimes()
	tm.expectLogs(nil)
	tm.store.EXPECT().SetBlockCursor(gomock.Any(), testNetwork, testHead).Return(nil)
	tm.ethClient.EXPECT().SubscribeFilterLogs(gomock.Any(), gomock.Any(), gomock.Any()).Return(sub, nil).Times(3)
	sub.EXPECT().Err().Return((<-chan error)(make(chan error))).AnyTimes()
	sub.EXPECT().Unsubscribe().Times(3)
	tm.ethClient.EXPECT().Close()

	require.NoError(t, tm.ingestor.Start(context.Background()))
	assert.Equal(t, testHead, tm.ingestor.Status().Watermark)

	mu.Lock()
	head = 1520
	mu.Unlock()
	tm.ticks <- time.Now()

	assert.Eventually(t, func() bool {
		return tm.ingestor.Status().Watermark == 1520
	}, 2*time.Second, 10*time.Millisecond)

	tm.ingestor.Stop()
}

func TestBackfill(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())

	tm.expectConnect(testHead)
	listed := marketplaceLog(domain.EventTypeListed, 1400, 0)
	tm.ethClient.EXPECT().FilterLogs(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			listedSignature, _ := ethereum.EventSignature(domain.EventTypeListed)
			if q.FromBlock.Uint64() == 1400 && q.Topics[0][0] == listedSignature {
				return []types.Log{listed}, nil
			}
			return nil, nil
		}).AnyTimes()
	tm.expectPollingEndpoint()
	tm.expectRecording()
	tm.store.EXPECT().SetBlockCursor(gomock.Any(), testNetwork, testHead).Return(nil)
	tm.ethClient.EXPECT().Close()

	require.NoError(t, tm.ingestor.Start(context.Background()))
	defer tm.ingestor.Stop()

	result, err := tm.ingestor.Backfill(context.Background(), 1400)
	require.NoError(t, err)
	assert.Equal(t, uint64(1400), result.FromBlock)
	assert.Equal(t, testHead, result.ToBlock)
	assert.Equal(t, 1, result.Events)
	assert.True(t, result.Complete())

	assert.Equal(t, []string{listed.TxHash.Hex()}, tm.recordedTxHashes())

	result, err = tm.ingestor.Backfill(context.Background(), testHead+1)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Events)
}

func TestBackfill_NotRunning(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())

	_, err := tm.ingestor.Backfill(context.Background(), 0)
	assert.ErrorIs(t, err, ingestor.ErrNotRunning)
}

func TestStop_Idempotent(t *testing.T) {
	tm := setupTestIngestor(t, testConfig())

	// never started
	tm.ingestor.Stop()

	tm.expectConnect(testHead)
	tm.expectLogs(nil)
	tm.expectPollingEndpoint()
	tm.store.EXPECT().SetBlockCursor(gomock.Any(), testNetwork, testHead).Return(nil)
	tm.ethClient.EXPECT().Close().Times(1)

	require.NoError(t, tm.ingestor.Start(context.Background()))
	tm.ingestor.Stop()
	tm.ingestor.Stop()

	assert.False(t, tm.ingestor.Status().Running)
}

func TestBackfillResult_Complete(t *testing.T) {
	assert.True(t, ingestor.BackfillResult{Events: 3}.Complete())
	assert.False(t, ingestor.BackfillResult{Events: 3, Failed: 1}.Complete())
	assert.False(t, ingestor.BackfillResult{FailedQueries: 1}.Complete())
}
