package ingestor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feral-file/ff-marketplace-ledger/internal/adapter"
	"github.com/feral-file/ff-marketplace-ledger/internal/block"
	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
	"github.com/feral-file/ff-marketplace-ledger/internal/ledger"
	"github.com/feral-file/ff-marketplace-ledger/internal/logger"
	"github.com/feral-file/ff-marketplace-ledger/internal/providers/ethereum"
	"github.com/feral-file/ff-marketplace-ledger/internal/store"
)

const (
	DEFAULT_POLL_INTERVAL             = 12 * time.Second
	DEFAULT_HANDLER_RETRY_MAX_ELAPSED = 30 * time.Second
	DEFAULT_HANDLER_RETRY_INTERVAL    = 500 * time.Millisecond
	DEFAULT_RESUBSCRIBE_INTERVAL      = time.Second
	DEFAULT_RESUBSCRIBE_MAX_INTERVAL  = time.Minute
	DEFAULT_BLOCK_HEAD_STALE_WINDOW   = time.Minute
	LOG_BUFFER_SIZE                   = 128
)

// ErrNotRunning is returned by operations that need a started ingestor
var ErrNotRunning = errors.New("ingestor not running")

// Config holds the configuration of one network's ingestor
type Config struct {
	// Network is the configured network name, e.g. "sepolia"
	Network string
	Chain   domain.Chain
	// RPCURL is the node endpoint; ws(s):// endpoints get push subscriptions, http(s):// endpoints are polled
	RPCURL          string
	ContractAddress string
	// ChainID is the chain id the node must report; 0 skips the check
	ChainID uint64

	// BackfillWindow is the number of trailing blocks replayed on start
	BackfillWindow uint64
	PollInterval   time.Duration

	HandlerRetryInterval   time.Duration
	HandlerRetryMaxElapsed time.Duration
	ResubscribeInterval    time.Duration

	RequestsPerSecond float64
	MaxBlockRange     uint64

	BlockHeadTTL         time.Duration
	BlockHeadStaleWindow time.Duration
}

func (c *Config) applyDefaults() {
	if c.BackfillWindow == 0 {
		c.BackfillWindow = domain.DEFAULT_BACKFILL_WINDOW
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DEFAULT_POLL_INTERVAL
	}
	if c.HandlerRetryInterval <= 0 {
		c.HandlerRetryInterval = DEFAULT_HANDLER_RETRY_INTERVAL
	}
	if c.HandlerRetryMaxElapsed <= 0 {
		c.HandlerRetryMaxElapsed = DEFAULT_HANDLER_RETRY_MAX_ELAPSED
	}
	if c.ResubscribeInterval <= 0 {
		c.ResubscribeInterval = DEFAULT_RESUBSCRIBE_INTERVAL
	}
	if c.BlockHeadTTL <= 0 {
		c.BlockHeadTTL = c.PollInterval
	}
	if c.BlockHeadStaleWindow <= 0 {
		c.BlockHeadStaleWindow = DEFAULT_BLOCK_HEAD_STALE_WINDOW
	}
}

// Status is a point-in-time view of an ingestor
type Status struct {
	Network            string       `json:"network"`
	Chain              domain.Chain `json:"chain"`
	InstanceID         string       `json:"instance_id"`
	Running            bool         `json:"running"`
	Watermark          uint64       `json:"watermark"`
	LastProcessedBlock uint64       `json:"last_processed_block"`
	Processed          uint64       `json:"processed"`
	Duplicates         uint64       `json:"duplicates"`
	Failed             uint64       `json:"failed"`
	StartedAt          *time.Time   `json:"started_at,omitempty"`
}

// BackfillResult summarizes one backfill run
type BackfillResult struct {
	FromBlock uint64
	ToBlock   uint64
	// Events is the number of events replayed into the ledger
	Events int
	// Failed is the number of events that could not be recorded after retries
	Failed int
	// FailedQueries is the number of range queries that failed; their events were not replayed
	FailedQueries int
}

// Complete reports whether every event in the range was handled
func (r BackfillResult) Complete() bool {
	return r.Failed == 0 && r.FailedQueries == 0
}

// Ingestor watches the marketplace contract of one network and feeds its events into the ledger
//
//go:generate mockgen -source=ingestor.go -destination=../mocks/ingestor.go -package=mocks -mock_names=Ingestor=MockIngestor
type Ingestor interface {
	// Start backfills the recent window and begins live ingestion
	Start(ctx context.Context) error

	// Stop ends live ingestion. It is idempotent and safe on a never started ingestor.
	Stop()

	// Backfill replays every marketplace event from fromBlock to the current head, in chain order
	Backfill(ctx context.Context, fromBlock uint64) (BackfillResult, error)

	// Status returns the current ingestor state
	Status() Status
}

type ingestor struct {
	config     Config
	instanceID string
	dialer     adapter.EthClientDialer
	ledger     ledger.Ledger
	store      store.Store
	clock      adapter.Clock

	// lifecycle serializes Start and Stop
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu        sync.RWMutex
	client    ethereum.MarketplaceClient
	heads     block.BlockHeadProvider
	startedAt *time.Time

	running       atomic.Bool
	watermark     atomic.Uint64
	lastProcessed atomic.Uint64
	processed     atomic.Uint64
	duplicates    atomic.Uint64
	failed        atomic.Uint64
}

// New creates an ingestor for one network
func New(cfg Config, dialer adapter.EthClientDialer, led ledger.Ledger, st store.Store, clock adapter.Clock) Ingestor {
	cfg.applyDefaults()

	return &ingestor{
		config:     cfg,
		instanceID: uuid.NewString(),
		dialer:     dialer,
		ledger:     led,
		store:      st,
		clock:      clock,
	}
}

// Start connects to the node, replays the backfill window and registers the live handlers
func (i *ingestor) Start(ctx context.Context) error {
	i.lifecycle.Lock()
	defer i.lifecycle.Unlock()

	if i.running.Load() {
		return domain.ErrAlreadyRunning
	}

	if i.config.RPCURL == "" {
		return fmt.Errorf("%w: network %q", domain.ErrEndpointUnresolved, i.config.Network)
	}
	if i.config.ContractAddress == "" {
		return fmt.Errorf("%w: network %q", domain.ErrContractUnresolved, i.config.Network)
	}

	ctx = logger.WithFields(ctx,
		zap.String("network", i.config.Network),
		zap.String("instance_id", i.instanceID))

	ethClient, err := i.dialer.Dial(ctx, i.config.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to dial %s rpc: %w", i.config.Network, err)
	}

	client, heads, err := i.connect(ctx, ethClient)
	if err != nil {
		ethClient.Close()
		return err
	}

	head, err := heads.Refresh(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to fetch chain head: %w", err)
	}
	i.advanceWatermark(head)

	fromBlock := uint64(0)
	if head > i.config.BackfillWindow {
		fromBlock = head - i.config.BackfillWindow
	}

	result, err := i.backfill(ctx, client, fromBlock, head)
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to backfill: %w", err)
	}

	if result.Complete() {
		if err := i.store.SetBlockCursor(ctx, i.config.Network, result.ToBlock); err != nil {
			logger.WarnCtx(ctx, "Failed to save block cursor", zap.Error(err))
		}
	} else {
		logger.WarnCtx(ctx, "Backfill incomplete, leaving block cursor for the reconciler",
			zap.Int("failed", result.Failed),
			zap.Int("failed_queries", result.FailedQueries))
	}

	startedAt := i.clock.Now()
	i.mu.Lock()
	i.client = client
	i.heads = heads
	i.startedAt = &startedAt
	i.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel

	for _, eventType := range domain.MarketplaceEventTypes {
		i.wg.Add(1)
		go i.watch(runCtx, client, heads, eventType, head)
	}

	i.wg.Add(1)
	go i.pollLoop(runCtx, heads)

	i.running.Store(true)
	logger.InfoCtx(ctx, "Ingestor started",
		zap.Uint64("head", head),
		zap.Uint64("backfill_from", fromBlock),
		zap.Int("backfilled_events", result.Events))

	return nil
}

// connect verifies the node and builds the marketplace client and head provider over it
func (i *ingestor) connect(ctx context.Context, ethClient adapter.EthClient) (ethereum.MarketplaceClient, block.BlockHeadProvider, error) {
	if i.config.ChainID != 0 {
		chainID, err := ethClient.ChainID(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get chain id: %w", err)
		}
		if !chainID.IsUint64() || chainID.Uint64() != i.config.ChainID {
			return nil, nil, fmt.Errorf("%w: node reports chain id %s, expected %d",
				domain.ErrEndpointUnresolved, chainID, i.config.ChainID)
		}
	}

	client, err := ethereum.NewMarketplaceClient(ethereum.ClientConfig{
		Chain:             i.config.Chain,
		ContractAddress:   i.config.ContractAddress,
		RequestsPerSecond: i.config.RequestsPerSecond,
		MaxBlockRange:     i.config.MaxBlockRange,
	}, ethClient)
	if err != nil {
		return nil, nil, err
	}

	heads := block.NewBlockHeadProvider(
		ethereum.NewEthereumBlockFetcher(ethClient),
		block.Config{
			TTL:         i.config.BlockHeadTTL,
			StaleWindow: i.config.BlockHeadStaleWindow,
		},
		i.clock)

	return client, heads, nil
}

// Stop cancels the live handlers and the poll loop, then closes the connection
func (i *ingestor) Stop() {
	i.lifecycle.Lock()
	defer i.lifecycle.Unlock()

	if !i.running.Load() {
		return
	}

	i.cancel()
	i.wg.Wait()

	i.mu.Lock()
	client := i.client
	i.client = nil
	i.heads = nil
	i.mu.Unlock()

	if client != nil {
		client.Close()
	}

	i.running.Store(false)
	logger.Info("Ingestor stopped",
		zap.String("network", i.config.Network),
		zap.String("instance_id", i.instanceID))
}

// Backfill replays [fromBlock, head] into the ledger
func (i *ingestor) Backfill(ctx context.Context, fromBlock uint64) (BackfillResult, error) {
	i.mu.RLock()
	client, heads := i.client, i.heads
	i.mu.RUnlock()

	if client == nil {
		return BackfillResult{}, ErrNotRunning
	}

	head, err := heads.GetLatestBlock(ctx)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("failed to fetch chain head: %w", err)
	}
	i.advanceWatermark(head)

	return i.backfill(ctx, client, fromBlock, head)
}

type eventBatch struct {
	eventType domain.MarketplaceEventType
	events    []domain.MarketplaceEvent
}

// backfill queries the three event types concurrently, merges them into chain order
// and replays the merged stream one event at a time
func (i *ingestor) backfill(ctx context.Context, client ethereum.MarketplaceClient, fromBlock, toBlock uint64) (BackfillResult, error) {
	result := BackfillResult{FromBlock: fromBlock, ToBlock: toBlock}
	if fromBlock > toBlock {
		return result, nil
	}

	pool := pond.NewResultPool[eventBatch](len(domain.MarketplaceEventTypes))
	defer pool.StopAndWait()

	tasks := make([]pond.Result[eventBatch], 0, len(domain.MarketplaceEventTypes))
	for _, eventType := range domain.MarketplaceEventTypes {
		tasks = append(tasks, pool.SubmitErr(func() (eventBatch, error) {
			events, err := client.FilterEvents(ctx, eventType, fromBlock, toBlock)
			return eventBatch{eventType: eventType, events: events}, err
		}))
	}

	var merged []domain.MarketplaceEvent
	for idx, task := range tasks {
		batch, err := task.Wait()
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.FailedQueries++
			logger.ErrorCtx(ctx, err,
				zap.String("message", "Backfill query failed, skipping batch"),
				zap.String("event_type", string(domain.MarketplaceEventTypes[idx])),
				zap.Uint64("from_block", fromBlock),
				zap.Uint64("to_block", toBlock))
			continue
		}
		merged = append(merged, batch.events...)
	}

	domain.SortMarketplaceEvents(merged)

	for _, event := range merged {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		result.Events++
		if err := i.handleEvent(ctx, event); err != nil {
			result.Failed++
		}
	}

	logger.InfoCtx(ctx, "Backfill finished",
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", toBlock),
		zap.Int("events", result.Events),
		zap.Int("failed", result.Failed),
		zap.Int("failed_queries", result.FailedQueries))

	return result, nil
}

// watch keeps a live subscription for one event type open, resubscribing with backoff.
// Endpoints without push support are polled instead.
func (i *ingestor) watch(ctx context.Context, client ethereum.MarketplaceClient, heads block.BlockHeadProvider, eventType domain.MarketplaceEventType, startBlock uint64) {
	defer i.wg.Done()

	ctx = logger.WithFields(ctx, zap.String("event_type", string(eventType)))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = i.config.ResubscribeInterval
	b.MaxInterval = DEFAULT_RESUBSCRIBE_MAX_INTERVAL
	b.MaxElapsedTime = 0

	operation := func() error {
		err := i.consume(ctx, client, eventType, b)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if ethereum.IsNotificationsUnsupported(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		logger.WarnCtx(ctx, "Subscription dropped, resubscribing",
			zap.Error(err),
			zap.Duration("next_retry_in", next))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
	if ethereum.IsNotificationsUnsupported(err) {
		logger.InfoCtx(ctx, "Endpoint does not support subscriptions, polling for logs",
			zap.Duration("interval", i.config.PollInterval))
		i.pollEvents(ctx, client, heads, eventType, startBlock)
	}
}

// consume forwards logs from one subscription until it fails or ctx is done
func (i *ingestor) consume(ctx context.Context, client ethereum.MarketplaceClient, eventType domain.MarketplaceEventType, b backoff.BackOff) error {
	logs := make(chan types.Log, LOG_BUFFER_SIZE)
	sub, err := client.SubscribeEvents(ctx, eventType, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	b.Reset()
	logger.DebugCtx(ctx, "Subscribed to marketplace logs")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("%w: %s: %v", domain.ErrSubscriptionFailed, eventType, err)
		case vLog := <-logs:
			i.handleLog(ctx, client, vLog)
		}
	}
}

// pollEvents queries new blocks for one event type every poll interval
func (i *ingestor) pollEvents(ctx context.Context, client ethereum.MarketplaceClient, heads block.BlockHeadProvider, eventType domain.MarketplaceEventType, lastSeen uint64) {
	ticker := i.clock.NewTicker(i.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}

		head, err := heads.GetLatestBlock(ctx)
		if err != nil {
			logger.WarnCtx(ctx, "Failed to fetch chain head", zap.Error(err))
			continue
		}
		if head <= lastSeen {
			continue
		}

		events, err := client.FilterEvents(ctx, eventType, lastSeen+1, head)
		if err != nil {
			logger.WarnCtx(ctx, "Failed to poll marketplace logs",
				zap.Uint64("from_block", lastSeen+1),
				zap.Uint64("to_block", head),
				zap.Error(err))
			continue
		}

		for _, event := range events {
			_ = i.handleEvent(ctx, event)
		}
		lastSeen = head
	}
}

// handleLog decodes a live log and forwards it
func (i *ingestor) handleLog(ctx context.Context, client ethereum.MarketplaceClient, vLog types.Log) {
	if vLog.Removed {
		logger.WarnCtx(ctx, "Ignoring log removed by reorg",
			zap.String("tx_hash", vLog.TxHash.Hex()),
			zap.Uint64("block_number", vLog.BlockNumber))
		return
	}

	event, err := client.ParseLog(vLog)
	if err != nil {
		i.failed.Add(1)
		logger.ErrorCtx(ctx, err,
			zap.String("message", "Failed to decode marketplace log"),
			zap.String("tx_hash", vLog.TxHash.Hex()),
			zap.Uint64("block_number", vLog.BlockNumber))
		return
	}

	_ = i.handleEvent(ctx, *event)
}

// handleEvent records one event, retrying transient ledger failures with bounded backoff
func (i *ingestor) handleEvent(ctx context.Context, event domain.MarketplaceEvent) error {
	ctx = logger.WithFields(ctx,
		zap.String("tx_hash", event.TxHash),
		zap.Uint64("block_number", event.BlockNumber))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = i.config.HandlerRetryInterval
	b.MaxElapsedTime = i.config.HandlerRetryMaxElapsed

	var result *ledger.RecordResult
	operation := func() error {
		// in-flight ledger work survives Stop
		r, err := i.ledger.RecordAndAward(context.WithoutCancel(ctx), event)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidEvent) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	}

	var attempts int
	notify := func(err error, next time.Duration) {
		attempts++
		logger.WarnCtx(ctx, "Ledger call failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempts),
			zap.Duration("next_retry_in", next))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		i.failed.Add(1)
		logger.ErrorCtx(ctx, err,
			zap.String("message", "Failed to record marketplace event"),
			zap.Int("attempts", attempts+1))
		return err
	}

	if result.Duplicate {
		i.duplicates.Add(1)
	} else {
		i.processed.Add(1)
	}
	i.advanceLastProcessed(event.BlockNumber)

	return nil
}

// pollLoop refreshes the watermark every poll interval
func (i *ingestor) pollLoop(ctx context.Context, heads block.BlockHeadProvider) {
	defer i.wg.Done()

	ticker := i.clock.NewTicker(i.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			head, err := heads.GetLatestBlock(ctx)
			if err != nil {
				logger.WarnCtx(ctx, "Failed to refresh watermark", zap.Error(err))
				continue
			}
			i.advanceWatermark(head)
		}
	}
}

func (i *ingestor) advanceWatermark(head uint64) {
	advance(&i.watermark, head)
}

func (i *ingestor) advanceLastProcessed(blockNumber uint64) {
	advance(&i.lastProcessed, blockNumber)
}

// advance raises v to n unless it is already higher
func advance(v *atomic.Uint64, n uint64) {
	for {
		current := v.Load()
		if n <= current || v.CompareAndSwap(current, n) {
			return
		}
	}
}

// Status returns a snapshot of the ingestor state
func (i *ingestor) Status() Status {
	i.mu.RLock()
	startedAt := i.startedAt
	i.mu.RUnlock()

	return Status{
		Network:            i.config.Network,
		Chain:              i.config.Chain,
		InstanceID:         i.instanceID,
		Running:            i.running.Load(),
		Watermark:          i.watermark.Load(),
		LastProcessedBlock: i.lastProcessed.Load(),
		Processed:          i.processed.Load(),
		Duplicates:         i.duplicates.Load(),
		Failed:             i.failed.Load(),
		StartedAt:          startedAt,
	}
}
