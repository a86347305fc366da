package block

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-marketplace-ledger/internal/adapter"
	"github.com/feral-file/ff-marketplace-ledger/internal/logger"
)

// Head is the latest chain head observed from the node
type Head struct {
	Number    uint64
	FetchedAt time.Time
}

// BlockHeadProvider provides cached access to the chain head of one network.
// The ingestor poll loop and the reconciler read the head through it so a
// burst of callers costs a single RPC per TTL.
//
//go:generate mockgen -destination=../mocks/block.go -package=mocks -mock_names=BlockFetcher=MockBlockFetcher github.com/feral-file/ff-marketplace-ledger/internal/block BlockFetcher
type BlockHeadProvider interface {
	// GetLatestBlock returns the latest block number, potentially from cache
	GetLatestBlock(ctx context.Context) (uint64, error)

	// Refresh bypasses the cache and fetches the head from the node
	Refresh(ctx context.Context) (uint64, error)

	// Last returns the last head observed, nil before the first successful fetch
	Last() *Head
}

// BlockFetcher fetches the latest block number from the chain
type BlockFetcher interface {
	FetchLatestBlock(ctx context.Context) (uint64, error)
}

// Config holds configuration for the BlockHeadProvider
type Config struct {
	// TTL is how long a fetched head is served from cache
	TTL time.Duration

	// StaleWindow is how long a cached head may still be served when the node errors
	StaleWindow time.Duration
}

type blockHeadProvider struct {
	fetcher BlockFetcher
	config  Config
	clock   adapter.Clock

	mu   sync.RWMutex
	head *Head
}

// NewBlockHeadProvider creates a new BlockHeadProvider with caching
func NewBlockHeadProvider(fetcher BlockFetcher, config Config, clock adapter.Clock) BlockHeadProvider {
	return &blockHeadProvider{
		fetcher: fetcher,
		config:  config,
		clock:   clock,
	}
}

// GetLatestBlock returns the cached head while it is younger than the TTL
func (p *blockHeadProvider) GetLatestBlock(ctx context.Context) (uint64, error) {
	cached := p.Last()
	now := p.clock.Now()

	if cached != nil && now.Sub(cached.FetchedAt) < p.config.TTL {
		return cached.Number, nil
	}

	number, err := p.fetch(ctx, now)
	if err == nil {
		return number, nil
	}

	// serve the cached head while it is within the stale window
	if cached != nil && now.Sub(cached.FetchedAt) < p.config.StaleWindow {
		logger.WarnCtx(ctx, "Serving stale chain head",
			zap.Uint64("block_number", cached.Number),
			zap.Error(err))
		return cached.Number, nil
	}

	return 0, err
}

// Refresh fetches the head from the node and updates the cache
func (p *blockHeadProvider) Refresh(ctx context.Context) (uint64, error) {
	return p.fetch(ctx, p.clock.Now())
}

// Last returns a copy of the last observed head
func (p *blockHeadProvider) Last() *Head {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.head == nil {
		return nil
	}
	h := *p.head
	return &h
}

func (p *blockHeadProvider) fetch(ctx context.Context, now time.Time) (uint64, error) {
	number, err := p.fetcher.FetchLatestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch latest block: %w", err)
	}

	p.mu.Lock()
	// never move the cached head backwards when a lagging node answers
	if p.head == nil || number >= p.head.Number {
		p.head = &Head{Number: number, FetchedAt: now}
	} else {
		number = p.head.Number
		p.head.FetchedAt = now
	}
	p.mu.Unlock()

	logger.DebugCtx(ctx, "Fetched chain head", zap.Uint64("block_number", number))
	return number, nil
}
