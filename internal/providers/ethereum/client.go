package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/feral-file/ff-marketplace-ledger/internal/adapter"
	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
	"github.com/feral-file/ff-marketplace-ledger/internal/logger"
)

// marketplaceABIJSON holds the event fragment of the marketplace contract
const marketplaceABIJSON = `[
	{"anonymous":false,"type":"event","name":"Listed","inputs":[
		{"indexed":true,"name":"tokenId","type":"uint256"},
		{"indexed":true,"name":"seller","type":"address"},
		{"indexed":false,"name":"price","type":"uint256"}]},
	{"anonymous":false,"type":"event","name":"Sold","inputs":[
		{"indexed":true,"name":"tokenId","type":"uint256"},
		{"indexed":true,"name":"buyer","type":"address"},
		{"indexed":true,"name":"seller","type":"address"},
		{"indexed":false,"name":"price","type":"uint256"}]},
	{"anonymous":false,"type":"event","name":"Delisted","inputs":[
		{"indexed":true,"name":"tokenId","type":"uint256"},
		{"indexed":true,"name":"seller","type":"address"}]}
]`

// DEFAULT_MAX_BLOCK_RANGE is the initial block span of one eth_getLogs call
const DEFAULT_MAX_BLOCK_RANGE = 10_000

var marketplaceABI = mustParseABI(marketplaceABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid marketplace ABI: %v", err))
	}
	return parsed
}

// EventSignature returns the topic0 of a marketplace event type
func EventSignature(eventType domain.MarketplaceEventType) (common.Hash, bool) {
	event, ok := marketplaceABI.Events[string(eventType)]
	if !ok {
		return common.Hash{}, false
	}
	return event.ID, true
}

// ClientConfig holds the configuration of a marketplace client
type ClientConfig struct {
	Chain           domain.Chain
	ContractAddress string
	// RequestsPerSecond caps eth_getLogs calls, 0 disables the limit
	RequestsPerSecond float64
	// MaxBlockRange is the initial block span of a range query, halved on "too many results"
	MaxBlockRange uint64
}

// MarketplaceClient reads marketplace contract events from one chain
type MarketplaceClient interface {
	// Chain returns the chain the client reads from
	Chain() domain.Chain

	// ContractAddress returns the watched contract address, lower-cased
	ContractAddress() string

	// LatestBlock returns the current chain head
	LatestBlock(ctx context.Context) (uint64, error)

	// FilterEvents returns the events of one type emitted in [fromBlock, toBlock], in chain order.
	// Logs that cannot be decoded are logged and skipped.
	FilterEvents(ctx context.Context, eventType domain.MarketplaceEventType, fromBlock, toBlock uint64) ([]domain.MarketplaceEvent, error)

	// SubscribeEvents streams new logs of one event type.
	// It returns rpc.ErrNotificationsUnsupported (wrapped) when the endpoint cannot push logs.
	SubscribeEvents(ctx context.Context, eventType domain.MarketplaceEventType, ch chan<- types.Log) (ethereum.Subscription, error)

	// ParseLog decodes a marketplace log into a domain event
	ParseLog(vLog types.Log) (*domain.MarketplaceEvent, error)

	// Close closes the underlying connection
	Close()
}

type marketplaceClient struct {
	chain         domain.Chain
	contract      common.Address
	client        adapter.EthClient
	limiter       *rate.Limiter
	maxBlockRange uint64
}

// NewMarketplaceClient creates a marketplace client over an Ethereum connection
func NewMarketplaceClient(cfg ClientConfig, client adapter.EthClient) (MarketplaceClient, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("%w: %q", domain.ErrContractUnresolved, cfg.ContractAddress)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	maxBlockRange := cfg.MaxBlockRange
	if maxBlockRange == 0 {
		maxBlockRange = DEFAULT_MAX_BLOCK_RANGE
	}

	return &marketplaceClient{
		chain:         cfg.Chain,
		contract:      common.HexToAddress(cfg.ContractAddress),
		client:        client,
		limiter:       rate.NewLimiter(limit, 1),
		maxBlockRange: maxBlockRange,
	}, nil
}

func (c *marketplaceClient) Chain() domain.Chain {
	return c.chain
}

func (c *marketplaceClient) ContractAddress() string {
	return domain.NormalizeAddress(c.contract.Hex())
}

// LatestBlock returns the current chain head
func (c *marketplaceClient) LatestBlock(ctx context.Context) (uint64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

func (c *marketplaceClient) query(eventType domain.MarketplaceEventType) (ethereum.FilterQuery, error) {
	signature, ok := EventSignature(eventType)
	if !ok {
		return ethereum.FilterQuery{}, fmt.Errorf("%w: %s", domain.ErrUnknownEventSignature, eventType)
	}

	return ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{signature}},
	}, nil
}

// FilterEvents queries a block range for one event type
func (c *marketplaceClient) FilterEvents(ctx context.Context, eventType domain.MarketplaceEventType, fromBlock, toBlock uint64) ([]domain.MarketplaceEvent, error) {
	if fromBlock > toBlock {
		return nil, nil
	}

	query, err := c.query(eventType)
	if err != nil {
		return nil, err
	}

	logs, err := c.filterLogsWithPagination(ctx, query, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}

	events := make([]domain.MarketplaceEvent, 0, len(logs))
	for _, vLog := range logs {
		if vLog.Removed {
			continue
		}

		event, err := c.ParseLog(vLog)
		if err != nil {
			logger.WarnCtx(ctx, "Skipping undecodable marketplace log",
				zap.String("tx_hash", vLog.TxHash.Hex()),
				zap.Uint64("block_number", vLog.BlockNumber),
				zap.Error(err))
			continue
		}
		events = append(events, *event)
	}

	domain.SortMarketplaceEvents(events)
	return events, nil
}

// filterLogsWithPagination walks [fromBlock, toBlock] in chunks of at most maxBlockRange blocks,
// halving the chunk whenever the node rejects a query for returning too many results
func (c *marketplaceClient) filterLogsWithPagination(ctx context.Context, query ethereum.FilterQuery, fromBlock, toBlock uint64) ([]types.Log, error) {
	var allLogs []types.Log
	stepSize := c.maxBlockRange
	currentFrom := fromBlock

	for currentFrom <= toBlock {
		currentTo := currentFrom + stepSize - 1
		if currentTo > toBlock || currentTo < currentFrom {
			currentTo = toBlock
		}

		rangeQuery := query
		rangeQuery.FromBlock = new(big.Int).SetUint64(currentFrom)
		rangeQuery.ToBlock = new(big.Int).SetUint64(currentTo)

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		logs, err := c.client.FilterLogs(ctx, rangeQuery)
		if err == nil {
			allLogs = append(allLogs, logs...)
			if currentTo == toBlock {
				break
			}
			currentFrom = currentTo + 1
			continue
		}

		if !isTooManyResultsError(err) || stepSize == 1 {
			return nil, fmt.Errorf("failed to get logs for range %d-%d: %w", currentFrom, currentTo, err)
		}

		stepSize /= 2
		logger.WarnCtx(ctx, "Too many results, reducing step size",
			zap.Uint64("newStepSize", stepSize),
			zap.Uint64("fromBlock", currentFrom),
			zap.Uint64("toBlock", currentTo))
	}

	return allLogs, nil
}

// isTooManyResultsError checks if the node refused a range query because of its size
func isTooManyResultsError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "query returned more than") ||
		strings.Contains(errStr, "query timeout exceeded") ||
		strings.Contains(errStr, "too many results") ||
		strings.Contains(errStr, "block range") ||
		strings.Contains(errStr, "exceeded maximum")
}

// SubscribeEvents subscribes to live logs of one event type
func (c *marketplaceClient) SubscribeEvents(ctx context.Context, eventType domain.MarketplaceEventType, ch chan<- types.Log) (ethereum.Subscription, error) {
	query, err := c.query(eventType)
	if err != nil {
		return nil, err
	}

	sub, err := c.client.SubscribeFilterLogs(ctx, query, ch)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s logs: %w", eventType, err)
	}
	return sub, nil
}

// IsNotificationsUnsupported reports whether a subscription failed because the endpoint is not push capable
func IsNotificationsUnsupported(err error) bool {
	return errors.Is(err, rpc.ErrNotificationsUnsupported)
}

// ParseLog decodes a Listed, Sold or Delisted log
func (c *marketplaceClient) ParseLog(vLog types.Log) (*domain.MarketplaceEvent, error) {
	if vLog.Address != c.contract {
		return nil, fmt.Errorf("%w: log emitted by %s", domain.ErrInvalidLog, vLog.Address.Hex())
	}
	return parseMarketplaceLog(c.chain, vLog)
}

func parseMarketplaceLog(chain domain.Chain, vLog types.Log) (*domain.MarketplaceEvent, error) {
	if len(vLog.Topics) == 0 {
		return nil, fmt.Errorf("%w: no topics", domain.ErrInvalidLog)
	}

	abiEvent, err := marketplaceABI.EventByID(vLog.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEventSignature, vLog.Topics[0].Hex())
	}

	indexed := 0
	for _, input := range abiEvent.Inputs {
		if input.Indexed {
			indexed++
		}
	}
	if len(vLog.Topics) != indexed+1 {
		return nil, fmt.Errorf("%w: %s expects %d topics, got %d", domain.ErrInvalidLog, abiEvent.Name, indexed+1, len(vLog.Topics))
	}

	event := &domain.MarketplaceEvent{
		Chain:           chain,
		ContractAddress: domain.NormalizeAddress(vLog.Address.Hex()),
		EventType:       domain.MarketplaceEventType(abiEvent.Name),
		TokenID:         new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
		ActorAddress:    topicAddress(vLog.Topics[2]),
		TxHash:          vLog.TxHash.Hex(),
		BlockNumber:     vLog.BlockNumber,
		TxIndex:         vLog.TxIndex,
		LogIndex:        vLog.Index,
	}

	switch event.EventType {
	case domain.EventTypeListed, domain.EventTypeSold:
		values, err := abiEvent.Inputs.NonIndexed().Unpack(vLog.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to unpack %s data: %v", domain.ErrInvalidLog, abiEvent.Name, err)
		}
		price, ok := values[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected price type %T", domain.ErrInvalidLog, values[0])
		}
		formatted := domain.FormatEther(price)
		event.Price = &formatted

		if event.EventType == domain.EventTypeSold {
			seller := topicAddress(vLog.Topics[3])
			event.CounterpartyAddress = &seller
		}
	case domain.EventTypeDelisted:
	}

	if !event.Valid() {
		return nil, fmt.Errorf("%w: decoded %s event is incomplete", domain.ErrInvalidLog, abiEvent.Name)
	}

	return event, nil
}

func topicAddress(topic common.Hash) string {
	return domain.NormalizeAddress(common.BytesToAddress(topic.Bytes()).Hex())
}

// Close closes the connection
func (c *marketplaceClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
