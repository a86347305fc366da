package domain

import (
	"math/big"
	"regexp"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Chain represents the blockchain network identifier using CAIP-2 format
type Chain string

const (
	ChainEthereumMainnet Chain = "eip155:1"
	ChainEthereumSepolia Chain = "eip155:11155111"
	ChainBaseMainnet     Chain = "eip155:8453"
	ChainBaseSepolia     Chain = "eip155:84532"
)

// IsValidChain checks if a chain is valid
func IsValidChain(chain Chain) bool {
	return chain == ChainEthereumMainnet ||
		chain == ChainEthereumSepolia ||
		chain == ChainBaseMainnet ||
		chain == ChainBaseSepolia
}

// MarketplaceEventType represents the type of marketplace contract event
type MarketplaceEventType string

const (
	EventTypeListed   MarketplaceEventType = "Listed"
	EventTypeSold     MarketplaceEventType = "Sold"
	EventTypeDelisted MarketplaceEventType = "Delisted"
)

// MarketplaceEventTypes lists every event type the ingestor subscribes to, in subscription order
var MarketplaceEventTypes = []MarketplaceEventType{
	EventTypeListed,
	EventTypeSold,
	EventTypeDelisted,
}

// Valid checks if the event type is one of the marketplace event types
func (t MarketplaceEventType) Valid() bool {
	return t == EventTypeListed || t == EventTypeSold || t == EventTypeDelisted
}

// MarketplaceEvent represents a normalized marketplace contract log
type MarketplaceEvent struct {
	Chain           Chain                `json:"chain"`            // e.g., "eip155:1"
	ContractAddress string               `json:"contract_address"` // marketplace contract address
	EventType       MarketplaceEventType `json:"event_type"`       // Listed, Sold, Delisted
	TokenID         string               `json:"token_id"`         // uint256 token id as decimal string
	// ActorAddress is the lower-cased account on the economically meaningful side:
	// the seller for Listed/Delisted and the buyer for Sold
	ActorAddress string `json:"actor_address"`
	// CounterpartyAddress is the seller of a Sold event, nil otherwise
	CounterpartyAddress *string `json:"counterparty_address,omitempty"`
	// Price is the price formatted in ether units (e.g. "1.0"), nil for Delisted
	Price       *string `json:"price,omitempty"`
	TxHash      string  `json:"tx_hash"`
	BlockNumber uint64  `json:"block_number"`
	TxIndex     uint    `json:"tx_index"`
	LogIndex    uint    `json:"log_index"`
}

// Valid checks that the event carries every field its type requires
func (e *MarketplaceEvent) Valid() bool {
	if !e.EventType.Valid() {
		return false
	}
	if e.TxHash == "" || e.ActorAddress == "" {
		return false
	}
	if !validTokenNumber(e.TokenID) {
		return false
	}

	switch e.EventType {
	case EventTypeListed:
		return e.Price != nil
	case EventTypeSold:
		return e.Price != nil && e.CounterpartyAddress != nil && *e.CounterpartyAddress != ""
	case EventTypeDelisted:
		return e.Price == nil
	}

	return false
}

// Before reports whether e was emitted before o in chain order
func (e *MarketplaceEvent) Before(o *MarketplaceEvent) bool {
	if e.BlockNumber != o.BlockNumber {
		return e.BlockNumber < o.BlockNumber
	}
	return e.LogIndex < o.LogIndex
}

// SortMarketplaceEvents sorts events by (block number, log index)
func SortMarketplaceEvents(events []MarketplaceEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Before(&events[j])
	})
}

// NormalizeAddress lower-cases an address; valid hex addresses are canonicalized first
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if common.IsHexAddress(address) {
		return strings.ToLower(common.HexToAddress(address).Hex())
	}
	return strings.ToLower(address)
}

// FormatEther formats a wei amount as an ether decimal string.
// Whole amounts keep one fractional digit: 1e18 wei -> "1.0".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0"
	}

	s := decimal.NewFromBigInt(wei, -WEI_DECIMALS).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

var tokenNumberPattern = regexp.MustCompile(`^[0-9]+$`)

// validTokenNumber checks if a token number is a non-empty decimal string
func validTokenNumber(tokenNumber string) bool {
	return tokenNumberPattern.MatchString(tokenNumber)
}
