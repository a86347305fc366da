package schema

import (
	"time"

	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
)

// MarketplaceEvent represents the marketplace_events table - one row per recorded contract log
type MarketplaceEvent struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// EventType is Listed, Sold or Delisted
	EventType domain.MarketplaceEventType `gorm:"column:event_type;not null;type:text"`
	// TxHash is the transaction hash of the log and the deduplication key
	TxHash string `gorm:"column:tx_hash;not null;type:text;uniqueIndex:idx_marketplace_events_tx_hash"`
	// BlockNumber and LogIndex give the position of the log in the chain
	BlockNumber uint64 `gorm:"column:block_number;not null;type:bigint"`
	LogIndex    uint   `gorm:"column:log_index;not null;type:integer"`
	// ActorAddress is the seller for Listed/Delisted and the buyer for Sold
	ActorAddress string `gorm:"column:actor_address;not null;type:text;index:idx_marketplace_events_actor"`
	// CounterpartyAddress is the seller of a Sold event
	CounterpartyAddress *string `gorm:"column:counterparty_address;type:text;index:idx_marketplace_events_counterparty"`
	// TokenID is the uint256 token id as a decimal string
	TokenID string `gorm:"column:token_id;not null;type:text"`
	// Price is the sale or listing price in ether units, nil for Delisted
	Price *string `gorm:"column:price;type:text"`
	// Processed is true once every XP effect of the event has been applied
	Processed bool `gorm:"column:processed;not null;default:false"`
	// XPAwarded is the total XP granted for the event
	XPAwarded int64 `gorm:"column:xp_awarded;not null;default:0;type:bigint"`
	// CreatedAt is the timestamp when this record was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the MarketplaceEvent model
func (MarketplaceEvent) TableName() string {
	return "marketplace_events"
}
