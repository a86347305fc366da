package schema

import "time"

// XPTransaction represents the xp_transactions table - append-only XP ledger entries
type XPTransaction struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// UserAddress references the credited user
	UserAddress string `gorm:"column:user_address;not null;type:text;index:idx_xp_transactions_user"`
	// Amount is signed; every current reason credits a positive amount
	Amount int64 `gorm:"column:amount;not null;type:bigint"`
	// Reason is a free-text label such as "Sold NFT" or "Earned badge: Collector"
	Reason string `gorm:"column:reason;not null;type:text"`
	// EventID references the marketplace event that triggered the award, nil for badge rewards
	EventID   *uint64   `gorm:"column:event_id;type:bigint"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the XPTransaction model
func (XPTransaction) TableName() string {
	return "xp_transactions"
}
