package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
)

// User represents the users table - XP balance, level and badges of one wallet
type User struct {
	// WalletAddress is the lower-cased wallet address
	WalletAddress string `gorm:"column:wallet_address;primaryKey;type:text"`
	// TotalXP equals the sum of the user's xp_transactions amounts
	TotalXP int64 `gorm:"column:total_xp;not null;default:0;type:bigint"`
	// Level is derived from TotalXP by domain.LevelForXP
	Level int `gorm:"column:level;not null;default:1;type:integer"`
	// Badges holds earned badges in the order they were granted
	Badges datatypes.JSONSlice[domain.EarnedBadge] `gorm:"column:badges;not null;default:'[]';type:jsonb"`
	// CreatedAt is the timestamp when the user first received XP
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// HasBadge reports whether the user already holds the named badge
func (u *User) HasBadge(name string) bool {
	for _, b := range u.Badges {
		if b.Name == name {
			return true
		}
	}
	return false
}
