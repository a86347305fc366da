package schema

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
)

// BadgeDefinition represents the badge_definitions table - the read-only badge catalog
type BadgeDefinition struct {
	ID          uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string `gorm:"column:name;not null;type:text;uniqueIndex:idx_badge_definitions_name"`
	Description string `gorm:"column:description;not null;type:text"`
	Icon        string `gorm:"column:icon;not null;type:text"`
	// RequirementType names the user statistic the badge is gated on
	RequirementType domain.BadgeRequirement `gorm:"column:requirement_type;not null;type:text"`
	// RequirementValue is the threshold, compared with >=
	RequirementValue decimal.Decimal `gorm:"column:requirement_value;not null;type:numeric"`
	// XPReward is credited once when the badge is granted
	XPReward  int64     `gorm:"column:xp_reward;not null;default:0;type:bigint"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the BadgeDefinition model
func (BadgeDefinition) TableName() string {
	return "badge_definitions"
}

// Badge returns the badge a user receives for this definition
func (d *BadgeDefinition) Badge(earnedAt time.Time) domain.EarnedBadge {
	return domain.EarnedBadge{
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
		EarnedAt:    earnedAt,
	}
}
