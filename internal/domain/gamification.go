package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// XP_PER_LEVEL_UNIT is the XP divisor of the level curve
const XP_PER_LEVEL_UNIT = 100

// EARLY_USER_WINDOW is how long after first award a user still qualifies as an early user
const EARLY_USER_WINDOW = 30 * 24 * time.Hour

// LevelForXP computes the level for an XP total: floor(sqrt(totalXP/100)) + 1.
// Totals below one level unit, including negative totals, are level 1.
func LevelForXP(totalXP int64) int {
	if totalXP < XP_PER_LEVEL_UNIT {
		return 1
	}
	return int(isqrt(uint64(totalXP/XP_PER_LEVEL_UNIT))) + 1 //nolint:gosec,G115 // totalXP is positive here
}

// isqrt returns floor(sqrt(n)) using integer arithmetic only
func isqrt(n uint64) uint64 {
	if n < 2 {
		return n
	}

	// Newton iteration, starting from a value guaranteed to be >= sqrt(n)
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// BadgeRequirement identifies the user statistic a badge is gated on
type BadgeRequirement string

const (
	RequirementPurchases    BadgeRequirement = "purchases"
	RequirementSales        BadgeRequirement = "sales"
	RequirementTransactions BadgeRequirement = "transactions"
	RequirementVolume       BadgeRequirement = "volume"
	RequirementListings     BadgeRequirement = "listings"
	RequirementEarlyUser    BadgeRequirement = "early_user"
)

// Valid checks if the requirement type is known
func (r BadgeRequirement) Valid() bool {
	switch r {
	case RequirementPurchases, RequirementSales, RequirementTransactions,
		RequirementVolume, RequirementListings, RequirementEarlyUser:
		return true
	}
	return false
}

// EarnedBadge is a badge held by a user
type EarnedBadge struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	EarnedAt    time.Time `json:"earnedAt"`
}

// UserStats holds the aggregate marketplace activity of one address
type UserStats struct {
	Purchases         int64           `json:"purchases"`
	Sales             int64           `json:"sales"`
	Listings          int64           `json:"listings"`
	TotalTransactions int64           `json:"total_transactions"`
	TotalVolume       decimal.Decimal `json:"total_volume"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Satisfies reports whether the stats meet a badge requirement at the given time
func (s UserStats) Satisfies(requirement BadgeRequirement, value decimal.Decimal, now time.Time) bool {
	switch requirement {
	case RequirementPurchases:
		return decimal.NewFromInt(s.Purchases).GreaterThanOrEqual(value)
	case RequirementSales:
		return decimal.NewFromInt(s.Sales).GreaterThanOrEqual(value)
	case RequirementTransactions:
		return decimal.NewFromInt(s.TotalTransactions).GreaterThanOrEqual(value)
	case RequirementListings:
		return decimal.NewFromInt(s.Listings).GreaterThanOrEqual(value)
	case RequirementVolume:
		return s.TotalVolume.GreaterThanOrEqual(value)
	case RequirementEarlyUser:
		if s.CreatedAt.IsZero() {
			return false
		}
		return now.Sub(s.CreatedAt) <= EARLY_USER_WINDOW
	}
	return false
}
