// Package agent holds the tour operator model and commission rate rules.
package agent

import (
	"sort"
	"time"

	"tourmarket/internal/common/money"
)

// Status represents the status of an agent account
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// Agent represents a tour operator earning commission-adjusted revenue
type Agent struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Status        Status         `json:"status"`
	CommissionBps int64          `json:"commission_bps"` // flat platform rate, basis points
	Currency      money.Currency `json:"currency"`
	CreatedAt     time.Time      `json:"created_at"`
}

// CommissionTier overrides an agent's flat rate once lifetime volume
// crosses a booking-count or revenue threshold.
type CommissionTier struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	MinBookings     int64  `json:"min_bookings"`      // 0 = no booking threshold
	MinRevenueMinor int64  `json:"min_revenue_minor"` // 0 = no revenue threshold
	RateBps         int64  `json:"rate_bps"`
}

// LifetimeStats is an agent's settled volume to date
type LifetimeStats struct {
	BookingCount int64 `json:"booking_count"`
	RevenueMinor int64 `json:"revenue_minor"`
}

// EffectiveCommissionBps returns the commission rate to apply at
// settlement time. Tiers are evaluated highest threshold first; the first
// tier whose booking-count or revenue threshold the agent has crossed
// wins. With no qualifying tier the agent's flat rate applies.
func EffectiveCommissionBps(a *Agent, tiers []CommissionTier, stats LifetimeStats) int64 {
	sorted := make([]CommissionTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].MinBookings != sorted[j].MinBookings {
			return sorted[i].MinBookings > sorted[j].MinBookings
		}
		return sorted[i].MinRevenueMinor > sorted[j].MinRevenueMinor
	})

	for _, tier := range sorted {
		if tier.MinBookings > 0 && stats.BookingCount >= tier.MinBookings {
			return tier.RateBps
		}
		if tier.MinRevenueMinor > 0 && stats.RevenueMinor >= tier.MinRevenueMinor {
			return tier.RateBps
		}
	}
	return a.CommissionBps
}
