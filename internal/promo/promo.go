// Package promo implements promo code validation and usage tracking.
// Validation is read-only: a code is only consumed when the booking that
// carries it is actually created.
package promo

import (
	"strings"
	"time"

	"tourmarket/internal/common/money"
)

// DiscountType is how a promo code's value is interpreted
type DiscountType string

const (
	// DiscountPercentage treats Value as basis points of the order amount.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFixedAmount treats Value as minor units.
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

// PromoCode is a discount instrument owned by one agent. It only applies
// to that agent's tours and dies with the agent's suspension.
type PromoCode struct {
	ID           string       `json:"id"`
	AgentID      string       `json:"agent_id"`
	Code         string       `json:"code"`
	DiscountType DiscountType `json:"discount_type"`

	// Value is basis points for PERCENTAGE, minor units for FIXED_AMOUNT.
	Value    int64          `json:"value"`
	Currency money.Currency `json:"currency"`

	// MaxDiscountMinor caps a percentage discount. Zero means no cap.
	MaxDiscountMinor int64 `json:"max_discount_minor"`

	// MinOrderMinor is the minimum order amount the code applies to.
	MinOrderMinor int64 `json:"min_order_minor"`

	Active     bool      `json:"active"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`

	// MaxUses / MaxUsesPerUser of zero mean unlimited.
	MaxUses        int `json:"max_uses"`
	MaxUsesPerUser int `json:"max_uses_per_user"`

	// TourIDs restricts the code to specific tours of the issuing agent.
	// Empty means any of the agent's tours.
	TourIDs []string `json:"tour_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Usage is one consumption of a promo code by a booking
type Usage struct {
	ID             string      `json:"id"`
	PromoCodeID    string      `json:"promo_code_id"`
	BookingID      string      `json:"booking_id"`
	UserID         string      `json:"user_id"`
	DiscountAmount money.Money `json:"discount_amount"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ValidationResult is the outcome of validating a code against an order.
// An inapplicable code is a negative result, not an error: the caller gets
// a message suitable for showing to the buyer.
type ValidationResult struct {
	Valid          bool        `json:"valid"`
	Message        string      `json:"message,omitempty"`
	Code           string      `json:"code,omitempty"`
	DiscountAmount money.Money `json:"discount_amount"`
	FinalAmount    money.Money `json:"final_amount"`
}

func rejected(message string) ValidationResult {
	return ValidationResult{Valid: false, Message: message}
}

// NormalizeCode canonicalizes user input before lookup
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CheckApplicable runs the ordered eligibility checks for a code against an
// order, short-circuiting at the first failure. Usage counts, the issuing
// agent's status, and the tour's owner are supplied by the caller; this
// function has no side effects.
//
// The order is fixed: existence and active flag first, then the issuing
// agent, then the validity window, then tour applicability, then usage
// limits, then order constraints. Earlier failures mask later ones so the
// buyer sees the most fundamental problem.
func (p *PromoCode) CheckApplicable(now time.Time, issuerActive bool, totalUses, userUses int, tourID, tourAgentID string, amount money.Money) ValidationResult {
	if !p.Active {
		return rejected("This promo code is no longer active")
	}
	if !issuerActive {
		return rejected("This promo code is not currently available")
	}
	if now.Before(p.ValidFrom) {
		return rejected("This promo code is not valid yet")
	}
	if now.After(p.ValidUntil) {
		return rejected("This promo code has expired")
	}
	if tourAgentID != p.AgentID {
		return rejected("This promo code does not apply to this tour")
	}
	if len(p.TourIDs) > 0 && !p.appliesToTour(tourID) {
		return rejected("This promo code does not apply to this tour")
	}
	if p.MaxUses > 0 && totalUses >= p.MaxUses {
		return rejected("This promo code has reached its usage limit")
	}
	if p.MaxUsesPerUser > 0 && userUses >= p.MaxUsesPerUser {
		return rejected("You have already used this promo code")
	}
	if p.Currency != amount.Currency {
		return rejected("This promo code does not apply to this currency")
	}
	if p.MinOrderMinor > 0 && amount.AmountMinor < p.MinOrderMinor {
		minOrder := money.New(p.MinOrderMinor, p.Currency)
		return rejected("Order total must be at least " + minOrder.String())
	}

	discount := p.Discount(amount)
	return ValidationResult{
		Valid:          true,
		Code:           p.Code,
		DiscountAmount: discount,
		FinalAmount:    amount.MustSub(discount),
	}
}

// Discount computes the discount for an order amount: percentage of the
// amount (capped at MaxDiscountMinor when set) or the fixed value. The
// result never exceeds the order amount.
func (p *PromoCode) Discount(amount money.Money) money.Money {
	var discount money.Money
	switch p.DiscountType {
	case DiscountPercentage:
		discount = amount.Percentage(p.Value)
		if p.MaxDiscountMinor > 0 {
			discount = discount.Min(money.New(p.MaxDiscountMinor, amount.Currency))
		}
	case DiscountFixedAmount:
		discount = money.New(p.Value, amount.Currency)
	default:
		return money.Zero(amount.Currency)
	}
	return discount.Min(amount)
}

func (p *PromoCode) appliesToTour(tourID string) bool {
	for _, id := range p.TourIDs {
		if id == tourID {
			return true
		}
	}
	return false
}
