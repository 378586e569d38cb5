package domain

import (
	"errors"
	"fmt"

	"tourmarket/internal/catalog"
	"tourmarket/internal/common/money"
)

// Pricing constants. The child discount and service fee are platform-wide,
// not per-tour configuration.
const (
	// ChildRateBps prices a child seat at 70% of the adult base price.
	ChildRateBps int64 = 7000
	// ServiceFeeBps is the flat 5% platform service fee on the subtotal.
	ServiceFeeBps int64 = 500
)

// PriceSelection is what the buyer chose at booking time
type PriceSelection struct {
	Adults           int
	Children         int
	Nights           int
	AccommodationIDs []string
	AddonIDs         []string
	Discount         money.Money // promo discount, zero when no code applied
}

// Breakdown is the immutable price breakdown stored on the booking.
// It is computed exactly once at creation so settlement-time earnings stay
// stable even if catalog prices change afterwards.
type Breakdown struct {
	BaseAmount          money.Money `json:"base_amount"`
	AccommodationAmount money.Money `json:"accommodation_amount"`
	ActivitiesAmount    money.Money `json:"activities_amount"`
	TaxAmount           money.Money `json:"tax_amount"`
	DiscountAmount      money.Money `json:"discount_amount"`
	TotalAmount         money.Money `json:"total_amount"`
}

// ComputePrice builds the breakdown for a tour and selection:
// base price x adults, plus base price x 70% x children, plus selected
// accommodations x nights, plus selected addons x party size, plus a 5%
// service fee on the subtotal, minus the promo discount.
func ComputePrice(tour *catalog.Tour, sel PriceSelection) (Breakdown, error) {
	if sel.Adults < 1 {
		return Breakdown{}, errors.New("at least one adult is required")
	}
	if sel.Children < 0 {
		return Breakdown{}, errors.New("child count cannot be negative")
	}
	if len(sel.AccommodationIDs) > 0 && sel.Nights < 1 {
		return Breakdown{}, errors.New("nights must be positive when accommodation is selected")
	}

	currency := tour.BasePrice.Currency

	base := tour.BasePrice.Multiply(int64(sel.Adults))
	if sel.Children > 0 {
		childSeat := tour.BasePrice.Percentage(ChildRateBps)
		base = base.MustAdd(childSeat.Multiply(int64(sel.Children)))
	}

	accommodation := money.Zero(currency)
	for _, id := range sel.AccommodationIDs {
		opt, ok := tour.Accommodation(id)
		if !ok {
			return Breakdown{}, fmt.Errorf("accommodation %s does not belong to tour %s", id, tour.ID)
		}
		accommodation = accommodation.MustAdd(opt.PricePerNight.Multiply(int64(sel.Nights)))
	}

	partySize := int64(sel.Adults + sel.Children)
	activities := money.Zero(currency)
	for _, id := range sel.AddonIDs {
		addon, ok := tour.Addon(id)
		if !ok {
			return Breakdown{}, fmt.Errorf("addon %s does not belong to tour %s", id, tour.ID)
		}
		activities = activities.MustAdd(addon.PricePerPerson.Multiply(partySize))
	}

	subtotal := base.MustAdd(accommodation).MustAdd(activities)
	tax := subtotal.Percentage(ServiceFeeBps)

	discount := sel.Discount
	if discount.IsZero() {
		discount = money.Zero(currency)
	}
	if discount.Currency != currency {
		return Breakdown{}, fmt.Errorf("discount currency %s does not match tour currency %s", discount.Currency, currency)
	}
	if discount.IsNegative() {
		return Breakdown{}, errors.New("discount cannot be negative")
	}
	// Discount never exceeds the pre-fee subtotal.
	discount = discount.Min(subtotal)

	total := subtotal.MustAdd(tax).MustSub(discount)

	return Breakdown{
		BaseAmount:          base,
		AccommodationAmount: accommodation,
		ActivitiesAmount:    activities,
		TaxAmount:           tax,
		DiscountAmount:      discount,
		TotalAmount:         total,
	}, nil
}
