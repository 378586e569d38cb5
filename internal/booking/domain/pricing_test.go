package domain

import (
	"testing"
	"time"

	"tourmarket/internal/catalog"
	"tourmarket/internal/common/money"
)

func testTour() *catalog.Tour {
	return &catalog.Tour{
		ID:        "tour-1",
		AgentID:   "agent-1",
		Name:      "Serengeti Safari",
		BasePrice: money.New(10000, money.USD), // $100.00
		Active:    true,
		Accommodations: []catalog.Accommodation{
			{ID: "acc-1", TourID: "tour-1", Name: "Lodge", PricePerNight: money.New(5000, money.USD)},
			{ID: "acc-2", TourID: "tour-1", Name: "Camp", PricePerNight: money.New(2000, money.USD)},
		},
		Addons: []catalog.Addon{
			{ID: "add-1", TourID: "tour-1", Name: "Balloon ride", PricePerPerson: money.New(3000, money.USD)},
		},
	}
}

func TestComputePriceAdultsOnly(t *testing.T) {
	got, err := ComputePrice(testTour(), PriceSelection{Adults: 2, Discount: money.Zero(money.USD)})
	if err != nil {
		t.Fatalf("ComputePrice: %v", err)
	}

	if got.BaseAmount.AmountMinor != 20000 {
		t.Errorf("base = %d, want 20000", got.BaseAmount.AmountMinor)
	}
	// 5% service fee on the subtotal
	if got.TaxAmount.AmountMinor != 1000 {
		t.Errorf("tax = %d, want 1000", got.TaxAmount.AmountMinor)
	}
	if got.TotalAmount.AmountMinor != 21000 {
		t.Errorf("total = %d, want 21000", got.TotalAmount.AmountMinor)
	}
}

func TestComputePriceChildrenAt70Percent(t *testing.T) {
	got, err := ComputePrice(testTour(), PriceSelection{Adults: 1, Children: 2, Discount: money.Zero(money.USD)})
	if err != nil {
		t.Fatalf("ComputePrice: %v", err)
	}

	// 10000 + 2 x 7000
	if got.BaseAmount.AmountMinor != 24000 {
		t.Errorf("base = %d, want 24000", got.BaseAmount.AmountMinor)
	}
}

func TestComputePriceFullSelection(t *testing.T) {
	sel := PriceSelection{
		Adults:           2,
		Children:         1,
		Nights:           3,
		AccommodationIDs: []string{"acc-1"},
		AddonIDs:         []string{"add-1"},
		Discount:         money.Zero(money.USD),
	}
	got, err := ComputePrice(testTour(), sel)
	if err != nil {
		t.Fatalf("ComputePrice: %v", err)
	}

	// base: 2x10000 + 1x7000 = 27000
	// accommodation: 5000 x 3 nights = 15000
	// activities: 3000 x 3 people = 9000
	// subtotal 51000, fee 2550, total 53550
	if got.BaseAmount.AmountMinor != 27000 {
		t.Errorf("base = %d, want 27000", got.BaseAmount.AmountMinor)
	}
	if got.AccommodationAmount.AmountMinor != 15000 {
		t.Errorf("accommodation = %d, want 15000", got.AccommodationAmount.AmountMinor)
	}
	if got.ActivitiesAmount.AmountMinor != 9000 {
		t.Errorf("activities = %d, want 9000", got.ActivitiesAmount.AmountMinor)
	}
	if got.TaxAmount.AmountMinor != 2550 {
		t.Errorf("tax = %d, want 2550", got.TaxAmount.AmountMinor)
	}
	if got.TotalAmount.AmountMinor != 53550 {
		t.Errorf("total = %d, want 53550", got.TotalAmount.AmountMinor)
	}
}

func TestComputePriceDiscountCappedAtSubtotal(t *testing.T) {
	sel := PriceSelection{
		Adults:   1,
		Discount: money.New(99999, money.USD),
	}
	got, err := ComputePrice(testTour(), sel)
	if err != nil {
		t.Fatalf("ComputePrice: %v", err)
	}

	if got.DiscountAmount.AmountMinor != 10000 {
		t.Errorf("discount = %d, want capped at subtotal 10000", got.DiscountAmount.AmountMinor)
	}
	// With the discount consuming the subtotal only the fee remains.
	if got.TotalAmount.AmountMinor != 500 {
		t.Errorf("total = %d, want 500", got.TotalAmount.AmountMinor)
	}
}

func TestComputePriceRejections(t *testing.T) {
	tests := []struct {
		name string
		sel  PriceSelection
	}{
		{"no adults", PriceSelection{Adults: 0}},
		{"negative children", PriceSelection{Adults: 1, Children: -1}},
		{"accommodation without nights", PriceSelection{Adults: 1, AccommodationIDs: []string{"acc-1"}}},
		{"foreign accommodation", PriceSelection{Adults: 1, Nights: 2, AccommodationIDs: []string{"other"}}},
		{"foreign addon", PriceSelection{Adults: 1, AddonIDs: []string{"other"}}},
		{"negative discount", PriceSelection{Adults: 1, Discount: money.New(-1, money.USD)}},
		{"wrong discount currency", PriceSelection{Adults: 1, Discount: money.New(100, money.EUR)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ComputePrice(testTour(), tt.sel); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSettleConservesTotal(t *testing.T) {
	price, err := ComputePrice(testTour(), PriceSelection{Adults: 2, Discount: money.Zero(money.USD)})
	if err != nil {
		t.Fatalf("ComputePrice: %v", err)
	}
	b, err := NewBooking("b-1", "tour-1", "buyer-1", "agent-1",
		PriceSelection{Adults: 2}, price, time.Now(), time.Now().Add(48*time.Hour))
	if err != nil {
		t.Fatalf("NewBooking: %v", err)
	}

	earnings := money.New(17850, money.USD)
	commission := money.New(3000, money.USD)
	if err := b.Settle(earnings, commission, time.Now()); err == nil {
		t.Fatal("expected error when splits do not sum to total")
	}

	commission = money.New(3150, money.USD)
	if err := b.Settle(earnings, commission, time.Now()); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if b.Status != StatusPaid {
		t.Errorf("status = %s, want PAID", b.Status)
	}
	if b.PaymentStatus != PaymentCompleted {
		t.Errorf("payment status = %s, want COMPLETED", b.PaymentStatus)
	}

	if err := b.Settle(earnings, commission, time.Now()); err == nil {
		t.Fatal("expected error on second settle")
	}
}
