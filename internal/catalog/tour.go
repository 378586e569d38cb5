// Package catalog provides the tour catalog read model used by pricing
// and promo validation. Catalog management itself lives in the CMS
// surface outside this service; here we only read.
package catalog

import (
	"time"

	"tourmarket/internal/common/money"
)

// Tour represents a bookable tour owned by an agent
type Tour struct {
	ID             string          `json:"id"`
	AgentID        string          `json:"agent_id"`
	Name           string          `json:"name"`
	BasePrice      money.Money     `json:"base_price"` // per adult
	Active         bool            `json:"active"`
	Accommodations []Accommodation `json:"accommodations,omitempty"`
	Addons         []Addon         `json:"addons,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Accommodation is a per-night lodging line item selectable on a booking
type Accommodation struct {
	ID            string      `json:"id"`
	TourID        string      `json:"tour_id"`
	Name          string      `json:"name"`
	PricePerNight money.Money `json:"price_per_night"`
}

// Addon is an optional activity priced per person
type Addon struct {
	ID             string      `json:"id"`
	TourID         string      `json:"tour_id"`
	Name           string      `json:"name"`
	PricePerPerson money.Money `json:"price_per_person"`
}

// Accommodation returns the accommodation with the given id, if present
func (t *Tour) Accommodation(id string) (Accommodation, bool) {
	for _, a := range t.Accommodations {
		if a.ID == id {
			return a, true
		}
	}
	return Accommodation{}, false
}

// Addon returns the addon with the given id, if present
func (t *Tour) Addon(id string) (Addon, bool) {
	for _, a := range t.Addons {
		if a.ID == id {
			return a, true
		}
	}
	return Addon{}, false
}
