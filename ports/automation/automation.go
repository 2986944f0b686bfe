// Package automation defines the boundary to the storefront automation that
// drives the real checkout. Each method maps to one pipeline stage; the
// mechanics behind it (browser driving, session handling) live elsewhere.
package automation

import "context"

// Item is one position to place into the storefront cart.
type Item struct {
	Link     string `json:"link"`
	Quantity int    `json:"quantity"`
}

// DeliveryOption is one selectable delivery slot.
type DeliveryOption struct {
	Index  int    `json:"index"`
	Day    string `json:"day"`
	Marker string `json:"marker"`
	Label  string `json:"label,omitempty"`
}

// Summary is the storefront's final order overview scraped before the last
// confirmation step.
type Summary struct {
	Address     string `json:"address"`
	Contact     string `json:"contact"`
	Payment     string `json:"payment"`
	Packaging   string `json:"packaging"`
	CourierNote string `json:"courierNote"`
	TotalPrice  string `json:"totalPrice"`
}

// Service exposes the checkout pipeline stages. Every call either completes
// its stage or returns an error; there are no partial results.
type Service interface {
	Connect(ctx context.Context) error
	AcceptTerms(ctx context.Context) error
	Login(ctx context.Context) error
	PopulateCart(ctx context.Context, items []Item) error
	SetAddress(ctx context.Context) error
	ListDeliveryOptions(ctx context.Context) ([]DeliveryOption, error)
	SelectDeliveryOption(ctx context.Context, opt DeliveryOption) error
	EnterPayment(ctx context.Context) error
	OrderSummary(ctx context.Context) (*Summary, error)
}
