// Package catalog defines the boundary to the storefront's product and
// search services.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoResults is returned by Search when the page holds no product.
var ErrNoResults = errors.New("no results found")

// Price is a product price in the storefront's currency.
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// String renders the price for chat display, continental style ("7,98 €").
func (p Price) String() string {
	cur := p.Currency
	if cur == "" {
		cur = "€"
	}
	return strings.Replace(fmt.Sprintf("%.2f", p.Amount), ".", ",", 1) + " " + cur
}

// Mul scales the price by a quantity.
func (p Price) Mul(qty int) Price {
	return Price{Amount: p.Amount * float64(qty), Currency: p.Currency}
}

// Nutrition carries per-100g/ml nutritional values.
type Nutrition struct {
	EnergyKCal    float64 `json:"energyKCal"`
	Protein       float64 `json:"protein"`
	Fats          float64 `json:"fats"`
	Sugars        float64 `json:"sugars"`
	Carbohydrates float64 `json:"carbohydrates"`
}

// Product is the storefront's product representation used across cart,
// search and checkout.
type Product struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	TextualAmount string    `json:"textualAmount"`
	Price         Price     `json:"price"`
	ImagePath     string    `json:"imagePath,omitempty"`
	Link          string    `json:"link"`
	Nutrition     Nutrition `json:"nutrition"`
}

// Service is the consumed catalog surface. Search resolves exactly one
// product per page (the storefront UI browses results one at a time).
type Service interface {
	Search(ctx context.Context, query string, page int) (*Product, error)
	ProductByID(ctx context.Context, id int64) (*Product, error)
}
