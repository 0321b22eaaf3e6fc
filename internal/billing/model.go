// Package billing sells consulting packages through Stripe Checkout.
package billing

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrUnknownPackage      = errors.New("unknown package")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrMissingCustomer     = errors.New("customer profile required for checkout")
	ErrInvalidStatus       = errors.New("invalid payment status")
	ErrCheckoutUnavailable = errors.New("checkout provider unavailable")
)

// Package is a fixed-price consulting offer.
type Package struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

var catalog = []Package{
	{
		ID:          "audit",
		Name:        "Automation Audit",
		Description: "Two-hour review of your workflows with a prioritized automation roadmap.",
		AmountCents: 49_900,
	},
	{
		ID:          "starter",
		Name:        "Starter Automation",
		Description: "One end-to-end workflow automated, documented and handed over.",
		AmountCents: 249_900,
	},
	{
		ID:          "growth",
		Name:        "Growth Retainer",
		Description: "A month of ongoing automation work, reporting and support.",
		AmountCents: 599_900,
	},
}

// Catalog returns the packages priced in currency.
func Catalog(currency string) []Package {
	out := make([]Package, len(catalog))
	for i, p := range catalog {
		p.Currency = normalizeCurrency(currency)
		out[i] = p
	}
	return out
}

// FindPackage looks up a catalog entry by id.
func FindPackage(id, currency string) (Package, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range catalog {
		if p.ID == id {
			p.Currency = normalizeCurrency(currency)
			return p, nil
		}
	}
	return Package{}, ErrUnknownPackage
}

func normalizeCurrency(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return "usd"
	}
	return c
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// Payment tracks one checkout attempt.
type Payment struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	PackageID   string    `json:"package_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Status      Status    `json:"status"`
	ProviderRef string    `json:"provider_ref,omitempty"`
	CheckoutURL string    `json:"checkout_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListFilter narrows admin payment listings.
type ListFilter struct {
	CustomerID string
	Status     Status
	Limit      int
	Offset     int
}
