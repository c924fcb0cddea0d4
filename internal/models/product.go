package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry identified by the (product_type, animal_type,
// size_category) tuple. base_price is the cost basis used whenever no ledger
// cost exists yet; price changes append PriceHistory rows.
type Product struct {
	ID           string          `db:"id" json:"id"`
	ProductType  string          `db:"product_type" json:"product_type"`
	AnimalType   string          `db:"animal_type" json:"animal_type"`
	SizeCategory string          `db:"size_category" json:"size_category"`
	BasePrice    decimal.Decimal `db:"base_price" json:"base_price"`
	Active       bool            `db:"active" json:"active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Label renders the human-readable product identity.
func (p Product) Label() string {
	return p.ProductType + " - " + p.AnimalType + " (" + p.SizeCategory + ")"
}

// PriceHistory records one base price change, append-only.
type PriceHistory struct {
	ID            string          `db:"id" json:"id"`
	ProductID     string          `db:"product_id" json:"product_id"`
	OldPrice      decimal.Decimal `db:"old_price" json:"old_price"`
	NewPrice      decimal.Decimal `db:"new_price" json:"new_price"`
	ChangedBy     string          `db:"changed_by" json:"changed_by"`
	Reason        *string         `db:"reason" json:"reason,omitempty"`
	EffectiveDate time.Time       `db:"effective_date" json:"effective_date"`
}

// ProductFilter captures filtering criteria for listing products.
type ProductFilter struct {
	ProductType string
	AnimalType  string
	Active      *bool
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
