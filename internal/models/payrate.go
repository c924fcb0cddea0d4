package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayRate is the per-unit rate paid to artisans for one (product, stage)
// combination. A missing rate means deliveries at that combination pay zero.
type PayRate struct {
	ID          string          `db:"id" json:"id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	Stage       Stage           `db:"stage" json:"stage"`
	RatePerUnit decimal.Decimal `db:"rate_per_unit" json:"rate_per_unit"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`

	ProductType  string `db:"product_type" json:"product_type,omitempty"`
	AnimalType   string `db:"animal_type" json:"animal_type,omitempty"`
	SizeCategory string `db:"size_category" json:"size_category,omitempty"`
}

// PayRateFilter scopes pay rate listings.
type PayRateFilter struct {
	ProductID string
	Stage     Stage
	Page      int
	PageSize  int
}
