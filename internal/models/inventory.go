package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StageLedgerEntry is the authoritative quantity+cost record for one
// (product, stage) pair. quantity never goes negative; average_cost is the
// quantity-weighted mean of all costs ever credited and is frozen on debits.
type StageLedgerEntry struct {
	ID          string          `db:"id" json:"id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	Stage       Stage           `db:"stage" json:"stage"`
	Quantity    int             `db:"quantity" json:"quantity"`
	AverageCost decimal.Decimal `db:"average_cost" json:"average_cost"`
	LastUpdated time.Time       `db:"last_updated" json:"last_updated"`

	// Joined from products for list views.
	ProductType  string          `db:"product_type" json:"product_type,omitempty"`
	AnimalType   string          `db:"animal_type" json:"animal_type,omitempty"`
	SizeCategory string          `db:"size_category" json:"size_category,omitempty"`
	BasePrice    decimal.Decimal `db:"base_price" json:"base_price,omitempty"`
}

// FinishedStockEntry is the finished-goods ledger: one row per product
// (unique on product alone, the finished stage has no downstream stage).
type FinishedStockEntry struct {
	ID          string          `db:"id" json:"id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	Quantity    int             `db:"quantity" json:"quantity"`
	AverageCost decimal.Decimal `db:"average_cost" json:"average_cost"`
	LastUpdated time.Time       `db:"last_updated" json:"last_updated"`

	ProductType  string `db:"product_type" json:"product_type,omitempty"`
	AnimalType   string `db:"animal_type" json:"animal_type,omitempty"`
	SizeCategory string `db:"size_category" json:"size_category,omitempty"`
}

// LedgerFilter scopes stage ledger listings.
type LedgerFilter struct {
	ProductID string
	Stage     Stage
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// InventorySummaryRow aggregates ledger quantities for reporting.
type InventorySummaryRow struct {
	GroupKey      string          `db:"group_key" json:"group_key"`
	TotalQuantity int             `db:"total_quantity" json:"total_quantity"`
	AverageCost   decimal.Decimal `db:"average_cost" json:"average_cost"`
	RecordCount   int             `db:"record_count" json:"record_count"`
}
