package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Artisan is a craftsperson paid per accepted unit.
type Artisan struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ArtisanStats aggregates an artisan's work and pay history.
type ArtisanStats struct {
	ArtisanID      string          `json:"artisan_id"`
	TotalItems     int             `json:"total_items"`
	PendingPayment decimal.Decimal `json:"pending_payment"`
	TotalEarnings  decimal.Decimal `json:"total_earnings"`
	Specialties    []Stage         `json:"specialties"`
	LastJobDate    *time.Time      `json:"last_job_date,omitempty"`
}

// ArtisanFilter captures filtering criteria for listing artisans.
type ArtisanFilter struct {
	Active   *bool
	Search   string
	Page     int
	PageSize int
}
