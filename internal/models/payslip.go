package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payslip is a payable batch of accepted, previously unconsumed job items
// for one artisan over a period. The consumed items are recorded explicitly
// in payslip_items so deletion can reverse exactly what was consumed.
type Payslip struct {
	ID            string          `db:"id" json:"id"`
	ArtisanID     string          `db:"artisan_id" json:"artisan_id"`
	Stage         *Stage          `db:"stage" json:"stage,omitempty"`
	PeriodStart   time.Time       `db:"period_start" json:"period_start"`
	PeriodEnd     time.Time       `db:"period_end" json:"period_end"`
	TotalPayment  decimal.Decimal `db:"total_payment" json:"total_payment"`
	DocumentPath  string          `db:"document_path" json:"-"`
	GeneratedDate time.Time       `db:"generated_date" json:"generated_date"`

	ArtisanName string `db:"artisan_name" json:"artisan_name,omitempty"`
}

// PayslipItem links a payslip to one consumed job item, freezing the payment
// amount as it stood at generation time.
type PayslipItem struct {
	ID        string          `db:"id" json:"id"`
	PayslipID string          `db:"payslip_id" json:"payslip_id"`
	JobItemID string          `db:"job_item_id" json:"job_item_id"`
	Payment   decimal.Decimal `db:"payment" json:"payment"`
}

// PayslipFilter captures filtering criteria for listing payslips.
type PayslipFilter struct {
	ArtisanID   string
	Stage       Stage
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
