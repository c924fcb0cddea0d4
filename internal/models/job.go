package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobStatus is derived from delivered vs ordered quantities across a job's
// items. Clients never set it directly.
type JobStatus string

const (
	JobInProgress        JobStatus = "IN_PROGRESS"
	JobPartiallyReceived JobStatus = "PARTIALLY_RECEIVED"
	JobCompleted         JobStatus = "COMPLETED"
)

// DeriveJobStatus computes the status from aggregate ordered/received sums.
func DeriveJobStatus(totalOrdered, totalReceived int) JobStatus {
	switch {
	case totalReceived == 0:
		return JobInProgress
	case totalReceived < totalOrdered:
		return JobPartiallyReceived
	default:
		return JobCompleted
	}
}

// RejectionReason classifies why part of a delivery was rejected.
type RejectionReason string

const (
	RejectionQuality RejectionReason = "QUALITY"
	RejectionDamage  RejectionReason = "DAMAGE"
	RejectionOther   RejectionReason = "OTHER"
)

// Valid reports whether the rejection reason is a known value.
func (r RejectionReason) Valid() bool {
	switch r {
	case RejectionQuality, RejectionDamage, RejectionOther:
		return true
	}
	return false
}

// Job is a work order scoped to one target stage.
type Job struct {
	ID          string    `db:"id" json:"id"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	Status      JobStatus `db:"status" json:"status"`
	TargetStage Stage     `db:"target_stage" json:"target_stage"`
	Notes       *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	Items []JobItem `json:"items,omitempty"`
}

// JobItem is one artisan's assignment within a job for one product.
// quantity_received and quantity_accepted are running sums recomputed from
// the delivery rows; original_amount is frozen at creation; final_payment is
// recomputed on every mutation.
type JobItem struct {
	ID               string           `db:"id" json:"id"`
	JobID            string           `db:"job_id" json:"job_id"`
	ArtisanID        string           `db:"artisan_id" json:"artisan_id"`
	ProductID        string           `db:"product_id" json:"product_id"`
	QuantityOrdered  int              `db:"quantity_ordered" json:"quantity_ordered"`
	QuantityReceived int              `db:"quantity_received" json:"quantity_received"`
	QuantityAccepted int              `db:"quantity_accepted" json:"quantity_accepted"`
	RejectionReason  *RejectionReason `db:"rejection_reason" json:"rejection_reason,omitempty"`
	// SourceStage records which predecessor ledger the reservation was drawn
	// from; nil when the target stage has no predecessors.
	SourceStage      *Stage          `db:"source_stage" json:"source_stage,omitempty"`
	OriginalAmount   decimal.Decimal `db:"original_amount" json:"original_amount"`
	FinalPayment     decimal.Decimal `db:"final_payment" json:"final_payment"`
	PayslipGenerated bool            `db:"payslip_generated" json:"payslip_generated"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`

	// Joined for list/detail views.
	ArtisanName  string `db:"artisan_name" json:"artisan_name,omitempty"`
	ProductType  string `db:"product_type" json:"product_type,omitempty"`
	AnimalType   string `db:"animal_type" json:"animal_type,omitempty"`
	SizeCategory string `db:"size_category" json:"size_category,omitempty"`

	Deliveries []Delivery `json:"deliveries,omitempty"`
}

// Delivery is an immutable-after-create receipt event against one job item.
type Delivery struct {
	ID               string           `db:"id" json:"id"`
	JobItemID        string           `db:"job_item_id" json:"job_item_id"`
	QuantityReceived int              `db:"quantity_received" json:"quantity_received"`
	QuantityAccepted int              `db:"quantity_accepted" json:"quantity_accepted"`
	RejectionReason  *RejectionReason `db:"rejection_reason" json:"rejection_reason,omitempty"`
	Notes            *string          `db:"notes" json:"notes,omitempty"`
	DeliveryDate     time.Time        `db:"delivery_date" json:"delivery_date"`
}

// JobFilter captures filtering criteria for listing jobs.
type JobFilter struct {
	Status      JobStatus
	TargetStage Stage
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// JobItemFilter scopes standalone job item listings.
type JobItemFilter struct {
	ArtisanID       string
	ProductID       string
	PendingDelivery bool
	Page            int
	PageSize        int
}

// JobDashboard aggregates job counts and money totals.
type JobDashboard struct {
	TotalJobs          int             `db:"total_jobs" json:"total_jobs"`
	InProgress         int             `db:"in_progress" json:"in_progress"`
	PartiallyReceived  int             `db:"partially_received" json:"partially_received"`
	Completed          int             `db:"completed" json:"completed"`
	TotalOriginal      decimal.Decimal `db:"total_original" json:"total_original_amount"`
	TotalFinalPayment  decimal.Decimal `db:"total_final_payment" json:"total_final_payment"`
}

// JobItemTotals aggregates item quantities for a job summary.
type JobItemTotals struct {
	TotalItems     int             `db:"total_items" json:"total_items"`
	TotalOrdered   int             `db:"total_ordered" json:"total_ordered"`
	TotalReceived  int             `db:"total_received" json:"total_received"`
	TotalAccepted  int             `db:"total_accepted" json:"total_accepted"`
	OriginalAmount decimal.Decimal `db:"original_amount" json:"original_amount"`
	FinalPayment   decimal.Decimal `db:"final_payment" json:"final_payment"`
}

// JobArtisanSummary aggregates one artisan's share of a job.
type JobArtisanSummary struct {
	ArtisanID     string          `db:"artisan_id" json:"artisan_id"`
	ArtisanName   string          `db:"artisan_name" json:"artisan_name"`
	TotalItems    int             `db:"total_items" json:"total_items"`
	TotalOrdered  int             `db:"total_ordered" json:"total_ordered"`
	TotalReceived int             `db:"total_received" json:"total_received"`
	TotalAccepted int             `db:"total_accepted" json:"total_accepted"`
	TotalPayment  decimal.Decimal `db:"total_payment" json:"total_payment"`
}

// JobSummary is the detailed per-job report payload.
type JobSummary struct {
	Job      Job                 `json:"job"`
	Items    JobItemTotals       `json:"items_summary"`
	Artisans []JobArtisanSummary `json:"artisan_summary"`
}
