package dto

// GeneratePayslipRequest selects the artisan and period to pay. Exactly one
// of ArtisanID or Stage drives the selection scope: ArtisanID pays a single
// artisan, Stage pays every artisan with payable work at that stage.
type GeneratePayslipRequest struct {
	ArtisanID   string `json:"artisanId,omitempty"`
	Stage       string `json:"stage,omitempty"`
	PeriodStart string `json:"periodStart" validate:"required"`
	PeriodEnd   string `json:"periodEnd" validate:"required"`
}

// PayslipDownload carries the signed URL for fetching the rendered document.
type PayslipDownload struct {
	PayslipID string `json:"payslipId"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expiresAt"`
}
