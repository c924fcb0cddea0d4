package dto

// CreateJobItemRequest is one artisan assignment line inside a job payload.
type CreateJobItemRequest struct {
	ArtisanID       string `json:"artisanId" validate:"required"`
	ProductID       string `json:"productId" validate:"required"`
	QuantityOrdered int    `json:"quantityOrdered" validate:"required,min=1"`
}

// CreateJobRequest defines the payload for opening a job.
type CreateJobRequest struct {
	TargetStage string                 `json:"targetStage" validate:"required"`
	Notes       *string                `json:"notes,omitempty"`
	Items       []CreateJobItemRequest `json:"items" validate:"required,min=1,dive"`
}

// AddJobItemRequest appends one item to an existing job.
type AddJobItemRequest struct {
	ArtisanID       string `json:"artisanId" validate:"required"`
	ProductID       string `json:"productId" validate:"required"`
	QuantityOrdered int    `json:"quantityOrdered" validate:"required,min=1"`
}

// RecordDeliveryRequest defines the payload for registering a delivery
// against a job item.
type RecordDeliveryRequest struct {
	QuantityReceived int     `json:"quantityReceived" validate:"required,min=1"`
	QuantityAccepted int     `json:"quantityAccepted" validate:"min=0"`
	RejectionReason  *string `json:"rejectionReason,omitempty"`
	Notes            *string `json:"notes,omitempty"`
}
