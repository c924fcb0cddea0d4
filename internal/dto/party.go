package dto

// UpsertArtisanRequest defines the payload for creating or updating an
// artisan.
type UpsertArtisanRequest struct {
	Name   string  `json:"name" validate:"required"`
	Phone  *string `json:"phone,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// UpsertCustomerRequest defines the payload for creating or updating a
// customer.
type UpsertCustomerRequest struct {
	Name    string  `json:"name" validate:"required"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}
