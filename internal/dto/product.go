package dto

// CreateProductRequest defines the payload for adding a catalog product.
type CreateProductRequest struct {
	ProductType  string `json:"productType" validate:"required"`
	AnimalType   string `json:"animalType" validate:"required"`
	SizeCategory string `json:"sizeCategory" validate:"required"`
	BasePrice    string `json:"basePrice" validate:"required"`
}

// UpdateProductRequest defines mutable product fields. A base price change
// appends a price history row.
type UpdateProductRequest struct {
	ProductType  string  `json:"productType" validate:"required"`
	AnimalType   string  `json:"animalType" validate:"required"`
	SizeCategory string  `json:"sizeCategory" validate:"required"`
	BasePrice    string  `json:"basePrice" validate:"required"`
	Active       *bool   `json:"active,omitempty"`
	PriceReason  *string `json:"priceReason,omitempty"`
}

// UpsertPayRateRequest sets the per-unit rate for a product and stage.
type UpsertPayRateRequest struct {
	ProductID   string `json:"productId" validate:"required"`
	Stage       string `json:"stage" validate:"required"`
	RatePerUnit string `json:"ratePerUnit" validate:"required"`
}
