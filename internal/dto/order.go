package dto

// CreateOrderItemRequest is one product line of an order payload.
type CreateOrderItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// CreateOrderRequest defines the payload for placing an order. Orders are
// created PENDING; stock is touched only on status transitions.
type CreateOrderRequest struct {
	CustomerID string                   `json:"customerId" validate:"required"`
	Notes      *string                  `json:"notes,omitempty"`
	Items      []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdateOrderStatusRequest moves an order through its lifecycle.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}
