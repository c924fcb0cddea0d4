package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus drives the finished-goods stock gate. PENDING holds no stock;
// PROCESSING, SHIPPED and DELIVERED hold deducted stock; CANCELLED releases
// whatever was deducted.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// Valid reports whether the status is a known value.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// HoldsStock reports whether finished stock has been deducted for an order
// in this status.
func (s OrderStatus) HoldsStock() bool {
	switch s {
	case OrderProcessing, OrderShipped, OrderDelivered:
		return true
	}
	return false
}

// Order is a customer sales order against finished-goods stock.
type Order struct {
	ID          string          `db:"id" json:"id"`
	CustomerID  string          `db:"customer_id" json:"customer_id"`
	Status      OrderStatus     `db:"status" json:"status"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
	Notes       *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`

	CustomerName string      `db:"customer_name" json:"customer_name,omitempty"`
	Items        []OrderItem `json:"items,omitempty"`
}

// OrderItem is one product line; unit_price is frozen from the product's
// base price at item creation.
type OrderItem struct {
	ID        string          `db:"id" json:"id"`
	OrderID   string          `db:"order_id" json:"order_id"`
	ProductID string          `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`

	ProductType  string `db:"product_type" json:"product_type,omitempty"`
	AnimalType   string `db:"animal_type" json:"animal_type,omitempty"`
	SizeCategory string `db:"size_category" json:"size_category,omitempty"`
}

// Subtotal is quantity × unit price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderFilter captures filtering criteria for listing orders.
type OrderFilter struct {
	Status      OrderStatus
	CustomerID  string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
