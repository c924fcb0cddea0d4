package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/atelier-api/internal/models"
)

// OrderRepository persists sales orders and their line items.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository constructs the repository.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Insert stores the order header and its items in one call.
func (r *OrderRepository) Insert(ctx context.Context, exec sqlx.ExtContext, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = models.OrderPending
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	target := r.exec(exec)

	const headerQuery = `INSERT INTO orders (id, customer_id, status, total_amount, notes, created_at, updated_at)
VALUES (:id, :customer_id, :status, :total_amount, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, headerQuery, order); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	const itemQuery = `INSERT INTO order_items (id, order_id, product_id, quantity, unit_price)
VALUES (:id, :order_id, :product_id, :quantity, :unit_price)`
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.NewString()
		}
		order.Items[i].OrderID = order.ID
		if _, err := sqlx.NamedExecContext(ctx, target, itemQuery, order.Items[i]); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// LockForUpdate loads the order header under a row lock for status changes.
func (r *OrderRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Order, error) {
	const query = `SELECT id, customer_id, status, total_amount, notes, created_at, updated_at
FROM orders WHERE id = $1 FOR UPDATE`
	var order models.Order
	if err := sqlx.GetContext(ctx, r.exec(exec), &order, query, id); err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByID loads the order header with customer identity.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	const query = `SELECT o.id, o.customer_id, o.status, o.total_amount, o.notes, o.created_at, o.updated_at,
        c.name AS customer_name
FROM orders o JOIN customers c ON c.id = o.customer_id WHERE o.id = $1`
	var order models.Order
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListItems returns the order's line items, with product identity for
// display and for stock gate validation.
func (r *OrderRepository) ListItems(ctx context.Context, exec sqlx.ExtContext, orderID string) ([]models.OrderItem, error) {
	const query = `SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.unit_price,
        p.product_type, p.animal_type, p.size_category
FROM order_items oi JOIN products p ON p.id = oi.product_id
WHERE oi.order_id = $1 ORDER BY p.product_type ASC, oi.product_id ASC`
	var items []models.OrderItem
	if err := sqlx.SelectContext(ctx, r.exec(exec), &items, query, orderID); err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return items, nil
}

// UpdateStatus persists a validated status transition.
func (r *OrderRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, orderID string, status models.OrderStatus) error {
	const query = `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, status, time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("order rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateTotal persists a recomputed order total.
func (r *OrderRepository) UpdateTotal(ctx context.Context, exec sqlx.ExtContext, orderID string, total decimal.Decimal) error {
	const query = `UPDATE orders SET total_amount = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.exec(exec).ExecContext(ctx, query, total, time.Now().UTC(), orderID); err != nil {
		return fmt.Errorf("update order total: %w", err)
	}
	return nil
}

// Delete removes an order header; items cascade.
func (r *OrderRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("order rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns orders matching the filter.
func (r *OrderRepository) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	base := "FROM orders o JOIN customers c ON c.id = o.customer_id"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("o.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.CustomerID != "" {
		conditions = append(conditions, fmt.Sprintf("o.customer_id = $%d", len(args)+1))
		args = append(args, filter.CustomerID)
	}
	if filter.CreatedFrom != nil {
		conditions = append(conditions, fmt.Sprintf("o.created_at >= $%d", len(args)+1))
		args = append(args, *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		conditions = append(conditions, fmt.Sprintf("o.created_at <= $%d", len(args)+1))
		args = append(args, *filter.CreatedTo)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(c.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"created_at":   "o.created_at",
		"total_amount": "o.total_amount",
		"status":       "o.status",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "o.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT o.id, o.customer_id, o.status, o.total_amount, o.notes, o.created_at, o.updated_at,
        c.name AS customer_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	return orders, total, nil
}
