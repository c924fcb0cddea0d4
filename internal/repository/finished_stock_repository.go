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
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
)

// FinishedStockRepository persists the finished-goods ledger, one row per
// product. Mutations lock rows before changing quantities.
type FinishedStockRepository struct {
	db *sqlx.DB
}

// NewFinishedStockRepository constructs the repository.
func NewFinishedStockRepository(db *sqlx.DB) *FinishedStockRepository {
	return &FinishedStockRepository{db: db}
}

func (r *FinishedStockRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LockForUpdate loads the finished stock row for the product under a row
// lock. Missing rows surface ErrStockRecordMissing so callers can decide how
// to report them.
func (r *FinishedStockRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, productID string) (*models.FinishedStockEntry, error) {
	const query = `SELECT id, product_id, quantity, average_cost, last_updated
FROM finished_stock WHERE product_id = $1 FOR UPDATE`
	var entry models.FinishedStockEntry
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, productID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrStockRecordMissing
		}
		return nil, fmt.Errorf("lock finished stock %s: %w", productID, err)
	}
	return &entry, nil
}

// Credit adds finished units at unitCost with weighted-average recosting,
// creating the row on first credit.
func (r *FinishedStockRepository) Credit(ctx context.Context, exec sqlx.ExtContext, productID string, quantity int, unitCost decimal.Decimal) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, fmt.Errorf("credit quantity must be positive, got %d", quantity)
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	entry, err := r.LockForUpdate(ctx, target, productID)
	if err != nil {
		if !appErrors.Is(err, appErrors.ErrStockRecordMissing) {
			return decimal.Zero, err
		}
		const insertQuery = `INSERT INTO finished_stock (id, product_id, quantity, average_cost, last_updated)
VALUES ($1, $2, $3, $4, $5)`
		if _, err := target.ExecContext(ctx, insertQuery, uuid.NewString(), productID, quantity, unitCost, now); err != nil {
			return decimal.Zero, fmt.Errorf("insert finished stock %s: %w", productID, err)
		}
		return unitCost, nil
	}

	newAverage := weightedAverage(entry.Quantity, entry.AverageCost, quantity, unitCost)
	const updateQuery = `UPDATE finished_stock SET quantity = quantity + $1, average_cost = $2, last_updated = $3 WHERE id = $4`
	if _, err := target.ExecContext(ctx, updateQuery, quantity, newAverage, now, entry.ID); err != nil {
		return decimal.Zero, fmt.Errorf("credit finished stock %s: %w", productID, err)
	}
	return newAverage, nil
}

// Debit removes finished units, requiring the caller to hold the row lock
// already via LockForUpdate when composing multi-product operations.
func (r *FinishedStockRepository) Debit(ctx context.Context, exec sqlx.ExtContext, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("debit quantity must be positive, got %d", quantity)
	}
	target := r.exec(exec)

	const updateQuery = `UPDATE finished_stock SET quantity = quantity - $1, last_updated = $2
WHERE product_id = $3 AND quantity >= $1`
	result, err := target.ExecContext(ctx, updateQuery, quantity, time.Now().UTC(), productID)
	if err != nil {
		return fmt.Errorf("debit finished stock %s: %w", productID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finished stock rows affected: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrInsufficientStock
	}
	return nil
}

// Get returns the entry for a product, nil when absent.
func (r *FinishedStockRepository) Get(ctx context.Context, productID string) (*models.FinishedStockEntry, error) {
	const query = `SELECT id, product_id, quantity, average_cost, last_updated
FROM finished_stock WHERE product_id = $1`
	var entry models.FinishedStockEntry
	if err := r.db.GetContext(ctx, &entry, query, productID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get finished stock %s: %w", productID, err)
	}
	return &entry, nil
}

// List returns finished stock entries joined with product identity.
func (r *FinishedStockRepository) List(ctx context.Context, filter models.LedgerFilter) ([]models.FinishedStockEntry, int, error) {
	base := "FROM finished_stock f JOIN products p ON p.id = f.product_id"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.ProductID != "" {
		conditions = append(conditions, fmt.Sprintf("f.product_id = $%d", len(args)+1))
		args = append(args, filter.ProductID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.product_type) LIKE $%d OR LOWER(p.animal_type) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT f.id, f.product_id, f.quantity, f.average_cost, f.last_updated,
        p.product_type, p.animal_type, p.size_category
        %s ORDER BY p.product_type ASC, p.animal_type ASC LIMIT %d OFFSET %d`, base, size, offset)

	var entries []models.FinishedStockEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list finished stock: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count finished stock: %w", err)
	}
	return entries, total, nil
}
