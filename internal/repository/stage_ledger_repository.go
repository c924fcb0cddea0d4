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

// StageLedgerRepository persists per-(product, stage) stock records. All
// quantity mutations lock the row first so concurrent credits and debits
// serialise on the database.
type StageLedgerRepository struct {
	db *sqlx.DB
}

// NewStageLedgerRepository constructs the repository.
func NewStageLedgerRepository(db *sqlx.DB) *StageLedgerRepository {
	return &StageLedgerRepository{db: db}
}

func (r *StageLedgerRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// lockEntry loads the ledger row for update, returning nil when no row
// exists yet for the tuple.
func (r *StageLedgerRepository) lockEntry(ctx context.Context, target sqlx.ExtContext, productID string, stage models.Stage) (*models.StageLedgerEntry, error) {
	const query = `SELECT id, product_id, stage, quantity, average_cost, last_updated
FROM stage_ledger WHERE product_id = $1 AND stage = $2 FOR UPDATE`
	var entry models.StageLedgerEntry
	if err := sqlx.GetContext(ctx, target, &entry, query, productID, stage); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("lock stage ledger %s/%s: %w", productID, stage, err)
	}
	return &entry, nil
}

// Credit adds quantity at unitCost, recomputing the weighted average cost.
// A zero-quantity row keeps its stored average only as history; the incoming
// cost still participates in the weighted mean. Returns the new average.
func (r *StageLedgerRepository) Credit(ctx context.Context, exec sqlx.ExtContext, productID string, stage models.Stage, quantity int, unitCost decimal.Decimal) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, fmt.Errorf("credit quantity must be positive, got %d", quantity)
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	entry, err := r.lockEntry(ctx, target, productID, stage)
	if err != nil {
		return decimal.Zero, err
	}

	if entry == nil {
		const insertQuery = `INSERT INTO stage_ledger (id, product_id, stage, quantity, average_cost, last_updated)
VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := target.ExecContext(ctx, insertQuery, uuid.NewString(), productID, stage, quantity, unitCost, now); err != nil {
			return decimal.Zero, fmt.Errorf("insert stage ledger %s/%s: %w", productID, stage, err)
		}
		return unitCost, nil
	}

	newAverage := weightedAverage(entry.Quantity, entry.AverageCost, quantity, unitCost)
	const updateQuery = `UPDATE stage_ledger SET quantity = quantity + $1, average_cost = $2, last_updated = $3 WHERE id = $4`
	if _, err := target.ExecContext(ctx, updateQuery, quantity, newAverage, now, entry.ID); err != nil {
		return decimal.Zero, fmt.Errorf("credit stage ledger %s/%s: %w", productID, stage, err)
	}
	return newAverage, nil
}

// Debit removes quantity. The average cost is left untouched. Fails with
// ErrInsufficientStock when the row is missing or holds fewer units.
func (r *StageLedgerRepository) Debit(ctx context.Context, exec sqlx.ExtContext, productID string, stage models.Stage, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("debit quantity must be positive, got %d", quantity)
	}
	target := r.exec(exec)

	entry, err := r.lockEntry(ctx, target, productID, stage)
	if err != nil {
		return err
	}
	if entry == nil || entry.Quantity < quantity {
		return appErrors.ErrInsufficientStock
	}

	const updateQuery = `UPDATE stage_ledger SET quantity = quantity - $1, last_updated = $2 WHERE id = $3`
	if _, err := target.ExecContext(ctx, updateQuery, quantity, time.Now().UTC(), entry.ID); err != nil {
		return fmt.Errorf("debit stage ledger %s/%s: %w", productID, stage, err)
	}
	return nil
}

// Quantity returns the current units held for the tuple; a missing row is
// zero, not an error.
func (r *StageLedgerRepository) Quantity(ctx context.Context, productID string, stage models.Stage) (int, error) {
	const query = `SELECT quantity FROM stage_ledger WHERE product_id = $1 AND stage = $2`
	var quantity int
	if err := r.db.GetContext(ctx, &quantity, query, productID, stage); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("stage ledger quantity %s/%s: %w", productID, stage, err)
	}
	return quantity, nil
}

// Get returns the ledger entry for the tuple, nil when absent.
func (r *StageLedgerRepository) Get(ctx context.Context, productID string, stage models.Stage) (*models.StageLedgerEntry, error) {
	const query = `SELECT id, product_id, stage, quantity, average_cost, last_updated
FROM stage_ledger WHERE product_id = $1 AND stage = $2`
	var entry models.StageLedgerEntry
	if err := r.db.GetContext(ctx, &entry, query, productID, stage); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get stage ledger %s/%s: %w", productID, stage, err)
	}
	return &entry, nil
}

// List returns ledger entries joined with product identity.
func (r *StageLedgerRepository) List(ctx context.Context, filter models.LedgerFilter) ([]models.StageLedgerEntry, int, error) {
	base := "FROM stage_ledger l JOIN products p ON p.id = l.product_id"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.ProductID != "" {
		conditions = append(conditions, fmt.Sprintf("l.product_id = $%d", len(args)+1))
		args = append(args, filter.ProductID)
	}
	if filter.Stage != "" {
		conditions = append(conditions, fmt.Sprintf("l.stage = $%d", len(args)+1))
		args = append(args, filter.Stage)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.product_type) LIKE $%d OR LOWER(p.animal_type) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"quantity":     "l.quantity",
		"average_cost": "l.average_cost",
		"last_updated": "l.last_updated",
		"product_type": "p.product_type",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "p.product_type"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT l.id, l.product_id, l.stage, l.quantity, l.average_cost, l.last_updated,
        p.product_type, p.animal_type, p.size_category, p.base_price
        %s ORDER BY %s %s, l.stage ASC LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var entries []models.StageLedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list stage ledger: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count stage ledger: %w", err)
	}
	return entries, total, nil
}

// SummaryByStage aggregates quantities per pipeline stage.
func (r *StageLedgerRepository) SummaryByStage(ctx context.Context) ([]models.InventorySummaryRow, error) {
	const query = `SELECT l.stage AS group_key,
        COALESCE(SUM(l.quantity), 0) AS total_quantity,
        COALESCE(AVG(l.average_cost), 0) AS average_cost,
        COUNT(*) AS record_count
        FROM stage_ledger l GROUP BY l.stage ORDER BY l.stage`
	var rows []models.InventorySummaryRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("stage ledger summary by stage: %w", err)
	}
	return rows, nil
}

// SummaryByProductType aggregates quantities per product type across stages.
func (r *StageLedgerRepository) SummaryByProductType(ctx context.Context) ([]models.InventorySummaryRow, error) {
	const query = `SELECT p.product_type AS group_key,
        COALESCE(SUM(l.quantity), 0) AS total_quantity,
        COALESCE(AVG(l.average_cost), 0) AS average_cost,
        COUNT(*) AS record_count
        FROM stage_ledger l JOIN products p ON p.id = l.product_id
        GROUP BY p.product_type ORDER BY p.product_type`
	var rows []models.InventorySummaryRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("stage ledger summary by product type: %w", err)
	}
	return rows, nil
}

// weightedAverage folds a new lot into an existing quantity at a stored
// average. A zero existing quantity yields the incoming cost unchanged.
func weightedAverage(existingQty int, existingAvg decimal.Decimal, addedQty int, addedCost decimal.Decimal) decimal.Decimal {
	totalQty := existingQty + addedQty
	if totalQty == 0 {
		return addedCost
	}
	existingValue := existingAvg.Mul(decimal.NewFromInt(int64(existingQty)))
	addedValue := addedCost.Mul(decimal.NewFromInt(int64(addedQty)))
	return existingValue.Add(addedValue).Div(decimal.NewFromInt(int64(totalQty))).Round(2)
}
