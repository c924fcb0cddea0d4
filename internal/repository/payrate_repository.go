package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/atelier-api/internal/models"
)

// PayRateRepository persists per-(product, stage) artisan pay rates.
type PayRateRepository struct {
	db *sqlx.DB
}

// NewPayRateRepository constructs the repository.
func NewPayRateRepository(db *sqlx.DB) *PayRateRepository {
	return &PayRateRepository{db: db}
}

// FindByProductStage resolves the rate for a tuple, nil when none exists.
func (r *PayRateRepository) FindByProductStage(ctx context.Context, productID string, stage models.Stage) (*models.PayRate, error) {
	const query = `SELECT id, product_id, stage, rate_per_unit, created_at, updated_at
FROM pay_rates WHERE product_id = $1 AND stage = $2`
	var rate models.PayRate
	if err := r.db.GetContext(ctx, &rate, query, productID, stage); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find pay rate %s/%s: %w", productID, stage, err)
	}
	return &rate, nil
}

// Upsert creates or replaces the rate for the tuple.
func (r *PayRateRepository) Upsert(ctx context.Context, rate *models.PayRate) error {
	if rate.ID == "" {
		rate.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rate.CreatedAt.IsZero() {
		rate.CreatedAt = now
	}
	rate.UpdatedAt = now

	const query = `INSERT INTO pay_rates (id, product_id, stage, rate_per_unit, created_at, updated_at)
VALUES (:id, :product_id, :stage, :rate_per_unit, :created_at, :updated_at)
ON CONFLICT (product_id, stage) DO UPDATE SET rate_per_unit = EXCLUDED.rate_per_unit, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, rate); err != nil {
		return fmt.Errorf("upsert pay rate: %w", err)
	}
	return nil
}

// Delete removes a rate by identifier.
func (r *PayRateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pay_rates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pay rate: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("pay rate rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns rates joined with product identity.
func (r *PayRateRepository) List(ctx context.Context, filter models.PayRateFilter) ([]models.PayRate, int, error) {
	base := "FROM pay_rates pr JOIN products p ON p.id = pr.product_id"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.ProductID != "" {
		conditions = append(conditions, fmt.Sprintf("pr.product_id = $%d", len(args)+1))
		args = append(args, filter.ProductID)
	}
	if filter.Stage != "" {
		conditions = append(conditions, fmt.Sprintf("pr.stage = $%d", len(args)+1))
		args = append(args, filter.Stage)
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

	query := fmt.Sprintf(`SELECT pr.id, pr.product_id, pr.stage, pr.rate_per_unit, pr.created_at, pr.updated_at,
        p.product_type, p.animal_type, p.size_category
        %s ORDER BY p.product_type ASC, pr.stage ASC LIMIT %d OFFSET %d`, base, size, offset)

	var rates []models.PayRate
	if err := r.db.SelectContext(ctx, &rates, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list pay rates: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count pay rates: %w", err)
	}
	return rates, total, nil
}
