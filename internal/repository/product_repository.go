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

// ProductRepository manages persistence for catalog products and their
// price history.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository constructs a ProductRepository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a product.
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	const query = `INSERT INTO products (id, product_type, animal_type, size_category, base_price, active, created_at, updated_at)
VALUES (:id, :product_type, :animal_type, :size_category, :base_price, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, product); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// Update persists mutable product fields.
func (r *ProductRepository) Update(ctx context.Context, exec sqlx.ExtContext, product *models.Product) error {
	product.UpdatedAt = time.Now().UTC()
	const query = `UPDATE products SET product_type = $1, animal_type = $2, size_category = $3, base_price = $4, active = $5, updated_at = $6 WHERE id = $7`
	result, err := r.exec(exec).ExecContext(ctx, query,
		product.ProductType, product.AnimalType, product.SizeCategory, product.BasePrice, product.Active, product.UpdatedAt, product.ID)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("product rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID fetches one product.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*models.Product, error) {
	const query = `SELECT id, product_type, animal_type, size_category, base_price, active, created_at, updated_at FROM products WHERE id = $1`
	var product models.Product
	if err := r.db.GetContext(ctx, &product, query, id); err != nil {
		return nil, err
	}
	return &product, nil
}

// ExistsByTuple checks the catalog uniqueness tuple, optionally excluding an
// ID during updates.
func (r *ProductRepository) ExistsByTuple(ctx context.Context, productType, animalType, sizeCategory, excludeID string) (bool, error) {
	query := "SELECT 1 FROM products WHERE product_type = $1 AND animal_type = $2 AND size_category = $3"
	args := []interface{}{productType, animalType, sizeCategory}
	if excludeID != "" {
		query += " AND id <> $4"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check product tuple: %w", err)
	}
	return true, nil
}

// List returns products matching the provided filters.
func (r *ProductRepository) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	base := "FROM products WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ProductType != "" {
		conditions = append(conditions, fmt.Sprintf("product_type = $%d", len(args)+1))
		args = append(args, filter.ProductType)
	}
	if filter.AnimalType != "" {
		conditions = append(conditions, fmt.Sprintf("animal_type = $%d", len(args)+1))
		args = append(args, filter.AnimalType)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(product_type) LIKE $%d OR LOWER(animal_type) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"product_type": "product_type",
		"base_price":   "base_price",
		"created_at":   "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "product_type"
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

	query := fmt.Sprintf(`SELECT id, product_type, animal_type, size_category, base_price, active, created_at, updated_at
        %s ORDER BY %s %s, animal_type ASC LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var products []models.Product
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	return products, total, nil
}

// InsertPriceHistory appends one price change record.
func (r *ProductRepository) InsertPriceHistory(ctx context.Context, exec sqlx.ExtContext, history *models.PriceHistory) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.EffectiveDate.IsZero() {
		history.EffectiveDate = time.Now().UTC()
	}
	const query = `INSERT INTO price_history (id, product_id, old_price, new_price, changed_by, reason, effective_date)
VALUES (:id, :product_id, :old_price, :new_price, :changed_by, :reason, :effective_date)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, history); err != nil {
		return fmt.Errorf("insert price history: %w", err)
	}
	return nil
}

// ListPriceHistory returns price changes for a product, newest first.
func (r *ProductRepository) ListPriceHistory(ctx context.Context, productID string) ([]models.PriceHistory, error) {
	const query = `SELECT id, product_id, old_price, new_price, changed_by, reason, effective_date
FROM price_history WHERE product_id = $1 ORDER BY effective_date DESC`
	var history []models.PriceHistory
	if err := r.db.SelectContext(ctx, &history, query, productID); err != nil {
		return nil, fmt.Errorf("list price history: %w", err)
	}
	return history, nil
}
