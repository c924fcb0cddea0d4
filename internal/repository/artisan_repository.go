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

// ArtisanRepository manages persistence for artisan records and their
// aggregated work statistics.
type ArtisanRepository struct {
	db *sqlx.DB
}

// NewArtisanRepository constructs an ArtisanRepository.
func NewArtisanRepository(db *sqlx.DB) *ArtisanRepository {
	return &ArtisanRepository{db: db}
}

// Create inserts an artisan.
func (r *ArtisanRepository) Create(ctx context.Context, artisan *models.Artisan) error {
	if artisan.ID == "" {
		artisan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	artisan.CreatedAt = now
	artisan.UpdatedAt = now

	const query = `INSERT INTO artisans (id, name, phone, active, created_at, updated_at)
VALUES (:id, :name, :phone, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, artisan); err != nil {
		return fmt.Errorf("insert artisan: %w", err)
	}
	return nil
}

// Update persists mutable artisan fields.
func (r *ArtisanRepository) Update(ctx context.Context, artisan *models.Artisan) error {
	artisan.UpdatedAt = time.Now().UTC()
	const query = `UPDATE artisans SET name = $1, phone = $2, active = $3, updated_at = $4 WHERE id = $5`
	result, err := r.db.ExecContext(ctx, query, artisan.Name, artisan.Phone, artisan.Active, artisan.UpdatedAt, artisan.ID)
	if err != nil {
		return fmt.Errorf("update artisan: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("artisan rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID fetches one artisan.
func (r *ArtisanRepository) FindByID(ctx context.Context, id string) (*models.Artisan, error) {
	const query = `SELECT id, name, phone, active, created_at, updated_at FROM artisans WHERE id = $1`
	var artisan models.Artisan
	if err := r.db.GetContext(ctx, &artisan, query, id); err != nil {
		return nil, err
	}
	return &artisan, nil
}

// List returns artisans matching the filter.
func (r *ArtisanRepository) List(ctx context.Context, filter models.ArtisanFilter) ([]models.Artisan, int, error) {
	base := "FROM artisans WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT id, name, phone, active, created_at, updated_at
        %s ORDER BY name ASC LIMIT %d OFFSET %d`, base, size, offset)

	var artisans []models.Artisan
	if err := r.db.SelectContext(ctx, &artisans, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list artisans: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count artisans: %w", err)
	}
	return artisans, total, nil
}

// Stats aggregates work counts, pending payment and paid earnings for one
// artisan. Pending payment is the final payment of accepted work not yet
// consumed by any payslip; earnings are summed from payslips.
func (r *ArtisanRepository) Stats(ctx context.Context, artisanID string) (*models.ArtisanStats, error) {
	const itemsQuery = `SELECT COUNT(*) AS total_items,
        COALESCE(SUM(final_payment) FILTER (WHERE payslip_generated = FALSE AND quantity_accepted > 0), 0) AS pending_payment,
        MAX(created_at) AS last_job_date
FROM job_items WHERE artisan_id = $1`
	var row struct {
		TotalItems     int             `db:"total_items"`
		PendingPayment decimal.Decimal `db:"pending_payment"`
		LastJobDate    *time.Time      `db:"last_job_date"`
	}
	if err := r.db.GetContext(ctx, &row, itemsQuery, artisanID); err != nil {
		return nil, fmt.Errorf("artisan item stats: %w", err)
	}

	const earningsQuery = `SELECT COALESCE(SUM(total_payment), 0) FROM payslips WHERE artisan_id = $1`
	var earnings decimal.Decimal
	if err := r.db.GetContext(ctx, &earnings, earningsQuery, artisanID); err != nil {
		return nil, fmt.Errorf("artisan earnings: %w", err)
	}

	const stagesQuery = `SELECT DISTINCT j.target_stage FROM job_items i
JOIN jobs j ON j.id = i.job_id WHERE i.artisan_id = $1 ORDER BY j.target_stage`
	var specialties []models.Stage
	if err := r.db.SelectContext(ctx, &specialties, stagesQuery, artisanID); err != nil {
		return nil, fmt.Errorf("artisan specialties: %w", err)
	}

	return &models.ArtisanStats{
		ArtisanID:      artisanID,
		TotalItems:     row.TotalItems,
		PendingPayment: row.PendingPayment,
		TotalEarnings:  earnings,
		Specialties:    specialties,
		LastJobDate:    row.LastJobDate,
	}, nil
}
