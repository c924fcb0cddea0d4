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

// PayslipRepository persists payslips and the join rows recording exactly
// which job items each payslip consumed.
type PayslipRepository struct {
	db *sqlx.DB
}

// NewPayslipRepository constructs the repository.
func NewPayslipRepository(db *sqlx.DB) *PayslipRepository {
	return &PayslipRepository{db: db}
}

func (r *PayslipRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Insert stores the payslip header and its item rows in one call so the
// caller's transaction covers both.
func (r *PayslipRepository) Insert(ctx context.Context, exec sqlx.ExtContext, payslip *models.Payslip, items []models.PayslipItem) error {
	if payslip.ID == "" {
		payslip.ID = uuid.NewString()
	}
	if payslip.GeneratedDate.IsZero() {
		payslip.GeneratedDate = time.Now().UTC()
	}
	target := r.exec(exec)

	const headerQuery = `INSERT INTO payslips (id, artisan_id, stage, period_start, period_end, total_payment, document_path, generated_date)
VALUES (:id, :artisan_id, :stage, :period_start, :period_end, :total_payment, :document_path, :generated_date)`
	if _, err := sqlx.NamedExecContext(ctx, target, headerQuery, payslip); err != nil {
		return fmt.Errorf("insert payslip: %w", err)
	}

	const itemQuery = `INSERT INTO payslip_items (id, payslip_id, job_item_id, payment)
VALUES (:id, :payslip_id, :job_item_id, :payment)`
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		items[i].PayslipID = payslip.ID
		if _, err := sqlx.NamedExecContext(ctx, target, itemQuery, items[i]); err != nil {
			return fmt.Errorf("insert payslip item: %w", err)
		}
	}
	return nil
}

// LockForUpdate loads a payslip under a row lock prior to deletion.
func (r *PayslipRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Payslip, error) {
	const query = `SELECT id, artisan_id, stage, period_start, period_end, total_payment, document_path, generated_date
FROM payslips WHERE id = $1 FOR UPDATE`
	var payslip models.Payslip
	if err := sqlx.GetContext(ctx, r.exec(exec), &payslip, query, id); err != nil {
		return nil, err
	}
	return &payslip, nil
}

// FindByID loads a payslip with its artisan name.
func (r *PayslipRepository) FindByID(ctx context.Context, id string) (*models.Payslip, error) {
	const query = `SELECT ps.id, ps.artisan_id, ps.stage, ps.period_start, ps.period_end, ps.total_payment,
        ps.document_path, ps.generated_date, a.name AS artisan_name
FROM payslips ps JOIN artisans a ON a.id = ps.artisan_id WHERE ps.id = $1`
	var payslip models.Payslip
	if err := r.db.GetContext(ctx, &payslip, query, id); err != nil {
		return nil, err
	}
	return &payslip, nil
}

// ItemIDs returns the job item identifiers a payslip consumed.
func (r *PayslipRepository) ItemIDs(ctx context.Context, exec sqlx.ExtContext, payslipID string) ([]string, error) {
	const query = `SELECT job_item_id FROM payslip_items WHERE payslip_id = $1`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, payslipID); err != nil {
		return nil, fmt.Errorf("payslip item ids: %w", err)
	}
	return ids, nil
}

// ListItems returns the frozen payment lines of a payslip.
func (r *PayslipRepository) ListItems(ctx context.Context, payslipID string) ([]models.PayslipItem, error) {
	const query = `SELECT id, payslip_id, job_item_id, payment FROM payslip_items WHERE payslip_id = $1`
	var items []models.PayslipItem
	if err := r.db.SelectContext(ctx, &items, query, payslipID); err != nil {
		return nil, fmt.Errorf("list payslip items: %w", err)
	}
	return items, nil
}

// Delete removes a payslip; its item rows cascade.
func (r *PayslipRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM payslips WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete payslip: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("payslip rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns payslips matching the filter.
func (r *PayslipRepository) List(ctx context.Context, filter models.PayslipFilter) ([]models.Payslip, int, error) {
	base := "FROM payslips ps JOIN artisans a ON a.id = ps.artisan_id"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.ArtisanID != "" {
		conditions = append(conditions, fmt.Sprintf("ps.artisan_id = $%d", len(args)+1))
		args = append(args, filter.ArtisanID)
	}
	if filter.Stage != "" {
		conditions = append(conditions, fmt.Sprintf("ps.stage = $%d", len(args)+1))
		args = append(args, filter.Stage)
	}
	if filter.PeriodStart != nil {
		conditions = append(conditions, fmt.Sprintf("ps.period_end >= $%d", len(args)+1))
		args = append(args, *filter.PeriodStart)
	}
	if filter.PeriodEnd != nil {
		conditions = append(conditions, fmt.Sprintf("ps.period_start <= $%d", len(args)+1))
		args = append(args, *filter.PeriodEnd)
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"generated_date": "ps.generated_date",
		"total_payment":  "ps.total_payment",
		"period_start":   "ps.period_start",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "ps.generated_date"
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

	query := fmt.Sprintf(`SELECT ps.id, ps.artisan_id, ps.stage, ps.period_start, ps.period_end, ps.total_payment,
        ps.document_path, ps.generated_date, a.name AS artisan_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var payslips []models.Payslip
	if err := r.db.SelectContext(ctx, &payslips, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payslips: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count payslips: %w", err)
	}
	return payslips, total, nil
}
