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

// JobRepository persists jobs, job items and their delivery events. The
// received/accepted counters on job items are maintained by callers from the
// delivery rows; this layer only stores what it is given.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository constructs the repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertJob stores a new job header.
func (r *JobRepository) InsertJob(ctx context.Context, exec sqlx.ExtContext, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobInProgress
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	const query = `INSERT INTO jobs (id, created_by, status, target_stage, notes, created_at, updated_at)
VALUES (:id, :created_by, :status, :target_stage, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, job); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// InsertItem stores a new job item.
func (r *JobRepository) InsertItem(ctx context.Context, exec sqlx.ExtContext, item *models.JobItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	const query = `INSERT INTO job_items (id, job_id, artisan_id, product_id, quantity_ordered, quantity_received,
        quantity_accepted, rejection_reason, source_stage, original_amount, final_payment, payslip_generated, created_at, updated_at)
VALUES (:id, :job_id, :artisan_id, :product_id, :quantity_ordered, :quantity_received,
        :quantity_accepted, :rejection_reason, :source_stage, :original_amount, :final_payment, :payslip_generated, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("insert job item: %w", err)
	}
	return nil
}

// LockItem loads a job item under a row lock.
func (r *JobRepository) LockItem(ctx context.Context, exec sqlx.ExtContext, id string) (*models.JobItem, error) {
	const query = `SELECT id, job_id, artisan_id, product_id, quantity_ordered, quantity_received, quantity_accepted,
        rejection_reason, source_stage, original_amount, final_payment, payslip_generated, created_at, updated_at
FROM job_items WHERE id = $1 FOR UPDATE`
	var item models.JobItem
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemByID loads a single item with artisan and product identity.
func (r *JobRepository) FindItemByID(ctx context.Context, id string) (*models.JobItem, error) {
	const query = `SELECT i.id, i.job_id, i.artisan_id, i.product_id, i.quantity_ordered, i.quantity_received,
        i.quantity_accepted, i.rejection_reason, i.source_stage, i.original_amount, i.final_payment,
        i.payslip_generated, i.created_at, i.updated_at,
        a.name AS artisan_name, p.product_type, p.animal_type, p.size_category
FROM job_items i
JOIN artisans a ON a.id = i.artisan_id
JOIN products p ON p.id = i.product_id
WHERE i.id = $1`
	var item models.JobItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItemProgress persists the recomputed counters and payment for an
// item after a delivery mutation.
func (r *JobRepository) UpdateItemProgress(ctx context.Context, exec sqlx.ExtContext, item *models.JobItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE job_items SET quantity_received = $1, quantity_accepted = $2, rejection_reason = $3,
        final_payment = $4, updated_at = $5 WHERE id = $6`
	result, err := r.exec(exec).ExecContext(ctx, query,
		item.QuantityReceived, item.QuantityAccepted, item.RejectionReason, item.FinalPayment, item.UpdatedAt, item.ID)
	if err != nil {
		return fmt.Errorf("update job item progress: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("job item rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetItemsPayslipGenerated flips the consumed flag for the given items.
func (r *JobRepository) SetItemsPayslipGenerated(ctx context.Context, exec sqlx.ExtContext, itemIDs []string, generated bool) error {
	if len(itemIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE job_items SET payslip_generated = ?, updated_at = ? WHERE id IN (?)`,
		generated, time.Now().UTC(), itemIDs)
	if err != nil {
		return fmt.Errorf("build payslip flag query: %w", err)
	}
	target := r.exec(exec)
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	if _, err := target.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set payslip flag: %w", err)
	}
	return nil
}

// DeleteItem removes a job item. Delivery rows cascade at the database.
func (r *JobRepository) DeleteItem(ctx context.Context, exec sqlx.ExtContext, id string) error {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM job_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("job item rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LockJob loads the job header under a row lock for status recomputation.
func (r *JobRepository) LockJob(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Job, error) {
	const query = `SELECT id, created_by, status, target_stage, notes, created_at, updated_at FROM jobs WHERE id = $1 FOR UPDATE`
	var job models.Job
	if err := sqlx.GetContext(ctx, r.exec(exec), &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// FindJobByID loads the job header without its items.
func (r *JobRepository) FindJobByID(ctx context.Context, id string) (*models.Job, error) {
	const query = `SELECT id, created_by, status, target_stage, notes, created_at, updated_at FROM jobs WHERE id = $1`
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobStatus persists a derived status.
func (r *JobRepository) UpdateJobStatus(ctx context.Context, exec sqlx.ExtContext, jobID string, status models.JobStatus) error {
	const query = `UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.exec(exec).ExecContext(ctx, query, status, time.Now().UTC(), jobID); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// DeleteJob removes a job header; items and deliveries cascade.
func (r *JobRepository) DeleteJob(ctx context.Context, exec sqlx.ExtContext, id string) error {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("job rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ItemTotals aggregates ordered/received sums across a job's items. Used to
// derive job status inside the same transaction that mutated an item.
func (r *JobRepository) ItemTotals(ctx context.Context, exec sqlx.ExtContext, jobID string) (*models.JobItemTotals, error) {
	const query = `SELECT COUNT(*) AS total_items,
        COALESCE(SUM(quantity_ordered), 0) AS total_ordered,
        COALESCE(SUM(quantity_received), 0) AS total_received,
        COALESCE(SUM(quantity_accepted), 0) AS total_accepted,
        COALESCE(SUM(original_amount), 0) AS original_amount,
        COALESCE(SUM(final_payment), 0) AS final_payment
FROM job_items WHERE job_id = $1`
	var totals models.JobItemTotals
	if err := sqlx.GetContext(ctx, r.exec(exec), &totals, query, jobID); err != nil {
		return nil, fmt.Errorf("job item totals: %w", err)
	}
	return &totals, nil
}

// ListItemsByJob returns all items of a job with joined identities.
func (r *JobRepository) ListItemsByJob(ctx context.Context, jobID string) ([]models.JobItem, error) {
	const query = `SELECT i.id, i.job_id, i.artisan_id, i.product_id, i.quantity_ordered, i.quantity_received,
        i.quantity_accepted, i.rejection_reason, i.source_stage, i.original_amount, i.final_payment,
        i.payslip_generated, i.created_at, i.updated_at,
        a.name AS artisan_name, p.product_type, p.animal_type, p.size_category
FROM job_items i
JOIN artisans a ON a.id = i.artisan_id
JOIN products p ON p.id = i.product_id
WHERE i.job_id = $1 ORDER BY i.created_at ASC`
	var items []models.JobItem
	if err := r.db.SelectContext(ctx, &items, query, jobID); err != nil {
		return nil, fmt.Errorf("list job items: %w", err)
	}
	return items, nil
}

// ListItems returns standalone job items matching the filter, most useful
// for the pending-delivery worklist.
func (r *JobRepository) ListItems(ctx context.Context, filter models.JobItemFilter) ([]models.JobItem, int, error) {
	base := `FROM job_items i
JOIN artisans a ON a.id = i.artisan_id
JOIN products p ON p.id = i.product_id`
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.ArtisanID != "" {
		conditions = append(conditions, fmt.Sprintf("i.artisan_id = $%d", len(args)+1))
		args = append(args, filter.ArtisanID)
	}
	if filter.ProductID != "" {
		conditions = append(conditions, fmt.Sprintf("i.product_id = $%d", len(args)+1))
		args = append(args, filter.ProductID)
	}
	if filter.PendingDelivery {
		conditions = append(conditions, "i.quantity_received < i.quantity_ordered")
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

	query := fmt.Sprintf(`SELECT i.id, i.job_id, i.artisan_id, i.product_id, i.quantity_ordered, i.quantity_received,
        i.quantity_accepted, i.rejection_reason, i.source_stage, i.original_amount, i.final_payment,
        i.payslip_generated, i.created_at, i.updated_at,
        a.name AS artisan_name, p.product_type, p.animal_type, p.size_category
        %s ORDER BY i.created_at ASC LIMIT %d OFFSET %d`, base, size, offset)

	var items []models.JobItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list job items: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count job items: %w", err)
	}
	return items, total, nil
}

// ListJobs returns job headers matching the filter.
func (r *JobRepository) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error) {
	base := "FROM jobs j WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("j.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.TargetStage != "" {
		conditions = append(conditions, fmt.Sprintf("j.target_stage = $%d", len(args)+1))
		args = append(args, filter.TargetStage)
	}
	if filter.CreatedFrom != nil {
		conditions = append(conditions, fmt.Sprintf("j.created_at >= $%d", len(args)+1))
		args = append(args, *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		conditions = append(conditions, fmt.Sprintf("j.created_at <= $%d", len(args)+1))
		args = append(args, *filter.CreatedTo)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(`EXISTS (
SELECT 1 FROM job_items si JOIN artisans sa ON sa.id = si.artisan_id
WHERE si.job_id = j.id AND LOWER(sa.name) LIKE $%d)`, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "j.created_at",
		"status":     "j.status",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "j.created_at"
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

	query := fmt.Sprintf(`SELECT j.id, j.created_by, j.status, j.target_stage, j.notes, j.created_at, j.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var jobs []models.Job
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}
	return jobs, total, nil
}

// InsertDelivery stores a delivery event.
func (r *JobRepository) InsertDelivery(ctx context.Context, exec sqlx.ExtContext, delivery *models.Delivery) error {
	if delivery.ID == "" {
		delivery.ID = uuid.NewString()
	}
	if delivery.DeliveryDate.IsZero() {
		delivery.DeliveryDate = time.Now().UTC()
	}
	const query = `INSERT INTO deliveries (id, job_item_id, quantity_received, quantity_accepted, rejection_reason, notes, delivery_date)
VALUES (:id, :job_item_id, :quantity_received, :quantity_accepted, :rejection_reason, :notes, :delivery_date)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, delivery); err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// LockDelivery loads a delivery under a row lock prior to deletion.
func (r *JobRepository) LockDelivery(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Delivery, error) {
	const query = `SELECT id, job_item_id, quantity_received, quantity_accepted, rejection_reason, notes, delivery_date
FROM deliveries WHERE id = $1 FOR UPDATE`
	var delivery models.Delivery
	if err := sqlx.GetContext(ctx, r.exec(exec), &delivery, query, id); err != nil {
		return nil, err
	}
	return &delivery, nil
}

// DeleteDelivery removes a delivery event.
func (r *JobRepository) DeleteDelivery(ctx context.Context, exec sqlx.ExtContext, id string) error {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM deliveries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete delivery: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delivery rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListDeliveries returns delivery events for an item, oldest first.
func (r *JobRepository) ListDeliveries(ctx context.Context, jobItemID string) ([]models.Delivery, error) {
	const query = `SELECT id, job_item_id, quantity_received, quantity_accepted, rejection_reason, notes, delivery_date
FROM deliveries WHERE job_item_id = $1 ORDER BY delivery_date ASC`
	var deliveries []models.Delivery
	if err := r.db.SelectContext(ctx, &deliveries, query, jobItemID); err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return deliveries, nil
}

// DeliverySums recomputes the received/accepted counters for an item from
// its delivery rows within the caller's transaction.
func (r *JobRepository) DeliverySums(ctx context.Context, exec sqlx.ExtContext, jobItemID string) (received, accepted int, err error) {
	const query = `SELECT COALESCE(SUM(quantity_received), 0) AS received, COALESCE(SUM(quantity_accepted), 0) AS accepted
FROM deliveries WHERE job_item_id = $1`
	var sums struct {
		Received int `db:"received"`
		Accepted int `db:"accepted"`
	}
	if err := sqlx.GetContext(ctx, r.exec(exec), &sums, query, jobItemID); err != nil {
		return 0, 0, fmt.Errorf("delivery sums: %w", err)
	}
	return sums.Received, sums.Accepted, nil
}

// Dashboard aggregates job counts and money totals across all jobs.
func (r *JobRepository) Dashboard(ctx context.Context) (*models.JobDashboard, error) {
	const query = `SELECT COUNT(*) AS total_jobs,
        COUNT(*) FILTER (WHERE status = 'IN_PROGRESS') AS in_progress,
        COUNT(*) FILTER (WHERE status = 'PARTIALLY_RECEIVED') AS partially_received,
        COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed,
        COALESCE((SELECT SUM(original_amount) FROM job_items), 0) AS total_original,
        COALESCE((SELECT SUM(final_payment) FROM job_items), 0) AS total_final_payment
FROM jobs`
	var dashboard models.JobDashboard
	if err := r.db.GetContext(ctx, &dashboard, query); err != nil {
		return nil, fmt.Errorf("job dashboard: %w", err)
	}
	return &dashboard, nil
}

// ArtisanSummary aggregates per-artisan quantities and payments for one job.
func (r *JobRepository) ArtisanSummary(ctx context.Context, jobID string) ([]models.JobArtisanSummary, error) {
	const query = `SELECT i.artisan_id, a.name AS artisan_name,
        COUNT(*) AS total_items,
        COALESCE(SUM(i.quantity_ordered), 0) AS total_ordered,
        COALESCE(SUM(i.quantity_received), 0) AS total_received,
        COALESCE(SUM(i.quantity_accepted), 0) AS total_accepted,
        COALESCE(SUM(i.final_payment), 0) AS total_payment
FROM job_items i JOIN artisans a ON a.id = i.artisan_id
WHERE i.job_id = $1
GROUP BY i.artisan_id, a.name
ORDER BY a.name ASC`
	var summaries []models.JobArtisanSummary
	if err := r.db.SelectContext(ctx, &summaries, query, jobID); err != nil {
		return nil, fmt.Errorf("job artisan summary: %w", err)
	}
	return summaries, nil
}

// PayableItems locks and returns the accepted, not yet consumed items for
// an artisan whose parent job was created inside the period. An optional
// stage restricts to jobs targeting that stage.
func (r *JobRepository) PayableItems(ctx context.Context, exec sqlx.ExtContext, artisanID string, stage *models.Stage, periodStart, periodEnd time.Time) ([]models.JobItem, error) {
	query := `SELECT i.id, i.job_id, i.artisan_id, i.product_id, i.quantity_ordered, i.quantity_received,
        i.quantity_accepted, i.rejection_reason, i.source_stage, i.original_amount, i.final_payment,
        i.payslip_generated, i.created_at, i.updated_at
FROM job_items i
JOIN jobs j ON j.id = i.job_id
WHERE i.artisan_id = $1
  AND i.quantity_accepted > 0
  AND i.payslip_generated = FALSE
  AND j.created_at >= $2
  AND j.created_at <= $3`
	args := []interface{}{artisanID, periodStart, periodEnd}
	if stage != nil {
		args = append(args, *stage)
		query += fmt.Sprintf(" AND j.target_stage = $%d", len(args))
	}
	query += " ORDER BY i.created_at ASC FOR UPDATE OF i"

	var items []models.JobItem
	if err := sqlx.SelectContext(ctx, r.exec(exec), &items, query, args...); err != nil {
		return nil, fmt.Errorf("payable job items: %w", err)
	}
	return items, nil
}
