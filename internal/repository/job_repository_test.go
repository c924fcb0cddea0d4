package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/atelier-api/internal/models"
)

func newJobRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func TestJobRepositoryInsertJobDefaults(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.Job{CreatedBy: "user-1", TargetStage: models.StageSanding}
	err := repo.InsertJob(context.Background(), nil, job)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobInProgress, job.Status)
}

func TestJobRepositoryDeliverySums(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM deliveries WHERE job_item_id = $1")).
		WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows([]string{"received", "accepted"}).AddRow(7, 5))

	received, accepted, err := repo.DeliverySums(context.Background(), nil, "item-1")
	require.NoError(t, err)
	assert.Equal(t, 7, received)
	assert.Equal(t, 5, accepted)
}

func TestJobRepositoryItemTotals(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	rows := sqlmock.NewRows([]string{"total_items", "total_ordered", "total_received", "total_accepted", "original_amount", "final_payment"}).
		AddRow(2, 20, 12, 10, "200.00", "100.00")
	mock.ExpectQuery(regexp.QuoteMeta("FROM job_items WHERE job_id = $1")).
		WithArgs("job-1").
		WillReturnRows(rows)

	totals, err := repo.ItemTotals(context.Background(), nil, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 20, totals.TotalOrdered)
	assert.Equal(t, 12, totals.TotalReceived)
	assert.Equal(t, models.JobPartiallyReceived, models.DeriveJobStatus(totals.TotalOrdered, totals.TotalReceived))
}

func TestJobRepositoryDeleteDeliveryMissing(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM deliveries WHERE id = $1")).
		WithArgs("del-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteDelivery(context.Background(), nil, "del-404")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestJobRepositoryPayableItemsStageFilter(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
	stage := models.StageSanding

	rows := sqlmock.NewRows([]string{"id", "job_id", "artisan_id", "product_id", "quantity_ordered",
		"quantity_received", "quantity_accepted", "rejection_reason", "source_stage", "original_amount",
		"final_payment", "payslip_generated", "created_at", "updated_at"}).
		AddRow("item-1", "job-1", "art-1", "prod-1", 10, 10, 9, nil, "CARVING", "100.00", "90.00", false, start, start)

	mock.ExpectQuery(regexp.QuoteMeta("AND j.target_stage = $4")).
		WithArgs("art-1", start, end, stage).
		WillReturnRows(rows)

	items, err := repo.PayableItems(context.Background(), nil, "art-1", &stage, start, end)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "item-1", items[0].ID)
	assert.False(t, items[0].PayslipGenerated)
}
