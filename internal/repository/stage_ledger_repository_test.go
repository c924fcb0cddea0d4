package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
)

func nowRow() time.Time {
	return time.Now().UTC()
}

func newLedgerRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
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

func TestStageLedgerCreditCreatesRow(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewStageLedgerRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM stage_ledger WHERE product_id = $1 AND stage = $2 FOR UPDATE")).
		WithArgs("prod-1", models.StageSanding).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stage_ledger")).
		WithArgs(sqlmock.AnyArg(), "prod-1", models.StageSanding, 10, decimal.RequireFromString("5.00"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	avg, err := repo.Credit(context.Background(), nil, "prod-1", models.StageSanding, 10, decimal.RequireFromString("5.00"))
	require.NoError(t, err)
	assert.True(t, avg.Equal(decimal.RequireFromString("5.00")))
}

func TestStageLedgerCreditWeightedAverage(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewStageLedgerRepository(db)

	// 10 units at 10.00 plus 10 units at 20.00 must average to 15.00.
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("prod-1", models.StageSanding).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "stage", "quantity", "average_cost", "last_updated"}).
			AddRow("led-1", "prod-1", "SANDING", 10, "10.00", nowRow()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE stage_ledger SET quantity = quantity + $1, average_cost = $2, last_updated = $3 WHERE id = $4")).
		WithArgs(10, decimal.RequireFromString("15"), sqlmock.AnyArg(), "led-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	avg, err := repo.Credit(context.Background(), nil, "prod-1", models.StageSanding, 10, decimal.RequireFromString("20.00"))
	require.NoError(t, err)
	assert.True(t, avg.Equal(decimal.RequireFromString("15")), "got %s", avg)
}

func TestStageLedgerDebitInsufficient(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewStageLedgerRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("prod-1", models.StageCarving).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "stage", "quantity", "average_cost", "last_updated"}).
			AddRow("led-1", "prod-1", "CARVING", 3, "10.00", nowRow()))

	err := repo.Debit(context.Background(), nil, "prod-1", models.StageCarving, 5)
	assert.True(t, appErrors.Is(err, appErrors.ErrInsufficientStock))
}

func TestStageLedgerDebitMissingRow(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewStageLedgerRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("prod-1", models.StageCarving).
		WillReturnError(sql.ErrNoRows)

	err := repo.Debit(context.Background(), nil, "prod-1", models.StageCarving, 1)
	assert.True(t, appErrors.Is(err, appErrors.ErrInsufficientStock))
}

func TestStageLedgerQuantityMissingRowIsZero(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewStageLedgerRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT quantity FROM stage_ledger")).
		WithArgs("prod-1", models.StagePainting).
		WillReturnError(sql.ErrNoRows)

	quantity, err := repo.Quantity(context.Background(), "prod-1", models.StagePainting)
	require.NoError(t, err)
	assert.Equal(t, 0, quantity)
}

func TestWeightedAverageZeroExistingQuantity(t *testing.T) {
	avg := weightedAverage(0, decimal.RequireFromString("99.00"), 5, decimal.RequireFromString("12.00"))
	assert.True(t, avg.Equal(decimal.RequireFromString("12")), "stored average must not leak into an empty row, got %s", avg)
}

func TestWeightedAverageRounding(t *testing.T) {
	// 3 units at 10.00 plus 1 unit at 11.00 is 10.25 exactly.
	avg := weightedAverage(3, decimal.RequireFromString("10.00"), 1, decimal.RequireFromString("11.00"))
	assert.True(t, avg.Equal(decimal.RequireFromString("10.25")), "got %s", avg)
}
