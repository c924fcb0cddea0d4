package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
)

// txProviderMock backs service transactions with sqlmock so Begin, Commit
// and Rollback calls can be asserted while repository stubs ignore the exec.
type txProviderMock struct {
	db *sqlx.DB
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

type noopTxProvider struct{}

func (noopTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
}

type ledgerMovement struct {
	ProductID string
	Stage     models.Stage
	Quantity  int
	UnitCost  decimal.Decimal
}

func stageKey(productID string, stage models.Stage) string {
	return productID + "/" + string(stage)
}

type stageLedgerStub struct {
	available map[string]int
	averages  map[string]decimal.Decimal
	credits   []ledgerMovement
	debits    []ledgerMovement
}

func newStageLedgerStub() *stageLedgerStub {
	return &stageLedgerStub{
		available: map[string]int{},
		averages:  map[string]decimal.Decimal{},
	}
}

func (l *stageLedgerStub) Credit(ctx context.Context, exec sqlx.ExtContext, productID string, stage models.Stage, quantity int, unitCost decimal.Decimal) (decimal.Decimal, error) {
	l.available[stageKey(productID, stage)] += quantity
	l.credits = append(l.credits, ledgerMovement{ProductID: productID, Stage: stage, Quantity: quantity, UnitCost: unitCost})
	return unitCost, nil
}

func (l *stageLedgerStub) Debit(ctx context.Context, exec sqlx.ExtContext, productID string, stage models.Stage, quantity int) error {
	key := stageKey(productID, stage)
	if l.available[key] < quantity {
		return appErrors.ErrInsufficientStock
	}
	l.available[key] -= quantity
	l.debits = append(l.debits, ledgerMovement{ProductID: productID, Stage: stage, Quantity: quantity})
	return nil
}

func (l *stageLedgerStub) Get(ctx context.Context, productID string, stage models.Stage) (*models.StageLedgerEntry, error) {
	key := stageKey(productID, stage)
	avg, ok := l.averages[key]
	if !ok {
		return nil, nil
	}
	return &models.StageLedgerEntry{
		ProductID:   productID,
		Stage:       stage,
		Quantity:    l.available[key],
		AverageCost: avg,
	}, nil
}

type finishedStockStub struct {
	quantities map[string]int
	averages   map[string]decimal.Decimal
	credits    []ledgerMovement
	debits     []ledgerMovement
}

func newFinishedStockStub() *finishedStockStub {
	return &finishedStockStub{
		quantities: map[string]int{},
		averages:   map[string]decimal.Decimal{},
	}
}

func (f *finishedStockStub) Credit(ctx context.Context, exec sqlx.ExtContext, productID string, quantity int, unitCost decimal.Decimal) (decimal.Decimal, error) {
	f.quantities[productID] += quantity
	f.credits = append(f.credits, ledgerMovement{ProductID: productID, Quantity: quantity, UnitCost: unitCost})
	return unitCost, nil
}

func (f *finishedStockStub) Debit(ctx context.Context, exec sqlx.ExtContext, productID string, quantity int) error {
	if f.quantities[productID] < quantity {
		return appErrors.ErrInsufficientStock
	}
	f.quantities[productID] -= quantity
	f.debits = append(f.debits, ledgerMovement{ProductID: productID, Quantity: quantity})
	return nil
}

type productReaderStub struct {
	products map[string]*models.Product
}

func (p *productReaderStub) FindByID(ctx context.Context, id string) (*models.Product, error) {
	product, ok := p.products[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return product, nil
}

type artisanReaderStub struct {
	artisans map[string]*models.Artisan
}

func (a *artisanReaderStub) FindByID(ctx context.Context, id string) (*models.Artisan, error) {
	artisan, ok := a.artisans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return artisan, nil
}

type payRateStub struct {
	rates map[string]decimal.Decimal
}

func (p *payRateStub) FindByProductStage(ctx context.Context, productID string, stage models.Stage) (*models.PayRate, error) {
	rate, ok := p.rates[stageKey(productID, stage)]
	if !ok {
		return nil, nil
	}
	return &models.PayRate{ProductID: productID, Stage: stage, RatePerUnit: rate}, nil
}

type cacheInvalidatorStub struct {
	invalidated []string
}

func (c *cacheInvalidatorStub) InvalidateQuantities(ctx context.Context, productID string) {
	c.invalidated = append(c.invalidated, productID)
}

type jobStoreStub struct {
	job   *models.Job
	item  *models.JobItem
	deliv *models.Delivery

	sumReceived int
	sumAccepted int
	totals      models.JobItemTotals

	insertedJobs      []*models.Job
	insertedItems     []*models.JobItem
	insertedDelivs    []*models.Delivery
	updatedItems      []models.JobItem
	statusUpdates     []models.JobStatus
	deletedItems      []string
	deletedDeliveries []string
	payslipFlags      map[string]bool
}

func (s *jobStoreStub) InsertJob(ctx context.Context, exec sqlx.ExtContext, job *models.Job) error {
	job.ID = fmt.Sprintf("job-%d", len(s.insertedJobs)+1)
	job.Status = models.JobInProgress
	s.insertedJobs = append(s.insertedJobs, job)
	return nil
}

func (s *jobStoreStub) InsertItem(ctx context.Context, exec sqlx.ExtContext, item *models.JobItem) error {
	item.ID = fmt.Sprintf("item-%d", len(s.insertedItems)+1)
	s.insertedItems = append(s.insertedItems, item)
	return nil
}

func (s *jobStoreStub) LockItem(ctx context.Context, exec sqlx.ExtContext, id string) (*models.JobItem, error) {
	if s.item == nil || s.item.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *s.item
	return &copied, nil
}

func (s *jobStoreStub) FindItemByID(ctx context.Context, id string) (*models.JobItem, error) {
	return s.LockItem(ctx, nil, id)
}

func (s *jobStoreStub) UpdateItemProgress(ctx context.Context, exec sqlx.ExtContext, item *models.JobItem) error {
	s.updatedItems = append(s.updatedItems, *item)
	return nil
}

func (s *jobStoreStub) SetItemsPayslipGenerated(ctx context.Context, exec sqlx.ExtContext, itemIDs []string, generated bool) error {
	if s.payslipFlags == nil {
		s.payslipFlags = map[string]bool{}
	}
	for _, id := range itemIDs {
		s.payslipFlags[id] = generated
		if s.item != nil && s.item.ID == id {
			s.item.PayslipGenerated = generated
		}
	}
	return nil
}

func (s *jobStoreStub) DeleteItem(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.deletedItems = append(s.deletedItems, id)
	return nil
}

func (s *jobStoreStub) LockJob(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Job, error) {
	if s.job == nil || s.job.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *s.job
	return &copied, nil
}

func (s *jobStoreStub) FindJobByID(ctx context.Context, id string) (*models.Job, error) {
	return s.LockJob(ctx, nil, id)
}

func (s *jobStoreStub) UpdateJobStatus(ctx context.Context, exec sqlx.ExtContext, jobID string, status models.JobStatus) error {
	s.statusUpdates = append(s.statusUpdates, status)
	return nil
}

func (s *jobStoreStub) DeleteJob(ctx context.Context, exec sqlx.ExtContext, id string) error {
	return nil
}

func (s *jobStoreStub) ItemTotals(ctx context.Context, exec sqlx.ExtContext, jobID string) (*models.JobItemTotals, error) {
	totals := s.totals
	return &totals, nil
}

func (s *jobStoreStub) ListItemsByJob(ctx context.Context, jobID string) ([]models.JobItem, error) {
	return nil, nil
}

func (s *jobStoreStub) ListItems(ctx context.Context, filter models.JobItemFilter) ([]models.JobItem, int, error) {
	return nil, 0, nil
}

func (s *jobStoreStub) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error) {
	return nil, 0, nil
}

func (s *jobStoreStub) InsertDelivery(ctx context.Context, exec sqlx.ExtContext, delivery *models.Delivery) error {
	delivery.ID = fmt.Sprintf("delivery-%d", len(s.insertedDelivs)+1)
	s.insertedDelivs = append(s.insertedDelivs, delivery)
	return nil
}

func (s *jobStoreStub) LockDelivery(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Delivery, error) {
	if s.deliv == nil || s.deliv.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *s.deliv
	return &copied, nil
}

func (s *jobStoreStub) DeleteDelivery(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.deletedDeliveries = append(s.deletedDeliveries, id)
	return nil
}

func (s *jobStoreStub) ListDeliveries(ctx context.Context, jobItemID string) ([]models.Delivery, error) {
	return nil, nil
}

func (s *jobStoreStub) DeliverySums(ctx context.Context, exec sqlx.ExtContext, jobItemID string) (int, int, error) {
	return s.sumReceived, s.sumAccepted, nil
}

func (s *jobStoreStub) Dashboard(ctx context.Context) (*models.JobDashboard, error) {
	return &models.JobDashboard{}, nil
}

func (s *jobStoreStub) ArtisanSummary(ctx context.Context, jobID string) ([]models.JobArtisanSummary, error) {
	return nil, nil
}

type jobFixture struct {
	service  *JobService
	store    *jobStoreStub
	ledger   *stageLedgerStub
	finished *finishedStockStub
	cache    *cacheInvalidatorStub
	mock     sqlmock.Sqlmock
}

func newJobFixture(t *testing.T, rates map[string]decimal.Decimal) *jobFixture {
	store := &jobStoreStub{}
	ledger := newStageLedgerStub()
	finished := newFinishedStockStub()
	cache := &cacheInvalidatorStub{}
	products := &productReaderStub{products: map[string]*models.Product{
		"prod-1": {ID: "prod-1", ProductType: "FIGURINE", AnimalType: "OWL", SizeCategory: "SMALL", BasePrice: decimal.NewFromInt(10)},
	}}
	artisans := &artisanReaderStub{artisans: map[string]*models.Artisan{
		"art-1": {ID: "art-1", Name: "Wira", Active: true},
	}}
	tx, mock := newTxProviderMock(t)

	service := NewJobService(store, ledger, finished, products, artisans, &payRateStub{rates: rates}, cache, tx, nil, nil)
	return &jobFixture{service: service, store: store, ledger: ledger, finished: finished, cache: cache, mock: mock}
}

func strPtr(v string) *string { return &v }

func TestJobServiceCreateFinishedTargetDrawsFromFinishing(t *testing.T) {
	f := newJobFixture(t, nil)
	f.ledger.available[stageKey("prod-1", models.StageFinishing)] = 8
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	job, err := f.service.Create(context.Background(), dto.CreateJobRequest{
		TargetStage: string(models.StageFinished),
		Items:       []dto.CreateJobItemRequest{{ArtisanID: "art-1", ProductID: "prod-1", QuantityOrdered: 5}},
	}, "user-1")

	require.NoError(t, err)
	require.Len(t, job.Items, 1)
	require.NotNil(t, job.Items[0].SourceStage)
	assert.Equal(t, models.StageFinishing, *job.Items[0].SourceStage)
	assert.Equal(t, 3, f.ledger.available[stageKey("prod-1", models.StageFinishing)])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestJobServiceCreateReservesPredecessorStock(t *testing.T) {
	f := newJobFixture(t, map[string]decimal.Decimal{
		stageKey("prod-1", models.StageSanding): decimal.NewFromInt(5),
	})
	f.ledger.available[stageKey("prod-1", models.StageCarving)] = 2
	f.ledger.available[stageKey("prod-1", models.StageCutting)] = 20
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	job, err := f.service.Create(context.Background(), dto.CreateJobRequest{
		TargetStage: string(models.StageSanding),
		Items:       []dto.CreateJobItemRequest{{ArtisanID: "art-1", ProductID: "prod-1", QuantityOrdered: 10}},
	}, "user-1")

	require.NoError(t, err)
	require.Len(t, job.Items, 1)
	require.NotNil(t, job.Items[0].SourceStage)
	assert.Equal(t, models.StageCutting, *job.Items[0].SourceStage)
	assert.Equal(t, 10, f.ledger.available[stageKey("prod-1", models.StageCutting)])
	assert.Equal(t, 2, f.ledger.available[stageKey("prod-1", models.StageCarving)])
	assert.True(t, job.Items[0].OriginalAmount.Equal(decimal.NewFromInt(100)), "original amount freezes at base price times ordered")
	assert.True(t, job.Items[0].FinalPayment.IsZero())
	assert.Equal(t, []string{"prod-1"}, f.cache.invalidated, "reservation drops cached quantities")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestJobServiceCreateNoAvailableStock(t *testing.T) {
	f := newJobFixture(t, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.Create(context.Background(), dto.CreateJobRequest{
		TargetStage: string(models.StagePainting),
		Items:       []dto.CreateJobItemRequest{{ArtisanID: "art-1", ProductID: "prod-1", QuantityOrdered: 3}},
	}, "user-1")

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNoAvailableStock))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestJobServiceCreateFreezesOriginalAmountWithoutRate(t *testing.T) {
	f := newJobFixture(t, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	job, err := f.service.Create(context.Background(), dto.CreateJobRequest{
		TargetStage: string(models.StageCarving),
		Items:       []dto.CreateJobItemRequest{{ArtisanID: "art-1", ProductID: "prod-1", QuantityOrdered: 10}},
	}, "user-1")

	require.NoError(t, err)
	assert.Nil(t, job.Items[0].SourceStage, "entry stages reserve nothing")
	assert.True(t, job.Items[0].OriginalAmount.Equal(decimal.NewFromInt(100)), "an unconfigured rate must not zero the original amount")
	assert.True(t, job.Items[0].FinalPayment.IsZero())
}

func TestJobServiceRecordDeliveryRejectionReasonOptional(t *testing.T) {
	f := newJobFixture(t, nil)
	f.store.job = &models.Job{ID: "job-1", TargetStage: models.StageSanding, Status: models.JobInProgress}
	f.store.item = &models.JobItem{ID: "item-1", JobID: "job-1", ProductID: "prod-1", QuantityOrdered: 10}
	f.store.sumReceived = 5
	f.store.sumAccepted = 3
	f.store.totals = models.JobItemTotals{TotalOrdered: 10, TotalReceived: 5}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	delivery, err := f.service.RecordDelivery(context.Background(), "item-1", dto.RecordDeliveryRequest{
		QuantityReceived: 5,
		QuantityAccepted: 3,
	})

	require.NoError(t, err, "rejected units do not require a reason")
	assert.Nil(t, delivery.RejectionReason)
	require.Len(t, f.store.updatedItems, 1)
	assert.Nil(t, f.store.updatedItems[0].RejectionReason)
	require.Len(t, f.ledger.credits, 1)
	assert.Equal(t, 3, f.ledger.credits[0].Quantity)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestJobServiceRecordDeliveryUnknownRejectionReason(t *testing.T) {
	f := newJobFixture(t, nil)

	_, err := f.service.RecordDelivery(context.Background(), "item-1", dto.RecordDeliveryRequest{
		QuantityReceived: 5,
		QuantityAccepted: 3,
		RejectionReason:  strPtr("SOILED"),
	})

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestJobServiceRecordDeliveryRejectsOverDelivery(t *testing.T) {
	f := newJobFixture(t, nil)
	f.store.item = &models.JobItem{ID: "item-1", JobID: "job-1", ProductID: "prod-1", QuantityOrdered: 10, QuantityReceived: 8}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.RecordDelivery(context.Background(), "item-1", dto.RecordDeliveryRequest{
		QuantityReceived: 5,
		QuantityAccepted: 5,
	})

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrOverDelivery))
	assert.Empty(t, f.store.insertedDelivs)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestJobServiceRecordDeliveryCreditsFinishedStock(t *testing.T) {
	f := newJobFixture(t, map[string]decimal.Decimal{
		stageKey("prod-1", models.StageFinished): decimal.NewFromInt(3),
	})
	f.store.job = &models.Job{ID: "job-1", TargetStage: models.StageFinished, Status: models.JobInProgress}
	f.store.item = &models.JobItem{ID: "item-1", JobID: "job-1", ProductID: "prod-1", QuantityOrdered: 10}
	f.store.sumReceived = 5
	f.store.sumAccepted = 4
	f.store.totals = models.JobItemTotals{TotalOrdered: 10, TotalReceived: 5}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	delivery, err := f.service.RecordDelivery(context.Background(), "item-1", dto.RecordDeliveryRequest{
		QuantityReceived: 5,
		QuantityAccepted: 4,
		RejectionReason:  strPtr(string(models.RejectionQuality)),
	})

	require.NoError(t, err)
	assert.Equal(t, 4, delivery.QuantityAccepted)

	require.Len(t, f.finished.credits, 1)
	assert.Equal(t, 4, f.finished.credits[0].Quantity)
	assert.True(t, f.finished.credits[0].UnitCost.Equal(decimal.NewFromInt(10)), "accepted units enter at the product base price")
	assert.Empty(t, f.ledger.credits)

	require.Len(t, f.store.updatedItems, 1)
	updated := f.store.updatedItems[0]
	assert.Equal(t, 5, updated.QuantityReceived)
	assert.Equal(t, 4, updated.QuantityAccepted)
	assert.True(t, updated.FinalPayment.Equal(decimal.NewFromInt(12)))

	require.Len(t, f.store.statusUpdates, 1)
	assert.Equal(t, models.JobPartiallyReceived, f.store.statusUpdates[0])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestJobServiceRecordDeliveryFinishingCreditsStageLedger(t *testing.T) {
	f := newJobFixture(t, nil)
	f.store.job = &models.Job{ID: "job-1", TargetStage: models.StageFinishing, Status: models.JobInProgress}
	f.store.item = &models.JobItem{ID: "item-1", JobID: "job-1", ProductID: "prod-1", QuantityOrdered: 4}
	f.store.sumReceived = 4
	f.store.sumAccepted = 4
	f.store.totals = models.JobItemTotals{TotalOrdered: 4, TotalReceived: 4}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.service.RecordDelivery(context.Background(), "item-1", dto.RecordDeliveryRequest{
		QuantityReceived: 4,
		QuantityAccepted: 4,
	})

	require.NoError(t, err)
	require.Len(t, f.ledger.credits, 1, "finishing output stays in the finishing stage row")
	assert.Equal(t, models.StageFinishing, f.ledger.credits[0].Stage)
	assert.Empty(t, f.finished.credits)
}

func TestJobServiceRecordDeliveryCreditsStageLedger(t *testing.T) {
	f := newJobFixture(t, nil)
	f.store.job = &models.Job{ID: "job-1", TargetStage: models.StageSanding, Status: models.JobInProgress}
	f.store.item = &models.JobItem{ID: "item-1", JobID: "job-1", ProductID: "prod-1", QuantityOrdered: 6}
	f.store.sumReceived = 6
	f.store.sumAccepted = 6
	f.store.totals = models.JobItemTotals{TotalOrdered: 6, TotalReceived: 6}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.service.RecordDelivery(context.Background(), "item-1", dto.RecordDeliveryRequest{
		QuantityReceived: 6,
		QuantityAccepted: 6,
	})

	require.NoError(t, err)
	require.Len(t, f.ledger.credits, 1)
	assert.Equal(t, models.StageSanding, f.ledger.credits[0].Stage)
	assert.Empty(t, f.finished.credits)
	require.Len(t, f.store.statusUpdates, 1)
	assert.Equal(t, models.JobCompleted, f.store.statusUpdates[0])
	assert.Equal(t, []string{"prod-1"}, f.cache.invalidated, "the stage credit drops cached quantities")
}

func TestJobServiceDeleteDeliveryBlockedByPayslip(t *testing.T) {
	f := newJobFixture(t, nil)
	f.store.deliv = &models.Delivery{ID: "delivery-1", JobItemID: "item-1", QuantityReceived: 5, QuantityAccepted: 5}
	f.store.item = &models.JobItem{ID: "item-1", JobID: "job-1", ProductID: "prod-1", PayslipGenerated: true}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.service.DeleteDelivery(context.Background(), "delivery-1")

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPayslipConsumed))
	assert.Empty(t, f.store.deletedDeliveries)
}

func TestJobServiceDeleteDeliveryFailsWhenStockConsumed(t *testing.T) {
	f := newJobFixture(t, nil)
	f.store.job = &models.Job{ID: "job-1", TargetStage: models.StageSanding}
	f.store.deliv = &models.Delivery{ID: "delivery-1", JobItemID: "item-1", QuantityReceived: 5, QuantityAccepted: 5}
	f.store.item = &models.JobItem{ID: "item-1", JobID: "job-1", ProductID: "prod-1", QuantityOrdered: 10, QuantityReceived: 5}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.service.DeleteDelivery(context.Background(), "delivery-1")

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInsufficientStock))
	assert.Empty(t, f.store.deletedDeliveries)
}

func TestJobServiceDeleteDeliveryReversesCredit(t *testing.T) {
	f := newJobFixture(t, nil)
	f.store.job = &models.Job{ID: "job-1", TargetStage: models.StageSanding}
	f.store.deliv = &models.Delivery{ID: "delivery-1", JobItemID: "item-1", QuantityReceived: 5, QuantityAccepted: 5}
	f.store.item = &models.JobItem{ID: "item-1", JobID: "job-1", ProductID: "prod-1", QuantityOrdered: 10, QuantityReceived: 5}
	f.ledger.available[stageKey("prod-1", models.StageSanding)] = 5
	f.store.totals = models.JobItemTotals{TotalOrdered: 10, TotalReceived: 0}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.service.DeleteDelivery(context.Background(), "delivery-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"delivery-1"}, f.store.deletedDeliveries)
	assert.Equal(t, 0, f.ledger.available[stageKey("prod-1", models.StageSanding)])
	require.Len(t, f.store.statusUpdates, 1)
	assert.Equal(t, models.JobInProgress, f.store.statusUpdates[0])
	assert.Equal(t, []string{"prod-1"}, f.cache.invalidated)
}

func TestJobServiceDeleteItemWithDeliveriesConflicts(t *testing.T) {
	f := newJobFixture(t, nil)
	f.store.item = &models.JobItem{ID: "item-1", JobID: "job-1", ProductID: "prod-1", QuantityOrdered: 10, QuantityReceived: 2}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.service.DeleteItem(context.Background(), "item-1")

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Empty(t, f.store.deletedItems)
}

func TestJobServiceDeleteItemRestoresReservation(t *testing.T) {
	f := newJobFixture(t, nil)
	source := models.StageCarving
	f.store.item = &models.JobItem{ID: "item-1", JobID: "job-1", ProductID: "prod-1", QuantityOrdered: 10, SourceStage: &source}
	f.store.job = &models.Job{ID: "job-1", TargetStage: models.StageSanding}
	f.ledger.averages[stageKey("prod-1", models.StageCarving)] = decimal.RequireFromString("12.50")
	f.store.totals = models.JobItemTotals{}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.service.DeleteItem(context.Background(), "item-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"item-1"}, f.store.deletedItems)
	require.Len(t, f.ledger.credits, 1)
	assert.Equal(t, models.StageCarving, f.ledger.credits[0].Stage)
	assert.Equal(t, 10, f.ledger.credits[0].Quantity)
	assert.True(t, f.ledger.credits[0].UnitCost.Equal(decimal.RequireFromString("12.50")))
}

func TestJobServiceDeleteItemFallsBackToBasePrice(t *testing.T) {
	f := newJobFixture(t, nil)
	source := models.StageCutting
	f.store.item = &models.JobItem{ID: "item-1", JobID: "job-1", ProductID: "prod-1", QuantityOrdered: 3, SourceStage: &source}
	f.store.job = &models.Job{ID: "job-1", TargetStage: models.StageSanding}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.service.DeleteItem(context.Background(), "item-1")

	require.NoError(t, err)
	require.Len(t, f.ledger.credits, 1)
	assert.True(t, f.ledger.credits[0].UnitCost.Equal(decimal.NewFromInt(10)), "empty ledger restores at the product base price")
}

func TestJobServiceAddItemUnknownArtisan(t *testing.T) {
	f := newJobFixture(t, nil)

	_, err := f.service.AddItem(context.Background(), "job-1", dto.AddJobItemRequest{
		ArtisanID:       "ghost",
		ProductID:       "prod-1",
		QuantityOrdered: 2,
	})

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, f.store.insertedItems)
}

func TestJobServiceAddItemUnknownProduct(t *testing.T) {
	f := newJobFixture(t, nil)

	_, err := f.service.AddItem(context.Background(), "job-1", dto.AddJobItemRequest{
		ArtisanID:       "art-1",
		ProductID:       "ghost",
		QuantityOrdered: 2,
	})

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, f.store.insertedItems)
}

func TestJobServiceResetItemPayslip(t *testing.T) {
	f := newJobFixture(t, nil)
	f.store.item = &models.JobItem{ID: "item-1", JobID: "job-1", ProductID: "prod-1", PayslipGenerated: true}

	err := f.service.ResetItemPayslip(context.Background(), "item-1")

	require.NoError(t, err)
	assert.False(t, f.store.item.PayslipGenerated)
	assert.False(t, f.store.payslipFlags["item-1"])
}

func TestJobServiceResetItemPayslipUnknownItem(t *testing.T) {
	f := newJobFixture(t, nil)

	err := f.service.ResetItemPayslip(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestDeriveJobStatusTable(t *testing.T) {
	cases := []struct {
		ordered  int
		received int
		want     models.JobStatus
	}{
		{10, 0, models.JobInProgress},
		{10, 4, models.JobPartiallyReceived},
		{10, 10, models.JobCompleted},
		{0, 0, models.JobInProgress},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, models.DeriveJobStatus(tc.ordered, tc.received))
	}
}
