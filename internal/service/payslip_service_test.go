package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
	"github.com/noah-isme/atelier-api/pkg/export"
)

type payslipStoreStub struct {
	inserted      []*models.Payslip
	insertedItems [][]models.PayslipItem
	payslip       *models.Payslip
	itemIDs       []string
	deleted       []string
}

func (s *payslipStoreStub) Insert(ctx context.Context, exec sqlx.ExtContext, payslip *models.Payslip, items []models.PayslipItem) error {
	payslip.ID = "payslip-1"
	s.inserted = append(s.inserted, payslip)
	s.insertedItems = append(s.insertedItems, items)
	return nil
}

func (s *payslipStoreStub) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Payslip, error) {
	if s.payslip == nil || s.payslip.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *s.payslip
	return &copied, nil
}

func (s *payslipStoreStub) FindByID(ctx context.Context, id string) (*models.Payslip, error) {
	return s.LockForUpdate(ctx, nil, id)
}

func (s *payslipStoreStub) ItemIDs(ctx context.Context, exec sqlx.ExtContext, payslipID string) ([]string, error) {
	return s.itemIDs, nil
}

func (s *payslipStoreStub) ListItems(ctx context.Context, payslipID string) ([]models.PayslipItem, error) {
	return nil, nil
}

func (s *payslipStoreStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *payslipStoreStub) List(ctx context.Context, filter models.PayslipFilter) ([]models.Payslip, int, error) {
	return nil, 0, nil
}

type payslipItemStoreStub struct {
	payable map[string][]models.JobItem
	flagged map[string]bool
}

func (s *payslipItemStoreStub) PayableItems(ctx context.Context, exec sqlx.ExtContext, artisanID string, stage *models.Stage, periodStart, periodEnd time.Time) ([]models.JobItem, error) {
	var items []models.JobItem
	for _, item := range s.payable[artisanID] {
		if !s.flagged[item.ID] {
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *payslipItemStoreStub) SetItemsPayslipGenerated(ctx context.Context, exec sqlx.ExtContext, itemIDs []string, generated bool) error {
	if s.flagged == nil {
		s.flagged = map[string]bool{}
	}
	for _, id := range itemIDs {
		s.flagged[id] = generated
	}
	return nil
}

func (s *payslipItemStoreStub) FindJobByID(ctx context.Context, id string) (*models.Job, error) {
	return &models.Job{ID: id}, nil
}

type payslipArtisanStub struct {
	artisans map[string]*models.Artisan
	listed   []models.Artisan
}

func (s *payslipArtisanStub) FindByID(ctx context.Context, id string) (*models.Artisan, error) {
	artisan, ok := s.artisans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return artisan, nil
}

// List mirrors the repository's paging contract, capping the page size at 100.
func (s *payslipArtisanStub) List(ctx context.Context, filter models.ArtisanFilter) ([]models.Artisan, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	start := (page - 1) * size
	if start > len(s.listed) {
		start = len(s.listed)
	}
	end := start + size
	if end > len(s.listed) {
		end = len(s.listed)
	}
	return s.listed[start:end], len(s.listed), nil
}

type rendererStub struct {
	rendered []export.PayslipDocument
}

func (r *rendererStub) Render(doc export.PayslipDocument) ([]byte, error) {
	r.rendered = append(r.rendered, doc)
	return []byte("%PDF-1.4"), nil
}

type storageStub struct {
	saved   map[string][]byte
	deleted []string
}

func (s *storageStub) Save(filename string, data []byte) (string, error) {
	if s.saved == nil {
		s.saved = map[string][]byte{}
	}
	s.saved[filename] = data
	return filename, nil
}

func (s *storageStub) Open(filename string) (*os.File, error) {
	if _, ok := s.saved[filename]; !ok {
		return nil, os.ErrNotExist
	}
	return nil, nil
}

func (s *storageStub) Delete(filename string) error {
	s.deleted = append(s.deleted, filename)
	return nil
}

type signerStub struct{}

func (signerStub) Generate(docID, relPath string) (string, time.Time, error) {
	return "signed:" + docID + ":" + relPath, time.Now().Add(15 * time.Minute), nil
}

func (signerStub) Parse(token string, allowExpired bool) (string, string, time.Time, error) {
	return "", "", time.Time{}, os.ErrInvalid
}

type payslipFixture struct {
	service  *PayslipService
	store    *payslipStoreStub
	items    *payslipItemStoreStub
	artisans *payslipArtisanStub
	storage  *storageStub
	renderer *rendererStub
	mock     sqlmock.Sqlmock
}

func newPayslipFixture(t *testing.T) *payslipFixture {
	store := &payslipStoreStub{}
	items := &payslipItemStoreStub{payable: map[string][]models.JobItem{}}
	artisans := &payslipArtisanStub{artisans: map[string]*models.Artisan{
		"art-1": {ID: "art-1", Name: "Wira", Active: true},
	}}
	products := &productReaderStub{products: map[string]*models.Product{
		"prod-1": {ID: "prod-1", ProductType: "FIGURINE", AnimalType: "OWL", SizeCategory: "SMALL", BasePrice: decimal.NewFromInt(10)},
	}}
	renderer := &rendererStub{}
	storage := &storageStub{}
	tx, mock := newTxProviderMock(t)

	service := NewPayslipService(store, items, artisans, products, renderer, storage, signerStub{}, tx, nil, nil)
	return &payslipFixture{
		service:  service,
		store:    store,
		items:    items,
		artisans: artisans,
		storage:  storage,
		renderer: renderer,
		mock:     mock,
	}
}

func payableItem(id string, payment int64) models.JobItem {
	return models.JobItem{
		ID:               id,
		JobID:            "job-1",
		ArtisanID:        "art-1",
		ProductID:        "prod-1",
		QuantityOrdered:  10,
		QuantityReceived: 10,
		QuantityAccepted: 10,
		FinalPayment:     decimal.NewFromInt(payment),
	}
}

func TestPayslipServiceGenerateRequiresExactlyOneSelector(t *testing.T) {
	f := newPayslipFixture(t)

	_, err := f.service.Generate(context.Background(), dto.GeneratePayslipRequest{
		PeriodStart: "2026-08-01",
		PeriodEnd:   "2026-08-31",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.service.Generate(context.Background(), dto.GeneratePayslipRequest{
		ArtisanID:   "art-1",
		Stage:       string(models.StageSanding),
		PeriodStart: "2026-08-01",
		PeriodEnd:   "2026-08-31",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestPayslipServiceGenerateRejectsReversedPeriod(t *testing.T) {
	f := newPayslipFixture(t)

	_, err := f.service.Generate(context.Background(), dto.GeneratePayslipRequest{
		ArtisanID:   "art-1",
		PeriodStart: "2026-08-31",
		PeriodEnd:   "2026-08-01",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestPayslipServiceGenerateForArtisan(t *testing.T) {
	f := newPayslipFixture(t)
	f.items.payable["art-1"] = []models.JobItem{
		payableItem("item-1", 100),
		payableItem("item-2", 50),
	}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	payslips, err := f.service.Generate(context.Background(), dto.GeneratePayslipRequest{
		ArtisanID:   "art-1",
		PeriodStart: "2026-08-01",
		PeriodEnd:   "2026-08-31",
	})

	require.NoError(t, err)
	require.Len(t, payslips, 1)
	assert.True(t, payslips[0].TotalPayment.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, "art-1", payslips[0].ArtisanID)
	assert.NotEmpty(t, payslips[0].DocumentPath)

	assert.True(t, f.items.flagged["item-1"])
	assert.True(t, f.items.flagged["item-2"])

	require.Len(t, f.store.insertedItems, 1)
	assert.Len(t, f.store.insertedItems[0], 2)
	assert.True(t, f.store.insertedItems[0][0].Payment.Equal(decimal.NewFromInt(100)))

	require.Len(t, f.renderer.rendered, 1)
	assert.Equal(t, "150.00", f.renderer.rendered[0].TotalPayment)
	assert.Len(t, f.storage.saved, 1)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPayslipServiceGenerateSecondRunFindsNothing(t *testing.T) {
	f := newPayslipFixture(t)
	f.items.payable["art-1"] = []models.JobItem{payableItem("item-1", 100)}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.Generate(context.Background(), dto.GeneratePayslipRequest{
		ArtisanID:   "art-1",
		PeriodStart: "2026-08-01",
		PeriodEnd:   "2026-08-31",
	})
	require.NoError(t, err)

	_, err = f.service.Generate(context.Background(), dto.GeneratePayslipRequest{
		ArtisanID:   "art-1",
		PeriodStart: "2026-08-01",
		PeriodEnd:   "2026-08-31",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.Len(t, f.store.inserted, 1, "a second run must not double pay")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPayslipServiceGenerateByStagePaysEachArtisan(t *testing.T) {
	f := newPayslipFixture(t)
	f.artisans.listed = []models.Artisan{
		{ID: "art-1", Name: "Wira"},
		{ID: "art-2", Name: "Made"},
		{ID: "art-3", Name: "Ketut"},
	}
	f.items.payable["art-1"] = []models.JobItem{payableItem("item-1", 100)}
	item2 := payableItem("item-2", 75)
	item2.ArtisanID = "art-3"
	f.items.payable["art-3"] = []models.JobItem{item2}

	// One transaction per artisan; the artisan without payable work rolls back.
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	payslips, err := f.service.Generate(context.Background(), dto.GeneratePayslipRequest{
		Stage:       string(models.StageSanding),
		PeriodStart: "2026-08-01",
		PeriodEnd:   "2026-08-31",
	})

	require.NoError(t, err)
	require.Len(t, payslips, 2)
	assert.Equal(t, "art-1", payslips[0].ArtisanID)
	assert.Equal(t, "art-3", payslips[1].ArtisanID)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPayslipServiceGenerateByStageWalksFullRoster(t *testing.T) {
	f := newPayslipFixture(t)
	for i := 1; i <= 120; i++ {
		f.artisans.listed = append(f.artisans.listed, models.Artisan{ID: fmt.Sprintf("art-%03d", i)})
	}
	item := payableItem("item-1", 60)
	item.ArtisanID = "art-110"
	f.items.payable["art-110"] = []models.JobItem{item}

	for i := 1; i <= 120; i++ {
		f.mock.ExpectBegin()
		if i == 110 {
			f.mock.ExpectCommit()
		} else {
			f.mock.ExpectRollback()
		}
	}

	payslips, err := f.service.Generate(context.Background(), dto.GeneratePayslipRequest{
		Stage:       string(models.StageSanding),
		PeriodStart: "2026-08-01",
		PeriodEnd:   "2026-08-31",
	})

	require.NoError(t, err)
	require.Len(t, payslips, 1, "artisans beyond the first page must still be paid")
	assert.Equal(t, "art-110", payslips[0].ArtisanID)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPayslipServiceDeleteReleasesConsumedItems(t *testing.T) {
	f := newPayslipFixture(t)
	f.store.payslip = &models.Payslip{ID: "payslip-1", ArtisanID: "art-1", DocumentPath: "payslip-art-1-20260801.pdf"}
	f.store.itemIDs = []string{"item-1", "item-2"}
	f.items.flagged = map[string]bool{"item-1": true, "item-2": true}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.service.Delete(context.Background(), "payslip-1")

	require.NoError(t, err)
	assert.False(t, f.items.flagged["item-1"])
	assert.False(t, f.items.flagged["item-2"])
	assert.Equal(t, []string{"payslip-1"}, f.store.deleted)
	assert.Equal(t, []string{"payslip-art-1-20260801.pdf"}, f.storage.deleted)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPayslipServiceDeleteUnknownPayslip(t *testing.T) {
	f := newPayslipFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.service.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestParsePeriodEndIsInclusive(t *testing.T) {
	start, end, err := parsePeriod("2026-08-01", "2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC), end)
}
