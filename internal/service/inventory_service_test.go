package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
	"github.com/noah-isme/atelier-api/pkg/export"
)

type inventoryLedgerStub struct {
	*stageLedgerStub
	quantityCalls int
	entries       []models.StageLedgerEntry
}

func (l *inventoryLedgerStub) Quantity(ctx context.Context, productID string, stage models.Stage) (int, error) {
	l.quantityCalls++
	return l.available[stageKey(productID, stage)], nil
}

func (l *inventoryLedgerStub) List(ctx context.Context, filter models.LedgerFilter) ([]models.StageLedgerEntry, int, error) {
	return l.entries, len(l.entries), nil
}

func (l *inventoryLedgerStub) SummaryByStage(ctx context.Context) ([]models.InventorySummaryRow, error) {
	return []models.InventorySummaryRow{{GroupKey: "CARVING", TotalQuantity: 12}}, nil
}

func (l *inventoryLedgerStub) SummaryByProductType(ctx context.Context) ([]models.InventorySummaryRow, error) {
	return []models.InventorySummaryRow{{GroupKey: "FIGURINE", TotalQuantity: 12}}, nil
}

type inventoryFinishedStub struct {
	entries []models.FinishedStockEntry
}

func (f *inventoryFinishedStub) List(ctx context.Context, filter models.LedgerFilter) ([]models.FinishedStockEntry, int, error) {
	return f.entries, len(f.entries), nil
}

func (f *inventoryFinishedStub) Get(ctx context.Context, productID string) (*models.FinishedStockEntry, error) {
	return nil, nil
}

// memoryCacheRepo is an in-process CacheRepository for exercising cache
// plumbing without redis.
type memoryCacheRepo struct {
	values map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{values: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			delete(m.values, key)
		}
	}
	return nil
}

type inventoryFixture struct {
	service *InventoryService
	ledger  *inventoryLedgerStub
	cache   *memoryCacheRepo
}

func newInventoryFixture(t *testing.T) *inventoryFixture {
	t.Helper()
	ledger := &inventoryLedgerStub{stageLedgerStub: newStageLedgerStub()}
	finished := &inventoryFinishedStub{}
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)

	service := NewInventoryService(ledger, finished, cache, export.NewCSVExporter(), time.Minute, nil, nil)
	return &inventoryFixture{service: service, ledger: ledger, cache: cacheRepo}
}

func TestInventoryServiceStageQuantityServesFromCache(t *testing.T) {
	f := newInventoryFixture(t)
	f.ledger.available[stageKey("prod-1", models.StageCarving)] = 7

	quantity, hit, err := f.service.StageQuantity(context.Background(), "prod-1", "CARVING")
	require.NoError(t, err)
	assert.Equal(t, 7, quantity)
	assert.False(t, hit)

	quantity, hit, err = f.service.StageQuantity(context.Background(), "prod-1", "CARVING")
	require.NoError(t, err)
	assert.Equal(t, 7, quantity)
	assert.True(t, hit)
	assert.Equal(t, 1, f.ledger.quantityCalls)
}

func TestInventoryServiceStageQuantityRejectsUnknownStage(t *testing.T) {
	f := newInventoryFixture(t)

	_, _, err := f.service.StageQuantity(context.Background(), "prod-1", "POLISHING")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestInventoryServiceAdjustStockRejectsFinishedStage(t *testing.T) {
	f := newInventoryFixture(t)

	_, err := f.service.AdjustStock(context.Background(), dto.AdjustStockRequest{
		ProductID: "prod-1",
		Stage:     string(models.StageFinished),
		Quantity:  5,
		UnitCost:  "10.00",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestInventoryServiceAdjustStockCreditsAndInvalidates(t *testing.T) {
	f := newInventoryFixture(t)
	f.ledger.available[stageKey("prod-1", models.StageCarving)] = 2

	// Warm the cache, then adjust and confirm a fresh read.
	_, _, err := f.service.StageQuantity(context.Background(), "prod-1", "CARVING")
	require.NoError(t, err)

	average, err := f.service.AdjustStock(context.Background(), dto.AdjustStockRequest{
		ProductID: "prod-1",
		Stage:     string(models.StageCarving),
		Quantity:  8,
		UnitCost:  "12.25",
	})
	require.NoError(t, err)
	assert.True(t, average.Equal(decimal.RequireFromString("12.25")))
	assert.Empty(t, f.cache.values, "quantity cache must be invalidated after a credit")

	quantity, hit, err := f.service.StageQuantity(context.Background(), "prod-1", "CARVING")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 10, quantity)
}

func TestInventoryServiceAdjustStockRejectsNegativeCost(t *testing.T) {
	f := newInventoryFixture(t)

	_, err := f.service.AdjustStock(context.Background(), dto.AdjustStockRequest{
		ProductID: "prod-1",
		Stage:     string(models.StageCarving),
		Quantity:  3,
		UnitCost:  "-1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestInventoryServiceSummaryGrouping(t *testing.T) {
	f := newInventoryFixture(t)

	rows, err := f.service.Summary(context.Background(), "stage")
	require.NoError(t, err)
	assert.Equal(t, "CARVING", rows[0].GroupKey)

	rows, err = f.service.Summary(context.Background(), "product_type")
	require.NoError(t, err)
	assert.Equal(t, "FIGURINE", rows[0].GroupKey)

	_, err = f.service.Summary(context.Background(), "color")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestInventoryServiceExportLedgerCSV(t *testing.T) {
	f := newInventoryFixture(t)
	f.ledger.entries = []models.StageLedgerEntry{
		{
			ProductID:    "prod-1",
			ProductType:  "FIGURINE",
			AnimalType:   "OWL",
			SizeCategory: "SMALL",
			Stage:        models.StageCarving,
			Quantity:     7,
			AverageCost:  decimal.RequireFromString("12.25"),
			LastUpdated:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		},
	}

	data, err := f.service.ExportLedgerCSV(context.Background(), models.LedgerFilter{})
	require.NoError(t, err)
	csv := string(data)
	assert.Contains(t, csv, "Product,Animal,Size,Stage,Quantity,Average Cost,Last Updated")
	assert.Contains(t, csv, "FIGURINE,OWL,SMALL,CARVING,7,12.25")
}
