package service

import (
	"context"
	"database/sql"
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

type orderStoreStub struct {
	order         *models.Order
	items         []models.OrderItem
	inserted      []*models.Order
	statusUpdates []models.OrderStatus
	deleted       []string
}

func (s *orderStoreStub) Insert(ctx context.Context, exec sqlx.ExtContext, order *models.Order) error {
	order.ID = "order-1"
	s.inserted = append(s.inserted, order)
	return nil
}

func (s *orderStoreStub) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *s.order
	return &copied, nil
}

func (s *orderStoreStub) FindByID(ctx context.Context, id string) (*models.Order, error) {
	return s.LockForUpdate(ctx, nil, id)
}

func (s *orderStoreStub) ListItems(ctx context.Context, exec sqlx.ExtContext, orderID string) ([]models.OrderItem, error) {
	return s.items, nil
}

func (s *orderStoreStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, orderID string, status models.OrderStatus) error {
	s.statusUpdates = append(s.statusUpdates, status)
	return nil
}

func (s *orderStoreStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *orderStoreStub) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	return nil, 0, nil
}

type orderStockStub struct {
	entries map[string]*models.FinishedStockEntry
	credits []ledgerMovement
	debits  []ledgerMovement
}

func (s *orderStockStub) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, productID string) (*models.FinishedStockEntry, error) {
	entry, ok := s.entries[productID]
	if !ok {
		return nil, appErrors.ErrStockRecordMissing
	}
	copied := *entry
	return &copied, nil
}

func (s *orderStockStub) Credit(ctx context.Context, exec sqlx.ExtContext, productID string, quantity int, unitCost decimal.Decimal) (decimal.Decimal, error) {
	s.entries[productID].Quantity += quantity
	s.credits = append(s.credits, ledgerMovement{ProductID: productID, Quantity: quantity, UnitCost: unitCost})
	return unitCost, nil
}

func (s *orderStockStub) Debit(ctx context.Context, exec sqlx.ExtContext, productID string, quantity int) error {
	if s.entries[productID].Quantity < quantity {
		return appErrors.ErrInsufficientStock
	}
	s.entries[productID].Quantity -= quantity
	s.debits = append(s.debits, ledgerMovement{ProductID: productID, Quantity: quantity})
	return nil
}

type customerReaderStub struct {
	customers map[string]*models.Customer
}

func (c *customerReaderStub) FindByID(ctx context.Context, id string) (*models.Customer, error) {
	customer, ok := c.customers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return customer, nil
}

type orderFixture struct {
	service *OrderService
	store   *orderStoreStub
	stock   *orderStockStub
	cache   *cacheInvalidatorStub
	mock    sqlmock.Sqlmock
}

func newOrderFixture(t *testing.T) *orderFixture {
	store := &orderStoreStub{}
	stock := &orderStockStub{entries: map[string]*models.FinishedStockEntry{}}
	cache := &cacheInvalidatorStub{}
	customers := &customerReaderStub{customers: map[string]*models.Customer{
		"cust-1": {ID: "cust-1", Name: "Gallery Ubud"},
	}}
	products := &productReaderStub{products: map[string]*models.Product{
		"prod-1": {ID: "prod-1", ProductType: "FIGURINE", AnimalType: "OWL", SizeCategory: "SMALL", BasePrice: decimal.NewFromInt(25)},
		"prod-2": {ID: "prod-2", ProductType: "FIGURINE", AnimalType: "CAT", SizeCategory: "LARGE", BasePrice: decimal.NewFromInt(40)},
	}}
	tx, mock := newTxProviderMock(t)

	service := NewOrderService(store, stock, customers, products, cache, tx, nil, nil)
	return &orderFixture{service: service, store: store, stock: stock, cache: cache, mock: mock}
}

func TestOrderServiceCreateFreezesUnitPrices(t *testing.T) {
	f := newOrderFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	order, err := f.service.Create(context.Background(), dto.CreateOrderRequest{
		CustomerID: "cust-1",
		Items: []dto.CreateOrderItemRequest{
			{ProductID: "prod-1", Quantity: 2},
			{ProductID: "prod-2", Quantity: 1},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(90)))
	require.Len(t, order.Items, 2)
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.NewFromInt(25)))
	assert.Empty(t, f.stock.debits, "creation never touches stock")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestOrderServiceProcessingDeductsFinishedStock(t *testing.T) {
	f := newOrderFixture(t)
	f.store.order = &models.Order{ID: "order-1", CustomerID: "cust-1", Status: models.OrderPending}
	f.store.items = []models.OrderItem{
		{OrderID: "order-1", ProductID: "prod-1", Quantity: 3},
	}
	f.stock.entries["prod-1"] = &models.FinishedStockEntry{ProductID: "prod-1", Quantity: 5, AverageCost: decimal.NewFromInt(20)}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	order, err := f.service.UpdateStatus(context.Background(), "order-1", dto.UpdateOrderStatusRequest{Status: string(models.OrderProcessing)})

	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, order.Status)
	assert.Equal(t, 2, f.stock.entries["prod-1"].Quantity)
	assert.Equal(t, []models.OrderStatus{models.OrderProcessing}, f.store.statusUpdates)
	assert.Equal(t, []string{"prod-1"}, f.cache.invalidated, "the deduction drops cached quantities")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestOrderServiceDeductValidatesAllLinesFirst(t *testing.T) {
	f := newOrderFixture(t)
	f.store.order = &models.Order{ID: "order-1", CustomerID: "cust-1", Status: models.OrderPending}
	f.store.items = []models.OrderItem{
		{OrderID: "order-1", ProductID: "prod-1", Quantity: 2},
		{OrderID: "order-1", ProductID: "prod-2", Quantity: 10},
	}
	f.stock.entries["prod-1"] = &models.FinishedStockEntry{ProductID: "prod-1", Quantity: 5}
	f.stock.entries["prod-2"] = &models.FinishedStockEntry{ProductID: "prod-2", Quantity: 1}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.UpdateStatus(context.Background(), "order-1", dto.UpdateOrderStatusRequest{Status: string(models.OrderProcessing)})

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInsufficientStock))
	assert.Empty(t, f.stock.debits, "a short line must block every deduction")
	assert.Equal(t, 5, f.stock.entries["prod-1"].Quantity)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestOrderServiceDeductRequiresStockRecord(t *testing.T) {
	f := newOrderFixture(t)
	f.store.order = &models.Order{ID: "order-1", CustomerID: "cust-1", Status: models.OrderPending}
	f.store.items = []models.OrderItem{
		{OrderID: "order-1", ProductID: "prod-1", Quantity: 1},
	}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.UpdateStatus(context.Background(), "order-1", dto.UpdateOrderStatusRequest{Status: string(models.OrderShipped)})

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrStockRecordMissing))
}

func TestOrderServiceCancelRestoresAtCurrentAverage(t *testing.T) {
	f := newOrderFixture(t)
	f.store.order = &models.Order{ID: "order-1", CustomerID: "cust-1", Status: models.OrderProcessing}
	f.store.items = []models.OrderItem{
		{OrderID: "order-1", ProductID: "prod-1", Quantity: 3},
	}
	f.stock.entries["prod-1"] = &models.FinishedStockEntry{ProductID: "prod-1", Quantity: 2, AverageCost: decimal.RequireFromString("7.50")}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	order, err := f.service.UpdateStatus(context.Background(), "order-1", dto.UpdateOrderStatusRequest{Status: string(models.OrderCancelled)})

	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, order.Status)
	assert.Equal(t, 5, f.stock.entries["prod-1"].Quantity)
	require.Len(t, f.stock.credits, 1)
	assert.True(t, f.stock.credits[0].UnitCost.Equal(decimal.RequireFromString("7.50")))
	assert.Equal(t, []string{"prod-1"}, f.cache.invalidated)
}

func TestOrderServiceRestoreSkipsMissingStockRecord(t *testing.T) {
	f := newOrderFixture(t)
	f.store.order = &models.Order{ID: "order-1", CustomerID: "cust-1", Status: models.OrderShipped}
	f.store.items = []models.OrderItem{
		{OrderID: "order-1", ProductID: "prod-1", Quantity: 2},
		{OrderID: "order-1", ProductID: "prod-2", Quantity: 1},
	}
	f.stock.entries["prod-2"] = &models.FinishedStockEntry{ProductID: "prod-2", Quantity: 0, AverageCost: decimal.NewFromInt(30)}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.service.UpdateStatus(context.Background(), "order-1", dto.UpdateOrderStatusRequest{Status: string(models.OrderCancelled)})

	require.NoError(t, err, "a cancel never fails on a bookkeeping gap")
	require.Len(t, f.stock.credits, 1)
	assert.Equal(t, "prod-2", f.stock.credits[0].ProductID)
}

func TestOrderServiceShippedToDeliveredKeepsStock(t *testing.T) {
	f := newOrderFixture(t)
	f.store.order = &models.Order{ID: "order-1", CustomerID: "cust-1", Status: models.OrderShipped}
	f.stock.entries["prod-1"] = &models.FinishedStockEntry{ProductID: "prod-1", Quantity: 5}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.service.UpdateStatus(context.Background(), "order-1", dto.UpdateOrderStatusRequest{Status: string(models.OrderDelivered)})

	require.NoError(t, err)
	assert.Empty(t, f.stock.debits)
	assert.Empty(t, f.stock.credits)
}

func TestOrderServiceDeleteWhileHoldingStockConflicts(t *testing.T) {
	f := newOrderFixture(t)
	f.store.order = &models.Order{ID: "order-1", CustomerID: "cust-1", Status: models.OrderProcessing}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.service.Delete(context.Background(), "order-1")

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Empty(t, f.store.deleted)
}

func TestOrderStatusHoldsStockTable(t *testing.T) {
	assert.False(t, models.OrderPending.HoldsStock())
	assert.True(t, models.OrderProcessing.HoldsStock())
	assert.True(t, models.OrderShipped.HoldsStock())
	assert.True(t, models.OrderDelivered.HoldsStock())
	assert.False(t, models.OrderCancelled.HoldsStock())
}
