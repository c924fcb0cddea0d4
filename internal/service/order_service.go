package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
)

type orderStore interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, order *models.Order) error
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Order, error)
	FindByID(ctx context.Context, id string) (*models.Order, error)
	ListItems(ctx context.Context, exec sqlx.ExtContext, orderID string) ([]models.OrderItem, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, orderID string, status models.OrderStatus) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error)
}

type orderFinishedStockStore interface {
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, productID string) (*models.FinishedStockEntry, error)
	Credit(ctx context.Context, exec sqlx.ExtContext, productID string, quantity int, unitCost decimal.Decimal) (decimal.Decimal, error)
	Debit(ctx context.Context, exec sqlx.ExtContext, productID string, quantity int) error
}

type orderCustomerReader interface {
	FindByID(ctx context.Context, id string) (*models.Customer, error)
}

type orderProductReader interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
}

// OrderService manages sales orders and gates finished stock on status
// transitions: stock is deducted entering a holding status and restored when
// leaving one, never on order creation.
type OrderService struct {
	repo       orderStore
	stock      orderFinishedStockStore
	customers  orderCustomerReader
	products   orderProductReader
	stockCache stockCacheInvalidator
	tx         txProvider
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewOrderService builds an OrderService with sane defaults.
func NewOrderService(
	repo orderStore,
	stock orderFinishedStockStore,
	customers orderCustomerReader,
	products orderProductReader,
	stockCache stockCacheInvalidator,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
) *OrderService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		repo:       repo,
		stock:      stock,
		customers:  customers,
		products:   products,
		stockCache: stockCache,
		tx:         tx,
		validator:  validate,
		logger:     logger,
	}
}

// Create places an order in PENDING, freezing unit prices from the current
// catalog. Stock is untouched until the first holding transition.
func (s *OrderService) Create(ctx context.Context, req dto.CreateOrderRequest) (_ *models.Order, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid order payload")
	}
	if _, err := s.customers.FindByID(ctx, req.CustomerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "customer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load customer")
	}

	order := &models.Order{CustomerID: req.CustomerID, Status: models.OrderPending, Notes: req.Notes}
	total := decimal.Zero
	for _, line := range req.Items {
		product, err := s.products.FindByID(ctx, line.ProductID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("product %s not found", line.ProductID))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
		}
		item := models.OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: product.BasePrice,
		}
		total = total.Add(item.Subtotal())
		order.Items = append(order.Items, item)
	}
	order.TotalAmount = total

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.Insert(ctx, tx, order); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create order")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit order")
		return nil, err
	}
	return order, nil
}

// UpdateStatus applies a lifecycle transition, deducting or restoring
// finished stock when the holding side changes. All item stock rows are
// locked in product order and validated before the first deduction.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, req dto.UpdateOrderStatusRequest) (_ *models.Order, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	next := models.OrderStatus(req.Status)
	if !next.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown order status %q", req.Status))
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	order, err := s.repo.LockForUpdate(ctx, tx, orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "order not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order")
	}

	var moved []string
	switch {
	case !order.Status.HoldsStock() && next.HoldsStock():
		if moved, err = s.deductStock(ctx, tx, orderID); err != nil {
			return nil, err
		}
	case order.Status.HoldsStock() && !next.HoldsStock():
		if moved, err = s.restoreStock(ctx, tx, orderID); err != nil {
			return nil, err
		}
	}

	if err = s.repo.UpdateStatus(ctx, tx, orderID, next); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update order status")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit status change")
		return nil, err
	}
	if s.stockCache != nil {
		for _, productID := range moved {
			s.stockCache.InvalidateQuantities(ctx, productID)
		}
	}

	order.Status = next
	return order, nil
}

// deductStock locks every line's stock row in a stable product order, then
// validates all lines before debiting any so a late shortfall cannot leave a
// partial deduction. Returns the product ids it debited.
func (s *OrderService) deductStock(ctx context.Context, exec sqlx.ExtContext, orderID string) ([]string, error) {
	items, err := s.repo.ListItems(ctx, exec, orderID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order items")
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	entries := make(map[string]*models.FinishedStockEntry, len(items))
	for _, item := range items {
		entry, err := s.stock.LockForUpdate(ctx, exec, item.ProductID)
		if err != nil {
			if appErrors.Is(err, appErrors.ErrStockRecordMissing) {
				return nil, appErrors.Clone(appErrors.ErrStockRecordMissing,
					fmt.Sprintf("no finished stock record for product %s", item.ProductID))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock finished stock")
		}
		entries[item.ProductID] = entry
	}
	for _, item := range items {
		if entries[item.ProductID].Quantity < item.Quantity {
			return nil, appErrors.Clone(appErrors.ErrInsufficientStock,
				fmt.Sprintf("product %s: %d available, %d requested", item.ProductID, entries[item.ProductID].Quantity, item.Quantity))
		}
	}
	moved := make([]string, 0, len(items))
	for _, item := range items {
		if err := s.stock.Debit(ctx, exec, item.ProductID, item.Quantity); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deduct finished stock")
		}
		moved = append(moved, item.ProductID)
	}
	return moved, nil
}

// restoreStock credits each line back at the row's current average cost. A
// missing stock record is logged and skipped so a cancel never fails on a
// bookkeeping gap. Returns the product ids it credited.
func (s *OrderService) restoreStock(ctx context.Context, exec sqlx.ExtContext, orderID string) ([]string, error) {
	items, err := s.repo.ListItems(ctx, exec, orderID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order items")
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	moved := make([]string, 0, len(items))
	for _, item := range items {
		entry, err := s.stock.LockForUpdate(ctx, exec, item.ProductID)
		if err != nil {
			if appErrors.Is(err, appErrors.ErrStockRecordMissing) {
				s.logger.Warn("finished stock record missing during restore",
					zap.String("orderId", orderID),
					zap.String("productId", item.ProductID))
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock finished stock")
		}
		if _, err := s.stock.Credit(ctx, exec, item.ProductID, item.Quantity, entry.AverageCost); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore finished stock")
		}
		moved = append(moved, item.ProductID)
	}
	return moved, nil
}

// Get loads one order with its items.
func (s *OrderService) Get(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "order not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order")
	}
	items, err := s.repo.ListItems(ctx, nil, orderID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order items")
	}
	order.Items = items
	return order, nil
}

// List returns orders matching the filter.
func (s *OrderService) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list orders")
	}
	return orders, total, nil
}

// Delete removes an order that holds no stock.
func (s *OrderService) Delete(ctx context.Context, orderID string) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	order, err := s.repo.LockForUpdate(ctx, tx, orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "order not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order")
	}
	if order.Status.HoldsStock() {
		return appErrors.Clone(appErrors.ErrConflict, "order holds deducted stock, cancel it first")
	}

	if err = s.repo.Delete(ctx, tx, orderID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete order")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit order removal")
		return err
	}
	return nil
}
