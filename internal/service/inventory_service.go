package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
	"github.com/noah-isme/atelier-api/pkg/export"
)

type inventoryLedgerStore interface {
	jobLedgerStore
	Quantity(ctx context.Context, productID string, stage models.Stage) (int, error)
	List(ctx context.Context, filter models.LedgerFilter) ([]models.StageLedgerEntry, int, error)
	SummaryByStage(ctx context.Context) ([]models.InventorySummaryRow, error)
	SummaryByProductType(ctx context.Context) ([]models.InventorySummaryRow, error)
}

type inventoryFinishedStore interface {
	List(ctx context.Context, filter models.LedgerFilter) ([]models.FinishedStockEntry, int, error)
	Get(ctx context.Context, productID string) (*models.FinishedStockEntry, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// InventoryService exposes ledger read models, cached stage quantities, CSV
// exports and manual opening-balance credits.
type InventoryService struct {
	ledger    inventoryLedgerStore
	finished  inventoryFinishedStore
	cache     *CacheService
	csv       csvRenderer
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInventoryService builds an InventoryService with sane defaults.
func NewInventoryService(
	ledger inventoryLedgerStore,
	finished inventoryFinishedStore,
	cache *CacheService,
	csv csvRenderer,
	cacheTTL time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *InventoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &InventoryService{
		ledger:    ledger,
		finished:  finished,
		cache:     cache,
		csv:       csv,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

func stageQuantityCacheKey(productID string, stage models.Stage) string {
	return fmt.Sprintf("inventory:quantity:%s:%s", productID, stage)
}

// StageQuantity returns the current units for a tuple, served from cache
// when warm. Boolean reports a cache hit.
func (s *InventoryService) StageQuantity(ctx context.Context, productID string, stageRaw string) (int, bool, error) {
	stage, err := models.ParseStage(stageRaw)
	if err != nil {
		return 0, false, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	key := stageQuantityCacheKey(productID, stage)
	var cached int
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, true, nil
		}
	}

	quantity, err := s.ledger.Quantity(ctx, productID, stage)
	if err != nil {
		return 0, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read stage quantity")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, quantity, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache stage quantity", zap.String("key", key), zap.Error(err))
		}
	}
	return quantity, false, nil
}

// InvalidateQuantities drops cached quantities after a ledger mutation.
func (s *InventoryService) InvalidateQuantities(ctx context.Context, productID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("inventory:quantity:%s:*", productID)); err != nil {
		s.logger.Warn("failed to invalidate quantity cache", zap.String("productId", productID), zap.Error(err))
	}
}

// ListLedger returns stage ledger entries for display.
func (s *InventoryService) ListLedger(ctx context.Context, filter models.LedgerFilter) ([]models.StageLedgerEntry, int, error) {
	entries, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stage ledger")
	}
	return entries, total, nil
}

// ListFinished returns finished goods entries for display.
func (s *InventoryService) ListFinished(ctx context.Context, filter models.LedgerFilter) ([]models.FinishedStockEntry, int, error) {
	entries, total, err := s.finished.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list finished stock")
	}
	return entries, total, nil
}

// Summary aggregates ledger quantities grouped by stage or product type.
func (s *InventoryService) Summary(ctx context.Context, groupBy string) ([]models.InventorySummaryRow, error) {
	var (
		rows []models.InventorySummaryRow
		err  error
	)
	switch groupBy {
	case "", "stage":
		rows, err = s.ledger.SummaryByStage(ctx)
	case "product_type":
		rows, err = s.ledger.SummaryByProductType(ctx)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown summary grouping %q", groupBy))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build inventory summary")
	}
	return rows, nil
}

// AdjustStock credits a manual opening balance at an entry stage. The unit
// cost seeds the weighted average for the tuple.
func (s *InventoryService) AdjustStock(ctx context.Context, req dto.AdjustStockRequest) (decimal.Decimal, error) {
	if err := s.validator.Struct(req); err != nil {
		return decimal.Zero, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stock adjustment")
	}
	stage, err := models.ParseStage(req.Stage)
	if err != nil {
		return decimal.Zero, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if stage == models.StageFinished {
		return decimal.Zero, appErrors.Clone(appErrors.ErrValidation, "finished stock is credited through deliveries, not adjustments")
	}
	unitCost, err := decimal.NewFromString(req.UnitCost)
	if err != nil || unitCost.IsNegative() {
		return decimal.Zero, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid unit cost %q", req.UnitCost))
	}

	average, err := s.ledger.Credit(ctx, nil, req.ProductID, stage, req.Quantity, unitCost)
	if err != nil {
		return decimal.Zero, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to credit stock")
	}
	s.InvalidateQuantities(ctx, req.ProductID)
	return average, nil
}

// ExportLedgerCSV renders the full stage ledger as CSV.
func (s *InventoryService) ExportLedgerCSV(ctx context.Context, filter models.LedgerFilter) ([]byte, error) {
	filter.Page = 1
	filter.PageSize = 100
	headers := []string{"Product", "Animal", "Size", "Stage", "Quantity", "Average Cost", "Last Updated"}
	var rows [][]string

	for {
		entries, total, err := s.ledger.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stage ledger")
		}
		for _, entry := range entries {
			rows = append(rows, []string{
				entry.ProductType,
				entry.AnimalType,
				entry.SizeCategory,
				string(entry.Stage),
				strconv.Itoa(entry.Quantity),
				entry.AverageCost.StringFixed(2),
				entry.LastUpdated.Format(time.RFC3339),
			})
		}
		if len(rows) >= total || len(entries) == 0 {
			break
		}
		filter.Page++
	}

	data, err := s.csv.Render(export.Dataset{Headers: headers, Rows: rows})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return data, nil
}
