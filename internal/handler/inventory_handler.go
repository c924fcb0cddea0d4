package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/middleware"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
	"github.com/noah-isme/atelier-api/pkg/response"
)

type inventoryService interface {
	StageQuantity(ctx context.Context, productID, stage string) (int, bool, error)
	ListLedger(ctx context.Context, filter models.LedgerFilter) ([]models.StageLedgerEntry, int, error)
	ListFinished(ctx context.Context, filter models.LedgerFilter) ([]models.FinishedStockEntry, int, error)
	Summary(ctx context.Context, groupBy string) ([]models.InventorySummaryRow, error)
	AdjustStock(ctx context.Context, req dto.AdjustStockRequest) (decimal.Decimal, error)
	ExportLedgerCSV(ctx context.Context, filter models.LedgerFilter) ([]byte, error)
}

// InventoryHandler exposes the stage and finished-goods ledgers.
type InventoryHandler struct {
	service inventoryService
}

// NewInventoryHandler builds a new handler.
func NewInventoryHandler(service inventoryService) *InventoryHandler {
	return &InventoryHandler{service: service}
}

func ledgerFilterFromQuery(c *gin.Context) models.LedgerFilter {
	var filter models.LedgerFilter
	filter.ProductID = c.Query("productId")
	filter.Stage = models.Stage(c.Query("stage"))
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	return filter
}

// ListLedger godoc
// @Summary List stage ledger entries
// @Tags Inventory
// @Produce json
// @Param productId query string false "Product filter"
// @Param stage query string false "Stage filter"
// @Success 200 {object} response.Envelope
// @Router /inventory/ledger [get]
func (h *InventoryHandler) ListLedger(c *gin.Context) {
	filter := ledgerFilterFromQuery(c)
	entries, total, err := h.service.ListLedger(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, paginationMeta(filter.Page, filter.PageSize, total))
}

// ListFinished godoc
// @Summary List finished goods stock
// @Tags Inventory
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /inventory/finished [get]
func (h *InventoryHandler) ListFinished(c *gin.Context) {
	filter := ledgerFilterFromQuery(c)
	entries, total, err := h.service.ListFinished(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, paginationMeta(filter.Page, filter.PageSize, total))
}

// StageQuantity godoc
// @Summary Current quantity for a product and stage
// @Tags Inventory
// @Produce json
// @Param productId path string true "Product ID"
// @Param stage path string true "Stage"
// @Success 200 {object} response.Envelope
// @Router /inventory/quantity/{productId}/{stage} [get]
func (h *InventoryHandler) StageQuantity(c *gin.Context) {
	quantity, cached, err := h.service.StageQuantity(c.Request.Context(), c.Param("productId"), c.Param("stage"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, gin.H{"quantity": quantity}, nil, middleware.ExtractMeta(c))
}

// Summary godoc
// @Summary Aggregate ledger quantities
// @Tags Inventory
// @Produce json
// @Param groupBy query string false "stage or product_type"
// @Success 200 {object} response.Envelope
// @Router /inventory/summary [get]
func (h *InventoryHandler) Summary(c *gin.Context) {
	rows, err := h.service.Summary(c.Request.Context(), c.Query("groupBy"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Adjust godoc
// @Summary Credit a manual opening balance
// @Tags Inventory
// @Accept json
// @Produce json
// @Param payload body dto.AdjustStockRequest true "Adjustment payload"
// @Success 200 {object} response.Envelope
// @Router /inventory/adjust [post]
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req dto.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid stock adjustment"))
		return
	}
	average, err := h.service.AdjustStock(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"averageCost": average}, nil)
}

// ExportCSV godoc
// @Summary Export the stage ledger as CSV
// @Tags Inventory
// @Produce text/csv
// @Success 200 {file} file
// @Router /inventory/ledger/export [get]
func (h *InventoryHandler) ExportCSV(c *gin.Context) {
	data, err := h.service.ExportLedgerCSV(c.Request.Context(), ledgerFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="stage-ledger.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}
