package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
	"github.com/noah-isme/atelier-api/pkg/response"
)

type payRateService interface {
	Upsert(ctx context.Context, req dto.UpsertPayRateRequest) (*models.PayRate, error)
	Resolve(ctx context.Context, productID, stage string) (*models.PayRate, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.PayRateFilter) ([]models.PayRate, int, error)
}

// PayRateHandler exposes pay rate configuration endpoints.
type PayRateHandler struct {
	service payRateService
}

// NewPayRateHandler builds a new handler.
func NewPayRateHandler(service payRateService) *PayRateHandler {
	return &PayRateHandler{service: service}
}

// Upsert godoc
// @Summary Set the per-unit rate for a product and stage
// @Tags PayRates
// @Accept json
// @Produce json
// @Param payload body dto.UpsertPayRateRequest true "Rate payload"
// @Success 200 {object} response.Envelope
// @Router /pay-rates [put]
func (h *PayRateHandler) Upsert(c *gin.Context) {
	var req dto.UpsertPayRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pay rate payload"))
		return
	}
	rate, err := h.service.Upsert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rate, nil)
}

// Resolve godoc
// @Summary Current rate for a product and stage
// @Tags PayRates
// @Produce json
// @Param productId path string true "Product ID"
// @Param stage path string true "Stage"
// @Success 200 {object} response.Envelope
// @Router /pay-rates/{productId}/{stage} [get]
func (h *PayRateHandler) Resolve(c *gin.Context) {
	rate, err := h.service.Resolve(c.Request.Context(), c.Param("productId"), c.Param("stage"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rate, nil)
}

// List godoc
// @Summary List configured pay rates
// @Tags PayRates
// @Produce json
// @Param productId query string false "Product filter"
// @Success 200 {object} response.Envelope
// @Router /pay-rates [get]
func (h *PayRateHandler) List(c *gin.Context) {
	var filter models.PayRateFilter
	filter.ProductID = c.Query("productId")
	filter.Stage = models.Stage(c.Query("stage"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	rates, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rates, paginationMeta(filter.Page, filter.PageSize, total))
}

// Delete godoc
// @Summary Remove a pay rate
// @Tags PayRates
// @Param id path string true "Pay rate ID"
// @Success 204
// @Router /pay-rates/{id} [delete]
func (h *PayRateHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
