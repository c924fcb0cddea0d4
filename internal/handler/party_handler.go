package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
	"github.com/noah-isme/atelier-api/pkg/response"
)

type artisanService interface {
	Create(ctx context.Context, req dto.UpsertArtisanRequest) (*models.Artisan, error)
	Update(ctx context.Context, id string, req dto.UpsertArtisanRequest) (*models.Artisan, error)
	Get(ctx context.Context, id string) (*models.Artisan, error)
	List(ctx context.Context, filter models.ArtisanFilter) ([]models.Artisan, int, error)
	Stats(ctx context.Context, id string) (*models.ArtisanStats, error)
}

type customerService interface {
	Create(ctx context.Context, req dto.UpsertCustomerRequest) (*models.Customer, error)
	Update(ctx context.Context, id string, req dto.UpsertCustomerRequest) (*models.Customer, error)
	Get(ctx context.Context, id string) (*models.Customer, error)
	List(ctx context.Context, filter models.CustomerFilter) ([]models.Customer, int, error)
	Delete(ctx context.Context, id string) error
}

// ArtisanHandler exposes artisan registry endpoints.
type ArtisanHandler struct {
	service artisanService
}

// NewArtisanHandler builds a new handler.
func NewArtisanHandler(service artisanService) *ArtisanHandler {
	return &ArtisanHandler{service: service}
}

// Create godoc
// @Summary Register an artisan
// @Tags Artisans
// @Accept json
// @Produce json
// @Param payload body dto.UpsertArtisanRequest true "Artisan payload"
// @Success 201 {object} response.Envelope
// @Router /artisans [post]
func (h *ArtisanHandler) Create(c *gin.Context) {
	var req dto.UpsertArtisanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid artisan payload"))
		return
	}
	artisan, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, artisan)
}

// Update godoc
// @Summary Update an artisan
// @Tags Artisans
// @Accept json
// @Produce json
// @Param id path string true "Artisan ID"
// @Param payload body dto.UpsertArtisanRequest true "Artisan payload"
// @Success 200 {object} response.Envelope
// @Router /artisans/{id} [put]
func (h *ArtisanHandler) Update(c *gin.Context) {
	var req dto.UpsertArtisanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid artisan payload"))
		return
	}
	artisan, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, artisan, nil)
}

// Get godoc
// @Summary Get an artisan
// @Tags Artisans
// @Produce json
// @Param id path string true "Artisan ID"
// @Success 200 {object} response.Envelope
// @Router /artisans/{id} [get]
func (h *ArtisanHandler) Get(c *gin.Context) {
	artisan, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, artisan, nil)
}

// List godoc
// @Summary List artisans
// @Tags Artisans
// @Produce json
// @Param active query bool false "Active filter"
// @Param search query string false "Name search"
// @Success 200 {object} response.Envelope
// @Router /artisans [get]
func (h *ArtisanHandler) List(c *gin.Context) {
	var filter models.ArtisanFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if active := c.Query("active"); active != "" {
		if active == "true" {
			v := true
			filter.Active = &v
		} else if active == "false" {
			v := false
			filter.Active = &v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	artisans, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, artisans, paginationMeta(filter.Page, filter.PageSize, total))
}

// Stats godoc
// @Summary Work and pay history for an artisan
// @Tags Artisans
// @Produce json
// @Param id path string true "Artisan ID"
// @Success 200 {object} response.Envelope
// @Router /artisans/{id}/stats [get]
func (h *ArtisanHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// CustomerHandler exposes customer registry endpoints.
type CustomerHandler struct {
	service customerService
}

// NewCustomerHandler builds a new handler.
func NewCustomerHandler(service customerService) *CustomerHandler {
	return &CustomerHandler{service: service}
}

// Create godoc
// @Summary Register a customer
// @Tags Customers
// @Accept json
// @Produce json
// @Param payload body dto.UpsertCustomerRequest true "Customer payload"
// @Success 201 {object} response.Envelope
// @Router /customers [post]
func (h *CustomerHandler) Create(c *gin.Context) {
	var req dto.UpsertCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid customer payload"))
		return
	}
	customer, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, customer)
}

// Update godoc
// @Summary Update a customer
// @Tags Customers
// @Accept json
// @Produce json
// @Param id path string true "Customer ID"
// @Param payload body dto.UpsertCustomerRequest true "Customer payload"
// @Success 200 {object} response.Envelope
// @Router /customers/{id} [put]
func (h *CustomerHandler) Update(c *gin.Context) {
	var req dto.UpsertCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid customer payload"))
		return
	}
	customer, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, customer, nil)
}

// Get godoc
// @Summary Get a customer
// @Tags Customers
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {object} response.Envelope
// @Router /customers/{id} [get]
func (h *CustomerHandler) Get(c *gin.Context) {
	customer, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, customer, nil)
}

// List godoc
// @Summary List customers
// @Tags Customers
// @Produce json
// @Param search query string false "Name search"
// @Success 200 {object} response.Envelope
// @Router /customers [get]
func (h *CustomerHandler) List(c *gin.Context) {
	var filter models.CustomerFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	customers, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, customers, paginationMeta(filter.Page, filter.PageSize, total))
}

// Delete godoc
// @Summary Remove a customer with no orders
// @Tags Customers
// @Param id path string true "Customer ID"
// @Success 204
// @Router /customers/{id} [delete]
func (h *CustomerHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
