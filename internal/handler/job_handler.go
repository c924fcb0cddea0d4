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

type jobService interface {
	Create(ctx context.Context, req dto.CreateJobRequest, createdBy string) (*models.Job, error)
	AddItem(ctx context.Context, jobID string, req dto.AddJobItemRequest) (*models.JobItem, error)
	RecordDelivery(ctx context.Context, jobItemID string, req dto.RecordDeliveryRequest) (*models.Delivery, error)
	DeleteDelivery(ctx context.Context, deliveryID string) error
	DeleteItem(ctx context.Context, jobItemID string) error
	ResetItemPayslip(ctx context.Context, jobItemID string) error
	Get(ctx context.Context, jobID string) (*models.Job, error)
	List(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error)
	ListItems(ctx context.Context, filter models.JobItemFilter) ([]models.JobItem, int, error)
	Dashboard(ctx context.Context) (*models.JobDashboard, error)
	Summary(ctx context.Context, jobID string) (*models.JobSummary, error)
}

// JobHandler exposes job, job item and delivery endpoints.
type JobHandler struct {
	service jobService
}

// NewJobHandler builds a new handler.
func NewJobHandler(service jobService) *JobHandler {
	return &JobHandler{service: service}
}

func paginationMeta(page, size, total int) *models.Pagination {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

// Create godoc
// @Summary Open a job with its artisan assignments
// @Tags Jobs
// @Accept json
// @Produce json
// @Param payload body dto.CreateJobRequest true "Job payload"
// @Success 201 {object} response.Envelope
// @Router /jobs [post]
func (h *JobHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid job payload"))
		return
	}
	job, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, job)
}

// Get godoc
// @Summary Get a job with items and deliveries
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id} [get]
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// List godoc
// @Summary List jobs
// @Tags Jobs
// @Produce json
// @Param status query string false "Job status filter"
// @Param targetStage query string false "Target stage filter"
// @Param search query string false "Artisan name search"
// @Success 200 {object} response.Envelope
// @Router /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	var filter models.JobFilter
	filter.Status = models.JobStatus(c.Query("status"))
	filter.TargetStage = models.Stage(c.Query("targetStage"))
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	jobs, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, paginationMeta(filter.Page, filter.PageSize, total))
}

// Summary godoc
// @Summary Per-job report with item totals and artisan aggregates
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/summary [get]
func (h *JobHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Dashboard godoc
// @Summary Job counts and payment totals
// @Tags Jobs
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /jobs/dashboard [get]
func (h *JobHandler) Dashboard(c *gin.Context) {
	dashboard, err := h.service.Dashboard(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}

// AddItem godoc
// @Summary Append an item to a job
// @Tags Jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param payload body dto.AddJobItemRequest true "Item payload"
// @Success 201 {object} response.Envelope
// @Router /jobs/{id}/items [post]
func (h *JobHandler) AddItem(c *gin.Context) {
	var req dto.AddJobItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid job item payload"))
		return
	}
	item, err := h.service.AddItem(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// ListItems godoc
// @Summary List job items across jobs
// @Tags Jobs
// @Produce json
// @Param artisanId query string false "Artisan filter"
// @Param productId query string false "Product filter"
// @Param pending query bool false "Only items awaiting deliveries"
// @Success 200 {object} response.Envelope
// @Router /job-items [get]
func (h *JobHandler) ListItems(c *gin.Context) {
	var filter models.JobItemFilter
	filter.ArtisanID = c.Query("artisanId")
	filter.ProductID = c.Query("productId")
	filter.PendingDelivery = c.Query("pending") == "true"
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	items, total, err := h.service.ListItems(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, paginationMeta(filter.Page, filter.PageSize, total))
}

// DeleteItem godoc
// @Summary Remove a delivery-free job item
// @Tags Jobs
// @Param id path string true "Job item ID"
// @Success 204
// @Router /job-items/{id} [delete]
func (h *JobHandler) DeleteItem(c *gin.Context) {
	if err := h.service.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ResetItemPayslip godoc
// @Summary Release a consumed job item back into the payable pool
// @Tags Jobs
// @Produce json
// @Param id path string true "Job item ID"
// @Success 200 {object} response.Envelope
// @Router /job-items/{id}/reset-payslip [post]
func (h *JobHandler) ResetItemPayslip(c *gin.Context) {
	if err := h.service.ResetItemPayslip(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"detail": "payslip status reset"}, nil)
}

// RecordDelivery godoc
// @Summary Record a delivery against a job item
// @Tags Deliveries
// @Accept json
// @Produce json
// @Param id path string true "Job item ID"
// @Param payload body dto.RecordDeliveryRequest true "Delivery payload"
// @Success 201 {object} response.Envelope
// @Router /job-items/{id}/deliveries [post]
func (h *JobHandler) RecordDelivery(c *gin.Context) {
	var req dto.RecordDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid delivery payload"))
		return
	}
	delivery, err := h.service.RecordDelivery(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, delivery)
}

// DeleteDelivery godoc
// @Summary Reverse a recorded delivery
// @Tags Deliveries
// @Param id path string true "Delivery ID"
// @Success 204
// @Router /deliveries/{id} [delete]
func (h *JobHandler) DeleteDelivery(c *gin.Context) {
	if err := h.service.DeleteDelivery(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
