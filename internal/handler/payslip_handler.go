package handler

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
	"github.com/noah-isme/atelier-api/pkg/response"
)

type payslipService interface {
	Generate(ctx context.Context, req dto.GeneratePayslipRequest) ([]models.Payslip, error)
	Get(ctx context.Context, payslipID string) (*models.Payslip, []models.PayslipItem, error)
	List(ctx context.Context, filter models.PayslipFilter) ([]models.Payslip, int, error)
	Delete(ctx context.Context, payslipID string) error
	DownloadURL(ctx context.Context, payslipID string) (*dto.PayslipDownload, error)
	OpenDocument(token string) (*os.File, error)
}

// PayslipHandler exposes payslip generation and retrieval endpoints.
type PayslipHandler struct {
	service payslipService
}

// NewPayslipHandler builds a new handler.
func NewPayslipHandler(service payslipService) *PayslipHandler {
	return &PayslipHandler{service: service}
}

// Generate godoc
// @Summary Generate payslips for an artisan or a stage
// @Tags Payslips
// @Accept json
// @Produce json
// @Param payload body dto.GeneratePayslipRequest true "Selection payload"
// @Success 201 {object} response.Envelope
// @Router /payslips [post]
func (h *PayslipHandler) Generate(c *gin.Context) {
	var req dto.GeneratePayslipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payslip payload"))
		return
	}
	payslips, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payslips)
}

// Get godoc
// @Summary Get a payslip with its frozen payment lines
// @Tags Payslips
// @Produce json
// @Param id path string true "Payslip ID"
// @Success 200 {object} response.Envelope
// @Router /payslips/{id} [get]
func (h *PayslipHandler) Get(c *gin.Context) {
	payslip, items, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"payslip": payslip, "items": items}, nil)
}

// List godoc
// @Summary List payslips
// @Tags Payslips
// @Produce json
// @Param artisanId query string false "Artisan filter"
// @Param stage query string false "Stage filter"
// @Success 200 {object} response.Envelope
// @Router /payslips [get]
func (h *PayslipHandler) List(c *gin.Context) {
	var filter models.PayslipFilter
	filter.ArtisanID = c.Query("artisanId")
	filter.Stage = models.Stage(c.Query("stage"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	payslips, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payslips, paginationMeta(filter.Page, filter.PageSize, total))
}

// Delete godoc
// @Summary Reverse a payslip, releasing its items
// @Tags Payslips
// @Param id path string true "Payslip ID"
// @Success 204
// @Router /payslips/{id} [delete]
func (h *PayslipHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DownloadURL godoc
// @Summary Issue a signed download link for the rendered document
// @Tags Payslips
// @Produce json
// @Param id path string true "Payslip ID"
// @Success 200 {object} response.Envelope
// @Router /payslips/{id}/download [get]
func (h *PayslipHandler) DownloadURL(c *gin.Context) {
	download, err := h.service.DownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, download, nil)
}

// Download streams the PDF for a valid signed token. The route itself is
// unauthenticated; the token carries the authorization.
func (h *PayslipHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.service.OpenDocument(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `attachment; filename="payslip.pdf"`)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
