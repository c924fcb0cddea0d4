package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/middleware"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
)

type jobServiceMock struct {
	createResp     *models.Job
	createErr      error
	deliveryResp   *models.Delivery
	deliveryErr    error
	listResp       []models.Job
	listTotal      int
	listErr        error
	lastCreatedBy  string
	lastFilter     models.JobFilter
	lastItemID     string
	createCalled   bool
	deliveryCalled bool
	listCalled     bool
	resetItemID    string
	resetErr       error
}

func (m *jobServiceMock) Create(ctx context.Context, req dto.CreateJobRequest, createdBy string) (*models.Job, error) {
	m.createCalled = true
	m.lastCreatedBy = createdBy
	return m.createResp, m.createErr
}

func (m *jobServiceMock) AddItem(ctx context.Context, jobID string, req dto.AddJobItemRequest) (*models.JobItem, error) {
	return nil, nil
}

func (m *jobServiceMock) RecordDelivery(ctx context.Context, jobItemID string, req dto.RecordDeliveryRequest) (*models.Delivery, error) {
	m.deliveryCalled = true
	m.lastItemID = jobItemID
	return m.deliveryResp, m.deliveryErr
}

func (m *jobServiceMock) DeleteDelivery(ctx context.Context, deliveryID string) error { return nil }

func (m *jobServiceMock) DeleteItem(ctx context.Context, jobItemID string) error { return nil }

func (m *jobServiceMock) ResetItemPayslip(ctx context.Context, jobItemID string) error {
	m.resetItemID = jobItemID
	return m.resetErr
}

func (m *jobServiceMock) Get(ctx context.Context, jobID string) (*models.Job, error) {
	return nil, nil
}

func (m *jobServiceMock) List(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error) {
	m.listCalled = true
	m.lastFilter = filter
	return m.listResp, m.listTotal, m.listErr
}

func (m *jobServiceMock) ListItems(ctx context.Context, filter models.JobItemFilter) ([]models.JobItem, int, error) {
	return nil, 0, nil
}

func (m *jobServiceMock) Dashboard(ctx context.Context) (*models.JobDashboard, error) {
	return nil, nil
}

func (m *jobServiceMock) Summary(ctx context.Context, jobID string) (*models.JobSummary, error) {
	return nil, nil
}

func TestJobHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &jobServiceMock{
		createResp: &models.Job{ID: "job-1", Status: models.JobInProgress},
	}
	handler := NewJobHandler(mockSvc)

	payload, _ := json.Marshal(dto.CreateJobRequest{
		TargetStage: "SANDING",
		Items: []dto.CreateJobItemRequest{
			{ArtisanID: "art-1", ProductID: "prod-1", QuantityOrdered: 10},
		},
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleClerk})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.createCalled)
	assert.Equal(t, "user-1", mockSvc.lastCreatedBy)
}

func TestJobHandlerCreateWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &jobServiceMock{}
	handler := NewJobHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, mockSvc.createCalled)
}

func TestJobHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewJobHandler(&jobServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"targetStage":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleClerk})

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobHandlerListParsesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &jobServiceMock{
		listResp:  []models.Job{{ID: "job-1"}},
		listTotal: 1,
	}
	handler := NewJobHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/jobs?status=IN_PROGRESS&targetStage=SANDING&page=2&limit=5", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.listCalled)
	assert.Equal(t, models.JobInProgress, mockSvc.lastFilter.Status)
	assert.Equal(t, models.StageSanding, mockSvc.lastFilter.TargetStage)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
	assert.Equal(t, 5, mockSvc.lastFilter.PageSize)
}

func TestJobHandlerResetItemPayslip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &jobServiceMock{}
	handler := NewJobHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/job-items/item-1/reset-payslip", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "item-1"}}

	handler.ResetItemPayslip(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "item-1", mockSvc.resetItemID)
}

func TestJobHandlerRecordDeliveryServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &jobServiceMock{
		deliveryErr: appErrors.ErrOverDelivery,
	}
	handler := NewJobHandler(mockSvc)

	payload, _ := json.Marshal(dto.RecordDeliveryRequest{QuantityReceived: 5, QuantityAccepted: 5})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/job-items/item-1/deliveries", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "item-1"}}

	handler.RecordDelivery(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, mockSvc.deliveryCalled)
	assert.Equal(t, "item-1", mockSvc.lastItemID)

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "OVER_DELIVERY", envelope.Error.Code)
}
