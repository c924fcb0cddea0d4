package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
)

type payRateStore interface {
	FindByProductStage(ctx context.Context, productID string, stage models.Stage) (*models.PayRate, error)
	Upsert(ctx context.Context, rate *models.PayRate) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.PayRateFilter) ([]models.PayRate, int, error)
}

// PayRateService manages the per-(product, stage) pay rate table. Rate
// changes affect future deliveries only; frozen item amounts stay put.
type PayRateService struct {
	repo      payRateStore
	products  jobProductReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPayRateService builds a PayRateService with sane defaults.
func NewPayRateService(repo payRateStore, products jobProductReader, validate *validator.Validate, logger *zap.Logger) *PayRateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayRateService{repo: repo, products: products, validator: validate, logger: logger}
}

// Upsert sets the rate for a product and stage.
func (s *PayRateService) Upsert(ctx context.Context, req dto.UpsertPayRateRequest) (*models.PayRate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pay rate payload")
	}
	stage, err := models.ParseStage(req.Stage)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if stage == models.StageFinished {
		return nil, appErrors.Clone(appErrors.ErrValidation, "finished goods carry no pay rate")
	}
	rate, err := decimal.NewFromString(req.RatePerUnit)
	if err != nil || rate.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid rate %q", req.RatePerUnit))
	}
	if _, err := s.products.FindByID(ctx, req.ProductID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}

	payRate := &models.PayRate{ProductID: req.ProductID, Stage: stage, RatePerUnit: rate}
	if err := s.repo.Upsert(ctx, payRate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save pay rate")
	}
	return payRate, nil
}

// Resolve returns the configured rate for a tuple, nil for an unset one.
func (s *PayRateService) Resolve(ctx context.Context, productID, stageRaw string) (*models.PayRate, error) {
	stage, err := models.ParseStage(stageRaw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	rate, err := s.repo.FindByProductStage(ctx, productID, stage)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve pay rate")
	}
	return rate, nil
}

// Delete removes a rate; subsequent deliveries at the tuple pay zero.
func (s *PayRateService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "pay rate not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete pay rate")
	}
	return nil
}

// List returns rates matching the filter.
func (s *PayRateService) List(ctx context.Context, filter models.PayRateFilter) ([]models.PayRate, int, error) {
	rates, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pay rates")
	}
	return rates, total, nil
}
