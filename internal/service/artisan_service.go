package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
)

type artisanStore interface {
	Create(ctx context.Context, artisan *models.Artisan) error
	Update(ctx context.Context, artisan *models.Artisan) error
	FindByID(ctx context.Context, id string) (*models.Artisan, error)
	List(ctx context.Context, filter models.ArtisanFilter) ([]models.Artisan, int, error)
	Stats(ctx context.Context, artisanID string) (*models.ArtisanStats, error)
}

// ArtisanService manages artisan records and their work statistics.
type ArtisanService struct {
	repo      artisanStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewArtisanService builds an ArtisanService with sane defaults.
func NewArtisanService(repo artisanStore, validate *validator.Validate, logger *zap.Logger) *ArtisanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtisanService{repo: repo, validator: validate, logger: logger}
}

// Create registers an artisan.
func (s *ArtisanService) Create(ctx context.Context, req dto.UpsertArtisanRequest) (*models.Artisan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid artisan payload")
	}
	artisan := &models.Artisan{Name: req.Name, Phone: req.Phone, Active: true}
	if req.Active != nil {
		artisan.Active = *req.Active
	}
	if err := s.repo.Create(ctx, artisan); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create artisan")
	}
	return artisan, nil
}

// Update persists artisan changes.
func (s *ArtisanService) Update(ctx context.Context, id string, req dto.UpsertArtisanRequest) (*models.Artisan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid artisan payload")
	}
	artisan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	artisan.Name = req.Name
	artisan.Phone = req.Phone
	if req.Active != nil {
		artisan.Active = *req.Active
	}
	if err := s.repo.Update(ctx, artisan); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update artisan")
	}
	return artisan, nil
}

// Get loads one artisan.
func (s *ArtisanService) Get(ctx context.Context, id string) (*models.Artisan, error) {
	artisan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "artisan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load artisan")
	}
	return artisan, nil
}

// List returns artisans matching the filter.
func (s *ArtisanService) List(ctx context.Context, filter models.ArtisanFilter) ([]models.Artisan, int, error) {
	artisans, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list artisans")
	}
	return artisans, total, nil
}

// Stats aggregates the artisan's work history and pending pay.
func (s *ArtisanService) Stats(ctx context.Context, id string) (*models.ArtisanStats, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	stats, err := s.repo.Stats(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load artisan stats")
	}
	return stats, nil
}
