package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
)

type productStore interface {
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, exec sqlx.ExtContext, product *models.Product) error
	FindByID(ctx context.Context, id string) (*models.Product, error)
	ExistsByTuple(ctx context.Context, productType, animalType, sizeCategory, excludeID string) (bool, error)
	List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error)
	InsertPriceHistory(ctx context.Context, exec sqlx.ExtContext, history *models.PriceHistory) error
	ListPriceHistory(ctx context.Context, productID string) ([]models.PriceHistory, error)
}

// ProductService manages the catalog. Base price changes are written
// together with their price history row.
type ProductService struct {
	repo      productStore
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProductService builds a ProductService with sane defaults.
func NewProductService(repo productStore, tx txProvider, validate *validator.Validate, logger *zap.Logger) *ProductService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{repo: repo, tx: tx, validator: validate, logger: logger}
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil || price.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid price %q", raw)
	}
	return price, nil
}

// Create adds a catalog product with a unique identity tuple.
func (s *ProductService) Create(ctx context.Context, req dto.CreateProductRequest) (*models.Product, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product payload")
	}
	price, err := parsePrice(req.BasePrice)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	exists, err := s.repo.ExistsByTuple(ctx, req.ProductType, req.AnimalType, req.SizeCategory, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check product identity")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "product with this type, animal and size already exists")
	}

	product := &models.Product{
		ProductType:  req.ProductType,
		AnimalType:   req.AnimalType,
		SizeCategory: req.SizeCategory,
		BasePrice:    price,
		Active:       true,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create product")
	}
	return product, nil
}

// Update persists product changes; a base price change appends history.
func (s *ProductService) Update(ctx context.Context, id string, req dto.UpdateProductRequest, changedBy string) (_ *models.Product, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product payload")
	}
	price, err := parsePrice(req.BasePrice)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}

	exists, err := s.repo.ExistsByTuple(ctx, req.ProductType, req.AnimalType, req.SizeCategory, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check product identity")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "product with this type, animal and size already exists")
	}

	oldPrice := product.BasePrice
	product.ProductType = req.ProductType
	product.AnimalType = req.AnimalType
	product.SizeCategory = req.SizeCategory
	product.BasePrice = price
	if req.Active != nil {
		product.Active = *req.Active
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

	if err = s.repo.Update(ctx, tx, product); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update product")
		return nil, err
	}
	if !oldPrice.Equal(price) {
		history := &models.PriceHistory{
			ProductID: product.ID,
			OldPrice:  oldPrice,
			NewPrice:  price,
			ChangedBy: changedBy,
			Reason:    req.PriceReason,
		}
		if err = s.repo.InsertPriceHistory(ctx, tx, history); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record price change")
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit product update")
		return nil, err
	}
	return product, nil
}

// Get loads one product.
func (s *ProductService) Get(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}
	return product, nil
}

// List returns catalog products matching the filter.
func (s *ProductService) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	products, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list products")
	}
	return products, total, nil
}

// PriceHistory returns the recorded base price changes for a product.
func (s *ProductService) PriceHistory(ctx context.Context, productID string) ([]models.PriceHistory, error) {
	if _, err := s.Get(ctx, productID); err != nil {
		return nil, err
	}
	history, err := s.repo.ListPriceHistory(ctx, productID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list price history")
	}
	return history, nil
}
