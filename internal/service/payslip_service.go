package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/atelier-api/internal/dto"
	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
	"github.com/noah-isme/atelier-api/pkg/export"
)

type payslipStore interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, payslip *models.Payslip, items []models.PayslipItem) error
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Payslip, error)
	FindByID(ctx context.Context, id string) (*models.Payslip, error)
	ItemIDs(ctx context.Context, exec sqlx.ExtContext, payslipID string) ([]string, error)
	ListItems(ctx context.Context, payslipID string) ([]models.PayslipItem, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	List(ctx context.Context, filter models.PayslipFilter) ([]models.Payslip, int, error)
}

type payslipItemStore interface {
	PayableItems(ctx context.Context, exec sqlx.ExtContext, artisanID string, stage *models.Stage, periodStart, periodEnd time.Time) ([]models.JobItem, error)
	SetItemsPayslipGenerated(ctx context.Context, exec sqlx.ExtContext, itemIDs []string, generated bool) error
	FindJobByID(ctx context.Context, id string) (*models.Job, error)
}

type payslipArtisanReader interface {
	FindByID(ctx context.Context, id string) (*models.Artisan, error)
	List(ctx context.Context, filter models.ArtisanFilter) ([]models.Artisan, int, error)
}

type payslipProductReader interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
}

type payslipRenderer interface {
	Render(doc export.PayslipDocument) ([]byte, error)
}

type payslipStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type payslipURLSigner interface {
	Generate(docID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (docID, relPath string, expiresAt time.Time, err error)
}

// PayslipService generates, lists and reverses payslips. Generation is
// atomic: the consumed items are flagged in the same transaction that stores
// the payslip, so an item can never be paid twice.
type PayslipService struct {
	repo      payslipStore
	items     payslipItemStore
	artisans  payslipArtisanReader
	products  payslipProductReader
	renderer  payslipRenderer
	storage   payslipStorage
	signer    payslipURLSigner
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPayslipService builds a PayslipService with sane defaults.
func NewPayslipService(
	repo payslipStore,
	items payslipItemStore,
	artisans payslipArtisanReader,
	products payslipProductReader,
	renderer payslipRenderer,
	storage payslipStorage,
	signer payslipURLSigner,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
) *PayslipService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayslipService{
		repo:      repo,
		items:     items,
		artisans:  artisans,
		products:  products,
		renderer:  renderer,
		storage:   storage,
		signer:    signer,
		tx:        tx,
		validator: validate,
		logger:    logger,
	}
}

const payslipDateLayout = "2006-01-02"

// parsePeriod turns the inclusive date strings into a [start, end] window
// where the end lands on the last second of its day.
func parsePeriod(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(payslipDateLayout, startRaw, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid period start %q", startRaw)
	}
	end, err := time.ParseInLocation(payslipDateLayout, endRaw, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid period end %q", endRaw)
	}
	end = end.Add(24*time.Hour - time.Second)
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("period end precedes period start")
	}
	return start, end, nil
}

// Generate creates payslips for the selection. An artisan selector pays that
// artisan alone; a stage selector pays every artisan with payable work at
// that stage. Artisans without payable items yield no payslip; an empty
// overall result is a not-found error, which makes a retry of an already
// consumed period harmless.
func (s *PayslipService) Generate(ctx context.Context, req dto.GeneratePayslipRequest) ([]models.Payslip, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payslip payload")
	}
	if (req.ArtisanID == "") == (req.Stage == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exactly one of artisanId or stage must be provided")
	}
	start, end, err := parsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	var stage *models.Stage
	if req.Stage != "" {
		parsed, err := models.ParseStage(req.Stage)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		stage = &parsed
	}

	var targets []models.Artisan
	if req.ArtisanID != "" {
		artisan, err := s.artisans.FindByID(ctx, req.ArtisanID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "artisan not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load artisan")
		}
		targets = []models.Artisan{*artisan}
	} else {
		// Page through the full roster; a stage run must consider every
		// artisan, not just the first page.
		filter := models.ArtisanFilter{Page: 1, PageSize: 100}
		for {
			batch, total, err := s.artisans.List(ctx, filter)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list artisans")
			}
			targets = append(targets, batch...)
			if len(batch) == 0 || len(targets) >= total {
				break
			}
			filter.Page++
		}
	}

	var payslips []models.Payslip
	for _, artisan := range targets {
		payslip, err := s.generateForArtisan(ctx, artisan, stage, start, end)
		if err != nil {
			return nil, err
		}
		if payslip != nil {
			payslips = append(payslips, *payslip)
		}
	}
	if len(payslips) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no payable job items in the selected period")
	}
	return payslips, nil
}

func (s *PayslipService) generateForArtisan(ctx context.Context, artisan models.Artisan, stage *models.Stage, start, end time.Time) (_ *models.Payslip, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	items, err := s.items.PayableItems(ctx, tx, artisan.ID, stage, start, end)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payable items")
		return nil, err
	}
	if len(items) == 0 {
		_ = tx.Rollback()
		return nil, nil
	}

	total := decimal.Zero
	itemIDs := make([]string, 0, len(items))
	payslipItems := make([]models.PayslipItem, 0, len(items))
	lines := make([]export.PayslipLine, 0, len(items))
	for _, item := range items {
		total = total.Add(item.FinalPayment)
		itemIDs = append(itemIDs, item.ID)
		payslipItems = append(payslipItems, models.PayslipItem{JobItemID: item.ID, Payment: item.FinalPayment})

		line, lerr := s.buildLine(ctx, item)
		if lerr != nil {
			err = lerr
			return nil, err
		}
		lines = append(lines, line)
	}

	payslip := &models.Payslip{
		ArtisanID:    artisan.ID,
		Stage:        stage,
		PeriodStart:  start,
		PeriodEnd:    end,
		TotalPayment: total,
		ArtisanName:  artisan.Name,
	}

	stageLabel := ""
	if stage != nil {
		stageLabel = string(*stage)
	}
	pdf, err := s.renderer.Render(export.PayslipDocument{
		ArtisanName:  artisan.Name,
		Stage:        stageLabel,
		PeriodStart:  start.Format(payslipDateLayout),
		PeriodEnd:    end.Format(payslipDateLayout),
		Lines:        lines,
		TotalPayment: total.StringFixed(2),
	})
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render payslip document")
		return nil, err
	}

	filename := fmt.Sprintf("payslip-%s-%s.pdf", artisan.ID, start.Format("20060102"))
	path, err := s.storage.Save(filename, pdf)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store payslip document")
		return nil, err
	}
	payslip.DocumentPath = path

	if err = s.repo.Insert(ctx, tx, payslip, payslipItems); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store payslip")
		return nil, err
	}
	if err = s.items.SetItemsPayslipGenerated(ctx, tx, itemIDs, true); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark items consumed")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit payslip")
		return nil, err
	}
	return payslip, nil
}

func (s *PayslipService) buildLine(ctx context.Context, item models.JobItem) (export.PayslipLine, error) {
	product, err := s.products.FindByID(ctx, item.ProductID)
	if err != nil {
		return export.PayslipLine{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}
	unitRate := decimal.Zero
	if item.QuantityAccepted > 0 {
		unitRate = item.FinalPayment.Div(decimal.NewFromInt(int64(item.QuantityAccepted))).Round(2)
	}
	return export.PayslipLine{
		JobID:       item.JobID,
		Product:     product.Label(),
		QtyOrdered:  item.QuantityOrdered,
		QtyAccepted: item.QuantityAccepted,
		UnitRate:    unitRate.StringFixed(2),
		Payment:     item.FinalPayment.StringFixed(2),
	}, nil
}

// Delete reverses a payslip: the consumed items become payable again and
// the stored document is removed.
func (s *PayslipService) Delete(ctx context.Context, payslipID string) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	payslip, err := s.repo.LockForUpdate(ctx, tx, payslipID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "payslip not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payslip")
	}

	itemIDs, err := s.repo.ItemIDs(ctx, tx, payslipID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payslip items")
		return err
	}
	if err = s.items.SetItemsPayslipGenerated(ctx, tx, itemIDs, false); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release consumed items")
		return err
	}
	if err = s.repo.Delete(ctx, tx, payslipID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete payslip")
		return err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit payslip removal")
		return err
	}

	if derr := s.storage.Delete(payslip.DocumentPath); derr != nil {
		s.logger.Warn("failed to remove payslip document",
			zap.String("payslipId", payslipID),
			zap.Error(derr))
	}
	return nil
}

// Get loads one payslip with its frozen payment lines.
func (s *PayslipService) Get(ctx context.Context, payslipID string) (*models.Payslip, []models.PayslipItem, error) {
	payslip, err := s.repo.FindByID(ctx, payslipID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "payslip not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payslip")
	}
	items, err := s.repo.ListItems(ctx, payslipID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payslip items")
	}
	return payslip, items, nil
}

// List returns payslips matching the filter.
func (s *PayslipService) List(ctx context.Context, filter models.PayslipFilter) ([]models.Payslip, int, error) {
	payslips, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payslips")
	}
	return payslips, total, nil
}

// DownloadURL issues a signed, short-lived link for the rendered document.
func (s *PayslipService) DownloadURL(ctx context.Context, payslipID string) (*dto.PayslipDownload, error) {
	payslip, err := s.repo.FindByID(ctx, payslipID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payslip not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payslip")
	}
	token, expiresAt, err := s.signer.Generate(payslip.ID, payslip.DocumentPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &dto.PayslipDownload{PayslipID: payslip.ID, URL: token, ExpiresAt: expiresAt.Unix()}, nil
}

// OpenDocument validates a signed token and opens the backing file.
func (s *PayslipService) OpenDocument(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payslip document not found")
	}
	return file, nil
}
