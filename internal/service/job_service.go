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

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type jobStore interface {
	InsertJob(ctx context.Context, exec sqlx.ExtContext, job *models.Job) error
	InsertItem(ctx context.Context, exec sqlx.ExtContext, item *models.JobItem) error
	LockItem(ctx context.Context, exec sqlx.ExtContext, id string) (*models.JobItem, error)
	FindItemByID(ctx context.Context, id string) (*models.JobItem, error)
	UpdateItemProgress(ctx context.Context, exec sqlx.ExtContext, item *models.JobItem) error
	SetItemsPayslipGenerated(ctx context.Context, exec sqlx.ExtContext, itemIDs []string, generated bool) error
	DeleteItem(ctx context.Context, exec sqlx.ExtContext, id string) error
	LockJob(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Job, error)
	FindJobByID(ctx context.Context, id string) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, exec sqlx.ExtContext, jobID string, status models.JobStatus) error
	DeleteJob(ctx context.Context, exec sqlx.ExtContext, id string) error
	ItemTotals(ctx context.Context, exec sqlx.ExtContext, jobID string) (*models.JobItemTotals, error)
	ListItemsByJob(ctx context.Context, jobID string) ([]models.JobItem, error)
	ListItems(ctx context.Context, filter models.JobItemFilter) ([]models.JobItem, int, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error)
	InsertDelivery(ctx context.Context, exec sqlx.ExtContext, delivery *models.Delivery) error
	LockDelivery(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Delivery, error)
	DeleteDelivery(ctx context.Context, exec sqlx.ExtContext, id string) error
	ListDeliveries(ctx context.Context, jobItemID string) ([]models.Delivery, error)
	DeliverySums(ctx context.Context, exec sqlx.ExtContext, jobItemID string) (received, accepted int, err error)
	Dashboard(ctx context.Context) (*models.JobDashboard, error)
	ArtisanSummary(ctx context.Context, jobID string) ([]models.JobArtisanSummary, error)
}

type jobLedgerStore interface {
	Credit(ctx context.Context, exec sqlx.ExtContext, productID string, stage models.Stage, quantity int, unitCost decimal.Decimal) (decimal.Decimal, error)
	Debit(ctx context.Context, exec sqlx.ExtContext, productID string, stage models.Stage, quantity int) error
	Get(ctx context.Context, productID string, stage models.Stage) (*models.StageLedgerEntry, error)
}

type jobFinishedStockStore interface {
	Credit(ctx context.Context, exec sqlx.ExtContext, productID string, quantity int, unitCost decimal.Decimal) (decimal.Decimal, error)
	Debit(ctx context.Context, exec sqlx.ExtContext, productID string, quantity int) error
}

type jobProductReader interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
}

type jobArtisanReader interface {
	FindByID(ctx context.Context, id string) (*models.Artisan, error)
}

type payRateResolver interface {
	FindByProductStage(ctx context.Context, productID string, stage models.Stage) (*models.PayRate, error)
}

// stockCacheInvalidator drops cached stage quantities after a ledger write.
type stockCacheInvalidator interface {
	InvalidateQuantities(ctx context.Context, productID string)
}

// JobService orchestrates the job, job item and delivery lifecycle,
// including stock reservation at creation and stage ledger credits on
// delivery.
type JobService struct {
	repo       jobStore
	ledger     jobLedgerStore
	finished   jobFinishedStockStore
	products   jobProductReader
	artisans   jobArtisanReader
	rates      payRateResolver
	stockCache stockCacheInvalidator
	tx         txProvider
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewJobService builds a JobService with sane defaults.
func NewJobService(
	repo jobStore,
	ledger jobLedgerStore,
	finished jobFinishedStockStore,
	products jobProductReader,
	artisans jobArtisanReader,
	rates payRateResolver,
	stockCache stockCacheInvalidator,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
) *JobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobService{
		repo:       repo,
		ledger:     ledger,
		finished:   finished,
		products:   products,
		artisans:   artisans,
		rates:      rates,
		stockCache: stockCache,
		tx:         tx,
		validator:  validate,
		logger:     logger,
	}
}

func (s *JobService) invalidateQuantities(ctx context.Context, productID string) {
	if s.stockCache == nil {
		return
	}
	s.stockCache.InvalidateQuantities(ctx, productID)
}

// resolveRate returns the per-unit pay rate for the tuple, zero when no rate
// is configured. The miss is logged so payroll gaps are visible.
func (s *JobService) resolveRate(ctx context.Context, productID string, stage models.Stage) (decimal.Decimal, error) {
	rate, err := s.rates.FindByProductStage(ctx, productID, stage)
	if err != nil {
		return decimal.Zero, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve pay rate")
	}
	if rate == nil {
		s.logger.Warn("no pay rate configured, payment defaults to zero",
			zap.String("productId", productID),
			zap.String("stage", string(stage)))
		return decimal.Zero, nil
	}
	return rate.RatePerUnit, nil
}

// Create opens a job with its items, reserving predecessor stock for every
// item inside one transaction. Any shortfall rolls the whole job back.
func (s *JobService) Create(ctx context.Context, req dto.CreateJobRequest, createdBy string) (_ *models.Job, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid job payload")
	}
	targetStage, err := models.ParseStage(req.TargetStage)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	catalog := make(map[string]*models.Product, len(req.Items))
	for _, item := range req.Items {
		if _, err := s.artisans.FindByID(ctx, item.ArtisanID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "artisan not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load artisan")
		}
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
		}
		catalog[item.ProductID] = product
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

	job := &models.Job{CreatedBy: createdBy, TargetStage: targetStage, Notes: req.Notes}
	if err = s.repo.InsertJob(ctx, tx, job); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create job")
		return nil, err
	}

	for _, line := range req.Items {
		var sourceStage *models.Stage
		sourceStage, err = ResolveSource(ctx, tx, s.ledger, line.ProductID, targetStage, line.QuantityOrdered)
		if err != nil {
			return nil, err
		}

		item := &models.JobItem{
			JobID:           job.ID,
			ArtisanID:       line.ArtisanID,
			ProductID:       line.ProductID,
			QuantityOrdered: line.QuantityOrdered,
			SourceStage:     sourceStage,
			OriginalAmount:  catalog[line.ProductID].BasePrice.Mul(decimal.NewFromInt(int64(line.QuantityOrdered))),
			FinalPayment:    decimal.Zero,
		}
		if err = s.repo.InsertItem(ctx, tx, item); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create job item")
			return nil, err
		}
		job.Items = append(job.Items, *item)
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit job")
		return nil, err
	}
	for _, item := range job.Items {
		if item.SourceStage != nil {
			s.invalidateQuantities(ctx, item.ProductID)
		}
	}
	return job, nil
}

// AddItem appends one item to an in-flight job, reserving stock like at
// creation time.
func (s *JobService) AddItem(ctx context.Context, jobID string, req dto.AddJobItemRequest) (_ *models.JobItem, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid job item payload")
	}
	if _, err := s.artisans.FindByID(ctx, req.ArtisanID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "artisan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load artisan")
	}
	product, err := s.products.FindByID(ctx, req.ProductID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
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

	job, err := s.repo.LockJob(ctx, tx, jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}

	sourceStage, err := ResolveSource(ctx, tx, s.ledger, req.ProductID, job.TargetStage, req.QuantityOrdered)
	if err != nil {
		return nil, err
	}

	item := &models.JobItem{
		JobID:           job.ID,
		ArtisanID:       req.ArtisanID,
		ProductID:       req.ProductID,
		QuantityOrdered: req.QuantityOrdered,
		SourceStage:     sourceStage,
		OriginalAmount:  product.BasePrice.Mul(decimal.NewFromInt(int64(req.QuantityOrdered))),
		FinalPayment:    decimal.Zero,
	}
	if err = s.repo.InsertItem(ctx, tx, item); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create job item")
		return nil, err
	}

	// Adding an unreceived item can pull a completed job back in flight.
	if err = s.refreshJobStatus(ctx, tx, job.ID); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit job item")
		return nil, err
	}
	if item.SourceStage != nil {
		s.invalidateQuantities(ctx, item.ProductID)
	}
	return item, nil
}

// RecordDelivery registers a receipt event against a job item: it validates
// cumulative quantities, credits accepted units to the target ledger at the
// product's base price, reprices the item and re-derives the job status.
func (s *JobService) RecordDelivery(ctx context.Context, jobItemID string, req dto.RecordDeliveryRequest) (_ *models.Delivery, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid delivery payload")
	}
	if req.QuantityAccepted > req.QuantityReceived {
		return nil, appErrors.Clone(appErrors.ErrValidation, "accepted quantity cannot exceed received quantity")
	}
	// A rejection reason is optional even when units are rejected; it is
	// only kept when the delivery actually rejected something.
	var rejection *models.RejectionReason
	if req.RejectionReason != nil {
		reason := models.RejectionReason(*req.RejectionReason)
		if !reason.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown rejection reason %q", *req.RejectionReason))
		}
		if req.QuantityAccepted < req.QuantityReceived {
			rejection = &reason
		}
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

	item, err := s.repo.LockItem(ctx, tx, jobItemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job item")
	}
	if item.QuantityReceived+req.QuantityReceived > item.QuantityOrdered {
		return nil, appErrors.Clone(appErrors.ErrOverDelivery,
			fmt.Sprintf("%d received, %d incoming, %d ordered", item.QuantityReceived, req.QuantityReceived, item.QuantityOrdered))
	}

	job, err := s.repo.LockJob(ctx, tx, item.JobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}

	delivery := &models.Delivery{
		JobItemID:        item.ID,
		QuantityReceived: req.QuantityReceived,
		QuantityAccepted: req.QuantityAccepted,
		RejectionReason:  rejection,
		Notes:            req.Notes,
	}
	if err = s.repo.InsertDelivery(ctx, tx, delivery); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record delivery")
		return nil, err
	}

	if req.QuantityAccepted > 0 {
		if err = s.creditTarget(ctx, tx, item.ProductID, job.TargetStage, req.QuantityAccepted); err != nil {
			return nil, err
		}
	}

	if err = s.repriceItem(ctx, tx, item, job.TargetStage, rejection); err != nil {
		return nil, err
	}
	if err = s.refreshJobStatus(ctx, tx, job.ID); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit delivery")
		return nil, err
	}
	if req.QuantityAccepted > 0 {
		s.invalidateQuantities(ctx, item.ProductID)
	}
	return delivery, nil
}

// DeleteDelivery reverses one receipt event. The stage credit is debited
// back, which fails when the stock was already drawn downstream; the
// original predecessor reservation is never restored here.
func (s *JobService) DeleteDelivery(ctx context.Context, deliveryID string) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	delivery, err := s.repo.LockDelivery(ctx, tx, deliveryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "delivery not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load delivery")
	}
	item, err := s.repo.LockItem(ctx, tx, delivery.JobItemID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job item")
	}
	if item.PayslipGenerated {
		return appErrors.ErrPayslipConsumed
	}
	job, err := s.repo.LockJob(ctx, tx, item.JobID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}

	if delivery.QuantityAccepted > 0 {
		if err = s.debitTarget(ctx, tx, item.ProductID, job.TargetStage, delivery.QuantityAccepted); err != nil {
			return err
		}
	}

	if err = s.repo.DeleteDelivery(ctx, tx, deliveryID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete delivery")
		return err
	}

	if err = s.repriceItem(ctx, tx, item, job.TargetStage, item.RejectionReason); err != nil {
		return err
	}
	if err = s.refreshJobStatus(ctx, tx, job.ID); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit delivery removal")
		return err
	}
	if delivery.QuantityAccepted > 0 {
		s.invalidateQuantities(ctx, item.ProductID)
	}
	return nil
}

// DeleteItem removes a delivery-free job item, restoring its reservation to
// the recorded source stage.
func (s *JobService) DeleteItem(ctx context.Context, jobItemID string) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	item, err := s.repo.LockItem(ctx, tx, jobItemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "job item not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job item")
	}
	if item.QuantityReceived > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "job item has recorded deliveries")
	}
	if item.PayslipGenerated {
		return appErrors.ErrPayslipConsumed
	}

	if item.SourceStage != nil {
		// Restore at the source ledger's current average, falling back to
		// the product base price for an empty ledger.
		cost, lerr := s.reservationCost(ctx, item.ProductID, *item.SourceStage)
		if lerr != nil {
			err = lerr
			return err
		}
		if _, err = s.ledger.Credit(ctx, tx, item.ProductID, *item.SourceStage, item.QuantityOrdered, cost); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore reserved stock")
			return err
		}
	}

	if err = s.repo.DeleteItem(ctx, tx, jobItemID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete job item")
		return err
	}
	if err = s.refreshJobStatus(ctx, tx, item.JobID); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit job item removal")
		return err
	}
	if item.SourceStage != nil {
		s.invalidateQuantities(ctx, item.ProductID)
	}
	return nil
}

// ResetItemPayslip clears the consumed flag so the item becomes payable
// again without reversing the payslip it appeared on.
func (s *JobService) ResetItemPayslip(ctx context.Context, jobItemID string) error {
	item, err := s.repo.FindItemByID(ctx, jobItemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "job item not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job item")
	}
	if err := s.repo.SetItemsPayslipGenerated(ctx, nil, []string{item.ID}, false); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset payslip flag")
	}
	return nil
}

func (s *JobService) reservationCost(ctx context.Context, productID string, stage models.Stage) (decimal.Decimal, error) {
	entry, err := s.ledger.Get(ctx, productID, stage)
	if err != nil {
		return decimal.Zero, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger entry")
	}
	if entry != nil && entry.AverageCost.IsPositive() {
		return entry.AverageCost, nil
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return decimal.Zero, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}
	return product.BasePrice, nil
}

// creditTarget books accepted units into the stage the job produced for.
// Only deliveries to the terminal stage feed the finished-goods ledger;
// finishing jobs credit the finishing stage row like any other stage.
func (s *JobService) creditTarget(ctx context.Context, exec sqlx.ExtContext, productID string, targetStage models.Stage, quantity int) error {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}
	if targetStage == models.StageFinished {
		if _, err := s.finished.Credit(ctx, exec, productID, quantity, product.BasePrice); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to credit finished stock")
		}
		return nil
	}
	if _, err := s.ledger.Credit(ctx, exec, productID, targetStage, quantity, product.BasePrice); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to credit stage stock")
	}
	return nil
}

func (s *JobService) debitTarget(ctx context.Context, exec sqlx.ExtContext, productID string, targetStage models.Stage, quantity int) error {
	var err error
	if targetStage == models.StageFinished {
		err = s.finished.Debit(ctx, exec, productID, quantity)
	} else {
		err = s.ledger.Debit(ctx, exec, productID, targetStage, quantity)
	}
	if err != nil {
		if appErrors.Is(err, appErrors.ErrInsufficientStock) {
			return appErrors.Clone(appErrors.ErrInsufficientStock, "delivered stock already consumed downstream")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reverse stage credit")
	}
	return nil
}

// repriceItem recomputes the item counters from its delivery rows and the
// payment from the current pay rate.
func (s *JobService) repriceItem(ctx context.Context, exec sqlx.ExtContext, item *models.JobItem, targetStage models.Stage, rejection *models.RejectionReason) error {
	received, accepted, err := s.repo.DeliverySums(ctx, exec, item.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate deliveries")
	}
	rate, err := s.resolveRate(ctx, item.ProductID, targetStage)
	if err != nil {
		return err
	}

	item.QuantityReceived = received
	item.QuantityAccepted = accepted
	item.RejectionReason = rejection
	item.FinalPayment = rate.Mul(decimal.NewFromInt(int64(accepted)))
	if err := s.repo.UpdateItemProgress(ctx, exec, item); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update job item")
	}
	return nil
}

// refreshJobStatus re-derives the job status from its item totals.
func (s *JobService) refreshJobStatus(ctx context.Context, exec sqlx.ExtContext, jobID string) error {
	totals, err := s.repo.ItemTotals(ctx, exec, jobID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate job items")
	}
	status := models.DeriveJobStatus(totals.TotalOrdered, totals.TotalReceived)
	if err := s.repo.UpdateJobStatus(ctx, exec, jobID, status); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update job status")
	}
	return nil
}

// Get loads one job with its items and their deliveries.
func (s *JobService) Get(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.repo.FindJobByID(ctx, jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}
	items, err := s.repo.ListItemsByJob(ctx, jobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job items")
	}
	for i := range items {
		deliveries, err := s.repo.ListDeliveries(ctx, items[i].ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deliveries")
		}
		items[i].Deliveries = deliveries
	}
	job.Items = items
	return job, nil
}

// List returns jobs matching the filter.
func (s *JobService) List(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error) {
	jobs, total, err := s.repo.ListJobs(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list jobs")
	}
	return jobs, total, nil
}

// ListItems returns job items matching the filter, including the
// pending-delivery worklist.
func (s *JobService) ListItems(ctx context.Context, filter models.JobItemFilter) ([]models.JobItem, int, error) {
	items, total, err := s.repo.ListItems(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list job items")
	}
	return items, total, nil
}

// Dashboard aggregates job counts and payment totals.
func (s *JobService) Dashboard(ctx context.Context) (*models.JobDashboard, error) {
	dashboard, err := s.repo.Dashboard(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job dashboard")
	}
	return dashboard, nil
}

// Summary builds the per-job report with item totals and per-artisan
// aggregates.
func (s *JobService) Summary(ctx context.Context, jobID string) (*models.JobSummary, error) {
	job, err := s.repo.FindJobByID(ctx, jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}
	totals, err := s.repo.ItemTotals(ctx, nil, jobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate job items")
	}
	artisans, err := s.repo.ArtisanSummary(ctx, jobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate artisans")
	}
	return &models.JobSummary{Job: *job, Items: *totals, Artisans: artisans}, nil
}
