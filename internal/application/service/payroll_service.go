package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// ExportResult carries a rendered payroll export
type ExportResult struct {
	FileName    string
	ContentType string
	Data        []byte
}

// PayrollService batches approved claims for payout and exports batches to
// the payroll system. Exporting marks the batch's claims PAID.
type PayrollService interface {
	// CreateBatch collects APPROVED claims not yet assigned to a batch,
	// submitted within the period. Fails with ErrNotFound when none exist.
	CreateBatch(ctx context.Context, periodStart, periodEnd time.Time) (*entity.PayrollBatch, error)

	// Export renders the batch in the requested format (CSV, JSON, or XLSX),
	// marks it EXPORTED, and marks its claims PAID
	Export(ctx context.Context, batchID, format, actorID string) (*ExportResult, error)

	// GetBatch loads a batch with its claims
	GetBatch(ctx context.Context, batchID string) (*entity.PayrollBatch, error)
}

type payrollServiceImpl struct {
	batchRepo     port.PayrollBatchRepository
	claimRepo     port.ClaimRepository
	txManager     port.TransactionManager
	exporters     map[string]port.BatchExporter
	notifications NotificationService
	logger        Logger
	now           func() time.Time
}

// NewPayrollService creates a new PayrollService. The exporters map is keyed
// by export format (entity.ExportFormat*).
func NewPayrollService(
	batchRepo port.PayrollBatchRepository,
	claimRepo port.ClaimRepository,
	txManager port.TransactionManager,
	exporters map[string]port.BatchExporter,
	notifications NotificationService,
	logger Logger,
) PayrollService {
	return &payrollServiceImpl{
		batchRepo:     batchRepo,
		claimRepo:     claimRepo,
		txManager:     txManager,
		exporters:     exporters,
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// CreateBatch groups the period's approved, unbatched claims into a new DRAFT batch
func (s *payrollServiceImpl) CreateBatch(ctx context.Context, periodStart, periodEnd time.Time) (*entity.PayrollBatch, error) {
	if periodEnd.Before(periodStart) {
		return nil, fmt.Errorf("%w: period end precedes period start", ErrValidation)
	}

	var batch *entity.PayrollBatch
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		claims, err := s.claimRepo.ListApprovedUnbatched(txCtx, periodStart, periodEnd)
		if err != nil {
			return fmt.Errorf("list approved claims: %w", err)
		}
		if len(claims) == 0 {
			return fmt.Errorf("%w: no approved claims found for this period", ErrNotFound)
		}

		total := decimal.Zero
		claimIDs := make([]string, 0, len(claims))
		for _, claim := range claims {
			total = total.Add(claim.TotalAmount)
			claimIDs = append(claimIDs, claim.ID)
		}

		now := s.now()
		prefix := fmt.Sprintf("PAY-%04d%02d", now.Year(), int(now.Month()))
		seq, err := s.batchRepo.NextBatchNumber(txCtx, prefix)
		if err != nil {
			return fmt.Errorf("next batch number: %w", err)
		}

		batch = &entity.PayrollBatch{
			ID:          uuid.NewString(),
			BatchNumber: fmt.Sprintf("%s-%04d", prefix, seq),
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			TotalAmount: total,
			ClaimCount:  len(claims),
			Status:      entity.PayrollBatchStatusDraft,
			CreatedAt:   now,
			Claims:      claims,
		}

		if err := s.batchRepo.Create(txCtx, batch); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		return s.claimRepo.AssignPayrollBatch(txCtx, claimIDs, batch.ID)
	})
	if err != nil {
		s.logger.Error("Failed to create payroll batch", "error", err)
		return nil, err
	}

	s.logger.Info("Payroll batch created",
		"batch_id", batch.ID, "batch_number", batch.BatchNumber,
		"claims", batch.ClaimCount, "total", batch.TotalAmount.String())
	return batch, nil
}

// Export renders and finalizes a batch. Claims move APPROVED -> PAID; the
// claimants are notified best-effort after the transaction commits.
func (s *payrollServiceImpl) Export(ctx context.Context, batchID, format, actorID string) (*ExportResult, error) {
	exporter, ok := s.exporters[format]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported export format %q", ErrValidation, format)
	}

	var batch *entity.PayrollBatch
	var result *ExportResult

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		batch, err = s.batchRepo.GetByID(txCtx, batchID)
		if err != nil {
			return fmt.Errorf("%w: payroll batch %s", ErrNotFound, batchID)
		}
		if batch.Status == entity.PayrollBatchStatusExported {
			return fmt.Errorf("%w: batch %s already exported", ErrStateConflict, batch.BatchNumber)
		}

		data, contentType, err := exporter.Export(batch)
		if err != nil {
			return fmt.Errorf("render %s export: %w", format, err)
		}
		result = &ExportResult{
			FileName:    fmt.Sprintf("%s.%s", batch.BatchNumber, exportExtension(format)),
			ContentType: contentType,
			Data:        data,
		}

		exportedAt := s.now()
		if err := s.batchRepo.MarkExported(txCtx, batchID, format, actorID, exportedAt); err != nil {
			return fmt.Errorf("mark exported: %w", err)
		}
		return s.claimRepo.MarkPaid(txCtx, batchID, exportedAt)
	})
	if err != nil {
		s.logger.Error("Failed to export payroll batch", "error", err, "batch_id", batchID, "format", format)
		return nil, err
	}

	for _, claim := range batch.Claims {
		claim.Status = "PAID"
		if err := s.notifications.NotifyClaimStatus(ctx, claim.UserID, claim, "PAID"); err != nil {
			s.logger.Error("Payment notification failed", "error", err, "claim_id", claim.ID)
		}
	}

	s.logger.Info("Payroll batch exported",
		"batch_id", batchID, "batch_number", batch.BatchNumber, "format", format, "by", actorID)
	return result, nil
}

// GetBatch loads a batch with its claims
func (s *payrollServiceImpl) GetBatch(ctx context.Context, batchID string) (*entity.PayrollBatch, error) {
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("%w: payroll batch %s", ErrNotFound, batchID)
	}
	return batch, nil
}

func exportExtension(format string) string {
	switch format {
	case entity.ExportFormatCSV:
		return "csv"
	case entity.ExportFormatXLSX:
		return "xlsx"
	default:
		return "json"
	}
}
