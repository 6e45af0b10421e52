package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// PayrollBatchRepository implements port.PayrollBatchRepository
type PayrollBatchRepository struct {
	db        *sql.DB
	claimRepo port.ClaimRepository
	logger    *zap.Logger
}

// NewPayrollBatchRepository creates a new payroll batch repository. The claim
// repository hydrates batch claims on read.
func NewPayrollBatchRepository(db *sql.DB, claimRepo port.ClaimRepository, logger *zap.Logger) port.PayrollBatchRepository {
	return &PayrollBatchRepository{
		db:        db,
		claimRepo: claimRepo,
		logger:    logger,
	}
}

// Create inserts a payroll batch
func (r *PayrollBatchRepository) Create(ctx context.Context, batch *entity.PayrollBatch) error {
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO payroll_batches (
			id, batch_number, period_start, period_end, total_amount,
			claim_count, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, batch.ID, batch.BatchNumber, batch.PeriodStart, batch.PeriodEnd,
		batch.TotalAmount.String(), batch.ClaimCount, batch.Status, batch.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create payroll batch",
			zap.String("batch_number", batch.BatchNumber), zap.Error(err))
		return fmt.Errorf("failed to create payroll batch: %w", err)
	}
	return nil
}

// GetByID loads a batch with its claims
func (r *PayrollBatchRepository) GetByID(ctx context.Context, id string) (*entity.PayrollBatch, error) {
	var batch entity.PayrollBatch
	var totalAmount string
	var exportFormat, exportedBy sql.NullString
	var exportedAt sql.NullTime

	err := getExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, batch_number, period_start, period_end, total_amount,
			claim_count, status, export_format, exported_at, exported_by, created_at
		FROM payroll_batches
		WHERE id = ?
	`, id).Scan(
		&batch.ID, &batch.BatchNumber, &batch.PeriodStart, &batch.PeriodEnd,
		&totalAmount, &batch.ClaimCount, &batch.Status,
		&exportFormat, &exportedAt, &exportedBy, &batch.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get payroll batch", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get payroll batch: %w", err)
	}

	batch.ExportFormat = exportFormat.String
	batch.ExportedBy = exportedBy.String
	if exportedAt.Valid {
		batch.ExportedAt = &exportedAt.Time
	}
	batch.TotalAmount, err = decimal.NewFromString(totalAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid batch total %q: %w", totalAmount, err)
	}

	claimIDs, err := r.claimIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, claimID := range claimIDs {
		claim, err := r.claimRepo.GetByID(ctx, claimID)
		if err != nil {
			return nil, fmt.Errorf("load batch claim %s: %w", claimID, err)
		}
		batch.Claims = append(batch.Claims, claim)
	}
	return &batch, nil
}

// MarkExported records the export outcome
func (r *PayrollBatchRepository) MarkExported(ctx context.Context, id string, format string, exportedBy string, exportedAt time.Time) error {
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE payroll_batches
		SET status = 'EXPORTED', export_format = ?, exported_by = ?, exported_at = ?
		WHERE id = ? AND status = 'DRAFT'
	`, format, exportedBy, exportedAt, id)
	if err != nil {
		r.logger.Error("Failed to mark batch exported", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark batch exported: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return port.ErrConflict
	}
	return nil
}

// NextBatchNumber atomically increments and returns the sequence for the prefix
func (r *PayrollBatchRepository) NextBatchNumber(ctx context.Context, prefix string) (int64, error) {
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO sequences (prefix, value) VALUES (?, 1)
		ON CONFLICT(prefix) DO UPDATE SET value = value + 1
	`, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to advance batch sequence: %w", err)
	}

	var value int64
	err = getExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT value FROM sequences WHERE prefix = ?`, prefix).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to read batch sequence: %w", err)
	}
	return value, nil
}

func (r *PayrollBatchRepository) claimIDs(ctx context.Context, batchID string) ([]string, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx,
		`SELECT id FROM claims WHERE payroll_batch_id = ? ORDER BY claim_number ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch claims: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan claim id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Verify interface compliance
var _ port.PayrollBatchRepository = (*PayrollBatchRepository)(nil)
