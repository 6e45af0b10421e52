package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// ApprovalRepository implements port.ApprovalRepository
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts one approval record
func (r *ApprovalRepository) Create(ctx context.Context, approval *entity.Approval) error {
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO approvals (id, claim_id, approver_id, level, status, comments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, approval.ID, approval.ClaimID, approval.ApproverID, approval.Level,
		approval.Status, nullString(approval.Comments), approval.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create approval",
			zap.String("claim_id", approval.ClaimID), zap.Int("level", approval.Level), zap.Error(err))
		return fmt.Errorf("failed to create approval: %w", err)
	}
	return nil
}

// GetPending returns the PENDING approval assigned to the approver on the claim
func (r *ApprovalRepository) GetPending(ctx context.Context, claimID, approverID string) (*entity.Approval, error) {
	approval, err := scanApproval(getExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, claim_id, approver_id, level, status, comments, resolved_at, created_at
		FROM approvals
		WHERE claim_id = ? AND approver_id = ? AND status = 'PENDING'
		ORDER BY level ASC
		LIMIT 1
	`, claimID, approverID))
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get pending approval",
			zap.String("claim_id", claimID), zap.String("approver_id", approverID), zap.Error(err))
		return nil, fmt.Errorf("failed to get pending approval: %w", err)
	}
	return approval, nil
}

// GetPendingAtLevel returns the PENDING approval at the given level
func (r *ApprovalRepository) GetPendingAtLevel(ctx context.Context, claimID string, level int) (*entity.Approval, error) {
	approval, err := scanApproval(getExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, claim_id, approver_id, level, status, comments, resolved_at, created_at
		FROM approvals
		WHERE claim_id = ? AND level = ? AND status = 'PENDING'
	`, claimID, level))
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval at level %d: %w", level, err)
	}
	return approval, nil
}

// ListByClaim returns all approvals for the claim ordered by level
func (r *ApprovalRepository) ListByClaim(ctx context.Context, claimID string) ([]*entity.Approval, error) {
	return r.queryApprovals(ctx, `
		SELECT id, claim_id, approver_id, level, status, comments, resolved_at, created_at
		FROM approvals
		WHERE claim_id = ?
		ORDER BY level ASC
	`, claimID)
}

// ListPendingByApprover returns PENDING approvals assigned to the approver,
// oldest first
func (r *ApprovalRepository) ListPendingByApprover(ctx context.Context, approverID string) ([]*entity.Approval, error) {
	return r.queryApprovals(ctx, `
		SELECT a.id, a.claim_id, a.approver_id, a.level, a.status, a.comments, a.resolved_at, a.created_at
		FROM approvals a
		JOIN claims c ON c.id = a.claim_id
		WHERE a.approver_id = ? AND a.status = 'PENDING'
		  AND c.status = 'PENDING_APPROVAL'
		  AND c.current_approval_level = a.level
		ORDER BY a.created_at ASC
	`, approverID)
}

// Resolve conditionally moves the approval out of PENDING. The status guard in
// the WHERE clause is what makes concurrent double-decisions race-safe: exactly
// one caller updates the row, everyone else gets a conflict.
func (r *ApprovalRepository) Resolve(ctx context.Context, id string, status string, comments string, resolvedAt time.Time) error {
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE approvals
		SET status = ?, comments = ?, resolved_at = ?
		WHERE id = ? AND status = 'PENDING'
	`, status, nullString(comments), resolvedAt, id)
	if err != nil {
		r.logger.Error("Failed to resolve approval", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to resolve approval: %w", err)
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

func (r *ApprovalRepository) queryApprovals(ctx context.Context, query string, args ...interface{}) ([]*entity.Approval, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*entity.Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, approval)
	}
	return approvals, rows.Err()
}

func scanApproval(row rowScanner) (*entity.Approval, error) {
	var a entity.Approval
	var comments sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(&a.ID, &a.ClaimID, &a.ApproverID, &a.Level, &a.Status,
		&comments, &resolvedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	a.Comments = comments.String
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	return &a, nil
}

// Verify interface compliance
var _ port.ApprovalRepository = (*ApprovalRepository)(nil)
