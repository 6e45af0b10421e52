package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// ViolationRepository implements port.ViolationRepository
type ViolationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewViolationRepository creates a new violation repository
func NewViolationRepository(db *sql.DB, logger *zap.Logger) port.ViolationRepository {
	return &ViolationRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts a set of compliance findings
func (r *ViolationRepository) CreateBatch(ctx context.Context, violations []*entity.PolicyViolation) error {
	query := `
		INSERT INTO policy_violations (id, claim_id, type, severity, message, policy_rule, is_waived, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, v := range violations {
		_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
			v.ID, v.ClaimID, string(v.Type), v.Severity, v.Message,
			nullString(v.PolicyRule), v.IsWaived, v.CreatedAt)
		if err != nil {
			r.logger.Error("Failed to create violation",
				zap.String("claim_id", v.ClaimID), zap.String("type", string(v.Type)), zap.Error(err))
			return fmt.Errorf("failed to create violation: %w", err)
		}
	}
	return nil
}

// ListByClaim returns the claim's compliance findings oldest first
func (r *ViolationRepository) ListByClaim(ctx context.Context, claimID string) ([]*entity.PolicyViolation, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT id, claim_id, type, severity, message, policy_rule, is_waived, created_at
		FROM policy_violations
		WHERE claim_id = ?
		ORDER BY created_at ASC
	`, claimID)
	if err != nil {
		r.logger.Error("Failed to list violations", zap.String("claim_id", claimID), zap.Error(err))
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	defer rows.Close()

	var violations []*entity.PolicyViolation
	for rows.Next() {
		var v entity.PolicyViolation
		var vType string
		var policyRule sql.NullString
		err := rows.Scan(&v.ID, &v.ClaimID, &vType, &v.Severity, &v.Message,
			&policyRule, &v.IsWaived, &v.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		v.Type = entity.ViolationType(vType)
		v.PolicyRule = policyRule.String
		violations = append(violations, &v)
	}
	return violations, rows.Err()
}

// SetWaived flips the advisory waived flag on a finding
func (r *ViolationRepository) SetWaived(ctx context.Context, id string, waived bool) error {
	result, err := getExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE policy_violations SET is_waived = ? WHERE id = ?`, waived, id)
	if err != nil {
		r.logger.Error("Failed to update violation", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update violation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return port.ErrNotFound
	}
	return nil
}

// Verify interface compliance
var _ port.ViolationRepository = (*ViolationRepository)(nil)
