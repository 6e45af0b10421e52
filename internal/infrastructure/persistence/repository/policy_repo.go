package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// CompanyPolicyRepository implements port.CompanyPolicyRepository
type CompanyPolicyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCompanyPolicyRepository creates a new company policy repository
func NewCompanyPolicyRepository(db *sql.DB, logger *zap.Logger) port.CompanyPolicyRepository {
	return &CompanyPolicyRepository{
		db:     db,
		logger: logger,
	}
}

// ListActive returns every active company policy
func (r *CompanyPolicyRepository) ListActive(ctx context.Context) ([]*entity.CompanyPolicy, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT id, name, category, description, rules, is_active, created_at, updated_at
		FROM company_policies
		WHERE is_active = 1
		ORDER BY name ASC
	`)
	if err != nil {
		r.logger.Error("Failed to list company policies", zap.Error(err))
		return nil, fmt.Errorf("failed to list company policies: %w", err)
	}
	defer rows.Close()

	var policies []*entity.CompanyPolicy
	for rows.Next() {
		policy, err := scanCompanyPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company policy: %w", err)
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

// GetByID retrieves one company policy
func (r *CompanyPolicyRepository) GetByID(ctx context.Context, id string) (*entity.CompanyPolicy, error) {
	policy, err := scanCompanyPolicy(getExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, name, category, description, rules, is_active, created_at, updated_at
		FROM company_policies
		WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company policy: %w", err)
	}
	return policy, nil
}

func scanCompanyPolicy(row rowScanner) (*entity.CompanyPolicy, error) {
	var p entity.CompanyPolicy
	var category string
	var description, rules sql.NullString

	err := row.Scan(&p.ID, &p.Name, &category, &description, &rules,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.Category = entity.ExpenseCategory(category)
	p.Description = description.String
	p.RulesJSON = rules.String
	return &p, nil
}

// ApprovalPolicyRepository implements port.ApprovalPolicyRepository.
// Approval levels and claim types are stored as JSON columns; malformed rows
// fail loudly rather than silently dropping a mandated approval level.
type ApprovalPolicyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalPolicyRepository creates a new approval policy repository
func NewApprovalPolicyRepository(db *sql.DB, logger *zap.Logger) port.ApprovalPolicyRepository {
	return &ApprovalPolicyRepository{
		db:     db,
		logger: logger,
	}
}

const approvalPolicyColumns = `id, name, description, department_id, claim_types,
	min_amount, max_amount, approval_levels, is_active, priority, created_at, updated_at`

// ListActiveForDepartment returns active policies scoped to the department or
// unscoped, priority descending
func (r *ApprovalPolicyRepository) ListActiveForDepartment(ctx context.Context, departmentID string) ([]*entity.ApprovalPolicy, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT `+approvalPolicyColumns+`
		FROM approval_policies
		WHERE is_active = 1
		  AND (department_id IS NULL OR department_id = ?)
		ORDER BY priority DESC, created_at ASC
	`, departmentID)
	if err != nil {
		r.logger.Error("Failed to list approval policies",
			zap.String("department_id", departmentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approval policies: %w", err)
	}
	defer rows.Close()

	var policies []*entity.ApprovalPolicy
	for rows.Next() {
		policy, err := scanApprovalPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

// GetCatchAll returns the lowest-priority active policy with no department and
// no claim types, or nil when none exists
func (r *ApprovalPolicyRepository) GetCatchAll(ctx context.Context) (*entity.ApprovalPolicy, error) {
	policy, err := scanApprovalPolicy(getExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT ` + approvalPolicyColumns + `
		FROM approval_policies
		WHERE is_active = 1
		  AND department_id IS NULL
		  AND (claim_types IS NULL OR claim_types = '[]')
		ORDER BY priority ASC, created_at ASC
		LIMIT 1
	`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catch-all policy: %w", err)
	}
	return policy, nil
}

func scanApprovalPolicy(row rowScanner) (*entity.ApprovalPolicy, error) {
	var p entity.ApprovalPolicy
	var description, departmentID, claimTypes, maxAmount sql.NullString
	var minAmount, approvalLevels string

	err := row.Scan(&p.ID, &p.Name, &description, &departmentID, &claimTypes,
		&minAmount, &maxAmount, &approvalLevels, &p.IsActive, &p.Priority,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.Description = description.String
	p.DepartmentID = departmentID.String

	p.MinAmount, err = decimal.NewFromString(minAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid min amount for policy %s: %w", p.Name, err)
	}
	if maxAmount.Valid {
		max, err := decimal.NewFromString(maxAmount.String)
		if err != nil {
			return nil, fmt.Errorf("invalid max amount for policy %s: %w", p.Name, err)
		}
		p.MaxAmount = &max
	}

	if claimTypes.Valid && claimTypes.String != "" {
		if err := json.Unmarshal([]byte(claimTypes.String), &p.ClaimTypes); err != nil {
			return nil, fmt.Errorf("invalid claim types for policy %s: %w", p.Name, err)
		}
	}
	if err := json.Unmarshal([]byte(approvalLevels), &p.ApprovalLevels); err != nil {
		return nil, fmt.Errorf("invalid approval levels for policy %s: %w", p.Name, err)
	}
	return &p, nil
}

// Verify interface compliance
var (
	_ port.CompanyPolicyRepository  = (*CompanyPolicyRepository)(nil)
	_ port.ApprovalPolicyRepository = (*ApprovalPolicyRepository)(nil)
)
