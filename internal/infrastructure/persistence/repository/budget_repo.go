package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// BudgetRepository implements port.BudgetRepository
type BudgetRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBudgetRepository creates a new budget repository
func NewBudgetRepository(db *sql.DB, logger *zap.Logger) port.BudgetRepository {
	return &BudgetRepository{
		db:     db,
		logger: logger,
	}
}

const budgetColumns = `id, name, description, department_id, project_id,
	fiscal_year, fiscal_period, total_amount, spent_amount, remaining_amount,
	alert_threshold, is_active, created_at, updated_at`

// Create inserts a budget envelope
func (r *BudgetRepository) Create(ctx context.Context, budget *entity.Budget) error {
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO budgets (`+budgetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, budget.ID, budget.Name, nullString(budget.Description),
		nullString(budget.DepartmentID), nullString(budget.ProjectID),
		budget.FiscalYear, nullString(budget.FiscalPeriod),
		budget.TotalAmount.String(), budget.SpentAmount.String(),
		budget.RemainingAmount.String(), budget.AlertThreshold.String(),
		budget.IsActive, budget.CreatedAt, budget.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create budget", zap.String("name", budget.Name), zap.Error(err))
		return fmt.Errorf("failed to create budget: %w", err)
	}
	return nil
}

// GetByID retrieves one budget
func (r *BudgetRepository) GetByID(ctx context.Context, id string) (*entity.Budget, error) {
	budget, err := scanBudget(getExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get budget", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}
	return budget, nil
}

// ListByDepartment returns the department's active budgets
func (r *BudgetRepository) ListByDepartment(ctx context.Context, departmentID string) ([]*entity.Budget, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT `+budgetColumns+`
		FROM budgets
		WHERE department_id = ? AND is_active = 1
		ORDER BY fiscal_year DESC, created_at DESC
	`, departmentID)
	if err != nil {
		r.logger.Error("Failed to list budgets", zap.String("department_id", departmentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []*entity.Budget
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		budgets = append(budgets, budget)
	}
	return budgets, rows.Err()
}

// UpdateSpending writes the recomputed spent and remaining amounts
func (r *BudgetRepository) UpdateSpending(ctx context.Context, id string, spent, remaining decimal.Decimal) error {
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE budgets
		SET spent_amount = ?, remaining_amount = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, spent.String(), remaining.String(), id)
	if err != nil {
		r.logger.Error("Failed to update budget spending", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update budget spending: %w", err)
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

func scanBudget(row rowScanner) (*entity.Budget, error) {
	var b entity.Budget
	var description, departmentID, projectID, fiscalPeriod sql.NullString
	var total, spent, remaining, threshold string

	err := row.Scan(&b.ID, &b.Name, &description, &departmentID, &projectID,
		&b.FiscalYear, &fiscalPeriod, &total, &spent, &remaining, &threshold,
		&b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	b.Description = description.String
	b.DepartmentID = departmentID.String
	b.ProjectID = projectID.String
	b.FiscalPeriod = fiscalPeriod.String

	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&b.TotalAmount, total},
		{&b.SpentAmount, spent},
		{&b.RemainingAmount, remaining},
		{&b.AlertThreshold, threshold},
	} {
		d, err := decimal.NewFromString(field.src)
		if err != nil {
			return nil, fmt.Errorf("invalid budget amount %q: %w", field.src, err)
		}
		*field.dst = d
	}
	return &b, nil
}

// Verify interface compliance
var _ port.BudgetRepository = (*BudgetRepository)(nil)
