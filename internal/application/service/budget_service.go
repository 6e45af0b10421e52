package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
	"github.com/finovahq/expense-claims/internal/domain/workflow"
)

// SpendOperation selects the direction of a ledger mutation
type SpendOperation string

const (
	SpendAdd      SpendOperation = "add"
	SpendSubtract SpendOperation = "subtract"
)

// CreateBudgetRequest carries the caller input for budget creation
type CreateBudgetRequest struct {
	Name           string
	Description    string
	DepartmentID   string
	ProjectID      string
	FiscalYear     int
	FiscalPeriod   string
	TotalAmount    decimal.Decimal
	AlertThreshold decimal.Decimal
}

// BudgetService is the spend ledger: all budget mutations go through
// UpdateSpending, which recomputes the remaining amount and raises threshold
// alerts to the department's active managers.
type BudgetService interface {
	Create(ctx context.Context, req CreateBudgetRequest) (*entity.Budget, error)
	UpdateSpending(ctx context.Context, budgetID string, amount decimal.Decimal, op SpendOperation) error
	GetStatus(ctx context.Context, budgetID string) (*entity.BudgetStatus, error)
	ListByDepartment(ctx context.Context, departmentID string) ([]*entity.Budget, error)
	Forecast(ctx context.Context, budgetID string) (*entity.BudgetForecast, error)
}

type budgetServiceImpl struct {
	budgetRepo    port.BudgetRepository
	claimRepo     port.ClaimRepository
	userRepo      port.UserRepository
	txManager     port.TransactionManager
	notifications NotificationService
	logger        Logger
	now           func() time.Time
}

// NewBudgetService creates a new BudgetService
func NewBudgetService(
	budgetRepo port.BudgetRepository,
	claimRepo port.ClaimRepository,
	userRepo port.UserRepository,
	txManager port.TransactionManager,
	notifications NotificationService,
	logger Logger,
) BudgetService {
	return &budgetServiceImpl{
		budgetRepo:    budgetRepo,
		claimRepo:     claimRepo,
		userRepo:      userRepo,
		txManager:     txManager,
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// Create registers a budget envelope with zero spend
func (s *budgetServiceImpl) Create(ctx context.Context, req CreateBudgetRequest) (*entity.Budget, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: budget name is required", ErrValidation)
	}
	if req.TotalAmount.IsNegative() {
		return nil, fmt.Errorf("%w: total amount must not be negative", ErrValidation)
	}

	threshold := req.AlertThreshold
	if threshold.IsZero() {
		threshold = decimal.NewFromInt(80)
	}

	now := s.now()
	budget := &entity.Budget{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Description:     req.Description,
		DepartmentID:    req.DepartmentID,
		ProjectID:       req.ProjectID,
		FiscalYear:      req.FiscalYear,
		FiscalPeriod:    req.FiscalPeriod,
		TotalAmount:     req.TotalAmount,
		SpentAmount:     decimal.Zero,
		RemainingAmount: req.TotalAmount,
		AlertThreshold:  threshold,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.budgetRepo.Create(ctx, budget); err != nil {
		s.logger.Error("Failed to create budget", "error", err, "name", req.Name)
		return nil, err
	}

	s.logger.Info("Budget created", "budget_id", budget.ID, "name", budget.Name)
	return budget, nil
}

// UpdateSpending applies an add or subtract mutation and recomputes the
// remaining amount atomically. When utilization crosses the alert threshold,
// every active manager of the associated department is alerted; alert
// delivery is best-effort and never rolls back the spend.
func (s *budgetServiceImpl) UpdateSpending(ctx context.Context, budgetID string, amount decimal.Decimal, op SpendOperation) error {
	var budget *entity.Budget

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		budget, err = s.budgetRepo.GetByID(txCtx, budgetID)
		if err != nil {
			return fmt.Errorf("%w: budget %s", ErrNotFound, budgetID)
		}

		var spent decimal.Decimal
		switch op {
		case SpendAdd:
			spent = budget.SpentAmount.Add(amount)
		case SpendSubtract:
			spent = budget.SpentAmount.Sub(amount)
		default:
			return fmt.Errorf("%w: unknown spend operation %q", ErrValidation, op)
		}

		budget.SpentAmount = spent
		budget.RemainingAmount = budget.TotalAmount.Sub(spent)
		return s.budgetRepo.UpdateSpending(txCtx, budgetID, budget.SpentAmount, budget.RemainingAmount)
	})
	if err != nil {
		s.logger.Error("Failed to update budget spending", "error", err, "budget_id", budgetID)
		return err
	}

	utilization := budget.Utilization()
	if utilization.GreaterThanOrEqual(budget.AlertThreshold) && budget.DepartmentID != "" {
		s.alertManagers(ctx, budget, utilization)
	}

	s.logger.Info("Budget spending updated",
		"budget_id", budgetID, "op", string(op),
		"spent", budget.SpentAmount.String(), "remaining", budget.RemainingAmount.String())
	return nil
}

// GetStatus reports utilization, over-budget state, and active alerts
func (s *budgetServiceImpl) GetStatus(ctx context.Context, budgetID string) (*entity.BudgetStatus, error) {
	budget, err := s.budgetRepo.GetByID(ctx, budgetID)
	if err != nil {
		return nil, fmt.Errorf("%w: budget %s", ErrNotFound, budgetID)
	}

	utilization := budget.Utilization()
	status := &entity.BudgetStatus{
		ID:                    budget.ID,
		Name:                  budget.Name,
		TotalAmount:           budget.TotalAmount,
		SpentAmount:           budget.SpentAmount,
		RemainingAmount:       budget.RemainingAmount,
		UtilizationPercentage: utilization,
		IsOverBudget:          budget.IsOverBudget(),
		Alerts:                []string{},
	}

	if utilization.GreaterThanOrEqual(budget.AlertThreshold) {
		status.Alerts = append(status.Alerts,
			fmt.Sprintf("Budget utilization has reached %s%% of total allocation", utilization.StringFixed(1)))
	}
	if status.IsOverBudget {
		status.Alerts = append(status.Alerts, "Budget has been exceeded")
	}

	return status, nil
}

// ListByDepartment returns the department's active budgets
func (s *budgetServiceImpl) ListByDepartment(ctx context.Context, departmentID string) ([]*entity.Budget, error) {
	budgets, err := s.budgetRepo.ListByDepartment(ctx, departmentID)
	if err != nil {
		s.logger.Error("Failed to list budgets", "error", err, "department_id", departmentID)
		return nil, err
	}
	return budgets, nil
}

// Forecast projects spend forward from the average monthly total of approved
// and paid claims in the budget's scope
func (s *budgetServiceImpl) Forecast(ctx context.Context, budgetID string) (*entity.BudgetForecast, error) {
	budget, err := s.budgetRepo.GetByID(ctx, budgetID)
	if err != nil {
		return nil, fmt.Errorf("%w: budget %s", ErrNotFound, budgetID)
	}

	claims, err := s.claimRepo.ListByScope(ctx, budget.DepartmentID, budget.ProjectID,
		[]string{workflow.StateApproved.String(), workflow.StatePaid.String()})
	if err != nil {
		return nil, fmt.Errorf("list claims for forecast: %w", err)
	}

	monthly := make(map[string]decimal.Decimal)
	for _, claim := range claims {
		if claim.SubmittedAt == nil {
			continue
		}
		month := claim.SubmittedAt.Format("2006-01")
		monthly[month] = monthly[month].Add(claim.TotalAmount)
	}

	total := decimal.Zero
	for _, amount := range monthly {
		total = total.Add(amount)
	}
	months := int64(len(monthly))
	if months == 0 {
		months = 1
	}
	avgMonthly := total.Div(decimal.NewFromInt(months))

	const remainingMonths = 12
	projected := avgMonthly.Mul(decimal.NewFromInt(remainingMonths))
	projectedTotal := budget.SpentAmount.Add(projected)

	return &entity.BudgetForecast{
		CurrentSpent:       budget.SpentAmount,
		AvgMonthlySpending: avgMonthly,
		ProjectedSpending:  projected,
		ProjectedTotal:     projectedTotal,
		WillExceedBudget:   projectedTotal.GreaterThan(budget.TotalAmount),
	}, nil
}

func (s *budgetServiceImpl) alertManagers(ctx context.Context, budget *entity.Budget, utilization decimal.Decimal) {
	managers, err := s.userRepo.ListActiveManagers(ctx, budget.DepartmentID)
	if err != nil {
		s.logger.Error("Failed to list managers for budget alert", "error", err, "budget_id", budget.ID)
		return
	}

	percentage := int(utilization.Round(0).IntPart())
	for _, manager := range managers {
		if err := s.notifications.NotifyBudgetAlert(ctx, manager.ID, budget, percentage); err != nil {
			s.logger.Error("Budget alert dispatch failed", "error", err, "budget_id", budget.ID, "user_id", manager.ID)
		}
	}
}
