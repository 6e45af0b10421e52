package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finovahq/expense-claims/internal/domain/entity"
)

func testBudget(total, spent string) *entity.Budget {
	b := &entity.Budget{
		ID:             "budget-1",
		Name:           "Engineering Q3",
		DepartmentID:   "dept-1",
		TotalAmount:    dec(total),
		SpentAmount:    dec(spent),
		AlertThreshold: dec("80"),
		IsActive:       true,
	}
	b.RemainingAmount = b.TotalAmount.Sub(b.SpentAmount)
	return b
}

func newBudgetService(budgetRepo *mockBudgetRepo, claimRepo *mockClaimRepo, userRepo *mockUserRepo, notifications *mockNotificationService) BudgetService {
	return NewBudgetService(budgetRepo, claimRepo, userRepo, passthroughTxManager{}, notifications, testLogger{})
}

func TestCreateBudget_Defaults(t *testing.T) {
	var created *entity.Budget
	budgetRepo := &mockBudgetRepo{
		createFunc: func(ctx context.Context, budget *entity.Budget) error {
			created = budget
			return nil
		},
	}
	svc := newBudgetService(budgetRepo, &mockClaimRepo{}, &mockUserRepo{}, &mockNotificationService{})

	budget, err := svc.Create(context.Background(), CreateBudgetRequest{
		Name:        "Engineering Q3",
		TotalAmount: dec("10000000"),
	})
	require.NoError(t, err)

	assert.True(t, budget.SpentAmount.IsZero())
	assert.True(t, budget.RemainingAmount.Equal(dec("10000000")))
	assert.True(t, budget.AlertThreshold.Equal(dec("80")))
	assert.True(t, budget.IsActive)
	assert.NotNil(t, created)
}

func TestCreateBudget_Validation(t *testing.T) {
	svc := newBudgetService(&mockBudgetRepo{}, &mockClaimRepo{}, &mockUserRepo{}, &mockNotificationService{})

	_, err := svc.Create(context.Background(), CreateBudgetRequest{TotalAmount: dec("100")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), CreateBudgetRequest{Name: "x", TotalAmount: dec("-1")})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateSpending_RecomputesRemaining(t *testing.T) {
	budget := testBudget("1000000", "200000")
	var wroteSpent, wroteRemaining decimal.Decimal
	budgetRepo := &mockBudgetRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Budget, error) {
			return budget, nil
		},
		updateSpendingFunc: func(ctx context.Context, id string, spent, remaining decimal.Decimal) error {
			wroteSpent, wroteRemaining = spent, remaining
			return nil
		},
	}
	svc := newBudgetService(budgetRepo, &mockClaimRepo{}, &mockUserRepo{}, &mockNotificationService{})

	err := svc.UpdateSpending(context.Background(), "budget-1", dec("300000"), SpendAdd)
	require.NoError(t, err)
	assert.True(t, wroteSpent.Equal(dec("500000")))
	assert.True(t, wroteRemaining.Equal(dec("500000")))

	err = svc.UpdateSpending(context.Background(), "budget-1", dec("100000"), SpendSubtract)
	require.NoError(t, err)
	assert.True(t, wroteSpent.Equal(dec("400000")))
	assert.True(t, wroteRemaining.Equal(dec("600000")))
}

func TestUpdateSpending_UnknownOperation(t *testing.T) {
	budgetRepo := &mockBudgetRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Budget, error) {
			return testBudget("1000000", "0"), nil
		},
	}
	svc := newBudgetService(budgetRepo, &mockClaimRepo{}, &mockUserRepo{}, &mockNotificationService{})

	err := svc.UpdateSpending(context.Background(), "budget-1", dec("1"), SpendOperation("multiply"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateSpending_AlertsManagersAtThreshold(t *testing.T) {
	budget := testBudget("1000000", "700000")
	budgetRepo := &mockBudgetRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Budget, error) {
			return budget, nil
		},
	}
	userRepo := &mockUserRepo{
		listActiveManagersFunc: func(ctx context.Context, departmentID string) ([]*entity.User, error) {
			assert.Equal(t, "dept-1", departmentID)
			return []*entity.User{
				activeUser("mgr-1", entity.RoleManager),
				activeUser("mgr-2", entity.RoleManager),
			}, nil
		},
	}
	notifications := &mockNotificationService{}
	svc := newBudgetService(budgetRepo, &mockClaimRepo{}, userRepo, notifications)

	// 700000 + 150000 = 850000 of 1000000 -> 85%, above the 80% threshold
	err := svc.UpdateSpending(context.Background(), "budget-1", dec("150000"), SpendAdd)
	require.NoError(t, err)
	assert.Equal(t, []string{"mgr-1", "mgr-2"}, notifications.budgetAlerts)
}

func TestUpdateSpending_NoAlertBelowThreshold(t *testing.T) {
	budget := testBudget("1000000", "100000")
	budgetRepo := &mockBudgetRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Budget, error) {
			return budget, nil
		},
	}
	notifications := &mockNotificationService{}
	svc := newBudgetService(budgetRepo, &mockClaimRepo{}, &mockUserRepo{}, notifications)

	err := svc.UpdateSpending(context.Background(), "budget-1", dec("100000"), SpendAdd)
	require.NoError(t, err)
	assert.Empty(t, notifications.budgetAlerts)
}

func TestGetStatus(t *testing.T) {
	budget := testBudget("1000000", "1100000")
	budgetRepo := &mockBudgetRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Budget, error) {
			return budget, nil
		},
	}
	svc := newBudgetService(budgetRepo, &mockClaimRepo{}, &mockUserRepo{}, &mockNotificationService{})

	status, err := svc.GetStatus(context.Background(), "budget-1")
	require.NoError(t, err)

	assert.True(t, status.UtilizationPercentage.Equal(dec("110")))
	assert.True(t, status.IsOverBudget)
	assert.Len(t, status.Alerts, 2)
}

func TestForecast_AveragesMonthlySpend(t *testing.T) {
	budget := testBudget("120000000", "3000000")
	budgetRepo := &mockBudgetRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Budget, error) {
			return budget, nil
		},
	}

	jun := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	jul := time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC)
	claimRepo := &mockClaimRepo{
		listByScopeFunc: func(ctx context.Context, departmentID, projectID string, statuses []string) ([]*entity.Claim, error) {
			return []*entity.Claim{
				{TotalAmount: dec("1000000"), SubmittedAt: &jun},
				{TotalAmount: dec("500000"), SubmittedAt: &jun},
				{TotalAmount: dec("1500000"), SubmittedAt: &jul},
			}, nil
		},
	}
	svc := newBudgetService(budgetRepo, claimRepo, &mockUserRepo{}, &mockNotificationService{})

	forecast, err := svc.Forecast(context.Background(), "budget-1")
	require.NoError(t, err)

	// Two months, 3000000 total -> 1500000 per month, 18000000 over 12 months
	assert.True(t, forecast.AvgMonthlySpending.Equal(dec("1500000")))
	assert.True(t, forecast.ProjectedSpending.Equal(dec("18000000")))
	assert.True(t, forecast.ProjectedTotal.Equal(dec("21000000")))
	assert.False(t, forecast.WillExceedBudget)
}

func TestForecast_NoHistory(t *testing.T) {
	budgetRepo := &mockBudgetRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Budget, error) {
			return testBudget("1000000", "0"), nil
		},
	}
	svc := newBudgetService(budgetRepo, &mockClaimRepo{}, &mockUserRepo{}, &mockNotificationService{})

	forecast, err := svc.Forecast(context.Background(), "budget-1")
	require.NoError(t, err)
	assert.True(t, forecast.AvgMonthlySpending.IsZero())
	assert.False(t, forecast.WillExceedBudget)
}
