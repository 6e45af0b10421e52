package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Budget tracks allocation versus spend for a department, project, or fiscal
// period. Spend is mutated only through the ledger's add/subtract operation;
// remaining amount is recomputed on every mutation, never overwritten directly.
type Budget struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	DepartmentID    string          `json:"department_id,omitempty"`
	ProjectID       string          `json:"project_id,omitempty"`
	FiscalYear      int             `json:"fiscal_year"`
	FiscalPeriod    string          `json:"fiscal_period,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	SpentAmount     decimal.Decimal `json:"spent_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	AlertThreshold  decimal.Decimal `json:"alert_threshold"` // percentage
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Utilization returns spend as a percentage of the allocation. A zero
// allocation reports 0 rather than dividing by zero.
func (b *Budget) Utilization() decimal.Decimal {
	if !b.TotalAmount.IsPositive() {
		return decimal.Zero
	}
	return b.SpentAmount.Div(b.TotalAmount).Mul(decimal.NewFromInt(100))
}

// IsOverBudget reports whether spend exceeds the allocation
func (b *Budget) IsOverBudget() bool {
	return b.SpentAmount.GreaterThan(b.TotalAmount)
}

// BudgetStatus is the ledger's reporting view of a budget
type BudgetStatus struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	SpentAmount           decimal.Decimal `json:"spent_amount"`
	RemainingAmount       decimal.Decimal `json:"remaining_amount"`
	UtilizationPercentage decimal.Decimal `json:"utilization_percentage"`
	IsOverBudget          bool            `json:"is_over_budget"`
	Alerts                []string        `json:"alerts"`
}

// BudgetForecast projects spend forward from the approved-claim history
type BudgetForecast struct {
	CurrentSpent       decimal.Decimal `json:"current_spent"`
	AvgMonthlySpending decimal.Decimal `json:"avg_monthly_spending"`
	ProjectedSpending  decimal.Decimal `json:"projected_spending"`
	ProjectedTotal     decimal.Decimal `json:"projected_total"`
	WillExceedBudget   bool            `json:"will_exceed_budget"`
}
