package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PolicyRule is a category-specific expense rule attached to a CompanyPolicy.
// Rules are stored as JSON and decoded into the variant matching the policy
// category, so the checker never works with untyped maps.
type PolicyRule interface {
	Category() ExpenseCategory
}

// CapRule is a simple upper bound on a single amount
type CapRule struct {
	MaxAmount decimal.Decimal `json:"max_amount"`
	Currency  string          `json:"currency,omitempty"`
}

// MealRule caps the total of MEAL items in a claim
type MealRule struct {
	MaxAmount decimal.Decimal `json:"max_amount"`
	Currency  string          `json:"currency,omitempty"`
	PerDay    bool            `json:"per_day,omitempty"`
}

func (MealRule) Category() ExpenseCategory { return CategoryMeal }

// AccommodationRule caps each ACCOMMODATION item, with separate domestic and
// international limits
type AccommodationRule struct {
	Domestic      *CapRule `json:"domestic,omitempty"`
	International *CapRule `json:"international,omitempty"`
}

func (AccommodationRule) Category() ExpenseCategory { return CategoryAccommodation }

// ItemCap returns the limit applied to a single accommodation item. The
// domestic cap wins when both are configured.
func (r AccommodationRule) ItemCap() *CapRule {
	if r.Domestic != nil {
		return r.Domestic
	}
	return r.International
}

// TransportationRule caps transportation items (currently taxi fares per trip)
type TransportationRule struct {
	Taxi   *CapRule    `json:"taxi,omitempty"`
	Flight *FlightRule `json:"flight,omitempty"`
}

func (TransportationRule) Category() ExpenseCategory { return CategoryTransportation }

// FlightRule describes flight booking constraints. Informational only; flight
// bookings are approved through the normal chain, not the compliance checker.
type FlightRule struct {
	RequiresApproval bool   `json:"requires_approval,omitempty"`
	Class            string `json:"class,omitempty"`
}

// CompanyPolicy is an administrator-managed expense policy scoped to one
// category. Read-only from the engine's perspective during claim evaluation.
type CompanyPolicy struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    ExpenseCategory `json:"category"`
	Description string          `json:"description,omitempty"`
	RulesJSON   string          `json:"-"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Rule decodes the stored rule set into the variant for the policy category.
// Categories without a structured rule variant yield a nil rule.
func (p *CompanyPolicy) Rule() (PolicyRule, error) {
	if p.RulesJSON == "" {
		return nil, nil
	}

	switch p.Category {
	case CategoryMeal:
		var r MealRule
		if err := json.Unmarshal([]byte(p.RulesJSON), &r); err != nil {
			return nil, fmt.Errorf("decode meal rule for policy %s: %w", p.Name, err)
		}
		return r, nil
	case CategoryAccommodation:
		var r AccommodationRule
		if err := json.Unmarshal([]byte(p.RulesJSON), &r); err != nil {
			return nil, fmt.Errorf("decode accommodation rule for policy %s: %w", p.Name, err)
		}
		return r, nil
	case CategoryTransportation:
		var r TransportationRule
		if err := json.Unmarshal([]byte(p.RulesJSON), &r); err != nil {
			return nil, fmt.Errorf("decode transportation rule for policy %s: %w", p.Name, err)
		}
		return r, nil
	default:
		return nil, nil
	}
}

// ApprovalLevel is one stage in an approval chain definition
type ApprovalLevel struct {
	Level         int  `json:"level"`
	ApproverRole  Role `json:"approver_role"`
	RequiredCount int  `json:"required_count"`
}

// ApprovalPolicy defines an ordered approval chain for claims matching its
// department, claim-type, and amount scope. Policies are evaluated by priority
// descending; a catch-all policy (no department, no claim types) must exist so
// resolution never leaves a claim without a reviewer.
type ApprovalPolicy struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	DepartmentID   string           `json:"department_id,omitempty"` // empty = all departments
	ClaimTypes     []ClaimType      `json:"claim_types"`             // empty = all types
	MinAmount      decimal.Decimal  `json:"min_amount"`              // inclusive
	MaxAmount      *decimal.Decimal `json:"max_amount,omitempty"`    // inclusive, nil = unbounded
	ApprovalLevels []ApprovalLevel  `json:"approval_levels"`
	IsActive       bool             `json:"is_active"`
	Priority       int              `json:"priority"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// AppliesTo reports whether the policy scope covers the given claim type and
// amount. Department scoping is handled by the repository query.
func (p *ApprovalPolicy) AppliesTo(claimType ClaimType, amount decimal.Decimal) bool {
	if len(p.ClaimTypes) > 0 && !containsClaimType(p.ClaimTypes, claimType) {
		return false
	}
	if amount.LessThan(p.MinAmount) {
		return false
	}
	if p.MaxAmount != nil && amount.GreaterThan(*p.MaxAmount) {
		return false
	}
	return true
}

// IsCatchAll reports whether the policy is the unscoped default
func (p *ApprovalPolicy) IsCatchAll() bool {
	return p.DepartmentID == "" && len(p.ClaimTypes) == 0
}

func containsClaimType(types []ClaimType, t ClaimType) bool {
	for _, ct := range types {
		if ct == t {
			return true
		}
	}
	return false
}
