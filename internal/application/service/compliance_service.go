package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// receiptRequiredAbove is the amount (minor currency units) above which an
// item without a receipt is flagged
var receiptRequiredAbove = decimal.NewFromInt(50000)

// ComplianceService evaluates candidate claims against active company
// policies. Pure evaluation: violations are recorded and surfaced to approvers
// and the claimant, they never block creation or submission.
type ComplianceService interface {
	// ValidateClaim checks the claim and its items against every active policy
	ValidateClaim(ctx context.Context, claim *entity.Claim) (*entity.ComplianceResult, error)

	// CheckDuplicate reports whether a live claim of the same user and total
	// exists with an item dated within a day of the given date
	CheckDuplicate(ctx context.Context, userID string, amount decimal.Decimal, date time.Time) (bool, error)
}

type complianceServiceImpl struct {
	policyRepo port.CompanyPolicyRepository
	claimRepo  port.ClaimRepository
	logger     Logger
}

// NewComplianceService creates a new ComplianceService
func NewComplianceService(
	policyRepo port.CompanyPolicyRepository,
	claimRepo port.ClaimRepository,
	logger Logger,
) ComplianceService {
	return &complianceServiceImpl{
		policyRepo: policyRepo,
		claimRepo:  claimRepo,
		logger:     logger,
	}
}

// ValidateClaim checks the claim against every active company policy plus the
// policy-independent per-item rules
func (s *complianceServiceImpl) ValidateClaim(ctx context.Context, claim *entity.Claim) (*entity.ComplianceResult, error) {
	policies, err := s.policyRepo.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to load active policies", "error", err)
		return nil, fmt.Errorf("list active policies: %w", err)
	}

	violations := make([]*entity.PolicyViolation, 0)
	for _, policy := range policies {
		found, err := s.checkPolicy(claim, policy)
		if err != nil {
			return nil, err
		}
		violations = append(violations, found...)
	}

	for _, item := range claim.Items {
		violations = append(violations, s.validateItem(item)...)
	}

	if len(claim.Items) > 0 {
		dup, err := s.CheckDuplicate(ctx, claim.UserID, claim.TotalAmount, claim.Items[0].Date)
		if err != nil {
			return nil, err
		}
		if dup {
			violations = append(violations, &entity.PolicyViolation{
				Type:       entity.ViolationDuplicateClaim,
				Severity:   entity.SeverityMedium,
				Message:    fmt.Sprintf("A claim with the same total of %s already exists for an item dated within a day", claim.TotalAmount.StringFixed(0)),
				PolicyRule: "Duplicate Claim Policy",
			})
		}
	}

	return &entity.ComplianceResult{
		IsCompliant: len(violations) == 0,
		Violations:  violations,
	}, nil
}

// checkPolicy applies one company policy. Category rules only fire when the
// claim type matches the policy category.
func (s *complianceServiceImpl) checkPolicy(claim *entity.Claim, policy *entity.CompanyPolicy) ([]*entity.PolicyViolation, error) {
	if entity.ExpenseCategory(claim.ClaimType) != policy.Category {
		return nil, nil
	}

	rule, err := policy.Rule()
	if err != nil {
		s.logger.Error("Skipping policy with undecodable rules", "policy", policy.Name, "error", err)
		return nil, nil
	}
	if rule == nil {
		return nil, nil
	}

	var violations []*entity.PolicyViolation

	switch r := rule.(type) {
	case entity.MealRule:
		total := decimal.Zero
		for _, item := range claim.Items {
			if item.Category == entity.CategoryMeal {
				total = total.Add(item.Amount)
			}
		}
		if r.MaxAmount.IsPositive() && total.GreaterThan(r.MaxAmount) {
			violations = append(violations, &entity.PolicyViolation{
				Type:       entity.ViolationAmountExceeded,
				Severity:   entity.SeverityHigh,
				Message:    fmt.Sprintf("Meal expenses exceed the daily limit of %s. Claimed total: %s", r.MaxAmount.StringFixed(0), total.StringFixed(0)),
				PolicyRule: policy.Name,
			})
		}

	case entity.AccommodationRule:
		cap := r.ItemCap()
		if cap == nil {
			break
		}
		for _, item := range claim.Items {
			if item.Category == entity.CategoryAccommodation && item.Amount.GreaterThan(cap.MaxAmount) {
				violations = append(violations, &entity.PolicyViolation{
					Type:       entity.ViolationAmountExceeded,
					Severity:   entity.SeverityHigh,
					Message:    fmt.Sprintf("Accommodation expense of %s exceeds the limit of %s", item.Amount.StringFixed(0), cap.MaxAmount.StringFixed(0)),
					PolicyRule: policy.Name,
				})
			}
		}

	case entity.TransportationRule:
		if r.Taxi == nil {
			break
		}
		for _, item := range claim.Items {
			if item.Amount.GreaterThan(r.Taxi.MaxAmount) {
				violations = append(violations, &entity.PolicyViolation{
					Type:       entity.ViolationAmountExceeded,
					Severity:   entity.SeverityMedium,
					Message:    fmt.Sprintf("Taxi fare of %s exceeds the per-trip limit of %s", item.Amount.StringFixed(0), r.Taxi.MaxAmount.StringFixed(0)),
					PolicyRule: policy.Name,
				})
			}
		}
	}

	return violations, nil
}

// validateItem applies the policy-independent rules every item must satisfy
func (s *complianceServiceImpl) validateItem(item *entity.ClaimItem) []*entity.PolicyViolation {
	var violations []*entity.PolicyViolation

	if !item.HasReceipt() && item.Amount.GreaterThan(receiptRequiredAbove) {
		violations = append(violations, &entity.PolicyViolation{
			Type:       entity.ViolationMissingReceipt,
			Severity:   entity.SeverityHigh,
			Message:    fmt.Sprintf("A receipt is required for expenses above %s", receiptRequiredAbove.StringFixed(0)),
			PolicyRule: "Receipt Requirement Policy",
		})
	}

	if !item.Category.IsAuthorized() {
		violations = append(violations, &entity.PolicyViolation{
			Type:       entity.ViolationUnauthorizedCategory,
			Severity:   entity.SeverityHigh,
			Message:    fmt.Sprintf("Category '%s' is not authorized", item.Category),
			PolicyRule: "Authorized Categories Policy",
		})
	}

	return violations
}

// CheckDuplicate looks for a live claim with the same total and a nearby item date
func (s *complianceServiceImpl) CheckDuplicate(ctx context.Context, userID string, amount decimal.Decimal, date time.Time) (bool, error) {
	found, err := s.claimRepo.FindDuplicate(ctx, userID, amount, date)
	if err != nil {
		s.logger.Error("Failed to check for duplicate claims", "error", err, "user_id", userID)
		return false, fmt.Errorf("find duplicate: %w", err)
	}
	return found, nil
}
