package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// PolicyService resolves approval policies and materializes approval chains
type PolicyService interface {
	// Resolve selects the single applicable approval policy for the claim
	// scope. Active policies are evaluated priority-descending; the first whose
	// claim-type and amount bounds match wins. When none match, the catch-all
	// (no department, no claim types, lowest priority) is returned. A nil
	// result means submission must fail.
	Resolve(ctx context.Context, departmentID string, claimType entity.ClaimType, amount decimal.Decimal) (*entity.ApprovalPolicy, error)

	// BuildChain creates one PENDING approval per policy level for the claim,
	// resolving abstract roles to concrete users. Fails with ErrPolicyResolution
	// when any level cannot be staffed; a chain with silently missing levels
	// could complete without a mandated sign-off.
	BuildChain(ctx context.Context, claimID string, policy *entity.ApprovalPolicy, submitterID string) ([]*entity.Approval, error)
}

type policyServiceImpl struct {
	approvalPolicyRepo port.ApprovalPolicyRepository
	approvalRepo       port.ApprovalRepository
	userRepo           port.UserRepository
	resolver           port.ApproverResolver
	logger             Logger
}

// NewPolicyService creates a new PolicyService
func NewPolicyService(
	approvalPolicyRepo port.ApprovalPolicyRepository,
	approvalRepo port.ApprovalRepository,
	userRepo port.UserRepository,
	resolver port.ApproverResolver,
	logger Logger,
) PolicyService {
	return &policyServiceImpl{
		approvalPolicyRepo: approvalPolicyRepo,
		approvalRepo:       approvalRepo,
		userRepo:           userRepo,
		resolver:           resolver,
		logger:             logger,
	}
}

// Resolve selects the applicable approval policy with the catch-all fallback
func (s *policyServiceImpl) Resolve(ctx context.Context, departmentID string, claimType entity.ClaimType, amount decimal.Decimal) (*entity.ApprovalPolicy, error) {
	policies, err := s.approvalPolicyRepo.ListActiveForDepartment(ctx, departmentID)
	if err != nil {
		s.logger.Error("Failed to load approval policies", "error", err, "department_id", departmentID)
		return nil, fmt.Errorf("list approval policies: %w", err)
	}

	for _, policy := range policies {
		if policy.AppliesTo(claimType, amount) {
			return policy, nil
		}
	}

	catchAll, err := s.approvalPolicyRepo.GetCatchAll(ctx)
	if err != nil {
		s.logger.Error("Failed to load catch-all approval policy", "error", err)
		return nil, fmt.Errorf("get catch-all policy: %w", err)
	}
	return catchAll, nil
}

// BuildChain materializes the approval records for a submitted claim
func (s *policyServiceImpl) BuildChain(ctx context.Context, claimID string, policy *entity.ApprovalPolicy, submitterID string) ([]*entity.Approval, error) {
	submitter, err := s.userRepo.GetByID(ctx, submitterID)
	if err != nil {
		s.logger.Error("Failed to load submitter", "error", err, "user_id", submitterID)
		return nil, fmt.Errorf("get submitter: %w", err)
	}

	levels := append([]entity.ApprovalLevel{}, policy.ApprovalLevels...)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })

	approvals := make([]*entity.Approval, 0, len(levels))
	for _, level := range levels {
		approver, err := s.resolver.ResolveApprover(ctx, level.ApproverRole, submitter)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				s.logger.Error("No approver for level",
					"claim_id", claimID, "level", level.Level, "role", level.ApproverRole)
				return nil, fmt.Errorf("%w: no approver available for level %d (%s)", ErrPolicyResolution, level.Level, level.ApproverRole)
			}
			return nil, fmt.Errorf("resolve approver for level %d: %w", level.Level, err)
		}

		approval := &entity.Approval{
			ID:         uuid.NewString(),
			ClaimID:    claimID,
			ApproverID: approver.ID,
			Level:      level.Level,
			Status:     entity.ApprovalStatusPending,
			CreatedAt:  time.Now(),
		}
		if err := s.approvalRepo.Create(ctx, approval); err != nil {
			return nil, fmt.Errorf("create approval for level %d: %w", level.Level, err)
		}
		approvals = append(approvals, approval)
	}

	s.logger.Info("Approval chain created",
		"claim_id", claimID, "policy", policy.Name, "levels", len(approvals))
	return approvals, nil
}

// approverResolverImpl is the default role-to-user strategy: MANAGER resolves
// to the submitter's manager, FINANCE/CFO to the earliest-created active
// holder of the role, and any miss falls back to an active ADMIN.
type approverResolverImpl struct {
	userRepo port.UserRepository
}

// NewApproverResolver creates the default approver resolution strategy
func NewApproverResolver(userRepo port.UserRepository) port.ApproverResolver {
	return &approverResolverImpl{userRepo: userRepo}
}

// ResolveApprover implements port.ApproverResolver
func (r *approverResolverImpl) ResolveApprover(ctx context.Context, role entity.Role, submitter *entity.User) (*entity.User, error) {
	var approver *entity.User

	switch role {
	case entity.RoleManager:
		if submitter.ManagerID != "" {
			manager, err := r.userRepo.GetByID(ctx, submitter.ManagerID)
			if err == nil && manager.IsActive() {
				approver = manager
			}
		}
	case entity.RoleFinance, entity.RoleCFO:
		user, err := r.userRepo.FirstActiveByRole(ctx, role)
		if err == nil {
			approver = user
		}
	}

	if approver == nil {
		admin, err := r.userRepo.FirstActiveByRole(ctx, entity.RoleAdmin)
		if err != nil {
			return nil, fmt.Errorf("%w: no active approver for role %s and no admin fallback", ErrNotFound, role)
		}
		approver = admin
	}

	return approver, nil
}
