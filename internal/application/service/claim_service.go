package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
	"github.com/finovahq/expense-claims/internal/domain/workflow"
)

// ClaimItemInput is one line item of a claim creation request
type ClaimItemInput struct {
	Date        time.Time
	Category    entity.ExpenseCategory
	Description string
	Amount      decimal.Decimal
	Currency    string
	Vendor      string
	ReceiptURL  string
}

// CreateClaimRequest carries the caller input for claim creation
type CreateClaimRequest struct {
	Title        string
	Description  string
	ClaimType    entity.ClaimType
	Currency     string
	DepartmentID string
	ProjectID    string
	Items        []ClaimItemInput
}

// ClaimService owns the claim lifecycle: creation, submission, approval
// decisions, and the queries around them. All state transitions go through
// the lifecycle state machine; approve/reject are atomic per claim.
type ClaimService interface {
	CreateClaim(ctx context.Context, userID string, req CreateClaimRequest) (*entity.Claim, error)
	SubmitClaim(ctx context.Context, claimID, userID string) (*entity.Claim, error)
	ApproveClaim(ctx context.Context, claimID, approverID, comments string) (*entity.Claim, error)
	RejectClaim(ctx context.Context, claimID, approverID, comments string) (*entity.Claim, error)
	CancelClaim(ctx context.Context, claimID, userID string) (*entity.Claim, error)
	GetClaim(ctx context.Context, claimID string) (*entity.Claim, error)
	ListUserClaims(ctx context.Context, userID string, filter port.ClaimFilter) ([]*entity.Claim, int, error)
	ListPendingApprovals(ctx context.Context, approverID string) ([]*entity.Claim, error)
	AttachItemOCR(ctx context.Context, itemID string, data *entity.ReceiptData) error
	WaiveViolation(ctx context.Context, violationID string, waived bool) error
}

type claimServiceImpl struct {
	claimRepo     port.ClaimRepository
	approvalRepo  port.ApprovalRepository
	violationRepo port.ViolationRepository
	txManager     port.TransactionManager
	compliance    ComplianceService
	policies      PolicyService
	notifications NotificationService
	logger        Logger
	now           func() time.Time
}

// NewClaimService creates a new ClaimService
func NewClaimService(
	claimRepo port.ClaimRepository,
	approvalRepo port.ApprovalRepository,
	violationRepo port.ViolationRepository,
	txManager port.TransactionManager,
	compliance ComplianceService,
	policies PolicyService,
	notifications NotificationService,
	logger Logger,
) ClaimService {
	return &claimServiceImpl{
		claimRepo:     claimRepo,
		approvalRepo:  approvalRepo,
		violationRepo: violationRepo,
		txManager:     txManager,
		compliance:    compliance,
		policies:      policies,
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// CreateClaim creates a DRAFT claim with its items, runs the compliance
// checker, and attaches any violations. Violations are advisory: they are
// recorded, not enforced, at creation time.
func (s *claimServiceImpl) CreateClaim(ctx context.Context, userID string, req CreateClaimRequest) (*entity.Claim, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	now := s.now()
	currency := req.Currency
	if currency == "" {
		currency = "IDR"
	}

	claim := &entity.Claim{
		ID:           uuid.NewString(),
		UserID:       userID,
		Title:        req.Title,
		Description:  req.Description,
		ClaimType:    req.ClaimType,
		Currency:     currency,
		Status:       workflow.StateDraft.String(),
		DepartmentID: req.DepartmentID,
		ProjectID:    req.ProjectID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for _, in := range req.Items {
		itemCurrency := in.Currency
		if itemCurrency == "" {
			itemCurrency = currency
		}
		claim.Items = append(claim.Items, &entity.ClaimItem{
			ID:          uuid.NewString(),
			ClaimID:     claim.ID,
			Date:        in.Date,
			Category:    in.Category,
			Description: in.Description,
			Amount:      in.Amount,
			Currency:    itemCurrency,
			Vendor:      in.Vendor,
			ReceiptURL:  in.ReceiptURL,
			CreatedAt:   now,
		})
	}
	claim.RecomputeTotal()

	result, err := s.compliance.ValidateClaim(ctx, claim)
	if err != nil {
		return nil, err
	}
	claim.HasViolations = !result.IsCompliant

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		seq, err := s.claimRepo.NextClaimNumber(txCtx, claimNumberPrefix(now))
		if err != nil {
			return fmt.Errorf("next claim number: %w", err)
		}
		claim.ClaimNumber = fmt.Sprintf("%s-%05d", claimNumberPrefix(now), seq)

		if err := s.claimRepo.Create(txCtx, claim); err != nil {
			return fmt.Errorf("create claim: %w", err)
		}

		if len(result.Violations) > 0 {
			for _, v := range result.Violations {
				v.ID = uuid.NewString()
				v.ClaimID = claim.ID
				v.CreatedAt = now
			}
			if err := s.violationRepo.CreateBatch(txCtx, result.Violations); err != nil {
				return fmt.Errorf("create violations: %w", err)
			}
			claim.Violations = result.Violations
		}

		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create claim", "error", err, "user_id", userID)
		return nil, err
	}

	s.logger.Info("Claim created",
		"claim_id", claim.ID, "claim_number", claim.ClaimNumber,
		"total", claim.TotalAmount.String(), "has_violations", claim.HasViolations)
	return claim, nil
}

// SubmitClaim moves a DRAFT claim to PENDING_APPROVAL, resolving the approval
// policy and materializing the approval chain. Notifies the level-1 approver
// after the transaction commits.
func (s *claimServiceImpl) SubmitClaim(ctx context.Context, claimID, userID string) (*entity.Claim, error) {
	var claim *entity.Claim
	var firstApproval *entity.Approval

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		claim, err = s.claimRepo.GetByID(txCtx, claimID)
		if err != nil {
			return err
		}
		if claim.UserID != userID {
			return fmt.Errorf("%w: claim %s", ErrNotFound, claimID)
		}

		machine := workflow.NewClaimLifecycle(workflow.State(claim.Status))
		if !machine.CanFire(workflow.TriggerSubmit) {
			return fmt.Errorf("%w: only draft claims can be submitted (status %s)", ErrStateConflict, claim.Status)
		}
		if len(claim.Items) == 0 {
			return fmt.Errorf("%w: cannot submit claim without items", ErrStateConflict)
		}

		policy, err := s.policies.Resolve(txCtx, claim.DepartmentID, claim.ClaimType, claim.TotalAmount)
		if err != nil {
			return err
		}
		if policy == nil {
			return fmt.Errorf("%w: no approval policy found for this claim", ErrPolicyResolution)
		}

		approvals, err := s.policies.BuildChain(txCtx, claim.ID, policy, userID)
		if err != nil {
			return err
		}

		if err := machine.Fire(txCtx, workflow.TriggerSubmit); err != nil {
			return fmt.Errorf("%w: %v", ErrStateConflict, err)
		}

		submittedAt := s.now()
		if err := s.claimRepo.MarkSubmitted(txCtx, claim.ID, submittedAt); err != nil {
			return fmt.Errorf("mark submitted: %w", err)
		}

		claim.Status = machine.State().String()
		claim.SubmittedAt = &submittedAt
		claim.CurrentApprovalLevel = 1
		claim.Approvals = approvals
		for _, a := range approvals {
			if a.Level == 1 {
				firstApproval = a
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to submit claim", "error", err, "claim_id", claimID)
		return nil, err
	}

	if firstApproval != nil {
		s.dispatch(func() error {
			return s.notifications.NotifyApprovalRequired(ctx, firstApproval.ApproverID, claim, firstApproval)
		})
	}

	s.logger.Info("Claim submitted", "claim_id", claim.ID, "claim_number", claim.ClaimNumber)
	return claim, nil
}

// ApproveClaim records an approval decision by the currently assigned approver.
// Intermediate levels advance the chain pointer; the final level fires the
// APPROVE transition. The conditional resolve makes concurrent double-approval
// impossible: exactly one caller observes PENDING.
func (s *claimServiceImpl) ApproveClaim(ctx context.Context, claimID, approverID, comments string) (*entity.Claim, error) {
	var claim *entity.Claim
	var next *entity.Approval
	var approved bool

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		approval, err := s.approvalRepo.GetPending(txCtx, claimID, approverID)
		if err != nil {
			return fmt.Errorf("%w: approval not found or already processed", ErrNotFound)
		}

		if err := s.approvalRepo.Resolve(txCtx, approval.ID, entity.ApprovalStatusApproved, comments, s.now()); err != nil {
			if errors.Is(err, port.ErrConflict) {
				return fmt.Errorf("%w: approval not found or already processed", ErrStateConflict)
			}
			return err
		}

		claim, err = s.claimRepo.GetByID(txCtx, claimID)
		if err != nil {
			return err
		}

		next, err = s.approvalRepo.GetPendingAtLevel(txCtx, claimID, approval.Level+1)
		if err != nil && !IsNotFound(err) {
			return err
		}

		if next != nil {
			// Chain advances, status unchanged
			claim.CurrentApprovalLevel = next.Level
			if err := s.claimRepo.UpdateStatus(txCtx, claimID, claim.Status, next.Level); err != nil {
				return fmt.Errorf("advance approval level: %w", err)
			}
			return nil
		}

		// Final level: the claim is approved
		machine := workflow.NewClaimLifecycle(workflow.State(claim.Status))
		if err := machine.Fire(txCtx, workflow.TriggerApprove); err != nil {
			return fmt.Errorf("%w: %v", ErrStateConflict, err)
		}
		claim.Status = machine.State().String()
		claim.CurrentApprovalLevel = approval.Level
		approved = true
		return s.claimRepo.UpdateStatus(txCtx, claimID, claim.Status, approval.Level)
	})
	if err != nil {
		s.logger.Error("Failed to approve claim", "error", err, "claim_id", claimID, "approver_id", approverID)
		return nil, err
	}

	if approved {
		s.dispatch(func() error {
			return s.notifications.NotifyClaimStatus(ctx, claim.UserID, claim, workflow.StateApproved.String())
		})
	} else if next != nil {
		nextApproval := next
		s.dispatch(func() error {
			return s.notifications.NotifyApprovalRequired(ctx, nextApproval.ApproverID, claim, nextApproval)
		})
	}

	s.logger.Info("Approval recorded",
		"claim_id", claimID, "approver_id", approverID,
		"status", claim.Status, "level", claim.CurrentApprovalLevel)
	return claim, nil
}

// RejectClaim records a rejection. Rejection at any level terminates the whole
// chain: the claim moves to REJECTED and remaining PENDING approvals are left
// as-is. Comments are mandatory.
func (s *claimServiceImpl) RejectClaim(ctx context.Context, claimID, approverID, comments string) (*entity.Claim, error) {
	if comments == "" {
		return nil, fmt.Errorf("%w: rejection comments are required", ErrValidation)
	}

	var claim *entity.Claim
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		approval, err := s.approvalRepo.GetPending(txCtx, claimID, approverID)
		if err != nil {
			return fmt.Errorf("%w: approval not found or already processed", ErrNotFound)
		}

		if err := s.approvalRepo.Resolve(txCtx, approval.ID, entity.ApprovalStatusRejected, comments, s.now()); err != nil {
			if errors.Is(err, port.ErrConflict) {
				return fmt.Errorf("%w: approval not found or already processed", ErrStateConflict)
			}
			return err
		}

		claim, err = s.claimRepo.GetByID(txCtx, claimID)
		if err != nil {
			return err
		}

		machine := workflow.NewClaimLifecycle(workflow.State(claim.Status))
		if err := machine.Fire(txCtx, workflow.TriggerReject); err != nil {
			return fmt.Errorf("%w: %v", ErrStateConflict, err)
		}
		claim.Status = machine.State().String()
		return s.claimRepo.UpdateStatus(txCtx, claimID, claim.Status, -1)
	})
	if err != nil {
		s.logger.Error("Failed to reject claim", "error", err, "claim_id", claimID, "approver_id", approverID)
		return nil, err
	}

	s.dispatch(func() error {
		return s.notifications.NotifyClaimStatus(ctx, claim.UserID, claim, workflow.StateRejected.String())
	})

	s.logger.Info("Claim rejected", "claim_id", claimID, "approver_id", approverID)
	return claim, nil
}

// CancelClaim cancels a DRAFT claim
func (s *claimServiceImpl) CancelClaim(ctx context.Context, claimID, userID string) (*entity.Claim, error) {
	var claim *entity.Claim
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		claim, err = s.claimRepo.GetByID(txCtx, claimID)
		if err != nil {
			return err
		}
		if claim.UserID != userID {
			return fmt.Errorf("%w: claim %s", ErrNotFound, claimID)
		}

		machine := workflow.NewClaimLifecycle(workflow.State(claim.Status))
		if err := machine.Fire(txCtx, workflow.TriggerCancel); err != nil {
			return fmt.Errorf("%w: only draft claims can be cancelled", ErrStateConflict)
		}
		claim.Status = machine.State().String()
		return s.claimRepo.UpdateStatus(txCtx, claimID, claim.Status, -1)
	})
	if err != nil {
		s.logger.Error("Failed to cancel claim", "error", err, "claim_id", claimID)
		return nil, err
	}

	s.logger.Info("Claim cancelled", "claim_id", claimID)
	return claim, nil
}

// GetClaim loads a claim with items, approvals, and violations
func (s *claimServiceImpl) GetClaim(ctx context.Context, claimID string) (*entity.Claim, error) {
	claim, err := s.claimRepo.GetByID(ctx, claimID)
	if err != nil {
		s.logger.Error("Failed to get claim", "error", err, "claim_id", claimID)
		return nil, err
	}
	return claim, nil
}

// ListUserClaims returns the user's claims with the total match count
func (s *claimServiceImpl) ListUserClaims(ctx context.Context, userID string, filter port.ClaimFilter) ([]*entity.Claim, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	claims, total, err := s.claimRepo.ListByUser(ctx, userID, filter)
	if err != nil {
		s.logger.Error("Failed to list claims", "error", err, "user_id", userID)
		return nil, 0, err
	}
	return claims, total, nil
}

// ListPendingApprovals returns the claims waiting on the approver, oldest first
func (s *claimServiceImpl) ListPendingApprovals(ctx context.Context, approverID string) ([]*entity.Claim, error) {
	approvals, err := s.approvalRepo.ListPendingByApprover(ctx, approverID)
	if err != nil {
		s.logger.Error("Failed to list pending approvals", "error", err, "approver_id", approverID)
		return nil, err
	}

	claims := make([]*entity.Claim, 0, len(approvals))
	for _, approval := range approvals {
		claim, err := s.claimRepo.GetByID(ctx, approval.ClaimID)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

// AttachItemOCR stores advisory OCR results on a claim item
func (s *claimServiceImpl) AttachItemOCR(ctx context.Context, itemID string, data *entity.ReceiptData) error {
	if data == nil {
		return fmt.Errorf("%w: missing OCR data", ErrValidation)
	}

	payload, err := marshalReceiptData(data)
	if err != nil {
		return fmt.Errorf("encode ocr data: %w", err)
	}

	if err := s.claimRepo.UpdateItemOCR(ctx, itemID, payload, data.Confidence, s.now()); err != nil {
		s.logger.Error("Failed to store OCR data", "error", err, "item_id", itemID)
		return err
	}
	return nil
}

// WaiveViolation sets or clears the waived flag on a compliance finding. The
// finding itself is immutable; only the flag changes.
func (s *claimServiceImpl) WaiveViolation(ctx context.Context, violationID string, waived bool) error {
	if err := s.violationRepo.SetWaived(ctx, violationID, waived); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return fmt.Errorf("%w: violation %s", ErrNotFound, violationID)
		}
		return err
	}
	return nil
}

// dispatch runs a notification best-effort. Delivery failures are logged and
// absorbed; they never fail the primary operation.
func (s *claimServiceImpl) dispatch(fn func() error) {
	if err := fn(); err != nil {
		s.logger.Error("Notification dispatch failed", "error", err)
	}
}

func marshalReceiptData(data *entity.ReceiptData) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func claimNumberPrefix(t time.Time) string {
	return fmt.Sprintf("CLM-%04d%02d", t.Year(), int(t.Month()))
}

func validateCreateRequest(req CreateClaimRequest) error {
	if req.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if req.ClaimType == "" {
		return fmt.Errorf("%w: claim type is required", ErrValidation)
	}
	for i, item := range req.Items {
		if item.Description == "" {
			return fmt.Errorf("%w: item %d: description is required", ErrValidation, i+1)
		}
		if item.Amount.IsNegative() {
			return fmt.Errorf("%w: item %d: amount must not be negative", ErrValidation, i+1)
		}
		if item.Date.IsZero() {
			return fmt.Errorf("%w: item %d: date is required", ErrValidation, i+1)
		}
	}
	return nil
}
