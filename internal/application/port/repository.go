package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// ClaimFilter narrows claim listings
type ClaimFilter struct {
	Status   string
	FromDate *time.Time
	ToDate   *time.Time
	Page     int
	Limit    int
}

// ClaimRepository defines persistence operations for Claim and its items.
// Items are owned by the claim and written through it.
type ClaimRepository interface {
	// Create inserts the claim together with its items
	Create(ctx context.Context, claim *entity.Claim) error

	// GetByID loads the claim with items, approvals, and violations
	GetByID(ctx context.Context, id string) (*entity.Claim, error)

	// ListByUser returns the user's claims newest-first with the total match count
	ListByUser(ctx context.Context, userID string, filter ClaimFilter) ([]*entity.Claim, int, error)

	// UpdateStatus sets status and, when level >= 0, the current approval level
	UpdateStatus(ctx context.Context, id string, status string, level int) error

	// MarkSubmitted sets status PENDING_APPROVAL and records the submission time
	MarkSubmitted(ctx context.Context, id string, submittedAt time.Time) error

	// FindDuplicate reports whether a live claim of the same user and total has
	// an item dated within a day of the given date
	FindDuplicate(ctx context.Context, userID string, amount decimal.Decimal, date time.Time) (bool, error)

	// ListApprovedUnbatched returns APPROVED claims not yet in a payroll batch,
	// submitted within the period
	ListApprovedUnbatched(ctx context.Context, periodStart, periodEnd time.Time) ([]*entity.Claim, error)

	// AssignPayrollBatch links the claims to a batch
	AssignPayrollBatch(ctx context.Context, claimIDs []string, batchID string) error

	// MarkPaid sets status PAID and the payment date for every claim in the batch
	MarkPaid(ctx context.Context, batchID string, paymentDate time.Time) error

	// ListByScope returns claims for a department or project in the given
	// statuses, oldest submission first (budget forecasting)
	ListByScope(ctx context.Context, departmentID, projectID string, statuses []string) ([]*entity.Claim, error)

	// UpdateItemOCR stores advisory OCR results on an item
	UpdateItemOCR(ctx context.Context, itemID string, ocrData string, confidence float64, processedAt time.Time) error

	// NextClaimNumber atomically increments and returns the sequence for the
	// given prefix (for example CLM-202608). Must be called inside the
	// operation's transaction.
	NextClaimNumber(ctx context.Context, prefix string) (int64, error)
}

// ApprovalRepository defines persistence operations for Approval records
type ApprovalRepository interface {
	Create(ctx context.Context, approval *entity.Approval) error

	// GetPending returns the PENDING approval assigned to the approver on the
	// claim, or entity not-found
	GetPending(ctx context.Context, claimID, approverID string) (*entity.Approval, error)

	// GetPendingAtLevel returns the PENDING approval at the given level
	GetPendingAtLevel(ctx context.Context, claimID string, level int) (*entity.Approval, error)

	// ListByClaim returns all approvals for the claim ordered by level
	ListByClaim(ctx context.Context, claimID string) ([]*entity.Approval, error)

	// ListPendingByApprover returns PENDING approvals assigned to the approver,
	// oldest first
	ListPendingByApprover(ctx context.Context, approverID string) ([]*entity.Approval, error)

	// Resolve conditionally moves the approval out of PENDING. Returns
	// entity state conflict when the row was already resolved, which is how
	// concurrent double-approval races lose.
	Resolve(ctx context.Context, id string, status string, comments string, resolvedAt time.Time) error
}

// CompanyPolicyRepository reads administrator-managed expense policies
type CompanyPolicyRepository interface {
	ListActive(ctx context.Context) ([]*entity.CompanyPolicy, error)
	GetByID(ctx context.Context, id string) (*entity.CompanyPolicy, error)
}

// ApprovalPolicyRepository reads approval-chain definitions
type ApprovalPolicyRepository interface {
	// ListActiveForDepartment returns active policies scoped to the department
	// or unscoped, priority descending
	ListActiveForDepartment(ctx context.Context, departmentID string) ([]*entity.ApprovalPolicy, error)

	// GetCatchAll returns the lowest-priority active policy with no department
	// and no claim types, or nil when none exists
	GetCatchAll(ctx context.Context) (*entity.ApprovalPolicy, error)
}

// ViolationRepository persists compliance findings
type ViolationRepository interface {
	CreateBatch(ctx context.Context, violations []*entity.PolicyViolation) error
	ListByClaim(ctx context.Context, claimID string) ([]*entity.PolicyViolation, error)
	SetWaived(ctx context.Context, id string, waived bool) error
}

// UserRepository reads the local user projection
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)

	// FirstActiveByRole returns the earliest-created ACTIVE user holding the
	// role, or entity not-found. The ordering is the deterministic tie-break
	// for role-based approver resolution.
	FirstActiveByRole(ctx context.Context, role entity.Role) (*entity.User, error)

	// ListActiveManagers returns ACTIVE users with role MANAGER in the department
	ListActiveManagers(ctx context.Context, departmentID string) ([]*entity.User, error)
}

// BudgetRepository persists budget envelopes
type BudgetRepository interface {
	Create(ctx context.Context, budget *entity.Budget) error
	GetByID(ctx context.Context, id string) (*entity.Budget, error)
	ListByDepartment(ctx context.Context, departmentID string) ([]*entity.Budget, error)

	// UpdateSpending writes the recomputed spent and remaining amounts
	UpdateSpending(ctx context.Context, id string, spent, remaining decimal.Decimal) error
}

// NotificationRepository persists in-app notification records
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error)
	MarkRead(ctx context.Context, id string, readAt time.Time) error
}

// PayrollBatchRepository persists payroll batches
type PayrollBatchRepository interface {
	Create(ctx context.Context, batch *entity.PayrollBatch) error

	// GetByID loads the batch with its claims (including items and users resolved
	// through the claim repository's hydration)
	GetByID(ctx context.Context, id string) (*entity.PayrollBatch, error)

	// MarkExported records the export outcome
	MarkExported(ctx context.Context, id string, format string, exportedBy string, exportedAt time.Time) error

	// NextBatchNumber atomically increments and returns the sequence for the
	// given prefix (for example PAY-202608)
	NextBatchNumber(ctx context.Context, prefix string) (int64, error)
}

// TransactionManager executes a function within a database transaction.
// Nested calls reuse the ambient transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
