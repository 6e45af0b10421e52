package entity

import "time"

// Approval status constants
const (
	ApprovalStatusPending  = "PENDING"
	ApprovalStatusApproved = "APPROVED"
	ApprovalStatusRejected = "REJECTED"
)

// Approval is one pending or resolved sign-off bound to a claim and a level.
// All approvals for a claim are created together at submission time, each
// starts PENDING, and each is resolved exactly once.
type Approval struct {
	ID         string     `json:"id"`
	ClaimID    string     `json:"claim_id"`
	ApproverID string     `json:"approver_id"`
	Level      int        `json:"level"` // 1-based, contiguous per claim
	Status     string     `json:"status"`
	Comments   string     `json:"comments,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsResolved reports whether the approval has already been decided
func (a *Approval) IsResolved() bool {
	return a.Status != ApprovalStatusPending
}
