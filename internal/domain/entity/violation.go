package entity

import "time"

// ViolationType enumerates compliance findings
type ViolationType string

const (
	ViolationAmountExceeded       ViolationType = "AMOUNT_EXCEEDED"
	ViolationMissingReceipt       ViolationType = "MISSING_RECEIPT"
	ViolationUnauthorizedCategory ViolationType = "UNAUTHORIZED_CATEGORY"
	ViolationDuplicateClaim       ViolationType = "DUPLICATE_CLAIM"
)

// Violation severity constants
const (
	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// PolicyViolation is a compliance finding attached to a claim. Violations are
// advisory at creation time and enforced by human approvers; they never block
// claim creation or submission. Immutable after creation except for the
// waived flag.
type PolicyViolation struct {
	ID         string        `json:"id"`
	ClaimID    string        `json:"claim_id"`
	Type       ViolationType `json:"type"`
	Severity   string        `json:"severity"`
	Message    string        `json:"message"`
	PolicyRule string        `json:"policy_rule,omitempty"` // name of the rule that produced it
	IsWaived   bool          `json:"is_waived"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ComplianceResult is the outcome of evaluating a claim against company policies
type ComplianceResult struct {
	IsCompliant bool               `json:"is_compliant"`
	Violations  []*PolicyViolation `json:"violations"`
}
