package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimType enumerates the supported expense claim types
type ClaimType string

const (
	ClaimTypeMeal           ClaimType = "MEAL"
	ClaimTypeTransportation ClaimType = "TRANSPORTATION"
	ClaimTypeAccommodation  ClaimType = "ACCOMMODATION"
	ClaimTypeEntertainment  ClaimType = "ENTERTAINMENT"
	ClaimTypeEquipment      ClaimType = "EQUIPMENT"
	ClaimTypeOther          ClaimType = "OTHER"
)

// ExpenseCategory is the category of a single line item. Categories share the
// claim-type vocabulary; an item category outside this set is a policy violation.
type ExpenseCategory string

const (
	CategoryMeal           ExpenseCategory = "MEAL"
	CategoryTransportation ExpenseCategory = "TRANSPORTATION"
	CategoryAccommodation  ExpenseCategory = "ACCOMMODATION"
	CategoryEntertainment  ExpenseCategory = "ENTERTAINMENT"
	CategoryEquipment      ExpenseCategory = "EQUIPMENT"
	CategoryOther          ExpenseCategory = "OTHER"
)

var authorizedCategories = map[ExpenseCategory]bool{
	CategoryMeal:           true,
	CategoryTransportation: true,
	CategoryAccommodation:  true,
	CategoryEntertainment:  true,
	CategoryEquipment:      true,
	CategoryOther:          true,
}

// IsAuthorized reports whether the category belongs to the authorized set
func (c ExpenseCategory) IsAuthorized() bool {
	return authorizedCategories[c]
}

// Claim is one expense reimbursement request. Items may be attached only while
// the claim is in DRAFT; the claim becomes immutable (except for approval
// metadata) once submitted and is never deleted after reaching a terminal state.
type Claim struct {
	ID                   string          `json:"id"`
	ClaimNumber          string          `json:"claim_number"` // CLM-YYYYMM-NNNNN, monotonic per month
	UserID               string          `json:"user_id"`
	Title                string          `json:"title"`
	Description          string          `json:"description,omitempty"`
	ClaimType            ClaimType       `json:"claim_type"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	Currency             string          `json:"currency"`
	Status               string          `json:"status"`
	DepartmentID         string          `json:"department_id,omitempty"`
	ProjectID            string          `json:"project_id,omitempty"`
	HasViolations        bool            `json:"has_violations"`
	CurrentApprovalLevel int             `json:"current_approval_level"`
	PayrollBatchID       string          `json:"payroll_batch_id,omitempty"`
	SubmittedAt          *time.Time      `json:"submitted_at,omitempty"`
	PaymentDate          *time.Time      `json:"payment_date,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`

	Items      []*ClaimItem       `json:"items,omitempty"`
	Approvals  []*Approval        `json:"approvals,omitempty"`
	Violations []*PolicyViolation `json:"policy_violations,omitempty"`
}

// RecomputeTotal sets TotalAmount to the sum of the item amounts. The total is
// always derived, never edited independently.
func (c *Claim) RecomputeTotal() {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Amount)
	}
	c.TotalAmount = total
}

// ClaimItem is one line expense within a claim, owned exclusively by its parent
type ClaimItem struct {
	ID             string          `json:"id"`
	ClaimID        string          `json:"claim_id"`
	Date           time.Time       `json:"date"`
	Category       ExpenseCategory `json:"category"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Vendor         string          `json:"vendor,omitempty"`
	ReceiptURL     string          `json:"receipt_url,omitempty"`
	OCRData        string          `json:"ocr_data,omitempty"` // JSON, advisory pre-fill only
	OCRConfidence  *float64        `json:"ocr_confidence,omitempty"`
	OCRProcessedAt *time.Time      `json:"ocr_processed_at,omitempty"`
	IsOCRVerified  bool            `json:"is_ocr_verified"`
	CreatedAt      time.Time       `json:"created_at"`
}

// HasReceipt reports whether a receipt document is attached to the item
func (i *ClaimItem) HasReceipt() bool {
	return i.ReceiptURL != ""
}

// ReceiptData is the structured result of OCR receipt parsing. All fields are
// optional; parsed values pre-fill item forms and are never authoritative over
// what the employee submits.
type ReceiptData struct {
	Date       *time.Time       `json:"date,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Vendor     string           `json:"vendor,omitempty"`
	Category   ExpenseCategory  `json:"category,omitempty"`
	Currency   string           `json:"currency,omitempty"`
	Confidence float64          `json:"confidence"`
	RawText    string           `json:"raw_text,omitempty"`
}
