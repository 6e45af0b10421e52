package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payroll batch status constants
const (
	PayrollBatchStatusDraft    = "DRAFT"
	PayrollBatchStatusExported = "EXPORTED"
)

// Payroll export formats
const (
	ExportFormatCSV  = "CSV"
	ExportFormatJSON = "JSON"
	ExportFormatXLSX = "XLSX"
)

// PayrollBatch groups approved claims for payout. Batch numbers follow
// PAY-YYYYMM-NNNN, monotonic per month. Exporting a batch marks its claims
// PAID; a claim belongs to at most one batch.
type PayrollBatch struct {
	ID           string          `json:"id"`
	BatchNumber  string          `json:"batch_number"`
	PeriodStart  time.Time       `json:"period_start"`
	PeriodEnd    time.Time       `json:"period_end"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	ClaimCount   int             `json:"claim_count"`
	Status       string          `json:"status"`
	ExportFormat string          `json:"export_format,omitempty"`
	ExportedAt   *time.Time      `json:"exported_at,omitempty"`
	ExportedBy   string          `json:"exported_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`

	Claims []*Claim `json:"claims,omitempty"`
}
