package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// Monetary amounts are stored as TEXT and parsed with shopspring/decimal so
// roundtrips never lose precision.

// ClaimRepository implements port.ClaimRepository
type ClaimRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *sql.DB, logger *zap.Logger) port.ClaimRepository {
	return &ClaimRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the claim together with its items
func (r *ClaimRepository) Create(ctx context.Context, claim *entity.Claim) error {
	query := `
		INSERT INTO claims (
			id, claim_number, user_id, title, description, claim_type,
			total_amount, currency, status, department_id, project_id,
			has_violations, current_approval_level, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		claim.ID, claim.ClaimNumber, claim.UserID, claim.Title,
		nullString(claim.Description), string(claim.ClaimType),
		claim.TotalAmount.String(), claim.Currency, claim.Status,
		nullString(claim.DepartmentID), nullString(claim.ProjectID),
		claim.HasViolations, claim.CurrentApprovalLevel,
		claim.CreatedAt, claim.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create claim",
			zap.String("claim_number", claim.ClaimNumber), zap.Error(err))
		return fmt.Errorf("failed to create claim: %w", err)
	}

	itemQuery := `
		INSERT INTO claim_items (
			id, claim_id, date, category, description, amount, currency,
			vendor, receipt_url, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, item := range claim.Items {
		_, err := getExecutor(ctx, r.db).ExecContext(ctx, itemQuery,
			item.ID, claim.ID, item.Date, string(item.Category),
			item.Description, item.Amount.String(), item.Currency,
			nullString(item.Vendor), nullString(item.ReceiptURL), item.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create claim item",
				zap.String("claim_id", claim.ID), zap.String("item_id", item.ID), zap.Error(err))
			return fmt.Errorf("failed to create claim item: %w", err)
		}
	}

	return nil
}

// GetByID loads the claim with its items, approvals, and violations
func (r *ClaimRepository) GetByID(ctx context.Context, id string) (*entity.Claim, error) {
	query := `
		SELECT id, claim_number, user_id, title, description, claim_type,
			total_amount, currency, status, department_id, project_id,
			has_violations, current_approval_level, payroll_batch_id,
			submitted_at, payment_date, created_at, updated_at
		FROM claims
		WHERE id = ?
	`
	claim, err := r.scanClaim(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get claim", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	if err := r.loadItems(ctx, claim); err != nil {
		return nil, err
	}
	if err := r.loadApprovals(ctx, claim); err != nil {
		return nil, err
	}
	if err := r.loadViolations(ctx, claim); err != nil {
		return nil, err
	}
	return claim, nil
}

// ListByUser returns the user's claims newest-first with the total match count
func (r *ClaimRepository) ListByUser(ctx context.Context, userID string, filter port.ClaimFilter) ([]*entity.Claim, int, error) {
	where := []string{"user_id = ?"}
	args := []interface{}{userID}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.FromDate != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.FromDate)
	}
	if filter.ToDate != nil {
		where = append(where, "created_at <= ?")
		args = append(args, *filter.ToDate)
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM claims WHERE " + whereClause
	if err := getExecutor(ctx, r.db).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count claims: %w", err)
	}

	query := `
		SELECT id, claim_number, user_id, title, description, claim_type,
			total_amount, currency, status, department_id, project_id,
			has_violations, current_approval_level, payroll_batch_id,
			submitted_at, payment_date, created_at, updated_at
		FROM claims
		WHERE ` + whereClause + `
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	claims, err := r.queryClaims(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list claims", zap.String("user_id", userID), zap.Error(err))
		return nil, 0, err
	}
	for _, claim := range claims {
		if err := r.loadItems(ctx, claim); err != nil {
			return nil, 0, err
		}
	}
	return claims, total, nil
}

// UpdateStatus sets status and, when level >= 0, the current approval level
func (r *ClaimRepository) UpdateStatus(ctx context.Context, id string, status string, level int) error {
	var err error
	if level >= 0 {
		_, err = getExecutor(ctx, r.db).ExecContext(ctx,
			`UPDATE claims SET status = ?, current_approval_level = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			status, level, id)
	} else {
		_, err = getExecutor(ctx, r.db).ExecContext(ctx,
			`UPDATE claims SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			status, id)
	}
	if err != nil {
		r.logger.Error("Failed to update claim status",
			zap.String("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to update claim status: %w", err)
	}
	return nil
}

// MarkSubmitted sets status PENDING_APPROVAL and records the submission time
func (r *ClaimRepository) MarkSubmitted(ctx context.Context, id string, submittedAt time.Time) error {
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE claims
		SET status = 'PENDING_APPROVAL', submitted_at = ?, current_approval_level = 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, submittedAt, id)
	if err != nil {
		r.logger.Error("Failed to mark claim submitted", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark claim submitted: %w", err)
	}
	return nil
}

// FindDuplicate reports whether a live claim of the same user and total has an
// item dated within a day of the given date
func (r *ClaimRepository) FindDuplicate(ctx context.Context, userID string, amount decimal.Decimal, date time.Time) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM claims c
		JOIN claim_items i ON i.claim_id = c.id
		WHERE c.user_id = ?
		  AND c.total_amount = ?
		  AND c.status NOT IN ('REJECTED', 'CANCELLED')
		  AND i.date BETWEEN ? AND ?
	`
	var count int
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query,
		userID, amount.String(), date.AddDate(0, 0, -1), date.AddDate(0, 0, 1),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicates: %w", err)
	}
	return count > 0, nil
}

// ListApprovedUnbatched returns APPROVED claims not yet in a payroll batch,
// submitted within the period
func (r *ClaimRepository) ListApprovedUnbatched(ctx context.Context, periodStart, periodEnd time.Time) ([]*entity.Claim, error) {
	query := `
		SELECT id, claim_number, user_id, title, description, claim_type,
			total_amount, currency, status, department_id, project_id,
			has_violations, current_approval_level, payroll_batch_id,
			submitted_at, payment_date, created_at, updated_at
		FROM claims
		WHERE status = 'APPROVED'
		  AND payroll_batch_id IS NULL
		  AND submitted_at >= ? AND submitted_at <= ?
		ORDER BY submitted_at ASC
	`
	claims, err := r.queryClaims(ctx, query, periodStart, periodEnd)
	if err != nil {
		r.logger.Error("Failed to list approved claims", zap.Error(err))
		return nil, err
	}
	return claims, nil
}

// AssignPayrollBatch links the claims to a batch
func (r *ClaimRepository) AssignPayrollBatch(ctx context.Context, claimIDs []string, batchID string) error {
	if len(claimIDs) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(claimIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(claimIDs)+1)
	args = append(args, batchID)
	for _, id := range claimIDs {
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		UPDATE claims SET payroll_batch_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (%s)
	`, placeholders)
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to assign payroll batch",
			zap.String("batch_id", batchID), zap.Int("claims", len(claimIDs)), zap.Error(err))
		return fmt.Errorf("failed to assign payroll batch: %w", err)
	}
	return nil
}

// MarkPaid sets status PAID and the payment date for every claim in the batch
func (r *ClaimRepository) MarkPaid(ctx context.Context, batchID string, paymentDate time.Time) error {
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE claims
		SET status = 'PAID', payment_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE payroll_batch_id = ? AND status = 'APPROVED'
	`, paymentDate, batchID)
	if err != nil {
		r.logger.Error("Failed to mark claims paid", zap.String("batch_id", batchID), zap.Error(err))
		return fmt.Errorf("failed to mark claims paid: %w", err)
	}
	return nil
}

// ListByScope returns claims for a department or project in the given statuses
func (r *ClaimRepository) ListByScope(ctx context.Context, departmentID, projectID string, statuses []string) ([]*entity.Claim, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	where := []string{}
	args := []interface{}{}
	if departmentID != "" {
		where = append(where, "department_id = ?")
		args = append(args, departmentID)
	}
	if projectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, projectID)
	}

	placeholders := strings.Repeat("?,", len(statuses))
	where = append(where, fmt.Sprintf("status IN (%s)", placeholders[:len(placeholders)-1]))
	for _, s := range statuses {
		args = append(args, s)
	}

	query := `
		SELECT id, claim_number, user_id, title, description, claim_type,
			total_amount, currency, status, department_id, project_id,
			has_violations, current_approval_level, payroll_batch_id,
			submitted_at, payment_date, created_at, updated_at
		FROM claims
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY submitted_at ASC
	`
	return r.queryClaims(ctx, query, args...)
}

// UpdateItemOCR stores advisory OCR results on an item
func (r *ClaimRepository) UpdateItemOCR(ctx context.Context, itemID string, ocrData string, confidence float64, processedAt time.Time) error {
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE claim_items
		SET ocr_data = ?, ocr_confidence = ?, ocr_processed_at = ?
		WHERE id = ?
	`, ocrData, confidence, processedAt, itemID)
	if err != nil {
		r.logger.Error("Failed to update item OCR data", zap.String("item_id", itemID), zap.Error(err))
		return fmt.Errorf("failed to update item ocr data: %w", err)
	}
	return nil
}

// NextClaimNumber atomically increments and returns the sequence for the prefix.
// The upsert serializes concurrent creators on the sequence row, so numbers are
// unique and monotonic per month.
func (r *ClaimRepository) NextClaimNumber(ctx context.Context, prefix string) (int64, error) {
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO sequences (prefix, value) VALUES (?, 1)
		ON CONFLICT(prefix) DO UPDATE SET value = value + 1
	`, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to advance claim sequence: %w", err)
	}

	var value int64
	err = getExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT value FROM sequences WHERE prefix = ?`, prefix).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to read claim sequence: %w", err)
	}
	return value, nil
}

func (r *ClaimRepository) queryClaims(ctx context.Context, query string, args ...interface{}) ([]*entity.Claim, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var claims []*entity.Claim
	for rows.Next() {
		claim, err := r.scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *ClaimRepository) scanClaim(row rowScanner) (*entity.Claim, error) {
	var claim entity.Claim
	var description, departmentID, projectID, payrollBatchID sql.NullString
	var claimType, totalAmount string
	var submittedAt, paymentDate sql.NullTime

	err := row.Scan(
		&claim.ID, &claim.ClaimNumber, &claim.UserID, &claim.Title,
		&description, &claimType, &totalAmount, &claim.Currency, &claim.Status,
		&departmentID, &projectID, &claim.HasViolations, &claim.CurrentApprovalLevel,
		&payrollBatchID, &submittedAt, &paymentDate, &claim.CreatedAt, &claim.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	claim.Description = description.String
	claim.DepartmentID = departmentID.String
	claim.ProjectID = projectID.String
	claim.PayrollBatchID = payrollBatchID.String
	claim.ClaimType = entity.ClaimType(claimType)
	if submittedAt.Valid {
		claim.SubmittedAt = &submittedAt.Time
	}
	if paymentDate.Valid {
		claim.PaymentDate = &paymentDate.Time
	}

	claim.TotalAmount, err = decimal.NewFromString(totalAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid total amount %q: %w", totalAmount, err)
	}
	return &claim, nil
}

func (r *ClaimRepository) loadItems(ctx context.Context, claim *entity.Claim) error {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT id, claim_id, date, category, description, amount, currency,
			vendor, receipt_url, ocr_data, ocr_confidence, ocr_processed_at, created_at
		FROM claim_items
		WHERE claim_id = ?
		ORDER BY date ASC, created_at ASC
	`, claim.ID)
	if err != nil {
		return fmt.Errorf("failed to query claim items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item entity.ClaimItem
		var category, amount string
		var vendor, receiptURL, ocrData sql.NullString
		var ocrConfidence sql.NullFloat64
		var ocrProcessedAt sql.NullTime

		err := rows.Scan(
			&item.ID, &item.ClaimID, &item.Date, &category, &item.Description,
			&amount, &item.Currency, &vendor, &receiptURL,
			&ocrData, &ocrConfidence, &ocrProcessedAt, &item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan claim item: %w", err)
		}

		item.Category = entity.ExpenseCategory(category)
		item.Vendor = vendor.String
		item.ReceiptURL = receiptURL.String
		item.OCRData = ocrData.String
		if ocrConfidence.Valid {
			item.OCRConfidence = &ocrConfidence.Float64
		}
		if ocrProcessedAt.Valid {
			item.OCRProcessedAt = &ocrProcessedAt.Time
		}
		item.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("invalid item amount %q: %w", amount, err)
		}
		claim.Items = append(claim.Items, &item)
	}
	return rows.Err()
}

func (r *ClaimRepository) loadApprovals(ctx context.Context, claim *entity.Claim) error {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT id, claim_id, approver_id, level, status, comments, resolved_at, created_at
		FROM approvals
		WHERE claim_id = ?
		ORDER BY level ASC
	`, claim.ID)
	if err != nil {
		return fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return err
		}
		claim.Approvals = append(claim.Approvals, approval)
	}
	return rows.Err()
}

func (r *ClaimRepository) loadViolations(ctx context.Context, claim *entity.Claim) error {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT id, claim_id, type, severity, message, policy_rule, is_waived, created_at
		FROM policy_violations
		WHERE claim_id = ?
		ORDER BY created_at ASC
	`, claim.ID)
	if err != nil {
		return fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v entity.PolicyViolation
		var vType string
		var policyRule sql.NullString
		err := rows.Scan(&v.ID, &v.ClaimID, &vType, &v.Severity, &v.Message,
			&policyRule, &v.IsWaived, &v.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to scan violation: %w", err)
		}
		v.Type = entity.ViolationType(vType)
		v.PolicyRule = policyRule.String
		claim.Violations = append(claim.Violations, &v)
	}
	return rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Verify interface compliance
var _ port.ClaimRepository = (*ClaimRepository)(nil)
