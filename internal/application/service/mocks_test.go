package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// Hand-written mocks with overridable func fields, one per port.

type testLogger struct{}

func (testLogger) Info(msg string, keysAndValues ...interface{})  {}
func (testLogger) Error(msg string, keysAndValues ...interface{}) {}

// passthroughTxManager runs the function without a real transaction
type passthroughTxManager struct{}

func (passthroughTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockClaimRepo struct {
	createFunc                func(ctx context.Context, claim *entity.Claim) error
	getByIDFunc               func(ctx context.Context, id string) (*entity.Claim, error)
	listByUserFunc            func(ctx context.Context, userID string, filter port.ClaimFilter) ([]*entity.Claim, int, error)
	updateStatusFunc          func(ctx context.Context, id string, status string, level int) error
	markSubmittedFunc         func(ctx context.Context, id string, submittedAt time.Time) error
	findDuplicateFunc         func(ctx context.Context, userID string, amount decimal.Decimal, date time.Time) (bool, error)
	listApprovedUnbatchedFunc func(ctx context.Context, periodStart, periodEnd time.Time) ([]*entity.Claim, error)
	assignPayrollBatchFunc    func(ctx context.Context, claimIDs []string, batchID string) error
	markPaidFunc              func(ctx context.Context, batchID string, paymentDate time.Time) error
	listByScopeFunc           func(ctx context.Context, departmentID, projectID string, statuses []string) ([]*entity.Claim, error)
	updateItemOCRFunc         func(ctx context.Context, itemID string, ocrData string, confidence float64, processedAt time.Time) error
	nextClaimNumberFunc       func(ctx context.Context, prefix string) (int64, error)
}

func (m *mockClaimRepo) Create(ctx context.Context, claim *entity.Claim) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, claim)
	}
	return nil
}

func (m *mockClaimRepo) GetByID(ctx context.Context, id string) (*entity.Claim, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, port.ErrNotFound
}

func (m *mockClaimRepo) ListByUser(ctx context.Context, userID string, filter port.ClaimFilter) ([]*entity.Claim, int, error) {
	if m.listByUserFunc != nil {
		return m.listByUserFunc(ctx, userID, filter)
	}
	return nil, 0, nil
}

func (m *mockClaimRepo) UpdateStatus(ctx context.Context, id string, status string, level int) error {
	if m.updateStatusFunc != nil {
		return m.updateStatusFunc(ctx, id, status, level)
	}
	return nil
}

func (m *mockClaimRepo) MarkSubmitted(ctx context.Context, id string, submittedAt time.Time) error {
	if m.markSubmittedFunc != nil {
		return m.markSubmittedFunc(ctx, id, submittedAt)
	}
	return nil
}

func (m *mockClaimRepo) FindDuplicate(ctx context.Context, userID string, amount decimal.Decimal, date time.Time) (bool, error) {
	if m.findDuplicateFunc != nil {
		return m.findDuplicateFunc(ctx, userID, amount, date)
	}
	return false, nil
}

func (m *mockClaimRepo) ListApprovedUnbatched(ctx context.Context, periodStart, periodEnd time.Time) ([]*entity.Claim, error) {
	if m.listApprovedUnbatchedFunc != nil {
		return m.listApprovedUnbatchedFunc(ctx, periodStart, periodEnd)
	}
	return nil, nil
}

func (m *mockClaimRepo) AssignPayrollBatch(ctx context.Context, claimIDs []string, batchID string) error {
	if m.assignPayrollBatchFunc != nil {
		return m.assignPayrollBatchFunc(ctx, claimIDs, batchID)
	}
	return nil
}

func (m *mockClaimRepo) MarkPaid(ctx context.Context, batchID string, paymentDate time.Time) error {
	if m.markPaidFunc != nil {
		return m.markPaidFunc(ctx, batchID, paymentDate)
	}
	return nil
}

func (m *mockClaimRepo) ListByScope(ctx context.Context, departmentID, projectID string, statuses []string) ([]*entity.Claim, error) {
	if m.listByScopeFunc != nil {
		return m.listByScopeFunc(ctx, departmentID, projectID, statuses)
	}
	return nil, nil
}

func (m *mockClaimRepo) UpdateItemOCR(ctx context.Context, itemID string, ocrData string, confidence float64, processedAt time.Time) error {
	if m.updateItemOCRFunc != nil {
		return m.updateItemOCRFunc(ctx, itemID, ocrData, confidence, processedAt)
	}
	return nil
}

func (m *mockClaimRepo) NextClaimNumber(ctx context.Context, prefix string) (int64, error) {
	if m.nextClaimNumberFunc != nil {
		return m.nextClaimNumberFunc(ctx, prefix)
	}
	return 1, nil
}

type mockApprovalRepo struct {
	createFunc                func(ctx context.Context, approval *entity.Approval) error
	getPendingFunc            func(ctx context.Context, claimID, approverID string) (*entity.Approval, error)
	getPendingAtLevelFunc     func(ctx context.Context, claimID string, level int) (*entity.Approval, error)
	listByClaimFunc           func(ctx context.Context, claimID string) ([]*entity.Approval, error)
	listPendingByApproverFunc func(ctx context.Context, approverID string) ([]*entity.Approval, error)
	resolveFunc               func(ctx context.Context, id string, status string, comments string, resolvedAt time.Time) error
}

func (m *mockApprovalRepo) Create(ctx context.Context, approval *entity.Approval) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, approval)
	}
	return nil
}

func (m *mockApprovalRepo) GetPending(ctx context.Context, claimID, approverID string) (*entity.Approval, error) {
	if m.getPendingFunc != nil {
		return m.getPendingFunc(ctx, claimID, approverID)
	}
	return nil, port.ErrNotFound
}

func (m *mockApprovalRepo) GetPendingAtLevel(ctx context.Context, claimID string, level int) (*entity.Approval, error) {
	if m.getPendingAtLevelFunc != nil {
		return m.getPendingAtLevelFunc(ctx, claimID, level)
	}
	return nil, port.ErrNotFound
}

func (m *mockApprovalRepo) ListByClaim(ctx context.Context, claimID string) ([]*entity.Approval, error) {
	if m.listByClaimFunc != nil {
		return m.listByClaimFunc(ctx, claimID)
	}
	return nil, nil
}

func (m *mockApprovalRepo) ListPendingByApprover(ctx context.Context, approverID string) ([]*entity.Approval, error) {
	if m.listPendingByApproverFunc != nil {
		return m.listPendingByApproverFunc(ctx, approverID)
	}
	return nil, nil
}

func (m *mockApprovalRepo) Resolve(ctx context.Context, id string, status string, comments string, resolvedAt time.Time) error {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, id, status, comments, resolvedAt)
	}
	return nil
}

type mockCompanyPolicyRepo struct {
	listActiveFunc func(ctx context.Context) ([]*entity.CompanyPolicy, error)
	getByIDFunc    func(ctx context.Context, id string) (*entity.CompanyPolicy, error)
}

func (m *mockCompanyPolicyRepo) ListActive(ctx context.Context) ([]*entity.CompanyPolicy, error) {
	if m.listActiveFunc != nil {
		return m.listActiveFunc(ctx)
	}
	return nil, nil
}

func (m *mockCompanyPolicyRepo) GetByID(ctx context.Context, id string) (*entity.CompanyPolicy, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, port.ErrNotFound
}

type mockApprovalPolicyRepo struct {
	listActiveForDepartmentFunc func(ctx context.Context, departmentID string) ([]*entity.ApprovalPolicy, error)
	getCatchAllFunc             func(ctx context.Context) (*entity.ApprovalPolicy, error)
}

func (m *mockApprovalPolicyRepo) ListActiveForDepartment(ctx context.Context, departmentID string) ([]*entity.ApprovalPolicy, error) {
	if m.listActiveForDepartmentFunc != nil {
		return m.listActiveForDepartmentFunc(ctx, departmentID)
	}
	return nil, nil
}

func (m *mockApprovalPolicyRepo) GetCatchAll(ctx context.Context) (*entity.ApprovalPolicy, error) {
	if m.getCatchAllFunc != nil {
		return m.getCatchAllFunc(ctx)
	}
	return nil, nil
}

type mockViolationRepo struct {
	createBatchFunc func(ctx context.Context, violations []*entity.PolicyViolation) error
	listByClaimFunc func(ctx context.Context, claimID string) ([]*entity.PolicyViolation, error)
	setWaivedFunc   func(ctx context.Context, id string, waived bool) error
}

func (m *mockViolationRepo) CreateBatch(ctx context.Context, violations []*entity.PolicyViolation) error {
	if m.createBatchFunc != nil {
		return m.createBatchFunc(ctx, violations)
	}
	return nil
}

func (m *mockViolationRepo) ListByClaim(ctx context.Context, claimID string) ([]*entity.PolicyViolation, error) {
	if m.listByClaimFunc != nil {
		return m.listByClaimFunc(ctx, claimID)
	}
	return nil, nil
}

func (m *mockViolationRepo) SetWaived(ctx context.Context, id string, waived bool) error {
	if m.setWaivedFunc != nil {
		return m.setWaivedFunc(ctx, id, waived)
	}
	return nil
}

type mockUserRepo struct {
	getByIDFunc            func(ctx context.Context, id string) (*entity.User, error)
	firstActiveByRoleFunc  func(ctx context.Context, role entity.Role) (*entity.User, error)
	listActiveManagersFunc func(ctx context.Context, departmentID string) ([]*entity.User, error)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, port.ErrNotFound
}

func (m *mockUserRepo) FirstActiveByRole(ctx context.Context, role entity.Role) (*entity.User, error) {
	if m.firstActiveByRoleFunc != nil {
		return m.firstActiveByRoleFunc(ctx, role)
	}
	return nil, port.ErrNotFound
}

func (m *mockUserRepo) ListActiveManagers(ctx context.Context, departmentID string) ([]*entity.User, error) {
	if m.listActiveManagersFunc != nil {
		return m.listActiveManagersFunc(ctx, departmentID)
	}
	return nil, nil
}

type mockBudgetRepo struct {
	createFunc           func(ctx context.Context, budget *entity.Budget) error
	getByIDFunc          func(ctx context.Context, id string) (*entity.Budget, error)
	listByDepartmentFunc func(ctx context.Context, departmentID string) ([]*entity.Budget, error)
	updateSpendingFunc   func(ctx context.Context, id string, spent, remaining decimal.Decimal) error
}

func (m *mockBudgetRepo) Create(ctx context.Context, budget *entity.Budget) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, budget)
	}
	return nil
}

func (m *mockBudgetRepo) GetByID(ctx context.Context, id string) (*entity.Budget, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, port.ErrNotFound
}

func (m *mockBudgetRepo) ListByDepartment(ctx context.Context, departmentID string) ([]*entity.Budget, error) {
	if m.listByDepartmentFunc != nil {
		return m.listByDepartmentFunc(ctx, departmentID)
	}
	return nil, nil
}

func (m *mockBudgetRepo) UpdateSpending(ctx context.Context, id string, spent, remaining decimal.Decimal) error {
	if m.updateSpendingFunc != nil {
		return m.updateSpendingFunc(ctx, id, spent, remaining)
	}
	return nil
}

type mockNotificationRepo struct {
	createFunc     func(ctx context.Context, n *entity.Notification) error
	listByUserFunc func(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error)
	markReadFunc   func(ctx context.Context, id string, readAt time.Time) error
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, n)
	}
	return nil
}

func (m *mockNotificationRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	if m.listByUserFunc != nil {
		return m.listByUserFunc(ctx, userID, unreadOnly, limit)
	}
	return nil, nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id string, readAt time.Time) error {
	if m.markReadFunc != nil {
		return m.markReadFunc(ctx, id, readAt)
	}
	return nil
}

type mockPayrollBatchRepo struct {
	createFunc          func(ctx context.Context, batch *entity.PayrollBatch) error
	getByIDFunc         func(ctx context.Context, id string) (*entity.PayrollBatch, error)
	markExportedFunc    func(ctx context.Context, id string, format string, exportedBy string, exportedAt time.Time) error
	nextBatchNumberFunc func(ctx context.Context, prefix string) (int64, error)
}

func (m *mockPayrollBatchRepo) Create(ctx context.Context, batch *entity.PayrollBatch) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, batch)
	}
	return nil
}

func (m *mockPayrollBatchRepo) GetByID(ctx context.Context, id string) (*entity.PayrollBatch, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, port.ErrNotFound
}

func (m *mockPayrollBatchRepo) MarkExported(ctx context.Context, id string, format string, exportedBy string, exportedAt time.Time) error {
	if m.markExportedFunc != nil {
		return m.markExportedFunc(ctx, id, format, exportedBy, exportedAt)
	}
	return nil
}

func (m *mockPayrollBatchRepo) NextBatchNumber(ctx context.Context, prefix string) (int64, error) {
	if m.nextBatchNumberFunc != nil {
		return m.nextBatchNumberFunc(ctx, prefix)
	}
	return 1, nil
}

type mockNotificationService struct {
	approvalRequired []string // approver IDs, in dispatch order
	statusUpdates    []string // "userID:status"
	budgetAlerts     []string // user IDs
	failWith         error
}

func (m *mockNotificationService) NotifyApprovalRequired(ctx context.Context, approverID string, claim *entity.Claim, approval *entity.Approval) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.approvalRequired = append(m.approvalRequired, approverID)
	return nil
}

func (m *mockNotificationService) NotifyClaimStatus(ctx context.Context, userID string, claim *entity.Claim, status string) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.statusUpdates = append(m.statusUpdates, fmt.Sprintf("%s:%s", userID, status))
	return nil
}

func (m *mockNotificationService) NotifyBudgetAlert(ctx context.Context, userID string, budget *entity.Budget, percentage int) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.budgetAlerts = append(m.budgetAlerts, userID)
	return nil
}

func (m *mockNotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]*entity.Notification, error) {
	return nil, nil
}

func (m *mockNotificationService) MarkRead(ctx context.Context, notificationID string) error {
	return nil
}

type mockEmailSender struct {
	sent     []string // "to:subject"
	failWith error
}

func (m *mockEmailSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.sent = append(m.sent, to+":"+subject)
	return nil
}

type mockWhatsAppSender struct {
	sent     []string
	failWith error
}

func (m *mockWhatsAppSender) Send(ctx context.Context, phoneNumber, message string) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.sent = append(m.sent, phoneNumber)
	return nil
}
