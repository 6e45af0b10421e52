package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
	"github.com/finovahq/expense-claims/internal/domain/workflow"
)

type mockComplianceService struct {
	validateFunc func(ctx context.Context, claim *entity.Claim) (*entity.ComplianceResult, error)
}

func (m *mockComplianceService) ValidateClaim(ctx context.Context, claim *entity.Claim) (*entity.ComplianceResult, error) {
	if m.validateFunc != nil {
		return m.validateFunc(ctx, claim)
	}
	return &entity.ComplianceResult{IsCompliant: true}, nil
}

func (m *mockComplianceService) CheckDuplicate(ctx context.Context, userID string, amount decimal.Decimal, date time.Time) (bool, error) {
	return false, nil
}

type mockPolicyService struct {
	resolveFunc    func(ctx context.Context, departmentID string, claimType entity.ClaimType, amount decimal.Decimal) (*entity.ApprovalPolicy, error)
	buildChainFunc func(ctx context.Context, claimID string, policy *entity.ApprovalPolicy, submitterID string) ([]*entity.Approval, error)
}

func (m *mockPolicyService) Resolve(ctx context.Context, departmentID string, claimType entity.ClaimType, amount decimal.Decimal) (*entity.ApprovalPolicy, error) {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, departmentID, claimType, amount)
	}
	return &entity.ApprovalPolicy{ID: "pol-1", ApprovalLevels: []entity.ApprovalLevel{{Level: 1, ApproverRole: entity.RoleManager}}}, nil
}

func (m *mockPolicyService) BuildChain(ctx context.Context, claimID string, policy *entity.ApprovalPolicy, submitterID string) ([]*entity.Approval, error) {
	if m.buildChainFunc != nil {
		return m.buildChainFunc(ctx, claimID, policy, submitterID)
	}
	return []*entity.Approval{{ID: "appr-1", ClaimID: claimID, ApproverID: "mgr-1", Level: 1, Status: entity.ApprovalStatusPending}}, nil
}

type claimTestDeps struct {
	claimRepo     *mockClaimRepo
	approvalRepo  *mockApprovalRepo
	violationRepo *mockViolationRepo
	compliance    *mockComplianceService
	policies      *mockPolicyService
	notifications *mockNotificationService
}

func newClaimTestDeps() *claimTestDeps {
	return &claimTestDeps{
		claimRepo:     &mockClaimRepo{},
		approvalRepo:  &mockApprovalRepo{},
		violationRepo: &mockViolationRepo{},
		compliance:    &mockComplianceService{},
		policies:      &mockPolicyService{},
		notifications: &mockNotificationService{},
	}
}

func (d *claimTestDeps) service() ClaimService {
	return NewClaimService(
		d.claimRepo, d.approvalRepo, d.violationRepo,
		passthroughTxManager{}, d.compliance, d.policies, d.notifications,
		testLogger{},
	)
}

func validCreateRequest() CreateClaimRequest {
	return CreateClaimRequest{
		Title:     "Team lunch",
		ClaimType: entity.ClaimTypeMeal,
		Items: []ClaimItemInput{
			{Date: time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC), Category: entity.CategoryMeal, Description: "Lunch", Amount: dec("75000"), ReceiptURL: "https://r/1.pdf"},
			{Date: time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC), Category: entity.CategoryMeal, Description: "Coffee", Amount: dec("25000"), ReceiptURL: "https://r/2.pdf"},
		},
	}
}

func TestCreateClaim_TotalAndNumber(t *testing.T) {
	deps := newClaimTestDeps()
	deps.claimRepo.nextClaimNumberFunc = func(ctx context.Context, prefix string) (int64, error) {
		assert.Equal(t, "CLM-202608", prefix)
		return 42, nil
	}
	svc := deps.service().(*claimServiceImpl)
	svc.now = func() time.Time { return time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC) }

	claim, err := svc.CreateClaim(context.Background(), "emp-1", validCreateRequest())
	require.NoError(t, err)

	assert.Equal(t, "CLM-202608-00042", claim.ClaimNumber)
	assert.True(t, claim.TotalAmount.Equal(dec("100000")))
	assert.Equal(t, workflow.StateDraft.String(), claim.Status)
	assert.Equal(t, "IDR", claim.Currency)
	assert.False(t, claim.HasViolations)
	assert.Len(t, claim.Items, 2)
}

func TestCreateClaim_AttachesViolations(t *testing.T) {
	deps := newClaimTestDeps()
	deps.compliance.validateFunc = func(ctx context.Context, claim *entity.Claim) (*entity.ComplianceResult, error) {
		return &entity.ComplianceResult{
			IsCompliant: false,
			Violations: []*entity.PolicyViolation{
				{Type: entity.ViolationMissingReceipt, Severity: entity.SeverityHigh},
			},
		}, nil
	}
	var persisted []*entity.PolicyViolation
	deps.violationRepo.createBatchFunc = func(ctx context.Context, violations []*entity.PolicyViolation) error {
		persisted = violations
		return nil
	}

	claim, err := deps.service().CreateClaim(context.Background(), "emp-1", validCreateRequest())
	require.NoError(t, err)

	assert.True(t, claim.HasViolations)
	require.Len(t, persisted, 1)
	assert.Equal(t, claim.ID, persisted[0].ClaimID)
	assert.NotEmpty(t, persisted[0].ID)
}

func TestCreateClaim_Validation(t *testing.T) {
	svc := newClaimTestDeps().service()

	tests := []struct {
		name   string
		mutate func(*CreateClaimRequest)
	}{
		{"missing title", func(r *CreateClaimRequest) { r.Title = "" }},
		{"missing claim type", func(r *CreateClaimRequest) { r.ClaimType = "" }},
		{"negative amount", func(r *CreateClaimRequest) { r.Items[0].Amount = dec("-1") }},
		{"missing item date", func(r *CreateClaimRequest) { r.Items[0].Date = time.Time{} }},
		{"missing item description", func(r *CreateClaimRequest) { r.Items[0].Description = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest()
			tt.mutate(&req)
			_, err := svc.CreateClaim(context.Background(), "emp-1", req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func draftClaim() *entity.Claim {
	c := &entity.Claim{
		ID:          "claim-1",
		ClaimNumber: "CLM-202608-00001",
		UserID:      "emp-1",
		Title:       "Team lunch",
		ClaimType:   entity.ClaimTypeMeal,
		Status:      workflow.StateDraft.String(),
		Items: []*entity.ClaimItem{
			{ID: "item-1", Category: entity.CategoryMeal, Amount: dec("100000"), ReceiptURL: "https://r/1.pdf"},
		},
	}
	c.RecomputeTotal()
	return c
}

func TestSubmitClaim_BuildsChainAndNotifies(t *testing.T) {
	deps := newClaimTestDeps()
	claim := draftClaim()
	deps.claimRepo.getByIDFunc = func(ctx context.Context, id string) (*entity.Claim, error) {
		return claim, nil
	}
	var submitted bool
	deps.claimRepo.markSubmittedFunc = func(ctx context.Context, id string, submittedAt time.Time) error {
		submitted = true
		return nil
	}

	got, err := deps.service().SubmitClaim(context.Background(), "claim-1", "emp-1")
	require.NoError(t, err)

	assert.True(t, submitted)
	assert.Equal(t, workflow.StatePendingApproval.String(), got.Status)
	assert.Equal(t, 1, got.CurrentApprovalLevel)
	require.NotNil(t, got.SubmittedAt)
	assert.Equal(t, []string{"mgr-1"}, deps.notifications.approvalRequired)
}

func TestSubmitClaim_OnlyOwner(t *testing.T) {
	deps := newClaimTestDeps()
	deps.claimRepo.getByIDFunc = func(ctx context.Context, id string) (*entity.Claim, error) {
		return draftClaim(), nil
	}

	_, err := deps.service().SubmitClaim(context.Background(), "claim-1", "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitClaim_OnlyFromDraft(t *testing.T) {
	for _, status := range []workflow.State{
		workflow.StatePendingApproval, workflow.StateApproved,
		workflow.StateRejected, workflow.StatePaid, workflow.StateCancelled,
	} {
		t.Run(status.String(), func(t *testing.T) {
			deps := newClaimTestDeps()
			claim := draftClaim()
			claim.Status = status.String()
			deps.claimRepo.getByIDFunc = func(ctx context.Context, id string) (*entity.Claim, error) {
				return claim, nil
			}

			_, err := deps.service().SubmitClaim(context.Background(), "claim-1", "emp-1")
			assert.ErrorIs(t, err, ErrStateConflict)
		})
	}
}

func TestSubmitClaim_RequiresItems(t *testing.T) {
	deps := newClaimTestDeps()
	claim := draftClaim()
	claim.Items = nil
	deps.claimRepo.getByIDFunc = func(ctx context.Context, id string) (*entity.Claim, error) {
		return claim, nil
	}

	_, err := deps.service().SubmitClaim(context.Background(), "claim-1", "emp-1")
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestSubmitClaim_NoPolicyFails(t *testing.T) {
	deps := newClaimTestDeps()
	deps.claimRepo.getByIDFunc = func(ctx context.Context, id string) (*entity.Claim, error) {
		return draftClaim(), nil
	}
	deps.policies.resolveFunc = func(ctx context.Context, departmentID string, claimType entity.ClaimType, amount decimal.Decimal) (*entity.ApprovalPolicy, error) {
		return nil, nil
	}
	var submitted bool
	deps.claimRepo.markSubmittedFunc = func(ctx context.Context, id string, submittedAt time.Time) error {
		submitted = true
		return nil
	}

	_, err := deps.service().SubmitClaim(context.Background(), "claim-1", "emp-1")
	assert.ErrorIs(t, err, ErrPolicyResolution)
	assert.False(t, submitted)
}

func pendingClaim(level int) *entity.Claim {
	c := draftClaim()
	c.Status = workflow.StatePendingApproval.String()
	c.CurrentApprovalLevel = level
	now := time.Now()
	c.SubmittedAt = &now
	return c
}

func TestApproveClaim_IntermediateLevelAdvances(t *testing.T) {
	deps := newClaimTestDeps()
	deps.approvalRepo.getPendingFunc = func(ctx context.Context, claimID, approverID string) (*entity.Approval, error) {
		return &entity.Approval{ID: "appr-1", ClaimID: claimID, ApproverID: approverID, Level: 1, Status: entity.ApprovalStatusPending}, nil
	}
	deps.approvalRepo.getPendingAtLevelFunc = func(ctx context.Context, claimID string, level int) (*entity.Approval, error) {
		if level == 2 {
			return &entity.Approval{ID: "appr-2", ClaimID: claimID, ApproverID: "fin-1", Level: 2, Status: entity.ApprovalStatusPending}, nil
		}
		return nil, port.ErrNotFound
	}
	deps.claimRepo.getByIDFunc = func(ctx context.Context, id string) (*entity.Claim, error) {
		return pendingClaim(1), nil
	}
	var statusWrites []string
	deps.claimRepo.updateStatusFunc = func(ctx context.Context, id string, status string, level int) error {
		statusWrites = append(statusWrites, status)
		assert.Equal(t, 2, level)
		return nil
	}

	got, err := deps.service().ApproveClaim(context.Background(), "claim-1", "mgr-1", "looks fine")
	require.NoError(t, err)

	// Claim stays pending, chain pointer moves, next approver is notified
	assert.Equal(t, workflow.StatePendingApproval.String(), got.Status)
	assert.Equal(t, 2, got.CurrentApprovalLevel)
	assert.Equal(t, []string{workflow.StatePendingApproval.String()}, statusWrites)
	assert.Equal(t, []string{"fin-1"}, deps.notifications.approvalRequired)
	assert.Empty(t, deps.notifications.statusUpdates)
}

func TestApproveClaim_FinalLevelApproves(t *testing.T) {
	deps := newClaimTestDeps()
	deps.approvalRepo.getPendingFunc = func(ctx context.Context, claimID, approverID string) (*entity.Approval, error) {
		return &entity.Approval{ID: "appr-2", ClaimID: claimID, ApproverID: approverID, Level: 2, Status: entity.ApprovalStatusPending}, nil
	}
	deps.claimRepo.getByIDFunc = func(ctx context.Context, id string) (*entity.Claim, error) {
		return pendingClaim(2), nil
	}

	got, err := deps.service().ApproveClaim(context.Background(), "claim-1", "fin-1", "")
	require.NoError(t, err)

	assert.Equal(t, workflow.StateApproved.String(), got.Status)
	assert.Equal(t, []string{"emp-1:APPROVED"}, deps.notifications.statusUpdates)
}

func TestApproveClaim_NoPendingAssignment(t *testing.T) {
	deps := newClaimTestDeps()

	_, err := deps.service().ApproveClaim(context.Background(), "claim-1", "mgr-1", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApproveClaim_RaceLoserGetsConflict(t *testing.T) {
	deps := newClaimTestDeps()
	deps.approvalRepo.getPendingFunc = func(ctx context.Context, claimID, approverID string) (*entity.Approval, error) {
		return &entity.Approval{ID: "appr-1", ClaimID: claimID, ApproverID: approverID, Level: 1, Status: entity.ApprovalStatusPending}, nil
	}
	deps.approvalRepo.resolveFunc = func(ctx context.Context, id string, status string, comments string, resolvedAt time.Time) error {
		return port.ErrConflict
	}

	_, err := deps.service().ApproveClaim(context.Background(), "claim-1", "mgr-1", "")
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestRejectClaim_CommentsRequired(t *testing.T) {
	deps := newClaimTestDeps()

	_, err := deps.service().RejectClaim(context.Background(), "claim-1", "mgr-1", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRejectClaim_AnyLevelTerminates(t *testing.T) {
	deps := newClaimTestDeps()
	deps.approvalRepo.getPendingFunc = func(ctx context.Context, claimID, approverID string) (*entity.Approval, error) {
		return &entity.Approval{ID: "appr-1", ClaimID: claimID, ApproverID: approverID, Level: 1, Status: entity.ApprovalStatusPending}, nil
	}
	deps.claimRepo.getByIDFunc = func(ctx context.Context, id string) (*entity.Claim, error) {
		return pendingClaim(1), nil
	}
	var resolvedStatus string
	deps.approvalRepo.resolveFunc = func(ctx context.Context, id string, status string, comments string, resolvedAt time.Time) error {
		resolvedStatus = status
		return nil
	}

	got, err := deps.service().RejectClaim(context.Background(), "claim-1", "mgr-1", "duplicate of last week")
	require.NoError(t, err)

	assert.Equal(t, workflow.StateRejected.String(), got.Status)
	assert.Equal(t, entity.ApprovalStatusRejected, resolvedStatus)
	assert.Equal(t, []string{"emp-1:REJECTED"}, deps.notifications.statusUpdates)
}

func TestCancelClaim_DraftOnly(t *testing.T) {
	deps := newClaimTestDeps()
	deps.claimRepo.getByIDFunc = func(ctx context.Context, id string) (*entity.Claim, error) {
		return draftClaim(), nil
	}

	got, err := deps.service().CancelClaim(context.Background(), "claim-1", "emp-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCancelled.String(), got.Status)

	deps.claimRepo.getByIDFunc = func(ctx context.Context, id string) (*entity.Claim, error) {
		return pendingClaim(1), nil
	}
	_, err = deps.service().CancelClaim(context.Background(), "claim-1", "emp-1")
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	deps := newClaimTestDeps()
	deps.claimRepo.getByIDFunc = func(ctx context.Context, id string) (*entity.Claim, error) {
		return draftClaim(), nil
	}
	deps.notifications.failWith = assert.AnError

	got, err := deps.service().SubmitClaim(context.Background(), "claim-1", "emp-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingApproval.String(), got.Status)
}

func TestWaiveViolation(t *testing.T) {
	deps := newClaimTestDeps()
	var gotID string
	var gotWaived bool
	deps.violationRepo.setWaivedFunc = func(ctx context.Context, id string, waived bool) error {
		gotID = id
		gotWaived = waived
		return nil
	}

	require.NoError(t, deps.service().WaiveViolation(context.Background(), "viol-1", true))
	assert.Equal(t, "viol-1", gotID)
	assert.True(t, gotWaived)

	deps.violationRepo.setWaivedFunc = func(ctx context.Context, id string, waived bool) error {
		return port.ErrNotFound
	}
	err := deps.service().WaiveViolation(context.Background(), "missing", false)
	assert.ErrorIs(t, err, ErrNotFound)
}
