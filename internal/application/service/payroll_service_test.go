package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
	"github.com/finovahq/expense-claims/internal/domain/workflow"
)

type stubExporter struct {
	contentType string
	data        []byte
	err         error
}

func (e *stubExporter) Export(batch *entity.PayrollBatch) ([]byte, string, error) {
	if e.err != nil {
		return nil, "", e.err
	}
	return e.data, e.contentType, nil
}

func approvedClaim(id, userID, amount string) *entity.Claim {
	return &entity.Claim{
		ID:          id,
		ClaimNumber: "CLM-202608-" + id,
		UserID:      userID,
		Status:      workflow.StateApproved.String(),
		TotalAmount: dec(amount),
		Currency:    "IDR",
	}
}

func newPayrollTestService(batchRepo *mockPayrollBatchRepo, claimRepo *mockClaimRepo, notifications *mockNotificationService) PayrollService {
	exporters := map[string]port.BatchExporter{
		entity.ExportFormatCSV:  &stubExporter{contentType: "text/csv", data: []byte("csv")},
		entity.ExportFormatJSON: &stubExporter{contentType: "application/json", data: []byte("{}")},
	}
	return NewPayrollService(batchRepo, claimRepo, passthroughTxManager{}, exporters, notifications, testLogger{})
}

func TestCreateBatch_GroupsApprovedClaims(t *testing.T) {
	claims := []*entity.Claim{
		approvedClaim("c1", "emp-1", "100000"),
		approvedClaim("c2", "emp-2", "250000"),
	}
	var assignedIDs []string
	claimRepo := &mockClaimRepo{
		listApprovedUnbatchedFunc: func(ctx context.Context, periodStart, periodEnd time.Time) ([]*entity.Claim, error) {
			return claims, nil
		},
		assignPayrollBatchFunc: func(ctx context.Context, claimIDs []string, batchID string) error {
			assignedIDs = claimIDs
			return nil
		},
	}
	batchRepo := &mockPayrollBatchRepo{
		nextBatchNumberFunc: func(ctx context.Context, prefix string) (int64, error) {
			assert.Equal(t, "PAY-202608", prefix)
			return 7, nil
		},
	}

	svc := NewPayrollService(batchRepo, claimRepo, passthroughTxManager{}, nil, &mockNotificationService{}, testLogger{}).(*payrollServiceImpl)
	svc.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	batch, err := svc.CreateBatch(context.Background(), start, end)
	require.NoError(t, err)

	assert.Equal(t, "PAY-202608-0007", batch.BatchNumber)
	assert.True(t, batch.TotalAmount.Equal(dec("350000")))
	assert.Equal(t, 2, batch.ClaimCount)
	assert.Equal(t, entity.PayrollBatchStatusDraft, batch.Status)
	assert.Equal(t, []string{"c1", "c2"}, assignedIDs)
}

func TestCreateBatch_EmptyPeriod(t *testing.T) {
	svc := NewPayrollService(&mockPayrollBatchRepo{}, &mockClaimRepo{}, passthroughTxManager{}, nil, &mockNotificationService{}, testLogger{})

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.CreateBatch(context.Background(), start, start.AddDate(0, 1, 0))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBatch_InvalidPeriod(t *testing.T) {
	svc := NewPayrollService(&mockPayrollBatchRepo{}, &mockClaimRepo{}, passthroughTxManager{}, nil, &mockNotificationService{}, testLogger{})

	start := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	_, err := svc.CreateBatch(context.Background(), start, start.AddDate(0, 0, -7))
	assert.ErrorIs(t, err, ErrValidation)
}

func draftBatch() *entity.PayrollBatch {
	return &entity.PayrollBatch{
		ID:          "batch-1",
		BatchNumber: "PAY-202608-0001",
		Status:      entity.PayrollBatchStatusDraft,
		TotalAmount: dec("350000"),
		ClaimCount:  2,
		Claims: []*entity.Claim{
			approvedClaim("c1", "emp-1", "100000"),
			approvedClaim("c2", "emp-2", "250000"),
		},
	}
}

func TestExport_MarksPaidAndNotifies(t *testing.T) {
	var exportedFormat string
	var paidBatch string
	batchRepo := &mockPayrollBatchRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.PayrollBatch, error) {
			return draftBatch(), nil
		},
		markExportedFunc: func(ctx context.Context, id string, format string, exportedBy string, exportedAt time.Time) error {
			exportedFormat = format
			return nil
		},
	}
	claimRepo := &mockClaimRepo{
		markPaidFunc: func(ctx context.Context, batchID string, paymentDate time.Time) error {
			paidBatch = batchID
			return nil
		},
	}
	notifications := &mockNotificationService{}
	svc := newPayrollTestService(batchRepo, claimRepo, notifications)

	result, err := svc.Export(context.Background(), "batch-1", entity.ExportFormatCSV, "fin-1")
	require.NoError(t, err)

	assert.Equal(t, "PAY-202608-0001.csv", result.FileName)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, []byte("csv"), result.Data)
	assert.Equal(t, entity.ExportFormatCSV, exportedFormat)
	assert.Equal(t, "batch-1", paidBatch)
	assert.ElementsMatch(t, []string{"emp-1:PAID", "emp-2:PAID"}, notifications.statusUpdates)
}

func TestExport_UnsupportedFormat(t *testing.T) {
	svc := newPayrollTestService(&mockPayrollBatchRepo{}, &mockClaimRepo{}, &mockNotificationService{})

	_, err := svc.Export(context.Background(), "batch-1", "pdf", "fin-1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestExport_AlreadyExported(t *testing.T) {
	batchRepo := &mockPayrollBatchRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.PayrollBatch, error) {
			b := draftBatch()
			b.Status = entity.PayrollBatchStatusExported
			return b, nil
		},
	}
	svc := newPayrollTestService(batchRepo, &mockClaimRepo{}, &mockNotificationService{})

	_, err := svc.Export(context.Background(), "batch-1", entity.ExportFormatCSV, "fin-1")
	assert.ErrorIs(t, err, ErrStateConflict)
}
