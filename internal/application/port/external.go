package port

import (
	"context"

	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// EmailSender delivers a single email. Failures are logged by the caller and
// never fail the primary operation.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// WhatsAppSender delivers a WhatsApp text message
type WhatsAppSender interface {
	Send(ctx context.Context, phoneNumber, message string) error
}

// ReceiptParser extracts structured fields from a receipt image. Results are
// advisory pre-fill only, never authoritative over submitted item data.
type ReceiptParser interface {
	ParseReceipt(ctx context.Context, image []byte, mimeType string) (*entity.ReceiptData, error)
}

// ApproverResolver maps an abstract approver role to a concrete user for a
// submitting employee. Implementations must be deterministic.
type ApproverResolver interface {
	// ResolveApprover returns the user who should approve at the given role for
	// the submitter: MANAGER resolves to the submitter's manager, other roles to
	// a deterministic active holder of the role, and any miss falls back to an
	// active ADMIN. Returns entity not-found when nobody can be resolved.
	ResolveApprover(ctx context.Context, role entity.Role, submitter *entity.User) (*entity.User, error)
}

// BatchExporter renders a payroll batch into an export format
type BatchExporter interface {
	// Export returns the serialized batch and a content type
	Export(batch *entity.PayrollBatch) ([]byte, string, error)
}
