package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// NotificationService fans a notification out to the in-app record plus the
// email and WhatsApp side channels. The in-app write is the primary outcome;
// email and WhatsApp are best-effort and their failures are logged, never
// propagated.
type NotificationService interface {
	NotifyApprovalRequired(ctx context.Context, approverID string, claim *entity.Claim, approval *entity.Approval) error
	NotifyClaimStatus(ctx context.Context, userID string, claim *entity.Claim, status string) error
	NotifyBudgetAlert(ctx context.Context, userID string, budget *entity.Budget, percentage int) error
	ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]*entity.Notification, error)
	MarkRead(ctx context.Context, notificationID string) error
}

type notificationServiceImpl struct {
	notificationRepo port.NotificationRepository
	userRepo         port.UserRepository
	email            port.EmailSender
	whatsapp         port.WhatsAppSender
	logger           Logger
	now              func() time.Time
}

// NewNotificationService creates a new NotificationService. The email and
// WhatsApp senders may be nil when the channel is not configured.
func NewNotificationService(
	notificationRepo port.NotificationRepository,
	userRepo port.UserRepository,
	email port.EmailSender,
	whatsapp port.WhatsAppSender,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		email:            email,
		whatsapp:         whatsapp,
		logger:           logger,
		now:              time.Now,
	}
}

// NotifyApprovalRequired tells an approver a claim is waiting on them
func (s *notificationServiceImpl) NotifyApprovalRequired(ctx context.Context, approverID string, claim *entity.Claim, approval *entity.Approval) error {
	approver, err := s.userRepo.GetByID(ctx, approverID)
	if err != nil {
		s.logger.Error("Approver not found for notification", "error", err, "approver_id", approverID)
		return fmt.Errorf("get approver: %w", err)
	}

	title := "Claim Approval Required"
	message := fmt.Sprintf("Claim %s requires your approval (level %d).", claim.ClaimNumber, approval.Level)

	if err := s.record(ctx, approverID, entity.NotificationApprovalRequired, title, message, map[string]interface{}{
		"claim_id":     claim.ID,
		"claim_number": claim.ClaimNumber,
		"amount":       claim.TotalAmount.String(),
		"level":        approval.Level,
	}); err != nil {
		return err
	}

	body := fmt.Sprintf(
		"<h2>Claim Approval Request</h2><p>Hi %s,</p><p>The following claim requires your approval:</p>"+
			"<ul><li><strong>Claim Number:</strong> %s</li><li><strong>Title:</strong> %s</li>"+
			"<li><strong>Total:</strong> %s %s</li><li><strong>Approval Level:</strong> %d</li></ul>"+
			"<p>Please sign in to review this claim.</p>",
		approver.FirstName, claim.ClaimNumber, claim.Title,
		claim.Currency, claim.TotalAmount.StringFixed(0), approval.Level)
	s.sendEmail(ctx, approver, title, body)

	s.sendWhatsApp(ctx, approver, fmt.Sprintf(
		"Claim %s requires your approval. Total: %s %s",
		claim.ClaimNumber, claim.Currency, claim.TotalAmount.StringFixed(0)))

	return nil
}

// NotifyClaimStatus tells the claimant their claim was approved, rejected, or paid
func (s *notificationServiceImpl) NotifyClaimStatus(ctx context.Context, userID string, claim *entity.Claim, status string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("User not found for notification", "error", err, "user_id", userID)
		return fmt.Errorf("get user: %w", err)
	}

	var title, message, notifType string
	switch status {
	case "APPROVED":
		title = "Claim Approved"
		message = fmt.Sprintf("Claim %s has been approved.", claim.ClaimNumber)
		notifType = entity.NotificationClaimApproved
	case "REJECTED":
		title = "Claim Rejected"
		message = fmt.Sprintf("Claim %s has been rejected.", claim.ClaimNumber)
		notifType = entity.NotificationClaimRejected
	case "PAID":
		title = "Claim Paid"
		message = fmt.Sprintf("Payment for claim %s has been processed.", claim.ClaimNumber)
		notifType = entity.NotificationClaimPaid
	default:
		return nil
	}

	if err := s.record(ctx, userID, notifType, title, message, map[string]interface{}{
		"claim_id":     claim.ID,
		"claim_number": claim.ClaimNumber,
		"status":       status,
	}); err != nil {
		return err
	}

	body := fmt.Sprintf(
		"<h2>%s</h2><p>Hi %s,</p><p>%s</p>"+
			"<ul><li><strong>Claim Number:</strong> %s</li><li><strong>Total:</strong> %s %s</li>"+
			"<li><strong>Status:</strong> %s</li></ul>",
		title, user.FirstName, message,
		claim.ClaimNumber, claim.Currency, claim.TotalAmount.StringFixed(0), status)
	s.sendEmail(ctx, user, title, body)
	s.sendWhatsApp(ctx, user, message)

	return nil
}

// NotifyBudgetAlert tells a manager their department budget crossed its threshold
func (s *notificationServiceImpl) NotifyBudgetAlert(ctx context.Context, userID string, budget *entity.Budget, percentage int) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("User not found for budget alert", "error", err, "user_id", userID)
		return fmt.Errorf("get user: %w", err)
	}

	title := "Budget Alert"
	message := fmt.Sprintf("Budget %s has reached %d%% of its allocation.", budget.Name, percentage)

	if err := s.record(ctx, userID, entity.NotificationBudgetAlert, title, message, map[string]interface{}{
		"budget_id":  budget.ID,
		"percentage": percentage,
	}); err != nil {
		return err
	}

	body := fmt.Sprintf(
		"<h2>Budget Alert</h2><p>Hi %s,</p><p>%s</p>"+
			"<ul><li><strong>Budget:</strong> %s</li><li><strong>Allocated:</strong> %s</li>"+
			"<li><strong>Spent:</strong> %s</li><li><strong>Remaining:</strong> %s</li></ul>",
		user.FirstName, message, budget.Name,
		budget.TotalAmount.StringFixed(0), budget.SpentAmount.StringFixed(0), budget.RemainingAmount.StringFixed(0))
	s.sendEmail(ctx, user, title, body)

	return nil
}

// ListForUser returns the user's most recent notifications
func (s *notificationServiceImpl) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]*entity.Notification, error) {
	return s.notificationRepo.ListByUser(ctx, userID, unreadOnly, 50)
}

// MarkRead marks one notification as read
func (s *notificationServiceImpl) MarkRead(ctx context.Context, notificationID string) error {
	return s.notificationRepo.MarkRead(ctx, notificationID, s.now())
}

// record writes the in-app notification, the one channel whose failure is an error
func (s *notificationServiceImpl) record(ctx context.Context, userID, notifType, title, message string, data map[string]interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}

	n := &entity.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      notifType,
		Channel:   entity.ChannelInApp,
		Title:     title,
		Message:   message,
		Data:      string(payload),
		CreatedAt: s.now(),
	}
	if err := s.notificationRepo.Create(ctx, n); err != nil {
		s.logger.Error("Failed to record notification", "error", err, "user_id", userID, "type", notifType)
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *notificationServiceImpl) sendEmail(ctx context.Context, user *entity.User, subject, body string) {
	if s.email == nil || user.Email == "" {
		return
	}
	if err := s.email.Send(ctx, user.Email, subject, body); err != nil {
		s.logger.Error("Email delivery failed", "error", err, "to", user.Email, "subject", subject)
	}
}

func (s *notificationServiceImpl) sendWhatsApp(ctx context.Context, user *entity.User, message string) {
	if s.whatsapp == nil || user.PhoneNumber == "" {
		return
	}
	if err := s.whatsapp.Send(ctx, user.PhoneNumber, message); err != nil {
		s.logger.Error("WhatsApp delivery failed", "error", err, "to", user.PhoneNumber)
	}
}
