package entity

import "time"

// NotificationType constants
const (
	NotificationApprovalRequired = "APPROVAL_REQUIRED"
	NotificationClaimApproved    = "CLAIM_APPROVED"
	NotificationClaimRejected    = "CLAIM_REJECTED"
	NotificationClaimPaid        = "CLAIM_PAID"
	NotificationBudgetAlert      = "BUDGET_ALERT"
)

// NotificationChannel constants
const (
	ChannelInApp    = "IN_APP"
	ChannelEmail    = "EMAIL"
	ChannelWhatsApp = "WHATSAPP"
)

// Notification is the persisted in-app record of a dispatched notification.
// Email and WhatsApp deliveries are best-effort side channels of the same
// dispatch and are not individually tracked.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Type      string     `json:"type"`
	Channel   string     `json:"channel"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Data      string     `json:"data,omitempty"` // JSON payload
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
