package workflow

// Trigger represents an action that can cause a lifecycle transition
type Trigger string

const (
	TriggerSubmit   Trigger = "SUBMIT"
	TriggerApprove  Trigger = "APPROVE" // final-level approval; intermediate levels do not move the claim
	TriggerReject   Trigger = "REJECT"
	TriggerMarkPaid Trigger = "MARK_PAID"
	TriggerCancel   Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
