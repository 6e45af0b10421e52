package workflow

// NewClaimLifecycle returns a state machine positioned at the given state and
// configured with the claim lifecycle:
//
//	DRAFT -> PENDING_APPROVAL -> APPROVED -> PAID
//	                          -> REJECTED
//	DRAFT -> CANCELLED
//
// APPROVE fires only on the final-level decision; intermediate approvals
// advance the chain without moving the claim. REJECTED, PAID, and CANCELLED
// are permanent.
func NewClaimLifecycle(current State) StateMachine {
	builder := NewBuilder()

	builder.Configure(StateDraft).
		Permit(TriggerSubmit, StatePendingApproval).
		Permit(TriggerCancel, StateCancelled)

	builder.Configure(StatePendingApproval).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected)

	builder.Configure(StateApproved).
		Permit(TriggerMarkPaid, StatePaid)

	return builder.Build(current)
}
