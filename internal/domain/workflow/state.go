package workflow

// State represents a claim lifecycle state
type State string

const (
	StateDraft           State = "DRAFT"
	StatePendingApproval State = "PENDING_APPROVAL"
	StateApproved        State = "APPROVED"
	StateRejected        State = "REJECTED"
	StatePaid            State = "PAID"
	StateCancelled       State = "CANCELLED"
)

var validStates = map[State]bool{
	StateDraft:           true,
	StatePendingApproval: true,
	StateApproved:        true,
	StateRejected:        true,
	StatePaid:            true,
	StateCancelled:       true,
}

// Terminal states are permanent: no transition reopens a rejected, paid, or
// cancelled claim.
var terminalStates = map[State]bool{
	StateRejected:  true,
	StatePaid:      true,
	StateCancelled: true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if the state is a valid claim lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}
