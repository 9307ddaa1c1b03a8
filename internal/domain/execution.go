package domain

// ExecutionState is a state of one execution cycle.
type ExecutionState string

const (
	StateIdle               ExecutionState = "IDLE"
	StateQuoting            ExecutionState = "QUOTING"
	StateAwaitingUnsignedTx ExecutionState = "AWAITING_UNSIGNED_TX"
	StateSigning            ExecutionState = "SIGNING"
	StateSubmitting         ExecutionState = "SUBMITTING"
	StateSucceeded          ExecutionState = "SUCCEEDED"
	StateFailed             ExecutionState = "FAILED"
)

// IsTerminal reports whether no further transition is possible.
func (s ExecutionState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// String returns the string representation of ExecutionState.
func (s ExecutionState) String() string {
	return string(s)
}
