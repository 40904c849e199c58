package model

// ReportState is a submission's position in the review lifecycle.
type ReportState string

const (
	StateSubmitted  ReportState = "Submitted"
	StateChecking   ReportState = "Checking"
	StateWriting    ReportState = "Writing"
	StateUpdateInfo ReportState = "Update Info"
	StateCompleted  ReportState = "Completed"
	StateRejected   ReportState = "Rejected"
)

// DefaultState is the state every new submission starts in.
const DefaultState = StateSubmitted

// forward edges of the review chain; Rejected is reachable from any
// non-terminal state and is handled in CanTransition.
var forward = map[ReportState]ReportState{
	StateSubmitted:  StateChecking,
	StateChecking:   StateWriting,
	StateWriting:    StateUpdateInfo,
	StateUpdateInfo: StateCompleted,
}

// Valid reports whether s is a known state.
func (s ReportState) Valid() bool {
	switch s {
	case StateSubmitted, StateChecking, StateWriting, StateUpdateInfo, StateCompleted, StateRejected:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing edges.
func (s ReportState) Terminal() bool {
	return s == StateCompleted || s == StateRejected
}

// CanTransition reports whether next is a legal explicit transition from s.
// Owner edits bypass this table and force Checking; that exception lives in
// the submission service, not here.
func (s ReportState) CanTransition(next ReportState) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next == StateRejected {
		return true
	}
	return forward[s] == next
}
