package revenue

// transitions is the explicit state machine for recognition entries:
// pending -> approved -> recognized -> reversed, with a deferral loop
// pending -> deferred -> pending. reversed is terminal.
var transitions = map[EntryStatus][]EntryStatus{
	StatusPending:    {StatusApproved, StatusDeferred},
	StatusApproved:   {StatusRecognized},
	StatusDeferred:   {StatusPending},
	StatusRecognized: {StatusReversed},
	StatusReversed:   {},
}

// InitialStatus is the state assigned to every new recognition entry.
const InitialStatus = StatusPending

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to EntryStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition validates a status change, returning a typed error when illegal.
func Transition(from, to EntryStatus) error {
	if !CanTransition(from, to) {
		return &StatusTransitionError{From: from, To: to}
	}
	return nil
}

// IsTerminal reports whether no further transition is possible.
func IsTerminal(status EntryStatus) bool {
	return len(transitions[status]) == 0
}
