package appointment

// Op is a lifecycle operation a caller may attempt on an appointment.
type Op string

const (
	OpStart      Op = "start"
	OpComplete   Op = "complete"
	OpCancel     Op = "cancel"
	OpMarkNoShow Op = "mark_no_show"
)

// transitions is the single transition table shared by every caller.
// A (status, op) pair absent from the table is an illegal transition.
var transitions = map[Status]map[Op]Status{
	StatusConfirmed: {
		OpStart:      StatusInProgress,
		OpCancel:     StatusCancelled,
		OpMarkNoShow: StatusNoShow,
	},
	StatusInProgress: {
		OpComplete:   StatusCompleted,
		OpCancel:     StatusCancelled,
		OpMarkNoShow: StatusNoShow,
	},
	// completed, cancelled and no_show are terminal: no outgoing edges.
}

// Next returns the status an operation leads to from the current one, or
// ErrInvalidStateTransition when the table has no such edge.
func Next(current Status, op Op) (Status, error) {
	if next, ok := transitions[current][op]; ok {
		return next, nil
	}
	return "", ErrInvalidStateTransition
}

// IsTerminal reports whether no further transition is possible.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}
