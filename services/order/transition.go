package order

import "slices"

var transitions = map[Status][]Status{
	PendingPayment: {UserPaid, Rejected},
	UserPaid:       {Shipped, Rejected},
	Shipped:        {Completed, Rejected},
	Completed:      {},
	Rejected:       {PendingPayment},
}

// CanTransition reports whether to directly follows from.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// NextStatuses lists the statuses reachable from s.
func NextStatuses(s Status) []Status {
	return slices.Clone(transitions[s])
}
