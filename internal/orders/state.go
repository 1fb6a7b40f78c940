package orders

// progression is the forward order of fulfilment states.
var progression = []Status{StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusCompleted}

func index(s Status) int {
	for i, p := range progression {
		if p == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusCancelled || index(s) >= 0
}

// Terminal reports whether s accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// VendorSettable reports whether a vendor may request s.
func (s Status) VendorSettable() bool {
	switch s {
	case StatusConfirmed, StatusPreparing, StatusReady, StatusCompleted:
		return true
	}
	return false
}

// Open reports whether the order still holds kitchen work.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusPreparing
}

// CanTransition reports whether from -> to follows the state machine.
// Each step moves exactly one place forward, except that ready may also be
// reached straight from confirmed.
func CanTransition(from, to Status) bool {
	if from.Terminal() || to == StatusCancelled {
		return false
	}
	fi, ti := index(from), index(to)
	if fi < 0 || ti < 0 {
		return false
	}
	if ti == fi+1 {
		return true
	}
	return to == StatusReady && from == StatusConfirmed
}

// CanCancel reports whether a student may still cancel an order in s.
func CanCancel(s Status) bool {
	return s == StatusPending || s == StatusConfirmed
}

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentFailed:  {PaymentPending, PaymentPaid},
	PaymentPaid:    {PaymentRefunded},
}

// CanTransitionPayment reports whether from -> to is a legal payment change.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, p := range paymentTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
