package models

import "shelflend/internal/taskrec"

// StatusKind is the lifecycle state of a book in the registry. A book that is
// absent from the registry entirely has been fully revoked.
type StatusKind int

const (
	StatusHoldable StatusKind = iota
	StatusLoanable
	StatusHeld
	StatusHeldReady
	// StatusLoaned is a loan that has not been downloaded yet.
	StatusLoaned
	StatusRevoked
	// StatusFailedRevoke carries the full task result of the failed attempt.
	StatusFailedRevoke
)

func (k StatusKind) String() string {
	switch k {
	case StatusHoldable:
		return "holdable"
	case StatusLoanable:
		return "loanable"
	case StatusHeld:
		return "held"
	case StatusHeldReady:
		return "held-ready"
	case StatusLoaned:
		return "loaned"
	case StatusRevoked:
		return "revoked"
	case StatusFailedRevoke:
		return "failed-revoke"
	default:
		return "unknown"
	}
}

// BookStatus is the registry's view of a book's lifecycle. LastRevoke is set
// only for StatusFailedRevoke.
type BookStatus struct {
	Kind       StatusKind
	LastRevoke *taskrec.Result[BookID]
}

// StatusFromAvailability derives the registry status a freshly synced entry
// should carry.
func StatusFromAvailability(a Availability) BookStatus {
	switch a.Kind {
	case AvailabilityHoldable:
		return BookStatus{Kind: StatusHoldable}
	case AvailabilityLoanable:
		return BookStatus{Kind: StatusLoanable}
	case AvailabilityHeld:
		return BookStatus{Kind: StatusHeld}
	case AvailabilityHeldReady:
		return BookStatus{Kind: StatusHeldReady}
	case AvailabilityRevoked:
		return BookStatus{Kind: StatusRevoked}
	default:
		// Open-access and loaned titles are both treated as loans that have
		// not been downloaded.
		return BookStatus{Kind: StatusLoaned}
	}
}
