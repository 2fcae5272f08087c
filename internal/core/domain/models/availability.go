package models

import "time"

// AvailabilityKind is the OPDS availability state of a feed entry.
type AvailabilityKind int

const (
	AvailabilityOpenAccess AvailabilityKind = iota
	AvailabilityHoldable
	AvailabilityLoanable
	AvailabilityHeld
	AvailabilityHeldReady
	AvailabilityLoaned
	AvailabilityRevoked
)

func (k AvailabilityKind) String() string {
	switch k {
	case AvailabilityOpenAccess:
		return "open-access"
	case AvailabilityHoldable:
		return "holdable"
	case AvailabilityLoanable:
		return "loanable"
	case AvailabilityHeld:
		return "held"
	case AvailabilityHeldReady:
		return "ready"
	case AvailabilityLoaned:
		return "loaned"
	case AvailabilityRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Availability is an entry's availability state plus the optional revocation
// link. RevokeHref is empty when the server offers no remote revocation.
type Availability struct {
	Kind       AvailabilityKind
	RevokeHref string
	Until      time.Time
}

// Revocable reports whether revoking this availability state is meaningful.
// Holdable and Loanable titles were never lent to the patron, so there is
// nothing to revoke.
func (a Availability) Revocable() bool {
	switch a.Kind {
	case AvailabilityHoldable, AvailabilityLoanable:
		return false
	default:
		return true
	}
}
