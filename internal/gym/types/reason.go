package types

// ReasonCode is the stable, machine-readable outcome of a check-in.
// Kiosk UI text is keyed off these values; never rename them.
type ReasonCode string

const (
	ReasonOK                 ReasonCode = "OK"
	ReasonNoAssignment       ReasonCode = "NO_ASSIGNMENT"
	ReasonMembershipInactive ReasonCode = "MEMBERSHIP_INACTIVE"
	ReasonPaymentBlocked     ReasonCode = "PAYMENT_BLOCKED"
	ReasonNoBalance          ReasonCode = "NO_BALANCE"
	ReasonDuplicateCheckIn   ReasonCode = "DUPLICATE_CHECKIN"
	ReasonOutOfWindow        ReasonCode = "OUT_OF_WINDOW"

	// ReasonSystemError is returned when the engine could not reach a verdict.
	ReasonSystemError ReasonCode = "SYSTEM_ERROR"
)

// ReasonCodes lists every code in a fixed order.
var ReasonCodes = []ReasonCode{
	ReasonOK,
	ReasonNoAssignment,
	ReasonMembershipInactive,
	ReasonPaymentBlocked,
	ReasonNoBalance,
	ReasonDuplicateCheckIn,
	ReasonOutOfWindow,
	ReasonSystemError,
}

// IsPolicyDenial reports whether r is an expected, non-retryable denial.
func (r ReasonCode) IsPolicyDenial() bool {
	switch r {
	case ReasonNoAssignment, ReasonMembershipInactive, ReasonPaymentBlocked,
		ReasonNoBalance, ReasonDuplicateCheckIn, ReasonOutOfWindow:
		return true
	}
	return false
}

func (r ReasonCode) Valid() bool {
	for _, c := range ReasonCodes {
		if c == r {
			return true
		}
	}
	return false
}
