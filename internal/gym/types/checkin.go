package types

type CheckInRequest struct {
	ExternalKey string `json:"external_key" validate:"required,max=64,printascii"`
	KioskID     string `json:"kiosk_id" validate:"required,max=64,printascii"`
	RequestedAt string `json:"requested_at,omitempty"` // optional kiosk timestamp
}

// CheckInResponse is everything the kiosk needs to render a verdict.
// Remaining is null for unlimited plans and for decisions that never reached
// the quota gate.
type CheckInResponse struct {
	Allowed    bool       `json:"allowed"`
	ReasonCode ReasonCode `json:"reason_code"`
	Message    string     `json:"message"`
	Remaining  *int       `json:"remaining"`
	MemberName string     `json:"member_name,omitempty"`
	PlanName   string     `json:"plan_name,omitempty"`
	AvatarRef  string     `json:"avatar_ref,omitempty"`
	ValidUntil string     `json:"valid_until,omitempty"`
	AttemptID  string     `json:"attempt_id,omitempty"`
	KioskID    string     `json:"kiosk_id"`
	ServerTime string     `json:"server_time"`
}

type UsageResponse struct {
	MemberName string `json:"member_name"`
	PlanName   string `json:"plan_name"`
	CycleStart string `json:"cycle_start"`
	CycleEnd   string `json:"cycle_end"`
	Grace      bool   `json:"grace"`
	Used       int    `json:"used"`
	Limit      *int   `json:"limit"`
	Remaining  *int   `json:"remaining"`
	ServerTime string `json:"server_time"`
}
