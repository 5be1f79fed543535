package governance

import "errors"

// Reason identifies why a request was denied. Callers map each reason to a
// different user-visible behavior: wait-and-retry, upgrade prompt, narrower
// "try text instead" message, or a generic error.
type Reason string

const (
	ReasonRateLimited     Reason = "RATE_LIMITED"
	ReasonBudgetExceeded  Reason = "BUDGET_EXCEEDED"
	ReasonTierRestricted  Reason = "TIER_RESTRICTED"
	ReasonProfileNotFound Reason = "PROFILE_NOT_FOUND"
)

// Denial is the structured rejection returned by Route. It is an error so
// store failures and governance rejections flow through one return path,
// but callers should branch on Reason, not the message.
type Denial struct {
	Reason Reason
	Health Health
}

func (d *Denial) Error() string {
	switch d.Reason {
	case ReasonRateLimited:
		return "please wait a moment before trying again"
	case ReasonBudgetExceeded:
		return "budget exhausted for the current billing cycle"
	case ReasonTierRestricted:
		return "image requests are paused at current usage"
	case ReasonProfileNotFound:
		return "no cost profile for user"
	}
	return "request denied"
}

// AsDenial unwraps a *Denial from err, if present.
func AsDenial(err error) (*Denial, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}
