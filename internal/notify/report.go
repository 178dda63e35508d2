package notify

import "github.com/MrBns/wos-ally-manager/internal/domain"

// Outcome is what happened on one channel of one dispatch.
type Outcome int

const (
	// OutcomeLogged means the channel is in-app only and the log entry is the delivery.
	OutcomeLogged Outcome = iota
	OutcomeDelivered
	OutcomeSkippedNoDestination
	OutcomeSkippedNotConfigured
	OutcomeLookupFailed
	OutcomeTransportError
	OutcomeSubscriptionGone
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLogged:
		return "logged"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeSkippedNoDestination:
		return "skipped-no-destination"
	case OutcomeSkippedNotConfigured:
		return "skipped-not-configured"
	case OutcomeLookupFailed:
		return "lookup-failed"
	case OutcomeTransportError:
		return "transport-error"
	case OutcomeSubscriptionGone:
		return "subscription-gone"
	default:
		return "unknown"
	}
}

// PushStats counts per-subscription results of a push channel attempt.
type PushStats struct {
	Sent    int
	Gone    int
	Failed  int
	Removed int
}

// ChannelResult is the result of one channel of a dispatch.
type ChannelResult struct {
	Channel domain.Channel
	Outcome Outcome
	Err     error // transport or lookup error, if any
	LogErr  error // failure to write the delivery record
	Push    PushStats
}

// Report aggregates the per-channel results of one Dispatch call.
type Report struct {
	UserID  string
	Results []ChannelResult
}

// Result returns the result for ch.
func (r Report) Result(ch domain.Channel) (ChannelResult, bool) {
	for _, res := range r.Results {
		if res.Channel == ch {
			return res, true
		}
	}
	return ChannelResult{}, false
}

// Failures counts channels whose transport, lookup, or log write failed.
func (r Report) Failures() int {
	n := 0
	for _, res := range r.Results {
		if res.LogErr != nil || res.Outcome == OutcomeTransportError || res.Outcome == OutcomeLookupFailed {
			n++
		}
	}
	return n
}
