package domain

import "time"

// GlobalPreference is a per-user, per-channel master switch. A missing row
// means the channel is enabled.
type GlobalPreference struct {
	UserID    string
	Channel   Channel
	Enabled   bool
	UpdatedAt time.Time
}

// EventPreference is a member's opt-in for reminders of one event on one
// channel. Without a row the member gets nothing for that event/channel.
type EventPreference struct {
	ID                  string
	UserID              string
	EventID             string
	Channel             Channel
	Enabled             bool
	NotifyAt10Min       bool
	NotifyAt5Min        bool
	NotifyAtStart       bool
	CustomMinutesBefore *int // nil = no custom lead-time
	UpdatedAt           time.Time
}

// MatchesLead reports whether this row asks for a reminder leadMinutes
// before the start. A custom value equal to 0, 5 or 10 matches on its own,
// independently of the standard flags.
func (p *EventPreference) MatchesLead(leadMinutes int) bool {
	switch {
	case leadMinutes == 10 && p.NotifyAt10Min:
		return true
	case leadMinutes == 5 && p.NotifyAt5Min:
		return true
	case leadMinutes == 0 && p.NotifyAtStart:
		return true
	case p.CustomMinutesBefore != nil && *p.CustomMinutesBefore == leadMinutes:
		return true
	}
	return false
}

// Decision is the outcome of resolving one (user, event, channel) for a
// lead-time.
type Decision int

const (
	DecisionAllowed Decision = iota
	DecisionNoPreferenceRow
	DecisionDisabled
	DecisionLeadMismatch
	DecisionSuppressedByGlobal
)

func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionNoPreferenceRow:
		return "no-preference-row"
	case DecisionDisabled:
		return "disabled"
	case DecisionLeadMismatch:
		return "lead-mismatch"
	case DecisionSuppressedByGlobal:
		return "suppressed-by-global"
	default:
		return "unknown"
	}
}

// Decide applies the two-stage precedence rule. Stage one is the per-event
// row (must exist, be enabled and match the lead-time). Stage two is the
// global switch for the same channel, which can only veto.
// global may be nil when the member never touched the global switch.
func Decide(pref *EventPreference, global *GlobalPreference, leadMinutes int) Decision {
	if pref == nil {
		return DecisionNoPreferenceRow
	}
	if !pref.Enabled {
		return DecisionDisabled
	}
	if !pref.MatchesLead(leadMinutes) {
		return DecisionLeadMismatch
	}
	if global != nil && global.Channel == pref.Channel && !global.Enabled {
		return DecisionSuppressedByGlobal
	}
	return DecisionAllowed
}
