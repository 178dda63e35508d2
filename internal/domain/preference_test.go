package domain

import "testing"

func intPtr(v int) *int { return &v }

func TestMatchesLead(t *testing.T) {
	p := &EventPreference{Enabled: true, NotifyAt10Min: true, NotifyAt5Min: false, NotifyAtStart: true}
	cases := map[int]bool{10: true, 5: false, 0: true, 15: false}
	for lead, want := range cases {
		if got := p.MatchesLead(lead); got != want {
			t.Fatalf("lead %d: want %v, got %v", lead, want, got)
		}
	}

	p.CustomMinutesBefore = intPtr(15)
	if !p.MatchesLead(15) {
		t.Fatal("custom lead 15 must match")
	}

	// A custom value equal to a standard lead matches even with the flag off.
	p.CustomMinutesBefore = intPtr(5)
	if !p.MatchesLead(5) {
		t.Fatal("custom lead 5 must match with the 5-minute flag off")
	}
}

func TestDecide(t *testing.T) {
	pref := &EventPreference{UserID: "u1", EventID: "e1", Channel: ChannelInApp, Enabled: true, NotifyAt5Min: true}

	if got := Decide(nil, nil, 5); got != DecisionNoPreferenceRow {
		t.Fatalf("want no-preference-row, got %s", got)
	}
	if got := Decide(pref, nil, 5); got != DecisionAllowed {
		t.Fatalf("want allowed, got %s", got)
	}
	if got := Decide(pref, nil, 10); got != DecisionLeadMismatch {
		t.Fatalf("want lead-mismatch, got %s", got)
	}

	on := &GlobalPreference{UserID: "u1", Channel: ChannelInApp, Enabled: true}
	if got := Decide(pref, on, 5); got != DecisionAllowed {
		t.Fatalf("want allowed with global on, got %s", got)
	}
	off := &GlobalPreference{UserID: "u1", Channel: ChannelInApp, Enabled: false}
	if got := Decide(pref, off, 5); got != DecisionSuppressedByGlobal {
		t.Fatalf("want suppressed-by-global, got %s", got)
	}

	disabled := *pref
	disabled.Enabled = false
	if got := Decide(&disabled, nil, 5); got != DecisionDisabled {
		t.Fatalf("want disabled, got %s", got)
	}
}

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel(" Telegram ")
	if err != nil || ch != ChannelTelegram {
		t.Fatalf("want telegram, got %q (%v)", ch, err)
	}
	if _, err := ParseChannel("sms"); err == nil {
		t.Fatal("expected error for unknown channel")
	}
	if ChannelInApp.IsExternal() || !ChannelPush.IsExternal() {
		t.Fatal("only inapp is internal")
	}
}
