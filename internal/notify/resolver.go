package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MrBns/wos-ally-manager/internal/domain"
	"github.com/MrBns/wos-ally-manager/internal/store"
)

// PreferenceReader is the read-only slice of the store the Resolver needs.
type PreferenceReader interface {
	ListEnabledEventPreferences(ctx context.Context, eventID string) ([]domain.EventPreference, error)
	GetGlobalPreference(ctx context.Context, userID string, ch domain.Channel) (*domain.GlobalPreference, error)
}

// Target is one member and the channels a reminder goes out on.
type Target struct {
	UserID   string
	Channels []domain.Channel
}

// Resolver decides who gets a reminder for an event at a lead-time.
// It only reads; it never talks to transports.
type Resolver struct {
	prefs PreferenceReader
	log   *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(prefs PreferenceReader, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{prefs: prefs, log: log}
}

type globalKey struct {
	userID  string
	channel domain.Channel
}

// UsersToNotify returns the members to remind for eventID leadMinutes before
// its start, grouped by member. Order follows the first matching row per
// member and carries no meaning.
func (r *Resolver) UsersToNotify(ctx context.Context, eventID string, leadMinutes int) ([]Target, error) {
	rows, err := r.prefs.ListEnabledEventPreferences(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event preferences %s: %w", eventID, err)
	}

	globals := make(map[globalKey]*domain.GlobalPreference)
	index := make(map[string]int)
	var targets []Target

	for i := range rows {
		pref := &rows[i]
		if !pref.MatchesLead(leadMinutes) {
			continue
		}

		key := globalKey{userID: pref.UserID, channel: pref.Channel}
		global, seen := globals[key]
		if !seen {
			global, err = r.prefs.GetGlobalPreference(ctx, pref.UserID, pref.Channel)
			if errors.Is(err, store.ErrNotFound) {
				global, err = nil, nil
			}
			if err != nil {
				return nil, fmt.Errorf("global preference %s/%s: %w", pref.UserID, pref.Channel, err)
			}
			globals[key] = global
		}

		decision := domain.Decide(pref, global, leadMinutes)
		if decision != domain.DecisionAllowed {
			r.log.Debug("reminder suppressed",
				zap.String("event_id", eventID),
				zap.String("user_id", pref.UserID),
				zap.String("channel", pref.Channel.String()),
				zap.Int("lead_minutes", leadMinutes),
				zap.Stringer("decision", decision),
			)
			continue
		}

		pos, ok := index[pref.UserID]
		if !ok {
			pos = len(targets)
			index[pref.UserID] = pos
			targets = append(targets, Target{UserID: pref.UserID})
		}
		targets[pos].Channels = appendUnique(targets[pos].Channels, pref.Channel)
	}
	return targets, nil
}

func appendUnique(chs []domain.Channel, ch domain.Channel) []domain.Channel {
	for _, c := range chs {
		if c == ch {
			return chs
		}
	}
	return append(chs, ch)
}
