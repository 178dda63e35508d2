package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrBns/wos-ally-manager/internal/domain"
	"github.com/MrBns/wos-ally-manager/internal/store"
	"github.com/MrBns/wos-ally-manager/internal/transport"
)

// memStore is an in-memory PreferenceReader and DeliveryStore.
type memStore struct {
	mu          sync.Mutex
	prefs       []domain.EventPreference
	globals     map[string]domain.GlobalPreference // user|channel
	contacts    map[string]string                  // user|channel
	subs        map[string][]domain.PushSubscription
	records     []domain.DeliveryRecord
	deleted     []string
	globalCalls int
	prefsErr    error
	insertErr   error
}

func newMemStore() *memStore {
	return &memStore{
		globals:  make(map[string]domain.GlobalPreference),
		contacts: make(map[string]string),
		subs:     make(map[string][]domain.PushSubscription),
	}
}

func key(userID string, ch domain.Channel) string { return userID + "|" + string(ch) }

func (m *memStore) ListEnabledEventPreferences(_ context.Context, eventID string) ([]domain.EventPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prefsErr != nil {
		return nil, m.prefsErr
	}
	var out []domain.EventPreference
	for _, p := range m.prefs {
		if p.EventID == eventID && p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetGlobalPreference(_ context.Context, userID string, ch domain.Channel) (*domain.GlobalPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalCalls++
	g, ok := m.globals[key(userID, ch)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &g, nil
}

func (m *memStore) InsertDeliveryRecord(_ context.Context, r *domain.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	r.ID = fmt.Sprintf("rec-%d", len(m.records)+1)
	m.records = append(m.records, *r)
	return nil
}

func (m *memStore) GetUserContact(_ context.Context, userID string, ch domain.Channel) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr, ok := m.contacts[key(userID, ch)]
	return addr, ok, nil
}

func (m *memStore) ListPushSubscriptions(_ context.Context, userID string) ([]domain.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PushSubscription(nil), m.subs[userID]...), nil
}

func (m *memStore) DeletePushSubscription(_ context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, endpoint)
	for uid, subs := range m.subs {
		kept := subs[:0]
		for _, s := range subs {
			if s.Endpoint != endpoint {
				kept = append(kept, s)
			}
		}
		m.subs[uid] = kept
	}
	return nil
}

func (m *memStore) recordsFor(userID string) []domain.DeliveryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DeliveryRecord
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// textSpy records Send calls and fails for addresses listed in fail.
type textSpy struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	panic bool
	block bool
}

func (s *textSpy) Send(ctx context.Context, address, title, _ string) error {
	s.mu.Lock()
	s.calls = append(s.calls, address+"|"+title)
	err := s.fail[address]
	s.mu.Unlock()
	if s.panic {
		panic("boom")
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (s *textSpy) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// pushSpy answers per endpoint.
type pushSpy struct {
	mu       sync.Mutex
	sent     []string
	payloads [][]byte
	result   map[string]error
}

func (p *pushSpy) Send(_ context.Context, sub domain.PushSubscription, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sub.Endpoint)
	p.payloads = append(p.payloads, payload)
	return p.result[sub.Endpoint]
}

var (
	errBoom = errors.New("boom")
	errGone = fmt.Errorf("status 410: %w", transport.ErrSubscriptionGone)
)
