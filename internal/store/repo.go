package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrBns/wos-ally-manager/internal/domain"
)

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a uniqueness constraint.
var ErrConflict = errors.New("already exists")

// Repo defines storage operations used by the reminder engine and the
// member-facing services around it.
type Repo interface {
	// Users
	UpsertUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	FindUserByTelegramChat(ctx context.Context, chatID string) (*domain.User, error)
	GetUserContact(ctx context.Context, userID string, ch domain.Channel) (string, bool, error)

	// Events
	UpsertEvent(ctx context.Context, e *domain.Event) error
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	ListActiveEvents(ctx context.Context) ([]domain.Event, error)
	SetEventActive(ctx context.Context, id string, active bool) error

	// Preferences
	UpsertGlobalPreference(ctx context.Context, p *domain.GlobalPreference) error
	GetGlobalPreference(ctx context.Context, userID string, ch domain.Channel) (*domain.GlobalPreference, error)
	ListGlobalPreferences(ctx context.Context, userID string) ([]domain.GlobalPreference, error)
	UpsertEventPreference(ctx context.Context, p *domain.EventPreference) error
	ListEnabledEventPreferences(ctx context.Context, eventID string) ([]domain.EventPreference, error)
	ListEventPreferencesByUser(ctx context.Context, userID string) ([]domain.EventPreference, error)

	// Delivery log
	InsertDeliveryRecord(ctx context.Context, r *domain.DeliveryRecord) error
	ListDeliveryRecords(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.DeliveryRecord, error)
	MarkDeliveryRead(ctx context.Context, userID, id string) error
	MarkAllDeliveriesRead(ctx context.Context, userID string) error

	// Push subscriptions
	SavePushSubscription(ctx context.Context, s *domain.PushSubscription) error
	ListPushSubscriptions(ctx context.Context, userID string) ([]domain.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error

	// Gift codes
	CreateGiftcode(ctx context.Context, g *domain.Giftcode) error
	GetGiftcode(ctx context.Context, id string) (*domain.Giftcode, error)
	ListGiftcodes(ctx context.Context) ([]domain.Giftcode, error)
	SetGiftcodeActive(ctx context.Context, id string, active bool) error
	InsertRedemption(ctx context.Context, r *domain.Redemption) error
	ListRedemptions(ctx context.Context, giftcodeID string) ([]domain.Redemption, error)

	Close() error
}

// nowUTC is swapped in tests.
var nowUTC = func() time.Time { return time.Now().UTC() }
