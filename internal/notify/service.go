package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MrBns/wos-ally-manager/internal/domain"
	"github.com/MrBns/wos-ally-manager/internal/store"
)

// AnnouncementChannels are the channels an announcement is broadcast on.
var AnnouncementChannels = []domain.Channel{
	domain.ChannelInApp,
	domain.ChannelPush,
	domain.ChannelDiscord,
	domain.ChannelTelegram,
}

const defaultInboxLimit = 100

// Service holds the member-facing notification operations: inbox,
// preferences, push subscriptions and announcements.
type Service struct {
	repo        store.Repo
	dispatcher  *Dispatcher
	log         *zap.Logger
	concurrency int
}

// NewService creates a Service. concurrency bounds parallel announcement
// fan-out; values below 1 mean 1.
func NewService(repo store.Repo, dispatcher *Dispatcher, log *zap.Logger, concurrency int) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{repo: repo, dispatcher: dispatcher, log: log, concurrency: concurrency}
}

// Inbox returns the member's delivery log, newest first.
func (s *Service) Inbox(ctx context.Context, userID string, unreadOnly bool) ([]domain.DeliveryRecord, error) {
	return s.repo.ListDeliveryRecords(ctx, userID, unreadOnly, defaultInboxLimit)
}

// MarkRead marks one of the member's records as read.
func (s *Service) MarkRead(ctx context.Context, userID, recordID string) error {
	return s.repo.MarkDeliveryRead(ctx, userID, recordID)
}

// MarkAllRead marks every record of the member as read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllDeliveriesRead(ctx, userID)
}

// SetGlobalPreference flips the member's master switch for a channel.
func (s *Service) SetGlobalPreference(ctx context.Context, userID string, ch domain.Channel, enabled bool) error {
	if _, err := domain.ParseChannel(string(ch)); err != nil {
		return err
	}
	return s.repo.UpsertGlobalPreference(ctx, &domain.GlobalPreference{UserID: userID, Channel: ch, Enabled: enabled})
}

// GlobalPreferences returns the member's explicit master switches.
func (s *Service) GlobalPreferences(ctx context.Context, userID string) ([]domain.GlobalPreference, error) {
	return s.repo.ListGlobalPreferences(ctx, userID)
}

// EventPreferenceInput is a member's request to change one per-event row.
// Nil standard flags default to true.
type EventPreferenceInput struct {
	EventID             string
	Channel             domain.Channel
	Enabled             bool
	NotifyAt10Min       *bool
	NotifyAt5Min        *bool
	NotifyAtStart       *bool
	CustomMinutesBefore *int
}

// SetEventPreference validates and stores a per-event row.
func (s *Service) SetEventPreference(ctx context.Context, userID string, in EventPreferenceInput) (*domain.EventPreference, error) {
	if strings.TrimSpace(in.EventID) == "" {
		return nil, errors.New("event id is required")
	}
	if _, err := domain.ParseChannel(string(in.Channel)); err != nil {
		return nil, err
	}
	if in.CustomMinutesBefore != nil {
		if err := domain.ValidateCustomLead(*in.CustomMinutesBefore); err != nil {
			return nil, err
		}
	}
	if _, err := s.repo.GetEvent(ctx, in.EventID); err != nil {
		return nil, fmt.Errorf("event %s: %w", in.EventID, err)
	}

	p := &domain.EventPreference{
		UserID:              userID,
		EventID:             in.EventID,
		Channel:             in.Channel,
		Enabled:             in.Enabled,
		NotifyAt10Min:       boolOr(in.NotifyAt10Min, true),
		NotifyAt5Min:        boolOr(in.NotifyAt5Min, true),
		NotifyAtStart:       boolOr(in.NotifyAtStart, true),
		CustomMinutesBefore: in.CustomMinutesBefore,
	}
	if err := s.repo.UpsertEventPreference(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// EventPreferences returns the member's per-event rows.
func (s *Service) EventPreferences(ctx context.Context, userID string) ([]domain.EventPreference, error) {
	return s.repo.ListEventPreferencesByUser(ctx, userID)
}

// SubscribePush stores a Web Push subscription for the member.
func (s *Service) SubscribePush(ctx context.Context, userID string, sub domain.PushSubscription) error {
	if !strings.HasPrefix(sub.Endpoint, "https://") {
		return fmt.Errorf("push endpoint must be https: %q", sub.Endpoint)
	}
	if sub.P256dh == "" || sub.Auth == "" {
		return errors.New("push subscription keys are required")
	}
	sub.UserID = userID
	return s.repo.SavePushSubscription(ctx, &sub)
}

// UnsubscribePush removes a Web Push subscription.
func (s *Service) UnsubscribePush(ctx context.Context, endpoint string) error {
	return s.repo.DeletePushSubscription(ctx, endpoint)
}

// AnnounceResult summarises a broadcast.
type AnnounceResult struct {
	Recipients int
	Reports    []Report
}

// Announce broadcasts an announcement to every member on
// AnnouncementChannels, minus channels the member switched off globally.
func (s *Service) Announce(ctx context.Context, title, body string) (AnnounceResult, error) {
	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	if title == "" || body == "" {
		return AnnounceResult{}, errors.New("announcement title and body are required")
	}

	userIDs, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		return AnnounceResult{}, fmt.Errorf("list users: %w", err)
	}

	var (
		mu  sync.Mutex
		res = AnnounceResult{Recipients: len(userIDs)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, uid := range userIDs {
		g.Go(func() error {
			channels, err := s.allowedChannels(gctx, uid, AnnouncementChannels)
			if err != nil {
				s.log.Error("announcement preference lookup failed", zap.String("user_id", uid), zap.Error(err))
				return nil
			}
			if len(channels) == 0 {
				return nil
			}
			rep := s.dispatcher.Dispatch(gctx, Message{
				UserID:   uid,
				Channels: channels,
				Category: domain.CategoryAnnouncement,
				Title:    "📢 " + title,
				Body:     body,
			})
			mu.Lock()
			res.Reports = append(res.Reports, rep)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("announcement broadcast",
		zap.String("title", title),
		zap.Int("recipients", res.Recipients),
		zap.Int("dispatched", len(res.Reports)),
	)
	return res, nil
}

func (s *Service) allowedChannels(ctx context.Context, userID string, channels []domain.Channel) ([]domain.Channel, error) {
	out := make([]domain.Channel, 0, len(channels))
	for _, ch := range channels {
		g, err := s.repo.GetGlobalPreference(ctx, userID, ch)
		if errors.Is(err, store.ErrNotFound) {
			out = append(out, ch)
			continue
		}
		if err != nil {
			return nil, err
		}
		if g.Enabled {
			out = append(out, ch)
		}
	}
	return out, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
