package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MrBns/wos-ally-manager/internal/domain"
	"github.com/MrBns/wos-ally-manager/internal/transport"
)

// DefaultSendTimeout bounds a single external transport call.
const DefaultSendTimeout = 5 * time.Second

// DeliveryStore is the slice of the store the Dispatcher needs.
type DeliveryStore interface {
	InsertDeliveryRecord(ctx context.Context, r *domain.DeliveryRecord) error
	GetUserContact(ctx context.Context, userID string, ch domain.Channel) (string, bool, error)
	ListPushSubscriptions(ctx context.Context, userID string) ([]domain.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// TextSender delivers a title/body pair to an address (webhook URL, chat id,
// email address).
type TextSender interface {
	Send(ctx context.Context, address, title, body string) error
}

// PushSender delivers a payload to one push subscription. It returns an
// error wrapping transport.ErrSubscriptionGone when the endpoint is dead.
type PushSender interface {
	Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error
}

// Transports groups the external channels. A nil field disables the channel.
type Transports struct {
	Discord  TextSender
	Telegram TextSender
	Email    TextSender
	Push     PushSender
}

// Message is one notification for one member.
type Message struct {
	UserID   string
	Channels []domain.Channel
	Category domain.Category
	EventID  *string
	Title    string
	Body     string
}

// PushPayload is the JSON document handed to the service worker.
type PushPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSendTimeout sets the per-call transport timeout.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

// WithClock overrides the time source used for records and payloads.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher fans a message out to its channels. Every channel is handled
// on its own: a failure on one never stops the others.
type Dispatcher struct {
	store       DeliveryStore
	transports  Transports
	log         *zap.Logger
	sendTimeout time.Duration
	now         func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(store DeliveryStore, transports Transports, log *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		store:       store,
		transports:  transports,
		log:         log,
		sendTimeout: DefaultSendTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers msg on every channel and reports what happened on each.
// It never returns an error: failures are recorded in the Report and logged.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) Report {
	rep := Report{UserID: msg.UserID, Results: make([]ChannelResult, 0, len(msg.Channels))}
	for _, ch := range msg.Channels {
		res := d.dispatchChannel(ctx, msg, ch)
		if res.LogErr != nil || res.Err != nil {
			d.log.Warn("channel delivery failed",
				zap.String("user_id", msg.UserID),
				zap.String("channel", ch.String()),
				zap.Stringer("outcome", res.Outcome),
				zap.NamedError("log_error", res.LogErr),
				zap.Error(res.Err),
			)
		}
		rep.Results = append(rep.Results, res)
	}
	return rep
}

func (d *Dispatcher) dispatchChannel(ctx context.Context, msg Message, ch domain.Channel) (res ChannelResult) {
	res.Channel = ch
	defer func() {
		if p := recover(); p != nil {
			res.Outcome = OutcomeTransportError
			res.Err = fmt.Errorf("panic in %s transport: %v", ch, p)
		}
	}()

	rec := &domain.DeliveryRecord{
		UserID:   msg.UserID,
		EventID:  msg.EventID,
		Category: msg.Category,
		Channel:  ch,
		Title:    msg.Title,
		Body:     msg.Body,
		SentAt:   d.now(),
	}
	if err := d.store.InsertDeliveryRecord(ctx, rec); err != nil {
		res.LogErr = fmt.Errorf("insert delivery record: %w", err)
	}

	if !ch.IsExternal() {
		res.Outcome = OutcomeLogged
		return res
	}
	switch ch {
	case domain.ChannelPush:
		d.sendPush(ctx, msg, &res)
	case domain.ChannelDiscord:
		d.sendText(ctx, d.transports.Discord, msg, &res)
	case domain.ChannelTelegram:
		d.sendText(ctx, d.transports.Telegram, msg, &res)
	case domain.ChannelEmail:
		d.sendText(ctx, d.transports.Email, msg, &res)
	default:
		res.Outcome = OutcomeSkippedNotConfigured
		res.Err = fmt.Errorf("%w: %q", domain.ErrUnknownChannel, ch)
	}
	return res
}

func (d *Dispatcher) sendText(ctx context.Context, sender TextSender, msg Message, res *ChannelResult) {
	if sender == nil {
		res.Outcome = OutcomeSkippedNotConfigured
		return
	}
	addr, ok, err := d.store.GetUserContact(ctx, msg.UserID, res.Channel)
	if err != nil {
		res.Outcome = OutcomeLookupFailed
		res.Err = fmt.Errorf("contact lookup: %w", err)
		return
	}
	if !ok {
		res.Outcome = OutcomeSkippedNoDestination
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	err = sender.Send(sendCtx, addr, msg.Title, msg.Body)
	switch {
	case errors.Is(err, transport.ErrNotConfigured):
		res.Outcome = OutcomeSkippedNotConfigured
		return
	case err != nil:
		res.Outcome = OutcomeTransportError
		res.Err = err
		return
	}
	res.Outcome = OutcomeDelivered
}

func (d *Dispatcher) sendPush(ctx context.Context, msg Message, res *ChannelResult) {
	if d.transports.Push == nil {
		res.Outcome = OutcomeSkippedNotConfigured
		return
	}
	subs, err := d.store.ListPushSubscriptions(ctx, msg.UserID)
	if err != nil {
		res.Outcome = OutcomeLookupFailed
		res.Err = fmt.Errorf("list push subscriptions: %w", err)
		return
	}
	if len(subs) == 0 {
		res.Outcome = OutcomeSkippedNoDestination
		return
	}

	payload, err := json.Marshal(PushPayload{Title: msg.Title, Body: msg.Body, Timestamp: d.now().UnixMilli()})
	if err != nil {
		res.Outcome = OutcomeTransportError
		res.Err = err
		return
	}

	var lastErr error
	for _, sub := range subs {
		err := d.pushOne(ctx, sub, payload)
		switch {
		case err == nil:
			res.Push.Sent++
		case errors.Is(err, transport.ErrSubscriptionGone):
			res.Push.Gone++
			if delErr := d.store.DeletePushSubscription(ctx, sub.Endpoint); delErr != nil {
				d.log.Error("delete stale push subscription failed",
					zap.String("user_id", msg.UserID),
					zap.String("endpoint", sub.Endpoint),
					zap.Error(delErr),
				)
				continue
			}
			res.Push.Removed++
			d.log.Info("removed stale push subscription",
				zap.String("user_id", msg.UserID),
				zap.String("endpoint", sub.Endpoint),
			)
		default:
			res.Push.Failed++
			lastErr = err
		}
	}

	switch {
	case res.Push.Sent > 0:
		res.Outcome = OutcomeDelivered
	case res.Push.Failed > 0:
		res.Outcome = OutcomeTransportError
	default:
		res.Outcome = OutcomeSubscriptionGone
	}
	if lastErr != nil {
		res.Err = lastErr
	}
}

func (d *Dispatcher) pushOne(ctx context.Context, sub domain.PushSubscription, payload []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in push transport: %v", p)
		}
	}()
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.transports.Push.Send(sendCtx, sub, payload)
}
