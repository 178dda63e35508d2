package giftcode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MrBns/wos-ally-manager/internal/domain"
	"github.com/MrBns/wos-ally-manager/internal/notify"
)

var (
	// ErrNotClaimable is returned when a code is inactive or expired.
	ErrNotClaimable = errors.New("gift code is inactive or expired")
	// ErrClosed is returned by Add after Close.
	ErrClosed = errors.New("gift code service closed")
)

// Store is the slice of the store the Service needs.
type Store interface {
	CreateGiftcode(ctx context.Context, g *domain.Giftcode) error
	GetGiftcode(ctx context.Context, id string) (*domain.Giftcode, error)
	ListGiftcodes(ctx context.Context) ([]domain.Giftcode, error)
	SetGiftcodeActive(ctx context.Context, id string, active bool) error
	InsertRedemption(ctx context.Context, r *domain.Redemption) error
	ListRedemptions(ctx context.Context, giftcodeID string) ([]domain.Redemption, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// Dispatcher delivers one message to one member.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg notify.Message) notify.Report
}

// ClaimSummary counts the outcomes of one claim run.
type ClaimSummary struct {
	Success        int
	AlreadyClaimed int
	Failed         int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithChannels sets the channels a successful claim is announced on.
func WithChannels(chs ...domain.Channel) Option {
	return func(s *Service) {
		if len(chs) > 0 {
			s.channels = chs
		}
	}
}

// Service stores gift codes and claims new ones for every member in the
// background.
type Service struct {
	store      Store
	redeemer   Redeemer
	dispatcher Dispatcher
	log        *zap.Logger
	now        func() time.Time
	channels   []domain.Channel

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a Service.
func NewService(store Store, redeemer Redeemer, dispatcher Dispatcher, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store:      store,
		redeemer:   redeemer,
		dispatcher: dispatcher,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		channels:   []domain.Channel{domain.ChannelInApp},
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add stores a new code and starts claiming it for every member. The claim
// run outlives ctx; Close waits for it.
func (s *Service) Add(ctx context.Context, code, addedBy string, expiresAt *time.Time) (*domain.Giftcode, error) {
	code, err := domain.NormalizeGiftcode(code)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	g := &domain.Giftcode{Code: code, AddedBy: addedBy, ExpiresAt: expiresAt, IsActive: true}
	if err := s.store.CreateGiftcode(ctx, g); err != nil {
		return nil, fmt.Errorf("create gift code %q: %w", code, err)
	}
	s.log.Info("gift code added", zap.String("giftcode_id", g.ID), zap.String("code", code), zap.String("added_by", addedBy))

	s.wg.Add(1)
	go func(g domain.Giftcode) {
		defer s.wg.Done()
		if _, err := s.ClaimAll(s.ctx, g); err != nil {
			s.log.Error("gift code claim run failed", zap.String("giftcode_id", g.ID), zap.Error(err))
		}
	}(*g)
	return g, nil
}

// ClaimAll redeems g for every member in turn, records each attempt, and
// notifies the members it succeeded for. A failure for one member does not
// stop the run; a cancelled ctx does.
func (s *Service) ClaimAll(ctx context.Context, g domain.Giftcode) (ClaimSummary, error) {
	var sum ClaimSummary
	if !g.Claimable(s.now()) {
		return sum, ErrNotClaimable
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return sum, fmt.Errorf("list users: %w", err)
	}
	s.log.Info("claiming gift code", zap.String("code", g.Code), zap.Int("members", len(users)))

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		status := s.claimOne(ctx, g, u)
		switch status {
		case domain.RedemptionSuccess:
			sum.Success++
		case domain.RedemptionAlreadyClaimed:
			sum.AlreadyClaimed++
		default:
			sum.Failed++
		}
	}

	s.log.Info("gift code claim run done",
		zap.String("code", g.Code),
		zap.Int("success", sum.Success),
		zap.Int("already_claimed", sum.AlreadyClaimed),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

func (s *Service) claimOne(ctx context.Context, g domain.Giftcode, u domain.User) (status domain.RedemptionStatus) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("gift code redeemer panicked", zap.String("user_id", u.ID), zap.Any("panic", p))
			status = domain.RedemptionFailed
		}
	}()

	status, err := s.redeemer.Redeem(ctx, u.GameUserID, g.Code)
	if err != nil || status == "" {
		s.log.Warn("gift code claim failed",
			zap.String("code", g.Code),
			zap.String("user_id", u.ID),
			zap.String("game_user_id", u.GameUserID),
			zap.Error(err),
		)
		status = domain.RedemptionFailed
	}

	if err := s.store.InsertRedemption(ctx, &domain.Redemption{
		GiftcodeID: g.ID,
		UserID:     u.ID,
		Status:     status,
		RedeemedAt: s.now(),
	}); err != nil {
		s.log.Error("record redemption failed", zap.String("user_id", u.ID), zap.Error(err))
	}

	if status == domain.RedemptionSuccess {
		title, body := domain.GiftcodeClaimedText(g.Code)
		s.dispatcher.Dispatch(ctx, notify.Message{
			UserID:   u.ID,
			Channels: s.channels,
			Category: domain.CategoryGiftcode,
			Title:    title,
			Body:     body,
		})
	}
	return status
}

// List returns every stored code.
func (s *Service) List(ctx context.Context) ([]domain.Giftcode, error) {
	return s.store.ListGiftcodes(ctx)
}

// Redemptions returns the claim attempts recorded for a code.
func (s *Service) Redemptions(ctx context.Context, giftcodeID string) ([]domain.Redemption, error) {
	return s.store.ListRedemptions(ctx, giftcodeID)
}

// Deactivate stops a code from being claimed again.
func (s *Service) Deactivate(ctx context.Context, giftcodeID string) error {
	return s.store.SetGiftcodeActive(ctx, giftcodeID, false)
}

// Close rejects new codes and waits for running claim runs. If ctx ends
// first the runs are cancelled and ctx's error is returned.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	defer s.cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.log.Warn("gift code claims cancelled on shutdown")
		return ctx.Err()
	}
}
