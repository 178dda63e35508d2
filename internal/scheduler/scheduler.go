package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MrBns/wos-ally-manager/internal/domain"
	"github.com/MrBns/wos-ally-manager/internal/logger"
	"github.com/MrBns/wos-ally-manager/internal/notify"
)

const (
	// DefaultSpec fires at the top of every minute.
	DefaultSpec = "* * * * *"
	// DefaultWindow is the width of the due window checked per tick.
	DefaultWindow = time.Minute
	// DefaultConcurrency bounds how many events one tick evaluates at once.
	DefaultConcurrency = 4
)

// EventSource is the part of the store the scheduler reads.
type EventSource interface {
	ListActiveEvents(ctx context.Context) ([]domain.Event, error)
	ListEnabledEventPreferences(ctx context.Context, eventID string) ([]domain.EventPreference, error)
}

// Resolver picks the recipients of a reminder.
type Resolver interface {
	UsersToNotify(ctx context.Context, eventID string, leadMinutes int) ([]notify.Target, error)
}

// Dispatcher delivers one message to one member.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg notify.Message) notify.Report
}

// TickReport summarises one evaluation cycle.
type TickReport struct {
	Ref        time.Time
	Events     int // active events evaluated
	Failed     int // events whose evaluation hit an error
	Fired      int // (event, lead-time) reminders that were due
	Dispatches int // members messaged
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSpec sets the cron spec driving ticks.
func WithSpec(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.spec = spec
		}
	}
}

// WithWindow sets the due window width. It should match the tick cadence.
func WithWindow(window time.Duration) Option {
	return func(s *Scheduler) {
		if window > 0 {
			s.window = window
		}
	}
}

// WithConcurrency bounds concurrent event evaluation within a tick.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithClock overrides the time source for scheduled ticks.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler periodically checks active events and sends the reminders that
// fall due. Ticks never overlap: a tick that is still running when the next
// one is due causes the next one to be skipped and logged at warn level.
type Scheduler struct {
	events     EventSource
	resolver   Resolver
	dispatcher Dispatcher
	log        *zap.Logger

	spec        string
	window      time.Duration
	concurrency int
	now         func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. It does nothing until Start is called.
func New(events EventSource, resolver Resolver, dispatcher Dispatcher, log *zap.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		events:      events,
		resolver:    resolver,
		dispatcher:  dispatcher,
		log:         log,
		spec:        DefaultSpec,
		window:      DefaultWindow,
		concurrency: DefaultConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins ticking in the background. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	cl := logger.Cron(s.log)
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), s.skipIfStillRunning()),
	)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := c.AddFunc(s.spec, func() { s.Tick(ctx, s.now()) }); err != nil {
		cancel()
		return fmt.Errorf("scheduler spec %q: %w", s.spec, err)
	}

	s.cron, s.ctx, s.cancel = c, ctx, cancel
	c.Start()
	s.log.Info("scheduler started", zap.String("spec", s.spec), zap.Duration("window", s.window))
	return nil
}

// Stop halts ticking and waits for an in-flight tick to finish. If ctx ends
// first the tick is cancelled and ctx's error is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.ctx, s.cancel = nil, nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	defer cancel()

	s.log.Info("scheduler stopping")
	select {
	case <-c.Stop().Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out, cancelling tick")
		return ctx.Err()
	}
}

// skipIfStillRunning drops a scheduled run while the previous one is still
// going. The dropped due window is never evaluated, so it is logged.
func (s *Scheduler) skipIfStillRunning() cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		slot := make(chan struct{}, 1)
		slot <- struct{}{}
		return cron.FuncJob(func() {
			select {
			case v := <-slot:
				defer func() { slot <- v }()
				j.Run()
			default:
				ref := s.now().UTC().Truncate(time.Minute)
				s.log.Warn("tick skipped, previous tick still running",
					zap.Time("window_start", ref),
					zap.Time("window_end", ref.Add(s.window)),
				)
			}
		})
	}
}

// Tick runs one evaluation cycle for the window [ref, ref+window). ref is
// truncated to the minute. Events are evaluated independently; a failure on
// one is logged and counted.
func (s *Scheduler) Tick(ctx context.Context, ref time.Time) TickReport {
	ref = ref.UTC().Truncate(time.Minute)
	rep := TickReport{Ref: ref}
	start := time.Now()

	events, err := s.events.ListActiveEvents(ctx)
	if err != nil {
		s.log.Error("list active events failed", zap.Time("ref", ref), zap.Error(err))
		return rep
	}
	rep.Events = len(events)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, ev := range events {
		g.Go(func() error {
			fired, sent, err := s.evaluate(ctx, ev, ref)
			mu.Lock()
			rep.Fired += fired
			rep.Dispatches += sent
			if err != nil {
				rep.Failed++
			}
			mu.Unlock()
			if err != nil {
				s.log.Error("event evaluation failed",
					zap.String("event_id", ev.ID),
					zap.String("event", ev.Name),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	if rep.Fired > 0 || rep.Failed > 0 {
		s.log.Info("tick done",
			zap.Time("ref", ref),
			zap.Int("events", rep.Events),
			zap.Int("failed", rep.Failed),
			zap.Int("fired", rep.Fired),
			zap.Int("dispatches", rep.Dispatches),
			zap.Duration("took", time.Since(start)),
		)
	} else {
		s.log.Debug("tick done", zap.Time("ref", ref), zap.Int("events", rep.Events))
	}
	return rep
}

// evaluate fires every due reminder of ev: first the standard lead-times,
// then the custom ones as a separate pass. A custom lead equal to a
// standard one is checked in both passes. Errors on one lead-time do not
// stop the others; they are joined into the returned error.
func (s *Scheduler) evaluate(ctx context.Context, ev domain.Event, ref time.Time) (fired, sent int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Join(err, fmt.Errorf("panic: %v", p))
		}
	}()

	prefs, err := s.events.ListEnabledEventPreferences(ctx, ev.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("list preferences: %w", err)
	}

	var errs []error
	for _, pass := range [][]int{domain.StandardLeadTimes, CustomLeadTimes(prefs)} {
		for _, lead := range pass {
			at, err := ev.NextReminder(lead, ref)
			if err != nil {
				return fired, sent, err
			}
			if !domain.InWindow(at, ref, s.window) {
				continue
			}
			fired++
			n, err := s.fire(ctx, ev, lead)
			sent += n
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	return fired, sent, errors.Join(errs...)
}

// fire sends the reminder for ev at lead to every resolved member.
func (s *Scheduler) fire(ctx context.Context, ev domain.Event, lead int) (int, error) {
	targets, err := s.resolver.UsersToNotify(ctx, ev.ID, lead)
	if err != nil {
		return 0, fmt.Errorf("resolve lead %d: %w", lead, err)
	}
	title, body := domain.ReminderText(ev.Name, ev.StartTime, lead)
	for _, t := range targets {
		eventID := ev.ID
		rep := s.dispatcher.Dispatch(ctx, notify.Message{
			UserID:   t.UserID,
			Channels: t.Channels,
			Category: domain.CategoryEventReminder,
			EventID:  &eventID,
			Title:    title,
			Body:     body,
		})
		if n := rep.Failures(); n > 0 {
			s.log.Warn("reminder partially failed",
				zap.String("event_id", ev.ID),
				zap.String("user_id", t.UserID),
				zap.Int("lead", lead),
				zap.Int("failed_channels", n),
			)
		}
	}
	s.log.Debug("reminder fired",
		zap.String("event_id", ev.ID),
		zap.Int("lead", lead),
		zap.Int("targets", len(targets)),
	)
	return len(targets), nil
}

// CustomLeadTimes returns the distinct custom lead-times found in prefs, in
// ascending order. Values that coincide with a standard lead-time are kept.
func CustomLeadTimes(prefs []domain.EventPreference) []int {
	seen := make(map[int]struct{}, len(prefs))
	var out []int
	for _, p := range prefs {
		if p.CustomMinutesBefore == nil {
			continue
		}
		v := *p.CustomMinutesBefore
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
