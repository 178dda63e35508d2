package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/MrBns/wos-ally-manager/internal/config"
	"github.com/MrBns/wos-ally-manager/internal/giftcode"
	"github.com/MrBns/wos-ally-manager/internal/notify"
	"github.com/MrBns/wos-ally-manager/internal/scheduler"
	"github.com/MrBns/wos-ally-manager/internal/store"
	"github.com/MrBns/wos-ally-manager/internal/telegram"
	"github.com/MrBns/wos-ally-manager/internal/transport"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
	router  *telegram.Router
	sched   *scheduler.Scheduler
	gifts   *giftcode.Service
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	if cfg.TelegramBotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			return nil, err
		}
		bot.Debug = false
		a.bot = bot
	}

	a.httpSrv = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      newHTTPHandler(log.Named("http"), time.Now),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting alliance notifier",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("tick", a.cfg.TickSpec),
		zap.Bool("telegram", a.bot != nil),
	)

	// Open SQLite and run migrations.
	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("sqlite ready")

	var sender transport.BotSender
	if a.bot != nil {
		sender = a.bot
	}
	dispatcher := notify.NewDispatcher(repo, buildTransports(a.cfg, a.log, sender), a.log.Named("dispatch"),
		notify.WithSendTimeout(a.cfg.SendTimeout))
	service := notify.NewService(repo, dispatcher, a.log.Named("service"), a.cfg.EvalConcurrency)
	a.gifts = giftcode.NewService(repo, newRedeemer(a.cfg), dispatcher, a.log.Named("giftcode"))
	if a.bot != nil {
		a.router = telegram.NewRouter(a.bot, a.log.Named("telegram"), repo, service, a.gifts)
	}

	a.sched = scheduler.New(repo, notify.NewResolver(repo, a.log.Named("resolver")), dispatcher, a.log.Named("scheduler"),
		scheduler.WithSpec(a.cfg.TickSpec),
		scheduler.WithWindow(a.cfg.TickWindow),
		scheduler.WithConcurrency(a.cfg.EvalConcurrency),
	)
	if err := a.sched.Start(); err != nil {
		_ = repo.Close()
		return err
	}

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	var updCh tgbotapi.UpdatesChannel
	if a.router != nil && a.cfg.TelegramPolling {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 30
		updCh = a.bot.GetUpdatesChan(u)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			return a.shutdown()

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

// shutdown lets the in-flight tick and gift code claims finish, then stops
// HTTP and the store.
func (a *App) shutdown() error {
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.bot != nil && a.cfg.TelegramPolling {
		a.bot.StopReceivingUpdates()
	}
	if err := a.sched.Stop(shCtx); err != nil {
		a.log.Warn("scheduler stop error", zap.Error(err))
	}
	if err := a.gifts.Close(shCtx); err != nil {
		a.log.Warn("gift code claims stop error", zap.Error(err))
	}
	if err := a.httpSrv.Shutdown(shCtx); err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}
	if a.repo != nil {
		return a.repo.Close()
	}
	return nil
}
