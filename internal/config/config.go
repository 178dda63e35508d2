package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	DBPath   string `envconfig:"DB_PATH" default:"./data/alliance.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"` // healthz

	// Scheduler
	TickSpec        string        `envconfig:"TICK_SPEC" default:"* * * * *"`
	TickWindow      time.Duration `envconfig:"TICK_WINDOW" default:"60s"`
	EvalConcurrency int           `envconfig:"EVAL_CONCURRENCY" default:"4"`
	SendTimeout     time.Duration `envconfig:"SEND_TIMEOUT" default:"5s"`

	// Telegram; an empty token disables the channel and the bot commands.
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramPolling  bool    `envconfig:"TELEGRAM_POLLING" default:"true"`
	TelegramRate     float64 `envconfig:"TELEGRAM_RATE" default:"25"` // msgs/s
	WebhookRate      float64 `envconfig:"WEBHOOK_RATE" default:"5"`   // msgs/s

	// Web Push; missing keys disable the channel.
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDSubscriber string `envconfig:"VAPID_SUBSCRIBER" default:"admin@example.com"` // contact email
	PushTTL         int    `envconfig:"PUSH_TTL" default:"3600"` // seconds

	// Email; an empty SMTP_ADDR logs instead of sending.
	SMTPAddr     string `envconfig:"SMTP_ADDR"`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"alliance-bot@localhost"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`

	// Gift codes
	GiftcodePlayerURL string  `envconfig:"GIFTCODE_PLAYER_URL" default:"https://wos-giftcode-api.centurygame.com/api/player"`
	GiftcodeRedeemURL string  `envconfig:"GIFTCODE_REDEEM_URL" default:"https://wos-giftcode-api.centurygame.com/api/gift_code"`
	GiftcodeSalt      string  `envconfig:"GIFTCODE_SALT" default:"7bzapT4KfpADMNpf"`
	GiftcodeRate      float64 `envconfig:"GIFTCODE_RATE" default:"2"` // members/s
}

// Load reads an optional .env file and then environment variables into Config.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	var cfg Config
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the services cannot run with.
func (c Config) Validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("DB_PATH must not be empty")
	case c.TickWindow <= 0:
		return errors.New("TICK_WINDOW must be positive")
	case c.EvalConcurrency < 1:
		return errors.New("EVAL_CONCURRENCY must be at least 1")
	case c.SendTimeout <= 0:
		return errors.New("SEND_TIMEOUT must be positive")
	case (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == ""):
		return errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	case strings.Contains(c.VAPIDSubscriber, "://"):
		return errors.New("VAPID_SUBSCRIBER must be an email address")
	case c.GiftcodeRate <= 0:
		return errors.New("GIFTCODE_RATE must be positive")
	}
	return nil
}
