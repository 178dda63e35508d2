package app

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MrBns/wos-ally-manager/internal/config"
	"github.com/MrBns/wos-ally-manager/internal/giftcode"
	"github.com/MrBns/wos-ally-manager/internal/notify"
	"github.com/MrBns/wos-ally-manager/internal/transport"
)

// buildTransports turns config into the dispatcher's channel set. Channels
// without credentials stay nil and are reported as not configured.
func buildTransports(cfg config.Config, log *zap.Logger, bot transport.BotSender) notify.Transports {
	client := &http.Client{Timeout: cfg.SendTimeout + time.Second}

	tr := notify.Transports{
		Discord: transport.NewWebhook(client, cfg.WebhookRate),
		Email: transport.NewEmail(transport.EmailConfig{
			Addr:     cfg.SMTPAddr,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}, log.Named("email")),
	}
	if bot != nil {
		tr.Telegram = transport.NewTelegram(bot, cfg.TelegramRate)
	} else {
		log.Info("telegram channel disabled: no bot token")
	}
	if p := transport.NewPush(transport.PushConfig{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subscriber:      cfg.VAPIDSubscriber,
		TTL:             cfg.PushTTL,
	}, client); p != nil {
		tr.Push = p
	} else {
		log.Info("push channel disabled: no VAPID keys")
	}
	return tr
}

// newRedeemer builds the gift code API client.
func newRedeemer(cfg config.Config) *giftcode.Client {
	return giftcode.NewClient(giftcode.ClientConfig{
		PlayerURL: cfg.GiftcodePlayerURL,
		RedeemURL: cfg.GiftcodeRedeemURL,
		Salt:      cfg.GiftcodeSalt,
		Rate:      cfg.GiftcodeRate,
	}, &http.Client{Timeout: cfg.SendTimeout})
}
