package telegram

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrBns/wos-ally-manager/internal/domain"
	"github.com/MrBns/wos-ally-manager/internal/giftcode"
	"github.com/MrBns/wos-ally-manager/internal/notify"
	"github.com/MrBns/wos-ally-manager/internal/store"
)

type fakeBot struct {
	mu        sync.Mutex
	sent      []tgbotapi.MessageConfig
	callbacks []tgbotapi.CallbackConfig
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		b.callbacks = append(b.callbacks, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.sent)
	return b.sent[len(b.sent)-1]
}

const linkedChat int64 = 4242

type fixture struct {
	bot    *fakeBot
	router *Router
	repo   *store.SQLiteRepo
	gifts  *giftcode.Service
	user   *domain.User
}

type claimAll struct{}

func (claimAll) Redeem(context.Context, string, string) (domain.RedemptionStatus, error) {
	return domain.RedemptionSuccess, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	u := &domain.User{GameUserID: "g-7", Nickname: "Kai", TelegramChatID: "4242"}
	require.NoError(t, repo.UpsertUser(ctx, u))

	d := notify.NewDispatcher(repo, notify.Transports{}, nil)
	svc := notify.NewService(repo, d, nil, 1)
	gifts := giftcode.NewService(repo, claimAll{}, d, nil)
	t.Cleanup(func() { _ = gifts.Close(context.Background()) })
	bot := &fakeBot{}
	return &fixture{bot: bot, router: NewRouter(bot, nil, repo, svc, gifts), repo: repo, gifts: gifts, user: u}
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}}
}

func (f *fixture) global(t *testing.T, ch domain.Channel) *domain.GlobalPreference {
	t.Helper()
	p, err := f.repo.GetGlobalPreference(context.Background(), f.user.ID, ch)
	require.NoError(t, err)
	return p
}

func TestCommand(t *testing.T) {
	assert.Equal(t, "/start", command("/start"))
	assert.Equal(t, "/mute", command("/MUTE@AllianceBot now"))
	assert.Equal(t, "", command("hello /start"))
	assert.Equal(t, "", command("   "))
}

func TestStartRepliesWithChatID(t *testing.T) {
	f := newFixture(t)
	f.router.HandleUpdate(context.Background(), textUpdate(999, "/start"))

	msg := f.bot.last(t)
	assert.Equal(t, int64(999), msg.ChatID)
	assert.Contains(t, msg.Text, "999")
	assert.IsType(t, tgbotapi.ReplyKeyboardMarkup{}, msg.ReplyMarkup)
}

func TestMuteAndUnmute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleUpdate(ctx, textUpdate(linkedChat, "/mute"))
	assert.False(t, f.global(t, domain.ChannelTelegram).Enabled)
	assert.Equal(t, mutedText, f.bot.last(t).Text)

	f.router.HandleUpdate(ctx, textUpdate(linkedChat, "/unmute"))
	assert.True(t, f.global(t, domain.ChannelTelegram).Enabled)
	assert.Equal(t, unmutedText, f.bot.last(t).Text)
}

func TestUnlinkedChatIsToldHowToLink(t *testing.T) {
	f := newFixture(t)
	f.router.HandleUpdate(context.Background(), textUpdate(7, "/mute"))

	msg := f.bot.last(t)
	assert.Contains(t, msg.Text, "not linked")
	assert.Contains(t, msg.Text, "7")
	_, err := f.repo.GetGlobalPreference(context.Background(), f.user.ID, domain.ChannelTelegram)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatusListsOptOuts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.UpsertGlobalPreference(context.Background(),
		&domain.GlobalPreference{UserID: f.user.ID, Channel: domain.ChannelDiscord, Enabled: false}))

	f.router.HandleUpdate(context.Background(), textUpdate(linkedChat, "/status"))
	text := f.bot.last(t).Text
	assert.Contains(t, text, "Kai")
	assert.Contains(t, text, "🚫 Discord")
	assert.Contains(t, text, "✅ Telegram")
}

func TestSettingsToggleFlipsChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cb := func() tgbotapi.Update {
		return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb-1",
			Data:    toggleData + string(domain.ChannelPush),
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: linkedChat}},
		}}
	}

	f.router.HandleUpdate(ctx, cb())
	assert.False(t, f.global(t, domain.ChannelPush).Enabled)
	f.router.HandleUpdate(ctx, cb())
	assert.True(t, f.global(t, domain.ChannelPush).Enabled)

	require.Len(t, f.bot.callbacks, 2)
	assert.Equal(t, "Push off", f.bot.callbacks[0].Text)
	assert.Equal(t, "Push on", f.bot.callbacks[1].Text)
	assert.IsType(t, tgbotapi.InlineKeyboardMarkup{}, f.bot.last(t).ReplyMarkup)
}

func TestInboxAndReadAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleUpdate(ctx, textUpdate(linkedChat, "/inbox"))
	assert.Equal(t, inboxEmptyText, f.bot.last(t).Text)

	for _, title := range []string{"⏰ Bear Hunt starts in 5 minutes", "🎯 Bear Hunt is starting now!"} {
		require.NoError(t, f.repo.InsertDeliveryRecord(ctx, &domain.DeliveryRecord{
			UserID: f.user.ID, Category: domain.CategoryEventReminder, Channel: domain.ChannelInApp, Title: title,
		}))
	}
	f.router.HandleUpdate(ctx, textUpdate(linkedChat, "/inbox"))
	text := f.bot.last(t).Text
	assert.Contains(t, text, "2 unread")
	assert.Contains(t, text, "Bear Hunt is starting now")

	f.router.HandleUpdate(ctx, textUpdate(linkedChat, "/read"))
	assert.Equal(t, readAllText, f.bot.last(t).Text)
	f.router.HandleUpdate(ctx, textUpdate(linkedChat, "/inbox"))
	assert.Equal(t, inboxEmptyText, f.bot.last(t).Text)
}

func TestFreeFormIgnored(t *testing.T) {
	f := newFixture(t)
	f.router.HandleUpdate(context.Background(), textUpdate(linkedChat, "hello"))
	assert.Empty(t, f.bot.sent)
}

func TestAnnounceRequiresLeader(t *testing.T) {
	f := newFixture(t)
	f.router.HandleUpdate(context.Background(), textUpdate(linkedChat, "/announce Rally\nMeet at the hive"))
	assert.Equal(t, leadersOnlyText, f.bot.last(t).Text)
}

func TestAnnounceBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user.Role = "r5"
	require.NoError(t, f.repo.UpsertUser(ctx, f.user))
	other := &domain.User{GameUserID: "g-8", Nickname: "Mia"}
	require.NoError(t, f.repo.UpsertUser(ctx, other))

	f.router.HandleUpdate(ctx, textUpdate(linkedChat, "/announce"))
	assert.Equal(t, announceUsageText, f.bot.last(t).Text)

	f.router.HandleUpdate(ctx, textUpdate(linkedChat, "/announce Rally\nMeet at the hive at 20:00"))
	assert.Equal(t, "📢 Announcement sent to 2 members.", f.bot.last(t).Text)

	recs, err := f.repo.ListDeliveryRecords(ctx, other.ID, false, 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "📢 Rally", recs[0].Title)
	assert.Equal(t, "Meet at the hive at 20:00", recs[0].Body)
	assert.Equal(t, domain.CategoryAnnouncement, recs[0].Category)
}

func TestGiftcodeRequiresLeader(t *testing.T) {
	f := newFixture(t)
	f.router.HandleUpdate(context.Background(), textUpdate(linkedChat, "/giftcode WOS2025"))
	assert.Equal(t, leadersOnlyText, f.bot.last(t).Text)
}

func TestGiftcodeAddsAndClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user.Role = "r4"
	require.NoError(t, f.repo.UpsertUser(ctx, f.user))

	f.router.HandleUpdate(ctx, textUpdate(linkedChat, "/giftcode"))
	assert.Equal(t, giftcodeUsageText, f.bot.last(t).Text)

	f.router.HandleUpdate(ctx, textUpdate(linkedChat, "/giftcode@AllianceBot WOS2025"))
	assert.Equal(t, "🎁 Gift code WOS2025 added. Claiming it for every member now.", f.bot.last(t).Text)

	f.router.HandleUpdate(ctx, textUpdate(linkedChat, "/giftcode WOS2025"))
	assert.Equal(t, giftcodeExistsText, f.bot.last(t).Text)

	require.NoError(t, f.gifts.Close(ctx))
	codes, err := f.repo.ListGiftcodes(ctx)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	reds, err := f.repo.ListRedemptions(ctx, codes[0].ID)
	require.NoError(t, err)
	require.Len(t, reds, 1)
	assert.Equal(t, domain.RedemptionSuccess, reds[0].Status)

	recs, err := f.repo.ListDeliveryRecords(ctx, f.user.ID, false, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.CategoryGiftcode, recs[0].Category)
}
