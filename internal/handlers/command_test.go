package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"gatedrop-bot/internal/auth"
	"gatedrop-bot/internal/broadcast"
	"gatedrop-bot/internal/config"
	"gatedrop-bot/internal/database"
	"gatedrop-bot/internal/deletion"
	"gatedrop-bot/internal/delivery"
	"gatedrop-bot/internal/links"
	"gatedrop-bot/internal/locales"
	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/quota"
	"gatedrop-bot/internal/state"
	"gatedrop-bot/internal/subscriptions"
	"gatedrop-bot/internal/transport"
	"gatedrop-bot/pkg/logger"
	"gatedrop-bot/pkg/telegoapi/mocks"

	"github.com/benbjohnson/clock"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	operatorID  = int64(1)
	userID      = int64(500)
	dbChannel   = int64(-1001)
	subsChannel = int64(-1002)
	limChannel  = int64(-1003)
	upChannel   = int64(-1004)
	bcChannel   = int64(-1005)
	fwdChannel  = int64(-1006)
	required    = int64(-1007)
)

type fixture struct {
	bot      *mocks.MockBot
	clock    *clock.Mock
	state    *state.State
	registry *links.Registry
	ledger   *subscriptions.Ledger
	handler  *MessageHandler
}

func newFixture(t *testing.T, requiredChannels ...int64) *fixture {
	t.Helper()
	log := logger.Discard()
	f := &fixture{bot: new(mocks.MockBot), clock: clock.NewMock()}
	f.clock.Set(time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC))

	cfg := &config.Config{
		AdminID:              operatorID,
		DBChannelID:          dbChannel,
		SubsChannelID:        subsChannel,
		LimitedSubsChannelID: limChannel,
		UpgradeChannelID:     upChannel,
		BroadcastChannelID:   bcChannel,
		ForwardChannelID:     fwdChannel,
		PayURL:               "https://t.me/pay",
		RenewURL:             "https://t.me/renew",
		Location:             time.UTC,
		Invites:              map[int64]string{required: "https://t.me/+invite"},
	}
	f.state = state.New(database.NewMemoryStateStore(), "https://play.example/", time.Hour)

	n := 0
	f.registry = links.NewRegistry(f.state, f.clock, log, links.WithTokenGenerator(func() string {
		n++
		return fmt.Sprintf("tok%d", n)
	}))
	f.ledger = subscriptions.NewLedger(f.state, f.clock, log)
	checker := auth.NewChecker(f.bot, operatorID, requiredChannels, log)
	engine := quota.NewEngine(f.state, operatorID, log)
	tr := transport.NewTelegram(f.bot, dbChannel, operatorID, log)
	sched := deletion.NewScheduler(f.state, tr, f.clock, 0, log)
	t.Cleanup(sched.Stop)
	bundle, err := locales.New("en", log)
	require.NoError(t, err)

	f.handler = NewMessageHandler(Deps{
		Config:        cfg,
		BotUsername:   "testbot",
		State:         f.state,
		Auth:          checker,
		Links:         f.registry,
		Quota:         engine,
		Subscriptions: f.ledger,
		Deletions:     sched,
		Delivery: delivery.New(delivery.Deps{
			Links: f.registry, Members: checker, Plans: f.ledger, Quota: engine,
			Sender: tr, Deletions: sched, State: f.state, Clock: f.clock, Log: log,
		}),
		Broadcaster: broadcast.NewBroadcaster(f.state, tr, 0, log),
		Transport:   tr,
		Locales:     bundle,
		Clock:       f.clock,
		Log:         log,
	})
	return f
}

func (f *fixture) batch(t *testing.T, posts int) string {
	t.Helper()
	link, err := f.registry.CreateBatch(context.Background(), 1, posts, func(_ context.Context, id int) (models.ContentItem, error) {
		text := fmt.Sprintf("episode %d https://play.example/e/%d", id, id)
		return models.ContentItem{Kind: models.KindText, Text: text, OriginalText: text, SourceBaseURL: "https://play.example/"}, nil
	})
	require.NoError(t, err)
	return link.Token
}

func private(from int64, text string) telego.Message {
	return telego.Message{
		MessageID: 10,
		From:      &telego.User{ID: from, FirstName: "Ann"},
		Chat:      telego.Chat{ID: from, Type: telego.ChatTypePrivate},
		Text:      text,
	}
}

func textTo(chatID int64, contains string) interface{} {
	return mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.ChatID == tu.ID(chatID) && strings.Contains(p.Text, contains)
	})
}

func (f *fixture) run(t *testing.T, msg telego.Message) error {
	t.Helper()
	name, _ := ParseCommand(msg.Text)
	fn := f.handler.GetCommandHandler(name, msg.From.ID)
	require.NotNil(t, fn, "no handler for %q", name)
	return fn(context.Background(), f.bot, msg)
}

func TestCallbackDataRoundTrip(t *testing.T) {
	for kind := range callbackNames {
		cb := Callback{Kind: kind}
		if kind.takesUser() {
			cb.UserID = 12345
		}
		got, err := ParseCallback(cb.Data())
		require.NoError(t, err, cb.Data())
		assert.Equal(t, cb, got)
	}

	for _, bad := range []string{"", "nope", "cancel_sub", "cancel_sub:x", "premium_users:1"} {
		_, err := ParseCallback(bad)
		assert.Error(t, err, bad)
	}
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))
	assert.Equal(t, []string{"aaaa\n", "bbbb\n", "cc"}, splitMessage("aaaa\nbbbb\ncc", 6))
	assert.Equal(t, []string{"abc", "def", "g"}, splitMessage("abcdefg", 3))
}

func TestSplitMessageKeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("сериал 🎬 ", 40)
	parts := splitMessage(text, 25)
	require.Greater(t, len(parts), 1)
	for _, part := range parts {
		assert.True(t, utf8.ValidString(part), "part %q is not valid UTF-8", part)
		assert.LessOrEqual(t, len(part), 25)
	}
	assert.Equal(t, text, strings.Join(parts, ""))

	assert.Equal(t, []string{"🎬", "🎬"}, splitMessage("🎬🎬", 2))
}

func TestParseCommand(t *testing.T) {
	name, args := ParseCommand("/start@testbot tok1")
	assert.Equal(t, "start", name)
	assert.Equal(t, []string{"tok1"}, args)

	name, _ = ParseCommand("hello")
	assert.Empty(t, name)
}

func TestOperatorCommandsHiddenFromUsers(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, f.handler.GetCommandHandler("export", userID))
	assert.NotNil(t, f.handler.GetCommandHandler("export", operatorID))
	assert.NotNil(t, f.handler.GetCommandHandler("plan", userID))
	assert.Nil(t, f.handler.GetCommandHandler("nope", operatorID))
}

func TestStartInvalidLink(t *testing.T) {
	f := newFixture(t)
	f.bot.On("SendMessage", mock.Anything, textTo(userID, "Invalid link!")).Return(&telego.Message{MessageID: 1}, nil).Once()

	require.NoError(t, f.run(t, private(userID, "/start missing")))
	f.bot.AssertExpectations(t)
}

func TestStartDeliversBatchProtected(t *testing.T) {
	f := newFixture(t)
	token := f.batch(t, 2)

	protected := mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.ChatID == tu.ID(userID) && p.ProtectContent && strings.HasPrefix(p.Text, "episode")
	})
	f.bot.On("SendMessage", mock.Anything, protected).Return(&telego.Message{MessageID: 70}, nil).Once()
	f.bot.On("SendMessage", mock.Anything, protected).Return(&telego.Message{MessageID: 71}, nil).Once()

	require.NoError(t, f.run(t, private(userID, "/start "+token)))
	f.bot.AssertExpectations(t)
	assert.Len(t, f.state.Snapshot().Pending, 2)
}

func TestStartMembershipRequired(t *testing.T) {
	f := newFixture(t, required)
	token := f.batch(t, 1)

	f.bot.On("GetChatMember", mock.Anything, mock.Anything).Return(nil, errors.New("user not found")).Once()
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		kb, ok := p.ReplyMarkup.(*telego.InlineKeyboardMarkup)
		return ok && strings.Contains(p.Text, "must join") &&
			len(kb.InlineKeyboard) == 2 &&
			kb.InlineKeyboard[0][0].Text == "Join Channel 1" &&
			kb.InlineKeyboard[0][0].URL == "https://t.me/+invite" &&
			kb.InlineKeyboard[1][0].URL == "https://t.me/testbot?start="+token
	})).Return(&telego.Message{MessageID: 1}, nil).Once()

	require.NoError(t, f.run(t, private(userID, "/start "+token)))
	f.bot.AssertExpectations(t)
}

func TestStartBasicQuotaExceeded(t *testing.T) {
	f := newFixture(t)
	first := f.batch(t, 1)
	second := f.batch(t, 1)

	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.ProtectContent
	})).Return(&telego.Message{MessageID: 2}, nil).Once()
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		kb, ok := p.ReplyMarkup.(*telego.InlineKeyboardMarkup)
		return strings.Contains(p.Text, "Attention, <a href='tg://user?id=500'>Ann</a>") &&
			ok && kb.InlineKeyboard[0][0].URL == "https://t.me/pay"
	})).Return(&telego.Message{MessageID: 3}, nil).Once()

	require.NoError(t, f.run(t, private(userID, "/start "+first)))
	require.NoError(t, f.run(t, private(userID, "/start "+second)))
	f.bot.AssertExpectations(t)
}

func TestPlan(t *testing.T) {
	f := newFixture(t)
	f.bot.On("SendMessage", mock.Anything, textTo(userID, "Basic Plan")).Return(&telego.Message{}, nil).Once()
	require.NoError(t, f.run(t, private(userID, "/plan")))

	_, err := f.ledger.Activate(context.Background(), userID, models.PlanLimited)
	require.NoError(t, err)
	f.clock.Add(36 * time.Hour)
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "Premium Plan") &&
			strings.Contains(p.Text, "28d 12h") &&
			strings.Contains(p.Text, "Links used today: 0/3")
	})).Return(&telego.Message{}, nil).Once()
	require.NoError(t, f.run(t, private(userID, "/plan")))
	f.bot.AssertExpectations(t)
}

func forwardedPost(postID int, from int64) telego.Message {
	msg := private(operatorID, "")
	msg.ForwardOrigin = &telego.MessageOriginChannel{
		Type:      telego.OriginTypeChannel,
		Chat:      telego.Chat{ID: from, Type: telego.ChatTypeChannel},
		MessageID: postID,
	}
	return msg
}

func TestBatchConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.On("SendMessage", mock.Anything, textTo(operatorID, "FIRST post")).Return(&telego.Message{}, nil).Once()
	f.bot.On("SendMessage", mock.Anything, textTo(operatorID, "LAST post")).Return(&telego.Message{}, nil).Once()
	f.bot.On("ForwardMessage", mock.Anything, mock.MatchedBy(func(p *telego.ForwardMessageParams) bool {
		return p.ChatID == tu.ID(operatorID) && p.FromChatID == tu.ID(dbChannel)
	})).Return(&telego.Message{MessageID: 900, Text: "ep https://play.example/e/1"}, nil).Times(3)
	f.bot.On("DeleteMessage", mock.Anything, mock.Anything).Return(nil).Times(3)
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "Batch created!") &&
			strings.Contains(p.Text, "https://t.me/testbot?start=tok1") &&
			strings.Contains(p.Text, "Found 1 URL(s) in 3 message(s)")
	})).Return(&telego.Message{}, nil).Once()

	require.NoError(t, f.run(t, private(operatorID, "/batch")))
	handled, err := f.handler.HandleOperatorInput(ctx, f.bot, forwardedPost(7, dbChannel))
	require.True(t, handled)
	require.NoError(t, err)
	handled, err = f.handler.HandleOperatorInput(ctx, f.bot, forwardedPost(5, dbChannel))
	require.True(t, handled)
	require.NoError(t, err)

	f.bot.AssertExpectations(t)
	link, err := f.registry.Resolve("tok1")
	require.NoError(t, err)
	assert.Equal(t, 5, link.RangeStart)
	assert.Equal(t, 7, link.RangeEnd)
}

func TestBatchConversationRejectsForeignPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.On("SendMessage", mock.Anything, textTo(operatorID, "FIRST post")).Return(&telego.Message{}, nil).Once()
	f.bot.On("SendMessage", mock.Anything, textTo(operatorID, "Invalid post")).Return(&telego.Message{}, nil).Once()

	require.NoError(t, f.run(t, private(operatorID, "/betch")))
	handled, err := f.handler.HandleOperatorInput(ctx, f.bot, forwardedPost(7, -999))
	assert.True(t, handled)
	assert.NoError(t, err)

	handled, _ = f.handler.HandleOperatorInput(ctx, f.bot, forwardedPost(7, dbChannel))
	assert.False(t, handled, "the conversation ends after an invalid post")
	f.bot.AssertExpectations(t)
}

func callbackQuery(from int64, cb Callback) telego.CallbackQuery {
	return telego.CallbackQuery{
		ID:      "q1",
		From:    telego.User{ID: from},
		Message: &telego.Message{MessageID: 77, Chat: telego.Chat{ID: from}},
		Data:    cb.Data(),
	}
}

func TestChangeWebsiteFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.On("AnswerCallbackQuery", mock.Anything, mock.Anything).Return(nil)
	f.bot.On("SendMessage", mock.Anything, textTo(operatorID, "Send new website URL")).Return(&telego.Message{}, nil).Twice()
	f.bot.On("SendMessage", mock.Anything, textTo(operatorID, "Invalid website URL")).Return(&telego.Message{}, nil).Once()
	f.bot.On("SendMessage", mock.Anything, textTo(operatorID, "Website updated to: https://new.example/")).Return(&telego.Message{}, nil).Once()

	require.NoError(t, f.handler.HandleCallbackQuery(ctx, f.bot, callbackQuery(operatorID, Callback{Kind: CallbackChangeWebsite})))
	require.NoError(t, f.handler.HandlePrivateMessage(ctx, f.bot, private(operatorID, "http://bad")))

	require.NoError(t, f.handler.HandleCallbackQuery(ctx, f.bot, callbackQuery(operatorID, Callback{Kind: CallbackChangeWebsite})))
	require.NoError(t, f.handler.HandlePrivateMessage(ctx, f.bot, private(operatorID, " https://new.example/ ")))

	f.bot.AssertExpectations(t)
	assert.Equal(t, "https://new.example/", f.state.Snapshot().BaseURL)
}

func TestAutoDeleteTimerFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.On("AnswerCallbackQuery", mock.Anything, mock.Anything).Return(nil)
	f.bot.On("SendMessage", mock.Anything, textTo(operatorID, "new auto delete timer")).Return(&telego.Message{}, nil).Once()
	f.bot.On("SendMessage", mock.Anything, textTo(operatorID, "updated to 90 seconds")).Return(&telego.Message{}, nil).Once()

	require.NoError(t, f.handler.HandleCallbackQuery(ctx, f.bot, callbackQuery(operatorID, Callback{Kind: CallbackTimerChange})))
	require.NoError(t, f.handler.HandlePrivateMessage(ctx, f.bot, private(operatorID, "90")))

	f.bot.AssertExpectations(t)
	assert.Equal(t, 90*time.Second, f.state.Snapshot().AutoDeleteAfter)
}

func TestCancelSubscriptionCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.Activate(ctx, userID, models.PlanFull)
	require.NoError(t, err)

	f.bot.On("AnswerCallbackQuery", mock.Anything, mock.Anything).Return(nil)
	f.bot.On("EditMessageText", mock.Anything, mock.MatchedBy(func(p *telego.EditMessageTextParams) bool {
		return p.MessageID == 77 && strings.Contains(p.Text, "has been cancelled")
	})).Return(&telego.Message{}, nil).Once()
	f.bot.On("EditMessageText", mock.Anything, mock.MatchedBy(func(p *telego.EditMessageTextParams) bool {
		return strings.Contains(p.Text, "no active subscription")
	})).Return(&telego.Message{}, nil).Once()

	confirm := callbackQuery(operatorID, Callback{Kind: CallbackCancelConfirm, UserID: userID})
	require.NoError(t, f.handler.HandleCallbackQuery(ctx, f.bot, confirm))
	require.NoError(t, f.handler.HandleCallbackQuery(ctx, f.bot, confirm))

	f.bot.AssertExpectations(t)
	_, ok := f.ledger.Get(userID)
	assert.False(t, ok)
}

func TestCallbackFromUserIgnored(t *testing.T) {
	f := newFixture(t)
	f.bot.On("AnswerCallbackQuery", mock.Anything, mock.Anything).Return(nil).Once()

	q := callbackQuery(userID, Callback{Kind: CallbackFreezeDelete})
	require.NoError(t, f.handler.HandleCallbackQuery(context.Background(), f.bot, q))
	f.bot.AssertExpectations(t)
	f.bot.AssertNotCalled(t, "EditMessageText", mock.Anything, mock.Anything)
}

func TestToggleSubscriptionFunction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.On("AnswerCallbackQuery", mock.Anything, mock.Anything).Return(nil)
	f.bot.On("EditMessageText", mock.Anything, mock.MatchedBy(func(p *telego.EditMessageTextParams) bool {
		return strings.Contains(p.Text, "now OFF")
	})).Return(&telego.Message{}, nil).Once()

	require.NoError(t, f.handler.HandleCallbackQuery(ctx, f.bot, callbackQuery(operatorID, Callback{Kind: CallbackSubscriptionToggle})))
	f.bot.AssertExpectations(t)
	paused, _ := f.ledger.Paused()
	assert.True(t, paused)
}

func channelPost(chatID int64, text string) telego.Message {
	return telego.Message{MessageID: 3, Chat: telego.Chat{ID: chatID, Type: telego.ChatTypeChannel}, Text: text}
}

func TestSubscriptionChannelActivatesAndUpgrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.On("SendMessage", mock.Anything, textTo(userID, "Limited Premium Subscription Activated")).Return(&telego.Message{}, nil).Once()
	f.bot.On("SendMessage", mock.Anything, textTo(userID, "upgraded your limited subscription")).Return(&telego.Message{}, nil).Once()

	require.NoError(t, f.handler.HandleChannelPost(ctx, f.bot, channelPost(limChannel, " 500 ")))
	assert.Equal(t, models.PlanLimited, f.ledger.EffectivePlan(userID))

	require.NoError(t, f.handler.HandleChannelPost(ctx, f.bot, channelPost(upChannel, "500")))
	assert.Equal(t, models.PlanFull, f.ledger.EffectivePlan(userID))

	// A second upgrade is a no-op and sends nothing.
	require.NoError(t, f.handler.HandleChannelPost(ctx, f.bot, channelPost(upChannel, "500")))
	require.NoError(t, f.handler.HandleChannelPost(ctx, f.bot, channelPost(subsChannel, "not a number")))
	f.bot.AssertExpectations(t)
}

func TestBroadcastChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.handler.Delivery.TrackUser(ctx, 10))
	require.NoError(t, f.handler.Delivery.TrackUser(ctx, 11))

	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.Text == "Sale!" && !p.ProtectContent && p.ChatID == tu.ID(10)
	})).Return(&telego.Message{}, nil).Once()
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.Text == "Sale!" && p.ChatID == tu.ID(11)
	})).Return(nil, errors.New("bot was blocked by the user")).Once()
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.ChatID == tu.ID(operatorID) && strings.Contains(p.Text, "Successfully sent: 1\nFailed: 1")
	})).Return(&telego.Message{}, nil).Once()

	require.NoError(t, f.handler.HandleChannelPost(ctx, f.bot, channelPost(bcChannel, "Sale! Buy=https://t.me/pay")))
	f.bot.AssertExpectations(t)
}

func TestNotifyExpiredOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.Activate(ctx, userID, models.PlanFull)
	require.NoError(t, err)

	f.bot.On("SendMessage", mock.Anything, textTo(userID, "Premium Plan Expired")).Return(&telego.Message{}, nil).Once()

	require.NoError(t, f.handler.NotifyExpired(ctx, f.bot))
	f.clock.Add(subscriptions.Period + time.Minute)
	require.NoError(t, f.handler.NotifyExpired(ctx, f.bot))
	require.NoError(t, f.handler.NotifyExpired(ctx, f.bot))
	f.bot.AssertExpectations(t)
}

func TestPrivateMessageForwarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.On("ForwardMessage", mock.Anything, &telego.ForwardMessageParams{
		ChatID:     tu.ID(fwdChannel),
		FromChatID: tu.ID(userID),
		MessageID:  10,
	}).Return(&telego.Message{}, nil).Once()

	require.NoError(t, f.handler.HandlePrivateMessage(ctx, f.bot, private(userID, "hello there")))
	require.NoError(t, f.handler.HandlePrivateMessage(ctx, f.bot, private(userID, "/unknown")))
	f.bot.AssertExpectations(t)
}

func TestExportSendsThreeDocuments(t *testing.T) {
	f := newFixture(t)
	f.bot.On("SendDocument", mock.Anything, mock.Anything).Return(&telego.Message{}, nil).Times(3)
	f.bot.On("SendMessage", mock.Anything, textTo(operatorID, "exported as CSV")).Return(&telego.Message{}, nil).Once()

	require.NoError(t, f.run(t, private(operatorID, "/export")))
	f.bot.AssertExpectations(t)
}

func liveCtx() interface{} {
	return mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil })
}

func TestStartDeliveryOutlivesUpdateDeadline(t *testing.T) {
	f := newFixture(t)
	token := f.batch(t, 2)

	// Sends only succeed on a context that is still live.
	f.bot.On("SendMessage", liveCtx(), mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.ProtectContent
	})).Return(&telego.Message{MessageID: 80}, nil).Once()
	f.bot.On("SendMessage", liveCtx(), mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.ProtectContent
	})).Return(&telego.Message{MessageID: 81}, nil).Once()

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	require.NoError(t, f.handler.HandleStart(ctx, f.bot, private(userID, "/start "+token)))
	f.bot.AssertExpectations(t)
	assert.Len(t, f.state.Snapshot().Pending, 2)
}

func TestBatchBuildOutlivesUpdateDeadline(t *testing.T) {
	f := newFixture(t)

	f.bot.On("SendMessage", mock.Anything, textTo(operatorID, "FIRST post")).Return(&telego.Message{}, nil).Once()
	f.bot.On("SendMessage", mock.Anything, textTo(operatorID, "LAST post")).Return(&telego.Message{}, nil).Once()
	f.bot.On("ForwardMessage", liveCtx(), mock.Anything).
		Return(&telego.Message{MessageID: 900, Text: "ep https://play.example/e/1"}, nil).Times(2)
	f.bot.On("DeleteMessage", liveCtx(), mock.Anything).Return(nil).Times(2)
	f.bot.On("SendMessage", liveCtx(), textTo(operatorID, "Batch created!")).Return(&telego.Message{}, nil).Once()

	require.NoError(t, f.run(t, private(operatorID, "/batch")))
	handled, err := f.handler.HandleOperatorInput(context.Background(), f.bot, forwardedPost(3, dbChannel))
	require.True(t, handled)
	require.NoError(t, err)

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	handled, err = f.handler.HandleOperatorInput(expired, f.bot, forwardedPost(4, dbChannel))
	require.True(t, handled)
	require.NoError(t, err)

	f.bot.AssertExpectations(t)
	link, err := f.registry.Resolve("tok1")
	require.NoError(t, err)
	assert.Len(t, link.Items, 2)
}
