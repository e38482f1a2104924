package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zapisly/internal/booking"
	"zapisly/internal/db"
	"zapisly/internal/export"
	"zapisly/internal/referral"
	"zapisly/internal/subscription"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// Invalidator drops a master's cached schedule after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, masterID int64) error
}

// Bot is the master-facing Telegram cabinet.
type Bot struct {
	tg            telegramClient
	db            *db.DB
	coordinator   *booking.Coordinator
	subscriptions *subscription.Service
	referrals     *referral.Service
	exporter      *export.Exporter
	cache         Invalidator // nil when redis is disabled
	state         *stateStore
	botName       string
	logger        *zerolog.Logger
}

type Deps struct {
	DB            *db.DB
	Coordinator   *booking.Coordinator
	Subscriptions *subscription.Service
	Referrals     *referral.Service
	Exporter      *export.Exporter
	Cache         Invalidator
	BotName       string
	Logger        *zerolog.Logger
}

func New(token string, debug bool, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = debug
	return newBot(&realTelegramClient{api: api}, deps), nil
}

// NewWithTelegramClient allows injecting a mocked Telegram client for
// tests.
func NewWithTelegramClient(tg telegramClient, deps Deps) *Bot {
	return newBot(tg, deps)
}

func newBot(tg telegramClient, deps Deps) *Bot {
	return &Bot{
		tg:            tg,
		db:            deps.DB,
		coordinator:   deps.Coordinator,
		subscriptions: deps.Subscriptions,
		referrals:     deps.Referrals,
		exporter:      deps.Exporter,
		cache:         deps.Cache,
		state:         newStateStore(),
		botName:       deps.BotName,
		logger:        deps.Logger,
	}
}

var mainMenu = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("📅 Сегодня"),
		tgbotapi.NewKeyboardButton("➕ Запись"),
	),
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("🛠 Услуги"),
		tgbotapi.NewKeyboardButton("📆 График"),
	),
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("📊 Экспорт"),
		tgbotapi.NewKeyboardButton("⭐ Подписка"),
		tgbotapi.NewKeyboardButton("🤝 Рефералы"),
	),
)

// Start polls updates until the context is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("bot authorized")

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			requestID := uuid.New().String()
			l := b.logger.With().Str("request_id", requestID).Logger()
			updateCtx := l.WithContext(ctx)
			b.handleUpdate(updateCtx, &update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	if update.CallbackQuery != nil {
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Str("text", update.Message.Text).
			Msg("handling message")
		b.handleMessage(ctx, update.Message)
		return
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)

	// Commands interrupt any active flow.
	if strings.HasPrefix(text, "/") {
		switch {
		case strings.HasPrefix(text, "/start"):
			b.handleStart(ctx, msg)
			return
		case strings.HasPrefix(text, "/help"):
			b.reply(msg.Chat.ID, "Команды: /start — главное меню, /cancel — прервать текущую операцию.")
			return
		case strings.HasPrefix(text, "/cancel"):
			b.state.reset(msg.From.ID)
			b.reply(msg.Chat.ID, "Операция отменена.")
			b.sendMainMenu(msg.Chat.ID)
			return
		}
	}

	master, err := b.db.GetMasterByTelegramID(ctx, msg.From.ID)
	if err != nil {
		b.reply(msg.Chat.ID, "Нажмите /start, чтобы начать.")
		return
	}

	st := b.state.get(msg.From.ID)
	if !master.IsOnboarded {
		b.handleOnboardingInput(ctx, msg, master, st, text)
		return
	}

	switch text {
	case "📅 Сегодня":
		b.state.reset(msg.From.ID)
		b.handleToday(ctx, msg.Chat.ID, master)
		return
	case "➕ Запись":
		b.startAppointmentFlow(msg.Chat.ID, msg.From.ID)
		return
	case "🛠 Услуги":
		b.state.reset(msg.From.ID)
		b.handleServices(ctx, msg.Chat.ID, master)
		return
	case "📆 График":
		b.state.reset(msg.From.ID)
		b.handleScheduleView(ctx, msg.Chat.ID, master)
		return
	case "📊 Экспорт":
		b.state.reset(msg.From.ID)
		b.handleExport(ctx, msg.Chat.ID, master)
		return
	case "⭐ Подписка":
		b.state.reset(msg.From.ID)
		b.handleSubscription(ctx, msg.Chat.ID, master)
		return
	case "🤝 Рефералы":
		b.state.reset(msg.From.ID)
		b.handleReferrals(ctx, msg.Chat.ID, master)
		return
	}

	b.handleFlowInput(ctx, msg, master, st, text)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq == nil || cq.Message == nil {
		return
	}
	data := cq.Data
	_ = b.answerCallback(cq.ID, "")
	if data == "noop" {
		return
	}
	if data == "taken" {
		_ = b.answerCallback(cq.ID, "Это время уже занято")
		return
	}

	userID := cq.From.ID
	chatID := cq.Message.Chat.ID
	master, err := b.db.GetMasterByTelegramID(ctx, userID)
	if err != nil {
		b.reply(chatID, "Нажмите /start, чтобы начать.")
		return
	}
	st := b.state.get(userID)

	switch {
	case strings.HasPrefix(data, "tz:"):
		b.handleTimezoneCallback(ctx, chatID, master, st, strings.TrimPrefix(data, "tz:"))
	case strings.HasPrefix(data, "svc:"):
		b.handleServiceCallback(ctx, chatID, master, st, strings.TrimPrefix(data, "svc:"))
	case strings.HasPrefix(data, "month:"):
		b.handleMonthCallback(ctx, chatID, master, strings.TrimPrefix(data, "month:"))
	case strings.HasPrefix(data, "date:"):
		b.handleDateCallback(ctx, chatID, master, st, strings.TrimPrefix(data, "date:"))
	case strings.HasPrefix(data, "slot:"):
		b.handleSlotCallback(ctx, chatID, master, st, strings.TrimPrefix(data, "slot:"))
	case data == "confirm":
		b.handleConfirmCallback(ctx, chatID, userID, master, st)
	case data == "cancel":
		b.state.reset(userID)
		b.reply(chatID, "Запись отменена.")
		b.sendMainMenu(chatID)
	case strings.HasPrefix(data, "appt:"):
		b.handleAppointmentCallback(ctx, chatID, master, st, strings.TrimPrefix(data, "appt:"))
	case data == "addsvc":
		b.startServiceFlow(ctx, chatID, userID, master)
	case strings.HasPrefix(data, "arch:"):
		b.handleArchiveCallback(ctx, chatID, master, strings.TrimPrefix(data, "arch:"))
	case strings.HasPrefix(data, "plan:"):
		b.handlePlanCallback(ctx, chatID, master, strings.TrimPrefix(data, "plan:"))
	case strings.HasPrefix(data, "dayoff:"):
		b.handleDayOffCallback(ctx, chatID, master, strings.TrimPrefix(data, "dayoff:"))
	case strings.HasPrefix(data, "back:"):
		b.handleBack(ctx, chatID, master, st, strings.TrimPrefix(data, "back:"))
	}
}

func (b *Bot) sendMainMenu(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Выберите действие:")
	msg.ReplyMarkup = mainMenu
	_, _ = b.tg.Send(msg)
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (b *Bot) replyMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (b *Bot) answerCallback(id, text string) error {
	_, err := b.tg.Request(tgbotapi.NewCallback(id, text))
	return err
}

// SendReminder implements reminders.Notifier.
func (b *Bot) SendReminder(_ context.Context, chatID int64, text string) error {
	_, err := b.tg.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

var phoneDigits = regexp.MustCompile(`\d`)

// normalizePhone keeps digits and a leading plus; Russian 8-prefixed
// numbers normalize to +7.
func normalizePhone(raw string) (string, bool) {
	digits := strings.Join(phoneDigits.FindAllString(raw, -1), "")
	if len(digits) < 10 || len(digits) > 15 {
		return "", false
	}
	if len(digits) == 11 && digits[0] == '8' {
		digits = "7" + digits[1:]
	}
	return "+" + digits, true
}

func (b *Bot) invalidateSchedule(ctx context.Context, masterID int64) {
	if b.cache == nil {
		return
	}
	if err := b.cache.Invalidate(ctx, masterID); err != nil {
		b.logger.Error().Err(err).Int64("master_id", masterID).Msg("schedule cache invalidation failed")
	}
}

func formatMoney(amount int64, currency string) string {
	if currency == "" || currency == "RUB" {
		return fmt.Sprintf("%d ₽", amount)
	}
	return fmt.Sprintf("%d %s", amount, currency)
}
