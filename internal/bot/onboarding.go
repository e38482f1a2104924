package bot

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"zapisly/internal/model"
	"zapisly/internal/referral"
	"zapisly/internal/schedule"
)

const welcomeText = `Привет! Я помогу вести запись клиентов: расписание, напоминания, отчёты.

Как вас зовут? Это имя увидят клиенты.`

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	l := zerolog.Ctx(ctx)
	userID := msg.From.ID

	master, err := b.db.GetMasterByTelegramID(ctx, userID)
	if err == nil {
		if master.IsOnboarded {
			b.state.reset(userID)
			b.reply(msg.Chat.ID, "С возвращением, "+master.Name+"!")
			b.sendMainMenu(msg.Chat.ID)
			return
		}
		// Registration started but never finished; restart the dialog.
		st := b.state.get(userID)
		st.Step = stepAskName
		b.reply(msg.Chat.ID, welcomeText)
		return
	}
	if err != model.ErrNotFound {
		l.Error().Err(err).Int64("telegram_id", userID).Msg("master lookup failed")
		b.reply(msg.Chat.ID, "Что-то пошло не так, попробуйте ещё раз.")
		return
	}

	wh := schedule.DefaultWorkingHours()
	encoded, err := wh.Encode()
	if err != nil {
		l.Error().Err(err).Msg("encode default schedule")
		b.reply(msg.Chat.ID, "Что-то пошло не так, попробуйте ещё раз.")
		return
	}
	master = &model.Master{
		TelegramID:       userID,
		TelegramUsername: msg.From.UserName,
		Name:             msg.From.FirstName,
		WorkSchedule:     encoded,
		ReferralCode:     referral.NewCode(),
	}
	if err := b.db.CreateMaster(ctx, master); err != nil {
		l.Error().Err(err).Int64("telegram_id", userID).Msg("master create failed")
		b.reply(msg.Chat.ID, "Что-то пошло не так, попробуйте ещё раз.")
		return
	}
	l.Info().Int64("master_id", master.ID).Msg("master registered")

	st := b.state.get(userID)
	st.Step = stepAskName
	// The referral is attached only after onboarding completes so an
	// abandoned registration never credits the referrer.
	if parts := strings.Fields(msg.Text); len(parts) > 1 {
		st.ReferralCode = referral.ParseStartPayload(parts[1])
	}

	b.reply(msg.Chat.ID, welcomeText)
}

func (b *Bot) handleOnboardingInput(ctx context.Context, msg *tgbotapi.Message, master *model.Master, st *userState, text string) {
	switch st.Step {
	case stepAskName:
		if text == "" {
			b.reply(msg.Chat.ID, "Напишите имя текстом.")
			return
		}
		master.Name = text
		st.Step = stepAskCity
		b.reply(msg.Chat.ID, "Из какого вы города?")
		// Keep the name even if the dialog is abandoned here.
		if err := b.db.UpdateMasterProfile(ctx, master); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("profile update failed")
		}
	case stepAskCity:
		if text == "" {
			b.reply(msg.Chat.ID, "Напишите город текстом.")
			return
		}
		master.City = text
		if err := b.db.UpdateMasterProfile(ctx, master); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("profile update failed")
		}
		st.Step = stepAskTimezone
		b.askTimezone(msg.Chat.ID)
	default:
		b.reply(msg.Chat.ID, "Нажмите /start, чтобы продолжить регистрацию.")
	}
}

var timezoneChoices = []struct {
	Label string
	Name  string
}{
	{"Калининград (UTC+2)", "Europe/Kaliningrad"},
	{"Москва (UTC+3)", "Europe/Moscow"},
	{"Самара (UTC+4)", "Europe/Samara"},
	{"Екатеринбург (UTC+5)", "Asia/Yekaterinburg"},
	{"Омск (UTC+6)", "Asia/Omsk"},
	{"Красноярск (UTC+7)", "Asia/Krasnoyarsk"},
	{"Иркутск (UTC+8)", "Asia/Irkutsk"},
	{"Якутск (UTC+9)", "Asia/Yakutsk"},
	{"Владивосток (UTC+10)", "Asia/Vladivostok"},
}

func (b *Bot) askTimezone(chatID int64) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(timezoneChoices))
	for _, tz := range timezoneChoices {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(tz.Label, "tz:"+tz.Name),
		})
	}
	msg := tgbotapi.NewMessage(chatID, "Выберите ваш часовой пояс. Всё расписание будет в нём.")
	msg.ReplyMarkup = tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
	_, _ = b.tg.Send(msg)
}

func (b *Bot) handleTimezoneCallback(ctx context.Context, chatID int64, master *model.Master, st *userState, tz string) {
	l := zerolog.Ctx(ctx)
	if st.Step != stepAskTimezone {
		return
	}
	if _, err := time.LoadLocation(tz); err != nil {
		b.reply(chatID, "Не удалось распознать часовой пояс, выберите из списка.")
		return
	}

	master.Timezone = tz
	master.IsOnboarded = true
	if err := b.db.UpdateMasterProfile(ctx, master); err != nil {
		l.Error().Err(err).Int64("master_id", master.ID).Msg("profile update failed")
		b.reply(chatID, "Что-то пошло не так, попробуйте ещё раз.")
		return
	}

	b.referrals.Attach(ctx, master.ID, st.ReferralCode)
	if _, err := b.subscriptions.StartTrial(ctx, master.ID); err != nil {
		l.Error().Err(err).Int64("master_id", master.ID).Msg("trial start failed")
	}
	b.state.reset(master.TelegramID)

	b.reply(chatID, "Готово! Пробный период на 14 дней активирован.\n"+
		"График по умолчанию: пн–пт 09:00–18:00, поменять можно в разделе «📆 График».")
	b.sendMainMenu(chatID)
}
