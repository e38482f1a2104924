package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"zapisly/internal/model"
	"zapisly/internal/schedule"
)

// handleServices shows the catalog with archive buttons and an add
// button.
func (b *Bot) handleServices(ctx context.Context, chatID int64, master *model.Master) {
	services, err := b.db.ListServices(ctx, master.ID, true)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("list services failed")
		b.reply(chatID, "Не удалось загрузить услуги.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Ваши услуги:\n\n")
	if len(services) == 0 {
		sb.WriteString("Пока пусто. Добавьте первую услугу.\n")
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(services)+1)
	for _, s := range services {
		fmt.Fprintf(&sb, "• %s — %d мин, %s\n", s.Name, s.DurationMinutes, formatMoney(s.Price, master.Currency))
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("🗑 "+s.Name, fmt.Sprintf("arch:%d", s.ID)),
		})
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("➕ Добавить услугу", "addsvc"),
	})

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
	_, _ = b.tg.Send(msg)
}

func (b *Bot) startServiceFlow(ctx context.Context, chatID, userID int64, master *model.Master) {
	if limit := b.subscriptions.MaxActiveServices(master); limit > 0 {
		count, err := b.db.CountActiveServices(ctx, master.ID)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("service count failed")
			b.reply(chatID, "Что-то пошло не так, попробуйте ещё раз.")
			return
		}
		if count >= limit {
			b.reply(chatID, fmt.Sprintf(
				"На бесплатном тарифе доступно до %d услуг. Откройте «⭐ Подписка», чтобы снять ограничение.", limit))
			return
		}
	}

	b.state.reset(userID)
	st := b.state.get(userID)
	st.Step = stepServiceName
	b.reply(chatID, "Название услуги?")
}

func (b *Bot) handleServiceNameInput(chatID int64, st *userState, text string) {
	if text == "" {
		b.reply(chatID, "Напишите название текстом.")
		return
	}
	st.ServiceDraft.Name = text
	st.Step = stepServiceDuration
	b.reply(chatID, "Длительность в минутах? Кратно 30: 30, 60, 90…")
}

func (b *Bot) handleServiceDurationInput(chatID int64, st *userState, text string) {
	minutes, err := strconv.Atoi(text)
	if err != nil || minutes <= 0 || minutes%int(schedule.SlotStep.Minutes()) != 0 {
		b.reply(chatID, "Нужно число минут, кратное 30. Например 60.")
		return
	}
	st.ServiceDraft.DurationMinutes = minutes
	st.Step = stepServicePrice
	b.reply(chatID, "Цена в рублях? 0 — если по договорённости.")
}

func (b *Bot) handleServicePriceInput(ctx context.Context, chatID int64, master *model.Master, st *userState, text string) {
	price, err := strconv.ParseInt(text, 10, 64)
	if err != nil || price < 0 {
		b.reply(chatID, "Нужно число. Например 1500.")
		return
	}

	service := &model.Service{
		MasterID:        master.ID,
		Name:            st.ServiceDraft.Name,
		DurationMinutes: st.ServiceDraft.DurationMinutes,
		Price:           price,
		IsActive:        true,
	}
	if err := b.db.CreateService(ctx, service); err != nil {
		if errors.Is(err, schedule.ErrValidation) {
			b.reply(chatID, "Длительность должна быть кратна 30 минутам.")
			st.Step = stepServiceDuration
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("service create failed")
		b.reply(chatID, "Не удалось сохранить услугу, попробуйте ещё раз.")
		return
	}

	b.state.reset(master.TelegramID)
	b.reply(chatID, fmt.Sprintf("Услуга «%s» добавлена.", service.Name))
	b.handleServices(ctx, chatID, master)
}

func (b *Bot) handleArchiveCallback(ctx context.Context, chatID int64, master *model.Master, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}
	if err := b.db.ArchiveService(ctx, master.ID, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			b.reply(chatID, "Услуга уже удалена.")
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("service archive failed")
		b.reply(chatID, "Не удалось удалить услугу.")
		return
	}
	b.reply(chatID, "Услуга скрыта из записи. История по ней сохранится.")
	b.handleServices(ctx, chatID, master)
}
