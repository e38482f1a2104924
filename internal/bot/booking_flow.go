package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"zapisly/internal/booking"
	"zapisly/internal/model"
	"zapisly/internal/schedule"
)

func (b *Bot) startAppointmentFlow(chatID, userID int64) {
	b.state.reset(userID)
	st := b.state.get(userID)
	st.Step = stepClientName
	b.reply(chatID, "Как зовут клиента?")
}

// handleFlowInput routes free-text input to the active dialog step.
func (b *Bot) handleFlowInput(ctx context.Context, msg *tgbotapi.Message, master *model.Master, st *userState, text string) {
	switch st.Step {
	case stepClientName:
		if text == "" {
			b.reply(msg.Chat.ID, "Напишите имя клиента текстом.")
			return
		}
		st.Draft.ClientName = text
		st.Step = stepClientPhone
		b.reply(msg.Chat.ID, "Телефон клиента? Например +79001234567.")
	case stepClientPhone:
		phone, ok := normalizePhone(text)
		if !ok {
			b.reply(msg.Chat.ID, "Не похоже на телефон. Например +79001234567.")
			return
		}
		st.Draft.ClientPhone = phone
		b.askService(ctx, msg.Chat.ID, master, st)
	case stepServiceName:
		b.handleServiceNameInput(msg.Chat.ID, st, text)
	case stepServiceDuration:
		b.handleServiceDurationInput(msg.Chat.ID, st, text)
	case stepServicePrice:
		b.handleServicePriceInput(ctx, msg.Chat.ID, master, st, text)
	case stepPaymentAmount:
		b.handlePaymentInput(ctx, msg.Chat.ID, master, st, text)
	default:
		b.sendMainMenu(msg.Chat.ID)
	}
}

func (b *Bot) askService(ctx context.Context, chatID int64, master *model.Master, st *userState) {
	services, err := b.db.ListServices(ctx, master.ID, true)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("list services failed")
		b.reply(chatID, "Не удалось загрузить услуги, попробуйте ещё раз.")
		return
	}
	if len(services) == 0 {
		b.state.reset(master.TelegramID)
		b.reply(chatID, "Сначала добавьте хотя бы одну услугу в разделе «🛠 Услуги».")
		b.sendMainMenu(chatID)
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(services))
	for _, s := range services {
		label := fmt.Sprintf("%s · %d мин · %s", s.Name, s.DurationMinutes, formatMoney(s.Price, master.Currency))
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("svc:%d", s.ID)),
		})
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "back:menu"),
	})

	st.Step = stepService
	msg := tgbotapi.NewMessage(chatID, "Какая услуга?")
	msg.ReplyMarkup = tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
	_, _ = b.tg.Send(msg)
}

func (b *Bot) handleServiceCallback(ctx context.Context, chatID int64, master *model.Master, st *userState, idStr string) {
	if st.Step != stepService {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}
	service, err := b.db.GetServiceByID(ctx, id)
	if err != nil || service.MasterID != master.ID {
		b.reply(chatID, "Услуга не найдена, выберите из списка.")
		return
	}

	st.Draft.ServiceID = service.ID
	st.Draft.ServiceName = service.Name
	st.Step = stepDate
	now := time.Now().In(master.Location())
	b.sendCalendar(ctx, chatID, master, now.Year(), now.Month())
}

// sendCalendar shows a month grid with the master's days off marked.
func (b *Bot) sendCalendar(ctx context.Context, chatID int64, master *model.Master, year int, month time.Month) {
	offDates := map[string]bool{}
	wh, err := schedule.DecodeWorkingHours(master.WorkSchedule)
	if err == nil {
		loc := master.Location()
		for day := 1; day <= daysIn(month, year); day++ {
			date := time.Date(year, month, day, 0, 0, 0, 0, loc)
			if wh.IsDateFullyOff(date) {
				offDates[date.Format("2006-01-02")] = true
			}
		}
	} else {
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("schedule decode failed")
	}

	msg := tgbotapi.NewMessage(chatID, "Выберите дату:")
	msg.ReplyMarkup = calendarKeyboard(year, month, offDates)
	_, _ = b.tg.Send(msg)
}

func (b *Bot) handleMonthCallback(ctx context.Context, chatID int64, master *model.Master, ym string) {
	t, err := time.Parse("2006-01", ym)
	if err != nil {
		return
	}
	b.sendCalendar(ctx, chatID, master, t.Year(), t.Month())
}

func (b *Bot) handleDateCallback(ctx context.Context, chatID int64, master *model.Master, st *userState, dateStr string) {
	if st.Step != stepDate {
		return
	}
	loc := master.Location()
	date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return
	}

	slots, err := b.coordinator.Slots(ctx, booking.SlotsRequest{
		MasterID:  master.ID,
		ServiceID: st.Draft.ServiceID,
		Date:      date,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("slot lookup failed")
		b.reply(chatID, "Не удалось загрузить свободное время, попробуйте ещё раз.")
		return
	}
	if len(slots) == 0 {
		b.reply(chatID, "В этот день нет приёма, выберите другую дату.")
		return
	}

	st.Draft.Date = dateStr
	st.Step = stepSlot
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Время на %s:", date.Format("02.01.2006")))
	msg.ReplyMarkup = slotsKeyboard(slots, loc)
	_, _ = b.tg.Send(msg)
}

func (b *Bot) handleSlotCallback(_ context.Context, chatID int64, master *model.Master, st *userState, clock string) {
	if st.Step != stepSlot {
		return
	}
	if _, err := schedule.ParseClock(clock); err != nil {
		return
	}
	st.Draft.StartTime = clock
	st.Step = stepConfirm

	text := fmt.Sprintf("Записать?\n\nКлиент: %s, %s\nУслуга: %s\nКогда: %s в %s",
		st.Draft.ClientName, st.Draft.ClientPhone,
		st.Draft.ServiceName, st.Draft.Date, clock)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Записать", "confirm"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel"),
		),
	)
	_, _ = b.tg.Send(msg)
}

func (b *Bot) handleConfirmCallback(ctx context.Context, chatID, userID int64, master *model.Master, st *userState) {
	if st.Step != stepConfirm {
		return
	}
	loc := master.Location()
	start, err := time.ParseInLocation("2006-01-02 15:04", st.Draft.Date+" "+st.Draft.StartTime, loc)
	if err != nil {
		b.reply(chatID, "Не удалось разобрать дату, начните запись заново.")
		b.state.reset(userID)
		return
	}

	appointment, err := b.coordinator.Book(ctx, booking.BookRequest{
		MasterID:    master.ID,
		ServiceID:   st.Draft.ServiceID,
		Start:       start,
		ClientName:  st.Draft.ClientName,
		ClientPhone: st.Draft.ClientPhone,
		Source:      "master",
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrConflict):
			b.reply(chatID, "Это время уже занято, выберите другое.")
			st.Step = stepDate
			now := time.Now().In(loc)
			b.sendCalendar(ctx, chatID, master, now.Year(), now.Month())
		case errors.Is(err, model.ErrQuotaExceeded):
			b.state.reset(userID)
			b.reply(chatID, "Достигнут лимит активных записей на бесплатном тарифе. Откройте «⭐ Подписка», чтобы снять ограничение.")
			b.sendMainMenu(chatID)
		case errors.Is(err, schedule.ErrValidation):
			b.reply(chatID, "Это время вне рабочего графика или уже прошло, выберите другое.")
		default:
			zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("booking failed")
			b.reply(chatID, "Не удалось создать запись, попробуйте ещё раз.")
		}
		return
	}

	b.state.reset(userID)
	b.reply(chatID, fmt.Sprintf("Готово! %s записан(а) на %s в %s.",
		st.Draft.ClientName,
		appointment.StartTime.In(loc).Format("02.01.2006"),
		appointment.StartTime.In(loc).Format("15:04")))
	b.sendMainMenu(chatID)
}

func (b *Bot) handleBack(ctx context.Context, chatID int64, master *model.Master, st *userState, target string) {
	switch target {
	case "menu":
		b.state.reset(master.TelegramID)
		b.sendMainMenu(chatID)
	case "date":
		if st.Draft.ServiceID == 0 {
			b.sendMainMenu(chatID)
			return
		}
		st.Step = stepDate
		now := time.Now().In(master.Location())
		b.sendCalendar(ctx, chatID, master, now.Year(), now.Month())
	}
}
