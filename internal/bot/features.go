package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"zapisly/internal/model"
	"zapisly/internal/referral"
	"zapisly/internal/schedule"
)

var weekdayTitles = map[time.Weekday]string{
	time.Monday:    "Понедельник",
	time.Tuesday:   "Вторник",
	time.Wednesday: "Среда",
	time.Thursday:  "Четверг",
	time.Friday:    "Пятница",
	time.Saturday:  "Суббота",
	time.Sunday:    "Воскресенье",
}

// handleToday shows the day's appointments with complete/cancel buttons.
func (b *Bot) handleToday(ctx context.Context, chatID int64, master *model.Master) {
	loc := master.Location()
	now := time.Now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	appointments, err := b.db.ListAppointmentsBetween(ctx, master.ID, dayStart, dayEnd)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("list appointments failed")
		b.reply(chatID, "Не удалось загрузить записи.")
		return
	}
	if len(appointments) == 0 {
		b.reply(chatID, "Сегодня записей нет.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Записи на %s:\n\n", dayStart.Format("02.01.2006"))
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(appointments))
	for i := range appointments {
		a := &appointments[i]
		client, err := b.db.GetClientByID(ctx, a.ClientID)
		if err != nil {
			continue
		}
		service, err := b.db.GetServiceByID(ctx, a.ServiceID)
		if err != nil {
			continue
		}
		clock := a.StartTime.In(loc).Format("15:04")
		fmt.Fprintf(&sb, "%s — %s, %s (%s)\n", clock, client.Name, service.Name, client.Phone)
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✅ %s %s", clock, client.Name), fmt.Sprintf("appt:done:%d", a.ID)),
			tgbotapi.NewInlineKeyboardButtonData("🚷", fmt.Sprintf("appt:noshow:%d", a.ID)),
			tgbotapi.NewInlineKeyboardButtonData("❌", fmt.Sprintf("appt:cancel:%d", a.ID)),
		})
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
	_, _ = b.tg.Send(msg)
}

func (b *Bot) handleAppointmentCallback(ctx context.Context, chatID int64, master *model.Master, st *userState, data string) {
	action, idStr, ok := strings.Cut(data, ":")
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	switch action {
	case "done":
		st.Step = stepPaymentAmount
		st.AppointmentID = id
		b.reply(chatID, "Сколько оплатил клиент? Напишите сумму в рублях, 0 — если без оплаты.")
	case "noshow":
		_, err := b.db.UpdateAppointmentStatus(ctx, master.ID, id, model.StatusNoShow)
		switch {
		case err == nil:
			b.reply(chatID, "Отмечена неявка клиента.")
		case errors.Is(err, model.ErrInvalidTransition):
			b.reply(chatID, "Для этой записи неявку отметить нельзя.")
		case errors.Is(err, model.ErrNotFound):
			b.reply(chatID, "Запись не найдена.")
		default:
			zerolog.Ctx(ctx).Error().Err(err).Int64("appointment_id", id).Msg("no-show update failed")
			b.reply(chatID, "Не удалось отметить неявку.")
		}
	case "cancel":
		_, err := b.coordinator.Cancel(ctx, master.ID, id, "отменено мастером")
		switch {
		case err == nil:
			b.reply(chatID, "Запись отменена, время снова свободно.")
		case errors.Is(err, model.ErrInvalidTransition):
			b.reply(chatID, "Эту запись уже нельзя отменить.")
		case errors.Is(err, model.ErrNotFound):
			b.reply(chatID, "Запись не найдена.")
		default:
			zerolog.Ctx(ctx).Error().Err(err).Int64("appointment_id", id).Msg("cancel failed")
			b.reply(chatID, "Не удалось отменить запись.")
		}
	}
}

func (b *Bot) handlePaymentInput(ctx context.Context, chatID int64, master *model.Master, st *userState, text string) {
	amount, err := strconv.ParseInt(text, 10, 64)
	if err != nil || amount < 0 {
		b.reply(chatID, "Нужно число. Например 2000.")
		return
	}

	_, err = b.coordinator.Complete(ctx, master.ID, st.AppointmentID, amount)
	b.state.reset(master.TelegramID)
	switch {
	case err == nil:
		b.reply(chatID, "Запись завершена, оплата записана.")
	case errors.Is(err, model.ErrInvalidTransition):
		b.reply(chatID, "Эту запись уже нельзя завершить.")
	case errors.Is(err, model.ErrNotFound):
		b.reply(chatID, "Запись не найдена.")
	default:
		zerolog.Ctx(ctx).Error().Err(err).Int64("appointment_id", st.AppointmentID).Msg("complete failed")
		b.reply(chatID, "Не удалось завершить запись.")
	}
}

// handleScheduleView renders the weekly hours and lets the master toggle
// weekly days off.
func (b *Bot) handleScheduleView(ctx context.Context, chatID int64, master *model.Master) {
	wh, err := schedule.DecodeWorkingHours(master.WorkSchedule)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("schedule decode failed")
		b.reply(chatID, "Не удалось загрузить график.")
		return
	}

	off := map[time.Weekday]bool{}
	for _, wd := range wh.WeekdaysOff() {
		off[wd] = true
	}

	var sb strings.Builder
	sb.WriteString("Ваш график:\n\n")
	order := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(order))
	for _, wd := range order {
		intervals := wh.WeekdayIntervals(wd)
		line := "выходной"
		if !off[wd] && len(intervals) > 0 {
			parts := make([]string, len(intervals))
			for i, iv := range intervals {
				parts[i] = iv.StartClock() + "–" + iv.EndClock()
			}
			line = strings.Join(parts, ", ")
		}
		fmt.Fprintf(&sb, "%s: %s\n", weekdayTitles[wd], line)

		mark := "✅"
		if off[wd] {
			mark = "🚫"
		}
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s %s", mark, weekdayTitles[wd]), fmt.Sprintf("dayoff:%d", int(wd))),
		})
	}
	if dates := wh.DaysOffDates(); len(dates) > 0 {
		fmt.Fprintf(&sb, "\nДоп. выходные: %s\n", strings.Join(dates, ", "))
	}
	sb.WriteString("\nНажмите на день, чтобы сделать его рабочим или выходным. Точная настройка часов — через API.")

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
	_, _ = b.tg.Send(msg)
}

func (b *Bot) handleDayOffCallback(ctx context.Context, chatID int64, master *model.Master, wdStr string) {
	n, err := strconv.Atoi(wdStr)
	if err != nil || n < 0 || n > 6 {
		return
	}
	toggled := time.Weekday(n)

	wh, err := schedule.DecodeWorkingHours(master.WorkSchedule)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("schedule decode failed")
		b.reply(chatID, "Не удалось загрузить график.")
		return
	}

	weekdays := make([]time.Weekday, 0, 7)
	found := false
	for _, wd := range wh.WeekdaysOff() {
		if wd == toggled {
			found = true
			continue
		}
		weekdays = append(weekdays, wd)
	}
	if !found {
		weekdays = append(weekdays, toggled)
	}
	dates := make([]time.Time, 0)
	for _, s := range wh.DaysOffDates() {
		if d, err := time.Parse("2006-01-02", s); err == nil {
			dates = append(dates, d)
		}
	}
	wh.SetDaysOff(weekdays, dates)

	encoded, err := wh.Encode()
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("schedule encode failed")
		b.reply(chatID, "Не удалось сохранить график.")
		return
	}
	if err := b.db.UpdateWorkSchedule(ctx, master.ID, encoded); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("schedule update failed")
		b.reply(chatID, "Не удалось сохранить график.")
		return
	}
	b.invalidateSchedule(ctx, master.ID)
	b.coordinator.PublishScheduleUpdated(master.ID)

	master.WorkSchedule = encoded
	b.handleScheduleView(ctx, chatID, master)
}

// handleExport sends the appointment book and the client base as xlsx
// documents.
func (b *Bot) handleExport(ctx context.Context, chatID int64, master *model.Master) {
	var appointments bytes.Buffer
	if err := b.exporter.Appointments(ctx, master.ID, &appointments); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("appointments export failed")
		b.reply(chatID, "Не удалось подготовить выгрузку.")
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("zapisi-%s.xlsx", time.Now().In(master.Location()).Format("2006-01-02")),
		Bytes: appointments.Bytes(),
	})
	doc.Caption = "Записи и выручка"
	if _, err := b.tg.Send(doc); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("document send failed")
		return
	}

	var clients bytes.Buffer
	if err := b.exporter.Clients(ctx, master.ID, &clients); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("clients export failed")
		return
	}
	clientsDoc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("klienty-%s.xlsx", time.Now().In(master.Location()).Format("2006-01-02")),
		Bytes: clients.Bytes(),
	})
	clientsDoc.Caption = "База клиентов"
	_, _ = b.tg.Send(clientsDoc)
}

func (b *Bot) handleSubscription(_ context.Context, chatID int64, master *model.Master) {
	var sb strings.Builder
	if master.IsPremium && master.PremiumUntil != nil && master.PremiumUntil.After(time.Now()) {
		fmt.Fprintf(&sb, "Подписка активна до %s.\n\nПродлить:",
			master.PremiumUntil.In(master.Location()).Format("02.01.2006"))
	} else {
		limit := b.subscriptions.MaxActiveAppointments(master)
		fmt.Fprintf(&sb, "Сейчас у вас бесплатный тариф: до %d активных записей.\n\nСнять ограничения:", limit)
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Месяц — 990 ₽", "plan:"+model.PlanMonthly),
			tgbotapi.NewInlineKeyboardButtonData("Год — 9900 ₽", "plan:"+model.PlanYearly),
		),
	)
	_, _ = b.tg.Send(msg)
}

func (b *Bot) handlePlanCallback(ctx context.Context, chatID int64, master *model.Master, planID string) {
	sub, err := b.subscriptions.Purchase(ctx, master.ID, planID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			b.reply(chatID, "Такого тарифа нет.")
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("purchase failed")
		b.reply(chatID, "Не удалось оформить подписку, попробуйте ещё раз.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Подписка оформлена до %s. Спасибо!",
		sub.ExpiresAt.In(master.Location()).Format("02.01.2006")))
}

func (b *Bot) handleReferrals(ctx context.Context, chatID int64, master *model.Master) {
	stats, err := b.referrals.StatsFor(ctx, master.ID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("master_id", master.ID).Msg("referral stats failed")
		b.reply(chatID, "Не удалось загрузить статистику.")
		return
	}

	link := referral.Link(b.botName, master.ReferralCode)
	text := fmt.Sprintf(
		"Приглашайте коллег и получайте %d%% с их первой оплаты.\n\n"+
			"Ваша ссылка:\n%s\n\n"+
			"Приглашено: %d\nОплатили: %d\nЗаработано: %d ₽",
		referral.DefaultCommissionPercent, link,
		stats.Invited, stats.Activated, stats.EarnedRub)
	b.reply(chatID, text)
}
