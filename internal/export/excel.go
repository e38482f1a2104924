package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"zapisly/internal/model"
)

// Store is the persistence surface the exporter needs.
type Store interface {
	GetMasterByID(ctx context.Context, id int64) (*model.Master, error)
	ListAppointmentsByMaster(ctx context.Context, masterID int64, statuses []string, limit int) ([]model.Appointment, error)
	ListClients(ctx context.Context, masterID int64) ([]model.Client, error)
	GetClientByID(ctx context.Context, id int64) (*model.Client, error)
	GetServiceByID(ctx context.Context, id int64) (*model.Service, error)
}

// Exporter builds xlsx workbooks of a master's book for download from
// the bot.
type Exporter struct {
	store Store
}

func NewExporter(store Store) *Exporter {
	return &Exporter{store: store}
}

type sheetWriter struct {
	file  *excelize.File
	sheet string
	row   int
}

func newWorkbook(firstSheet string) *sheetWriter {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", firstSheet)
	return &sheetWriter{file: f, sheet: firstSheet, row: 1}
}

func (w *sheetWriter) addSheet(name string) error {
	if len(name) > 31 {
		name = name[:31]
	}
	if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheet = name
	w.row = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	if err := w.writeRow(toAny(columns)); err != nil {
		return err
	}
	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.row-1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.row-1)
		_ = w.file.SetCellStyle(w.sheet, startCell, endCell, style)
	}
	return nil
}

func (w *sheetWriter) writeRow(values []any) error {
	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.sheet, cell, val); err != nil {
			return err
		}
	}
	w.row++
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// Appointments writes a master's appointment history as one sheet of
// appointments plus a finance summary sheet.
func (e *Exporter) Appointments(ctx context.Context, masterID int64, out io.Writer) error {
	master, err := e.store.GetMasterByID(ctx, masterID)
	if err != nil {
		return err
	}
	appointments, err := e.store.ListAppointmentsByMaster(ctx, masterID, nil, 0)
	if err != nil {
		return err
	}

	wb := newWorkbook("Записи")
	if err := wb.writeHeader([]string{"Дата", "Время", "Клиент", "Телефон", "Услуга", "Статус", "Оплата"}); err != nil {
		return err
	}

	loc := master.Location()
	var earned int64
	completed := 0
	for _, a := range appointments {
		client, err := e.store.GetClientByID(ctx, a.ClientID)
		if err != nil {
			return err
		}
		service, err := e.store.GetServiceByID(ctx, a.ServiceID)
		if err != nil {
			return err
		}
		var payment any
		if a.PaymentAmount != nil {
			payment = *a.PaymentAmount
			earned += *a.PaymentAmount
		}
		if a.Status == model.StatusCompleted {
			completed++
		}
		local := a.StartTime.In(loc)
		if err := wb.writeRow([]any{
			local.Format("02.01.2006"),
			local.Format("15:04"),
			client.Name,
			client.Phone,
			service.Name,
			statusTitle(a.Status),
			payment,
		}); err != nil {
			return err
		}
	}

	if err := wb.addSheet("Итоги"); err != nil {
		return err
	}
	if err := wb.writeHeader([]string{"Показатель", "Значение"}); err != nil {
		return err
	}
	rows := [][]any{
		{"Всего записей", len(appointments)},
		{"Завершено", completed},
		{"Выручка", earned},
		{"Выгружено", time.Now().In(loc).Format("02.01.2006 15:04")},
	}
	for _, r := range rows {
		if err := wb.writeRow(r); err != nil {
			return err
		}
	}

	return wb.file.Write(out)
}

// Clients writes a master's client book with visit stats.
func (e *Exporter) Clients(ctx context.Context, masterID int64, out io.Writer) error {
	clients, err := e.store.ListClients(ctx, masterID)
	if err != nil {
		return err
	}

	wb := newWorkbook("Клиенты")
	if err := wb.writeHeader([]string{"Имя", "Телефон", "Визитов", "Потрачено", "Последний визит", "Комментарий"}); err != nil {
		return err
	}
	for _, c := range clients {
		lastVisit := ""
		if c.LastVisit != nil {
			lastVisit = c.LastVisit.Format("02.01.2006")
		}
		if err := wb.writeRow([]any{c.Name, c.Phone, c.TotalVisits, c.TotalSpent, lastVisit, c.Comment}); err != nil {
			return err
		}
	}
	return wb.file.Write(out)
}

func statusTitle(status string) string {
	switch status {
	case model.StatusScheduled:
		return "Запланирована"
	case model.StatusConfirmed:
		return "Подтверждена"
	case model.StatusCompleted:
		return "Завершена"
	case model.StatusCancelled:
		return "Отменена"
	case model.StatusNoShow:
		return "Неявка"
	default:
		return status
	}
}
