package sheets

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"zapisly/internal/model"
)

// Store is the persistence surface the sync needs.
type Store interface {
	GetMasterByID(ctx context.Context, id int64) (*model.Master, error)
	ListAppointmentsByMaster(ctx context.Context, masterID int64, statuses []string, limit int) ([]model.Appointment, error)
	GetClientByID(ctx context.Context, id int64) (*model.Client, error)
	GetServiceByID(ctx context.Context, id int64) (*model.Service, error)
}

// SheetsService mirrors a master's appointment book into a Google
// spreadsheet so masters who live in Sheets keep their habit.
type SheetsService struct {
	api           *sheets.Service
	spreadsheetID string
	store         Store
	logger        *zerolog.Logger
}

// NewSheetsService authenticates with a service-account key file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string, store Store, logger *zerolog.Logger) (*SheetsService, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	api, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &SheetsService{
		api:           api,
		spreadsheetID: spreadsheetID,
		store:         store,
		logger:        logger,
	}, nil
}

var headerRow = []any{"ID", "Дата", "Время", "Клиент", "Телефон", "Услуга", "Статус", "Оплата"}

// appointmentRowValues flattens one appointment for a sheet row.
func appointmentRowValues(loc *time.Location, a *model.Appointment, client *model.Client, service *model.Service) []any {
	local := a.StartTime.In(loc)
	payment := ""
	if a.PaymentAmount != nil {
		payment = fmt.Sprintf("%d", *a.PaymentAmount)
	}
	return []any{
		a.ID,
		local.Format("02.01.2006"),
		local.Format("15:04"),
		client.Name,
		client.Phone,
		service.Name,
		a.Status,
		payment,
	}
}

// filterActive drops cancelled appointments; the sheet mirrors the
// live book, not the full history.
func filterActive(appointments []model.Appointment) []model.Appointment {
	out := make([]model.Appointment, 0, len(appointments))
	for _, a := range appointments {
		if a.Status != model.StatusCancelled {
			out = append(out, a)
		}
	}
	return out
}

// SyncMaster rewrites the master's tab with the current appointment
// book.
func (s *SheetsService) SyncMaster(ctx context.Context, masterID int64) error {
	master, err := s.store.GetMasterByID(ctx, masterID)
	if err != nil {
		return err
	}
	appointments, err := s.store.ListAppointmentsByMaster(ctx, masterID, nil, 0)
	if err != nil {
		return err
	}
	appointments = filterActive(appointments)

	loc := master.Location()
	values := [][]any{headerRow}
	for i := range appointments {
		a := &appointments[i]
		client, err := s.store.GetClientByID(ctx, a.ClientID)
		if err != nil {
			return err
		}
		service, err := s.store.GetServiceByID(ctx, a.ServiceID)
		if err != nil {
			return err
		}
		values = append(values, appointmentRowValues(loc, a, client, service))
	}

	rangeName := fmt.Sprintf("%s!A1", sheetTitle(master))
	clear := sheets.ClearValuesRequest{}
	if _, err := s.api.Spreadsheets.Values.Clear(s.spreadsheetID, sheetTitle(master), &clear).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}
	body := &sheets.ValueRange{Values: values}
	_, err = s.api.Spreadsheets.Values.
		Update(s.spreadsheetID, rangeName, body).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}

	s.logger.Info().
		Int64("master_id", masterID).
		Int("rows", len(values)-1).
		Msg("sheet synced")
	return nil
}

func sheetTitle(master *model.Master) string {
	title := master.Name
	if title == "" {
		title = fmt.Sprintf("master-%d", master.ID)
	}
	if len(title) > 31 {
		title = title[:31]
	}
	return title
}
