package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"zapisly/internal/booking"
	"zapisly/internal/metrics"
	"zapisly/internal/model"
)

// SlotResponse is one bookable candidate on a day.
type SlotResponse struct {
	Start     string `json:"start"` // HH:MM in the master's timezone
	End       string `json:"end"`
	Available bool   `json:"available"`
}

// handleSlots returns every slot for a master/service/day.
// GET /api/slots?master_id=1&service_id=2&date=2026-09-01
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	masterID, ok := queryID(r, "master_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "master_id is required")
		return
	}
	serviceID, ok := queryID(r, "service_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "service_id is required")
		return
	}

	master, err := s.db.GetMasterByID(r.Context(), masterID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	date, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("date"), master.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	slots, err := s.coordinator.Slots(r.Context(), booking.SlotsRequest{
		MasterID:  masterID,
		ServiceID: serviceID,
		Date:      date,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	loc := master.Location()
	out := make([]SlotResponse, len(slots))
	for i, slot := range slots {
		out[i] = SlotResponse{
			Start:     slot.Start.In(loc).Format("15:04"),
			End:       slot.End.In(loc).Format("15:04"),
			Available: slot.Available,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date.Format("2006-01-02"),
		"slots": out,
	})
}

// BookRequest is the body for POST /api/book.
type BookRequest struct {
	MasterID       int64  `json:"master_id"`
	ServiceID      int64  `json:"service_id"`
	Date           string `json:"date"`       // YYYY-MM-DD in the master's timezone
	StartTime      string `json:"start_time"` // HH:MM
	ClientName     string `json:"client_name"`
	ClientPhone    string `json:"client_phone,omitempty"`
	Comment        string `json:"comment,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// AppointmentResponse mirrors a stored appointment with times rendered
// in the master's timezone.
type AppointmentResponse struct {
	ID        int64  `json:"id"`
	ServiceID int64  `json:"service_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

func appointmentResponse(master *model.Master, a *model.Appointment) AppointmentResponse {
	loc := master.Location()
	return AppointmentResponse{
		ID:        a.ID,
		ServiceID: a.ServiceID,
		Date:      a.StartTime.In(loc).Format("2006-01-02"),
		StartTime: a.StartTime.In(loc).Format("15:04"),
		EndTime:   a.EndTime.In(loc).Format("15:04"),
		Status:    a.Status,
	}
}

// handleBook creates an appointment.
// POST /api/book
func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("book")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req BookRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ClientName == "" {
		writeError(w, http.StatusBadRequest, "client_name is required")
		return
	}

	master, err := s.db.GetMasterByID(r.Context(), req.MasterID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	start, err := parseLocalStart(master, req.Date, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := s.coordinator.Book(r.Context(), booking.BookRequest{
		MasterID:       req.MasterID,
		ServiceID:      req.ServiceID,
		Start:          start,
		ClientName:     req.ClientName,
		ClientPhone:    req.ClientPhone,
		Comment:        req.Comment,
		IdempotencyKey: req.IdempotencyKey,
		Source:         "api",
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentResponse(master, a))
}

// RescheduleRequest is the body for POST /api/reschedule.
type RescheduleRequest struct {
	MasterID      int64  `json:"master_id"`
	AppointmentID int64  `json:"appointment_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
}

// handleReschedule moves an appointment to a new slot.
// POST /api/reschedule
func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reschedule")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req RescheduleRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	master, err := s.db.GetMasterByID(r.Context(), req.MasterID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	start, err := parseLocalStart(master, req.Date, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := s.coordinator.Reschedule(r.Context(), req.MasterID, req.AppointmentID, start)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(master, a))
}

// CancelRequest is the body for POST /api/cancel.
type CancelRequest struct {
	MasterID      int64  `json:"master_id"`
	AppointmentID int64  `json:"appointment_id"`
	Reason        string `json:"reason,omitempty"`
}

// handleCancel cancels an appointment, freeing its slot.
// POST /api/cancel
func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req CancelRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	a, err := s.coordinator.Cancel(r.Context(), req.MasterID, req.AppointmentID, req.Reason)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": a.Status})
}

// handleServices lists a master's active catalog.
// GET /api/services?master_id=1
func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("services")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	masterID, ok := queryID(r, "master_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "master_id is required")
		return
	}
	services, err := s.db.ListServices(r.Context(), masterID, true)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

// handleAppointments lists a master's appointments, newest first.
// GET /api/appointments?master_id=1&status=scheduled
func (s *HTTPServer) handleAppointments(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("appointments")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	masterID, ok := queryID(r, "master_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "master_id is required")
		return
	}
	master, err := s.db.GetMasterByID(r.Context(), masterID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var statuses []string
	if status := r.URL.Query().Get("status"); status != "" {
		statuses = []string{status}
	}
	list, err := s.db.ListAppointmentsByMaster(r.Context(), masterID, statuses, 200)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]AppointmentResponse, len(list))
	for i := range list {
		out[i] = appointmentResponse(master, &list[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

// handleClients lists a master's client book with visit stats.
// GET /api/clients?master_id=1
func (s *HTTPServer) handleClients(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("clients")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	masterID, ok := queryID(r, "master_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "master_id is required")
		return
	}
	clients, err := s.db.ListClients(r.Context(), masterID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func queryID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
