package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"zapisly/internal/booking"
	"zapisly/internal/db"
	"zapisly/internal/model"
	"zapisly/internal/schedule"
)

// Invalidator drops a master's cached schedule after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, masterID int64) error
}

// HTTPServer serves the Mini App and integration API.
type HTTPServer struct {
	server      *http.Server
	db          *db.DB
	coordinator *booking.Coordinator
	cache       Invalidator // nil when redis is disabled
	logger      *zerolog.Logger
}

func NewHTTPServer(port int, database *db.DB, coordinator *booking.Coordinator, cache Invalidator, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		db:          database,
		coordinator: coordinator,
		cache:       cache,
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/slots", s.handleSlots)
	mux.HandleFunc("/api/book", s.handleBook)
	mux.HandleFunc("/api/reschedule", s.handleReschedule)
	mux.HandleFunc("/api/cancel", s.handleCancel)
	mux.HandleFunc("/api/services", s.handleServices)
	mux.HandleFunc("/api/appointments", s.handleAppointments)
	mux.HandleFunc("/api/clients", s.handleClients)
	mux.HandleFunc("/api/master/schedule", s.handleSchedule)
	mux.HandleFunc("/api/master/schedule/days_off", s.handleDaysOff)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Start runs the server until it fails or Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorCode is the machine-readable token in the "error" field that
// clients branch on; the human explanation travels in "message".
func errorCode(status int) string {
	switch status {
	case http.StatusConflict:
		return "conflict"
	case http.StatusPaymentRequired:
		return "quota_exceeded"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "validation"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	default:
		return "internal"
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": errorCode(status), "message": msg})
}

// writeDomainError maps recoverable booking errors onto HTTP statuses
// and wire codes: conflicts are 409 "conflict", quota limits 402
// "quota_exceeded", unknown entities 404 "not_found" and validation
// problems 400 "validation".
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrConflict):
		writeError(w, http.StatusConflict, "slot is no longer available")
	case errors.Is(err, model.ErrQuotaExceeded):
		writeError(w, http.StatusPaymentRequired, "free plan limit reached")
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "appointment is not active")
	case errors.Is(err, schedule.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("API request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseLocalStart combines a YYYY-MM-DD date and HH:MM time in the
// master's timezone.
func parseLocalStart(master *model.Master, date, clock string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, master.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format; expected YYYY-MM-DD")
	}
	minutes, err := schedule.ParseClock(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time format; expected HH:MM")
	}
	return day.Add(time.Duration(minutes) * time.Minute), nil
}
