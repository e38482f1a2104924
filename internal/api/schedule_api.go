package api

import (
	"encoding/json"
	"net/http"
	"time"

	"zapisly/internal/metrics"
	"zapisly/internal/schedule"
)

// ScheduleResponse is the master's weekly hours in the persisted JSON
// shape: weekday names mapped to [["HH:MM","HH:MM"], ...] plus day-off
// lists.
type ScheduleResponse struct {
	Schedule json.RawMessage `json:"schedule"`
}

// handleSchedule reads or replaces a master's working hours.
// GET  /api/master/schedule?master_id=1
// POST /api/master/schedule
func (s *HTTPServer) handleSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("schedule")
	switch r.Method {
	case http.MethodGet:
		s.getSchedule(w, r)
	case http.MethodPost:
		s.putSchedule(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) getSchedule(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, ScheduleResponse{Schedule: json.RawMessage(master.WorkSchedule)})
}

// UpdateScheduleRequest is the body for POST /api/master/schedule.
type UpdateScheduleRequest struct {
	MasterID int64           `json:"master_id"`
	Schedule json.RawMessage `json:"schedule"`
}

func (s *HTTPServer) putSchedule(w http.ResponseWriter, r *http.Request) {
	var req UpdateScheduleRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Round-trip through the domain type so invalid intervals never
	// reach storage.
	wh, err := schedule.DecodeWorkingHours(string(req.Schedule))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	encoded, err := wh.Encode()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.saveSchedule(r, req.MasterID, encoded); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{Schedule: json.RawMessage(encoded)})
}

// DaysOffRequest is the body for POST /api/master/schedule/days_off.
// It replaces both day-off sets atomically.
type DaysOffRequest struct {
	MasterID int64    `json:"master_id"`
	Weekdays []string `json:"weekdays"` // lowercase english names
	Dates    []string `json:"dates"`    // YYYY-MM-DD
}

// handleDaysOff replaces a master's recurring and one-off days off.
// POST /api/master/schedule/days_off
func (s *HTTPServer) handleDaysOff(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("days_off")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req DaysOffRequest
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
	wh, err := schedule.DecodeWorkingHours(master.WorkSchedule)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	weekdays, err := schedule.ParseWeekdays(req.Weekdays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dates := make([]time.Time, 0, len(req.Dates))
	for _, d := range req.Dates {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
		dates = append(dates, parsed)
	}

	wh.SetDaysOff(weekdays, dates)
	encoded, err := wh.Encode()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.saveSchedule(r, req.MasterID, encoded); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{Schedule: json.RawMessage(encoded)})
}

// saveSchedule persists the schedule and invalidates the cache before
// the response goes out, so the next slot request sees fresh hours.
func (s *HTTPServer) saveSchedule(r *http.Request, masterID int64, encoded string) error {
	if err := s.db.UpdateWorkSchedule(r.Context(), masterID, encoded); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(r.Context(), masterID); err != nil {
			s.logger.Error().Err(err).Int64("master_id", masterID).Msg("schedule cache invalidation failed")
		}
	}
	s.coordinator.PublishScheduleUpdated(masterID)
	return nil
}
