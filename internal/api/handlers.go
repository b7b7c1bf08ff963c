// Package api is the JSON front end over the alarm store and notification
// history.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smartalarm/internal/alarm"
	"smartalarm/internal/recurrence"
	"smartalarm/internal/storage"
	logx "smartalarm/pkg/logx"
)

// Alarms is the store surface the handlers use.
type Alarms interface {
	Add(name string, at time.Time, p recurrence.Policy) (alarm.Alarm, error)
	Get(name string) (alarm.Alarm, error)
	Remove(name string) error
	Update(oldName, newName string, at time.Time, p recurrence.Policy) (alarm.Alarm, error)
	ListSortedByTime() []alarm.Alarm
}

const (
	maxBodyBytes      = 64 << 10
	defaultListLimit  = 50
	datetimeLocal     = "2006-01-02T15:04"
	datetimeLocalSecs = "2006-01-02T15:04:05"
)

// Handler serves the alarm API.
type Handler struct {
	alarms  Alarms
	history storage.History
	loc     *time.Location
	log     logx.Logger
	mux     *http.ServeMux
}

// NewHandler builds the routes. metrics, when non-nil, is mounted at
// metricsPath.
func NewHandler(alarms Alarms, history storage.History, loc *time.Location, log logx.Logger, metrics http.Handler, metricsPath string) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	h := &Handler{alarms: alarms, history: history, loc: loc, log: log, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /alarms", h.list)
	h.mux.HandleFunc("POST /alarms", h.create)
	h.mux.HandleFunc("GET /alarms/{name}", h.get)
	h.mux.HandleFunc("PUT /alarms/{name}", h.update)
	h.mux.HandleFunc("DELETE /alarms/{name}", h.remove)
	h.mux.HandleFunc("GET /notifications", h.notifications)
	if metrics != nil {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		h.mux.Handle("GET "+metricsPath, metrics)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) { h.mux.ServeHTTP(w, r) }

// alarmRequest is the create/update body. date_time accepts
// DD/MM/YYYY HH:MM, an HTML datetime-local value or RFC 3339.
type alarmRequest struct {
	Name       string `json:"name"`
	DateTime   string `json:"date_time"`
	Recurrence string `json:"recurrence"`
}

type alarmView struct {
	Name        string    `json:"name"`
	DateTime    string    `json:"date_time"`
	Recurrence  string    `json:"recurrence"`
	TriggerTime time.Time `json:"trigger_time"`
}

type messageView struct {
	Message string     `json:"message"`
	Alarm   *alarmView `json:"alarm,omitempty"`
}

type errorView struct {
	Error string `json:"error"`
}

func view(a alarm.Alarm) alarmView {
	return alarmView{
		Name:        a.Name,
		DateTime:    alarm.FormatTime(a.TriggerTime),
		Recurrence:  a.Recurrence.String(),
		TriggerTime: a.TriggerTime,
	}
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) list(w http.ResponseWriter, _ *http.Request) {
	all := h.alarms.ListSortedByTime()
	out := make([]alarmView, 0, len(all))
	for _, a := range all {
		out = append(out, view(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	a, err := h.alarms.Get(r.PathValue("name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(a))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	req, at, p, ok := h.decode(w, r)
	if !ok {
		return
	}
	a, err := h.alarms.Add(req.Name, at, p)
	if err != nil {
		h.fail(w, err)
		return
	}
	v := view(a)
	writeJSON(w, http.StatusCreated, messageView{
		Message: fmt.Sprintf("Alarm of Event %s has been Created successfully", a.Name),
		Alarm:   &v,
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	oldName := r.PathValue("name")
	req, at, p, ok := h.decode(w, r)
	if !ok {
		return
	}
	newName := req.Name
	if strings.TrimSpace(newName) == "" {
		newName = oldName
	}
	a, err := h.alarms.Update(oldName, newName, at, p)
	if err != nil {
		h.fail(w, err)
		return
	}
	v := view(a)
	writeJSON(w, http.StatusOK, messageView{
		Message: fmt.Sprintf("Alarm of Event %s has been updated successfully", a.Name),
		Alarm:   &v,
	})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.alarms.Remove(name); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageView{Message: fmt.Sprintf("Alarm of Event %s has been removed successfully", name)})
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, []alarm.Notification{})
		return
	}
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorView{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	recs, err := h.history.List(r.Context(), limit)
	if err != nil {
		h.log.Error("history list failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorView{Error: "history unavailable"})
		return
	}
	if recs == nil {
		recs = []alarm.Notification{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (alarmRequest, time.Time, recurrence.Policy, bool) {
	var req alarmRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: "invalid request body: " + err.Error()})
		return req, time.Time{}, 0, false
	}
	at, err := parseDateTime(req.DateTime, h.loc)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorView{Error: err.Error()})
		return req, time.Time{}, 0, false
	}
	p := recurrence.Once
	if strings.TrimSpace(req.Recurrence) != "" {
		if p, err = recurrence.Parse(req.Recurrence); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorView{Error: err.Error()})
			return req, time.Time{}, 0, false
		}
	}
	return req, at, p, true
}

func parseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("date_time is required")
	}
	if t, err := alarm.ParseTime(s, loc); err == nil {
		return t, nil
	}
	for _, layout := range []string{datetimeLocal, datetimeLocalSecs} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("date_time %q: want DD/MM/YYYY HH:MM or YYYY-MM-DDTHH:MM", s)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, alarm.ErrDuplicateName):
		status = http.StatusConflict
	case errors.Is(err, alarm.ErrNotFound):
		status = http.StatusNotFound
	case alarm.IsValidation(err):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", logx.Err(err))
	} else {
		h.log.Warn("request rejected", logx.Err(err))
	}
	writeJSON(w, status, errorView{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
