package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/septivank/meter-dashboard/internal/auth"
	"github.com/septivank/meter-dashboard/internal/consumption"
	"github.com/septivank/meter-dashboard/internal/repository"
	"github.com/septivank/meter-dashboard/internal/service"
	"github.com/septivank/meter-dashboard/tools/timeparser"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

var internalErrorBody = []byte(`{"error":"internal server error"}` + "\n")

// writeJSON encodes v in full before writing the status. An unencodable
// payload is answered with a 500.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(v)

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write(internalErrorBody)
		return fmt.Errorf("failed to encode response: %w", err)
	}
	w.WriteHeader(status)
	_, err = w.Write(buf.Bytes())
	return err
}

// respond writes a payload and logs encoding or write failures
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		h.requestLogger(r).Error("failed to write response", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

// writeError maps domain errors onto status codes. Unknown errors are logged
// and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrNoReadings):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusForbidden
	default:
		h.requestLogger(r).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// requireAuth accepts "Authorization: Bearer <token>". A missing token is 401,
// a token that fails verification is 403.
func (h *Handler) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}

		claims, err := h.auth.VerifyToken(token)
		if err != nil {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "invalid or expired token"})
			return
		}
		next(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "body must be JSON with name and password")
		return
	}

	token, err := h.auth.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) listMeters(w http.ResponseWriter, r *http.Request) {
	meters, err := h.dashboard.ListMeters(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, meters)
}

func (h *Handler) getMeter(w http.ResponseWriter, r *http.Request) {
	m, err := h.dashboard.GetMeter(r.Context(), mux.Vars(r)["meterId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, m)
}

func decodeMeter(r *http.Request) (consumption.MeterConfig, error) {
	var m consumption.MeterConfig
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		return m, err
	}
	return m, nil
}

func (h *Handler) createMeter(w http.ResponseWriter, r *http.Request) {
	m, err := decodeMeter(r)
	if err != nil {
		h.badRequest(w, "body must be a meter JSON object")
		return
	}

	created, err := h.dashboard.CreateMeter(r.Context(), m)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, created)
}

func (h *Handler) updateMeter(w http.ResponseWriter, r *http.Request) {
	m, err := decodeMeter(r)
	if err != nil {
		h.badRequest(w, "body must be a meter JSON object")
		return
	}

	updated, err := h.dashboard.UpdateMeter(r.Context(), mux.Vars(r)["meterId"], m)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, updated)
}

func (h *Handler) deleteMeter(w http.ResponseWriter, r *http.Request) {
	if err := h.dashboard.DeleteMeter(r.Context(), mux.Vars(r)["meterId"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) meterHistory(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.badRequest(w, "days must be a positive integer")
			return
		}
		days = n
	}

	records, err := h.dashboard.MeterHistory(r.Context(), mux.Vars(r)["meterId"], days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, records)
}

// meterConsumption defaults to the week ending today
func (h *Handler) meterConsumption(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	end := q.Get("end")
	if end == "" {
		end = h.dashboard.Today()
	}
	start := q.Get("start")
	if start == "" {
		endDay, err := time.Parse(consumption.DayLayout, end)
		if err != nil {
			h.badRequest(w, "end must be YYYY-MM-DD")
			return
		}
		start = endDay.AddDate(0, 0, -6).Format(consumption.DayLayout)
	}

	view, err := h.dashboard.MeterConsumption(r.Context(), mux.Vars(r)["meterId"], start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, view)
}

type readingUpdate struct {
	MeterID     string   `json:"meter_id"`
	LogDatetime string   `json:"log_datetime"`
	MeterValue  *float64 `json:"meter_value"`
}

func (h *Handler) updateReading(w http.ResponseWriter, r *http.Request) {
	var req readingUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "body must be JSON with meter_id, log_datetime and meter_value")
		return
	}

	at, err := timeparser.ParseMeterTimestampIn(req.LogDatetime, h.dashboard.Location())
	if err != nil {
		h.badRequest(w, "log_datetime is not a recognised timestamp")
		return
	}

	var userID string
	if claims, ok := auth.ClaimsFrom(r.Context()); ok {
		userID = claims.UserID
	}

	if err := h.dashboard.UpdateReading(r.Context(), req.MeterID, at, req.MeterValue, userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) factoryConsumption(w http.ResponseWriter, r *http.Request) {
	view, err := h.dashboard.FactoryOverview(r.Context(), mux.Vars(r)["factory"], r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, view)
}

func (h *Handler) dayParam(r *http.Request) string {
	if day := r.URL.Query().Get("date"); day != "" {
		return day
	}
	return h.dashboard.Today()
}

func (h *Handler) dailyNoData(w http.ResponseWriter, r *http.Request) {
	alarms, err := h.dashboard.DailyNoData(r.Context(), h.dayParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, alarms)
}

func (h *Handler) overConsumption(w http.ResponseWriter, r *http.Request) {
	alarms, err := h.dashboard.OverConsumption(r.Context(), h.dayParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, alarms)
}

func (h *Handler) monthlyNoData(w http.ResponseWriter, r *http.Request) {
	alarms, err := h.dashboard.MonthlyNoData(r.Context(), h.dashboard.Now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, alarms)
}
