package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/septivank/meter-dashboard/internal/anomaly"
	"github.com/septivank/meter-dashboard/internal/auth"
	"github.com/septivank/meter-dashboard/internal/consumption"
	"github.com/septivank/meter-dashboard/internal/logging"
	"github.com/septivank/meter-dashboard/internal/metrics"
	"github.com/septivank/meter-dashboard/internal/service"
	"go.uber.org/zap"
)

// Dashboard is the service surface the HTTP API exposes
type Dashboard interface {
	Now() time.Time
	Today() string
	Location() *time.Location

	MeterHistory(ctx context.Context, meterID string, days int) ([]anomaly.Record, error)
	MeterConsumption(ctx context.Context, meterID, start, end string) (*service.MeterConsumption, error)
	FactoryOverview(ctx context.Context, factory, day string) (*service.FactoryOverview, error)

	DailyNoData(ctx context.Context, day string) ([]service.Alarm, error)
	OverConsumption(ctx context.Context, day string) ([]service.Alarm, error)
	MonthlyNoData(ctx context.Context, now time.Time) ([]service.Alarm, error)

	ListMeters(ctx context.Context) ([]consumption.MeterConfig, error)
	GetMeter(ctx context.Context, meterID string) (consumption.MeterConfig, error)
	CreateMeter(ctx context.Context, m consumption.MeterConfig) (consumption.MeterConfig, error)
	UpdateMeter(ctx context.Context, meterID string, m consumption.MeterConfig) (consumption.MeterConfig, error)
	DeleteMeter(ctx context.Context, meterID string) error
	UpdateReading(ctx context.Context, meterID string, at time.Time, value *float64, userID string) error
}

// Authenticator issues and checks bearer tokens
type Authenticator interface {
	Login(ctx context.Context, name, password string) (string, error)
	VerifyToken(token string) (*auth.Claims, error)
}

// Handler serves the dashboard JSON API
type Handler struct {
	dashboard Dashboard
	auth      Authenticator
	logger    *zap.Logger
}

// RouterConfig wires the router's collaborators
type RouterConfig struct {
	Dashboard      Dashboard
	Auth           Authenticator
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewRouter builds the API router wrapped in CORS, recovery and access logging
func NewRouter(cfg RouterConfig) http.Handler {
	h := &Handler{dashboard: cfg.Dashboard, auth: cfg.Auth, logger: cfg.Logger}

	r := mux.NewRouter()
	r.Use(requestID)
	if cfg.Metrics != nil {
		r.Use(instrument(cfg.Metrics))
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	a := r.PathPrefix("/api").Subrouter()
	a.HandleFunc("/login", h.login).Methods(http.MethodPost)

	a.HandleFunc("/meters", h.listMeters).Methods(http.MethodGet)
	a.HandleFunc("/meters/{meterId}", h.getMeter).Methods(http.MethodGet)
	a.HandleFunc("/meters/{meterId}/consumption", h.meterConsumption).Methods(http.MethodGet)
	a.HandleFunc("/factories/{factory}/consumption", h.factoryConsumption).Methods(http.MethodGet)
	a.HandleFunc("/alarms/daily-no-data", h.dailyNoData).Methods(http.MethodGet)
	a.HandleFunc("/alarms/over-consumption", h.overConsumption).Methods(http.MethodGet)
	a.HandleFunc("/alarms/monthly-no-data", h.monthlyNoData).Methods(http.MethodGet)

	a.Handle("/meters", h.requireAuth(h.createMeter)).Methods(http.MethodPost)
	a.Handle("/meters/{meterId}", h.requireAuth(h.updateMeter)).Methods(http.MethodPut)
	a.Handle("/meters/{meterId}", h.requireAuth(h.deleteMeter)).Methods(http.MethodDelete)
	a.Handle("/meters/{meterId}/history", h.requireAuth(h.meterHistory)).Methods(http.MethodGet)
	a.Handle("/readings", h.requireAuth(h.updateReading)).Methods(http.MethodPut)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)

	recovered := handlers.RecoveryHandler(handlers.RecoveryLogger(zap.NewStdLog(cfg.Logger)))(r)
	return handlers.CustomLoggingHandler(io.Discard, cors(recovered), accessLog(cfg.Logger))
}

type requestIDKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (h *Handler) requestLogger(r *http.Request) *zap.Logger {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return logging.WithRequestID(h.logger, id)
}

func instrument(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.WrapHandler(route, next).ServeHTTP(w, r)
		})
	}
}

func accessLog(logger *zap.Logger) handlers.LogFormatter {
	return func(_ io.Writer, p handlers.LogFormatterParams) {
		logger.Info("http request",
			zap.String("method", p.Request.Method),
			zap.String("path", p.URL.Path),
			zap.Int("status", p.StatusCode),
			zap.Int("size", p.Size),
			zap.Duration("duration", time.Since(p.TimeStamp)),
		)
	}
}
