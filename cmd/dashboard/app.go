package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/septivank/meter-dashboard/internal/anomaly"
	"github.com/septivank/meter-dashboard/internal/api"
	"github.com/septivank/meter-dashboard/internal/auth"
	"github.com/septivank/meter-dashboard/internal/config"
	"github.com/septivank/meter-dashboard/internal/db"
	"github.com/septivank/meter-dashboard/internal/influxdb"
	"github.com/septivank/meter-dashboard/internal/logging"
	"github.com/septivank/meter-dashboard/internal/metrics"
	"github.com/septivank/meter-dashboard/internal/mq"
	"github.com/septivank/meter-dashboard/internal/repository"
	"github.com/septivank/meter-dashboard/internal/scanner"
	"github.com/septivank/meter-dashboard/internal/service"
	"github.com/septivank/meter-dashboard/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideDetector creates the no-data detector for the reference timezone
func ProvideDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Consumption.Location, cfg.Consumption.MonthlyStaleDays)
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.TimestampToleranceMinutes, cfg.Consumption.Location)
}

// ProvideMetrics creates the Prometheus collectors
func ProvideMetrics() *metrics.Metrics {
	return metrics.New()
}

// ProvideDashboardService creates the consumption and alarm service
func ProvideDashboardService(repo *repository.Repository, detector *anomaly.Detector, cfg *config.Config) *service.DashboardService {
	return service.NewDashboardService(repo, repo, detector, service.Options{
		DefaultHistoryDays:      cfg.Consumption.DefaultHistoryDays,
		OverConsumptionAnchored: cfg.Alarm.OverConsumptionAnchored,
	})
}

// ProvideIngestService creates the reading ingest service
func ProvideIngestService(repo *repository.Repository, v *validator.Validator, m *metrics.Metrics, logger *zap.Logger) *service.IngestService {
	return service.NewIngestService(repo, v, m, logging.WithComponent(logger, "ingest"))
}

// ProvideAuthService creates the login and token service
func ProvideAuthService(repo *repository.Repository, cfg *config.Config) *auth.Service {
	return auth.NewService(repo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvideAlarmPublisher creates the alarm event publisher
func ProvideAlarmPublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.AlarmExchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(publisher.Close))
	return publisher, nil
}

// ProvideInfluxClient connects the optional time-series sink. It returns nil when
// INFLUXDB_URL is unset.
func ProvideInfluxClient(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled() {
		logger.Info("influxdb sink disabled")
		return nil, nil
	}

	client, err := influxdb.NewClient(context.Background(), cfg.InfluxDB, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(client.Close))
	return client, nil
}

// ProvideScanner creates the periodic alarm scanner
func ProvideScanner(
	dashboard *service.DashboardService,
	publisher *mq.Publisher,
	influx *influxdb.Client,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *scanner.Scanner {
	opts := scanner.Options{
		Interval:   cfg.Alarm.ScanInterval,
		RoutingKey: cfg.RabbitMQ.AlarmRoutingKey,
		Gauges:     m,
	}
	if cfg.Alarm.PublishEvents {
		opts.Publisher = publisher
	}
	if influx != nil {
		opts.Sink = influx
	}
	return scanner.New(dashboard, opts, logging.WithComponent(logger, "scanner"))
}

// ProvideRouter builds the HTTP API
func ProvideRouter(
	dashboard *service.DashboardService,
	authService *auth.Service,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Dashboard:      dashboard,
		Auth:           authService,
		Metrics:        m,
		Logger:         logging.WithComponent(logger, "api"),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
}

func startConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	ingest *service.IngestService,
) error {
	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.IngestQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.IngestExchange,
		RoutingKey:    cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logging.WithComponent(logger, "consumer"),
		Handler:       ingest.ProcessMessage,
	})
	if err != nil {
		return err
	}
	consumer.RegisterLifecycle(lc)
	return nil
}

func startScanner(lc fx.Lifecycle, s *scanner.Scanner) {
	s.RegisterLifecycle(lc)
}

func startHTTPServer(lc fx.Lifecycle, handler http.Handler, cfg *config.Config, logger *zap.Logger) {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("[HTTP] failed to listen on %s: %w", srv.Addr, err)
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped unexpectedly", zap.Error(err))
				}
			}()
			logger.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down http server")
			return srv.Shutdown(ctx)
		},
	})
}
