package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/septivank/meter-dashboard/internal/anomaly"
	"github.com/septivank/meter-dashboard/internal/consumption"
	"github.com/septivank/meter-dashboard/internal/influxdb"
	"github.com/septivank/meter-dashboard/internal/mq"
	"github.com/septivank/meter-dashboard/internal/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// AlarmSource evaluates alarms and factory views
type AlarmSource interface {
	EvaluateAlarms(ctx context.Context) (*service.AlarmReport, error)
	ListMeters(ctx context.Context) ([]consumption.MeterConfig, error)
	FactoryOverview(ctx context.Context, factory, day string) (*service.FactoryOverview, error)
}

// EventPublisher publishes alarm events
type EventPublisher interface {
	PublishAlarmEvent(ctx context.Context, event mq.AlarmEvent, routingKey string) error
}

// SeriesSink receives per-scan summaries for time-series storage
type SeriesSink interface {
	WriteAlarmCounts(counts map[string]int, timestamp time.Time)
	WriteFactoryConsumption(rows []influxdb.FactoryConsumption, timestamp time.Time)
}

// Gauges records scan results as metrics
type Gauges interface {
	SetActiveAlarms(kind string, count int)
	AlarmScan(success bool)
}

// Options wires the optional outputs of a scan. Nil outputs are skipped.
type Options struct {
	Interval   time.Duration
	RoutingKey string
	Publisher  EventPublisher
	Sink       SeriesSink
	Gauges     Gauges
}

// Scanner periodically evaluates every alarm and fans the results out
type Scanner struct {
	source AlarmSource
	opts   Options
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scanner. A non-positive interval means five minutes.
func New(source AlarmSource, opts Options, logger *zap.Logger) *Scanner {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	return &Scanner{source: source, opts: opts, logger: logger}
}

// Scan runs one evaluation and pushes it to every configured output
func (s *Scanner) Scan(ctx context.Context) (*service.AlarmReport, error) {
	report, err := s.source.EvaluateAlarms(ctx)
	if err != nil {
		if s.opts.Gauges != nil {
			s.opts.Gauges.AlarmScan(false)
		}
		return nil, err
	}

	counts := make(map[string]int, len(report.Alarms))
	for _, kind := range service.AlarmKinds {
		counts[string(kind)] = len(report.Alarms[kind])
	}

	if s.opts.Gauges != nil {
		for kind, n := range counts {
			s.opts.Gauges.SetActiveAlarms(kind, n)
		}
		s.opts.Gauges.AlarmScan(true)
	}

	if s.opts.Publisher != nil {
		s.publish(ctx, report)
	}

	if s.opts.Sink != nil {
		s.opts.Sink.WriteAlarmCounts(counts, report.EvaluatedAt)
		rows, err := s.factoryTotals(ctx, report.Day)
		if err != nil {
			s.logger.Warn("failed to summarize factory consumption", zap.Error(err))
		} else {
			s.opts.Sink.WriteFactoryConsumption(rows, report.EvaluatedAt)
		}
	}

	s.logger.Info("alarm scan complete",
		zap.String("day", report.Day),
		zap.Int("daily_no_data", counts[string(service.AlarmDailyNoData)]),
		zap.Int("over_consumption", counts[string(service.AlarmOverConsumption)]),
		zap.Int("monthly_no_data", counts[string(service.AlarmMonthlyNoData)]),
	)
	return report, nil
}

func (s *Scanner) publish(ctx context.Context, report *service.AlarmReport) {
	for _, kind := range service.AlarmKinds {
		for _, a := range report.Alarms[kind] {
			event := AlarmEvent(a, report.EvaluatedAt)
			if err := s.opts.Publisher.PublishAlarmEvent(ctx, event, s.opts.RoutingKey); err != nil {
				// A lost event is recovered on the next scan
				s.logger.Error("failed to publish alarm event",
					zap.Error(err),
					zap.String("kind", event.Kind),
					zap.String("meter_id", event.MeterID),
				)
			}
		}
	}
}

// AlarmEvent converts an alarm into its published form
func AlarmEvent(a service.Alarm, raisedAt time.Time) mq.AlarmEvent {
	event := mq.NewAlarmEvent(string(a.Kind), a.MeterID, raisedAt)
	event.MeterName = a.MeterName
	event.Factory = a.Factory
	event.Day = a.Day
	event.LastLogAt = a.LastLogAt
	event.DailyCapacity = a.DailyCapacity
	if a.Consumption != nil {
		event.Consumption = a.Consumption.Float()
	}
	return event
}

func (s *Scanner) factoryTotals(ctx context.Context, day string) ([]influxdb.FactoryConsumption, error) {
	meters, err := s.source.ListMeters(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var factories []string
	for _, m := range meters {
		if m.Factory == "" || seen[m.Factory] {
			continue
		}
		seen[m.Factory] = true
		factories = append(factories, m.Factory)
	}
	sort.Strings(factories)

	rows := make([]influxdb.FactoryConsumption, 0, len(factories))
	for _, factory := range factories {
		overview, err := s.source.FactoryOverview(ctx, factory, day)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Summarize(overview))
	}
	return rows, nil
}

// Summarize totals the numeric consumption of a factory view
func Summarize(o *service.FactoryOverview) influxdb.FactoryConsumption {
	row := influxdb.FactoryConsumption{Factory: o.Factory, Day: o.Day, Meters: len(o.Records)}
	for _, r := range o.Records {
		if !r.Consumption.IsNumeric() {
			continue
		}
		row.Reporting++
		row.Total += r.Consumption.Amount
		if r.Status == anomaly.StatusExceeded {
			row.Exceeded++
		}
	}
	return row
}

// Run scans immediately and then on every tick until ctx is cancelled
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Scan(ctx); err != nil {
			s.logger.Error("alarm scan failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RegisterLifecycle runs the scanner for the lifetime of the app
func (s *Scanner) RegisterLifecycle(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			s.done = make(chan struct{})
			go func() {
				defer close(s.done)
				s.Run(ctx)
			}()
			s.logger.Info("alarm scanner started", zap.Duration("interval", s.opts.Interval))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			s.cancel()
			select {
			case <-s.done:
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
			s.logger.Info("alarm scanner stopped")
			return nil
		},
	})
}
