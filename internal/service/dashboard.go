package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/septivank/meter-dashboard/internal/anomaly"
	"github.com/septivank/meter-dashboard/internal/consumption"
)

// factoryLookbackDays is the window read in one query for the factory view.
// A meter silent for the whole window falls back to its last earlier reading.
const factoryLookbackDays = 31

var (
	// ErrInvalidInput is returned for malformed dates, ranges or meter payloads
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoReadings is returned when a meter has no readings in the requested window
	ErrNoReadings = errors.New("no readings")
)

// ReadingStore is the raw reading log
type ReadingStore interface {
	ListReadings(ctx context.Context, meterID string, from, to time.Time) ([]consumption.Reading, error)
	ListReadingsBetween(ctx context.Context, from, to time.Time) ([]consumption.Reading, error)
	ListRecentReadings(ctx context.Context, meterID string, until time.Time, limit int) ([]consumption.Reading, error)
	LatestReadingTimes(ctx context.Context) (map[string]time.Time, error)
	UpdateReadingValue(ctx context.Context, meterID string, at time.Time, value *float64, userID string) error
}

// MeterRegistry holds per-meter configuration
type MeterRegistry interface {
	ListMeters(ctx context.Context) ([]consumption.MeterConfig, error)
	ListMetersByFactory(ctx context.Context, factory string) ([]consumption.MeterConfig, error)
	GetMeter(ctx context.Context, meterID string) (consumption.MeterConfig, error)
	CreateMeter(ctx context.Context, m consumption.MeterConfig) error
	UpdateMeter(ctx context.Context, m consumption.MeterConfig) error
	DeleteMeter(ctx context.Context, meterID string) error
}

// Options tunes the dashboard service
type Options struct {
	DefaultHistoryDays      int
	OverConsumptionAnchored bool
	Now                     func() time.Time
}

// DashboardService computes every consumption view from raw readings
type DashboardService struct {
	readings ReadingStore
	meters   MeterRegistry
	detector *anomaly.Detector
	loc      *time.Location
	opts     Options
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(readings ReadingStore, meters MeterRegistry, detector *anomaly.Detector, opts Options) *DashboardService {
	if opts.DefaultHistoryDays <= 0 {
		opts.DefaultHistoryDays = 7
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &DashboardService{
		readings: readings,
		meters:   meters,
		detector: detector,
		loc:      detector.Location(),
		opts:     opts,
	}
}

// Chart is a consumption series with its capacity overlay
type Chart struct {
	Labels      []string            `json:"labels"`
	Consumption []consumption.Value `json:"consumption"`
	Capacity    []*float64          `json:"capacity,omitempty"`
}

// MeterConsumption is the daily view of one meter over a date range
type MeterConsumption struct {
	Meter   consumption.MeterConfig `json:"meter"`
	Start   string                  `json:"start"`
	End     string                  `json:"end"`
	Records []anomaly.Record        `json:"records"`
	Chart   Chart                   `json:"chart"`
}

// FactoryOverview is the per-meter view of one factory on one day
type FactoryOverview struct {
	Factory string     `json:"factory"`
	Day     string     `json:"day"`
	Records []MeterDay `json:"records"`
	Chart   Chart      `json:"chart"`
}

// MeterDay pairs a meter's registry data with its record for a day
type MeterDay struct {
	anomaly.Record
	MeterName string `json:"meter_name"`
	Process   string `json:"process"`
}

// Today returns the current calendar day in the reference timezone
func (s *DashboardService) Today() string {
	return consumption.DayOf(s.opts.Now(), s.loc)
}

// ParseDay parses a YYYY-MM-DD day as local midnight in the reference timezone
func (s *DashboardService) ParseDay(day string) (time.Time, error) {
	t, err := time.ParseInLocation(consumption.DayLayout, day, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("day %q must be YYYY-MM-DD: %w", day, ErrInvalidInput)
	}
	return t, nil
}

func (s *DashboardService) dayBounds(day string) (time.Time, time.Time, error) {
	start, err := s.ParseDay(day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}

// MeterHistory classifies every reading of the last days against its
// predecessor, newest first. No daily collapse is applied.
func (s *DashboardService) MeterHistory(ctx context.Context, meterID string, days int) ([]anomaly.Record, error) {
	if days <= 0 {
		days = s.opts.DefaultHistoryDays
	}

	cfg, err := s.meters.GetMeter(ctx, consumption.NormalizeMeterID(meterID))
	if err != nil {
		return nil, err
	}

	from := s.opts.Now().AddDate(0, 0, -days)
	readings, err := s.readings.ListReadings(ctx, cfg.MeterID, from, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("meter %s in the last %d days: %w", cfg.MeterID, days, ErrNoReadings)
	}

	records := anomaly.BuildPerReading(cfg, readings, s.loc)
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// MeterConsumption returns one record per reported day between start and end
// inclusive. The day before start is fetched so start gets a consumption.
func (s *DashboardService) MeterConsumption(ctx context.Context, meterID, start, end string) (*MeterConsumption, error) {
	startDay, err := s.ParseDay(start)
	if err != nil {
		return nil, err
	}
	endDay, err := s.ParseDay(end)
	if err != nil {
		return nil, err
	}
	if endDay.Before(startDay) {
		return nil, fmt.Errorf("end %s before start %s: %w", end, start, ErrInvalidInput)
	}

	cfg, err := s.meters.GetMeter(ctx, consumption.NormalizeMeterID(meterID))
	if err != nil {
		return nil, err
	}

	readings, err := s.readings.ListReadings(ctx, cfg.MeterID, startDay.AddDate(0, 0, -1), endDay.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}

	all := anomaly.BuildDaily(cfg, readings, s.loc)
	records := make([]anomaly.Record, 0, len(all))
	for _, r := range all {
		if r.Day >= start {
			records = append(records, r)
		}
	}

	return &MeterConsumption{
		Meter:   cfg,
		Start:   start,
		End:     end,
		Records: records,
		Chart:   meterChart(records, cfg.DailyCapacity),
	}, nil
}

// FactoryOverview returns the consumption of every meter of a factory on day.
// An empty day means today.
func (s *DashboardService) FactoryOverview(ctx context.Context, factory, day string) (*FactoryOverview, error) {
	if day == "" {
		day = s.Today()
	}
	dayStart, dayEnd, err := s.dayBounds(day)
	if err != nil {
		return nil, err
	}

	name := ResolveFactory(factory)
	meters, err := s.meters.ListMetersByFactory(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list meters: %w", err)
	}

	from := dayStart.AddDate(0, 0, -factoryLookbackDays)
	out := &FactoryOverview{Factory: name, Day: day, Records: make([]MeterDay, 0, len(meters))}
	for _, cfg := range meters {
		readings, err := s.readings.ListReadings(ctx, cfg.MeterID, from, dayEnd)
		if err != nil {
			return nil, fmt.Errorf("failed to list readings for %s: %w", cfg.MeterID, err)
		}
		if len(readings) > 0 && !readings[0].Timestamp.Before(dayStart) {
			earlier, err := s.readings.ListRecentReadings(ctx, cfg.MeterID, from, 1)
			if err != nil {
				return nil, fmt.Errorf("failed to list earlier readings for %s: %w", cfg.MeterID, err)
			}
			readings = append(earlier, readings...)
		}

		rec := anomaly.MissingDay(cfg, day)
		for _, r := range anomaly.BuildDaily(cfg, readings, s.loc) {
			if r.Day == day {
				rec = r
			}
		}
		out.Records = append(out.Records, MeterDay{Record: rec, MeterName: cfg.Name, Process: cfg.Process})
	}

	sort.SliceStable(out.Records, func(i, j int) bool {
		return NaturalLess(out.Records[i].MeterID, out.Records[j].MeterID)
	})
	out.Chart = factoryChart(out.Records)
	return out, nil
}

func meterChart(records []anomaly.Record, capacity *float64) Chart {
	chart := Chart{
		Labels:      make([]string, len(records)),
		Consumption: make([]consumption.Value, len(records)),
	}
	for i, r := range records {
		chart.Labels[i] = r.Day
		chart.Consumption[i] = r.Consumption
	}
	if capacity != nil {
		chart.Capacity = make([]*float64, len(records))
		for i := range chart.Capacity {
			chart.Capacity[i] = capacity
		}
	}
	return chart
}

func factoryChart(records []MeterDay) Chart {
	chart := Chart{
		Labels:      make([]string, len(records)),
		Consumption: make([]consumption.Value, len(records)),
		Capacity:    make([]*float64, len(records)),
	}
	for i, r := range records {
		chart.Labels[i] = r.MeterID
		chart.Consumption[i] = r.Consumption
		chart.Capacity[i] = r.DailyCapacity
	}
	return chart
}

var factoryAliases = map[string]string{
	"a":     "FAC-A",
	"b":     "FAC-B",
	"c1":    "FAC-C1",
	"c2":    "FAC-C2",
	"d":     "FAC-D",
	"a1":    "A1",
	"other": "OTHER",
}

// ResolveFactory maps the short factory names used in URLs to registry names.
// Unknown names pass through unchanged.
func ResolveFactory(name string) string {
	if full, ok := factoryAliases[strings.ToLower(name)]; ok {
		return full
	}
	return name
}

// NaturalLess orders ids so that embedded numbers compare by value, ignoring case.
func NaturalLess(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	for a != "" && b != "" {
		ra, rb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ra) && unicode.IsDigit(rb) {
			na, restA := leadingDigits(a)
			nb, restB := leadingDigits(b)
			trimmedA, trimmedB := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(trimmedA) != len(trimmedB) {
				return len(trimmedA) < len(trimmedB)
			}
			if trimmedA != trimmedB {
				return trimmedA < trimmedB
			}
			a, b = restA, restB
			continue
		}
		if ra != rb {
			return ra < rb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func leadingDigits(s string) (string, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}
