package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/septivank/meter-dashboard/internal/anomaly"
	"github.com/septivank/meter-dashboard/internal/consumption"
)

// AlarmKind names one of the dashboard alarm lists
type AlarmKind string

const (
	AlarmDailyNoData     AlarmKind = "daily-no-data"
	AlarmOverConsumption AlarmKind = "over-consumption"
	AlarmMonthlyNoData   AlarmKind = "monthly-no-data"
)

// AlarmKinds lists every alarm kind in display order
var AlarmKinds = []AlarmKind{AlarmDailyNoData, AlarmOverConsumption, AlarmMonthlyNoData}

// Alarm is one flagged meter
type Alarm struct {
	Kind            AlarmKind               `json:"kind"`
	MeterID         string                  `json:"meter_id"`
	MeterName       string                  `json:"meter_name"`
	Factory         string                  `json:"factory"`
	Process         string                  `json:"process"`
	Day             string                  `json:"day,omitempty"`
	LastLogAt       *time.Time              `json:"last_log_at,omitempty"`
	CurrentReading  *consumption.MeterValue `json:"current_reading,omitempty"`
	PreviousReading *consumption.MeterValue `json:"previous_reading,omitempty"`
	Consumption     *consumption.Value      `json:"consumption,omitempty"`
	DailyCapacity   *float64                `json:"max_cap,omitempty"`
}

// AlarmReport groups the alarm lists evaluated at one instant
type AlarmReport struct {
	Day         string                `json:"day"`
	EvaluatedAt time.Time             `json:"evaluated_at"`
	Alarms      map[AlarmKind][]Alarm `json:"alarms"`
}

func newAlarm(kind AlarmKind, cfg consumption.MeterConfig) Alarm {
	return Alarm{
		Kind:      kind,
		MeterID:   cfg.MeterID,
		MeterName: cfg.Name,
		Factory:   cfg.Factory,
		Process:   cfg.Process,
	}
}

func sortAlarms(alarms []Alarm) {
	sort.SliceStable(alarms, func(i, j int) bool {
		if alarms[i].Factory != alarms[j].Factory {
			return alarms[i].Factory < alarms[j].Factory
		}
		return NaturalLess(alarms[i].MeterID, alarms[j].MeterID)
	})
}

// DailyNoData lists the daily meters without any reading on day
func (s *DashboardService) DailyNoData(ctx context.Context, day string) ([]Alarm, error) {
	start, end, err := s.dayBounds(day)
	if err != nil {
		return nil, err
	}

	meters, err := s.meters.ListMeters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list meters: %w", err)
	}
	readings, err := s.readings.ListReadingsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	byMeter := consumption.GroupByMeter(readings)

	alarms := []Alarm{}
	for _, cfg := range meters {
		if cfg.Period != consumption.PeriodDaily {
			continue
		}
		if s.detector.DailyNoData(byMeter[cfg.MeterID], day) {
			a := newAlarm(AlarmDailyNoData, cfg)
			a.Day = day
			alarms = append(alarms, a)
		}
	}
	sortAlarms(alarms)
	return alarms, nil
}

// OverConsumption lists the meters whose two most recent readings up to the
// end of day differ by more than their daily capacity. When anchored, the
// latest reading must itself fall on day.
func (s *DashboardService) OverConsumption(ctx context.Context, day string) ([]Alarm, error) {
	_, end, err := s.dayBounds(day)
	if err != nil {
		return nil, err
	}

	meters, err := s.meters.ListMeters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list meters: %w", err)
	}

	alarms := []Alarm{}
	for _, cfg := range meters {
		if cfg.DailyCapacity == nil {
			continue
		}
		recent, err := s.readings.ListRecentReadings(ctx, cfg.MeterID, end, 2)
		if err != nil {
			return nil, fmt.Errorf("failed to list readings for %s: %w", cfg.MeterID, err)
		}
		if len(recent) < 2 {
			continue
		}
		pair := consumption.Sort(recent)
		if len(pair) < 2 {
			continue
		}
		prev, curr := pair[0], pair[1]
		if s.opts.OverConsumptionAnchored && consumption.DayOf(curr.Timestamp, s.loc) != day {
			continue
		}

		v := consumption.Delta(prev.Value, curr.Value, cfg.EffectiveRolloverMax())
		if anomaly.Classify(v, cfg.DailyCapacity) != anomaly.StatusExceeded {
			continue
		}

		a := newAlarm(AlarmOverConsumption, cfg)
		a.Day = day
		at := curr.Timestamp
		a.LastLogAt = &at
		a.CurrentReading = consumption.RawValue(curr.Value)
		a.PreviousReading = consumption.RawValue(prev.Value)
		a.Consumption = &v
		a.DailyCapacity = cfg.DailyCapacity
		alarms = append(alarms, a)
	}
	sortAlarms(alarms)
	return alarms, nil
}

// MonthlyNoData lists the monthly meters silent for longer than the staleness window
func (s *DashboardService) MonthlyNoData(ctx context.Context, now time.Time) ([]Alarm, error) {
	meters, err := s.meters.ListMeters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list meters: %w", err)
	}
	latest, err := s.readings.LatestReadingTimes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest readings: %w", err)
	}

	alarms := []Alarm{}
	for _, cfg := range meters {
		if cfg.Period != consumption.PeriodMonthly {
			continue
		}

		var readings []consumption.Reading
		last, ok := latest[cfg.MeterID]
		if ok {
			readings = []consumption.Reading{{MeterID: cfg.MeterID, Timestamp: last}}
		}
		if !s.detector.MonthlyNoData(readings, now) {
			continue
		}

		a := newAlarm(AlarmMonthlyNoData, cfg)
		if ok {
			a.LastLogAt = &last
		}
		alarms = append(alarms, a)
	}
	sortAlarms(alarms)
	return alarms, nil
}

// EvaluateAlarms runs every alarm for the current day
func (s *DashboardService) EvaluateAlarms(ctx context.Context) (*AlarmReport, error) {
	now := s.opts.Now()
	day := consumption.DayOf(now, s.loc)

	daily, err := s.DailyNoData(ctx, day)
	if err != nil {
		return nil, err
	}
	over, err := s.OverConsumption(ctx, day)
	if err != nil {
		return nil, err
	}
	monthly, err := s.MonthlyNoData(ctx, now)
	if err != nil {
		return nil, err
	}

	return &AlarmReport{
		Day:         day,
		EvaluatedAt: now,
		Alarms: map[AlarmKind][]Alarm{
			AlarmDailyNoData:     daily,
			AlarmOverConsumption: over,
			AlarmMonthlyNoData:   monthly,
		},
	}, nil
}

// Now returns the service clock
func (s *DashboardService) Now() time.Time {
	return s.opts.Now()
}

// Location returns the reference timezone
func (s *DashboardService) Location() *time.Location {
	return s.loc
}
