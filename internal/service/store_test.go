package service_test

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/septivank/meter-dashboard/internal/anomaly"
	"github.com/septivank/meter-dashboard/internal/consumption"
	"github.com/septivank/meter-dashboard/internal/repository"
	"github.com/septivank/meter-dashboard/internal/service"
)

var ict = time.FixedZone("ICT", 7*3600)

// memStore is an in-memory reading log and meter registry
type memStore struct {
	meters   map[string]consumption.MeterConfig
	readings []consumption.Reading
}

func newMemStore(meters ...consumption.MeterConfig) *memStore {
	s := &memStore{meters: make(map[string]consumption.MeterConfig)}
	for _, m := range meters {
		s.meters[m.MeterID] = m
	}
	return s
}

func (s *memStore) add(meterID string, at time.Time, value float64) {
	s.readings = append(s.readings, consumption.Reading{MeterID: meterID, Timestamp: at, Value: consumption.Float(value)})
}

func (s *memStore) filter(keep func(consumption.Reading) bool) []consumption.Reading {
	var out []consumption.Reading
	for _, r := range s.readings {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (s *memStore) ListReadings(_ context.Context, meterID string, from, to time.Time) ([]consumption.Reading, error) {
	return s.filter(func(r consumption.Reading) bool {
		return r.MeterID == meterID &&
			(from.IsZero() || !r.Timestamp.Before(from)) &&
			(to.IsZero() || r.Timestamp.Before(to))
	}), nil
}

func (s *memStore) ListReadingsBetween(_ context.Context, from, to time.Time) ([]consumption.Reading, error) {
	return s.filter(func(r consumption.Reading) bool {
		return !r.Timestamp.Before(from) && r.Timestamp.Before(to)
	}), nil
}

func (s *memStore) ListRecentReadings(_ context.Context, meterID string, until time.Time, limit int) ([]consumption.Reading, error) {
	asc := s.filter(func(r consumption.Reading) bool {
		return r.MeterID == meterID && r.Timestamp.Before(until)
	})
	var out []consumption.Reading
	for i := len(asc) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, asc[i])
	}
	return out, nil
}

func (s *memStore) LatestReadingTimes(context.Context) (map[string]time.Time, error) {
	latest := make(map[string]time.Time)
	for _, r := range s.readings {
		if r.Timestamp.After(latest[r.MeterID]) {
			latest[r.MeterID] = r.Timestamp
		}
	}
	return latest, nil
}

func (s *memStore) UpdateReadingValue(_ context.Context, meterID string, at time.Time, value *float64, userID string) error {
	for i, r := range s.readings {
		if r.MeterID == meterID && r.Timestamp.Equal(at) {
			s.readings[i].Value = value
			s.readings[i].RecordedBy = userID
			return nil
		}
	}
	return fmt.Errorf("reading %s: %w", meterID, repository.ErrNotFound)
}

func (s *memStore) InsertReadings(_ context.Context, readings []consumption.Reading, userID string) error {
	for _, r := range readings {
		r.RecordedBy = userID
		s.readings = append(s.readings, r)
	}
	return nil
}

func (s *memStore) ListMeters(context.Context) ([]consumption.MeterConfig, error) {
	out := make([]consumption.MeterConfig, 0, len(s.meters))
	for _, m := range s.meters {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MeterID < out[j].MeterID })
	return out, nil
}

func (s *memStore) ListMetersByFactory(ctx context.Context, factory string) ([]consumption.MeterConfig, error) {
	all, _ := s.ListMeters(ctx)
	var out []consumption.MeterConfig
	for _, m := range all {
		if m.Factory == factory {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) GetMeter(_ context.Context, meterID string) (consumption.MeterConfig, error) {
	m, ok := s.meters[meterID]
	if !ok {
		return consumption.MeterConfig{}, fmt.Errorf("meter %s: %w", meterID, repository.ErrNotFound)
	}
	return m, nil
}

func (s *memStore) CreateMeter(_ context.Context, m consumption.MeterConfig) error {
	if _, ok := s.meters[m.MeterID]; ok {
		return fmt.Errorf("meter %s: %w", m.MeterID, repository.ErrDuplicate)
	}
	s.meters[m.MeterID] = m
	return nil
}

func (s *memStore) UpdateMeter(_ context.Context, m consumption.MeterConfig) error {
	if _, ok := s.meters[m.MeterID]; !ok {
		return fmt.Errorf("meter %s: %w", m.MeterID, repository.ErrNotFound)
	}
	s.meters[m.MeterID] = m
	return nil
}

func (s *memStore) DeleteMeter(_ context.Context, meterID string) error {
	if _, ok := s.meters[meterID]; !ok {
		return fmt.Errorf("meter %s: %w", meterID, repository.ErrNotFound)
	}
	delete(s.meters, meterID)
	return nil
}

func at(day, clock string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", day+" "+clock, ict)
	if err != nil {
		panic(err)
	}
	return t
}

func newService(store *memStore, now time.Time, anchored bool) *service.DashboardService {
	return service.NewDashboardService(store, store, anomaly.NewDetector(ict, 30), service.Options{
		DefaultHistoryDays:      7,
		OverConsumptionAnchored: anchored,
		Now:                     func() time.Time { return now },
	})
}
