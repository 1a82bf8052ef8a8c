package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/septivank/meter-dashboard/internal/consumption"
)

// ListMeters returns every registered meter
func (s *DashboardService) ListMeters(ctx context.Context) ([]consumption.MeterConfig, error) {
	meters, err := s.meters.ListMeters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list meters: %w", err)
	}
	if meters == nil {
		meters = []consumption.MeterConfig{}
	}
	return meters, nil
}

// GetMeter returns one meter's configuration
func (s *DashboardService) GetMeter(ctx context.Context, meterID string) (consumption.MeterConfig, error) {
	return s.meters.GetMeter(ctx, consumption.NormalizeMeterID(meterID))
}

// CreateMeter validates and registers a meter
func (s *DashboardService) CreateMeter(ctx context.Context, m consumption.MeterConfig) (consumption.MeterConfig, error) {
	m, err := validateMeter(m)
	if err != nil {
		return consumption.MeterConfig{}, err
	}
	if err := s.meters.CreateMeter(ctx, m); err != nil {
		return consumption.MeterConfig{}, err
	}
	return m, nil
}

// UpdateMeter validates and replaces a meter's attributes
func (s *DashboardService) UpdateMeter(ctx context.Context, meterID string, m consumption.MeterConfig) (consumption.MeterConfig, error) {
	m.MeterID = meterID
	m, err := validateMeter(m)
	if err != nil {
		return consumption.MeterConfig{}, err
	}
	if err := s.meters.UpdateMeter(ctx, m); err != nil {
		return consumption.MeterConfig{}, err
	}
	return m, nil
}

// DeleteMeter removes a meter from the registry
func (s *DashboardService) DeleteMeter(ctx context.Context, meterID string) error {
	return s.meters.DeleteMeter(ctx, consumption.NormalizeMeterID(meterID))
}

// UpdateReading corrects a logged value and attributes the edit to userID
func (s *DashboardService) UpdateReading(ctx context.Context, meterID string, at time.Time, value *float64, userID string) error {
	meterID = consumption.NormalizeMeterID(meterID)
	if meterID == "" {
		return fmt.Errorf("meter_id is required: %w", ErrInvalidInput)
	}
	if at.IsZero() {
		return fmt.Errorf("log_datetime is required: %w", ErrInvalidInput)
	}
	if value != nil && (*value < 0 || math.IsNaN(*value) || math.IsInf(*value, 0)) {
		return fmt.Errorf("meter_value must be a non-negative number: %w", ErrInvalidInput)
	}
	return s.readings.UpdateReadingValue(ctx, meterID, at, value, userID)
}

func validateMeter(m consumption.MeterConfig) (consumption.MeterConfig, error) {
	m.MeterID = consumption.NormalizeMeterID(m.MeterID)
	if m.MeterID == "" {
		return m, fmt.Errorf("meter_id is required: %w", ErrInvalidInput)
	}
	switch m.Period {
	case "", consumption.PeriodDaily, consumption.PeriodMonthly:
	default:
		return m, fmt.Errorf("period must be D or M, got %q: %w", m.Period, ErrInvalidInput)
	}
	if m.DailyCapacity != nil && *m.DailyCapacity < 0 {
		return m, fmt.Errorf("max_cap must not be negative: %w", ErrInvalidInput)
	}
	if m.RolloverMax < 0 {
		return m, fmt.Errorf("max_meter must not be negative: %w", ErrInvalidInput)
	}
	return m, nil
}
