package db

import (
	"time"

	"github.com/septivank/meter-dashboard/internal/consumption"
)

// MeterInfo represents a row of the meter registry table
type MeterInfo struct {
	MeterID   string
	MeterName *string
	Type      *string
	Factory   *string
	Process   *string
	MaxCap    *float64
	MaxMeter  *float64
	Period    *string
}

// Config converts the row into the derivation config
func (m MeterInfo) Config() consumption.MeterConfig {
	cfg := consumption.MeterConfig{
		MeterID:       consumption.NormalizeMeterID(m.MeterID),
		Name:          deref(m.MeterName),
		Type:          deref(m.Type),
		Factory:       deref(m.Factory),
		Process:       deref(m.Process),
		DailyCapacity: m.MaxCap,
		Period:        consumption.Period(deref(m.Period)),
	}
	if m.MaxMeter != nil {
		cfg.RolloverMax = *m.MaxMeter
	}
	return cfg
}

// MeterRecord represents a row of the reading log table
type MeterRecord struct {
	MeterID     string
	LogDatetime time.Time
	MeterValue  *float64
	UserID      *string
	UserName    *string
}

// Reading converts the row into a raw reading
func (r MeterRecord) Reading() consumption.Reading {
	recordedBy := deref(r.UserName)
	if recordedBy == "" {
		recordedBy = deref(r.UserID)
	}
	return consumption.Reading{
		MeterID:    consumption.NormalizeMeterID(r.MeterID),
		Timestamp:  r.LogDatetime,
		Value:      r.MeterValue,
		RecordedBy: recordedBy,
	}
}

// UserInfo represents a dashboard user
type UserInfo struct {
	UserID       string
	Name         string
	PasswordHash string
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
