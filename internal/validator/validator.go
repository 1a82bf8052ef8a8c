package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/septivank/meter-dashboard/internal/consumption"
	"github.com/septivank/meter-dashboard/tools/timeparser"
)

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid bool
	Reason  string
}

// ReadingData is one logged meter value as it arrives on the wire
type ReadingData struct {
	MeterID string `json:"meter_id"`
	Date    string `json:"log_datetime"`
	Value   string `json:"meter_value"`
}

// Validator checks incoming readings before they reach the reading log
type Validator struct {
	timestampToleranceMinutes int
	loc                       *time.Location
}

// NewValidator creates a new validator. Timestamps without a zone are read in loc.
func NewValidator(timestampToleranceMinutes int, loc *time.Location) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	return &Validator{
		timestampToleranceMinutes: timestampToleranceMinutes,
		loc:                       loc,
	}
}

func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{IsValid: false, Reason: fmt.Sprintf(format, args...)}
}

// ValidateReading validates a single reading. An empty value is accepted and
// stored as a missing reading.
func (v *Validator) ValidateReading(data ReadingData, receivedAt time.Time) (consumption.Reading, ValidationResult) {
	meterID := consumption.NormalizeMeterID(data.MeterID)
	if meterID == "" {
		return consumption.Reading{}, invalid("empty meter id")
	}

	value, result := parseValue(data.Value)
	if !result.IsValid {
		return consumption.Reading{}, result
	}

	readingTime, err := timeparser.ParseMeterTimestampIn(data.Date, v.loc)
	if err != nil {
		return consumption.Reading{}, invalid("invalid timestamp format: %v", err)
	}

	if !receivedAt.IsZero() && !timeparser.IsWithinTolerance(readingTime, receivedAt, v.timestampToleranceMinutes) {
		return consumption.Reading{}, invalid("timestamp outside tolerance window (±%d minutes)", v.timestampToleranceMinutes)
	}

	return consumption.Reading{MeterID: meterID, Timestamp: readingTime, Value: value}, ValidationResult{IsValid: true}
}

func parseValue(raw string) (*float64, ValidationResult) {
	// Loggers sometimes wrap the value in square brackets
	trimmed := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "[]"))
	if trimmed == "" {
		return nil, ValidationResult{IsValid: true}
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil, invalid("invalid meter value: %v", err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, invalid("meter value is not a finite number")
	}
	if value < 0 {
		return nil, invalid("negative value detected")
	}
	return &value, ValidationResult{IsValid: true}
}
