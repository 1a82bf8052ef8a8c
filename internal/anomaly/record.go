package anomaly

import (
	"time"

	"github.com/septivank/meter-dashboard/internal/consumption"
)

// Record is one derived, classified consumption interval. Records are
// recomputed from raw readings on every request and never stored.
type Record struct {
	MeterID       string                  `json:"meter_id"`
	IntervalEnd   *time.Time              `json:"interval_end,omitempty"`
	Day           string                  `json:"day"`
	RawValue      *consumption.MeterValue `json:"raw_value"`
	Consumption   consumption.Value       `json:"consumption"`
	Status        Status                  `json:"status"`
	RecordedBy    string                  `json:"recorded_by,omitempty"`
	DailyCapacity *float64                `json:"daily_capacity"`
}

// Build derives and classifies an already ordered series for one meter.
func Build(cfg consumption.MeterConfig, ordered []consumption.Reading, loc *time.Location) []Record {
	values := consumption.Derive(ordered, cfg.EffectiveRolloverMax())
	records := make([]Record, len(ordered))
	for i, r := range ordered {
		end := r.Timestamp
		records[i] = Record{
			MeterID:       consumption.NormalizeMeterID(cfg.MeterID),
			IntervalEnd:   &end,
			Day:           consumption.DayOf(r.Timestamp, loc),
			RawValue:      consumption.RawValue(r.Value),
			Consumption:   values[i],
			Status:        Classify(values[i], cfg.DailyCapacity),
			RecordedBy:    r.RecordedBy,
			DailyCapacity: cfg.DailyCapacity,
		}
	}
	return records
}

// BuildPerReading sorts raw readings and classifies every reading against its predecessor.
func BuildPerReading(cfg consumption.MeterConfig, readings []consumption.Reading, loc *time.Location) []Record {
	return Build(cfg, consumption.Sort(readings), loc)
}

// BuildDaily collapses readings to one per day before deriving consumption.
func BuildDaily(cfg consumption.MeterConfig, readings []consumption.Reading, loc *time.Location) []Record {
	return Build(cfg, consumption.AggregateByDay(readings, loc), loc)
}

// MissingDay is the record shown for a meter that reported nothing on day. It
// has no interval end.
func MissingDay(cfg consumption.MeterConfig, day string) Record {
	return Record{
		MeterID:       consumption.NormalizeMeterID(cfg.MeterID),
		Day:           day,
		Consumption:   consumption.NoData(),
		Status:        StatusNoData,
		DailyCapacity: cfg.DailyCapacity,
	}
}
