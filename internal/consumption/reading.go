package consumption

import (
	"math"
	"sort"
	"strings"
	"time"
)

// DefaultRolloverMax is the counter maximum assumed when a meter has none configured.
const DefaultRolloverMax = 1000000

// DayLayout is the calendar-day key format used for grouping and display.
const DayLayout = "2006-01-02"

// Period is the expected reporting cadence of a meter
type Period string

const (
	PeriodDaily   Period = "D"
	PeriodMonthly Period = "M"
)

// Reading is one raw cumulative meter observation
type Reading struct {
	MeterID    string
	Timestamp  time.Time
	Value      *float64
	RecordedBy string
}

// MeterConfig holds the static attributes of a meter
type MeterConfig struct {
	MeterID       string   `json:"meter_id"`
	Name          string   `json:"meter_name"`
	Type          string   `json:"type"`
	Factory       string   `json:"factory"`
	Process       string   `json:"process"`
	RolloverMax   float64  `json:"max_meter"`
	DailyCapacity *float64 `json:"max_cap"`
	Period        Period   `json:"period"`
}

// EffectiveRolloverMax returns the configured rollover maximum or the default.
func (c MeterConfig) EffectiveRolloverMax() float64 {
	return NormalizeRollover(c.RolloverMax)
}

// NormalizeMeterID trims and uppercases a meter identifier
func NormalizeMeterID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// NormalizeRollover substitutes DefaultRolloverMax for missing or non-positive maxima.
func NormalizeRollover(limit float64) float64 {
	if limit <= 0 || math.IsNaN(limit) || math.IsInf(limit, 0) {
		return DefaultRolloverMax
	}
	return limit
}

// Float returns a pointer to v. Handy for building readings.
func Float(v float64) *float64 {
	return &v
}

// usable reports whether a reading value can take part in a subtraction.
func usable(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// DayOf returns the YYYY-MM-DD key of t in loc. A nil loc means UTC.
func DayOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// Sort orders readings ascending by timestamp and collapses readings sharing a
// timestamp to the last one seen in the input. The input slice is not modified.
func Sort(readings []Reading) []Reading {
	if len(readings) == 0 {
		return nil
	}

	out := make([]Reading, len(readings))
	copy(out, readings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	deduped := out[:0]
	for _, r := range out {
		n := len(deduped)
		if n > 0 && deduped[n-1].Timestamp.Equal(r.Timestamp) {
			deduped[n-1] = r
			continue
		}
		deduped = append(deduped, r)
	}
	return deduped
}

// GroupByMeter splits readings by normalized meter id, preserving input order.
func GroupByMeter(readings []Reading) map[string][]Reading {
	groups := make(map[string][]Reading)
	for _, r := range readings {
		id := NormalizeMeterID(r.MeterID)
		groups[id] = append(groups[id], r)
	}
	return groups
}
