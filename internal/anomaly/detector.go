package anomaly

import (
	"time"

	"github.com/septivank/meter-dashboard/internal/consumption"
)

// DefaultMonthlyStaleDays is how long a monthly meter may stay silent before it is flagged.
const DefaultMonthlyStaleDays = 30

// Status is the classification of one consumption interval
type Status string

const (
	StatusNormal   Status = "Normal"
	StatusExceeded Status = "Exceeded"
	StatusNoData   Status = "No Data"
)

// Classify labels a derived consumption against a daily capacity threshold.
// Without a threshold nothing can exceed it.
func Classify(v consumption.Value, dailyCapacity *float64) Status {
	if v.IsSentinel() {
		return StatusNoData
	}
	if dailyCapacity == nil {
		return StatusNormal
	}
	if v.Amount > *dailyCapacity {
		return StatusExceeded
	}
	return StatusNormal
}

// Detector handles no-data detection with a fixed reference timezone
type Detector struct {
	loc               *time.Location
	monthlyStaleAfter time.Duration
}

// NewDetector creates a new detector. A nil location means UTC and a
// non-positive staleness falls back to DefaultMonthlyStaleDays.
func NewDetector(loc *time.Location, monthlyStaleDays int) *Detector {
	if loc == nil {
		loc = time.UTC
	}
	if monthlyStaleDays <= 0 {
		monthlyStaleDays = DefaultMonthlyStaleDays
	}
	return &Detector{
		loc:               loc,
		monthlyStaleAfter: time.Duration(monthlyStaleDays) * 24 * time.Hour,
	}
}

// Location returns the timezone used for calendar-day boundaries
func (d *Detector) Location() *time.Location {
	return d.loc
}

// DailyNoData reports whether none of the readings falls on day (YYYY-MM-DD).
func (d *Detector) DailyNoData(readings []consumption.Reading, day string) bool {
	for _, r := range readings {
		if consumption.DayOf(r.Timestamp, d.loc) == day {
			return false
		}
	}
	return true
}

// MonthlyNoData reports whether the latest reading is missing or older than
// the staleness window relative to now.
func (d *Detector) MonthlyNoData(readings []consumption.Reading, now time.Time) bool {
	latest, ok := Latest(readings)
	if !ok {
		return true
	}
	return latest.Timestamp.Before(now.Add(-d.monthlyStaleAfter))
}

// NoData dispatches on the meter period. Meters with an unknown period are
// never flagged.
func (d *Detector) NoData(period consumption.Period, readings []consumption.Reading, day string, now time.Time) bool {
	switch period {
	case consumption.PeriodDaily:
		return d.DailyNoData(readings, day)
	case consumption.PeriodMonthly:
		return d.MonthlyNoData(readings, now)
	default:
		return false
	}
}

// Latest returns the reading with the greatest timestamp.
func Latest(readings []consumption.Reading) (consumption.Reading, bool) {
	if len(readings) == 0 {
		return consumption.Reading{}, false
	}
	latest := readings[0]
	for _, r := range readings[1:] {
		if !r.Timestamp.Before(latest.Timestamp) {
			latest = r
		}
	}
	return latest, true
}
