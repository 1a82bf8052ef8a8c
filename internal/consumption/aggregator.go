package consumption

import (
	"sort"
	"time"
)

// AggregateByDay keeps the latest reading of every (meter, calendar day) pair,
// with days computed in loc. Ties on the timestamp go to the reading seen last.
// The result is sorted ascending by day, then by meter id.
func AggregateByDay(readings []Reading, loc *time.Location) []Reading {
	type key struct {
		meter string
		day   string
	}

	latest := make(map[key]Reading)
	for _, r := range readings {
		k := key{meter: NormalizeMeterID(r.MeterID), day: DayOf(r.Timestamp, loc)}
		if cur, ok := latest[k]; ok && r.Timestamp.Before(cur.Timestamp) {
			continue
		}
		latest[k] = r
	}

	keys := make([]key, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].day != keys[j].day {
			return keys[i].day < keys[j].day
		}
		return keys[i].meter < keys[j].meter
	})

	out := make([]Reading, 0, len(keys))
	for _, k := range keys {
		out = append(out, latest[k])
	}
	return out
}

// DailySeries aggregates one meter's readings by day and derives consumption
// for each day. Days and values are index-aligned.
func DailySeries(readings []Reading, rolloverMax float64, loc *time.Location) ([]Reading, []Value) {
	days := AggregateByDay(readings, loc)
	return days, Derive(days, rolloverMax)
}
