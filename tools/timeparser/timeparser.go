package timeparser

import (
	"fmt"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

var meterLayouts = []string{
	"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss
	"02/01/2006 15:04",    // DD/MM/YYYY HH:mm
	"02 15:04:05/01/2006", // DD HH:mm:ss/MM/YYYY
	"2006-01-02 15:04:05", // YYYY-MM-DD HH:mm:ss
	"2006-01-02",          // YYYY-MM-DD
}

// ParseMeterTimestamp parses a meter timestamp, reading zone-less layouts as UTC
func ParseMeterTimestamp(dateStr string) (time.Time, error) {
	return ParseMeterTimestampIn(dateStr, time.UTC)
}

// ParseMeterTimestampIn tries the logger layouts in loc, then ISO 8601 with an explicit offset
func ParseMeterTimestampIn(dateStr string, loc *time.Location) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	if loc == nil {
		loc = time.UTC
	}

	var lastErr error
	for _, layout := range meterLayouts {
		t, err := time.ParseInLocation(layout, dateStr, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	t, err := iso8601.ParseString(dateStr)
	if err == nil {
		if !hasOffset(dateStr) {
			// iso8601 reads a zone-less time as UTC
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
		}
		return t, nil
	}
	if lastErr == nil {
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", dateStr, lastErr)
}

// hasOffset reports whether an ISO 8601 string carries Z or a numeric offset after its time part
func hasOffset(s string) bool {
	i := strings.IndexAny(s, "Tt")
	if i < 0 {
		return false
	}
	clock := s[i+1:]
	return strings.HasSuffix(strings.ToUpper(clock), "Z") || strings.ContainsAny(clock, "+-")
}

// IsWithinTolerance checks if the reading timestamp is within tolerance of received time
func IsWithinTolerance(readingTime, receivedTime time.Time, toleranceMinutes int) bool {
	diff := readingTime.Sub(receivedTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(toleranceMinutes)*time.Minute
}
