package consumption_test

import (
	"math"
	"testing"
	"time"

	"github.com/septivank/meter-dashboard/internal/consumption"
)

const testRolloverMax = 1000000

func reading(ts time.Time, v *float64) consumption.Reading {
	return consumption.Reading{MeterID: "WM-01", Timestamp: ts, Value: v}
}

func day(d int) time.Time {
	return time.Date(2025, 1, d, 8, 0, 0, 0, time.UTC)
}

func TestDerive_SingleReadingHasNoData(t *testing.T) {
	got := consumption.Derive([]consumption.Reading{reading(day(1), consumption.Float(100))}, testRolloverMax)

	if len(got) != 1 {
		t.Fatalf("Expected 1 value, got %d", len(got))
	}
	if got[0].Kind != consumption.KindNoData {
		t.Errorf("Expected NoData, got %v", got[0])
	}
}

func TestDerive_Empty(t *testing.T) {
	got := consumption.Derive(nil, testRolloverMax)
	if len(got) != 0 {
		t.Errorf("Expected empty output, got %v", got)
	}
}

func TestDerive_MonotonicIncrease(t *testing.T) {
	got := consumption.Derive([]consumption.Reading{
		reading(day(1), consumption.Float(100)),
		reading(day(2), consumption.Float(180)),
	}, testRolloverMax)

	if got[0].Kind != consumption.KindNoData {
		t.Errorf("Expected NoData first, got %v", got[0])
	}
	if !got[1].IsNumeric() || got[1].Amount != 80 {
		t.Errorf("Expected 80, got %v", got[1])
	}
}

func TestDerive_Rollover(t *testing.T) {
	got := consumption.Derive([]consumption.Reading{
		reading(day(1), consumption.Float(999900)),
		reading(day(2), consumption.Float(50)),
	}, testRolloverMax)

	if !got[1].IsNumeric() || got[1].Amount != 150 {
		t.Errorf("Expected 150 after rollover, got %v", got[1])
	}
}

func TestDerive_MissingValueIsInvalid(t *testing.T) {
	got := consumption.Derive([]consumption.Reading{
		reading(day(1), consumption.Float(100)),
		reading(day(2), nil),
		reading(day(3), consumption.Float(130)),
	}, testRolloverMax)

	if got[1].Kind != consumption.KindInvalid {
		t.Errorf("Expected Invalid for missing current value, got %v", got[1])
	}
	if got[2].Kind != consumption.KindInvalid {
		t.Errorf("Expected Invalid for missing previous value, got %v", got[2])
	}
}

func TestDerive_NaNIsInvalid(t *testing.T) {
	got := consumption.Derive([]consumption.Reading{
		reading(day(1), consumption.Float(math.NaN())),
		reading(day(2), consumption.Float(10)),
	}, testRolloverMax)

	if got[1].Kind != consumption.KindInvalid {
		t.Errorf("Expected Invalid for NaN, got %v", got[1])
	}
}

func TestDerive_MisconfiguredRolloverUsesDefault(t *testing.T) {
	for _, limit := range []float64{0, -5, math.NaN()} {
		got := consumption.Derive([]consumption.Reading{
			reading(day(1), consumption.Float(999990)),
			reading(day(2), consumption.Float(10)),
		}, limit)

		if !got[1].IsNumeric() || got[1].Amount != 20 {
			t.Errorf("rollover %v: expected 20 with default maximum, got %v", limit, got[1])
		}
	}
}

func TestDerive_ClampsResidualToZero(t *testing.T) {
	// A maximum smaller than the drop leaves a negative residual.
	got := consumption.Derive([]consumption.Reading{
		reading(day(1), consumption.Float(5000)),
		reading(day(2), consumption.Float(10)),
	}, 1000)

	if !got[1].IsNumeric() || got[1].Amount != 0 {
		t.Errorf("Expected clamp to 0, got %v", got[1])
	}
}

func TestDerive_NeverNegative(t *testing.T) {
	values := []float64{10, 3, 999999, 0, 42, 41, 1000000, 7}
	var readings []consumption.Reading
	for i, v := range values {
		readings = append(readings, reading(day(1).Add(time.Duration(i)*time.Hour), consumption.Float(v)))
	}

	for _, limit := range []float64{10, 1000, testRolloverMax} {
		for i, v := range consumption.Derive(readings, limit) {
			if v.IsNumeric() && v.Amount < 0 {
				t.Errorf("rollover %v index %d: negative consumption %v", limit, i, v.Amount)
			}
		}
	}
}

func TestSort_OrdersAndDeduplicates(t *testing.T) {
	in := []consumption.Reading{
		reading(day(3), consumption.Float(30)),
		reading(day(1), consumption.Float(10)),
		reading(day(2), consumption.Float(20)),
		reading(day(1), consumption.Float(11)),
	}

	got := consumption.Sort(in)

	if len(got) != 3 {
		t.Fatalf("Expected 3 readings after dedup, got %d", len(got))
	}
	if *got[0].Value != 11 {
		t.Errorf("Expected last-seen duplicate 11, got %v", *got[0].Value)
	}
	if *got[2].Value != 30 {
		t.Errorf("Expected latest reading last, got %v", *got[2].Value)
	}
	if *in[0].Value != 30 {
		t.Error("Sort must not modify its input")
	}
}

func TestValue_JSON(t *testing.T) {
	cases := map[string]consumption.Value{
		`120`:            consumption.Amount(120),
		`"No data"`:      consumption.NoData(),
		`"Invalid Data"`: consumption.Invalid(),
	}

	for want, v := range cases {
		b, err := v.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal %v: %v", v, err)
		}
		if string(b) != want {
			t.Errorf("Expected %s, got %s", want, b)
		}

		var back consumption.Value
		if err := back.UnmarshalJSON(b); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if back != v {
			t.Errorf("Expected %v after decoding %s, got %v", v, b, back)
		}
	}
}

func TestValue_Merged(t *testing.T) {
	if consumption.Invalid().Merged().Kind != consumption.KindNoData {
		t.Error("Expected Invalid to merge into NoData")
	}
	if consumption.Amount(3).Merged() != consumption.Amount(3) {
		t.Error("Expected amounts to pass through Merged unchanged")
	}
}
