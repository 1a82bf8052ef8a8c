package consumption

import (
	"encoding/json"
	"fmt"
	"math"
)

// Kind tells a numeric consumption apart from the sentinels.
type Kind int

const (
	// KindNoData means no earlier reading exists to subtract from.
	KindNoData Kind = iota
	// KindInvalid means an earlier reading exists but one of the two values is unusable.
	KindInvalid
	// KindNumeric carries a consumption amount.
	KindNumeric
)

// Display strings for the sentinels
const (
	NoDataLabel  = "No data"
	InvalidLabel = "Invalid Data"
)

// Value is a derived consumption: a non-negative amount or a sentinel.
type Value struct {
	Kind   Kind
	Amount float64
}

// NoData is the sentinel for "no prior reading".
func NoData() Value { return Value{Kind: KindNoData} }

// Invalid is the sentinel for "prior reading exists but is unusable".
func Invalid() Value { return Value{Kind: KindInvalid} }

// Amount wraps a numeric consumption.
func Amount(v float64) Value { return Value{Kind: KindNumeric, Amount: v} }

// IsNumeric reports whether v carries an amount.
func (v Value) IsNumeric() bool { return v.Kind == KindNumeric }

// IsSentinel reports whether v is NoData or Invalid.
func (v Value) IsSentinel() bool { return v.Kind != KindNumeric }

// Float returns the amount, or nil for sentinels.
func (v Value) Float() *float64 {
	if !v.IsNumeric() {
		return nil
	}
	a := v.Amount
	return &a
}

// Merged collapses Invalid into NoData for callers that render both the same way.
func (v Value) Merged() Value {
	if v.Kind == KindInvalid {
		return NoData()
	}
	return v
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumeric:
		return fmt.Sprintf("%g", v.Amount)
	case KindInvalid:
		return InvalidLabel
	default:
		return NoDataLabel
	}
}

// MarshalJSON renders amounts as numbers and sentinels as their labels.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsNumeric() {
		return json.Marshal(v.Amount)
	}
	return json.Marshal(v.String())
}

// UnmarshalJSON accepts a number or one of the sentinel labels.
func (v *Value) UnmarshalJSON(data []byte) error {
	var amount float64
	if err := json.Unmarshal(data, &amount); err == nil {
		*v = Amount(amount)
		return nil
	}

	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("consumption value must be a number or a label: %w", err)
	}
	switch label {
	case NoDataLabel:
		*v = NoData()
	case InvalidLabel:
		*v = Invalid()
	default:
		return fmt.Errorf("unknown consumption label %q", label)
	}
	return nil
}

// MeterValue is a logged counter value as returned to clients. Values that
// could not be parsed from storage are NaN and render as InvalidLabel.
type MeterValue float64

// RawValue converts a reading's value for display. A missing value stays nil.
func RawValue(v *float64) *MeterValue {
	if v == nil {
		return nil
	}
	m := MeterValue(*v)
	return &m
}

// Finite reports whether m holds a usable number.
func (m MeterValue) Finite() bool {
	f := float64(m)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// MarshalJSON renders finite values as numbers and anything else as InvalidLabel.
func (m MeterValue) MarshalJSON() ([]byte, error) {
	if !m.Finite() {
		return json.Marshal(InvalidLabel)
	}
	return json.Marshal(float64(m))
}

// UnmarshalJSON accepts a number or InvalidLabel.
func (m *MeterValue) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*m = MeterValue(f)
		return nil
	}

	var label string
	if err := json.Unmarshal(data, &label); err != nil || label != InvalidLabel {
		return fmt.Errorf("meter value must be a number or %q", InvalidLabel)
	}
	*m = MeterValue(math.NaN())
	return nil
}
