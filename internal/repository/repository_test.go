package repository

import (
	"math"
	"testing"
	"time"

	"github.com/septivank/meter-dashboard/internal/consumption"
	"github.com/stretchr/testify/require"
)

func TestParseMeterValue(t *testing.T) {
	require.Nil(t, ParseMeterValue(nil))

	raw := " 1234.5 "
	v := ParseMeterValue(&raw)
	require.NotNil(t, v)
	require.Equal(t, 1234.5, *v)

	bad := "n/a"
	v = ParseMeterValue(&bad)
	require.NotNil(t, v)
	require.True(t, math.IsNaN(*v))
}

func TestOptionalTime(t *testing.T) {
	require.Nil(t, optionalTime(time.Time{}))

	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, ts, *optionalTime(ts))
}

func TestMeterArgs(t *testing.T) {
	capacity := 80.0
	args := meterArgs(consumption.MeterConfig{MeterID: "wm-03", Name: "Outlet", DailyCapacity: &capacity, Period: consumption.PeriodDaily})

	require.Len(t, args, 8)
	require.Equal(t, "WM-03", args[0])
	require.Equal(t, "Outlet", *args[1].(*string))
	require.Nil(t, args[2].(*string))
	require.Equal(t, &capacity, args[5])
	require.Nil(t, args[6].(*float64))
	require.Equal(t, "D", *args[7].(*string))
}
