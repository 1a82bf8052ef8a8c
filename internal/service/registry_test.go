package service_test

import (
	"context"
	"testing"

	"github.com/septivank/meter-dashboard/internal/consumption"
	"github.com/septivank/meter-dashboard/internal/repository"
	"github.com/septivank/meter-dashboard/internal/service"
	"github.com/stretchr/testify/require"
)

func TestMeterRegistryEditing(t *testing.T) {
	ctx := context.Background()
	svc := newService(newMemStore(), at("2025-01-03", "12:00"), true)

	meters, err := svc.ListMeters(ctx)
	require.NoError(t, err)
	require.NotNil(t, meters)
	require.Empty(t, meters)

	created, err := svc.CreateMeter(ctx, consumption.MeterConfig{MeterID: " wm-05 ", Factory: "FAC-A", Period: consumption.PeriodDaily})
	require.NoError(t, err)
	require.Equal(t, "WM-05", created.MeterID)

	_, err = svc.CreateMeter(ctx, consumption.MeterConfig{MeterID: "WM-05"})
	require.ErrorIs(t, err, repository.ErrDuplicate)

	updated, err := svc.UpdateMeter(ctx, "wm-05", consumption.MeterConfig{Name: "Boiler feed", DailyCapacity: consumption.Float(40)})
	require.NoError(t, err)
	require.Equal(t, "WM-05", updated.MeterID)

	got, err := svc.GetMeter(ctx, "WM-05")
	require.NoError(t, err)
	require.Equal(t, "Boiler feed", got.Name)
	require.Equal(t, 40.0, *got.DailyCapacity)

	require.NoError(t, svc.DeleteMeter(ctx, "wm-05"))
	_, err = svc.GetMeter(ctx, "WM-05")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateMeterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(newMemStore(), at("2025-01-03", "12:00"), true)

	cases := []consumption.MeterConfig{
		{MeterID: "  "},
		{MeterID: "WM-01", Period: "W"},
		{MeterID: "WM-01", DailyCapacity: consumption.Float(-1)},
		{MeterID: "WM-01", RolloverMax: -5},
	}
	for _, m := range cases {
		_, err := svc.CreateMeter(ctx, m)
		require.ErrorIs(t, err, service.ErrInvalidInput, "meter %+v", m)
	}
}

func TestUpdateReadingRecordsEditor(t *testing.T) {
	ctx := context.Background()
	store := rolloverMeterStore()
	svc := newService(store, at("2025-01-03", "12:00"), true)

	when := at("2025-01-03", "09:00")
	require.NoError(t, svc.UpdateReading(ctx, "wm-01", when, consumption.Float(630), "7"))

	view, err := svc.MeterConsumption(ctx, "WM-01", "2025-01-03", "2025-01-03")
	require.NoError(t, err)
	require.Equal(t, consumption.Amount(10), view.Records[0].Consumption)
	require.Equal(t, "7", view.Records[0].RecordedBy)

	err = svc.UpdateReading(ctx, "WM-01", at("2025-01-03", "10:00"), consumption.Float(1), "7")
	require.ErrorIs(t, err, repository.ErrNotFound)

	err = svc.UpdateReading(ctx, "WM-01", when, consumption.Float(-1), "7")
	require.ErrorIs(t, err, service.ErrInvalidInput)
}
