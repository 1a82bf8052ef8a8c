package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/septivank/meter-dashboard/internal/consumption"
	"github.com/septivank/meter-dashboard/internal/service"
	"github.com/septivank/meter-dashboard/internal/validator"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingObserver struct {
	accepted, rejected int
}

func (o *countingObserver) ObserveIngest(accepted, rejected int) {
	o.accepted += accepted
	o.rejected += rejected
}

type failingWriter struct{}

func (failingWriter) InsertReadings(context.Context, []consumption.Reading, string) error {
	return errors.New("connection reset")
}

func newIngest(writer service.ReadingWriter, observer service.IngestObserver) *service.IngestService {
	return service.NewIngestService(writer, validator.NewValidator(10080, ict), observer, zap.NewNop())
}

func TestProcessMessage_StoresValidReadings(t *testing.T) {
	store := newMemStore()
	observer := &countingObserver{}
	svc := newIngest(store, observer)

	body := []byte(`{
		"request_id": "req-1",
		"received_at": "2025-01-02T02:00:00Z",
		"user_id": "7",
		"readings": [
			{"meter_id": "wm-01", "log_datetime": "02/01/2025 08:30:00", "meter_value": "620"},
			{"meter_id": "WM-02", "log_datetime": "02/01/2025 08:31:00", "meter_value": ""},
			{"meter_id": "WM-03", "log_datetime": "02/01/2025 08:32:00", "meter_value": "-4"}
		]
	}`)

	require.NoError(t, svc.ProcessMessage(context.Background(), body))
	require.Len(t, store.readings, 2)

	first := store.readings[0]
	require.Equal(t, "WM-01", first.MeterID)
	require.Equal(t, 620.0, *first.Value)
	require.Equal(t, "7", first.RecordedBy)
	require.True(t, first.Timestamp.Equal(time.Date(2025, 1, 2, 1, 30, 0, 0, time.UTC)))
	require.Nil(t, store.readings[1].Value)

	require.Equal(t, 2, observer.accepted)
	require.Equal(t, 1, observer.rejected)
}

func TestProcessMessage_Failures(t *testing.T) {
	svc := newIngest(newMemStore(), nil)

	err := svc.ProcessMessage(context.Background(), []byte(`{not json`))
	require.Error(t, err)

	err = svc.ProcessMessage(context.Background(), []byte(`{"request_id":"r","readings":[{"meter_id":"","log_datetime":"x","meter_value":"1"}]}`))
	require.ErrorIs(t, err, service.ErrNoValidReadings)

	require.NoError(t, svc.ProcessMessage(context.Background(), []byte(`{"request_id":"r","readings":[]}`)))

	err = newIngest(failingWriter{}, nil).ProcessMessage(context.Background(),
		[]byte(`{"request_id":"r","readings":[{"meter_id":"WM-01","log_datetime":"2025-01-02 08:00:00","meter_value":"1"}]}`))
	require.ErrorContains(t, err, "connection reset")
}
