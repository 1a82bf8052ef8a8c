package influxdb_test

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/septivank/meter-dashboard/internal/influxdb"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	lines   []string
	flushed bool
}

func (w *recordingWriter) WritePoint(p *write.Point) {
	w.lines = append(w.lines, write.PointToLineProtocol(p, time.Second))
}

func (w *recordingWriter) Flush() { w.flushed = true }

func TestWriteAlarmCounts(t *testing.T) {
	w := &recordingWriter{}
	c := influxdb.NewWithWriter(w)
	ts := time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)

	c.WriteAlarmCounts(map[string]int{"daily-no-data": 2}, ts)

	require.Len(t, w.lines, 1)
	require.Contains(t, w.lines[0], "meter_alarm_counts,kind=daily-no-data count=2i")
	require.Contains(t, w.lines[0], "1735786800")
}

func TestWriteFactoryConsumption(t *testing.T) {
	w := &recordingWriter{}
	c := influxdb.NewWithWriter(w)

	c.WriteFactoryConsumption([]influxdb.FactoryConsumption{
		{Factory: "FAC-A", Day: "2025-01-02", Total: 120.5, Meters: 3, Reporting: 2, Exceeded: 1},
	}, time.Now())
	c.Close()

	require.Len(t, w.lines, 1)
	require.Contains(t, w.lines[0], "factory_daily_consumption,day=2025-01-02,factory=FAC-A")
	require.Contains(t, w.lines[0], "total=120.5")
	require.Contains(t, w.lines[0], "exceeded_count=1i")
	require.True(t, w.flushed)
}
