package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveQuery(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	require.NotNil(t, m)

	m.ObserveQuery(5, PathScan, 3*time.Millisecond, 10)
	m.ObserveQuery(5, PathIndex, time.Millisecond, 10)
	m.ObserveQuery(7, PathFull, time.Millisecond, 5)

	require.Equal(t, float64(20), testutil.ToFloat64(m.QueryRows.WithLabelValues("5")))
	require.Equal(t, float64(5), testutil.ToFloat64(m.QueryRows.WithLabelValues("7")))
	require.Equal(t, 3, testutil.CollectAndCount(m.QueryDuration))
}

func TestMetrics_LoadAndIndex(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveLoad(100)
	m.ObserveLoad(50)
	m.ObserveIndexBuild("artist")

	require.Equal(t, float64(150), testutil.ToFloat64(m.RowsLoaded))
	require.Equal(t, float64(1), testutil.ToFloat64(m.IndexBuilds.WithLabelValues("artist")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveQuery(1, PathFull, time.Second, 1)
		m.ObserveLoad(1)
		m.ObserveIndexBuild("artist")
	})
}

func TestDump(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveLoad(42)
	m.ObserveQuery(1, PathFull, time.Millisecond, 3)

	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, reg))

	out := buf.String()
	require.Contains(t, out, "trackstats_rows_loaded_total 42")
	require.Contains(t, out, `trackstats_query_result_rows_total{query="1"} 3`)
	require.Contains(t, out, "# TYPE trackstats_query_duration_seconds histogram")
}
