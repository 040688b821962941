package metrics

import (
	"io"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Access path labels for QueryDuration.
const (
	PathFull  = "full"
	PathScan  = "scan"
	PathIndex = "index"
)

// Metrics holds all Prometheus metrics for a trackstats session.
type Metrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryRows     *prometheus.CounterVec
	RowsLoaded    prometheus.Counter
	IndexBuilds   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	queryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trackstats_query_duration_seconds",
		Help:    "Catalog query latency by access path",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 12),
	}, []string{"query", "path"})

	queryRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackstats_query_result_rows_total",
		Help: "Total result rows produced per catalog query",
	}, []string{"query"})

	rowsLoaded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trackstats_rows_loaded_total",
		Help: "Total rows loaded into the column store",
	})

	indexBuilds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackstats_index_builds_total",
		Help: "Index builds per column",
	}, []string{"column"})

	reg.MustRegister(queryDuration, queryRows, rowsLoaded, indexBuilds)

	return &Metrics{
		QueryDuration: queryDuration,
		QueryRows:     queryRows,
		RowsLoaded:    rowsLoaded,
		IndexBuilds:   indexBuilds,
	}
}

// ObserveQuery records one query execution. A nil receiver is a no-op so
// callers can run without metrics.
func (m *Metrics) ObserveQuery(queryID int, path string, d time.Duration, rows int) {
	if m == nil {
		return
	}
	id := strconv.Itoa(queryID)
	m.QueryDuration.WithLabelValues(id, path).Observe(d.Seconds())
	m.QueryRows.WithLabelValues(id).Add(float64(rows))
}

func (m *Metrics) ObserveLoad(rows int) {
	if m == nil {
		return
	}
	m.RowsLoaded.Add(float64(rows))
}

func (m *Metrics) ObserveIndexBuild(column string) {
	if m == nil {
		return
	}
	m.IndexBuilds.WithLabelValues(column).Inc()
}

// Dump writes every gathered family in the text exposition format.
func Dump(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.Wrapf(err, "write metric family %s", mf.GetName())
		}
	}
	return nil
}
