package report

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/labstack/gommon/log"
	"github.com/zeebo/xxh3"

	"trackstats/internal/catalog"
	"trackstats/internal/engine"
	"trackstats/internal/metrics"
	"trackstats/internal/models"
)

// Report is the outcome of running one query over both access paths.
type Report struct {
	QueryID   int
	QueryName string
	Access    catalog.Access

	TableRows int
	// Restricted is set when Access narrows the query to rows it would not
	// select on its own, so results may differ from a plain run.
	Restricted bool
	Matched    int
	ResultRows int
	Repeat     int

	ScanTime        time.Duration
	IndexTime       time.Duration
	BuildTime       time.Duration // zero when the index already existed
	ScanDescriptor  string
	IndexDescriptor string

	ScanFingerprint  uint64
	IndexFingerprint uint64
	Consistent       bool

	// SQLite plans for the same predicate, when a planner is attached.
	SQLBefore []string
	SQLAfter  []string
}

// Planner produces a real engine's plan for a predicate before and after
// indexing its column.
type Planner interface {
	PlanBeforeAfter(ctx context.Context, a catalog.Access) (before, after []string, err error)
}

// Reporter times scan and index access paths for catalog queries.
type Reporter struct {
	repeat  int
	metrics *metrics.Metrics
	planner Planner
}

type Option func(*Reporter)

// WithRepeat runs each path n times and keeps the fastest.
func WithRepeat(n int) Option {
	return func(r *Reporter) {
		if n > 0 {
			r.repeat = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option { return func(r *Reporter) { r.metrics = m } }

// WithPlanner attaches a planner whose EXPLAIN output is added to reports.
func WithPlanner(p Planner) Option { return func(r *Reporter) { r.planner = p } }

func New(opts ...Option) *Reporter {
	r := &Reporter{repeat: 1}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Compare runs q twice over the rows of s selected by a: once through a
// sequential scan and once through the index on a.Column. The index is
// built first if needed and its build time is kept out of IndexTime.
func (r *Reporter) Compare(ctx context.Context, q *catalog.Query, s *engine.ColumnStore, a catalog.Access) (Report, error) {
	pred, err := predicate(a)
	if err != nil {
		return Report{}, errors.Wrapf(err, "compare query %d", q.ID)
	}

	rep := Report{
		QueryID:         q.ID,
		QueryName:       q.Name,
		Access:          a,
		TableRows:       s.Len(),
		Restricted:      a.Restricts() && (q.Access == nil || *q.Access != a),
		Repeat:          r.repeat,
		ScanDescriptor:  fmt.Sprintf("sequential scan over %d rows", s.Len()),
		IndexDescriptor: fmt.Sprintf("index lookup on %s", a.Column),
	}

	// 1. Scan path
	var scanRes models.Result
	rep.ScanTime, err = r.best(func() error {
		var err error
		f := s.All()
		if pred != nil {
			f = f.Filter(pred)
		}
		scanRes, err = q.Run(f)
		return err
	})
	if err != nil {
		return Report{}, err
	}
	r.metrics.ObserveQuery(q.ID, metrics.PathScan, rep.ScanTime, scanRes.Len())

	// 2. Index build, untimed for the query
	if !s.HasIndex(a.Column) {
		start := time.Now()
		if _, err := s.BuildIndex(a.Column); err != nil {
			return Report{}, errors.Wrapf(err, "compare query %d", q.ID)
		}
		rep.BuildTime = time.Since(start)
		r.metrics.ObserveIndexBuild(string(a.Column))
	}

	// 3. Index path
	var indexRes models.Result
	rep.IndexTime, err = r.best(func() error {
		f, err := lookup(s, a)
		if err != nil {
			return err
		}
		rep.Matched = f.Len()
		indexRes, err = q.Run(f)
		return err
	})
	if err != nil {
		return Report{}, err
	}
	r.metrics.ObserveQuery(q.ID, metrics.PathIndex, rep.IndexTime, indexRes.Len())

	rep.ResultRows = indexRes.Len()
	rep.ScanFingerprint = Fingerprint(scanRes)
	rep.IndexFingerprint = Fingerprint(indexRes)
	rep.Consistent = rep.ScanFingerprint == rep.IndexFingerprint

	if r.planner != nil {
		rep.SQLBefore, rep.SQLAfter, err = r.planner.PlanBeforeAfter(ctx, a)
		if err != nil {
			return Report{}, errors.Wrap(err, "sqlite plan")
		}
	}

	log.Infof("Compare complete. Query: %d. Access: %s. Scan: %v. Index: %v (build %v).",
		q.ID, a, rep.ScanTime, rep.IndexTime, rep.BuildTime)
	return rep, nil
}

// best runs fn r.repeat times and returns the shortest duration.
func (r *Reporter) best(fn func() error) (time.Duration, error) {
	var fastest time.Duration
	for i := 0; i < r.repeat; i++ {
		start := time.Now()
		if err := fn(); err != nil {
			return 0, err
		}
		if d := time.Since(start); i == 0 || d < fastest {
			fastest = d
		}
	}
	return fastest, nil
}

// predicate returns the scan filter for a, nil when every row is kept.
func predicate(a catalog.Access) (func(engine.Row) bool, error) {
	switch a.Op {
	case catalog.OpAll:
		if _, err := engine.ParseColumn(string(a.Column)); err != nil {
			return nil, err
		}
		return nil, nil
	case catalog.OpEq:
		key, err := engine.ParseKey(a.Column, a.Value)
		if err != nil {
			return nil, err
		}
		return engine.Equals(a.Column, key), nil
	case catalog.OpGt:
		if !a.Column.Kind().Numeric() {
			return nil, errors.Newf("range access needs a numeric column, %q is not", string(a.Column))
		}
		lower, err := a.Lower()
		if err != nil {
			return nil, err
		}
		return engine.GreaterThan(a.Column, lower), nil
	}
	return nil, errors.Newf("unsupported operator %q", string(a.Op))
}

func lookup(s *engine.ColumnStore, a catalog.Access) (engine.Frame, error) {
	switch a.Op {
	case catalog.OpAll:
		return s.TraverseFrame(a.Column)
	case catalog.OpGt:
		lower, err := a.Lower()
		if err != nil {
			return engine.Frame{}, err
		}
		return s.RangeFrame(a.Column, lower)
	}
	return s.LookupFrame(a.Column, a.Value)
}

// Fingerprint hashes a result's columns and cells in order.
func Fingerprint(res models.Result) uint64 {
	h := xxh3.New()
	for _, c := range res.Columns {
		fmt.Fprintf(h, "%s\x1f", c)
	}
	for _, row := range res.Rows {
		h.WriteString("\x1e")
		for _, cell := range row {
			fmt.Fprintf(h, "%T:%v\x1f", cell, cell)
		}
	}
	return h.Sum64()
}
