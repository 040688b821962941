package catalog

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"trackstats/internal/engine"
	"trackstats/internal/metrics"
	"trackstats/internal/models"
)

// Params are the tunable constants of the catalog.
type Params struct {
	StreamThreshold int64 `mapstructure:"stream_threshold"`
	TopEnergy       int   `mapstructure:"top_energy"`
	TopPerArtist    int   `mapstructure:"top_per_artist"`
}

// DefaultParams returns the reference parameters.
func DefaultParams() Params {
	return Params{
		StreamThreshold: 1_000_000_000,
		TopEnergy:       5,
		TopPerArtist:    3,
	}
}

// Validate rejects parameters no query can honor.
func (p Params) Validate() error {
	switch {
	case p.StreamThreshold < 0:
		return errors.Newf("stream threshold must be >= 0, got %d", p.StreamThreshold)
	case p.TopEnergy < 1:
		return errors.Newf("top energy must be >= 1, got %d", p.TopEnergy)
	case p.TopPerArtist < 1:
		return errors.Newf("top per artist must be >= 1, got %d", p.TopPerArtist)
	}
	return nil
}

type Op string

const (
	OpEq Op = "="
	OpGt Op = ">"
	// OpAll selects every row. Through an index it visits every key.
	OpAll Op = "*"
)

// Access is a single-column predicate that selects the rows a query reads.
type Access struct {
	Column engine.Column
	Op     Op
	Value  string
}

func (a Access) String() string {
	if a.Op == OpAll {
		return fmt.Sprintf("all keys of %s", a.Column)
	}
	return fmt.Sprintf("%s %s %s", a.Column, a.Op, a.Value)
}

// Restricts reports whether a selects a subset of the table rather than
// all of it.
func (a Access) Restricts() bool { return a.Op != OpAll }

// ParseAccess builds an access predicate on c from user input. A leading
// ">" selects a range predicate; anything else is an equality.
func ParseAccess(c engine.Column, value string) (Access, error) {
	a := Access{Column: c, Op: OpEq, Value: strings.TrimSpace(value)}
	if rest, ok := strings.CutPrefix(a.Value, ">"); ok {
		if !c.Kind().Numeric() {
			return Access{}, errors.Newf("range access needs a numeric column, %q is not", string(c))
		}
		a.Op, a.Value = OpGt, strings.TrimSpace(rest)
		if _, err := a.Lower(); err != nil {
			return Access{}, err
		}
		return a, nil
	}
	if _, err := engine.ParseKey(c, a.Value); err != nil {
		return Access{}, err
	}
	return a, nil
}

// Lower is the bound of a range predicate.
func (a Access) Lower() (float64, error) {
	v, err := strconv.ParseFloat(a.Value, 64)
	if err != nil || math.IsNaN(v) {
		return 0, errors.Newf("range bound %q is not a number", a.Value)
	}
	return v, nil
}

// AccessOn resolves the predicate a comparison on column c should use.
// An explicit value restricts the query to the matching rows. Without one
// the query's own predicate is used when it is on c, and otherwise every
// row is selected so the query computes exactly what Run does.
func (q *Query) AccessOn(c engine.Column, value string) (Access, error) {
	if value != "" {
		return ParseAccess(c, value)
	}
	if q.Access != nil && q.Access.Column == c {
		return *q.Access, nil
	}
	if _, err := engine.ParseColumn(string(c)); err != nil {
		return Access{}, err
	}
	return Access{Column: c, Op: OpAll}, nil
}

// Query is one catalog entry. Run is a pure function of its frame.
type Query struct {
	ID          int
	Name        string
	Description string
	Columns     []string
	// Access is the predicate the query filters on, if it has one.
	Access *Access

	run func(engine.Frame) ([][]any, error)
}

// Run executes the query over f. Errors carry the query id and name.
func (q *Query) Run(f engine.Frame) (models.Result, error) {
	rows, err := q.run(f)
	if err != nil {
		return models.Result{}, errors.Wrapf(err, "query %d (%s)", q.ID, q.Name)
	}
	if rows == nil {
		rows = [][]any{}
	}
	return models.Result{QueryID: q.ID, Name: q.Name, Columns: q.Columns, Rows: rows}, nil
}

// Catalog is the ordered list of analytical queries.
type Catalog struct {
	params  Params
	queries []*Query
	metrics *metrics.Metrics
}

type Option func(*Catalog)

// WithMetrics records a duration and row count for every Run.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// New builds the catalog with the given parameters.
func New(p Params, opts ...Option) *Catalog {
	c := &Catalog{params: p}
	for _, o := range opts {
		o(c)
	}
	c.queries = build(p)
	return c
}

func (c *Catalog) Params() Params { return c.params }

// All returns the queries in id order.
func (c *Catalog) All() []*Query { return c.queries }

// Get returns query id (1-based).
func (c *Catalog) Get(id int) (*Query, error) {
	if id < 1 || id > len(c.queries) {
		return nil, errors.Newf("unknown query %d, expected 1..%d", id, len(c.queries))
	}
	return c.queries[id-1], nil
}

// Run executes query id over f.
func (c *Catalog) Run(id int, f engine.Frame) (models.Result, error) {
	q, err := c.Get(id)
	if err != nil {
		return models.Result{}, err
	}
	start := time.Now()
	res, err := q.Run(f)
	if err != nil {
		return models.Result{}, err
	}
	c.metrics.ObserveQuery(q.ID, metrics.PathFull, time.Since(start), res.Len())
	return res, nil
}

// RunAll executes every query concurrently over the same read-only frame.
// Results come back in catalog order; on failure the error of the lowest
// failing query id is returned.
func (c *Catalog) RunAll(ctx context.Context, f engine.Frame) ([]models.Result, error) {
	results := make([]models.Result, len(c.queries))
	errs := make([]error, len(c.queries))
	var g errgroup.Group
	for i, q := range c.queries {
		i, q := i, q
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return err
			}
			res, err := c.Run(q.ID, f)
			if err != nil {
				errs[i] = err
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, e := range errs {
			if e != nil {
				return nil, e
			}
		}
		return nil, err
	}
	return results, nil
}
