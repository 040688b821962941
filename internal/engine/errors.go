package engine

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// MalformedRecordError reports a source row that failed type coercion or
// violated a schema invariant. Load aborts and no table is exposed.
type MalformedRecordError struct {
	Source string
	Row    int // 1-based data row, header excluded; 0 for header problems
	Column string
	Value  string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	src := e.Source
	if src == "" {
		src = "input"
	}
	switch {
	case e.Row == 0:
		return fmt.Sprintf("malformed %s: column %q: %v", src, e.Column, e.Err)
	case e.Column == "":
		return fmt.Sprintf("malformed record in %s at row %d: %v", src, e.Row, e.Err)
	}
	return fmt.Sprintf("malformed record in %s at row %d: column %q value %q: %v",
		src, e.Row, e.Column, e.Value, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// NoIndexError is returned by lookups on a column that has no index.
// Building the index first makes the lookup succeed.
type NoIndexError struct {
	Column Column
}

func (e *NoIndexError) Error() string {
	return fmt.Sprintf("no index on column %q", string(e.Column))
}

// EmptyDatasetError is returned by global aggregates over zero matching rows.
type EmptyDatasetError struct {
	Op string
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("%s: aggregate over empty dataset", e.Op)
}

// DatasetTooLargeError is returned when a load exceeds the row guard.
type DatasetTooLargeError struct {
	Rows  int
	Limit int
	// Partial means reading stopped early and Rows is only a lower bound.
	Partial bool
}

func (e *DatasetTooLargeError) Error() string {
	if e.Partial {
		return fmt.Sprintf("dataset has more than %d rows, limit is %d", e.Limit, e.Limit)
	}
	return fmt.Sprintf("dataset has %d rows, limit is %d", e.Rows, e.Limit)
}

// ErrUnknownColumn is returned for column names outside the schema.
var ErrUnknownColumn = errors.New("unknown column")

// IsRecoverable reports whether err is one of the engine's operational
// failures (missing index, empty aggregate, row guard) rather than bad input.
func IsRecoverable(err error) bool {
	var noIdx *NoIndexError
	var empty *EmptyDatasetError
	var tooLarge *DatasetTooLargeError
	return errors.As(err, &noIdx) || errors.As(err, &empty) || errors.As(err, &tooLarge)
}
