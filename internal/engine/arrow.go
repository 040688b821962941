package engine

import (
	"io"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/cockroachdb/errors"
)

// arrowBatchRows bounds the size of each exported record batch.
const arrowBatchRows = 64 * 1024

func arrowType(k Kind) arrow.DataType {
	switch k {
	case KindFloat:
		return arrow.PrimitiveTypes.Float64
	case KindCount:
		return arrow.PrimitiveTypes.Int64
	case KindBool:
		return arrow.FixedWidthTypes.Boolean
	}
	return arrow.BinaryTypes.String
}

// ArrowSchema is the Arrow layout of an exported table, one field per column
// in DDL order.
func ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(schema))
	for i, c := range schema {
		fields[i] = arrow.Field{Name: string(c.col), Type: arrowType(c.kind)}
	}
	return arrow.NewSchema(fields, nil)
}

// WriteArrow streams the table to w in Arrow IPC stream format.
func (s *ColumnStore) WriteArrow(w io.Writer) error {
	mem := memory.NewGoAllocator()
	sc := ArrowSchema()

	wr := ipc.NewWriter(w, ipc.WithSchema(sc), ipc.WithAllocator(mem))
	b := array.NewRecordBuilder(mem, sc)
	defer b.Release()

	flush := func() error {
		rec := b.NewRecord()
		defer rec.Release()
		if rec.NumRows() == 0 {
			return nil
		}
		return wr.Write(rec)
	}

	for i := 0; i < s.Len(); i++ {
		r := Row{s: s, i: int32(i)}
		for j, c := range schema {
			switch fb := b.Field(j).(type) {
			case *array.StringBuilder:
				switch v := r.Value(c.col).(type) {
				case string:
					fb.Append(v)
				case interface{ String() string }:
					fb.Append(v.String())
				}
			case *array.Float64Builder:
				fb.Append(r.Value(c.col).(float64))
			case *array.Int64Builder:
				fb.Append(r.Value(c.col).(int64))
			case *array.BooleanBuilder:
				fb.Append(r.Value(c.col).(bool))
			}
		}
		if (i+1)%arrowBatchRows == 0 {
			if err := flush(); err != nil {
				return errors.Wrap(err, "write arrow batch")
			}
		}
	}
	if err := flush(); err != nil {
		return errors.Wrap(err, "write arrow batch")
	}
	return errors.Wrap(wr.Close(), "close arrow writer")
}

// readArrow decodes an Arrow IPC stream into text rows so that it goes
// through the same coercion as CSV and JSON.
func readArrow(r io.Reader, source string, maxRows int) (*rawTable, error) {
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, &MalformedRecordError{Source: source, Err: errors.Wrap(err, "open arrow stream")}
	}
	defer rdr.Release()

	sc := rdr.Schema()
	t := &rawTable{header: make([]string, sc.NumFields())}
	for i, f := range sc.Fields() {
		t.header[i] = f.Name
	}

	for rdr.Next() {
		rec := rdr.Record()
		if n := len(t.rows) + int(rec.NumRows()); tooMany(n, maxRows) {
			return nil, &DatasetTooLargeError{Rows: n, Limit: maxRows, Partial: true}
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			row := make([]string, rec.NumCols())
			for j := range row {
				col := rec.Column(j)
				if col.IsNull(i) {
					continue
				}
				row[j] = col.ValueStr(i)
			}
			t.rows = append(t.rows, row)
		}
	}
	if err := rdr.Err(); err != nil && err != io.EOF {
		return nil, &MalformedRecordError{Source: source, Row: len(t.rows), Err: errors.Wrap(err, "read arrow stream")}
	}
	return t, nil
}
