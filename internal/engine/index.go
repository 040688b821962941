package engine

import (
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
	"github.com/labstack/gommon/log"

	"trackstats/internal/models"
)

// Index is an in-memory index on a single column: value -> row positions.
// Numeric columns additionally keep an ordered tree for range lookups.
type Index struct {
	Column Column
	Data   map[any][]int32
	tree   *btree.BTreeG[rangeEntry]
}

type rangeEntry struct {
	Value float64
	Rows  []int32
}

// Keys returns the number of distinct indexed values.
func (ix *Index) Keys() int { return len(ix.Data) }

// BuildIndex builds the index on c if it does not exist yet. Calling it again
// returns the existing index untouched.
func (s *ColumnStore) BuildIndex(c Column) (*Index, error) {
	if _, ok := columnKinds[c]; !ok {
		return nil, errors.Wrapf(ErrUnknownColumn, "build index %q", string(c))
	}

	s.mu.RLock()
	ix, ok := s.indexes[c]
	s.mu.RUnlock()
	if ok {
		return ix, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ix, ok := s.indexes[c]; ok {
		return ix, nil
	}

	start := time.Now()
	ix = &Index{Column: c, Data: make(map[any][]int32)}
	for i := 0; i < s.Len(); i++ {
		key := Row{s: s, i: int32(i)}.Value(c)
		ix.Data[key] = append(ix.Data[key], int32(i))
	}
	if c.Kind().Numeric() {
		ix.tree = btree.NewG(32, func(a, b rangeEntry) bool { return a.Value < b.Value })
		for key, rows := range ix.Data {
			var v float64
			switch k := key.(type) {
			case float64:
				v = k
			case int64:
				v = float64(k)
			}
			// Distinct int64 keys above 2^53 may collide as float64.
			if prev, ok := ix.tree.Get(rangeEntry{Value: v}); ok {
				rows = mergeRows(prev.Rows, rows)
			}
			ix.tree.ReplaceOrInsert(rangeEntry{Value: v, Rows: rows})
		}
	}

	if s.indexes == nil {
		s.indexes = make(map[Column]*Index)
	}
	s.indexes[c] = ix
	log.Debugf("Index built on %s: %d keys over %d rows in %v", c, ix.Keys(), s.Len(), time.Since(start))
	return ix, nil
}

// HasIndex reports whether c is indexed.
func (s *ColumnStore) HasIndex(c Column) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[c]
	return ok
}

// Index returns the built index on c or a NoIndexError.
func (s *ColumnStore) Index(c Column) (*Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ix, ok := s.indexes[c]
	if !ok {
		return nil, &NoIndexError{Column: c}
	}
	return ix, nil
}

// LookupFrame selects the rows whose column c equals the raw value via the
// index on c.
func (s *ColumnStore) LookupFrame(c Column, raw string) (Frame, error) {
	key, err := parseKey(c, raw)
	if err != nil {
		return Frame{}, &MalformedRecordError{Source: "lookup", Column: string(c), Value: raw, Err: err}
	}
	return s.LookupKey(c, key)
}

// LookupKey is LookupFrame for an already typed key.
func (s *ColumnStore) LookupKey(c Column, key any) (Frame, error) {
	ix, err := s.Index(c)
	if err != nil {
		return Frame{}, err
	}
	return Frame{store: s, rows: ix.Data[key]}, nil
}

// IndexedLookup returns matching rows in load order using the index on c.
func (s *ColumnStore) IndexedLookup(c Column, raw string) ([]models.Track, error) {
	f, err := s.LookupFrame(c, raw)
	if err != nil {
		return nil, err
	}
	return f.Tracks(), nil
}

// RangeFrame selects rows whose numeric column c is strictly greater than
// lower, walking the ordered index on c.
func (s *ColumnStore) RangeFrame(c Column, lower float64) (Frame, error) {
	ix, err := s.Index(c)
	if err != nil {
		return Frame{}, err
	}
	if ix.tree == nil {
		return Frame{}, errors.Newf("column %q is not numeric, no range index", string(c))
	}
	var rows []int32
	ix.tree.AscendGreaterOrEqual(rangeEntry{Value: lower}, func(e rangeEntry) bool {
		if e.Value > lower {
			rows = append(rows, e.Rows...)
		}
		return true
	})
	slices.Sort(rows)
	return Frame{store: s, rows: rows}, nil
}

// TraverseFrame selects every row by visiting all keys of the index on c,
// ascending through the tree for numeric columns. Positions are returned in
// load order.
func (s *ColumnStore) TraverseFrame(c Column) (Frame, error) {
	ix, err := s.Index(c)
	if err != nil {
		return Frame{}, err
	}
	rows := make([]int32, 0, s.Len())
	if ix.tree != nil {
		ix.tree.Ascend(func(e rangeEntry) bool {
			rows = append(rows, e.Rows...)
			return true
		})
	} else {
		for _, r := range ix.Data {
			rows = append(rows, r...)
		}
	}
	slices.Sort(rows)
	return Frame{store: s, rows: rows}, nil
}

// RangeLookup returns rows whose column c exceeds lower, in load order.
func (s *ColumnStore) RangeLookup(c Column, lower float64) ([]models.Track, error) {
	f, err := s.RangeFrame(c, lower)
	if err != nil {
		return nil, err
	}
	return f.Tracks(), nil
}

// mergeRows merges two ascending position lists.
func mergeRows(a, b []int32) []int32 {
	out := make([]int32, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// ParseKey exposes value coercion for callers building predicates.
func ParseKey(c Column, raw string) (any, error) {
	if _, ok := columnKinds[c]; !ok {
		return nil, errors.Wrapf(ErrUnknownColumn, "%q", string(c))
	}
	key, err := parseKey(c, raw)
	if err != nil {
		return nil, &MalformedRecordError{Source: "value", Column: string(c), Value: raw, Err: err}
	}
	return key, nil
}
