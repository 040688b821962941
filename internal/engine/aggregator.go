package engine

import (
	"runtime"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// Number is any column value that can be summed.
type Number interface {
	constraints.Integer | constraints.Float
}

// Group is one bucket of GroupBy. Rows keep load order.
type Group[K comparable] struct {
	Key  K
	Rows []Row
}

// GroupBy buckets the frame by key. Groups come back in order of first
// appearance, so any later stable sort is deterministic.
func GroupBy[K comparable](f Frame, key func(Row) K) []Group[K] {
	pos := make(map[K]int)
	var groups []Group[K]
	f.Each(func(r Row) {
		k := key(r)
		i, ok := pos[k]
		if !ok {
			i = len(groups)
			pos[k] = i
			groups = append(groups, Group[K]{Key: k})
		}
		groups[i].Rows = append(groups[i].Rows, r)
	})
	return groups
}

// Distinct returns the distinct keys of f in order of first appearance.
func Distinct[K comparable](f Frame, key func(Row) K) []K {
	seen := make(map[K]struct{})
	var out []K
	f.Each(func(r Row) {
		k := key(r)
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	})
	return out
}

func Sum[N Number](rows []Row, v func(Row) N) N {
	var total N
	for _, r := range rows {
		total += v(r)
	}
	return total
}

// Max panics on an empty slice; groups are never empty.
func Max[N Number](rows []Row, v func(Row) N) N {
	m := v(rows[0])
	for _, r := range rows[1:] {
		if x := v(r); x > m {
			m = x
		}
	}
	return m
}

func Min[N Number](rows []Row, v func(Row) N) N {
	m := v(rows[0])
	for _, r := range rows[1:] {
		if x := v(r); x < m {
			m = x
		}
	}
	return m
}

// Avg is the mean of v over rows. It refuses to divide by zero.
func Avg[N Number](op string, rows []Row, v func(Row) N) (float64, error) {
	if len(rows) == 0 {
		return 0, &EmptyDatasetError{Op: op}
	}
	return float64(Sum(rows, v)) / float64(len(rows)), nil
}

// SortStable sorts items in place, keeping input order among equal items.
func SortStable[T any](items []T, less func(a, b T) bool) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

// Limit returns at most n leading items.
func Limit[T any](items []T, n int) []T {
	if n >= 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// DenseRank assigns ranks to items already sorted by descending score.
// Equal scores share a rank and the next distinct score gets rank+1.
func DenseRank[T any, N Number](items []T, score func(T) N) []int {
	ranks := make([]int, len(items))
	rank := 0
	for i, it := range items {
		if i == 0 || score(it) != score(items[i-1]) {
			rank++
		}
		ranks[i] = rank
	}
	return ranks
}

// DictCount is the number of frame rows sharing one dictionary value.
type DictCount struct {
	ID    int32
	Value string
	Count int64
}

// CountByDict counts rows per value of a dictionary encoded column.
// Workers fill partial arrays indexed by dictionary id which are then
// summed; no hashing happens in the hot loop. Results are in dictionary id
// order and only include values present in f.
func CountByDict(f Frame, c Column) ([]DictCount, error) {
	if f.Len() == 0 {
		// A zero Frame has no store.
		if _, known := columnKinds[c]; !known || c.Kind() != KindString {
			return nil, errors.Newf("column %q is not dictionary encoded", string(c))
		}
		return nil, nil
	}
	ids, dict, ok := f.store.dict(c)
	if !ok {
		return nil, errors.Newf("column %q is not dictionary encoded", string(c))
	}

	numWorkers := runtime.NumCPU()
	chunkSize := (len(f.rows) + numWorkers - 1) / numWorkers
	results := make(chan []int64, numWorkers)
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, len(f.rows))
		if start >= end {
			break
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			partial := make([]int64, len(dict))
			for _, i := range f.rows[s:e] {
				partial[ids[i]]++
			}
			results <- partial
		}(start, end)
	}

	go func() { wg.Wait(); close(results) }()

	// Merge Phase (Reducer)
	final := make([]int64, len(dict))
	for p := range results {
		for i, n := range p {
			final[i] += n
		}
	}

	out := make([]DictCount, 0, len(dict))
	for id, n := range final {
		if n > 0 {
			out = append(out, DictCount{ID: int32(id), Value: dict[id], Count: n})
		}
	}
	return out, nil
}
