package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"

	"trackstats/internal/models"
)

// Page selects a window of result rows. Limit <= 0 means all rows.
type Page struct {
	Limit  int
	Offset int
}

// window clamps p to total rows and returns the slice bounds.
func (p Page) window(total int) (limit, start, end int) {
	limit = p.Limit
	if limit <= 0 {
		limit = total
	}
	start = p.Offset
	if start < 0 {
		start = 0
	}
	if start >= total {
		return limit, total, total
	}
	end = start + limit
	if end > total {
		end = total
	}
	return limit, start, end
}

// ParseDelimiter accepts a single character, or "tab".
func ParseDelimiter(s string) (rune, error) {
	if s == "tab" || s == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) || r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, errors.Newf("delimiter must be a single character, got %q", s)
	}
	return r, nil
}

// Cell formats one result value for delimited output.
func Cell(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// Table writes the header and the selected rows of res as delimited text.
func Table(w io.Writer, res models.Result, delim rune, p Page) error {
	cw := csv.NewWriter(w)
	cw.Comma = delim

	if err := cw.Write(res.Columns); err != nil {
		return errors.Wrap(err, "write header")
	}
	_, start, end := p.window(len(res.Rows))
	rec := make([]string, len(res.Columns))
	for _, row := range res.Rows[start:end] {
		for i, v := range row {
			rec[i] = Cell(v)
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "write row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush table")
}

type jsonPage struct {
	Query   int      `json:"query"`
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

func toPage(res models.Result, p Page) jsonPage {
	limit, start, end := p.window(len(res.Rows))
	return jsonPage{
		Query:   res.QueryID,
		Name:    res.Name,
		Columns: res.Columns,
		Data:    res.Rows[start:end],
		Total:   len(res.Rows),
		Limit:   limit,
		Offset:  start,
	}
}

// JSON writes one paginated result object.
func JSON(w io.Writer, res models.Result, p Page) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(toPage(res, p)), "encode result")
}

// JSONAll writes an array of paginated results.
func JSONAll(w io.Writer, results []models.Result, p Page) error {
	pages := make([]jsonPage, len(results))
	for i, res := range results {
		pages[i] = toPage(res, p)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(pages), "encode results")
}
