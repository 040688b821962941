package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"trackstats/internal/catalog"
	"trackstats/internal/report"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	return table
}

// Report prints a scan vs. index comparison for humans.
func Report(w io.Writer, r report.Report) error {
	var b strings.Builder
	if r.Access.Restricts() {
		fmt.Fprintf(&b, "query %d (%s) where %s\n", r.QueryID, r.QueryName, r.Access)
	} else {
		fmt.Fprintf(&b, "query %d (%s) over %s\n", r.QueryID, r.QueryName, r.Access)
	}
	fmt.Fprintf(&b, "  table rows:   %s\n", humanize.Comma(int64(r.TableRows)))
	fmt.Fprintf(&b, "  matched rows: %s\n", humanize.Comma(int64(r.Matched)))
	fmt.Fprintf(&b, "  result rows:  %s\n", humanize.Comma(int64(r.ResultRows)))
	if r.Restricted && r.Matched < r.TableRows {
		b.WriteString("  restricted:   results cover the matched rows only\n")
	}
	if r.Repeat > 1 {
		fmt.Fprintf(&b, "  best of:      %d runs\n", r.Repeat)
	}

	paths := newTable(&b, "path", "access", "time", "note")
	paths.Append([]string{"scan", r.ScanDescriptor, r.ScanTime.String(), ""})
	var note string
	if r.BuildTime > 0 {
		note = fmt.Sprintf("build %v, excluded", r.BuildTime)
	}
	paths.Append([]string{"index", r.IndexDescriptor, r.IndexTime.String(), note})
	paths.Render()

	if s := speedup(r.ScanTime, r.IndexTime); s != "" {
		fmt.Fprintf(&b, "  speedup: %s\n", s)
	}
	fmt.Fprintf(&b, "  consistent: %t (%016x)\n", r.Consistent, r.IndexFingerprint)

	for _, line := range r.SQLBefore {
		fmt.Fprintf(&b, "  sqlite before: %s\n", line)
	}
	for _, line := range r.SQLAfter {
		fmt.Fprintf(&b, "  sqlite after:  %s\n", line)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func speedup(scan, index time.Duration) string {
	if scan <= 0 || index <= 0 {
		return ""
	}
	return humanize.FtoaWithDigits(float64(scan)/float64(index), 1) + "x"
}

// Catalog lists the queries as a table.
func Catalog(w io.Writer, queries []*catalog.Query) error {
	table := newTable(w, "id", "name", "description", "access")
	for _, q := range queries {
		var access string
		if q.Access != nil {
			access = q.Access.String()
		}
		table.Append([]string{strconv.Itoa(q.ID), q.Name, q.Description, access})
	}
	table.Render()
	return nil
}
