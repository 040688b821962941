package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"

	"trackstats/internal/catalog"
	"trackstats/internal/engine"
	"trackstats/internal/models"
	"trackstats/internal/render"
	"trackstats/internal/report"
	"trackstats/internal/sqlmirror"
)

func (a *app) newCatalog() *catalog.Catalog {
	return catalog.New(a.cfg.Catalog, catalog.WithMetrics(a.metrics))
}

func parseQueryID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Newf("query id must be 1..13 or all, got %q", s)
	}
	return id, nil
}

func (a *app) page() render.Page {
	return render.Page{Limit: a.cfg.Limit, Offset: a.cfg.Offset}
}

// --- run ---

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <query-id|all>",
		Short: "Run one catalog query, or all of them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all := strings.EqualFold(args[0], "all")
			var id int
			if !all {
				var err error
				if id, err = parseQueryID(args[0]); err != nil {
					return err
				}
			}

			store, err := a.loadStore()
			if err != nil {
				return err
			}
			cat := a.newCatalog()

			var results []models.Result
			if all {
				if results, err = cat.RunAll(cmd.Context(), store.All()); err != nil {
					return err
				}
			} else {
				res, err := cat.Run(id, store.All())
				if err != nil {
					return err
				}
				results = []models.Result{res}
			}
			return a.writeResults(results, all)
		},
	}
	f := cmd.Flags()
	f.String("output", "table", "table|json")
	f.String("delimiter", ",", "field delimiter for table output (\"tab\" for tabs)")
	f.Int("limit", 0, "print at most N rows per query (0 = all)")
	f.Int("offset", 0, "skip the first N rows")
	return cmd
}

func (a *app) writeResults(results []models.Result, many bool) error {
	if a.cfg.Output == "json" {
		if many {
			return render.JSONAll(a.stdout, results, a.page())
		}
		return render.JSON(a.stdout, results[0], a.page())
	}

	delim, err := render.ParseDelimiter(a.cfg.Delimiter)
	if err != nil {
		return err
	}
	for i, res := range results {
		if many {
			if i > 0 {
				fmt.Fprintln(a.stdout)
			}
			fmt.Fprintf(a.stdout, "# %d %s (%d rows)\n", res.QueryID, res.Name, res.Len())
		}
		if err := render.Table(a.stdout, res, delim, a.page()); err != nil {
			return err
		}
	}
	return nil
}

// --- compare ---

func (a *app) compareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <query-id>",
		Short: "Time a query over a sequential scan and over an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQueryID(args[0])
			if err != nil {
				return err
			}
			q, err := a.newCatalog().Get(id)
			if err != nil {
				return err
			}
			if a.cfg.Index == "" {
				return errors.New("compare needs --index <column>")
			}
			col, err := engine.ParseColumn(a.cfg.Index)
			if err != nil {
				return err
			}
			access, err := q.AccessOn(col, a.cfg.Value)
			if err != nil {
				return err
			}

			store, err := a.loadStore()
			if err != nil {
				return err
			}

			opts := []report.Option{report.WithRepeat(a.cfg.Repeat), report.WithMetrics(a.metrics)}
			if a.cfg.SQL {
				m, err := sqlmirror.Open(cmd.Context(), store)
				if err != nil {
					return err
				}
				defer m.Close()
				opts = append(opts, report.WithPlanner(m))
			}

			rep, err := report.New(opts...).Compare(cmd.Context(), q, store, access)
			if err != nil {
				return err
			}
			if !rep.Consistent {
				log.Warnf("scan and index results differ for query %d", q.ID)
			}
			return render.Report(a.stdout, rep)
		},
	}
	f := cmd.Flags()
	f.String("index", "", "column to index, e.g. artist or licensed")
	f.String("value", "", "restrict both paths to rows matching this value; prefix with > for a range on numeric columns")
	f.Int("repeat", 1, "run each path N times and keep the fastest")
	f.Bool("sql", false, "also show SQLite EXPLAIN QUERY PLAN before and after indexing")
	return cmd
}

// --- catalog ---

func (a *app) catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the catalog queries",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return render.Catalog(a.stdout, a.newCatalog().All())
		},
	}
}

// --- export ---

func (a *app) exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the loaded table as an Arrow IPC stream",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if a.cfg.Out == "" {
				return errors.New("export needs --out <file>")
			}
			store, err := a.loadStore()
			if err != nil {
				return err
			}

			f, err := os.Create(a.cfg.Out)
			if err != nil {
				return errors.Wrap(err, "create export file")
			}
			if err := store.WriteArrow(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return errors.Wrap(err, "close export file")
			}
			log.Infof("Exported %d rows to %s", store.Len(), a.cfg.Out)
			return nil
		},
	}
	cmd.Flags().String("out", "", "destination file")
	return cmd
}
