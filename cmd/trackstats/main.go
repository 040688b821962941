package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/cockroachdb/errors"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"trackstats/internal/config"
	"trackstats/internal/engine"
	"trackstats/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitCode(err)
	}
	return 0
}

// exitCode is 2 for operational failures (missing index, empty aggregate,
// row guard) and 1 for bad input and everything else.
func exitCode(err error) int {
	if engine.IsRecoverable(err) {
		return 2
	}
	return 1
}

// app carries state shared by the commands of one invocation.
type app struct {
	stdout, stderr io.Writer

	configPath string
	cfg        config.Config
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trackstats",
		Short:         "Analytical queries over a music tracks table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if !a.cfg.Metrics {
				return nil
			}
			return metrics.Dump(a.stderr, a.registry)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ./trackstats.yaml if present)")
	pf.String("source", "", "fixture file (csv, json or arrow), also read from trackstats.yaml or TRACKSTATS_SOURCE; required unless --generate is set")
	pf.String("format", string(engine.FormatAuto), "fixture format: auto|csv|json|arrow")
	pf.Int("generate", 0, "use N synthetic rows instead of --source")
	pf.Uint64("seed", 1, "seed for --generate")
	pf.Int("max-rows", engine.DefaultMaxRows, "refuse to load more rows (0 disables)")
	pf.Int("workers", 0, "parallel decode workers (0 = NumCPU)")
	pf.String("log-level", "info", "debug|info|warn|error|off")
	pf.Bool("metrics", false, "dump Prometheus metrics to stderr on exit")

	root.AddCommand(a.runCmd(), a.compareCmd(), a.catalogCmd(), a.exportCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	lvl, _ := cfg.Level()
	log.SetOutput(a.stderr)
	log.SetHeader("${time_rfc3339} ${level}")
	log.SetLevel(lvl)

	a.cfg = cfg
	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.NewMetrics(a.registry)
	return nil
}

// loadStore builds the table from --generate or --source.
func (a *app) loadStore() (*engine.ColumnStore, error) {
	var (
		store *engine.ColumnStore
		err   error
	)
	switch {
	case a.cfg.Generate > 0:
		log.Infof("Generating %d rows (seed %d)...", a.cfg.Generate, a.cfg.Seed)
		store, err = engine.LoadGenerated(a.cfg.Generate, a.cfg.Seed, a.cfg.LoadOptions()...)
	case a.cfg.Source != "":
		store, err = engine.LoadFile(a.cfg.Source, a.cfg.LoadOptions()...)
	default:
		return nil, errors.New("no data: pass --source <file> or --generate N, or set source in trackstats.yaml or TRACKSTATS_SOURCE")
	}
	if err != nil {
		return nil, err
	}
	a.metrics.ObserveLoad(store.Len())
	return store, nil
}
