package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"energy-dispatch/internal/analysis"
	"energy-dispatch/internal/config"
	"energy-dispatch/internal/engine"
	"energy-dispatch/internal/logging"
	"energy-dispatch/internal/model"
	"energy-dispatch/internal/optimize"
	"energy-dispatch/internal/results"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	log, err := logging.New(os.Getenv("LOG_ENV"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logging.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch os.Args[1] {
	case "solve":
		err = cmdSolve(ctx, os.Args[2:])
	case "export-lp":
		err = cmdExportLP(os.Args[2:])
	case "verify":
		err = cmdVerify(os.Args[2:])
	case "summary":
		err = cmdSummary(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli solve --config examples/system.yaml --out results/ [--solver cbc] [--duals] [--lp model.lp]")
	fmt.Println("  cli export-lp --config examples/system.yaml --out model.lp [--format lp|mps]")
	fmt.Println("  cli verify --config examples/system.yaml")
	fmt.Println("  cli summary --config examples/system.yaml [--limit 10]")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - solve writes flows.csv, scalars.csv and one ledger_<storage>.csv per storage")
	fmt.Println("  - solve runs the post-solve checks; --strict turns violations into a failure")
	fmt.Println("  - summary ranks flows by full-load hours")
}

func cmdSolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML or JSON energy system")
	outDir := fs.String("out", "results", "Output directory")
	solverName := fs.String("solver", "", "Override model.solver")
	duals := fs.Bool("duals", false, "Request bus balance duals")
	lpPath := fs.String("lp", "", "Optional: also write the model in LP format")
	tee := fs.Bool("tee", false, "Stream the solver log to stderr")
	strict := fs.Bool("strict", false, "Fail when a post-solve check is violated")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *solverName != "" {
		cfg.Model.Solver = *solverName
	}
	if *duals {
		cfg.Model.ReceiveDuals = true
	}
	if *tee {
		cfg.Model.SolveKwargs.Tee = true
	}

	es, opts, err := cfg.Build()
	if err != nil {
		return err
	}
	opts.SolveOptions.Output = os.Stderr

	if *lpPath != "" {
		if err := writeModel(es, opts, *lpPath, "lp"); err != nil {
			return err
		}
		fmt.Printf("Wrote LP model to %s\n", *lpPath)
	}

	res, err := engine.New(logging.L()).RunSystem(ctx, es, opts)
	if err != nil {
		return err
	}
	r := res.Results

	// ensure output dir exists
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	if err := results.WriteFlowsCSV(filepath.Join(*outDir, "flows.csv"), r); err != nil {
		return err
	}
	if err := results.WriteScalarsCSV(filepath.Join(*outDir, "scalars.csv"), r); err != nil {
		return err
	}
	labels := make([]string, 0, len(res.Ledgers))
	for label := range res.Ledgers {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		path := filepath.Join(*outDir, "ledger_"+fileSafe(label)+".csv")
		if err := results.WriteLedgerCSV(path, res.Ledgers[label]); err != nil {
			return err
		}
	}

	fmt.Printf("Wrote %d steps of %d flows to %s\n", r.Steps(), len(r.FlowKeys), *outDir)
	fmt.Printf("Status=%s Objective=%.4f Elapsed=%s\n", r.Status, r.Objective, res.Elapsed)
	for _, b := range r.Breakdown {
		fmt.Printf("  %-32s %14.4f\n", b.Block, b.Value)
	}
	if len(labels) > 0 {
		fmt.Printf("Storage value=%.4f\n", res.StorageValue())
	}
	for _, v := range res.Violations {
		fmt.Println("VIOLATION", v.String())
	}
	if *strict && len(res.Violations) > 0 {
		return fmt.Errorf("%d post-solve check(s) failed", len(res.Violations))
	}
	return nil
}

func cmdExportLP(args []string) error {
	fs := flag.NewFlagSet("export-lp", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML or JSON energy system")
	outPath := fs.String("out", "-", "Output path, - for stdout")
	format := fs.String("format", "lp", "lp or mps")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	es, opts, err := cfg.Build()
	if err != nil {
		return err
	}
	return writeModel(es, opts, *outPath, *format)
}

func cmdVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML or JSON energy system")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	es, opts, err := cfg.Build()
	if err != nil {
		return err
	}
	m, err := optimize.Build(es, opts)
	if err != nil {
		return err
	}

	ti := es.TimeIndex
	fmt.Printf("%s: %s\n", displayName(cfg, *cfgPath), es)
	fmt.Printf("steps=%d hours=%.2f periods=%d aggregated=%v\n", ti.N(), ti.TotalHours(), max(ti.NumPeriods(), 1), ti.IsAggregated())
	fmt.Printf("variables=%d constraints=%d mip=%v\n", m.Problem.NumVars(), m.Problem.NumConstraints(), m.Problem.IsMIP())

	g := es.Groups()
	for _, tag := range sortedGroups(g) {
		names := make([]string, 0)
		for _, n := range g.Nodes[tag] {
			names = append(names, n.Label())
		}
		for _, f := range g.Flows[tag] {
			names = append(names, f.Label())
		}
		fmt.Printf("  %-32s %s\n", tag, strings.Join(names, ", "))
	}
	return nil
}

func cmdSummary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML or JSON energy system")
	limit := fs.Int("limit", 0, "Optional: show the first N flows (0=all)")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	res, err := engine.New(logging.L()).Run(ctx, cfg)
	if err != nil {
		return err
	}

	ranked := analysis.RankByFullLoadHours(analysis.Summarize(res.Results))
	if *limit > 0 && *limit < len(ranked) {
		ranked = ranked[:*limit]
	}
	fmt.Printf("%-4s %-36s %-6s %-10s %-10s %-10s %-12s %-8s\n", "rank", "flow", "count", "p05", "p95", "max", "energy", "flh")
	for i, s := range ranked {
		fmt.Printf(
			"%-4d %-36s %-6d %-10.2f %-10.2f %-10.2f %-12.2f %-8.1f\n",
			i+1,
			s.Key.String(),
			s.Count,
			s.P05,
			s.P95,
			s.Max,
			s.Energy,
			s.FullLoadHours,
		)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	return config.Load(path)
}

func writeModel(es *model.EnergySystem, opts optimize.Options, path, format string) error {
	if format != "lp" && format != "mps" {
		return fmt.Errorf("unsupported format %q (want lp or mps)", format)
	}
	m, err := optimize.Build(es, opts)
	if err != nil {
		return err
	}
	var w io.Writer = os.Stdout
	if path != "-" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if format == "mps" {
		return m.WriteMPS(w)
	}
	return m.WriteLP(w)
}

func sortedGroups(g model.Groups) []model.Group {
	seen := map[model.Group]bool{}
	var out []model.Group
	for tag := range g.Nodes {
		seen[tag] = true
		out = append(out, tag)
	}
	for tag := range g.Flows {
		if !seen[tag] {
			out = append(out, tag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func displayName(cfg *config.Config, path string) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return filepath.Base(path)
}

func fileSafe(label string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':', '(', ')', ',':
			return '_'
		}
		return r
	}, label)
}
