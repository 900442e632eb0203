package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"energy-dispatch/internal/engine"
	"energy-dispatch/internal/logging"
	"energy-dispatch/internal/model"
	"energy-dispatch/internal/optimize"
	"energy-dispatch/internal/results"
	"energy-dispatch/internal/sequence"
	"energy-dispatch/internal/solver"
	"energy-dispatch/internal/timeindex"
)

// Demo:
// - Build a small electricity system in code: PV, a gas plant, grid import,
//   a battery sized by investment and a demand profile
// - Solve it with the configured solver
// - Print the dispatch and the battery ledger to show how the pieces fit
func main() {
	hours := flag.Int("hours", 24, "Number of hourly steps")
	solverName := flag.String("solver", "builtin", "Solver to use")
	outCSV := flag.String("out", "", "Optional path to write the battery ledger CSV (e.g. results/battery.csv)")
	flag.Parse()

	log, err := logging.New(os.Getenv("LOG_ENV"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	es, err := buildSystem(*hours)
	if err != nil {
		panic(err)
	}
	fmt.Println(es)

	opts := optimize.Options{
		Solver:       *solverName,
		SolveOptions: solver.Options{ReceiveDuals: true},
	}
	res, err := engine.New(log).RunSystem(context.Background(), es, opts)
	if err != nil {
		panic(err)
	}
	r := res.Results

	fmt.Printf("status=%s objective=%.2f elapsed=%s\n", r.Status, r.Objective, res.Elapsed)
	if size, ok := r.Variable("battery", "total"); ok {
		fmt.Printf("battery capacity=%.2f MWh\n", size[0])
	}

	pv, _ := r.Flow("pv", "electricity")
	gas, _ := r.Flow("gas_plant", "electricity")
	grid, _ := r.Flow("grid", "electricity")
	demand, _ := r.Flow("electricity", "demand")
	price, _ := r.Dual("electricity")
	ledger := res.Ledgers["battery"]

	fmt.Printf("%-20s %7s %7s %7s %7s %-12s %8s %8s\n", "interval", "pv", "gas", "grid", "demand", "battery", "soc", "price")
	for t := 0; t < r.Steps(); t++ {
		p := math.NaN()
		if price != nil {
			p = price[t]
		}
		fmt.Printf("%-20s %7.2f %7.2f %7.2f %7.2f %-12s %8.2f %8.2f\n",
			r.Timestamps[t].Format("2006-01-02 15:04"),
			pv[t], gas[t], grid[t], demand[t],
			ledger[t].Action, ledger[t].ContentEnd, p)
	}
	fmt.Printf("battery value at bus prices=%.2f\n", res.StorageValue())
	for _, v := range res.Violations {
		fmt.Println("VIOLATION", v.String())
	}

	if *outCSV != "" {
		if err := os.MkdirAll(filepath.Dir(*outCSV), 0o755); err != nil {
			panic(err)
		}
		if err := results.WriteLedgerCSV(*outCSV, ledger); err != nil {
			panic(err)
		}
		fmt.Printf("Wrote %d ledger rows to %s\n", len(ledger), *outCSV)
	}
}

func buildSystem(hours int) (*model.EnergySystem, error) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	ti, err := timeindex.FromTimestamps(timeindex.Range(start, hours, time.Hour), true)
	if err != nil {
		return nil, err
	}

	pvProfile := make([]float64, hours)
	loadProfile := make([]float64, hours)
	gridPrice := make([]float64, hours)
	for t := range pvProfile {
		h := float64(t % 24)
		pvProfile[t] = math.Max(0, math.Sin((h-6)/12*math.Pi))
		loadProfile[t] = 0.6 + 0.4*math.Max(0, math.Sin((h-12)/12*math.Pi))
		gridPrice[t] = 40 + 60*loadProfile[t]
	}

	el := model.NewBus("electricity")
	gasBus := model.NewBus("gas")

	pv, err := model.NewSource("pv", model.Connect(el, &model.Flow{
		NominalCapacity: 60,
		Max:             sequence.FromSlice(pvProfile),
	}))
	if err != nil {
		return nil, err
	}
	gasSupply, err := model.NewSource("gas_supply", model.Connect(gasBus, &model.Flow{
		VariableCosts: sequence.Scalar(30),
	}))
	if err != nil {
		return nil, err
	}
	plant, err := model.NewConverter("gas_plant",
		[]model.Port{model.Connect(gasBus, &model.Flow{})},
		[]model.Port{model.Connect(el, &model.Flow{
			NominalCapacity: 30,
			Min:             sequence.Scalar(0.4),
			NonConvex: &model.NonConvex{
				StartupCosts:  sequence.Scalar(200),
				MinimumUptime: 3,
			},
		})},
		map[model.Node]sequence.Sequence{el: sequence.Scalar(0.5)},
	)
	if err != nil {
		return nil, err
	}
	grid, err := model.NewSource("grid", model.Connect(el, &model.Flow{
		NominalCapacity: 25,
		VariableCosts:   sequence.FromSlice(gridPrice),
	}))
	if err != nil {
		return nil, err
	}
	demand, err := model.NewSink("demand", model.Connect(el, &model.Flow{
		NominalCapacity: 50,
		Fix:             sequence.FromSlice(loadProfile),
	}))
	if err != nil {
		return nil, err
	}
	excess, err := model.NewSink("curtailment", model.Connect(el, &model.Flow{}))
	if err != nil {
		return nil, err
	}

	battery, err := model.NewGenericStorage("battery", model.StorageParams{
		Investment: &model.Investment{
			EPCosts: sequence.Scalar(2),
			Maximum: sequence.Scalar(200),
		},
		InitialStorageLevel:          sequence.Scalar(0.5),
		Balanced:                     true,
		LossRate:                     sequence.Scalar(0.001),
		InflowConversionFactor:       sequence.Scalar(0.95),
		OutflowConversionFactor:      sequence.Scalar(0.95),
		InvestRelationInputCapacity:  sequence.Scalar(0.25),
		InvestRelationOutputCapacity: sequence.Scalar(0.25),
	},
		[]model.Port{model.Connect(el, &model.Flow{Investment: &model.Investment{}})},
		[]model.Port{model.Connect(el, &model.Flow{Investment: &model.Investment{}})},
	)
	if err != nil {
		return nil, err
	}

	es := model.NewEnergySystem(ti)
	if err := es.Add(el, gasBus, pv, gasSupply, plant, grid, demand, excess, battery); err != nil {
		return nil, err
	}
	return es, nil
}
