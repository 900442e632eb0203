package results

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

// WriteFlowsCSV writes one row per step with a column per flow and per
// bus dual.
func WriteFlowsCSV(path string, r *Results) error {
	return writeFile(path, func(w io.Writer) error { return FlowsCSV(w, r) })
}

// FlowsCSV streams the flow table to w.
func FlowsCSV(out io.Writer, r *Results) error {
	w := csv.NewWriter(out)

	buses := r.SortedDualBuses()
	header := []string{"index", "interval_start_utc", "duration_h"}
	for _, k := range r.FlowKeys {
		header = append(header, k.String())
	}
	for _, b := range buses {
		header = append(header, "dual:"+b)
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for t := 0; t < r.Steps(); t++ {
		var start time.Time
		if t < len(r.Timestamps) {
			start = r.Timestamps[t]
		}
		row := []string{
			strconv.Itoa(t),
			fmtTime(start),
			fmtFloat(r.Increments[t]),
		}
		for _, k := range r.FlowKeys {
			row = append(row, fmtFloat(r.Flows[k][t]))
		}
		for _, b := range buses {
			row = append(row, fmtFloat(r.Duals[b][t]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// WriteScalarsCSV writes the objective, its breakdown and every
// non-flow series in long format.
func WriteScalarsCSV(path string, r *Results) error {
	return writeFile(path, func(w io.Writer) error { return ScalarsCSV(w, r) })
}

func ScalarsCSV(out io.Writer, r *Results) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"owner", "variable", "index", "position", "value"}); err != nil {
		return err
	}
	if err := w.Write([]string{"", "objective", "scalar", "0", fmtFloat(r.Objective)}); err != nil {
		return err
	}
	for _, c := range r.Breakdown {
		if err := w.Write([]string{c.Block, "objective", "scalar", "0", fmtFloat(c.Value)}); err != nil {
			return err
		}
	}
	for _, s := range r.Series {
		for i, v := range s.Values {
			row := []string{s.Owner, s.Name, s.Index.String(), strconv.Itoa(i), fmtFloat(v)}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}

	w.Flush()
	return w.Error()
}

// WriteLedgerCSV writes storage ledger rows.
func WriteLedgerCSV(path string, ledger []LedgerRow) error {
	return writeFile(path, func(out io.Writer) error {
		w := csv.NewWriter(out)

		header := []string{
			"index",
			"interval_start_utc",
			"storage",
			"bus",
			"price",
			"action",
			"inflow",
			"outflow",
			"energy_in",
			"energy_out",
			"content_start",
			"content_end",
			"value",
			"cum_value",
		}
		if err := w.Write(header); err != nil {
			return err
		}

		for _, r := range ledger {
			row := []string{
				strconv.Itoa(r.Index),
				fmtTime(r.IntervalStart),
				r.Storage,
				r.Bus,
				fmtFloat(r.Price),
				string(r.Action),
				fmtFloat(r.Inflow),
				fmtFloat(r.Outflow),
				fmtFloat(r.EnergyIn),
				fmtFloat(r.EnergyOut),
				fmtFloat(r.ContentStart),
				fmtFloat(r.ContentEnd),
				fmtFloat(r.Value),
				fmtFloat(r.CumValue),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}

		w.Flush()
		return w.Error()
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
