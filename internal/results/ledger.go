package results

import (
	"fmt"
	"time"

	"energy-dispatch/internal/model"
)

// LedgerRow is one step of a storage's operation.
type LedgerRow struct {
	Index         int
	IntervalStart time.Time

	Storage string
	Bus     string

	// Price is the dual of the bus the storage discharges to, 0 without duals.
	Price float64

	Action model.Action

	Inflow  float64
	Outflow float64

	EnergyIn  float64
	EnergyOut float64

	ContentStart float64
	ContentEnd   float64

	Value    float64
	CumValue float64
}

// idleTolerance separates idle steps from solver noise.
const idleTolerance = 1e-6

// StorageLedger lays out the charge and discharge of storage s step by step.
func StorageLedger(r *Results, s *model.GenericStorage) ([]LedgerRow, error) {
	label := s.Label()
	content, ok := r.Variable(label, "storage_content")
	if !ok {
		return nil, fmt.Errorf("%s: no storage content in results", label)
	}
	if len(content) != r.Steps()+1 {
		return nil, fmt.Errorf("%s: storage content has %d points for %d steps", label, len(content), r.Steps())
	}

	zero := make([]float64, r.Steps())
	in, out := zero, zero
	if f := s.InputFlow(); f != nil {
		if v, ok := r.Flow(f.From().Label(), label); ok {
			in = v
		}
	}
	var bus string
	if f := s.OutputFlow(); f != nil {
		bus = f.To().Label()
		if v, ok := r.Flow(label, bus); ok {
			out = v
		}
	}
	price, hasPrice := r.Dual(bus)

	ledger := make([]LedgerRow, r.Steps())
	cum := 0.0
	for t := range ledger {
		tau := r.Increments[t]
		row := LedgerRow{
			Index:        t,
			Storage:      label,
			Bus:          bus,
			Action:       model.ActionFromNetFlow(out[t]-in[t], idleTolerance),
			Inflow:       in[t],
			Outflow:      out[t],
			EnergyIn:     in[t] * tau,
			EnergyOut:    out[t] * tau,
			ContentStart: content[t],
			ContentEnd:   content[t+1],
		}
		if t < len(r.Timestamps) {
			row.IntervalStart = r.Timestamps[t]
		}
		if hasPrice {
			row.Price = price[t]
			row.Value = price[t] * (row.EnergyOut - row.EnergyIn)
		}
		cum += row.Value
		row.CumValue = cum
		ledger[t] = row
	}
	return ledger, nil
}
