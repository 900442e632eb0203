package model

// Action is a human-friendly operating mode of a storage for a timestep.
// Keep these values stable; they are intended for CSV output.
type Action string

const (
	ActionCharging    Action = "CHARGING"
	ActionIdle        Action = "IDLE"
	ActionDischarging Action = "DISCHARGING"
)

// ActionFromNetFlow classifies a storage step by outflow minus inflow.
// Magnitudes below tol count as idle.
func ActionFromNetFlow(net, tol float64) Action {
	switch {
	case net < -tol:
		return ActionCharging
	case net > tol:
		return ActionDischarging
	default:
		return ActionIdle
	}
}
