package schedule

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/bhkw/core/milp"
	"github.com/kilianp07/bhkw/core/model"
)

// ErrNoAssignment is returned when a solution carries no variable values.
var ErrNoAssignment = errors.New("solution has no assignment")

// Extract reads the solved value of every variable into one row per step.
// Binary values are rounded to 0 or 1.
func Extract(m *Model, sol milp.Solution, clock model.Clock) ([]model.Row, error) {
	if !sol.Status.HasSolution() {
		return nil, fmt.Errorf("%w: status %s", ErrNoAssignment, sol.Status)
	}
	if len(sol.Values) != m.Problem.NumVars() {
		return nil, fmt.Errorf("%w: got %d values for %d variables", ErrNoAssignment, len(sol.Values), m.Problem.NumVars())
	}
	rows := make([]model.Row, len(m.Series))
	for i, st := range m.Series {
		rows[i] = model.Row{
			Step:                        st,
			Time:                        clock.At(st.ID),
			Online:                      math.Round(sol.Value(m.Online[i])),
			Gas:                         sol.Value(m.Gas[i]),
			Power:                       sol.Value(m.Power[i]),
			Heat:                        sol.Value(m.Heat[i]),
			Helper:                      sol.Value(m.Helper[i]),
			PayCapacityPrice:            sol.Value(m.PayCapacityPrice[i]),
			AdditionalCapacityAllowance: sol.Value(m.AdditionalCapacityAllowance[i]),
			CapacityAllowance:           sol.Value(m.CapacityAllowance[i]),
		}
	}
	return rows, nil
}
