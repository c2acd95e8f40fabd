package schedule

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/bhkw/core/model"
)

// ErrInconsistentSchedule wraps every property violation found by CheckRows.
var ErrInconsistentSchedule = errors.New("inconsistent schedule")

// CheckRows verifies that a schedule honours the unit's operating line and
// the allowance bank: zero output while offline, fuel and heat on the
// linearised line while online, an empty bank at both ends of the horizon and
// the bank recurrence between consecutive steps.
func CheckRows(rows []model.Row, env model.Envelope, tol float64) error {
	if len(rows) == 0 {
		return nil
	}
	gasLine, err := Linearize(env, env.GasMin, env.GasMax)
	if err != nil {
		return err
	}
	heatLine, err := Linearize(env, env.HeatMin, env.HeatMax)
	if err != nil {
		return err
	}
	var errs []error
	fail := func(id int, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: step %d: %s", ErrInconsistentSchedule, id, fmt.Sprintf(format, args...)))
	}
	for i, r := range rows {
		id := r.Step.ID
		if !r.IsOnline() {
			if math.Abs(r.Power) > tol || math.Abs(r.Gas) > tol || math.Abs(r.Heat) > tol {
				fail(id, "offline with power=%g gas=%g heat=%g", r.Power, r.Gas, r.Heat)
			}
		} else {
			if r.Power < env.PowerMin-tol || r.Power > env.PowerMax+tol {
				fail(id, "power %g outside [%g, %g]", r.Power, env.PowerMin, env.PowerMax)
			}
			if want := gasLine.At(r.Power, 1); math.Abs(r.Gas-want) > tol {
				fail(id, "gas %g off the operating line (%g)", r.Gas, want)
			}
			if want := heatLine.At(r.Power, 1); math.Abs(r.Heat-want) > tol {
				fail(id, "heat %g off the operating line (%g)", r.Heat, want)
			}
		}
		if i == 0 {
			if math.Abs(r.AdditionalCapacityAllowance) > tol {
				fail(id, "bank %g not empty at horizon start", r.AdditionalCapacityAllowance)
			}
			continue
		}
		prev := rows[i-1]
		residual := r.AdditionalCapacityAllowance - prev.AdditionalCapacityAllowance - prev.Helper + r.PayCapacityPrice
		if math.Abs(residual) > tol {
			fail(id, "bank recurrence off by %g", residual)
		}
	}
	if last := rows[len(rows)-1]; math.Abs(last.AdditionalCapacityAllowance) > tol {
		fail(last.Step.ID, "bank %g not empty at horizon end", last.AdditionalCapacityAllowance)
	}
	return errors.Join(errs...)
}
