// Package schedule builds the unit-commitment model of a CHP unit, assembles
// its cost objective and reads solved assignments back into schedule rows.
package schedule

import (
	"fmt"

	"github.com/kilianp07/bhkw/core/milp"
	"github.com/kilianp07/bhkw/core/model"
)

// Model is the instantiated dispatch problem together with the per-step
// variable handles needed to read a solution back.
type Model struct {
	Problem  *milp.Problem
	Series   model.Series
	Envelope model.Envelope
	GasLine  Line
	HeatLine Line

	Online                      []milp.VarID
	Power                       []milp.VarID
	Gas                         []milp.VarID
	Heat                        []milp.VarID
	Helper                      []milp.VarID
	PayCapacityPrice            []milp.VarID
	AdditionalCapacityAllowance []milp.VarID
	CapacityAllowance           []milp.VarID
}

// Build creates the variables, constraints and objective for the horizon.
// It fails before creating anything when the envelope cannot be linearised
// or the series is malformed.
func Build(series model.Series, env model.Envelope) (*Model, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	gasLine, err := Linearize(env, env.GasMin, env.GasMax)
	if err != nil {
		return nil, fmt.Errorf("gas line: %w", err)
	}
	heatLine, err := Linearize(env, env.HeatMin, env.HeatMax)
	if err != nil {
		return nil, fmt.Errorf("heat line: %w", err)
	}

	n := series.Len()
	m := &Model{
		Problem:  &milp.Problem{Name: "bhkw_dispatch", Sense: milp.Minimize},
		Series:   series,
		Envelope: env,
		GasLine:  gasLine,
		HeatLine: heatLine,

		Online:                      make([]milp.VarID, n),
		Power:                       make([]milp.VarID, n),
		Gas:                         make([]milp.VarID, n),
		Heat:                        make([]milp.VarID, n),
		Helper:                      make([]milp.VarID, n),
		PayCapacityPrice:            make([]milp.VarID, n),
		AdditionalCapacityAllowance: make([]milp.VarID, n),
		CapacityAllowance:           make([]milp.VarID, n),
	}
	m.addVariables()
	for i := range series {
		m.addEnvelopeRows(i)
		m.addAllowanceRows(i)
	}
	m.Problem.Objective = m.objective()
	return m, nil
}

func (m *Model) addVariables() {
	p := m.Problem
	gasMax := m.Envelope.GasMax
	for i, st := range m.Series {
		m.Online[i] = p.AddVar(milp.Binary(label("BHKW_Bin", st.ID)))
		m.Gas[i] = p.AddVar(milp.NonNegative(label("BHKW_Gas", st.ID)))
		m.Power[i] = p.AddVar(milp.NonNegative(label("BHKW_Power", st.ID)))
		m.Heat[i] = p.AddVar(milp.NonNegative(label("BHKW_Heat", st.ID)))
		m.Helper[i] = p.AddVar(milp.Bounded(label("BHKW_Helper", st.ID), gasMax))
		m.PayCapacityPrice[i] = p.AddVar(milp.Bounded(label("BHKW_PayCapacityPrice", st.ID), gasMax))
		bank := gasMax
		if m.Series.IsLast(i) {
			bank = 0
		}
		m.AdditionalCapacityAllowance[i] = p.AddVar(milp.Bounded(label("BHKW_AdditionalCapacityAllowance", st.ID), bank))
		// A negative contractual allowance leaves this variable with an
		// empty domain; the solver reports the model infeasible.
		m.CapacityAllowance[i] = p.AddVar(milp.Bounded(label("BHKW_CapacityAllowance", st.ID), st.CapacityAllowance))
	}
}

// addEnvelopeRows emits the on/off load bounds and the fuel and heat
// couplings for step i.
func (m *Model) addEnvelopeRows(i int) {
	p := m.Problem
	env := m.Envelope
	id := m.Series[i].ID

	// Power - PowerMax·Online <= 0
	p.AddConstraint(label("PowerMax_Constraint", id),
		milp.Expr{}.Plus(m.Power[i], 1).Plus(m.Online[i], -env.PowerMax), milp.LessEq, 0)
	// PowerMin·Online - Power <= 0
	p.AddConstraint(label("PowerMin_Constraint", id),
		milp.Expr{}.Plus(m.Online[i], env.PowerMin).Plus(m.Power[i], -1), milp.LessEq, 0)

	p.AddConstraint(label("GasDependsOnPower_Constraint", id), coupling(m.Gas[i], m.Power[i], m.Online[i], m.GasLine), milp.Equal, 0)
	p.AddConstraint(label("HeatDependsOnPower_Constraint", id), coupling(m.Heat[i], m.Power[i], m.Online[i], m.HeatLine), milp.Equal, 0)
}

// coupling returns Q - a·Power - b·Online.
func coupling(q, power, online milp.VarID, l Line) milp.Expr {
	return milp.Expr{}.Plus(q, 1).Plus(power, -l.Slope).Plus(online, -l.Intercept)
}

// addAllowanceRows emits the bank bounds, the bank recurrence and the link
// between fuel use and allowance for step i.
func (m *Model) addAllowanceRows(i int) {
	p := m.Problem
	st := m.Series[i]
	gasMax := m.Envelope.GasMax

	p.AddConstraint(label("BHKWHelperMax_Constraint", st.ID), milp.Expr{}.Plus(m.Helper[i], 1), milp.LessEq, gasMax)
	p.AddConstraint(label("BHKWPayCapacityPriceMax_Constraint", st.ID), milp.Expr{}.Plus(m.PayCapacityPrice[i], 1), milp.LessEq, gasMax)
	bank := gasMax
	if m.Series.IsLast(i) {
		bank = 0
	}
	p.AddConstraint(label("BHKWAdditionalCapacityAllowanceMax_Constraint", st.ID), milp.Expr{}.Plus(m.AdditionalCapacityAllowance[i], 1), milp.LessEq, bank)
	p.AddConstraint(label("BHKWCapacityAllowanceMax_Constraint", st.ID), milp.Expr{}.Plus(m.CapacityAllowance[i], 1), milp.LessEq, st.CapacityAllowance)

	name := label("BHKWAdditionalCapacityAllowance_Constraint", st.ID)
	if m.Series.IsFirst(i) {
		p.AddConstraint(name, milp.Expr{}.Plus(m.AdditionalCapacityAllowance[i], 1), milp.Equal, 0)
	} else {
		prev := m.Series.Prev(i)
		// ACA[t] - ACA[t-1] - Helper[t-1] + Pay[t] == 0
		e := milp.Expr{}.
			Plus(m.AdditionalCapacityAllowance[i], 1).
			Plus(m.AdditionalCapacityAllowance[prev], -1).
			Plus(m.Helper[prev], -1).
			Plus(m.PayCapacityPrice[i], 1)
		p.AddConstraint(name, e, milp.Equal, 0)
	}

	// -Gas + Helper + ACA + CapacityAllowance >= 0
	link := milp.Expr{}.
		Plus(m.Gas[i], -1).
		Plus(m.Helper[i], 1).
		Plus(m.AdditionalCapacityAllowance[i], 1).
		Plus(m.CapacityAllowance[i], 1)
	p.AddConstraint(label("BHKWCapacityLink_Constraint", st.ID), link, milp.GreaterEq, 0)
}

func label(name string, id int) string {
	return fmt.Sprintf("%s(%d)", name, id)
}
