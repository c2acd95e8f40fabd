package schedule

import (
	"github.com/shopspring/decimal"

	"github.com/kilianp07/bhkw/core/milp"
	"github.com/kilianp07/bhkw/core/model"
)

// objective returns Σ Gas·GasPrice + Σ Pay·CapacityPrice − Σ Power·PowerPrice.
func (m *Model) objective() milp.Expr {
	var e milp.Expr
	for i, st := range m.Series {
		e = e.Plus(m.Gas[i], st.GasPrice)
	}
	for i, st := range m.Series {
		e = e.Plus(m.PayCapacityPrice[i], st.CapacityPrice)
	}
	for i, st := range m.Series {
		e = e.Plus(m.Power[i], -st.PowerPrice)
	}
	return e
}

// ObjectiveValue recomputes the net operating cost of extracted rows.
func ObjectiveValue(rows []model.Row) float64 {
	var fuel, capacity, revenue float64
	for _, r := range rows {
		fuel += r.Gas * r.Step.GasPrice
		capacity += r.PayCapacityPrice * r.Step.CapacityPrice
		revenue += r.Power * r.Step.PowerPrice
	}
	return fuel + capacity - revenue
}

// Breakdown splits the net operating cost into its components, rounded to
// cents.
type Breakdown struct {
	FuelCost       decimal.Decimal `json:"fuel_cost"`
	CapacityCharge decimal.Decimal `json:"capacity_charge"`
	Revenue        decimal.Decimal `json:"revenue"`
	Net            decimal.Decimal `json:"net"`
}

// Margin is the operating margin, the negated net cost.
func (b Breakdown) Margin() decimal.Decimal { return b.Net.Neg() }

// Cost returns the cost breakdown of a schedule.
func Cost(rows []model.Row) Breakdown {
	fuel, capacity, revenue := decimal.Zero, decimal.Zero, decimal.Zero
	for _, r := range rows {
		fuel = fuel.Add(decimal.NewFromFloat(r.Gas).Mul(decimal.NewFromFloat(r.Step.GasPrice)))
		capacity = capacity.Add(decimal.NewFromFloat(r.PayCapacityPrice).Mul(decimal.NewFromFloat(r.Step.CapacityPrice)))
		revenue = revenue.Add(decimal.NewFromFloat(r.Power).Mul(decimal.NewFromFloat(r.Step.PowerPrice)))
	}
	return Breakdown{
		FuelCost:       fuel.Round(2),
		CapacityCharge: capacity.Round(2),
		Revenue:        revenue.Round(2),
		Net:            fuel.Add(capacity).Sub(revenue).Round(2),
	}
}
