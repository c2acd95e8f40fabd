package milp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViolations(t *testing.T) {
	p := &Problem{}
	on := p.AddVar(Binary("on"))
	pw := p.AddVar(Bounded("power", 100))
	p.AddConstraint("max", Expr{}.Plus(pw, 1).Plus(on, -100), LessEq, 0)
	p.AddConstraint("min", Expr{}.Plus(pw, 1).Plus(on, -50), GreaterEq, 0)
	p.AddConstraint("fix", Expr{}.Plus(on, 1), Equal, 1)

	assert.Empty(t, p.Violations([]float64{1, 80}, 1e-9))
	assert.Equal(t, []string{"min"}, p.Violations([]float64{1, 20}, 1e-9))
	assert.ElementsMatch(t, []string{"integrality on", "max", "fix"}, p.Violations([]float64{0.5, 60}, 1e-9))
	assert.Equal(t, []string{"bound power", "max"}, p.Violations([]float64{1, 120}, 1e-9))
}

func TestValidate(t *testing.T) {
	p := &Problem{}
	x := p.AddVar(NonNegative("x"))
	require.NoError(t, p.Validate())

	p.AddConstraint("bad", Expr{}.Plus(x+1, 1), LessEq, 1)
	assert.Error(t, p.Validate())

	q := &Problem{}
	q.AddVar(Var{Name: "y", Lower: math.Inf(1), Upper: math.Inf(1)})
	assert.Error(t, q.Validate())
}

func TestExprEval(t *testing.T) {
	e := Expr{Const: 1}.Plus(0, 2).Plus(1, -3)
	assert.InDelta(t, 1+2*4-3*2, e.Eval([]float64{4, 2}), 1e-12)
	assert.Equal(t, []VarID{0}, (&Problem{Vars: []Var{Binary("b"), NonNegative("c")}}).IntegerVars())
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "optimal", StatusOptimal.String())
	assert.Equal(t, "feasible", StatusFeasible.String())
	assert.Equal(t, "error", Status(42).String())
	assert.True(t, StatusFeasible.HasSolution())
	assert.False(t, StatusInfeasible.HasSolution())

	sol := Solution{Values: []float64{3}}
	assert.Equal(t, 3.0, sol.Value(0))
	assert.Zero(t, sol.Value(5))
}
