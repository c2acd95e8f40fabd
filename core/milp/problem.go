package milp

import (
	"fmt"
	"math"
)

// VarID indexes a variable within a Problem.
type VarID int

// Var is a decision variable with explicit bounds. Upper may be +Inf.
type Var struct {
	Name    string
	Lower   float64
	Upper   float64
	Integer bool
}

// Binary returns a {0,1} variable.
func Binary(name string) Var { return Var{Name: name, Lower: 0, Upper: 1, Integer: true} }

// NonNegative returns a continuous variable in [0, +Inf).
func NonNegative(name string) Var { return Var{Name: name, Lower: 0, Upper: math.Inf(1)} }

// Bounded returns a continuous variable in [0, upper].
func Bounded(name string, upper float64) Var { return Var{Name: name, Lower: 0, Upper: upper} }

// Term is a coefficient applied to a variable.
type Term struct {
	Var  VarID
	Coef float64
}

// Expr is a linear expression Σ coef·var + Const.
type Expr struct {
	Terms []Term
	Const float64
}

// Plus appends coef·v to the expression and returns it for chaining.
func (e Expr) Plus(v VarID, coef float64) Expr {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	return e
}

// Eval evaluates the expression at x.
func (e Expr) Eval(x []float64) float64 {
	sum := e.Const
	for _, t := range e.Terms {
		sum += t.Coef * x[t.Var]
	}
	return sum
}

// Sense is the relation of a constraint row.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	case Equal:
		return "="
	default:
		return "?"
	}
}

// Constraint is the linear row `Expr Sense RHS`.
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
	RHS   float64
}

// Satisfied reports whether x satisfies the row within tol.
func (c Constraint) Satisfied(x []float64, tol float64) bool {
	lhs := c.Expr.Eval(x)
	switch c.Sense {
	case LessEq:
		return lhs <= c.RHS+tol
	case GreaterEq:
		return lhs >= c.RHS-tol
	default:
		return math.Abs(lhs-c.RHS) <= tol
	}
}

// ObjectiveSense selects minimisation or maximisation.
type ObjectiveSense int

const (
	Minimize ObjectiveSense = iota
	Maximize
)

func (s ObjectiveSense) String() string {
	if s == Maximize {
		return "maximize"
	}
	return "minimize"
}

// Problem is a mixed-integer linear program: variables with bounds, linear
// rows and a linear objective.
type Problem struct {
	Name        string
	Vars        []Var
	Constraints []Constraint
	Objective   Expr
	Sense       ObjectiveSense
}

// AddVar registers v and returns its identifier.
func (p *Problem) AddVar(v Var) VarID {
	p.Vars = append(p.Vars, v)
	return VarID(len(p.Vars) - 1)
}

// AddConstraint appends a row.
func (p *Problem) AddConstraint(name string, e Expr, sense Sense, rhs float64) {
	p.Constraints = append(p.Constraints, Constraint{Name: name, Expr: e, Sense: sense, RHS: rhs})
}

// NumVars returns the number of variables.
func (p *Problem) NumVars() int { return len(p.Vars) }

// IntegerVars lists the identifiers of integer variables.
func (p *Problem) IntegerVars() []VarID {
	var ids []VarID
	for i, v := range p.Vars {
		if v.Integer {
			ids = append(ids, VarID(i))
		}
	}
	return ids
}

// Validate checks every term references a known variable and every
// coefficient is finite.
func (p *Problem) Validate() error {
	n := VarID(len(p.Vars))
	check := func(where string, e Expr) error {
		for _, t := range e.Terms {
			if t.Var < 0 || t.Var >= n {
				return fmt.Errorf("%s: unknown variable %d", where, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("%s: coefficient of %s is not finite", where, p.Vars[t.Var].Name)
			}
		}
		return nil
	}
	for _, v := range p.Vars {
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) || math.IsInf(v.Lower, 1) || math.IsInf(v.Upper, -1) {
			return fmt.Errorf("variable %s: invalid bounds [%g, %g]", v.Name, v.Lower, v.Upper)
		}
	}
	for _, c := range p.Constraints {
		if err := check("constraint "+c.Name, c.Expr); err != nil {
			return err
		}
	}
	return check("objective", p.Objective)
}

// Violations returns the names of the rows and bounds x violates by more
// than tol, and for integer variables any fractional value.
func (p *Problem) Violations(x []float64, tol float64) []string {
	var out []string
	for i, v := range p.Vars {
		if x[i] < v.Lower-tol || x[i] > v.Upper+tol {
			out = append(out, "bound "+v.Name)
		}
		if v.Integer && math.Abs(x[i]-math.Round(x[i])) > tol {
			out = append(out, "integrality "+v.Name)
		}
	}
	for _, c := range p.Constraints {
		if !c.Satisfied(x, tol) {
			out = append(out, c.Name)
		}
	}
	return out
}
