package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/bhkw/core/milp"
)

var (
	errInfeasible = errors.New("relaxation infeasible")
	errUnbounded  = errors.New("relaxation unbounded")
	errIterations = errors.New("simplex iteration limit")
)

// boundedLP is min cᵀy s.t. A·y = b, lo <= y <= hi. The first len(cols)
// columns are problem variables, the rest are row slacks.
type boundedLP struct {
	a      *mat.Dense
	b      []float64
	c      []float64
	lo, hi []float64
	cols   []int
}

// lpSolve solves one relaxation. Tests replace it to inject failures.
var lpSolve = solveBounded

type row struct {
	coef  map[int]float64
	sense milp.Sense
	rhs   float64
}

// relax solves the LP relaxation of p under the bounds lo and hi and returns
// the assignment in problem variable order. sign is -1 for maximisation.
//
// Rows over a single variable are folded into its bounds and variables whose
// bounds meet are substituted out before the simplex runs.
func relax(p *milp.Problem, lo, hi []float64, sign, tol float64) ([]float64, error) {
	n := len(p.Vars)
	lb, ub := clone(lo), clone(hi)
	for j := 0; j < n; j++ {
		if math.IsInf(lb[j], -1) {
			return nil, fmt.Errorf("variable %s: free variables are not supported", p.Vars[j].Name)
		}
		if ub[j] < lb[j]-tol {
			return nil, errInfeasible
		}
		ub[j] = math.Max(ub[j], lb[j])
	}

	rows := make([]row, 0, len(p.Constraints))
	for _, c := range p.Constraints {
		r := row{coef: make(map[int]float64, len(c.Expr.Terms)), sense: c.Sense, rhs: c.RHS - c.Expr.Const}
		for _, t := range c.Expr.Terms {
			r.coef[int(t.Var)] += t.Coef
		}
		rows = append(rows, r)
	}
	rows, err := presolve(rows, lb, ub, tol)
	if err != nil {
		return nil, err
	}

	x := clone(lb)
	obj := make([]float64, n)
	for _, t := range p.Objective.Terms {
		obj[t.Var] += sign * t.Coef
	}

	colOf := make(map[int]int, n)
	var cols []int
	for j := 0; j < n; j++ {
		if ub[j] > lb[j] {
			colOf[j] = len(cols)
			cols = append(cols, j)
		}
	}
	if len(rows) == 0 {
		// Every column is independent: it sits on its cheaper bound.
		for _, j := range cols {
			if obj[j] < 0 {
				if math.IsInf(ub[j], 1) {
					return nil, errUnbounded
				}
				x[j] = ub[j]
			}
		}
		return x, nil
	}

	slacks := 0
	for _, r := range rows {
		if r.sense != milp.Equal {
			slacks++
		}
	}
	m, nc := len(rows), len(cols)+slacks
	l := &boundedLP{
		a:    mat.NewDense(m, nc, nil),
		b:    make([]float64, m),
		c:    make([]float64, nc),
		lo:   make([]float64, nc),
		hi:   make([]float64, nc),
		cols: cols,
	}
	for k, j := range cols {
		l.c[k], l.lo[k], l.hi[k] = obj[j], lb[j], ub[j]
	}
	s := len(cols)
	for i, r := range rows {
		l.b[i] = r.rhs
		for j, v := range r.coef {
			if k, ok := colOf[j]; ok {
				l.a.Set(i, k, v)
			} else {
				l.b[i] -= v * lb[j]
			}
		}
		switch r.sense {
		case milp.LessEq:
			l.a.Set(i, s, 1)
		case milp.GreaterEq:
			l.a.Set(i, s, -1)
		default:
			continue
		}
		l.hi[s] = math.Inf(1)
		s++
	}

	y, err := lpSolve(l, tol)
	if err != nil {
		return nil, err
	}
	for k, j := range cols {
		x[j] = math.Min(math.Max(y[k], lb[j]), ub[j])
	}
	return x, nil
}

// presolve repeatedly drops rows left without free variables and turns rows
// over a single free variable into bounds. lb and ub are tightened in place.
func presolve(rows []row, lb, ub []float64, tol float64) ([]row, error) {
	for changed := true; changed; {
		changed = false
		kept := rows[:0]
		for _, r := range rows {
			live, rhs := -1, r.rhs
			count := 0
			for j, v := range r.coef {
				if v == 0 {
					continue
				}
				if ub[j] <= lb[j] {
					rhs -= v * lb[j]
					continue
				}
				live = j
				count++
			}
			switch count {
			case 0:
				if !emptyRowHolds(r.sense, rhs, tol) {
					return nil, errInfeasible
				}
				changed = true
			case 1:
				if err := tighten(live, r.coef[live], r.sense, rhs, lb, ub, tol); err != nil {
					return nil, err
				}
				changed = true
			default:
				kept = append(kept, r)
			}
		}
		rows = kept
	}
	return rows, nil
}

// tighten applies v·x_j (sense) rhs to the bounds of x_j.
func tighten(j int, v float64, sense milp.Sense, rhs float64, lb, ub []float64, tol float64) error {
	bound := rhs / v
	upper := sense == milp.LessEq
	if v < 0 {
		upper = !upper
	}
	if sense == milp.Equal || upper {
		ub[j] = math.Min(ub[j], bound)
	}
	if sense == milp.Equal || !upper {
		lb[j] = math.Max(lb[j], bound)
	}
	if ub[j] < lb[j]-tol*math.Max(1, math.Abs(lb[j])) {
		return errInfeasible
	}
	if ub[j] < lb[j] {
		ub[j] = lb[j]
	}
	return nil
}

func emptyRowHolds(sense milp.Sense, rhs, tol float64) bool {
	switch sense {
	case milp.LessEq:
		return rhs >= -tol
	case milp.GreaterEq:
		return rhs <= tol
	default:
		return math.Abs(rhs) <= tol
	}
}

const (
	basic int8 = iota
	atLower
	atUpper
)

// blandAfter switches pricing to Bland's rule after this many degenerate
// pivots in a row.
const blandAfter = 50

// tableau is the dense bounded-variable simplex state: t = B⁻¹·[A | D] where
// D holds one artificial column per row.
type tableau struct {
	t      *mat.Dense
	d      []float64 // reduced costs
	xb     []float64 // values of the basic variables
	x      []float64 // values of the nonbasic variables
	basis  []int
	state  []int8
	lo, hi []float64
	m, n   int
	art    int // index of the first artificial column
	tol    float64
}

// solveBounded runs a two-phase primal simplex with bounded variables. Phase
// one starts from an all-artificial basis and minimises their sum; phase two
// fixes the artificials at zero and minimises l.c.
func solveBounded(l *boundedLP, tol float64) ([]float64, error) {
	m, nc := l.a.Dims()
	tb := &tableau{
		t:     mat.NewDense(m, nc+m, nil),
		d:     make([]float64, nc+m),
		xb:    make([]float64, m),
		x:     make([]float64, nc+m),
		basis: make([]int, m),
		state: make([]int8, nc+m),
		lo:    make([]float64, nc+m),
		hi:    make([]float64, nc+m),
		m:     m,
		n:     nc + m,
		art:   nc,
		tol:   math.Max(tol, 1e-12),
	}
	copy(tb.lo, l.lo)
	copy(tb.hi, l.hi)
	for j := 0; j < nc; j++ {
		tb.state[j] = atLower
		tb.x[j] = l.lo[j]
	}
	scale := 1.0
	for i := 0; i < m; i++ {
		src := l.a.RawRowView(i)
		resid := l.b[i] - floats.Dot(src, tb.x[:nc])
		sigma := 1.0
		if resid < 0 {
			sigma = -1
		}
		dst := tb.t.RawRowView(i)
		floats.AddScaled(dst[:nc], sigma, src)
		dst[nc+i] = 1
		a := nc + i
		tb.basis[i] = a
		tb.xb[i] = sigma * resid
		tb.hi[a] = math.Inf(1)
		scale = math.Max(scale, math.Abs(l.b[i]))
	}

	phase1 := make([]float64, nc+m)
	for j := nc; j < nc+m; j++ {
		phase1[j] = 1
	}
	if err := tb.optimize(phase1); err != nil {
		if errors.Is(err, errUnbounded) {
			return nil, fmt.Errorf("phase one: %w", err)
		}
		return nil, err
	}
	infeas := 0.0
	for i, j := range tb.basis {
		if j >= nc {
			infeas += tb.xb[i]
		}
	}
	if infeas > 1e-7*scale {
		return nil, errInfeasible
	}
	for j := nc; j < nc+m; j++ {
		tb.hi[j] = 0
	}

	phase2 := make([]float64, nc+m)
	copy(phase2, l.c)
	if err := tb.optimize(phase2); err != nil {
		return nil, err
	}

	y := clone(tb.x[:nc])
	for i, j := range tb.basis {
		if j < nc {
			y[j] = tb.xb[i]
		}
	}
	return y, nil
}

// optimize runs simplex iterations for cost c from the current basis.
func (tb *tableau) optimize(c []float64) error {
	tb.pricing(c)
	optTol := tb.tol * math.Max(1, floats.Norm(c, math.Inf(1)))
	degenerate := 0
	limit := 50*(tb.m+tb.n) + 1000
	for iter := 0; iter < limit; iter++ {
		bland := degenerate > blandAfter
		q := tb.entering(optTol, bland)
		if q < 0 {
			return nil
		}
		dir := 1.0
		if tb.state[q] == atUpper {
			dir = -1
		}
		r, theta := tb.ratio(q, dir, bland)
		if math.IsInf(theta, 1) {
			return errUnbounded
		}
		if theta <= tb.tol {
			degenerate++
		} else {
			degenerate = 0
		}
		for i := 0; i < tb.m; i++ {
			tb.xb[i] -= dir * theta * tb.t.At(i, q)
		}
		if r < 0 {
			// The entering variable reaches its opposite bound first.
			if dir > 0 {
				tb.state[q], tb.x[q] = atUpper, tb.hi[q]
			} else {
				tb.state[q], tb.x[q] = atLower, tb.lo[q]
			}
			continue
		}
		leave := tb.basis[r]
		if dir*tb.t.At(r, q) > 0 {
			tb.state[leave], tb.x[leave] = atLower, tb.lo[leave]
		} else {
			tb.state[leave], tb.x[leave] = atUpper, tb.hi[leave]
		}
		tb.xb[r] = tb.x[q] + dir*theta
		tb.basis[r] = q
		tb.state[q] = basic
		tb.pivot(r, q)
	}
	return fmt.Errorf("%w after %d pivots", errIterations, limit)
}

// pricing recomputes the reduced costs of c against the current basis.
func (tb *tableau) pricing(c []float64) {
	copy(tb.d, c)
	for i, j := range tb.basis {
		if cb := c[j]; cb != 0 {
			floats.AddScaled(tb.d, -cb, tb.t.RawRowView(i))
		}
	}
}

// entering picks the nonbasic column with the most attractive reduced cost,
// or the first attractive one under Bland's rule. It returns -1 at optimality.
func (tb *tableau) entering(optTol float64, bland bool) int {
	best, score := -1, optTol
	for j := 0; j < tb.n; j++ {
		if tb.state[j] == basic || tb.hi[j] <= tb.lo[j] {
			continue
		}
		var s float64
		switch {
		case tb.state[j] == atLower && tb.d[j] < -optTol:
			s = -tb.d[j]
		case tb.state[j] == atUpper && tb.d[j] > optTol:
			s = tb.d[j]
		default:
			continue
		}
		if bland {
			return j
		}
		if s > score {
			best, score = j, s
		}
	}
	return best
}

// ratio returns the row whose basic variable blocks column q first and the
// step length. Row -1 means q hits its own opposite bound.
func (tb *tableau) ratio(q int, dir float64, bland bool) (int, float64) {
	r, theta, pivot := -1, tb.hi[q]-tb.lo[q], 0.0
	for i := 0; i < tb.m; i++ {
		alpha := dir * tb.t.At(i, q)
		b := tb.basis[i]
		var lim float64
		switch {
		case alpha > tb.tol:
			lim = (tb.xb[i] - tb.lo[b]) / alpha
		case alpha < -tb.tol && !math.IsInf(tb.hi[b], 1):
			lim = (tb.hi[b] - tb.xb[i]) / -alpha
		default:
			continue
		}
		lim = math.Max(lim, 0)
		eps := 1e-12 * math.Max(1, lim)
		switch {
		case lim < theta-eps:
		case lim <= theta+eps && r >= 0:
			// Ties go to the larger pivot, or the lower index under Bland.
			if bland {
				if b > tb.basis[r] {
					continue
				}
			} else if math.Abs(alpha) <= pivot {
				continue
			}
		default:
			continue
		}
		r, theta, pivot = i, lim, math.Abs(alpha)
	}
	return r, theta
}

// pivot makes column q the unit vector of row r in t and zeroes its reduced
// cost.
func (tb *tableau) pivot(r, q int) {
	pr := tb.t.RawRowView(r)
	floats.Scale(1/pr[q], pr)
	pr[q] = 1
	for i := 0; i < tb.m; i++ {
		if i == r {
			continue
		}
		ri := tb.t.RawRowView(i)
		if f := ri[q]; f != 0 {
			floats.AddScaled(ri, -f, pr)
			ri[q] = 0
		}
	}
	if f := tb.d[q]; f != 0 {
		floats.AddScaled(tb.d, -f, pr)
	}
	tb.d[q] = 0
}
