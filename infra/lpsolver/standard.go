package lpsolver

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/gridflex/core/model"
	"github.com/kilianp07/gridflex/core/program"
)

// errConstantInfeasible marks a row whose variables are all fixed and whose
// constant part violates the constraint, or bounds that cross.
var errConstantInfeasible = errors.New("constant constraint violated")

// errFreeUnbounded marks an unconstrained variable with a negative cost.
var errFreeUnbounded = errors.New("unconstrained variable with negative cost")

// maxPresolvePasses caps the bound propagation rounds of one relaxation.
const maxPresolvePasses = 8

// relaxation is one linear relaxation of a problem: per-variable bounds, an
// optional set of dropped constraint groups and an optional objective.
type relaxation struct {
	lower, upper []float64
	skip         map[model.ConstraintTag]bool
	zeroCost     bool
}

// column maps a standard-form column back to a problem variable:
// x[v] += sign * y[col].
type column struct {
	v    int
	sign float64
}

// standardForm is min c'y s.t. A y = b, y >= 0 together with the mapping back
// to problem variables.
type standardForm struct {
	c      []float64
	a      *mat.Dense
	b      []float64
	slack  []int     // slack column of each row, -1 for equality rows
	offset []float64 // x = offset + sum sign*y
	cols   []column  // structural columns; slack columns have v = -1

	lower, upper []float64 // presolved bounds
}

// row is a constraint after presolve. Fixed variables are folded into rhs.
type row struct {
	terms []program.Term
	sense program.Sense
	rhs   float64
	scale float64 // magnitude of the original right-hand side, for tolerances
}

// reduced holds the presolved bounds and rows of a relaxation.
type reduced struct {
	lower, upper []float64
	rows         []row
	tol          float64
}

// presolve drops skipped groups, folds fixed variables into the right-hand
// side and turns single-variable rows into bounds until nothing changes.
// Crossing bounds and violated constant rows report errConstantInfeasible.
func presolve(p *program.Problem, r relaxation, tol float64) (*reduced, error) {
	red := &reduced{
		lower: append([]float64(nil), r.lower...),
		upper: append([]float64(nil), r.upper...),
		tol:   tol,
	}
	for j := range red.lower {
		if err := red.check(j); err != nil {
			return nil, err
		}
	}
	for _, c := range p.Constraints() {
		if r.skip[c.Tag] {
			continue
		}
		rw := row{sense: c.Sense, rhs: c.RHS, scale: math.Max(1, math.Abs(c.RHS))}
		for _, t := range c.Terms {
			if t.Coef != 0 {
				rw.terms = append(rw.terms, t)
			}
		}
		red.rows = append(red.rows, rw)
	}

	for pass := 0; pass < maxPresolvePasses; pass++ {
		changed := false
		kept := make([]row, 0, len(red.rows))
		for _, rw := range red.rows {
			out, keep, ch, err := red.reduce(rw)
			if err != nil {
				return nil, err
			}
			changed = changed || ch
			if keep {
				kept = append(kept, out)
			}
		}
		red.rows = kept
		if !changed {
			break
		}
	}
	return red, nil
}

func (red *reduced) fixed(v int) bool { return red.upper[v] <= red.lower[v] }

// check snaps bounds that cross within tolerance and rejects the others.
func (red *reduced) check(v int) error {
	lo, hi := red.lower[v], red.upper[v]
	if lo <= hi {
		return nil
	}
	if lo-hi > red.tol*math.Max(1, math.Max(math.Abs(lo), math.Abs(hi))) {
		return errConstantInfeasible
	}
	red.upper[v] = lo
	return nil
}

func (red *reduced) reduce(rw row) (row, bool, bool, error) {
	terms := make([]program.Term, 0, len(rw.terms))
	rhs := rw.rhs
	for _, t := range rw.terms {
		if red.fixed(t.Var) {
			rhs -= t.Coef * red.lower[t.Var]
			continue
		}
		terms = append(terms, t)
	}
	changed := len(terms) != len(rw.terms)
	rw.terms, rw.rhs = terms, rhs

	switch len(terms) {
	case 0:
		if violated(rw.sense, rhs, red.tol*rw.scale) {
			return rw, false, true, errConstantInfeasible
		}
		return rw, false, true, nil
	case 1:
		return rw, false, true, red.bound(terms[0], rw.sense, rhs)
	}
	return rw, true, changed, nil
}

// bound tightens the bounds of t.Var with coef*x (sense) rhs.
func (red *reduced) bound(t program.Term, sense program.Sense, rhs float64) error {
	v, val := t.Var, rhs/t.Coef
	upperSide := (sense == program.LE) == (t.Coef > 0)
	switch {
	case sense == program.EQ:
		red.lower[v] = math.Max(red.lower[v], val)
		red.upper[v] = math.Min(red.upper[v], val)
	case upperSide:
		red.upper[v] = math.Min(red.upper[v], val)
	default:
		red.lower[v] = math.Max(red.lower[v], val)
	}
	return red.check(v)
}

func violated(sense program.Sense, b, tol float64) bool {
	switch sense {
	case program.LE:
		return b < -tol
	case program.GE:
		return b > tol
	default:
		return math.Abs(b) > tol
	}
}

// impliedUpper reports, per variable, whether its finite upper bound already
// follows from a row and the bounds of the row's other variables. Such bounds
// need no row of their own. A bound used to imply another one is kept.
func (red *reduced) impliedUpper() []bool {
	n := len(red.lower)
	implied := make([]bool, n)
	support := make([]bool, n)
	byVar := make([][]int, n)
	for i, rw := range red.rows {
		for _, t := range rw.terms {
			byVar[t.Var] = append(byVar[t.Var], i)
		}
	}

	for j := 0; j < n; j++ {
		if support[j] || red.fixed(j) || math.IsInf(red.lower[j], -1) || math.IsInf(red.upper[j], 1) {
			continue
		}
		for _, i := range byVar[j] {
			if used, ok := red.implies(red.rows[i], j, implied); ok {
				implied[j] = true
				for _, k := range used {
					support[k] = true
				}
				break
			}
		}
	}
	return implied
}

// implies checks whether rw bounds x[j] from above by its upper bound. It
// returns the variables whose upper bounds the argument relies on.
func (red *reduced) implies(rw row, j int, implied []bool) ([]int, bool) {
	// write the row as sum a x <= b, flipping GE; EQ works both ways
	senses := []float64{1}
	switch rw.sense {
	case program.GE:
		senses = []float64{-1}
	case program.EQ:
		senses = []float64{1, -1}
	}
	for _, s := range senses {
		var aj float64
		for _, t := range rw.terms {
			if t.Var == j {
				aj += s * t.Coef
			}
		}
		if aj <= 0 {
			continue
		}
		rest := s * rw.rhs
		var used []int
		ok := true
		for _, t := range rw.terms {
			if t.Var == j {
				continue
			}
			a := s * t.Coef
			// smallest value of a*x over the bounds of x
			if a > 0 {
				if math.IsInf(red.lower[t.Var], -1) {
					ok = false
					break
				}
				rest -= a * red.lower[t.Var]
			} else {
				if math.IsInf(red.upper[t.Var], 1) || implied[t.Var] {
					ok = false
					break
				}
				rest -= a * red.upper[t.Var]
				used = append(used, t.Var)
			}
		}
		if ok && rest/aj <= red.upper[j]+red.tol*math.Max(1, math.Abs(red.upper[j])) {
			return used, true
		}
	}
	return nil, false
}

// buildStandard presolves the relaxation and writes it in the equality form
// lp.Simplex expects. Finite lower bounds shift the variable, finite upper
// bounds add a slack row unless another row implies them, fixed variables
// become constants and free variables are split in two. Variables left
// without rows sit at the bound their cost prefers.
func buildStandard(p *program.Problem, r relaxation, tol float64) (*standardForm, error) {
	red, err := presolve(p, r, tol)
	if err != nil {
		return nil, err
	}
	n := p.NumVars()
	sf := &standardForm{offset: make([]float64, n), lower: red.lower, upper: red.upper}

	costs := make([]float64, n)
	if !r.zeroCost {
		copy(costs, p.Objective())
	}
	inRows := make([]bool, n)
	for _, rw := range red.rows {
		for _, t := range rw.terms {
			inRows[t.Var] = true
		}
	}
	implied := red.impliedUpper()

	varCols := make([][]int, n)
	var rows []map[int]float64
	var rhs []float64
	var ineq []bool
	addCol := func(v int, sign float64) int {
		sf.cols = append(sf.cols, column{v: v, sign: sign})
		return len(sf.cols) - 1
	}

	for j := 0; j < n; j++ {
		lo, hi := red.lower[j], red.upper[j]
		loFinite, hiFinite := !math.IsInf(lo, -1), !math.IsInf(hi, 1)
		switch {
		case red.fixed(j):
			sf.offset[j] = lo
		case !inRows[j]:
			v, err := preferred(lo, hi, costs[j])
			if err != nil {
				return nil, err
			}
			sf.offset[j] = v
		case loFinite:
			sf.offset[j] = lo
			col := addCol(j, 1)
			varCols[j] = []int{col}
			if hiFinite && !implied[j] {
				rows = append(rows, map[int]float64{col: 1})
				rhs = append(rhs, hi-lo)
				ineq = append(ineq, true)
			}
		case hiFinite:
			sf.offset[j] = hi
			varCols[j] = []int{addCol(j, -1)}
		default:
			varCols[j] = []int{addCol(j, 1), addCol(j, -1)}
		}
	}

	for _, rw := range red.rows {
		b := rw.rhs
		coefs := make(map[int]float64, len(rw.terms))
		for _, t := range rw.terms {
			b -= t.Coef * sf.offset[t.Var]
			for _, col := range varCols[t.Var] {
				coefs[col] += t.Coef * sf.cols[col].sign
			}
		}
		for col, v := range coefs {
			if v == 0 {
				delete(coefs, col)
			}
		}
		if len(coefs) == 0 {
			if violated(rw.sense, b, tol*rw.scale) {
				return nil, errConstantInfeasible
			}
			continue
		}
		if rw.sense == program.GE {
			for col := range coefs {
				coefs[col] = -coefs[col]
			}
			b = -b
		}
		rows = append(rows, coefs)
		rhs = append(rhs, b)
		ineq = append(ineq, rw.sense != program.EQ)
	}

	// columns whose coefficients cancelled everywhere behave like variables
	// without rows
	used := make([]bool, len(sf.cols))
	for _, coefs := range rows {
		for col := range coefs {
			used[col] = true
		}
	}
	remap := make([]int, len(sf.cols))
	var kept []column
	var keptCost []float64
	for k, col := range sf.cols {
		cost := costs[col.v] * col.sign
		if !used[k] {
			if cost < 0 {
				return nil, errFreeUnbounded
			}
			remap[k] = -1
			continue
		}
		remap[k] = len(kept)
		kept = append(kept, col)
		keptCost = append(keptCost, cost)
	}
	sf.slack = make([]int, len(rows))
	for i, isIneq := range ineq {
		sf.slack[i] = -1
		if isIneq {
			sf.slack[i] = len(kept)
			kept = append(kept, column{v: -1})
			keptCost = append(keptCost, 0)
		}
	}
	sf.cols = kept
	sf.c = keptCost
	sf.b = rhs
	if len(rows) == 0 {
		return sf, nil
	}

	sf.a = mat.NewDense(len(rows), len(kept), nil)
	for i, coefs := range rows {
		for col, v := range coefs {
			sf.a.Set(i, remap[col], v)
		}
		if k := sf.slack[i]; k >= 0 {
			sf.a.Set(i, k, 1)
		}
	}
	return sf, nil
}

// preferred is the value of a variable that appears in no row: the bound its
// cost pulls it to, or the finite bound closest to zero when it has no cost.
func preferred(lo, hi, cost float64) (float64, error) {
	switch {
	case cost > 0:
		if math.IsInf(lo, -1) {
			return 0, errFreeUnbounded
		}
		return lo, nil
	case cost < 0:
		if math.IsInf(hi, 1) {
			return 0, errFreeUnbounded
		}
		return hi, nil
	}
	return math.Max(lo, math.Min(hi, 0)), nil
}

// values maps a standard-form solution back to problem variables, clamped to
// the presolved bounds.
func (sf *standardForm) values(y []float64) []float64 {
	x := append([]float64(nil), sf.offset...)
	for k, col := range sf.cols {
		if col.v < 0 {
			continue
		}
		x[col.v] += col.sign * y[k]
	}
	for j := range x {
		x[j] = math.Max(sf.lower[j], math.Min(sf.upper[j], x[j]))
	}
	return x
}
