package lpsolver

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Tolerances of the two-phase method. They apply to scaled forms, whose
// right-hand side and costs have unit magnitude.
const (
	// phaseOneTol is the largest phase one objective of a feasible problem.
	phaseOneTol = 1e-9
	// supportTol separates basic values from zero in a phase one solution.
	supportTol = 1e-11
	// independentTol is the relative remainder below which a vector counts as
	// a combination of the ones already chosen.
	independentTol = 1e-9
	// settleTol is how far below zero a basic value may round before the
	// basis is rejected.
	settleTol = 1e-9
)

var errNoBasis = errors.New("no basis spans the constraint rows")

// solveStandard solves sf and retries numerical failures on other forms:
// the fully scaled two-phase method, the row-scaled two-phase method, then
// lp.Simplex's own phase one on the scaled and on the raw form. An infeasible
// or unbounded answer ends the sequence.
func solveStandard(sf *standardForm) ([]float64, error) {
	attempts := []func() ([]float64, error){
		func() ([]float64, error) {
			s := equilibrate(sf, false)
			w, err := twoPhase(s.a, s.b, s.c, sf.slack)
			return s.unscale(w), err
		},
		func() ([]float64, error) {
			s := equilibrate(sf, true)
			w, err := twoPhase(s.a, s.b, s.c, sf.slack)
			return s.unscale(w), err
		},
		func() ([]float64, error) {
			s := equilibrate(sf, false)
			_, w, err := simplex(s.c, s.a, s.b, nil)
			return s.unscale(w), err
		},
		func() ([]float64, error) {
			_, y, err := simplex(sf.c, sf.a, sf.b, nil)
			return y, err
		},
	}
	var errs []error
	for _, try := range attempts {
		y, err := try()
		if err == nil || errors.Is(err, lp.ErrInfeasible) || errors.Is(err, lp.ErrUnbounded) {
			return y, err
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// simplex calls lpSolve and turns panics into errors: lp.Simplex panics on a
// supplied basis that rounding made slightly infeasible.
func simplex(c []float64, a mat.Matrix, b []float64, basis []int) (obj float64, x []float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			obj, x, err = math.NaN(), nil, fmt.Errorf("simplex panic: %v", rec)
		}
	}()
	return lpSolve(c, a, b, simplexTol, basis)
}

// twoPhase solves min c'w s.t. A w = b, w >= 0. Phase one starts from the
// slack of every row whose slack can carry the right-hand side and from a
// unit artificial column elsewhere, so its first basis is diagonal. Phase two
// starts from a basis spanning the phase one point.
func twoPhase(a *mat.Dense, b, c []float64, slack []int) ([]float64, error) {
	m, n := a.Dims()
	a = mat.DenseCopyOf(a)
	b = append([]float64(nil), b...)
	basis := make([]int, m)
	var art []int
	for i := 0; i < m; i++ {
		if b[i] < 0 {
			floats.Scale(-1, a.RawRowView(i))
			b[i] = -b[i]
		}
		if k := slack[i]; k >= 0 && a.At(i, k) > 0 {
			basis[i] = k
			continue
		}
		basis[i] = n + len(art)
		art = append(art, i)
	}

	if len(art) > 0 {
		a1 := mat.NewDense(m, n+len(art), nil)
		a1.Slice(0, m, 0, n).(*mat.Dense).Copy(a)
		c1 := make([]float64, n+len(art))
		for k, i := range art {
			a1.Set(i, n+k, 1)
			c1[n+k] = 1
		}
		_, w1, err := simplex(c1, a1, b, basis)
		if err != nil {
			return nil, fmt.Errorf("phase one: %w", err)
		}
		if floats.Sum(w1[n:]) > phaseOneTol {
			return nil, lp.ErrInfeasible
		}
		if a, b, basis, err = restoreBasis(a, b, w1[:n], slack); err != nil {
			return nil, err
		}
	}
	_, w, err := simplex(c, a, b, basis)
	return w, err
}

// restoreBasis returns linearly independent columns of a spanning its rows
// and covering the support of the feasible point w. Slack columns are tried
// before structural ones. Rows that combine others are dropped first; w
// satisfies them already.
func restoreBasis(a *mat.Dense, b, w []float64, slack []int) (*mat.Dense, []float64, []int, error) {
	m, n := a.Dims()
	var order []int
	queued := make([]bool, n)
	push := func(j int) {
		if !queued[j] {
			queued[j] = true
			order = append(order, j)
		}
	}
	for j, v := range w {
		if v > supportTol {
			push(j)
		}
	}
	for _, k := range slack {
		if k >= 0 {
			push(k)
		}
	}
	for j := 0; j < n; j++ {
		push(j)
	}

	basis := pickColumns(a, order, m)
	if len(basis) < m {
		rows := independentRows(a, slack)
		if len(rows) == m {
			return nil, nil, nil, errNoBasis
		}
		sub := mat.NewDense(len(rows), n, nil)
		sb := make([]float64, len(rows))
		for r, i := range rows {
			sub.SetRow(r, a.RawRowView(i))
			sb[r] = b[i]
		}
		for j := 0; j < n; j++ {
			if floats.Norm(mat.Col(nil, j, sub), math.Inf(1)) == 0 {
				return nil, nil, nil, errNoBasis
			}
		}
		a, b, m = sub, sb, len(rows)
		if basis = pickColumns(a, order, m); len(basis) < m {
			return nil, nil, nil, errNoBasis
		}
	}
	b, err := settle(a, b, basis)
	return a, b, basis, err
}

// pickColumns greedily collects up to m linearly independent columns of a in
// the given order.
func pickColumns(a *mat.Dense, order []int, m int) []int {
	var sp span
	basis := make([]int, 0, m)
	for _, j := range order {
		if len(basis) == m {
			break
		}
		if sp.add(mat.Col(nil, j, a)) {
			basis = append(basis, j)
		}
	}
	return basis
}

// independentRows returns a maximal set of linearly independent rows of a in
// ascending order. Rows with a slack column cannot combine others and are
// taken first.
func independentRows(a *mat.Dense, slack []int) []int {
	m, _ := a.Dims()
	order := make([]int, 0, m)
	for i := 0; i < m; i++ {
		if slack[i] >= 0 {
			order = append(order, i)
		}
	}
	for i := 0; i < m; i++ {
		if slack[i] < 0 {
			order = append(order, i)
		}
	}
	var sp span
	var rows []int
	for _, i := range order {
		if sp.add(append([]float64(nil), a.RawRowView(i)...)) {
			rows = append(rows, i)
		}
	}
	sort.Ints(rows)
	return rows
}

// settle checks that basis reproduces a non-negative point and removes the
// rounding noise below zero by adjusting b, so that lp.Simplex accepts the
// basis as feasible.
func settle(a *mat.Dense, b []float64, basis []int) ([]float64, error) {
	m := len(basis)
	ab := mat.NewDense(m, m, nil)
	for k, j := range basis {
		ab.SetCol(k, mat.Col(nil, j, a))
	}
	var xb mat.VecDense
	if err := xb.SolveVec(ab, mat.NewVecDense(m, b)); err != nil {
		return nil, fmt.Errorf("restore basis: %w", err)
	}
	noisy := false
	for i := 0; i < m; i++ {
		switch v := xb.AtVec(i); {
		case v < -settleTol:
			return nil, fmt.Errorf("restore basis: basic value %g below zero", v)
		case v < 0:
			xb.SetVec(i, 0)
			noisy = true
		}
	}
	if !noisy {
		return b, nil
	}
	var nb mat.VecDense
	nb.MulVec(ab, &xb)
	return mat.Col(nil, 0, &nb), nil
}

// span is an orthonormal basis grown by modified Gram-Schmidt with one
// reorthogonalisation pass.
type span struct {
	q [][]float64
}

// add keeps v, which it may overwrite, when its remainder outside the span is
// not negligible relative to v.
func (s *span) add(v []float64) bool {
	norm := floats.Norm(v, 2)
	if norm == 0 {
		return false
	}
	for pass := 0; pass < 2; pass++ {
		for _, q := range s.q {
			floats.AddScaled(v, -floats.Dot(q, v), q)
		}
	}
	rest := floats.Norm(v, 2)
	if rest <= independentTol*norm {
		return false
	}
	floats.Scale(1/rest, v)
	s.q = append(s.q, v)
	return true
}
