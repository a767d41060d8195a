package lpsolver

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// scalePasses is the number of geometric-mean row and column rounds run
// before the final column equilibration.
const scalePasses = 4

// scaled is a standard form rescaled as A' = R A S, b' = R b / beta and
// c' = S c / gamma. A solution w of the scaled form maps back as
// y = beta * S w. Scale factors are powers of two so the rescaling itself
// adds no rounding error.
type scaled struct {
	a    *mat.Dense
	b, c []float64
	col  []float64
	beta float64
}

// equilibrate scales the rows and columns of sf towards unit magnitude and
// normalises the right-hand side and costs. With rowsOnly set only row
// scaling is applied.
func equilibrate(sf *standardForm, rowsOnly bool) *scaled {
	m, n := sf.a.Dims()
	rowScale := ones(m)
	colScale := ones(n)

	passes := scalePasses
	if rowsOnly {
		passes = 1
	}
	for pass := 0; pass < passes; pass++ {
		for i := 0; i < m; i++ {
			lo, hi := math.Inf(1), 0.0
			for j := 0; j < n; j++ {
				if v := math.Abs(sf.a.At(i, j)) * colScale[j]; v > 0 {
					lo, hi = math.Min(lo, v), math.Max(hi, v)
				}
			}
			switch {
			case hi == 0:
			case rowsOnly:
				rowScale[i] = pow2(1 / hi)
			default:
				rowScale[i] = pow2(1 / math.Sqrt(lo*hi))
			}
		}
		if rowsOnly {
			break
		}
		for j := 0; j < n; j++ {
			lo, hi := math.Inf(1), 0.0
			for i := 0; i < m; i++ {
				if v := math.Abs(sf.a.At(i, j)) * rowScale[i]; v > 0 {
					lo, hi = math.Min(lo, v), math.Max(hi, v)
				}
			}
			if hi > 0 {
				colScale[j] = pow2(1 / math.Sqrt(lo*hi))
			}
		}
	}
	if !rowsOnly {
		for j := 0; j < n; j++ {
			hi := 0.0
			for i := 0; i < m; i++ {
				hi = math.Max(hi, math.Abs(sf.a.At(i, j))*rowScale[i]*colScale[j])
			}
			if hi > 0 {
				colScale[j] *= pow2(1 / hi)
			}
		}
	}

	s := &scaled{a: mat.NewDense(m, n, nil), col: colScale, beta: 1}
	s.a.Apply(func(i, j int, v float64) float64 { return v * rowScale[i] * colScale[j] }, sf.a)
	s.b = make([]float64, m)
	floats.MulTo(s.b, rowScale, sf.b)
	if hi := floats.Norm(s.b, math.Inf(1)); hi > 0 {
		s.beta = pow2(hi)
		floats.Scale(1/s.beta, s.b)
	}
	s.c = make([]float64, n)
	floats.MulTo(s.c, colScale, sf.c)
	if hi := floats.Norm(s.c, math.Inf(1)); hi > 0 {
		floats.Scale(1/pow2(hi), s.c)
	}
	return s
}

// unscale maps a scaled solution back to the standard form.
func (s *scaled) unscale(w []float64) []float64 {
	if w == nil {
		return nil
	}
	y := make([]float64, len(w))
	floats.MulTo(y, s.col, w)
	floats.Scale(s.beta, y)
	return y
}

func pow2(v float64) float64 {
	return math.Exp2(math.Round(math.Log2(v)))
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}
