package filter

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	gif "github.com/milosgajdos/go-gif"
	"github.com/milosgajdos/go-gif/element"
	"github.com/milosgajdos/go-gif/matrix"
	"github.com/milosgajdos/go-gif/residual"
)

// part is one residual applicable on a sub-interval together with its
// measurement.
type part struct {
	slot *slot
	meas *element.Vector
}

// step advances the information pair (xHat, infPrev) at t0 across the
// sub-interval (t0, t1] by an iterated Gauss-Newton solve over the joint
// previous/current tangent, then marginalises the previous state.
//
// State elements not covered by any applicable residual's current state
// are carried over: their current tangent is identified with the previous
// one, so they keep their information across the interval.
func (f *Filter) step(xHat *element.Vector, infPrev *mat.SymDense, t0, t1 gif.TimePoint, parts []part) (*element.Vector, *mat.SymDense, error) {
	n := f.def.Dim()

	// current-state coverage and column layout: previous tangent occupies
	// columns [0,n), covered current elements stack after it
	covered := make([]bool, f.def.Len())
	for _, p := range parts {
		for _, e := range p.slot.curIdx {
			if f.def.TraitsAt(e).Dim() > 0 {
				covered[e] = true
			}
		}
	}
	vCol := make([]int, f.def.Len())
	m := 0
	for e := range covered {
		if covered[e] {
			vCol[e] = n + m
			m += f.def.TraitsAt(e).Dim()
		}
	}
	if m == 0 {
		return xHat.Clone(), copySym(infPrev), nil
	}
	N := n + m

	innTotal := 0
	for _, p := range parts {
		innTotal += p.slot.res.InnDefinition().Dim()
	}

	xPre := xHat.Clone()
	xCur := xHat.Clone()
	dPrior := mat.NewVecDense(n, nil)
	dCur := mat.NewVecDense(n, nil)

	var aSym *mat.SymDense
	converged := false

	for it := 0; it < f.maxIter; it++ {
		r := mat.NewVecDense(innTotal, nil)
		jac := mat.NewDense(innTotal, N, nil)
		w := mat.NewDense(innTotal, innTotal, nil)

		row := 0
		for _, p := range parts {
			res := p.slot.res
			innD := res.InnDefinition().Dim()

			res.BindMeasurement(p.meas, t1.Sub(t0))
			rk, wk, err := f.evalPart(p, xPre, xCur, jac.Slice(row, row+innD, 0, N).(*mat.Dense), vCol)
			res.ClearMeasurement()
			if err != nil {
				return nil, nil, err
			}

			r.SliceVec(row, row+innD).(*mat.VecDense).CopyVec(rk)
			w.Slice(row, row+innD, row, row+innD).(*mat.Dense).Copy(wk)
			row += innD
		}

		// normal equations with the one-step information prior on the
		// previous tangent
		jw := &mat.Dense{}
		jw.Mul(jac.T(), w)
		a := &mat.Dense{}
		a.Mul(jw, jac)
		b := mat.NewVecDense(N, nil)
		b.MulVec(jw, r)
		b.ScaleVec(-1.0, b)

		if err := xPre.BoxMinus(xHat, dPrior); err != nil {
			return nil, nil, err
		}
		av := a.Slice(0, n, 0, n).(*mat.Dense)
		av.Add(av, infPrev)
		id := mat.NewVecDense(n, nil)
		id.MulVec(infPrev, dPrior)
		bv := b.SliceVec(0, n).(*mat.VecDense)
		bv.SubVec(bv, id)

		aSym = matrix.Symmetrize(a)
		delta, err := matrix.SolveCholVec(aSym, b)
		if err != nil {
			return nil, nil, errors.Wrap(err, "normal equations")
		}

		// apply the joint correction; carried-over elements follow the
		// previous tangent
		du := delta.SliceVec(0, n)
		if err := xPre.BoxPlus(du, xPre); err != nil {
			return nil, nil, err
		}
		for e := 0; e < f.def.Len(); e++ {
			d := f.def.TraitsAt(e).Dim()
			if d == 0 {
				continue
			}
			off := f.def.Offset(e)
			src := off
			if covered[e] {
				src = vCol[e]
			}
			dCur.SliceVec(off, off+d).(*mat.VecDense).CopyVec(delta.SliceVec(src, src+d))
		}
		if err := xCur.BoxPlus(dCur, xCur); err != nil {
			return nil, nil, err
		}

		if maxAbs(delta) < f.tangentTol {
			converged = true
			break
		}
	}
	if !converged {
		return nil, nil, ErrNoConvergence
	}

	// marginalise the previous tangent: keep the current tangent of every
	// state element (covered columns, or the carried-over previous ones)
	keep := make([]int, 0, n)
	drop := make([]int, 0, m)
	for e := 0; e < f.def.Len(); e++ {
		d := f.def.TraitsAt(e).Dim()
		off := f.def.Offset(e)
		if covered[e] {
			for k := 0; k < d; k++ {
				keep = append(keep, vCol[e]+k)
				drop = append(drop, off+k)
			}
			continue
		}
		for k := 0; k < d; k++ {
			keep = append(keep, off+k)
		}
	}

	infCur, err := schur(aSym, keep, drop)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marginalisation")
	}

	return xCur, infCur, nil
}

// evalPart evaluates one residual at the current linearisation point,
// scattering its Jacobians into the joint row block, and returns the
// innovation together with the weight matrix (J_noi Sigma J_noi')^-1
// scaled by the residual noise weighting. vCol maps covered state
// elements to their current-tangent column.
func (f *Filter) evalPart(p part, xPre, xCur *element.Vector, jacRow *mat.Dense, vCol []int) (*mat.VecDense, *mat.Dense, error) {
	res := p.slot.res
	innD := res.InnDefinition().Dim()

	pre := element.NewVector(res.PreDefinition())
	pre.AssignSubset(xPre)
	cur := element.NewVector(res.CurDefinition())
	cur.AssignSubset(xCur)
	noi := element.NewVector(res.NoiDefinition())

	rk, err := residual.Innovation(res, pre, cur, noi)
	if err != nil {
		return nil, nil, err
	}

	// scatter the pre Jacobian into the previous-tangent columns
	if preD := res.PreDefinition().Dim(); preD > 0 {
		jp := mat.NewDense(innD, preD, nil)
		if err := res.JacPre(jp, pre, cur, noi); err != nil {
			return nil, nil, err
		}
		for k := 0; k < res.PreDefinition().Len(); k++ {
			e := p.slot.preIdx[k]
			d := f.def.TraitsAt(e).Dim()
			if d == 0 {
				continue
			}
			lo := res.PreDefinition().Offset(k)
			dst := f.def.Offset(e)
			jacRow.Slice(0, innD, dst, dst+d).(*mat.Dense).Copy(jp.Slice(0, innD, lo, lo+d))
		}
	}

	// scatter the cur Jacobian into the covered current-tangent columns
	curD := res.CurDefinition().Dim()
	jc := mat.NewDense(innD, curD, nil)
	if err := res.JacCur(jc, pre, cur, noi); err != nil {
		return nil, nil, err
	}
	for k := 0; k < res.CurDefinition().Len(); k++ {
		e := p.slot.curIdx[k]
		d := f.def.TraitsAt(e).Dim()
		if d == 0 {
			continue
		}
		lo := res.CurDefinition().Offset(k)
		// covered by construction
		dst := vCol[e]
		jacRow.Slice(0, innD, dst, dst+d).(*mat.Dense).Copy(jc.Slice(0, innD, lo, lo+d))
	}

	// weight: inverse of the noise covariance mapped through JacNoi
	noiD := res.NoiDefinition().Dim()
	jn := mat.NewDense(innD, noiD, nil)
	if err := res.JacNoi(jn, pre, cur, noi); err != nil {
		return nil, nil, err
	}
	js := &mat.Dense{}
	js.Mul(jn, res.NoiseCovariance())
	rNoi := &mat.Dense{}
	rNoi.Mul(js, jn.T())
	wk, err := matrix.SPDInverse(matrix.Symmetrize(rNoi))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "noise covariance of %s", res.Name())
	}

	wd := mat.NewDense(innD, innD, nil)
	weights := make([]float64, innD)
	for i := range weights {
		weights[i] = res.NoiseWeighting(rk, i)
	}
	for i := 0; i < innD; i++ {
		for j := 0; j < innD; j++ {
			wd.Set(i, j, weights[i]*weights[j]*wk.At(i, j))
		}
	}

	return rk, wd, nil
}

func copySym(a *mat.SymDense) *mat.SymDense {
	out := mat.NewSymDense(a.SymmetricDim(), nil)
	out.CopySym(a)
	return out
}

func maxAbs(v mat.Vector) float64 {
	m := 0.0
	for i := 0; i < v.Len(); i++ {
		if a := math.Abs(v.AtVec(i)); a > m {
			m = a
		}
	}
	return m
}

// schur marginalises the drop columns of a: it returns
// a[keep,keep] - a[keep,drop] a[drop,drop]^-1 a[drop,keep].
func schur(a *mat.SymDense, keep, drop []int) (*mat.SymDense, error) {
	akk := pick(a, keep, keep)
	akd := pick(a, keep, drop)
	adk := pick(a, drop, keep)
	add := matrix.Symmetrize(pick(a, drop, drop))

	x, err := matrix.SolveChol(add, adk)
	if err != nil {
		return nil, err
	}

	prod := &mat.Dense{}
	prod.Mul(akd, x)
	out := &mat.Dense{}
	out.Sub(akk, prod)

	return matrix.Symmetrize(out), nil
}

func pick(a mat.Matrix, rows, cols []int) *mat.Dense {
	out := mat.NewDense(len(rows), len(cols), nil)
	for i, r := range rows {
		for j, c := range cols {
			out.Set(i, j, a.At(r, c))
		}
	}
	return out
}
