package residual

import (
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-gif/element"
)

// Predictor is a prediction model cur = P(pre, noi; meas). Its Jacobians
// map the pre and noi tangents to the tangent of the predicted state.
type Predictor interface {
	// Predict writes the predicted state into cur
	Predict(cur *element.Vector, pre, noi *element.Vector) error
	// PredictJacPre writes the Jacobian of Predict w.r.t. pre into jac
	PredictJacPre(jac *mat.Dense, pre, noi *element.Vector) error
	// PredictJacNoi writes the Jacobian of Predict w.r.t. noi into jac
	PredictJacNoi(jac *mat.Dense, pre, noi *element.Vector) error
}

// Prediction adapts a Predictor into a binary residual whose innovation is
// cur boxminus P(pre, noi). Its residual Jacobians are derived from the
// prediction Jacobians through the boxminus Jacobians of the current
// state, so concrete predictions only implement the Predictor contract.
type Prediction struct {
	*Base
	model Predictor
}

// NewPrediction creates a prediction residual over the given state and
// noise definitions. The innovation definition equals the state
// definition. Predictions are always splittable and mergeable and use the
// default split and merge policies of Base.
func NewPrediction(name string, model Predictor, state, noi *element.Definition) (*Prediction, error) {
	base, err := NewBase(name, state, state, state, noi, false, true, true)
	if err != nil {
		return nil, err
	}

	return &Prediction{
		Base:  base,
		model: model,
	}, nil
}

// Model returns the wrapped prediction model.
func (p *Prediction) Model() Predictor { return p.model }

// Eval evaluates the innovation cur boxminus Predict(pre, noi), expressed
// as an element vector: identity boxplus the boxminus tangent.
func (p *Prediction) Eval(inn *element.Vector, pre, cur, noi *element.Vector) error {
	pred := element.NewVector(p.CurDefinition())
	if err := p.model.Predict(pred, pre, noi); err != nil {
		return err
	}

	d := mat.NewVecDense(p.CurDefinition().Dim(), nil)
	if err := cur.BoxMinus(pred, d); err != nil {
		return err
	}

	return element.NewVector(p.InnDefinition()).BoxPlus(d, inn)
}

// JacPre writes the Jacobian w.r.t. pre: the boxminus reference Jacobian
// of the current state chained with the prediction Jacobian.
func (p *Prediction) JacPre(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	jp := mat.NewDense(p.CurDefinition().Dim(), p.PreDefinition().Dim(), nil)
	if err := p.model.PredictJacPre(jp, pre, noi); err != nil {
		return err
	}

	jref, err := p.boxminusJacRef(pre, cur, noi)
	if err != nil {
		return err
	}
	jac.Mul(jref, jp)

	return nil
}

// JacCur writes the Jacobian w.r.t. cur: the block diagonal boxminus input
// Jacobian at (cur, predicted).
func (p *Prediction) JacCur(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	pred := element.NewVector(p.CurDefinition())
	if err := p.model.Predict(pred, pre, noi); err != nil {
		return err
	}

	def := p.CurDefinition()
	jac.Zero()
	for i := 0; i < def.Len(); i++ {
		if def.TraitsAt(i).Dim() == 0 {
			continue
		}
		element.JacBlock(jac, def, def, i, i).Copy(def.TraitsAt(i).BoxminusJacInp(cur.At(i), pred.At(i)))
	}

	return nil
}

// JacNoi writes the Jacobian w.r.t. noi, chained like JacPre.
func (p *Prediction) JacNoi(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	jn := mat.NewDense(p.CurDefinition().Dim(), p.NoiDefinition().Dim(), nil)
	if err := p.model.PredictJacNoi(jn, pre, noi); err != nil {
		return err
	}

	jref, err := p.boxminusJacRef(pre, cur, noi)
	if err != nil {
		return err
	}
	jac.Mul(jref, jn)

	return nil
}

// boxminusJacRef assembles the block diagonal Jacobian of the innovation
// w.r.t. the predicted state.
func (p *Prediction) boxminusJacRef(pre, cur, noi *element.Vector) (*mat.Dense, error) {
	pred := element.NewVector(p.CurDefinition())
	if err := p.model.Predict(pred, pre, noi); err != nil {
		return nil, err
	}

	def := p.CurDefinition()
	j := mat.NewDense(def.Dim(), def.Dim(), nil)
	for i := 0; i < def.Len(); i++ {
		if def.TraitsAt(i).Dim() == 0 {
			continue
		}
		element.JacBlock(j, def, def, i, i).Copy(def.TraitsAt(i).BoxminusJacRef(cur.At(i), pred.At(i)))
	}

	return j, nil
}

// JacBlockPredictPre returns the writable sub-block of a prediction
// Jacobian for predicted element i w.r.t. previous state element k.
func (p *Prediction) JacBlockPredictPre(jac *mat.Dense, i, k int) *mat.Dense {
	return element.JacBlock(jac, p.CurDefinition(), p.PreDefinition(), i, k)
}

// JacBlockPredictNoi returns the writable sub-block of a prediction
// Jacobian for predicted element i w.r.t. noise element k.
func (p *Prediction) JacBlockPredictNoi(jac *mat.Dense, i, k int) *mat.Dense {
	return element.JacBlock(jac, p.CurDefinition(), p.NoiDefinition(), i, k)
}
