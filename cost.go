package doctorai

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

const defaultLogEpsilon = 1e-8

// MultiLabelCE is a multi-label cross-entropy cost over
// softmax outputs.
//
// The actual argument contains raw logits and desired
// contains multi-hot code indicators. With p the softmax
// probabilities, the cost of one sample is
//
//	-sum_i [y_i*log(p_i) + (1-y_i)*log(1-p_i+eps)]
//
// summed over the vocabulary.
type MultiLabelCE struct {
	// Epsilon stabilizes the complement logarithm.
	// If it is 0, a small default is used.
	Epsilon float64
}

// Cost produces one cost per sample in the batch.
func (m MultiLabelCE) Cost(desired, actual anydiff.Res, n int) anydiff.Res {
	cols := actual.Output().Len() / n
	products := anydiff.Pool(desired, func(desired anydiff.Res) anydiff.Res {
		logProbs := anydiff.LogSoftmax(actual, cols)
		return anydiff.Pool(logProbs, func(logProbs anydiff.Res) anydiff.Res {
			miss := logComplement(anydiff.Exp(logProbs), m.epsilon())
			return anydiff.Add(
				anydiff.Mul(desired, logProbs),
				anydiff.Mul(anydiff.Complement(desired), miss),
			)
		})
	})
	sums := anydiff.SumCols(&anydiff.Matrix{
		Data: products,
		Rows: n,
		Cols: cols,
	})
	return anydiff.Scale(sums, sums.Output().Creator().MakeNumeric(-1))
}

func (m MultiLabelCE) epsilon() float64 {
	if m.Epsilon == 0 {
		return defaultLogEpsilon
	}
	return m.Epsilon
}

// logComplement computes log(1-p+eps) component-wise.
func logComplement(p anydiff.Res, eps float64) anydiff.Res {
	c := p.Output().Creator()
	comp := c.MakeVector(p.Output().Len())
	comp.AddScalar(c.MakeNumeric(1 + eps))
	comp.Sub(p.Output())
	out := comp.Copy()
	anyvec.Log(out)
	return &logComplementRes{
		In:     p,
		Comp:   comp,
		OutVec: out,
	}
}

type logComplementRes struct {
	In     anydiff.Res
	Comp   anyvec.Vector
	OutVec anyvec.Vector
}

func (l *logComplementRes) Output() anyvec.Vector {
	return l.OutVec
}

func (l *logComplementRes) Vars() anydiff.VarSet {
	return l.In.Vars()
}

func (l *logComplementRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	// d/dp log(1-p+eps) = -1/(1-p+eps)
	u.Div(l.Comp)
	u.Scale(u.Creator().MakeNumeric(-1))
	l.In.Propagate(u, g)
}
