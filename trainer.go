package doctorai

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A Sample is one patient's visit sequence after the
// next-visit shift: Input holds the multi-hot vectors for
// all visits but the last, and Output the vectors for all
// visits but the first.
type Sample struct {
	Input  []anyvec.Vector
	Output []anyvec.Vector
}

// A SampleList is an anysgd.SampleList that produces
// next-visit prediction samples.
type SampleList interface {
	anysgd.SampleList

	GetSample(idx int) (*Sample, error)
	Creator() anyvec.Creator
}

// A Batch stores an input and label batch in a packed
// format.
type Batch struct {
	Inputs  anyseq.Seq
	Outputs anyseq.Seq
}

// A Trainer fetches batches and computes costs and
// gradients for a Model.
type Trainer struct {
	Model  *Model
	Cost   anynet.Cost
	Params []*anydiff.Var

	// L2 is the coefficient of the squared-norm penalty on
	// the output projection weights.
	// If it is 0, no penalty is applied.
	L2 float64

	// After every gradient computation, LastCost is set to
	// the cost from the batch.
	LastCost anyvec.Numeric
}

// Fetch produces a *Batch for the subset of samples.
// The s argument must implement SampleList.
// The batch may not be empty.
func (t *Trainer) Fetch(s anysgd.SampleList) (anysgd.Batch, error) {
	if s.Len() == 0 {
		return nil, errors.New("fetch batch: empty batch")
	}
	l := s.(SampleList)
	ins := make([][]anyvec.Vector, l.Len())
	outs := make([][]anyvec.Vector, l.Len())
	for i := 0; i < l.Len(); i++ {
		sample, err := l.GetSample(i)
		if err != nil {
			return nil, essentials.AddCtx("fetch batch", err)
		}
		ins[i] = sample.Input
		outs[i] = sample.Output
	}
	cr := l.Creator()
	return &Batch{
		Inputs:  anyseq.ConstSeqList(cr, ins),
		Outputs: anyseq.ConstSeqList(cr, outs),
	}, nil
}

// TotalCost computes the cost for a *Batch.
//
// Each sample's cost is summed over its valid timesteps,
// divided by the sample's true sequence length, and
// averaged over the batch; padded positions never enter
// the sum. If L2 is set, the squared-norm penalty on the
// output weights is added.
func (t *Trainer) TotalCost(batch anysgd.Batch) anydiff.Res {
	b := batch.(*Batch)

	actual := t.Model.Apply(b.Inputs)
	labels := b.Outputs.Output()
	if len(actual.Output()) != len(labels) {
		panic("mismatching actual and desired sequence shapes")
	}
	if len(labels) == 0 {
		panic("empty batch")
	}
	weights := stepWeights(labels)

	var idx int
	costs := anyseq.Map(actual, func(a anydiff.Res, n int) anydiff.Res {
		label := labels[idx]
		if label.NumPresent() != n {
			panic("mismatching actual and desired sequence shapes")
		}
		w := weights[idx]
		idx++
		c := t.Cost.Cost(anydiff.NewConst(label.Packed), a, n)
		return anydiff.Mul(c, anydiff.NewConst(w))
	})

	total := anydiff.Sum(anyseq.Sum(costs))
	numSeqs := len(labels[0].Present)
	total = anydiff.Scale(total, total.Output().Creator().MakeNumeric(1/float64(numSeqs)))

	if t.L2 > 0 {
		outW := t.Model.Out.Weights
		penalty := anydiff.Scale(anydiff.Sum(anydiff.Square(outW)),
			outW.Vector.Creator().MakeNumeric(t.L2/2))
		total = anydiff.Add(total, penalty)
	}
	return total
}

// Gradient computes the gradient for the batch's cost.
// It also sets t.LastCost to the numerical value of the
// total cost.
//
// The b argument must be a *Batch.
func (t *Trainer) Gradient(b anysgd.Batch) anydiff.Grad {
	grad, lc := anysgd.CosterGrad(t, b, t.Params)
	t.LastCost = lc
	return grad
}

// EvalCost computes the cost over an entire sample list
// with dropout disabled.
func (t *Trainer) EvalCost(s anysgd.SampleList) (float64, error) {
	batch, err := t.Fetch(s)
	if err != nil {
		return 0, essentials.AddCtx("eval cost", err)
	}
	defer t.pauseDropout()()
	cost := t.TotalCost(batch)
	return floatValue(anyvec.Sum(cost.Output())), nil
}

// EvalLastStep computes the mean cross-entropy at each
// sequence's final valid visit, with dropout disabled.
//
// This metric is reported for evaluation only; it is not
// part of the training cost.
func (t *Trainer) EvalLastStep(s anysgd.SampleList) (float64, error) {
	batch, err := t.Fetch(s)
	if err != nil {
		return 0, essentials.AddCtx("eval last step", err)
	}
	defer t.pauseDropout()()

	b := batch.(*Batch)
	actual := t.Model.Apply(b.Inputs).Output()
	labels := b.Outputs.Output()
	if len(actual) == 0 {
		return 0, errors.New("eval last step: empty batch")
	}

	last := make([]float64, len(labels[0].Present))
	for ti, a := range actual {
		label := labels[ti]
		cost := t.Cost.Cost(anydiff.NewConst(label.Packed),
			anydiff.NewConst(a.Packed), a.NumPresent())
		vals := floats(cost.Output().Data())
		var j int
		for i, p := range a.Present {
			if p {
				last[i] = vals[j]
				j++
			}
		}
	}

	var sum float64
	for _, x := range last {
		sum += x
	}
	return sum / float64(len(last)), nil
}

func (t *Trainer) pauseDropout() func() {
	enabled := t.Model.Dropout.Enabled
	t.Model.Dropout.Enabled = false
	return func() {
		t.Model.Dropout.Enabled = enabled
	}
}

// stepWeights computes, for every timestep, a vector with
// one entry per present sequence containing the reciprocal
// of that sequence's total length.
func stepWeights(steps []*anyseq.Batch) []anyvec.Vector {
	c := steps[0].Packed.Creator()
	lengths := make([]int, len(steps[0].Present))
	for _, s := range steps {
		for i, p := range s.Present {
			if p {
				lengths[i]++
			}
		}
	}
	res := make([]anyvec.Vector, len(steps))
	for t, s := range steps {
		w := make([]float64, 0, s.NumPresent())
		for i, p := range s.Present {
			if p {
				w = append(w, 1/float64(lengths[i]))
			}
		}
		res[t] = c.MakeVectorData(c.MakeNumericList(w))
	}
	return res
}

func floatValue(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", n))
	}
}

func floats(list anyvec.NumericList) []float64 {
	switch list := list.(type) {
	case []float32:
		res := make([]float64, len(list))
		for i, x := range list {
			res[i] = float64(x)
		}
		return res
	case []float64:
		return list
	default:
		panic(fmt.Sprintf("unsupported numeric list type: %T", list))
	}
}
