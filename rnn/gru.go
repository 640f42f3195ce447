// Package rnn provides recurrent building blocks for
// visit-sequence models.
package rnn

import (
	"errors"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var g GRUGate
	serializer.RegisterTypedDeserializer(g.SerializerType(), DeserializeGRUGate)
	var gru GRU
	serializer.RegisterTypedDeserializer(gru.SerializerType(), DeserializeGRU)
}

// GRU is a gated recurrent unit block.
//
// Per timestep, for input x and previous state h:
//
//	z := sigmoid(Wz*x + Uz*h + bz)
//	r := sigmoid(Wr*x + Ur*h + br)
//	c := tanh(Wc*x + Uc*(r*h) + bc)
//	out := z*h + (1-z)*c
//
// The state doubles as the output. It starts at zero for
// every sequence; nothing carries over between batches.
type GRU struct {
	InCount  int
	OutCount int

	Update    *GRUGate
	Reset     *GRUGate
	Candidate *GRUGate
}

// DeserializeGRU deserializes a GRU.
func DeserializeGRU(d []byte) (*GRU, error) {
	var update, reset, cand *GRUGate
	if err := serializer.DeserializeAny(d, &update, &reset, &cand); err != nil {
		return nil, essentials.AddCtx("deserialize GRU", err)
	}
	out := update.Biases.Vector.Len()
	in := update.InputWeights.Vector.Len() / out
	return &GRU{
		InCount:   in,
		OutCount:  out,
		Update:    update,
		Reset:     reset,
		Candidate: cand,
	}, nil
}

// NewGRU creates a new, randomized GRU.
func NewGRU(c anyvec.Creator, in, state int) *GRU {
	return &GRU{
		InCount:   in,
		OutCount:  state,
		Update:    NewGRUGate(c, in, state),
		Reset:     NewGRUGate(c, in, state),
		Candidate: NewGRUGate(c, in, state),
	}
}

// NewGRUZero creates a zero'd GRU.
func NewGRUZero(c anyvec.Creator, in, state int) *GRU {
	return &GRU{
		InCount:   in,
		OutCount:  state,
		Update:    NewGRUGateZero(c, in, state),
		Reset:     NewGRUGateZero(c, in, state),
		Candidate: NewGRUGateZero(c, in, state),
	}
}

// Start produces a zero start state.
func (g *GRU) Start(n int) anyrnn.State {
	c := g.Update.Biases.Vector.Creator()
	return anyrnn.NewVecState(c.MakeVector(g.OutCount), n)
}

// PropagateStart does nothing, since the start state is a
// constant zero vector.
func (g *GRU) PropagateStart(s anyrnn.StateGrad, grad anydiff.Grad) {
}

// Step performs one timestep.
func (g *GRU) Step(s anyrnn.State, in anyvec.Vector) anyrnn.Res {
	res := &gruRes{
		InPool:    anydiff.NewVar(in),
		StatePool: anydiff.NewVar(s.(*anyrnn.VecState).Vector),
	}

	update := anydiff.Sigmoid(g.Update.gate(res.InPool, res.StatePool))
	res.Out = anydiff.Pool(update, func(update anydiff.Res) anydiff.Res {
		reset := anydiff.Sigmoid(g.Reset.gate(res.InPool, res.StatePool))
		gated := anydiff.Mul(reset, res.StatePool)
		cand := anydiff.Tanh(g.Candidate.gate(res.InPool, gated))
		kept := anydiff.Mul(update, res.StatePool)
		return anydiff.Add(kept, anydiff.Mul(anydiff.Complement(update), cand))
	})

	res.OutState = &anyrnn.VecState{
		Vector:     res.Out.Output(),
		PresentMap: s.Present(),
	}
	res.V = anydiff.MergeVarSets(res.Out.Vars())
	res.V.Del(res.InPool)
	res.V.Del(res.StatePool)

	return res
}

// Parameters returns the parameters of all three gates.
func (g *GRU) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, gate := range []*GRUGate{g.Update, g.Reset, g.Candidate} {
		res = append(res, gate.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a GRU with the serializer package.
func (g *GRU) SerializerType() string {
	return "github.com/bramamoorthy/Electronic-Health-Records-GRUs/rnn.GRU"
}

// Serialize serializes the GRU.
func (g *GRU) Serialize() ([]byte, error) {
	return serializer.SerializeAny(g.Update, g.Reset, g.Candidate)
}

// A GRUGate computes a pre-activation value from the
// current input and the previous state.
type GRUGate struct {
	InputWeights *anydiff.Var
	StateWeights *anydiff.Var
	Biases       *anydiff.Var
}

// DeserializeGRUGate deserializes a GRUGate.
func DeserializeGRUGate(d []byte) (*GRUGate, error) {
	var iw, sw, b *anyvecsave.S
	if err := serializer.DeserializeAny(d, &iw, &sw, &b); err != nil {
		return nil, essentials.AddCtx("deserialize GRUGate", err)
	}
	out := b.Vector.Len()
	if sw.Vector.Len() != out*out {
		return nil, errors.New("deserialize GRUGate: incorrect state matrix size")
	}
	if iw.Vector.Len()%out != 0 {
		return nil, errors.New("deserialize GRUGate: incorrect input matrix size")
	}
	return &GRUGate{
		InputWeights: anydiff.NewVar(iw.Vector),
		StateWeights: anydiff.NewVar(sw.Vector),
		Biases:       anydiff.NewVar(b.Vector),
	}, nil
}

// NewGRUGate creates a randomized gate.
func NewGRUGate(c anyvec.Creator, in, state int) *GRUGate {
	res := NewGRUGateZero(c, in, state)
	anyvec.Rand(res.InputWeights.Vector, anyvec.Normal, nil)
	anyvec.Rand(res.StateWeights.Vector, anyvec.Normal, nil)
	res.InputWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(in))))
	res.StateWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(state))))
	return res
}

// NewGRUGateZero creates a zero'd gate.
func NewGRUGateZero(c anyvec.Creator, in, state int) *GRUGate {
	return &GRUGate{
		InputWeights: anydiff.NewVar(c.MakeVector(in * state)),
		StateWeights: anydiff.NewVar(c.MakeVector(state * state)),
		Biases:       anydiff.NewVar(c.MakeVector(state)),
	}
}

// Parameters returns the parameters of the gate.
func (g *GRUGate) Parameters() []*anydiff.Var {
	return []*anydiff.Var{g.InputWeights, g.StateWeights, g.Biases}
}

// SerializerType returns the unique ID used to serialize
// a GRUGate with the serializer package.
func (g *GRUGate) SerializerType() string {
	return "github.com/bramamoorthy/Electronic-Health-Records-GRUs/rnn.GRUGate"
}

// Serialize serializes the gate.
func (g *GRUGate) Serialize() ([]byte, error) {
	iw := &anyvecsave.S{Vector: g.InputWeights.Vector}
	sw := &anyvecsave.S{Vector: g.StateWeights.Vector}
	b := &anyvecsave.S{Vector: g.Biases.Vector}
	return serializer.SerializeAny(iw, sw, b)
}

func (g *GRUGate) gate(in, state anydiff.Res) anydiff.Res {
	out := g.Biases.Vector.Len()
	inCount := g.InputWeights.Vector.Len() / out
	wIn := applyWeights(inCount, out, g.InputWeights, in)
	wState := applyWeights(out, out, g.StateWeights, state)
	return anydiff.AddRepeated(anydiff.Add(wIn, wState), g.Biases)
}

type gruRes struct {
	InPool    *anydiff.Var
	StatePool *anydiff.Var
	OutState  anyrnn.State
	Out       anydiff.Res
	V         anydiff.VarSet
}

func (g *gruRes) State() anyrnn.State {
	return g.OutState
}

func (g *gruRes) Output() anyvec.Vector {
	return g.Out.Output()
}

func (g *gruRes) Vars() anydiff.VarSet {
	return g.V
}

func (g *gruRes) Propagate(u anyvec.Vector, s anyrnn.StateGrad,
	grad anydiff.Grad) (anyvec.Vector, anyrnn.StateGrad) {
	down := g.InPool.Vector.Creator().MakeVector(g.InPool.Vector.Len())
	downState := g.StatePool.Vector.Creator().MakeVector(g.StatePool.Vector.Len())
	grad[g.InPool] = down
	grad[g.StatePool] = downState
	if s != nil {
		u.Add(s.(*anyrnn.VecState).Vector)
	}
	g.Out.Propagate(u, grad)
	delete(grad, g.InPool)
	delete(grad, g.StatePool)
	return down, &anyrnn.VecState{
		Vector:     downState,
		PresentMap: g.OutState.Present(),
	}
}

func applyWeights(in, out int, weights anydiff.Res, batch anydiff.Res) anydiff.Res {
	weightMat := &anydiff.Matrix{Data: weights, Rows: out, Cols: in}
	inMat := &anydiff.Matrix{Data: batch, Rows: batch.Output().Len() / in, Cols: in}
	return anydiff.MatMul(false, true, inMat, weightMat).Data
}
