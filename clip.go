package doctorai

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
)

// ClipNorm rescales gradients whose global Euclidean norm
// exceeds Max so that their norm is exactly Max.
type ClipNorm struct {
	Max float64
}

// Transform clips the gradient in place.
func (c *ClipNorm) Transform(g anydiff.Grad) anydiff.Grad {
	var sqSum float64
	var creator anyvec.Creator
	for _, vec := range g {
		creator = vec.Creator()
		sq := vec.Copy()
		anyvec.Pow(sq, creator.MakeNumeric(2))
		sqSum += floatValue(anyvec.Sum(sq))
	}
	norm := math.Sqrt(sqSum)
	if norm > c.Max {
		g.Scale(creator.MakeNumeric(c.Max / norm))
	}
	return g
}

// A Pipeline is a Transformer that applies a list of
// Transformers in order.
type Pipeline []anysgd.Transformer

// Transform applies every transformer in order.
func (p Pipeline) Transform(g anydiff.Grad) anydiff.Grad {
	for _, t := range p {
		g = t.Transform(g)
	}
	return g
}
