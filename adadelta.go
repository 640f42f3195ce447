package doctorai

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

const (
	adadeltaDefaultDecayRate = 0.9
	adadeltaDefaultDamping   = 1e-6
)

// Adadelta implements the Adadelta update rule described
// in https://arxiv.org/abs/1212.5701.
//
// Each gradient component is rescaled by the ratio of the
// root-mean-square of recent updates to the root-mean-
// square of recent gradients.
type Adadelta struct {
	// DecayRate is the coefficient of the running averages.
	// If it is 0, a default of 0.9 is used.
	DecayRate float64

	// Damping is used to prevent divisions by zero.
	// This should be very small.
	// If it is 0, a default is used.
	Damping float64

	gradAvg   anydiff.Grad
	updateAvg anydiff.Grad
}

// Transform transforms the gradient using Adadelta.
//
// This is not thread-safe.
func (a *Adadelta) Transform(realGrad anydiff.Grad) anydiff.Grad {
	if a.gradAvg == nil {
		a.gradAvg = zeroGrad(realGrad)
		a.updateAvg = zeroGrad(realGrad)
	}
	decay := a.decayRate()
	damping := a.damping()
	for variable, grad := range realGrad {
		c := grad.Creator()

		sq := grad.Copy()
		anyvec.Pow(sq, c.MakeNumeric(2))
		sq.Scale(c.MakeNumeric(1 - decay))
		avg := a.gradAvg[variable]
		avg.Scale(c.MakeNumeric(decay))
		avg.Add(sq)

		scale := a.updateAvg[variable].Copy()
		scale.AddScalar(c.MakeNumeric(damping))
		anyvec.Pow(scale, c.MakeNumeric(0.5))
		divisor := avg.Copy()
		divisor.AddScalar(c.MakeNumeric(damping))
		anyvec.Pow(divisor, c.MakeNumeric(-0.5))
		grad.Mul(scale)
		grad.Mul(divisor)

		update := grad.Copy()
		anyvec.Pow(update, c.MakeNumeric(2))
		update.Scale(c.MakeNumeric(1 - decay))
		uAvg := a.updateAvg[variable]
		uAvg.Scale(c.MakeNumeric(decay))
		uAvg.Add(update)
	}
	return realGrad
}

func (a *Adadelta) decayRate() float64 {
	if a.DecayRate == 0 {
		return adadeltaDefaultDecayRate
	}
	return a.DecayRate
}

func (a *Adadelta) damping() float64 {
	if a.Damping == 0 {
		return adadeltaDefaultDamping
	}
	return a.Damping
}

func zeroGrad(g anydiff.Grad) anydiff.Grad {
	res := anydiff.Grad{}
	for v, x := range g {
		res[v] = x.Creator().MakeVector(x.Len())
	}
	return res
}
