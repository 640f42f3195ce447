package doctorai

import (
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
)

func TestAdadeltaFirstStep(t *testing.T) {
	v := anydiff.NewVar(mkvec32([]float64{1, 2}))
	grad := anydiff.Grad{v: mkvec32([]float64{0.5, -2})}

	a := &Adadelta{DecayRate: 0.9}
	out := a.Transform(grad)

	// On the first step both running averages start at zero,
	// so the update is g*sqrt(eps)/sqrt(0.1*g^2+eps).
	eps := adadeltaDefaultDamping
	for i, g := range []float64{0.5, -2} {
		expected := g * math.Sqrt(eps) / math.Sqrt(0.1*g*g+eps)
		actual := float64(out[v].Data().([]float32)[i])
		if math.Abs(actual-expected) > 1e-6 {
			t.Errorf("component %d: expected %e but got %e", i, expected, actual)
		}
	}
}

func TestAdadeltaAveraging(t *testing.T) {
	v := anydiff.NewVar(mkvec32([]float64{0}))

	a := &Adadelta{DecayRate: 0.5}
	a.Transform(anydiff.Grad{v: mkvec32([]float64{1})})
	out := a.Transform(anydiff.Grad{v: mkvec32([]float64{1})})

	// After the first step, E[g^2]=0.5 and E[dx^2] holds the
	// square of the first update.
	eps := adadeltaDefaultDamping
	first := math.Sqrt(eps) / math.Sqrt(0.5+eps)
	uAvg := 0.5 * first * first
	gAvg := 0.5*0.5 + 0.5
	expected := math.Sqrt(uAvg+eps) / math.Sqrt(gAvg+eps)
	actual := float64(out[v].Data().([]float32)[0])
	if math.Abs(actual-expected) > 1e-6 {
		t.Errorf("expected %e but got %e", expected, actual)
	}
}

func TestClipNorm(t *testing.T) {
	v := anydiff.NewVar(mkvec32([]float64{1, 1}))

	grad := anydiff.Grad{v: mkvec32([]float64{3, 4})}
	(&ClipNorm{Max: 5}).Transform(grad)
	actual := grad[v].Data().([]float32)
	for i, x := range []float32{3, 4} {
		if math.Abs(float64(actual[i]-x)) > 1e-4 {
			t.Errorf("component %d: expected %f but got %f", i, x, actual[i])
		}
	}

	(&ClipNorm{Max: 2}).Transform(grad)
	actual = grad[v].Data().([]float32)
	for i, x := range []float32{1.2, 1.6} {
		if math.Abs(float64(actual[i]-x)) > 1e-4 {
			t.Errorf("component %d: expected %f but got %f", i, x, actual[i])
		}
	}
}

func TestPipeline(t *testing.T) {
	v := anydiff.NewVar(mkvec32([]float64{1}))
	grad := anydiff.Grad{v: mkvec32([]float64{30, 40})}

	p := Pipeline{&ClipNorm{Max: 10}, &ClipNorm{Max: 5}}
	p.Transform(grad)

	actual := grad[v].Data().([]float32)
	for i, x := range []float32{3, 4} {
		if math.Abs(float64(actual[i]-x)) > 1e-4 {
			t.Errorf("component %d: expected %f but got %f", i, x, actual[i])
		}
	}
}
