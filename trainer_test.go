package doctorai

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
)

type memSampleList struct {
	c       anyvec.Creator
	samples []*Sample
}

func (m *memSampleList) Len() int {
	return len(m.samples)
}

func (m *memSampleList) Swap(i, j int) {
	m.samples[i], m.samples[j] = m.samples[j], m.samples[i]
}

func (m *memSampleList) Slice(i, j int) anysgd.SampleList {
	return &memSampleList{
		c:       m.c,
		samples: append([]*Sample{}, m.samples[i:j]...),
	}
}

func (m *memSampleList) GetSample(idx int) (*Sample, error) {
	return m.samples[idx], nil
}

func (m *memSampleList) Creator() anyvec.Creator {
	return m.c
}

func randomSample(c anyvec.Creator, gen *rand.Rand, steps, vocab int) *Sample {
	seq := make([]anyvec.Vector, steps+1)
	for i := range seq {
		data := make([]float64, vocab)
		data[gen.Intn(vocab)] = 1
		data[gen.Intn(vocab)] = 1
		seq[i] = c.MakeVectorData(c.MakeNumericList(data))
	}
	return &Sample{Input: seq[:steps], Output: seq[1:]}
}

func testSampleList(c anyvec.Creator, lens ...int) *memSampleList {
	gen := rand.New(rand.NewSource(3))
	list := &memSampleList{c: c}
	for _, l := range lens {
		list.samples = append(list.samples, randomSample(c, gen, l, 6))
	}
	return list
}

func TestFetchPresentCounts(t *testing.T) {
	c := anyvec32.CurrentCreator()
	list := testSampleList(c, 2, 4)
	trainer := &Trainer{}

	batch, err := trainer.Fetch(list)
	if err != nil {
		t.Fatal(err)
	}
	b := batch.(*Batch)
	inputs := b.Inputs.Output()
	if len(inputs) != 4 {
		t.Fatalf("expected 4 timesteps but got %d", len(inputs))
	}
	expected := []int{2, 2, 1, 1}
	for ti, step := range inputs {
		if step.NumPresent() != expected[ti] {
			t.Errorf("step %d: expected %d present but got %d", ti,
				expected[ti], step.NumPresent())
		}
		if step.Packed.Len() != step.NumPresent()*6 {
			t.Errorf("step %d: packed length %d should be %d", ti,
				step.Packed.Len(), step.NumPresent()*6)
		}
	}

	labels := b.Outputs.Output()
	for ti, step := range labels {
		if step.NumPresent() != expected[ti] {
			t.Errorf("label step %d: expected %d present but got %d", ti,
				expected[ti], step.NumPresent())
		}
	}

	if _, err := trainer.Fetch(list.Slice(0, 0)); err == nil {
		t.Error("expected error for empty batch")
	}
}

func TestTotalCostMasking(t *testing.T) {
	c := anyvec32.CurrentCreator()
	list := testSampleList(c, 2, 5)

	model := NewModel(c, 6, 8, 8)
	model.Dropout.Enabled = false
	trainer := &Trainer{
		Model:  model,
		Cost:   MultiLabelCE{},
		Params: model.Parameters(),
	}

	batchCost := evalCost(t, trainer, list)
	costA := evalCost(t, trainer, list.Slice(0, 1))
	costB := evalCost(t, trainer, list.Slice(1, 2))

	expected := (costA + costB) / 2
	if math.Abs(batchCost-expected) > 1e-3 {
		t.Errorf("expected batch cost %f but got %f", expected, batchCost)
	}
}

func TestTotalCostL2(t *testing.T) {
	c := anyvec32.CurrentCreator()
	list := testSampleList(c, 3)

	model := NewModel(c, 6, 8, 8)
	model.Dropout.Enabled = false
	plain := &Trainer{Model: model, Cost: MultiLabelCE{}, Params: model.Parameters()}
	penalized := &Trainer{Model: model, Cost: MultiLabelCE{},
		Params: model.Parameters(), L2: 0.1}

	sq := model.Out.Weights.Vector.Copy()
	sq.Mul(model.Out.Weights.Vector)
	penalty := 0.1 / 2 * floatValue(anyvec.Sum(sq))

	diff := evalCost(t, penalized, list) - evalCost(t, plain, list)
	if math.Abs(diff-penalty) > 1e-3 {
		t.Errorf("expected penalty %f but got %f", penalty, diff)
	}
}

func TestTrainingStep(t *testing.T) {
	c := anyvec32.CurrentCreator()
	list := testSampleList(c, 2, 3, 4, 3)

	model := NewModel(c, 6, 8, 8)
	model.Dropout.Enabled = false
	trainer := &Trainer{
		Model:  model,
		Cost:   MultiLabelCE{},
		Params: model.Parameters(),
	}

	batch, err := trainer.Fetch(list)
	if err != nil {
		t.Fatal(err)
	}
	before := floatValue(anyvec.Sum(trainer.TotalCost(batch).Output()))
	for i := 0; i < 10; i++ {
		grad := trainer.Gradient(batch)
		grad.Scale(c.MakeNumeric(-0.05))
		grad.AddToVars()
	}
	after := floatValue(anyvec.Sum(trainer.TotalCost(batch).Output()))
	if after >= before {
		t.Errorf("cost should decrease: before %f, after %f", before, after)
	}
	if trainer.LastCost == nil {
		t.Error("LastCost should be set")
	}
}

func TestEvalLastStep(t *testing.T) {
	c := anyvec32.CurrentCreator()
	list := testSampleList(c, 2, 4)

	model := NewModel(c, 6, 8, 8)
	trainer := &Trainer{
		Model:  model,
		Cost:   MultiLabelCE{},
		Params: model.Parameters(),
	}

	mean, err := trainer.EvalLastStep(list)
	if err != nil {
		t.Fatal(err)
	}

	// Compute the same metric one sample at a time.
	restore := trainer.pauseDropout()
	var sum float64
	for i := 0; i < list.Len(); i++ {
		single, err := trainer.Fetch(list.Slice(i, i+1))
		if err != nil {
			t.Fatal(err)
		}
		b := single.(*Batch)
		outs := trainer.Model.Apply(b.Inputs).Output()
		labels := b.Outputs.Output()
		lastIdx := len(outs) - 1
		cost := trainer.Cost.Cost(
			anydiff.NewConst(labels[lastIdx].Packed),
			anydiff.NewConst(outs[lastIdx].Packed), 1)
		sum += floatValue(anyvec.Sum(cost.Output()))
	}
	restore()
	expected := sum / float64(list.Len())
	if math.Abs(mean-expected) > 1e-3 {
		t.Errorf("expected %f but got %f", expected, mean)
	}

	if !model.Dropout.Enabled {
		t.Error("dropout should be re-enabled after evaluation")
	}
}

func evalCost(t *testing.T, trainer *Trainer, list anysgd.SampleList) float64 {
	res, err := trainer.EvalCost(list)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

