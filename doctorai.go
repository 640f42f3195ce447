// Package doctorai implements a recurrent next-visit
// prediction model for electronic health record data.
//
// A patient is an ordered sequence of visits, each visit a
// set of clinical codes from a fixed vocabulary. The model
// embeds each multi-hot visit vector, runs the embedded
// sequence through two stacked GRU layers with dropout in
// between, and projects the hidden states to per-code
// probabilities for the codes of the next visit.
package doctorai

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"

	"github.com/bramamoorthy/Electronic-Health-Records-GRUs/rnn"
)

const defaultKeepProb = 0.5

func init() {
	var m Model
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeModel)
}

// A Model maps sequences of multi-hot visit vectors to
// per-timestep logits over the next visit's codes.
type Model struct {
	Vocab int

	Embed   *anynet.FC
	Layer1  *rnn.GRU
	Dropout *anynet.Dropout
	Layer2  *rnn.GRU
	Out     *anynet.FC
}

// NewModel creates a randomized model.
//
// Dropout between the two recurrent layers is enabled and
// keeps each hidden activation with probability 0.5.
func NewModel(c anyvec.Creator, vocab, embedding, hidden int) *Model {
	return &Model{
		Vocab:   vocab,
		Embed:   anynet.NewFC(c, vocab, embedding),
		Layer1:  rnn.NewGRU(c, embedding, hidden),
		Dropout: &anynet.Dropout{Enabled: true, KeepProb: defaultKeepProb},
		Layer2:  rnn.NewGRU(c, hidden, hidden),
		Out:     anynet.NewFC(c, hidden, vocab),
	}
}

// DeserializeModel deserializes a Model.
func DeserializeModel(d []byte) (*Model, error) {
	var m Model
	err := serializer.DeserializeAny(d, &m.Embed, &m.Layer1, &m.Dropout,
		&m.Layer2, &m.Out)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Model", err)
	}
	m.Vocab = m.Embed.InCount
	return &m, nil
}

// Block returns the model as a single recurrent block.
func (m *Model) Block() anyrnn.Block {
	return anyrnn.Stack{
		&anyrnn.LayerBlock{Layer: anynet.Net{m.Embed, anynet.Tanh}},
		m.Layer1,
		&anyrnn.LayerBlock{Layer: m.Dropout},
		m.Layer2,
		&anyrnn.LayerBlock{Layer: m.Out},
	}
}

// Apply runs the model over a batch of visit sequences,
// producing per-timestep logits for the next visit.
//
// The recurrent state is reset to zero for every sequence.
func (m *Model) Apply(seq anyseq.Seq) anyseq.Seq {
	return anyrnn.Map(seq, m.Block())
}

// Predict produces per-code probabilities with dropout
// disabled, restoring the dropout setting afterwards.
func (m *Model) Predict(seq anyseq.Seq) anyseq.Seq {
	enabled := m.Dropout.Enabled
	m.Dropout.Enabled = false
	defer func() {
		m.Dropout.Enabled = enabled
	}()
	out := m.Apply(seq)
	return anyseq.Map(out, func(v anydiff.Res, n int) anydiff.Res {
		return anydiff.Exp(anydiff.LogSoftmax(v, v.Output().Len()/n))
	})
}

// Parameters returns the learnable parameters in a stable
// order.
func (m *Model) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, p := range []anynet.Parameterizer{m.Embed, m.Layer1, m.Layer2, m.Out} {
		res = append(res, p.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a Model with the serializer package.
func (m *Model) SerializerType() string {
	return "github.com/bramamoorthy/Electronic-Health-Records-GRUs.Model"
}

// Serialize serializes the Model.
func (m *Model) Serialize() ([]byte, error) {
	return serializer.SerializeAny(m.Embed, m.Layer1, m.Dropout, m.Layer2, m.Out)
}
