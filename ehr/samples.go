package ehr

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"

	doctorai "github.com/bramamoorthy/Electronic-Health-Records-GRUs"
)

// A SampleList exposes a cohort as next-visit prediction
// samples.
//
// It implements anysgd.SampleList, anysgd.Hasher, and
// doctorai.SampleList.
type SampleList struct {
	C       anyvec.Creator
	Vocab   int
	Records []Record
}

// Len returns the number of patients.
func (s *SampleList) Len() int {
	return len(s.Records)
}

// Swap swaps two patients.
func (s *SampleList) Swap(i, j int) {
	s.Records[i], s.Records[j] = s.Records[j], s.Records[i]
}

// Slice generates a shallow copy of a subset of the list.
func (s *SampleList) Slice(i, j int) anysgd.SampleList {
	return &SampleList{
		C:       s.C,
		Vocab:   s.Vocab,
		Records: append([]Record{}, s.Records[i:j]...),
	}
}

// Creator returns the creator used to encode visits.
func (s *SampleList) Creator() anyvec.Creator {
	return s.C
}

// LenAt returns the input sequence length for a patient.
func (s *SampleList) LenAt(idx int) int {
	return len(s.Records[idx]) - 1
}

// GetSample encodes a patient as a next-visit sample: the
// inputs are all visits but the last, and the labels all
// visits but the first.
//
// Records with fewer than two visits cannot be split this
// way and produce an error.
func (s *SampleList) GetSample(idx int) (*doctorai.Sample, error) {
	record := s.Records[idx]
	if len(record) < 2 {
		return nil, fmt.Errorf("sample %d: need at least 2 visits, but got %d",
			idx, len(record))
	}
	vecs := make([]anyvec.Vector, len(record))
	for i, visit := range record {
		var err error
		vecs[i], err = MultiHot(s.C, visit, s.Vocab)
		if err != nil {
			return nil, essentials.AddCtx(fmt.Sprintf("sample %d", idx), err)
		}
	}
	return &doctorai.Sample{
		Input:  vecs[:len(vecs)-1],
		Output: vecs[1:],
	}, nil
}

// Hash produces a digest of a patient's visit codes.
// It is used for deterministic data splits.
func (s *SampleList) Hash(i int) []byte {
	h := md5.New()
	temp := make([]byte, 8)
	for _, visit := range s.Records[i] {
		for _, code := range visit {
			binary.BigEndian.PutUint64(temp, uint64(code))
			h.Write(temp)
		}
		binary.BigEndian.PutUint64(temp, ^uint64(0))
		h.Write(temp)
	}
	return h.Sum(nil)
}

// A SortList wraps a SampleList so that shuffles keep
// similarly long sequences within the same chunk. This
// keeps batch sizes stable across timesteps.
type SortList struct {
	*SampleList

	// BatchSize is the size of the chunks to sort.
	BatchSize int
}

// Slice produces a subset of the SortList.
func (s *SortList) Slice(i, j int) anysgd.SampleList {
	return &SortList{
		SampleList: s.SampleList.Slice(i, j).(*SampleList),
		BatchSize:  s.BatchSize,
	}
}

// PostShuffle sorts each chunk of patients by length.
func (s *SortList) PostShuffle() {
	for i := 0; i < s.Len(); i += s.BatchSize {
		bs := s.BatchSize
		if bs > s.Len()-i {
			bs = s.Len() - i
		}
		chunk := s.Records[i : i+bs]
		sort.Slice(chunk, func(a, b int) bool {
			return len(chunk[a]) < len(chunk[b])
		})
	}
}
