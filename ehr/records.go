// Package ehr models cohorts of patient visit sequences
// for next-visit code prediction.
package ehr

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A Record is one patient's visit history, oldest visit
// first. Each visit is the set of clinical code indices
// observed at that visit.
type Record [][]int

// LoadRecords reads a cohort from a JSON file containing
// an array of patients, each an array of visits, each an
// array of code indices.
func LoadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load records", err)
	}
	var res []Record
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, essentials.AddCtx("load records", err)
	}
	return res, nil
}

// MultiHot encodes a visit as a vector of length vocab
// with a 1 at every code present in the visit.
//
// It fails if a code is out of range.
func MultiHot(c anyvec.Creator, codes []int, vocab int) (anyvec.Vector, error) {
	data := make([]float64, vocab)
	for _, code := range codes {
		if code < 0 || code >= vocab {
			return nil, fmt.Errorf("encode visit: code %d out of range [0, %d)",
				code, vocab)
		}
		data[code] = 1
	}
	return c.MakeVectorData(c.MakeNumericList(data)), nil
}
