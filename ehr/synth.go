package ehr

import "math/rand"

// Synthesize generates a random cohort with learnable
// structure: each patient's visits draw codes from a small
// window that drifts slowly across the code space, so
// nearby visits share codes.
func Synthesize(r *rand.Rand, patients, vocab int) []Record {
	res := make([]Record, patients)
	for i := range res {
		numVisits := 2 + r.Intn(6)
		center := r.Intn(vocab)
		record := make(Record, numVisits)
		for j := range record {
			numCodes := 1 + r.Intn(4)
			visit := make([]int, numCodes)
			for k := range visit {
				code := center + r.Intn(11) - 5
				if code < 0 {
					code = 0
				} else if code >= vocab {
					code = vocab - 1
				}
				visit[k] = code
			}
			record[j] = visit
			center += r.Intn(7) - 3
			if center < 0 {
				center = 0
			} else if center >= vocab {
				center = vocab - 1
			}
		}
		res[i] = record
	}
	return res
}
