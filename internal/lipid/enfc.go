package lipid

import (
	"fmt"
	"math"

	"lta/internal/frame"
	"lta/internal/models"

	"gonum.org/v1/gonum/stat"
)

// DefaultOrder is the (experimental, control) pair used when none is given.
var DefaultOrder = [2]string{"experimental", "control"}

// ENFC computes the error-normalised fold change of every entity:
//
//	log10(mean(experimental) / mean(control)) / sqrt(sum(var(condition)) / 2)
//
// with the variances summed over all conditions of the matrix. Fold
// changes of x/0, 0/x and 0/0 are NaN.
func ENFC(m *frame.Matrix, order [2]string) ([]float64, error) {
	if order[0] == "" || order[1] == "" {
		order = DefaultOrder
	}
	split, err := m.SplitBy(models.RoleCondition)
	if err != nil {
		return nil, err
	}
	conds, err := m.Labels(models.RoleCondition)
	if err != nil {
		return nil, err
	}
	for _, c := range order {
		if _, ok := split[c]; !ok {
			return nil, fmt.Errorf("lipid: condition %q not in %v", c, conds)
		}
	}

	nEnt, _ := m.Dims()
	out := make([]float64, nEnt)
	for e := 0; e < nEnt; e++ {
		exp := stat.Mean(entityValues(split[order[0]], e), nil)
		ctl := stat.Mean(entityValues(split[order[1]], e), nil)
		fc := exp / ctl
		if fc == 0 || math.IsInf(fc, 0) {
			fc = math.NaN()
		}

		var variance float64
		for _, c := range conds {
			sd := stat.StdDev(entityValues(split[c], e), nil)
			if math.IsNaN(sd) {
				continue
			}
			variance += sd * sd
		}
		out[e] = math.Log10(fc) / math.Sqrt(variance/2)
	}
	return out, nil
}

func entityValues(m *frame.Matrix, e int) []float64 {
	_, n := m.Dims()
	vals := make([]float64, n)
	for s := range vals {
		vals[s] = m.At(e, s)
	}
	return vals
}
