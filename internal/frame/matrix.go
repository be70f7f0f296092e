// Package frame holds the labelled tables the analysis works on: numeric
// measurement matrices, boolean presence grids and class tables.
package frame

import (
	"errors"
	"fmt"
	"sort"

	"lta/internal/models"

	"gonum.org/v1/gonum/mat"
)

// Axis says where the samples of a Matrix lie.
type Axis int

const (
	// Columns stores entities along rows and samples along columns.
	Columns Axis = iota
	// Index stores samples along rows and entities along columns.
	Index
)

func (a Axis) String() string {
	if a == Index {
		return "index"
	}
	return "columns"
}

var ErrEmptyMatrix = errors.New("matrix has no entities or no samples")

// Matrix is a measurement matrix: one value per (entity, sample).
type Matrix struct {
	Entities []models.Entity
	Samples  []models.Sample
	axis     Axis
	data     *mat.Dense
}

// NewMatrix wraps data whose layout is given by axis. With Columns the data
// must be len(entities) x len(samples); with Index it is transposed.
func NewMatrix(entities []models.Entity, samples []models.Sample, data *mat.Dense, axis Axis) (*Matrix, error) {
	if len(entities) == 0 || len(samples) == 0 || data == nil {
		return nil, ErrEmptyMatrix
	}
	r, c := data.Dims()
	wantR, wantC := len(entities), len(samples)
	if axis == Index {
		wantR, wantC = wantC, wantR
	}
	if r != wantR || c != wantC {
		return nil, fmt.Errorf("frame: data is %dx%d, labels need %dx%d along %s", r, c, wantR, wantC, axis)
	}
	return &Matrix{Entities: entities, Samples: samples, axis: axis, data: data}, nil
}

// FromRows builds a Columns matrix from one slice of values per entity.
func FromRows(entities []models.Entity, samples []models.Sample, rows [][]float64) (*Matrix, error) {
	if len(entities) != len(rows) {
		return nil, fmt.Errorf("frame: %d entities but %d rows", len(entities), len(rows))
	}
	if len(entities) == 0 || len(samples) == 0 {
		return nil, ErrEmptyMatrix
	}
	flat := make([]float64, 0, len(rows)*len(samples))
	for i, row := range rows {
		if len(row) != len(samples) {
			return nil, fmt.Errorf("frame: row %d has %d values, want %d", i, len(row), len(samples))
		}
		flat = append(flat, row...)
	}
	return NewMatrix(entities, samples, mat.NewDense(len(rows), len(samples), flat), Columns)
}

// Axis reports the storage layout.
func (m *Matrix) Axis() Axis { return m.axis }

// Dims returns the number of entities and samples.
func (m *Matrix) Dims() (entities, samples int) {
	return len(m.Entities), len(m.Samples)
}

// At returns the value of entity e in sample s regardless of layout.
func (m *Matrix) At(e, s int) float64 {
	if m.axis == Index {
		return m.data.At(s, e)
	}
	return m.data.At(e, s)
}

// T returns the same matrix stored along the other axis.
func (m *Matrix) T() *Matrix {
	t := mat.DenseCopyOf(m.data.T())
	axis := Index
	if m.axis == Index {
		axis = Columns
	}
	return &Matrix{Entities: m.Entities, Samples: m.Samples, axis: axis, data: t}
}

// Observations returns a samples x entities copy, the layout clustering and
// projections expect.
func (m *Matrix) Observations() *mat.Dense {
	if m.axis == Index {
		return mat.DenseCopyOf(m.data)
	}
	return mat.DenseCopyOf(m.data.T())
}

// SelectSamples returns a Columns matrix restricted to the given samples.
func (m *Matrix) SelectSamples(idx []int) (*Matrix, error) {
	if len(idx) == 0 {
		return nil, ErrEmptyMatrix
	}
	samples := make([]models.Sample, len(idx))
	data := mat.NewDense(len(m.Entities), len(idx), nil)
	for j, s := range idx {
		samples[j] = m.Samples[s]
		for e := range m.Entities {
			data.Set(e, j, m.At(e, s))
		}
	}
	return &Matrix{Entities: m.Entities, Samples: samples, axis: Columns, data: data}, nil
}

// Labels returns the distinct labels of a role in first-appearance order.
func (m *Matrix) Labels(r models.Role) ([]string, error) {
	keys, _, err := m.groupSamples(r)
	return keys, err
}

// SplitBy partitions the samples on a role.
func (m *Matrix) SplitBy(r models.Role) (map[string]*Matrix, error) {
	keys, groups, err := m.groupSamples(r)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Matrix, len(keys))
	for _, k := range keys {
		sub, err := m.SelectSamples(groups[k])
		if err != nil {
			return nil, err
		}
		out[k] = sub
	}
	return out, nil
}

func (m *Matrix) groupSamples(r models.Role) ([]string, map[string][]int, error) {
	labels := make([]string, len(m.Samples))
	for i, s := range m.Samples {
		l, err := s.Label(r)
		if err != nil {
			return nil, nil, err
		}
		labels[i] = l
	}
	keys, groups := GroupBy(len(labels), func(i int) string { return labels[i] })
	return keys, groups, nil
}

// GroupBy partitions 0..n-1 on key. Keys come back in first-appearance order
// and members keep their original order.
func GroupBy[K comparable](n int, key func(int) K) ([]K, map[K][]int) {
	var keys []K
	groups := make(map[K][]int)
	for i := 0; i < n; i++ {
		k := key(i)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}
	return keys, groups
}

// Grids maps a mode to its presence grid.
type Grids map[string]*Grid

// Modes returns the modes in sorted order.
func (g Grids) Modes() []string {
	modes := make([]string, 0, len(g))
	for m := range g {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	return modes
}
