package frame

import (
	"fmt"

	"lta/internal/models"
)

// Table is a class table: entities x conditions of presence calls, derived
// from a grid restricted to some compartments.
type Table struct {
	Mode         string
	Compartments []string
	Conditions   []string
	Entities     []models.Entity
	cells        []bool
}

// NewTable builds a table from one row per entity.
func NewTable(mode string, compartments, conditions []string, entities []models.Entity, rows [][]bool) (*Table, error) {
	if len(rows) != len(entities) {
		return nil, fmt.Errorf("frame: %d entities but %d rows", len(entities), len(rows))
	}
	cells := make([]bool, 0, len(rows)*len(conditions))
	for i, row := range rows {
		if len(row) != len(conditions) {
			return nil, fmt.Errorf("frame: table row %d has %d cells, want %d", i, len(row), len(conditions))
		}
		cells = append(cells, row...)
	}
	return &Table{
		Mode:         mode,
		Compartments: compartments,
		Conditions:   conditions,
		Entities:     entities,
		cells:        cells,
	}, nil
}

// Len is the number of entities in the table.
func (t *Table) Len() int { return len(t.Entities) }

// At reports whether entity i is present under condition j.
func (t *Table) At(i, j int) bool { return t.cells[i*len(t.Conditions)+j] }

// Rows returns a copy of the table as one slice per entity.
func (t *Table) Rows() [][]bool {
	out := make([][]bool, len(t.Entities))
	for i := range out {
		out[i] = make([]bool, len(t.Conditions))
		for j := range t.Conditions {
			out[i][j] = t.At(i, j)
		}
	}
	return out
}

// Column returns the presence calls of one condition.
func (t *Table) Column(condition string) ([]bool, bool) {
	j := -1
	for k, c := range t.Conditions {
		if c == condition {
			j = k
			break
		}
	}
	if j < 0 {
		return nil, false
	}
	col := make([]bool, len(t.Entities))
	for i := range col {
		col[i] = t.At(i, j)
	}
	return col, true
}

// Index returns the set of entities in the table.
func (t *Table) Index() map[models.Entity]bool {
	idx := make(map[models.Entity]bool, len(t.Entities))
	for _, e := range t.Entities {
		idx[e] = true
	}
	return idx
}

// Categories returns the row indices of each category, categories in
// first-appearance order.
func (t *Table) Categories() ([]string, map[string][]int) {
	return GroupBy(len(t.Entities), func(i int) string { return t.Entities[i].Category })
}

// CategoryCounts sums the presence calls per category and condition.
func (t *Table) CategoryCounts() ([]string, [][]int) {
	cats, members := t.Categories()
	counts := make([][]int, len(cats))
	for k, c := range cats {
		counts[k] = make([]int, len(t.Conditions))
		for _, i := range members[c] {
			for j := range t.Conditions {
				if t.At(i, j) {
					counts[k][j]++
				}
			}
		}
	}
	return cats, counts
}
