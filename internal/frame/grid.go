package frame

import (
	"fmt"

	"lta/internal/models"
)

// Group is a column of a presence grid.
type Group struct {
	Compartment string `json:"compartment"`
	Condition   string `json:"condition"`
}

func (g Group) String() string {
	return g.Compartment + "/" + g.Condition
}

// Grid is a boolean presence grid for one mode: entities x groups.
type Grid struct {
	Mode     string
	Entities []models.Entity
	Groups   []Group
	cells    []bool
}

// NewGrid builds a grid from one row of presence calls per entity.
func NewGrid(mode string, entities []models.Entity, groups []Group, rows [][]bool) (*Grid, error) {
	if len(rows) != len(entities) {
		return nil, fmt.Errorf("frame: %d entities but %d rows", len(entities), len(rows))
	}
	cells := make([]bool, 0, len(entities)*len(groups))
	for i, row := range rows {
		if len(row) != len(groups) {
			return nil, fmt.Errorf("frame: grid row %d has %d cells, want %d", i, len(row), len(groups))
		}
		cells = append(cells, row...)
	}
	return &Grid{Mode: mode, Entities: entities, Groups: groups, cells: cells}, nil
}

// Dims returns the number of entities and groups.
func (g *Grid) Dims() (int, int) { return len(g.Entities), len(g.Groups) }

// At reports whether entity i is present in group j.
func (g *Grid) At(i, j int) bool { return g.cells[i*len(g.Groups)+j] }

// Row returns entity i's presence calls. The slice aliases the grid.
func (g *Grid) Row(i int) []bool {
	n := len(g.Groups)
	return g.cells[i*n : (i+1)*n]
}

// Compartments returns the distinct compartments in first-appearance order.
func (g *Grid) Compartments() []string {
	keys, _ := GroupBy(len(g.Groups), func(j int) string { return g.Groups[j].Compartment })
	return keys
}

// Conditions returns the distinct conditions in first-appearance order.
func (g *Grid) Conditions() []string {
	keys, _ := GroupBy(len(g.Groups), func(j int) string { return g.Groups[j].Condition })
	return keys
}

// Select returns a new grid with the rows and groups that pass the filters.
// A nil filter keeps everything.
func (g *Grid) Select(row func(i int) bool, group func(Group) bool) *Grid {
	var rows, cols []int
	for i := range g.Entities {
		if row == nil || row(i) {
			rows = append(rows, i)
		}
	}
	for j, gr := range g.Groups {
		if group == nil || group(gr) {
			cols = append(cols, j)
		}
	}
	out := &Grid{
		Mode:     g.Mode,
		Entities: make([]models.Entity, len(rows)),
		Groups:   make([]Group, len(cols)),
		cells:    make([]bool, 0, len(rows)*len(cols)),
	}
	for k, j := range cols {
		out.Groups[k] = g.Groups[j]
	}
	for k, i := range rows {
		out.Entities[k] = g.Entities[i]
		for _, j := range cols {
			out.cells = append(out.cells, g.At(i, j))
		}
	}
	return out
}

// Prune drops entities absent from every group. Groups are kept even when
// nobody is present in them, so a compartment stays visible to the class
// rules.
func (g *Grid) Prune() *Grid {
	return g.Select(func(i int) bool {
		for _, v := range g.Row(i) {
			if v {
				return true
			}
		}
		return false
	}, nil)
}

// Collapse reduces the groups sharing a key with a logical AND, producing
// an entities x keys table in first-appearance key order.
func (g *Grid) Collapse(key func(Group) string) ([]string, [][]bool) {
	keys, members := GroupBy(len(g.Groups), func(j int) string { return key(g.Groups[j]) })
	out := make([][]bool, len(g.Entities))
	for i := range g.Entities {
		row := make([]bool, len(keys))
		for k, key := range keys {
			all := true
			for _, j := range members[key] {
				if !g.At(i, j) {
					all = false
					break
				}
			}
			row[k] = all
		}
		out[i] = row
	}
	return keys, out
}

// Merge inner-joins grids of one mode on entity. A group present in more
// than one grid is present only where every grid calls it present.
func Merge(grids ...*Grid) (*Grid, error) {
	if len(grids) == 0 {
		return nil, fmt.Errorf("frame: nothing to merge")
	}
	if len(grids) == 1 {
		return grids[0], nil
	}
	mode := grids[0].Mode
	counts := make(map[models.Entity]int)
	for _, g := range grids {
		if g.Mode != mode {
			return nil, fmt.Errorf("frame: cannot merge modes %q and %q", mode, g.Mode)
		}
		seen := make(map[models.Entity]bool, len(g.Entities))
		for _, e := range g.Entities {
			if !seen[e] {
				seen[e] = true
				counts[e]++
			}
		}
	}

	var entities []models.Entity
	for _, e := range grids[0].Entities {
		if counts[e] == len(grids) {
			entities = append(entities, e)
		}
	}
	var groups []Group
	gidx := make(map[Group]int)
	for _, g := range grids {
		for _, gr := range g.Groups {
			if _, ok := gidx[gr]; !ok {
				gidx[gr] = len(groups)
				groups = append(groups, gr)
			}
		}
	}

	rows := make([][]bool, len(entities))
	for i := range rows {
		rows[i] = make([]bool, len(groups))
		for j := range rows[i] {
			rows[i][j] = true
		}
	}
	for _, g := range grids {
		eidx := make(map[models.Entity]int, len(g.Entities))
		for i, e := range g.Entities {
			eidx[e] = i
		}
		for i, e := range entities {
			src := eidx[e]
			for j, gr := range g.Groups {
				if !g.At(src, j) {
					rows[i][gidx[gr]] = false
				}
			}
		}
	}
	return NewGrid(mode, entities, groups, rows)
}
