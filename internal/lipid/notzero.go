// Package lipid turns measurement matrices into presence grids and
// enumerates the lipid classes compared by the Jaccard test.
package lipid

import (
	"fmt"

	"lta/internal/frame"
	"lta/internal/models"

	log "github.com/sirupsen/logrus"
)

// NotZero calls each entity present or absent per (secondary, level) group of
// samples. A group is absent when more than thresh of its samples are zero;
// exactly thresh still counts as present. Entities absent everywhere are
// dropped; groups are all kept, including ones where nothing is present.
//
// The matrix may store samples along either axis; the result is the same.
// In the grid, Group.Compartment carries the secondary label and
// Group.Condition the level label.
func NotZero(m *frame.Matrix, level, secondary models.Role, thresh float64) (*frame.Grid, error) {
	nEnt, nSamp := m.Dims()
	keys := make([]frame.Group, nSamp)
	var mode string
	for s, sample := range m.Samples {
		cond, err := sample.Label(level)
		if err != nil {
			return nil, err
		}
		comp, err := sample.Label(secondary)
		if err != nil {
			return nil, err
		}
		keys[s] = frame.Group{Compartment: comp, Condition: cond}
		if s == 0 {
			mode = sample.Mode
		} else if sample.Mode != mode {
			return nil, fmt.Errorf("lipid: matrix spans modes %q and %q", mode, sample.Mode)
		}
	}
	groups, members := frame.GroupBy(nSamp, func(s int) frame.Group { return keys[s] })

	rows := make([][]bool, nEnt)
	for e := 0; e < nEnt; e++ {
		row := make([]bool, len(groups))
		for k, g := range groups {
			zeros := 0
			for _, s := range members[g] {
				if m.At(e, s) == 0 {
					zeros++
				}
			}
			row[k] = float64(zeros) <= thresh*float64(len(members[g]))
		}
		rows[e] = row
	}
	grid, err := frame.NewGrid(mode, m.Entities, groups, rows)
	if err != nil {
		return nil, err
	}
	pruned := grid.Prune()
	log.WithFields(log.Fields{
		"mode":     mode,
		"thresh":   thresh,
		"entities": fmt.Sprintf("%d/%d", len(pruned.Entities), nEnt),
		"groups":   len(groups),
	}).Debug("binarized measurements")
	return pruned, nil
}

// Binarize runs NotZero on every matrix of every mode with condition and
// compartment roles, then merges the grids of each mode.
func Binarize(data map[string][]*frame.Matrix, thresh float64) (frame.Grids, error) {
	grids := make(frame.Grids, len(data))
	for mode, matrices := range data {
		parts := make([]*frame.Grid, 0, len(matrices))
		for _, m := range matrices {
			g, err := NotZero(m, models.RoleCondition, models.RoleCompartment, thresh)
			if err != nil {
				return nil, fmt.Errorf("mode %s: %w", mode, err)
			}
			parts = append(parts, g)
		}
		if len(parts) == 0 {
			continue
		}
		merged, err := frame.Merge(parts...)
		if err != nil {
			return nil, fmt.Errorf("mode %s: %w", mode, err)
		}
		merged.Mode = mode
		grids[mode] = merged
	}
	return grids, nil
}
