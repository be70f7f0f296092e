package lipid

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"lta/internal/frame"
	"lta/internal/models"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/combin"
)

// ErrALipidsMissing is returned when B-lipids are requested without the
// A-lipids of the same run.
var ErrALipidsMissing = errors.New("must compute A-lipids first")

// ErrSubsetSize is returned for compartment subsets smaller than one.
var ErrSubsetSize = errors.New("compartment subset size must be at least 1")

// Class names used as report prefixes.
const (
	ClassA  = "a"
	ClassBc = "bc"
	ClassBp = "bp"
	ClassU  = "u"
)

// ClassN names the class of lipids present in exactly n compartments.
func ClassN(n int) string {
	if n == 1 {
		return ClassU
	}
	return fmt.Sprintf("n%d", n)
}

// ClassSet is an ordered collection of class tables.
type ClassSet struct {
	Class  string
	keys   []string
	tables map[string]*frame.Table
}

func newClassSet(class string) *ClassSet {
	return &ClassSet{Class: class, tables: make(map[string]*frame.Table)}
}

func (s *ClassSet) add(key string, t *frame.Table) {
	if _, ok := s.tables[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.tables[key] = t
}

// Keys returns the table keys in enumeration order.
func (s *ClassSet) Keys() []string { return s.keys }

// Len is the number of tables.
func (s *ClassSet) Len() int { return len(s.keys) }

// Get returns the table stored under key.
func (s *ClassSet) Get(key string) (*frame.Table, bool) {
	t, ok := s.tables[key]
	return t, ok
}

// Members counts the entities of every table.
func (s *ClassSet) Members() map[string]int {
	out := make(map[string]int, len(s.keys))
	for _, k := range s.keys {
		out[k] = s.tables[k].Len()
	}
	return out
}

// AClass is the A-lipid class set. B-lipids can only be computed from one.
type AClass struct {
	*ClassSet
}

// Index returns the A-lipids of a mode.
func (a *AClass) Index(mode string) map[models.Entity]bool {
	t, ok := a.Get(mode)
	if !ok {
		return map[models.Entity]bool{}
	}
	return t.Index()
}

// TableKey names a class table: the upper-cased compartments, sorted and
// joined by underscores, followed by the mode.
func TableKey(compartments []string, mode string) string {
	parts := make([]string, len(compartments))
	for i, c := range compartments {
		parts[i] = strings.ToUpper(c)
	}
	sort.Strings(parts)
	return strings.Join(append(parts, mode), "_")
}

// ALipids finds, per mode, the entities present in every compartment for at
// least one condition.
func ALipids(grids frame.Grids) (*AClass, error) {
	set := newClassSet(ClassA)
	for _, mode := range grids.Modes() {
		g := grids[mode]
		t, err := presentInAll(g, g.Compartments())
		if err != nil {
			return nil, err
		}
		set.add(mode, t)
		log.WithFields(log.Fields{"mode": mode, "lipids": t.Len()}).Info("found A-lipids")
	}
	return &AClass{set}, nil
}

// BLipids finds, per mode and pair of compartments, the entities present in
// both for at least one condition. Picky B-lipids exclude the A-lipids;
// consistent ones keep them.
func BLipids(grids frame.Grids, a *AClass, picky bool) (*ClassSet, error) {
	if a == nil || a.ClassSet == nil {
		return nil, ErrALipidsMissing
	}
	class := ClassBc
	if picky {
		class = ClassBp
	}
	set := newClassSet(class)
	for _, mode := range grids.Modes() {
		if _, ok := a.Get(mode); !ok {
			return nil, fmt.Errorf("%w: no A-lipids for mode %s", ErrALipidsMissing, mode)
		}
		g := grids[mode]
		if picky {
			full, idx := g, a.Index(mode)
			g = full.Select(func(i int) bool { return !idx[full.Entities[i]] }, nil)
		}
		for _, pair := range combinations(g.Compartments(), 2) {
			sub := g.Select(nil, inCompartments(pair))
			t, err := presentInAll(sub, pair)
			if err != nil {
				return nil, err
			}
			set.add(TableKey(pair, mode), t)
		}
	}
	log.WithFields(log.Fields{"class": class, "tables": set.Len()}).Info("found B-lipids")
	return set, nil
}

// NLipids finds, per mode and n-subset of compartments, the entities present
// in exactly those n compartments and in all of them for some condition.
// Subsets with no such entity are left out.
func NLipids(grids frame.Grids, n int) (*ClassSet, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrSubsetSize, n)
	}
	set := newClassSet(ClassN(n))
	for _, mode := range grids.Modes() {
		g := grids[mode]
		// Restricting to exactly-n entities first keeps the per-subset
		// work proportional to the candidates.
		exact := g.Select(func(i int) bool { return compartmentCount(g, i) == n }, nil)
		for _, subset := range combinations(g.Compartments(), n) {
			cols := exact.Select(nil, inCompartments(subset))
			sub := cols.Select(func(i int) bool { return compartmentCount(cols, i) == n }, nil)
			t, err := presentInAll(sub, subset)
			if err != nil {
				return nil, err
			}
			if t.Len() == 0 {
				continue
			}
			set.add(TableKey(subset, mode), t)
		}
	}
	log.WithFields(log.Fields{"class": set.Class, "tables": set.Len()}).Info("found N-lipids")
	return set, nil
}

// ULipids finds the entities unique to one compartment.
func ULipids(grids frame.Grids) (*ClassSet, error) {
	return NLipids(grids, 1)
}

// presentInAll collapses the grid per condition with an AND across its
// compartments and keeps the entities true for at least one condition. A
// condition with no group in one of the compartments is absent there, so it
// is false for every entity.
func presentInAll(g *frame.Grid, compartments []string) (*frame.Table, error) {
	conds, rows := g.Collapse(func(gr frame.Group) string { return gr.Condition })
	covered := make(map[frame.Group]bool, len(g.Groups))
	for _, gr := range g.Groups {
		covered[gr] = true
	}
	complete := make([]bool, len(conds))
	for k, c := range conds {
		complete[k] = true
		for _, comp := range compartments {
			if !covered[frame.Group{Compartment: comp, Condition: c}] {
				complete[k] = false
				break
			}
		}
	}

	var entities []models.Entity
	var kept [][]bool
	for i, row := range rows {
		found := false
		for k := range row {
			row[k] = row[k] && complete[k]
			found = found || row[k]
		}
		if found {
			entities = append(entities, g.Entities[i])
			kept = append(kept, row)
		}
	}
	return frame.NewTable(g.Mode, compartments, conds, entities, kept)
}

// compartmentCount counts the compartments where entity i is present for
// any condition.
func compartmentCount(g *frame.Grid, i int) int {
	seen := make(map[string]bool)
	for j, gr := range g.Groups {
		if g.At(i, j) {
			seen[gr.Compartment] = true
		}
	}
	return len(seen)
}

func inCompartments(subset []string) func(frame.Group) bool {
	in := make(map[string]bool, len(subset))
	for _, c := range subset {
		in[c] = true
	}
	return func(g frame.Group) bool { return in[g.Compartment] }
}

// combinations lists the k-subsets of labels in lexicographic index order.
func combinations(labels []string, k int) [][]string {
	if k < 1 || k > len(labels) {
		return nil
	}
	var out [][]string
	for _, idx := range combin.Combinations(len(labels), k) {
		subset := make([]string, k)
		for i, j := range idx {
			subset[i] = labels[j]
		}
		out = append(out, subset)
	}
	return out
}
