// Package pipeline runs the full analysis: binarize, enumerate the lipid
// classes, then test every class table with the Jaccard bootstrap.
package pipeline

import (
	"context"
	"fmt"
	"sort"

	"lta/internal/config"
	"lta/internal/frame"
	"lta/internal/jaccard"
	"lta/internal/lipid"
	"lta/internal/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Result is everything one run produces. It is not modified after Run
// returns.
type Result struct {
	Grids        frame.Grids
	A            *lipid.AClass
	Bc, Bp, U    *lipid.ClassSet
	N            map[int]*lipid.ClassSet
	Similarities []models.SimilarityResult
	FoldChanges  []models.FoldChange
	Order        [2]string
}

// Classes lists the class sets in report order: a, bc, bp, u, n2, n3...
func (r *Result) Classes() []*lipid.ClassSet {
	out := []*lipid.ClassSet{r.A.ClassSet, r.Bc, r.Bp, r.U}
	ks := make([]int, 0, len(r.N))
	for k := range r.N {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	for _, k := range ks {
		out = append(out, r.N[k])
	}
	return out
}

// Class returns a class set by name.
func (r *Result) Class(name string) (*lipid.ClassSet, bool) {
	for _, c := range r.Classes() {
		if c.Class == name {
			return c, true
		}
	}
	return nil, false
}

// Modes lists the modes of the run.
func (r *Result) Modes() []string { return r.Grids.Modes() }

type options struct {
	estimator jaccard.Estimator
}

// Option configures Run.
type Option func(*options)

// WithEstimator replaces the plain bootstrap, typically with a cache.
func WithEstimator(e jaccard.Estimator) Option {
	return func(o *options) { o.estimator = e }
}

// Run analyses data, a list of measurement matrices per mode.
func Run(ctx context.Context, cfg config.Config, data map[string][]*frame.Matrix, opts ...Option) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{estimator: jaccard.Default}
	for _, opt := range opts {
		opt(&o)
	}

	grids, err := lipid.Binarize(data, cfg.Threshold)
	if err != nil {
		return nil, err
	}
	if len(grids) == 0 {
		return nil, fmt.Errorf("pipeline: no measurements")
	}
	res := &Result{Grids: grids, N: make(map[int]*lipid.ClassSet), Order: cfg.Order}

	if res.A, err = lipid.ALipids(grids); err != nil {
		return nil, err
	}
	if res.Bc, err = lipid.BLipids(grids, res.A, false); err != nil {
		return nil, err
	}
	if res.Bp, err = lipid.BLipids(grids, res.A, true); err != nil {
		return nil, err
	}
	if res.U, err = lipid.ULipids(grids); err != nil {
		return nil, err
	}
	most := 0
	for _, g := range grids {
		if n := len(g.Compartments()); n > most {
			most = n
		}
	}
	for k := 2; k <= most; k++ {
		if res.N[k], err = lipid.NLipids(grids, k); err != nil {
			return nil, err
		}
	}

	if res.FoldChanges, err = foldChanges(data, cfg.Order); err != nil {
		return nil, err
	}
	if res.Similarities, err = similarities(ctx, cfg, o.estimator, res.Classes()); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"modes":        len(grids),
		"classes":      len(res.Classes()),
		"similarities": len(res.Similarities),
	}).Info("pipeline finished")
	return res, nil
}

type job struct {
	class, key, mode, category string
	x, y                       []bool
}

func jobs(classes []*lipid.ClassSet, order [2]string) []job {
	var out []job
	for _, cs := range classes {
		for _, key := range cs.Keys() {
			t, _ := cs.Get(key)
			x, okX := t.Column(order[0])
			y, okY := t.Column(order[1])
			if !okX || !okY {
				if t.Len() > 0 {
					log.WithFields(log.Fields{"class": cs.Class, "key": key, "conditions": t.Conditions}).
						Warn("table lacks an order condition, skipping")
				}
				continue
			}
			cats, members := t.Categories()
			for _, cat := range cats {
				idx := members[cat]
				j := job{class: cs.Class, key: key, mode: t.Mode, category: cat,
					x: make([]bool, len(idx)), y: make([]bool, len(idx))}
				for k, i := range idx {
					j.x[k], j.y[k] = x[i], y[i]
				}
				out = append(out, j)
			}
		}
	}
	return out
}

func similarities(ctx context.Context, cfg config.Config, est jaccard.Estimator, classes []*lipid.ClassSet) ([]models.SimilarityResult, error) {
	todo := jobs(classes, cfg.Order)
	out := make([]models.SimilarityResult, len(todo))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, j := range todo {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := est.Bootstrap(j.x, j.y, jaccard.WithReps(cfg.BootReps), jaccard.WithSeed(cfg.Seed))
			if err != nil {
				return fmt.Errorf("%s %s %s: %w", j.class, j.key, j.category, err)
			}
			out[i] = models.SimilarityResult{
				Class:      j.class,
				Key:        j.key,
				Mode:       j.mode,
				Category:   j.category,
				Similarity: r.Similarity,
				Distance:   r.Distance(),
				PValue:     r.PValue,
				Degenerate: r.Degenerate != jaccard.NotDegenerate,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Class != out[b].Class {
			return out[a].Class < out[b].Class
		}
		if out[a].Key != out[b].Key {
			return out[a].Key < out[b].Key
		}
		return out[a].Category < out[b].Category
	})
	return out, nil
}

// foldChanges computes ENFC per mode and compartment. Compartments missing
// an order condition are skipped.
func foldChanges(data map[string][]*frame.Matrix, order [2]string) ([]models.FoldChange, error) {
	modes := make([]string, 0, len(data))
	for m := range data {
		modes = append(modes, m)
	}
	sort.Strings(modes)

	var out []models.FoldChange
	for _, mode := range modes {
		for _, m := range data[mode] {
			byComp, err := m.SplitBy(models.RoleCompartment)
			if err != nil {
				return nil, err
			}
			comps, _ := m.Labels(models.RoleCompartment)
			for _, comp := range comps {
				sub := byComp[comp]
				conds, _ := sub.Labels(models.RoleCondition)
				if !contains(conds, order[0]) || !contains(conds, order[1]) {
					log.WithFields(log.Fields{"mode": mode, "compartment": comp}).Debug("no fold change without both order conditions")
					continue
				}
				vals, err := lipid.ENFC(sub, order)
				if err != nil {
					return nil, err
				}
				for e, v := range vals {
					out = append(out, models.FoldChange{Mode: mode, Compartment: comp, Entity: sub.Entities[e], ENFC: v})
				}
			}
		}
	}
	return out, nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
