// Package cpa groups samples by their measurement pattern: normalise,
// optionally project onto principal components, then cluster.
package cpa

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrLinkage  = errors.New("unknown linkage")
	ErrMetric   = errors.New("unknown metric")
	ErrClusters = errors.New("cluster count out of range")
)

// Normalizer standard-scales every column (population deviation) and then
// scales every row to unit length.
type Normalizer struct{}

// Normalize returns a normalised copy of x, observations along rows.
// Constant columns and all-zero rows stay zero.
func (Normalizer) Normalize(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.DenseCopyOf(x)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		for i := 0; i < r; i++ {
			v := col[i] - mean
			if std > 0 {
				v /= std
			}
			out.Set(i, j, v)
		}
	}
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		if n := floats.Norm(row, 2); n > 0 {
			floats.Scale(1/n, row)
		}
	}
	return out
}

// PCA normalises and then keeps the first Components principal components.
type PCA struct {
	Components int
}

// Normalize returns the projected observations, r x Components. Components
// is capped at the number available.
func (p PCA) Normalize(x *mat.Dense) (*mat.Dense, error) {
	if p.Components < 1 {
		return nil, fmt.Errorf("cpa: need at least one component, got %d", p.Components)
	}
	norm := Normalizer{}.Normalize(x)
	var pc stat.PC
	if ok := pc.PrincipalComponents(norm, nil); !ok {
		return nil, errors.New("cpa: principal component analysis failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	d, avail := vecs.Dims()
	k := p.Components
	if k > avail {
		k = avail
	}

	r, c := norm.Dims()
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, norm)
		mean := stat.Mean(col, nil)
		for i := 0; i < r; i++ {
			norm.Set(i, j, col[i]-mean)
		}
	}
	var out mat.Dense
	out.Mul(norm, vecs.Slice(0, d, 0, k))
	return &out, nil
}

type Linkage string

const (
	Ward     Linkage = "ward"
	Complete Linkage = "complete"
	Average  Linkage = "average"
	Single   Linkage = "single"
)

type Metric string

const (
	Euclidean Metric = "euclidean"
	Manhattan Metric = "manhattan"
	Cosine    Metric = "cosine"
)

// Hierarchical is bottom-up agglomerative clustering.
type Hierarchical struct {
	Clusters int
	Linkage  Linkage
	Metric   Metric
}

// Cluster assigns every row of x to one of Clusters clusters. Labels are
// numbered in order of first appearance.
func (h Hierarchical) Cluster(x *mat.Dense) ([]int, error) {
	linkage, metric := h.Linkage, h.Metric
	if linkage == "" {
		linkage = Ward
	}
	if metric == "" {
		metric = Euclidean
	}
	switch linkage {
	case Ward, Complete, Average, Single:
	default:
		return nil, fmt.Errorf("cpa: %w %q", ErrLinkage, linkage)
	}
	if linkage == Ward && metric != Euclidean {
		return nil, fmt.Errorf("cpa: ward linkage needs euclidean distances, got %s", metric)
	}
	n, _ := x.Dims()
	if h.Clusters < 1 || h.Clusters > n {
		return nil, fmt.Errorf("cpa: %w: %d clusters for %d observations", ErrClusters, h.Clusters, n)
	}
	dist, err := pairwise(x, metric)
	if err != nil {
		return nil, err
	}

	size := make([]int, n)
	members := make([][]int, n)
	active := make([]bool, n)
	for i := range size {
		size[i] = 1
		members[i] = []int{i}
		active[i] = true
	}
	for remaining := n; remaining > h.Clusters; remaining-- {
		a, b := closest(dist, active)
		for k := 0; k < n; k++ {
			if !active[k] || k == a || k == b {
				continue
			}
			d := update(linkage, dist[a][k], dist[b][k], dist[a][b], size[a], size[b], size[k])
			dist[a][k], dist[k][a] = d, d
		}
		size[a] += size[b]
		members[a] = append(members[a], members[b]...)
		active[b] = false
		members[b] = nil
	}

	cluster := make([]int, n)
	for c, ms := range members {
		for _, i := range ms {
			cluster[i] = c
		}
	}
	labels := make([]int, n)
	seen := make(map[int]int)
	for i, c := range cluster {
		l, ok := seen[c]
		if !ok {
			l = len(seen)
			seen[c] = l
		}
		labels[i] = l
	}
	return labels, nil
}

// closest finds the nearest active pair, the first one on ties.
func closest(dist [][]float64, active []bool) (int, int) {
	a, b := -1, -1
	best := math.Inf(1)
	for i := range dist {
		if !active[i] {
			continue
		}
		for j := i + 1; j < len(dist); j++ {
			if active[j] && dist[i][j] < best {
				best, a, b = dist[i][j], i, j
			}
		}
	}
	return a, b
}

// update is the Lance-Williams distance from the merge of a and b to k.
func update(l Linkage, dak, dbk, dab float64, na, nb, nk int) float64 {
	switch l {
	case Single:
		return math.Min(dak, dbk)
	case Complete:
		return math.Max(dak, dbk)
	case Average:
		return (float64(na)*dak + float64(nb)*dbk) / float64(na+nb)
	}
	t := float64(na + nb + nk)
	return math.Sqrt((float64(na+nk)*dak*dak + float64(nb+nk)*dbk*dbk - float64(nk)*dab*dab) / t)
}

func pairwise(x *mat.Dense, metric Metric) ([][]float64, error) {
	n, c := x.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(make([]float64, c), i, x)
	}
	var d func(a, b []float64) float64
	switch metric {
	case Euclidean:
		d = func(a, b []float64) float64 { return floats.Distance(a, b, 2) }
	case Manhattan:
		d = func(a, b []float64) float64 { return floats.Distance(a, b, 1) }
	case Cosine:
		d = func(a, b []float64) float64 {
			na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
			if na == 0 || nb == 0 {
				return 1
			}
			return 1 - floats.Dot(a, b)/(na*nb)
		}
	default:
		return nil, fmt.Errorf("cpa: %w %q", ErrMetric, metric)
	}
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := d(rows[i], rows[j])
			dist[i][j], dist[j][i] = v, v
		}
	}
	return dist, nil
}
