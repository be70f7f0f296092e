package cpa

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestNormalize(t *testing.T) {
	x := mat.NewDense(3, 3, []float64{
		1, 3, 5,
		3, 5, 5,
		2, 4, 5,
	})
	got := Normalizer{}.Normalize(x)
	s := 1 / math.Sqrt(2)
	want := []float64{-s, -s, 0, s, s, 0, 0, 0, 0}
	for i, v := range want {
		if math.Abs(got.RawMatrix().Data[i]-v) > 1e-12 {
			t.Fatalf("normalised = %v, want %v", mat.Formatted(got), want)
		}
	}
	if x.At(0, 0) != 1 {
		t.Fatal("Normalize modified its input")
	}
}

func TestPCA(t *testing.T) {
	x := mat.NewDense(4, 3, []float64{
		1, 2, 0,
		2, 4, 1,
		3, 6, 0,
		4, 8, 1,
	})
	got, err := PCA{Components: 2}.Normalize(x)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := got.Dims(); r != 4 || c != 2 {
		t.Fatalf("projection is %dx%d, want 4x2", r, c)
	}
	if _, err := (PCA{}).Normalize(x); err == nil {
		t.Fatal("expected an error for zero components")
	}
	capped, err := PCA{Components: 10}.Normalize(x)
	if err != nil {
		t.Fatal(err)
	}
	if _, c := capped.Dims(); c > 3 {
		t.Fatalf("projection has %d components, more than the 3 columns", c)
	}
}

func TestCluster(t *testing.T) {
	x := mat.NewDense(6, 2, []float64{
		10, 10,
		0, 0,
		10, 11,
		0, 1,
		1, 0,
		11, 10,
	})
	want := []int{0, 1, 0, 1, 1, 0}
	for _, l := range []Linkage{Ward, Complete, Average, Single} {
		for _, m := range []Metric{Euclidean, Manhattan} {
			if l == Ward && m != Euclidean {
				continue
			}
			got, err := Hierarchical{Clusters: 2, Linkage: l, Metric: m}.Cluster(x)
			if err != nil {
				t.Fatalf("%s/%s: %v", l, m, err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("%s/%s: labels = %v, want %v", l, m, got, want)
			}
		}
	}

	got, err := Hierarchical{Clusters: 6}.Cluster(x)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int{0, 1, 2, 3, 4, 5}) {
		t.Fatalf("singleton labels = %v", got)
	}
}

func TestClusterCosine(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 0,
		0, 1,
		5, 0.1,
		0.1, 7,
	})
	got, err := Hierarchical{Clusters: 2, Linkage: Average, Metric: Cosine}.Cluster(x)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int{0, 1, 0, 1}) {
		t.Fatalf("labels = %v", got)
	}
}

func TestClusterErrors(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{0, 0, 1, 1})
	tests := []struct {
		h    Hierarchical
		want error
	}{
		{Hierarchical{Clusters: 3}, ErrClusters},
		{Hierarchical{Clusters: 0}, ErrClusters},
		{Hierarchical{Clusters: 1, Linkage: "centroid"}, ErrLinkage},
		{Hierarchical{Clusters: 1, Linkage: Single, Metric: "chebyshev"}, ErrMetric},
	}
	for _, test := range tests {
		if _, err := test.h.Cluster(x); !errors.Is(err, test.want) {
			t.Errorf("%+v: got %v, want %v", test.h, err, test.want)
		}
	}
	if _, err := (Hierarchical{Clusters: 1, Metric: Manhattan}).Cluster(x); err == nil {
		t.Fatal("expected ward with manhattan distances to fail")
	}
}

func TestRowsUnitLength(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{1, 5, 2, 9, 7, 1})
	n := Normalizer{}.Normalize(x)
	for i := 0; i < 3; i++ {
		if l := floats.Norm(n.RawRowView(i), 2); math.Abs(l-1) > 1e-12 {
			t.Errorf("row %d has length %f", i, l)
		}
	}
}
