// Package jaccard implements the Jaccard similarity of presence/absence
// vectors and its bootstrap significance test, after
//
//	Chung, N., Miasojedow, B., Startek, M., and Gambin, A. "Jaccard/Tanimoto
//	similarity test and estimation methods for biological presence-absence
//	data" BMC Bioinformatics (2019) 20(Suppl 15): 644.
package jaccard

import (
	"fmt"
	"reflect"
)

// DimensionError reports vectors that are not one-dimensional or not of the
// same length.
type DimensionError struct {
	Ranks   [2]int
	Lengths [2]int
}

func (e *DimensionError) Error() string {
	if e.Ranks[0] != 1 || e.Ranks[1] != 1 {
		return fmt.Sprintf("jaccard: all vectors must be 1-d, ranks: %v", e.Ranks)
	}
	return fmt.Sprintf("jaccard: all vectors must have the same length, lengths: %v", e.Lengths)
}

// TypeError reports vectors that are not boolean.
type TypeError struct {
	Types [2]string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("jaccard: all vectors must be boolean, types: %v", e.Types)
}

type options struct {
	center bool
	px, py float64
	hasPX  bool
	hasPY  bool
	reps   int
	seed   int64
	notify bool
}

// Option configures Similarity, Distance and Bootstrap.
type Option func(*options)

// Center subtracts the expected similarity under independence.
func Center() Option {
	return func(o *options) { o.center = true }
}

// WithPX sets the probability of presence in x instead of its mean.
func WithPX(p float64) Option {
	return func(o *options) { o.px, o.hasPX = p, true }
}

// WithPY sets the probability of presence in y instead of its mean.
func WithPY(p float64) Option {
	return func(o *options) { o.py, o.hasPY = p, true }
}

// WithReps sets the number of bootstrap resamples.
func WithReps(n int) Option {
	return func(o *options) { o.reps = n }
}

// WithSeed sets the seed of the resampling generator.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

// Quiet suppresses the degenerate-case log notice.
func Quiet() Option {
	return func(o *options) { o.notify = false }
}

const (
	DefaultReps = 1000
	DefaultSeed = 42
)

func newOptions(opts []Option) options {
	o := options{reps: DefaultReps, seed: DefaultSeed, notify: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Similarity returns the Jaccard similarity of x and y. When neither vector
// has a true value the expected similarity px*py/(px+py-px*py) is returned
// instead, which is NaN when px and py are both zero.
func Similarity(x, y []bool, opts ...Option) (float64, error) {
	if len(x) != len(y) {
		return 0, &DimensionError{Ranks: [2]int{1, 1}, Lengths: [2]int{len(x), len(y)}}
	}
	o := newOptions(opts)
	return similarity(x, y, o), nil
}

// SimilarityOf validates arbitrary vectors before computing Similarity.
// Anything but a one-dimensional slice or array is a *DimensionError, as is
// a length mismatch; a non-boolean element type is a *TypeError.
func SimilarityOf(x, y any, opts ...Option) (float64, error) {
	bx, by, err := Validate(x, y)
	if err != nil {
		return 0, err
	}
	return Similarity(bx, by, opts...)
}

// Distance returns 1 - Similarity(x, y). Centering does not apply.
func Distance(x, y []bool, opts ...Option) (float64, error) {
	opts = append(opts, func(o *options) { o.center = false })
	s, err := Similarity(x, y, opts...)
	if err != nil {
		return 0, err
	}
	return 1 - s, nil
}

func similarity(x, y []bool, o options) float64 {
	nx, ny, both := counts(x, y)
	px, py := o.px, o.py
	if !o.hasPX {
		px = float64(nx) / float64(len(x))
	}
	if !o.hasPY {
		py = float64(ny) / float64(len(y))
	}

	expected := (px * py) / (px + py - px*py)
	var j float64
	if union := nx + ny - both; union == 0 {
		j = expected
	} else {
		j = float64(both) / float64(union)
	}
	if o.center {
		return j - expected
	}
	return j
}

func counts(x, y []bool) (nx, ny, both int) {
	for i := range x {
		if x[i] {
			nx++
		}
		if y[i] {
			ny++
		}
		if x[i] && y[i] {
			both++
		}
	}
	return nx, ny, both
}

// Validate converts x and y to boolean vectors. Both must be one-dimensional
// slices or arrays of equal length with boolean elements; slices of
// interfaces, as decoded from JSON, are checked element by element.
func Validate(x, y any) ([]bool, []bool, error) {
	vx, vy := reflect.ValueOf(x), reflect.ValueOf(y)
	rx, ry := rank(vx), rank(vy)
	if rx != 1 || ry != 1 {
		return nil, nil, &DimensionError{Ranks: [2]int{rx, ry}}
	}
	if vx.Len() != vy.Len() {
		return nil, nil, &DimensionError{Ranks: [2]int{1, 1}, Lengths: [2]int{vx.Len(), vy.Len()}}
	}
	tx, okX := elemType(vx)
	ty, okY := elemType(vy)
	if !okX || !okY {
		return nil, nil, &TypeError{Types: [2]string{tx, ty}}
	}
	return toBools(vx), toBools(vy), nil
}

// rank counts the nesting depth of slices and arrays. Interface elements
// count by their dynamic value.
func rank(v reflect.Value) int {
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return 0
		}
		v = v.Elem()
	}
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return 0
	}
	if v.Type().Elem().Kind() != reflect.Interface {
		r := 0
		for t := v.Type(); t.Kind() == reflect.Slice || t.Kind() == reflect.Array; t = t.Elem() {
			r++
		}
		return r
	}
	r := 1
	for i := 0; i < v.Len(); i++ {
		if n := 1 + rank(v.Index(i)); n > r {
			r = n
		}
	}
	return r
}

// elemType names the element type of a one-dimensional vector and reports
// whether it is boolean.
func elemType(v reflect.Value) (string, bool) {
	t := v.Type().Elem()
	if t.Kind() != reflect.Interface {
		return t.String(), t.Kind() == reflect.Bool
	}
	for i := 0; i < v.Len(); i++ {
		e := v.Index(i)
		if e.IsNil() {
			return "nil", false
		}
		if e.Elem().Kind() != reflect.Bool {
			return e.Elem().Type().String(), false
		}
	}
	return "bool", true
}

func toBools(v reflect.Value) []bool {
	out := make([]bool, v.Len())
	for i := range out {
		e := v.Index(i)
		if e.Kind() == reflect.Interface {
			e = e.Elem()
		}
		out[i] = e.Bool()
	}
	return out
}
