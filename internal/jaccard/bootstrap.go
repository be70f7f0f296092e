package jaccard

import (
	"fmt"
	"math"
	"math/rand/v2"

	log "github.com/sirupsen/logrus"
)

// Degeneracy marks vector pairs the bootstrap test is uninformative for.
type Degeneracy int

const (
	NotDegenerate Degeneracy = iota
	AllTrue
	AllFalse
)

func (d Degeneracy) String() string {
	switch d {
	case AllTrue:
		return "all 1s"
	case AllFalse:
		return "all 0s"
	}
	return ""
}

// Result is the outcome of a bootstrap test.
type Result struct {
	Similarity float64
	PValue     float64
	Degenerate Degeneracy
	Reps       int
}

// Distance is the Jaccard distance matching Similarity.
func (r Result) Distance() float64 { return 1 - r.Similarity }

// Params are resolved options, exposed for callers that key results on them.
type Params struct {
	Center       bool
	PX, PY       float64
	HasPX, HasPY bool
	Reps         int
	Seed         int64
}

// Resolve applies opts over the defaults.
func Resolve(opts ...Option) Params {
	o := newOptions(opts)
	return Params{
		Center: o.center,
		PX:     o.px,
		PY:     o.py,
		HasPX:  o.hasPX,
		HasPY:  o.hasPY,
		Reps:   o.reps,
		Seed:   o.seed,
	}
}

// Estimator runs bootstrap tests. The package-level Bootstrap is the plain
// implementation; caches wrap it.
type Estimator interface {
	Bootstrap(x, y []bool, opts ...Option) (Result, error)
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(x, y []bool, opts ...Option) (Result, error)

func (f EstimatorFunc) Bootstrap(x, y []bool, opts ...Option) (Result, error) {
	return f(x, y, opts...)
}

// Default is the uncached estimator.
var Default Estimator = EstimatorFunc(Bootstrap)

// Bootstrap tests the similarity of x and y against its null distribution.
// The p-value is the fraction of resampled centered similarities whose
// absolute value is at least that of the observed centered similarity.
//
// If either vector is all true (or px/py is 1) or all false (or px/py is 0)
// the test is degenerate: no resampling happens and the p-value is 1.
//
// Each call draws from its own generator seeded with WithSeed (default 42).
func Bootstrap(x, y []bool, opts ...Option) (Result, error) {
	if len(x) != len(y) {
		return Result{}, &DimensionError{Ranks: [2]int{1, 1}, Lengths: [2]int{len(x), len(y)}}
	}
	o := newOptions(opts)
	if o.reps < 1 {
		return Result{}, fmt.Errorf("jaccard: bootstrap repetitions must be positive, got %d", o.reps)
	}
	nx, ny, _ := counts(x, y)
	if !o.hasPX {
		o.px, o.hasPX = float64(nx)/float64(len(x)), true
	}
	if !o.hasPY {
		o.py, o.hasPY = float64(ny)/float64(len(y)), true
	}

	o.center = false
	j := similarity(x, y, o)
	res := Result{Similarity: j, PValue: 1, Reps: o.reps}
	switch {
	case o.px == 1 || o.py == 1 || nx == len(x) || ny == len(y):
		res.Degenerate = AllTrue
	case o.px == 0 || o.py == 0 || nx == 0 || ny == 0:
		res.Degenerate = AllFalse
	}
	if res.Degenerate != NotDegenerate {
		if o.notify {
			log.WithFields(log.Fields{"j_sim": j}).Infof(
				"calculation is degenerate as at least one vector is %s", res.Degenerate)
		}
		return res, nil
	}

	o.center = true
	obs := math.Abs(similarity(x, y, o))

	rng := rand.New(rand.NewPCG(uint64(o.seed), uint64(o.seed)))
	null := options{center: true}
	bx, by := make([]bool, len(x)), make([]bool, len(y))
	extreme := 0
	for i := 0; i < o.reps; i++ {
		resample(rng, x, bx)
		resample(rng, y, by)
		v := float32(math.Abs(similarity(bx, by, null)))
		if float64(v) >= obs {
			extreme++
		}
	}
	res.PValue = float64(extreme) / float64(o.reps)
	return res, nil
}

// resample fills dst with draws from src with replacement.
func resample(rng *rand.Rand, src, dst []bool) {
	for i := range dst {
		dst[i] = src[rng.IntN(len(src))]
	}
}
