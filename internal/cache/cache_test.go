package cache

import (
	"bytes"
	"testing"

	"lta/internal/jaccard"
)

type countingEstimator struct {
	calls int
}

func (c *countingEstimator) Bootstrap(x, y []bool, opts ...jaccard.Option) (jaccard.Result, error) {
	c.calls++
	return jaccard.Bootstrap(x, y, opts...)
}

func TestBootstrapCached(t *testing.T) {
	next := &countingEstimator{}
	c, err := Open("", next)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	x := []bool{true, false, true, true, false, true}
	y := []bool{true, true, false, true, false, false}
	first, err := c.Bootstrap(x, y, jaccard.WithReps(50))
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Bootstrap(x, y, jaccard.WithReps(50))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("cached result %+v differs from %+v", second, first)
	}
	if next.calls != 1 {
		t.Fatalf("estimator ran %d times, want 1", next.calls)
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 || s.Errors != 0 {
		t.Fatalf("stats = %+v", s)
	}

	if _, err := c.Bootstrap(x, y, jaccard.WithReps(50), jaccard.WithSeed(7)); err != nil {
		t.Fatal(err)
	}
	if next.calls != 2 {
		t.Fatalf("a new seed must miss the cache, estimator ran %d times", next.calls)
	}
}

func TestBootstrapErrorNotCached(t *testing.T) {
	c, err := Open("", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Bootstrap([]bool{true}, []bool{true, false}); err == nil {
		t.Fatal("expected a length mismatch error")
	}
}

func TestKey(t *testing.T) {
	p := jaccard.Resolve()
	a := Key([]bool{true, false}, []bool{false, true}, p)
	b := Key([]bool{false, true}, []bool{true, false}, p)
	if bytes.Equal(a, b) {
		t.Fatal("swapped vectors share a key")
	}
	c := Key([]bool{true, false, false}, []bool{false, true}, p)
	if bytes.Equal(a, c) {
		t.Fatal("vectors differing only in a trailing false share a key")
	}
	if !bytes.HasPrefix(a, []byte(keyPrefix)) {
		t.Fatalf("key %x lacks the %q prefix", a, keyPrefix)
	}
	if !bytes.Equal(a, Key([]bool{true, false}, []bool{false, true}, jaccard.Resolve(jaccard.WithSeed(jaccard.DefaultSeed)))) {
		t.Fatal("explicit default seed changed the key")
	}
}
