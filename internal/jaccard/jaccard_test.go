package jaccard

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
)

const eps = 1e-12

func approx(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestSimilarityDefault(t *testing.T) {
	x := []bool{true, true, false}
	y := []bool{true, false, true}
	got, err := Similarity(x, y)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(got, 1.0/3) {
		t.Fatalf("similarity = %f, want 1/3", got)
	}
}

func TestSimilarityCenter(t *testing.T) {
	x := []bool{true, true, false}
	y := []bool{true, false, true}
	got, err := Similarity(x, y, Center())
	if err != nil {
		t.Fatal(err)
	}
	if !approx(got, -1.0/6) {
		t.Fatalf("centered similarity = %f, want -1/6", got)
	}
}

func TestSimilarityPXPY(t *testing.T) {
	x := []bool{false, false, false}
	y := []bool{false, false, false}
	got, err := Similarity(x, y, WithPX(0.5), WithPY(0.5))
	if err != nil {
		t.Fatal(err)
	}
	if !approx(got, 1.0/3) {
		t.Fatalf("similarity = %f, want 1/3", got)
	}
}

func TestSimilarityUndefined(t *testing.T) {
	x := []bool{false, false}
	got, err := Similarity(x, x)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(got) {
		t.Fatalf("similarity = %f, want NaN", got)
	}
}

func TestSimilarityShape(t *testing.T) {
	tests := []struct {
		name string
		x, y any
		dim  bool
	}{
		{"2d", [][]bool{{true}, {false}}, [][]bool{{true}, {false}}, true},
		{"length", []bool{true}, []bool{true, false}, true},
		{"scalar", true, []bool{true}, true},
		{"int", []int{1, 0}, []int{1, 0}, false},
		{"decoded 2d", []any{[]any{true}}, []any{true}, true},
		{"decoded number", []any{true, 1.0}, []any{true, false}, false},
		{"decoded null", []any{true, nil}, []any{true, false}, false},
	}
	for _, test := range tests {
		_, err := SimilarityOf(test.x, test.y)
		var de *DimensionError
		var te *TypeError
		switch {
		case test.dim && !errors.As(err, &de):
			t.Errorf("%s: got %v, want DimensionError", test.name, err)
		case !test.dim && !errors.As(err, &te):
			t.Errorf("%s: got %v, want TypeError", test.name, err)
		}
	}

	if _, err := Similarity([]bool{true}, []bool{true, false}); err == nil {
		t.Fatal("expected a length mismatch error")
	}

	x, y, err := Validate([]any{true, false, true}, []bool{true, true, false})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(x, []bool{true, false, true}) || !reflect.DeepEqual(y, []bool{true, true, false}) {
		t.Fatalf("Validate = %v, %v", x, y)
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	vectors := [][]bool{
		{true, false, true, true, false},
		{false, false, true, false, false},
		{true, true, true, true, false},
		{false, false, false, false, false},
		{true, false, false, true, true},
	}
	for i, x := range vectors {
		for j, y := range vectors {
			a, _ := Similarity(x, y)
			b, _ := Similarity(y, x)
			if !(approx(a, b) || math.IsNaN(a) && math.IsNaN(b)) {
				t.Errorf("similarity(%d, %d) = %f but similarity(%d, %d) = %f", i, j, a, j, i, b)
			}
			d, _ := Distance(x, y)
			if !(d == 1-a || math.IsNaN(d) && math.IsNaN(a)) {
				t.Errorf("distance(%d, %d) = %f, want 1 - %f", i, j, d, a)
			}
		}
	}
}

func TestDistance(t *testing.T) {
	x := []bool{true, true, false}
	y := []bool{true, false, true}
	got, err := Distance(x, y, Center())
	if err != nil {
		t.Fatal(err)
	}
	if !approx(got, 2.0/3) {
		t.Fatalf("distance = %f, want 2/3", got)
	}

	z := []bool{false, false, false}
	got, err = Distance(z, z, WithPX(0.5), WithPY(0.5))
	if err != nil {
		t.Fatal(err)
	}
	if !approx(got, 2.0/3) {
		t.Fatalf("distance = %f, want 2/3", got)
	}
}

func TestBootstrapDegenerate(t *testing.T) {
	tests := []struct {
		name string
		x, y []bool
		opts []Option
		sim  float64
		kind Degeneracy
	}{
		{"all ones", []bool{true, true, true}, []bool{true, false, true}, nil, 2.0 / 3, AllTrue},
		{"all zeros", []bool{true, true, false}, []bool{false, false, false}, nil, 0, AllFalse},
		{"px py", []bool{true, true, false}, []bool{true, false, false},
			[]Option{WithPX(1), WithPY(1)}, 0.5, AllTrue},
	}
	for _, test := range tests {
		opts := append([]Option{WithReps(10), Quiet()}, test.opts...)
		res, err := Bootstrap(test.x, test.y, opts...)
		if err != nil {
			t.Fatalf("%s: %v", test.name, err)
		}
		if res.PValue != 1 || res.Degenerate != test.kind || !approx(res.Similarity, test.sim) {
			t.Errorf("%s: got %+v, want similarity %f, p 1, %s", test.name, res, test.sim, test.kind)
		}
	}
}

func TestBootstrap(t *testing.T) {
	x := []bool{true, true, false}
	y := []bool{true, false, true}
	res, err := Bootstrap(x, y, WithReps(10))
	if err != nil {
		t.Fatal(err)
	}
	if !approx(res.Similarity, 1.0/3) {
		t.Fatalf("similarity = %f, want 1/3", res.Similarity)
	}
	if res.PValue < 0 || res.PValue > 1 {
		t.Fatalf("p-value %f outside [0, 1]", res.PValue)
	}
	if steps := res.PValue * 10; !approx(steps, math.Round(steps)) {
		t.Fatalf("p-value %f is not a multiple of 1/10", res.PValue)
	}
	if res.Degenerate != NotDegenerate {
		t.Fatalf("unexpected degenerate result %s", res.Degenerate)
	}

	// The default seed fixes the draw sequence, and with it these values.
	for _, test := range []struct {
		reps int
		p    float64
	}{
		{10, 0.8},
		{1000, 0.473},
	} {
		res, err := Bootstrap(x, y, WithReps(test.reps))
		if err != nil {
			t.Fatal(err)
		}
		if !approx(res.PValue, test.p) {
			t.Errorf("%d reps: p-value = %v, want %v", test.reps, res.PValue, test.p)
		}
	}
}

func TestBootstrapDeterministic(t *testing.T) {
	x := []bool{true, false, true, true, false, false, true, false, true, true}
	y := []bool{true, true, false, true, false, true, false, false, true, false}
	a, err := Bootstrap(x, y, WithReps(200), WithSeed(42))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Bootstrap(x, y, WithReps(200), WithSeed(42))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("same seed gave %+v and %+v", a, b)
	}
}

func TestBootstrapInvalid(t *testing.T) {
	if _, err := Bootstrap([]bool{true}, []bool{true, false}); err == nil {
		t.Fatal("expected a length mismatch error")
	}
	if _, err := Bootstrap([]bool{true, false}, []bool{false, true}, WithReps(0)); err == nil {
		t.Fatal("expected an error for zero repetitions")
	}
}

func ExampleBootstrap() {
	x := []bool{true, true, true}
	y := []bool{true, false, true}
	res, _ := Bootstrap(x, y, Quiet())
	fmt.Printf("J-sim: %.4f p-val: %.1f (%s)\n", res.Similarity, res.PValue, res.Degenerate)
	// Output:
	// J-sim: 0.6667 p-val: 1.0 (all 1s)
}
