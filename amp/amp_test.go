package amp

import (
	"math"
	"sort"
	"testing"

	"github.com/pkg/errors"
)

func TestLayerSizes(t *testing.T) {
	a := MustNew([]int{10}, []int{500})

	cases := []struct {
		layer    Layer
		in, out  int
		expected float64
	}{
		{L7, 10, 500, 50.0},
		{L4, 18, 508, 508.0 / 18.0},
		{L3, 38, 528, 528.0 / 38.0},
		{L2, 64, 554, 554.0 / 64.0},
	}

	for _, c := range cases {
		if got := a.In().Size(c.layer); got != c.in {
			t.Errorf("L%d request size: expected %d, got %d", c.layer, c.in, got)
		}
		if got := a.Out().Size(c.layer); got != c.out {
			t.Errorf("L%d response size: expected %d, got %d", c.layer, c.out, got)
		}
		baf, err := a.BAF(c.layer)
		if err != nil {
			t.Fatalf("L%d BAF failed: %s", c.layer, err)
		}
		if math.Abs(baf-c.expected) > 1e-9 {
			t.Errorf("L%d BAF: expected %.4f, got %.4f", c.layer, c.expected, baf)
		}
	}

	if baf, _ := a.BAF(L2); math.Abs(baf-8.66) > 0.005 {
		t.Errorf("Expected L2 BAF of about 8.66, got %.4f", baf)
	}
}

func TestMinimumFrameIsPerPacket(t *testing.T) {
	tr := Traffic{1, 2, 100}
	pkts := tr.Packets(L2)
	expected := []int{64, 64, 154}
	for i := range expected {
		if pkts[i] != expected[i] {
			t.Errorf("Packet %d: expected %d, got %d", i, expected[i], pkts[i])
		}
	}
	if tr.Size(L2) != 64+64+154 {
		t.Errorf("Unexpected L2 total %d", tr.Size(L2))
	}
}

func TestBAFDivideByZero(t *testing.T) {
	empty := MustNew(nil, []int{100})
	if !empty.Degenerate() {
		t.Errorf("Empty request should be degenerate")
	}
	if _, err := empty.BAF(L2); !errors.Is(err, ErrDivideByZero) {
		t.Errorf("Expected ErrDivideByZero at L2, got %v", err)
	}

	zeroPayload := MustNew([]int{0}, []int{100})
	if _, err := zeroPayload.BAF(L7); !errors.Is(err, ErrDivideByZero) {
		t.Errorf("Expected ErrDivideByZero at L7, got %v", err)
	}
	if _, err := zeroPayload.BAF(L2); err != nil {
		t.Errorf("L2 has a frame floor and must not fail: %s", err)
	}
	if !math.IsInf(zeroPayload.Factor(L7), 1) {
		t.Errorf("Reporting factor for zero request should be +Inf")
	}
}

func TestNewRejectsNegativeSizes(t *testing.T) {
	if _, err := New([]int{-1}, nil); err == nil {
		t.Errorf("Expected error for negative request size")
	}
	if _, err := New([]int{1}, []int{3, -4}); err == nil {
		t.Errorf("Expected error for negative response size")
	}
}

func TestNewCopiesInput(t *testing.T) {
	in := []int{10}
	a := MustNew(in, []int{20})
	in[0] = 99
	if a.In()[0] != 10 {
		t.Errorf("Amp must not alias caller slices")
	}
}

func TestCompareFallsBackToL3(t *testing.T) {
	// Both requests hit the 64 byte frame floor, so L2 ties.
	a := MustNew([]int{1}, []int{100})
	b := MustNew([]int{5}, []int{100})

	if crossCompare(a, b, L2) != 0 {
		t.Fatalf("Expected an L2 tie")
	}
	if Compare(a, b) != 1 {
		t.Errorf("Smaller request should win at L3, got %d", Compare(a, b))
	}
	if !b.Less(a) || a.Less(b) {
		t.Errorf("Less disagrees with Compare")
	}
}

func TestCompareIsStrictTotalOrder(t *testing.T) {
	samples := []Amp{
		MustNew([]int{10}, []int{500}),
		MustNew([]int{10}, []int{100, 200}),
		MustNew([]int{10}, []int{200, 100}),
		MustNew([]int{1}, []int{100}),
		MustNew([]int{5}, []int{100}),
		MustNew([]int{20}, []int{1000}),
		MustNew([]int{100}, []int{1000}),
		MustNew([]int{250}, []int{1000}),
		MustNew([]int{40, 40}, []int{40}),
		MustNew([]int{0}, []int{0}),
	}

	for i, a := range samples {
		for j, b := range samples {
			lt, gt, eq := a.Less(b), b.Less(a), a.Equal(b)
			n := 0
			for _, v := range []bool{lt, gt, eq} {
				if v {
					n++
				}
			}
			if n != 1 {
				t.Errorf("Pair (%d, %d): expected exactly one relation, got lt=%v gt=%v eq=%v", i, j, lt, gt, eq)
			}
			if Compare(a, b) != -Compare(b, a) {
				t.Errorf("Pair (%d, %d): Compare is not antisymmetric", i, j)
			}
			if (i == j) != eq {
				t.Errorf("Pair (%d, %d): unexpected structural equality %v", i, j, eq)
			}
		}
	}

	sorted := append([]Amp(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	for i := 1; i < len(sorted); i++ {
		if !sorted[i-1].Less(sorted[i]) {
			t.Errorf("Sorted sequence is not strictly increasing at %d", i)
		}
	}
}

func TestEqualIgnoresDerivedFactor(t *testing.T) {
	a := MustNew([]int{10}, []int{100, 200})
	b := MustNew([]int{10}, []int{200, 100})
	if a.Equal(b) {
		t.Errorf("Different response sequences must not be equal")
	}
	fa, _ := a.BAF(L2)
	fb, _ := b.BAF(L2)
	if fa != fb {
		t.Errorf("Expected identical L2 factors, got %f and %f", fa, fb)
	}
}

func TestJSONShape(t *testing.T) {
	a := MustNew([]int{10}, []int{500, 20})
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"bytes_in":[10],"bytes_out":[500,20]}` {
		t.Errorf("Unexpected encoding %s", data)
	}

	var back Amp
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(a) {
		t.Errorf("Decoded %v differs from %v", back, a)
	}

	if err := json.Unmarshal([]byte(`{"bytes_in":[-3],"bytes_out":[]}`), &back); err == nil {
		t.Errorf("Expected decoding failure for negative size")
	}
}
