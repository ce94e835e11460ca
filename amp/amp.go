package amp

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// New builds an Amp from request and response payload sizes.
func New(bytesIn, bytesOut []int) (Amp, error) {
	for _, s := range bytesIn {
		if s < 0 {
			return Amp{}, errors.Errorf("Negative request size: %d", s)
		}
	}
	for _, s := range bytesOut {
		if s < 0 {
			return Amp{}, errors.Errorf("Negative response size: %d", s)
		}
	}
	return Amp{
		in:  append(Traffic(nil), bytesIn...),
		out: append(Traffic(nil), bytesOut...),
	}, nil
}

// MustNew is like New but panics on invalid sizes.
func MustNew(bytesIn, bytesOut []int) Amp {
	a, err := New(bytesIn, bytesOut)
	if err != nil {
		panic(err)
	}
	return a
}

func overhead(size int, layer Layer) int {
	switch layer {
	case L7:
		return size
	case L4:
		return size + UDPHeaderSize
	case L3:
		return size + UDPHeaderSize + IPv4HeaderSize
	case L2:
		return max(MinEthFrameSize, size+UDPHeaderSize+IPv4HeaderSize+EthFramingSize)
	}
	panic(fmt.Sprintf("unknown layer %d", layer))
}

// Packets returns the per-packet sizes at the given layer.
func (t Traffic) Packets(layer Layer) []int {
	pkts := make([]int, len(t))
	for i, s := range t {
		pkts[i] = overhead(s, layer)
	}
	return pkts
}

// Size returns the total byte size at the given layer.
func (t Traffic) Size(layer Layer) int {
	total := 0
	for _, s := range t {
		total += overhead(s, layer)
	}
	return total
}

func (a Amp) In() Traffic {
	return append(Traffic(nil), a.in...)
}

func (a Amp) Out() Traffic {
	return append(Traffic(nil), a.out...)
}

// Degenerate reports whether the sample has no request packets.
func (a Amp) Degenerate() bool {
	return len(a.in) == 0
}

// BAF returns the byte amplification factor at the given layer.
func (a Amp) BAF(layer Layer) (float64, error) {
	in := a.in.Size(layer)
	if in == 0 {
		return 0, errors.Wrapf(ErrDivideByZero, "layer %d", layer)
	}
	return float64(a.out.Size(layer)) / float64(in), nil
}

// Factor is BAF for reporting only; a zero request yields +Inf.
func (a Amp) Factor(layer Layer) float64 {
	f, err := a.BAF(layer)
	if err != nil {
		return math.Inf(1)
	}
	return f
}

// Compare orders a against b by amplification: -1 if a amplifies less,
// +1 if more, 0 only when both carry identical payload sequences.
func Compare(a, b Amp) int {
	for _, layer := range Layers {
		if c := crossCompare(a, b, layer); c != 0 {
			return c
		}
	}
	if c := compareSizes(a.in, b.in); c != 0 {
		return c
	}
	return compareSizes(a.out, b.out)
}

// crossCompare compares a.out/a.in with b.out/b.in as a.out*b.in vs b.out*a.in.
func crossCompare(a, b Amp, layer Layer) int {
	lhs := new(uint256.Int).Mul(uint256.NewInt(uint64(a.out.Size(layer))), uint256.NewInt(uint64(b.in.Size(layer))))
	rhs := new(uint256.Int).Mul(uint256.NewInt(uint64(b.out.Size(layer))), uint256.NewInt(uint64(a.in.Size(layer))))
	return lhs.Cmp(rhs)
}

func compareSizes(x, y Traffic) int {
	for i := 0; i < len(x) && i < len(y); i++ {
		switch {
		case x[i] < y[i]:
			return -1
		case x[i] > y[i]:
			return 1
		}
	}
	switch {
	case len(x) < len(y):
		return -1
	case len(x) > len(y):
		return 1
	}
	return 0
}

func (a Amp) Less(b Amp) bool {
	return Compare(a, b) < 0
}

// Equal is structural equality of the payload sequences.
func (a Amp) Equal(b Amp) bool {
	return compareSizes(a.in, b.in) == 0 && compareSizes(a.out, b.out) == 0
}

func (a Amp) String() string {
	return fmt.Sprintf("Amp(%.3f)", a.Factor(L2))
}

func (a Amp) MarshalJSON() ([]byte, error) {
	j := jsonAmp{BytesIn: a.in, BytesOut: a.out}
	if j.BytesIn == nil {
		j.BytesIn = []int{}
	}
	if j.BytesOut == nil {
		j.BytesOut = []int{}
	}
	return json.Marshal(j)
}

func (a *Amp) UnmarshalJSON(data []byte) error {
	var j jsonAmp
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	parsed, err := New(j.BytesIn, j.BytesOut)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
