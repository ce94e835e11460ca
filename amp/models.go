package amp

import "github.com/pkg/errors"

// Layer is a protocol layer at which packet sizes are accounted.
type Layer int

const (
	L2 Layer = 2
	L3 Layer = 3
	L4 Layer = 4
	L7 Layer = 7
)

// Layers in the order they are consulted by Compare.
var Layers = []Layer{L2, L3, L4, L7}

const (
	UDPHeaderSize  = 8
	IPv4HeaderSize = 20
	// Ethernet header, FCS and preamble/SFD.
	EthHeaderSize   = 14
	EthFCSSize      = 4
	EthPreambleSize = 8
	EthFramingSize  = EthHeaderSize + EthFCSSize + EthPreambleSize
	MinEthFrameSize = 64
)

var ErrDivideByZero = errors.New("request size is zero")

// Traffic is the sequence of application payload sizes in one direction.
type Traffic []int

// Amp pairs the request and response payload sizes of one exchange.
// The zero value is a degenerate sample.
type Amp struct {
	in  Traffic
	out Traffic
}

type jsonAmp struct {
	BytesIn  []int `json:"bytes_in"`
	BytesOut []int `json:"bytes_out"`
}
