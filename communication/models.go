package communication

import (
	"net"
	"time"
)

const maxDatagramSize = 65535

// Request is one probe sent to a replayed target.
type Request struct {
	Host    string
	Port    int
	Payload []byte
	// IdleTimeout ends collection once no datagram arrived for that long.
	IdleTimeout time.Duration
	// MaxWait bounds the whole exchange. Zero means only IdleTimeout applies.
	MaxWait time.Duration
}

// Exchange is the request and every response datagram of one probe.
type Exchange struct {
	Request   []byte
	Responses [][]byte
	Local     *net.UDPAddr
	Remote    *net.UDPAddr
}
