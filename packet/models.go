package packet

import (
	"net"
	"os"

	"github.com/google/gopacket/pcapgo"
)

type MessageType int

const (
	Unknown MessageType = iota
	Request
	Response
)

const snapLen = 65536

var (
	clientMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	serverMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Recorder writes the datagrams of replay exchanges as Ethernet frames into a
// pcap file.
type Recorder struct {
	f      *os.File
	w      *pcapgo.Writer
	client *net.UDPAddr
	server *net.UDPAddr
	ipID   uint16
}
