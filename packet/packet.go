package packet

import (
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/lukjok/ampdedup/amp"
	"github.com/lukjok/ampdedup/communication"
	"github.com/pkg/errors"
)

func loopback(addr *net.UDPAddr) *net.UDPAddr {
	out := *addr
	if out.IP == nil || out.IP.IsUnspecified() {
		out.IP = net.IPv4(127, 0, 0, 1)
	}
	return &out
}

// NewRecorder creates path and writes the pcap file header. Frames are written
// between client and server.
func NewRecorder(path string, client, server *net.UDPAddr) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Errorf("Failed to create capture %s: %s", path, err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, errors.Errorf("Failed to write capture header: %s", err)
	}
	return &Recorder{
		f:      f,
		w:      w,
		client: loopback(client),
		server: loopback(server),
	}, nil
}

// Write appends one datagram. Requests flow client to server, responses the
// other way.
func (r *Recorder) Write(t MessageType, payload []byte, ts time.Time) error {
	src, dst := r.client, r.server
	srcMAC, dstMAC := clientMAC, serverMAC
	if t == Response {
		src, dst = dst, src
		srcMAC, dstMAC = dstMAC, srcMAC
	}
	r.ipID++

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		Id:       r.ipID,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src.IP.To4(),
		DstIP:    dst.IP.To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return errors.WithMessage(err, "Failed to prepare UDP checksum")
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return errors.WithMessage(err, "Failed to serialize datagram")
	}
	data := buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := r.w.WritePacket(ci, data); err != nil {
		return errors.Errorf("Failed to write capture: %s", err)
	}
	return nil
}

func (r *Recorder) Close() error {
	return r.f.Close()
}

// RecordExchange writes a replay exchange to a new capture at path.
func RecordExchange(path string, ex *communication.Exchange) error {
	r, err := NewRecorder(path, ex.Local, ex.Remote)
	if err != nil {
		return err
	}
	defer r.Close()

	ts := time.Now()
	if err := r.Write(Request, ex.Request, ts); err != nil {
		return err
	}
	for i, resp := range ex.Responses {
		if err := r.Write(Response, resp, ts.Add(time.Duration(i+1)*time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}

// AmpFromPcap derives an Amp from the UDP datagrams of a capture: datagrams to
// port are requests, datagrams from port are responses.
func AmpFromPcap(path string, port int) (amp.Amp, error) {
	f, err := os.Open(path)
	if err != nil {
		return amp.Amp{}, errors.Errorf("Failed to open capture %s: %s", path, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return amp.Amp{}, errors.Errorf("Failed to read capture %s: %s", path, err)
	}

	var in, out []int
	src := gopacket.NewPacketSource(r, r.LinkType())
	for pkt := range src.Packets() {
		l := pkt.Layer(layers.LayerTypeUDP)
		if l == nil {
			continue
		}
		udp := l.(*layers.UDP)
		switch {
		case int(udp.DstPort) == port:
			in = append(in, len(udp.Payload))
		case int(udp.SrcPort) == port:
			out = append(out, len(udp.Payload))
		}
	}
	return amp.New(in, out)
}
