package communication

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/lukjok/ampdedup/amp"
	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
)

const batchSize = 16

// Probe sends the payload once and collects the target's datagrams until the
// connection stays idle for IdleTimeout, MaxWait elapses or ctx is done.
func Probe(ctx context.Context, req Request) (*Exchange, error) {
	raddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(req.Host, strconv.Itoa(req.Port)))
	if err != nil {
		return nil, errors.Errorf("Failed to resolve %s:%d: %s", req.Host, req.Port, err)
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, errors.WithMessage(err, "Failed to open probe socket")
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	pc := ipv4.NewPacketConn(conn)
	if _, err := pc.WriteTo(req.Payload, nil, raddr); err != nil {
		return nil, errors.WithMessage(err, "Failed to send probe")
	}

	ex := &Exchange{
		Request: append([]byte(nil), req.Payload...),
		Local:   conn.LocalAddr().(*net.UDPAddr),
		Remote:  raddr,
	}

	var hardDeadline time.Time
	if req.MaxWait > 0 {
		hardDeadline = time.Now().Add(req.MaxWait)
	}
	if d, ok := ctx.Deadline(); ok && (hardDeadline.IsZero() || d.Before(hardDeadline)) {
		hardDeadline = d
	}

	msgs := make([]ipv4.Message, batchSize)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, maxDatagramSize)}
	}
	for {
		if ctx.Err() != nil {
			return ex, ctx.Err()
		}
		deadline := time.Now().Add(req.IdleTimeout)
		if !hardDeadline.IsZero() && hardDeadline.Before(deadline) {
			deadline = hardDeadline
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return ex, errors.WithMessage(err, "Failed to arm receive deadline")
		}
		if ctx.Err() != nil {
			return ex, ctx.Err()
		}

		n, err := pc.ReadBatch(msgs, 0)
		// ReadBatch reports -1 together with a deadline error.
		if n < 0 {
			n = 0
		}
		for _, m := range msgs[:n] {
			if !fromTarget(m.Addr, raddr) {
				continue
			}
			ex.Responses = append(ex.Responses, append([]byte(nil), m.Buffers[0][:m.N]...))
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if ctx.Err() != nil {
					return ex, ctx.Err()
				}
				return ex, nil
			}
			return ex, errors.WithMessage(err, "Failed to receive response")
		}
	}
}

func fromTarget(addr net.Addr, target *net.UDPAddr) bool {
	u, ok := addr.(*net.UDPAddr)
	if !ok {
		return false
	}
	if u.Port != target.Port {
		return false
	}
	return u.IP.Equal(target.IP) || target.IP.IsUnspecified()
}

// Amp measures the exchange. An exchange without responses has an empty
// response sequence.
func (e *Exchange) Amp() (amp.Amp, error) {
	out := make([]int, len(e.Responses))
	for i, r := range e.Responses {
		out[i] = len(r)
	}
	return amp.New([]int{len(e.Request)}, out)
}
