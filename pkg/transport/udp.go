package transport

import (
	"context"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ringelect/pkg/ring"
)

// DefaultPollTimeout bounds each Receive call.
const DefaultPollTimeout = 500 * time.Millisecond

// UDPTransport receives on a bound UDP socket and sends through a second
// socket connected to the successor. A connected socket surfaces ICMP port
// unreachable as ECONNREFUSED, which is how a successor that is not
// listening yet shows up.
type UDPTransport struct {
	in  *net.UDPConn
	out *net.UDPConn

	pollTimeout time.Duration
	log         *zap.Logger
	buf         []byte

	dropped atomic.Uint64
	closed  atomic.Bool
}

// NewUDPTransport listens on inbound and connects to successor.
func NewUDPTransport(inbound, successor string, pollTimeout time.Duration, log *zap.Logger) (*UDPTransport, error) {
	t, err := ListenUDP(inbound, pollTimeout, log)
	if err != nil {
		return nil, err
	}
	if err := t.Connect(successor); err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

// ListenUDP binds the inbound socket only. Connect must be called before Send.
func ListenUDP(inbound string, pollTimeout time.Duration, log *zap.Logger) (*UDPTransport, error) {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	laddr, err := net.ResolveUDPAddr("udp", inbound)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve inbound address %s", inbound)
	}
	in, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", inbound)
	}
	return &UDPTransport{
		in:          in,
		pollTimeout: pollTimeout,
		log:         log,
		buf:         make([]byte, 64),
	}, nil
}

// Connect points the outbound socket at the successor's inbound address.
func (t *UDPTransport) Connect(successor string) error {
	raddr, err := net.ResolveUDPAddr("udp", successor)
	if err != nil {
		return errors.Wrapf(err, "resolve successor address %s", successor)
	}
	out, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return errors.Wrapf(err, "connect to successor %s", successor)
	}
	if t.out != nil {
		_ = t.out.Close()
	}
	t.out = out
	return nil
}

// LocalAddr returns the bound inbound address.
func (t *UDPTransport) LocalAddr() net.Addr { return t.in.LocalAddr() }

// Send writes msg as one datagram. A successor that is not listening is
// reported as ErrRefused, other transient socket errors as ErrUnavailable.
func (t *UDPTransport) Send(ctx context.Context, msg ring.Message) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.out == nil {
		return errors.New("transport: send before connect")
	}
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := t.out.SetWriteDeadline(t.deadline(ctx)); err != nil {
		return classify(err, "set write deadline")
	}
	if _, err := t.out.Write(payload); err != nil {
		return classify(err, "send "+msg.String())
	}
	return nil
}

// Receive waits up to the poll timeout (or the context deadline, whichever
// is sooner) for one datagram.
func (t *UDPTransport) Receive(ctx context.Context) (ring.Message, bool, error) {
	if t.closed.Load() {
		return ring.Message{}, false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return ring.Message{}, false, err
	}
	if err := t.in.SetReadDeadline(t.deadline(ctx)); err != nil {
		return ring.Message{}, false, classify(err, "set read deadline")
	}
	n, from, err := t.in.ReadFromUDP(t.buf)
	if err != nil {
		err = classify(err, "receive")
		if IsTransient(err) {
			return ring.Message{}, false, nil
		}
		return ring.Message{}, false, err
	}
	msg, ok := Decode(t.buf[:n])
	if !ok {
		t.dropped.Add(1)
		t.log.Debug("dropped malformed datagram", zap.Int("size", n), zap.Stringer("from", from))
		return ring.Message{}, false, nil
	}
	return msg, true, nil
}

// Dropped returns the number of malformed datagrams discarded so far.
func (t *UDPTransport) Dropped() uint64 { return t.dropped.Load() }

// Close closes both sockets.
func (t *UDPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	var first error
	if err := t.in.Close(); err != nil {
		first = err
	}
	if t.out != nil {
		if err := t.out.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t *UDPTransport) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(t.pollTimeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

// classify maps socket errors onto the transport's outcomes: refused (no
// listener), unavailable (transient) or closed. Anything else is returned
// wrapped and the driver counts it against its retry budget.
func classify(err error, op string) error {
	var nerr net.Error
	switch {
	case errors.Is(err, net.ErrClosed):
		return ErrClosed
	case errors.Is(err, syscall.ECONNREFUSED):
		return errors.Wrap(ErrRefused, op+": "+err.Error())
	case errors.As(err, &nerr) && nerr.Timeout():
		return errors.Wrap(ErrUnavailable, op+": timeout")
	case errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.ENOBUFS):
		return errors.Wrap(ErrUnavailable, op+": "+err.Error())
	default:
		return errors.Wrap(err, op)
	}
}
