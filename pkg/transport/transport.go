// Package transport moves ring messages between a participant and its
// successor over best-effort datagrams.
//
// Delivery is lossy and unordered. Send never blocks for long and reports a
// destination that is not listening as ErrRefused; Receive waits at most a
// bounded poll interval and reports "nothing arrived" as ok == false with a
// nil error. Neither outcome is a fault: the election driver simply tries
// again on the next tick.
package transport

import (
	"context"

	"github.com/pkg/errors"

	"ringelect/pkg/ring"
)

var (
	// ErrRefused reports that nothing listens at the destination. Before
	// the leader is known that is a successor which has not started yet;
	// afterwards it is one that has finished.
	ErrRefused = errors.New("transport: send refused")
	// ErrUnavailable reports any other transient socket failure (timeouts,
	// full buffers, unreachable routes).
	ErrUnavailable = errors.New("transport: temporarily unavailable")
	// ErrClosed is returned once the transport has been closed.
	ErrClosed = errors.New("transport: closed")
)

// Transport is one participant's view of the ring: an inbound channel and an
// outbound channel to the successor.
type Transport interface {
	// Send hands msg to the successor's inbound channel.
	Send(ctx context.Context, msg ring.Message) error
	// Receive polls the inbound channel. ok is false when nothing valid
	// arrived within the poll interval.
	Receive(ctx context.Context) (msg ring.Message, ok bool, err error)
	// Close releases the channels.
	Close() error
}

// DropCounter is implemented by transports that count datagrams discarded
// before reaching the state machine.
type DropCounter interface {
	Dropped() uint64
}

// IsTransient reports whether err is an expected steady-state send outcome.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRefused) || errors.Is(err, ErrUnavailable)
}
