package transport

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"ringelect/pkg/ring"
)

const defaultInboxSize = 64

// DropFunc decides whether a message on the link from -> to is lost.
type DropFunc func(from, to string, msg ring.Message) bool

// Delivery is one entry of the network's send log.
type Delivery struct {
	From    string
	To      string
	Msg     ring.Message
	Dropped bool
}

// MemoryNetwork connects MemoryTransports inside one process. It behaves like
// the datagram network: sends to an address nobody listens on are refused,
// a full inbox silently loses the message, and a DropFunc can inject loss on
// any link.
type MemoryNetwork struct {
	mu      sync.RWMutex
	inboxes map[string]chan ring.Message
	drop    DropFunc

	logMu sync.Mutex
	log   []Delivery
}

// NewMemoryNetwork creates an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{inboxes: make(map[string]chan ring.Message)}
}

// SetDropFunc installs f as the loss model. nil delivers everything.
func (n *MemoryNetwork) SetDropFunc(f DropFunc) {
	n.mu.Lock()
	n.drop = f
	n.mu.Unlock()
}

// Deliveries returns a copy of every send attempt that reached the network.
func (n *MemoryNetwork) Deliveries() []Delivery {
	n.logMu.Lock()
	defer n.logMu.Unlock()
	return append([]Delivery(nil), n.log...)
}

// Transport registers addr on the network and returns its endpoint, which
// sends to successor.
func (n *MemoryNetwork) Transport(addr, successor string, pollTimeout time.Duration) *MemoryTransport {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	inbox := make(chan ring.Message, defaultInboxSize)
	n.mu.Lock()
	n.inboxes[addr] = inbox
	n.mu.Unlock()
	return &MemoryTransport{
		net:         n,
		addr:        addr,
		successor:   successor,
		inbox:       inbox,
		pollTimeout: pollTimeout,
	}
}

func (n *MemoryNetwork) deliver(from, to string, msg ring.Message) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	inbox, ok := n.inboxes[to]
	if !ok {
		return ErrRefused
	}
	dropped := n.drop != nil && n.drop(from, to, msg)

	// The entry is appended before any send the receiver makes in reaction,
	// so the log order is causal.
	n.logMu.Lock()
	defer n.logMu.Unlock()
	if !dropped {
		select {
		case inbox <- msg:
		default:
			dropped = true
		}
	}
	n.log = append(n.log, Delivery{From: from, To: to, Msg: msg, Dropped: dropped})
	return nil
}

func (n *MemoryNetwork) unregister(addr string) {
	n.mu.Lock()
	delete(n.inboxes, addr)
	n.mu.Unlock()
}

// MemoryTransport is one endpoint of a MemoryNetwork.
type MemoryTransport struct {
	net         *MemoryNetwork
	addr        string
	successor   string
	inbox       chan ring.Message
	pollTimeout time.Duration
	closed      atomic.Bool
}

// Addr returns the endpoint's address on the network.
func (t *MemoryTransport) Addr() string { return t.addr }

// Send implements Transport.
func (t *MemoryTransport) Send(ctx context.Context, msg ring.Message) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.net.deliver(t.addr, t.successor, msg)
}

// Receive implements Transport.
func (t *MemoryTransport) Receive(ctx context.Context) (ring.Message, bool, error) {
	if t.closed.Load() {
		return ring.Message{}, false, ErrClosed
	}
	timer := time.NewTimer(t.pollTimeout)
	defer timer.Stop()
	select {
	case msg := <-t.inbox:
		return msg, true, nil
	case <-timer.C:
		return ring.Message{}, false, nil
	case <-ctx.Done():
		return ring.Message{}, false, ctx.Err()
	}
}

// Close removes the endpoint from the network. Later sends to it are refused.
func (t *MemoryTransport) Close() error {
	if t.closed.CompareAndSwap(false, true) {
		t.net.unregister(t.addr)
	}
	return nil
}

// RandomDrop loses each message independently with probability rate.
func RandomDrop(rate float64, seed int64) DropFunc {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(seed))
	return func(string, string, ring.Message) bool {
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64() < rate
	}
}

// DropFirst loses the first count messages on the link from -> to that
// satisfy match.
func DropFirst(from, to string, count int, match func(ring.Message) bool) DropFunc {
	var mu sync.Mutex
	left := count
	return func(f, dst string, msg ring.Message) bool {
		if f != from || dst != to || (match != nil && !match(msg)) {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		if left <= 0 {
			return false
		}
		left--
		return true
	}
}
