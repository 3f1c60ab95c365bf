package ring

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// MaxID is the exclusive upper bound of participant identifiers.
const MaxID = 1<<32 - 1

// ErrIDOutOfRange is returned for identifiers outside [0, MaxID).
var ErrIDOutOfRange = errors.New("identifier out of range")

// ID identifies a participant. Larger identifiers win.
type ID uint32

// Valid reports whether id lies in [0, MaxID).
func (id ID) Valid() bool { return id < MaxID }

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseID parses a decimal identifier and checks its range.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse identifier %q", s)
	}
	return IDFromUint64(v)
}

// IDFromUint64 converts v to an ID, rejecting values >= MaxID.
func IDFromUint64(v uint64) (ID, error) {
	if v >= MaxID {
		return 0, errors.Wrapf(ErrIDOutOfRange, "%d", v)
	}
	return ID(v), nil
}

// State is the participant's protocol phase.
type State int

const (
	// StateRunning forwards the largest candidate seen so far.
	StateRunning State = iota
	// StateElected is terminal: the leader is known.
	StateElected
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateElected:
		return "elected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Kind distinguishes the two message types that circulate the ring.
type Kind uint8

const (
	// KindCandidate carries the largest identifier the sender has seen.
	KindCandidate Kind = iota
	// KindElected announces the winner once the election is over.
	KindElected
)

func (k Kind) String() string {
	switch k {
	case KindCandidate:
		return "candidate"
	case KindElected:
		return "elected"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is one datagram's worth of protocol state.
type Message struct {
	Kind Kind
	ID   ID
}

// Candidate builds a candidate message.
func Candidate(id ID) Message { return Message{Kind: KindCandidate, ID: id} }

// Elected builds a leader announcement.
func Elected(leader ID) Message { return Message{Kind: KindElected, ID: leader} }

func (m Message) String() string { return m.Kind.String() + "(" + m.ID.String() + ")" }

// Counters tracks what the state machine did with inbound messages.
type Counters struct {
	Received uint64
	Adopted  uint64
	Stale    uint64
	Ignored  uint64
}
