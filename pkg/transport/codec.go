package transport

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"ringelect/pkg/ring"
)

// Wire format. A candidate is the bare identifier as 4 big-endian bytes. A
// leader announcement is a tag byte followed by the identifier.
const (
	candidateSize = 4
	electedSize   = 5
	electedTag    = 0xE1

	// MaxDatagramSize is the largest datagram Decode accepts.
	MaxDatagramSize = electedSize
)

// Encode serializes msg into a single datagram payload.
func Encode(msg ring.Message) ([]byte, error) {
	if !msg.ID.Valid() {
		return nil, errors.Wrapf(ring.ErrIDOutOfRange, "encode %s", msg)
	}
	switch msg.Kind {
	case ring.KindCandidate:
		b := make([]byte, candidateSize)
		binary.BigEndian.PutUint32(b, uint32(msg.ID))
		return b, nil
	case ring.KindElected:
		b := make([]byte, electedSize)
		b[0] = electedTag
		binary.BigEndian.PutUint32(b[1:], uint32(msg.ID))
		return b, nil
	default:
		return nil, errors.Errorf("encode: unknown message kind %s", msg.Kind)
	}
}

// Decode parses a datagram payload. ok is false for anything malformed or
// out of range; such datagrams are dropped, never reported as errors.
func Decode(b []byte) (msg ring.Message, ok bool) {
	switch {
	case len(b) == candidateSize:
		msg = ring.Candidate(ring.ID(binary.BigEndian.Uint32(b)))
	case len(b) == electedSize && b[0] == electedTag:
		msg = ring.Elected(ring.ID(binary.BigEndian.Uint32(b[1:])))
	default:
		return ring.Message{}, false
	}
	if !msg.ID.Valid() {
		return ring.Message{}, false
	}
	return msg, true
}
