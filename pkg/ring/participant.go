// Package ring implements the per-participant state machine of ring leader
// election: every participant forwards the largest identifier it has seen to
// its successor and becomes leader when its own identifier comes back.
//
// A Participant performs no I/O. The election driver feeds it whatever the
// transport received and hands whatever it wants sent back to the transport,
// so send and receive stay the only side effects of a run.
package ring

import "github.com/pkg/errors"

// Participant is the protocol state of one ring member. It is owned by a
// single goroutine and is not safe for concurrent use.
type Participant struct {
	id       ID
	toSend   ID
	outbound *outbox
	state    State
	winner   bool
	leader   ID

	// announce enables the second phase that circulates Elected(leader).
	announce  bool
	announced bool

	counters Counters
}

// NewParticipant creates a running participant whose first candidate is its
// own identifier.
func NewParticipant(id ID, announce bool) (*Participant, error) {
	if !id.Valid() {
		return nil, errors.Wrapf(ErrIDOutOfRange, "participant %d", uint64(id))
	}
	p := &Participant{
		id:       id,
		toSend:   id,
		outbound: newOutbox(outboxCapacity),
		state:    StateRunning,
		announce: announce,
	}
	p.outbound.push(id)
	return p, nil
}

// OnReceive folds the result of one receive attempt into the state.
// ok == false means nothing arrived and leaves the state untouched.
func (p *Participant) OnReceive(msg Message, ok bool) {
	if !ok {
		return
	}
	p.counters.Received++
	if !msg.ID.Valid() {
		p.counters.Ignored++
		return
	}
	switch msg.Kind {
	case KindCandidate:
		p.onCandidate(msg.ID)
	case KindElected:
		p.onElected(msg.ID)
	default:
		p.counters.Ignored++
	}
}

func (p *Participant) onCandidate(m ID) {
	if p.state != StateRunning {
		p.counters.Ignored++
		return
	}
	switch {
	case m == p.id:
		// Our identifier survived every other participant.
		p.winner = true
		p.leader = p.id
		p.state = StateElected
	case m > p.toSend:
		p.toSend = m
		p.outbound.push(m)
		p.counters.Adopted++
	default:
		p.counters.Stale++
	}
}

func (p *Participant) onElected(leader ID) {
	switch {
	case p.state == StateRunning && leader != p.id:
		p.leader = leader
		p.state = StateElected
	case p.winner && leader == p.id:
		p.announced = true
	default:
		// Repeats of the announcement we already forward.
		p.counters.Ignored++
	}
}

// NextSend returns the message to hand to the transport this tick. A refused
// send must not be reported back: the same message is returned again until
// the state changes.
func (p *Participant) NextSend() (Message, bool) {
	if p.state == StateRunning {
		id, _ := p.outbound.latest()
		return Candidate(id), true
	}
	if !p.announce || (p.winner && p.announced) {
		return Message{}, false
	}
	return Elected(p.leader), true
}

// Finished reports whether the winner has nothing left to do. Followers never
// finish on their own; the driver decides when their forwarding is over.
func (p *Participant) Finished() bool {
	return p.winner && (!p.announce || p.announced)
}

// Follower reports whether the participant learned of a leader other than itself.
func (p *Participant) Follower() bool { return p.state == StateElected && !p.winner }

// ID returns the participant's own identifier.
func (p *Participant) ID() ID { return p.id }

// ToSend returns the largest identifier seen so far.
func (p *Participant) ToSend() ID { return p.toSend }

// State returns the current protocol phase.
func (p *Participant) State() State { return p.state }

// Winner reports whether this participant elected itself.
func (p *Participant) Winner() bool { return p.winner }

// Announces reports whether the announcement phase is enabled.
func (p *Participant) Announces() bool { return p.announce }

// Leader returns the elected leader once known.
func (p *Participant) Leader() (ID, bool) {
	if p.state != StateElected {
		return 0, false
	}
	return p.leader, true
}

// Pending returns the identifiers waiting in the outbound queue.
func (p *Participant) Pending() []ID { return p.outbound.snapshot() }

// Counters returns a copy of the message counters.
func (p *Participant) Counters() Counters { return p.counters }
