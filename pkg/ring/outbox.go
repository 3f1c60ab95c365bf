package ring

// outboxCapacity bounds the pending-forward queue. Adoption only ever
// replaces the candidate with a larger one, so older entries are obsolete
// the moment a new one is pushed.
const outboxCapacity = 1

// outbox is a bounded FIFO of identifiers pending transmission. Pushing into
// a full outbox evicts the oldest entry.
type outbox struct {
	items []ID
	limit int
}

func newOutbox(limit int) *outbox {
	if limit <= 0 {
		limit = 1
	}
	return &outbox{items: make([]ID, 0, limit), limit: limit}
}

func (o *outbox) push(id ID) {
	if len(o.items) == o.limit {
		copy(o.items, o.items[1:])
		o.items = o.items[:len(o.items)-1]
	}
	o.items = append(o.items, id)
}

// latest returns the most recently pushed identifier.
func (o *outbox) latest() (ID, bool) {
	if len(o.items) == 0 {
		return 0, false
	}
	return o.items[len(o.items)-1], true
}

func (o *outbox) contains(id ID) bool {
	for _, v := range o.items {
		if v == id {
			return true
		}
	}
	return false
}

func (o *outbox) snapshot() []ID {
	return append([]ID(nil), o.items...)
}
