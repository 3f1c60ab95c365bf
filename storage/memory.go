package storage

import (
	"context"
	"sort"
	"sync"

	"ringelect/pkg/ring"
)

// MemoryStorage keeps outcomes in process memory. Used by simulations and tests.
type MemoryStorage struct {
	mu       sync.RWMutex
	outcomes []Outcome
	last     map[ring.ID]Outcome
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{last: make(map[ring.ID]Outcome)}
}

func (m *MemoryStorage) SaveOutcome(ctx context.Context, o Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	m.last[o.ParticipantID] = o
	return nil
}

func (m *MemoryStorage) LastOutcome(ctx context.Context, participant ring.ID) (Outcome, bool, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.last[participant]
	return o, ok, nil
}

func (m *MemoryStorage) ListOutcomes(ctx context.Context, limit int) ([]Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	res := append([]Outcome(nil), m.outcomes...)
	m.mu.RUnlock()

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].FinishedAt.After(res[j].FinishedAt)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryStorage) Close() error { return nil }
