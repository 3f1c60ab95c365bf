package election

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ringelect/pkg/ring"
	"ringelect/pkg/transport"
	"ringelect/storage"
)

func TestSimulateElectsMaximum(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	net := transport.NewMemoryNetwork()
	net.SetDropFunc(transport.RandomDrop(0.1, 3))
	store := storage.NewMemoryStorage()

	results, err := Simulate(ctx, SimulationConfig{
		IDs:      []ring.ID{5, 9, 2, 7},
		Announce: true,
		Poll:     testPoll,
		Driver:   Config{Linger: 100 * time.Millisecond},
		Network:  net,
		Recorder: store,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, results, 4)

	runID := results[0].RunID
	for _, r := range results {
		assert.Equal(t, ring.ID(9), r.Leader)
		assert.Equal(t, r.ID == 9, r.Winner)
		assert.Equal(t, runID, r.RunID)
	}

	outcomes, err := store.ListOutcomes(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, outcomes, 4)
}

func TestSimulateTerminatesUnderHeavyLoss(t *testing.T) {
	ids := []ring.ID{5, 9, 2, 7, 3}
	for seed := int64(1); seed <= 10; seed++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		net := transport.NewMemoryNetwork()
		net.SetDropFunc(transport.RandomDrop(0.8, seed))

		results, err := Simulate(ctx, SimulationConfig{
			IDs:      ids,
			Announce: true,
			Poll:     testPoll,
			Driver:   Config{Linger: 25 * time.Millisecond},
			Network:  net,
		}, nil)
		cancel()

		require.NoError(t, err, "seed %d", seed)
		winners := 0
		for _, r := range results {
			assert.True(t, r.HasLeader, "seed %d participant %d", seed, r.ID)
			assert.Equal(t, ring.ID(9), r.Leader, "seed %d participant %d", seed, r.ID)
			if r.Winner {
				winners++
			}
		}
		assert.Equal(t, 1, winners, "seed %d", seed)
	}
}

func TestSimulateRejectsBadRings(t *testing.T) {
	_, err := Simulate(context.Background(), SimulationConfig{}, nil)
	assert.Error(t, err)

	_, err = Simulate(context.Background(), SimulationConfig{IDs: []ring.ID{1, 2, 1}}, nil)
	assert.Error(t, err)

	_, err = Simulate(context.Background(), SimulationConfig{IDs: []ring.ID{ring.MaxID}}, nil)
	assert.ErrorIs(t, err, ring.ErrIDOutOfRange)
}

func TestSimulateReportsEveryFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	net := transport.NewMemoryNetwork()
	net.SetDropFunc(func(string, string, ring.Message) bool { return true })

	results, err := Simulate(ctx, SimulationConfig{
		IDs:     []ring.ID{1, 2, 3},
		Poll:    testPoll,
		Network: net,
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, results, 3)
	for _, r := range results {
		assert.False(t, r.HasLeader)
	}
}
