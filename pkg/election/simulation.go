package election

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"ringelect/pkg/ring"
	"ringelect/pkg/transport"
)

// SimulationConfig describes an in-process ring.
type SimulationConfig struct {
	// IDs lists the participants in ring order; the last one sends to the first.
	IDs      []ring.ID
	Announce bool
	Poll     time.Duration
	Driver   Config
	// Network defaults to a fresh lossless MemoryNetwork.
	Network  *transport.MemoryNetwork
	Recorder OutcomeRecorder
}

// Simulate runs one driver per participant on a shared MemoryNetwork and
// waits for all of them. Results come back in IDs order. All drivers share
// one run ID.
func Simulate(ctx context.Context, cfg SimulationConfig, log *zap.Logger) ([]Result, error) {
	if len(cfg.IDs) == 0 {
		return nil, fmt.Errorf("simulation needs at least one participant")
	}
	if log == nil {
		log = zap.NewNop()
	}
	net := cfg.Network
	if net == nil {
		net = transport.NewMemoryNetwork()
	}

	if cfg.Driver.PollTimeout <= 0 {
		cfg.Driver.PollTimeout = cfg.Poll
	}

	runID := uuid.NewString()
	seen := make(map[ring.ID]bool, len(cfg.IDs))
	drivers := make([]*Driver, len(cfg.IDs))
	for i, id := range cfg.IDs {
		if seen[id] {
			return nil, fmt.Errorf("participant %d appears twice", uint64(id))
		}
		seen[id] = true

		p, err := ring.NewParticipant(id, cfg.Announce)
		if err != nil {
			return nil, err
		}
		next := cfg.IDs[(i+1)%len(cfg.IDs)]
		tr := net.Transport(NodeAddr(id), NodeAddr(next), cfg.Poll)
		opts := []Option{WithRunID(runID)}
		if cfg.Recorder != nil {
			opts = append(opts, WithRecorder(cfg.Recorder))
		}
		drivers[i] = New(p, tr, cfg.Driver, log, opts...)
	}

	results := make([]Result, len(drivers))
	errs := make([]error, len(drivers))
	var wg sync.WaitGroup
	for i, d := range drivers {
		wg.Add(1)
		go func(i int, d *Driver) {
			defer wg.Done()
			defer d.tr.Close()
			results[i], errs[i] = d.Run(ctx)
		}(i, d)
	}
	wg.Wait()

	var err error
	for i, e := range errs {
		if e != nil {
			err = multierr.Append(err, fmt.Errorf("participant %d: %w", uint64(cfg.IDs[i]), e))
		}
	}
	return results, err
}

// NodeAddr is the MemoryNetwork address of participant id.
func NodeAddr(id ring.ID) string { return fmt.Sprintf("n%d", uint64(id)) }
