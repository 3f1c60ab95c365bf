package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ringelect/config"
	"ringelect/pkg/election"
	"ringelect/pkg/logging"
	"ringelect/pkg/ring"
	"ringelect/pkg/transport"
	"ringelect/storage"
)

type simulateOptions struct {
	ids      []string
	dropRate float64
	seed     int64
	poll     time.Duration
	linger   time.Duration
	timeout  time.Duration
	announce bool
	logLevel string
}

func simulateCmd() *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:     "simulate",
		Short:   "Run a whole ring inside this process",
		Example: `  ringelect simulate --ids 5,9,2 --drop-rate 0.1`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return simulate(ctx, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.ids, "ids", []string{"5", "9", "2"}, "Participant identifiers in ring order")
	f.Float64Var(&opts.dropRate, "drop-rate", 0, "Probability that any single message is lost")
	f.Int64Var(&opts.seed, "seed", 1, "Seed of the loss model")
	f.DurationVar(&opts.poll, "poll", 10*time.Millisecond, "Receive poll timeout")
	f.DurationVar(&opts.linger, "linger", 200*time.Millisecond, "How long a follower keeps forwarding after its successor finished")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Give up after this long")
	f.BoolVar(&opts.announce, "announce", true, "Circulate the elected leader after the election")
	f.StringVar(&opts.logLevel, "log-level", "warn", "Log level")
	return cmd
}

func simulate(ctx context.Context, opts simulateOptions, out io.Writer) error {
	ids := make([]ring.ID, 0, len(opts.ids))
	for _, s := range opts.ids {
		id, err := ring.ParseID(s)
		if err != nil {
			return withCode(exitConfig, err)
		}
		ids = append(ids, id)
	}
	if opts.dropRate < 0 || opts.dropRate >= 1 {
		return withCode(exitConfig, fmt.Errorf("drop-rate must be in [0, 1), got %v", opts.dropRate))
	}

	logCfg := config.GetDefaultConfig().Logging
	logCfg.Level = opts.logLevel
	log, err := logging.New(logCfg)
	if err != nil {
		return withCode(exitConfig, err)
	}
	defer func() { _ = log.Sync() }()

	net := transport.NewMemoryNetwork()
	if opts.dropRate > 0 {
		net.SetDropFunc(transport.RandomDrop(opts.dropRate, opts.seed))
	}
	store := storage.NewMemoryStorage()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	results, err := election.Simulate(ctx, election.SimulationConfig{
		IDs:      ids,
		Announce: opts.announce,
		Poll:     opts.poll,
		Driver:   election.Config{Linger: opts.linger},
		Network:  net,
		Recorder: store,
	}, log)
	if err != nil && results == nil {
		return withCode(exitConfig, err)
	}

	var leader *ring.ID
	for _, r := range results {
		switch {
		case r.Winner:
			fmt.Fprintf(out, "participant %-10d elected itself after %d ticks\n", uint64(r.ID), r.Ticks)
		case r.HasLeader:
			fmt.Fprintf(out, "participant %-10d follows %d\n", uint64(r.ID), uint64(r.Leader))
		default:
			fmt.Fprintf(out, "participant %-10d has no leader\n", uint64(r.ID))
		}
		if r.Winner {
			l := r.ID
			leader = &l
		}
	}

	dropped := 0
	deliveries := net.Deliveries()
	for _, d := range deliveries {
		if d.Dropped {
			dropped++
		}
	}
	fmt.Fprintf(out, "messages: %d sent, %d lost\n", len(deliveries), dropped)
	if leader != nil {
		fmt.Fprintf(out, "leader: %d\n", uint64(*leader))
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, election.ErrTransportFatal):
		return withCode(exitTransport, err)
	default:
		return withCode(exitInterrupted, err)
	}
}
