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
	"go.uber.org/zap"

	"ringelect/config"
	"ringelect/pkg/election"
	"ringelect/pkg/logging"
	"ringelect/pkg/ring"
	"ringelect/pkg/server"
	"ringelect/pkg/transport"
	"ringelect/storage"
)

func runCmd() *cobra.Command {
	var (
		id         uint64
		inHost     string
		inPort     int
		outHost    string
		outPort    int
		announce   bool
		backend    string
		dataDir    string
		statusOn   bool
		statusPort int
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join the ring and run one election",
		Long: `Run binds the inbound UDP address, sends to the successor and exits once
the leader is known, printing its identifier.`,
		Example: `  ringelect run --id 9 --in-port 7001 --out-port 7002`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return withCode(exitConfig, err)
			}

			// Override config with command line flags
			f := cmd.Flags()
			if f.Changed("id") {
				cfg.Node.ID = id
			}
			if f.Changed("in-host") {
				cfg.Node.InboundHost = inHost
			}
			if f.Changed("in-port") {
				cfg.Node.InboundPort = inPort
			}
			if f.Changed("out-host") {
				cfg.Node.OutboundHost = outHost
			}
			if f.Changed("out-port") {
				cfg.Node.OutboundPort = outPort
			}
			if f.Changed("announce") {
				cfg.Election.Announce = announce
			}
			if f.Changed("storage") {
				cfg.Storage.Backend = backend
			}
			if f.Changed("data-dir") {
				cfg.Storage.DataDir = dataDir
			}
			if f.Changed("status") {
				cfg.Status.Enabled = statusOn
			}
			if f.Changed("status-port") {
				cfg.Status.Port = statusPort
			}
			if f.Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return withCode(exitConfig, err)
			}

			log, err := logging.New(cfg.Logging)
			if err != nil {
				return withCode(exitConfig, err)
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runElection(ctx, cfg, log, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.Uint64Var(&id, "id", 0, "Participant identifier, below 4294967295")
	f.StringVar(&inHost, "in-host", "127.0.0.1", "Inbound host")
	f.IntVar(&inPort, "in-port", 7000, "Inbound UDP port")
	f.StringVar(&outHost, "out-host", "127.0.0.1", "Successor host")
	f.IntVar(&outPort, "out-port", 7001, "Successor UDP port")
	f.BoolVar(&announce, "announce", true, "Circulate the elected leader after the election")
	f.StringVar(&backend, "storage", "badger", "Outcome store backend (badger or memory)")
	f.StringVar(&dataDir, "data-dir", "./data", "Data directory")
	f.BoolVar(&statusOn, "status", false, "Serve the gRPC status service")
	f.IntVar(&statusPort, "status-port", 9100, "Status service port")
	f.StringVar(&logLevel, "log-level", "info", "Log level")
	return cmd
}

func runElection(ctx context.Context, cfg *config.Config, log *zap.Logger, out io.Writer) error {
	p, err := ring.NewParticipant(ring.ID(cfg.Node.ID), cfg.Election.Announce)
	if err != nil {
		return withCode(exitConfig, err)
	}

	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.DataDir)
	if err != nil {
		return withCode(exitConfig, err)
	}
	defer store.Close()

	tr, err := transport.NewUDPTransport(cfg.Node.InboundAddr(), cfg.Node.OutboundAddr(), cfg.Election.PollTimeout, log)
	if err != nil {
		return withCode(exitConfig, err)
	}
	defer tr.Close()

	d := election.New(p, tr, election.Config{
		Linger:          cfg.Election.Linger,
		MaxSendFailures: cfg.Election.MaxSendFailures,
		BackoffMax:      cfg.Election.BackoffMax,
		PollTimeout:     cfg.Election.PollTimeout,
	}, log, election.WithRecorder(store))

	log.Info("ringelect starting",
		zap.Uint64("id", cfg.Node.ID),
		zap.String("inbound", tr.LocalAddr().String()),
		zap.String("successor", cfg.Node.OutboundAddr()),
		zap.String("run_id", d.RunID()))

	if cfg.Status.Enabled {
		statusCtx, cancelStatus := context.WithCancel(ctx)
		srv := server.NewServer(cfg.Status, d, store, log)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := srv.Start(statusCtx); err != nil {
				log.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			cancelStatus()
			select {
			case <-done:
			case <-time.After(15 * time.Second):
			}
		}()
	}

	res, err := d.Run(ctx)
	if res.HasLeader {
		fmt.Fprintln(out, uint64(res.Leader))
	}

	return exitFor(err, log)
}

// exitFor maps the driver's error to the process exit code. A leader that
// could not be recorded still counts as a finished election.
func exitFor(err error, log *zap.Logger) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return withCode(exitInterrupted, errors.New("interrupted before the election finished"))
	case errors.Is(err, election.ErrTransportFatal):
		return withCode(exitTransport, err)
	case errors.Is(err, election.ErrRecordOutcome):
		log.Warn("outcome not recorded", zap.Error(err))
		return nil
	default:
		return withCode(exitConfig, err)
	}
}
