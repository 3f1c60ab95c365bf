// Package election drives a ring participant against a transport. It owns
// the loop and the retry policy; every protocol decision stays in pkg/ring.
package election

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ringelect/pkg/ring"
	"ringelect/pkg/transport"
	"ringelect/storage"
)

var (
	// ErrTransportFatal aborts the loop: the transport is gone or the
	// successor stayed unreachable for longer than the retry budget allows.
	ErrTransportFatal = errors.New("election: fatal transport failure")
	// ErrRecordOutcome wraps a failure to persist a finished run. The
	// Result returned alongside it is complete.
	ErrRecordOutcome = errors.New("election: record outcome")
)

// Config tunes the driver loop.
type Config struct {
	// Linger is how long a follower keeps forwarding the leader
	// announcement after its successor first refused it. The successor
	// only stops listening once it has finished, so zero stops at once.
	Linger time.Duration
	// MaxSendFailures aborts the run after that many consecutive failed
	// sends. Zero retries forever. Followers are exempt: a refusal is how
	// they learn that their successor has finished.
	MaxSendFailures int
	// BackoffMax caps the randomized delay after a failed send. Zero
	// retries on the very next tick.
	BackoffMax time.Duration
	// PollTimeout is waited after a failed receive so a broken socket does
	// not spin the loop. Defaults to transport.DefaultPollTimeout.
	PollTimeout time.Duration
}

// OutcomeRecorder persists the result of a finished run.
type OutcomeRecorder interface {
	SaveOutcome(ctx context.Context, o storage.Outcome) error
}

// Result summarizes a run.
type Result struct {
	RunID      string
	ID         ring.ID
	Leader     ring.ID
	HasLeader  bool
	Winner     bool
	Ticks      uint64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Counters combines the state machine's counters with the driver's own.
type Counters struct {
	ring.Counters
	Sent    uint64
	Refused uint64
	Dropped uint64
}

// Snapshot is an immutable copy of the run's state for observers.
type Snapshot struct {
	RunID     string
	ID        ring.ID
	State     ring.State
	ToSend    ring.ID
	Leader    ring.ID
	HasLeader bool
	Winner    bool
	Ticks     uint64
	Counters  Counters
	StartedAt time.Time
	UpdatedAt time.Time
}

// Driver sequences receive, fold and send for one participant. Run and Tick
// must be called from a single goroutine; Snapshot may be called from any.
type Driver struct {
	p        *ring.Participant
	tr       transport.Transport
	cfg      Config
	log      *zap.Logger
	recorder OutcomeRecorder

	runID     string
	startedAt time.Time
	ticks     uint64
	sent      uint64
	refused   uint64
	failures  int
	retry     *backoff.ExponentialBackOff

	// successorGone is when a follower's send was first refused.
	successorGone time.Time

	snap atomic.Pointer[Snapshot]
}

// Option configures a Driver.
type Option func(*Driver)

// WithRecorder saves the run's outcome once it finishes.
func WithRecorder(r OutcomeRecorder) Option {
	return func(d *Driver) { d.recorder = r }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(d *Driver) { d.runID = id }
}

// New creates a driver for p over tr.
func New(p *ring.Participant, tr transport.Transport, cfg Config, log *zap.Logger, opts ...Option) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Linger < 0 {
		cfg.Linger = 0
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = transport.DefaultPollTimeout
	}
	d := &Driver{
		p:         p,
		tr:        tr,
		cfg:       cfg,
		runID:     uuid.NewString(),
		startedAt: time.Now(),
		retry:     newRetryBackOff(cfg.BackoffMax),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = log.With(zap.Stringer("participant", p.ID()), zap.String("run_id", d.runID))
	d.publish()
	return d
}

// RunID identifies this run in logs and stored outcomes.
func (d *Driver) RunID() string { return d.runID }

// Run ticks until the participant is finished, the context is cancelled or
// the transport fails fatally.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	d.log.Info("election started", zap.Bool("announce", d.p.Announces()))
	for {
		done, err := d.Tick(ctx)
		if err != nil {
			d.log.Warn("election aborted", zap.Error(err), zap.Uint64("ticks", d.ticks))
			return d.result(), err
		}
		if done {
			break
		}
	}

	res := d.result()
	d.log.Info("election finished",
		zap.Stringer("leader", res.Leader),
		zap.Bool("winner", res.Winner),
		zap.Uint64("ticks", res.Ticks),
		zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)))

	if d.recorder != nil {
		if err := d.recorder.SaveOutcome(ctx, outcomeOf(res)); err != nil {
			return res, errors.Wrap(ErrRecordOutcome, err.Error())
		}
	}
	return res, nil
}

// Tick performs one iteration: receive, fold, check for termination, send.
func (d *Driver) Tick(ctx context.Context) (done bool, err error) {
	defer d.publish()

	msg, ok, err := d.tr.Receive(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, transport.ErrClosed):
		return false, errors.Wrap(ErrTransportFatal, err.Error())
	default:
		// Treated like an empty poll that lasted the full interval.
		d.log.Debug("receive failed", zap.Error(err))
		ok = false
		if err := sleep(ctx, d.cfg.PollTimeout); err != nil {
			return false, err
		}
	}
	d.ticks++

	if ok {
		d.fold(msg)
	}

	if d.finished() {
		return true, nil
	}

	out, ok := d.p.NextSend()
	if !ok {
		return false, nil
	}
	return false, d.send(ctx, out)
}

// fold hands msg to the state machine and logs the transitions it caused.
func (d *Driver) fold(msg ring.Message) {
	prevToSend := d.p.ToSend()
	prevState := d.p.State()

	d.p.OnReceive(msg, true)

	if d.p.ToSend() != prevToSend {
		d.log.Debug("adopted candidate", zap.Stringer("from", prevToSend), zap.Stringer("to", d.p.ToSend()))
	}
	if prevState == ring.StateRunning && d.p.State() == ring.StateElected {
		leader, _ := d.p.Leader()
		if d.p.Winner() {
			d.log.Info("elected as leader", zap.Uint64("ticks", d.ticks))
		} else {
			d.log.Info("leader announced", zap.Stringer("leader", leader))
		}
	}
}

func (d *Driver) send(ctx context.Context, msg ring.Message) error {
	err := d.tr.Send(ctx, msg)
	if err == nil {
		if d.failures > 0 {
			d.log.Info("successor reachable again", zap.Int("failed_sends", d.failures))
		}
		d.sent++
		d.failures = 0
		if d.retry != nil {
			d.retry.Reset()
		}
		return nil
	}

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, transport.ErrClosed):
		return errors.Wrap(ErrTransportFatal, err.Error())
	}

	// The message stays where it is; the next tick resends it.
	d.refused++
	d.failures++
	if d.failures == 1 {
		d.log.Debug("send refused", zap.Stringer("msg", msg), zap.Error(err))
	}
	if !transport.IsTransient(err) {
		d.log.Warn("send failed", zap.Stringer("msg", msg), zap.Error(err))
	}
	if d.p.Follower() {
		if errors.Is(err, transport.ErrRefused) && d.successorGone.IsZero() {
			d.successorGone = time.Now()
			d.log.Info("successor finished", zap.Stringer("msg", msg))
		}
		return nil
	}
	if d.cfg.MaxSendFailures > 0 && d.failures >= d.cfg.MaxSendFailures {
		return errors.Wrapf(ErrTransportFatal, "%d consecutive sends failed, last: %v", d.failures, err)
	}

	if d.retry != nil {
		if wait := d.retry.NextBackOff(); wait != backoff.Stop {
			return sleep(ctx, wait)
		}
	}
	return nil
}

func sleep(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// finished decides when the loop stops. The winner stops once its
// announcement came back around the ring. A follower stops once its
// successor refused the announcement and the linger period has passed:
// shutdown cascades backwards from the winner, so nobody leaves before its
// successor knows the leader.
func (d *Driver) finished() bool {
	if d.p.Finished() {
		return true
	}
	if d.p.Follower() && !d.successorGone.IsZero() {
		return time.Since(d.successorGone) >= d.cfg.Linger
	}
	return false
}

func (d *Driver) result() Result {
	leader, known := d.p.Leader()
	return Result{
		RunID:      d.runID,
		ID:         d.p.ID(),
		Leader:     leader,
		HasLeader:  known,
		Winner:     d.p.Winner(),
		Ticks:      d.ticks,
		StartedAt:  d.startedAt,
		FinishedAt: time.Now(),
	}
}

func (d *Driver) publish() {
	leader, known := d.p.Leader()
	c := Counters{Counters: d.p.Counters(), Sent: d.sent, Refused: d.refused}
	if dc, ok := d.tr.(transport.DropCounter); ok {
		c.Dropped = dc.Dropped()
	}
	d.snap.Store(&Snapshot{
		RunID:     d.runID,
		ID:        d.p.ID(),
		State:     d.p.State(),
		ToSend:    d.p.ToSend(),
		Leader:    leader,
		HasLeader: known,
		Winner:    d.p.Winner(),
		Ticks:     d.ticks,
		Counters:  c,
		StartedAt: d.startedAt,
		UpdatedAt: time.Now(),
	})
}

// Snapshot returns the state published after the latest tick.
func (d *Driver) Snapshot() Snapshot { return *d.snap.Load() }

func outcomeOf(r Result) storage.Outcome {
	return storage.Outcome{
		RunID:         r.RunID,
		ParticipantID: r.ID,
		LeaderID:      r.Leader,
		Winner:        r.Winner,
		Ticks:         r.Ticks,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
}
