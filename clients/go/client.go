package client

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	statuspb "ringelect/api/status"
)

// Client is a typed SDK for the ringelect status service.
type Client struct {
	conn   *grpc.ClientConn
	Status statuspb.StatusServiceClient
}

// Options control Client behavior.
type Options struct {
	// DialTimeout is the timeout for establishing the initial connection.
	DialTimeout time.Duration
	// Insecure skips TLS (default true for local dev).
	Insecure bool
	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// Counters mirrors the election counters reported by GetStatus.
type Counters struct {
	Received uint64
	Adopted  uint64
	Stale    uint64
	Ignored  uint64
	Sent     uint64
	Refused  uint64
	Dropped  uint64
}

// Status is the decoded GetStatus response.
type Status struct {
	RunID         string
	ParticipantID uint32
	State         string
	ToSend        uint32
	Leader        uint32
	HasLeader     bool
	Winner        bool
	Ticks         uint64
	Counters      Counters
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// Outcome is one decoded ListOutcomes entry.
type Outcome struct {
	RunID         string
	ParticipantID uint32
	LeaderID      uint32
	Winner        bool
	Ticks         uint64
	StartedAt     time.Time
	FinishedAt    time.Time
	Duration      time.Duration
}

// New dials the status server at address (host:port) and returns a Client.
func New(ctx context.Context, address string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{Insecure: true, DialTimeout: 5 * time.Second}
	}
	var dialOpts []grpc.DialOption
	if opts.Insecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	dialOpts = append(dialOpts, opts.DialOptions...)
	if opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
	}
	conn, err := grpc.DialContext(ctx, address, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, Status: statuspb.NewStatusServiceClient(conn)}, nil
}

// GetStatus fetches the participant's current state.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	resp, err := c.Status.GetStatus(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	f := resp.GetFields()
	st := &Status{
		RunID:         str(f, statuspb.FieldRunID),
		ParticipantID: uint32(num(f, statuspb.FieldParticipantID)),
		State:         str(f, statuspb.FieldState),
		ToSend:        uint32(num(f, statuspb.FieldToSend)),
		Leader:        uint32(num(f, statuspb.FieldLeader)),
		HasLeader:     f[statuspb.FieldHasLeader].GetBoolValue(),
		Winner:        f[statuspb.FieldWinner].GetBoolValue(),
		Ticks:         uint64(num(f, statuspb.FieldTicks)),
		StartedAt:     timestamp(f, statuspb.FieldStartedAt),
		UpdatedAt:     timestamp(f, statuspb.FieldUpdatedAt),
	}
	if cs := f[statuspb.FieldCounters].GetStructValue(); cs != nil {
		cf := cs.GetFields()
		st.Counters = Counters{
			Received: uint64(num(cf, statuspb.CounterReceived)),
			Adopted:  uint64(num(cf, statuspb.CounterAdopted)),
			Stale:    uint64(num(cf, statuspb.CounterStale)),
			Ignored:  uint64(num(cf, statuspb.CounterIgnored)),
			Sent:     uint64(num(cf, statuspb.CounterSent)),
			Refused:  uint64(num(cf, statuspb.CounterRefused)),
			Dropped:  uint64(num(cf, statuspb.CounterDropped)),
		}
	}
	return st, nil
}

// ListOutcomes fetches up to limit stored outcomes, newest first.
func (c *Client) ListOutcomes(ctx context.Context, limit int) ([]Outcome, error) {
	resp, err := c.Status.ListOutcomes(ctx, wrapperspb.Int32(int32(limit)))
	if err != nil {
		return nil, err
	}
	out := make([]Outcome, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		f := v.GetStructValue().GetFields()
		out = append(out, Outcome{
			RunID:         str(f, statuspb.FieldRunID),
			ParticipantID: uint32(num(f, statuspb.FieldParticipantID)),
			LeaderID:      uint32(num(f, statuspb.FieldLeaderID)),
			Winner:        f[statuspb.FieldWinner].GetBoolValue(),
			Ticks:         uint64(num(f, statuspb.FieldTicks)),
			StartedAt:     timestamp(f, statuspb.FieldStartedAt),
			FinishedAt:    timestamp(f, statuspb.FieldFinishedAt),
			Duration:      time.Duration(num(f, statuspb.FieldDurationMS)) * time.Millisecond,
		})
	}
	return out, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func str(f map[string]*structpb.Value, key string) string { return f[key].GetStringValue() }

func num(f map[string]*structpb.Value, key string) float64 { return f[key].GetNumberValue() }

func timestamp(f map[string]*structpb.Value, key string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, str(f, key))
	return t
}
