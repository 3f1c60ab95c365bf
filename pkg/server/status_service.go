package server

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	statuspb "ringelect/api/status"
	"ringelect/pkg/election"
	"ringelect/storage"
)

// StatusSource exposes the state of the running election.
type StatusSource interface {
	Snapshot() election.Snapshot
}

// OutcomeLister is the part of storage.Storage the service reads.
type OutcomeLister interface {
	ListOutcomes(ctx context.Context, limit int) ([]storage.Outcome, error)
}

// StatusService implements the Status gRPC service
type StatusService struct {
	statuspb.UnimplementedStatusServiceServer
	source   StatusSource
	outcomes OutcomeLister
}

// NewStatusService creates a new Status service. outcomes may be nil.
func NewStatusService(src StatusSource, outcomes OutcomeLister) *StatusService {
	return &StatusService{source: src, outcomes: outcomes}
}

// GetStatus returns the latest snapshot of the election
func (s *StatusService) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.source == nil {
		return nil, status.Error(codes.Unavailable, "no election running")
	}
	snap := s.source.Snapshot()

	var leader interface{}
	if snap.HasLeader {
		leader = uint64(snap.Leader)
	}
	out, err := structpb.NewStruct(map[string]interface{}{
		statuspb.FieldRunID:         snap.RunID,
		statuspb.FieldParticipantID: uint64(snap.ID),
		statuspb.FieldState:         snap.State.String(),
		statuspb.FieldToSend:        uint64(snap.ToSend),
		statuspb.FieldLeader:        leader,
		statuspb.FieldHasLeader:     snap.HasLeader,
		statuspb.FieldWinner:        snap.Winner,
		statuspb.FieldTicks:         snap.Ticks,
		statuspb.FieldStartedAt:     snap.StartedAt.Format(time.RFC3339Nano),
		statuspb.FieldUpdatedAt:     snap.UpdatedAt.Format(time.RFC3339Nano),
		statuspb.FieldCounters: map[string]interface{}{
			statuspb.CounterReceived: snap.Counters.Received,
			statuspb.CounterAdopted:  snap.Counters.Adopted,
			statuspb.CounterStale:    snap.Counters.Stale,
			statuspb.CounterIgnored:  snap.Counters.Ignored,
			statuspb.CounterSent:     snap.Counters.Sent,
			statuspb.CounterRefused:  snap.Counters.Refused,
			statuspb.CounterDropped:  snap.Counters.Dropped,
		},
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return out, nil
}

// ListOutcomes returns stored outcomes, newest first. A missing or
// non-positive limit returns all of them.
func (s *StatusService) ListOutcomes(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.ListValue, error) {
	if s.outcomes == nil {
		return nil, status.Error(codes.Unavailable, "no outcome store configured")
	}
	outcomes, err := s.outcomes.ListOutcomes(ctx, int(req.GetValue()))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list outcomes: %v", err)
	}

	values := make([]interface{}, 0, len(outcomes))
	for _, o := range outcomes {
		values = append(values, map[string]interface{}{
			statuspb.FieldRunID:         o.RunID,
			statuspb.FieldParticipantID: uint64(o.ParticipantID),
			statuspb.FieldLeaderID:      uint64(o.LeaderID),
			statuspb.FieldWinner:        o.Winner,
			statuspb.FieldTicks:         o.Ticks,
			statuspb.FieldStartedAt:     o.StartedAt.Format(time.RFC3339Nano),
			statuspb.FieldFinishedAt:    o.FinishedAt.Format(time.RFC3339Nano),
			statuspb.FieldDurationMS:    o.Duration().Milliseconds(),
		})
	}
	list, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode outcomes: %v", err)
	}
	return list, nil
}
