// Package statuspb defines the ringelect.v1.StatusService gRPC contract. The
// messages are protobuf well-known types, so the service needs no generated
// code beyond the descriptor below.
package statuspb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "ringelect.v1.StatusService"

	GetStatusMethod    = "/" + ServiceName + "/GetStatus"
	ListOutcomesMethod = "/" + ServiceName + "/ListOutcomes"
)

// StatusServiceServer is the server API for StatusService.
type StatusServiceServer interface {
	// GetStatus reports the participant's current election state.
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// ListOutcomes returns stored run outcomes, newest first.
	ListOutcomes(context.Context, *wrapperspb.Int32Value) (*structpb.ListValue, error)
}

// UnimplementedStatusServiceServer can be embedded for forward compatibility.
type UnimplementedStatusServiceServer struct{}

func (UnimplementedStatusServiceServer) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetStatus not implemented")
}

func (UnimplementedStatusServiceServer) ListOutcomes(context.Context, *wrapperspb.Int32Value) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListOutcomes not implemented")
}

// RegisterStatusServiceServer registers srv on s.
func RegisterStatusServiceServer(s grpc.ServiceRegistrar, srv StatusServiceServer) {
	s.RegisterService(&StatusService_ServiceDesc, srv)
}

func _StatusService_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServiceServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetStatusMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServiceServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _StatusService_ListOutcomes_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServiceServer).ListOutcomes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListOutcomesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServiceServer).ListOutcomes(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

// StatusService_ServiceDesc is the grpc.ServiceDesc for StatusService.
var StatusService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatusServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: _StatusService_GetStatus_Handler},
		{MethodName: "ListOutcomes", Handler: _StatusService_ListOutcomes_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ringelect/v1/status.proto",
}

// StatusServiceClient is the client API for StatusService.
type StatusServiceClient interface {
	GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListOutcomes(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*structpb.ListValue, error)
}

type statusServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewStatusServiceClient(cc grpc.ClientConnInterface) StatusServiceClient {
	return &statusServiceClient{cc}
}

func (c *statusServiceClient) GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetStatusMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *statusServiceClient) ListOutcomes(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, ListOutcomesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
