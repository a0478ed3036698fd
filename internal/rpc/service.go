package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// SchedulerServer is the scheduling core's gRPC-facing contract (spec §6).
// It is hand-written rather than protoc-generated, matching the JSON codec
// in codec.go.
type SchedulerServer interface {
	QueryFlight(ctx context.Context, req *QueryFlightRequest) (*QueryFlightResponse, error)
	CreateItinerary(ctx context.Context, req *CreateItineraryRequest) (*TaskResponse, error)
	CancelItinerary(ctx context.Context, req *CancelItineraryRequest) (*TaskResponse, error)
	CancelTask(ctx context.Context, req *CancelTaskRequest) (*TaskResponse, error)
	GetTaskStatus(ctx context.Context, req *GetTaskStatusRequest) (*TaskResponse, error)
	IsReady(ctx context.Context, req *struct{}) (*IsReadyResponse, error)
}

// ServiceName is the gRPC fully-qualified service name.
const ServiceName = "scheduler.Scheduler"

// ServiceDesc is the hand-authored equivalent of what protoc-gen-go-grpc
// would emit for SchedulerServer. Registered with grpc.NewServer via
// RegisterSchedulerServer.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "QueryFlight", Handler: _Scheduler_QueryFlight_Handler},
		{MethodName: "CreateItinerary", Handler: _Scheduler_CreateItinerary_Handler},
		{MethodName: "CancelItinerary", Handler: _Scheduler_CancelItinerary_Handler},
		{MethodName: "CancelTask", Handler: _Scheduler_CancelTask_Handler},
		{MethodName: "GetTaskStatus", Handler: _Scheduler_GetTaskStatus_Handler},
		{MethodName: "IsReady", Handler: _Scheduler_IsReady_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scheduler.proto",
}

// RegisterSchedulerServer wires srv into s under ServiceDesc.
func RegisterSchedulerServer(s grpc.ServiceRegistrar, srv SchedulerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func _Scheduler_QueryFlight_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(QueryFlightRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).QueryFlight(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/QueryFlight"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).QueryFlight(ctx, req.(*QueryFlightRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Scheduler_CreateItinerary_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateItineraryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).CreateItinerary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/CreateItinerary"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).CreateItinerary(ctx, req.(*CreateItineraryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Scheduler_CancelItinerary_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CancelItineraryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).CancelItinerary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/CancelItinerary"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).CancelItinerary(ctx, req.(*CancelItineraryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Scheduler_CancelTask_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CancelTaskRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).CancelTask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/CancelTask"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).CancelTask(ctx, req.(*CancelTaskRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Scheduler_GetTaskStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetTaskStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).GetTaskStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetTaskStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).GetTaskStatus(ctx, req.(*GetTaskStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Scheduler_IsReady_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(struct{})
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).IsReady(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/IsReady"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).IsReady(ctx, req.(*struct{}))
	}
	return interceptor(ctx, in, info, handler)
}
