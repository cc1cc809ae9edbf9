// Package battleserver exposes live battles and offline settlement over gRPC.
//
// Messages are google.protobuf.Struct values so the service needs no
// generated code; codec.go defines their JSON shapes.
package battleserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "idlebattle.v1.BattleService"

const (
	methodStart    = "/" + ServiceName + "/Start"
	methodPoll     = "/" + ServiceName + "/Poll"
	methodStop     = "/" + ServiceName + "/Stop"
	methodSnapshot = "/" + ServiceName + "/Snapshot"
	methodRestore  = "/" + ServiceName + "/Restore"
	methodSettle   = "/" + ServiceName + "/Settle"
	methodHistory  = "/" + ServiceName + "/History"
	methodWatch    = "/" + ServiceName + "/Watch"
)

// BattleServiceServer is the server API for the battle service.
type BattleServiceServer interface {
	Start(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Poll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stop(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Restore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Settle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(*structpb.Struct, BattleService_WatchServer) error
}

// BattleService_WatchServer is the server side of a Watch stream.
type BattleService_WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchServer struct {
	grpc.ServerStream
}

func (x *watchServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// RegisterBattleServiceServer registers srv on s.
func RegisterBattleServiceServer(s grpc.ServiceRegistrar, srv BattleServiceServer) {
	s.RegisterService(&BattleService_ServiceDesc, srv)
}

func unaryHandler(method string, call func(BattleServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BattleServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BattleServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BattleServiceServer).Watch(in, &watchServer{stream})
}

// BattleService_ServiceDesc is the grpc.ServiceDesc for the battle service.
var BattleService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BattleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Start", Handler: unaryHandler(methodStart, BattleServiceServer.Start)},
		{MethodName: "Poll", Handler: unaryHandler(methodPoll, BattleServiceServer.Poll)},
		{MethodName: "Stop", Handler: unaryHandler(methodStop, BattleServiceServer.Stop)},
		{MethodName: "Snapshot", Handler: unaryHandler(methodSnapshot, BattleServiceServer.Snapshot)},
		{MethodName: "Restore", Handler: unaryHandler(methodRestore, BattleServiceServer.Restore)},
		{MethodName: "Settle", Handler: unaryHandler(methodSettle, BattleServiceServer.Settle)},
		{MethodName: "History", Handler: unaryHandler(methodHistory, BattleServiceServer.History)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "idlebattle/v1/battle.proto",
}

// Client is a thin client for the battle service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Start calls BattleService.Start.
func (c *Client) Start(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodStart, in, opts...)
}

// Poll calls BattleService.Poll.
func (c *Client) Poll(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodPoll, in, opts...)
}

// Stop calls BattleService.Stop.
func (c *Client) Stop(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodStop, in, opts...)
}

// Snapshot calls BattleService.Snapshot.
func (c *Client) Snapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodSnapshot, in, opts...)
}

// Restore calls BattleService.Restore.
func (c *Client) Restore(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodRestore, in, opts...)
}

// Settle calls BattleService.Settle.
func (c *Client) Settle(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodSettle, in, opts...)
}

// History calls BattleService.History.
func (c *Client) History(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodHistory, in, opts...)
}

// Watch opens a BattleService.Watch stream.
func (c *Client) Watch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &BattleService_ServiceDesc.Streams[0], methodWatch, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &watchClient{stream}, nil
}

// WatchClient is the client side of a Watch stream.
type WatchClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type watchClient struct {
	grpc.ClientStream
}

func (x *watchClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
