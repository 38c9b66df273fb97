package syncgrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/arcuru/eidetica/sync"
)

// serviceName is the gRPC full service path a protoc-generated stub would
// have derived from a sync.proto package+service declaration.
const serviceName = "eidetica.sync.Sync"

// Handler is implemented by the server side: the set of RPCs a peer may
// invoke, matching sync.Transport's shape minus the Peer argument (the
// server side has no notion of "which peer am I" beyond the caller).
type Handler interface {
	Handshake(ctx context.Context, req sync.HandshakeRequest) (sync.HandshakeResponse, error)
	SendEntries(ctx context.Context, req sync.SendEntriesRequest) (sync.SendEntriesResponse, error)
	SyncTree(ctx context.Context, req sync.SyncTreeRequest) (sync.SyncTreeResponse, error)
	RequestAccess(ctx context.Context, req sync.AccessRequest) (sync.AccessResponse, error)
}

func handshakeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req sync.HandshakeRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).Handshake(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Handshake"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).Handshake(ctx, req.(sync.HandshakeRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func sendEntriesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req sync.SendEntriesRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).SendEntries(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/SendEntries"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).SendEntries(ctx, req.(sync.SendEntriesRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func syncTreeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req sync.SyncTreeRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).SyncTree(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/SyncTree"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).SyncTree(ctx, req.(sync.SyncTreeRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func requestAccessHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req sync.AccessRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).RequestAccess(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/RequestAccess"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).RequestAccess(ctx, req.(sync.AccessRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// ServiceDesc is the hand-authored equivalent of what protoc-gen-go-grpc
// would emit for a four-RPC Sync service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Handshake", Handler: handshakeHandler},
		{MethodName: "SendEntries", Handler: sendEntriesHandler},
		{MethodName: "SyncTree", Handler: syncTreeHandler},
		{MethodName: "RequestAccess", Handler: requestAccessHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sync.proto",
}
