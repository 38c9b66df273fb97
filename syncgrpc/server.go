package syncgrpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/arcuru/eidetica/log"
	"github.com/arcuru/eidetica/sync"
)

// Server exposes a sync.Engine's inbound RPC surface over gRPC, dispatched
// through the hand-registered ServiceDesc since no protoc run generated one.
type Server struct {
	engine       *sync.Engine
	bootstrapper *sync.Bootstrapper
	grpcServer   *grpc.Server
}

// NewServer wraps engine and bootstrapper behind a gRPC listener. Passing a
// non-nil tlsConfig enables mutual TLS, mirroring the teacher's
// certificate-pinned manager API; a nil config runs in plaintext, suitable
// for tests and loopback use.
func NewServer(engine *sync.Engine, bootstrapper *sync.Bootstrapper, tlsConfig *tls.Config) *Server {
	var opts []grpc.ServerOption
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	grpcServer := grpc.NewServer(opts...)
	s := &Server{engine: engine, bootstrapper: bootstrapper, grpcServer: grpcServer}
	grpcServer.RegisterService(&ServiceDesc, s)
	return s
}

// Serve starts accepting connections on addr. It blocks until the server
// stops.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("syncgrpc: listen: %w", err)
	}
	log.Logger.Info().Str("addr", addr).Msg("sync gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// Stop gracefully shuts the server down, finishing in-flight RPCs.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// Handshake answers a peer's protocol handshake.
func (s *Server) Handshake(ctx context.Context, req sync.HandshakeRequest) (sync.HandshakeResponse, error) {
	if req.ProtocolVersion != sync.ProtocolVersion {
		return sync.HandshakeResponse{}, fmt.Errorf("syncgrpc: peer %s speaks protocol %d, want %d", req.DeviceID, req.ProtocolVersion, sync.ProtocolVersion)
	}
	return sync.HandshakeResponse{
		ProtocolVersion: sync.ProtocolVersion,
		DeviceID:        s.engine.DeviceID(),
		PubKey:          s.engine.PubKey(),
	}, nil
}

// SendEntries accepts entries a peer is pushing unprompted.
func (s *Server) SendEntries(ctx context.Context, req sync.SendEntriesRequest) (sync.SendEntriesResponse, error) {
	return s.engine.ReceiveEntries(ctx, req.RootID, req.Entries), nil
}

// SyncTree answers a peer's reconciliation request.
func (s *Server) SyncTree(ctx context.Context, req sync.SyncTreeRequest) (sync.SyncTreeResponse, error) {
	return s.engine.ReceiveSyncTree(ctx, req.RootID, req.HaveTips)
}

// RequestAccess routes a bootstrap access request through the configured
// approval policy.
func (s *Server) RequestAccess(ctx context.Context, req sync.AccessRequest) (sync.AccessResponse, error) {
	if s.bootstrapper == nil {
		return sync.AccessResponse{Status: sync.AccessDenied, Reason: "bootstrap not enabled on this server"}, nil
	}
	return s.bootstrapper.HandleAccessRequest(ctx, req)
}

var _ Handler = (*Server)(nil)
