package syncgrpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	esync "github.com/arcuru/eidetica/sync"
)

// Client implements esync.Transport over gRPC, dialing and caching one
// connection per peer address.
type Client struct {
	tlsConfig *tls.Config

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewClient returns a Transport that dials peers over gRPC. A non-nil
// tlsConfig enables mutual TLS; pass nil for plaintext loopback use.
func NewClient(tlsConfig *tls.Config) *Client {
	return &Client{tlsConfig: tlsConfig, conns: make(map[string]*grpc.ClientConn)}
}

func (c *Client) connFor(addr string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[addr]; ok {
		return conn, nil
	}
	creds := insecure.NewCredentials()
	if c.tlsConfig != nil {
		creds = credentials.NewTLS(c.tlsConfig)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds), grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)))
	if err != nil {
		return nil, fmt.Errorf("syncgrpc: dial %s: %w", addr, err)
	}
	c.conns[addr] = conn
	return conn, nil
}

func (c *Client) invoke(ctx context.Context, peer *esync.Peer, method string, req, resp any) error {
	conn, err := c.connFor(peer.Address)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return conn.Invoke(ctx, fmt.Sprintf("/%s/%s", serviceName, method), req, resp)
}

// Handshake implements esync.Transport.
func (c *Client) Handshake(ctx context.Context, peer *esync.Peer, req esync.HandshakeRequest) (esync.HandshakeResponse, error) {
	var resp esync.HandshakeResponse
	err := c.invoke(ctx, peer, "Handshake", req, &resp)
	return resp, err
}

// SendEntries implements esync.Transport.
func (c *Client) SendEntries(ctx context.Context, peer *esync.Peer, req esync.SendEntriesRequest) (esync.SendEntriesResponse, error) {
	var resp esync.SendEntriesResponse
	err := c.invoke(ctx, peer, "SendEntries", req, &resp)
	return resp, err
}

// SyncTree implements esync.Transport.
func (c *Client) SyncTree(ctx context.Context, peer *esync.Peer, req esync.SyncTreeRequest) (esync.SyncTreeResponse, error) {
	var resp esync.SyncTreeResponse
	err := c.invoke(ctx, peer, "SyncTree", req, &resp)
	return resp, err
}

// RequestAccess implements esync.Transport.
func (c *Client) RequestAccess(ctx context.Context, peer *esync.Peer, req esync.AccessRequest) (esync.AccessResponse, error) {
	var resp esync.AccessResponse
	err := c.invoke(ctx, peer, "RequestAccess", req, &resp)
	return resp, err
}

// Close tears down every cached connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, conn := range c.conns {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("syncgrpc: close %s: %w", addr, err)
		}
		delete(c.conns, addr)
	}
	return nil
}

var _ esync.Transport = (*Client)(nil)
