package sync

import (
	"context"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/arcuru/eidetica"
)

// ProtocolVersion is the wire contract version this engine speaks.
// Handshake fails when a peer reports a different major version.
const ProtocolVersion = 1

// HandshakeRequest opens a sync session, exchanging device identity.
type HandshakeRequest struct {
	ProtocolVersion int    `json:"protocol_version"`
	DeviceID        string `json:"device_id"`
	PubKey          string `json:"pubkey,omitempty"`
}

// HandshakeResponse is the peer's reply to a HandshakeRequest.
type HandshakeResponse struct {
	ProtocolVersion int    `json:"protocol_version"`
	DeviceID        string `json:"device_id"`
	PubKey          string `json:"pubkey,omitempty"`
}

// SendEntriesRequest pushes entries for a database to a peer, unprompted.
type SendEntriesRequest struct {
	RootID  eidetica.ID      `json:"root_id"`
	Entries []*eidetica.Entry `json:"entries"`
}

// SendEntriesResponse reports which entries the peer accepted.
type SendEntriesResponse struct {
	Accepted []eidetica.ID     `json:"accepted"`
	Rejected map[string]string `json:"rejected,omitempty"`
}

// SyncTreeRequest asks a peer to reconcile a database: "here is what I
// have; send me what I'm missing."
type SyncTreeRequest struct {
	RootID   eidetica.ID   `json:"root_id"`
	HaveTips []eidetica.ID `json:"have_tips"`
}

// SyncMode distinguishes a full-database bootstrap reply from an
// incremental catch-up reply.
type SyncMode string

const (
	ModeBootstrap  SyncMode = "bootstrap"
	ModeIncremental SyncMode = "incremental"
)

// SyncTreeResponse is a peer's reply to SyncTreeRequest: either every
// entry in the database (Bootstrap, when the requester reports no tips)
// or just the entries missing from HaveTips (Incremental).
type SyncTreeResponse struct {
	Mode    SyncMode          `json:"mode"`
	Entries []*eidetica.Entry `json:"entries"`
	Tips    []eidetica.ID     `json:"tips"`
}

// AccessRequest is sent by a device with no recorded key in a database,
// asking an admin peer to grant it one.
type AccessRequest struct {
	RootID              eidetica.ID            `json:"root_id"`
	RequesterPubKey     string                 `json:"requester_pubkey"`
	RequesterName       string                 `json:"requester_name,omitempty"`
	RequestedPermission eidetica.Permission    `json:"requested_permission"`
	RequestedAt         *timestamppb.Timestamp `json:"requested_at,omitempty"`
}

// AccessResponse reports whether an AccessRequest was granted immediately,
// is pending human approval, or was denied.
type AccessResponse struct {
	Status AccessStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// AccessStatus is the outcome of an AccessRequest.
type AccessStatus string

const (
	AccessApproved AccessStatus = "approved"
	AccessPending  AccessStatus = "pending"
	AccessDenied   AccessStatus = "denied"
)

// Transport is the pluggable wire layer the Engine drives. syncgrpc
// provides the concrete gRPC implementation; tests may substitute an
// in-process one.
type Transport interface {
	Handshake(ctx context.Context, peer *Peer, req HandshakeRequest) (HandshakeResponse, error)
	SendEntries(ctx context.Context, peer *Peer, req SendEntriesRequest) (SendEntriesResponse, error)
	SyncTree(ctx context.Context, peer *Peer, req SyncTreeRequest) (SyncTreeResponse, error)
	RequestAccess(ctx context.Context, peer *Peer, req AccessRequest) (AccessResponse, error)
}
