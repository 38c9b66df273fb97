package sync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/backend"
	"github.com/arcuru/eidetica/crypto"
)

func TestBootstrapperAutoApproveGrantsImmediately(t *testing.T) {
	ctx := context.Background()
	b, err := backend.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	inst := eidetica.NewInstance(b)
	_, owner, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	db, err := inst.CreateDatabase(ctx, owner, nil)
	require.NoError(t, err)

	bootstrapper := NewBootstrapper(inst, owner, AutoApprove)

	_, requester, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	requesterPub := crypto.PubKeyFromPrivate(requester)

	resp, err := bootstrapper.HandleAccessRequest(ctx, AccessRequest{
		RootID:              db.RootID,
		RequesterPubKey:     requesterPub,
		RequesterName:       "laptop",
		RequestedPermission: eidetica.WritePermission(0),
	})
	require.NoError(t, err)
	require.Equal(t, AccessApproved, resp.Status)

	settings, err := db.CurrentSettings(ctx)
	require.NoError(t, err)
	granted, ok := settings.Auth[requesterPub]
	require.True(t, ok, "the requester's key must now be recorded in settings")
	require.True(t, granted.IsActive())
	require.Equal(t, eidetica.WritePermission(0), granted.Permissions)
}

func TestBootstrapperDenyAllRejects(t *testing.T) {
	ctx := context.Background()
	b, err := backend.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	inst := eidetica.NewInstance(b)
	_, owner, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	db, err := inst.CreateDatabase(ctx, owner, nil)
	require.NoError(t, err)

	bootstrapper := NewBootstrapper(inst, owner, nil) // nil policy defaults to DenyAll

	_, requester, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	requesterPub := crypto.PubKeyFromPrivate(requester)

	resp, err := bootstrapper.HandleAccessRequest(ctx, AccessRequest{
		RootID:          db.RootID,
		RequesterPubKey: requesterPub,
	})
	require.NoError(t, err)
	require.Equal(t, AccessDenied, resp.Status)

	settings, err := db.CurrentSettings(ctx)
	require.NoError(t, err)
	_, ok := settings.Auth[requesterPub]
	require.False(t, ok)
}

func TestBootstrapperPendingApprovalFlow(t *testing.T) {
	ctx := context.Background()
	b, err := backend.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	inst := eidetica.NewInstance(b)
	_, owner, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	db, err := inst.CreateDatabase(ctx, owner, nil)
	require.NoError(t, err)

	manual := func(ctx context.Context, req AccessRequest) AccessStatus { return AccessPending }
	bootstrapper := NewBootstrapper(inst, owner, manual)

	_, requester, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	requesterPub := crypto.PubKeyFromPrivate(requester)

	resp, err := bootstrapper.HandleAccessRequest(ctx, AccessRequest{
		RootID:              db.RootID,
		RequesterPubKey:     requesterPub,
		RequestedPermission: eidetica.ReadPermission(),
	})
	require.NoError(t, err)
	require.Equal(t, AccessPending, resp.Status)

	pending := bootstrapper.PendingRequests()
	require.Len(t, pending, 1)
	require.Equal(t, requesterPub, pending[0].RequesterPubKey)

	require.NoError(t, bootstrapper.Approve(ctx, db.RootID, requesterPub))
	require.Empty(t, bootstrapper.PendingRequests())

	settings, err := db.CurrentSettings(ctx)
	require.NoError(t, err)
	granted, ok := settings.Auth[requesterPub]
	require.True(t, ok)
	require.Equal(t, eidetica.ReadPermission(), granted.Permissions)
}

func TestBootstrapperDenyDiscardsPending(t *testing.T) {
	ctx := context.Background()
	b, err := backend.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	inst := eidetica.NewInstance(b)
	_, owner, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	db, err := inst.CreateDatabase(ctx, owner, nil)
	require.NoError(t, err)

	manual := func(ctx context.Context, req AccessRequest) AccessStatus { return AccessPending }
	bootstrapper := NewBootstrapper(inst, owner, manual)

	_, requester, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	requesterPub := crypto.PubKeyFromPrivate(requester)

	_, err = bootstrapper.HandleAccessRequest(ctx, AccessRequest{RootID: db.RootID, RequesterPubKey: requesterPub})
	require.NoError(t, err)
	require.Len(t, bootstrapper.PendingRequests(), 1)

	bootstrapper.Deny(db.RootID, requesterPub)
	require.Empty(t, bootstrapper.PendingRequests())

	err = bootstrapper.Approve(ctx, db.RootID, requesterPub)
	require.Error(t, err, "approving a discarded request must fail")
}

func TestApproveUnknownRequestFails(t *testing.T) {
	ctx := context.Background()
	b, err := backend.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	inst := eidetica.NewInstance(b)
	bootstrapper := NewBootstrapper(inst, nil, nil)

	err = bootstrapper.Approve(ctx, "nonexistent-root", "nonexistent-pubkey")
	require.Error(t, err)
}
