package sync

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/log"
	"github.com/arcuru/eidetica/store"
	"github.com/arcuru/eidetica/transaction"
)

// ApprovalPolicy decides the outcome of an incoming AccessRequest. It may
// grant immediately (AccessApproved), leave it for a human to decide later
// (AccessPending), or reject it outright (AccessDenied).
type ApprovalPolicy func(ctx context.Context, req AccessRequest) AccessStatus

// AutoApprove grants every request at exactly the requested permission.
// Useful for tests and single-user setups; production deployments should
// supply a policy that checks requester identity against an allowlist.
func AutoApprove(ctx context.Context, req AccessRequest) AccessStatus {
	return AccessApproved
}

// DenyAll rejects every incoming request, forcing all bootstrap to happen
// out of band (manual key distribution).
func DenyAll(ctx context.Context, req AccessRequest) AccessStatus {
	return AccessDenied
}

// Bootstrapper handles incoming AccessRequests on behalf of an Instance: it
// runs the configured ApprovalPolicy and, on approval, commits a new AuthKey
// into the target database's settings.
type Bootstrapper struct {
	instance *eidetica.Instance
	policy   ApprovalPolicy
	signer   ed25519.PrivateKey // identity used to author the grant commit

	mu      sync.Mutex
	pending map[string]AccessRequest
}

// NewBootstrapper returns a Bootstrapper that authors grant commits with
// signer, an Admin key already present in the databases it serves.
func NewBootstrapper(instance *eidetica.Instance, signer ed25519.PrivateKey, policy ApprovalPolicy) *Bootstrapper {
	if policy == nil {
		policy = DenyAll
	}
	return &Bootstrapper{
		instance: instance,
		policy:   policy,
		signer:   signer,
		pending:  make(map[string]AccessRequest),
	}
}

func pendingKey(root eidetica.ID, pubkey string) string {
	return string(root) + "/" + pubkey
}

// HandleAccessRequest is invoked by the Transport's server side when a peer
// asks for a key in one of this instance's databases.
func (b *Bootstrapper) HandleAccessRequest(ctx context.Context, req AccessRequest) (AccessResponse, error) {
	status := b.policy(ctx, req)
	switch status {
	case AccessApproved:
		if err := b.grant(ctx, req); err != nil {
			return AccessResponse{Status: AccessDenied, Reason: err.Error()}, err
		}
		log.Logger.Info().Str("root_id", req.RootID.String()).Str("requester", req.RequesterPubKey).Msg("bootstrap access granted")
		return AccessResponse{Status: AccessApproved}, nil
	case AccessPending:
		b.mu.Lock()
		b.pending[pendingKey(req.RootID, req.RequesterPubKey)] = req
		b.mu.Unlock()
		return AccessResponse{Status: AccessPending, Reason: "awaiting manual approval"}, nil
	default:
		return AccessResponse{Status: AccessDenied, Reason: "request denied"}, nil
	}
}

// PendingRequests returns a snapshot of every request awaiting manual
// approval.
func (b *Bootstrapper) PendingRequests() []AccessRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]AccessRequest, 0, len(b.pending))
	for _, req := range b.pending {
		out = append(out, req)
	}
	return out
}

// Approve grants a previously pending request.
func (b *Bootstrapper) Approve(ctx context.Context, root eidetica.ID, pubkey string) error {
	key := pendingKey(root, pubkey)
	b.mu.Lock()
	req, ok := b.pending[key]
	if ok {
		delete(b.pending, key)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("sync: no pending request for %s/%s", root, pubkey)
	}
	return b.grant(ctx, req)
}

// Deny discards a previously pending request without granting access.
func (b *Bootstrapper) Deny(root eidetica.ID, pubkey string) {
	b.mu.Lock()
	delete(b.pending, pendingKey(root, pubkey))
	b.mu.Unlock()
}

// grant commits a new AuthKey entry for req.RequesterPubKey into the
// target database's settings.
func (b *Bootstrapper) grant(ctx context.Context, req AccessRequest) error {
	db, err := b.instance.OpenDatabase(ctx, req.RootID, b.signer)
	if err != nil {
		return err
	}
	tx, err := transaction.New(ctx, db, b.instance)
	if err != nil {
		return err
	}
	settings := store.NewSettingsStore(tx)
	if err := settings.AddKey(ctx, eidetica.AuthKey{
		PubKey:      req.RequesterPubKey,
		Permissions: req.RequestedPermission,
		Status:      eidetica.Active,
		Name:        req.RequesterName,
	}); err != nil {
		return err
	}
	_, err = tx.Commit(ctx)
	return err
}
