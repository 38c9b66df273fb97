package sync

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/crypto"
	"github.com/arcuru/eidetica/log"
	"github.com/arcuru/eidetica/metrics"
)

const (
	sendQueueInterval = 5 * time.Second
	retryInterval     = 30 * time.Second
	intervalRefresh   = 60 * time.Second
	maxRetryAttempts  = 10
	maxBackoffSeconds = 64
)

// pendingSend is one database's worth of newly-committed entries awaiting
// delivery to every peer subscribed to it.
type pendingSend struct {
	root    eidetica.ID
	entries []*eidetica.Entry
}

// retryState tracks a peer whose last sync attempt failed.
type retryState struct {
	peer      *Peer
	root      eidetica.ID
	attempts  int
	nextRetry time.Time
}

// Engine is the sync subsystem attached to an Instance: it holds peer and
// queue state and answers both local RPC calls (AddPeer, SyncWithPeer) and
// incoming protocol requests (ReceiveEntries, ReceiveSyncTree). It runs no
// background work on its own — pair it with a Scheduler for continuous
// send-queue draining, retries, and periodic reconciliation.
type Engine struct {
	backend   eidetica.Backend
	transport Transport
	deviceID  string
	pubkey    string

	peers *Registry

	mu               sync.Mutex
	subscribed       map[string]map[eidetica.ID]struct{} // peer ID -> set of subscribed roots
	sendQueue        []pendingSend
	retryQueue       map[string]*retryState // keyed by peer ID
	pendingApprovals map[string]AccessRequest
}

// NewEngine builds a sync Engine for backend, identifying this device as
// deviceID and presenting signingPub as its pubkey in Handshake and
// AccessRequest messages. The returned
// Engine runs no background goroutines; construct a Scheduler to drive it.
func NewEngine(backend eidetica.Backend, transport Transport, deviceID string, signingPub string) *Engine {
	return &Engine{
		backend:          backend,
		transport:        transport,
		deviceID:         deviceID,
		pubkey:           signingPub,
		peers:            NewRegistry(),
		subscribed:       make(map[string]map[eidetica.ID]struct{}),
		retryQueue:       make(map[string]*retryState),
		pendingApprovals: make(map[string]AccessRequest),
	}
}

// DeviceID returns this engine's self-reported device identity.
func (e *Engine) DeviceID() string { return e.deviceID }

// PubKey returns the canonical pubkey string this engine presents during
// Handshake and AccessRequest.
func (e *Engine) PubKey() string { return e.pubkey }

// Peers exposes the underlying registry, e.g. for a syncgrpc server that
// needs to look up a caller's expected identity.
func (e *Engine) Peers() *Registry { return e.peers }

// ReceiveEntries accepts entries pushed by a peer (an unprompted
// SendEntries call), storing each as Unverified: the backend rechecks each
// entry's content ID against its bytes, and neither signature nor auth is
// checked here.
func (e *Engine) ReceiveEntries(ctx context.Context, root eidetica.ID, entries []*eidetica.Entry) SendEntriesResponse {
	resp := SendEntriesResponse{Rejected: make(map[string]string)}
	for _, entry := range entries {
		if err := e.backend.Put(ctx, eidetica.Unverified, entry); err != nil {
			resp.Rejected[string(entry.ID())] = err.Error()
			continue
		}
		resp.Accepted = append(resp.Accepted, entry.ID())
	}
	metrics.EntriesSyncedTotal.WithLabelValues("in").Add(float64(len(resp.Accepted)))
	return resp
}

// ReceiveSyncTree answers a peer's SyncTreeRequest: the full database if
// the peer reports no tips (Bootstrap), or just the entries missing from
// its reported tips (Incremental).
func (e *Engine) ReceiveSyncTree(ctx context.Context, root eidetica.ID, haveTips []eidetica.ID) (SyncTreeResponse, error) {
	ourTips, err := e.backend.GetTips(ctx, root)
	if err != nil {
		return SyncTreeResponse{}, err
	}

	if len(haveTips) == 0 {
		entries, err := e.backend.GetTree(ctx, root)
		if err != nil {
			return SyncTreeResponse{}, err
		}
		return SyncTreeResponse{Mode: ModeBootstrap, Entries: entries, Tips: ourTips}, nil
	}

	boundary := eidetica.NewIDSet(haveTips...)
	visited := eidetica.NewIDSet()
	var missing []*eidetica.Entry
	var walk func(id eidetica.ID) error
	walk = func(id eidetica.ID) error {
		if visited.Contains(id) || boundary.Contains(id) {
			return nil
		}
		visited.Add(id)
		entry, err := e.backend.Get(ctx, id)
		if err != nil {
			return err
		}
		missing = append(missing, entry)
		for _, p := range entry.Parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		return nil
	}
	for _, tip := range ourTips {
		if err := walk(tip); err != nil {
			return SyncTreeResponse{}, err
		}
	}
	return SyncTreeResponse{Mode: ModeIncremental, Entries: missing, Tips: ourTips}, nil
}

// AddPeer registers a peer and performs its initial Handshake.
func (e *Engine) AddPeer(ctx context.Context, p *Peer) error {
	if err := e.peers.Add(p); err != nil {
		return err
	}
	resp, err := e.transport.Handshake(ctx, p, HandshakeRequest{
		ProtocolVersion: ProtocolVersion,
		DeviceID:        e.deviceID,
		PubKey:          e.pubkey,
	})
	if err != nil {
		return err
	}
	if resp.ProtocolVersion != ProtocolVersion {
		return eidetica.ErrProtocolMismatch
	}
	log.Logger.Info().Str("peer_id", p.ID).Msg("peer handshake complete")
	return nil
}

// Subscribe marks root for propagation to peerID: future local commits to
// root are queued for delivery to that peer.
func (e *Engine) Subscribe(peerID string, root eidetica.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.subscribed[peerID]
	if !ok {
		set = make(map[eidetica.ID]struct{})
		e.subscribed[peerID] = set
	}
	set[root] = struct{}{}
}

// NotifyLocalCommit implements eidetica.Syncer: it queues entry for
// delivery to every peer subscribed to root.
func (e *Engine) NotifyLocalCommit(root eidetica.ID, entry *eidetica.Entry) {
	e.mu.Lock()
	e.sendQueue = append(e.sendQueue, pendingSend{root: root, entries: []*eidetica.Entry{entry}})
	e.mu.Unlock()
}

// SyncWithPeer runs one SyncTree round-trip against peerID for root,
// applying any returned entries to the local backend, then sends the peer
// every local entry its reported tips do not cover.
func (e *Engine) SyncWithPeer(ctx context.Context, peerID string, root eidetica.ID) error {
	peer, ok := e.peers.Get(peerID)
	if !ok {
		return eidetica.ErrPeerNotFound
	}
	timer := metrics.NewTimer()
	haveTips, err := e.backend.GetTips(ctx, root)
	if err != nil && err != eidetica.ErrNotFound {
		return err
	}
	resp, err := e.transport.SyncTree(ctx, peer, SyncTreeRequest{RootID: root, HaveTips: haveTips})
	if err != nil {
		metrics.SyncRoundsTotal.WithLabelValues("error").Inc()
		timer.ObserveDurationVec(metrics.SyncRoundDuration, peerID)
		return err
	}
	for _, entry := range resp.Entries {
		if err := e.backend.Put(ctx, eidetica.Unverified, entry); err != nil {
			metrics.SyncRoundsTotal.WithLabelValues("error").Inc()
			return err
		}
	}
	metrics.EntriesSyncedTotal.WithLabelValues("in").Add(float64(len(resp.Entries)))
	out, err := e.ReceiveSyncTree(ctx, root, resp.Tips)
	if err != nil {
		metrics.SyncRoundsTotal.WithLabelValues("error").Inc()
		return err
	}
	if len(out.Entries) > 0 {
		if _, err := e.transport.SendEntries(ctx, peer, SendEntriesRequest{RootID: root, Entries: out.Entries}); err != nil {
			metrics.SyncRoundsTotal.WithLabelValues("error").Inc()
			return err
		}
		metrics.EntriesSyncedTotal.WithLabelValues("out").Add(float64(len(out.Entries)))
	}
	metrics.SyncRoundsTotal.WithLabelValues(string(resp.Mode)).Inc()
	timer.ObserveDurationVec(metrics.SyncRoundDuration, peerID)
	log.Logger.Debug().Str("peer_id", peerID).Str("root_id", root.String()).Int("entries", len(resp.Entries)).Msg("sync round complete")
	return nil
}

// RequestBootstrapAccess asks peerID for a key in root, used the first
// time this device needs to write to a database it has no recorded
// identity in.
func (e *Engine) RequestBootstrapAccess(ctx context.Context, peerID string, root eidetica.ID, requested eidetica.Permission) (AccessResponse, error) {
	peer, ok := e.peers.Get(peerID)
	if !ok {
		return AccessResponse{}, eidetica.ErrPeerNotFound
	}
	if _, err := crypto.ParsePubKey(e.pubkey); err != nil {
		return AccessResponse{}, err
	}
	resp, err := e.transport.RequestAccess(ctx, peer, AccessRequest{
		RootID:              root,
		RequesterPubKey:     e.pubkey,
		RequestedPermission: requested,
		RequestedAt:         timestamppb.Now(),
	})
	if err != nil {
		return AccessResponse{}, err
	}
	if resp.Status == AccessPending {
		e.mu.Lock()
		e.pendingApprovals[peerID+"/"+string(root)] = AccessRequest{RootID: root, RequesterPubKey: e.pubkey, RequestedPermission: requested}
		e.mu.Unlock()
	}
	return resp, nil
}

// queueRetry enqueues a failed delivery for exponential-backoff retry.
func (e *Engine) queueRetry(peer *Peer, root eidetica.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.retryQueue[peer.ID]
	if !ok {
		st = &retryState{peer: peer, root: root}
		e.retryQueue[peer.ID] = st
	}
	st.attempts++
	backoff := time.Duration(1) << uint(st.attempts)
	if backoff > maxBackoffSeconds {
		backoff = maxBackoffSeconds
	}
	st.nextRetry = time.Now().Add(backoff * time.Second)
	if st.attempts >= maxRetryAttempts {
		log.Logger.Warn().Str("peer_id", peer.ID).Msg("giving up on peer after max retry attempts")
		delete(e.retryQueue, peer.ID)
	}
	metrics.RetryQueueDepth.Set(float64(len(e.retryQueue)))
}

func (e *Engine) drainSendQueue() {
	e.mu.Lock()
	queue := e.sendQueue
	e.sendQueue = nil
	e.mu.Unlock()

	for _, item := range queue {
		item := item
		var g errgroup.Group
		for _, peer := range e.peers.List() {
			peer := peer
			e.mu.Lock()
			_, subscribed := e.subscribed[peer.ID][item.root]
			e.mu.Unlock()
			if !subscribed {
				continue
			}
			g.Go(func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				resp, err := e.transport.SendEntries(ctx, peer, SendEntriesRequest{RootID: item.root, Entries: item.entries})
				if err != nil {
					e.queueRetry(peer, item.root)
					return nil
				}
				metrics.EntriesSyncedTotal.WithLabelValues("out").Add(float64(len(resp.Accepted)))
				return nil
			})
		}
		_ = g.Wait()
	}
}

func (e *Engine) drainRetryQueue() {
	now := time.Now()
	e.mu.Lock()
	var due []*retryState
	for _, st := range e.retryQueue {
		if now.After(st.nextRetry) {
			due = append(due, st)
		}
	}
	e.mu.Unlock()

	for _, st := range due {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := e.SyncWithPeer(ctx, st.peer.ID, st.root)
		cancel()
		if err == nil {
			e.mu.Lock()
			delete(e.retryQueue, st.peer.ID)
			metrics.RetryQueueDepth.Set(float64(len(e.retryQueue)))
			e.mu.Unlock()
			continue
		}
		e.queueRetry(st.peer, st.root)
	}
}

func (e *Engine) snapshotSubscriptions() map[string]map[eidetica.ID]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]map[eidetica.ID]struct{}, len(e.subscribed))
	for peerID, roots := range e.subscribed {
		copyRoots := make(map[eidetica.ID]struct{}, len(roots))
		for r := range roots {
			copyRoots[r] = struct{}{}
		}
		out[peerID] = copyRoots
	}
	return out
}

// Close satisfies eidetica.Syncer. Engine itself owns no background work to
// stop; a Scheduler built atop it must be closed separately.
func (e *Engine) Close() error {
	return nil
}

var _ eidetica.Syncer = (*Engine)(nil)
