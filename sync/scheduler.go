package sync

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arcuru/eidetica/log"
)

// defaultSyncInterval is used until the first successful refresh from an
// IntervalSource, and whenever no IntervalSource is configured at all.
const defaultSyncInterval = 30 * time.Second

// IntervalSource supplies the interval a Scheduler should run its periodic
// per-peer sync round at. A config file, a database's own _settings, or any
// other user-preference surface can implement it; the Scheduler re-consults
// it every intervalRefresh rather than reading it once at startup.
type IntervalSource interface {
	SyncInterval(ctx context.Context) (time.Duration, error)
}

// Scheduler owns every background goroutine a running Engine needs:
// draining the send queue, retrying failed deliveries, running the
// periodic full-sync round with every peer subscribed to something, and
// refreshing that round's interval from an IntervalSource. Engine itself
// holds no goroutines, so a caller that only needs one-shot RPCs (AddPeer,
// SyncWithPeer) never pays for background work by constructing one.
type Scheduler struct {
	engine *Engine
	source IntervalSource

	mu        sync.Mutex
	syncEvery time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler builds a Scheduler driving engine's background work. source
// may be nil, in which case the periodic sync round runs at
// defaultSyncInterval and is never refreshed.
func NewScheduler(engine *Engine, source IntervalSource) *Scheduler {
	return &Scheduler{
		engine:    engine,
		source:    source,
		syncEvery: defaultSyncInterval,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the four background loops: send-queue drain, retry-queue
// drain, periodic per-peer sync, and sync-interval refresh.
func (s *Scheduler) Start() {
	s.wg.Add(4)
	go s.runSendLoop()
	go s.runRetryLoop()
	go s.runSyncLoop()
	go s.runIntervalRefreshLoop()
}

// Close stops all background loops and waits for them to exit.
func (s *Scheduler) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	return nil
}

func (s *Scheduler) runSendLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(sendQueueInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.engine.drainSendQueue()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) runRetryLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.engine.drainRetryQueue()
		case <-s.stopCh:
			return
		}
	}
}

// runSyncLoop runs a bidirectional SyncWithPeer round, for every root
// subscribed by every known peer, at the currently configured interval. The
// ticker is reset after each round so a mid-flight interval change from
// runIntervalRefreshLoop takes effect on the next round, not the one after.
func (s *Scheduler) runSyncLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.currentInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			var g errgroup.Group
			for peerID, roots := range s.engine.snapshotSubscriptions() {
				peerID, roots := peerID, roots
				g.Go(func() error {
					for root := range roots {
						ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
						if err := s.engine.SyncWithPeer(ctx, peerID, root); err != nil {
							log.Logger.Warn().Str("peer_id", peerID).Err(err).Msg("periodic sync failed")
						}
						cancel()
					}
					return nil
				})
			}
			_ = g.Wait()
			ticker.Reset(s.currentInterval())
		case <-s.stopCh:
			return
		}
	}
}

// runIntervalRefreshLoop re-consults source every intervalRefresh and
// records the result for runSyncLoop's next tick. This is independent from
// the sync round itself: it runs on its own fixed cadence regardless of
// what interval it last produced.
func (s *Scheduler) runIntervalRefreshLoop() {
	defer s.wg.Done()
	if s.source == nil {
		<-s.stopCh
		return
	}
	ticker := time.NewTicker(intervalRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			d, err := s.source.SyncInterval(ctx)
			cancel()
			if err != nil {
				log.Logger.Warn().Err(err).Msg("failed to refresh sync interval from preferences")
				continue
			}
			s.setInterval(d)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncEvery
}

func (s *Scheduler) setInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncEvery = d
}
